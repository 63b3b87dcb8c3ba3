// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package orchestrator

import (
	"testing"
	"time"

	"github.com/kadirpekel/bentham/internal/core"
)

func TestQueue_OrdersByPriorityThenSurfaceThenLocationThenInsertion(t *testing.T) {
	q := NewQueue()
	jobs := []*Job{
		{Priority: core.PriorityNormal, Cell: core.CellKey{SurfaceID: "b", LocationID: "us"}},
		{Priority: core.PriorityCritical, Cell: core.CellKey{SurfaceID: "z", LocationID: "us"}},
		{Priority: core.PriorityNormal, Cell: core.CellKey{SurfaceID: "a", LocationID: "uk"}},
		{Priority: core.PriorityNormal, Cell: core.CellKey{SurfaceID: "a", LocationID: "us"}},
	}
	for _, j := range jobs {
		q.Push(j)
	}

	var order []string
	for {
		j, ok := q.PopEligible(time.Now(), nil)
		if !ok {
			break
		}
		order = append(order, string(j.Priority)+":"+j.Cell.SurfaceID+":"+j.Cell.LocationID)
	}

	want := []string{"critical:z:us", "normal:a:uk", "normal:a:us", "normal:b:us"}
	if len(order) != len(want) {
		t.Fatalf("unexpected order %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("position %d: got %q want %q (full order %v)", i, order[i], want[i], order)
		}
	}
}

func TestQueue_PopEligibleSkipsFutureJobsButPreservesThem(t *testing.T) {
	q := NewQueue()
	now := time.Now()
	future := &Job{Priority: core.PriorityCritical, Cell: core.CellKey{SurfaceID: "a"}, EarliestExecutionTime: now.Add(time.Hour)}
	ready := &Job{Priority: core.PriorityLow, Cell: core.CellKey{SurfaceID: "b"}}
	q.Push(future)
	q.Push(ready)

	j, ok := q.PopEligible(now, nil)
	if !ok || j != ready {
		t.Fatalf("expected the ready low-priority job despite the future critical job, got %v ok=%v", j, ok)
	}
	if _, ok := q.PopEligible(now, nil); ok {
		t.Fatal("expected no further eligible job before the future job's time arrives")
	}
	if _, ok := q.PopEligible(now.Add(2*time.Hour), nil); !ok {
		t.Fatal("expected the deferred job to become eligible later")
	}
}

func TestQueue_PopEligibleFilterSkipsNonMatchingJobs(t *testing.T) {
	q := NewQueue()
	q.Push(&Job{Priority: core.PriorityNormal, Cell: core.CellKey{SurfaceID: "openai"}})
	q.Push(&Job{Priority: core.PriorityNormal, Cell: core.CellKey{SurfaceID: "gemini"}})

	filter := func(j *Job) bool { return j.Cell.SurfaceID == "gemini" }
	j, ok := q.PopEligible(time.Now(), filter)
	if !ok || j.Cell.SurfaceID != "gemini" {
		t.Fatalf("expected the gemini job, got %v ok=%v", j, ok)
	}
	if q.Len() != 1 {
		t.Fatalf("expected the skipped job to remain queued, len=%d", q.Len())
	}
}
