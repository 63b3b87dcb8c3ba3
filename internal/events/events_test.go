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

package events

import (
	"sync"
	"testing"
)

func TestBus_EmitDeliversToAllListeners(t *testing.T) {
	b := NewBus()
	var mu sync.Mutex
	var got []Type

	b.Subscribe(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, ev.Type)
	})
	b.Subscribe(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, ev.Type)
	})

	b.Emit(Event{Type: TypeJobStarted, JobID: "job-1"})

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("expected both listeners notified, got %d deliveries", len(got))
	}
}

func TestBus_PanickingListenerDoesNotStopDelivery(t *testing.T) {
	b := NewBus()
	delivered := false

	b.Subscribe(func(ev Event) { panic("boom") })
	b.Subscribe(func(ev Event) { delivered = true })

	b.Emit(Event{Type: TypeJobFailed, JobID: "job-1"})

	if !delivered {
		t.Fatal("expected the second listener to still run after the first panicked")
	}
}

func TestBus_PreservesEmissionOrderPerJob(t *testing.T) {
	b := NewBus()
	var mu sync.Mutex
	var order []Type

	b.Subscribe(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, ev.Type)
	})

	b.Emit(Event{Type: TypeJobStarted, JobID: "job-1"})
	b.Emit(Event{Type: TypeJobCompleted, JobID: "job-1"})

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != TypeJobStarted || order[1] != TypeJobCompleted {
		t.Fatalf("expected [job_started, job_completed] in order, got %v", order)
	}
}
