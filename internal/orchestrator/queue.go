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
	"container/heap"
	"sync"
	"time"
)

// ordering is the three-level comparison frozen at study submission:
// 1. study priority ordinal, lower first
// 2. stable grouping by surface id then location id
// 3. insertion order within a group
func less(a, b *Job) bool {
	if a.Priority.Ordinal() != b.Priority.Ordinal() {
		return a.Priority.Ordinal() < b.Priority.Ordinal()
	}
	if a.Cell.SurfaceID != b.Cell.SurfaceID {
		return a.Cell.SurfaceID < b.Cell.SurfaceID
	}
	if a.Cell.LocationID != b.Cell.LocationID {
		return a.Cell.LocationID < b.Cell.LocationID
	}
	return a.insertionSeq < b.insertionSeq
}

// jobHeap implements container/heap.Interface over the ordering rule above.
type jobHeap []*Job

func (h jobHeap) Len() int            { return len(h) }
func (h jobHeap) Less(i, j int) bool  { return less(h[i], h[j]) }
func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *jobHeap) Push(x any) {
	j := x.(*Job)
	j.heapIndex = len(*h)
	*h = append(*h, j)
}

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	j := old[n-1]
	old[n-1] = nil
	j.heapIndex = -1
	*h = old[:n-1]
	return j
}

// Queue is the study-wide execution queue: a priority heap that also
// respects a job's EarliestExecutionTime, so retries scheduled with a
// backoff delay do not jump ahead of jobs that are already eligible.
type Queue struct {
	mu   sync.Mutex
	h    jobHeap
	seq  int64
}

// NewQueue returns an empty Queue.
func NewQueue() *Queue {
	q := &Queue{}
	heap.Init(&q.h)
	return q
}

// Push adds job to the queue, stamping its insertion sequence if unset.
func (q *Queue) Push(job *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if job.insertionSeq == 0 {
		q.seq++
		job.insertionSeq = q.seq
	}
	heap.Push(&q.h, job)
}

// Len returns the number of jobs currently queued, eligible or not.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.h.Len()
}

// PopEligible removes and returns the highest-priority job whose
// EarliestExecutionTime has passed and which filter accepts (e.g. matching
// a worker's surface/location restriction). Jobs skipped because filter
// rejected them are pushed back unchanged, preserving their order. It
// returns ok=false if no eligible job exists right now.
func (q *Queue) PopEligible(now time.Time, filter func(*Job) bool) (*Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var deferred []*Job
	var found *Job
	for q.h.Len() > 0 {
		candidate := heap.Pop(&q.h).(*Job)
		if now.Before(candidate.EarliestExecutionTime) || (filter != nil && !filter(candidate)) {
			deferred = append(deferred, candidate)
			continue
		}
		found = candidate
		break
	}
	for _, d := range deferred {
		heap.Push(&q.h, d)
	}
	return found, found != nil
}

// Peek reports whether any job, eligible or not, remains queued.
func (q *Queue) Peek() (*Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.h.Len() == 0 {
		return nil, false
	}
	return q.h[0], true
}
