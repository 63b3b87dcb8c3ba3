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

package checkpoint

import (
	"fmt"
	"sync"
	"time"

	"github.com/kadirpekel/bentham/internal/core"
)

// Engine is the durable key/value record of per-cell progress and retry
// state for a single study, written atomically. It holds no knowledge of
// dispatch ordering rules beyond the execution queue it was handed at
// creation time.
type Engine struct {
	mu      sync.Mutex
	storage *Storage
}

// NewEngine creates an Engine backed by storage rooted at dir.
func NewEngine(dir string) *Engine {
	return &Engine{storage: NewStorage(dir)}
}

// Create initializes a new checkpoint. executionQueue is the frozen,
// already-ordered list of cell keys as computed by the orchestrator (spec
// §4.2): the engine only materializes it, it does not compute ordering.
func (e *Engine) Create(studyID, studyName string, surfaces, locations []string, queryCount int, executionQueue []core.CellKey) *Checkpoint {
	now := time.Now().UTC()

	queue := make([]string, len(executionQueue))
	for i, k := range executionQueue {
		queue[i] = k.Encode()
	}

	return &Checkpoint{
		Version:        CurrentVersion,
		StudyID:        studyID,
		StudyName:      studyName,
		CreatedAt:      now,
		UpdatedAt:      now,
		TotalCells:     len(executionQueue),
		CellResults:    make(map[string]CellResult),
		ExecutionQueue: queue,
		RetryStates:    make(map[string]RetryState),
		Metadata: Metadata{
			Surfaces:   surfaces,
			Locations:  locations,
			QueryCount: queryCount,
			StartTime:  now,
		},
	}
}

// RecordResult updates a cell's latest result and recomputes the
// completed/failed counters and percentage from the map, which is always
// the source of truth (never incremental counters).
func (e *Engine) RecordResult(cp *Checkpoint, key core.CellKey, result CellResult) {
	e.mu.Lock()
	defer e.mu.Unlock()

	encoded := key.Encode()
	result.CompletedAt = time.Now().UTC()
	cp.CellResults[encoded] = result
	cp.recompute()
	cp.UpdatedAt = time.Now().UTC()
}

// RecordRetry replaces the retry record for a cell key.
func (e *Engine) RecordRetry(cp *Checkpoint, key core.CellKey, attempts int, lastError, lastErrorCode string, exhausted bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp.RetryStates[key.Encode()] = RetryState{
		Attempts:      attempts,
		LastError:     lastError,
		LastErrorCode: lastErrorCode,
		Exhausted:     exhausted,
	}
	cp.UpdatedAt = time.Now().UTC()
}

// Save writes the checkpoint atomically.
func (e *Engine) Save(cp *Checkpoint) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.storage.Save(cp)
}

// Load returns the checkpoint for studyID, or nil if none exists. It fails
// loudly (a *ParseError) on corruption; it never silently treats a corrupt
// file as "absent".
func (e *Engine) Load(studyID string) (*Checkpoint, error) {
	return e.storage.Load(studyID)
}

// Delete removes a study's checkpoint file.
func (e *Engine) Delete(studyID string) error {
	return e.storage.Delete(studyID)
}

// RemainingCells returns the queue order minus any cell whose status is
// completed or failed.
func RemainingCells(cp *Checkpoint) []string {
	remaining := make([]string, 0, len(cp.ExecutionQueue))
	for _, key := range cp.ExecutionQueue {
		if r, ok := cp.CellResults[key]; ok && (r.Status == core.CellCompleted || r.Status == core.CellFailed) {
			continue
		}
		remaining = append(remaining, key)
	}
	return remaining
}

// CanResume reports whether a study still has outstanding work: false iff
// completed + failed >= total.
func CanResume(cp *Checkpoint) (canResume bool, remaining []string) {
	remaining = RemainingCells(cp)
	canResume = cp.CompletedCells+cp.FailedCells < cp.TotalCells
	return canResume, remaining
}

// Validate checks the checkpoint's core invariant: completed + failed <=
// total. It exists mainly for tests asserting the invariant directly.
func Validate(cp *Checkpoint) error {
	if cp.CompletedCells+cp.FailedCells > cp.TotalCells {
		return fmt.Errorf("checkpoint: invariant violated: completed(%d)+failed(%d) > total(%d)",
			cp.CompletedCells, cp.FailedCells, cp.TotalCells)
	}
	return nil
}
