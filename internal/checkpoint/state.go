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

// Package checkpoint provides durable, crash-safe progress tracking for a
// single study: one JSON document per study, written with a temp-then-rename
// protocol so no reader ever observes a partially written file.
package checkpoint

import (
	"time"

	"github.com/kadirpekel/bentham/internal/core"
)

// CurrentVersion is the on-disk format version written by this package.
const CurrentVersion = "1.0.0"

// CellResult is the latest recorded outcome for one cell.
type CellResult struct {
	Status           core.CellStatus `json:"status"`
	ResponseText     string          `json:"responseText,omitempty"`
	ResponseTimeMs   int64           `json:"responseTimeMs,omitempty"`
	SessionID        string          `json:"sessionId,omitempty"`
	CredentialID     string          `json:"credentialId,omitempty"`
	ErrorCode        string          `json:"errorCode,omitempty"`
	ErrorMessage     string          `json:"errorMessage,omitempty"`
	CompletedAt      time.Time       `json:"completedAt"`
}

// RetryState is the per-cell retry record.
type RetryState struct {
	Attempts      int    `json:"attempts"`
	LastErrorCode string `json:"lastErrorCode,omitempty"`
	LastError     string `json:"lastError,omitempty"`
	Exhausted     bool   `json:"exhausted"`
}

// Metadata captures the manifest shape the checkpoint was created from.
type Metadata struct {
	Surfaces   []string  `json:"surfaces"`
	Locations  []string  `json:"locations"`
	QueryCount int       `json:"queryCount"`
	StartTime  time.Time `json:"startTime"`
}

// Checkpoint is the durable, resume-enabling snapshot of a study's progress.
// Field names and JSON tags match spec §6's on-disk format exactly.
type Checkpoint struct {
	Version         string                 `json:"version"`
	StudyID         string                 `json:"studyId"`
	StudyName       string                 `json:"studyName"`
	CreatedAt       time.Time              `json:"createdAt"`
	UpdatedAt       time.Time              `json:"updatedAt"`
	TotalCells      int                    `json:"totalCells"`
	CompletedCells  int                    `json:"completedCells"`
	FailedCells     int                    `json:"failedCells"`
	ProgressPercent float64                `json:"progressPercent"`
	CellResults     map[string]CellResult  `json:"cellResults"`
	ExecutionQueue  []string               `json:"executionQueue"`
	RetryStates     map[string]RetryState  `json:"retryStates"`
	Metadata        Metadata               `json:"metadata"`

	// cursor is in-memory only: the index into ExecutionQueue the dispatcher
	// has processed up to. It is not part of the durable format because the
	// cellResults map, not the cursor, is the source of truth for resume.
	cursor int
}

// Clone returns a deep-enough copy for round-trip comparisons in tests.
func (c *Checkpoint) Clone() *Checkpoint {
	cp := *c
	cp.CellResults = make(map[string]CellResult, len(c.CellResults))
	for k, v := range c.CellResults {
		cp.CellResults[k] = v
	}
	cp.RetryStates = make(map[string]RetryState, len(c.RetryStates))
	for k, v := range c.RetryStates {
		cp.RetryStates[k] = v
	}
	cp.ExecutionQueue = append([]string(nil), c.ExecutionQueue...)
	return &cp
}

// recompute recalculates CompletedCells, FailedCells and ProgressPercent
// from the CellResults map, which is always the source of truth (spec
// §4.1: "recomputes completed/failed from scratch over the map").
func (c *Checkpoint) recompute() {
	completed, failed := 0, 0
	for _, r := range c.CellResults {
		switch r.Status {
		case core.CellCompleted:
			completed++
		case core.CellFailed:
			failed++
		}
	}
	c.CompletedCells = completed
	c.FailedCells = failed
	if c.TotalCells > 0 {
		c.ProgressPercent = roundPercent(100 * float64(completed+failed) / float64(c.TotalCells))
	}
}

func roundPercent(p float64) float64 {
	// round to nearest integer percentage, per spec: "percent =
	// round(100*(completed+failed)/total)".
	if p < 0 {
		return 0
	}
	return float64(int64(p + 0.5))
}
