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

// Package orchestrator expands a study into cell jobs, dispatches them to
// a bounded worker pool under a priority queue, applies the retry and
// quality-gate policy, and drives the checkpoint, credential, and session
// subsystems that back each attempt.
package orchestrator

import (
	"time"

	"github.com/kadirpekel/bentham/internal/bherrors"
	"github.com/kadirpekel/bentham/internal/core"
)

// Job is the in-flight representation of one cell attempt.
type Job struct {
	StudyID  string
	TenantID string
	Cell     core.CellKey
	Attempt  int
	Priority core.Priority
	Query    string

	EarliestExecutionTime time.Time

	insertionSeq int64
	heapIndex    int
}

// JobResult is the outcome of one job execution, successful or not.
type JobResult struct {
	Cell core.CellKey

	Success        bool
	ResponseText   string
	ResponseTimeMs int64
	SessionID      string
	CredentialID   string

	ErrorKind    bherrors.Kind
	ErrorCode    string
	ErrorMessage string
	Retryable    bool

	Metrics ExecutionMetrics
}

// ExecutionMetrics captures time spent in each suspension point of one
// job attempt.
type ExecutionMetrics struct {
	TotalMs      int64
	SessionWaitMs int64
	ResponseMs   int64
}

// StudyHandle is returned by SubmitStudy.
type StudyHandle struct {
	StudyID               string
	EstimatedCompletionTime time.Time
}

// StudyStatusReport is returned by GetStudyStatus.
type StudyStatusReport struct {
	StudyID  string
	Status   core.StudyStatus
	Progress float64
	Surfaces map[string]SurfaceProgress
}

// SurfaceProgress is per-surface coverage within a study.
type SurfaceProgress struct {
	Total     int
	Completed int
	Failed    int
}
