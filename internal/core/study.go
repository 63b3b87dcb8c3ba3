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

package core

import "time"

// QualityGates are post-execution acceptance tests applied to a response.
type QualityGates struct {
	// MinResponseLength rejects responses shorter than this many characters.
	MinResponseLength int

	// RequireActualContent rejects empty or whitespace-only responses.
	RequireActualContent bool
}

// CompletionCriteria declares when a study is considered finished.
type CompletionCriteria struct {
	// RequiredSurfaces lists the surfaces whose coverage must clear the
	// threshold. An empty list means all surfaces in the study are required.
	RequiredSurfaces []string

	// CoverageThreshold is in [0, 1]: the fraction of a required surface's
	// cells that must complete successfully. A value of 0 or below is
	// treated as 1.
	CoverageThreshold float64
}

// Study is a validated unit of work, immutable once submitted.
type Study struct {
	ID       string
	TenantID string
	Name     string

	Queries   []string
	Surfaces  []string
	Locations []string

	Quality    QualityGates
	Completion CompletionCriteria

	MaxRetries       int
	EvidenceLevel    EvidenceLevel
	SessionIsolation SessionIsolation
	Deadline         time.Time
	Priority         Priority

	CreatedAt time.Time
}

// CellCount returns the total number of cells the study's manifest expands
// to: |queries| * |surfaces| * |locations|.
func (s *Study) CellCount() int {
	return len(s.Queries) * len(s.Surfaces) * len(s.Locations)
}

// StudyStatus is the user-visible outcome of a study.
type StudyStatus string

const (
	StudyRunning   StudyStatus = "running"
	StudyPaused    StudyStatus = "paused"
	StudyCompleted StudyStatus = "completed"
	StudyPartial   StudyStatus = "partial"
	StudyFailed    StudyStatus = "failed"
	StudyCancelled StudyStatus = "cancelled"
)
