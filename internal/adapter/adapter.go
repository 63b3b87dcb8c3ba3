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

// Package adapter defines the boundary between the orchestrator and the
// surface-specific clients that actually execute a query against an LLM
// API, a browser-automated chat UI, or a SERP search API. Concrete
// adapters live outside this module; this package only defines the
// contract and the registry that looks adapters up by surface id.
package adapter

import (
	"context"
	"time"

	"github.com/kadirpekel/bentham/internal/core"
	"github.com/kadirpekel/bentham/internal/credential"
	"github.com/kadirpekel/bentham/internal/registry"
	"github.com/kadirpekel/bentham/internal/session"
)

// Resource names an external dependency an adapter needs to execute a
// query, used by the orchestrator to decide whether credential or session
// acquisition is required before dispatch.
type Resource string

const (
	ResourceCredential Resource = "credential"
	ResourceSession    Resource = "session"
	ResourceProxy      Resource = "proxy"
)

// ResourceRequirements lists the resources an adapter needs acquired
// before ExecuteQuery runs.
type ResourceRequirements []Resource

// Needs reports whether r is among the declared requirements.
func (rr ResourceRequirements) Needs(r Resource) bool {
	for _, x := range rr {
		if x == r {
			return true
		}
	}
	return false
}

// AdapterCapabilities describes what a surface supports. The orchestrator
// does not consult it before dispatch.
type AdapterCapabilities struct {
	SupportsScreenshot bool
	SupportsHTML       bool
	MaxConcurrency     int
}

// QueryContext is everything an adapter needs to run one cell.
type QueryContext struct {
	Context context.Context

	StudyID    string
	TenantID   string
	Query      string
	QueryIndex int
	LocationID string

	// CorrelationID identifies this attempt across logs, events, and
	// adapter-side traces. It is stable across retries of the same cell
	// only in that it is derived from the cell; each attempt gets its own
	// value.
	CorrelationID string

	// EvidenceLevel tells the adapter how much collection work to do
	// (e.g. whether to capture HTML or a screenshot) before returning.
	EvidenceLevel core.EvidenceLevel

	Credential *credential.Credential
	Session    *session.Session

	Deadline time.Time
}

// QueryResult is what an adapter hands back after executing a query.
type QueryResult struct {
	ResponseText   string
	ResponseTimeMs int64
	Evidence       Evidence
}

// Evidence carries the artifacts collected while executing a query, sized
// to the study's configured core.EvidenceLevel.
type Evidence struct {
	Level      core.EvidenceLevel
	HTML       []byte
	Screenshot []byte
}

// Adapter executes queries against one surface.
type Adapter interface {
	// SurfaceID returns the stable identifier this adapter is registered
	// under, matching a study's Surfaces list.
	SurfaceID() string

	// RequiredResources declares what the orchestrator must acquire before
	// calling ExecuteQuery.
	RequiredResources() ResourceRequirements

	// Capabilities describes what this surface supports.
	Capabilities() AdapterCapabilities

	// ExecuteQuery runs a single query and returns its result. Adapters
	// report failures as a *bherrors.Error so the orchestrator can apply
	// the standard retry policy.
	ExecuteQuery(qc QueryContext) (QueryResult, error)
}

// Registry looks adapters up by surface id.
type Registry = registry.Registry[Adapter]

// NewRegistry creates an empty adapter registry.
func NewRegistry() Registry {
	return registry.New[Adapter]()
}
