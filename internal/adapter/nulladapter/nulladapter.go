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

// Package nulladapter provides a minimal, in-process adapter.Adapter used
// to exercise the orchestrator, checkpoint, credential, and session
// packages in tests and the demo CLI without a real surface client.
// Concrete surface adapters (HTTP LLM APIs, browser automation, SERP
// clients) are outside this module's scope.
package nulladapter

import (
	"sync"
	"sync/atomic"

	"github.com/kadirpekel/bentham/internal/adapter"
	"github.com/kadirpekel/bentham/internal/bherrors"
)

// Fake is a scriptable adapter.Adapter for tests.
type Fake struct {
	surfaceID    string
	resources    adapter.ResourceRequirements
	capabilities adapter.AdapterCapabilities

	mu       sync.Mutex
	script   []func(adapter.QueryContext) (adapter.QueryResult, error)
	nextCall int32
	calls    []adapter.QueryContext
}

// New creates a Fake registered under surfaceID with no required resources.
func New(surfaceID string) *Fake {
	return &Fake{surfaceID: surfaceID}
}

// WithResources sets the resources the orchestrator must acquire before
// calling ExecuteQuery.
func (f *Fake) WithResources(resources ...adapter.Resource) *Fake {
	f.resources = resources
	return f
}

// WithCapabilities overrides the capabilities reported to the orchestrator.
func (f *Fake) WithCapabilities(c adapter.AdapterCapabilities) *Fake {
	f.capabilities = c
	return f
}

// AlwaysReturn makes every call return the same result and error.
func (f *Fake) AlwaysReturn(result adapter.QueryResult, err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script = []func(adapter.QueryContext) (adapter.QueryResult, error){
		func(adapter.QueryContext) (adapter.QueryResult, error) { return result, err },
	}
	return f
}

// Sequence makes successive calls return successive (result, error) pairs,
// repeating the last entry once exhausted. Useful for "fails twice then
// succeeds" retry scenarios.
func (f *Fake) Sequence(steps ...func(adapter.QueryContext) (adapter.QueryResult, error)) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script = steps
	return f
}

func (f *Fake) SurfaceID() string                              { return f.surfaceID }
func (f *Fake) RequiredResources() adapter.ResourceRequirements { return f.resources }
func (f *Fake) Capabilities() adapter.AdapterCapabilities       { return f.capabilities }

// ExecuteQuery records the call and dispatches to the configured script.
func (f *Fake) ExecuteQuery(qc adapter.QueryContext) (adapter.QueryResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, qc)
	f.mu.Unlock()

	n := int(atomic.AddInt32(&f.nextCall, 1)) - 1

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.script) == 0 {
		return adapter.QueryResult{ResponseText: "ok"}, nil
	}
	if n >= len(f.script) {
		n = len(f.script) - 1
	}
	return f.script[n](qc)
}

// Calls returns a copy of every QueryContext ExecuteQuery has been called
// with so far, in order.
func (f *Fake) Calls() []adapter.QueryContext {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]adapter.QueryContext, len(f.calls))
	copy(out, f.calls)
	return out
}

var _ adapter.Adapter = (*Fake)(nil)

// RetryableFailure builds a script step that fails with kind, marked
// retryable, for scenarios that should be retried under the standard
// backoff policy.
func RetryableFailure(kind bherrors.Kind, message string) func(adapter.QueryContext) (adapter.QueryResult, error) {
	return func(adapter.QueryContext) (adapter.QueryResult, error) {
		return adapter.QueryResult{}, bherrors.New(kind, message).WithRetryable(true)
	}
}

// Success builds a script step that returns text as the response.
func Success(text string) func(adapter.QueryContext) (adapter.QueryResult, error) {
	return func(adapter.QueryContext) (adapter.QueryResult, error) {
		return adapter.QueryResult{ResponseText: text}, nil
	}
}
