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

package metrics

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestNew_DisabledReturnsNil(t *testing.T) {
	m, err := New(&Config{Enabled: false})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if m != nil {
		t.Fatal("expected nil Metrics when disabled")
	}

	// Nil Metrics must be safe to call every recording method on.
	m.SetQueueDepth("study-1", 3)
	m.RecordJobDispatched("study-1", "chatgpt-web")
	m.RecordJobCompleted("study-1", "chatgpt-web", "success", 10*time.Millisecond)
	m.RecordJobRetried("study-1", "chatgpt-web", "NO_CREDENTIALS")
	m.SetWorkerBusy("study-1", "0", true)
	m.SetCredentialHealth("chatgpt-web", 2, 1)
	m.RecordCredentialError("chatgpt-web")
	m.SetSessionOccupancy("chatgpt-web", 1, 2)
	m.RecordSessionExpired("chatgpt-web", "ttl")
	m.ObserveSessionCheckout("chatgpt-web", 5*time.Millisecond)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)
	if rec.Code != 503 {
		t.Fatalf("expected 503 from a disabled metrics handler, got %d", rec.Code)
	}
}

func TestNew_EnabledRegistersCollectors(t *testing.T) {
	m, err := New(&Config{Enabled: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if m == nil {
		t.Fatal("expected non-nil Metrics when enabled")
	}
	if m.Registry() == nil {
		t.Fatal("expected a non-nil registry")
	}

	m.SetQueueDepth("study-1", 5)
	m.RecordJobDispatched("study-1", "serp-google")
	m.RecordJobCompleted("study-1", "serp-google", "success", 20*time.Millisecond)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("expected 200 from an enabled metrics handler, got %d", rec.Code)
	}
}
