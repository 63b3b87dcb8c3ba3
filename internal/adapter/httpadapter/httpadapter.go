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

// Package httpadapter is a reference adapter.Adapter for surfaces exposed
// as a plain JSON HTTP endpoint: it POSTs the query and pulls the answer
// text out of the response by a configurable JSON field path. It exists to
// demonstrate the adapter contract against a real net/http round trip and
// to drive the bentham demo CLI; production surface adapters (the full
// LLM API, browser-automation, and SERP clients) live outside this module.
package httpadapter

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/kadirpekel/bentham/internal/adapter"
	"github.com/kadirpekel/bentham/internal/bherrors"
	"github.com/kadirpekel/bentham/pkg/httpclient"
)

// Config configures an Adapter instance.
type Config struct {
	SurfaceID    string
	Endpoint     string
	APIKeyHeader string
	ResponseKey  string // top-level JSON field in the response holding the answer text
}

// Adapter calls a JSON HTTP endpoint per query.
type Adapter struct {
	cfg    Config
	client *httpclient.Client
}

// New builds an Adapter for cfg, retrying transient HTTP failures with the
// teacher-style exponential-backoff client before ExecuteQuery even
// returns — the orchestrator's own retry policy handles failures that
// exhaust the HTTP client's budget or originate outside the transport
// layer (timeouts, quality gate failures).
func New(cfg Config) *Adapter {
	if cfg.ResponseKey == "" {
		cfg.ResponseKey = "response"
	}
	return &Adapter{
		cfg: cfg,
		client: httpclient.New(
			httpclient.WithMaxRetries(2),
			httpclient.WithBaseDelay(500*time.Millisecond),
			httpclient.WithMaxDelay(5*time.Second),
		),
	}
}

func (a *Adapter) SurfaceID() string { return a.cfg.SurfaceID }

func (a *Adapter) RequiredResources() adapter.ResourceRequirements {
	return adapter.ResourceRequirements{adapter.ResourceCredential}
}

func (a *Adapter) Capabilities() adapter.AdapterCapabilities {
	return adapter.AdapterCapabilities{MaxConcurrency: 8}
}

type requestBody struct {
	Query      string `json:"query"`
	LocationID string `json:"location_id,omitempty"`
}

// ExecuteQuery POSTs qc.Query to the configured endpoint and extracts the
// answer text from cfg.ResponseKey.
func (a *Adapter) ExecuteQuery(qc adapter.QueryContext) (adapter.QueryResult, error) {
	start := time.Now()

	payload, err := json.Marshal(requestBody{Query: qc.Query, LocationID: qc.LocationID})
	if err != nil {
		return adapter.QueryResult{}, bherrors.Newf(bherrors.KindInternal, "httpadapter: encode request: %v", err)
	}

	req, err := http.NewRequestWithContext(qc.Context, http.MethodPost, a.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return adapter.QueryResult{}, bherrors.Newf(bherrors.KindInternal, "httpadapter: build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if qc.CorrelationID != "" {
		req.Header.Set("X-Correlation-Id", qc.CorrelationID)
	}
	if qc.Credential != nil && a.cfg.APIKeyHeader != "" {
		req.Header.Set(a.cfg.APIKeyHeader, qc.Credential.Secret)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return adapter.QueryResult{}, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return adapter.QueryResult{}, bherrors.Newf(bherrors.KindAuth, "httpadapter: http %d", resp.StatusCode)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return adapter.QueryResult{}, bherrors.Newf(bherrors.KindRateLimited, "httpadapter: http %d", resp.StatusCode)
	}
	if resp.StatusCode >= 500 {
		return adapter.QueryResult{}, bherrors.Newf(bherrors.KindSurfaceUnavailable, "httpadapter: http %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return adapter.QueryResult{}, bherrors.Newf(bherrors.KindValidation, "httpadapter: http %d", resp.StatusCode)
	}

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return adapter.QueryResult{}, bherrors.Newf(bherrors.KindExecutionFailed, "httpadapter: decode response: %v", err)
	}

	text, _ := decoded[a.cfg.ResponseKey].(string)
	return adapter.QueryResult{
		ResponseText:   text,
		ResponseTimeMs: time.Since(start).Milliseconds(),
		Evidence:       adapter.Evidence{Level: qc.EvidenceLevel},
	}, nil
}

func classifyTransportError(err error) error {
	var retryable *httpclient.RetryableError
	if e, ok := err.(*httpclient.RetryableError); ok {
		retryable = e
	}
	if retryable != nil {
		return bherrors.Newf(bherrors.KindSurfaceUnavailable, "httpadapter: %v", err).WithRetryable(true)
	}
	return bherrors.Newf(bherrors.KindNetwork, "httpadapter: %v", err).WithRetryable(true)
}

var _ adapter.Adapter = (*Adapter)(nil)
