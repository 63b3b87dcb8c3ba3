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

// Package bherrors defines the error-kind taxonomy surfaced at the core's
// boundary, and the Troubleshooter that maps a kind to its default
// retryability and suggested backoff.
package bherrors

import (
	"errors"
	"fmt"
	"time"
)

// Kind is a coarse error classification, not a language type.
type Kind string

const (
	KindValidation         Kind = "VALIDATION"
	KindAuth               Kind = "AUTH"
	KindResourceNotFound   Kind = "RESOURCE_NOT_FOUND"
	KindRateLimited        Kind = "RATE_LIMITED"
	KindQuotaExceeded      Kind = "QUOTA_EXCEEDED"
	KindSurfaceUnavailable Kind = "SURFACE_UNAVAILABLE"
	KindTimeout            Kind = "TIMEOUT"
	KindNetwork            Kind = "NETWORK"
	KindContentPolicy      Kind = "CONTENT_POLICY"
	KindSessionInvalid     Kind = "SESSION_INVALID"
	KindSessionExpired     Kind = "SESSION_EXPIRED"
	KindProxyError         Kind = "PROXY_ERROR"
	KindQualityGateFailed  Kind = "QUALITY_GATE_FAILED"
	KindExecutionFailed    Kind = "EXECUTION_FAILED"
	KindInternal           Kind = "INTERNAL"

	// KindAdapterNotFound and KindNoCredentials are core-internal kinds, not
	// part of the surface-adapter-reported taxonomy in spec §6, but are
	// raised by the orchestrator itself per §4.2 step 1-2.
	KindAdapterNotFound Kind = "ADAPTER_NOT_FOUND"
	KindNoCredentials   Kind = "NO_CREDENTIALS"
)

// ErrSentinel is the base sentinel all *Error values satisfy errors.Is
// against, so callers can test errors.Is(err, bherrors.ErrSentinel) without
// caring about the specific kind.
var ErrSentinel = errors.New("bentham: surface error")

// Error is a classified error carrying the kind, a short code, a message,
// and an optional adapter-reported retryable override.
type Error struct {
	Kind    Kind
	Code    string
	Message string

	// Retryable overrides the Troubleshooter's default when non-nil: an
	// adapter's own judgment always wins over the static table.
	Retryable *bool
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return ErrSentinel
}

// New constructs an Error with no adapter override.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf constructs an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithRetryable returns a copy of e with an explicit retryable override,
// modeling an adapter's reported verdict taking precedence over defaults.
func (e *Error) WithRetryable(retryable bool) *Error {
	cp := *e
	cp.Retryable = &retryable
	return &cp
}

// AsError extracts a *Error from err, if any.
func AsError(err error) (*Error, bool) {
	var be *Error
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// Troubleshooter is the canonical isRetryable / getSuggestedRetryDelay
// mapping referenced by spec §4.2. Severity escalation across retries is
// deliberately not modeled: the Orchestrator consults only Retryable.
type Troubleshooter struct {
	defaults map[Kind]policy
}

type policy struct {
	retryable bool
	delay     time.Duration
}

// NewTroubleshooter builds the default policy table from spec §4.2 and §7.
func NewTroubleshooter() *Troubleshooter {
	return &Troubleshooter{
		defaults: map[Kind]policy{
			KindRateLimited:        {true, 60 * time.Second},
			KindTimeout:            {true, 5 * time.Second},
			KindNetwork:            {true, 10 * time.Second},
			KindAuth:               {false, 0},
			KindContentPolicy:      {false, 0},
			KindSurfaceUnavailable: {true, 10 * time.Second},
			KindQualityGateFailed:  {true, 5 * time.Second},
			KindSessionInvalid:     {true, 5 * time.Second},
			KindSessionExpired:     {true, 5 * time.Second},
			KindProxyError:         {true, 10 * time.Second},
			KindNoCredentials:      {true, 5 * time.Second},
			KindValidation:         {false, 0},
			KindResourceNotFound:   {false, 0},
			KindQuotaExceeded:      {true, 60 * time.Second},
			KindExecutionFailed:    {false, 0},
			KindInternal:           {false, 0},
			KindAdapterNotFound:    {false, 0},
		},
	}
}

// IsRetryable reports whether err should be retried: an adapter-reported
// override takes precedence over the static default.
func (t *Troubleshooter) IsRetryable(err *Error) bool {
	if err.Retryable != nil {
		return *err.Retryable
	}
	if p, ok := t.defaults[err.Kind]; ok {
		return p.retryable
	}
	return false
}

// SuggestedRetryDelay returns the default retry delay for a given kind. The
// orchestrator's backoff does not use it; it grows from the orchestrator's
// configured base delay.
func (t *Troubleshooter) SuggestedRetryDelay(kind Kind) time.Duration {
	if p, ok := t.defaults[kind]; ok {
		return p.delay
	}
	return 5 * time.Second
}
