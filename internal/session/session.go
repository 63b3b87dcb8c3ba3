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

// Package session manages long-lived, browser-like sessions for surfaces
// that require an authenticated, stateful client across many queries
// instead of a stateless request per query.
package session

import (
	"fmt"
	"sync"
	"time"
)

// Status is a session's position in its lifecycle.
type Status string

const (
	StatusWarming   Status = "warming"
	StatusIdle      Status = "idle"
	StatusActive    Status = "active"
	StatusCooling   Status = "cooling"
	StatusError     Status = "error"
	StatusDestroyed Status = "destroyed"
)

// transitions enumerates the only allowed moves between statuses. Any pair
// not listed here is rejected by Session.transitionTo.
var transitions = map[Status]map[Status]bool{
	StatusWarming: {StatusIdle: true, StatusError: true, StatusDestroyed: true},
	StatusIdle:    {StatusActive: true, StatusCooling: true, StatusError: true, StatusDestroyed: true},
	StatusActive:  {StatusIdle: true, StatusCooling: true, StatusError: true, StatusDestroyed: true},
	StatusCooling: {StatusDestroyed: true},
	StatusError:   {StatusDestroyed: true},
}

// Session is one long-lived, stateful client session against a surface.
type Session struct {
	ID         string
	PlatformID string
	MaxPages   int
	MaxLife    time.Duration

	mu              sync.Mutex
	status          Status
	pageCount       int
	createdAt       time.Time
	lastUsedAt      time.Time
	checkedOutAt    time.Time
	onKeepAlive     func() error
	authenticatedAt time.Time
	cookieExpiresAt time.Time
}

// New constructs a Session in StatusWarming.
func New(id, platformID string, maxPages int, maxLife time.Duration, onKeepAlive func() error) *Session {
	now := time.Now()
	return &Session{
		ID:          id,
		PlatformID:  platformID,
		MaxPages:    maxPages,
		MaxLife:     maxLife,
		status:      StatusWarming,
		createdAt:   now,
		lastUsedAt:  now,
		onKeepAlive: onKeepAlive,
	}
}

// Status returns the session's current lifecycle status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// transitionTo enforces the monotonic state machine and is the only place
// s.status is written.
func (s *Session) transitionTo(next Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == next {
		return nil
	}
	if allowed, ok := transitions[s.status]; !ok || !allowed[next] {
		return fmt.Errorf("session: illegal transition %s -> %s", s.status, next)
	}
	s.status = next
	return nil
}

// MarkWarmedUp moves a warming session to idle, ready for checkout.
func (s *Session) MarkWarmedUp() error { return s.transitionTo(StatusIdle) }

// Checkout marks the session active for the duration of one query.
func (s *Session) Checkout() error {
	s.mu.Lock()
	s.lastUsedAt = time.Now()
	s.checkedOutAt = s.lastUsedAt
	s.pageCount++
	s.mu.Unlock()
	return s.transitionTo(StatusActive)
}

// CheckIn returns an active session to idle after a query completes.
func (s *Session) CheckIn() error {
	s.mu.Lock()
	s.checkedOutAt = time.Time{}
	s.mu.Unlock()
	return s.transitionTo(StatusIdle)
}

// CheckedOutAt returns when the session was last checked out, or the zero
// time if it is not currently active.
func (s *Session) CheckedOutAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkedOutAt
}

// LastUsedAt returns the last time the session was checked out.
func (s *Session) LastUsedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsedAt
}

// MarkError transitions the session into the terminal error state from any
// state that allows it.
func (s *Session) MarkError() error { return s.transitionTo(StatusError) }

// Cool begins graceful teardown of an idle or active session.
func (s *Session) Cool() error { return s.transitionTo(StatusCooling) }

// Destroy marks the session gone for good.
func (s *Session) Destroy() error { return s.transitionTo(StatusDestroyed) }

// KeepAlive runs the surface-specific keep-alive probe, if configured, and
// transitions the session to error on failure.
func (s *Session) KeepAlive() error {
	s.mu.Lock()
	hook := s.onKeepAlive
	s.mu.Unlock()
	if hook == nil {
		return nil
	}
	if err := hook(); err != nil {
		_ = s.MarkError()
		return err
	}
	return nil
}

// NeedsRecycle reports whether the session has exceeded its page or
// lifetime budget and should be retired rather than reused.
func (s *Session) NeedsRecycle(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusError {
		return true
	}
	if s.MaxPages > 0 && s.pageCount >= s.MaxPages {
		return true
	}
	if s.MaxLife > 0 && now.Sub(s.createdAt) >= s.MaxLife {
		return true
	}
	return false
}

// Age returns how long the session has existed.
func (s *Session) Age(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.createdAt)
}

// ExpiresAt returns the wall-clock time at which the session's lifetime
// budget runs out. The zero time means the session never expires on age.
func (s *Session) ExpiresAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.MaxLife <= 0 {
		return time.Time{}
	}
	return s.createdAt.Add(s.MaxLife)
}

// PageCount returns the number of checkouts this session has served.
func (s *Session) PageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pageCount
}

// MarkAuthenticated records that the session has completed a surface login
// and that its auth cookie is valid until cookieExpiresAt. A zero
// cookieExpiresAt means the expiry is unknown.
func (s *Session) MarkAuthenticated(cookieExpiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticatedAt = time.Now()
	s.cookieExpiresAt = cookieExpiresAt
}

// IsAuthenticated reports whether MarkAuthenticated has been called.
func (s *Session) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.authenticatedAt.IsZero()
}

// AuthenticatedAt returns when the session last authenticated, or the zero
// time if it never has.
func (s *Session) AuthenticatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticatedAt
}

// CookieExpiresAt returns the session's known auth cookie expiry, or the
// zero time if unknown.
func (s *Session) CookieExpiresAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cookieExpiresAt
}
