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

package session

import (
	"context"
	"testing"
	"time"
)

func simpleOpener(maxPages int, maxLife time.Duration) Opener {
	return func(ctx context.Context, id string) (*Session, error) {
		return New(id, "chat-gpt-web", maxPages, maxLife, nil), nil
	}
}

func TestPool_CheckoutSpawnsWithinCapacity(t *testing.T) {
	p := NewPool("chat-gpt-web", Config{MinIdle: 0, MaxSessions: 2}, simpleOpener(0, 0))

	s1, err := p.Checkout(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	s2, err := p.Checkout(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if s1.ID == s2.ID {
		t.Fatal("expected two distinct sessions")
	}

	_, err = p.Checkout(context.Background())
	if err != ErrNoCapacity {
		t.Fatalf("expected ErrNoCapacity at the pool ceiling, got %v", err)
	}
}

func TestPool_CheckInReusesIdleSession(t *testing.T) {
	p := NewPool("chat-gpt-web", Config{MinIdle: 0, MaxSessions: 1}, simpleOpener(0, 0))

	s1, err := p.Checkout(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if err := p.CheckIn(s1); err != nil {
		t.Fatal(err)
	}

	s2, err := p.Checkout(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if s1.ID != s2.ID {
		t.Fatalf("expected the same session to be reused, got %s then %s", s1.ID, s2.ID)
	}
}

func TestPool_CheckInRetiresSessionNeedingRecycle(t *testing.T) {
	p := NewPool("chat-gpt-web", Config{MinIdle: 0, MaxSessions: 1}, simpleOpener(1, 0))

	s1, err := p.Checkout(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if err := p.CheckIn(s1); err != nil {
		t.Fatal(err)
	}
	if p.Size() != 0 {
		t.Fatalf("expected the at-page-budget session to be retired, pool size=%d", p.Size())
	}
}

func TestPool_ExpiryForecastBucketsAreExclusive(t *testing.T) {
	// Scenario: authenticate 3 sessions for platform "X" with cookieExpiresAt
	// = now+4m, now+12m, now+45m.
	p := NewPool("X", Config{MaxSessions: 4}, simpleOpener(0, 0))
	now := time.Now()

	mk := func(id string, expiresIn time.Duration) {
		s := New(id, "X", 0, 0, nil)
		s.MarkAuthenticated(now.Add(expiresIn))
		p.mu.Lock()
		p.sessions[id] = s
		p.mu.Unlock()
	}
	mk("a", 4*time.Minute)
	mk("b", 12*time.Minute)
	mk("c", 45*time.Minute)

	forecast := p.ExpiryForecast(now)
	if forecast.Next5Min != 1 {
		t.Fatalf("expected 1 session in next5min, got %d", forecast.Next5Min)
	}
	if forecast.Next15Min != 1 {
		t.Fatalf("expected 1 session in next15min, got %d", forecast.Next15Min)
	}
	if forecast.Next30Min != 0 {
		t.Fatalf("expected 0 sessions in next30min, got %d", forecast.Next30Min)
	}
	if forecast.Next1Hour != 1 {
		t.Fatalf("expected 1 session in next1hour, got %d", forecast.Next1Hour)
	}
	if forecast.TotalAuthenticated != 3 {
		t.Fatalf("expected 3 total authenticated, got %d", forecast.TotalAuthenticated)
	}

	soon := p.SessionsExpiringSoon(now, 15*time.Minute)
	if len(soon) != 2 {
		t.Fatalf("expected 2 sessions expiring within 15m, got %d", len(soon))
	}
	if soon[0].ID != "a" || soon[1].ID != "b" {
		t.Fatalf("expected ascending order [a, b], got [%s, %s]", soon[0].ID, soon[1].ID)
	}
}

func TestPool_HasCapacityReflectsCookieExpiry(t *testing.T) {
	p := NewPool("X", Config{MinIdle: 0, MaxSessions: 2}, simpleOpener(0, 0))
	now := time.Now()

	mk := func(id string, expiresIn time.Duration) {
		s := New(id, "X", 0, 0, nil)
		if expiresIn > 0 {
			s.MarkAuthenticated(now.Add(expiresIn))
		}
		p.mu.Lock()
		p.sessions[id] = s
		p.mu.Unlock()
	}
	mk("a", 2*time.Minute)  // expires soon
	mk("b", 60*time.Minute) // safely beyond the window

	if p.HasCapacity(now, 2, 5*time.Minute) {
		t.Fatal("expected no capacity: one of two sessions expires within the window")
	}
	if !p.HasCapacity(now, 1, 5*time.Minute) {
		t.Fatal("expected capacity for 1: session b is not expiring soon")
	}
}

func TestPool_ShutdownIsIdempotentAndDestroysSessions(t *testing.T) {
	p := NewPool("chat-gpt-web", Config{MinIdle: 0, MaxSessions: 2}, simpleOpener(0, 0))
	p.Start(context.Background())

	s, err := p.Checkout(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	_ = p.CheckIn(s)

	p.Shutdown()
	p.Shutdown()

	if p.Size() != 0 {
		t.Fatalf("expected all sessions destroyed after shutdown, got %d remaining", p.Size())
	}
}
