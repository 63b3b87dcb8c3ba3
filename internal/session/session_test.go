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
	"errors"
	"testing"
	"time"
)

func TestSession_LifecycleHappyPath(t *testing.T) {
	s := New("s1", "chat-gpt-web", 0, 0, nil)
	if s.Status() != StatusWarming {
		t.Fatalf("expected warming, got %s", s.Status())
	}
	if err := s.MarkWarmedUp(); err != nil {
		t.Fatal(err)
	}
	if err := s.Checkout(); err != nil {
		t.Fatal(err)
	}
	if s.Status() != StatusActive {
		t.Fatalf("expected active, got %s", s.Status())
	}
	if err := s.CheckIn(); err != nil {
		t.Fatal(err)
	}
	if s.Status() != StatusIdle {
		t.Fatalf("expected idle, got %s", s.Status())
	}
	if err := s.Cool(); err != nil {
		t.Fatal(err)
	}
	if err := s.Destroy(); err != nil {
		t.Fatal(err)
	}
}

func TestSession_IllegalTransitionRejected(t *testing.T) {
	s := New("s1", "chat-gpt-web", 0, 0, nil)
	if err := s.Destroy(); err != nil {
		t.Fatal(err)
	}
	// destroyed is terminal; nothing moves out of it.
	if err := s.MarkWarmedUp(); err == nil {
		t.Fatal("expected an error resurrecting a destroyed session")
	}
}

func TestSession_NeedsRecycleOnPageBudget(t *testing.T) {
	s := New("s1", "chat-gpt-web", 2, 0, nil)
	_ = s.MarkWarmedUp()
	_ = s.Checkout()
	_ = s.CheckIn()
	if s.NeedsRecycle(time.Now()) {
		t.Fatal("should not need recycling after one page")
	}
	_ = s.Checkout()
	if !s.NeedsRecycle(time.Now()) {
		t.Fatal("should need recycling once pageCount reaches MaxPages")
	}
}

func TestSession_NeedsRecycleOnLifetime(t *testing.T) {
	s := New("s1", "chat-gpt-web", 0, time.Minute, nil)
	if s.NeedsRecycle(time.Now()) {
		t.Fatal("fresh session should not need recycling")
	}
	if !s.NeedsRecycle(time.Now().Add(2 * time.Minute)) {
		t.Fatal("session past MaxLife should need recycling")
	}
}

func TestSession_KeepAliveFailureMovesToError(t *testing.T) {
	boom := errors.New("boom")
	s := New("s1", "chat-gpt-web", 0, 0, func() error { return boom })
	_ = s.MarkWarmedUp()

	if err := s.KeepAlive(); !errors.Is(err, boom) {
		t.Fatalf("expected keep-alive error to propagate, got %v", err)
	}
	if s.Status() != StatusError {
		t.Fatalf("expected error status after failed keep-alive, got %s", s.Status())
	}
}

func TestSession_ExpiresAtZeroWhenNoMaxLife(t *testing.T) {
	s := New("s1", "chat-gpt-web", 0, 0, nil)
	if !s.ExpiresAt().IsZero() {
		t.Fatal("expected zero ExpiresAt when MaxLife is unset")
	}
}
