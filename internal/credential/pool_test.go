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

package credential

import (
	"testing"
	"time"
)

func threeCreds() []Credential {
	return []Credential{
		{ID: "c1", SurfaceID: "openai", Type: TypeAPIKey, Active: true},
		{ID: "c2", SurfaceID: "openai", Type: TypeAPIKey, Active: true},
		{ID: "c3", SurfaceID: "openai", Type: TypeAPIKey, Active: true},
	}
}

func TestPool_RoundRobinCyclesAllMembers(t *testing.T) {
	p := NewPool("openai", threeCreds(), Config{Strategy: StrategyRoundRobin})
	now := time.Now()

	seen := map[string]int{}
	for i := 0; i < 6; i++ {
		c, err := p.GetNext(now)
		if err != nil {
			t.Fatalf("getNext: %v", err)
		}
		seen[c.ID]++
	}
	for _, id := range []string{"c1", "c2", "c3"} {
		if seen[id] != 2 {
			t.Fatalf("expected c%s picked twice in 6 rounds, got %d", id, seen[id])
		}
	}
}

func TestPool_LeastUsedPrefersFewerUses(t *testing.T) {
	p := NewPool("openai", threeCreds(), Config{Strategy: StrategyLeastUsed})
	now := time.Now()

	// Deterministic trace: ties break toward the first member in pool
	// order, so four draws land c1=2, c2=1, c3=1, and the fifth draw must
	// go to the lowest-indexed member tied at the new minimum (c2).
	var last *Credential
	for i := 0; i < 5; i++ {
		c, err := p.GetNext(now)
		if err != nil {
			t.Fatalf("getNext: %v", err)
		}
		last = c
	}
	if last.ID != "c2" {
		t.Fatalf("expected fifth draw to pick c2, got %s", last.ID)
	}
}

func TestPool_LeastErrorsSkipsErroredCredential(t *testing.T) {
	p := NewPool("openai", threeCreds(), Config{Strategy: StrategyLeastErrors})
	now := time.Now()

	p.ReportError("c1", now)
	p.ReportError("c1", now)

	for i := 0; i < 10; i++ {
		c, err := p.GetNext(now)
		if err != nil {
			t.Fatalf("getNext: %v", err)
		}
		if c.ID == "c1" {
			t.Fatalf("c1 is in cooldown after ReportError and must not be returned")
		}
	}
}

func TestPool_CooldownExcludesCredentialFromSelection(t *testing.T) {
	p := NewPool("openai", []Credential{
		{ID: "only", SurfaceID: "openai", Active: true},
	}, Config{Strategy: StrategyRoundRobin, ErrorCooldownMs: 60_000})
	now := time.Now()

	p.ReportError("only", now)

	_, err := p.GetNext(now)
	if err == nil {
		t.Fatal("expected NoCredentialsError while the only credential is cooling down")
	}
	if !IsNoCredentialsAvailable(err) {
		t.Fatalf("expected sentinel-wrapped error, got %T: %v", err, err)
	}

	// Past cooldown, it becomes eligible again.
	later := now.Add(61 * time.Second)
	c, err := p.GetNext(later)
	if err != nil {
		t.Fatalf("expected credential to be eligible again after cooldown: %v", err)
	}
	if c.ID != "only" {
		t.Fatalf("unexpected credential id %s", c.ID)
	}
}

func TestPool_SweepDecaysStaleRecentErrors(t *testing.T) {
	p := NewPool("openai", threeCreds(), Config{
		Strategy:        StrategyRoundRobin,
		ErrorCooldownMs: 1, // cooldown expires almost immediately
		ErrorWindowMs:   1000,
	})
	now := time.Now()
	p.ReportError("c1", now)

	_, usages := p.Snapshot()
	var before Usage
	for i, c := range mustCreds(p) {
		if c.ID == "c1" {
			before = usages[i]
		}
	}
	if before.RecentErrors != 1 {
		t.Fatalf("expected RecentErrors=1 after one error, got %d", before.RecentErrors)
	}

	p.Sweep(now.Add(2 * time.Second))

	_, usages = p.Snapshot()
	for i, c := range mustCreds(p) {
		if c.ID == "c1" && usages[i].RecentErrors != 0 {
			t.Fatalf("expected RecentErrors to decay to 0 after the error window elapsed, got %d", usages[i].RecentErrors)
		}
	}
}

func mustCreds(p *Pool) []Credential {
	creds, _ := p.Snapshot()
	return creds
}

func TestPool_HealthTransitionsCriticalWhenAllInactive(t *testing.T) {
	p := NewPool("openai", []Credential{
		{ID: "c1", SurfaceID: "openai", Active: true},
	}, Config{MinActive: 1, ErrorCooldownMs: 60_000})

	if h := p.Health(); h != HealthHealthy {
		t.Fatalf("expected healthy with one active credential, got %s", h)
	}

	p.ReportError("c1", time.Now())

	if h := p.Health(); h != HealthCritical {
		t.Fatalf("expected critical once the only credential is in cooldown, got %s", h)
	}
}

func TestPool_HealthDegradedBelowMinActive(t *testing.T) {
	p := NewPool("openai", threeCreds(), Config{MinActive: 3, ErrorCooldownMs: 60_000})

	if h := p.Health(); h != HealthHealthy {
		t.Fatalf("expected healthy with 3/3 active and min_active=3, got %s", h)
	}

	p.ReportError("c1", time.Now())

	if h := p.Health(); h != HealthDegraded {
		t.Fatalf("expected degraded with 2/3 active and min_active=3, got %s", h)
	}
}

func TestPool_HealthDegradedWhileCoolingEvenAboveMinActive(t *testing.T) {
	p := NewPool("openai", threeCreds(), Config{MinActive: 2, ErrorCooldownMs: 60_000})

	if h := p.Health(); h != HealthHealthy {
		t.Fatalf("expected healthy with 3/3 active and min_active=2, got %s", h)
	}

	p.ReportError("c1", time.Now())

	if h := p.Health(); h != HealthDegraded {
		t.Fatalf("expected degraded while c1 cools down even though 2 credentials remain active (>= min_active=2), got %s", h)
	}
}

func TestPool_HealthChangeCallbackFires(t *testing.T) {
	p := NewPool("openai", []Credential{
		{ID: "c1", SurfaceID: "openai", Active: true},
	}, Config{MinActive: 1, ErrorCooldownMs: 60_000})

	changed := make(chan Health, 4)
	p.OnHealthChange(func(surfaceID string, h Health) {
		changed <- h
	})

	p.ReportError("c1", time.Now())

	select {
	case h := <-changed:
		if h != HealthCritical {
			t.Fatalf("expected critical notification, got %s", h)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for health change callback")
	}
}
