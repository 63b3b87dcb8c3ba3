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
	"context"
	"errors"
	"testing"
	"time"
)

func TestManager_LazyLoadsPoolOncePerSurface(t *testing.T) {
	calls := 0
	m := NewManager(Config{}, func(surfaceID string) ([]Credential, error) {
		calls++
		return threeCreds(), nil
	})

	if _, err := m.Pool("openai"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Pool("openai"); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("expected loader to run once, ran %d times", calls)
	}
}

func TestManager_LoaderErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	m := NewManager(Config{}, func(surfaceID string) ([]Credential, error) {
		return nil, boom
	})

	_, err := m.Pool("openai")
	if !errors.Is(err, boom) {
		t.Fatalf("expected loader error to propagate, got %v", err)
	}
}

func TestManager_GetNextAndReportRoundTrip(t *testing.T) {
	m := NewManager(Config{Strategy: StrategyRoundRobin}, func(surfaceID string) ([]Credential, error) {
		return threeCreds(), nil
	})
	now := time.Now()

	c, err := m.GetNext("openai", now)
	if err != nil {
		t.Fatal(err)
	}
	m.ReportError("openai", c.ID, now)

	p, _ := m.Pool("openai")
	_, usages := p.Snapshot()
	found := false
	for i, cred := range mustCreds(p) {
		if cred.ID == c.ID {
			found = true
			if usages[i].RecentErrors != 1 {
				t.Fatalf("expected RecentErrors=1 after report, got %d", usages[i].RecentErrors)
			}
		}
	}
	if !found {
		t.Fatal("credential not found in snapshot")
	}
}

func TestManager_SweepLoopClearsStaleErrorsAndShutsDownCleanly(t *testing.T) {
	m := NewManager(Config{
		ErrorCooldownMs: 1,
		ErrorWindowMs:   1,
		SweepInterval:   10 * time.Millisecond,
	}, func(surfaceID string) ([]Credential, error) {
		return threeCreds(), nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Shutdown()

	p, err := m.Pool("openai")
	if err != nil {
		t.Fatal(err)
	}
	p.ReportError("c1", time.Now())

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, usages := p.Snapshot()
		if usages[0].RecentErrors == 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("sweeper did not decay recent errors within the deadline")
}

func TestManager_ShutdownIsIdempotent(t *testing.T) {
	m := NewManager(Config{}, func(surfaceID string) ([]Credential, error) {
		return threeCreds(), nil
	})
	m.Start(context.Background())
	m.Shutdown()
	m.Shutdown()
}
