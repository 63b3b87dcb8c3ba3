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
)

func TestManager_PoolIsPerSurfaceAndCached(t *testing.T) {
	m := NewManager(Config{MinIdle: 0, MaxSessions: 1}, func(surfaceID string) Opener {
		return simpleOpener(0, 0)
	})

	p1 := m.Pool("openai")
	p2 := m.Pool("openai")
	p3 := m.Pool("bing")

	if p1 != p2 {
		t.Fatal("expected the same pool instance for repeated lookups of the same surface")
	}
	if p1 == p3 {
		t.Fatal("expected distinct pools for distinct surfaces")
	}
}

func TestManager_ShutdownStopsAllPools(t *testing.T) {
	m := NewManager(Config{MinIdle: 0, MaxSessions: 1}, func(surfaceID string) Opener {
		return simpleOpener(0, 0)
	})
	m.Start(context.Background())

	p := m.Pool("openai")
	s, err := p.Checkout(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	_ = p.CheckIn(s)

	m.Shutdown()

	if p.Size() != 0 {
		t.Fatalf("expected pool drained after manager shutdown, got %d", p.Size())
	}
}
