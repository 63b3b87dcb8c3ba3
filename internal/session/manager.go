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
	"sync"
	"time"
)

// Manager owns one Pool per surface, created lazily from a per-surface
// Opener factory.
type Manager struct {
	config  Config
	openers func(surfaceID string) Opener

	mu    sync.Mutex
	pools map[string]*Pool
	ctx   context.Context
}

// NewManager creates a Manager. openerFor returns the Opener to use for a
// given surface id the first time that surface's pool is requested.
func NewManager(cfg Config, openerFor func(surfaceID string) Opener) *Manager {
	return &Manager{
		config:  cfg,
		openers: openerFor,
		pools:   make(map[string]*Pool),
	}
}

// Pool returns the pool for surfaceID, creating and starting it on first
// use. The manager's background context, set by Start, governs every
// pool's lifecycle loops; pools created before Start runs idle until it is
// called.
func (m *Manager) Pool(surfaceID string) *Pool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.pools[surfaceID]; ok {
		return p
	}
	p := NewPool(surfaceID, m.config, m.openers(surfaceID))
	m.pools[surfaceID] = p
	if m.ctx != nil {
		p.Start(m.ctx)
	}
	return p
}

// HasCapacity reports whether surfaceID's pool has at least required usable
// sessions whose cookie (if its expiry is known) stays valid for at least
// withinMinutes longer.
func (m *Manager) HasCapacity(surfaceID string, required int, withinMinutes time.Duration) bool {
	return m.Pool(surfaceID).HasCapacity(time.Now(), required, withinMinutes)
}

// Start records the background context and starts every pool created so
// far. Pools created afterward are started immediately by Pool.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ctx = ctx
	for _, p := range m.pools {
		p.Start(ctx)
	}
}

// Shutdown stops every pool the manager has created.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	pools := make([]*Pool, 0, len(m.pools))
	for _, p := range m.pools {
		pools = append(pools, p)
	}
	m.mu.Unlock()

	for _, p := range pools {
		p.Shutdown()
	}
}
