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

package checkpoint

import (
	"log/slog"
	"sync"
	"time"

	"github.com/kadirpekel/bentham/internal/core"
)

// ManagerConfig configures the auto-save policy.
type ManagerConfig struct {
	// SaveEveryNResults triggers a save after this many RecordResult calls
	// since the last save. Default 10.
	SaveEveryNResults int

	// SaveInterval triggers a save after this much wall-clock time since the
	// last save. Default 30s.
	SaveInterval time.Duration

	// PreserveCheckpoint, if true, keeps the checkpoint file on disk after
	// Finalize instead of deleting it.
	PreserveCheckpoint bool
}

// SetDefaults fills in the documented defaults for unset fields.
func (c *ManagerConfig) SetDefaults() {
	if c.SaveEveryNResults <= 0 {
		c.SaveEveryNResults = 10
	}
	if c.SaveInterval <= 0 {
		c.SaveInterval = 30 * time.Second
	}
}

// Manager wraps an Engine with the auto-save policy described in spec §4.1:
// persist every N result-recordings or every T wall-clock seconds,
// whichever triggers first. Callers never call Engine.Save directly once a
// Manager owns the checkpoint; this keeps the checkpoint single-writer, per
// spec §5.
type Manager struct {
	engine *Engine
	config ManagerConfig

	mu            sync.Mutex
	cp            *Checkpoint
	sinceLastSave int
	lastSaveAt    time.Time
}

// NewManager wraps engine with cp under the given policy.
func NewManager(engine *Engine, cp *Checkpoint, cfg ManagerConfig) *Manager {
	cfg.SetDefaults()
	return &Manager{
		engine:     engine,
		config:     cfg,
		cp:         cp,
		lastSaveAt: time.Now(),
	}
}

// Checkpoint returns the live, in-memory checkpoint the manager mutates.
func (m *Manager) Checkpoint() *Checkpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cp
}

// RecordResult records a cell result and saves if a trigger fires.
func (m *Manager) RecordResult(key core.CellKey, result CellResult) error {
	m.engine.RecordResult(m.cp, key, result)
	return m.maybeSave(true)
}

// RecordRetry records a retry state update and saves if a trigger fires.
func (m *Manager) RecordRetry(key core.CellKey, attempts int, lastError, lastErrorCode string, exhausted bool) error {
	m.engine.RecordRetry(m.cp, key, attempts, lastError, lastErrorCode, exhausted)
	return m.maybeSave(false)
}

// maybeSave saves if either trigger fires. Only result recordings advance
// the count trigger; every call checks the time trigger.
func (m *Manager) maybeSave(countsResult bool) error {
	m.mu.Lock()
	if countsResult {
		m.sinceLastSave++
	}
	countTrigger := m.sinceLastSave >= m.config.SaveEveryNResults
	timeTrigger := time.Since(m.lastSaveAt) >= m.config.SaveInterval
	shouldSave := countTrigger || timeTrigger
	m.mu.Unlock()

	if !shouldSave {
		return nil
	}
	return m.Save()
}

// Save forces an immediate save, resetting both auto-save triggers.
func (m *Manager) Save() error {
	m.mu.Lock()
	cp := m.cp
	m.mu.Unlock()

	if err := m.engine.Save(cp); err != nil {
		return err
	}

	m.mu.Lock()
	m.sinceLastSave = 0
	m.lastSaveAt = time.Now()
	m.mu.Unlock()
	return nil
}

// Finalize performs one last save and, unless PreserveCheckpoint is set,
// deletes the checkpoint file.
func (m *Manager) Finalize() error {
	if err := m.Save(); err != nil {
		return err
	}
	if m.config.PreserveCheckpoint {
		return nil
	}
	if err := m.engine.Delete(m.cp.StudyID); err != nil {
		slog.Warn("checkpoint: failed to delete finalized checkpoint", "study_id", m.cp.StudyID, "error", err)
		return err
	}
	return nil
}
