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
	"fmt"
	"time"
)

// Config configures a per-surface Pool.
type Config struct {
	// Strategy selects the rotation algorithm. Default: round_robin.
	Strategy Strategy `yaml:"strategy,omitempty"`

	// MinActive is the floor for pool health to be considered healthy.
	// Default: 1.
	MinActive int `yaml:"min_active,omitempty"`

	// ErrorCooldownMs is how long a credential cools down after any single
	// failure report. Default: 60000 (60s).
	ErrorCooldownMs int `yaml:"error_cooldown_ms,omitempty"`

	// MaxErrors is a recent-error count threshold. Default: 5. Pool does not
	// consult it: every failure already enters the ErrorCooldownMs cooldown,
	// and no max_errors_exceeded reason is recorded.
	MaxErrors int `yaml:"max_errors,omitempty"`

	// ErrorWindowMs is the age after which a recent error is zeroed on the
	// next sweep. Default: 300000 (5 minutes).
	ErrorWindowMs int `yaml:"error_window_ms,omitempty"`

	// SweepInterval is how often the cooldown sweeper runs. Default: 10s.
	SweepInterval time.Duration `yaml:"sweep_interval,omitempty"`
}

// SetDefaults fills in the documented defaults for unset fields.
func (c *Config) SetDefaults() {
	if c.Strategy == "" {
		c.Strategy = StrategyRoundRobin
	}
	if c.MinActive <= 0 {
		c.MinActive = 1
	}
	if c.ErrorCooldownMs <= 0 {
		c.ErrorCooldownMs = 60_000
	}
	if c.MaxErrors <= 0 {
		c.MaxErrors = 5
	}
	if c.ErrorWindowMs <= 0 {
		c.ErrorWindowMs = 5 * 60 * 1000
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 10 * time.Second
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	switch c.Strategy {
	case "", StrategyRoundRobin, StrategyRandom, StrategyLeastUsed, StrategyLeastErrors, StrategyWeighted:
	default:
		return fmt.Errorf("credential: invalid strategy %q", c.Strategy)
	}
	if c.MinActive < 0 {
		return fmt.Errorf("credential: min_active must be non-negative")
	}
	return nil
}

func (c *Config) errorCooldown() time.Duration {
	return time.Duration(c.ErrorCooldownMs) * time.Millisecond
}

func (c *Config) errorWindow() time.Duration {
	return time.Duration(c.ErrorWindowMs) * time.Millisecond
}
