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

package orchestrator

import (
	"fmt"
	"time"
)

// WorkerConfig sizes and bounds the dispatch pool.
type WorkerConfig struct {
	Count           int           `yaml:"count,omitempty"`
	JobTimeout      time.Duration `yaml:"job_timeout,omitempty"`
	CheckoutTimeout time.Duration `yaml:"checkout_timeout,omitempty"`
	MinBackpressure time.Duration `yaml:"min_backpressure,omitempty"`
}

// RetryConfig parameterizes the exponential-backoff retry policy's timing.
// The retry budget itself (how many attempts) is per-study: core.Study.MaxRetries.
type RetryConfig struct {
	BaseDelay time.Duration `yaml:"base_delay,omitempty"`
	MaxDelay  time.Duration `yaml:"max_delay,omitempty"`
}

// Config aggregates the orchestrator's own tunables. Checkpoint, credential,
// and session pool configuration live in their own packages.
type Config struct {
	Worker WorkerConfig `yaml:"worker,omitempty"`
	Retry  RetryConfig  `yaml:"retry,omitempty"`
}

// SetDefaults fills zero-valued fields with spec defaults.
func (c *Config) SetDefaults() {
	if c.Worker.Count <= 0 {
		c.Worker.Count = 4
	}
	if c.Worker.JobTimeout <= 0 {
		c.Worker.JobTimeout = 30 * time.Second
	}
	if c.Worker.CheckoutTimeout <= 0 {
		c.Worker.CheckoutTimeout = 10 * time.Second
	}
	if c.Worker.MinBackpressure <= 0 {
		c.Worker.MinBackpressure = 5 * time.Second
	}
	if c.Retry.BaseDelay <= 0 {
		c.Retry.BaseDelay = 1 * time.Second
	}
	if c.Retry.MaxDelay <= 0 {
		c.Retry.MaxDelay = 60 * time.Second
	}
}

// Validate reports a configuration error if any field is out of range.
func (c *Config) Validate() error {
	if c.Worker.Count < 1 {
		return fmt.Errorf("orchestrator: worker.count must be >= 1")
	}
	if c.Retry.BaseDelay <= 0 {
		return fmt.Errorf("orchestrator: retry.base_delay must be > 0")
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("orchestrator: retry.max_delay must be >= retry.base_delay")
	}
	return nil
}
