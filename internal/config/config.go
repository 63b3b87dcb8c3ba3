// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads bentham's process configuration from a YAML file,
// with environment-variable expansion and .env support, into a single
// aggregated Config struct covering every subsystem.
package config

import (
	"fmt"

	"github.com/kadirpekel/bentham/internal/checkpoint"
	"github.com/kadirpekel/bentham/internal/credential"
	"github.com/kadirpekel/bentham/internal/orchestrator"
	"github.com/kadirpekel/bentham/internal/session"
)

// LogConfig configures internal/logging.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
	File   string `yaml:"file,omitempty"`
}

// Config aggregates every subsystem's tunables into the single document
// bentham reads at startup.
type Config struct {
	Log          LogConfig                `yaml:"log,omitempty"`
	Orchestrator orchestrator.Config      `yaml:"orchestrator,omitempty"`
	Checkpoint   checkpoint.ManagerConfig `yaml:"checkpoint,omitempty"`
	Credential   credential.Config        `yaml:"credential,omitempty"`
	Session      session.Config           `yaml:"session,omitempty"`

	CheckpointDir string `yaml:"checkpoint_dir,omitempty"`

	// MetricsAddr, if set, enables Prometheus metrics collection. No HTTP
	// listener is started on this address.
	MetricsAddr string `yaml:"metrics_addr,omitempty"`
}

// SetDefaults fills every subsystem's zero-valued fields with its
// documented defaults. It is always safe to call more than once.
func (c *Config) SetDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "simple"
	}
	if c.CheckpointDir == "" {
		c.CheckpointDir = "./checkpoints"
	}
	c.Orchestrator.SetDefaults()
	c.Checkpoint.SetDefaults()
	c.Credential.SetDefaults()
	c.Session.SetDefaults()
}

// Validate checks every subsystem's configuration for internal
// consistency, after defaults have been applied.
func (c *Config) Validate() error {
	if err := c.Orchestrator.Validate(); err != nil {
		return err
	}
	if err := c.Credential.Validate(); err != nil {
		return err
	}
	if c.CheckpointDir == "" {
		return fmt.Errorf("config: checkpoint_dir must not be empty")
	}
	return nil
}

// Default returns a fully defaulted Config, useful for zero-config runs.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}
