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

package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kadirpekel/bentham/internal/core"
)

// studyManifest is the on-disk YAML shape a user writes a study in. Full
// manifest parsing/validation is out of this module's scope; this is the
// minimal validated boundary type the run/resume commands need to build a
// *core.Study.
type studyManifest struct {
	ID       string `yaml:"id"`
	TenantID string `yaml:"tenant_id"`
	Name     string `yaml:"name"`

	Queries   []string `yaml:"queries"`
	Surfaces  []string `yaml:"surfaces"`
	Locations []string `yaml:"locations"`

	Quality struct {
		MinResponseLength    int  `yaml:"min_response_length"`
		RequireActualContent bool `yaml:"require_actual_content"`
	} `yaml:"quality"`

	Completion struct {
		RequiredSurfaces  []string `yaml:"required_surfaces"`
		CoverageThreshold float64  `yaml:"coverage_threshold"`
	} `yaml:"completion"`

	MaxRetries       int    `yaml:"max_retries"`
	Priority         string `yaml:"priority"`
	EvidenceLevel    string `yaml:"evidence_level"`
	SessionIsolation string `yaml:"session_isolation"`
	DeadlineSeconds  int    `yaml:"deadline_seconds"`
}

// loadManifest reads and validates a study manifest from path, returning
// the corresponding core.Study.
func loadManifest(path string) (*core.Study, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", path, err)
	}

	var m studyManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: parse %s: %w", path, err)
	}

	if err := validateManifest(&m); err != nil {
		return nil, fmt.Errorf("manifest: %s: %w", path, err)
	}

	study := &core.Study{
		ID:       m.ID,
		TenantID: m.TenantID,
		Name:     m.Name,

		Queries:   m.Queries,
		Surfaces:  m.Surfaces,
		Locations: m.Locations,

		Quality: core.QualityGates{
			MinResponseLength:    m.Quality.MinResponseLength,
			RequireActualContent: m.Quality.RequireActualContent,
		},
		Completion: core.CompletionCriteria{
			RequiredSurfaces:  m.Completion.RequiredSurfaces,
			CoverageThreshold: m.Completion.CoverageThreshold,
		},

		MaxRetries:       m.MaxRetries,
		Priority:         core.Priority(orDefault(m.Priority, string(core.PriorityNormal))),
		EvidenceLevel:    core.EvidenceLevel(m.EvidenceLevel),
		SessionIsolation: core.SessionIsolation(m.SessionIsolation),

		CreatedAt: time.Now(),
	}
	if m.DeadlineSeconds > 0 {
		study.Deadline = study.CreatedAt.Add(time.Duration(m.DeadlineSeconds) * time.Second)
	}
	return study, nil
}

func validateManifest(m *studyManifest) error {
	if m.ID == "" {
		return fmt.Errorf("id is required")
	}
	if len(m.Queries) == 0 {
		return fmt.Errorf("at least one query is required")
	}
	if len(m.Surfaces) == 0 {
		return fmt.Errorf("at least one surface is required")
	}
	if len(m.Locations) == 0 {
		return fmt.Errorf("at least one location is required")
	}
	switch core.Priority(orDefault(m.Priority, string(core.PriorityNormal))) {
	case core.PriorityCritical, core.PriorityHigh, core.PriorityNormal, core.PriorityLow:
	default:
		return fmt.Errorf("invalid priority %q", m.Priority)
	}
	return nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
