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
	"context"
	"fmt"
	"log/slog"

	"github.com/kadirpekel/bentham/internal/events"
)

// ResumeCmd resubmits a study manifest against an existing checkpoint
// directory. Orchestrator.SubmitStudy already resumes from whatever
// progress is on disk, so this is run.go's flow with an explicit
// checkpoint directory override.
type ResumeCmd struct {
	Manifest      string `arg:"" help:"Path to the study manifest YAML file." type:"path"`
	CheckpointDir string `name:"checkpoint-dir" required:"" help:"Directory holding the study's checkpoint file."`
	HTTPSurface   string `name:"http-surface" help:"Surface id dispatched to the demo HTTP adapter; every other surface runs against the null adapter."`
	HTTPEndpoint  string `name:"http-endpoint" help:"Endpoint the demo HTTP adapter POSTs queries to."`
}

func (c *ResumeCmd) Run(cli *CLI) error {
	cfg, err := loadRunConfig(cli)
	if err != nil {
		return err
	}
	cfg.CheckpointDir = c.CheckpointDir

	study, err := loadManifest(c.Manifest)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	notifyInterrupt(ctx, cancel)

	rt, err := buildRuntime(ctx, cfg, study, c.HTTPSurface, c.HTTPEndpoint)
	if err != nil {
		return err
	}
	defer rt.shutdown()

	rt.bus.Subscribe(func(ev events.Event) {
		switch ev.Type {
		case events.TypeJobCompleted, events.TypeJobFailed, events.TypeStudyCompleted:
			slog.Info(string(ev.Type), "study_id", ev.StudyID, "job_id", ev.JobID, "details", ev.Details)
		}
	})

	handle, err := rt.orch.SubmitStudy(ctx, study)
	if err != nil {
		return fmt.Errorf("resume study: %w", err)
	}
	fmt.Printf("resumed study %s (estimated completion %s)\n", handle.StudyID, handle.EstimatedCompletionTime.Format("15:04:05"))

	report, err := rt.orch.Await(ctx, study.ID)
	if err != nil {
		return fmt.Errorf("await study: %w", err)
	}

	printStatusReport(report)
	return nil
}
