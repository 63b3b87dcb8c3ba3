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
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/kadirpekel/bentham/internal/config"
	"github.com/kadirpekel/bentham/internal/events"
	"github.com/kadirpekel/bentham/internal/orchestrator"
)

// RunCmd submits a study manifest to an in-process Orchestrator and drives
// it to completion, printing progress as it goes.
type RunCmd struct {
	Manifest     string `arg:"" help:"Path to the study manifest YAML file." type:"path"`
	HTTPSurface  string `name:"http-surface" help:"Surface id dispatched to the demo HTTP adapter; every other surface runs against the null adapter."`
	HTTPEndpoint string `name:"http-endpoint" help:"Endpoint the demo HTTP adapter POSTs queries to."`
}

func (c *RunCmd) Run(cli *CLI) error {
	cfg, err := loadRunConfig(cli)
	if err != nil {
		return err
	}

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
		return fmt.Errorf("submit study: %w", err)
	}
	fmt.Printf("submitted study %s (estimated completion %s)\n", handle.StudyID, handle.EstimatedCompletionTime.Format("15:04:05"))

	report, err := rt.orch.Await(ctx, study.ID)
	if err != nil {
		return fmt.Errorf("await study: %w", err)
	}

	printStatusReport(report)
	return nil
}

func loadRunConfig(cli *CLI) (*config.Config, error) {
	if cli.Config == "" {
		return config.Default(), nil
	}
	return config.Load(cli.Config)
}

// notifyInterrupt cancels ctx's owning cancel func on SIGINT/SIGTERM.
func notifyInterrupt(ctx context.Context, cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
}

func printStatusReport(report orchestrator.StudyStatusReport) {
	fmt.Printf("study %s: %s (%.1f%% complete)\n", report.StudyID, report.Status, report.Progress)

	surfaceIDs := make([]string, 0, len(report.Surfaces))
	for id := range report.Surfaces {
		surfaceIDs = append(surfaceIDs, id)
	}
	sort.Strings(surfaceIDs)
	for _, id := range surfaceIDs {
		sp := report.Surfaces[id]
		fmt.Printf("  %-20s completed=%d failed=%d total=%d\n", id, sp.Completed, sp.Failed, sp.Total)
	}
}
