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

	"github.com/kadirpekel/bentham/internal/checkpoint"
)

// StatusCmd prints a study's durable progress without running anything,
// reading the checkpoint directly off disk.
type StatusCmd struct {
	CheckpointDir string `name:"checkpoint-dir" required:"" help:"Directory holding the study's checkpoint file."`
	Study         string `name:"study" required:"" help:"Study id to report on."`
}

func (c *StatusCmd) Run(cli *CLI) error {
	engine := checkpoint.NewEngine(c.CheckpointDir)
	cp, err := engine.Load(c.Study)
	if err != nil {
		return fmt.Errorf("status: load checkpoint: %w", err)
	}

	fmt.Printf("study %s (%s)\n", cp.StudyID, cp.StudyName)
	fmt.Printf("  created %s, updated %s\n", cp.CreatedAt.Format("2006-01-02 15:04:05"), cp.UpdatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("  progress %.1f%% (%d/%d cells, %d failed)\n", cp.ProgressPercent, cp.CompletedCells, cp.TotalCells, cp.FailedCells)
	if len(cp.RetryStates) > 0 {
		fmt.Printf("  %d cell(s) with pending retry state\n", len(cp.RetryStates))
	}
	return nil
}
