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

// Command bentham runs multi-tenant LLM-surface studies from the command
// line: submitting manifests to an in-process orchestrator, reporting
// durable checkpoint progress, and resuming interrupted runs.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/kadirpekel/bentham/internal/logging"
)

// CLI is the root command, mirroring the global-flags-plus-subcommands
// shape every bentham invocation shares.
type CLI struct {
	Run     RunCmd     `cmd:"" help:"Submit a study manifest and run it to completion."`
	Resume  ResumeCmd  `cmd:"" help:"Resume a study from its checkpoint."`
	Status  StatusCmd  `cmd:"" help:"Print a study's durable progress."`
	Version VersionCmd `cmd:"" help:"Show version information."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)." type:"path"`
	LogFormat string `help:"Log format (simple or verbose; any other value uses slog's text format)." default:"simple"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("bentham"),
		kong.Description("Multi-tenant LLM surface execution platform"),
		kong.UsageOnError(),
	)

	level, err := logging.ParseLevel(cli.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bentham: %v\n", err)
		os.Exit(1)
	}

	output := os.Stderr
	if cli.LogFile != "" {
		f, cleanup, err := logging.OpenLogFile(cli.LogFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "bentham: open log file: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()
		output = f
	}
	logging.Init(level, output, cli.LogFormat)

	err = ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
