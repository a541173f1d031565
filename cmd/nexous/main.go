// Package main provides the CLI entry point for the Nexous run engine.
//
// Nexous executes dependency-ordered agent projects against LLM providers
// (OpenAI, Anthropic, Gemini) with policy-driven routing and structured,
// replayable traces.
//
// # Basic Usage
//
// Run a project:
//
//	nexous run project.yaml --use-llm
//
// Inspect a finished run:
//
//	nexous replay traces/<project>/<run>/trace.json
//	nexous stats traces/<project>/<run>/trace.json
//
// # Environment Variables
//
//   - OPENAI_API_KEY: OpenAI API key
//   - ANTHROPIC_API_KEY: Anthropic API key
//   - GOOGLE_API_KEY / GEMINI_API_KEY: Google Gemini API key
//   - NEXOUS_USE_LLM: truthy value forces real LLM mode
//   - NEXOUS_LOG_LEVEL: process log level (debug, info, warn, error)
//   - NEXOUS_OTLP_ENDPOINT: OTLP/gRPC collector for span export
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nexous-ai/nexous/internal/observability"
)

// Build information - populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// newLogger builds the process logger: JSON records with provider
// credentials redacted before anything is written.
func newLogger(out io.Writer) *slog.Logger {
	return observability.NewLogger(observability.LogConfig{
		Level:  os.Getenv(observability.EnvLogLevel),
		Format: "json",
		Output: out,
	})
}

func main() {
	slog.SetDefault(newLogger(os.Stderr))

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// This is separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "nexous",
		Short: "Nexous - agent orchestration run engine",
		Long: `Nexous executes multi-agent projects in dependency order, routing each
agent's LLM call through a retry-and-fallback policy and recording every
observable step into a replayable trace artefact.

Supported LLM providers: OpenAI, Anthropic, Gemini
Available tools: python_exec, file_read, file_write`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildRunCmd(),
		buildValidateCmd(),
		buildReplayCmd(),
		buildStatsCmd(),
		buildDiffCmd(),
		buildServeCmd(),
	)

	return rootCmd
}
