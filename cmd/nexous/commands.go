package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nexous-ai/nexous/internal/observability"
	"github.com/nexous-ai/nexous/internal/runner"
	"github.com/nexous-ai/nexous/internal/server"
	"github.com/nexous-ai/nexous/internal/trace"
)

// buildRunCmd creates the "run" command.
func buildRunCmd() *cobra.Command {
	var (
		runID        string
		useLLM       bool
		dryRun       bool
		traceDir     string
		presetDir    string
		otlpEndpoint string
	)
	cmd := &cobra.Command{
		Use:   "run <project-file>",
		Short: "Execute a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			tracer, stopTracing, err := observability.NewTracer(ctx, observability.TraceConfig{
				ServiceName:    "nexous",
				ServiceVersion: version,
				Endpoint:       otlpEndpoint,
			})
			if err != nil {
				return err
			}
			defer func() { _ = stopTracing(context.Background()) }()

			r := runner.New(runner.Options{
				ProjectPath: args[0],
				PresetDir:   presetDir,
				TraceRoot:   traceDir,
				RunID:       runID,
				UseLLM:      useLLM || runner.UseLLMFromEnv(),
				Logger:      slog.Default(),
				Metrics:     observability.NewMetrics(),
				Tracer:      tracer,
			})

			if dryRun {
				if err := r.Validate(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "project and presets are valid")
				return nil
			}

			outcome, err := r.Run(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run %s completed, trace: %s\n", outcome.RunID, outcome.TracePath)
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "Override the generated run id")
	cmd.Flags().BoolVar(&useLLM, "use-llm", false, "Make real LLM calls (also: NEXOUS_USE_LLM)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Load and validate without executing")
	cmd.Flags().StringVar(&traceDir, "trace-dir", "traces", "Trace output root directory")
	cmd.Flags().StringVar(&presetDir, "preset-dir", "", "Preset directory (default: presets/ next to the project file)")
	cmd.Flags().StringVar(&otlpEndpoint, "otlp-endpoint", os.Getenv(observability.EnvOTLPEndpoint),
		"OTLP/gRPC endpoint for span export (also: NEXOUS_OTLP_ENDPOINT; empty disables)")
	return cmd
}

// buildValidateCmd creates the "validate" command, the standalone form of
// run --dry-run.
func buildValidateCmd() *cobra.Command {
	var presetDir string
	cmd := &cobra.Command{
		Use:   "validate <project-file>",
		Short: "Validate a project and its presets without executing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := runner.New(runner.Options{
				ProjectPath: args[0],
				PresetDir:   presetDir,
				Logger:      slog.Default(),
			})
			if err := r.Validate(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "project and presets are valid")
			return nil
		},
	}
	cmd.Flags().StringVar(&presetDir, "preset-dir", "", "Preset directory (default: presets/ next to the project file)")
	return cmd
}

// buildReplayCmd creates the "replay" command.
func buildReplayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay <trace.json>",
		Short: "Print a trace's events in recorded order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := trace.Load(args[0])
			if err != nil {
				return err
			}
			for _, p := range trace.Validate(t) {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", p)
			}
			return trace.Replay(t, cmd.OutOrStdout())
		},
	}
}

// buildStatsCmd creates the "stats" command.
func buildStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <trace.json>",
		Short: "Print a trace's summary as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := trace.Load(args[0])
			if err != nil {
				return err
			}
			summary := t.Summary
			if summary == nil {
				summary = t.ComputeSummary()
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		},
	}
}

// buildDiffCmd creates the "diff" command.
func buildDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff <trace-a.json> <trace-b.json>",
		Short: "Compare two traces, ignoring timestamps",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := trace.Load(args[0])
			if err != nil {
				return err
			}
			b, err := trace.Load(args[1])
			if err != nil {
				return err
			}
			diffs := trace.Diff(a, b)
			if len(diffs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "traces are equivalent")
				return nil
			}
			for _, d := range diffs {
				fmt.Fprintln(cmd.OutOrStdout(), d)
			}
			return fmt.Errorf("traces differ in %d places", len(diffs))
		},
	}
}

// buildServeCmd creates the "serve" command.
func buildServeCmd() *cobra.Command {
	var (
		addr         string
		presetDir    string
		traceDir     string
		useLLM       bool
		otlpEndpoint string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the run API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			tracer, stopTracing, err := observability.NewTracer(ctx, observability.TraceConfig{
				ServiceName:    "nexous",
				ServiceVersion: version,
				Endpoint:       otlpEndpoint,
			})
			if err != nil {
				return err
			}
			defer func() { _ = stopTracing(context.Background()) }()

			srv := server.New(server.Config{
				PresetDir: presetDir,
				TraceRoot: traceDir,
				UseLLM:    useLLM || runner.UseLLMFromEnv(),
				Logger:    slog.Default(),
				Metrics:   observability.NewMetrics(),
				Tracer:    tracer,
			})
			return srv.ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")
	cmd.Flags().StringVar(&presetDir, "preset-dir", "presets", "Preset directory")
	cmd.Flags().StringVar(&traceDir, "trace-dir", "traces", "Trace output root directory")
	cmd.Flags().BoolVar(&useLLM, "use-llm", false, "Make real LLM calls (also: NEXOUS_USE_LLM)")
	cmd.Flags().StringVar(&otlpEndpoint, "otlp-endpoint", os.Getenv(observability.EnvOTLPEndpoint),
		"OTLP/gRPC endpoint for span export (also: NEXOUS_OTLP_ENDPOINT; empty disables)")
	return cmd
}
