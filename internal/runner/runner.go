// Package runner orchestrates one run end to end: load, resolve,
// instantiate, execute, finalise. It is the only component that performs
// project-level I/O, and it guarantees a trace artefact exists for every
// run, including runs that fail before any agent starts.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/nexous-ai/nexous/internal/agent"
	"github.com/nexous-ai/nexous/internal/config"
	"github.com/nexous-ai/nexous/internal/graph"
	"github.com/nexous-ai/nexous/internal/llm"
	"github.com/nexous-ai/nexous/internal/llm/providers"
	"github.com/nexous-ai/nexous/internal/observability"
	"github.com/nexous-ai/nexous/internal/tools"
	"github.com/nexous-ai/nexous/internal/trace"
)

// Options configures one Runner. Zero values select sensible defaults;
// Providers and Tools exist so tests can substitute scripted adapters.
type Options struct {
	// ProjectPath is the project spec file.
	ProjectPath string

	// PresetDir is the directory preset files are loaded from. Defaults to
	// "presets" next to the project file.
	PresetDir string

	// TraceRoot is the trace output root. Defaults to "traces".
	TraceRoot string

	// RunID overrides the generated run id.
	RunID string

	// UseLLM enables real LLM calls; otherwise placeholder agents run.
	UseLLM bool

	Logger    *slog.Logger
	Metrics   *observability.Metrics
	Tracer    *observability.Tracer
	Providers llm.Registry
	Tools     *tools.Registry
}

// Outcome is what a completed run returns to the caller.
type Outcome struct {
	RunID     string
	TracePath string
	Results   map[string]*agent.Result
}

// Runner executes one project.
type Runner struct {
	opts Options
	log  *slog.Logger
}

// New creates a Runner. Defaults are resolved here so Run and Validate see
// a fully populated option set.
func New(opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.TraceRoot == "" {
		opts.TraceRoot = "traces"
	}
	if opts.PresetDir == "" {
		opts.PresetDir = filepath.Join(filepath.Dir(opts.ProjectPath), "presets")
	}
	if opts.Providers == nil {
		opts.Providers = providers.NewRegistry(opts.Logger)
	}
	if opts.Tools == nil {
		opts.Tools = tools.NewRegistry(tools.Config{BaseDir: filepath.Dir(opts.ProjectPath)}, opts.Logger, opts.Metrics)
	}
	return &Runner{opts: opts, log: opts.Logger}
}

// Validate performs the load and resolve phases without executing any
// agent. It writes no trace.
func (r *Runner) Validate() error {
	project, store, err := r.load()
	if err != nil {
		return err
	}
	if _, err := graph.Resolve(project.Agents); err != nil {
		return err
	}
	for _, spec := range project.Agents {
		if _, err := store.Get(spec.Preset); err != nil {
			return err
		}
	}
	return nil
}

// Run executes the project and always leaves a trace artefact behind, even
// when the failure happens before any agent is instantiated.
func (r *Runner) Run(ctx context.Context) (*Outcome, error) {
	runID := r.opts.RunID
	if runID == "" {
		runID = NewRunID(time.Now().UTC())
	}
	log := r.log.With("run_id", runID)
	rec := trace.NewRecorder(r.opts.TraceRoot, log)
	start := time.Now()

	var spanEnd func(error)
	if r.opts.Tracer != nil {
		sctx, span := r.opts.Tracer.Start(ctx, "runner.run",
			attribute.String("run_id", runID),
			attribute.String("project_path", r.opts.ProjectPath))
		ctx = sctx
		spanEnd = func(err error) { observability.EndSpan(span, err) }
	}
	finish := func(err error) {
		if spanEnd != nil {
			spanEnd(err)
		}
	}

	// Phase 1: load.
	project, store, err := r.load()
	if err != nil {
		path := r.failEarly(rec, fileStem(r.opts.ProjectPath), runID, err)
		log.Error("run failed during load", "error", err, "trace", path)
		finish(err)
		return nil, err
	}
	if err := rec.StartRun(project.ProjectID, runID, project.Execution.Mode); err != nil {
		finish(err)
		return nil, err
	}

	// Phase 2: resolve.
	ordered, err := graph.Resolve(project.Agents)
	if err != nil {
		path := r.failRun(rec, err)
		log.Error("run failed during resolve", "error", err, "trace", path)
		finish(err)
		return nil, err
	}

	// Phase 3: instantiate.
	executors, err := r.instantiate(ordered, store, rec, log)
	if err != nil {
		path := r.failRun(rec, err)
		log.Error("run failed during instantiate", "error", err, "trace", path)
		finish(err)
		return nil, err
	}

	// Phase 4: execute in resolved order.
	results := make(map[string]*agent.Result, len(ordered))
	for i, ex := range executors {
		spec := ordered[i]
		if err := ctx.Err(); err != nil {
			path := r.failRun(rec, err)
			log.Error("run cancelled", "error", err, "trace", path)
			finish(err)
			return nil, err
		}
		if err := r.executeAgent(ctx, ex, spec, project, rec, results); err != nil {
			path, _ := rec.EndRun(trace.RunFailed)
			r.observeRun(trace.RunFailed, start)
			log.Error("run failed", "agent_id", spec.ID, "error", err, "trace", path)
			finish(err)
			return nil, err
		}
	}

	// Phase 5: finalise.
	path, err := rec.EndRun(trace.RunCompleted)
	if err != nil {
		finish(err)
		return nil, err
	}
	r.observeRun(trace.RunCompleted, start)
	log.Info("run completed", "agents", len(ordered), "trace", path)
	finish(nil)
	return &Outcome{RunID: runID, TracePath: path, Results: results}, nil
}

// load parses the project and the preset directory.
func (r *Runner) load() (*config.ProjectSpec, *config.PresetStore, error) {
	project, err := config.LoadProject(r.opts.ProjectPath)
	if err != nil {
		return nil, nil, err
	}
	store, err := config.LoadPresetDir(r.opts.PresetDir)
	if err != nil {
		return nil, nil, err
	}
	return project, store, nil
}

// instantiate binds each spec to its preset and builds the executor list.
// Preset tool names outside the whitelist are creation errors.
func (r *Runner) instantiate(ordered []config.AgentSpec, store *config.PresetStore, rec *trace.Recorder, log *slog.Logger) ([]agent.Executor, error) {
	var router *llm.Router
	if r.opts.UseLLM {
		router = llm.NewRouter(r.opts.Providers, rec, log, r.opts.Metrics)
	}
	executors := make([]agent.Executor, 0, len(ordered))
	for _, spec := range ordered {
		preset, err := store.Get(spec.Preset)
		if err != nil {
			return nil, err
		}
		for _, name := range preset.Tools {
			if _, err := r.opts.Tools.Get(name); err != nil {
				return nil, &creationError{agentID: spec.ID, msg: err.Error()}
			}
		}
		if r.opts.UseLLM {
			executors = append(executors, agent.New(spec, *preset, router, r.opts.Tools, rec, log))
		} else {
			executors = append(executors, agent.NewPlaceholder(spec, *preset))
		}
	}
	return executors, nil
}

// executeAgent runs one agent between its INPUT and OUTPUT steps.
func (r *Runner) executeAgent(ctx context.Context, ex agent.Executor, spec config.AgentSpec, project *config.ProjectSpec, rec *trace.Recorder, results map[string]*agent.Result) (err error) {
	if r.opts.Tracer != nil {
		sctx, span := r.opts.Tracer.Start(ctx, "runner.agent",
			attribute.String("agent_id", spec.ID),
			attribute.String("preset", spec.Preset))
		ctx = sctx
		defer func() { observability.EndSpan(span, err) }()
	}
	if err := rec.StartAgent(spec.ID, spec.Preset, spec.Purpose); err != nil {
		return err
	}

	previousIDs := make([]string, 0, len(spec.Dependencies))
	previous := make(map[string]*agent.Result, len(spec.Dependencies))
	for _, dep := range spec.Dependencies {
		if res, ok := results[dep]; ok {
			previousIDs = append(previousIDs, dep)
			previous[dep] = res
		}
	}

	rec.LogStep(spec.ID, trace.StepInput, trace.StepOK, map[string]any{
		"inputs":           sortedKeys(spec.Inputs),
		"previous_results": previousIDs,
	}, nil)

	res, err := ex.Execute(ctx, agent.Context{
		Project:         project,
		PreviousIDs:     previousIDs,
		PreviousResults: previous,
		Inputs:          spec.Inputs,
	})
	if err != nil {
		rec.LogError(spec.ID, "", trace.KindAgent,
			fmt.Sprintf("agent %s failed: %v", spec.ID, err), false)
		rec.EndAgent(spec.ID, trace.AgentFailed)
		return err
	}

	rec.LogStep(spec.ID, trace.StepOutput, trace.StepOK, map[string]any{
		"result_keys":  res.Keys(),
		"artifact_ids": res.ArtifactIDs,
	}, nil)
	for _, id := range res.ArtifactIDs {
		rec.RegisterArtifact(id, "file", "", spec.ID)
	}
	rec.EndAgent(spec.ID, trace.AgentCompleted)
	results[spec.ID] = res
	return nil
}

// failEarly creates the minimal trace for failures that happen before the
// project spec is known to be valid.
func (r *Runner) failEarly(rec *trace.Recorder, projectID, runID string, cause error) string {
	if err := rec.StartRun(projectID, runID, config.ExecutionModeSequential); err != nil {
		return ""
	}
	return r.failRun(rec, cause)
}

// failRun records the terminal error against runner.init and closes the
// trace as FAILED.
func (r *Runner) failRun(rec *trace.Recorder, cause error) string {
	rec.LogError("", trace.RunnerInitStepID, errorKind(cause), cause.Error(), false)
	path, err := rec.EndRun(trace.RunFailed)
	if err != nil {
		r.log.Error("trace write failed", "error", err)
		return ""
	}
	return path
}

func (r *Runner) observeRun(status trace.RunStatus, start time.Time) {
	if r.opts.Metrics == nil {
		return
	}
	r.opts.Metrics.RunCounter.WithLabelValues(string(status)).Inc()
	r.opts.Metrics.RunDuration.Observe(time.Since(start).Seconds())
}

// creationError tags a factory failure with AGENT_CREATION_ERROR.
type creationError struct {
	agentID string
	msg     string
}

func (e *creationError) Error() string {
	return fmt.Sprintf("agent %s: %s", e.agentID, e.msg)
}

func (e *creationError) ErrorKind() string { return trace.KindAgentCreation }

// errorKind maps an error onto a trace kind through the ErrorKind contract.
func errorKind(err error) string {
	var k interface{ ErrorKind() string }
	if errors.As(err, &k) {
		return k.ErrorKind()
	}
	return trace.KindAgent
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func fileStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
