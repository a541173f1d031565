// Package tools provides the closed whitelist of sandboxed operations
// agents may invoke: python_exec, file_read, and file_write.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nexous-ai/nexous/internal/observability"
)

// Tool names in the closed whitelist.
const (
	NamePythonExec = "python_exec"
	NameFileRead   = "file_read"
	NameFileWrite  = "file_write"
)

// Tool is one whitelisted operation.
type Tool interface {
	// Name returns the tool name agents refer to.
	Name() string

	// Description returns a natural language description of the tool.
	Description() string

	// Schema returns the JSON Schema for the tool parameters.
	Schema() json.RawMessage

	// Execute runs the tool. Failures are communicated through
	// Result.OK=false, not through the error return, which is reserved
	// for malformed parameter payloads.
	Execute(ctx context.Context, params json.RawMessage) *Result
}

// Result is the uniform tool outcome. Metadata always carries latency_ms
// and tool_name after an Invoke.
type Result struct {
	OK       bool           `json:"ok"`
	Output   string         `json:"output,omitempty"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Config scopes the registry's tools.
type Config struct {
	// BaseDir is the directory file tools resolve paths against.
	BaseDir string

	// PythonBin overrides the python interpreter (default "python3").
	PythonBin string

	// PythonTimeout bounds one python_exec call (default 30s).
	PythonTimeout time.Duration
}

// Registry holds the closed tool set. Requests for names outside the
// whitelist fail immediately; there is no registration surface beyond
// construction.
type Registry struct {
	tools   map[string]Tool
	log     *slog.Logger
	metrics *observability.Metrics
}

// NewRegistry builds the whitelist. Logger and metrics may be nil.
func NewRegistry(cfg Config, logger *slog.Logger, metrics *observability.Metrics) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		tools:   make(map[string]Tool, 3),
		log:     logger,
		metrics: metrics,
	}
	for _, t := range []Tool{
		NewPythonExec(cfg),
		NewFileRead(cfg),
		NewFileWrite(cfg),
	} {
		r.tools[t.Name()] = t
	}
	return r
}

// Get resolves a tool by name.
func (r *Registry) Get(name string) (Tool, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("tool %q is not in the allowed tool set", name)
	}
	return t, nil
}

// Invoke runs a whitelisted tool, stamping latency_ms and tool_name into
// the result metadata. Unknown names and malformed parameters come back as
// failed Results, never as panics or bare errors.
func (r *Registry) Invoke(ctx context.Context, name string, params json.RawMessage) *Result {
	start := time.Now()
	t, err := r.Get(name)
	var res *Result
	if err != nil {
		res = &Result{OK: false, Error: err.Error()}
	} else {
		res = t.Execute(ctx, params)
	}
	if res.Metadata == nil {
		res.Metadata = map[string]any{}
	}
	res.Metadata["latency_ms"] = time.Since(start).Milliseconds()
	res.Metadata["tool_name"] = name

	if r.metrics != nil {
		status := "success"
		if !res.OK {
			status = "error"
		}
		r.metrics.ToolExecutionCounter.WithLabelValues(name, status).Inc()
		r.metrics.ToolExecutionDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}
	if !res.OK {
		r.log.Debug("tool invocation failed", "tool", name, "error", res.Error)
	}
	return res
}
