// Package agent turns an agent spec plus its preset into an observable
// outcome: one routed LLM call, optional output validation, and tool
// execution for fenced code blocks in the response.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nexous-ai/nexous/internal/config"
	"github.com/nexous-ai/nexous/internal/llm"
	"github.com/nexous-ai/nexous/internal/tools"
	"github.com/nexous-ai/nexous/internal/trace"
)

// Preview bounds for TOOL step payloads.
const (
	codePreviewLen   = 100
	outputPreviewLen = 200
)

// LLMClient is the routing surface the Agent calls. *llm.Router satisfies
// it; tests substitute scripted clients.
type LLMClient interface {
	Generate(ctx context.Context, agentID string, pol llm.Policy, messages []llm.Message, temperature float32, maxTokens int) (*llm.Response, error)
	Attempts() []llm.Attempt
}

// Context is the per-invocation input assembled by the runner.
type Context struct {
	// Project is the full project spec, immutable during the run.
	Project *config.ProjectSpec

	// PreviousIDs lists completed upstream dependencies in execution order.
	PreviousIDs []string

	// PreviousResults maps completed dependency ids to their results.
	PreviousResults map[string]*Result

	// Inputs is the agent's declared inputs map.
	Inputs map[string]any
}

// Result is the outcome of one successful agent execution.
type Result struct {
	AgentID      string           `json:"agent_id"`
	Status       string           `json:"status"`
	Content      string           `json:"content"`
	Output       map[string]any   `json:"output,omitempty"`
	Provider     string           `json:"provider"`
	Model        string           `json:"model"`
	TokensInput  int              `json:"tokens_input"`
	TokensOutput int              `json:"tokens_output"`
	LatencyMS    int64            `json:"latency_ms"`
	ToolResults  []*tools.Result  `json:"tool_results,omitempty"`
	Attempts     []llm.Attempt    `json:"attempts,omitempty"`
	ArtifactIDs  []string         `json:"artifact_ids,omitempty"`
}

// Keys returns the populated top-level field names, used for the bounded
// OUTPUT step payload.
func (r *Result) Keys() []string {
	keys := []string{"agent_id", "status", "content", "provider", "model",
		"tokens_input", "tokens_output", "latency_ms"}
	if r.Output != nil {
		keys = append(keys, "output")
	}
	if len(r.ToolResults) > 0 {
		keys = append(keys, "tool_results")
	}
	if len(r.Attempts) > 0 {
		keys = append(keys, "attempts")
	}
	if len(r.ArtifactIDs) > 0 {
		keys = append(keys, "artifact_ids")
	}
	return keys
}

// Executor is what the runner iterates over; both Agent and Placeholder
// implement it.
type Executor interface {
	ID() string
	Execute(ctx context.Context, ec Context) (*Result, error)
}

// Agent executes one spec against a real LLM through the router.
type Agent struct {
	spec   config.AgentSpec
	preset config.PresetSpec
	client LLMClient
	tools  *tools.Registry
	rec    *trace.Recorder
	log    *slog.Logger
}

// New binds a spec to its preset, router, tool registry, and recorder.
func New(spec config.AgentSpec, preset config.PresetSpec, client LLMClient, registry *tools.Registry, rec *trace.Recorder, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		spec:   spec,
		preset: preset,
		client: client,
		tools:  registry,
		rec:    rec,
		log:    logger.With("agent_id", spec.ID),
	}
}

// ID returns the agent id from the spec.
func (a *Agent) ID() string { return a.spec.ID }

// outputPolicy returns the effective policy; the agent-level policy
// overrides the preset's.
func (a *Agent) outputPolicy() *config.OutputPolicy {
	if a.spec.OutputPolicy != nil {
		return a.spec.OutputPolicy
	}
	return a.preset.OutputPolicy
}

// Execute runs the agent protocol: compose, route, validate, run tools.
// Router failure is the agent's failure; tool failures are recorded but do
// not fail the agent.
func (a *Agent) Execute(ctx context.Context, ec Context) (*Result, error) {
	messages := a.composeMessages(ec)

	pol := llm.Policy{
		Primary:    a.preset.LLM.Policy.Primary,
		Retry:      a.preset.LLM.Policy.Retry,
		RetryDelay: a.preset.LLM.Policy.RetryDelayDuration(),
		Fallback:   a.preset.LLM.Policy.Fallback,
		Timeout:    a.preset.LLM.Policy.TimeoutDuration(),
	}
	resp, err := a.client.Generate(ctx, a.spec.ID, pol, messages, a.preset.LLM.Temperature, a.preset.LLM.MaxTokens)
	if err != nil {
		return nil, err
	}

	result := &Result{
		AgentID:      a.spec.ID,
		Status:       "success",
		Content:      resp.Content,
		Provider:     resp.Provider,
		Model:        resp.Model,
		TokensInput:  resp.TokensInput,
		TokensOutput: resp.TokensOutput,
		LatencyMS:    resp.LatencyMS,
		Attempts:     append([]llm.Attempt(nil), a.client.Attempts()...),
	}

	if op := a.outputPolicy(); op != nil && strings.EqualFold(op.Format, "json") {
		output, warnings := ValidateOutput(resp.Content, op)
		for _, w := range warnings {
			a.log.Warn("output validation", "warning", w)
		}
		result.Output = output
	}

	result.ToolResults = a.runCodeBlocks(ctx, resp.Content)

	if result.Output != nil && a.toolAllowed(tools.NameFileWrite) {
		fileResults, artifactIDs := a.writeDeclaredFiles(ctx, result.Output)
		result.ToolResults = append(result.ToolResults, fileResults...)
		result.ArtifactIDs = artifactIDs
	}
	return result, nil
}

// composeMessages builds the system and user messages for the routed call.
func (a *Agent) composeMessages(ec Context) []llm.Message {
	var system strings.Builder
	system.WriteString(a.preset.SystemPrompt)
	if len(a.preset.Tools) > 0 {
		system.WriteString("\n\nAvailable tools: ")
		system.WriteString(strings.Join(a.preset.Tools, ", "))
		system.WriteString(".\nEmit any code you want executed inside fenced ```python blocks.")
	}
	if pol := a.outputPolicy(); pol != nil && strings.EqualFold(pol.Format, "json") {
		system.WriteString("\n\nRespond with valid JSON.")
		if len(pol.RequiredFields) > 0 {
			system.WriteString(" Include the fields: ")
			system.WriteString(strings.Join(pol.RequiredFields, ", "))
			system.WriteString(".")
		}
		if a.toolAllowed(tools.NameFileWrite) {
			system.WriteString(" To save files, include a \"files\" array of {path, content} objects.")
		}
	}

	var user strings.Builder
	user.WriteString(a.spec.Purpose)
	if len(ec.Inputs) > 0 {
		if data, err := json.MarshalIndent(ec.Inputs, "", "  "); err == nil {
			user.WriteString("\n\nInputs:\n")
			user.Write(data)
		}
	}
	if len(ec.PreviousIDs) > 0 {
		user.WriteString("\n\nCompleted upstream agents: ")
		user.WriteString(strings.Join(ec.PreviousIDs, ", "))
	}

	return []llm.Message{
		{Role: llm.RoleSystem, Content: system.String()},
		{Role: llm.RoleUser, Content: user.String()},
	}
}

// runCodeBlocks executes fenced python blocks in document order when
// python_exec is in the allowed set, logging one TOOL step per block.
func (a *Agent) runCodeBlocks(ctx context.Context, content string) []*tools.Result {
	if !a.toolAllowed(tools.NamePythonExec) {
		return nil
	}
	blocks := ExtractCodeBlocks(content, "python", "py", "python_exec")
	if len(blocks) == 0 {
		return nil
	}

	results := make([]*tools.Result, 0, len(blocks))
	for _, code := range blocks {
		params, _ := json.Marshal(map[string]string{"code": code})
		res := a.tools.Invoke(ctx, tools.NamePythonExec, params)
		results = append(results, res)

		payload := map[string]any{
			"code_summary": llm.Truncate(code, codePreviewLen),
		}
		status := trace.StepOK
		if res.OK {
			payload["output_summary"] = llm.Truncate(res.Output, outputPreviewLen)
		} else {
			status = trace.StepError
			payload["error"] = llm.Truncate(res.Error, outputPreviewLen)
		}
		stepID := a.rec.LogStep(a.spec.ID, trace.StepTool, status, payload, map[string]any{
			"tool_name":  tools.NamePythonExec,
			"latency_ms": res.Metadata["latency_ms"],
		})
		if !res.OK {
			a.rec.LogError(a.spec.ID, stepID, trace.KindTool,
				fmt.Sprintf("python_exec failed: %s", res.Error), true)
		}
	}
	return results
}

// writeDeclaredFiles persists the "files" array of the validated output
// through the file_write tool, one TOOL step per entry. Entries without a
// path are skipped with a warning; write failures are recorded but do not
// fail the agent.
func (a *Agent) writeDeclaredFiles(ctx context.Context, output map[string]any) ([]*tools.Result, []string) {
	entries, ok := output["files"].([]any)
	if !ok || len(entries) == 0 {
		return nil, nil
	}

	var (
		results     []*tools.Result
		artifactIDs []string
	)
	for _, entry := range entries {
		decl, ok := entry.(map[string]any)
		if !ok {
			a.log.Warn("file declaration is not an object", "entry", entry)
			continue
		}
		path, _ := decl["path"].(string)
		content, _ := decl["content"].(string)
		if path == "" {
			a.log.Warn("file declaration missing path")
			continue
		}

		params, _ := json.Marshal(map[string]string{"path": path, "content": content})
		res := a.tools.Invoke(ctx, tools.NameFileWrite, params)
		results = append(results, res)

		payload := map[string]any{"path": path}
		status := trace.StepOK
		if res.OK {
			payload["output_summary"] = llm.Truncate(res.Output, outputPreviewLen)
			if id, ok := res.Metadata["artifact_id"].(string); ok {
				artifactIDs = append(artifactIDs, id)
				payload["artifact_id"] = id
			}
		} else {
			status = trace.StepError
			payload["error"] = llm.Truncate(res.Error, outputPreviewLen)
		}
		stepID := a.rec.LogStep(a.spec.ID, trace.StepTool, status, payload, map[string]any{
			"tool_name":  tools.NameFileWrite,
			"latency_ms": res.Metadata["latency_ms"],
		})
		if !res.OK {
			a.rec.LogError(a.spec.ID, stepID, trace.KindTool,
				fmt.Sprintf("file_write failed: %s", res.Error), true)
		}
	}
	return results, artifactIDs
}

func (a *Agent) toolAllowed(name string) bool {
	for _, t := range a.preset.Tools {
		if t == name {
			return true
		}
	}
	return false
}
