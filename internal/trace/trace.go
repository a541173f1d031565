// Package trace defines the structured, replayable record of a single run
// and the Recorder that builds it.
//
// A Trace is a strict tree: one Trace per run, one AgentTrace per executed
// agent, one StepRecord per observable event (INPUT, LLM, TOOL, OUTPUT).
// The Recorder is the single writer; callers never mutate Trace state
// directly. The artefact is serialised exactly once, at end of run, to
// <trace-root>/<project-id>/<run-id>/trace.json.
package trace

import "time"

// SchemaVersion is the trace schema version written to every artefact.
const SchemaVersion = "1.0"

// RunStatus is the lifecycle status of a run.
type RunStatus string

const (
	RunRunning   RunStatus = "RUNNING"
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
)

// AgentStatus is the lifecycle status of one agent within a run.
type AgentStatus string

const (
	AgentIdle      AgentStatus = "IDLE"
	AgentRunning   AgentStatus = "RUNNING"
	AgentCompleted AgentStatus = "COMPLETED"
	AgentFailed    AgentStatus = "FAILED"
)

// StepType identifies the kind of event a StepRecord describes.
type StepType string

const (
	StepInput  StepType = "INPUT"
	StepLLM    StepType = "LLM"
	StepTool   StepType = "TOOL"
	StepOutput StepType = "OUTPUT"
)

// StepStatus is the outcome of a single step.
type StepStatus string

const (
	StepOK    StepStatus = "OK"
	StepError StepStatus = "ERROR"
)

// Error kind tags carried verbatim into ErrorRecord.Type.
const (
	KindYAMLParse        = "YAML_PARSE_ERROR"
	KindSchemaValidation = "SCHEMA_VALIDATION_ERROR"
	KindPresetNotFound   = "PRESET_NOT_FOUND_ERROR"
	KindPresetLoad       = "PRESET_LOAD_ERROR"
	KindDependencyCycle  = "DEPENDENCY_CYCLE_ERROR"
	KindAgentCreation    = "AGENT_CREATION_ERROR"
	KindAgent            = "AGENT_ERROR"
	KindLLMAllFailed     = "LLM_ALL_FAILED"
	KindTool             = "TOOL_ERROR"
)

// RunnerInitStepID is the synthetic step id attached to errors that occur
// before any agent has started.
const RunnerInitStepID = "runner.init"

// StepRecord is one atomic observable event within an agent.
//
// Payloads hold bounded summaries only, never full prompts or file
// contents; callers truncate before logging.
type StepRecord struct {
	StepID    string         `json:"step_id"`
	Type      StepType       `json:"type"`
	Status    StepStatus     `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// AgentTrace records the execution of one agent in resolved order.
type AgentTrace struct {
	AgentID   string       `json:"agent_id"`
	PresetID  string       `json:"preset_id"`
	Purpose   string       `json:"purpose,omitempty"`
	Status    AgentStatus  `json:"status"`
	StartedAt time.Time    `json:"started_at"`
	EndedAt   *time.Time   `json:"ended_at,omitempty"`
	Steps     []StepRecord `json:"steps"`
}

// ErrorRecord is one entry in the flat error list of a Trace. Appending an
// ErrorRecord never changes agent or run status by itself.
type ErrorRecord struct {
	AgentID     string    `json:"agent_id"`
	StepID      string    `json:"step_id"`
	Type        string    `json:"type"`
	Message     string    `json:"message"`
	Recoverable bool      `json:"recoverable"`
	Timestamp   time.Time `json:"timestamp"`
}

// Artifact is a file produced during the run and registered with the
// Recorder so replay tooling can locate it.
type Artifact struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Path      string `json:"path"`
	CreatedBy string `json:"created_by"`
}

// Summary aggregates the trace contents at end of run. Counts match the
// AgentTrace/StepRecord contents exactly.
type Summary struct {
	TotalAgents     int   `json:"total_agents"`
	CompletedAgents int   `json:"completed_agents"`
	FailedAgents    int   `json:"failed_agents"`
	TotalLLMCalls   int   `json:"total_llm_calls"`
	TotalToolCalls  int   `json:"total_tool_calls"`
	TotalTokens     int   `json:"total_tokens"`
	TotalDurationMS int64 `json:"total_duration_ms"`
}

// Trace is the complete record of one run.
type Trace struct {
	SchemaVersion string        `json:"schema_version"`
	ProjectID     string        `json:"project_id"`
	RunID         string        `json:"run_id"`
	Status        RunStatus     `json:"status"`
	StartedAt     time.Time     `json:"started_at"`
	EndedAt       *time.Time    `json:"ended_at,omitempty"`
	DurationMS    int64         `json:"duration_ms"`
	ExecutionMode string        `json:"execution_mode"`
	Agents        []AgentTrace  `json:"agents"`
	Artifacts     []Artifact    `json:"artifacts,omitempty"`
	Errors        []ErrorRecord `json:"errors"`
	Summary       *Summary      `json:"summary,omitempty"`
}

// ComputeSummary derives a Summary from the trace contents. Token counts
// are read from LLM step metadata ("tokens_input"/"tokens_output"), which
// hold ints in-memory and float64 after a JSON round trip.
func (t *Trace) ComputeSummary() *Summary {
	s := &Summary{TotalAgents: len(t.Agents), TotalDurationMS: t.DurationMS}
	for i := range t.Agents {
		at := &t.Agents[i]
		switch at.Status {
		case AgentCompleted:
			s.CompletedAgents++
		case AgentFailed:
			s.FailedAgents++
		}
		for j := range at.Steps {
			step := &at.Steps[j]
			switch step.Type {
			case StepLLM:
				if step.Status == StepOK {
					s.TotalLLMCalls++
					s.TotalTokens += metaInt(step.Metadata, "tokens_input")
					s.TotalTokens += metaInt(step.Metadata, "tokens_output")
				}
			case StepTool:
				s.TotalToolCalls++
			}
		}
	}
	return s
}

func metaInt(m map[string]any, key string) int {
	if m == nil {
		return 0
	}
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
