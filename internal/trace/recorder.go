package trace

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Recorder is the append-only writer for one run's Trace. It owns all
// timestamps and the per-agent step ordinals. A Recorder performs no I/O
// until EndRun, which serialises the Trace as pretty-printed JSON to the
// canonical path.
//
// A Recorder serves a single run and is not invoked concurrently by the
// sequential engine; the mutex keeps it safe for the HTTP surface, which
// may poll status while a run is in flight.
type Recorder struct {
	mu       sync.Mutex
	root     string
	trace    *Trace
	ordinals map[string]int
	written  bool
	log      *slog.Logger
}

// NewRecorder creates a Recorder writing under the given trace root
// directory. The logger may be nil.
func NewRecorder(root string, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		root:     root,
		ordinals: make(map[string]int),
		log:      logger,
	}
}

// StartRun initialises the Trace. It fails if called twice.
func (r *Recorder) StartRun(projectID, runID, executionMode string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.trace != nil {
		return errors.New("trace: run already started")
	}
	r.trace = &Trace{
		SchemaVersion: SchemaVersion,
		ProjectID:     projectID,
		RunID:         runID,
		Status:        RunRunning,
		StartedAt:     time.Now().UTC(),
		ExecutionMode: executionMode,
		Agents:        []AgentTrace{},
		Errors:        []ErrorRecord{},
	}
	return nil
}

// Started reports whether StartRun has been called.
func (r *Recorder) Started() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.trace != nil
}

// StartAgent appends a new AgentTrace with status RUNNING. It fails if an
// agent with the same id is already running in this trace.
func (r *Recorder) StartAgent(agentID, presetID, purpose string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.trace == nil {
		return errors.New("trace: run not started")
	}
	if at := r.runningAgentLocked(agentID); at != nil {
		return fmt.Errorf("trace: agent %q already running", agentID)
	}
	r.trace.Agents = append(r.trace.Agents, AgentTrace{
		AgentID:   agentID,
		PresetID:  presetID,
		Purpose:   purpose,
		Status:    AgentRunning,
		StartedAt: time.Now().UTC(),
		Steps:     []StepRecord{},
	})
	return nil
}

// LogStep appends a StepRecord under the currently running AgentTrace with
// the given id, assigning the next ordinal for that agent. The generated
// step id is returned. Logging against an unknown or closed agent is a
// no-op; the Recorder never fails mid-run on bookkeeping.
func (r *Recorder) LogStep(agentID string, typ StepType, status StepStatus, payload, metadata map[string]any) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.trace == nil {
		return ""
	}
	at := r.runningAgentLocked(agentID)
	if at == nil {
		r.log.Warn("step logged for agent not running", "agent_id", agentID, "type", typ)
		return ""
	}
	r.ordinals[agentID]++
	id := fmt.Sprintf("%s.%d.%s", agentID, r.ordinals[agentID], strings.ToLower(string(typ)))
	at.Steps = append(at.Steps, StepRecord{
		StepID:    id,
		Type:      typ,
		Status:    status,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
		Metadata:  metadata,
	})
	return id
}

// RegisterArtifact appends to the artefact list on the Trace.
func (r *Recorder) RegisterArtifact(id, kind, path, createdBy string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.trace == nil {
		return
	}
	r.trace.Artifacts = append(r.trace.Artifacts, Artifact{
		ID:        id,
		Kind:      kind,
		Path:      path,
		CreatedBy: createdBy,
	})
}

// LogError appends to the flat error list. It does not change any status.
func (r *Recorder) LogError(agentID, stepID, kind, message string, recoverable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.trace == nil {
		return
	}
	r.trace.Errors = append(r.trace.Errors, ErrorRecord{
		AgentID:     agentID,
		StepID:      stepID,
		Type:        kind,
		Message:     message,
		Recoverable: recoverable,
		Timestamp:   time.Now().UTC(),
	})
}

// EndAgent closes the AgentTrace with the given terminal status.
func (r *Recorder) EndAgent(agentID string, status AgentStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.trace == nil {
		return
	}
	at := r.runningAgentLocked(agentID)
	if at == nil {
		return
	}
	now := time.Now().UTC()
	at.Status = status
	at.EndedAt = &now
}

// EndRun computes the Summary, stamps end time and duration, and writes the
// Trace to the canonical path, creating parent directories as needed. The
// artefact is written exactly once; subsequent calls return the path of the
// already-written file.
func (r *Recorder) EndRun(status RunStatus) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.trace == nil {
		return "", errors.New("trace: run not started")
	}
	path := r.pathLocked()
	if r.written {
		return path, nil
	}
	now := time.Now().UTC()
	r.trace.Status = status
	r.trace.EndedAt = &now
	r.trace.DurationMS = now.Sub(r.trace.StartedAt).Milliseconds()
	r.trace.Summary = r.trace.ComputeSummary()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("trace: create trace dir: %w", err)
	}
	data, err := json.MarshalIndent(r.trace, "", "  ")
	if err != nil {
		return "", fmt.Errorf("trace: marshal trace: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("trace: write trace: %w", err)
	}
	r.written = true
	return path, nil
}

// Path returns the canonical artefact path for this run.
func (r *Recorder) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pathLocked()
}

// Snapshot returns a deep copy of the current Trace for status reporting.
func (r *Recorder) Snapshot() *Trace {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.trace == nil {
		return nil
	}
	data, err := json.Marshal(r.trace)
	if err != nil {
		return nil
	}
	var cp Trace
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil
	}
	return &cp
}

func (r *Recorder) pathLocked() string {
	if r.trace == nil {
		return ""
	}
	return filepath.Join(r.root, r.trace.ProjectID, r.trace.RunID, "trace.json")
}

// runningAgentLocked returns the AgentTrace for agentID if its status is
// RUNNING, scanning from the tail since the live agent is the latest.
func (r *Recorder) runningAgentLocked(agentID string) *AgentTrace {
	for i := len(r.trace.Agents) - 1; i >= 0; i-- {
		at := &r.trace.Agents[i]
		if at.AgentID == agentID && at.Status == AgentRunning {
			return at
		}
	}
	return nil
}
