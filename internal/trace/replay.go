package trace

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
)

// Load reads a trace.json artefact from disk.
func Load(path string) (*Trace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("trace: read %s: %w", path, err)
	}
	var t Trace
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("trace: parse %s: %w", path, err)
	}
	if t.SchemaVersion == "" {
		return nil, fmt.Errorf("trace: %s: missing schema_version", path)
	}
	return &t, nil
}

// Validate checks structural invariants of a loaded trace: schema version,
// terminal status, step ids present, and summary counts matching contents.
func Validate(t *Trace) []string {
	var problems []string
	if t.SchemaVersion != SchemaVersion {
		problems = append(problems, fmt.Sprintf("unexpected schema_version %q", t.SchemaVersion))
	}
	if t.Status == RunRunning {
		problems = append(problems, "trace status is still RUNNING")
	}
	for _, at := range t.Agents {
		if at.Status != AgentIdle && len(at.Steps) == 0 {
			problems = append(problems, fmt.Sprintf("agent %s has status %s but no steps", at.AgentID, at.Status))
		}
		for _, s := range at.Steps {
			if s.StepID == "" {
				problems = append(problems, fmt.Sprintf("agent %s has a step without step_id", at.AgentID))
			}
		}
	}
	if t.Summary != nil {
		want := t.ComputeSummary()
		if *t.Summary != *want {
			problems = append(problems, fmt.Sprintf("summary does not match contents: have %+v want %+v", *t.Summary, *want))
		}
	}
	return problems
}

// Replay writes the run's events to w in recorded order, one line per
// event, for eyeballing what an agent did and when.
func Replay(t *Trace, w io.Writer) error {
	if _, err := fmt.Fprintf(w, "run %s project %s status %s mode %s\n",
		t.RunID, t.ProjectID, t.Status, t.ExecutionMode); err != nil {
		return err
	}
	for _, at := range t.Agents {
		fmt.Fprintf(w, "agent %s (%s) %s\n", at.AgentID, at.PresetID, at.Status)
		for _, s := range at.Steps {
			fmt.Fprintf(w, "  %s %s %s %s\n",
				s.Timestamp.Format("15:04:05.000"), s.StepID, s.Type, s.Status)
		}
	}
	for _, e := range t.Errors {
		fmt.Fprintf(w, "error [%s] agent=%s step=%s recoverable=%t: %s\n",
			e.Type, e.AgentID, e.StepID, e.Recoverable, e.Message)
	}
	if t.Summary != nil {
		fmt.Fprintf(w, "summary agents=%d completed=%d failed=%d llm_calls=%d tool_calls=%d tokens=%d duration_ms=%d\n",
			t.Summary.TotalAgents, t.Summary.CompletedAgents, t.Summary.FailedAgents,
			t.Summary.TotalLLMCalls, t.Summary.TotalToolCalls, t.Summary.TotalTokens,
			t.Summary.TotalDurationMS)
	}
	return nil
}

// Diff compares two traces and returns a human-readable list of
// differences. An empty result means the traces are observably equivalent
// (timestamps and durations are ignored).
func Diff(a, b *Trace) []string {
	var diffs []string
	if a.ProjectID != b.ProjectID {
		diffs = append(diffs, fmt.Sprintf("project_id: %s vs %s", a.ProjectID, b.ProjectID))
	}
	if a.Status != b.Status {
		diffs = append(diffs, fmt.Sprintf("status: %s vs %s", a.Status, b.Status))
	}
	aAgents := agentIndex(a)
	bAgents := agentIndex(b)
	for _, id := range sortedKeys(aAgents) {
		at := aAgents[id]
		bt, ok := bAgents[id]
		if !ok {
			diffs = append(diffs, fmt.Sprintf("agent %s: only in first trace", id))
			continue
		}
		if at.Status != bt.Status {
			diffs = append(diffs, fmt.Sprintf("agent %s status: %s vs %s", id, at.Status, bt.Status))
		}
		if len(at.Steps) != len(bt.Steps) {
			diffs = append(diffs, fmt.Sprintf("agent %s steps: %d vs %d", id, len(at.Steps), len(bt.Steps)))
			continue
		}
		for i := range at.Steps {
			as, bs := at.Steps[i], bt.Steps[i]
			if as.Type != bs.Type || as.Status != bs.Status {
				diffs = append(diffs, fmt.Sprintf("agent %s step %d: %s/%s vs %s/%s",
					id, i+1, as.Type, as.Status, bs.Type, bs.Status))
			}
		}
	}
	for _, id := range sortedKeys(bAgents) {
		if _, ok := aAgents[id]; !ok {
			diffs = append(diffs, fmt.Sprintf("agent %s: only in second trace", id))
		}
	}
	if len(a.Errors) != len(b.Errors) {
		diffs = append(diffs, fmt.Sprintf("errors: %d vs %d", len(a.Errors), len(b.Errors)))
	}
	return diffs
}

func agentIndex(t *Trace) map[string]*AgentTrace {
	m := make(map[string]*AgentTrace, len(t.Agents))
	for i := range t.Agents {
		m[t.Agents[i].AgentID] = &t.Agents[i]
	}
	return m
}

func sortedKeys(m map[string]*AgentTrace) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
