package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/nexous-ai/nexous/internal/config"
)

// Placeholder stands in for an Agent when real LLM calls are disabled. It
// produces a deterministic stub result without touching the router or the
// tool registry, so dry runs exercise the full orchestration path.
type Placeholder struct {
	spec   config.AgentSpec
	preset config.PresetSpec
}

// NewPlaceholder binds a spec and preset for stub execution.
func NewPlaceholder(spec config.AgentSpec, preset config.PresetSpec) *Placeholder {
	return &Placeholder{spec: spec, preset: preset}
}

// ID returns the agent id from the spec.
func (p *Placeholder) ID() string { return p.spec.ID }

// Execute returns the deterministic stub result.
func (p *Placeholder) Execute(_ context.Context, ec Context) (*Result, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "[placeholder] agent %s (%s): %s", p.spec.ID, p.preset.Role, p.spec.Purpose)
	if len(ec.PreviousIDs) > 0 {
		fmt.Fprintf(&b, " [after: %s]", strings.Join(ec.PreviousIDs, ", "))
	}

	result := &Result{
		AgentID:  p.spec.ID,
		Status:   "success",
		Content:  b.String(),
		Provider: "placeholder",
		Model:    "placeholder",
	}

	pol := p.spec.OutputPolicy
	if pol == nil {
		pol = p.preset.OutputPolicy
	}
	if pol != nil && strings.EqualFold(pol.Format, "json") {
		output := make(map[string]any, len(pol.RequiredFields))
		for _, f := range pol.RequiredFields {
			output[f] = fmt.Sprintf("placeholder:%s", f)
		}
		result.Output = output
	}
	return result, nil
}
