// Package config loads and validates project and preset files.
//
// Projects and presets are YAML by default; .json and .json5 files are
// accepted and parsed with the JSON5 reader. Environment variables are
// expanded before parse. Specs are immutable after load.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Defaults applied when a preset uses the legacy provider/model form.
const (
	LegacyRetry      = 3
	LegacyRetryDelay = 1.0
	LegacyTimeout    = 60.0
)

// ExecutionModeSequential is the only execution mode the engine runs.
const ExecutionModeSequential = "sequential"

// ProjectSpec describes one runnable project. Immutable during a run.
type ProjectSpec struct {
	ProjectID string          `yaml:"project_id" json:"project_id"`
	Execution ExecutionConfig `yaml:"execution" json:"execution"`
	Agents    []AgentSpec     `yaml:"agents" json:"agents"`
}

// ExecutionConfig carries the execution-mode tag.
type ExecutionConfig struct {
	Mode string `yaml:"mode" json:"mode"`
}

// AgentSpec describes one agent in a project.
type AgentSpec struct {
	ID           string         `yaml:"id" json:"id"`
	Preset       string         `yaml:"preset" json:"preset"`
	Purpose      string         `yaml:"purpose" json:"purpose"`
	Inputs       map[string]any `yaml:"inputs" json:"inputs"`
	Dependencies []string       `yaml:"dependencies" json:"dependencies"`
	OutputPolicy *OutputPolicy  `yaml:"output_policy" json:"output_policy"`
}

// PresetSpec is a reusable agent configuration loaded from disk.
type PresetSpec struct {
	ID           string        `yaml:"id" json:"id"`
	Role         string        `yaml:"role" json:"role"`
	SystemPrompt string        `yaml:"system_prompt" json:"system_prompt"`
	Tools        []string      `yaml:"tools" json:"tools"`
	LLM          LLMConfig     `yaml:"llm" json:"llm"`
	OutputPolicy *OutputPolicy `yaml:"output_policy" json:"output_policy"`
}

// LLMConfig is the llm block of a preset. Either Policy or the legacy
// Provider+Model pair must be present; the loader promotes the legacy form
// to a single-entry policy.
type LLMConfig struct {
	Policy      *PolicyConfig `yaml:"policy" json:"policy"`
	Provider    string        `yaml:"provider" json:"provider"`
	Model       string        `yaml:"model" json:"model"`
	Temperature float32       `yaml:"temperature" json:"temperature"`
	MaxTokens   int           `yaml:"max_tokens" json:"max_tokens"`
}

// PolicyConfig is the routing policy: primary provider/model pair, bounded
// retry with exponential backoff, and an ordered fallback list.
type PolicyConfig struct {
	Primary    string   `yaml:"primary" json:"primary"`
	Retry      int      `yaml:"retry" json:"retry"`
	RetryDelay float64  `yaml:"retry_delay" json:"retry_delay"`
	Fallback   []string `yaml:"fallback" json:"fallback"`
	Timeout    float64  `yaml:"timeout" json:"timeout"`
}

// RetryDelayDuration returns the base backoff delay as a duration.
func (p *PolicyConfig) RetryDelayDuration() time.Duration {
	return time.Duration(p.RetryDelay * float64(time.Second))
}

// TimeoutDuration returns the per-call timeout as a duration.
func (p *PolicyConfig) TimeoutDuration() time.Duration {
	return time.Duration(p.Timeout * float64(time.Second))
}

// OutputPolicy optionally constrains agent output. Format "json" requests
// JSON extraction; RequiredFields are checked for presence only, and a
// missing field is a warning, not a failure.
type OutputPolicy struct {
	Format         string   `yaml:"format" json:"format"`
	RequiredFields []string `yaml:"required_fields" json:"required_fields"`
}

// SplitModelSpec parses a "<provider>/<model>" pair.
func SplitModelSpec(spec string) (provider, model string, err error) {
	provider, model, ok := strings.Cut(spec, "/")
	if !ok || strings.TrimSpace(provider) == "" || strings.TrimSpace(model) == "" {
		return "", "", fmt.Errorf("invalid provider/model spec %q", spec)
	}
	return strings.TrimSpace(provider), strings.TrimSpace(model), nil
}
