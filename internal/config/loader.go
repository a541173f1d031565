package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"

	"github.com/nexous-ai/nexous/internal/trace"
)

// parseFile reads a spec file, expands environment variables, and
// unmarshals it into out. The parser is chosen by file extension.
func parseFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return parseError(path, err)
	}
	expanded := []byte(os.ExpandEnv(string(data)))
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".json5":
		if err := json5.Unmarshal(expanded, out); err != nil {
			return parseError(path, err)
		}
	default:
		if err := yaml.Unmarshal(expanded, out); err != nil {
			return parseError(path, err)
		}
	}
	return nil
}

// LoadProject loads and validates a project spec. The project id defaults
// to the file stem when absent.
func LoadProject(path string) (*ProjectSpec, error) {
	var p ProjectSpec
	if err := parseFile(path, &p); err != nil {
		return nil, err
	}
	if p.ProjectID == "" {
		p.ProjectID = fileStem(path)
	}
	if len(p.Agents) == 0 {
		return nil, schemaError(path, "project must declare at least one agent")
	}
	if p.Execution.Mode == "" {
		p.Execution.Mode = ExecutionModeSequential
	}
	if p.Execution.Mode != ExecutionModeSequential {
		return nil, schemaError(path, fmt.Sprintf("unsupported execution mode %q", p.Execution.Mode))
	}
	seen := make(map[string]bool, len(p.Agents))
	for i, a := range p.Agents {
		if strings.TrimSpace(a.ID) == "" {
			return nil, schemaError(path, fmt.Sprintf("agents[%d]: missing id", i))
		}
		if strings.TrimSpace(a.Preset) == "" {
			return nil, schemaError(path, fmt.Sprintf("agent %q: missing preset", a.ID))
		}
		if seen[a.ID] {
			return nil, schemaError(path, fmt.Sprintf("duplicate agent id %q", a.ID))
		}
		seen[a.ID] = true
	}
	return &p, nil
}

// LoadPreset loads and validates a single preset file. The preset id
// defaults to the file stem. A legacy provider+model llm block is promoted
// to a single-entry policy with empty fallback, retry=3, delay=1.0 and
// timeout=60.
func LoadPreset(path string) (*PresetSpec, error) {
	var p PresetSpec
	if err := parseFile(path, &p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		p.ID = fileStem(path)
	}
	if strings.TrimSpace(p.Role) == "" {
		return nil, presetLoadError(path, "preset must declare role")
	}
	if strings.TrimSpace(p.SystemPrompt) == "" {
		return nil, presetLoadError(path, "preset must declare system_prompt")
	}
	switch {
	case p.LLM.Policy != nil:
		if strings.TrimSpace(p.LLM.Policy.Primary) == "" {
			return nil, presetLoadError(path, "llm.policy.primary is required")
		}
		if _, _, err := SplitModelSpec(p.LLM.Policy.Primary); err != nil {
			return nil, presetLoadError(path, err.Error())
		}
		if p.LLM.Policy.Retry < 1 {
			p.LLM.Policy.Retry = 1
		}
	case p.LLM.Provider != "" && p.LLM.Model != "":
		p.LLM.Policy = &PolicyConfig{
			Primary:    p.LLM.Provider + "/" + p.LLM.Model,
			Retry:      LegacyRetry,
			RetryDelay: LegacyRetryDelay,
			Timeout:    LegacyTimeout,
		}
	default:
		return nil, presetLoadError(path, "llm requires either policy.primary or provider+model")
	}
	for _, f := range p.LLM.Policy.Fallback {
		if _, _, err := SplitModelSpec(f); err != nil {
			return nil, presetLoadError(path, err.Error())
		}
	}
	return &p, nil
}

// PresetStore holds the presets loaded once at run start. Read-only after
// load and safe to share between concurrent runs.
type PresetStore struct {
	presets map[string]*PresetSpec
}

// LoadPresetDir loads every preset file in dir (non-recursive). Unknown
// extensions are skipped.
func LoadPresetDir(dir string) (*PresetStore, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &Error{Kind: trace.KindPresetLoad, Path: dir, Msg: err.Error(), Err: err}
	}
	store := &PresetStore{presets: make(map[string]*PresetSpec)}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml", ".json", ".json5":
		default:
			continue
		}
		p, err := LoadPreset(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		if _, dup := store.presets[p.ID]; dup {
			return nil, presetLoadError(filepath.Join(dir, e.Name()), fmt.Sprintf("duplicate preset id %q", p.ID))
		}
		store.presets[p.ID] = p
	}
	return store, nil
}

// Get resolves a preset by id.
func (s *PresetStore) Get(id string) (*PresetSpec, error) {
	p, ok := s.presets[id]
	if !ok {
		return nil, PresetNotFoundError(id)
	}
	return p, nil
}

// IDs returns the loaded preset ids in sorted order.
func (s *PresetStore) IDs() []string {
	ids := make([]string, 0, len(s.presets))
	for id := range s.presets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func fileStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
