// Package providers implements the concrete LLM provider adapters behind
// the uniform llm.Provider surface: openai, anthropic, and gemini.
//
// Adapters never retry internally; retry and fallback belong to the
// Router. Each adapter holds a closed allow-list of model names; an
// unknown model is a terminal error that consumes no retries.
package providers

import (
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/nexous-ai/nexous/internal/llm"
)

// Environment variables adapters read credentials from.
const (
	EnvOpenAIKey    = "OPENAI_API_KEY"
	EnvAnthropicKey = "ANTHROPIC_API_KEY"
	EnvGoogleKey    = "GOOGLE_API_KEY"
	EnvGeminiKey    = "GEMINI_API_KEY"
)

// Registry is the adapter cache keyed by provider name. Read-only after
// construction and safe to share across concurrent runs; the underlying
// HTTP clients are safe for concurrent callers.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]llm.Provider
}

// NewRegistry constructs the three built-in adapters from the environment.
// An adapter missing its credential still registers; it reports
// Available() == false and the Router moves on to fallbacks.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	googleKey := os.Getenv(EnvGoogleKey)
	if googleKey == "" {
		googleKey = os.Getenv(EnvGeminiKey)
	}
	r := &Registry{adapters: make(map[string]llm.Provider)}
	r.Register(NewOpenAI(os.Getenv(EnvOpenAIKey)))
	r.Register(NewAnthropic(os.Getenv(EnvAnthropicKey)))
	r.Register(NewGemini(googleKey, logger))
	return r
}

// NewEmptyRegistry creates a registry with no adapters, for tests that
// register fakes.
func NewEmptyRegistry() *Registry {
	return &Registry{adapters: make(map[string]llm.Provider)}
}

// Register adds or replaces an adapter under its own name.
func (r *Registry) Register(p llm.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[p.Name()] = p
}

// Get resolves an adapter by provider name.
func (r *Registry) Get(name string) (llm.Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.adapters[name]
	return p, ok
}

// classifyStatus maps an HTTP status to recoverability. The second return
// is false when the status carries no signal.
func classifyStatus(status int) (recoverable, ok bool) {
	switch {
	case status == 0:
		return false, false
	case status == http.StatusTooManyRequests:
		return true, true
	case status >= 500:
		return true, true
	default:
		return false, true
	}
}
