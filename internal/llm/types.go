// Package llm defines the uniform LLM call surface and the policy-driven
// Router that selects a provider, retries with exponential backoff, and
// falls back across providers in order.
package llm

import (
	"context"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of conversation sent to a provider.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request carries everything a provider needs for one generate call.
// Temperature and MaxTokens come from the agent's llm config; Timeout from
// the routing policy.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// Response is a single successful provider completion. Created by an
// adapter and never mutated afterwards; the Router stamps Attempt and
// FallbackFrom before handing it on.
type Response struct {
	Content      string `json:"content"`
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	TokensInput  int    `json:"tokens_input"`
	TokensOutput int    `json:"tokens_output"`
	LatencyMS    int64  `json:"latency_ms"`
	FinishReason string `json:"finish_reason"`
	// Attempt is the attempt number within the responding provider.
	Attempt int `json:"attempt"`
	// FallbackFrom names the primary spec this response fell back from,
	// empty when the primary itself responded.
	FallbackFrom string `json:"fallback_from,omitempty"`
	// TokensEstimated marks token counts derived from a character-count
	// heuristic rather than reported by the provider.
	TokensEstimated bool `json:"tokens_estimated,omitempty"`
}

// Provider is the uniform adapter surface over heterogeneous LLM APIs.
// Implementations must be safe for concurrent callers and must not retry
// internally; retry and fallback discipline belongs to the Router.
type Provider interface {
	// Name returns the stable lowercase provider identifier.
	Name() string

	// Available reports whether credentials and dependencies are present.
	Available() bool

	// Generate performs one completion call. Failures carry provider,
	// model, message, and a recoverable classification via *ProviderError.
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// Registry resolves provider adapters by name. The adapter cache behind it
// is read-only after first insertion and shared across concurrent runs.
type Registry interface {
	Get(name string) (Provider, bool)
}

// Policy is the routing policy applied by the Router.
type Policy struct {
	// Primary is the "<provider>/<model>" pair tried first.
	Primary string
	// Retry bounds attempts against the primary (>= 1).
	Retry int
	// RetryDelay is the base backoff; attempt k sleeps RetryDelay * 2^(k-1).
	RetryDelay time.Duration
	// Fallback pairs are each tried exactly once, in order.
	Fallback []string
	// Timeout bounds each provider call.
	Timeout time.Duration
}
