package llm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nexous-ai/nexous/internal/trace"
)

// ProviderError is a structured failure from one provider call. Recoverable
// is set when the condition is expected to clear on retry (rate limit,
// transient timeout, quota); everything else (missing credentials, unknown
// model, malformed request) is terminal for that provider.
type ProviderError struct {
	Provider    string
	Model       string
	Message     string
	Recoverable bool
	Cause       error
}

func (e *ProviderError) Error() string {
	kind := "terminal"
	if e.Recoverable {
		kind = "recoverable"
	}
	return fmt.Sprintf("%s/%s: %s (%s)", e.Provider, e.Model, e.Message, kind)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// NewProviderError wraps cause with provider context, classifying
// recoverability from the error text.
func NewProviderError(provider, model string, cause error) *ProviderError {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &ProviderError{
		Provider:    provider,
		Model:       model,
		Message:     msg,
		Recoverable: recoverableMessage(msg),
		Cause:       cause,
	}
}

// Terminal forces the error non-recoverable regardless of message text.
func (e *ProviderError) Terminal() *ProviderError {
	e.Recoverable = false
	return e
}

// recoverableMessage reports whether the error text suggests a rate-limit,
// transient timeout, or quota condition.
func recoverableMessage(msg string) bool {
	s := strings.ToLower(msg)
	for _, marker := range []string{
		"rate limit", "rate_limit", "too many requests", "429",
		"timeout", "timed out", "deadline exceeded",
		"quota",
		"overloaded", "server error", "internal server",
		"500", "502", "503", "504", "529",
		"connection reset", "connection refused", "temporarily unavailable",
	} {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

// IsRecoverable reports whether err (or anything it wraps) is a provider
// error classified as recoverable. Unclassified errors are terminal.
func IsRecoverable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Recoverable
	}
	return false
}

// Attempt records one provider call made by the Router, successful or not.
type Attempt struct {
	Provider    string `json:"provider"`
	Model       string `json:"model"`
	Attempt     int    `json:"attempt"`
	Error       string `json:"error,omitempty"`
	Recoverable bool   `json:"recoverable"`
	LatencyMS   int64  `json:"latency_ms"`
	Fallback    bool   `json:"fallback,omitempty"`
}

// AllFailedError is the Router's terminal failure: the primary and every
// fallback were exhausted without a successful response.
type AllFailedError struct {
	Primary  string
	Attempts []Attempt
}

func (e *AllFailedError) Error() string {
	return fmt.Sprintf("all providers failed for primary %s after %d attempts", e.Primary, len(e.Attempts))
}

// ErrorKind tags the failure for the trace error list.
func (e *AllFailedError) ErrorKind() string { return trace.KindLLMAllFailed }
