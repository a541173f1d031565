package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nexous-ai/nexous/internal/config"
	"github.com/nexous-ai/nexous/internal/observability"
	"github.com/nexous-ai/nexous/internal/trace"
)

// contentPreviewLen bounds the response summary stored in step payloads.
const contentPreviewLen = 200

// Router applies a Policy to produce exactly one successful Response or an
// AllFailedError. The primary is tried with bounded retry and exponential
// backoff; fallbacks are each tried exactly once, in order. The fallback
// order is itself the retry strategy.
//
// The Router writes one LLM step to the recorder per successful call, and
// a single ERROR step carrying the full attempt list when every provider
// fails. Failed attempts in between are kept only in the in-memory
// attempts list. A Router serves one agent call at a time.
type Router struct {
	registry Registry
	rec      *trace.Recorder
	log      *slog.Logger
	metrics  *observability.Metrics
	attempts []Attempt

	// sleep is swapped out by tests; the default honours cancellation.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRouter creates a Router over the given adapter registry. The recorder
// receives one step per routed outcome; metrics may be nil.
func NewRouter(registry Registry, rec *trace.Recorder, logger *slog.Logger, metrics *observability.Metrics) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		registry: registry,
		rec:      rec,
		log:      logger,
		metrics:  metrics,
		sleep:    sleepCtx,
	}
}

// Attempts returns the attempt list of the most recent Generate call.
func (r *Router) Attempts() []Attempt {
	return r.attempts
}

// Generate routes one completion for the named agent. Temperature and
// maxTokens come from the agent's llm config, not the policy.
func (r *Router) Generate(ctx context.Context, agentID string, pol Policy, messages []Message, temperature float32, maxTokens int) (*Response, error) {
	r.attempts = r.attempts[:0]

	primaryProvider, primaryModel, err := config.SplitModelSpec(pol.Primary)
	if err != nil {
		return nil, &AllFailedError{Primary: pol.Primary, Attempts: r.attempts}
	}
	retry := pol.Retry
	if retry < 1 {
		retry = 1
	}

	// Primary with bounded retry.
	for attempt := 1; attempt <= retry; attempt++ {
		resp, callErr := r.try(ctx, primaryProvider, primaryModel, attempt, false, pol, messages, temperature, maxTokens)
		if callErr == nil {
			resp.Attempt = attempt
			r.recordSuccess(agentID, resp, pol.Primary, false)
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !IsRecoverable(callErr) {
			r.log.Warn("primary failed terminally",
				"agent_id", agentID, "provider", primaryProvider, "model", primaryModel,
				"attempt", attempt, "error", callErr)
			break
		}
		if attempt < retry {
			backoff := pol.RetryDelay * (1 << (attempt - 1))
			r.log.Debug("primary failed, backing off",
				"agent_id", agentID, "provider", primaryProvider,
				"attempt", attempt, "backoff", backoff)
			if err := r.sleep(ctx, backoff); err != nil {
				return nil, err
			}
		}
	}

	// Ordered fallback, one attempt each.
	for _, spec := range pol.Fallback {
		fbProvider, fbModel, err := config.SplitModelSpec(spec)
		if err != nil {
			r.attempts = append(r.attempts, Attempt{
				Provider: spec, Attempt: 1, Error: err.Error(), Fallback: true,
			})
			continue
		}
		resp, callErr := r.try(ctx, fbProvider, fbModel, 1, true, pol, messages, temperature, maxTokens)
		if callErr == nil {
			resp.Attempt = 1
			resp.FallbackFrom = pol.Primary
			r.recordSuccess(agentID, resp, pol.Primary, true)
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	allFailed := &AllFailedError{Primary: pol.Primary, Attempts: append([]Attempt(nil), r.attempts...)}
	attemptMaps := make([]map[string]any, len(allFailed.Attempts))
	for i, a := range allFailed.Attempts {
		attemptMaps[i] = map[string]any{
			"provider":    a.Provider,
			"model":       a.Model,
			"attempt":     a.Attempt,
			"error":       a.Error,
			"recoverable": a.Recoverable,
			"latency_ms":  a.LatencyMS,
			"is_fallback": a.Fallback,
		}
	}
	r.rec.LogStep(agentID, trace.StepLLM, trace.StepError,
		map[string]any{"error": allFailed.Error()},
		map[string]any{"primary": pol.Primary, "attempts": attemptMaps},
	)
	return nil, allFailed
}

// try performs a single provider call and appends its Attempt record.
func (r *Router) try(ctx context.Context, provider, model string, attempt int, fallback bool, pol Policy, messages []Message, temperature float32, maxTokens int) (*Response, error) {
	adapter, ok := r.registry.Get(provider)
	if !ok {
		err := (&ProviderError{Provider: provider, Model: model,
			Message: fmt.Sprintf("unknown provider %q", provider)}).Terminal()
		r.appendAttempt(provider, model, attempt, fallback, 0, err)
		return nil, err
	}
	if !adapter.Available() {
		err := (&ProviderError{Provider: provider, Model: model,
			Message: "provider not available: missing credentials or dependencies"}).Terminal()
		r.appendAttempt(provider, model, attempt, fallback, 0, err)
		return nil, err
	}

	start := time.Now()
	resp, err := adapter.Generate(ctx, &Request{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Timeout:     pol.Timeout,
	})
	latency := time.Since(start)

	if r.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		r.metrics.LLMRequestCounter.WithLabelValues(provider, model, status).Inc()
		r.metrics.LLMRequestDuration.WithLabelValues(provider, model).Observe(latency.Seconds())
	}
	if err != nil {
		r.appendAttempt(provider, model, attempt, fallback, latency.Milliseconds(), err)
		return nil, err
	}
	r.appendAttempt(provider, model, attempt, fallback, latency.Milliseconds(), nil)
	if r.metrics != nil {
		r.metrics.LLMTokensUsed.WithLabelValues(provider, model, "input").Add(float64(resp.TokensInput))
		r.metrics.LLMTokensUsed.WithLabelValues(provider, model, "output").Add(float64(resp.TokensOutput))
	}
	return resp, nil
}

func (r *Router) appendAttempt(provider, model string, attempt int, fallback bool, latencyMS int64, err error) {
	a := Attempt{
		Provider:  provider,
		Model:     model,
		Attempt:   attempt,
		Fallback:  fallback,
		LatencyMS: latencyMS,
	}
	if err != nil {
		a.Error = err.Error()
		a.Recoverable = IsRecoverable(err)
	}
	r.attempts = append(r.attempts, a)
}

// recordSuccess writes the single OK LLM step for a routed response.
func (r *Router) recordSuccess(agentID string, resp *Response, primary string, fallback bool) {
	metadata := map[string]any{
		"provider":      resp.Provider,
		"model":         resp.Model,
		"tokens_input":  resp.TokensInput,
		"tokens_output": resp.TokensOutput,
		"latency_ms":    resp.LatencyMS,
		"finish_reason": resp.FinishReason,
		"attempt":       resp.Attempt,
	}
	if fallback {
		metadata["is_fallback"] = true
		metadata["fallback_from"] = primary
	}
	if resp.TokensEstimated {
		metadata["tokens_estimated"] = true
	}
	r.rec.LogStep(agentID, trace.StepLLM, trace.StepOK,
		map[string]any{"content_preview": Truncate(resp.Content, contentPreviewLen)},
		metadata,
	)
}

// Truncate bounds s to max runes for step payloads.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

// sleepCtx sleeps for d, truncating the wait when ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
