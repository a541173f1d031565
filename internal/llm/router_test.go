package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nexous-ai/nexous/internal/trace"
)

// scriptedProvider returns canned outcomes in order, then repeats the last.
type scriptedProvider struct {
	name      string
	available bool
	outcomes  []outcome
	calls     int
}

type outcome struct {
	resp *Response
	err  error
}

func (p *scriptedProvider) Name() string    { return p.name }
func (p *scriptedProvider) Available() bool { return p.available }

func (p *scriptedProvider) Generate(_ context.Context, req *Request) (*Response, error) {
	i := p.calls
	if i >= len(p.outcomes) {
		i = len(p.outcomes) - 1
	}
	p.calls++
	o := p.outcomes[i]
	if o.err != nil {
		return nil, o.err
	}
	resp := *o.resp
	resp.Model = req.Model
	return &resp, nil
}

type fakeRegistry map[string]Provider

func (r fakeRegistry) Get(name string) (Provider, bool) {
	p, ok := r[name]
	return p, ok
}

func ok(content string) outcome {
	return outcome{resp: &Response{
		Content: content, Provider: "", TokensInput: 10, TokensOutput: 5,
		LatencyMS: 50, FinishReason: "stop",
	}}
}

func recoverable(msg string) outcome {
	return outcome{err: &ProviderError{Provider: "openai", Model: "gpt-4o", Message: msg, Recoverable: true}}
}

func terminal(msg string) outcome {
	return outcome{err: &ProviderError{Provider: "openai", Model: "gpt-4o", Message: msg}}
}

func newTestRecorder(t *testing.T) *trace.Recorder {
	t.Helper()
	rec := trace.NewRecorder(t.TempDir(), nil)
	if err := rec.StartRun("proj", "run", "sequential"); err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if err := rec.StartAgent("agent1", "preset", ""); err != nil {
		t.Fatalf("StartAgent: %v", err)
	}
	return rec
}

func llmSteps(t *testing.T, rec *trace.Recorder) []trace.StepRecord {
	t.Helper()
	snap := rec.Snapshot()
	if snap == nil || len(snap.Agents) == 0 {
		t.Fatal("no agents in trace")
	}
	var steps []trace.StepRecord
	for _, s := range snap.Agents[0].Steps {
		if s.Type == trace.StepLLM {
			steps = append(steps, s)
		}
	}
	return steps
}

func TestRouterRetryThenSuccess(t *testing.T) {
	provider := &scriptedProvider{
		name: "openai", available: true,
		outcomes: []outcome{recoverable("429 rate limited"), recoverable("timeout"), ok("third time")},
	}
	rec := newTestRecorder(t)
	r := NewRouter(fakeRegistry{"openai": provider}, rec, nil, nil)

	var slept []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	pol := Policy{Primary: "openai/gpt-4o", Retry: 3, RetryDelay: 10 * time.Millisecond}
	resp, err := r.Generate(context.Background(), "agent1", pol, nil, 0, 0)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Content != "third time" || resp.Attempt != 3 {
		t.Fatalf("resp = %+v", resp)
	}
	if len(r.Attempts()) != 3 {
		t.Fatalf("attempts = %d, want 3", len(r.Attempts()))
	}
	if len(slept) != 2 || slept[0] != 10*time.Millisecond || slept[1] != 20*time.Millisecond {
		t.Fatalf("backoff = %v, want [10ms 20ms]", slept)
	}

	steps := llmSteps(t, rec)
	if len(steps) != 1 || steps[0].Status != trace.StepOK {
		t.Fatalf("llm steps = %+v", steps)
	}
	// Snapshot round-trips through JSON, so numbers come back as float64.
	if steps[0].Metadata["attempt"] != float64(3) {
		t.Fatalf("step metadata = %+v", steps[0].Metadata)
	}
}

func TestRouterFallback(t *testing.T) {
	primary := &scriptedProvider{
		name: "openai", available: true,
		outcomes: []outcome{terminal("invalid api key")},
	}
	fallback := &scriptedProvider{
		name: "anthropic", available: true,
		outcomes: []outcome{ok("from fallback")},
	}
	rec := newTestRecorder(t)
	r := NewRouter(fakeRegistry{"openai": primary, "anthropic": fallback}, rec, nil, nil)

	pol := Policy{
		Primary:  "openai/gpt-4o",
		Retry:    1,
		Fallback: []string{"anthropic/claude-3-5-sonnet-20241022"},
	}
	resp, err := r.Generate(context.Background(), "agent1", pol, nil, 0, 0)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.FallbackFrom != "openai/gpt-4o" {
		t.Fatalf("fallback_from = %q", resp.FallbackFrom)
	}
	if primary.calls != 1 {
		t.Fatalf("primary called %d times, terminal error should stop retries", primary.calls)
	}

	steps := llmSteps(t, rec)
	if len(steps) != 1 || steps[0].Status != trace.StepOK {
		t.Fatalf("llm steps = %+v", steps)
	}
	md := steps[0].Metadata
	if md["is_fallback"] != true || md["fallback_from"] != "openai/gpt-4o" {
		t.Fatalf("metadata = %+v", md)
	}
}

func TestRouterAllFailed(t *testing.T) {
	primary := &scriptedProvider{
		name: "openai", available: true,
		outcomes: []outcome{terminal("invalid api key")},
	}
	fallback := &scriptedProvider{
		name: "anthropic", available: true,
		outcomes: []outcome{{err: &ProviderError{Provider: "anthropic", Model: "claude-3-5-sonnet-20241022", Message: "overloaded", Recoverable: true}}},
	}
	rec := newTestRecorder(t)
	r := NewRouter(fakeRegistry{"openai": primary, "anthropic": fallback}, rec, nil, nil)

	pol := Policy{
		Primary:  "openai/gpt-4o",
		Retry:    1,
		Fallback: []string{"anthropic/claude-3-5-sonnet-20241022"},
	}
	_, err := r.Generate(context.Background(), "agent1", pol, nil, 0, 0)
	if err == nil {
		t.Fatal("expected all-failed error")
	}
	var afe *AllFailedError
	if !errors.As(err, &afe) {
		t.Fatalf("expected *AllFailedError, got %T: %v", err, err)
	}
	if len(afe.Attempts) != 2 {
		t.Fatalf("attempts = %d, want 2", len(afe.Attempts))
	}
	if afe.ErrorKind() != trace.KindLLMAllFailed {
		t.Fatalf("kind = %q", afe.ErrorKind())
	}

	steps := llmSteps(t, rec)
	if len(steps) != 1 || steps[0].Status != trace.StepError {
		t.Fatalf("llm steps = %+v", steps)
	}
	attempts, okCast := steps[0].Metadata["attempts"].([]any)
	if !okCast || len(attempts) != 2 {
		t.Fatalf("attempts metadata = %#v", steps[0].Metadata["attempts"])
	}
}

func TestRouterUnavailablePrimarySingleAttempt(t *testing.T) {
	primary := &scriptedProvider{name: "openai", available: false}
	rec := newTestRecorder(t)
	r := NewRouter(fakeRegistry{"openai": primary}, rec, nil, nil)

	pol := Policy{Primary: "openai/gpt-4o", Retry: 1}
	_, err := r.Generate(context.Background(), "agent1", pol, nil, 0, 0)
	var afe *AllFailedError
	if !errors.As(err, &afe) {
		t.Fatalf("expected *AllFailedError, got %T: %v", err, err)
	}
	if len(afe.Attempts) != 1 {
		t.Fatalf("attempts = %d, want 1", len(afe.Attempts))
	}
	if primary.calls != 0 {
		t.Fatal("unavailable provider should not be called")
	}
}

func TestRouterUnavailablePrimaryStillTriesFallback(t *testing.T) {
	primary := &scriptedProvider{name: "openai", available: false}
	fallback := &scriptedProvider{
		name: "anthropic", available: true,
		outcomes: []outcome{ok("rescued")},
	}
	rec := newTestRecorder(t)
	r := NewRouter(fakeRegistry{"openai": primary, "anthropic": fallback}, rec, nil, nil)

	pol := Policy{
		Primary:  "openai/gpt-4o",
		Retry:    3,
		Fallback: []string{"anthropic/claude-3-5-sonnet-20241022"},
	}
	resp, err := r.Generate(context.Background(), "agent1", pol, nil, 0, 0)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Content != "rescued" {
		t.Fatalf("resp = %+v", resp)
	}
	// Unavailability is terminal for the primary: one attempt, not three.
	if len(r.Attempts()) != 2 {
		t.Fatalf("attempts = %d, want 2", len(r.Attempts()))
	}
}

func TestRouterCancelledDuringBackoff(t *testing.T) {
	primary := &scriptedProvider{
		name: "openai", available: true,
		outcomes: []outcome{recoverable("timeout")},
	}
	rec := newTestRecorder(t)
	r := NewRouter(fakeRegistry{"openai": primary}, rec, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	r.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	pol := Policy{Primary: "openai/gpt-4o", Retry: 3, RetryDelay: time.Millisecond}
	_, err := r.Generate(ctx, "agent1", pol, nil, 0, 0)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello world", 5, "hello..."},
		{"héllo wörld", 5, "héllo..."},
		{"anything", 0, ""},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
