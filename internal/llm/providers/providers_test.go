package providers

import (
	"context"
	"strings"
	"testing"

	"github.com/nexous-ai/nexous/internal/llm"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status          int
		wantRecoverable bool
		wantOK          bool
	}{
		{0, false, false},
		{400, false, true},
		{401, false, true},
		{404, false, true},
		{429, true, true},
		{500, true, true},
		{502, true, true},
		{529, true, true},
	}
	for _, tt := range tests {
		rec, ok := classifyStatus(tt.status)
		if rec != tt.wantRecoverable || ok != tt.wantOK {
			t.Errorf("classifyStatus(%d) = (%t, %t), want (%t, %t)",
				tt.status, rec, ok, tt.wantRecoverable, tt.wantOK)
		}
	}
}

func TestRegistryHoldsThreeAdapters(t *testing.T) {
	r := NewRegistry(nil)
	for _, name := range []string{"openai", "anthropic", "gemini"} {
		if _, ok := r.Get(name); !ok {
			t.Errorf("adapter %q not registered", name)
		}
	}
	if _, ok := r.Get("mistral"); ok {
		t.Error("unexpected adapter registered")
	}
}

func TestAdaptersUnavailableWithoutKey(t *testing.T) {
	if NewOpenAI("").Available() {
		t.Error("openai available without key")
	}
	if NewAnthropic("").Available() {
		t.Error("anthropic available without key")
	}
	if NewGemini("", nil).Available() {
		t.Error("gemini available without key")
	}
}

func TestAdapterMissingKeyIsTerminal(t *testing.T) {
	p := NewOpenAI("")
	_, err := p.Generate(context.Background(), &llm.Request{Model: "gpt-4o"})
	if err == nil {
		t.Fatal("expected error")
	}
	if llm.IsRecoverable(err) {
		t.Fatal("missing credentials must be terminal")
	}
}

func TestAdapterUnknownModelIsTerminal(t *testing.T) {
	p := NewOpenAI("test-key")
	_, err := p.Generate(context.Background(), &llm.Request{Model: "gpt-99"})
	if err == nil {
		t.Fatal("expected error")
	}
	if llm.IsRecoverable(err) {
		t.Fatal("unknown model must be terminal so retries are not consumed")
	}
	if !strings.Contains(err.Error(), "gpt-99") {
		t.Fatalf("error should name the model: %v", err)
	}
}

func TestFoldMessages(t *testing.T) {
	got := FoldMessages([]llm.Message{
		{Role: llm.RoleSystem, Content: "be brief"},
		{Role: llm.RoleUser, Content: "hello"},
		{Role: llm.RoleAssistant, Content: "hi"},
	})
	want := "System: be brief\n\nUser: hello\n\nAssistant: hi"
	if got != want {
		t.Fatalf("FoldMessages = %q, want %q", got, want)
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"ab", 1},
		{"abcd", 1},
		{"abcdefgh", 2},
		{strings.Repeat("x", 400), 100},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.in); got != tt.want {
			t.Errorf("EstimateTokens(%d chars) = %d, want %d", len(tt.in), got, tt.want)
		}
	}
}
