package providers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/nexous-ai/nexous/internal/llm"
)

// geminiModels is the closed allow-list of accepted model names.
var geminiModels = map[string]bool{
	"gemini-2.0-flash": true,
	"gemini-2.5-pro":   true,
	"gemini-1.5-pro":   true,
	"gemini-1.5-flash": true,
}

// estimateCharsPerToken is the character-count heuristic used when the
// provider does not report usage; responses carry tokens_estimated=true.
const estimateCharsPerToken = 4

// Gemini adapts the Google Gen AI API. All message roles are folded into a
// single prompt string, and token counts are estimated with a
// characters-per-token heuristic rather than reported exactly.
type Gemini struct {
	client *genai.Client
	apiKey string
}

// NewGemini creates the adapter. An empty API key is allowed; the adapter
// then reports Available() == false. Client construction failure is logged
// and likewise surfaces as unavailable rather than as a load-time panic.
func NewGemini(apiKey string, logger *slog.Logger) *Gemini {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Gemini{apiKey: apiKey}
	if apiKey != "" {
		client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
			APIKey:  apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			logger.Warn("gemini client initialisation failed", "error", err)
		} else {
			p.client = client
		}
	}
	return p
}

// Name returns "gemini".
func (p *Gemini) Name() string { return "gemini" }

// Available reports whether the client initialised with credentials.
func (p *Gemini) Available() bool { return p.client != nil }

// Generate performs one generateContent call.
func (p *Gemini) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if p.client == nil {
		return nil, (&llm.ProviderError{Provider: p.Name(), Model: req.Model,
			Message: "GOOGLE_API_KEY not configured"}).Terminal()
	}
	if !geminiModels[req.Model] {
		return nil, (&llm.ProviderError{Provider: p.Name(), Model: req.Model,
			Message: fmt.Sprintf("unknown model %q", req.Model)}).Terminal()
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	prompt := FoldMessages(req.Messages)
	contents := []*genai.Content{{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{{Text: prompt}},
	}}

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(req.Temperature),
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}

	start := time.Now()
	resp, err := p.client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	latency := time.Since(start)
	if err != nil {
		return nil, llm.NewProviderError(p.Name(), req.Model, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, (&llm.ProviderError{Provider: p.Name(), Model: req.Model,
			Message: "empty response: no candidates returned"}).Terminal()
	}

	candidate := resp.Candidates[0]
	var content strings.Builder
	for _, part := range candidate.Content.Parts {
		content.WriteString(part.Text)
	}

	return &llm.Response{
		Content:         content.String(),
		Provider:        p.Name(),
		Model:           req.Model,
		TokensInput:     EstimateTokens(prompt),
		TokensOutput:    EstimateTokens(content.String()),
		TokensEstimated: true,
		LatencyMS:       latency.Milliseconds(),
		FinishReason:    string(candidate.FinishReason),
	}, nil
}

// FoldMessages flattens a message list into the single prompt string the
// gemini adapter sends, labelling each role section.
func FoldMessages(messages []llm.Message) string {
	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		switch m.Role {
		case llm.RoleSystem:
			b.WriteString("System: ")
		case llm.RoleAssistant:
			b.WriteString("Assistant: ")
		default:
			b.WriteString("User: ")
		}
		b.WriteString(m.Content)
	}
	return b.String()
}

// EstimateTokens applies the characters-per-token heuristic.
func EstimateTokens(s string) int {
	n := len(s) / estimateCharsPerToken
	if n == 0 && len(s) > 0 {
		n = 1
	}
	return n
}
