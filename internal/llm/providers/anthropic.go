package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/nexous-ai/nexous/internal/llm"
)

// anthropicModels is the closed allow-list of accepted model names.
var anthropicModels = map[string]bool{
	"claude-3-5-sonnet-20241022": true,
	"claude-3-5-haiku-20241022":  true,
	"claude-sonnet-4-20250514":   true,
	"claude-3-opus-20240229":     true,
}

// defaultAnthropicMaxTokens applies when the request does not bound output;
// the Anthropic API requires max_tokens on every call.
const defaultAnthropicMaxTokens = 4096

// Anthropic adapts the Anthropic Messages API. System messages are carried
// in the dedicated system parameter, separate from the message array, and
// token counts come exactly from the usage block.
type Anthropic struct {
	client anthropic.Client
	apiKey string
}

// NewAnthropic creates the adapter. An empty API key is allowed; the
// adapter then reports Available() == false.
func NewAnthropic(apiKey string) *Anthropic {
	p := &Anthropic{apiKey: apiKey}
	if apiKey != "" {
		p.client = anthropic.NewClient(option.WithAPIKey(apiKey))
	}
	return p
}

// Name returns "anthropic".
func (p *Anthropic) Name() string { return "anthropic" }

// Available reports whether an API key is configured.
func (p *Anthropic) Available() bool { return p.apiKey != "" }

// Generate performs one Messages API call.
func (p *Anthropic) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if p.apiKey == "" {
		return nil, (&llm.ProviderError{Provider: p.Name(), Model: req.Model,
			Message: "ANTHROPIC_API_KEY not configured"}).Terminal()
	}
	if !anthropicModels[req.Model] {
		return nil, (&llm.ProviderError{Provider: p.Name(), Model: req.Model,
			Message: fmt.Sprintf("unknown model %q", req.Model)}).Terminal()
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(float64(req.Temperature)),
	}

	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleSystem:
			params.System = append(params.System, anthropic.TextBlockParam{
				Type: "text",
				Text: m.Content,
			})
		case llm.RoleAssistant:
			params.Messages = append(params.Messages,
				anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages,
				anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	start := time.Now()
	msg, err := p.client.Messages.New(ctx, params)
	latency := time.Since(start)
	if err != nil {
		return nil, llm.NewProviderError(p.Name(), req.Model, err)
	}

	var content strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	return &llm.Response{
		Content:      content.String(),
		Provider:     p.Name(),
		Model:        req.Model,
		TokensInput:  int(msg.Usage.InputTokens),
		TokensOutput: int(msg.Usage.OutputTokens),
		LatencyMS:    latency.Milliseconds(),
		FinishReason: string(msg.StopReason),
	}, nil
}
