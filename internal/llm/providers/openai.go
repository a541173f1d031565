package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nexous-ai/nexous/internal/llm"
)

// openAIModels is the closed allow-list of accepted model names.
var openAIModels = map[string]bool{
	"gpt-4o":        true,
	"gpt-4o-mini":   true,
	"gpt-4-turbo":   true,
	"gpt-4":         true,
	"gpt-3.5-turbo": true,
}

// OpenAI adapts the OpenAI chat completion API. System messages are
// inlined into the message array, and token counts are reported exactly
// from the API usage block.
type OpenAI struct {
	client *openai.Client
	apiKey string
}

// NewOpenAI creates the adapter. An empty API key is allowed; the adapter
// then reports Available() == false.
func NewOpenAI(apiKey string) *OpenAI {
	p := &OpenAI{apiKey: apiKey}
	if apiKey != "" {
		p.client = openai.NewClient(apiKey)
	}
	return p
}

// Name returns "openai".
func (p *OpenAI) Name() string { return "openai" }

// Available reports whether an API key is configured.
func (p *OpenAI) Available() bool { return p.client != nil }

// Generate performs one chat completion call.
func (p *OpenAI) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if p.client == nil {
		return nil, (&llm.ProviderError{Provider: p.Name(), Model: req.Model,
			Message: "OPENAI_API_KEY not configured"}).Terminal()
	}
	if !openAIModels[req.Model] {
		return nil, (&llm.ProviderError{Provider: p.Name(), Model: req.Model,
			Message: fmt.Sprintf("unknown model %q", req.Model)}).Terminal()
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}

	start := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	latency := time.Since(start)
	if err != nil {
		return nil, p.wrapError(req.Model, err)
	}
	if len(resp.Choices) == 0 {
		return nil, (&llm.ProviderError{Provider: p.Name(), Model: req.Model,
			Message: "empty response: no choices returned"}).Terminal()
	}

	choice := resp.Choices[0]
	return &llm.Response{
		Content:      choice.Message.Content,
		Provider:     p.Name(),
		Model:        req.Model,
		TokensInput:  resp.Usage.PromptTokens,
		TokensOutput: resp.Usage.CompletionTokens,
		LatencyMS:    latency.Milliseconds(),
		FinishReason: string(choice.FinishReason),
	}, nil
}

// wrapError classifies API failures; the SDK's APIError carries the HTTP
// status, which beats message sniffing when present.
func (p *OpenAI) wrapError(model string, err error) *llm.ProviderError {
	pe := llm.NewProviderError(p.Name(), model, err)
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if recoverable, ok := classifyStatus(apiErr.HTTPStatusCode); ok {
			pe.Recoverable = recoverable
		}
	}
	return pe
}
