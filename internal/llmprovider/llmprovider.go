// Package llmprovider is the thin LLM completion surface used by the
// Consolidator's interaction curator (C13) and the Synthesizer (C15).
// Unlike the teacher's full chat client (tool calling, streaming, thinking
// blocks, prompt caching), these callers only need a single system+user
// prompt in, text out; the Anthropic implementation here is a reduced
// generalisation of the teacher's anthropic.Client.Chat.
package llmprovider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultMaxTokens bounds completion length for curator/synthesis prompts,
// which are short summaries, not long-form generation.
const DefaultMaxTokens int64 = 512

// DefaultModel is used when config doesn't specify one.
const DefaultModel = "claude-3-5-haiku-latest"

// Provider is the narrow completion interface consumed by C13 and C15.
type Provider interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// AnthropicProvider implements Provider over the Anthropic Messages API.
type AnthropicProvider struct {
	sdk       anthropic.Client
	model     string
	maxTokens int64
	timeout   time.Duration
}

// New constructs an AnthropicProvider. apiKey is required; an empty model
// falls back to DefaultModel.
func New(apiKey, model string, timeout time.Duration) *AnthropicProvider {
	if model = strings.TrimSpace(model); model == "" {
		model = DefaultModel
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &AnthropicProvider{
		sdk:       anthropic.NewClient(option.WithAPIKey(strings.TrimSpace(apiKey)), option.WithHTTPClient(http.DefaultClient)),
		model:     model,
		maxTokens: DefaultMaxTokens,
		timeout:   timeout,
	}
}

// Complete sends a single-turn request and returns the concatenated text
// of the response's text blocks.
func (p *AnthropicProvider) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: p.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	}

	resp, err := p.sdk.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("llmprovider: complete: %w", err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(text.Text)
		}
	}
	return b.String(), nil
}
