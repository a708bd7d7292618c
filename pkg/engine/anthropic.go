package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicSummarizer asks the Anthropic Messages API for a title
type AnthropicSummarizer struct {
	client    anthropic.Client
	model     string
	maxTokens int
}

// NewAnthropicSummarizer creates a Messages API summarizer
func NewAnthropicSummarizer(cfg SummarizerConfig) *AnthropicSummarizer {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 32
	}

	opts := []option.RequestOption{option.WithMaxRetries(1)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}

	return &AnthropicSummarizer{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}
}

// Summarize returns the model's title for excerpt
func (s *AnthropicSummarizer) Summarize(ctx context.Context, excerpt string) (string, error) {
	response, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: int64(s.maxTokens),
		System: []anthropic.TextBlockParam{
			{Text: SummaryInstruction},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(excerpt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrEngine, err)
	}

	var content strings.Builder
	for _, block := range response.Content {
		if b, ok := block.AsAny().(anthropic.TextBlock); ok {
			content.WriteString(b.Text)
		}
	}
	return content.String(), nil
}
