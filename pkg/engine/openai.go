package engine

import (
	"context"
	"fmt"
	"io"

	"github.com/harun/turbogenius/pkg/prompt"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/rs/zerolog"
)

func clientOptions(baseURL, apiKey string) []option.RequestOption {
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return opts
}

// OpenAIEngine streams raw-prompt completions from any server that speaks
// the OpenAI completions API (llama.cpp, vLLM, TGI)
type OpenAIEngine struct {
	client      openai.Client
	model       string
	maxTokens   int
	temperature float64
	topP        float64
	logger      zerolog.Logger
}

// NewOpenAIEngine creates a completions engine
func NewOpenAIEngine(cfg Config) *OpenAIEngine {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.TopP == 0 {
		cfg.TopP = DefaultTopP
	}

	return &OpenAIEngine{
		client:      openai.NewClient(clientOptions(cfg.BaseURL, cfg.APIKey)...),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		topP:        cfg.TopP,
		logger:      cfg.Logger.With().Str("component", "engine").Logger(),
	}
}

// Generate starts a streaming completion. Cancelling ctx aborts the request.
func (e *OpenAIEngine) Generate(ctx context.Context, p prompt.Prompt) (TokenStream, error) {
	if p.Text == "" {
		return nil, fmt.Errorf("%w: empty prompt", ErrEngine)
	}

	params := openai.CompletionNewParams{
		Model: openai.CompletionNewParamsModel(e.model),
		Prompt: openai.CompletionNewParamsPromptUnion{
			OfString: openai.String(p.Text),
		},
		MaxTokens:   openai.Int(int64(e.maxTokens)),
		Temperature: openai.Float(e.temperature),
		TopP:        openai.Float(e.topP),
	}

	e.logger.Debug().
		Str("model", e.model).
		Int("prompt_tokens", p.TokenCount()).
		Msg("Starting completion stream")

	return &completionStream{stream: e.client.Completions.NewStreaming(ctx, params)}, nil
}

type completionStream struct {
	stream *ssestream.Stream[openai.Completion]
}

func (s *completionStream) Next() (string, error) {
	for s.stream.Next() {
		chunk := s.stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if text := chunk.Choices[0].Text; text != "" {
			return text, nil
		}
	}
	if err := s.stream.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrEngine, err)
	}
	return "", io.EOF
}

func (s *completionStream) Close() error {
	return s.stream.Close()
}

// OpenAISummarizer asks a chat completions endpoint for a title
type OpenAISummarizer struct {
	client    openai.Client
	model     string
	maxTokens int
}

// NewOpenAISummarizer creates a chat completions summarizer
func NewOpenAISummarizer(cfg SummarizerConfig) *OpenAISummarizer {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 32
	}

	return &OpenAISummarizer{
		client:    openai.NewClient(clientOptions(cfg.BaseURL, cfg.APIKey)...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}
}

// Summarize returns the model's title for excerpt
func (s *OpenAISummarizer) Summarize(ctx context.Context, excerpt string) (string, error) {
	response, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(s.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(SummaryInstruction),
			openai.UserMessage(excerpt),
		},
		MaxTokens:   openai.Int(int64(s.maxTokens)),
		Temperature: openai.Float(0.2),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrEngine, err)
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("%w: no response choices returned", ErrEngine)
	}
	return response.Choices[0].Message.Content, nil
}
