package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/harun/turbogenius/pkg/prompt"
	"github.com/rs/zerolog"
)

// ErrEngine marks failures of a generation or summarization engine
var ErrEngine = errors.New("engine failure")

// Engine produces a completion for a rendered prompt as a token stream
type Engine interface {
	Generate(ctx context.Context, p prompt.Prompt) (TokenStream, error)
}

// TokenStream yields completion fragments in order.
// Next returns io.EOF once the completion is finished.
type TokenStream interface {
	Next() (string, error)
	Close() error
}

// Summarizer turns a transcript excerpt into a short title
type Summarizer interface {
	Summarize(ctx context.Context, excerpt string) (string, error)
}

const (
	DefaultModel       = "default"
	DefaultMaxTokens   = 1024
	DefaultTemperature = 0.6
	DefaultTopP        = 0.9
)

// Config holds generation engine configuration
type Config struct {
	Provider    string
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	TopP        float64
	Logger      zerolog.Logger
}

// SummarizerConfig holds title summarizer configuration
type SummarizerConfig struct {
	Provider  string
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
	Logger    zerolog.Logger
}

// New creates the generation engine named by cfg.Provider
func New(cfg Config) (Engine, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "openai", "llama.cpp", "vllm":
		return NewOpenAIEngine(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported engine provider: %s", cfg.Provider)
	}
}

// NewSummarizer creates the summarizer named by cfg.Provider
func NewSummarizer(cfg SummarizerConfig) (Summarizer, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "openai", "llama.cpp", "vllm":
		return NewOpenAISummarizer(cfg), nil
	case "anthropic":
		if cfg.Model == "" {
			return nil, fmt.Errorf("anthropic summarizer requires a model")
		}
		return NewAnthropicSummarizer(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported summarizer provider: %s", cfg.Provider)
	}
}

// NewTokenizer returns the tokenizer named by name. The remote tokenizer
// talks to the llama.cpp server behind baseURL.
func NewTokenizer(name, baseURL string) (prompt.Tokenizer, error) {
	switch strings.ToLower(name) {
	case "", "bytes":
		return prompt.ByteTokenizer{}, nil
	case "remote", "llama.cpp":
		if baseURL == "" {
			return nil, fmt.Errorf("remote tokenizer requires a base url")
		}
		return NewRemoteTokenizer(baseURL), nil
	default:
		return nil, fmt.Errorf("unsupported tokenizer: %s", name)
	}
}

// SummaryInstruction is the system instruction sent with every title request
const SummaryInstruction = "Summarize the following conversation excerpt as a short title of at most six words. " +
	"Reply with the title only, without quotes or punctuation at the end."
