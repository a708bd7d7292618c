package prompt

import (
	"context"
	"errors"
	"fmt"

	"github.com/harun/turbogenius/internal/observability"
	"github.com/harun/turbogenius/internal/tracing"
	"github.com/harun/turbogenius/pkg/session"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultContextLength = 8192
	DefaultBudgetRatio   = 0.9
)

// ErrContextBudget indicates that the prompt cannot fit the context budget
// even with all history removed. It is a configuration error, not retryable.
var ErrContextBudget = errors.New("prompt exceeds context budget")

// Prompt is a rendered transcript in both raw and tokenized form
type Prompt struct {
	Text        string
	Tokens      []int
	Truncations int
}

// TokenCount returns the measured size of the prompt
func (p Prompt) TokenCount() int {
	return len(p.Tokens)
}

// Config holds builder configuration
type Config struct {
	Template      Template
	Tokenizer     Tokenizer
	ContextLength int
	BudgetRatio   float64
	Logger        zerolog.Logger
}

// Builder turns a session transcript into a prompt that fits the budget
type Builder struct {
	template  Template
	tokenizer Tokenizer
	budget    int
	logger    zerolog.Logger
}

// NewBuilder creates a builder. Template and tokenizer default to Llama3
// and ByteTokenizer.
func NewBuilder(cfg Config) (*Builder, error) {
	if cfg.ContextLength == 0 {
		cfg.ContextLength = DefaultContextLength
	}
	if cfg.BudgetRatio == 0 {
		cfg.BudgetRatio = DefaultBudgetRatio
	}
	if cfg.ContextLength < 0 {
		return nil, fmt.Errorf("invalid context length: %d", cfg.ContextLength)
	}
	if cfg.BudgetRatio < 0 || cfg.BudgetRatio > 1 {
		return nil, fmt.Errorf("invalid budget ratio: %v", cfg.BudgetRatio)
	}
	if cfg.Template == nil {
		cfg.Template = Llama3{}
	}
	if cfg.Tokenizer == nil {
		cfg.Tokenizer = ByteTokenizer{}
	}

	budget := int(float64(cfg.ContextLength) * cfg.BudgetRatio)
	if budget <= 0 {
		return nil, fmt.Errorf("context budget must be positive, got %d", budget)
	}

	return &Builder{
		template:  cfg.Template,
		tokenizer: cfg.Tokenizer,
		budget:    budget,
		logger:    cfg.Logger.With().Str("component", "prompt").Logger(),
	}, nil
}

// Budget returns the maximum prompt size in tokens
func (b *Builder) Budget() int {
	return b.budget
}

// Build renders sess and measures it, truncating the oldest history until
// the prompt fits. The session is changed only through TruncateMessages, and
// not at all when the system message alone is over budget. Each pass either
// returns or removes at least one message, so the number of passes is
// bounded by the initial message count.
func (b *Builder) Build(ctx context.Context, sess *session.Session) (Prompt, error) {
	ctx, span := tracing.StartSpan(
		ctx,
		"turbogenius.prompt",
		"prompt.build",
		attribute.String("session_key", sess.ID().String()),
		attribute.Int("budget", b.budget),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, b.logger)

	messages := sess.Messages()
	system, err := b.tokenizer.Tokenize(ctx, b.template.Render(messages[:1]))
	if err != nil {
		err = fmt.Errorf("failed to tokenize prompt: %w", err)
		tracing.FailSpan(span, err)
		return Prompt{}, err
	}
	if len(system) > b.budget {
		err := fmt.Errorf("%w: system message alone needs %d tokens, budget is %d",
			ErrContextBudget, len(system), b.budget)
		logger.Error().Err(err).Msg("Prompt cannot fit context budget")
		tracing.FailSpan(span, err)
		return Prompt{}, err
	}

	limit := len(messages)
	truncations := 0

	for pass := 0; pass < limit; pass++ {
		text := b.template.Render(sess.Messages())

		tokens, err := b.tokenizer.Tokenize(ctx, text)
		if err != nil {
			err = fmt.Errorf("failed to tokenize prompt: %w", err)
			tracing.FailSpan(span, err)
			return Prompt{}, err
		}

		if len(tokens) <= b.budget {
			if truncations > 0 {
				logger.Info().
					Int("truncations", truncations).
					Int("tokens", len(tokens)).
					Int("budget", b.budget).
					Msg("Transcript truncated to fit context budget")
			}
			observability.RecordPromptBuild(len(tokens), truncations)
			span.SetAttributes(attribute.Int("tokens", len(tokens)), attribute.Int("truncations", truncations))
			return Prompt{Text: text, Tokens: tokens, Truncations: truncations}, nil
		}

		if !sess.TruncateMessages() {
			err := fmt.Errorf("%w: system message alone needs %d tokens, budget is %d",
				ErrContextBudget, len(tokens), b.budget)
			logger.Error().Err(err).Msg("Prompt cannot fit context budget")
			tracing.FailSpan(span, err)
			return Prompt{}, err
		}
		truncations++
	}

	err = fmt.Errorf("%w: still oversized after %d truncations", ErrContextBudget, truncations)
	tracing.FailSpan(span, err)
	return Prompt{}, err
}
