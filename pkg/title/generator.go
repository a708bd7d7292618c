package title

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/harun/turbogenius/internal/observability"
	"github.com/harun/turbogenius/internal/tracing"
	"github.com/harun/turbogenius/pkg/engine"
	"github.com/harun/turbogenius/pkg/session"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultMaxLength = 48
	DefaultTimeout   = 30 * time.Second

	// excerptMessages is how many non-system messages the summarizer sees.
	excerptMessages = 2
	ellipsis        = "…"
)

// ErrEmptyTranscript indicates there is nothing to summarize yet
var ErrEmptyTranscript = errors.New("transcript has no messages to summarize")

// Config holds generator configuration
type Config struct {
	Summarizer engine.Summarizer
	MaxLength  int
	Timeout    time.Duration
	Logger     zerolog.Logger
}

// Generator derives short session titles from the opening of a transcript
type Generator struct {
	summarizer engine.Summarizer
	maxLength  int
	timeout    time.Duration
	flight     *Flight
	logger     zerolog.Logger
}

// NewGenerator creates a title generator
func NewGenerator(cfg Config) (*Generator, error) {
	if cfg.Summarizer == nil {
		return nil, fmt.Errorf("summarizer is required")
	}
	if cfg.MaxLength < 0 {
		return nil, fmt.Errorf("invalid max length: %d", cfg.MaxLength)
	}
	if cfg.MaxLength == 0 {
		cfg.MaxLength = DefaultMaxLength
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Generator{
		summarizer: cfg.Summarizer,
		maxLength:  cfg.MaxLength,
		timeout:    cfg.Timeout,
		flight:     NewFlight(),
		logger:     cfg.Logger.With().Str("component", "title").Logger(),
	}, nil
}

// Excerpt joins the contents of the first two non-system messages
func Excerpt(messages []session.Message) string {
	parts := make([]string, 0, excerptMessages)
	for _, msg := range messages {
		if msg.Role == session.RoleSystem {
			continue
		}
		parts = append(parts, msg.Content)
		if len(parts) == excerptMessages {
			break
		}
	}
	return strings.Join(parts, "\n")
}

// Clean reduces raw summarizer output to a single bounded title line
func Clean(raw string, maxLength int) string {
	text := strings.TrimSpace(raw)
	if i := strings.IndexAny(text, "\r\n"); i >= 0 {
		text = text[:i]
	}
	text = strings.TrimSpace(strings.Trim(text, "\"'`“”"))
	text = strings.TrimSpace(strings.TrimPrefix(text, "Title:"))

	if maxLength > 0 && utf8.RuneCountInString(text) > maxLength {
		runes := []rune(text)
		text = strings.TrimSpace(string(runes[:maxLength-1])) + ellipsis
	}
	return text
}

// Generate returns a title for messages. It does not touch any session.
func (g *Generator) Generate(ctx context.Context, messages []session.Message) (string, error) {
	excerpt := Excerpt(messages)
	if strings.TrimSpace(excerpt) == "" {
		return "", ErrEmptyTranscript
	}

	ctx, span := tracing.StartSpan(ctx, "turbogenius.title", "title.generate",
		attribute.Int("excerpt_bytes", len(excerpt)))
	defer span.End()

	start := time.Now()
	raw, err := g.summarizer.Summarize(ctx, excerpt)
	if err != nil {
		observability.RecordTitleGeneration(time.Since(start), false)
		tracing.FailSpan(span, err)
		if errors.Is(err, engine.ErrEngine) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", engine.ErrEngine, err)
	}

	title := Clean(raw, g.maxLength)
	if title == "" {
		err := fmt.Errorf("%w: summarizer returned an empty title", engine.ErrEngine)
		observability.RecordTitleGeneration(time.Since(start), false)
		tracing.FailSpan(span, err)
		return "", err
	}

	observability.RecordTitleGeneration(time.Since(start), true)
	return title, nil
}

// Ensure returns the title of sess, generating and storing one when the
// session still has the default title. Concurrent calls for one session
// share a single summarizer run, and a title stored by someone else wins.
func (g *Generator) Ensure(ctx context.Context, sess *session.Session) (string, error) {
	if !sess.HasDefaultTitle() {
		return sess.Title(), nil
	}

	logger := tracing.LoggerFromContext(ctx, g.logger)
	title, shared, err := g.flight.Do(ctx, sess.ID().String(), func(ctx context.Context) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		generated, err := g.Generate(ctx, sess.Messages())
		if err != nil {
			return "", err
		}

		final, changed := sess.SetTitleIfDefault(generated)
		if changed {
			logger.Info().Str("title", final).Msg("Session titled")
		}
		return final, nil
	})
	if err != nil {
		if !errors.Is(err, ErrEmptyTranscript) {
			logger.Warn().Err(err).Msg("Title generation failed")
		}
		return "", err
	}

	if shared {
		logger.Debug().Msg("Title generation shared with concurrent requests")
	}
	return title, nil
}
