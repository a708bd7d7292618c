package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/harun/turbogenius/internal/observability"
	"github.com/harun/turbogenius/internal/tracing"
	"github.com/harun/turbogenius/pkg/engine"
	"github.com/harun/turbogenius/pkg/prompt"
	"github.com/harun/turbogenius/pkg/session"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultBuffer      = 64
	DefaultMaxDuration = 5 * time.Minute
)

// Outcome classifies how a stream ended
type Outcome string

const (
	OutcomeCompleted    Outcome = "completed"
	OutcomeEngineFailed Outcome = "engine_failed"
	OutcomeConfigFailed Outcome = "config_failed"
	OutcomeClientGone   Outcome = "client_gone"
	OutcomeRejected     Outcome = "rejected"
)

// State is the lifecycle position of a stream
type State int32

const (
	StateAwaitingHandshake State = iota
	StateAwaitingPrompt
	StateGenerating
	StateCompleting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAwaitingHandshake:
		return "awaiting_handshake"
	case StateAwaitingPrompt:
		return "awaiting_prompt"
	case StateGenerating:
		return "generating"
	case StateCompleting:
		return "completing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Result describes a finished stream
type Result struct {
	SessionID  session.ID
	Fragments  int
	Completion string
	Outcome    Outcome
	Err        error
}

// Config holds coordinator configuration
type Config struct {
	Store   *session.Store
	Builder *prompt.Builder
	Engine  engine.Engine

	// Pacing is the pause between forwarded fragments.
	Pacing time.Duration
	// Buffer is the capacity of the fragment queue between engine and client.
	Buffer      int
	MaxDuration time.Duration
	Logger      zerolog.Logger
}

// Coordinator runs response streams: one prompt in, engine fragments out,
// and exactly one assistant message persisted per accepted prompt
type Coordinator struct {
	store       *session.Store
	builder     *prompt.Builder
	engine      engine.Engine
	pacing      time.Duration
	buffer      int
	maxDuration time.Duration
	logger      zerolog.Logger
}

// NewCoordinator creates a coordinator
func NewCoordinator(cfg Config) (*Coordinator, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if cfg.Builder == nil {
		return nil, fmt.Errorf("prompt builder is required")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if cfg.Pacing < 0 {
		return nil, fmt.Errorf("pacing must not be negative")
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultBuffer
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = DefaultMaxDuration
	}

	return &Coordinator{
		store:       cfg.Store,
		builder:     cfg.Builder,
		engine:      cfg.Engine,
		pacing:      cfg.Pacing,
		buffer:      cfg.Buffer,
		maxDuration: cfg.MaxDuration,
		logger:      cfg.Logger.With().Str("component", "stream").Logger(),
	}, nil
}

// Stream tracks one running exchange
type Stream struct {
	state atomic.Int32
}

// State returns the current lifecycle state
func (s *Stream) State() State {
	return State(s.state.Load())
}

func (s *Stream) set(state State) {
	s.state.Store(int32(state))
}

type fragment struct {
	text string
	err  error
}

// Serve runs one exchange for session id over conn and closes conn before
// returning. The connection handshake is assumed complete.
func (c *Coordinator) Serve(ctx context.Context, id session.ID, conn Conn) Result {
	return c.ServeStream(ctx, id, conn, &Stream{})
}

// ServeStream is Serve with a caller-owned Stream for state observation
func (c *Coordinator) ServeStream(ctx context.Context, id session.ID, conn Conn, st *Stream) Result {
	ctx = tracing.NewStreamContext(ctx, id.String())
	ctx, span := tracing.StartSpan(ctx, "turbogenius.stream", "stream.serve",
		attribute.String("session_key", id.String()))
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, c.logger)

	result := Result{SessionID: id}
	reject := func(outcome Outcome, code CloseCode, reason string, err error) Result {
		st.set(StateClosed)
		_ = conn.Close(code, reason)
		observability.RecordStreamRejected(string(outcome))
		tracing.FailSpan(span, err)
		result.Outcome = outcome
		result.Err = err
		return result
	}

	st.set(StateAwaitingPrompt)
	text, err := conn.ReadPrompt(ctx)
	if errors.Is(err, ErrPromptTooLarge) {
		return reject(OutcomeRejected, CloseTooLarge, ReasonTooLarge, err)
	}
	if err != nil {
		logger.Debug().Err(err).Msg("Client left before sending a prompt")
		return reject(OutcomeClientGone, CloseNormal, "", err)
	}
	if strings.TrimSpace(text) == "" {
		return reject(OutcomeRejected, ClosePolicy, ReasonEmptyPrompt, fmt.Errorf("empty prompt"))
	}

	sess, err := c.store.BeginStream(id)
	if errors.Is(err, session.ErrBusy) {
		logger.Warn().Msg("Rejected prompt for busy session")
		return reject(OutcomeRejected, CloseBusy, ReasonBusy, err)
	}
	if err != nil {
		return reject(OutcomeRejected, CloseNotFound, ReasonNotFound, err)
	}

	sess.AddUserMessage(text)

	p, err := c.builder.Build(ctx, sess)
	if err != nil {
		sess.EndStream()
		if errors.Is(err, prompt.ErrContextBudget) {
			logger.Error().Err(err).Msg("System prompt does not fit the context budget")
			return reject(OutcomeConfigFailed, CloseInternal, ReasonContextBudget, err)
		}
		logger.Error().Err(err).Msg("Failed to build prompt")
		return reject(OutcomeEngineFailed, CloseInternal, ReasonPromptBuild, err)
	}

	st.set(StateGenerating)
	observability.StreamStarted()
	start := time.Now()

	gen := c.generate(ctx, conn, p)
	completion, count, genErr := gen.completion, gen.count, gen.err

	st.set(StateCompleting)
	sess.AddAssistantMessage(completion)
	sess.EndStream()

	duration := time.Since(start)
	result.Fragments = count
	result.Completion = completion

	switch {
	case gen.clientGone:
		result.Outcome = OutcomeClientGone
		_ = conn.Close(CloseNormal, "")
	case genErr != nil:
		result.Outcome = OutcomeEngineFailed
		result.Err = genErr
		tracing.FailSpan(span, genErr)
		_ = conn.Close(CloseInternal, ReasonGeneration)
	default:
		result.Outcome = OutcomeCompleted
		_ = conn.Close(CloseNormal, "")
	}
	<-gen.watcherDone
	st.set(StateClosed)

	observability.RecordStream(string(result.Outcome), duration, count)
	span.SetAttributes(
		attribute.Int("fragments", count),
		attribute.String("outcome", string(result.Outcome)),
	)

	event := logger.Info()
	if genErr != nil && !gen.clientGone {
		event = logger.Warn().Err(genErr)
	}
	event.
		Str("outcome", string(result.Outcome)).
		Int("fragments", count).
		Dur("duration", duration).
		Float64("tokens_per_sec", tokensPerSecond(count, duration)).
		Msg("Stream finished")

	return result
}

type generation struct {
	completion string
	count      int
	clientGone bool
	err        error

	// watcherDone is closed once the disconnect watcher has returned.
	watcherDone <-chan struct{}
}

// generate runs the engine and forwards its fragments until the engine is
// done. Every fragment the engine produced is part of the completion,
// including those produced after the client went away.
func (c *Coordinator) generate(ctx context.Context, conn Conn, p prompt.Prompt) generation {
	runCtx, cancel := context.WithTimeout(ctx, c.maxDuration)
	defer cancel()

	fragments := make(chan fragment, c.buffer)
	go c.produce(runCtx, p, fragments)

	var finished, clientGone atomic.Bool
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		for {
			if _, err := conn.ReadPrompt(runCtx); err != nil {
				if !finished.Load() && runCtx.Err() == nil {
					clientGone.Store(true)
					cancel()
				}
				return
			}
		}
	}()

	var (
		completion strings.Builder
		count      int
		genErr     error
		forwarding = true
	)
	for f := range fragments {
		if f.err != nil {
			genErr = f.err
			continue
		}
		completion.WriteString(f.text)
		count++

		if !forwarding || clientGone.Load() {
			continue
		}
		if err := conn.WriteFragment(runCtx, f.text); err != nil {
			forwarding = false
			clientGone.Store(true)
			cancel()
			continue
		}
		c.pause(runCtx)
	}
	finished.Store(true)

	return generation{
		completion:  completion.String(),
		count:       count,
		clientGone:  clientGone.Load(),
		err:         genErr,
		watcherDone: watcherDone,
	}
}

func (c *Coordinator) produce(ctx context.Context, p prompt.Prompt, out chan<- fragment) {
	defer close(out)
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().
				Interface("panic", r).
				Msg("Panic in generation engine")
			out <- fragment{err: fmt.Errorf("%w: engine panic: %v", engine.ErrEngine, r)}
		}
	}()

	ts, err := c.engine.Generate(ctx, p)
	if err != nil {
		out <- fragment{err: err}
		return
	}
	defer ts.Close()

	for {
		if err := ctx.Err(); err != nil {
			out <- fragment{err: err}
			return
		}

		text, err := ts.Next()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			out <- fragment{err: err}
			return
		}
		out <- fragment{text: text}
	}
}

func (c *Coordinator) pause(ctx context.Context) {
	if c.pacing <= 0 {
		return
	}
	timer := time.NewTimer(c.pacing)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func tokensPerSecond(count int, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(count) / d.Seconds()
}
