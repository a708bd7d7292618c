package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/harun/turbogenius/internal/config"
	"github.com/harun/turbogenius/internal/logger"
	"github.com/harun/turbogenius/internal/observability"
	"github.com/harun/turbogenius/internal/tracing"
	"github.com/harun/turbogenius/pkg/engine"
	"github.com/harun/turbogenius/pkg/gateway"
	"github.com/harun/turbogenius/pkg/prompt"
	"github.com/harun/turbogenius/pkg/session"
	"github.com/harun/turbogenius/pkg/stream"
	"github.com/harun/turbogenius/pkg/title"
)

const serviceName = "turbogenius"

// Options holds process-level settings that are not part of the config file
type Options struct {
	// ConfigPath enables live reload of the config file when set.
	ConfigPath string
	// PIDFile is written on start and removed on stop when set.
	PIDFile string
}

// Daemon owns every long-lived component of the gateway process
type Daemon struct {
	config *config.Config
	logger *logger.Logger
	opts   Options

	store         *session.Store
	janitor       *session.Janitor
	coordinator   *stream.Coordinator
	titles        *title.Generator
	gatewayServer *gateway.Server
	watcher       *config.Watcher
	lifecycle     *LifecycleManager

	startTime time.Time
	running   bool
	mu        sync.RWMutex
	stopped   chan struct{}

	tracingEnabled bool
}

// Status describes the daemon state
type Status struct {
	Running   bool
	Uptime    time.Duration
	StartTime time.Time
	Addr      string
	Sessions  int
	Clients   int
}

// New creates a new daemon instance. Components are built in dependency
// order; nothing is started.
func New(cfg *config.Config, log *logger.Logger, opts Options) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	zl := log.GetZerolog()
	for _, err := range config.NewValidator().ValidateConfig(cfg) {
		zl.Warn().Err(err).Msg("Configuration warning")
	}

	observability.EnsureRegistered()
	d := &Daemon{
		config:  cfg,
		logger:  log,
		opts:    opts,
		stopped: make(chan struct{}),
	}

	if err := tracing.InitOpenTelemetry(serviceName); err != nil {
		zl.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
	} else {
		d.tracingEnabled = true
	}

	if err := d.initializeComponents(); err != nil {
		d.shutdownTracing()
		return nil, err
	}

	d.lifecycle = NewLifecycleManager(d, opts.PIDFile)
	return d, nil
}

func (d *Daemon) initializeComponents() error {
	cfg := d.config
	zl := d.logger.GetZerolog()

	d.store = session.NewStore(session.StoreConfig{
		SystemPrompt: cfg.Session.SystemPrompt,
	})
	d.janitor = session.NewJanitor(d.store, cfg.Session.IdleTTL, cfg.Session.SweepInterval)

	tmpl, err := prompt.TemplateByName(cfg.Engine.Template)
	if err != nil {
		return fmt.Errorf("failed to select prompt template: %w", err)
	}
	tokenizer, err := engine.NewTokenizer(cfg.Engine.Tokenizer, cfg.Engine.BaseURL)
	if err != nil {
		return fmt.Errorf("failed to create tokenizer: %w", err)
	}
	builder, err := prompt.NewBuilder(prompt.Config{
		Template:      tmpl,
		Tokenizer:     tokenizer,
		ContextLength: cfg.Engine.ContextLength,
		BudgetRatio:   cfg.Engine.BudgetRatio,
		Logger:        zl,
	})
	if err != nil {
		return fmt.Errorf("failed to create prompt builder: %w", err)
	}

	eng, err := engine.New(engine.Config{
		Provider:    cfg.Engine.Provider,
		BaseURL:     cfg.Engine.BaseURL,
		APIKey:      cfg.Engine.APIKey,
		Model:       cfg.Engine.Model,
		MaxTokens:   cfg.Engine.MaxTokens,
		Temperature: cfg.Engine.Temperature,
		TopP:        cfg.Engine.TopP,
		Logger:      zl,
	})
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	d.coordinator, err = stream.NewCoordinator(stream.Config{
		Store:       d.store,
		Builder:     builder,
		Engine:      eng,
		Pacing:      cfg.Stream.Pacing,
		Buffer:      cfg.Stream.Buffer,
		MaxDuration: cfg.Stream.MaxDuration,
		Logger:      zl,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream coordinator: %w", err)
	}

	summarizer, err := engine.NewSummarizer(engine.SummarizerConfig{
		Provider: cfg.Summarizer.Provider,
		BaseURL:  cfg.Summarizer.BaseURL,
		APIKey:   cfg.Summarizer.APIKey,
		Model:    cfg.Summarizer.Model,
		Logger:   zl,
	})
	if err != nil {
		return fmt.Errorf("failed to create summarizer: %w", err)
	}

	d.titles, err = title.NewGenerator(title.Config{
		Summarizer: summarizer,
		MaxLength:  cfg.Summarizer.MaxLength,
		Logger:     zl,
	})
	if err != nil {
		return fmt.Errorf("failed to create title generator: %w", err)
	}

	d.gatewayServer, err = gateway.NewServer(gateway.Config{
		Host:              cfg.Gateway.Host,
		Port:              cfg.Gateway.Port,
		ShutdownTimeout:   cfg.Gateway.ShutdownTimeout,
		MaxPromptBytes:    cfg.Stream.MaxPromptBytes,
		MaxConcurrent:     cfg.Stream.MaxConcurrentPerClient,
		RequestsPerMinute: cfg.Stream.RequestsPerMinute,
		Store:             d.store,
		Coordinator:       d.coordinator,
		Titles:            d.titles,
		Logger:            zl,
	})
	if err != nil {
		return fmt.Errorf("failed to create gateway server: %w", err)
	}

	if d.opts.ConfigPath != "" {
		d.watcher, err = config.NewWatcher(config.WatcherConfig{
			Loader:   config.NewLoader(d.opts.ConfigPath),
			OnReload: d.applyReload,
			Logger:   zl,
		})
		if err != nil {
			return fmt.Errorf("failed to create config watcher: %w", err)
		}
	}

	return nil
}

// applyReload applies the settings that can change at runtime. Everything
// else takes effect on the next start.
func (d *Daemon) applyReload(cfg *config.Config) {
	zl := d.logger.GetZerolog()

	if cfg.Logging.Level != d.config.Logging.Level {
		if err := d.logger.SetLevel(cfg.Logging.Level); err != nil {
			zl.Error().Err(err).Msg("Failed to apply log level")
			return
		}
		zl.Info().Str("level", cfg.Logging.Level).Msg("Log level changed")
	}

	d.mu.Lock()
	d.config.Logging.Level = cfg.Logging.Level
	d.mu.Unlock()
}

// Start starts the daemon service
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	traceID := tracing.NewTraceID()
	logger := d.logger.GetZerolog().With().Str("trace_id", traceID).Logger()
	logger.Info().Msg("Starting turbogenius")

	if err := d.lifecycle.Start(); err != nil {
		d.markStopped()
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	if err := d.janitor.Start(); err != nil {
		_ = d.lifecycle.Stop()
		d.markStopped()
		return fmt.Errorf("failed to start session janitor: %w", err)
	}

	if err := d.gatewayServer.Start(); err != nil {
		d.janitor.Stop()
		_ = d.lifecycle.Stop()
		d.markStopped()
		return fmt.Errorf("failed to start gateway server: %w", err)
	}
	logger.Info().Str("addr", d.gatewayServer.Addr()).Msg("Gateway server started")

	if d.watcher != nil {
		if err := d.watcher.Start(); err != nil {
			logger.Warn().Err(err).Msg("Failed to start config watcher, live reload disabled")
			d.watcher = nil
		}
	}

	logger.Info().Msg("turbogenius started")
	return nil
}

func (d *Daemon) markStopped() {
	d.mu.Lock()
	d.running = false
	d.mu.Unlock()
}

// Stop stops the daemon in reverse start order
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	traceID := tracing.NewTraceID()
	logger := d.logger.GetZerolog().With().Str("trace_id", traceID).Logger()
	logger.Info().Msg("Stopping turbogenius")

	if d.watcher != nil {
		if err := d.watcher.Stop(); err != nil {
			logger.Error().Err(err).Msg("Failed to stop config watcher")
		}
	}

	if err := d.gatewayServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop gateway server")
	}

	d.janitor.Stop()
	logger.Info().Msg("Session janitor stopped")

	if err := d.lifecycle.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop lifecycle manager")
	}

	d.shutdownTracing()

	logger.Info().Int("sessions", d.store.Len()).Msg("turbogenius stopped")

	select {
	case <-d.stopped:
	default:
		close(d.stopped)
	}
	return nil
}

func (d *Daemon) shutdownTracing() {
	if !d.tracingEnabled {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tracing.ShutdownOpenTelemetry(ctx); err != nil {
		d.logger.Error().Err(err).Msg("Failed to shutdown tracing")
	}
	d.tracingEnabled = false
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running:  d.running,
		Sessions: d.store.Len(),
	}

	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
		status.Addr = d.gatewayServer.Addr()
		status.Clients = len(d.gatewayServer.GetConnectedClients())
	}

	return status
}

// Wait blocks until SIGINT/SIGTERM or ctx cancellation, then stops the
// daemon. It returns immediately if the daemon was stopped elsewhere.
func (d *Daemon) Wait(ctx context.Context) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		d.logger.Info().Str("signal", sig.String()).Msg("Received signal")
	case <-ctx.Done():
	case <-d.stopped:
		return
	}

	if err := d.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop daemon")
	}
}

// GetConfig returns the daemon configuration
func (d *Daemon) GetConfig() *config.Config {
	return d.config
}

// GetStore returns the session store
func (d *Daemon) GetStore() *session.Store {
	return d.store
}

// GetGatewayServer returns the gateway server
func (d *Daemon) GetGatewayServer() *gateway.Server {
	return d.gatewayServer
}
