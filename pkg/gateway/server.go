package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/turbogenius/internal/observability"
	"github.com/harun/turbogenius/internal/tracing"
	"github.com/harun/turbogenius/pkg/session"
	"github.com/harun/turbogenius/pkg/stream"
	"github.com/harun/turbogenius/pkg/title"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

const (
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxPromptBytes  = 64 * 1024

	limiterSweepInterval = time.Minute
)

// Server is the chat gateway: session endpoints, the response stream
// endpoint and JSON-RPC
type Server struct {
	host            string
	port            int
	shutdownTimeout time.Duration
	maxPromptBytes  int64
	server          *http.Server
	listener        net.Listener
	handler         http.Handler
	upgrader        websocket.Upgrader
	clients         *ClientRegistry
	limiters        *LimiterPool
	router          *RPCRouter
	store           *session.Store
	coordinator     *stream.Coordinator
	titles          *title.Generator
	logger          zerolog.Logger
	isShuttingDown  bool
	shutdownMu      sync.RWMutex
	inFlightReqs    sync.WaitGroup
	sweepCancel     context.CancelFunc
	sweepWG         sync.WaitGroup
}

// Config holds server configuration
type Config struct {
	Host              string
	Port              int
	ShutdownTimeout   time.Duration
	MaxPromptBytes    int64
	MaxConcurrent     int
	RequestsPerMinute int
	Store             *session.Store
	Coordinator       *stream.Coordinator
	Titles            *title.Generator
	Logger            zerolog.Logger
}

// NewServer creates a new gateway server
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if cfg.Coordinator == nil {
		return nil, fmt.Errorf("stream coordinator is required")
	}
	if cfg.Titles == nil {
		return nil, fmt.Errorf("title generator is required")
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.MaxPromptBytes <= 0 {
		cfg.MaxPromptBytes = DefaultMaxPromptBytes
	}

	s := &Server{
		host:            cfg.Host,
		port:            cfg.Port,
		shutdownTimeout: cfg.ShutdownTimeout,
		maxPromptBytes:  cfg.MaxPromptBytes,
		clients:         NewClientRegistry(),
		limiters:        NewLimiterPool(cfg.RequestsPerMinute, cfg.MaxConcurrent),
		router:          NewRPCRouter(),
		store:           cfg.Store,
		coordinator:     cfg.Coordinator,
		titles:          cfg.Titles,
		logger:          cfg.Logger.With().Str("component", "gateway").Logger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	s.registerBuiltinMethods()
	s.handler = s.routes()

	return s, nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /session", s.handleCreateSession)
	mux.HandleFunc("GET /session", s.handleCreateSession)
	mux.HandleFunc("GET /session/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /session/{id}", s.handleDeleteSession)
	mux.HandleFunc("GET /session/{id}/title", s.handleTitle)
	mux.HandleFunc("POST /session/{id}/title", s.handleTitle)
	mux.HandleFunc("GET /session-list", s.handleListSessions)
	mux.HandleFunc("GET /sessions", s.handleListSessions)
	mux.HandleFunc("GET /stream/{id}", s.handleStream)
	mux.HandleFunc("POST /rpc", s.handleRPC)
	mux.Handle("GET /metrics", observability.MetricsHandler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

// Handler returns the HTTP handler serving every gateway route
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start binds the listening socket and serves in the background
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Starting gateway server")

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Gateway server error")
		}
	}()

	s.startLimiterSweep()
	return nil
}

// Addr returns the bound address once started
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop refuses new work, waits for running streams up to the shutdown
// timeout, then closes whatever is left
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down gateway server")
	s.stopLimiterSweep()

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight streams completed")
	case <-time.After(s.shutdownTimeout):
		s.logger.Warn().
			Int("clients", s.clients.Count()).
			Msg("Shutdown timeout reached, forcing close")
	}

	// Dropping the connection cancels the stream; its partial completion is
	// still persisted by the coordinator.
	for _, client := range s.clients.GetAll() {
		client.Conn.Close()
	}

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info().Msg("Gateway server stopped")
	return nil
}

func (s *Server) startLimiterSweep() {
	sweepCtx, cancel := context.WithCancel(context.Background())
	s.sweepCancel = cancel
	s.sweepWG.Add(1)

	go func() {
		defer s.sweepWG.Done()

		ticker := time.NewTicker(limiterSweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				if removed := s.limiters.Sweep(); removed > 0 {
					s.logger.Debug().Int("hosts", removed).Msg("Forgot idle rate limiters")
				}
			}
		}
	}()
}

func (s *Server) stopLimiterSweep() {
	if s.sweepCancel != nil {
		s.sweepCancel()
		s.sweepCancel = nil
	}
	s.sweepWG.Wait()
}

// beginRequest registers in-flight work unless the server is shutting down
func (s *Server) beginRequest() bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()

	if s.isShuttingDown {
		return false
	}
	s.inFlightReqs.Add(1)
	return true
}

// handleStream upgrades to a websocket and runs one exchange on it
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}

	if !s.beginRequest() {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.inFlightReqs.Done()

	if _, err := s.store.Get(id); err != nil {
		s.writeError(w, err)
		return
	}

	limiter, allowed, reason := s.limiters.Acquire(r.RemoteAddr)
	if !allowed {
		s.logger.Warn().
			Str("ip", r.RemoteAddr).
			Str("reason", reason).
			Msg("Stream request rejected")
		http.Error(w, reason, http.StatusTooManyRequests)
		return
	}
	defer limiter.RecordRequestEnd()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	clientID, _ := gonanoid.New()
	now := time.Now()
	s.clients.Add(&Client{
		ID:           clientID,
		Conn:         conn,
		SessionID:    id,
		ConnectedAt:  now,
		LastActivity: now,
		IPAddress:    r.RemoteAddr,
		State:        StateConnected,
	})
	defer s.clients.Remove(clientID)

	ctx := tracing.WithClientID(s.requestContext(r), clientID)
	logger := tracing.LoggerFromContext(ctx, s.logger)
	logger.Info().
		Stringer("session_id", id).
		Str("ip", r.RemoteAddr).
		Msg("Stream client connected")

	s.clients.SetState(clientID, StateStreaming)
	result := s.coordinator.Serve(ctx, id, newWSConn(conn, s.maxPromptBytes))
	s.clients.SetState(clientID, StateDisconnected)

	logger.Info().
		Stringer("session_id", id).
		Str("outcome", string(result.Outcome)).
		Int("fragments", result.Fragments).
		Msg("Stream client disconnected")
}

// requestContext derives a traced context from an incoming request,
// honoring a caller-provided X-Trace-Id
func (s *Server) requestContext(r *http.Request) context.Context {
	if traceID := r.Header.Get("X-Trace-Id"); traceID != "" {
		return tracing.WithTraceID(r.Context(), traceID)
	}
	return tracing.NewRequestContext(r.Context())
}

// RegisterMethod registers an RPC method handler
func (s *Server) RegisterMethod(name string, handler RequestHandler) error {
	return s.router.RegisterMethod(name, handler)
}

// UnregisterMethod unregisters an RPC method handler
func (s *Server) UnregisterMethod(name string) {
	s.router.UnregisterMethod(name)
}

// GetConnectedClients returns information about all stream clients
func (s *Server) GetConnectedClients() []ClientInfo {
	return s.clients.GetConnectedClients()
}
