package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/mdaskalov/homebridge-tasmota-zbbridge-sub000/internal/accessory"
	"github.com/mdaskalov/homebridge-tasmota-zbbridge-sub000/internal/history"
	"github.com/mdaskalov/homebridge-tasmota-zbbridge-sub000/internal/infrastructure/config"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// healthCheckTimeout bounds each component check behind /health.
const healthCheckTimeout = 2 * time.Second

// Logger is the logging surface the server needs. *logging.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// HealthChecker is implemented by components reported on /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Metrics     config.MetricsConfig
	Logger      Logger
	Accessories *accessory.Registry

	// History serves the history endpoint. Optional.
	History history.Repository

	// MetricsHandler is mounted at Metrics.Path when metrics are enabled. Optional.
	MetricsHandler http.Handler

	// Checks are reported by name on /health. Optional.
	Checks map[string]HealthChecker

	// Hub is used instead of a server-owned hub when set, so accessories
	// can be wired to it before the server starts.
	Hub *Hub

	Version string
}

// Server is the HTTP API server of the bridge.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg            config.APIConfig
	wsCfg          config.WebSocketConfig
	metricsCfg     config.MetricsConfig
	logger         Logger
	accessories    *accessory.Registry
	history        history.Repository
	metricsHandler http.Handler
	checks         map[string]HealthChecker
	version        string

	hub         *Hub
	externalHub bool

	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
	mu       sync.Mutex
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Accessories == nil {
		return nil, fmt.Errorf("accessory registry is required")
	}

	s := &Server{
		cfg:            deps.Config,
		wsCfg:          deps.WS,
		metricsCfg:     deps.Metrics,
		logger:         deps.Logger,
		accessories:    deps.Accessories,
		history:        deps.History,
		metricsHandler: deps.MetricsHandler,
		checks:         deps.Checks,
		version:        deps.Version,
	}

	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	} else {
		s.hub = NewHub(deps.WS, deps.Logger)
	}

	return s, nil
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub { return s.hub }

// Start binds the listener and serves in a background goroutine.
//
// Binding happens before Start returns so a port conflict is reported to
// the caller. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return nil
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.ReadTimeout(),
		ReadHeaderTimeout: s.cfg.ReadTimeout(),
		WriteTimeout:      s.cfg.WriteTimeout(),
		IdleTimeout:       s.cfg.IdleTimeout(),
	}

	s.logger.Info("API server starting", "address", ln.Addr().String())

	srv := s.server
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.server
	cancel := s.cancel
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if cancel != nil {
		cancel()
	}

	ctx, done := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer done()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
