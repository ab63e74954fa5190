package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/screentime-core/internal/infrastructure/config"
	"github.com/nerrad567/screentime-core/internal/infrastructure/logging"
	"github.com/nerrad567/screentime-core/internal/override"
	"github.com/nerrad567/screentime-core/internal/restriction"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Controller is the override surface the API drives.
// override.Controller satisfies it.
type Controller interface {
	Dispatch(ctx context.Context, cmd override.Command, src override.Source) (override.Result, error)
	Status(ctx context.Context) (override.Status, error)
	SetRestrictions(ctx context.Context, s restriction.State) error
	Subscribe(fn func(override.Event)) (unsubscribe func())
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Security   config.SecurityConfig
	Timetable  config.TimetableConfig
	Logger     *logging.Logger
	Controller Controller
	History    override.HistoryRepository // optional: /history returns 503 without it
	Version    string
	Now        func() time.Time // optional: defaults to time.Now
}

// Server is the HTTP API server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	secCfg     config.SecurityConfig
	ttCfg      config.TimetableConfig
	logger     *logging.Logger
	controller Controller
	history    override.HistoryRepository
	version    string
	now        func() time.Time

	hub         *Hub
	server      *http.Server
	listener    net.Listener
	cancel      context.CancelFunc
	unsubscribe func()
	mu          sync.Mutex
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, controller)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Controller == nil {
		return nil, fmt.Errorf("override controller is required")
	}

	now := deps.Now
	if now == nil {
		now = time.Now
	}

	return &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		secCfg:     deps.Security,
		ttCfg:      deps.Timetable,
		logger:     deps.Logger,
		controller: deps.Controller,
		history:    deps.History,
		version:    deps.Version,
		now:        now,
		hub:        NewHub(deps.WS, deps.Logger),
	}, nil
}

// Start binds the listener, relays override events to the WebSocket hub
// and serves HTTP in the background.
//
// Parameters:
//   - ctx: Parent context for the hub; Close stops everything
//
// Returns:
//   - error: If the address cannot be bound
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("binding api server on %s: %w", addr, err)
	}
	s.listener = ln

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)
	s.unsubscribe = s.controller.Subscribe(s.relayEvent)

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server started", "address", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return nil
	}

	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
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

// relayEvent forwards a controller event to WebSocket clients.
func (s *Server) relayEvent(e override.Event) {
	s.hub.Broadcast(string(e.Type), e)
}
