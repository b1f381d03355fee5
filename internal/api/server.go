package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/loxhome-core/internal/dashboard"
	"github.com/nerrad567/loxhome-core/internal/discovery"
	"github.com/nerrad567/loxhome-core/internal/handshake"
	"github.com/nerrad567/loxhome-core/internal/hass"
	"github.com/nerrad567/loxhome-core/internal/infrastructure/config"
	"github.com/nerrad567/loxhome-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/loxhome-core/internal/infrastructure/logging"
	"github.com/nerrad567/loxhome-core/internal/state"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Backend is the connection manager surface the API needs.
// Satisfied by *hass.Manager.
type Backend interface {
	Connected() *state.Store[bool]
	States() *state.Store[hass.States]
	Credential() *state.Store[*handshake.Credential]
	Discover(ctx context.Context) (discovery.Result, error)
	Toggle(ctx context.Context, entityID string)
	Call(ctx context.Context, domain, service string, data map[string]any, target *hass.Target)
}

// History reports the state history sink. Satisfied by *influxdb.Recorder.
type History interface {
	Stats() influxdb.Stats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	WS        config.WebSocketConfig
	Panel     config.PanelConfig
	Logger    *logging.Logger
	Backend   Backend
	Dashboard *dashboard.Store
	Version   string

	// History is optional; health reports it when set.
	History History
}

// Server is the HTTP API server for LoxHome Core.
//
// It manages the HTTP listener, routes, middleware, the push hub and the
// handshake host endpoint for embedded frames.
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	panelCfg  config.PanelConfig
	logger    *logging.Logger
	backend   Backend
	dashboard *dashboard.Store
	history   History
	version   string
	server    *http.Server
	hub       *Hub

	// ctx is cancelled by Close; long-lived frame connections watch it.
	ctx    context.Context
	cancel context.CancelFunc

	unsubscribe []func()
	frames      sync.WaitGroup
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, backend, dashboard store)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if deps.Dashboard == nil {
		return nil, fmt.Errorf("dashboard store is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		panelCfg:  deps.Panel,
		logger:    deps.Logger,
		backend:   deps.Backend,
		dashboard: deps.Dashboard,
		history:   deps.History,
		version:   deps.Version,
		ctx:       ctx,
		cancel:    cancel,
	}
	s.hub = NewHub(s.wsCfg, s.logger)
	s.hub.SetSnapshot(s.channelSnapshot)
	return s, nil
}

// Start begins listening for HTTP connections.
//
// It starts the push hub, relays state and dashboard config changes to
// subscribed WebSocket clients, and launches the HTTP listener in a
// background goroutine. The server can be stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation of background goroutines
//
// Returns:
//   - error: If the server fails to start
func (s *Server) Start(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			s.cancel()
		case <-s.ctx.Done():
		}
	}()
	go s.hub.Run(s.ctx)

	s.relayStores()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// relayStores forwards store changes to the push hub. The first delivery
// of each subscription happens before any client can connect and reaches
// nobody.
func (s *Server) relayStores() {
	s.unsubscribe = append(s.unsubscribe,
		s.backend.States().Subscribe(func(states hass.States) {
			s.hub.Broadcast(ChannelEntityStates, states)
		}),
		s.dashboard.Config().Subscribe(func(cfg dashboard.Config) {
			s.hub.Broadcast(ChannelDashboardConfig, cfg)
		}),
	)
}

// channelSnapshot returns the current value of a channel, sent to clients
// right after they subscribe.
func (s *Server) channelSnapshot(channel Channel) (any, bool) {
	switch channel {
	case ChannelEntityStates:
		return s.backend.States().Get(), true
	case ChannelDashboardConfig:
		return s.dashboard.Config().Get(), true
	default:
		return nil, false
	}
}

// Close gracefully shuts down the API server.
//
// It closes frame connections and push clients, then waits up to 10 seconds
// for in-flight requests to complete.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	s.cancel()
	for _, unsubscribe := range s.unsubscribe {
		unsubscribe()
	}
	s.unsubscribe = nil
	s.frames.Wait()

	if s.server == nil {
		return nil
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

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
