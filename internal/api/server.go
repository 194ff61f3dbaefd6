package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/houseflow/lighthouse/internal/auth"
	"github.com/houseflow/lighthouse/internal/device"
	"github.com/houseflow/lighthouse/internal/fulfillment"
	"github.com/houseflow/lighthouse/internal/infrastructure/config"
	"github.com/houseflow/lighthouse/internal/infrastructure/logging"
	"github.com/houseflow/lighthouse/internal/tunnel"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is implemented by components reported on /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	Tunnel      config.TunnelConfig
	Logger      *logging.Logger
	Auth        *auth.Service
	Devices     *device.Registry
	DeviceAuth  *device.Authenticator
	Hub         *tunnel.Tunnel
	Fulfillment *fulfillment.Service

	// Checks are reported by name on the health endpoint. Optional.
	Checks map[string]HealthChecker

	// Clients are reported by name on the metrics endpoint. Optional.
	Clients map[string]ConnectionStatus

	// DB provides pool statistics for the metrics endpoint. Optional.
	DB DBStatter

	Version string
}

// Server is the HTTP API server.
type Server struct {
	cfg         config.APIConfig
	tunnelCfg   config.TunnelConfig
	logger      *logging.Logger
	auth        *auth.Service
	devices     *device.Registry
	deviceAuth  *device.Authenticator
	hub         *tunnel.Tunnel
	fulfillment *fulfillment.Service
	checks      map[string]HealthChecker
	clients     map[string]ConnectionStatus
	db          DBStatter
	version     string
	startTime   time.Time

	server *http.Server

	// ctx bounds tunnel sessions, which outlive http.Server.Shutdown once
	// their connections are hijacked.
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	case deps.Auth == nil:
		return nil, fmt.Errorf("auth service is required")
	case deps.Devices == nil:
		return nil, fmt.Errorf("device registry is required")
	case deps.DeviceAuth == nil:
		return nil, fmt.Errorf("device authenticator is required")
	case deps.Hub == nil:
		return nil, fmt.Errorf("tunnel is required")
	}

	ff := deps.Fulfillment
	if ff == nil {
		ff = fulfillment.NewService(deps.Devices, deps.Hub, fulfillment.Options{})
	}
	if deps.Tunnel.Path == "" {
		deps.Tunnel.Path = "/lighthouse/ws"
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:         deps.Config,
		tunnelCfg:   deps.Tunnel,
		logger:      deps.Logger,
		auth:        deps.Auth,
		devices:     deps.Devices,
		deviceAuth:  deps.DeviceAuth,
		hub:         deps.Hub,
		fulfillment: ff,
		checks:      deps.Checks,
		clients:     deps.Clients,
		db:          deps.DB,
		version:     deps.Version,
		startTime:   time.Now(),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// Tunnel sessions served by this server are cancelled; the server then
// waits up to 10 seconds for in-flight requests to complete.
func (s *Server) Close() error {
	s.cancel()

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
