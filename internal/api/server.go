package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/crowdsense/sensorcloud-core/internal/infrastructure/config"
	"github.com/crowdsense/sensorcloud-core/internal/infrastructure/logging"
	"github.com/crowdsense/sensorcloud-core/internal/registry"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Reconciler is the registration decision procedure the register handler feeds.
type Reconciler interface {
	Reconcile(ctx context.Context, report registry.Report) (registry.Outcome, error)
}

// HealthChecker reports the health of a backing component.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config       config.APIConfig
	Registration config.RegistrationConfig
	Logger       *logging.Logger
	Reconciler   Reconciler
	Database     HealthChecker // optional, reported by /health
	Broker       HealthChecker // optional, reported by /health
	Version      string
}

// Server is the HTTP API server for SensorCloud Core.
//
// It manages the HTTP listener, routes and middleware. The server is
// created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	regCfg     config.RegistrationConfig
	logger     *logging.Logger
	reconciler Reconciler
	database   HealthChecker
	broker     HealthChecker
	version    string
	server     *http.Server
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Reconciler == nil {
		return nil, fmt.Errorf("reconciler is required")
	}

	return &Server{
		cfg:        deps.Config,
		regCfg:     deps.Registration,
		logger:     deps.Logger,
		reconciler: deps.Reconciler,
		database:   deps.Database,
		broker:     deps.Broker,
		version:    deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It builds the router and launches the HTTP listener in a background
// goroutine. The server is stopped with Close().
func (s *Server) Start(_ context.Context) error {
	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
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
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server, waiting for in-flight
// requests up to the shutdown timeout.
func (s *Server) Close() error {
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
