// Package microservice hosts the HTTP surface of a long-running fizzgrid
// process: health probes, Prometheus metrics and cache debugging.
package microservice

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// BaseConfig holds the fields shared by every fizzgrid service.
type BaseConfig struct {
	LogLevel    string `yaml:"log_level"`
	HTTPPort    string `yaml:"http_port"`
	ServiceName string `yaml:"service_name"`
}

// Service is a component with an HTTP surface and a lifecycle.
type Service interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
	Router() chi.Router
	GetHTTPPort() string
}

// BaseServer serves /healthz and /metrics; callers mount their own routes on
// Router before Start.
type BaseServer struct {
	Logger     zerolog.Logger
	HTTPPort   string
	httpServer *http.Server
	router     chi.Router
	actualAddr string
	mu         sync.RWMutex
}

// NewBaseServer creates a server. gatherer may be nil, in which case the
// default Prometheus registry is exposed.
func NewBaseServer(logger zerolog.Logger, httpPort string, gatherer prometheus.Gatherer) *BaseServer {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", HealthzHandler)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return &BaseServer{
		Logger:   logger.With().Str("component", "BaseServer").Logger(),
		HTTPPort: httpPort,
		router:   r,
		httpServer: &http.Server{
			Addr:              httpPort,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start listens and serves in a background goroutine.
func (s *BaseServer) Start() error {
	listener, err := net.Listen("tcp", s.HTTPPort)
	if err != nil {
		return fmt.Errorf("failed to listen on port %s: %w", s.HTTPPort, err)
	}

	s.mu.Lock()
	s.actualAddr = listener.Addr().String()
	s.mu.Unlock()

	s.Logger.Info().Str("address", s.actualAddr).Msg("HTTP server starting to listen")

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Logger.Error().Err(err).Msg("HTTP server failed")
		}
	}()
	return nil
}

// Shutdown gracefully stops the server within ctx's deadline.
func (s *BaseServer) Shutdown(ctx context.Context) error {
	s.Logger.Info().Msg("Shutting down HTTP server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.Logger.Error().Err(err).Msg("Error during HTTP server shutdown.")
		return err
	}
	s.Logger.Info().Msg("HTTP server stopped.")
	return nil
}

// GetHTTPPort returns the port actually bound, e.g. when configured as ":0".
func (s *BaseServer) GetHTTPPort() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, port, err := net.SplitHostPort(s.actualAddr)
	if err != nil {
		return s.HTTPPort
	}
	return ":" + port
}

// Router exposes the router so callers can mount routes before Start.
func (s *BaseServer) Router() chi.Router {
	return s.router
}

// HealthzHandler responds to health check probes.
func HealthzHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
