package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/custodia-labs/flight-catalog/internal/core/ports/driven"
	"github.com/custodia-labs/flight-catalog/internal/core/ports/driving"
)

// Pinger is a simple health check interface
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger
type PingFunc func(ctx context.Context) error

// Ping calls f(ctx)
func (f PingFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// Server is the operational HTTP surface: liveness, readiness, counters,
// a manual resync trigger, and a search probe against the live index.
type Server struct {
	echo    *echo.Echo
	addr    string
	version string
	logger  *slog.Logger

	// Services
	availability driving.AvailabilityService // Optional
	scheduler    driving.Scheduler           // Optional
	search       driving.SearchService       // Optional
	seats        driving.SeatService         // Optional

	// Infrastructure
	bus          driven.EventSubscriber // Optional
	checks       map[string]Pinger
	checkOrder   []string
	checkTimeout time.Duration
}

// Config holds server configuration
type Config struct {
	Host         string
	Port         int
	Version      string
	CheckTimeout time.Duration // Per-dependency readiness timeout
	Logger       *slog.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:         "0.0.0.0",
		Port:         8080,
		Version:      "dev",
		CheckTimeout: 3 * time.Second,
	}
}

// Dependencies are the components the ops endpoints report on.
// Any of them may be nil; the matching section is omitted.
type Dependencies struct {
	Availability driving.AvailabilityService
	Scheduler    driving.Scheduler
	Search       driving.SearchService
	Seats        driving.SeatService
	Bus          driven.EventSubscriber

	// Readiness checks by name (e.g., "postgres", "redis", "vespa")
	Checks map[string]Pinger
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, deps Dependencies) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	checkTimeout := cfg.CheckTimeout
	if checkTimeout <= 0 {
		checkTimeout = 3 * time.Second
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:         e,
		addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		version:      cfg.Version,
		logger:       logger,
		availability: deps.Availability,
		scheduler:    deps.Scheduler,
		search:       deps.Search,
		seats:        deps.Seats,
		bus:          deps.Bus,
		checks:       make(map[string]Pinger),
		checkTimeout: checkTimeout,
	}
	for name, p := range deps.Checks {
		if p == nil {
			continue
		}
		s.checks[name] = p
		s.checkOrder = append(s.checkOrder, name)
	}

	e.Server.ReadTimeout = 30 * time.Second
	e.Server.WriteTimeout = 30 * time.Second
	e.Server.IdleTimeout = 60 * time.Second

	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())
	s.echo.Use(RequestLogger(s.logger))

	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/ready", s.handleReady)
	s.echo.GET("/version", s.handleVersion)
	s.echo.GET("/stats", s.handleStats)

	s.echo.POST("/admin/resync", s.handleResync)
	s.echo.POST("/admin/search", s.handleSearch)
	s.echo.GET("/admin/flights/:flightID/seats", s.handleFlightSeats)
	s.echo.GET("/admin/seats/:seatID", s.handleSeat)
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("ops server listening", "addr", s.addr)
		if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.logger.Info("shutting down ops server")
	if err := s.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
