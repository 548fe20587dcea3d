// Package httpserver exposes the session-sharing service over HTTP. It
// binds the shared wire structs, delegates every decision to the collab
// service, and renders the structured error taxonomy.
package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/pscheid92/sessionshare/apierror"
	"github.com/pscheid92/sessionshare/internal/auth"
	"github.com/pscheid92/sessionshare/internal/collab"
	"github.com/pscheid92/sessionshare/internal/platform/config"
)

// HealthCheck is a named readiness check.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	collab *collab.Service
	tokens *auth.Manager

	healthChecks []HealthCheck
	startTime    time.Time
}

func NewServer(cfg *config.Config, svc *collab.Service, tokens *auth.Manager, healthChecks []HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(correlationMiddleware)
	e.Use(requestMetricsMiddleware)
	e.Use(apierror.Middleware())

	srv := &Server{
		echo:         e,
		config:       cfg,
		collab:       svc,
		tokens:       tokens,
		healthChecks: healthChecks,
		startTime:    time.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// Handler exposes the echo engine as an http.Handler for tests.
func (s *Server) Handler() *echo.Echo {
	return s.echo
}
