package httpserver

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints (no auth required)
	s.registerHealthRoutes()
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Token refresh is rate limited per IP and deliberately unauthenticated:
	// its whole point is to trade an expired access token for a fresh one.
	authLimiter := newRateLimiter(s.config.AuthRatePerSecond, s.config.AuthRateBurst)
	s.echo.POST("/api/auth/refresh", s.handleRefreshToken, authLimiter)

	// Session-sharing API (bearer token required)
	api := s.echo.Group("/api/session-sharing", s.requireUser)
	api.POST("/share", s.handleShareSession)
	api.GET("/public", s.handlePublicSessions)
	api.GET("/sessions/:id", s.handleGetSession)
	api.POST("/sessions/:id/join", s.handleJoinSession, newRateLimiter(s.config.JoinRatePerSecond, s.config.JoinRateBurst))
	api.POST("/sessions/:id/invite", s.handleInviteUser)
	api.PUT("/sessions/:id/visibility", s.handleUpdateVisibility)
	api.GET("/sessions/:id/participants", s.handleSessionParticipants)
}
