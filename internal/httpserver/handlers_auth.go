package httpserver

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pscheid92/sessionshare/apierror"
	"github.com/pscheid92/sessionshare/internal/auth"
	"github.com/pscheid92/sessionshare/internal/metrics"
)

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPairResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// handleRefreshToken exchanges a valid refresh token for a fresh pair. Both
// tokens rotate on every exchange.
func (s *Server) handleRefreshToken(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return apierror.ValidationError("invalid request body")
	}
	if req.RefreshToken == "" {
		return apierror.ValidationError("refresh_token is required")
	}

	identity, err := s.tokens.VerifyRefresh(req.RefreshToken)
	if err != nil {
		metrics.TokenGrantsTotal.WithLabelValues("rejected").Inc()
		return unauthorized(c, "invalid or expired refresh token")
	}

	pair, err := s.tokens.IssuePair(*identity)
	if err != nil {
		return apierror.InternalError("failed to issue token pair", err)
	}
	metrics.TokenGrantsTotal.WithLabelValues("issued").Inc()

	resp := tokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	}
	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

// IssueTokenPair mints a pair directly, bypassing the HTTP surface. Login is
// delegated to the identity provider in front of this service; this helper
// exists for local tooling and tests.
func (s *Server) IssueTokenPair(identity auth.Identity) (*auth.TokenPair, error) {
	return s.tokens.IssuePair(identity)
}
