package httpserver

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/pscheid92/sessionshare/apierror"
	"github.com/pscheid92/sessionshare/internal/metrics"
	"github.com/pscheid92/sessionshare/internal/platform/correlation"
)

const (
	contextKeyUserID = "userID"
	contextKeyEmail  = "userEmail"
)

// correlationMiddleware tags each request context with a correlation ID,
// honoring an inbound X-Request-ID and echoing the ID back in the response.
func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Request().Header.Get(correlation.HeaderName)
		if id == "" {
			id = correlation.NewID()
		}
		c.Response().Header().Set(correlation.HeaderName, id)

		ctx := correlation.WithID(c.Request().Context(), id)
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

// requestMetricsMiddleware records request counts and latency per route.
func requestMetricsMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)

		route := c.Path()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request().Method
		status := c.Response().Status
		if err != nil {
			if apiErr := apierror.AsError(err); apiErr != nil {
				status = apiErr.HTTPStatus()
			}
		}

		metrics.HTTPRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		metrics.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
		return err
	}
}

// requireUser authenticates the bearer token and stores the caller identity
// in the echo context. A missing or bad token yields 401, the status the API
// client treats as its refresh trigger.
func (s *Server) requireUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, ok := bearerToken(c.Request().Header.Get("Authorization"))
		if !ok {
			return unauthorized(c, "missing bearer token")
		}

		identity, err := s.tokens.VerifyAccess(token)
		if err != nil {
			return unauthorized(c, "invalid or expired access token")
		}

		c.Set(contextKeyUserID, identity.UserID)
		c.Set(contextKeyEmail, identity.Email)
		return next(c)
	}
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return header[len(prefix):], true
}

// unauthorized writes a 401 directly instead of returning an *apierror.Error:
// the taxonomy reserves 403 for role violations, while a failed
// authentication must surface as 401.
func unauthorized(c echo.Context, message string) error {
	apierror.HTTPErrorsTotal.WithLabelValues(string(apierror.TypeUnauthorized)).Inc()
	return c.JSON(http.StatusUnauthorized, apierror.Response{
		Error: message,
		Type:  apierror.TypeUnauthorized,
	})
}

func (s *Server) currentUserID(c echo.Context) (string, error) {
	userID, ok := c.Get(contextKeyUserID).(string)
	if !ok || userID == "" {
		return "", apierror.InternalError("no user identity in request context", nil)
	}
	return userID, nil
}
