// Package apierror defines the closed error taxonomy shared by the
// session-sharing service and its API client. Errors are constructed once at
// the boundary where the condition is known (a handler, or the spot in the
// client where the HTTP status is observed) so that downstream code never
// re-inspects raw status codes.
package apierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Type represents the category of error for response formatting and metrics.
type Type string

const (
	// TypeValidation indicates malformed or contradictory input (HTTP 400).
	TypeValidation Type = "validation"
	// TypeUnauthorized indicates the caller lacks the required role (HTTP 403).
	TypeUnauthorized Type = "unauthorized"
	// TypeNotFound indicates the resource does not exist (HTTP 404).
	TypeNotFound Type = "not_found"
	// TypeConflict indicates a state conflict (HTTP 409).
	TypeConflict Type = "conflict"
	// TypeExpired indicates a session or invitation past its expiry (HTTP 410).
	TypeExpired Type = "expired"
	// TypeWrongPassword indicates a missing or incorrect session password (HTTP 403).
	TypeWrongPassword Type = "wrong_password"
	// TypeCapacityExceeded indicates the session's viewer limit is reached (HTTP 403).
	TypeCapacityExceeded Type = "capacity_exceeded"
	// TypeNetwork indicates a transport-level failure with no response.
	TypeNetwork Type = "network"
	// TypeTimeout indicates the request exceeded its deadline.
	TypeTimeout Type = "timeout"
	// TypeAuthRefresh indicates the credential refresh itself failed.
	TypeAuthRefresh Type = "auth_refresh"
	// TypeInternal indicates a server-side error (HTTP 500).
	TypeInternal Type = "internal"
)

// Error is a structured error with type, message, and request context.
type Error struct {
	Type    Type
	Message string
	// Status is the HTTP status observed on the wire, or 0 when the error
	// never had a response (network failures, local validation).
	Status  int
	Cause   error
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the status code a server should respond with for this
// error type. Wrong-password, capacity, and role violations all map to 403;
// the Type field in the response body keeps them distinguishable.
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeValidation:
		return http.StatusBadRequest
	case TypeUnauthorized, TypeWrongPassword, TypeCapacityExceeded:
		return http.StatusForbidden
	case TypeNotFound:
		return http.StatusNotFound
	case TypeConflict:
		return http.StatusConflict
	case TypeExpired:
		return http.StatusGone
	case TypeAuthRefresh:
		return http.StatusUnauthorized
	case TypeNetwork:
		return http.StatusBadGateway
	case TypeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ValidationError creates a validation error.
func ValidationError(message string) *Error {
	return &Error{Type: TypeValidation, Message: message}
}

// UnauthorizedError creates a permission error.
func UnauthorizedError(message string) *Error {
	return &Error{Type: TypeUnauthorized, Message: message}
}

// NotFoundError creates a not-found error.
func NotFoundError(message string) *Error {
	return &Error{Type: TypeNotFound, Message: message}
}

// ConflictError creates a conflict error.
func ConflictError(message string) *Error {
	return &Error{Type: TypeConflict, Message: message}
}

// ExpiredError creates an expiry error.
func ExpiredError(message string) *Error {
	return &Error{Type: TypeExpired, Message: message}
}

// WrongPasswordError creates a wrong-password error.
func WrongPasswordError(message string) *Error {
	return &Error{Type: TypeWrongPassword, Message: message}
}

// CapacityExceededError creates a capacity error.
func CapacityExceededError(message string) *Error {
	return &Error{Type: TypeCapacityExceeded, Message: message}
}

// NetworkError creates a transport-level error with no response.
func NetworkError(message string, cause error) *Error {
	return &Error{Type: TypeNetwork, Message: message, Cause: cause}
}

// TimeoutError creates a deadline error.
func TimeoutError(message string, cause error) *Error {
	return &Error{Type: TypeTimeout, Message: message, Cause: cause}
}

// AuthRefreshError creates an error signalling that the credential refresh
// itself failed. Callers typically map this to a re-authentication flow.
func AuthRefreshError(cause error) *Error {
	return &Error{Type: TypeAuthRefresh, Message: "credential refresh failed", Cause: cause}
}

// InternalError creates a server-side error.
func InternalError(message string, cause error) *Error {
	return &Error{Type: TypeInternal, Message: message, Cause: cause}
}

// WithContext adds a context field to the error (chainable).
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithStatus records the HTTP status observed on the wire (chainable).
func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	return e
}

// IsType reports whether err is (or wraps) an *Error of the given type.
func IsType(err error, t Type) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Type == t
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return IsType(err, TypeNotFound) }

// IsUnauthorized reports whether err is a permission error.
func IsUnauthorized(err error) bool { return IsType(err, TypeUnauthorized) }

// IsExpired reports whether err is an expiry error.
func IsExpired(err error) bool { return IsType(err, TypeExpired) }

// IsWrongPassword reports whether err is a wrong-password error.
func IsWrongPassword(err error) bool { return IsType(err, TypeWrongPassword) }

// IsAuthRefresh reports whether err is a failed credential refresh.
func IsAuthRefresh(err error) bool { return IsType(err, TypeAuthRefresh) }

// Response is the JSON error structure sent over the wire.
type Response struct {
	Error   string         `json:"error"`
	Type    Type           `json:"type"`
	Context map[string]any `json:"context,omitempty"`
}

// ToResponse converts an Error to its wire representation.
func (e *Error) ToResponse() Response {
	return Response{Error: e.Message, Type: e.Type, Context: e.Context}
}

// AsError converts any error into a structured *Error. If err already is
// one, it is returned unchanged; otherwise it is wrapped as internal.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return InternalError("internal server error", err)
}

// FromResponse reconstructs a typed error from an HTTP response the client
// received. The body is expected to carry a Response; when it does not (or
// the type is unknown), the status code decides the category.
func FromResponse(status int, body []byte) *Error {
	var resp Response
	if err := json.Unmarshal(body, &resp); err == nil && resp.Type != "" {
		switch resp.Type {
		case TypeValidation, TypeUnauthorized, TypeNotFound, TypeConflict,
			TypeExpired, TypeWrongPassword, TypeCapacityExceeded,
			TypeAuthRefresh, TypeInternal:
			return &Error{Type: resp.Type, Message: resp.Error, Status: status, Context: resp.Context}
		}
	}

	e := &Error{Status: status, Message: http.StatusText(status)}
	switch status {
	case http.StatusBadRequest:
		e.Type = TypeValidation
	case http.StatusUnauthorized, http.StatusForbidden:
		e.Type = TypeUnauthorized
	case http.StatusNotFound:
		e.Type = TypeNotFound
	case http.StatusConflict:
		e.Type = TypeConflict
	case http.StatusGone:
		e.Type = TypeExpired
	default:
		e.Type = TypeInternal
	}
	return e
}
