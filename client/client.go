// Package client implements the authenticated API client for the
// session-sharing service. It injects the current bearer credential into
// every outbound request, detects authorization failures, coordinates a
// single credential refresh across arbitrarily many concurrent requests,
// and retries each affected request exactly once.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pscheid92/sessionshare/apierror"
	"github.com/pscheid92/sessionshare/internal/metrics"
)

const (
	defaultTimeout = 30 * time.Second

	// maxAuthRetries bounds the number of re-sends after a 401. A request
	// that fails authorization again after its single retry is never
	// retried further.
	maxAuthRetries = 1

	// refreshKey collapses all concurrent refresh attempts into one flight.
	refreshKey = "credential-refresh"
)

// Client executes authenticated requests against a fixed base URL. All
// paths resolve under {baseURL}/api. A single Client is safe for use by
// many goroutines; the refresh coordinator is the only shared state.
type Client struct {
	apiBase      string
	httpClient   *http.Client
	provider     TokenProvider
	refresher    TokenRefresher
	refreshGroup singleflight.Group
	logger       *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout overrides the fixed round-trip timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithLogger sets the logger used for refresh diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client. The provider supplies the current credential before
// each send; the refresher is invoked when a request observes a 401.
// A nil refresher disables the refresh protocol entirely.
func New(baseURL string, provider TokenProvider, refresher TokenRefresher, opts ...Option) *Client {
	c := &Client{
		apiBase:    strings.TrimSuffix(baseURL, "/") + "/api",
		httpClient: &http.Client{Timeout: defaultTimeout},
		provider:   provider,
		refresher:  refresher,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RequestOption adjusts a single request before it is sent.
type RequestOption func(*request)

// WithHeader sets a per-call header override.
func WithHeader(key, value string) RequestOption {
	return func(r *request) { r.header.Set(key, value) }
}

// request is the immutable description of one logical request. The retry
// counter is threaded through execute explicitly; it is private per-request
// state, never shared.
type request struct {
	method  string
	path    string
	payload []byte
	header  http.Header
}

func (r *request) operation() string {
	return r.method + " " + r.path
}

// Get executes a GET request and decodes the response body into dest.
func (c *Client) Get(ctx context.Context, path string, dest any, opts ...RequestOption) error {
	return c.do(ctx, http.MethodGet, path, nil, dest, opts...)
}

// Post executes a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body, dest any, opts ...RequestOption) error {
	return c.do(ctx, http.MethodPost, path, body, dest, opts...)
}

// Put executes a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body, dest any, opts ...RequestOption) error {
	return c.do(ctx, http.MethodPut, path, body, dest, opts...)
}

// Patch executes a PATCH request with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body, dest any, opts ...RequestOption) error {
	return c.do(ctx, http.MethodPatch, path, body, dest, opts...)
}

// Delete executes a DELETE request.
func (c *Client) Delete(ctx context.Context, path string, dest any, opts ...RequestOption) error {
	return c.do(ctx, http.MethodDelete, path, nil, dest, opts...)
}

func (c *Client) do(ctx context.Context, method, path string, body, dest any, opts ...RequestOption) error {
	req := &request{method: method, path: path, header: make(http.Header)}
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return apierror.ValidationError("failed to encode request body").WithContext("operation", req.operation())
		}
		req.payload = payload
	}
	for _, opt := range opts {
		opt(req)
	}
	return c.execute(ctx, req, c.provider.Token(), 0, dest)
}

// execute sends the request and handles the refresh protocol. retries is
// checked before any retry decision and bounded at maxAuthRetries.
func (c *Client) execute(ctx context.Context, req *request, token string, retries int, dest any) error {
	status, respBody, err := c.send(ctx, req, token)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized && retries < maxAuthRetries && c.refresher != nil {
		fresh, err := c.awaitRefresh(ctx)
		if err != nil {
			return err
		}
		metrics.AuthRetriesTotal.Inc()
		c.logger.Debug("Resubmitting request with renewed credential", "operation", req.operation())
		return c.execute(ctx, req, fresh, retries+1, dest)
	}

	if status >= http.StatusBadRequest {
		return apierror.FromResponse(status, respBody).WithContext("operation", req.operation())
	}

	if dest != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, dest); err != nil {
			return apierror.InternalError("failed to decode response body", err).WithContext("operation", req.operation())
		}
	}
	return nil
}

func (c *Client) send(ctx context.Context, req *request, token string) (int, []byte, error) {
	var reader io.Reader
	if req.payload != nil {
		reader = bytes.NewReader(req.payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.apiBase+req.path, reader)
	if err != nil {
		return 0, nil, apierror.ValidationError("invalid request path").WithContext("operation", req.operation())
	}

	if req.payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	// An absent credential sends without the header; rejecting such
	// requests is the remote side's responsibility.
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	for key, values := range req.header {
		httpReq.Header.Del(key)
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, classifyTransportError(req, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, apierror.NetworkError("failed to read response body", err).WithContext("operation", req.operation())
	}
	return resp.StatusCode, body, nil
}

// awaitRefresh obtains a renewed credential. The first caller observing a
// 401 performs the refresh; every concurrent caller attaches to the same
// in-flight result. Once the refresh settles the flight is cleared, so a
// future 401 starts a fresh cycle.
func (c *Client) awaitRefresh(ctx context.Context) (string, error) {
	ch := c.refreshGroup.DoChan(refreshKey, func() (any, error) {
		// Detached from the triggering caller: cancelling one waiter must
		// not abort the refresh for the others.
		token, err := c.refresher.Refresh(context.WithoutCancel(ctx))
		if err != nil {
			metrics.TokenRefreshesTotal.WithLabelValues("failure").Inc()
			return nil, err
		}
		metrics.TokenRefreshesTotal.WithLabelValues("success").Inc()
		return token, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			c.logger.Warn("Credential refresh failed", "error", res.Err)
			if apierror.IsAuthRefresh(res.Err) {
				return "", res.Err
			}
			return "", apierror.AuthRefreshError(res.Err)
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", apierror.TimeoutError("timed out awaiting credential refresh", ctx.Err())
		}
		return "", apierror.NetworkError("cancelled while awaiting credential refresh", ctx.Err())
	}
}

func classifyTransportError(req *request, err error) error {
	op := req.operation()
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return apierror.TimeoutError("request timed out", err).WithContext("operation", op)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apierror.TimeoutError("request timed out", err).WithContext("operation", op)
	}
	return apierror.NetworkError("request failed", err).WithContext("operation", op)
}
