package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/pscheid92/sessionshare/apierror"
)

const refreshTimeout = 10 * time.Second

// TokenProvider supplies the current credential on demand. An empty string
// means no credential is available.
type TokenProvider interface {
	Token() string
}

// TokenRefresher performs one remote credential renewal and returns the new
// access credential. Persisting the renewed credential is the refresher's
// concern; the Client only consumes the returned value.
type TokenRefresher interface {
	Refresh(ctx context.Context) (string, error)
}

// StaticTokenProvider always returns the same credential. Useful for tests
// and service-to-service tokens that never rotate.
type StaticTokenProvider string

// Token implements TokenProvider.
func (p StaticTokenProvider) Token() string { return string(p) }

// TokenStore holds an access/refresh credential pair in memory. It
// implements TokenProvider and is the persistence target of RefreshClient.
type TokenStore struct {
	mu           sync.RWMutex
	accessToken  string
	refreshToken string
}

// NewTokenStore creates a TokenStore seeded with an initial pair.
func NewTokenStore(accessToken, refreshToken string) *TokenStore {
	return &TokenStore{accessToken: accessToken, refreshToken: refreshToken}
}

// Token returns the current access credential.
func (s *TokenStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// RefreshToken returns the current refresh credential.
func (s *TokenStore) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

// SetTokens replaces the stored pair. An empty refresh token keeps the
// previous one (the remote side may not rotate it on every grant).
func (s *TokenStore) SetTokens(accessToken, refreshToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = accessToken
	if refreshToken != "" {
		s.refreshToken = refreshToken
	}
}

// RefreshClient renews the credential pair against the service's auth
// refresh endpoint and persists the result into its TokenStore.
type RefreshClient struct {
	endpoint   string
	store      *TokenStore
	httpClient *http.Client
}

// NewRefreshClient creates a RefreshClient targeting {baseURL}/api/auth/refresh.
func NewRefreshClient(baseURL string, store *TokenStore) *RefreshClient {
	return &RefreshClient{
		endpoint:   baseURL + "/api/auth/refresh",
		store:      store,
		httpClient: &http.Client{Timeout: refreshTimeout},
	}
}

// Refresh implements TokenRefresher.
func (r *RefreshClient) Refresh(ctx context.Context) (string, error) {
	payload, err := json.Marshal(map[string]string{"refresh_token": r.store.RefreshToken()})
	if err != nil {
		return "", apierror.AuthRefreshError(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", apierror.AuthRefreshError(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", apierror.AuthRefreshError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apierror.AuthRefreshError(err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", apierror.AuthRefreshError(fmt.Errorf("refresh failed with status %d: %s", resp.StatusCode, string(body)))
	}

	var result struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", apierror.AuthRefreshError(err)
	}

	r.store.SetTokens(result.AccessToken, result.RefreshToken)
	return result.AccessToken, nil
}
