package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/sessionshare/apierror"
)

type funcRefresher func(ctx context.Context) (string, error)

func (f funcRefresher) Refresh(ctx context.Context) (string, error) { return f(ctx) }

func TestClient_InjectsBearerToken(t *testing.T) {
	var gotAuth string
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer mockServer.Close()

	c := New(mockServer.URL, StaticTokenProvider("tkn123"), nil)
	var out map[string]string
	err := c.Get(context.Background(), "/ping", &out)

	require.NoError(t, err)
	assert.Equal(t, "Bearer tkn123", gotAuth)
	assert.Equal(t, "ok", out["status"])
}

func TestClient_AbsentCredentialSendsNoHeader(t *testing.T) {
	var sawHeader bool
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawHeader = r.Header["Authorization"]
		w.WriteHeader(http.StatusOK)
	}))
	defer mockServer.Close()

	c := New(mockServer.URL, StaticTokenProvider(""), nil)
	err := c.Get(context.Background(), "/ping", nil)

	require.NoError(t, err)
	assert.False(t, sawHeader, "no Authorization header expected without a credential")
}

func TestClient_ResolvesUnderAPIPrefix(t *testing.T) {
	var gotPath string
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer mockServer.Close()

	// Trailing slash on the base URL must not produce a double slash.
	c := New(mockServer.URL+"/", StaticTokenProvider("t"), nil)
	require.NoError(t, c.Get(context.Background(), "/session-sharing/public", nil))
	assert.Equal(t, "/api/session-sharing/public", gotPath)
}

func TestClient_RefreshAndRetryOnce(t *testing.T) {
	var refreshes atomic.Int32
	store := NewTokenStore("stale", "refresh-1")

	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer mockServer.Close()

	refresher := funcRefresher(func(ctx context.Context) (string, error) {
		refreshes.Add(1)
		store.SetTokens("fresh", "refresh-2")
		return "fresh", nil
	})

	c := New(mockServer.URL, store, refresher)
	var out map[string]string
	err := c.Get(context.Background(), "/ping", &out)

	require.NoError(t, err)
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, int32(1), refreshes.Load())
}

func TestClient_SecondUnauthorizedIsTerminal(t *testing.T) {
	var requests atomic.Int32
	var refreshes atomic.Int32

	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(apierror.Response{Error: "nope", Type: apierror.TypeUnauthorized})
	}))
	defer mockServer.Close()

	refresher := funcRefresher(func(ctx context.Context) (string, error) {
		refreshes.Add(1)
		return "still-bad", nil
	})

	c := New(mockServer.URL, StaticTokenProvider("bad"), refresher)
	err := c.Get(context.Background(), "/ping", nil)

	require.Error(t, err)
	assert.True(t, apierror.IsUnauthorized(err))
	assert.Equal(t, int32(2), requests.Load(), "exactly one retry expected")
	assert.Equal(t, int32(1), refreshes.Load())
}

func TestClient_NilRefresherDisablesRetry(t *testing.T) {
	var requests atomic.Int32
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer mockServer.Close()

	c := New(mockServer.URL, StaticTokenProvider("t"), nil)
	err := c.Get(context.Background(), "/ping", nil)

	require.Error(t, err)
	assert.True(t, apierror.IsUnauthorized(err))
	assert.Equal(t, int32(1), requests.Load())
}

func TestClient_RefreshFailureSurfacesAsAuthRefresh(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer mockServer.Close()

	refresher := funcRefresher(func(ctx context.Context) (string, error) {
		return "", fmt.Errorf("identity provider unreachable")
	})

	c := New(mockServer.URL, StaticTokenProvider("t"), refresher)
	err := c.Get(context.Background(), "/ping", nil)

	require.Error(t, err)
	assert.True(t, apierror.IsAuthRefresh(err))
}

func TestClient_ConcurrentRequestsShareOneRefresh(t *testing.T) {
	const workers = 16

	var refreshes atomic.Int32
	store := NewTokenStore("stale", "refresh-1")

	// Hold every 401 until all workers have arrived, so their refresh
	// attempts overlap and must collapse into a single flight.
	var arrivals atomic.Int32
	allArrived := make(chan struct{})

	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer fresh" {
			w.WriteHeader(http.StatusOK)
			return
		}
		if arrivals.Add(1) == workers {
			close(allArrived)
		}
		<-allArrived
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer mockServer.Close()

	refresher := funcRefresher(func(ctx context.Context) (string, error) {
		refreshes.Add(1)
		time.Sleep(200 * time.Millisecond)
		store.SetTokens("fresh", "")
		return "fresh", nil
	})

	c := New(mockServer.URL, store, refresher)

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.Get(context.Background(), "/ping", nil)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "worker %d", i)
	}
	assert.Equal(t, int32(1), refreshes.Load(), "all workers must share a single refresh")
}

func TestClient_RefreshCancelledByCallerDeadline(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer mockServer.Close()

	refresher := funcRefresher(func(ctx context.Context) (string, error) {
		time.Sleep(2 * time.Second)
		return "late", nil
	})

	c := New(mockServer.URL, StaticTokenProvider("t"), refresher)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := c.Get(ctx, "/ping", nil)

	require.Error(t, err)
	assert.True(t, apierror.IsType(err, apierror.TypeTimeout))
}

func TestClient_TimeoutClassification(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer mockServer.Close()

	c := New(mockServer.URL, StaticTokenProvider("t"), nil, WithTimeout(50*time.Millisecond))
	err := c.Get(context.Background(), "/slow", nil)

	require.Error(t, err)
	assert.True(t, apierror.IsType(err, apierror.TypeTimeout))
}

func TestClient_NetworkErrorClassification(t *testing.T) {
	// Reserved TEST-NET-1 address, nothing listens there.
	c := New("http://192.0.2.1:9", StaticTokenProvider("t"), nil, WithTimeout(250*time.Millisecond))
	err := c.Get(context.Background(), "/ping", nil)

	require.Error(t, err)
	isTransport := apierror.IsType(err, apierror.TypeNetwork) || apierror.IsType(err, apierror.TypeTimeout)
	assert.True(t, isTransport, "expected a transport-level error, got %v", err)
}

func TestClient_DecodesStructuredErrors(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(apierror.Response{
			Error:   "session not found",
			Type:    apierror.TypeNotFound,
			Context: map[string]any{"session_id": "missing"},
		})
	}))
	defer mockServer.Close()

	c := New(mockServer.URL, StaticTokenProvider("t"), nil)
	err := c.Get(context.Background(), "/session-sharing/sessions/missing", nil)

	require.Error(t, err)
	assert.True(t, apierror.IsNotFound(err))

	apiErr := apierror.AsError(err)
	assert.Equal(t, "session not found", apiErr.Message)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "GET /session-sharing/sessions/missing", apiErr.Context["operation"])
}

func TestClient_PostEncodesJSONBody(t *testing.T) {
	var gotContentType string
	var gotBody map[string]any
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer mockServer.Close()

	c := New(mockServer.URL, StaticTokenProvider("t"), nil)
	err := c.Post(context.Background(), "/things", map[string]string{"title": "Demo"}, nil)

	require.NoError(t, err)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "Demo", gotBody["title"])
}
