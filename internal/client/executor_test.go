package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jonathan/shop-harvester/internal/auth"
)

type stubProvider struct {
	mu    sync.Mutex
	calls int
	token string
	err   error
}

func (s *stubProvider) Authenticate(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.token, nil
}

func (s *stubProvider) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// newTestExecutor returns an executor with recorded, non-blocking sleeps.
func newTestExecutor(t *testing.T, provider *stubProvider) (*Executor, *[]time.Duration) {
	t.Helper()
	creds := auth.NewCredentials(provider, zap.NewNop())
	creds.SetToken("initial-token")

	exec := NewExecutor(5*time.Second, creds, nil, zap.NewNop())

	var mu sync.Mutex
	delays := &[]time.Duration{}
	exec.sleep = func(_ context.Context, d time.Duration) error {
		mu.Lock()
		defer mu.Unlock()
		*delays = append(*delays, d)
		return nil
	}
	return exec, delays
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

func TestDo_Success_SendsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		writeJSON(w, `{"ok":true}`)
	}))
	defer srv.Close()

	exec, _ := newTestExecutor(t, &stubProvider{token: "x"})

	outcome, err := exec.Do(context.Background(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	require.True(t, outcome.OK())
	assert.Equal(t, "Bearer initial-token", gotAuth)
	assert.JSONEq(t, `{"ok":true}`, string(outcome.Payload))
}

func TestDo_RateLimited_BackoffMonotonicAndCapped(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeJSON(w, `{}`)
	}))
	defer srv.Close()

	exec, delays := newTestExecutor(t, &stubProvider{token: "x"})

	outcome, err := exec.Do(context.Background(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, KindSuccess, outcome.Kind)
	assert.Equal(t, 3, requests)

	require.Len(t, *delays, 2)
	assert.Equal(t, 1*time.Second, (*delays)[0])
	assert.Equal(t, 2*time.Second, (*delays)[1])
}

func TestDo_RateLimited_ExhaustsAttemptCeiling(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	exec, delays := newTestExecutor(t, &stubProvider{token: "x"})

	outcome, err := exec.Do(context.Background(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, KindRateLimited, outcome.Kind)
	assert.Equal(t, MaxAttempts, requests)

	// Delays double from the base and never exceed the cap.
	require.Len(t, *delays, MaxAttempts-1)
	prev := time.Duration(0)
	for _, d := range *delays {
		assert.GreaterOrEqual(t, d, prev)
		assert.LessOrEqual(t, d, BackoffCap)
		prev = d
	}
}

func TestDo_RateLimited_HonorsRetryAfterHeader(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			w.Header().Set("Retry-After", "3")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeJSON(w, `{}`)
	}))
	defer srv.Close()

	exec, delays := newTestExecutor(t, &stubProvider{token: "x"})

	outcome, err := exec.Do(context.Background(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, KindSuccess, outcome.Kind)
	require.Len(t, *delays, 1)
	assert.Equal(t, 3*time.Second, (*delays)[0])
}

func TestDo_AuthExpired_ReauthenticatesExactlyOnce(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"token expired"}`))
	}))
	defer srv.Close()

	provider := &stubProvider{token: "refreshed-token"}
	exec, _ := newTestExecutor(t, provider)

	outcome, err := exec.Do(context.Background(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, KindAuthExpired, outcome.Kind)
	assert.Equal(t, 1, provider.callCount(), "exactly one re-authentication attempt")
	assert.Equal(t, 2, requests, "one retry after the refresh, then give up")
}

func TestDo_AuthExpired_RetrySucceedsWithRefreshedToken(t *testing.T) {
	var tokens []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokens = append(tokens, r.Header.Get("Authorization"))
		if len(tokens) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, `{}`)
	}))
	defer srv.Close()

	provider := &stubProvider{token: "refreshed-token"}
	exec, _ := newTestExecutor(t, provider)

	outcome, err := exec.Do(context.Background(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, KindSuccess, outcome.Kind)
	require.Len(t, tokens, 2)
	assert.Equal(t, "Bearer initial-token", tokens[0])
	assert.Equal(t, "Bearer refreshed-token", tokens[1])
}

func TestDo_AuthRefreshFailure_SurfacesAuthExpired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	provider := &stubProvider{err: assert.AnError}
	exec, _ := newTestExecutor(t, provider)

	outcome, err := exec.Do(context.Background(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, KindAuthExpired, outcome.Kind)
	assert.Equal(t, 1, provider.callCount())
}

func TestDo_Restricted_ShortCircuits(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"You are ` + RestrictedMarker + `."}`))
	}))
	defer srv.Close()

	provider := &stubProvider{token: "x"}
	exec, delays := newTestExecutor(t, provider)

	outcome, err := exec.Do(context.Background(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, KindRestricted, outcome.Kind)
	assert.Equal(t, 1, requests, "no retries")
	assert.Equal(t, 0, provider.callCount(), "no re-authentication")
	assert.Empty(t, *delays)
}

func TestDo_ServerError_RetriesThenSucceeds(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(w, `{}`)
	}))
	defer srv.Close()

	exec, _ := newTestExecutor(t, &stubProvider{token: "x"})

	outcome, err := exec.Do(context.Background(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, KindSuccess, outcome.Kind)
	assert.Equal(t, 3, requests)
}

func TestDo_ServerError_ExhaustsAttemptCeiling(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	exec, _ := newTestExecutor(t, &stubProvider{token: "x"})

	outcome, err := exec.Do(context.Background(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, KindServerError, outcome.Kind)
	assert.Equal(t, 500, outcome.Status)
	assert.Equal(t, MaxAttempts, requests)
}

func TestDo_NonJSONContentType_IsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>maintenance page</html>"))
	}))
	defer srv.Close()

	exec, _ := newTestExecutor(t, &stubProvider{token: "x"})

	outcome, err := exec.Do(context.Background(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, KindMalformed, outcome.Kind)
}

func TestDo_ClientError_NotRetried(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	exec, _ := newTestExecutor(t, &stubProvider{token: "x"})

	outcome, err := exec.Do(context.Background(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, KindClientError, outcome.Kind)
	assert.Equal(t, 1, requests)
}

func TestDo_TransportFailure_IsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	exec, _ := newTestExecutor(t, &stubProvider{token: "x"})

	outcome, err := exec.Do(context.Background(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, KindNetworkError, outcome.Kind)
	assert.Error(t, outcome.Err)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, time.Duration(0), parseRetryAfter("soon"))
	assert.Equal(t, time.Duration(0), parseRetryAfter("-1"))
	assert.Equal(t, 5*time.Second, parseRetryAfter("5"))
}
