package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() Config {
	return Config{MaxInFlight: 2, Retries: 2, BackoffBase: time.Millisecond, BackoffMax: 2 * time.Millisecond}
}

func TestPool_RetriesTransientStatus(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultUserAgent, r.UserAgent())
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, "ok")
	}))
	defer server.Close()

	pool := New(fastConfig())
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := pool.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	stats := pool.Stats()
	assert.Equal(t, int64(1), stats.Requests)
	assert.Equal(t, int64(1), stats.Succeeded)
	assert.Equal(t, int64(2), stats.Retried)
}

func TestPool_ReturnsLastTransientResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	pool := New(fastConfig())
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := pool.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestPool_RewindsBody(t *testing.T) {
	var calls int32
	var bodies []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	pool := New(fastConfig())
	req, _ := http.NewRequest(http.MethodPost, server.URL, strings.NewReader(`{"text":"hi"}`))
	resp, err := pool.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, []string{`{"text":"hi"}`, `{"text":"hi"}`}, bodies)
}

func TestPool_CancelledWhileWaiting(t *testing.T) {
	pool := New(Config{MaxInFlight: 1})
	pool.slots <- struct{}{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "http://127.0.0.1:1", nil)
	_, err := pool.Do(req)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(1), pool.Stats().Failed)
}

func TestPool_Backoff(t *testing.T) {
	pool := New(Config{BackoffBase: 100 * time.Millisecond, BackoffMax: 300 * time.Millisecond})
	assert.InDelta(t, 100*time.Millisecond, pool.backoff(1), float64(10*time.Millisecond))
	assert.InDelta(t, 200*time.Millisecond, pool.backoff(2), float64(20*time.Millisecond))
	assert.InDelta(t, 300*time.Millisecond, pool.backoff(5), float64(30*time.Millisecond))
}
