package datasources

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGuard(name string) *Guard {
	return NewGuard(GuardConfig{
		Name:                name,
		RequestsPerSecond:   1000,
		Burst:               100,
		ConsecutiveFailures: 2,
		OpenTimeout:         time.Minute,
	})
}

func TestGuard_TripsAfterConsecutiveFailures(t *testing.T) {
	guard := testGuard("reddit")
	boom := errors.New("boom")

	calls := 0
	fail := func(ctx context.Context) error {
		calls++
		return boom
	}

	assert.ErrorIs(t, guard.Do(context.Background(), fail), boom)
	assert.ErrorIs(t, guard.Do(context.Background(), fail), boom)

	err := guard.Do(context.Background(), fail)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 2, calls, "open breaker must not invoke the call")
	assert.Equal(t, "open", guard.Status().State)
}

func TestGuard_CancelledContext(t *testing.T) {
	guard := NewGuard(GuardConfig{Name: "x", RequestsPerSecond: 0.001, Burst: 1})
	require.NoError(t, guard.Do(context.Background(), func(ctx context.Context) error { return nil }))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := guard.Do(ctx, func(ctx context.Context) error { return nil })
	assert.Error(t, err)
	assert.Equal(t, uint32(0), guard.Status().TotalFailures)
}

func TestGuardRegistry_ReusesGuards(t *testing.T) {
	registry := NewGuardRegistry(GuardConfig{Name: "stocktwits", RequestsPerSecond: 5, Burst: 5})

	a := registry.Get("stocktwits")
	b := registry.Get("stocktwits")
	assert.Same(t, a, b)

	registry.Get("discord")
	status := registry.Status()
	assert.Len(t, status, 2)
	assert.Equal(t, "closed", status["discord"].State)
}

func TestDoJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte("slow down"))
			return
		}
		_, _ = w.Write([]byte(`{"symbol":"AAPL","count":3}`))
	}))
	defer server.Close()

	var out struct {
		Symbol string `json:"symbol"`
		Count  int    `json:"count"`
	}
	req, err := http.NewRequest(http.MethodGet, server.URL+"/ok", nil)
	require.NoError(t, err)
	require.NoError(t, DoJSON(context.Background(), server.Client(), testGuard("ok"), req, &out))
	assert.Equal(t, "AAPL", out.Symbol)
	assert.Equal(t, 3, out.Count)

	req, err = http.NewRequest(http.MethodGet, server.URL+"/bad", nil)
	require.NoError(t, err)
	err = DoJSON(context.Background(), server.Client(), nil, req, &out)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	assert.Equal(t, "slow down", statusErr.Body)
}
