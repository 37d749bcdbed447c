package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestRegistry_Counters(t *testing.T) {
	r := NewRegistry()

	r.AddCollected("reddit", 3)
	r.AddCollected("reddit", 2)
	r.IncDropped("no_symbols")
	r.IncDropped("no_symbols")
	r.IncDropped("probable_bot")
	r.IncSourceError("x")
	r.IncOpportunity("reversal")
	r.IncTrade("stop_loss")

	assert.Equal(t, 5.0, counterValue(t, r.PostsCollected.WithLabelValues("reddit")))
	assert.Equal(t, 2.0, counterValue(t, r.PostsDropped.WithLabelValues("no_symbols")))
	assert.Equal(t, 1.0, counterValue(t, r.PostsDropped.WithLabelValues("probable_bot")))
	assert.Equal(t, 1.0, counterValue(t, r.SourceErrors.WithLabelValues("x")))
	assert.Equal(t, 1.0, counterValue(t, r.Opportunities.WithLabelValues("reversal")))
	assert.Equal(t, 1.0, counterValue(t, r.BacktestTrades.WithLabelValues("stop_loss")))
}

func TestRegistry_StepHistogram(t *testing.T) {
	r := NewRegistry()
	r.ObserveStep("collect", "ok", 20*time.Millisecond)

	families, err := r.Gatherer().Gather()
	require.NoError(t, err)

	var found *dto.MetricFamily
	for _, f := range families {
		if f.GetName() == "sentirun_step_duration_seconds" {
			found = f
		}
	}
	require.NotNil(t, found)
	require.Len(t, found.GetMetric(), 1)
	assert.Equal(t, uint64(1), found.GetMetric()[0].GetHistogram().GetSampleCount())
}

func TestRegistry_NilSafe(t *testing.T) {
	var r *Registry
	assert.NotPanics(t, func() {
		r.AddCollected("x", 1)
		r.IncDropped("malformed")
		r.IncSourceError("x")
		r.IncAggregation("ok")
		r.ObserveStep("collect", "ok", time.Second)
		r.IncOpportunity("momentum")
		r.IncSkipped("insufficient_posts")
		r.IncTrade("timeout")
		r.IncHTTP("/health", "200")
	})

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRegistry_Handler(t *testing.T) {
	r := NewRegistry()
	r.IncHTTP("/v1/scan", "200")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `sentirun_http_requests_total{code="200",route="/v1/scan"} 1`)
}
