package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/sentirun/internal/backtest"
	"github.com/sawpanic/sentirun/internal/infrastructure/httpclient"
	"github.com/sawpanic/sentirun/internal/ingest"
	"github.com/sawpanic/sentirun/internal/metrics"
	"github.com/sawpanic/sentirun/internal/persistence/memory"
	"github.com/sawpanic/sentirun/internal/scanner"
	"github.com/sawpanic/sentirun/internal/social"
)

type fakeAggregator struct {
	err error
}

func (f *fakeAggregator) Aggregate(ctx context.Context, query, window string) (*ingest.AggregateResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &ingest.AggregateResult{Symbol: strings.ToUpper(query), Window: window, TotalCount: 3, WeightedSentiment: 0.25}, nil
}

type fakeScanner struct {
	symbols       []string
	minConviction float64
	maxResults    int
}

func (f *fakeScanner) Scan(ctx context.Context, symbols []string, minConviction float64, maxResults int) ([]scanner.Opportunity, error) {
	f.symbols, f.minConviction, f.maxResults = symbols, minConviction, maxResults
	if maxResults < 0 {
		return nil, fmt.Errorf("max results: %w", social.ErrInvalidInput)
	}
	return []scanner.Opportunity{{Symbol: "AAPL", ConvictionScore: 7}}, nil
}

type fakeBacktester struct {
	got backtest.Request
}

func (f *fakeBacktester) Run(ctx context.Context, req backtest.Request) (*backtest.Report, error) {
	f.got = req
	if req.Strategy == "bogus" {
		return nil, fmt.Errorf("unknown strategy: %w", social.ErrInvalidInput)
	}
	return &backtest.Report{RunID: "run-1", Empty: true, Message: backtest.NoTradesMessage}, nil
}

func newTestServer(deps Deps) *Server {
	return NewServer(DefaultServerConfig(), deps)
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func TestServer_Sentiment(t *testing.T) {
	s := newTestServer(Deps{Aggregator: &fakeAggregator{}})

	rr := do(t, s, http.MethodGet, "/v1/sentiment/aapl?window=7d", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	var result ingest.AggregateResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.Equal(t, "AAPL", result.Symbol)
	assert.Equal(t, "7d", result.Window)

	rr = do(t, s, http.MethodGet, "/v1/sentiment/aapl", "")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.Equal(t, "24h", result.Window)
}

func TestServer_SentimentErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("bad window: %w", social.ErrInvalidInput), http.StatusBadRequest, "invalid_input"},
		{fmt.Errorf("resolve: %w", social.ErrSymbolNotFound), http.StatusNotFound, "symbol_not_found"},
		{fmt.Errorf("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			s := newTestServer(Deps{Aggregator: &fakeAggregator{err: tc.err}})
			req := httptest.NewRequest(http.MethodGet, "/v1/sentiment/zzz", nil)
			req.Header.Set("X-Request-ID", "abc123")
			rr := httptest.NewRecorder()
			s.Handler().ServeHTTP(rr, req)

			require.Equal(t, tc.status, rr.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, tc.code, resp.Code)
			assert.Equal(t, "abc123", resp.RequestID)
		})
	}
}

func TestServer_Scan(t *testing.T) {
	fs := &fakeScanner{}
	s := newTestServer(Deps{Scanner: fs, Universe: []string{"SPY", "QQQ"}})

	rr := do(t, s, http.MethodGet, "/v1/scan", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"SPY", "QQQ"}, fs.symbols)
	assert.Equal(t, scanner.DefaultMinConviction, fs.minConviction)
	assert.Equal(t, DefaultMaxResults, fs.maxResults)

	var resp ScanResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, 2, resp.Scanned)

	rr = do(t, s, http.MethodGet, "/v1/scan?symbols=aapl,%20tsla,,&min_conviction=6&max_results=5", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"AAPL", "TSLA"}, fs.symbols)
	assert.Equal(t, 6.0, fs.minConviction)
	assert.Equal(t, 5, fs.maxResults)

	rr = do(t, s, http.MethodGet, "/v1/scan?max_results=abc", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, s, http.MethodGet, "/v1/scan?max_results=-1", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestServer_Backtest(t *testing.T) {
	fb := &fakeBacktester{}
	s := newTestServer(Deps{Backtester: fb})

	rr := do(t, s, http.MethodPost, "/v1/backtest", `{"symbols":["AAPL"],"strategy":"reversal","hold_days":10}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"AAPL"}, fb.got.Symbols)
	assert.Equal(t, 10, fb.got.HoldDays)

	var report backtest.Report
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	assert.True(t, report.Empty)

	rr = do(t, s, http.MethodPost, "/v1/backtest", `{"strategy":"bogus"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, s, http.MethodPost, "/v1/backtest", `{"unknown":1}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, s, http.MethodGet, "/v1/backtest", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestServer_Unconfigured(t *testing.T) {
	s := newTestServer(Deps{})
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodGet, "/v1/sentiment/x", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodGet, "/v1/scan", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodPost, "/v1/backtest", "{}").Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/nope", "").Code)
}

func TestServer_HealthAndMetrics(t *testing.T) {
	reg := metrics.NewRegistry()
	s := newTestServer(Deps{
		Store:        memory.New(),
		StoreBackend: "memory",
		Metrics:      reg,
		Aggregator:   &fakeAggregator{},
		Upstream:     httpclient.New(httpclient.DefaultConfig()),
		Version:      "test",
	})

	rr := do(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "test", health.Version)
	require.NotNil(t, health.Store)
	assert.Equal(t, "memory", health.Store.Backend)
	assert.NotEmpty(t, health.System.GoVersion)
	require.NotNil(t, health.Upstream)
	assert.Zero(t, health.Upstream.Requests)

	do(t, s, http.MethodGet, "/v1/sentiment/aapl", "")

	rr = do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "sentirun_http_requests_total")
	assert.Contains(t, body, `route="/v1/sentiment/{query}"`)
}
