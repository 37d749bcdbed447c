package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/sentirun/internal/backtest"
	"github.com/sawpanic/sentirun/internal/persistence"
	"github.com/sawpanic/sentirun/internal/scanner"
	"github.com/sawpanic/sentirun/internal/social"
)

// DefaultMaxResults applies when /v1/scan has no max_results
const DefaultMaxResults = 20

const maxBacktestBody = 1 << 20

func (s *Server) sentiment(w http.ResponseWriter, r *http.Request) {
	if s.deps.Aggregator == nil {
		s.writeError(w, r, http.StatusServiceUnavailable, "unavailable", "sentiment pipeline not configured")
		return
	}

	query := mux.Vars(r)["query"]
	window := r.URL.Query().Get("window")
	if window == "" {
		window = "24h"
	}

	result, err := s.deps.Aggregator.Aggregate(r.Context(), query, window)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) scan(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scanner == nil {
		s.writeError(w, r, http.StatusServiceUnavailable, "unavailable", "scanner not configured")
		return
	}

	q := r.URL.Query()
	symbols := s.deps.Universe
	if raw := q.Get("symbols"); raw != "" {
		symbols = splitSymbols(raw)
	}

	minConviction := scanner.DefaultMinConviction
	if raw := q.Get("min_conviction"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, "invalid_parameter", "min_conviction must be a number")
			return
		}
		minConviction = v
	}

	maxResults := DefaultMaxResults
	if raw := q.Get("max_results"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, "invalid_parameter", "max_results must be an integer")
			return
		}
		maxResults = v
	}

	opps, err := s.deps.Scanner.Scan(r.Context(), symbols, minConviction, maxResults)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ScanResponse{
		Timestamp:     time.Now().UTC(),
		Scanned:       len(symbols),
		MinConviction: minConviction,
		MaxResults:    maxResults,
		Count:         len(opps),
		Opportunities: opps,
	})
}

func (s *Server) backtest(w http.ResponseWriter, r *http.Request) {
	if s.deps.Backtester == nil {
		s.writeError(w, r, http.StatusServiceUnavailable, "unavailable", "backtest engine not configured")
		return
	}

	var req backtest.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBacktestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	report, err := s.deps.Backtester.Run(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(s.started).Truncate(time.Second).String(),
		Version:   s.deps.Version,
		System: SystemInfo{
			GoVersion:     runtime.Version(),
			NumGoroutines: runtime.NumGoroutine(),
			MemAlloc:      mem.Alloc,
			NumGC:         mem.NumGC,
		},
	}

	if s.deps.Store != nil {
		check := persistence.Check(r.Context(), s.deps.StoreBackend, s.deps.Store)
		resp.Store = &check
		if !check.Healthy {
			resp.Status = "unhealthy"
		}
	}

	if s.deps.Guards != nil {
		resp.Sources = s.deps.Guards.Status()
		for _, st := range resp.Sources {
			if st.State != "closed" && resp.Status == "healthy" {
				resp.Status = "degraded"
			}
		}
	}

	if s.deps.Upstream != nil {
		stats := s.deps.Upstream.Stats()
		resp.Upstream = &stats
	}

	status := http.StatusOK
	if resp.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, http.StatusNotFound, "endpoint_not_found", "The requested endpoint does not exist")
}

// writeServiceError maps domain sentinels onto status codes
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, social.ErrInvalidInput):
		s.writeError(w, r, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, social.ErrSymbolNotFound):
		s.writeError(w, r, http.StatusNotFound, "symbol_not_found", err.Error())
	case errors.Is(err, r.Context().Err()) && r.Context().Err() != nil:
		s.writeError(w, r, http.StatusGatewayTimeout, "timeout", "request timed out")
	default:
		log.Error().Err(err).Str("request_id", requestIDFrom(r.Context())).Msg("Request failed")
		s.writeError(w, r, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		Code:      code,
		RequestID: requestIDFrom(r.Context()),
		Timestamp: time.Now().UTC(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warn().Err(err).Msg("Failed to encode response")
	}
}

func splitSymbols(raw string) []string {
	parts := strings.Split(raw, ",")
	symbols := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			symbols = append(symbols, strings.ToUpper(p))
		}
	}
	return symbols
}
