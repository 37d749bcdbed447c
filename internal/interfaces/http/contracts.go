package http

import (
	"time"

	"github.com/sawpanic/sentirun/internal/datasources"
	"github.com/sawpanic/sentirun/internal/infrastructure/httpclient"
	"github.com/sawpanic/sentirun/internal/persistence"
	"github.com/sawpanic/sentirun/internal/scanner"
)

// ScanResponse wraps ranked opportunities
type ScanResponse struct {
	Timestamp     time.Time             `json:"timestamp"`
	Scanned       int                   `json:"scanned"`
	MinConviction float64               `json:"min_conviction"`
	MaxResults    int                   `json:"max_results"`
	Count         int                   `json:"count"`
	Opportunities []scanner.Opportunity `json:"opportunities"`
}

// HealthResponse reports store and upstream status
type HealthResponse struct {
	Status    string                             `json:"status"` // healthy, degraded, unhealthy
	Timestamp time.Time                          `json:"timestamp"`
	Uptime    string                             `json:"uptime"`
	Version   string                             `json:"version"`
	System    SystemInfo                         `json:"system"`
	Store     *persistence.HealthCheck           `json:"store,omitempty"`
	Sources   map[string]datasources.GuardStatus `json:"sources,omitempty"`
	Upstream  *httpclient.Stats                  `json:"upstream,omitempty"`
}

// SystemInfo provides runtime information
type SystemInfo struct {
	GoVersion     string `json:"go_version"`
	NumGoroutines int    `json:"num_goroutines"`
	MemAlloc      uint64 `json:"mem_alloc_bytes"`
	NumGC         uint32 `json:"num_gc"`
}

// ErrorResponse is the body of every non-2xx answer
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Code      string    `json:"code"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}
