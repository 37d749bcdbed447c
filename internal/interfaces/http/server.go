package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/sentirun/internal/backtest"
	"github.com/sawpanic/sentirun/internal/datasources"
	"github.com/sawpanic/sentirun/internal/infrastructure/httpclient"
	"github.com/sawpanic/sentirun/internal/ingest"
	"github.com/sawpanic/sentirun/internal/metrics"
	"github.com/sawpanic/sentirun/internal/persistence"
	"github.com/sawpanic/sentirun/internal/scanner"
)

type ctxKey string

const requestIDKey ctxKey = "request_id"

// Aggregator runs the sentiment pipeline for one query
type Aggregator interface {
	Aggregate(ctx context.Context, query, window string) (*ingest.AggregateResult, error)
}

// UpstreamStats reports outbound request counters
type UpstreamStats interface {
	Stats() httpclient.Stats
}

// Scanner ranks symbols into opportunities
type Scanner interface {
	Scan(ctx context.Context, symbols []string, minConviction float64, maxResults int) ([]scanner.Opportunity, error)
}

// Backtester simulates strategies over history
type Backtester interface {
	Run(ctx context.Context, req backtest.Request) (*backtest.Report, error)
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host           string        `yaml:"host" env:"SENTIRUN_HOST"`
	Port           int           `yaml:"port" env:"SENTIRUN_PORT"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// DefaultServerConfig binds to localhost:8080
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:           "127.0.0.1",
		Port:           8080,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   5 * time.Minute,
		IdleTimeout:    60 * time.Second,
		RequestTimeout: 4 * time.Minute,
	}
}

// Deps are the services exposed over HTTP. Nil services answer 503.
type Deps struct {
	Aggregator   Aggregator
	Scanner      Scanner
	Backtester   Backtester
	Store        persistence.Store
	StoreBackend string
	Guards       *datasources.GuardRegistry
	Upstream     UpstreamStats
	Metrics      *metrics.Registry
	Universe     []string
	Version      string
}

// Server is the JSON API
type Server struct {
	router  *mux.Router
	server  *http.Server
	config  ServerConfig
	deps    Deps
	started time.Time
}

// NewServer creates a server and registers its routes
func NewServer(config ServerConfig, deps Deps) *Server {
	d := DefaultServerConfig()
	if config.Port == 0 {
		config.Port = d.Port
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = d.RequestTimeout
	}

	s := &Server{
		router:  mux.NewRouter(),
		config:  config,
		deps:    deps,
		started: time.Now(),
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         s.Address(),
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

// Handler exposes the router for embedding and tests
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.requestLoggingMiddleware)
	s.router.Use(s.timeoutMiddleware)

	s.router.Handle("/metrics", s.deps.Metrics.Handler()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/").Subrouter()
	api.Use(jsonContentTypeMiddleware)

	api.HandleFunc("/health", s.health).Methods(http.MethodGet)
	api.HandleFunc("/v1/sentiment/{query}", s.sentiment).Methods(http.MethodGet)
	api.HandleFunc("/v1/scan", s.scan).Methods(http.MethodGet)
	api.HandleFunc("/v1/backtest", s.backtest).Methods(http.MethodPost)

	s.router.NotFoundHandler = jsonContentTypeMiddleware(http.HandlerFunc(s.notFound))
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()[:8]
		}
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		s.deps.Metrics.IncHTTP(route, strconv.Itoa(wrapper.statusCode))

		log.Info().
			Str("request_id", requestIDFrom(r.Context())).
			Str("method", r.Method).
			Str("route", route).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("HTTP request")
	})
}

func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// Start listens until Shutdown is called
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.Address())
	if err != nil {
		return fmt.Errorf("port %d is busy or unavailable: %w", s.config.Port, err)
	}
	log.Info().Str("addr", s.Address()).Msg("Starting HTTP server")

	if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Address returns host:port
func (s *Server) Address() string {
	return net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
