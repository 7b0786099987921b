package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/star/ephemgo/internal/metrics"
)

// Fetcher returns the raw Horizons report for a body ID.
type Fetcher interface {
	Fetch(ctx context.Context, id int) (string, error)
}

// Config holds HTTP server configuration.
type Config struct {
	Addr             string
	TrustProxy       bool // honor X-Forwarded-For / X-Real-IP in request logs
	BatchConcurrency int  // max parallel upstream fetches per batch request
}

const defaultBatchConcurrency = 4

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(cfg Config, logger *slog.Logger, fetcher Fetcher) *Server {
	if cfg.BatchConcurrency < 1 {
		cfg.BatchConcurrency = defaultBatchConcurrency
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           newHandler(cfg, logger, fetcher),
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			// Batch requests may wait on several upstream round trips.
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		logger: logger,
	}
}

// newHandler builds the routed handler with its middleware chain.
func newHandler(cfg Config, logger *slog.Logger, fetcher Fetcher) http.Handler {
	mux := http.NewServeMux()

	// Register routes.
	mux.HandleFunc("GET /healthz", healthz)
	mux.HandleFunc("GET /readyz", readyz)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /planet/{planet_id}", planetHandler(logger, fetcher))
	mux.HandleFunc("GET /planets/", planetsHandler(logger, fetcher, cfg.BatchConcurrency))

	// Build middleware chain: metrics -> logging -> mux.
	var handler http.Handler = mux
	handler = loggingMiddleware(logger, cfg.TrustProxy)(handler)
	handler = metrics.Middleware(handler)
	return handler
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// healthz returns 200 "ok\n" unconditionally.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

// readyz returns 200 "ready\n". The service holds no state that must load
// before serving; an unreachable upstream is reported per request instead.
func readyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready\n"))
}
