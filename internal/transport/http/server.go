package http

import (
	"bufio"
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"susmarket/internal/app"
	"susmarket/internal/config"
	"susmarket/internal/settlement"
	"susmarket/internal/transport/ws"
)

// Resolutions is the settlement view the API exposes
type Resolutions interface {
	ListMatches(ctx context.Context, code string, limit int) ([]settlement.MatchRecord, error)
	MarkSettled(ctx context.Context, marketID string, at time.Time) error
}

// Server represents the HTTP server
type Server struct {
	server      *http.Server
	hub         *app.MatchHub
	resolutions Resolutions
	metrics     http.Handler
	config      *config.Config
	logger      *slog.Logger
}

// ServerOption configures optional collaborators
type ServerOption func(*Server)

// WithResolutions serves settlement data from r
func WithResolutions(r Resolutions) ServerOption {
	return func(s *Server) { s.resolutions = r }
}

// WithMetricsHandler mounts h at /metrics
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(s *Server) { s.metrics = h }
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, hub *app.MatchHub, logger *slog.Logger, opts ...ServerOption) *Server {
	s := &Server{
		hub:    hub,
		config: cfg,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.server = &http.Server{
		Addr:         cfg.GetAddr(),
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the routed handler with middleware applied
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.setupRoutes(mux)
	return s.middleware(mux)
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/matches", s.handleCreateMatch)
	mux.HandleFunc("GET /api/matches/{code}", s.handleGetMatch)
	mux.HandleFunc("GET /api/matches/{code}/snapshot", s.handleSnapshot)
	mux.HandleFunc("POST /api/matches/{code}/events", s.handleEvent)
	mux.HandleFunc("POST /api/matches/{code}/buy", s.handleBuy)
	mux.HandleFunc("POST /api/matches/{code}/sell", s.handleSell)
	mux.HandleFunc("POST /api/matches/{code}/cashout", s.handleCashOut)
	mux.HandleFunc("POST /api/matches/{code}/reset", s.handleReset)
	mux.HandleFunc("POST /api/matches/{code}/meta", s.handleMeta)
	mux.HandleFunc("POST /api/matches/{code}/demo", s.handleStartDemo)
	mux.HandleFunc("DELETE /api/matches/{code}/demo", s.handleStopDemo)
	mux.HandleFunc("GET /api/matches/{code}/resolutions", s.handleResolutions)
	mux.HandleFunc("POST /api/resolutions/{marketId}/settle", s.handleSettle)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/stats", s.handleStats)

	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	mux.Handle("GET /ws", ws.NewHandler(s.hub, s.logger))
}

// middleware wraps the handler with logging and other middleware
func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		// scrapes are noise outside development
		if s.config.IsDevelopment() || r.URL.Path != "/metrics" {
			s.logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.statusCode,
				"duration", time.Since(start),
			)
		}
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("server starting", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")
	return s.server.Shutdown(ctx)
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack implements http.Hijacker for WebSocket support
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

// Flush implements http.Flusher
func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
