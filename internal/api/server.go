package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/safecities/safecities/internal/audit"
	"github.com/safecities/safecities/internal/chatbot"
)

// DefaultRequestTimeout bounds one API request, model calls included
const DefaultRequestTimeout = 120 * time.Second

// StatsSource reports aggregate audit figures
type StatsSource interface {
	Stats(ctx context.Context, since time.Time) (*audit.Stats, error)
}

// Options configures a Server
type Options struct {
	Addr string

	// BeforeQuery runs under the session lock before each query, e.g. to
	// ingest documents that changed on disk.
	BeforeQuery func(ctx context.Context)

	Stats   StatsSource
	Timeout time.Duration
	Logger  *slog.Logger
}

// Server exposes one chat session over HTTP. Requests are serialized
// because the session is single-threaded.
type Server struct {
	bot         *chatbot.Orchestrator
	mu          sync.Mutex
	router      *chi.Mux
	addr        string
	beforeQuery func(ctx context.Context)
	stats       StatsSource
	timeout     time.Duration
	logger      *slog.Logger
}

// NewServer creates a server for bot
func NewServer(bot *chatbot.Orchestrator, opts Options) *Server {
	s := &Server{
		bot:         bot,
		addr:        opts.Addr,
		beforeQuery: opts.BeforeQuery,
		stats:       opts.Stats,
		timeout:     opts.Timeout,
		logger:      opts.Logger,
	}
	if s.timeout <= 0 {
		s.timeout = DefaultRequestTimeout
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "api")

	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(s.timeout))

		r.Post("/query", s.handleQuery)
		r.Get("/scenarios", s.handleScenarios)
		r.Get("/parameters/event", s.handleGetEvent)
		r.Put("/parameters/event", s.handlePutEvent)
		r.Get("/parameters/simulation", s.handleGetSimulation)
		r.Put("/parameters/simulation", s.handlePutSimulation)
		r.Post("/reset", s.handleReset)
		r.Get("/history", s.handleHistory)
		r.Get("/stats", s.handleStats)
	})

	s.router = r
}

// Handler returns the routed handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens until ctx is cancelled, then shuts down gracefully
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// requestLogger logs each request through slog
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	successResponse(w, map[string]string{"status": "healthy", "session": s.bot.SessionID()})
}

// errorResponse writes a JSON error response
func errorResponse(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// successResponse writes a JSON success response
func successResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(data)
}
