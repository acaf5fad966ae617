package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawl-orchestrator/internal/dispatcher"
	"github.com/JakeFAU/catalog-crawl-orchestrator/internal/orchestrator"
	"github.com/JakeFAU/catalog-crawl-orchestrator/internal/telemetry"
)

// RequestIDHeader carries the per-request id set by the server. Continuations
// send the same header, so a whole chain shares one id.
const RequestIDHeader = dispatcher.RequestIDHeader

// Invoker runs one crawl invocation.
type Invoker interface {
	Invoke(ctx context.Context, inv orchestrator.Invocation) (orchestrator.Result, error)
}

// ReadyFunc reports whether downstream dependencies can serve traffic.
type ReadyFunc func(ctx context.Context) error

// Options configure the HTTP surface.
type Options struct {
	// Continuation controls how the address for the next chunk is resolved.
	Continuation dispatcher.Options
	// Ready backs /readyz; nil means always ready.
	Ready ReadyFunc
	// ReadyTimeout bounds a single readiness check.
	ReadyTimeout time.Duration
}

// Server wires HTTP routes to the crawl controller.
type Server struct {
	router  chi.Router
	invoker Invoker
	opts    Options
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(invoker Invoker, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 2 * time.Second
	}
	s := &Server{
		invoker: invoker,
		opts:    opts,
		logger:  logger.Named("api"),
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(telemetry.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/crawl", s.crawl)
		r.Get("/catalog/health", s.healthz)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.opts.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), s.opts.ReadyTimeout)
		defer cancel()
		if err := s.opts.Ready(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeJSON(s.logger, w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) crawl(w http.ResponseWriter, r *http.Request) {
	reqID := requestIDFrom(r.Context())
	logger := s.logger.With(zap.String("request_id", reqID))

	baseURL, err := dispatcher.ResolveBaseURL(r, s.opts.Continuation)
	if err != nil {
		// Only matters if a continuation turns out to be needed.
		logger.Debug("no continuation address for request", zap.Error(err))
		baseURL = ""
	}

	res, err := s.invoker.Invoke(r.Context(), orchestrator.Invocation{
		AuthHeader: r.Header.Get("Authorization"),
		Query:      r.URL.Query(),
		BaseURL:    baseURL,
		RequestID:  reqID,
	})
	if err != nil {
		status, detail := classify(err)
		if status == http.StatusInternalServerError {
			logger.Error("crawl invocation failed", zap.Error(err))
		}
		writeError(s.logger, w, status, detail)
		return
	}
	writeJSON(s.logger, w, http.StatusOK, res)
}

// classify maps controller errors onto HTTP statuses and client-facing detail.
func classify(err error) (int, string) {
	var execErr *orchestrator.ExecutionError
	switch {
	case errors.Is(err, orchestrator.ErrUnauthorized):
		return http.StatusUnauthorized, orchestrator.ErrUnauthorized.Error()
	case errors.Is(err, orchestrator.ErrBadRequest):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &execErr):
		return http.StatusInternalServerError, execErr.Error()
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(RequestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set(RequestIDHeader, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered",
					zap.Any("panic", rec),
					zap.String("request_id", requestIDFrom(r.Context())),
				)
				writeError(s.logger, w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}

func writeError(logger *zap.Logger, w http.ResponseWriter, status int, detail string) {
	writeJSON(logger, w, status, map[string]string{"detail": detail})
}
