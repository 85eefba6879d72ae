// Package web exposes the operation dispatcher over HTTP.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/conorfennell/memoryrefresh/internal/api"
	"github.com/conorfennell/memoryrefresh/internal/importer"
)

// maxBodyBytes bounds the size of an operation's arguments.
const maxBodyBytes = 1 << 20

// Syncer imports the configured deck sources.
type Syncer interface {
	Sync(ctx context.Context) (importer.Report, error)
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	dispatcher *api.Dispatcher
	syncer     Syncer
	logger     *zap.Logger
	router     *http.ServeMux
	handler    http.Handler
}

// NewServer creates and configures a new server. syncer may be nil, in
// which case the sync route is not registered.
func NewServer(dispatcher *api.Dispatcher, syncer Syncer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		dispatcher: dispatcher,
		syncer:     syncer,
		logger:     logger,
		router:     http.NewServeMux(),
	}
	s.routes()
	s.handler = s.withRequestID(s.router)
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	s.router.HandleFunc("GET /healthz", s.handleHealth())
	s.router.HandleFunc("GET /api", s.handleListOperations())
	s.router.HandleFunc("POST /api/{op}", s.handleOperation())
	if s.syncer != nil {
		s.router.HandleFunc("POST /sync", s.handlePostSync())
	}
}

type requestIDKey struct{}

// RequestID returns the id assigned to the request carried by ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// withRequestID tags every request with an id and logs its outcome.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("took", time.Since(start)),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// handleOperation decodes the body as the operation's arguments and
// answers with the envelope. Domain failures are reported with 200.
func (s *Server) handleOperation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
				return
			}
			http.Error(w, "Unreadable request body", http.StatusBadRequest)
			return
		}
		if len(body) > 0 && !json.Valid(body) {
			http.Error(w, "Request body is not JSON", http.StatusBadRequest)
			return
		}

		env := s.dispatcher.Dispatch(r.Context(), r.PathValue("op"), body)
		s.writeJSON(w, r, http.StatusOK, env)
	}
}

// handleListOperations lists the operation names.
func (s *Server) handleListOperations() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, r, http.StatusOK, map[string]any{"operations": s.dispatcher.Operations()})
	}
}

// handlePostSync triggers an import of every configured source.
func (s *Server) handlePostSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := s.syncer.Sync(r.Context())
		if err != nil {
			s.logger.Error("sync failed", zap.String("request_id", RequestID(r.Context())), zap.Error(err))
			http.Error(w, "Sync failed", http.StatusInternalServerError)
			return
		}
		s.writeJSON(w, r, http.StatusOK, report)
	}
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to write response",
			zap.String("request_id", RequestID(r.Context())),
			zap.Error(err),
		)
	}
}
