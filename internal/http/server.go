package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"soldi/internal/core"
	"soldi/internal/router"
	"soldi/internal/storage"
	syncpkg "soldi/internal/sync"
)

// Coordinator is the slice of the sync coordinator the API exposes.
type Coordinator interface {
	State() syncpkg.State
	RetryAll(ctx context.Context) error
	DismissError(ctx context.Context) error
}

// QueueReader lists the durable queue for the details view.
type QueueReader interface {
	Records(ctx context.Context) ([]storage.QueuedWrite, error)
}

// Writer is the slice of the write router the API uses.
type Writer interface {
	Write(ctx context.Context, req core.WriteRequest) (router.Result, error)
}

// LocalView reads the optimistic projection.
type LocalView interface {
	Get(collection, id string) (core.Transaction, bool)
	List(collection string) []core.Transaction
}

type Server struct {
	http.Server
	coord  Coordinator
	queue  QueueReader
	router Writer
	local  LocalView
}

// NewServer configures routes, returning a ready-to-run http.Server.
func NewServer(addr string, coord Coordinator, queue QueueReader, w Writer, local LocalView) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		coord:  coord,
		queue:  queue,
		router: w,
		local:  local,
	}

	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/api/sync/status", s.withRequestLogging(s.handleSyncStatus))
	mux.HandleFunc("/api/sync/queue", s.withRequestLogging(s.handleSyncQueue))
	mux.HandleFunc("/api/sync/retry", s.withRequestLogging(s.handleRetry))
	mux.HandleFunc("/api/sync/dismiss", s.withRequestLogging(s.handleDismiss))
	mux.HandleFunc("GET /api/transactions", s.withRequestLogging(s.handleListTransactions))
	mux.HandleFunc("POST /api/transactions", s.withRequestLogging(s.handleCreateTransaction))
	mux.HandleFunc("PUT /api/transactions/{id}", s.withRequestLogging(s.handleUpdateTransaction))
	mux.HandleFunc("DELETE /api/transactions/{id}", s.withRequestLogging(s.handleDeleteTransaction))

	return s
}

// withRequestLogging tags each request with an id and logs start/completion.
func (s *Server) withRequestLogging(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := "req_" + uuid.NewString()

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", time.Since(start).Milliseconds())
	}
}

type contextKey string

const requestIDKey contextKey = "request_id"

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
