package http

import (
	"log/slog"
	"net/http"
	"time"
)

type syncStatusResponse struct {
	Phase        string `json:"phase"`
	PendingCount int    `json:"pending_count"`
	FailedCount  int    `json:"failed_count"`
	LastSyncedAt string `json:"last_synced_at,omitempty"`
	LastError    string `json:"last_error,omitempty"`
}

type queuedRecordResponse struct {
	ID            string `json:"id"`
	BatchID       string `json:"batch_id,omitempty"`
	Op            string `json:"op"`
	Collection    string `json:"collection"`
	Status        string `json:"status"`
	AttemptCount  int    `json:"attempt_count"`
	LastError     string `json:"last_error,omitempty"`
	EnqueuedAt    string `json:"enqueued_at"`
	NextAttemptAt string `json:"next_attempt_at,omitempty"`
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "GET")
		return
	}

	state := s.coord.State()
	resp := syncStatusResponse{
		Phase:        string(state.Phase),
		PendingCount: state.PendingCount,
		FailedCount:  state.FailedCount,
		LastError:    state.LastError,
	}
	if !state.LastSyncedAt.IsZero() {
		resp.LastSyncedAt = state.LastSyncedAt.Format(time.RFC3339)
	}

	NewJSONResponse().Body(resp).Write(w)
}

func (s *Server) handleSyncQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "GET")
		return
	}

	records, err := s.queue.Records(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to list queue records", "error", err)
		NewJSONResponse().Error(http.StatusInternalServerError, "failed to list queue").Write(w)
		return
	}

	resp := make([]queuedRecordResponse, 0, len(records))
	for _, rec := range records {
		item := queuedRecordResponse{
			ID:           rec.ID,
			BatchID:      rec.BatchID,
			Op:           rec.Op,
			Collection:   rec.Collection,
			Status:       rec.Status,
			AttemptCount: rec.AttemptCount,
			LastError:    rec.LastError,
			EnqueuedAt:   rec.EnqueuedAt.Format(time.RFC3339),
		}
		if !rec.NextAttemptAt.IsZero() {
			item.NextAttemptAt = rec.NextAttemptAt.Format(time.RFC3339)
		}
		resp = append(resp, item)
	}

	NewJSONResponse().Body(map[string]any{"records": resp}).Write(w)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, "POST")
		return
	}

	if err := s.coord.RetryAll(r.Context()); err != nil {
		slog.ErrorContext(r.Context(), "Retry all failed", "error", err)
		NewJSONResponse().Error(http.StatusInternalServerError, "retry failed").Write(w)
		return
	}

	NewJSONResponse().Status(http.StatusAccepted).Body(map[string]string{"status": "retrying"}).Write(w)
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, "POST")
		return
	}

	if err := s.coord.DismissError(r.Context()); err != nil {
		slog.ErrorContext(r.Context(), "Dismiss error failed", "error", err)
		NewJSONResponse().Error(http.StatusInternalServerError, "dismiss failed").Write(w)
		return
	}

	NewJSONResponse().Body(map[string]string{"status": "dismissed"}).Write(w)
}

func methodNotAllowed(w http.ResponseWriter, allow string) {
	NewJSONResponse().
		Header("Allow", allow).
		Error(http.StatusMethodNotAllowed, "method not allowed").
		Write(w)
}
