package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/voxgate/voxgate/internal/database"
	"github.com/voxgate/voxgate/internal/database/models"
)

// callLogResponse is the JSON response for a single call log entry.
type callLogResponse struct {
	ID              int64   `json:"id"`
	TenantID        int64   `json:"tenant_id"`
	StreamSID       string  `json:"stream_sid"`
	CallSID         string  `json:"call_sid"`
	DialedNumber    string  `json:"dialed_number"`
	DurationSeconds *int    `json:"duration_seconds"`
	Status          string  `json:"status"`
	StartedAt       string  `json:"started_at"`
	EndedAt         *string `json:"ended_at"`
}

func toCallLogResponse(e *models.CallLogEntry) callLogResponse {
	resp := callLogResponse{
		ID:              e.ID,
		TenantID:        e.TenantID,
		StreamSID:       e.StreamSID,
		CallSID:         e.CallSID,
		DialedNumber:    e.DialedNumber,
		DurationSeconds: e.DurationSeconds,
		Status:          e.Status,
		StartedAt:       e.StartedAt.Format(time.RFC3339),
	}
	if e.EndedAt != nil {
		ended := e.EndedAt.Format(time.RFC3339)
		resp.EndedAt = &ended
	}
	return resp
}

// handleListCalls returns call log entries, newest first, with optional
// tenant_id and status filters and limit/offset pagination.
func (s *Server) handleListCalls(w http.ResponseWriter, r *http.Request) {
	filter := database.CallLogFilter{Limit: 50}

	q := r.URL.Query()
	if v := q.Get("tenant_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid tenant_id")
			return
		}
		filter.TenantID = id
	}
	if v := q.Get("status"); v != "" {
		switch v {
		case models.CallStatusInProgress, models.CallStatusCompleted, models.CallStatusDisconnected:
			filter.Status = v
		default:
			writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		filter.Offset = n
	}

	entries, total, err := s.callLogs.List(r.Context(), filter)
	if err != nil {
		slog.Error("list calls: failed to query", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	items := make([]callLogResponse, len(entries))
	for i := range entries {
		items[i] = toCallLogResponse(&entries[i])
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"total": total,
	})
}
