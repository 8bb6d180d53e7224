package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/greenledger/greenledger/pkg/api"
	"github.com/greenledger/greenledger/pkg/authz"
)

// ListEventsHandler handles GET /audit/events
// Query params: eventType, action, pageSize, pageToken
func ListEventsHandler(store *Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := authz.UserID(r.Context())
		if err != nil {
			api.WriteError(w, logger, err)
			return
		}
		filter := ListFilter{
			EventType: r.URL.Query().Get("eventType"),
			Action:    r.URL.Query().Get("action"),
		}

		pageSize := 0
		if ps := r.URL.Query().Get("pageSize"); ps != "" {
			if v, err := strconv.Atoi(ps); err == nil && v > 0 {
				pageSize = v
			}
		}

		records, nextToken, total, err := store.ListByActor(r.Context(), actor, filter, pageSize, r.URL.Query().Get("pageToken"))
		if err != nil {
			api.WriteError(w, logger, err)
			return
		}

		events := make([]eventResponse, len(records))
		for i, rec := range records {
			events[i] = recordToResponse(rec)
		}
		api.WriteResult(w, http.StatusOK, map[string]any{
			"events":        events,
			"nextPageToken": nextToken,
			"totalSize":     total,
		})
	}
}

// GetEventHandler handles GET /audit/events/{eventId}
func GetEventHandler(store *Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := authz.UserID(r.Context())
		if err != nil {
			api.WriteError(w, logger, err)
			return
		}
		record, err := store.GetByID(r.Context(), actor, chi.URLParam(r, "eventId"))
		if err != nil {
			api.WriteError(w, logger, err)
			return
		}
		api.WriteResult(w, http.StatusOK, recordToResponse(*record))
	}
}

type eventResponse struct {
	ID            string         `json:"id"`
	CorrelationID string         `json:"correlationId,omitempty"`
	EventType     string         `json:"eventType"`
	Actor         string         `json:"actor"`
	RequestID     string         `json:"requestId,omitempty"`
	ResourceType  string         `json:"resourceType,omitempty"`
	ResourceIDs   []string       `json:"resourceIds,omitempty"`
	Action        string         `json:"action,omitempty"`
	Outcome       string         `json:"outcome"`
	StatusCode    int            `json:"statusCode,omitempty"`
	OldValue      map[string]any `json:"oldValue,omitempty"`
	NewValue      map[string]any `json:"newValue,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     string         `json:"createdAt"`
}

func recordToResponse(rec EventRecord) eventResponse {
	return eventResponse{
		ID:            rec.ID,
		CorrelationID: rec.CorrelationID,
		EventType:     rec.EventType,
		Actor:         rec.Actor,
		RequestID:     rec.RequestID,
		ResourceType:  rec.ResourceType,
		ResourceIDs:   []string(rec.ResourceIDs),
		Action:        rec.Action,
		Outcome:       rec.Outcome,
		StatusCode:    rec.StatusCode,
		OldValue:      map[string]any(rec.OldValue),
		NewValue:      map[string]any(rec.NewValue),
		Metadata:      map[string]any(rec.Metadata),
		CreatedAt:     rec.CreatedAt.Format(time.RFC3339),
	}
}
