package audit

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
)

// Register mounts the audit API on r. Callers only see their own events.
//
//	GET /audit/events
//	GET /audit/events/{eventId}
func Register(r chi.Router, store *Store, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	r.Get("/audit/events", ListEventsHandler(store, logger))
	r.Get("/audit/events/{eventId}", GetEventHandler(store, logger))
}
