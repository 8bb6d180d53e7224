package factors

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/greenledger/greenledger/pkg/api"
)

// Register mounts GET /factors on r behind the given middlewares, which
// is where the response cache plugs in.
func Register(r chi.Router, logger *slog.Logger, middlewares ...func(http.Handler) http.Handler) {
	r.With(middlewares...).Get("/factors", TablesHandler(logger))
}

// TablesHandler handles GET /factors. The optional table query parameter
// selects one of emission, baselines, grid, business_multipliers or units.
func TablesHandler(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t := Snapshot()
		var result any
		switch name := r.URL.Query().Get("table"); name {
		case "":
			result = t
		case "emission":
			result = t.Emission
		case "baselines":
			result = t.Baselines
		case "grid":
			result = t.GridFactors
		case "business_multipliers":
			result = t.BusinessMultipliers
		case "units":
			result = t.Units
		default:
			api.WriteError(w, logger, api.BadRequestf("unknown factor table %q", name))
			return
		}
		api.WriteResult(w, http.StatusOK, result)
	}
}
