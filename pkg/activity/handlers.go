package activity

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/greenledger/greenledger/pkg/api"
	"github.com/greenledger/greenledger/pkg/authz"
	"github.com/greenledger/greenledger/pkg/emissions"
	"github.com/greenledger/greenledger/pkg/factors"
)

// Register mounts the activity and emission endpoints on r.
//
//	POST /activities
//	GET  /emissions
//	GET  /emissions/{emissionId}
//	POST /emissions:compute
func Register(r chi.Router, recorder *Recorder, store *Store, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	r.Post("/activities", SubmitActivityHandler(recorder, logger))
	r.Get("/emissions", ListEmissionsHandler(store, logger))
	r.Get("/emissions/{emissionId}", GetEmissionHandler(store, logger))
	r.Post("/emissions:compute", ComputeHandler(logger))
}

// SubmitActivityHandler handles POST /activities.
func SubmitActivityHandler(recorder *Recorder, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := authz.UserID(r.Context())
		if err != nil {
			writeError(w, logger, err)
			return
		}
		var in SubmitInput
		if err := api.DecodeJSON(r, &in); err != nil {
			writeError(w, logger, err)
			return
		}

		act, em, err := recorder.Submit(r.Context(), userID, in)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		resp := submitResponse{Activity: activityToResponse(act)}
		if em != nil {
			e := emissionToResponse(em)
			resp.Emission = &e
		}
		api.WriteResult(w, http.StatusCreated, resp)
	}
}

// ListEmissionsHandler handles GET /emissions.
// Query params: pageSize, pageToken
func ListEmissionsHandler(store *Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := authz.UserID(r.Context())
		if err != nil {
			writeError(w, logger, err)
			return
		}

		pageSize := 0
		if ps := r.URL.Query().Get("pageSize"); ps != "" {
			if v, err := strconv.Atoi(ps); err == nil && v > 0 {
				pageSize = v
			}
		}
		recs, nextToken, total, err := store.ListEmissions(r.Context(), userID, pageSize, r.URL.Query().Get("pageToken"))
		if err != nil {
			writeError(w, logger, err)
			return
		}

		items := make([]emissionResponse, len(recs))
		for i := range recs {
			items[i] = emissionToResponse(&recs[i])
		}
		api.WriteResult(w, http.StatusOK, map[string]any{
			"emissions":     items,
			"nextPageToken": nextToken,
			"totalSize":     total,
		})
	}
}

// GetEmissionHandler handles GET /emissions/{emissionId}.
func GetEmissionHandler(store *Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := authz.UserID(r.Context())
		if err != nil {
			writeError(w, logger, err)
			return
		}
		rec, err := store.GetEmission(r.Context(), userID, chi.URLParam(r, "emissionId"))
		if err != nil {
			writeError(w, logger, err)
			return
		}
		api.WriteResult(w, http.StatusOK, emissionToResponse(rec))
	}
}

type computeRequest struct {
	emissions.Activity
	TechEfficiencyPct float64 `json:"tech_efficiency_pct"`
	IoTReductionPct   float64 `json:"iot_reduction_pct"`
}

// ComputeHandler handles POST /emissions:compute. Nothing is stored; it
// backs live recalculation while a form is being filled in.
func ComputeHandler(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req computeRequest
		if err := api.DecodeJSON(r, &req); err != nil {
			writeError(w, logger, err)
			return
		}
		b, err := emissions.ComputeEmissions(req.Activity, req.TechEfficiencyPct, req.IoTReductionPct)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		api.WriteResult(w, http.StatusOK, b)
	}
}

type submitResponse struct {
	Activity activityResponse  `json:"activity"`
	Emission *emissionResponse `json:"emission,omitempty"`
}

type activityResponse struct {
	ID                string   `json:"id"`
	Category          string   `json:"category"`
	Quantity          float64  `json:"quantity"`
	Unit              string   `json:"unit,omitempty"`
	Region            string   `json:"region,omitempty"`
	TechEfficiencyPct *float64 `json:"tech_efficiency_pct,omitempty"`
	IoTReductionPct   *float64 `json:"iot_reduction_pct,omitempty"`
	CalculationMethod string   `json:"calculation_method"`
	Status            string   `json:"status"`
	OccurredAt        string   `json:"occurred_at"`
	CreatedAt         string   `json:"created_at"`
}

type emissionResponse struct {
	ID                string  `json:"id"`
	ActivityID        string  `json:"activity_id"`
	Category          string  `json:"category"`
	Region            string  `json:"region"`
	CalculationMethod string  `json:"calculation_method"`
	Scope1            float64 `json:"scope1"`
	Scope2            float64 `json:"scope2"`
	Scope3            float64 `json:"scope3"`
	BaseEmission      float64 `json:"base_emission"`
	TechAdjusted      float64 `json:"tech_adjusted"`
	FinalEmission     float64 `json:"final_emission"`
	EmissionReduction float64 `json:"emission_reduction"`
	CreatedAt         string  `json:"created_at"`
}

func activityToResponse(a *ActivityRecord) activityResponse {
	return activityResponse{
		ID:                a.ID,
		Category:          a.Category,
		Quantity:          a.Quantity,
		Unit:              a.Unit,
		Region:            a.Region,
		TechEfficiencyPct: a.TechEfficiencyPct,
		IoTReductionPct:   a.IoTReductionPct,
		CalculationMethod: string(a.CalculationMethod),
		Status:            string(a.Status),
		OccurredAt:        a.OccurredAt.Format(time.RFC3339),
		CreatedAt:         a.CreatedAt.Format(time.RFC3339),
	}
}

func emissionToResponse(e *EmissionRecord) emissionResponse {
	return emissionResponse{
		ID:                e.ID,
		ActivityID:        e.ActivityID,
		Category:          e.Category,
		Region:            e.Region,
		CalculationMethod: string(e.CalculationMethod),
		Scope1:            e.Scope1,
		Scope2:            e.Scope2,
		Scope3:            e.Scope3,
		BaseEmission:      e.BaseEmission,
		TechAdjusted:      e.TechAdjusted,
		FinalEmission:     e.FinalEmission,
		EmissionReduction: e.EmissionReduction,
		CreatedAt:         e.CreatedAt.Format(time.RFC3339),
	}
}

// writeError marks this package's input errors before handing off to the
// shared status mapping.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	if errors.Is(err, factors.ErrUnknownFactor) ||
		errors.Is(err, emissions.ErrInvalidInput) ||
		errors.Is(err, emissions.ErrCalculationOverflow) ||
		errors.Is(err, ErrInvalidActivity) {
		err = api.BadRequest(err)
	}
	api.WriteError(w, logger, err)
}
