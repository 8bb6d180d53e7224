package greenscore

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/greenledger/greenledger/pkg/api"
	"github.com/greenledger/greenledger/pkg/authz"
	"github.com/greenledger/greenledger/pkg/profile"
)

// Register mounts the Green Score endpoints on r.
//
//	POST /green-score:recalculate
//	GET  /green-score
func Register(r chi.Router, agg *Aggregator, profiles ProfileStore, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	r.Post("/green-score:recalculate", RecalculateHandler(agg, logger))
	r.Get("/green-score", GetScoreHandler(profiles, logger))
}

// RecalculateHandler handles POST /green-score:recalculate.
func RecalculateHandler(agg *Aggregator, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := authz.UserID(r.Context())
		if err != nil {
			api.WriteError(w, logger, err)
			return
		}
		res, err := agg.RecalculateGreenScore(r.Context(), userID)
		if err != nil {
			api.WriteError(w, logger, err)
			return
		}
		api.WriteResult(w, http.StatusOK, res)
	}
}

type scoreResponse struct {
	Score           float64                 `json:"score"`
	Grade           string                  `json:"grade"`
	Factors         map[string]any          `json:"factors"`
	UpdatedAt       string                  `json:"updated_at,omitempty"`
	History         []profile.ScoreSnapshot `json:"history"`
	Recommendations []Recommendation        `json:"recommendations"`
}

// GetScoreHandler handles GET /green-score. It returns the stored score
// and history without recalculating; a user never scored gets a zero score.
func GetScoreHandler(profiles ProfileStore, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := authz.UserID(r.Context())
		if err != nil {
			api.WriteError(w, logger, err)
			return
		}
		p, err := profiles.Get(r.Context(), userID)
		if err != nil && !errors.Is(err, profile.ErrProfileNotFound) {
			api.WriteError(w, logger, err)
			return
		}

		resp := scoreResponse{Grade: Grade(0), Factors: map[string]any{}, History: []profile.ScoreSnapshot{}}
		if p != nil && p.ScoreUpdatedAt != nil {
			resp.Score = p.GreenScore
			resp.Grade = p.GreenGrade
			resp.Factors = p.ScoreFactors
			resp.UpdatedAt = p.ScoreUpdatedAt.Format(time.RFC3339)
			resp.History = p.ScoreHistory
		}
		if snap, ok := p.LastSnapshot(); ok {
			resp.Recommendations = Recommendations(factorsFromMap(snap.Factors))
		} else {
			resp.Recommendations = Recommendations(Factors{})
		}
		api.WriteResult(w, http.StatusOK, resp)
	}
}

func factorsFromMap(m map[string]float64) Factors {
	return Factors{
		GSTNCompliance:          m[FactorGSTNCompliance],
		InvoiceQuality:          m[FactorInvoiceQuality],
		CarbonReduction:         m[FactorCarbonReduction],
		SustainabilityPractices: m[FactorSustainabilityPractices],
		CertificationLevel:      m[FactorCertificationLevel],
	}
}
