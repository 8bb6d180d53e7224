package loans

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/greenledger/greenledger/pkg/api"
	"github.com/greenledger/greenledger/pkg/authz"
	"github.com/greenledger/greenledger/pkg/profile"
)

// ProfileReader reads the stored profile. *profile.Store implements it.
type ProfileReader interface {
	Get(ctx context.Context, userID string) (*profile.Profile, error)
}

// Register mounts POST /loans:eligibility on r.
func Register(r chi.Router, profiles ProfileReader, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	r.Post("/loans:eligibility", EligibilityHandler(profiles, logger))
}

// eligibilityRequest fields left out are taken from the stored profile.
type eligibilityRequest struct {
	AnnualRevenue   *float64 `json:"annual_revenue,omitempty"`
	ExistingDebt    *float64 `json:"existing_debt,omitempty"`
	RequestedAmount float64  `json:"requested_amount"`
}

// EligibilityHandler handles POST /loans:eligibility. The score is always
// the caller's stored Green Score; it is not recalculated.
func EligibilityHandler(profiles ProfileReader, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := authz.UserID(r.Context())
		if err != nil {
			writeError(w, logger, err)
			return
		}
		var req eligibilityRequest
		if err := api.DecodeJSON(r, &req); err != nil {
			writeError(w, logger, err)
			return
		}

		p, err := profiles.Get(r.Context(), userID)
		if err != nil && !errors.Is(err, profile.ErrProfileNotFound) {
			writeError(w, logger, err)
			return
		}
		score := GreenScoreInput{Grade: "C"}
		fin := Financials{RequestedAmount: req.RequestedAmount}
		if p != nil {
			score.Score = p.GreenScore
			if p.GreenGrade != "" {
				score.Grade = p.GreenGrade
			}
			fin.AnnualRevenue = p.AnnualRevenue
			fin.ExistingDebt = p.ExistingDebt
		}
		if req.AnnualRevenue != nil {
			fin.AnnualRevenue = *req.AnnualRevenue
		}
		if req.ExistingDebt != nil {
			fin.ExistingDebt = *req.ExistingDebt
		}

		res, err := ComposeEligibility(score, fin)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		api.WriteResult(w, http.StatusOK, res)
	}
}

func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	if errors.Is(err, ErrInvalidFinancials) {
		err = api.BadRequest(err)
	}
	api.WriteError(w, logger, err)
}
