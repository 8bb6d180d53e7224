package credits

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/greenledger/greenledger/pkg/api"
	"github.com/greenledger/greenledger/pkg/authz"
)

// Register mounts the credit endpoints on r.
//
//	POST /credits:convert
//	POST /credits:issue
//	GET  /credits
//	GET  /credits/monthly
func Register(r chi.Router, issuer *Issuer, store *Store, rates RateSource, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	r.Post("/credits:convert", ConvertHandler(rates, logger))
	r.Post("/credits:issue", IssueHandler(issuer, logger))
	r.Get("/credits", ListCreditsHandler(store, logger))
	r.Get("/credits/monthly", MonthlyCreditsHandler(store, logger))
}

// convertRequest.MarketRate overrides the current published rate when set.
type convertRequest struct {
	ReductionKg  float64   `json:"reduction_kg"`
	MarketRate   *float64  `json:"market_rate,omitempty"`
	SocialImpact bool      `json:"social_impact"`
	Verified     bool      `json:"verified"`
	Premiums     []float64 `json:"premiums,omitempty"`
}

type convertResponse struct {
	Conversion
	MarketRate float64   `json:"market_rate"`
	Currency   string    `json:"currency,omitempty"`
	Premiums   []float64 `json:"premiums"`
}

// ConvertHandler handles POST /credits:convert. Nothing is stored.
func ConvertHandler(rates RateSource, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req convertRequest
		if err := api.DecodeJSON(r, &req); err != nil {
			writeError(w, logger, err)
			return
		}

		resp := convertResponse{Premiums: []float64{}}
		if req.MarketRate != nil {
			resp.MarketRate = *req.MarketRate
		} else {
			rate, err := rates.Current(r.Context())
			if err != nil {
				writeError(w, logger, err)
				return
			}
			resp.MarketRate = rate.RatePerCredit
			resp.Currency = rate.Currency
		}
		if req.SocialImpact {
			resp.Premiums = append(resp.Premiums, SocialImpactPremium)
		}
		if req.Verified {
			resp.Premiums = append(resp.Premiums, VerificationPremium)
		}
		resp.Premiums = append(resp.Premiums, req.Premiums...)

		conv, err := ConvertToCredits(req.ReductionKg, resp.MarketRate, resp.Premiums...)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		resp.Conversion = conv
		api.WriteResult(w, http.StatusOK, resp)
	}
}

// IssueHandler handles POST /credits:issue with body {"emission_id": "..."}.
func IssueHandler(issuer *Issuer, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := authz.UserID(r.Context())
		if err != nil {
			writeError(w, logger, err)
			return
		}
		var req struct {
			EmissionID string `json:"emission_id"`
		}
		if err := api.DecodeJSON(r, &req); err != nil {
			writeError(w, logger, err)
			return
		}
		if strings.TrimSpace(req.EmissionID) == "" {
			writeError(w, logger, api.BadRequestf("emission_id is required"))
			return
		}

		res, err := issuer.IssueCreditsForEmission(r.Context(), userID, strings.TrimSpace(req.EmissionID))
		if err != nil {
			writeError(w, logger, err)
			return
		}
		resp := issueResponse{Issued: res.Issued, Reason: res.Reason}
		if res.Credit != nil {
			c := creditToResponse(res.Credit)
			resp.Credit = &c
		}
		status := http.StatusOK
		if res.Issued {
			status = http.StatusCreated
		}
		api.WriteResult(w, status, resp)
	}
}

// ListCreditsHandler handles GET /credits.
// Query params: pageSize, pageToken
func ListCreditsHandler(store *Store, logger *slog.Logger) http.HandlerFunc {
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
		recs, next, total, err := store.ListByUser(r.Context(), userID, pageSize, r.URL.Query().Get("pageToken"))
		if err != nil {
			writeError(w, logger, err)
			return
		}
		items := make([]creditResponse, len(recs))
		for i := range recs {
			items[i] = creditToResponse(&recs[i])
		}
		api.WriteResult(w, http.StatusOK, map[string]any{
			"credits":       items,
			"nextPageToken": next,
			"totalSize":     total,
		})
	}
}

// MonthlyCreditsHandler handles GET /credits/monthly.
func MonthlyCreditsHandler(store *Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := authz.UserID(r.Context())
		if err != nil {
			writeError(w, logger, err)
			return
		}
		aggs, err := store.Monthly(r.Context(), userID)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		items := make([]monthlyResponse, len(aggs))
		for i, a := range aggs {
			items[i] = monthlyResponse{
				Month:         a.Month,
				CreditsEarned: a.CreditsEarned,
				CreditValue:   a.CreditValue,
				RecordCount:   a.RecordCount,
			}
		}
		api.WriteResult(w, http.StatusOK, map[string]any{"months": items})
	}
}

type issueResponse struct {
	Issued bool            `json:"issued"`
	Reason string          `json:"reason"`
	Credit *creditResponse `json:"credit,omitempty"`
}

type creditResponse struct {
	ID                string  `json:"id"`
	EmissionID        string  `json:"emission_id"`
	Category          string  `json:"category"`
	BaselineKg        float64 `json:"baseline_kg"`
	ReductionKg       float64 `json:"reduction_kg"`
	QualityMultiplier float64 `json:"quality_multiplier"`
	CreditsEarned     float64 `json:"credits_earned"`
	CreditValue       float64 `json:"credit_value"`
	MarketRate        float64 `json:"market_rate"`
	Currency          string  `json:"currency"`
	Status            string  `json:"status"`
	EarnedAt          string  `json:"earned_at"`
}

type monthlyResponse struct {
	Month         string  `json:"month"`
	CreditsEarned float64 `json:"credits_earned"`
	CreditValue   float64 `json:"credit_value"`
	RecordCount   int64   `json:"record_count"`
}

func creditToResponse(c *CreditRecord) creditResponse {
	return creditResponse{
		ID:                c.ID,
		EmissionID:        c.EmissionID,
		Category:          c.Category,
		BaselineKg:        c.BaselineKg,
		ReductionKg:       c.ReductionKg,
		QualityMultiplier: c.QualityMultiplier,
		CreditsEarned:     c.CreditsEarned,
		CreditValue:       c.CreditValue,
		MarketRate:        c.MarketRate,
		Currency:          c.Currency,
		Status:            string(c.Status),
		EarnedAt:          c.EarnedAt.Format(time.RFC3339),
	}
}

func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	if errors.Is(err, ErrInvalidMarketRate) ||
		errors.Is(err, ErrInvalidPremium) ||
		errors.Is(err, ErrInvalidReduction) {
		err = api.BadRequest(err)
	}
	api.WriteError(w, logger, err)
}
