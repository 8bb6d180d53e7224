package profile

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/greenledger/greenledger/pkg/api"
	"github.com/greenledger/greenledger/pkg/authz"
	"github.com/greenledger/greenledger/pkg/factors"
)

// ErrInvalidProfile is returned for profile or certification input that
// fails validation.
var ErrInvalidProfile = errors.New("invalid profile")

// Register mounts the profile endpoints on r.
//
//	GET /profile
//	PUT /profile
//	GET /certifications
//	PUT /certifications/{name}
func Register(r chi.Router, store *Store, logger *slog.Logger) {
	r.Get("/profile", GetProfileHandler(store, logger))
	r.Put("/profile", PutProfileHandler(store, logger))
	r.Get("/certifications", ListCertificationsHandler(store, logger))
	r.Put("/certifications/{name}", PutCertificationHandler(store, logger))
}

type profileRequest struct {
	BusinessName     string  `json:"business_name"`
	BusinessType     string  `json:"business_type"`
	GSTIN            string  `json:"gstin"`
	IdentityVerified bool    `json:"identity_verified"`
	BankVerified     bool    `json:"bank_verified"`
	CompletionPct    float64 `json:"completion_pct"`
	AnnualRevenue    float64 `json:"annual_revenue"`
	ExistingDebt     float64 `json:"existing_debt"`
}

func (req profileRequest) toProfile(userID string) (*Profile, error) {
	bt, err := factors.ParseBusinessType(req.BusinessType)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidProfile, err)
	}
	if !inRange(req.CompletionPct, 0, 100) {
		return nil, fmt.Errorf("%w: completion_pct must be between 0 and 100", ErrInvalidProfile)
	}
	if !inRange(req.AnnualRevenue, 0, math.MaxFloat64) {
		return nil, fmt.Errorf("%w: annual_revenue must be a non-negative number", ErrInvalidProfile)
	}
	if !inRange(req.ExistingDebt, 0, math.MaxFloat64) {
		return nil, fmt.Errorf("%w: existing_debt must be a non-negative number", ErrInvalidProfile)
	}
	return &Profile{
		UserID:           userID,
		BusinessName:     strings.TrimSpace(req.BusinessName),
		BusinessType:     string(bt),
		GSTIN:            strings.TrimSpace(req.GSTIN),
		IdentityVerified: req.IdentityVerified,
		BankVerified:     req.BankVerified,
		CompletionPct:    req.CompletionPct,
		AnnualRevenue:    req.AnnualRevenue,
		ExistingDebt:     req.ExistingDebt,
	}, nil
}

func inRange(v, lo, hi float64) bool {
	return !math.IsNaN(v) && v >= lo && v <= hi
}

type profileResponse struct {
	UserID           string          `json:"user_id"`
	BusinessName     string          `json:"business_name,omitempty"`
	BusinessType     string          `json:"business_type"`
	GSTIN            string          `json:"gstin,omitempty"`
	IdentityVerified bool            `json:"identity_verified"`
	BankVerified     bool            `json:"bank_verified"`
	CompletionPct    float64         `json:"completion_pct"`
	AnnualRevenue    float64         `json:"annual_revenue"`
	ExistingDebt     float64         `json:"existing_debt"`
	GreenScore       float64         `json:"green_score"`
	GreenGrade       string          `json:"green_grade,omitempty"`
	ScoreFactors     map[string]any  `json:"score_factors,omitempty"`
	ScoreHistory     []ScoreSnapshot `json:"score_history,omitempty"`
	ScoreUpdatedAt   string          `json:"score_updated_at,omitempty"`
	UpdatedAt        string          `json:"updated_at"`
}

func profileToResponse(p *Profile) profileResponse {
	resp := profileResponse{
		UserID:           p.UserID,
		BusinessName:     p.BusinessName,
		BusinessType:     p.BusinessType,
		GSTIN:            p.GSTIN,
		IdentityVerified: p.IdentityVerified,
		BankVerified:     p.BankVerified,
		CompletionPct:    p.CompletionPct,
		AnnualRevenue:    p.AnnualRevenue,
		ExistingDebt:     p.ExistingDebt,
		GreenScore:       p.GreenScore,
		GreenGrade:       p.GreenGrade,
		ScoreFactors:     map[string]any(p.ScoreFactors),
		ScoreHistory:     []ScoreSnapshot(p.ScoreHistory),
		UpdatedAt:        p.UpdatedAt.Format(time.RFC3339),
	}
	if p.ScoreUpdatedAt != nil {
		resp.ScoreUpdatedAt = p.ScoreUpdatedAt.Format(time.RFC3339)
	}
	return resp
}

// GetProfileHandler handles GET /profile.
func GetProfileHandler(store *Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := authz.UserID(r.Context())
		if err != nil {
			writeError(w, logger, err)
			return
		}
		p, err := store.Get(r.Context(), userID)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		api.WriteResult(w, http.StatusOK, profileToResponse(p))
	}
}

// PutProfileHandler handles PUT /profile.
func PutProfileHandler(store *Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := authz.UserID(r.Context())
		if err != nil {
			writeError(w, logger, err)
			return
		}
		var req profileRequest
		if err := api.DecodeJSON(r, &req); err != nil {
			writeError(w, logger, err)
			return
		}
		p, err := req.toProfile(userID)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		saved, err := store.Upsert(r.Context(), p)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		api.WriteResult(w, http.StatusOK, profileToResponse(saved))
	}
}

type certificationResponse struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	UpdatedAt string `json:"updated_at"`
}

func certToResponse(c *Certification) certificationResponse {
	return certificationResponse{Name: c.Name, Status: string(c.Status), UpdatedAt: c.UpdatedAt.Format(time.RFC3339)}
}

// ListCertificationsHandler handles GET /certifications.
func ListCertificationsHandler(store *Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := authz.UserID(r.Context())
		if err != nil {
			writeError(w, logger, err)
			return
		}
		certs, err := store.Certifications(r.Context(), userID)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		items := make([]certificationResponse, len(certs))
		for i := range certs {
			items[i] = certToResponse(&certs[i])
		}
		api.WriteResult(w, http.StatusOK, map[string]any{"certifications": items})
	}
}

// PutCertificationHandler handles PUT /certifications/{name} with body
// {"status": "earned" | "in_progress" | "expired"}.
func PutCertificationHandler(store *Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := authz.UserID(r.Context())
		if err != nil {
			writeError(w, logger, err)
			return
		}
		name := strings.TrimSpace(chi.URLParam(r, "name"))
		if name == "" {
			writeError(w, logger, fmt.Errorf("%w: missing certification name", ErrInvalidProfile))
			return
		}
		var req struct {
			Status CertificationStatus `json:"status"`
		}
		if err := api.DecodeJSON(r, &req); err != nil {
			writeError(w, logger, err)
			return
		}
		status := CertificationStatus(strings.ToLower(strings.TrimSpace(string(req.Status))))
		if !knownCertStatuses.Contains(status) {
			writeError(w, logger, fmt.Errorf("%w: unknown certification status %q", ErrInvalidProfile, req.Status))
			return
		}
		cert, err := store.UpsertCertification(r.Context(), userID, name, status)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		api.WriteResult(w, http.StatusOK, certToResponse(cert))
	}
}

func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	if errors.Is(err, ErrInvalidProfile) {
		err = api.BadRequest(err)
	}
	api.WriteError(w, logger, err)
}
