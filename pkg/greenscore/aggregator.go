package greenscore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/greenledger/greenledger/pkg/activity"
	"github.com/greenledger/greenledger/pkg/audit"
	"github.com/greenledger/greenledger/pkg/db"
	"github.com/greenledger/greenledger/pkg/metrics"
	"github.com/greenledger/greenledger/pkg/notify"
	"github.com/greenledger/greenledger/pkg/profile"
)

// ImprovementThreshold is the score increase that triggers a notification.
const ImprovementThreshold = 5.0

// ProfileStore reads and writes the profile data the score depends on.
// *profile.Store implements it.
type ProfileStore interface {
	Get(ctx context.Context, userID string) (*profile.Profile, error)
	Certifications(ctx context.Context, userID string) ([]profile.Certification, error)
	SaveScore(ctx context.Context, userID string, update profile.ScoreUpdate) (*profile.Profile, error)
}

// ActivityReader reads a user's submissions. *activity.Store implements it.
type ActivityReader interface {
	Stats(ctx context.Context, userID string) (activity.Stats, error)
	EmissionsInOrder(ctx context.Context, userID string) ([]activity.EmissionRecord, error)
}

// CreditCounter counts a user's credit records. *credits.Store implements it.
type CreditCounter interface {
	CountByUser(ctx context.Context, userID string) (int64, error)
}

// Result is the outcome of one recalculation.
type Result struct {
	Snapshot        profile.ScoreSnapshot `json:"snapshot"`
	Factors         Factors               `json:"factors"`
	PreviousScore   *float64              `json:"previous_score,omitempty"`
	Recommendations []Recommendation      `json:"recommendations"`
	DataPoints      map[string]any        `json:"data_points"`
}

// Aggregator recalculates and stores Green Scores.
type Aggregator struct {
	profiles   ProfileStore
	activities ActivityReader
	credits    CreditCounter
	audit      audit.Appender
	sink       notify.Sink
	logger     *slog.Logger
	now        func() time.Time
}

// NewAggregator creates an Aggregator. auditLog and sink may be nil.
func NewAggregator(profiles ProfileStore, activities ActivityReader, credits CreditCounter, auditLog audit.Appender, sink notify.Sink, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		profiles:   profiles,
		activities: activities,
		credits:    credits,
		audit:      auditLog,
		sink:       sink,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// RecalculateGreenScore reads every input of userID's Green Score, stores
// the new score and history snapshot on the profile, and records an audit
// entry. A failed read aborts before anything is written. Audit and
// notification failures are logged only.
func (a *Aggregator) RecalculateGreenScore(ctx context.Context, userID string) (Result, error) {
	in, prev, err := a.gather(ctx, userID)
	if err != nil {
		metrics.GreenScoreRecalculations.WithLabelValues("failed").Inc()
		return Result{}, db.Dependency("recalculate green score", err)
	}

	factors := Compute(in)
	total := factors.Total()
	grade := Grade(total)
	_, rate := CarbonReduction(in.Emissions)
	dataPoints := map[string]any{
		"has_gstin":             in.GSTIN != "",
		"submissions":           in.Submissions,
		"processed_submissions": in.Processed,
		"emission_records":      len(in.Emissions),
		"reduction_rate":        rate,
		"credit_records":        in.CreditRecords,
		"bank_verified":         in.BankVerified,
		"identity_verified":     in.IdentityVerified,
		"completion_pct":        in.CompletionPct,
		"certs_earned":          in.CertsEarned,
		"certs_in_progress":     in.CertsInProgress,
	}

	saved, err := a.profiles.SaveScore(ctx, userID, profile.ScoreUpdate{
		Score:   total,
		Grade:   grade,
		Factors: factors.Map(),
		At:      a.now(),
	})
	if err != nil {
		metrics.GreenScoreRecalculations.WithLabelValues("failed").Inc()
		return Result{}, err
	}
	snap, _ := saved.LastSnapshot()
	metrics.GreenScoreRecalculations.WithLabelValues("ok").Inc()

	res := Result{
		Snapshot:        snap,
		Factors:         factors,
		Recommendations: Recommendations(factors),
		DataPoints:      dataPoints,
	}
	if prev != nil {
		res.PreviousScore = &prev.Score
	}

	a.writeAudit(ctx, userID, prev, snap, dataPoints)

	a.logger.Info("green score recalculated", "userID", userID, "score", total, "grade", grade)
	// An unscored user starts from the stored default of 0.
	previous := 0.0
	if prev != nil {
		previous = prev.Score
	}
	if total-previous >= ImprovementThreshold {
		notify.Emit(ctx, a.sink, a.logger, notify.Event{
			UserID: userID,
			Type:   notify.EventGreenScoreImproved,
			Payload: map[string]any{
				"previous_score": previous,
				"score":          total,
				"grade":          grade,
			},
		})
	}
	return res, nil
}

// gather reads every input. The previous snapshot is nil for a user who
// has never been scored.
func (a *Aggregator) gather(ctx context.Context, userID string) (Inputs, *profile.ScoreSnapshot, error) {
	var in Inputs
	var prev *profile.ScoreSnapshot

	p, err := a.profiles.Get(ctx, userID)
	switch {
	case errors.Is(err, profile.ErrProfileNotFound):
	case err != nil:
		return in, nil, fmt.Errorf("read profile: %w", err)
	default:
		in.GSTIN = p.GSTIN
		in.BankVerified = p.BankVerified
		in.IdentityVerified = p.IdentityVerified
		in.CompletionPct = p.CompletionPct
		if last, ok := p.LastSnapshot(); ok {
			prev = &last
		}
	}

	stats, err := a.activities.Stats(ctx, userID)
	if err != nil {
		return in, nil, fmt.Errorf("read submissions: %w", err)
	}
	in.Submissions = stats.Total
	in.Processed = stats.Processed

	ems, err := a.activities.EmissionsInOrder(ctx, userID)
	if err != nil {
		return in, nil, fmt.Errorf("read emissions: %w", err)
	}
	in.Emissions = make([]float64, len(ems))
	for i, e := range ems {
		in.Emissions[i] = e.FinalEmission
	}

	if in.CreditRecords, err = a.credits.CountByUser(ctx, userID); err != nil {
		return in, nil, fmt.Errorf("read credits: %w", err)
	}

	certs, err := a.profiles.Certifications(ctx, userID)
	if err != nil {
		return in, nil, fmt.Errorf("read certifications: %w", err)
	}
	for _, c := range certs {
		switch c.Status {
		case profile.CertEarned:
			in.CertsEarned++
		case profile.CertInProgress:
			in.CertsInProgress++
		}
	}
	return in, prev, nil
}

func (a *Aggregator) writeAudit(ctx context.Context, userID string, prev *profile.ScoreSnapshot, snap profile.ScoreSnapshot, dataPoints map[string]any) {
	if a.audit == nil {
		return
	}
	var old map[string]any
	if prev != nil {
		old = map[string]any{"score": prev.Score, "grade": prev.Grade, "factors": prev.Factors}
	}
	event := &audit.EventRecord{
		ID:           uuid.New().String(),
		EventType:    audit.EventTypeGreenScoreRecalculated,
		Actor:        userID,
		ResourceType: "green-score",
		ResourceIDs:  []string{userID},
		Action:       "recalculate",
		Outcome:      "success",
		OldValue:     old,
		NewValue:     map[string]any{"score": snap.Score, "grade": snap.Grade, "factors": snap.Factors},
		Metadata:     map[string]any{"data_points": dataPoints},
		CreatedAt:    snap.CalculatedAt,
	}
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := a.audit.Append(writeCtx, event); err != nil {
		a.logger.Warn("green score audit entry dropped", "userID", userID, "error", err)
	}
}
