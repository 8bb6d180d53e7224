package credits

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/greenledger/greenledger/pkg/activity"
	"github.com/greenledger/greenledger/pkg/db"
	"github.com/greenledger/greenledger/pkg/factors"
	"github.com/greenledger/greenledger/pkg/marketrate"
	"github.com/greenledger/greenledger/pkg/metrics"
	"github.com/greenledger/greenledger/pkg/notify"
)

// KgPerIssuedCredit is the reduction that earns one issued credit.
const KgPerIssuedCredit = 100

// IoTQualityMultiplier rewards sensor-measured activity data.
const IoTQualityMultiplier = 1.2

// Outcome reasons of IssueResult.
const (
	ReasonIssued          = "issued"
	ReasonNoReduction     = "no_reduction"
	ReasonAlreadyCredited = "already_credited"
)

// EmissionReader loads an emission record owned by a user.
type EmissionReader interface {
	GetEmission(ctx context.Context, userID, emissionID string) (*activity.EmissionRecord, error)
}

// RateSource returns the market rate effective now.
type RateSource interface {
	Current(ctx context.Context) (marketrate.MarketRate, error)
}

// BusinessTypeReader returns a user's declared business type.
type BusinessTypeReader interface {
	BusinessType(ctx context.Context, userID string) (factors.BusinessType, error)
}

// Ledger persists a credit at most once per emission. *Store implements it.
type Ledger interface {
	Issue(ctx context.Context, rec *CreditRecord) (*CreditRecord, bool, error)
}

// IssuerConfig bounds retries of the issuance transaction.
type IssuerConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"` // Attempts of the whole transaction. Default 3.
	Backoff     time.Duration `mapstructure:"backoff"`      // Linear backoff step between attempts. Default 100ms.
}

// DefaultIssuerConfig returns the default issuer configuration.
func DefaultIssuerConfig() IssuerConfig {
	return IssuerConfig{MaxAttempts: 3, Backoff: 100 * time.Millisecond}
}

// IssueResult is the outcome of IssueCreditsForEmission. A call that
// writes nothing is still a success; Reason says why.
type IssueResult struct {
	Issued bool          `json:"issued"`
	Reason string        `json:"reason"`
	Credit *CreditRecord `json:"credit,omitempty"`
}

// Issuer issues credits for emission records.
type Issuer struct {
	ledger     Ledger
	emissions  EmissionReader
	rates      RateSource
	businesses BusinessTypeReader
	sink       notify.Sink
	cfg        IssuerConfig
	logger     *slog.Logger
	now        func() time.Time
}

// NewIssuer creates an Issuer. sink may be nil.
func NewIssuer(ledger Ledger, emissions EmissionReader, rates RateSource, businesses BusinessTypeReader, sink notify.Sink, cfg IssuerConfig, logger *slog.Logger) *Issuer {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultIssuerConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = def.Backoff
	}
	return &Issuer{
		ledger:     ledger,
		emissions:  emissions,
		rates:      rates,
		businesses: businesses,
		sink:       sink,
		cfg:        cfg,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// IssueCreditsForEmission issues credits for the emission record
// emissionID of userID, at most once per emission.
//
// The reduction is measured against the category's industry baseline, not
// the calculator's emission factor. Insert and monthly aggregate update are
// one transaction which is retried as a whole on transient database
// failures. Repeated or concurrent calls for the same emission return
// ReasonAlreadyCredited with the stored record.
func (i *Issuer) IssueCreditsForEmission(ctx context.Context, userID, emissionID string) (IssueResult, error) {
	em, err := i.emissions.GetEmission(ctx, userID, emissionID)
	if err != nil {
		return IssueResult{}, err
	}

	category, err := factors.ParseCategory(em.Category)
	if err != nil {
		return IssueResult{}, fmt.Errorf("emission %s: stored category: %v", em.ID, err)
	}
	baseline, err := factors.CategoryBaseline(category)
	if err != nil {
		return IssueResult{}, fmt.Errorf("emission %s: stored category: %v", em.ID, err)
	}
	reduction := math.Max(0, baseline-em.FinalEmission)
	if reduction <= 0 {
		i.logger.Debug("no reduction against baseline",
			"emissionID", em.ID, "baseline", baseline, "finalEmission", em.FinalEmission)
		metrics.CreditIssuances.WithLabelValues(ReasonNoReduction).Inc()
		return IssueResult{Reason: ReasonNoReduction}, nil
	}

	bt, err := i.businesses.BusinessType(ctx, userID)
	if err != nil {
		return IssueResult{}, err
	}
	businessMult, err := factors.BusinessMultiplier(bt)
	if err != nil {
		return IssueResult{}, fmt.Errorf("user %s: stored business type: %v", userID, err)
	}
	quality := businessMult
	if em.CalculationMethod == activity.MethodIoTSensor {
		quality *= IoTQualityMultiplier
	}

	rate, err := i.rates.Current(ctx)
	if err != nil {
		return IssueResult{}, err
	}

	creditsEarned := reduction / KgPerIssuedCredit * quality
	value, err := Monetize(creditsEarned, rate.RatePerCredit)
	if err != nil {
		return IssueResult{}, fmt.Errorf("market rate %s: %v", rate.ID, err)
	}

	candidate := &CreditRecord{
		ID:                uuid.New().String(),
		EmissionID:        em.ID,
		UserID:            userID,
		Category:          string(category),
		BaselineKg:        baseline,
		ReductionKg:       reduction,
		QualityMultiplier: quality,
		CreditsEarned:     creditsEarned,
		CreditValue:       value,
		MarketRate:        rate.RatePerCredit,
		Currency:          rate.Currency,
		Status:            StatusPending,
		EarnedAt:          i.now(),
	}

	rec, created, err := i.issueWithRetry(ctx, candidate)
	if err != nil {
		metrics.CreditIssuances.WithLabelValues("failed").Inc()
		return IssueResult{}, db.Dependency("issue credits", err)
	}
	// A commit whose acknowledgement was lost is found again on retry; it
	// is still this call's write.
	if !created && rec.ID == candidate.ID {
		created = true
	}
	if !created {
		metrics.CreditIssuances.WithLabelValues(ReasonAlreadyCredited).Inc()
		return IssueResult{Reason: ReasonAlreadyCredited, Credit: rec}, nil
	}
	metrics.CreditIssuances.WithLabelValues(ReasonIssued).Inc()
	metrics.CreditsEarned.Add(rec.CreditsEarned)

	i.logger.Info("credits issued",
		"userID", userID,
		"emissionID", em.ID,
		"creditID", rec.ID,
		"credits", rec.CreditsEarned,
		"value", rec.CreditValue)
	notify.Emit(ctx, i.sink, i.logger, notify.Event{
		UserID: userID,
		Type:   notify.EventCreditsIssued,
		Payload: map[string]any{
			"credit_id":      rec.ID,
			"emission_id":    rec.EmissionID,
			"credits_earned": rec.CreditsEarned,
			"credit_value":   rec.CreditValue,
			"currency":       rec.Currency,
		},
	})
	return IssueResult{Issued: true, Reason: ReasonIssued, Credit: rec}, nil
}

func (i *Issuer) issueWithRetry(ctx context.Context, candidate *CreditRecord) (*CreditRecord, bool, error) {
	var lastErr error
	for attempt := 1; attempt <= i.cfg.MaxAttempts; attempt++ {
		rec, created, err := i.ledger.Issue(ctx, candidate)
		if err == nil {
			return rec, created, nil
		}
		lastErr = err
		if !db.IsTransient(err) || attempt == i.cfg.MaxAttempts {
			break
		}
		wait := time.Duration(attempt) * i.cfg.Backoff
		metrics.CreditIssueRetries.Inc()
		i.logger.Warn("credit issuance failed, retrying",
			"emissionID", candidate.EmissionID, "attempt", attempt, "wait", wait, "error", err)
		select {
		case <-ctx.Done():
			return nil, false, fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr)
		case <-time.After(wait):
		}
	}
	return nil, false, lastErr
}
