package activity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/greenledger/greenledger/pkg/emissions"
)

// ErrInvalidActivity is returned for a submission with an unknown
// calculation method or status.
var ErrInvalidActivity = errors.New("invalid activity")

// SubmitInput is a new activity as supplied by the caller.
type SubmitInput struct {
	Category          string            `json:"category"`
	Quantity          float64           `json:"quantity"`
	Unit              string            `json:"unit"`
	Region            string            `json:"region"`
	TechEfficiencyPct *float64          `json:"tech_efficiency_pct,omitempty"`
	IoTReductionPct   *float64          `json:"iot_reduction_pct,omitempty"`
	CalculationMethod CalculationMethod `json:"calculation_method"`
	Status            Status            `json:"status"`
	OccurredAt        *time.Time        `json:"occurred_at,omitempty"`
}

// Recorder validates submissions, computes their emission breakdown and
// persists both.
type Recorder struct {
	store  *Store
	logger *slog.Logger
	now    func() time.Time
}

// NewRecorder creates a Recorder.
func NewRecorder(store *Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Submit records one activity for userID. Every submission is validated
// like a calculation; processed ones are stored with their breakdown, while
// pending and failed ones are stored alone and only count towards invoice
// quality.
func (r *Recorder) Submit(ctx context.Context, userID string, in SubmitInput) (*ActivityRecord, *EmissionRecord, error) {
	method := CalculationMethod(strings.ToLower(strings.TrimSpace(string(in.CalculationMethod))))
	if method == "" {
		method = MethodManual
	}
	if !knownMethods.Contains(method) {
		return nil, nil, fmt.Errorf("%w: unknown calculation method %q", ErrInvalidActivity, in.CalculationMethod)
	}
	status := Status(strings.ToLower(strings.TrimSpace(string(in.Status))))
	if status == "" {
		status = StatusProcessed
	}
	if !knownStatuses.Contains(status) {
		return nil, nil, fmt.Errorf("%w: unknown status %q", ErrInvalidActivity, in.Status)
	}

	b, err := emissions.ComputeEmissions(emissions.Activity{
		Category: in.Category,
		Quantity: in.Quantity,
		Unit:     in.Unit,
		Region:   in.Region,
	}, deref(in.TechEfficiencyPct), deref(in.IoTReductionPct))
	if err != nil {
		return nil, nil, err
	}

	now := r.now()
	act := &ActivityRecord{
		ID:                uuid.New().String(),
		UserID:            userID,
		Category:          string(b.Category),
		Quantity:          in.Quantity,
		Unit:              in.Unit,
		Region:            string(b.Region),
		TechEfficiencyPct: in.TechEfficiencyPct,
		IoTReductionPct:   in.IoTReductionPct,
		CalculationMethod: method,
		Status:            status,
		OccurredAt:        now,
		CreatedAt:         now,
	}
	if in.OccurredAt != nil {
		act.OccurredAt = in.OccurredAt.UTC()
	}

	var em *EmissionRecord
	if status == StatusProcessed {
		em = &EmissionRecord{
			ID:                uuid.New().String(),
			ActivityID:        act.ID,
			UserID:            userID,
			Category:          string(b.Category),
			Region:            string(b.Region),
			CalculationMethod: method,
			Scope1:            b.Scope1,
			Scope2:            b.Scope2,
			Scope3:            b.Scope3,
			BaseEmission:      b.BaseEmission,
			TechAdjusted:      b.TechAdjusted,
			FinalEmission:     b.FinalEmission,
			EmissionReduction: b.EmissionReduction,
			CreatedAt:         now,
		}
	}

	if err := r.store.Insert(ctx, act, em); err != nil {
		return nil, nil, err
	}
	r.logger.Info("activity recorded",
		"userID", userID,
		"activityID", act.ID,
		"category", act.Category,
		"status", status,
		"hasEmission", em != nil)
	return act, em, nil
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
