// Package loans turns a Green Score and declared financials into a loan
// offer.
package loans

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidFinancials is returned for negative or non-finite financials.
var ErrInvalidFinancials = errors.New("invalid financials")

const (
	// BaseInterestRate is the annual rate in percent before grade discounts.
	BaseInterestRate = 12.0

	// MinEligibleScore is the lowest Green Score that qualifies for a loan.
	MinEligibleScore = 40.0

	// revenueCapacityShare is the share of annual revenue available for
	// debt service.
	revenueCapacityShare = 0.5
)

var gradeDiscounts = map[string]float64{
	"A+": 2.5,
	"A":  2.0,
	"B+": 1.5,
	"B":  1.0,
	"C+": 0.5,
	"C":  0,
}

// GreenScoreInput is the score side of an eligibility decision.
type GreenScoreInput struct {
	Score float64 `json:"score"`
	Grade string  `json:"grade"`
}

// Financials are the declared figures of the business.
type Financials struct {
	AnnualRevenue   float64 `json:"annual_revenue"`
	ExistingDebt    float64 `json:"existing_debt"`
	RequestedAmount float64 `json:"requested_amount"`
}

// Eligibility is the composed loan offer.
type Eligibility struct {
	Eligible       bool    `json:"eligible"`
	Capacity       float64 `json:"capacity"`
	MaxAmount      float64 `json:"max_amount"`
	EligibleAmount float64 `json:"eligible_amount"`
	InterestRate   float64 `json:"interest_rate"`
	Score          float64 `json:"score"`
	Grade          string  `json:"grade"`
}

// ComposeEligibility combines a Green Score with financials. Capacity is
// half the annual revenue less existing debt, floored at zero; the maximum
// amount scales capacity by score/100.
func ComposeEligibility(score GreenScoreInput, fin Financials) (Eligibility, error) {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"annual_revenue", fin.AnnualRevenue},
		{"existing_debt", fin.ExistingDebt},
		{"requested_amount", fin.RequestedAmount},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) || f.v < 0 {
			return Eligibility{}, fmt.Errorf("%w: %s must be a non-negative number, got %v", ErrInvalidFinancials, f.name, f.v)
		}
	}
	if math.IsNaN(score.Score) {
		return Eligibility{}, fmt.Errorf("%w: score is not a number", ErrInvalidFinancials)
	}
	s := math.Max(0, math.Min(100, score.Score))

	capacity := math.Max(0, fin.AnnualRevenue*revenueCapacityShare-fin.ExistingDebt)
	maxAmount := capacity * s / 100
	eligible := s >= MinEligibleScore && maxAmount > 0

	res := Eligibility{
		Eligible:     eligible,
		Capacity:     capacity,
		MaxAmount:    maxAmount,
		InterestRate: BaseInterestRate - gradeDiscounts[score.Grade],
		Score:        s,
		Grade:        score.Grade,
	}
	if eligible {
		res.EligibleAmount = maxAmount
		if fin.RequestedAmount > 0 {
			res.EligibleAmount = math.Min(fin.RequestedAmount, maxAmount)
		}
	}
	return res, nil
}
