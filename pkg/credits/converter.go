// Package credits turns verified emission reductions into carbon credits:
// a pure converter, the idempotent issuance write path and the credit
// ledger it maintains.
package credits

import (
	"errors"
	"fmt"
	"math"

	"github.com/cockroachdb/apd/v3"
)

// KgPerCredit is the emission reduction one tradeable credit represents
// (one tonne CO2e).
const KgPerCredit = 1000

// Value premiums compound multiplicatively.
const (
	SocialImpactPremium = 1.10
	VerificationPremium = 1.15
)

var (
	// ErrInvalidMarketRate is returned for a negative or non-finite rate.
	ErrInvalidMarketRate = errors.New("invalid market rate")

	// ErrInvalidPremium is returned for a premium below 1.0 or non-finite.
	ErrInvalidPremium = errors.New("invalid premium")

	// ErrInvalidReduction is returned for a non-finite reduction.
	ErrInvalidReduction = errors.New("invalid emission reduction")
)

// Conversion is the result of ConvertToCredits.
type Conversion struct {
	// Credits is in tCO2e.
	Credits float64 `json:"credits"`
	// Value is in the market rate's currency, rounded half-up to two
	// decimal places.
	Value float64 `json:"value"`
}

// ConvertToCredits converts reductionKg into credits and values them at
// marketRate multiplied by every premium. A negative reduction counts as
// zero. The result is never negative and is non-decreasing in both
// reductionKg and marketRate.
func ConvertToCredits(reductionKg, marketRate float64, premiums ...float64) (Conversion, error) {
	if math.IsNaN(reductionKg) || math.IsInf(reductionKg, 0) {
		return Conversion{}, fmt.Errorf("%w: %v", ErrInvalidReduction, reductionKg)
	}
	reductionKg = math.Max(0, reductionKg)
	credits := reductionKg / KgPerCredit

	value, err := Monetize(credits, marketRate, premiums...)
	if err != nil {
		return Conversion{}, err
	}
	return Conversion{Credits: credits, Value: value}, nil
}

// decimalCtx carries enough precision that only the final quantize rounds.
var decimalCtx = func() *apd.Context {
	c := apd.BaseContext.WithPrecision(34)
	c.Rounding = apd.RoundHalfUp
	return c
}()

// Monetize returns credits × marketRate × Π premiums rounded half-up to
// two decimal places. The product is computed in decimal.
func Monetize(credits, marketRate float64, premiums ...float64) (float64, error) {
	if marketRate < 0 || math.IsNaN(marketRate) || math.IsInf(marketRate, 0) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidMarketRate, marketRate)
	}
	for _, p := range premiums {
		if p < 1 || math.IsNaN(p) || math.IsInf(p, 0) {
			return 0, fmt.Errorf("%w: %v", ErrInvalidPremium, p)
		}
	}
	if credits <= 0 || math.IsNaN(credits) {
		return 0, nil
	}

	var acc apd.Decimal
	if _, err := acc.SetFloat64(credits); err != nil {
		return 0, fmt.Errorf("convert credits: %w", err)
	}
	mults := append([]float64{marketRate}, premiums...)
	for _, f := range mults {
		var d apd.Decimal
		if _, err := d.SetFloat64(f); err != nil {
			return 0, fmt.Errorf("convert factor %v: %w", f, err)
		}
		if _, err := decimalCtx.Mul(&acc, &acc, &d); err != nil {
			return 0, fmt.Errorf("multiply: %w", err)
		}
	}
	if _, err := decimalCtx.Quantize(&acc, &acc, -2); err != nil {
		return 0, fmt.Errorf("round value: %w", err)
	}
	v, err := acc.Float64()
	if err != nil {
		return 0, fmt.Errorf("convert value: %w", err)
	}
	return v, nil
}
