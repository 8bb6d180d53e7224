// Package emissions turns a single activity quantity into a scope 1/2/3
// CO2e breakdown and a final, efficiency-adjusted emission figure.
//
// ComputeEmissions is a pure function. It is cheap enough to be called on
// every input change of a form, so nothing is cached.
package emissions

import (
	"fmt"
	"math"

	"github.com/greenledger/greenledger/pkg/factors"
)

const (
	// MaxTechReduction is the largest share of base emission technology
	// efficiency can remove.
	MaxTechReduction = 0.45

	// MaxIoTReduction is the largest additional share IoT-verified
	// measurement can remove from the technology-adjusted figure.
	MaxIoTReduction = 0.25
)

// Activity is the calculator input for one unit of business activity.
type Activity struct {
	Category string  `json:"category"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
	Region   string  `json:"region"`
}

// Breakdown is the derived emission figure for one activity, in kg CO2e.
type Breakdown struct {
	Category          factors.Category `json:"category"`
	Region            factors.Region   `json:"region"`
	Quantity          float64          `json:"quantity"`
	Unit              string           `json:"unit"`
	Scope1            float64          `json:"scope1"`
	Scope2            float64          `json:"scope2"`
	Scope3            float64          `json:"scope3"`
	BaseEmission      float64          `json:"base_emission"`
	TechAdjusted      float64          `json:"tech_adjusted"`
	FinalEmission     float64          `json:"final_emission"`
	EmissionReduction float64          `json:"emission_reduction"`
}

// Total returns scope1 + scope2 + scope3.
func (b Breakdown) Total() float64 {
	return b.Scope1 + b.Scope2 + b.Scope3
}

// ComputeEmissions calculates the breakdown for activity.
//
// techEfficiencyPct and iotReductionPct are percentages and are clamped to
// [0, 100]. A quantity of zero or less yields an all-zero breakdown; the
// category and region are still validated so an unknown key is never
// masked. Unknown categories, regions and units return an error wrapping
// factors.ErrUnknownFactor.
func ComputeEmissions(activity Activity, techEfficiencyPct, iotReductionPct float64) (Breakdown, error) {
	if !finite(activity.Quantity) || !finite(techEfficiencyPct) || !finite(iotReductionPct) {
		return Breakdown{}, ErrInvalidInput
	}

	category, err := factors.ParseCategory(activity.Category)
	if err != nil {
		return Breakdown{}, err
	}
	region, err := factors.ParseRegion(activity.Region)
	if err != nil {
		return Breakdown{}, err
	}
	factor, err := factors.FactorFor(category)
	if err != nil {
		return Breakdown{}, err
	}
	grid, err := factors.GridFactor(region)
	if err != nil {
		return Breakdown{}, err
	}
	qty, err := factors.NormalizeQuantity(factor, activity.Quantity, activity.Unit)
	if err != nil {
		return Breakdown{}, err
	}

	out := Breakdown{
		Category: category,
		Region:   region,
		Quantity: qty,
		Unit:     factor.CanonicalUnit,
	}
	if qty <= 0 {
		out.Quantity = 0
		return out, nil
	}

	out.BaseEmission = qty * factor.Base
	out.Scope1 = factor.Direct * qty
	out.Scope2 = factor.Electricity * qty * grid
	out.Scope3 = factor.SupplyChain * qty

	techFactor := 1 - (clampPct(techEfficiencyPct)/100)*MaxTechReduction
	out.TechAdjusted = out.BaseEmission * techFactor

	iotFactor := 1 - (clampPct(iotReductionPct)/100)*MaxIoTReduction
	out.FinalEmission = out.TechAdjusted * iotFactor

	out.EmissionReduction = math.Max(0, out.BaseEmission-out.FinalEmission)

	for _, v := range []float64{out.BaseEmission, out.Scope1, out.Scope2, out.Scope3, out.FinalEmission} {
		if !finite(v) {
			return Breakdown{}, fmt.Errorf("%w: %s x %g", ErrCalculationOverflow, category, qty)
		}
	}
	return out, nil
}

func clampPct(p float64) float64 {
	return math.Min(100, math.Max(0, p))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
