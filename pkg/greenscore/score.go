// Package greenscore computes the Green Score: five independently capped
// sub-scores summed and clamped to [0, 100], a letter grade, and advisory
// recommendations for the sub-scores below their cap.
package greenscore

import (
	"math"
	"strings"
)

// Sub-score names as stored in the factor breakdown.
const (
	FactorGSTNCompliance          = "gstn_compliance"
	FactorInvoiceQuality          = "invoice_quality"
	FactorCarbonReduction         = "carbon_reduction"
	FactorSustainabilityPractices = "sustainability_practices"
	FactorCertificationLevel      = "certification_level"
)

// Sub-score caps.
const (
	MaxGSTNCompliance          = 20.0
	MaxInvoiceQuality          = 25.0
	MaxCarbonReduction         = 30.0
	MaxSustainabilityPractices = 15.0
	MaxCertificationLevel      = 10.0
	MaxScore                   = 100.0
)

// GSTINLength is the length of a well-formed GST identification number.
const GSTINLength = 15

const (
	// trendWindow is how many emission records form each side of the
	// carbon reduction comparison.
	trendWindow = 10

	// invoiceVolumeTarget is the submission count at which the volume part
	// of invoice_quality saturates.
	invoiceVolumeTarget = 50
)

// Inputs are the data points a Green Score is computed from.
type Inputs struct {
	GSTIN            string
	Submissions      int64
	Processed        int64
	Emissions        []float64 // final emissions, oldest first
	BankVerified     bool
	IdentityVerified bool
	CreditRecords    int64
	CompletionPct    float64
	CertsEarned      int
	CertsInProgress  int
}

// Factors is the sub-score breakdown of one Green Score.
type Factors struct {
	GSTNCompliance          float64 `json:"gstn_compliance"`
	InvoiceQuality          float64 `json:"invoice_quality"`
	CarbonReduction         float64 `json:"carbon_reduction"`
	SustainabilityPractices float64 `json:"sustainability_practices"`
	CertificationLevel      float64 `json:"certification_level"`
}

// Map returns the factors keyed by sub-score name.
func (f Factors) Map() map[string]float64 {
	return map[string]float64{
		FactorGSTNCompliance:          f.GSTNCompliance,
		FactorInvoiceQuality:          f.InvoiceQuality,
		FactorCarbonReduction:         f.CarbonReduction,
		FactorSustainabilityPractices: f.SustainabilityPractices,
		FactorCertificationLevel:      f.CertificationLevel,
	}
}

// Total sums the sub-scores and clamps the result to [0, 100].
func (f Factors) Total() float64 {
	sum := f.GSTNCompliance + f.InvoiceQuality + f.CarbonReduction +
		f.SustainabilityPractices + f.CertificationLevel
	return clamp(sum, 0, MaxScore)
}

// Compute derives every sub-score from in.
func Compute(in Inputs) Factors {
	carbon, _ := CarbonReduction(in.Emissions)
	return Factors{
		GSTNCompliance:          GSTNCompliance(in.GSTIN),
		InvoiceQuality:          InvoiceQuality(in.Processed, in.Submissions),
		CarbonReduction:         carbon,
		SustainabilityPractices: SustainabilityPractices(in.BankVerified, in.IdentityVerified, in.CreditRecords > 0, in.CompletionPct),
		CertificationLevel:      CertificationLevel(in.CertsEarned, in.CertsInProgress),
	}
}

// GSTNCompliance scores 20 for a 15-character GSTIN, 10 for any other
// non-blank value and 0 when absent.
func GSTNCompliance(gstin string) float64 {
	gstin = strings.TrimSpace(gstin)
	switch {
	case gstin == "":
		return 0
	case len(gstin) == GSTINLength:
		return MaxGSTNCompliance
	default:
		return MaxGSTNCompliance / 2
	}
}

// InvoiceQuality rewards the processed share of submissions (up to 15) and
// submission volume (up to 10, saturating at 50 submissions).
func InvoiceQuality(processed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	processed = max(0, min(processed, total))
	accuracy := float64(processed) / float64(total) * 15
	volume := math.Min(float64(total)/invoiceVolumeTarget, 1) * 10
	return clamp(accuracy+volume, 0, MaxInvoiceQuality)
}

// CarbonReduction compares the mean of the most recent ten emission records
// with the mean of the oldest ten. It returns the sub-score and the
// reduction rate. No records score 0; any tracked history scores at least 8.
func CarbonReduction(emissions []float64) (float64, float64) {
	if len(emissions) == 0 {
		return 0, 0
	}
	n := min(trendWindow, len(emissions))
	older := mean(emissions[:n])
	recent := mean(emissions[len(emissions)-n:])

	var rate float64
	if older > 0 {
		rate = (older - recent) / older
	}
	switch {
	case rate > 0.30:
		return MaxCarbonReduction, rate
	case rate > 0.15:
		return 22, rate
	case rate > 0:
		return 15, rate
	default:
		return 8, rate
	}
}

// SustainabilityPractices adds 3 for verified banking, 3 for verified
// identity, 5 for holding any credit and up to 4 for profile completion.
func SustainabilityPractices(bankVerified, identityVerified, hasCredits bool, completionPct float64) float64 {
	var score float64
	if bankVerified {
		score += 3
	}
	if identityVerified {
		score += 3
	}
	if hasCredits {
		score += 5
	}
	if !math.IsNaN(completionPct) {
		score += clamp(completionPct, 0, 100) / 100 * 4
	}
	return clamp(score, 0, MaxSustainabilityPractices)
}

// CertificationLevel scores 4 per earned and 2 per in-progress
// certification, capped at 10.
func CertificationLevel(earned, inProgress int) float64 {
	score := float64(max(0, earned))*4 + float64(max(0, inProgress))*2
	return clamp(score, 0, MaxCertificationLevel)
}

// Grade maps a total score to its letter grade.
func Grade(score float64) string {
	switch {
	case score >= 90:
		return "A+"
	case score >= 80:
		return "A"
	case score >= 70:
		return "B+"
	case score >= 60:
		return "B"
	case score >= 50:
		return "C+"
	default:
		return "C"
	}
}

// Recommendation is advisory output for one sub-score below its cap.
type Recommendation struct {
	Factor        string  `json:"factor"`
	Current       float64 `json:"current"`
	Max           float64 `json:"max"`
	PotentialGain float64 `json:"potential_gain"`
	Action        string  `json:"action"`
}

var recommendationOrder = []struct {
	factor string
	max    float64
	action string
}{
	{FactorGSTNCompliance, MaxGSTNCompliance, "Add a valid 15-character GSTIN to your business profile."},
	{FactorInvoiceQuality, MaxInvoiceQuality, "Submit more activity data and fix failed submissions."},
	{FactorCarbonReduction, MaxCarbonReduction, "Reduce emissions relative to your earliest tracked activities."},
	{FactorSustainabilityPractices, MaxSustainabilityPractices, "Verify your identity and bank account, complete your profile and earn credits."},
	{FactorCertificationLevel, MaxCertificationLevel, "Pursue sustainability certifications such as ISO 14001."},
}

// Recommendations returns one entry per sub-score below its cap, in a fixed
// order.
func Recommendations(f Factors) []Recommendation {
	values := f.Map()
	recs := make([]Recommendation, 0, len(recommendationOrder))
	for _, r := range recommendationOrder {
		cur := values[r.factor]
		if cur >= r.max {
			continue
		}
		recs = append(recs, Recommendation{
			Factor:        r.factor,
			Current:       cur,
			Max:           r.max,
			PotentialGain: r.max - cur,
			Action:        r.action,
		})
	}
	return recs
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
