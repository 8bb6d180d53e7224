package loans

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeEligibility(t *testing.T) {
	tests := []struct {
		name         string
		score        GreenScoreInput
		fin          Financials
		wantEligible bool
		wantMax      float64
		wantAmount   float64
		wantRate     float64
	}{
		{
			name:         "good score, no request",
			score:        GreenScoreInput{Score: 80, Grade: "A"},
			fin:          Financials{AnnualRevenue: 1_000_000, ExistingDebt: 100_000},
			wantEligible: true,
			wantMax:      320_000,
			wantAmount:   320_000,
			wantRate:     10,
		},
		{
			name:         "request below max",
			score:        GreenScoreInput{Score: 92, Grade: "A+"},
			fin:          Financials{AnnualRevenue: 1_000_000, RequestedAmount: 50_000},
			wantEligible: true,
			wantMax:      460_000,
			wantAmount:   50_000,
			wantRate:     9.5,
		},
		{
			name:         "request above max",
			score:        GreenScoreInput{Score: 50, Grade: "C+"},
			fin:          Financials{AnnualRevenue: 400_000, RequestedAmount: 500_000},
			wantEligible: true,
			wantMax:      100_000,
			wantAmount:   100_000,
			wantRate:     11.5,
		},
		{
			name:         "score below threshold",
			score:        GreenScoreInput{Score: 39.9, Grade: "C"},
			fin:          Financials{AnnualRevenue: 1_000_000},
			wantEligible: false,
			wantMax:      199_500,
			wantRate:     12,
		},
		{
			name:         "debt exceeds capacity",
			score:        GreenScoreInput{Score: 75, Grade: "B+"},
			fin:          Financials{AnnualRevenue: 100_000, ExistingDebt: 80_000},
			wantEligible: false,
			wantMax:      0,
			wantRate:     10.5,
		},
		{
			name:         "zero score user",
			score:        GreenScoreInput{Score: 0, Grade: "C"},
			fin:          Financials{},
			wantEligible: false,
			wantRate:     12,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComposeEligibility(tt.score, tt.fin)
			require.NoError(t, err)
			assert.Equal(t, tt.wantEligible, got.Eligible)
			assert.InDelta(t, tt.wantMax, got.MaxAmount, 1e-6)
			assert.InDelta(t, tt.wantAmount, got.EligibleAmount, 1e-6)
			assert.InDelta(t, tt.wantRate, got.InterestRate, 1e-9)
			assert.GreaterOrEqual(t, got.Capacity, 0.0)
		})
	}
}

func TestComposeEligibility_InvalidFinancials(t *testing.T) {
	score := GreenScoreInput{Score: 70, Grade: "B+"}
	for _, fin := range []Financials{
		{AnnualRevenue: -1},
		{ExistingDebt: -5},
		{RequestedAmount: math.NaN()},
		{AnnualRevenue: math.Inf(1)},
	} {
		_, err := ComposeEligibility(score, fin)
		assert.ErrorIs(t, err, ErrInvalidFinancials, "%+v", fin)
	}

	_, err := ComposeEligibility(GreenScoreInput{Score: math.NaN()}, Financials{})
	assert.ErrorIs(t, err, ErrInvalidFinancials)
}
