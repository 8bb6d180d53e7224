package factors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		input   string
		want    Category
		wantErr bool
	}{
		{"steel", CategorySteel, false},
		{"  Electricity ", CategoryElectricity, false},
		{"ROAD_FREIGHT", CategoryRoadFreight, false},
		{"unobtainium", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseCategory(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrUnknownFactor)
				var ufe *UnknownFactorError
				require.True(t, errors.As(err, &ufe))
				assert.Equal(t, "category", ufe.Table)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRegion(t *testing.T) {
	r, err := ParseRegion("")
	require.NoError(t, err)
	assert.Equal(t, RegionNational, r)

	r, err = ParseRegion("South")
	require.NoError(t, err)
	assert.Equal(t, RegionSouth, r)

	_, err = ParseRegion("atlantis")
	assert.ErrorIs(t, err, ErrUnknownFactor)
}

func TestParseBusinessType(t *testing.T) {
	b, err := ParseBusinessType("")
	require.NoError(t, err)
	assert.Equal(t, BusinessGeneral, b)

	_, err = ParseBusinessType("casino")
	assert.ErrorIs(t, err, ErrUnknownFactor)
}

func TestTablesCoverEveryCategory(t *testing.T) {
	for c := range emissionFactors {
		_, err := CategoryBaseline(c)
		assert.NoError(t, err, "baseline missing for %s", c)

		f, err := FactorFor(c)
		require.NoError(t, err)
		assert.Contains(t, unitFactors[f.Dimension], f.CanonicalUnit, "canonical unit of %s", c)
		assert.Greater(t, f.Base, 0.0)
	}
	assert.Len(t, categoryBaselines, len(emissionFactors))
}

func TestBaselineIsIndependentOfBaseFactor(t *testing.T) {
	f, err := FactorFor(CategorySteel)
	require.NoError(t, err)
	b, err := CategoryBaseline(CategorySteel)
	require.NoError(t, err)
	assert.Equal(t, 1.85, f.Base)
	assert.Equal(t, 2000.0, b)
}

func TestBusinessMultiplierRange(t *testing.T) {
	for bt := range businessMultipliers {
		m, err := BusinessMultiplier(bt)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, m, 1.0, bt)
		assert.LessOrEqual(t, m, 1.15, bt)
	}
	_, err := BusinessMultiplier("unknown")
	assert.ErrorIs(t, err, ErrUnknownFactor)
}

func TestGridFactor(t *testing.T) {
	g, err := GridFactor(RegionNational)
	require.NoError(t, err)
	assert.Equal(t, 1.0, g)

	_, err = GridFactor("mars")
	assert.ErrorIs(t, err, ErrUnknownFactor)
}

func TestNormalizeQuantity(t *testing.T) {
	steel, _ := FactorFor(CategorySteel)
	diesel, _ := FactorFor(CategoryDiesel)
	power, _ := FactorFor(CategoryElectricity)

	tests := []struct {
		name    string
		factor  EmissionFactor
		qty     float64
		unit    string
		want    float64
		wantErr bool
	}{
		{"empty unit is canonical", steel, 12, "", 12, false},
		{"tonnes to kg", steel, 1.5, "t", 1500, false},
		{"grams to kg", steel, 2500, "G", 2.5, false},
		{"kilolitres to litres", diesel, 2, "kl", 2000, false},
		{"MWh to kWh", power, 3, "MWh", 3000, false},
		{"volume unit on mass category", steel, 1, "l", 0, true},
		{"nonsense unit", power, 1, "joules", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeQuantity(tt.factor, tt.qty, tt.unit)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownFactor)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestSnapshot(t *testing.T) {
	s := Snapshot()
	require.Len(t, s.Emission, len(emissionFactors))
	for i := 1; i < len(s.Emission); i++ {
		assert.Less(t, string(s.Emission[i-1].Category), string(s.Emission[i].Category))
	}
	assert.Equal(t, 500.0, s.Baselines[CategoryElectricity])
	assert.Contains(t, s.Units[DimensionEnergy], "kwh")

	// Mutating the snapshot must not leak into the package tables.
	s.Baselines[CategoryElectricity] = 1
	b, _ := CategoryBaseline(CategoryElectricity)
	assert.Equal(t, 500.0, b)
}
