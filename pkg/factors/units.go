package factors

import "strings"

// Dimension is the physical dimension a category is measured in.
type Dimension string

const (
	DimensionMass    Dimension = "mass"
	DimensionVolume  Dimension = "volume"
	DimensionEnergy  Dimension = "energy"
	DimensionFreight Dimension = "freight"
)

// Conversion factors to the canonical unit of each dimension
// (kg, litre, kWh, tonne-km).
var unitFactors = map[Dimension]map[string]float64{
	DimensionMass: {
		"g":     0.001,
		"kg":    1,
		"t":     1000,
		"tonne": 1000,
		"lb":    0.453592,
	},
	DimensionVolume: {
		"ml":  0.001,
		"l":   1,
		"kl":  1000,
		"m3":  1000,
		"gal": 3.78541,
	},
	DimensionEnergy: {
		"wh":  0.001,
		"kwh": 1,
		"mwh": 1000,
	},
	DimensionFreight: {
		"kgkm": 0.001,
		"tkm":  1,
	},
}

// NormalizeQuantity converts quantity in unit to the canonical unit of the
// category's dimension. Unit matching is case-insensitive and an empty unit
// means the quantity is already canonical.
func NormalizeQuantity(f EmissionFactor, quantity float64, unit string) (float64, error) {
	u := strings.ToLower(strings.TrimSpace(unit))
	if u == "" {
		return quantity, nil
	}
	units, ok := unitFactors[f.Dimension]
	if !ok {
		return 0, unknown("dimension", string(f.Dimension))
	}
	factor, ok := units[u]
	if !ok {
		return 0, unknown("unit", unit)
	}
	return quantity * factor, nil
}
