// Package factors holds the static reference data of the scoring pipeline:
// emission factors per activity category, regional grid factors, per-category
// industry baselines and business-type quality multipliers.
//
// Every table is closed. Lookups of unrecognised keys return an
// *UnknownFactorError instead of a zero value, since a silent zero would
// understate emissions and overstate credits.
package factors

import (
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// Category is an activity category (fuel, electricity, purchased good,
// logistics mode or waste stream).
type Category string

const (
	CategoryDiesel      Category = "diesel"
	CategoryPetrol      Category = "petrol"
	CategoryLPG         Category = "lpg"
	CategoryCNG         Category = "cng"
	CategoryCoal        Category = "coal"
	CategoryElectricity Category = "electricity"
	CategorySteel       Category = "steel"
	CategoryCement      Category = "cement"
	CategoryPlastic     Category = "plastic"
	CategoryPaper       Category = "paper"
	CategoryTextiles    Category = "textiles"
	CategoryRoadFreight Category = "road_freight"
	CategoryAirFreight  Category = "air_freight"
	CategoryWaste       Category = "waste"
)

// Group classifies categories for reporting.
type Group string

const (
	GroupFuel           Group = "fuel"
	GroupElectricity    Group = "electricity"
	GroupPurchasedGoods Group = "purchased_goods"
	GroupLogistics      Group = "logistics"
	GroupWaste          Group = "waste"
)

// Region selects a regional electricity grid.
type Region string

const (
	RegionNational  Region = "national"
	RegionNorth     Region = "north"
	RegionSouth     Region = "south"
	RegionEast      Region = "east"
	RegionWest      Region = "west"
	RegionNortheast Region = "northeast"
)

// BusinessType is the declared type of a business profile.
type BusinessType string

const (
	BusinessGeneral       BusinessType = "general"
	BusinessServices      BusinessType = "services"
	BusinessRetail        BusinessType = "retail"
	BusinessManufacturing BusinessType = "manufacturing"
	BusinessAgriculture   BusinessType = "agriculture"
	BusinessLogistics     BusinessType = "logistics"
)

// EmissionFactor describes how one canonical unit of a category converts
// into kg CO2e.
type EmissionFactor struct {
	Category      Category  `json:"category"`
	Group         Group     `json:"group"`
	Dimension     Dimension `json:"dimension"`
	CanonicalUnit string    `json:"canonical_unit"`

	// Base is the activity-specific emission factor used for the headline
	// figure.
	Base float64 `json:"base"`

	// Direct, Electricity and SupplyChain drive the scope 1/2/3 split.
	// Electricity is further multiplied by the regional grid factor.
	Direct      float64 `json:"direct"`
	Electricity float64 `json:"electricity"`
	SupplyChain float64 `json:"supply_chain"`
}

// kg CO2e per canonical unit.
var emissionFactors = map[Category]EmissionFactor{
	CategoryDiesel:      {CategoryDiesel, GroupFuel, DimensionVolume, "l", 2.68, 2.68, 0, 0.62},
	CategoryPetrol:      {CategoryPetrol, GroupFuel, DimensionVolume, "l", 2.31, 2.31, 0, 0.55},
	CategoryLPG:         {CategoryLPG, GroupFuel, DimensionVolume, "l", 1.51, 1.51, 0, 0.32},
	CategoryCNG:         {CategoryCNG, GroupFuel, DimensionMass, "kg", 2.75, 2.75, 0, 0.41},
	CategoryCoal:        {CategoryCoal, GroupFuel, DimensionMass, "kg", 2.42, 2.42, 0, 0.18},
	CategoryElectricity: {CategoryElectricity, GroupElectricity, DimensionEnergy, "kwh", 0.82, 0, 0.82, 0.05},
	CategorySteel:       {CategorySteel, GroupPurchasedGoods, DimensionMass, "kg", 1.85, 0.15, 0.40, 1.30},
	CategoryCement:      {CategoryCement, GroupPurchasedGoods, DimensionMass, "kg", 0.93, 0.52, 0.08, 0.33},
	CategoryPlastic:     {CategoryPlastic, GroupPurchasedGoods, DimensionMass, "kg", 3.10, 0.05, 0.35, 2.70},
	CategoryPaper:       {CategoryPaper, GroupPurchasedGoods, DimensionMass, "kg", 1.09, 0.10, 0.25, 0.74},
	CategoryTextiles:    {CategoryTextiles, GroupPurchasedGoods, DimensionMass, "kg", 5.50, 0.20, 1.10, 4.20},
	CategoryRoadFreight: {CategoryRoadFreight, GroupLogistics, DimensionFreight, "tkm", 0.105, 0.09, 0, 0.015},
	CategoryAirFreight:  {CategoryAirFreight, GroupLogistics, DimensionFreight, "tkm", 1.13, 0.95, 0, 0.18},
	CategoryWaste:       {CategoryWaste, GroupWaste, DimensionMass, "kg", 0.58, 0.58, 0, 0},
}

// Industry-average kg CO2e per submission, used by credit issuance to measure
// reduction against peers. Deliberately separate from emissionFactors.
var categoryBaselines = map[Category]float64{
	CategoryDiesel:      650,
	CategoryPetrol:      550,
	CategoryLPG:         300,
	CategoryCNG:         400,
	CategoryCoal:        1200,
	CategoryElectricity: 500,
	CategorySteel:       2000,
	CategoryCement:      1500,
	CategoryPlastic:     800,
	CategoryPaper:       400,
	CategoryTextiles:    900,
	CategoryRoadFreight: 350,
	CategoryAirFreight:  1500,
	CategoryWaste:       250,
}

// Relative grid carbon intensity, national average = 1.0.
var gridFactors = map[Region]float64{
	RegionNational:  1.00,
	RegionNorth:     1.05,
	RegionSouth:     0.92,
	RegionEast:      1.12,
	RegionWest:      0.98,
	RegionNortheast: 0.75,
}

var businessMultipliers = map[BusinessType]float64{
	BusinessGeneral:       1.00,
	BusinessServices:      1.00,
	BusinessRetail:        1.05,
	BusinessManufacturing: 1.15,
	BusinessAgriculture:   1.10,
	BusinessLogistics:     1.08,
}

var (
	knownCategories = mapset.NewSet[Category]()
	knownRegions    = mapset.NewSet[Region]()
	knownBusiness   = mapset.NewSet[BusinessType]()
)

func init() {
	for c := range emissionFactors {
		knownCategories.Add(c)
	}
	for r := range gridFactors {
		knownRegions.Add(r)
	}
	for b := range businessMultipliers {
		knownBusiness.Add(b)
	}
}

// ParseCategory normalises s and checks it against the category table.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !knownCategories.Contains(c) {
		return "", unknown("category", s)
	}
	return c, nil
}

// ParseRegion normalises s and checks it against the grid table. An empty
// string selects the national grid.
func ParseRegion(s string) (Region, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return RegionNational, nil
	}
	r := Region(s)
	if !knownRegions.Contains(r) {
		return "", unknown("region", s)
	}
	return r, nil
}

// ParseBusinessType normalises s. An empty string selects BusinessGeneral.
func ParseBusinessType(s string) (BusinessType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return BusinessGeneral, nil
	}
	b := BusinessType(s)
	if !knownBusiness.Contains(b) {
		return "", unknown("business type", s)
	}
	return b, nil
}

// FactorFor returns the emission factor row for a category.
func FactorFor(c Category) (EmissionFactor, error) {
	f, ok := emissionFactors[c]
	if !ok {
		return EmissionFactor{}, unknown("category", string(c))
	}
	return f, nil
}

// GridFactor returns the regional grid multiplier.
func GridFactor(r Region) (float64, error) {
	g, ok := gridFactors[r]
	if !ok {
		return 0, unknown("region", string(r))
	}
	return g, nil
}

// CategoryBaseline returns the industry-average kg CO2e for one submission
// in the category.
func CategoryBaseline(c Category) (float64, error) {
	b, ok := categoryBaselines[c]
	if !ok {
		return 0, unknown("category", string(c))
	}
	return b, nil
}

// BusinessMultiplier returns the credit quality multiplier (1.0 to 1.15) for a
// business type.
func BusinessMultiplier(b BusinessType) (float64, error) {
	m, ok := businessMultipliers[b]
	if !ok {
		return 0, unknown("business type", string(b))
	}
	return m, nil
}

// Table is the serialisable view of all factor tables.
type Table struct {
	Emission            []EmissionFactor         `json:"emission_factors"`
	Baselines           map[Category]float64     `json:"category_baselines"`
	GridFactors         map[Region]float64       `json:"grid_factors"`
	BusinessMultipliers map[BusinessType]float64 `json:"business_multipliers"`
	Units               map[Dimension][]string   `json:"units"`
}

// Snapshot returns a copy of every table, emission rows sorted by category.
func Snapshot() Table {
	t := Table{
		Baselines:           make(map[Category]float64, len(categoryBaselines)),
		GridFactors:         make(map[Region]float64, len(gridFactors)),
		BusinessMultipliers: make(map[BusinessType]float64, len(businessMultipliers)),
		Units:               make(map[Dimension][]string, len(unitFactors)),
	}
	for _, f := range emissionFactors {
		t.Emission = append(t.Emission, f)
	}
	sort.Slice(t.Emission, func(i, j int) bool { return t.Emission[i].Category < t.Emission[j].Category })
	for k, v := range categoryBaselines {
		t.Baselines[k] = v
	}
	for k, v := range gridFactors {
		t.GridFactors[k] = v
	}
	for k, v := range businessMultipliers {
		t.BusinessMultipliers[k] = v
	}
	for d, units := range unitFactors {
		for u := range units {
			t.Units[d] = append(t.Units[d], u)
		}
		sort.Strings(t.Units[d])
	}
	return t
}
