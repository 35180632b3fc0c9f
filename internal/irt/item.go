package irt

// Default calibration values applied when an item bank omits them.
const (
	DefaultGuessing       = 0.25
	DefaultUpperAsymptote = 1.0
)

// ItemParameters is the immutable calibration record for one item.
type ItemParameters struct {
	ID             string  `json:"id" yaml:"id" validate:"required"`
	Difficulty     float64 `json:"b" yaml:"b" validate:"gte=-6,lte=6"`
	Discrimination float64 `json:"a" yaml:"a" validate:"gt=0,lte=4"`
	Guessing       float64 `json:"c" yaml:"c" validate:"gte=0,lte=0.5"`
	UpperAsymptote float64 `json:"d" yaml:"d" validate:"gt=0,lte=1"`
}

// NewItem returns calibration with the default guessing and upper asymptote.
func NewItem(id string, b, a float64) ItemParameters {
	return ItemParameters{
		ID:             id,
		Difficulty:     b,
		Discrimination: a,
		Guessing:       DefaultGuessing,
		UpperAsymptote: DefaultUpperAsymptote,
	}
}

// Probability is the 3PL probability of a correct response at theta.
func (p ItemParameters) Probability(theta float64) float64 {
	return Probability3PL(theta, p.Difficulty, p.Discrimination, p.Guessing)
}

// Information is the 3PL Fisher information at theta.
func (p ItemParameters) Information(theta float64) float64 {
	return Information3PL(theta, p.Difficulty, p.Discrimination, p.Guessing)
}

// ItemLookup resolves calibration records by item id.
type ItemLookup interface {
	Lookup(id string) (ItemParameters, bool)
}

// ItemMap is the simplest ItemLookup.
type ItemMap map[string]ItemParameters

// Lookup implements ItemLookup.
func (m ItemMap) Lookup(id string) (ItemParameters, bool) {
	p, ok := m[id]
	return p, ok
}

// NewItemMap indexes items by id. Later duplicates win.
func NewItemMap(items ...ItemParameters) ItemMap {
	m := make(ItemMap, len(items))
	for _, it := range items {
		m[it.ID] = it
	}
	return m
}

// PredictPerformance is the expected probability of a correct response.
func PredictPerformance(theta float64, item ItemParameters) float64 {
	return item.Probability(theta)
}

// TestInformation sums item information at theta.
func TestInformation(theta float64, items []ItemParameters) float64 {
	var total float64
	for _, it := range items {
		total += it.Information(theta)
	}
	return total
}
