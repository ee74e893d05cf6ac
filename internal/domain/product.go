package domain

// Product is a catalogue entry. AromaFruit..AromaTannin hold the seven
// sensory axes on a 0..5 scale; GlobalPopularityScore is the tenant-relative
// sales share in [0,1], recomputed on demand.
type Product struct {
	ID                    int64
	TenantID              int64
	ProductKey            string
	Name                  string
	FamilyCRM             string
	SubFamily             string
	Cepage                string
	SucrositeNiveau       string
	PriceTTC              *float64
	Margin                *float64
	PremiumTier           string
	PriceBand             string
	AromaFruit            float64
	AromaFloral           float64
	AromaSpice            float64
	AromaMineral          float64
	AromaAcidity          float64
	AromaBody             float64
	AromaTannin           float64
	GlobalPopularityScore float64
	SeasonTags            string
	IsActive              bool
	IsArchived            bool
}

// AromaAxes returns the axis values keyed by canonical axis name.
func (p *Product) AromaAxes() map[string]float64 {
	return map[string]float64{
		"fruit":   p.AromaFruit,
		"floral":  p.AromaFloral,
		"spice":   p.AromaSpice,
		"mineral": p.AromaMineral,
		"acidity": p.AromaAcidity,
		"body":    p.AromaBody,
		"tannin":  p.AromaTannin,
	}
}

// Price returns PriceTTC or 0 when unset.
func (p *Product) Price() float64 {
	if p.PriceTTC == nil {
		return 0
	}
	return *p.PriceTTC
}

// Recommendable reports whether the product may appear in suggestions.
func (p *Product) Recommendable() bool {
	return p.IsActive && !p.IsArchived
}
