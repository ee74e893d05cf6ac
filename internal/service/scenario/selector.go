// Package scenario decides the marketing intent for a client: one of
// winback, rebuy, cross_sell, upsell or nurture. The default policy is
// a feature-weighted argmax; when no weight matrix is configured the
// selector falls back to the equivalent rule chain.
package scenario

import (
	"github.com/ignite/vintner-crm/internal/domain"
)

// Feature names of the weight matrix.
const (
	FeatureRecency   = "recency"
	FeatureMonetary  = "monetary"
	FeatureCoverage  = "coverage"
	FeatureFamilies  = "families"
	FeatureAromaConf = "aroma_conf"
)

// Weights maps scenario → feature → weight.
type Weights map[domain.Scenario]map[string]float64

// DefaultWeights is the stock policy matrix.
func DefaultWeights() Weights {
	return Weights{
		domain.ScenarioWinback:   {FeatureRecency: 3, FeatureMonetary: 2, FeatureCoverage: 0, FeatureFamilies: 0, FeatureAromaConf: 1},
		domain.ScenarioRebuy:     {FeatureRecency: -1, FeatureMonetary: 1, FeatureCoverage: 1, FeatureFamilies: 0, FeatureAromaConf: 1},
		domain.ScenarioCrossSell: {FeatureRecency: -1, FeatureMonetary: 1, FeatureCoverage: 3, FeatureFamilies: 2, FeatureAromaConf: 1},
		domain.ScenarioUpsell:    {FeatureRecency: -1, FeatureMonetary: 2, FeatureCoverage: 1, FeatureFamilies: 0, FeatureAromaConf: 2},
		domain.ScenarioNurture:   {FeatureRecency: 1, FeatureMonetary: 1, FeatureCoverage: 1, FeatureFamilies: 0, FeatureAromaConf: 1},
	}
}

// Features are the client signals the policy scores. Nullable client
// fields default to zero.
type Features struct {
	Recency           float64 // days since last purchase
	Monetary          float64 // total spent
	Coverage          float64 // summed share of the top-2 preferred families
	FamiliesPurchased int     // distinct families ever purchased
	AromaConfidence   float64

	// Rule-path inputs.
	RFMScore         int
	HasPurchases     bool
	DaysSinceLastBuy float64
	BudgetBand       string
}

// FromClient extracts the weighted-policy features from a client row.
// familiesPurchased comes from the caller's purchase data.
func FromClient(c *domain.Client, familiesPurchased int) Features {
	f := Features{
		FamiliesPurchased: familiesPurchased,
		RFMScore:          c.RFMScore,
		BudgetBand:        c.BudgetBand,
		HasPurchases:      c.LastPurchaseDate != nil,
	}
	if c.Recency != nil {
		f.Recency = *c.Recency
		f.DaysSinceLastBuy = *c.Recency
	}
	if c.Monetary != nil {
		f.Monetary = *c.Monetary
	}
	if prefs, err := domain.DecodeFamilyPreferences(c.PreferredFamilies); err == nil {
		f.Coverage = prefs.Coverage()
	}
	if profile, err := domain.DecodeAromaProfile(c.AromaProfile); err == nil {
		f.AromaConfidence = profile.Confidence
	}
	return f
}

// Selector chooses a scenario per client.
type Selector struct {
	weights Weights
}

// NewSelector creates a selector. A nil weight matrix selects the
// rule-based fallback path.
func NewSelector(weights Weights) *Selector {
	return &Selector{weights: weights}
}

// Decide returns the chosen scenario and the per-scenario scores
// (nil when the rule path ran). Ties resolve in canonical scenario
// order, keeping the decision deterministic.
func (s *Selector) Decide(f Features) (domain.Scenario, map[domain.Scenario]float64) {
	if s.weights == nil {
		return s.ruleBased(f), nil
	}

	scores := make(map[domain.Scenario]float64, len(domain.Scenarios))
	var best domain.Scenario
	bestScore := 0.0
	for _, scen := range domain.Scenarios {
		w := s.weights[scen]
		score := w[FeatureRecency]*f.Recency +
			w[FeatureMonetary]*f.Monetary +
			w[FeatureCoverage]*f.Coverage +
			w[FeatureFamilies]*(1.0/float64(1+f.FamiliesPurchased)) +
			w[FeatureAromaConf]*f.AromaConfidence
		scores[scen] = score
		if best == "" || score > bestScore {
			best, bestScore = scen, score
		}
	}
	return best, scores
}

// ruleBased is the weight-free fallback chain; first matching rule wins.
func (s *Selector) ruleBased(f Features) domain.Scenario {
	switch {
	case f.RFMScore == 0:
		return domain.ScenarioNurture
	case f.HasPurchases && f.DaysSinceLastBuy > 180:
		return domain.ScenarioWinback
	case f.HasPurchases && f.DaysSinceLastBuy > 30:
		return domain.ScenarioRebuy
	case f.BudgetBand == domain.BudgetLow:
		return domain.ScenarioUpsell
	default:
		return domain.ScenarioCrossSell
	}
}
