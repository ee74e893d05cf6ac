package reco

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/ignite/vintner-crm/internal/domain"
	"github.com/ignite/vintner-crm/internal/service/scenario"
)

// codeVersion tags every run trace so past outputs stay attributable to
// the engine revision that produced them.
const codeVersion = "v2"

// ScoringWeights are the composite-score term weights for one scenario.
// They sum to 1; seasonality is an additive bonus on top.
type ScoringWeights struct {
	Popularity float64 `json:"popularity"`
	PriceFit   float64 `json:"price_fit"`
	FamilyFit  float64 `json:"family_fit"`
	RFMNorm    float64 `json:"rfm_norm"`
}

// Config holds the run parameters that shape recommendation output.
// Timeout bounds one run end to end; expiry cancels it through the
// normal failure path. It is operational, not output-shaping, so it
// stays out of the config hash.
type Config struct {
	TopN              int                                `json:"top_n"`
	SilenceWindowDays int                                `json:"silence_window_days"`
	Workers           int                                `json:"workers"`
	Timeout           time.Duration                      `json:"-"`
	ScenarioWeights   scenario.Weights                   `json:"scenario_weights"`
	Scoring           map[domain.Scenario]ScoringWeights `json:"scoring"`
}

// DefaultScoring is the stock per-scenario weight table. Rebuy leans on
// the family signal, upsell on price fit.
func DefaultScoring() map[domain.Scenario]ScoringWeights {
	return map[domain.Scenario]ScoringWeights{
		domain.ScenarioWinback:   {Popularity: 0.30, PriceFit: 0.30, FamilyFit: 0.20, RFMNorm: 0.20},
		domain.ScenarioRebuy:     {Popularity: 0.30, PriceFit: 0.20, FamilyFit: 0.40, RFMNorm: 0.10},
		domain.ScenarioCrossSell: {Popularity: 0.30, PriceFit: 0.30, FamilyFit: 0.20, RFMNorm: 0.20},
		domain.ScenarioUpsell:    {Popularity: 0.20, PriceFit: 0.40, FamilyFit: 0.30, RFMNorm: 0.10},
		domain.ScenarioNurture:   {Popularity: 0.30, PriceFit: 0.30, FamilyFit: 0.20, RFMNorm: 0.20},
	}
}

func (c *Config) applyDefaults() {
	if c.TopN == 0 {
		c.TopN = 5
	}
	if c.SilenceWindowDays == 0 {
		c.SilenceWindowDays = 7
	}
	if c.Workers == 0 {
		c.Workers = 4
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Minute
	}
	if c.ScenarioWeights == nil {
		c.ScenarioWeights = scenario.DefaultWeights()
	}
	if c.Scoring == nil {
		c.Scoring = DefaultScoring()
	}
}

// Hash fingerprints the effective configuration. Marshaling sorts map
// keys, so equal configs always hash equal.
func (c Config) Hash() string {
	b, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
