package reco

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/ignite/vintner-crm/internal/domain"
)

// scoringContext carries the tenant-level normalizers shared by every
// client of a run.
type scoringContext struct {
	maxPrice float64
	maxRFM   int
}

func buildScoringContext(clients []domain.Client, products []domain.Product) scoringContext {
	var ctx scoringContext
	for i := range products {
		if p := products[i].Price(); p > ctx.maxPrice {
			ctx.maxPrice = p
		}
	}
	for i := range clients {
		if clients[i].RFMScore > ctx.maxRFM {
			ctx.maxRFM = clients[i].RFMScore
		}
	}
	return ctx
}

// scoreProduct computes the weighted composite score for one candidate.
// Seasonality is added after the weighted sum; the result is clamped to
// [0,1].
func scoreProduct(p *domain.Product, st *clientState, w ScoringWeights, sc scoringContext, preferred map[string]bool, now time.Time) (float64, domain.ScoreReasons) {
	reasons := domain.ScoreReasons{
		Popularity: p.GlobalPopularityScore,
		PriceFit:   priceFit(p, st.client.AverageOrderValue, sc.maxPrice),
		RFMNorm:    rfmNorm(st.client.RFMScore, sc.maxRFM),
	}
	if p.FamilyCRM != "" && preferred[p.FamilyCRM] {
		reasons.FamilyFit = 1
	}
	reasons.Seasonality = seasonalBonus(p.SeasonTags, now)

	score := w.Popularity*reasons.Popularity +
		w.PriceFit*reasons.PriceFit +
		w.FamilyFit*reasons.FamilyFit +
		w.RFMNorm*reasons.RFMNorm +
		reasons.Seasonality
	return clamp01(score), reasons
}

// priceFit measures how close a bottle sits to the client's average
// order value, normalized by the catalogue's price ceiling. Unknown
// prices land in the middle.
func priceFit(p *domain.Product, aov, maxPrice float64) float64 {
	if p.PriceTTC == nil || maxPrice <= 0 {
		return 0.5
	}
	return 1 - math.Min(math.Abs(*p.PriceTTC-aov)/maxPrice, 1)
}

func rfmNorm(rfm, maxRFM int) float64 {
	if maxRFM <= 0 {
		return 0
	}
	return float64(rfm) / float64(maxRFM)
}

// seasonalBonus grants +0.1 when a tagged bottle matches the season:
// winter tags in November through February, summer tags in May through
// August.
func seasonalBonus(tags string, now time.Time) float64 {
	if tags == "" {
		return 0
	}
	lower := strings.ToLower(tags)
	month := now.Month()
	winter := month == time.November || month == time.December || month == time.January || month == time.February
	summer := month >= time.May && month <= time.August
	if winter && strings.Contains(lower, "hiver") {
		return 0.1
	}
	if summer && (strings.Contains(lower, "été") || strings.Contains(lower, "ete")) {
		return 0.1
	}
	return 0
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// scoredCandidate pairs a candidate with its score for ranking.
type scoredCandidate struct {
	product *domain.Product
	score   float64
	reasons domain.ScoreReasons
}

// rankCandidates orders by score descending with the product key as a
// deterministic tie-break, then truncates to the slate size.
func rankCandidates(cands []scoredCandidate, topN int) []scoredCandidate {
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score > cands[j].score
		}
		return cands[i].product.ProductKey < cands[j].product.ProductKey
	})
	if len(cands) > topN {
		cands = cands[:topN]
	}
	return cands
}

// explainShort builds the one-line human rationale for a slot.
func explainShort(scen domain.Scenario, p *domain.Product) string {
	name := p.Name
	if name == "" {
		name = p.ProductKey
	}
	switch scen {
	case domain.ScenarioRebuy:
		return fmt.Sprintf("time to restock %s", name)
	case domain.ScenarioCrossSell:
		return fmt.Sprintf("something new to try: %s", name)
	case domain.ScenarioUpsell:
		return fmt.Sprintf("a step up from your usual: %s", name)
	case domain.ScenarioWinback:
		return fmt.Sprintf("welcome back with %s", name)
	default:
		return fmt.Sprintf("worth discovering: %s", name)
	}
}
