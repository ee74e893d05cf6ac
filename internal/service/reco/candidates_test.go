package reco

import (
	"testing"
	"time"

	"github.com/ignite/vintner-crm/internal/domain"
)

func productsByKey(products []domain.Product) map[string]*domain.Product {
	m := make(map[string]*domain.Product, len(products))
	for i := range products {
		m[products[i].ProductKey] = &products[i]
	}
	return m
}

func keys(cands []*domain.Product) []string {
	out := make([]string, len(cands))
	for i, p := range cands {
		out[i] = p.ProductKey
	}
	return out
}

func containsKey(cands []*domain.Product, key string) bool {
	for _, p := range cands {
		if p.ProductKey == key {
			return true
		}
	}
	return false
}

func TestCandidatesRebuyExcludesRecentPurchases(t *testing.T) {
	products := []domain.Product{
		{ProductKey: "old", FamilyCRM: "Rouge", PriceTTC: f(20), IsActive: true},
		{ProductKey: "fresh", FamilyCRM: "Rouge", PriceTTC: f(22), IsActive: true},
		{ProductKey: "never", FamilyCRM: "Blanc", PriceTTC: f(30), IsActive: true},
	}
	byKey := productsByKey(products)
	sales := []domain.Sale{
		{DocumentID: "D1", ProductKey: "old", ClientCode: "C1", Quantity: f(3), SaleDate: date("2026-03-01")},
		{DocumentID: "D2", ProductKey: "fresh", ClientCode: "C1", Quantity: f(1), SaleDate: date("2026-05-25")},
	}
	st := buildClientState(&domain.Client{ClientCode: "C1"}, sales, nil, byKey, testNow)

	cands := candidatesFor(domain.ScenarioRebuy, st, products)
	if !containsKey(cands, "old") || containsKey(cands, "fresh") || containsKey(cands, "never") {
		t.Errorf("rebuy pool = %v, want [old]", keys(cands))
	}
}

func TestCandidatesUpsellRequiresFamiliarFamilyAndHigherPrice(t *testing.T) {
	products := []domain.Product{
		{ProductKey: "owned", FamilyCRM: "Rouge", PriceTTC: f(20), IsActive: true},
		{ProductKey: "pricier-rouge", FamilyCRM: "Rouge", PriceTTC: f(45), IsActive: true},
		{ProductKey: "cheaper-rouge", FamilyCRM: "Rouge", PriceTTC: f(12), IsActive: true},
		{ProductKey: "pricier-blanc", FamilyCRM: "Blanc", PriceTTC: f(60), IsActive: true},
	}
	byKey := productsByKey(products)
	sales := []domain.Sale{
		{DocumentID: "D1", ProductKey: "owned", ClientCode: "C1", Quantity: f(1), SaleDate: date("2026-04-01")},
	}
	st := buildClientState(&domain.Client{ClientCode: "C1"}, sales, nil, byKey, testNow)

	cands := candidatesFor(domain.ScenarioUpsell, st, products)
	if len(cands) != 1 || cands[0].ProductKey != "pricier-rouge" {
		t.Errorf("upsell pool = %v, want [pricier-rouge]", keys(cands))
	}
}

func TestCandidatesEmptyPoolFallsBack(t *testing.T) {
	products := []domain.Product{
		{ProductKey: "a", FamilyCRM: "Rouge", PriceTTC: f(20), IsActive: true},
		{ProductKey: "b", FamilyCRM: "Blanc", PriceTTC: f(25), IsActive: true},
	}
	byKey := productsByKey(products)
	// No purchases at all: the rebuy pool is empty.
	st := buildClientState(&domain.Client{ClientCode: "C1"}, nil, nil, byKey, testNow)

	cands := candidatesFor(domain.ScenarioRebuy, st, products)
	if len(cands) != 2 {
		t.Errorf("fallback pool = %v, want the whole unowned catalogue", keys(cands))
	}
}

func TestSeasonalBonus(t *testing.T) {
	january := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	july := time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		tags string
		now  time.Time
		want float64
	}{
		{"hiver", january, 0.1},
		{"hiver", july, 0},
		{"ete", july, 0.1},
		{"été,fetes", july, 0.1},
		{"ete", january, 0},
		{"", january, 0},
	}
	for _, tc := range cases {
		if got := seasonalBonus(tc.tags, tc.now); got != tc.want {
			t.Errorf("seasonalBonus(%q, %s) = %v, want %v", tc.tags, tc.now.Month(), got, tc.want)
		}
	}
}

func TestScoreProductClampsAndExplains(t *testing.T) {
	p := &domain.Product{ProductKey: "p1", Name: "Cuvee", FamilyCRM: "Rouge",
		PriceTTC: f(40), GlobalPopularityScore: 1, SeasonTags: "hiver", IsActive: true}
	st := &clientState{client: &domain.Client{ClientCode: "C1", AverageOrderValue: 40, RFMScore: 555}}
	sc := scoringContext{maxPrice: 40, maxRFM: 555}

	january := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	score, reasons := scoreProduct(p, st, ScoringWeights{Popularity: 0.3, PriceFit: 0.3, FamilyFit: 0.2, RFMNorm: 0.2},
		sc, map[string]bool{"Rouge": true}, january)

	// All terms maxed plus the winter bonus would exceed 1; clamped.
	if score != 1 {
		t.Errorf("score = %v, want 1 (clamped)", score)
	}
	if reasons.Popularity != 1 || reasons.PriceFit != 1 || reasons.FamilyFit != 1 || reasons.RFMNorm != 1 || reasons.Seasonality != 0.1 {
		t.Errorf("reasons = %+v", reasons)
	}
}

func TestPriceFit(t *testing.T) {
	if got := priceFit(&domain.Product{}, 40, 100); got != 0.5 {
		t.Errorf("missing price fit = %v, want 0.5", got)
	}
	if got := priceFit(&domain.Product{PriceTTC: f(90)}, 40, 100); got != 0.5 {
		t.Errorf("fit = %v, want 0.5", got)
	}
	if got := priceFit(&domain.Product{PriceTTC: f(40)}, 540, 100); got != 0 {
		t.Errorf("distance beyond the ceiling must floor at 0, got %v", got)
	}
}

func TestRankCandidatesTieBreakAndTruncation(t *testing.T) {
	pa := &domain.Product{ProductKey: "aaa"}
	pb := &domain.Product{ProductKey: "bbb"}
	pc := &domain.Product{ProductKey: "ccc"}
	ranked := rankCandidates([]scoredCandidate{
		{product: pc, score: 0.5},
		{product: pa, score: 0.5},
		{product: pb, score: 0.9},
	}, 2)

	if len(ranked) != 2 {
		t.Fatalf("len = %d, want 2", len(ranked))
	}
	if ranked[0].product.ProductKey != "bbb" || ranked[1].product.ProductKey != "aaa" {
		t.Errorf("order = %s, %s", ranked[0].product.ProductKey, ranked[1].product.ProductKey)
	}
}
