package metrics

import (
	"context"
	"sort"

	"github.com/ignite/vintner-crm/internal/domain"
)

// ComputePreferences derives each client's top-2 purchased families with
// their shares and assigns a budget band from the tenant-local AOV
// distribution (<=q33 Low, <=q66 Medium, else High).
func (s *Service) ComputePreferences(ctx context.Context, tenantID int64) error {
	products, err := s.repo.ListProducts(ctx, tenantID)
	if err != nil {
		return err
	}
	familyOf := make(map[string]string, len(products))
	for _, p := range products {
		fam := p.FamilyCRM
		if fam == "" {
			fam = "unknown"
		}
		familyOf[p.ProductKey] = fam
	}

	sales, err := s.repo.ListSales(ctx, tenantID)
	if err != nil {
		return err
	}
	familyCounts := make(map[string]map[string]int)
	purchaseCounts := make(map[string]int)
	for i := range sales {
		sale := &sales[i]
		fam, ok := familyOf[sale.ProductKey]
		if !ok {
			fam = "unknown"
		}
		if familyCounts[sale.ClientCode] == nil {
			familyCounts[sale.ClientCode] = make(map[string]int)
		}
		familyCounts[sale.ClientCode][fam]++
		purchaseCounts[sale.ClientCode]++
	}

	clients, err := s.repo.ListClients(ctx, tenantID)
	if err != nil {
		return err
	}

	var aovs []float64
	for _, c := range clients {
		if c.AverageOrderValue > 0 {
			aovs = append(aovs, c.AverageOrderValue)
		}
	}
	var qLow, qHigh float64
	if len(aovs) > 0 {
		qLow = quantile(aovs, s.cfg.BudgetQuantileLow)
		qHigh = quantile(aovs, s.cfg.BudgetQuantileHigh)
	}

	updated := make([]domain.Client, 0, len(clients))
	for _, c := range clients {
		if counts := familyCounts[c.ClientCode]; len(counts) > 0 {
			prefs := topFamilies(counts, purchaseCounts[c.ClientCode], 2)
			encoded, err := domain.EncodeFamilyPreferences(domain.FamilyPreferences{Families: prefs})
			if err != nil {
				return err
			}
			c.PreferredFamilies = encoded
		}
		c.BudgetBand = budgetBand(c.AverageOrderValue, qLow, qHigh)
		updated = append(updated, c)
	}
	return s.repo.UpdateClients(ctx, updated)
}

// topFamilies returns the n most purchased families with their share of
// the client's purchases. Ties break alphabetically for determinism.
func topFamilies(counts map[string]int, total, n int) []domain.FamilyPreference {
	type fc struct {
		family string
		count  int
	}
	ranked := make([]fc, 0, len(counts))
	for fam, c := range counts {
		ranked = append(ranked, fc{fam, c})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].family < ranked[j].family
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	out := make([]domain.FamilyPreference, len(ranked))
	for i, r := range ranked {
		share := 0.0
		if total > 0 {
			share = float64(r.count) / float64(total)
		}
		out[i] = domain.FamilyPreference{Family: r.family, Share: share}
	}
	return out
}

func budgetBand(aov, qLow, qHigh float64) string {
	if aov == 0 || qHigh == 0 {
		return ""
	}
	switch {
	case aov <= qLow:
		return domain.BudgetLow
	case aov <= qHigh:
		return domain.BudgetMedium
	default:
		return domain.BudgetHigh
	}
}

// ComputePopularity recomputes global_popularity_score for every product:
// the product's share of the tenant's sales rows, in [0,1].
func (s *Service) ComputePopularity(ctx context.Context, tenantID int64) error {
	sales, err := s.repo.ListSales(ctx, tenantID)
	if err != nil {
		return err
	}
	if len(sales) == 0 {
		return nil
	}
	counts := make(map[string]int)
	for i := range sales {
		counts[sales[i].ProductKey]++
	}

	products, err := s.repo.ListProducts(ctx, tenantID)
	if err != nil {
		return err
	}
	total := float64(len(sales))
	scores := make(map[string]float64, len(products))
	for _, p := range products {
		scores[p.ProductKey] = float64(counts[p.ProductKey]) / total
	}
	return s.repo.UpdateProductPopularity(ctx, tenantID, scores)
}
