package metrics

import (
	"context"
	"math"
	"sort"

	"github.com/ignite/vintner-crm/internal/domain"
)

// ComputeAromaProfiles derives a 7-axis aroma vector per client: the
// amount-weighted mean of purchased product axes, scaled from 0..5 to
// [0,1], with a confidence that grows with order volume and profile
// stability.
func (s *Service) ComputeAromaProfiles(ctx context.Context, tenantID int64) error {
	products, err := s.repo.ListProducts(ctx, tenantID)
	if err != nil {
		return err
	}
	productByKey := make(map[string]*domain.Product, len(products))
	for i := range products {
		productByKey[products[i].ProductKey] = &products[i]
	}

	sales, err := s.repo.ListSales(ctx, tenantID)
	if err != nil {
		return err
	}
	salesByClient := make(map[string][]*domain.Sale)
	for i := range sales {
		sale := &sales[i]
		salesByClient[sale.ClientCode] = append(salesByClient[sale.ClientCode], sale)
	}

	clients, err := s.repo.ListClients(ctx, tenantID)
	if err != nil {
		return err
	}
	updated := make([]domain.Client, 0, len(clients))
	for _, c := range clients {
		profile := aromaProfile(salesByClient[c.ClientCode], productByKey)
		encoded, err := domain.EncodeAromaProfile(profile)
		if err != nil {
			return err
		}
		c.AromaProfile = encoded
		updated = append(updated, c)
	}
	return s.repo.UpdateClients(ctx, updated)
}

func aromaProfile(purchases []*domain.Sale, products map[string]*domain.Product) domain.AromaProfileData {
	if len(purchases) == 0 {
		return domain.AromaProfileData{
			Axes:  map[string]float64{},
			Level: domain.AromaLevelLow,
		}
	}

	aggregate := make(map[string]float64, len(domain.AromaAxisNames))
	totalWeight := 0.0
	documents := make(map[string]bool)
	for _, sale := range purchases {
		product, ok := products[sale.ProductKey]
		if !ok {
			continue
		}
		weight := sale.Value()
		totalWeight += weight
		for axis, v := range product.AromaAxes() {
			aggregate[axis] += v * weight
		}
		if sale.DocumentID != "" {
			documents[sale.DocumentID] = true
		}
	}

	axes := make(map[string]float64, len(domain.AromaAxisNames))
	for _, axis := range domain.AromaAxisNames {
		if totalWeight > 0 {
			axes[axis] = round3((aggregate[axis] / totalWeight) / 5.0)
		} else {
			axes[axis] = 0
		}
	}

	nOrders := len(documents)
	if nOrders == 0 {
		nOrders = len(purchases)
	}
	confidence := aromaConfidence(axes, nOrders)

	level := domain.AromaLevelLow
	switch {
	case confidence >= 0.7:
		level = domain.AromaLevelHigh
	case confidence >= 0.45:
		level = domain.AromaLevelMedium
	}

	return domain.AromaProfileData{
		Axes:       axes,
		TopAxes:    topAxes(axes, 3),
		Confidence: confidence,
		Level:      level,
	}
}

// aromaConfidence combines a volume factor (saturating at 10 orders)
// with the profile's stability (1 − mean absolute deviation).
func aromaConfidence(axes map[string]float64, nOrders int) float64 {
	mean := 0.0
	for _, v := range axes {
		mean += v
	}
	mean /= float64(len(axes))
	mad := 0.0
	for _, v := range axes {
		mad += math.Abs(v - mean)
	}
	mad /= float64(len(axes))

	volume := math.Min(1, float64(nOrders)/10.0)
	confidence := 0.2 + 0.8*volume*(1-mad)
	return round3(math.Max(0, math.Min(1, confidence)))
}

func topAxes(axes map[string]float64, n int) []domain.AromaTopAxis {
	ranked := make([]domain.AromaTopAxis, 0, len(axes))
	for axis, v := range axes {
		ranked = append(ranked, domain.AromaTopAxis{Axis: axis, Value: v})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Value != ranked[j].Value {
			return ranked[i].Value > ranked[j].Value
		}
		return ranked[i].Axis < ranked[j].Axis
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
