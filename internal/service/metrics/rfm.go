package metrics

import (
	"context"
	"time"

	"github.com/ignite/vintner-crm/internal/domain"
)

// clientBasics are the purchase aggregates behind the RFM components.
type clientBasics struct {
	lastPurchase *time.Time
	totalSpent   float64
	documents    map[string]bool
	rowCount     int
}

func (b *clientBasics) orders() int {
	// Distinct documents; exports without document ids fall back to rows.
	if len(b.documents) > 0 {
		return len(b.documents)
	}
	return b.rowCount
}

// ComputeRFM recomputes recency/frequency/monetary scores, segments and
// purchase aggregates for every client of the tenant with sales history.
// The reference date is the tenant's most recent sale.
func (s *Service) ComputeRFM(ctx context.Context, tenantID int64) error {
	sales, err := s.repo.ListSales(ctx, tenantID)
	if err != nil {
		return err
	}
	if len(sales) == 0 {
		return nil
	}

	basics := make(map[string]*clientBasics)
	var reference time.Time
	for i := range sales {
		sale := &sales[i]
		b, ok := basics[sale.ClientCode]
		if !ok {
			b = &clientBasics{documents: make(map[string]bool)}
			basics[sale.ClientCode] = b
		}
		if sale.SaleDate != nil {
			if b.lastPurchase == nil || sale.SaleDate.After(*b.lastPurchase) {
				b.lastPurchase = sale.SaleDate
			}
			if sale.SaleDate.After(reference) {
				reference = *sale.SaleDate
			}
		}
		b.totalSpent += sale.Value()
		if sale.DocumentID != "" {
			b.documents[sale.DocumentID] = true
		}
		b.rowCount++
	}
	if reference.IsZero() {
		return nil
	}

	clients, err := s.repo.ListClients(ctx, tenantID)
	if err != nil {
		return err
	}

	// Collect the three distributions over clients that have purchases.
	var recencies, frequencies, monetaries []float64
	for _, b := range basics {
		if b.lastPurchase != nil {
			recencies = append(recencies, reference.Sub(*b.lastPurchase).Hours()/24)
		}
		frequencies = append(frequencies, float64(b.orders()))
		monetaries = append(monetaries, b.totalSpent)
	}
	rq := quintiles(recencies)
	fq := quintiles(frequencies)
	mq := quintiles(monetaries)

	updated := make([]domain.Client, 0, len(clients))
	for _, c := range clients {
		b, ok := basics[c.ClientCode]
		if !ok {
			continue
		}
		c.LastPurchaseDate = b.lastPurchase
		c.TotalSpent = b.totalSpent
		c.TotalOrders = b.orders()
		if c.TotalOrders > 0 {
			c.AverageOrderValue = b.totalSpent / float64(c.TotalOrders)
		}

		recency := 0.0
		if b.lastPurchase != nil {
			recency = reference.Sub(*b.lastPurchase).Hours() / 24
		}
		frequency := float64(b.orders())
		monetary := b.totalSpent
		c.Recency = &recency
		c.Frequency = &frequency
		c.Monetary = &monetary

		r := scoreInverse(recency, rq)
		f := scorePositive(frequency, fq)
		m := scorePositive(monetary, mq)
		c.RFMScore = r*100 + f*10 + m
		c.RFMSegment = segmentFor(r, f, m)

		updated = append(updated, c)
	}
	return s.repo.UpdateClients(ctx, updated)
}

// segmentFor maps R/F/M component scores to a named segment. Rules are
// ordered; the first match wins.
func segmentFor(r, f, m int) string {
	switch {
	case r >= 4 && f >= 4 && m >= 4:
		return domain.SegmentChampions
	case f >= 4 && r >= 3:
		return domain.SegmentLoyal
	case m >= 4 && f >= 3:
		return domain.SegmentBigSpenders
	case r >= 4 && f <= 2:
		return domain.SegmentRecent
	case r >= 3 && f >= 2 && m >= 2:
		return domain.SegmentPromising
	case r <= 2 && f <= 2:
		return domain.SegmentAtRisk
	default:
		return domain.SegmentOthers
	}
}
