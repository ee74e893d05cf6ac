package reco

import (
	"time"

	"github.com/ignite/vintner-crm/internal/domain"
)

// clientState gathers one client's purchase history in the shapes the
// candidate and scoring steps need.
type clientState struct {
	client         *domain.Client
	purchases      []domain.Sale
	contactEvents  []domain.ContactEvent
	purchasedKeys  map[string]bool
	recentKeys     map[string]bool // purchased within the last 30 days
	families       map[string]bool // families ever purchased
	avgProductCost float64 // mean catalogue price of purchased products
}

func buildClientState(c *domain.Client, purchases []domain.Sale, events []domain.ContactEvent, products map[string]*domain.Product, now time.Time) *clientState {
	st := &clientState{
		client:        c,
		purchases:     purchases,
		contactEvents: events,
		purchasedKeys: make(map[string]bool),
		recentKeys:    make(map[string]bool),
		families:      make(map[string]bool),
	}
	priceSum, priceN := 0.0, 0
	for i := range purchases {
		s := &purchases[i]
		if s.ProductKey == "" {
			continue
		}
		st.purchasedKeys[s.ProductKey] = true
		if s.SaleDate != nil && now.Sub(*s.SaleDate) <= 30*24*time.Hour {
			st.recentKeys[s.ProductKey] = true
		}
		if p, ok := products[s.ProductKey]; ok {
			if p.FamilyCRM != "" {
				st.families[p.FamilyCRM] = true
			}
			if p.PriceTTC != nil {
				priceSum += *p.PriceTTC
				priceN++
			}
		}
	}
	if priceN > 0 {
		st.avgProductCost = priceSum / float64(priceN)
	}
	return st
}

// candidatesFor selects the product pool a scenario may draw from. A
// scenario whose pool comes up empty falls back to the whole
// recommendable-and-unowned catalogue so the client still gets a slate.
func candidatesFor(scen domain.Scenario, st *clientState, products []domain.Product) []*domain.Product {
	var out []*domain.Product
	switch scen {
	case domain.ScenarioRebuy:
		// Repeat purchases, minus anything bought in the last month.
		for i := range products {
			p := &products[i]
			if p.Recommendable() && st.purchasedKeys[p.ProductKey] && !st.recentKeys[p.ProductKey] {
				out = append(out, p)
			}
		}
	case domain.ScenarioCrossSell:
		for i := range products {
			p := &products[i]
			if p.Recommendable() && !st.purchasedKeys[p.ProductKey] {
				out = append(out, p)
			}
		}
	case domain.ScenarioUpsell:
		// Unowned bottles from a familiar family, priced above what the
		// client usually pays.
		for i := range products {
			p := &products[i]
			if !p.Recommendable() || st.purchasedKeys[p.ProductKey] {
				continue
			}
			if !st.families[p.FamilyCRM] {
				continue
			}
			if p.PriceTTC == nil || *p.PriceTTC <= st.avgProductCost {
				continue
			}
			out = append(out, p)
		}
	default: // winback, nurture
		for i := range products {
			p := &products[i]
			if p.Recommendable() && !st.purchasedKeys[p.ProductKey] {
				out = append(out, p)
			}
		}
	}

	if len(out) == 0 {
		for i := range products {
			p := &products[i]
			if p.Recommendable() && !st.purchasedKeys[p.ProductKey] {
				out = append(out, p)
			}
		}
	}
	return out
}
