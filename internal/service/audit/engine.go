package audit

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/ignite/vintner-crm/internal/domain"
)

// Gating rule codes.
const (
	RuleMissingEmail    = "MISSING_EMAIL"
	RuleOptoutOrBounce  = "OPTOUT_OR_BOUNCE"
	RuleSilenceWindow   = "SILENCE_WINDOW"
	RuleRecentDuplicate = "RECENT_DUPLICATE"
	RuleUpsellNotHigher = "UPSELL_NOT_HIGHER"
	RuleCrossSellNotNew = "CROSS_SELL_NOT_NEW"
	RuleLowDiversity    = "LOW_DIVERSITY"
	RuleSugarMismatch   = "SUGAR_MISMATCH"

	// ReasonBelowThreshold is reported when no single rule fired but the
	// score still misses the eligibility bar.
	ReasonBelowThreshold = "AUDIT_SCORE_BELOW_THRESHOLD"
)

// eligibilityThreshold is the minimum audit score for marketing.
const eligibilityThreshold = 80

// Issue is one rule violation.
type Issue struct {
	Severity string
	RuleCode string
	Details  map[string]any
}

// DetailsJSON serializes the issue details for the text column.
func (i Issue) DetailsJSON() string {
	if len(i.Details) == 0 {
		return "{}"
	}
	b, err := json.Marshal(i.Details)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// ClientInput is everything the gating rules look at for one client.
type ClientInput struct {
	Client            *domain.Client
	Recos             []domain.RecoOutput
	Products          map[string]*domain.Product
	ContactEvents     []domain.ContactEvent
	Purchases         []domain.Sale
	SilenceWindowDays int
	Now               time.Time
}

// ClientResult is the per-client gating verdict.
type ClientResult struct {
	Issues   []Issue
	Errors   int
	Warns    int
	Score    int
	Eligible bool
	Reason   string // empty when eligible
}

// EvaluateClient runs the gating rules over one client and its
// recommendations. Deterministic: rule order is fixed, so the
// first-issue reason is stable.
func EvaluateClient(in ClientInput) ClientResult {
	var res ClientResult
	add := func(severity, rule string, details map[string]any) {
		if severity == domain.SeverityError {
			res.Errors++
		} else {
			res.Warns++
		}
		res.Issues = append(res.Issues, Issue{Severity: severity, RuleCode: rule, Details: details})
	}

	c := in.Client

	if c.Email == "" {
		add(domain.SeverityError, RuleMissingEmail, map[string]any{"message": "missing email"})
	}
	if c.EmailOptOut {
		add(domain.SeverityError, RuleOptoutOrBounce, map[string]any{"message": "client opted out"})
	}
	for _, ev := range in.ContactEvents {
		status := strings.ToLower(ev.Status)
		if status == domain.ContactBounce || status == domain.ContactUnsubscribe {
			add(domain.SeverityError, RuleOptoutOrBounce, map[string]any{"status": ev.Status})
			break
		}
	}
	for _, ev := range in.ContactEvents {
		if in.Now.Sub(ev.ContactDate) < time.Duration(in.SilenceWindowDays)*24*time.Hour {
			add(domain.SeverityError, RuleSilenceWindow, map[string]any{"contact_date": ev.ContactDate.Format(time.RFC3339)})
			break
		}
	}

	counts := make(map[string]int)
	for _, r := range in.Recos {
		if r.ProductKey != "" {
			counts[r.ProductKey]++
		}
	}
	var dupes []string
	for key, n := range counts {
		if n > 1 {
			dupes = append(dupes, key)
		}
	}
	if len(dupes) > 0 {
		sort.Strings(dupes)
		add(domain.SeverityError, RuleRecentDuplicate, map[string]any{"products": dupes})
	}

	purchasedKeys := make(map[string]bool, len(in.Purchases))
	for i := range in.Purchases {
		purchasedKeys[in.Purchases[i].ProductKey] = true
	}
	avgPrice := avgPurchasePrice(in.Purchases, in.Products)

	for _, r := range in.Recos {
		prod, ok := in.Products[r.ProductKey]
		if !ok {
			continue
		}
		if r.Scenario == domain.ScenarioUpsell && prod.PriceTTC != nil && *prod.PriceTTC <= avgPrice {
			add(domain.SeverityError, RuleUpsellNotHigher, map[string]any{
				"product_key": prod.ProductKey,
				"price":       *prod.PriceTTC,
				"avg_price":   avgPrice,
			})
		}
		if r.Scenario == domain.ScenarioCrossSell && purchasedKeys[r.ProductKey] {
			add(domain.SeverityWarn, RuleCrossSellNotNew, map[string]any{"product_key": r.ProductKey})
		}
	}

	if fam, share, ok := dominantRecoFamily(in.Recos, in.Products); ok && len(in.Recos) >= 3 && share > 0.7 {
		add(domain.SeverityWarn, RuleLowDiversity, map[string]any{"family": fam, "share": share})
	}

	if dominant := dominantSugar(in.Purchases, in.Products); dominant != "" {
		for _, r := range in.Recos {
			prod, ok := in.Products[r.ProductKey]
			if !ok || prod.SucrositeNiveau == "" {
				continue
			}
			if strings.ToLower(prod.SucrositeNiveau) != dominant {
				add(domain.SeverityWarn, RuleSugarMismatch, map[string]any{
					"product_key": prod.ProductKey,
					"suggested":   prod.SucrositeNiveau,
					"preferred":   dominant,
				})
				break
			}
		}
	}

	res.Score = score(res.Errors, res.Warns)
	res.Eligible = res.Errors == 0 && res.Score >= eligibilityThreshold
	if !res.Eligible {
		if len(res.Issues) > 0 {
			res.Reason = res.Issues[0].RuleCode
		} else {
			res.Reason = ReasonBelowThreshold
		}
	}
	return res
}

// score applies the shared audit formula, floored at zero.
func score(errors, warns int) int {
	s := 100 - 40*errors - 10*warns
	if s < 0 {
		return 0
	}
	return s
}

func avgPurchasePrice(purchases []domain.Sale, products map[string]*domain.Product) float64 {
	sum, n := 0.0, 0
	for i := range purchases {
		if prod, ok := products[purchases[i].ProductKey]; ok && prod.PriceTTC != nil {
			sum += *prod.PriceTTC
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func dominantRecoFamily(recos []domain.RecoOutput, products map[string]*domain.Product) (string, float64, bool) {
	counts := make(map[string]int)
	for _, r := range recos {
		if prod, ok := products[r.ProductKey]; ok && prod.FamilyCRM != "" {
			counts[prod.FamilyCRM]++
		}
	}
	if len(counts) == 0 || len(recos) == 0 {
		return "", 0, false
	}
	var top string
	topCount := -1
	for fam, n := range counts {
		if n > topCount || (n == topCount && fam < top) {
			top, topCount = fam, n
		}
	}
	return top, float64(topCount) / float64(len(recos)), true
}

func dominantSugar(purchases []domain.Sale, products map[string]*domain.Product) string {
	counts := make(map[string]int)
	for i := range purchases {
		if prod, ok := products[purchases[i].ProductKey]; ok && prod.SucrositeNiveau != "" {
			counts[strings.ToLower(prod.SucrositeNiveau)]++
		}
	}
	var top string
	topCount := -1
	for sugar, n := range counts {
		if n > topCount || (n == topCount && sugar < top) {
			top, topCount = sugar, n
		}
	}
	return top
}
