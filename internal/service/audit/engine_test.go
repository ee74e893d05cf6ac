package audit

import (
	"strings"
	"testing"
	"time"

	"github.com/ignite/vintner-crm/internal/domain"
)

func f(v float64) *float64 { return &v }

func baseInput() ClientInput {
	price40 := 40.0
	price80 := 80.0
	return ClientInput{
		Client: &domain.Client{ClientCode: "C1", Email: "c1@example.com"},
		Products: map[string]*domain.Product{
			"p1": {ProductKey: "p1", FamilyCRM: "Rouge", PriceTTC: &price40},
			"p2": {ProductKey: "p2", FamilyCRM: "Blanc", PriceTTC: &price80},
		},
		SilenceWindowDays: 7,
		Now:               time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestEvaluateClientCleanIsEligible(t *testing.T) {
	in := baseInput()
	in.Recos = []domain.RecoOutput{
		{ProductKey: "p1", Scenario: domain.ScenarioCrossSell},
		{ProductKey: "p2", Scenario: domain.ScenarioCrossSell},
	}

	res := EvaluateClient(in)
	if !res.Eligible || res.Score != 100 || res.Reason != "" {
		t.Errorf("clean client: eligible=%v score=%d reason=%q", res.Eligible, res.Score, res.Reason)
	}
}

func TestEvaluateClientMissingEmail(t *testing.T) {
	in := baseInput()
	in.Client.Email = ""

	res := EvaluateClient(in)
	if res.Eligible {
		t.Fatal("missing email must block")
	}
	if res.Reason != RuleMissingEmail {
		t.Errorf("reason = %q, want %q", res.Reason, RuleMissingEmail)
	}
	if res.Score != 60 {
		t.Errorf("score = %d, want 60", res.Score)
	}
}

func TestEvaluateClientBounceBlocks(t *testing.T) {
	in := baseInput()
	in.ContactEvents = []domain.ContactEvent{
		{Status: domain.ContactDelivered, ContactDate: in.Now.AddDate(0, -2, 0)},
		{Status: "BOUNCE", ContactDate: in.Now.AddDate(0, -1, 0)},
	}

	res := EvaluateClient(in)
	if res.Eligible || res.Reason != RuleOptoutOrBounce {
		t.Errorf("bounce: eligible=%v reason=%q", res.Eligible, res.Reason)
	}
	// One issue only even though two events exist.
	if res.Errors != 1 {
		t.Errorf("errors = %d, want 1", res.Errors)
	}
}

func TestEvaluateClientSilenceWindow(t *testing.T) {
	in := baseInput()
	in.ContactEvents = []domain.ContactEvent{
		{Status: domain.ContactDelivered, ContactDate: in.Now.AddDate(0, 0, -3)},
	}

	res := EvaluateClient(in)
	if res.Eligible || res.Reason != RuleSilenceWindow {
		t.Errorf("silence window: eligible=%v reason=%q", res.Eligible, res.Reason)
	}
}

func TestEvaluateClientDuplicateRecos(t *testing.T) {
	in := baseInput()
	in.Recos = []domain.RecoOutput{
		{ProductKey: "p1"}, {ProductKey: "p1"}, {ProductKey: "p2"},
	}

	res := EvaluateClient(in)
	if res.Reason != RuleRecentDuplicate {
		t.Errorf("reason = %q, want %q", res.Reason, RuleRecentDuplicate)
	}
	if len(res.Issues) != 1 {
		t.Fatalf("issues = %d, want 1", len(res.Issues))
	}
	if !strings.Contains(res.Issues[0].DetailsJSON(), "p1") {
		t.Errorf("details should name the duplicated product: %s", res.Issues[0].DetailsJSON())
	}
}

func TestEvaluateClientUpsellMustBeHigher(t *testing.T) {
	in := baseInput()
	// Past purchases average 80; suggesting the 40 bottle as upsell fails.
	in.Purchases = []domain.Sale{{ProductKey: "p2"}}
	in.Recos = []domain.RecoOutput{{ProductKey: "p1", Scenario: domain.ScenarioUpsell}}

	res := EvaluateClient(in)
	if res.Reason != RuleUpsellNotHigher {
		t.Errorf("reason = %q, want %q", res.Reason, RuleUpsellNotHigher)
	}

	// Suggesting a pricier bottle than the 40 average passes.
	in.Purchases = []domain.Sale{{ProductKey: "p1"}}
	in.Recos = []domain.RecoOutput{{ProductKey: "p2", Scenario: domain.ScenarioUpsell}}
	if res := EvaluateClient(in); !res.Eligible {
		t.Errorf("higher-priced upsell rejected: %+v", res.Issues)
	}
}

func TestEvaluateClientCrossSellAlreadyOwnedWarns(t *testing.T) {
	in := baseInput()
	in.Purchases = []domain.Sale{{ProductKey: "p1"}}
	in.Recos = []domain.RecoOutput{{ProductKey: "p1", Scenario: domain.ScenarioCrossSell}}

	res := EvaluateClient(in)
	if res.Errors != 0 || res.Warns != 1 {
		t.Fatalf("errors/warns = %d/%d, want 0/1", res.Errors, res.Warns)
	}
	if res.Score != 90 || !res.Eligible {
		t.Errorf("score=%d eligible=%v, want 90/true", res.Score, res.Eligible)
	}
}

func TestEvaluateClientLowDiversity(t *testing.T) {
	in := baseInput()
	in.Products["p3"] = &domain.Product{ProductKey: "p3", FamilyCRM: "Rouge"}
	in.Products["p4"] = &domain.Product{ProductKey: "p4", FamilyCRM: "Rouge"}
	in.Recos = []domain.RecoOutput{
		{ProductKey: "p1"}, {ProductKey: "p3"}, {ProductKey: "p4"}, {ProductKey: "p2"},
	}

	res := EvaluateClient(in)
	if res.Warns != 1 || res.Issues[0].RuleCode != RuleLowDiversity {
		t.Errorf("expected a single diversity warning, got %+v", res.Issues)
	}

	// Two recommendations never trigger the rule even at 100% share.
	in.Recos = []domain.RecoOutput{{ProductKey: "p1"}, {ProductKey: "p3"}}
	if res := EvaluateClient(in); res.Warns != 0 {
		t.Errorf("diversity rule fired below three recommendations: %+v", res.Issues)
	}
}

func TestEvaluateClientSugarMismatch(t *testing.T) {
	in := baseInput()
	in.Products["p1"].SucrositeNiveau = "sec"
	in.Products["p2"].SucrositeNiveau = "moelleux"
	in.Products["p3"] = &domain.Product{ProductKey: "p3", SucrositeNiveau: "moelleux"}
	in.Purchases = []domain.Sale{{ProductKey: "p1"}, {ProductKey: "p1"}}
	in.Recos = []domain.RecoOutput{{ProductKey: "p2"}, {ProductKey: "p3"}}

	res := EvaluateClient(in)
	// Break after first mismatch: one warning, not two.
	if res.Warns != 1 || res.Issues[0].RuleCode != RuleSugarMismatch {
		t.Errorf("expected one sugar warning, got %+v", res.Issues)
	}
}

func TestEvaluateClientScoreFloorsAtZero(t *testing.T) {
	in := baseInput()
	in.Client.Email = ""
	in.Client.EmailOptOut = true
	in.Recos = []domain.RecoOutput{{ProductKey: "p1"}, {ProductKey: "p1"}}

	res := EvaluateClient(in)
	if res.Score != 0 {
		t.Errorf("score = %d, want 0 (3 errors)", res.Score)
	}
	if res.Reason != RuleMissingEmail {
		t.Errorf("first-issue reason = %q, want %q", res.Reason, RuleMissingEmail)
	}
}

func TestSummarize(t *testing.T) {
	results := map[string]ClientResult{
		"C1": {Eligible: true, Score: 100},
		"C2": {Eligible: false, Errors: 1, Score: 60, Reason: RuleMissingEmail,
			Issues: []Issue{{Severity: domain.SeverityError, RuleCode: RuleMissingEmail}}},
		"C3": {Eligible: false, Errors: 1, Warns: 1, Score: 50, Reason: RuleMissingEmail,
			Issues: []Issue{
				{Severity: domain.SeverityError, RuleCode: RuleMissingEmail},
				{Severity: domain.SeverityWarn, RuleCode: RuleSugarMismatch},
			}},
		"C4": {Eligible: true, Score: 100},
	}
	scenarios := map[string]domain.Scenario{
		"C1": domain.ScenarioRebuy,
		"C2": domain.ScenarioRebuy,
		"C3": domain.ScenarioWinback,
		"C4": domain.ScenarioCrossSell,
	}

	sum := Summarize(results, scenarios, 12)
	if sum.TotalClients != 4 || sum.TotalRecommendations != 12 {
		t.Errorf("totals = %d/%d", sum.TotalClients, sum.TotalRecommendations)
	}
	if sum.GatingRate != 0.5 {
		t.Errorf("gating_rate = %v, want 0.5", sum.GatingRate)
	}
	if sum.NErrors != 2 || sum.NWarns != 1 {
		t.Errorf("errors/warns = %d/%d, want 2/1", sum.NErrors, sum.NWarns)
	}
	if sum.AuditScore != 10 {
		t.Errorf("audit_score = %d, want 10", sum.AuditScore)
	}
	if sum.GateExport {
		t.Error("gate_export must be false with errors present")
	}
	if sum.ScenarioCounts[domain.ScenarioRebuy] != 2 {
		t.Errorf("scenario_counts = %v", sum.ScenarioCounts)
	}
	if len(sum.TopErrors) != 1 || sum.TopErrors[0].RuleCode != RuleMissingEmail || sum.TopErrors[0].Count != 2 {
		t.Errorf("top_errors = %v", sum.TopErrors)
	}
}

func TestSummarizeCleanRunExports(t *testing.T) {
	results := map[string]ClientResult{
		"C1": {Eligible: true, Score: 100},
	}
	sum := Summarize(results, map[string]domain.Scenario{"C1": domain.ScenarioNurture}, 3)
	if !sum.GateExport || sum.AuditScore != 100 || sum.GatingRate != 1 {
		t.Errorf("clean run: %+v", sum)
	}
}
