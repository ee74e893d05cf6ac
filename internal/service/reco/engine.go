package reco

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/vintner-crm/internal/domain"
	"github.com/ignite/vintner-crm/internal/pkg/logger"
	"github.com/ignite/vintner-crm/internal/service/audit"
	"github.com/ignite/vintner-crm/internal/service/scenario"
)

// Engine produces recommendation runs.
type Engine struct {
	repo     Repository
	cfg      Config
	selector *scenario.Selector
	nowFn    func() time.Time
}

// New creates a run engine with defaults filled in.
func New(repo Repository, cfg Config) *Engine {
	cfg.applyDefaults()
	return &Engine{
		repo:     repo,
		cfg:      cfg,
		selector: scenario.NewSelector(cfg.ScenarioWeights),
		nowFn:    time.Now,
	}
}

// RunResult is what callers get back from a finished run.
type RunResult struct {
	RunID      string                `json:"run_id"`
	Status     string                `json:"status"`
	TotalItems int                   `json:"total_items"`
	Summary    domain.RunSummaryData `json:"summary"`
}

// clientOutcome is one worker's output for a single client.
type clientOutcome struct {
	code    string
	scen    domain.Scenario
	recos   []domain.RecoOutput
	audits  []domain.AuditOutput
	action  domain.NextActionOutput
	verdict audit.ClientResult
}

// Run executes a full recommendation run for a tenant. The run trace is
// created first; any failure afterwards flips it to failed and discards
// partial outputs, so a failed run never leaks half a result set.
func (e *Engine) Run(ctx context.Context, tenantID int64, datasetVersion string) (*RunResult, error) {
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}
	started := e.nowFn()
	runID := strings.ReplaceAll(uuid.NewString(), "-", "")
	run := &domain.RecoRun{
		TenantID:       tenantID,
		RunID:          runID,
		StartedAt:      started,
		DatasetVersion: datasetVersion,
		ConfigHash:     e.cfg.Hash(),
		CodeVersion:    codeVersion,
		Status:         domain.RunStatusRunning,
	}
	if err := e.repo.CreateRun(ctx, run); err != nil {
		return nil, err
	}
	logger.Info("reco run started", "tenant_id", tenantID, "run_id", runID)

	result, err := e.execute(ctx, tenantID, runID, started)
	if err != nil {
		return e.fail(ctx, tenantID, runID, err)
	}

	// A run must never end in status running: if completion itself
	// errors, the outputs already saved are discarded with the run.
	if err := e.repo.CompleteRun(ctx, runID, e.nowFn()); err != nil {
		return e.fail(ctx, tenantID, runID, err)
	}
	result.RunID = runID
	result.Status = domain.RunStatusCompleted
	logger.Info("reco run completed",
		"tenant_id", tenantID, "run_id", runID,
		"clients", result.Summary.TotalClients,
		"recommendations", result.Summary.TotalRecommendations,
		"gate_export", result.Summary.GateExport)
	return result, nil
}

// fail flips the run to failed and removes partial outputs, then hands
// the original error back to the caller.
func (e *Engine) fail(ctx context.Context, tenantID int64, runID string, err error) (*RunResult, error) {
	// FailRun must proceed even when the run died of cancellation.
	cleanupCtx := context.WithoutCancel(ctx)
	if ferr := e.repo.FailRun(cleanupCtx, runID, e.nowFn()); ferr != nil {
		logger.Error("failed to mark run failed", "run_id", runID, "error", ferr.Error())
	}
	logger.Error("reco run failed", "tenant_id", tenantID, "run_id", runID, "error", err.Error())
	return &RunResult{RunID: runID, Status: domain.RunStatusFailed}, err
}

func (e *Engine) execute(ctx context.Context, tenantID int64, runID string, now time.Time) (*RunResult, error) {
	clients, err := e.repo.ListClients(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	products, err := e.repo.ListProducts(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	sales, err := e.repo.ListSales(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	events, err := e.repo.ListContactEvents(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	byKey := make(map[string]*domain.Product, len(products))
	for i := range products {
		byKey[products[i].ProductKey] = &products[i]
	}
	salesByClient := make(map[string][]domain.Sale)
	for i := range sales {
		salesByClient[sales[i].ClientCode] = append(salesByClient[sales[i].ClientCode], sales[i])
	}
	eventsByClient := make(map[int64][]domain.ContactEvent)
	for i := range events {
		eventsByClient[events[i].ClientID] = append(eventsByClient[events[i].ClientID], events[i])
	}
	sc := buildScoringContext(clients, products)

	sem := make(chan struct{}, e.cfg.Workers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	outcomes := make([]clientOutcome, 0, len(clients))

	for i := range clients {
		if ctx.Err() != nil {
			break
		}
		c := &clients[i]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			oc := e.processClient(c, salesByClient[c.ClientCode], eventsByClient[c.ID], products, byKey, sc, runID, tenantID, now)
			mu.Lock()
			outcomes = append(outcomes, oc)
			mu.Unlock()
		}()
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		kind := domain.KindCancelled
		if errors.Is(err, context.DeadlineExceeded) {
			kind = domain.KindTimeout
		}
		return nil, domain.E(kind, "reco.Run", err)
	}

	// Deterministic persist order regardless of worker interleaving.
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].code < outcomes[j].code })

	out := &RunOutputs{}
	results := make(map[string]audit.ClientResult, len(outcomes))
	scenarios := make(map[string]domain.Scenario, len(outcomes))
	for _, oc := range outcomes {
		out.Recos = append(out.Recos, oc.recos...)
		out.Audits = append(out.Audits, oc.audits...)
		out.Actions = append(out.Actions, oc.action)
		results[oc.code] = oc.verdict
		scenarios[oc.code] = oc.scen
	}

	summary := audit.Summarize(results, scenarios, len(out.Recos))
	encoded, err := domain.EncodeRunSummary(summary)
	if err != nil {
		return nil, domain.E(domain.KindStorageError, "reco.Run", err)
	}
	out.Summary = domain.RunSummary{RunID: runID, TenantID: tenantID, SummaryJSON: encoded}

	if err := e.repo.SaveOutputs(ctx, out); err != nil {
		return nil, err
	}
	return &RunResult{
		TotalItems: len(out.Recos),
		Summary:    summary,
	}, nil
}

// processClient runs the per-client chain: scenario selection,
// candidate generation, scoring, ranking and gating.
func (e *Engine) processClient(c *domain.Client, purchases []domain.Sale, events []domain.ContactEvent, products []domain.Product, byKey map[string]*domain.Product, sc scoringContext, runID string, tenantID int64, now time.Time) clientOutcome {
	st := buildClientState(c, purchases, events, byKey, now)
	scen, _ := e.selector.Decide(scenario.FromClient(c, len(st.families)))

	weights, ok := e.cfg.Scoring[scen]
	if !ok {
		weights = DefaultScoring()[scen]
	}
	preferred := map[string]bool{}
	if prefs, err := domain.DecodeFamilyPreferences(c.PreferredFamilies); err == nil {
		preferred = prefs.FamilySet()
	}

	pool := candidatesFor(scen, st, products)
	scored := make([]scoredCandidate, 0, len(pool))
	for _, p := range pool {
		score, reasons := scoreProduct(p, st, weights, sc, preferred, now)
		scored = append(scored, scoredCandidate{product: p, score: score, reasons: reasons})
	}
	ranked := rankCandidates(scored, e.cfg.TopN)

	recos := make([]domain.RecoOutput, 0, len(ranked))
	for i, cand := range ranked {
		reasonsJSON, _ := domain.EncodeScoreReasons(cand.reasons)
		recos = append(recos, domain.RecoOutput{
			RunID:        runID,
			TenantID:     tenantID,
			CustomerCode: c.ClientCode,
			Scenario:     scen,
			Rank:         i + 1,
			ProductKey:   cand.product.ProductKey,
			Score:        cand.score,
			ExplainShort: explainShort(scen, cand.product),
			ReasonsJSON:  reasonsJSON,
		})
	}

	verdict := audit.EvaluateClient(audit.ClientInput{
		Client:            c,
		Recos:             recos,
		Products:          byKey,
		ContactEvents:     events,
		Purchases:         purchases,
		SilenceWindowDays: e.cfg.SilenceWindowDays,
		Now:               now,
	})

	audits := make([]domain.AuditOutput, 0, len(verdict.Issues))
	for _, issue := range verdict.Issues {
		audits = append(audits, domain.AuditOutput{
			RunID:        runID,
			TenantID:     tenantID,
			CustomerCode: c.ClientCode,
			Severity:     issue.Severity,
			RuleCode:     issue.RuleCode,
			DetailsJSON:  issue.DetailsJSON(),
		})
	}

	return clientOutcome{
		code:  c.ClientCode,
		scen:  scen,
		recos: recos,
		audits: audits,
		action: domain.NextActionOutput{
			RunID:        runID,
			TenantID:     tenantID,
			CustomerCode: c.ClientCode,
			Eligible:     verdict.Eligible,
			Reason:       verdict.Reason,
			Scenario:     scen,
			AuditScore:   verdict.Score,
		},
		verdict: verdict,
	}
}
