package postgres

import (
	"context"
	"time"

	"github.com/ignite/vintner-crm/internal/domain"
	"github.com/ignite/vintner-crm/internal/service/reco"
)

// CreateRun inserts the run trace row in status running.
func (s *Store) CreateRun(ctx context.Context, run *domain.RecoRun) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO reco_runs (tenant_id, run_id, started_at, dataset_version, config_hash, code_version, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		run.TenantID, run.RunID, run.StartedAt, run.DatasetVersion, run.ConfigHash, run.CodeVersion, run.Status,
	).Scan(&run.ID)
	return classify("postgres.CreateRun", err)
}

// CompleteRun flips a running run to completed.
func (s *Store) CompleteRun(ctx context.Context, runID string, finishedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE reco_runs SET status = $2, finished_at = $3
		WHERE run_id = $1`,
		runID, domain.RunStatusCompleted, finishedAt)
	return classify("postgres.CompleteRun", err)
}

// FailRun marks the run failed and deletes any partial outputs in the
// same transaction, so a failed run keeps only its trace row.
func (s *Store) FailRun(ctx context.Context, runID string, finishedAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("postgres.FailRun", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"reco_output", "audit_output", "next_action_output", "run_summary"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE run_id = $1`, runID); err != nil {
			return classify("postgres.FailRun", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE reco_runs SET status = $2, finished_at = $3
		WHERE run_id = $1`,
		runID, domain.RunStatusFailed, finishedAt); err != nil {
		return classify("postgres.FailRun", err)
	}
	return classify("postgres.FailRun", tx.Commit())
}

// SaveOutputs writes a run's recommendations, audit findings, verdicts
// and summary in one transaction.
func (s *Store) SaveOutputs(ctx context.Context, out *reco.RunOutputs) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("postgres.SaveOutputs", err)
	}
	defer tx.Rollback()

	recoStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO reco_output (run_id, tenant_id, customer_code, scenario, rank, product_key, score, explain_short, reasons_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`)
	if err != nil {
		return classify("postgres.SaveOutputs", err)
	}
	defer recoStmt.Close()
	for i := range out.Recos {
		r := &out.Recos[i]
		if _, err := recoStmt.ExecContext(ctx, r.RunID, r.TenantID, r.CustomerCode, r.Scenario,
			r.Rank, r.ProductKey, r.Score, r.ExplainShort, r.ReasonsJSON); err != nil {
			return classify("postgres.SaveOutputs", err)
		}
	}

	auditStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO audit_output (run_id, tenant_id, customer_code, severity, rule_code, details_json)
		VALUES ($1, $2, $3, $4, $5, $6)`)
	if err != nil {
		return classify("postgres.SaveOutputs", err)
	}
	defer auditStmt.Close()
	for i := range out.Audits {
		a := &out.Audits[i]
		if _, err := auditStmt.ExecContext(ctx, a.RunID, a.TenantID, a.CustomerCode,
			a.Severity, a.RuleCode, a.DetailsJSON); err != nil {
			return classify("postgres.SaveOutputs", err)
		}
	}

	actionStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO next_action_output (run_id, tenant_id, customer_code, eligible, reason, scenario, audit_score)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`)
	if err != nil {
		return classify("postgres.SaveOutputs", err)
	}
	defer actionStmt.Close()
	for i := range out.Actions {
		a := &out.Actions[i]
		if _, err := actionStmt.ExecContext(ctx, a.RunID, a.TenantID, a.CustomerCode,
			a.Eligible, a.Reason, a.Scenario, a.AuditScore); err != nil {
			return classify("postgres.SaveOutputs", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO run_summary (run_id, tenant_id, summary_json)
		VALUES ($1, $2, $3)`,
		out.Summary.RunID, out.Summary.TenantID, out.Summary.SummaryJSON); err != nil {
		return classify("postgres.SaveOutputs", err)
	}

	return classify("postgres.SaveOutputs", tx.Commit())
}

// ListRuns returns a tenant's run traces, newest first.
func (s *Store) ListRuns(ctx context.Context, tenantID int64) ([]domain.RecoRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, run_id, started_at, finished_at,
			COALESCE(dataset_version, ''), COALESCE(config_hash, ''), COALESCE(code_version, ''), status
		FROM reco_runs
		WHERE tenant_id = $1
		ORDER BY started_at DESC`, tenantID)
	if err != nil {
		return nil, classify("postgres.ListRuns", err)
	}
	defer rows.Close()

	var runs []domain.RecoRun
	for rows.Next() {
		var r domain.RecoRun
		if err := rows.Scan(&r.ID, &r.TenantID, &r.RunID, &r.StartedAt, &r.FinishedAt,
			&r.DatasetVersion, &r.ConfigHash, &r.CodeVersion, &r.Status); err != nil {
			return nil, classify("postgres.ListRuns", err)
		}
		runs = append(runs, r)
	}
	return runs, classify("postgres.ListRuns", rows.Err())
}

// GetRun returns one run trace.
func (s *Store) GetRun(ctx context.Context, tenantID int64, runID string) (*domain.RecoRun, error) {
	var r domain.RecoRun
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, run_id, started_at, finished_at,
			COALESCE(dataset_version, ''), COALESCE(config_hash, ''), COALESCE(code_version, ''), status
		FROM reco_runs
		WHERE tenant_id = $1 AND run_id = $2`, tenantID, runID,
	).Scan(&r.ID, &r.TenantID, &r.RunID, &r.StartedAt, &r.FinishedAt,
		&r.DatasetVersion, &r.ConfigHash, &r.CodeVersion, &r.Status)
	if err != nil {
		return nil, classify("postgres.GetRun", err)
	}
	return &r, nil
}

// GetRunSummary returns the persisted run aggregate.
func (s *Store) GetRunSummary(ctx context.Context, tenantID int64, runID string) (*domain.RunSummary, error) {
	var sum domain.RunSummary
	err := s.db.QueryRowContext(ctx, `
		SELECT id, run_id, tenant_id, summary_json
		FROM run_summary
		WHERE tenant_id = $1 AND run_id = $2`, tenantID, runID,
	).Scan(&sum.ID, &sum.RunID, &sum.TenantID, &sum.SummaryJSON)
	if err != nil {
		return nil, classify("postgres.GetRunSummary", err)
	}
	return &sum, nil
}

// ListRecoOutputs returns a run's ranked slots, grouped per client.
func (s *Store) ListRecoOutputs(ctx context.Context, tenantID int64, runID string) ([]domain.RecoOutput, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, tenant_id, customer_code, scenario, rank, product_key, score,
			COALESCE(explain_short, ''), COALESCE(reasons_json, '')
		FROM reco_output
		WHERE tenant_id = $1 AND run_id = $2
		ORDER BY customer_code, rank`, tenantID, runID)
	if err != nil {
		return nil, classify("postgres.ListRecoOutputs", err)
	}
	defer rows.Close()

	var recos []domain.RecoOutput
	for rows.Next() {
		var r domain.RecoOutput
		if err := rows.Scan(&r.ID, &r.RunID, &r.TenantID, &r.CustomerCode, &r.Scenario,
			&r.Rank, &r.ProductKey, &r.Score, &r.ExplainShort, &r.ReasonsJSON); err != nil {
			return nil, classify("postgres.ListRecoOutputs", err)
		}
		recos = append(recos, r)
	}
	return recos, classify("postgres.ListRecoOutputs", rows.Err())
}

// ListAuditOutputs returns a run's rule violations.
func (s *Store) ListAuditOutputs(ctx context.Context, tenantID int64, runID string) ([]domain.AuditOutput, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, tenant_id, customer_code, severity, rule_code, COALESCE(details_json, '')
		FROM audit_output
		WHERE tenant_id = $1 AND run_id = $2
		ORDER BY customer_code, id`, tenantID, runID)
	if err != nil {
		return nil, classify("postgres.ListAuditOutputs", err)
	}
	defer rows.Close()

	var audits []domain.AuditOutput
	for rows.Next() {
		var a domain.AuditOutput
		if err := rows.Scan(&a.ID, &a.RunID, &a.TenantID, &a.CustomerCode,
			&a.Severity, &a.RuleCode, &a.DetailsJSON); err != nil {
			return nil, classify("postgres.ListAuditOutputs", err)
		}
		audits = append(audits, a)
	}
	return audits, classify("postgres.ListAuditOutputs", rows.Err())
}

// ListNextActions returns a run's per-client verdicts.
func (s *Store) ListNextActions(ctx context.Context, tenantID int64, runID string) ([]domain.NextActionOutput, error) {
	return s.listActions(ctx, tenantID, runID, false)
}

// ListEligibleActions returns only the verdicts cleared for marketing.
func (s *Store) ListEligibleActions(ctx context.Context, tenantID int64, runID string) ([]domain.NextActionOutput, error) {
	return s.listActions(ctx, tenantID, runID, true)
}

func (s *Store) listActions(ctx context.Context, tenantID int64, runID string, eligibleOnly bool) ([]domain.NextActionOutput, error) {
	query := `
		SELECT id, run_id, tenant_id, customer_code, eligible, COALESCE(reason, ''), scenario, audit_score
		FROM next_action_output
		WHERE tenant_id = $1 AND run_id = $2`
	if eligibleOnly {
		query += ` AND eligible`
	}
	query += ` ORDER BY customer_code`

	rows, err := s.db.QueryContext(ctx, query, tenantID, runID)
	if err != nil {
		return nil, classify("postgres.ListNextActions", err)
	}
	defer rows.Close()

	var actions []domain.NextActionOutput
	for rows.Next() {
		var a domain.NextActionOutput
		if err := rows.Scan(&a.ID, &a.RunID, &a.TenantID, &a.CustomerCode,
			&a.Eligible, &a.Reason, &a.Scenario, &a.AuditScore); err != nil {
			return nil, classify("postgres.ListNextActions", err)
		}
		actions = append(actions, a)
	}
	return actions, classify("postgres.ListNextActions", rows.Err())
}
