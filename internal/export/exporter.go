package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ignite/vintner-crm/internal/domain"
	"github.com/ignite/vintner-crm/internal/pkg/logger"
)

// Repository is the read surface the exporter needs.
type Repository interface {
	GetRunSummary(ctx context.Context, tenantID int64, runID string) (*domain.RunSummary, error)
	ListRecoOutputs(ctx context.Context, tenantID int64, runID string) ([]domain.RecoOutput, error)
	ListAuditOutputs(ctx context.Context, tenantID int64, runID string) ([]domain.AuditOutput, error)
	ListNextActions(ctx context.Context, tenantID int64, runID string) ([]domain.NextActionOutput, error)
}

// Uploader mirrors an artifact to remote storage.
type Uploader interface {
	Upload(ctx context.Context, key string, body []byte) error
}

// Artifacts lists what one export produced.
type Artifacts struct {
	Dir   string   `json:"dir"`
	Files []string `json:"files"`
}

// Exporter writes run artifacts under {dir}/{tenant_id}/.
type Exporter struct {
	repo     Repository
	dir      string
	uploader Uploader // nil disables the mirror
}

// New creates an exporter. uploader may be nil.
func New(repo Repository, dir string, uploader Uploader) *Exporter {
	return &Exporter{repo: repo, dir: dir, uploader: uploader}
}

// Export materializes all four artifacts for a run.
func (e *Exporter) Export(ctx context.Context, tenantID int64, runID string) (*Artifacts, error) {
	recos, err := e.repo.ListRecoOutputs(ctx, tenantID, runID)
	if err != nil {
		return nil, err
	}
	audits, err := e.repo.ListAuditOutputs(ctx, tenantID, runID)
	if err != nil {
		return nil, err
	}
	actions, err := e.repo.ListNextActions(ctx, tenantID, runID)
	if err != nil {
		return nil, err
	}
	summary, err := e.repo.GetRunSummary(ctx, tenantID, runID)
	if err != nil {
		return nil, err
	}

	outDir := filepath.Join(e.dir, strconv.FormatInt(tenantID, 10))
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, domain.E(domain.KindStorageError, "export.Export", err)
	}
	art := &Artifacts{Dir: outDir}

	writes := []struct {
		name string
		body func() ([]byte, error)
	}{
		{fmt.Sprintf("reco_output_%s.csv", runID), func() ([]byte, error) { return recoCSV(recos) }},
		{fmt.Sprintf("audit_output_%s.csv", runID), func() ([]byte, error) { return auditCSV(audits) }},
		{fmt.Sprintf("next_action_%s.csv", runID), func() ([]byte, error) { return actionCSV(actions) }},
		{fmt.Sprintf("run_summary_%s.json", runID), func() ([]byte, error) { return summaryJSON(summary) }},
	}
	for _, w := range writes {
		body, err := w.body()
		if err != nil {
			return nil, domain.E(domain.KindStorageError, "export.Export", err)
		}
		path := filepath.Join(outDir, w.name)
		if err := os.WriteFile(path, body, 0o644); err != nil {
			return nil, domain.E(domain.KindStorageError, "export.Export", err)
		}
		art.Files = append(art.Files, path)

		if e.uploader != nil {
			key := fmt.Sprintf("%d/%s", tenantID, w.name)
			if err := e.uploader.Upload(ctx, key, body); err != nil {
				return nil, domain.E(domain.KindStorageError, "export.Export", err)
			}
		}
	}

	logger.Info("run artifacts exported",
		"tenant_id", tenantID, "run_id", runID, "dir", outDir,
		"mirrored", e.uploader != nil)
	return art, nil
}

func recoCSV(recos []domain.RecoOutput) ([]byte, error) {
	return writeCSV(
		[]string{"run_id", "tenant_id", "customer_code", "scenario", "rank", "product_key", "score", "explain_short", "reasons_json"},
		len(recos),
		func(i int) []string {
			r := recos[i]
			return []string{
				r.RunID, strconv.FormatInt(r.TenantID, 10), r.CustomerCode,
				string(r.Scenario), strconv.Itoa(r.Rank), r.ProductKey,
				strconv.FormatFloat(r.Score, 'f', 4, 64), r.ExplainShort, r.ReasonsJSON,
			}
		})
}

func auditCSV(audits []domain.AuditOutput) ([]byte, error) {
	return writeCSV(
		[]string{"run_id", "tenant_id", "customer_code", "severity", "rule_code", "details_json"},
		len(audits),
		func(i int) []string {
			a := audits[i]
			return []string{
				a.RunID, strconv.FormatInt(a.TenantID, 10), a.CustomerCode,
				a.Severity, a.RuleCode, a.DetailsJSON,
			}
		})
}

func actionCSV(actions []domain.NextActionOutput) ([]byte, error) {
	return writeCSV(
		[]string{"run_id", "tenant_id", "customer_code", "eligible", "reason", "scenario", "audit_score"},
		len(actions),
		func(i int) []string {
			a := actions[i]
			return []string{
				a.RunID, strconv.FormatInt(a.TenantID, 10), a.CustomerCode,
				strconv.FormatBool(a.Eligible), a.Reason, string(a.Scenario),
				strconv.Itoa(a.AuditScore),
			}
		})
}

func summaryJSON(summary *domain.RunSummary) ([]byte, error) {
	data, err := domain.DecodeRunSummary(summary.SummaryJSON)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(data, "", "  ")
}

func writeCSV(header []string, n int, row func(i int) []string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		if err := w.Write(row(i)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
