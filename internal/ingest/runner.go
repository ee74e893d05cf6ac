package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/ignite/vintner-crm/internal/domain"
	"github.com/ignite/vintner-crm/internal/pkg/logger"
)

// Runner executes the RAW → staging → curated pipeline for one tenant.
type Runner struct {
	dataDir string
}

// NewRunner creates a runner rooted at the tenant data directory.
func NewRunner(dataDir string) *Runner {
	return &Runner{dataDir: dataDir}
}

// RunDir returns the on-disk directory of a given run.
func (r *Runner) RunDir(tenantID int64, runID string) string {
	return filepath.Join(r.dataDir, strconv.FormatInt(tenantID, 10), "runs", runID)
}

// Run ingests every recognized CSV in sourceDir under a fresh run_id.
// Contract violations land in the report, not in the returned error;
// only I/O and archival failures abort the run.
func (r *Runner) Run(ctx context.Context, tenantID int64, sourceDir string) (*Report, error) {
	const op = "ingest.Run"

	runID := strings.ReplaceAll(uuid.NewString(), "-", "")
	runDir := r.RunDir(tenantID, runID)
	rawDir := filepath.Join(runDir, "raw")
	stagingDir := filepath.Join(runDir, "staging")
	curatedDir := filepath.Join(runDir, "curated")
	for _, dir := range []string{rawDir, stagingDir, curatedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, domain.E(domain.KindStorageError, op, err)
		}
	}

	rawFiles, err := r.copyRaw(sourceDir, rawDir)
	if err != nil {
		return nil, err
	}

	report := &Report{
		RunID:        runID,
		TenantID:     tenantID,
		RawFiles:     rawFiles,
		StagingFiles: make(map[string]string),
		CuratedFiles: make(map[string]string),
		Rows:         make(map[string]int),
	}

	// Deterministic table order keeps reruns byte-identical.
	names := make([]string, 0, len(rawFiles))
	for name := range rawFiles {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, domain.E(domain.KindCancelled, op, err)
		}

		tbl := TableForFile(name)
		if tbl == "" {
			report.Warnings = append(report.Warnings, fmt.Sprintf("%s: unrecognized table, skipped", name))
			continue
		}

		data, err := readTable(rawFiles[name])
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", tbl, err))
			continue
		}
		report.Rows[tbl] = len(data.rows)

		errs, warns := validateContract(tbl, data.columns)
		report.Errors = append(report.Errors, errs...)
		report.Warnings = append(report.Warnings, warns...)

		stagingPath := filepath.Join(stagingDir, tbl+".csv")
		if err := writeTable(data, stagingPath); err != nil {
			return nil, domain.E(domain.KindStorageError, op, err)
		}
		report.StagingFiles[tbl] = stagingPath

		curate(tbl, data)
		curatedPath := filepath.Join(curatedDir, tbl+"_curated.csv")
		if err := writeTable(data, curatedPath); err != nil {
			return nil, domain.E(domain.KindStorageError, op, err)
		}
		report.CuratedFiles[tbl] = curatedPath
	}

	version, err := datasetVersion(rawFiles)
	if err != nil {
		return nil, domain.E(domain.KindStorageError, op, err)
	}
	report.DatasetVersion = version

	if _, err := report.Save(runDir); err != nil {
		return nil, domain.E(domain.KindStorageError, op, err)
	}

	logger.Info("ingestion run complete",
		"tenant_id", tenantID,
		"run_id", runID,
		"dataset_version", version,
		"errors", len(report.Errors),
		"warnings", len(report.Warnings))
	return report, nil
}

// copyRaw archives each source CSV verbatim. RAW is immutable: a target
// that already exists is a conflict, never an overwrite.
func (r *Runner) copyRaw(sourceDir, rawDir string) (map[string]string, error) {
	const op = "ingest.copyRaw"

	entries, err := os.ReadDir(sourceDir)
	if err != nil {
		return nil, domain.E(domain.KindStorageError, op, err)
	}

	copied := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".csv") {
			continue
		}
		target := filepath.Join(rawDir, entry.Name())
		if _, err := os.Stat(target); err == nil {
			return nil, domain.E(domain.KindConflict, op,
				fmt.Errorf("raw file already archived: %s", target))
		}
		if err := copyFile(filepath.Join(sourceDir, entry.Name()), target); err != nil {
			return nil, domain.E(domain.KindStorageError, op, err)
		}
		copied[entry.Name()] = target
	}
	return copied, nil
}

// curate applies the typed transformations that staging leaves alone:
// normalized client codes, permissive-parsed sale dates, and a label_norm
// key for label-only sales.
func curate(tbl string, data *table) {
	if i := data.columnIndex("client_code"); i >= 0 {
		for _, row := range data.rows {
			row[i] = NormalizeLabel(row[i])
		}
	}
	if tbl != TableSales {
		return
	}
	if i := data.columnIndex("sale_date"); i >= 0 {
		for _, row := range data.rows {
			row[i] = ParseDate(row[i])
		}
	}
	if i := data.columnIndex("product_label"); i >= 0 {
		if !data.hasColumn("label_norm") {
			data.addColumn("label_norm", "")
		}
		j := data.columnIndex("label_norm")
		for _, row := range data.rows {
			row[j] = NormalizeLabel(row[i])
		}
	}
}

// datasetVersion hashes the raw inputs into a stable content version:
// SHA-256 over "name:sha256|name:sha256|…" with names sorted.
func datasetVersion(rawFiles map[string]string) (string, error) {
	names := make([]string, 0, len(rawFiles))
	for name := range rawFiles {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		sum, err := hashFile(rawFiles[name])
		if err != nil {
			return "", err
		}
		parts = append(parts, name+":"+sum)
	}
	digest := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(digest[:]), nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
