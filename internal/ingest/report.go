package ingest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// Report is the structured outcome of one ingestion run. It is returned
// to the caller and persisted as report.json beside the run's datasets.
type Report struct {
	RunID          string            `json:"run_id"`
	TenantID       int64             `json:"tenant_id"`
	DatasetVersion string            `json:"dataset_version"`
	RawFiles       map[string]string `json:"raw_files"`
	StagingFiles   map[string]string `json:"staging_files"`
	CuratedFiles   map[string]string `json:"curated_files"`
	Errors         []string          `json:"errors"`
	Warnings       []string          `json:"warnings"`
	Rows           map[string]int    `json:"rows"`
}

// HasBlockingErrors reports whether any table failed its contract.
func (r *Report) HasBlockingErrors() bool { return len(r.Errors) > 0 }

// TablesWithErrors returns the set of tables with blocking contract
// errors. Error strings are prefixed "{table}: ...".
func (r *Report) TablesWithErrors() map[string]bool {
	tables := make(map[string]bool)
	for _, e := range r.Errors {
		if i := strings.Index(e, ":"); i > 0 {
			tables[e[:i]] = true
		}
	}
	return tables
}

// Save writes the report as indented JSON into the run directory.
func (r *Report) Save(runDir string) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(runDir, "report.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// LoadReport reads a previously saved report.json.
func LoadReport(runDir string) (*Report, error) {
	data, err := os.ReadFile(filepath.Join(runDir, "report.json"))
	if err != nil {
		return nil, err
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
