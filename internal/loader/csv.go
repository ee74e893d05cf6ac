package loader

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ignite/vintner-crm/internal/ingest"
)

// row is one curated CSV record keyed by canonical column name.
type row map[string]string

// readCurated reads a curated CSV into rows. Curated headers are already
// canonical, so only trimming is applied.
func readCurated(path string) (columns []string, rows []row, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("read %s: missing header row", path)
	}

	columns = make([]string, len(records[0]))
	for i, c := range records[0] {
		columns[i] = strings.ToLower(strings.TrimSpace(c))
	}
	for _, rec := range records[1:] {
		m := make(row, len(columns))
		for i, c := range columns {
			if i < len(rec) {
				m[c] = strings.TrimSpace(rec[i])
			}
		}
		rows = append(rows, m)
	}
	return columns, rows, nil
}

func parseFloatPtr(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseDatePtr(s string) *time.Time {
	normalized := ingest.ParseDate(s)
	if normalized == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", normalized)
	if err != nil {
		return nil
	}
	return &t
}

// parseBool treats empty input as the given default; curated exports
// rarely carry activity flags.
func parseBool(s string, def bool) bool {
	if s == "" {
		return def
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return def
	}
	return b
}
