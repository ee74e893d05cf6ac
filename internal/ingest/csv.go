package ingest

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// table is a CSV dataset held in memory: a header plus rows aligned to it.
type table struct {
	columns []string
	rows    [][]string
}

func (t *table) columnIndex(name string) int {
	for i, c := range t.columns {
		if c == name {
			return i
		}
	}
	return -1
}

func (t *table) hasColumn(name string) bool { return t.columnIndex(name) >= 0 }

// addColumn appends a column filled with value, or overwrites it if the
// column already exists.
func (t *table) addColumn(name, value string) {
	if i := t.columnIndex(name); i >= 0 {
		for _, row := range t.rows {
			row[i] = value
		}
		return
	}
	t.columns = append(t.columns, name)
	for i, row := range t.rows {
		t.rows[i] = append(row, value)
	}
}

// readTable reads a CSV file, normalizes its header and trims every cell.
// A header row is required; short rows are padded to the header width.
func readTable(path string) (*table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("read %s: missing header row", path)
	}

	t := &table{columns: make([]string, len(records[0]))}
	for i, col := range records[0] {
		t.columns[i] = NormalizeColumn(col)
	}
	for _, rec := range records[1:] {
		row := make([]string, len(t.columns))
		for i := range row {
			if i < len(rec) {
				row[i] = strings.TrimSpace(rec[i])
			}
		}
		t.rows = append(t.rows, row)
	}
	return t, nil
}

// writeTable writes the table as UTF-8 CSV, quoting every non-numeric
// field (header included) so downstream readers never misparse free text.
func writeTable(t *table, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := writeRecord(w, t.columns); err != nil {
		return err
	}
	for _, row := range t.rows {
		if err := writeRecord(w, row); err != nil {
			return err
		}
	}
	return w.Flush()
}

func writeRecord(w *bufio.Writer, record []string) error {
	for i, field := range record {
		if i > 0 {
			if err := w.WriteByte(','); err != nil {
				return err
			}
		}
		if _, err := w.WriteString(quoteField(field)); err != nil {
			return err
		}
	}
	return w.WriteByte('\n')
}

// quoteField leaves numeric values bare and quotes everything else.
func quoteField(field string) string {
	if field != "" {
		if _, err := strconv.ParseFloat(field, 64); err == nil {
			return field
		}
	}
	return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
}
