package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSource(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

var sampleSource = map[string]string{
	"clients.csv": "Client_Code,Name,Email\nC1,Alice,alice@test.com\nC2,Bob,\n",
	"products.csv": "product_key,name,family_crm,price_ttc\n" +
		"P1,Riesling Grand Cru,Blanc,18.50\nP2,Pinot Noir,Rouge,22.00\n",
	"sales.csv": "document_id,product_key,client_code,quantity,amount,sale_date\n" +
		"INV-1,P1,C1,2,37.00,15/01/2024\nINV-2,P2,C2,1,22.00,2024-02-01 10:30:00\n",
}

func TestRunProducesCuratedDatasets(t *testing.T) {
	src := writeSource(t, sampleSource)
	runner := NewRunner(t.TempDir())

	report, err := runner.Run(context.Background(), 1, src)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.RunID == "" || report.DatasetVersion == "" {
		t.Fatal("expected run_id and dataset_version to be set")
	}
	if report.HasBlockingErrors() {
		t.Fatalf("unexpected contract errors: %v", report.Errors)
	}
	for _, tbl := range []string{TableClients, TableProducts, TableSales} {
		if _, err := os.Stat(report.CuratedFiles[tbl]); err != nil {
			t.Errorf("curated file for %s missing: %v", tbl, err)
		}
	}
	if got := report.Rows[TableSales]; got != 2 {
		t.Errorf("sales rows = %d, want 2", got)
	}

	// Dates are canonicalized to YYYY-MM-DD in curated output.
	data, err := os.ReadFile(report.CuratedFiles[TableSales])
	if err != nil {
		t.Fatalf("read curated sales: %v", err)
	}
	for _, want := range []string{"2024-01-15", "2024-02-01"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("curated sales missing normalized date %s:\n%s", want, data)
		}
	}

	if _, err := LoadReport(runner.RunDir(1, report.RunID)); err != nil {
		t.Errorf("report.json not readable: %v", err)
	}
}

func TestRunIsIdempotentOnIdenticalInputs(t *testing.T) {
	src := writeSource(t, sampleSource)
	runner := NewRunner(t.TempDir())
	ctx := context.Background()

	first, err := runner.Run(ctx, 1, src)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := runner.Run(ctx, 1, src)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if first.RunID == second.RunID {
		t.Error("expected distinct run ids")
	}
	if first.DatasetVersion != second.DatasetVersion {
		t.Errorf("dataset_version changed across identical inputs: %s vs %s",
			first.DatasetVersion, second.DatasetVersion)
	}
	for tbl, path := range first.CuratedFiles {
		a, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read first %s: %v", tbl, err)
		}
		b, err := os.ReadFile(second.CuratedFiles[tbl])
		if err != nil {
			t.Fatalf("read second %s: %v", tbl, err)
		}
		if string(a) != string(b) {
			t.Errorf("curated %s differs between identical runs", tbl)
		}
	}
}

func TestRunReportsMissingRequiredColumns(t *testing.T) {
	src := writeSource(t, map[string]string{
		"sales.csv": "document_id,product_key,quantity,amount,sale_date\nINV-1,P1,1,10,2024-01-01\n",
	})
	runner := NewRunner(t.TempDir())

	report, err := runner.Run(context.Background(), 1, src)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !report.HasBlockingErrors() {
		t.Fatal("expected contract error for missing client_code")
	}
	if !report.TablesWithErrors()[TableSales] {
		t.Errorf("sales not flagged: %v", report.Errors)
	}
	// Curated output is still written; the loader refuses it instead.
	if _, err := os.Stat(report.CuratedFiles[TableSales]); err != nil {
		t.Errorf("curated sales should exist despite contract error: %v", err)
	}
	if cols := MissingColumns(report.Errors, TableSales); len(cols) != 1 || cols[0] != "client_code" {
		t.Errorf("MissingColumns = %v, want [client_code]", cols)
	}
}

func TestRunResolvesLabelOnlySales(t *testing.T) {
	src := writeSource(t, map[string]string{
		"sales.csv": "document_id,product_label,client_code,quantity,amount,sale_date\n" +
			"INV-1,Pinot Noir,C1,1,10,2024-01-01\n",
	})
	runner := NewRunner(t.TempDir())

	report, err := runner.Run(context.Background(), 1, src)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.HasBlockingErrors() {
		t.Fatalf("product_label should satisfy the sales contract: %v", report.Errors)
	}
	data, err := os.ReadFile(report.CuratedFiles[TableSales])
	if err != nil {
		t.Fatalf("read curated sales: %v", err)
	}
	if !strings.Contains(string(data), "label_norm") || !strings.Contains(string(data), "pinot noir") {
		t.Errorf("curated sales should carry label_norm for the loader:\n%s", data)
	}
}

func TestNormalizeColumn(t *testing.T) {
	cases := map[string]string{
		" Client Code ": "client_code",
		"Sale-Date":     "sale_date",
		"Sucrosité":     "sucrosite",
		"AMOUNT":        "amount",
	}
	for in, want := range cases {
		if got := NormalizeColumn(in); got != want {
			t.Errorf("NormalizeColumn(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeLabel(t *testing.T) {
	if got := NormalizeLabel("  Gewürztraminer Réserve "); got != "gewurztraminer reserve" {
		t.Errorf("NormalizeLabel = %q", got)
	}
}

func TestParseDate(t *testing.T) {
	cases := map[string]string{
		"2024-01-15":          "2024-01-15",
		"15/01/2024":          "2024-01-15",
		"2024-01-15 10:30:00": "2024-01-15",
		"not a date":          "",
		"":                    "",
	}
	for in, want := range cases {
		if got := ParseDate(in); got != want {
			t.Errorf("ParseDate(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTableForFile(t *testing.T) {
	cases := map[string]string{
		"clients.csv":     TableClients,
		"produits_v2.csv": TableProducts,
		"ventes_2024.csv": TableSales,
		"sales.csv":       TableSales,
		"notes.csv":       "",
	}
	for in, want := range cases {
		if got := TableForFile(in); got != want {
			t.Errorf("TableForFile(%q) = %q, want %q", in, got, want)
		}
	}
}
