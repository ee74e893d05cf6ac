package ingest

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Canonical table names recognized by the pipeline.
const (
	TableClients  = "clients"
	TableProducts = "products"
	TableSales    = "sales"
)

// requiredColumns is the per-table data contract. A missing required
// column is a blocking error for that table.
var requiredColumns = map[string][]string{
	TableClients:  {"client_code"},
	TableProducts: {"product_key", "name"},
	TableSales:    {"document_id", "client_code", "quantity", "amount", "sale_date"},
}

// optionalColumns are surfaced as warnings when absent.
var optionalColumns = map[string][]string{
	TableClients:  {"name", "email", "budget_band", "rfm_segment"},
	TableProducts: {"family_crm", "price_ttc", "global_popularity_score"},
	TableSales:    {"currency", "channel"},
}

// TableForFile maps a file name to its table by stem prefix. Tenant
// exports arrive with both English and French stems (clients.csv,
// ventes_2024.csv, produits.csv). Returns "" for unrecognized files.
func TableForFile(name string) string {
	stem := strings.ToLower(strings.TrimSuffix(filepath.Base(name), filepath.Ext(name)))
	switch {
	case strings.HasPrefix(stem, "client"):
		return TableClients
	case strings.HasPrefix(stem, "produ"):
		return TableProducts
	case strings.HasPrefix(stem, "sale"), strings.HasPrefix(stem, "vente"):
		return TableSales
	}
	return ""
}

// validateContract checks normalized columns against the table contract.
// Sales accept product_label in place of product_key: the loader resolves
// labels through the alias store.
func validateContract(table string, columns []string) (errs, warns []string) {
	have := make(map[string]bool, len(columns))
	for _, c := range columns {
		have[c] = true
	}
	for _, col := range requiredColumns[table] {
		if !have[col] {
			errs = append(errs, fmt.Sprintf("%s: required column missing: %s", table, col))
		}
	}
	if table == TableSales && !have["product_key"] && !have["product_label"] {
		errs = append(errs, fmt.Sprintf("%s: required column missing: product_key or product_label", table))
	}
	for _, col := range optionalColumns[table] {
		if !have[col] {
			warns = append(warns, fmt.Sprintf("%s: optional column missing: %s", table, col))
		}
	}
	return errs, warns
}

// MissingColumns extracts the column names behind a table's contract
// errors, for the loader's typed error details.
func MissingColumns(errs []string, table string) []string {
	prefix := table + ": required column missing: "
	var cols []string
	for _, e := range errs {
		if strings.HasPrefix(e, prefix) {
			cols = append(cols, strings.TrimPrefix(e, prefix))
		}
	}
	return cols
}
