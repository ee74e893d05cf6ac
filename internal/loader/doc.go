// Package loader promotes curated CSV datasets into the store: it gates
// on required columns, deduplicates by natural key (keep-last), resolves
// product labels through the tenant alias map, tags every row with the
// tenant and appends.
//
// Failures are table-scoped. An integrity or storage error on one table
// never aborts the others; the caller aggregates the per-table results
// and reports.
package loader
