package loader

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/ignite/vintner-crm/internal/domain"
	"github.com/ignite/vintner-crm/internal/ingest"
	"github.com/ignite/vintner-crm/internal/pkg/logger"
)

// Error types carried by Result.ErrorType.
const (
	ErrTypeContract       = "ContractError"
	ErrTypeMissingColumns = "MissingColumns"
	ErrTypeIntegrity      = "IntegrityError"
	ErrTypeStorage        = "StorageError"
)

// Result is the outcome of loading one table.
type Result struct {
	Success         bool           `json:"success"`
	Table           string         `json:"table"`
	RowsInitial     int            `json:"rows_initial"`
	RowsDuplicates  int            `json:"rows_duplicates"`
	RowsLoaded      int            `json:"rows_loaded"`
	ResolvedAliases int            `json:"resolved_aliases"`
	UnknownLabels   map[string]int `json:"unknown_labels,omitempty"`
	ErrorType       string         `json:"error_type,omitempty"`
	MissingColumns  []string       `json:"missing_columns,omitempty"`
	Error           string         `json:"error,omitempty"`
}

// Verification aggregates per-table results after a full load.
type Verification struct {
	Success         bool           `json:"success"`
	TotalSuccess    int            `json:"total_success"`
	TotalFailed     int            `json:"total_failed"`
	TotalRows       int            `json:"total_rows"`
	ResolvedAliases int            `json:"resolved_aliases"`
	UnknownLabels   map[string]int `json:"unknown_labels,omitempty"`
}

// requiredColumns is the loader's own gate, stricter than none but looser
// than ingestion's: sales accept product_label in place of product_key.
var requiredColumns = map[string][]string{
	ingest.TableClients:  {"client_code"},
	ingest.TableProducts: {"product_key", "name"},
	ingest.TableSales:    {"document_id", "client_code"},
}

// Loader appends curated datasets into the store.
type Loader struct {
	repo Repository
}

// New creates a loader over the given store.
func New(repo Repository) *Loader {
	return &Loader{repo: repo}
}

// LoadTable loads one curated CSV into its table for a tenant. Errors are
// returned in the Result, typed, never as a Go error: the caller decides
// how to aggregate.
func (l *Loader) LoadTable(ctx context.Context, table, csvPath string, tenantID int64) Result {
	res := Result{Table: table, UnknownLabels: map[string]int{}}

	columns, rows, err := readCurated(csvPath)
	if err != nil {
		res.ErrorType = ErrTypeStorage
		res.Error = err.Error()
		return res
	}
	res.RowsInitial = len(rows)

	if missing := missingColumns(table, columns); len(missing) > 0 {
		res.ErrorType = ErrTypeMissingColumns
		res.MissingColumns = missing
		logger.Warn("load refused, columns missing",
			"tenant_id", tenantID, "table", table, "missing", strings.Join(missing, ","))
		return res
	}

	rows, res.RowsDuplicates = dedupKeepLast(table, rows)

	if table == ingest.TableSales {
		if err := l.resolveAliases(ctx, tenantID, rows, &res); err != nil {
			return l.fail(res, err)
		}
	}

	if err := l.insert(ctx, table, tenantID, rows); err != nil {
		return l.fail(res, err)
	}

	res.Success = true
	res.RowsLoaded = len(rows)
	logger.Info("table loaded",
		"tenant_id", tenantID,
		"table", table,
		"rows_loaded", res.RowsLoaded,
		"duplicates", res.RowsDuplicates,
		"resolved_aliases", res.ResolvedAliases)
	return res
}

// LoadAllCurated loads every curated table of an ingestion run, refusing
// tables whose contract errors are still unresolved in the report.
// Returns per-table results keyed by table name.
func (l *Loader) LoadAllCurated(ctx context.Context, tenantID int64, report *ingest.Report) map[string]Result {
	results := make(map[string]Result)
	blocked := report.TablesWithErrors()

	// Products before sales so the alias fallback can see the catalogue.
	for _, table := range []string{ingest.TableProducts, ingest.TableClients, ingest.TableSales} {
		path, ok := report.CuratedFiles[table]
		if !ok {
			continue
		}
		if blocked[table] {
			results[table] = Result{
				Table:          table,
				ErrorType:      ErrTypeContract,
				MissingColumns: ingest.MissingColumns(report.Errors, table),
				Error:          "curated table has unresolved contract errors",
			}
			continue
		}
		results[table] = l.LoadTable(ctx, table, path, tenantID)
	}
	return results
}

// Verify aggregates a result map into the per-tenant load verification.
func Verify(results map[string]Result) Verification {
	v := Verification{UnknownLabels: map[string]int{}}
	for _, r := range results {
		if r.Success {
			v.TotalSuccess++
		} else {
			v.TotalFailed++
		}
		v.TotalRows += r.RowsLoaded
		v.ResolvedAliases += r.ResolvedAliases
		for label, n := range r.UnknownLabels {
			v.UnknownLabels[label] += n
		}
	}
	v.Success = v.TotalFailed == 0
	return v
}

func (l *Loader) fail(res Result, err error) Result {
	res.Success = false
	res.Error = err.Error()
	if domain.KindOf(err) == domain.KindIntegrityError {
		res.ErrorType = ErrTypeIntegrity
	} else {
		res.ErrorType = ErrTypeStorage
	}
	return res
}

func missingColumns(table string, columns []string) []string {
	have := make(map[string]bool, len(columns))
	for _, c := range columns {
		have[c] = true
	}
	var missing []string
	for _, col := range requiredColumns[table] {
		if !have[col] {
			missing = append(missing, col)
		}
	}
	if table == ingest.TableSales && !have["product_key"] && !have["product_label"] {
		missing = append(missing, "product_key/product_label")
	}
	return missing
}

// dedupKeepLast removes natural-key duplicates, keeping the last
// occurrence and preserving the order of survivors.
func dedupKeepLast(table string, rows []row) ([]row, int) {
	key := func(r row) string {
		switch table {
		case ingest.TableSales:
			return r["document_id"] + "\x00" + r["product_key"] + "\x00" + r["client_code"]
		case ingest.TableClients:
			return r["client_code"]
		case ingest.TableProducts:
			return r["product_key"]
		}
		return ""
	}

	last := make(map[string]int, len(rows))
	for i, r := range rows {
		last[key(r)] = i
	}
	if len(last) == len(rows) {
		return rows, 0
	}
	kept := make([]row, 0, len(last))
	for i, r := range rows {
		if last[key(r)] == i {
			kept = append(kept, r)
		}
	}
	return kept, len(rows) - len(kept)
}

// resolveAliases fills missing product keys from the tenant alias map,
// falling back to normalized product names when no aliases exist. Unknown
// labels are counted but their rows are kept.
func (l *Loader) resolveAliases(ctx context.Context, tenantID int64, rows []row, res *Result) error {
	aliasMap, err := l.repo.AliasMap(ctx, tenantID)
	if err != nil {
		return err
	}
	fromNames := false
	if len(aliasMap) == 0 {
		names, err := l.repo.ProductNames(ctx, tenantID)
		if err != nil {
			return err
		}
		aliasMap = make(map[string]string, len(names))
		for name, key := range names {
			aliasMap[ingest.NormalizeLabel(name)] = key
		}
		fromNames = true
	}

	memoized := make(map[string]bool)
	for _, r := range rows {
		if r["product_key"] != "" {
			continue
		}
		norm := r["label_norm"]
		if norm == "" {
			norm = ingest.NormalizeLabel(r["product_label"])
		}
		if norm == "" {
			continue
		}
		if key, ok := aliasMap[norm]; ok {
			r["product_key"] = key
			res.ResolvedAliases++
			if fromNames && !memoized[norm] {
				memoized[norm] = true
				l.memoizeAlias(ctx, tenantID, norm, key, r["product_label"])
			}
		} else {
			res.UnknownLabels[norm]++
		}
	}
	return nil
}

// memoizeAlias records a name-derived mapping in the alias table so the
// next load resolves it without the fallback. Best effort: a failed
// memo never blocks the load.
func (l *Loader) memoizeAlias(ctx context.Context, tenantID int64, norm, key, raw string) {
	alias := &domain.ProductAlias{
		TenantID:   tenantID,
		LabelNorm:  norm,
		ProductKey: key,
		LabelRaw:   raw,
		Confidence: 0.9,
		Source:     domain.AliasSourceAuto,
	}
	if err := l.repo.UpsertAlias(ctx, alias); err != nil {
		logger.Warn("alias memo failed",
			"tenant_id", tenantID, "label_norm", norm, "error", err.Error())
	}
}

func (l *Loader) insert(ctx context.Context, table string, tenantID int64, rows []row) error {
	switch table {
	case ingest.TableClients:
		return l.withRetry(ctx, func(ctx context.Context) error {
			return l.repo.InsertClients(ctx, rowsToClients(tenantID, rows))
		})
	case ingest.TableProducts:
		return l.withRetry(ctx, func(ctx context.Context) error {
			return l.repo.InsertProducts(ctx, rowsToProducts(tenantID, rows))
		})
	case ingest.TableSales:
		return l.withRetry(ctx, func(ctx context.Context) error {
			return l.repo.InsertSales(ctx, rowsToSales(tenantID, rows))
		})
	}
	return nil
}

// withRetry retries a transient storage failure once, with jitter.
// Integrity errors are never retried.
func (l *Loader) withRetry(ctx context.Context, fn func(context.Context) error) error {
	err := fn(ctx)
	if err == nil || domain.KindOf(err) != domain.KindStorageError {
		return err
	}
	select {
	case <-ctx.Done():
		return err
	case <-time.After(time.Duration(100+rand.Intn(200)) * time.Millisecond):
	}
	return fn(ctx)
}

func rowsToClients(tenantID int64, rows []row) []domain.Client {
	out := make([]domain.Client, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.Client{
			TenantID:   tenantID,
			ClientCode: r["client_code"],
			Name:       r["name"],
			Email:      r["email"],
			BudgetBand: r["budget_band"],
			RFMSegment: r["rfm_segment"],
		})
	}
	return out
}

func rowsToProducts(tenantID int64, rows []row) []domain.Product {
	out := make([]domain.Product, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.Product{
			TenantID:              tenantID,
			ProductKey:            r["product_key"],
			Name:                  r["name"],
			FamilyCRM:             r["family_crm"],
			SubFamily:             r["sub_family"],
			Cepage:                r["cepage"],
			SucrositeNiveau:       r["sucrosite_niveau"],
			PriceTTC:              parseFloatPtr(r["price_ttc"]),
			Margin:                parseFloatPtr(r["margin"]),
			AromaFruit:            parseFloat(r["aroma_fruit"]),
			AromaFloral:           parseFloat(r["aroma_floral"]),
			AromaSpice:            parseFloat(r["aroma_spice"]),
			AromaMineral:          parseFloat(r["aroma_mineral"]),
			AromaAcidity:          parseFloat(r["aroma_acidity"]),
			AromaBody:             parseFloat(r["aroma_body"]),
			AromaTannin:           parseFloat(r["aroma_tannin"]),
			GlobalPopularityScore: parseFloat(r["global_popularity_score"]),
			SeasonTags:            r["season_tags"],
			IsActive:              parseBool(r["is_active"], true),
			IsArchived:            parseBool(r["is_archived"], false),
		})
	}
	return out
}

func rowsToSales(tenantID int64, rows []row) []domain.Sale {
	out := make([]domain.Sale, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.Sale{
			TenantID:   tenantID,
			DocumentID: r["document_id"],
			ProductKey: r["product_key"],
			ClientCode: r["client_code"],
			Quantity:   parseFloatPtr(r["quantity"]),
			Amount:     parseFloatPtr(r["amount"]),
			SaleDate:   parseDatePtr(r["sale_date"]),
		})
	}
	return out
}
