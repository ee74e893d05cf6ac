package postgres

import (
	"context"

	"github.com/ignite/vintner-crm/internal/domain"
)

// ListSales returns every sale line of a tenant.
func (s *Store) ListSales(ctx context.Context, tenantID int64) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, document_id, COALESCE(product_key, ''), client_code, quantity, amount, sale_date
		FROM sales
		WHERE tenant_id = $1
		ORDER BY sale_date, document_id`, tenantID)
	if err != nil {
		return nil, classify("postgres.ListSales", err)
	}
	defer rows.Close()

	var sales []domain.Sale
	for rows.Next() {
		var sale domain.Sale
		if err := rows.Scan(&sale.ID, &sale.TenantID, &sale.DocumentID, &sale.ProductKey,
			&sale.ClientCode, &sale.Quantity, &sale.Amount, &sale.SaleDate); err != nil {
			return nil, classify("postgres.ListSales", err)
		}
		sales = append(sales, sale)
	}
	return sales, classify("postgres.ListSales", rows.Err())
}

// InsertSales upserts sale lines by the natural key
// (tenant_id, document_id, product_key, client_code); the latest load
// wins, matching the loader's keep-last dedup.
func (s *Store) InsertSales(ctx context.Context, sales []domain.Sale) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("postgres.InsertSales", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO sales (tenant_id, document_id, product_key, client_code, quantity, amount, sale_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id, document_id, product_key, client_code) DO UPDATE SET
			quantity = EXCLUDED.quantity,
			amount = EXCLUDED.amount,
			sale_date = EXCLUDED.sale_date`)
	if err != nil {
		return classify("postgres.InsertSales", err)
	}
	defer stmt.Close()

	for i := range sales {
		sale := &sales[i]
		_, err := stmt.ExecContext(ctx,
			sale.TenantID, sale.DocumentID, sale.ProductKey, sale.ClientCode,
			sale.Quantity, sale.Amount, sale.SaleDate)
		if err != nil {
			return classify("postgres.InsertSales", err)
		}
	}
	return classify("postgres.InsertSales", tx.Commit())
}

// InsertAuditLog records one data-quality audit execution.
func (s *Store) InsertAuditLog(ctx context.Context, log *domain.AuditLog) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO audit_logs (tenant_id, executed_at, errors, warnings, score, details)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		log.TenantID, log.ExecutedAt, log.Errors, log.Warnings, log.Score, log.Details,
	).Scan(&log.ID)
	return classify("postgres.InsertAuditLog", err)
}
