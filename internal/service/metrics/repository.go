package metrics

import (
	"context"

	"github.com/ignite/vintner-crm/internal/domain"
)

// Repository is the store surface the metrics services read and write.
type Repository interface {
	ListClients(ctx context.Context, tenantID int64) ([]domain.Client, error)
	ListProducts(ctx context.Context, tenantID int64) ([]domain.Product, error)
	ListSales(ctx context.Context, tenantID int64) ([]domain.Sale, error)

	// UpdateClients persists the derived fields of the given clients,
	// matched by (tenant_id, client_code).
	UpdateClients(ctx context.Context, clients []domain.Client) error
	// UpdateProductPopularity sets global_popularity_score per product_key.
	UpdateProductPopularity(ctx context.Context, tenantID int64, scores map[string]float64) error
}
