package loader

import (
	"context"

	"github.com/ignite/vintner-crm/internal/domain"
)

// Repository is the store surface the loader writes through.
type Repository interface {
	// AliasMap returns the tenant's label_norm → product_key mapping.
	AliasMap(ctx context.Context, tenantID int64) (map[string]string, error)
	// ProductNames returns the tenant's product name → product_key mapping,
	// used as the alias fallback when the alias table is empty. Names are
	// returned raw; the loader normalizes them.
	ProductNames(ctx context.Context, tenantID int64) (map[string]string, error)
	// UpsertAlias memoizes a resolved label so later loads hit the alias
	// table directly.
	UpsertAlias(ctx context.Context, alias *domain.ProductAlias) error

	InsertClients(ctx context.Context, clients []domain.Client) error
	InsertProducts(ctx context.Context, products []domain.Product) error
	InsertSales(ctx context.Context, sales []domain.Sale) error
}
