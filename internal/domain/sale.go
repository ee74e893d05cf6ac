package domain

import "time"

// Sale is one line of a sales document. The natural key for deduplication is
// (tenant_id, document_id, product_key, client_code).
type Sale struct {
	ID         int64
	TenantID   int64
	DocumentID string
	ProductKey string
	ClientCode string
	Quantity   *float64
	Amount     *float64
	SaleDate   *time.Time
}

// NaturalKey returns the dedup key within a tenant.
func (s *Sale) NaturalKey() string {
	return s.DocumentID + "\x00" + s.ProductKey + "\x00" + s.ClientCode
}

// Value returns the monetary amount, falling back to quantity when the
// export carried no amount column.
func (s *Sale) Value() float64 {
	if s.Amount != nil {
		return *s.Amount
	}
	if s.Quantity != nil {
		return *s.Quantity
	}
	return 0
}

// Alias sources, ordered from most to least trusted.
const (
	AliasSourceManual  = "manual"
	AliasSourceSuggest = "suggest"
	AliasSourceAuto    = "auto"
)

// ProductAlias maps a normalized raw product label to a canonical product key.
// LabelNorm is unique per tenant.
type ProductAlias struct {
	ID         int64
	TenantID   int64
	LabelNorm  string
	ProductKey string
	LabelRaw   string
	Confidence float64
	Source     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Contact event statuses.
const (
	ContactDelivered   = "delivered"
	ContactOpen        = "open"
	ContactClick       = "click"
	ContactBounce      = "bounce"
	ContactUnsubscribe = "unsubscribe"
	ContactDryRun      = "dry_run"
)

// ContactEvent records one marketing touch on a client.
type ContactEvent struct {
	ID          int64
	TenantID    int64
	ClientID    int64
	ContactDate time.Time
	Channel     string
	Status      string
	CampaignID  string
}
