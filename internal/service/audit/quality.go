package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/vintner-crm/internal/domain"
	"github.com/ignite/vintner-crm/internal/pkg/logger"
)

// Data-quality rule codes (separate surface from the gating rules).
const (
	QualitySilenceWindow   = "SILENCE_WINDOW"
	QualityMissingEmail    = "MISSING_EMAIL"
	QualityDuplicateEmail  = "DUPLICATE_EMAIL"
	QualityRecentDuplicate = "RECENT_DUPLICATE"
	QualityLowDiversity    = "LOW_DIVERSITY"
	QualityInvalidSale     = "INVALID_SALE_VALUE"
	QualityZeroQuantity    = "ZERO_QUANTITY"
	QualityUnknownProduct  = "UNKNOWN_PRODUCT"
	QualityUnknownClient   = "UNKNOWN_CLIENT"
	QualityChurnWarning    = "CHURN_WARNING"
	QualityPriceOutlier    = "UNREALISTIC_PRICE"
	QualityNegativeMargin  = "NEGATIVE_MARGIN"
	QualityIncompleteRFM   = "INCOMPLETE_RFM"
	QualityMissingFamily   = "MISSING_FAMILY"
	QualityNoPurchaseData  = "NO_PURCHASE_DATA"
)

// QualityRepository is the store surface of the data-quality audit.
type QualityRepository interface {
	ListClients(ctx context.Context, tenantID int64) ([]domain.Client, error)
	ListProducts(ctx context.Context, tenantID int64) ([]domain.Product, error)
	ListSales(ctx context.Context, tenantID int64) ([]domain.Sale, error)
	InsertAuditLog(ctx context.Context, log *domain.AuditLog) error
}

// QualityService scans a tenant's loaded state for data defects and
// records the outcome as an AuditLog row.
type QualityService struct {
	repo QualityRepository
	now  func() time.Time
}

// NewQualityService creates a data-quality auditor.
func NewQualityService(repo QualityRepository) *QualityService {
	return &QualityService{repo: repo, now: time.Now}
}

// Run executes every data-quality rule and persists the audit log.
func (s *QualityService) Run(ctx context.Context, tenantID int64) (*domain.AuditLog, error) {
	clients, err := s.repo.ListClients(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	products, err := s.repo.ListProducts(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	sales, err := s.repo.ListSales(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	errors, warnings := 0, 0
	var details []string
	addError := func(format string, args ...any) {
		errors++
		details = append(details, fmt.Sprintf(format, args...))
	}
	addWarn := func(format string, args ...any) {
		warnings++
		details = append(details, fmt.Sprintf(format, args...))
	}

	knownClients := make(map[string]bool, len(clients))
	emails := make(map[string][]string)
	for i := range clients {
		c := &clients[i]
		knownClients[c.ClientCode] = true
		if c.Email != "" {
			emails[c.Email] = append(emails[c.Email], c.ClientCode)
		}

		switch {
		case c.LastPurchaseDate == nil:
			addError("%s: client %s has never purchased", QualitySilenceWindow, c.ClientCode)
		case now.Sub(*c.LastPurchaseDate) > 365*24*time.Hour:
			addError("%s: client %s inactive for more than 365 days", QualitySilenceWindow, c.ClientCode)
		case now.Sub(*c.LastPurchaseDate) > 180*24*time.Hour:
			addWarn("%s: client %s inactive for more than 180 days", QualityChurnWarning, c.ClientCode)
		}
		if c.Email == "" {
			addError("%s: client %s has no email", QualityMissingEmail, c.ClientCode)
		}
		if c.LastPurchaseDate != nil && c.RFMScore == 0 {
			addWarn("%s: client %s has purchases but no RFM score", QualityIncompleteRFM, c.ClientCode)
		}
	}
	for email, codes := range emails {
		if len(codes) > 1 {
			addError("%s: email %s shared by %d clients", QualityDuplicateEmail, email, len(codes))
		}
	}

	knownProducts := make(map[string]bool, len(products))
	for i := range products {
		p := &products[i]
		knownProducts[p.ProductKey] = true
		if p.FamilyCRM == "" {
			addWarn("%s: product %s has no family", QualityMissingFamily, p.ProductKey)
		}
		if p.PriceTTC != nil && *p.PriceTTC > 1000 {
			addWarn("%s: product %s priced at %.2f", QualityPriceOutlier, p.ProductKey, *p.PriceTTC)
		}
		if p.Margin != nil && *p.Margin < 0 {
			addWarn("%s: product %s has negative margin", QualityNegativeMargin, p.ProductKey)
		}
	}

	if len(sales) == 0 {
		addWarn("%s: tenant has no sales history", QualityNoPurchaseData)
	}
	recentPairs := make(map[string]int)
	clientProducts := make(map[string]map[string]bool)
	for i := range sales {
		sale := &sales[i]
		if sale.Amount != nil && *sale.Amount < 0 {
			addError("%s: sale %s has negative amount", QualityInvalidSale, sale.DocumentID)
		}
		if sale.Quantity != nil && *sale.Quantity < 0 {
			addError("%s: sale %s has negative quantity", QualityInvalidSale, sale.DocumentID)
		}
		if sale.Quantity != nil && *sale.Quantity == 0 {
			addWarn("%s: sale %s has zero quantity", QualityZeroQuantity, sale.DocumentID)
		}
		if sale.ProductKey == "" || !knownProducts[sale.ProductKey] {
			addError("%s: sale %s references product %q", QualityUnknownProduct, sale.DocumentID, sale.ProductKey)
		}
		if !knownClients[sale.ClientCode] {
			addError("%s: sale %s references client %q", QualityUnknownClient, sale.DocumentID, sale.ClientCode)
		}
		if sale.SaleDate != nil && now.Sub(*sale.SaleDate) <= 30*24*time.Hour {
			recentPairs[sale.DocumentID+"\x00"+sale.ProductKey]++
		}
		if clientProducts[sale.ClientCode] == nil {
			clientProducts[sale.ClientCode] = make(map[string]bool)
		}
		clientProducts[sale.ClientCode][sale.ProductKey] = true
	}
	for pair, n := range recentPairs {
		if n > 1 {
			addError("%s: document/product pair %q appears %d times in 30 days", QualityRecentDuplicate, pair, n)
		}
	}
	for i := range clients {
		if n := len(clientProducts[clients[i].ClientCode]); n == 1 {
			addWarn("%s: client %s bought a single distinct product", QualityLowDiversity, clients[i].ClientCode)
		}
	}

	log := &domain.AuditLog{
		TenantID:   tenantID,
		ExecutedAt: now,
		Errors:     errors,
		Warnings:   warnings,
		Score:      float64(score(errors, warnings)),
		Details:    strings.Join(details, "\n"),
	}
	if err := s.repo.InsertAuditLog(ctx, log); err != nil {
		return nil, err
	}
	logger.Info("data-quality audit recorded",
		"tenant_id", tenantID, "errors", errors, "warnings", warnings, "score", log.Score)
	return log, nil
}
