package metrics

import (
	"context"
	"fmt"

	"github.com/ignite/vintner-crm/internal/pkg/logger"
)

// Config holds the tunables of the derived-metric computations.
type Config struct {
	BudgetQuantileLow  float64 // AOV threshold for Low, default 0.33
	BudgetQuantileHigh float64 // AOV threshold for Medium, default 0.66
	KMeansClusters     int     // default 4
	KMeansSeed         int64   // required for deterministic clustering
}

func (c *Config) applyDefaults() {
	if c.BudgetQuantileLow == 0 {
		c.BudgetQuantileLow = 0.33
	}
	if c.BudgetQuantileHigh == 0 {
		c.BudgetQuantileHigh = 0.66
	}
	if c.KMeansClusters == 0 {
		c.KMeansClusters = 4
	}
}

// Service computes and persists derived client/product analytics.
type Service struct {
	repo Repository
	cfg  Config
}

// New creates a metrics service.
func New(repo Repository, cfg Config) *Service {
	cfg.applyDefaults()
	return &Service{repo: repo, cfg: cfg}
}

// ComputeAll recomputes every derived metric for a tenant, in dependency
// order: RFM before preferences (budget bands need AOV), preferences and
// popularity before recommendations make sense, clusters last.
func (s *Service) ComputeAll(ctx context.Context, tenantID int64) error {
	if err := s.ComputeRFM(ctx, tenantID); err != nil {
		return fmt.Errorf("rfm: %w", err)
	}
	if err := s.ComputePreferences(ctx, tenantID); err != nil {
		return fmt.Errorf("preferences: %w", err)
	}
	if err := s.ComputePopularity(ctx, tenantID); err != nil {
		return fmt.Errorf("popularity: %w", err)
	}
	if err := s.ComputeAromaProfiles(ctx, tenantID); err != nil {
		return fmt.Errorf("aroma: %w", err)
	}
	if _, err := s.ComputeClusters(ctx, tenantID); err != nil {
		return fmt.Errorf("clusters: %w", err)
	}
	logger.Info("derived metrics recomputed", "tenant_id", tenantID)
	return nil
}
