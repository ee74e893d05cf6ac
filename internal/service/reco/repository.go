package reco

import (
	"context"
	"time"

	"github.com/ignite/vintner-crm/internal/domain"
)

// RunOutputs is everything a completed run persists in one batch.
type RunOutputs struct {
	Recos   []domain.RecoOutput
	Audits  []domain.AuditOutput
	Actions []domain.NextActionOutput
	Summary domain.RunSummary
}

// Repository is the store surface of the run engine.
type Repository interface {
	ListClients(ctx context.Context, tenantID int64) ([]domain.Client, error)
	ListProducts(ctx context.Context, tenantID int64) ([]domain.Product, error)
	ListSales(ctx context.Context, tenantID int64) ([]domain.Sale, error)
	ListContactEvents(ctx context.Context, tenantID int64) ([]domain.ContactEvent, error)

	CreateRun(ctx context.Context, run *domain.RecoRun) error
	// SaveOutputs writes a run's outputs in a single transaction.
	SaveOutputs(ctx context.Context, out *RunOutputs) error
	CompleteRun(ctx context.Context, runID string, finishedAt time.Time) error
	// FailRun marks the run failed and removes any partial outputs
	// atomically, keeping only the trace row.
	FailRun(ctx context.Context, runID string, finishedAt time.Time) error
}
