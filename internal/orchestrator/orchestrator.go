// Package orchestrator drives the per-tenant pipeline end to end:
// ingest, load, metrics, data-quality audit, recommendation run,
// export. Tenants run in parallel under a worker cap; within a tenant
// the stages are strictly sequential, guarded by the tenant writer
// lock.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ignite/vintner-crm/internal/domain"
	"github.com/ignite/vintner-crm/internal/export"
	"github.com/ignite/vintner-crm/internal/ingest"
	"github.com/ignite/vintner-crm/internal/loader"
	"github.com/ignite/vintner-crm/internal/pkg/distlock"
	"github.com/ignite/vintner-crm/internal/pkg/logger"
	"github.com/ignite/vintner-crm/internal/service/reco"
)

// Stage collaborators, accepted as interfaces so outcomes can be
// tested without real storage.
type (
	ingestRunner interface {
		Run(ctx context.Context, tenantID int64, sourceDir string) (*ingest.Report, error)
	}
	tableLoader interface {
		LoadAllCurated(ctx context.Context, tenantID int64, report *ingest.Report) map[string]loader.Result
	}
	qualityAuditor interface {
		Run(ctx context.Context, tenantID int64) (*domain.AuditLog, error)
	}
	metricsService interface {
		ComputeAll(ctx context.Context, tenantID int64) error
	}
	runEngine interface {
		Run(ctx context.Context, tenantID int64, datasetVersion string) (*reco.RunResult, error)
	}
	artifactExporter interface {
		Export(ctx context.Context, tenantID int64, runID string) (*export.Artifacts, error)
	}
)

// Deps wires the pipeline stages. NewLock may be nil to run unlocked
// (single-process deployments).
type Deps struct {
	Ingest   ingestRunner
	Loader   tableLoader
	Quality  qualityAuditor
	Metrics  metricsService
	Engine   runEngine
	Exporter artifactExporter
	NewLock  func(tenantID int64) distlock.DistLock
}

// StageResult is one stage's timing and error, in execution order.
type StageResult struct {
	Stage    string        `json:"stage"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Outcome is the per-tenant pipeline result.
type Outcome struct {
	TenantID       int64                `json:"tenant_id"`
	Success        bool                 `json:"success"`
	RunID          string               `json:"run_id,omitempty"`
	DatasetVersion string               `json:"dataset_version,omitempty"`
	TotalDuration  time.Duration        `json:"total_duration"`
	Stages         []StageResult        `json:"stages"`
	Verification   *loader.Verification `json:"verification,omitempty"`
	Errors         []string             `json:"errors,omitempty"`
}

// TenantJob names one tenant's input directory.
type TenantJob struct {
	TenantID  int64
	SourceDir string
}

// Orchestrator runs pipelines.
type Orchestrator struct {
	deps    Deps
	workers int
}

// New creates an orchestrator with the given tenant parallelism.
func New(deps Deps, workers int) *Orchestrator {
	if workers <= 0 {
		workers = 1
	}
	return &Orchestrator{deps: deps, workers: workers}
}

// RunAll runs every tenant job, at most `workers` tenants at a time.
// One tenant's failure never touches another; outcomes come back in
// job order.
func (o *Orchestrator) RunAll(ctx context.Context, jobs []TenantJob) []Outcome {
	outcomes := make([]Outcome, len(jobs))
	sem := make(chan struct{}, o.workers)
	var wg sync.WaitGroup

	for i, job := range jobs {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, job TenantJob) {
			defer wg.Done()
			defer func() { <-sem }()
			outcomes[i] = *o.RunTenant(ctx, job)
		}(i, job)
	}
	wg.Wait()
	return outcomes
}

// RunTenant runs the full stage sequence for one tenant. The first
// stage failure stops the sequence; everything observed so far stays
// in the outcome.
func (o *Orchestrator) RunTenant(ctx context.Context, job TenantJob) *Outcome {
	out := &Outcome{TenantID: job.TenantID}
	started := time.Now()
	defer func() {
		out.TotalDuration = time.Since(started)
		out.Success = len(out.Errors) == 0
		logger.Info("pipeline finished",
			"tenant_id", out.TenantID, "success", out.Success,
			"run_id", out.RunID, "duration_ms", out.TotalDuration.Milliseconds(),
			"errors", len(out.Errors))
	}()

	stage := func(name string, fn func() error) bool {
		start := time.Now()
		err := fn()
		res := StageResult{Stage: name, Duration: time.Since(start)}
		if err != nil {
			res.Error = err.Error()
			out.Errors = append(out.Errors, fmt.Sprintf("%s: %v", name, err))
		}
		out.Stages = append(out.Stages, res)
		return err == nil
	}

	if o.deps.NewLock != nil {
		lock := o.deps.NewLock(job.TenantID)
		acquired, err := lock.Acquire(ctx)
		if err != nil {
			out.Errors = append(out.Errors, fmt.Sprintf("lock: %v", err))
			return out
		}
		if !acquired {
			out.Errors = append(out.Errors, "lock: tenant writer busy")
			return out
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("lock release failed", "tenant_id", job.TenantID, "error", err.Error())
			}
		}()
	}

	var report *ingest.Report
	if !stage("ingest", func() error {
		var err error
		report, err = o.deps.Ingest.Run(ctx, job.TenantID, job.SourceDir)
		return err
	}) {
		return out
	}
	out.DatasetVersion = report.DatasetVersion

	if !stage("load", func() error {
		results := o.deps.Loader.LoadAllCurated(ctx, job.TenantID, report)
		v := loader.Verify(results)
		out.Verification = &v
		if !v.Success {
			return fmt.Errorf("%d of %d tables failed", v.TotalFailed, v.TotalFailed+v.TotalSuccess)
		}
		return nil
	}) {
		return out
	}

	if !stage("metrics", func() error {
		return o.deps.Metrics.ComputeAll(ctx, job.TenantID)
	}) {
		return out
	}

	// The audit reads derived fields (last purchase date, RFM), so it
	// must follow the metrics stage.
	if !stage("quality_audit", func() error {
		_, err := o.deps.Quality.Run(ctx, job.TenantID)
		return err
	}) {
		return out
	}

	if !stage("reco_run", func() error {
		res, err := o.deps.Engine.Run(ctx, job.TenantID, report.DatasetVersion)
		if res != nil {
			out.RunID = res.RunID
		}
		return err
	}) {
		return out
	}

	stage("export", func() error {
		_, err := o.deps.Exporter.Export(ctx, job.TenantID, out.RunID)
		return err
	})
	return out
}
