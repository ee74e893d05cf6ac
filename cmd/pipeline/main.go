// The pipeline CLI: one end-to-end run per tenant, printed as JSON
// with per-stage timings. With -dispatch, eligible clients of a gated
// run are contacted afterwards (dry-run unless live send is enabled).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/vintner-crm/internal/config"
	"github.com/ignite/vintner-crm/internal/domain"
	"github.com/ignite/vintner-crm/internal/export"
	"github.com/ignite/vintner-crm/internal/ingest"
	"github.com/ignite/vintner-crm/internal/loader"
	"github.com/ignite/vintner-crm/internal/orchestrator"
	"github.com/ignite/vintner-crm/internal/pkg/distlock"
	"github.com/ignite/vintner-crm/internal/pkg/logger"
	"github.com/ignite/vintner-crm/internal/repository/postgres"
	"github.com/ignite/vintner-crm/internal/service/audit"
	"github.com/ignite/vintner-crm/internal/service/dispatch"
	"github.com/ignite/vintner-crm/internal/service/metrics"
	"github.com/ignite/vintner-crm/internal/service/reco"
	"github.com/ignite/vintner-crm/internal/service/scenario"
)

func main() {
	configPath := flag.String("config", "config.yaml", "configuration file")
	tenants := flag.String("tenants", "", "comma-separated tenant ids (required)")
	source := flag.String("source", "", "source CSV directory (required); with multiple tenants, each reads {source}/{tenant_id}")
	workers := flag.Int("workers", 2, "tenants processed in parallel")
	runDispatch := flag.Bool("dispatch", false, "dispatch eligible clients after a successful, gated run")
	flag.Parse()

	if *tenants == "" || *source == "" {
		flag.Usage()
		os.Exit(2)
	}
	tenantIDs, err := parseTenants(*tenants)
	if err != nil {
		log.Fatalf("Invalid -tenants: %v", err)
	}

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	logger.SetRedactPII(cfg.Logging.RedactPII)

	db, err := postgres.Open(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	store := postgres.NewStore(db)

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis unreachable, falling back to advisory locks", "addr", cfg.Redis.Addr, "error", err.Error())
			redisClient = nil
		}
	}

	var uploader export.Uploader
	if cfg.Export.S3Enabled {
		up, err := export.NewS3Uploader(context.Background(), cfg.Export.S3Region, cfg.Export.S3Bucket, "")
		if err != nil {
			log.Fatalf("Failed to initialize S3 export mirror: %v", err)
		}
		uploader = up
	}

	orch := orchestrator.New(orchestrator.Deps{
		Ingest:  ingest.NewRunner(cfg.Data.Dir),
		Loader:  loader.New(store),
		Quality: audit.NewQualityService(store),
		Metrics: metrics.New(store, metrics.Config{
			BudgetQuantileLow:  cfg.Reco.BudgetQuantileLow,
			BudgetQuantileHigh: cfg.Reco.BudgetQuantileHigh,
			KMeansClusters:     cfg.Reco.KMeansClusters,
			KMeansSeed:         cfg.Reco.KMeansSeed,
		}),
		Engine:   reco.New(store, engineConfig(cfg)),
		Exporter: export.New(store, cfg.Export.Dir, uploader),
		NewLock: func(tenantID int64) distlock.DistLock {
			return distlock.NewLock(redisClient, db, distlock.TenantKey(tenantID), cfg.Reco.RunTimeout())
		},
	}, *workers)

	jobs := make([]orchestrator.TenantJob, len(tenantIDs))
	for i, id := range tenantIDs {
		dir := *source
		if len(tenantIDs) > 1 {
			dir = filepath.Join(*source, strconv.FormatInt(id, 10))
		}
		jobs[i] = orchestrator.TenantJob{TenantID: id, SourceDir: dir}
	}

	ctx := context.Background()
	outcomes := orch.RunAll(ctx, jobs)

	failed := 0
	for i := range outcomes {
		out := &outcomes[i]
		if out.Success && *runDispatch && out.RunID != "" {
			dispatchRun(ctx, cfg, store, out)
		}
		if !out.Success {
			failed++
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(outcomes); err != nil {
		log.Fatalf("Encode outcomes: %v", err)
	}
	if failed > 0 {
		fmt.Fprintf(os.Stderr, "%d of %d tenant(s) failed\n", failed, len(outcomes))
		os.Exit(1)
	}
}

func parseTenants(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("bad tenant id %q", part)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no tenant ids")
	}
	return ids, nil
}

// dispatchRun contacts the run's eligible clients. A run rejected by
// the export gate is reported, not fatal; other tenants still print.
func dispatchRun(ctx context.Context, cfg *config.Config, store *postgres.Store, out *orchestrator.Outcome) {
	var sender dispatch.Sender
	if cfg.Dispatch.LiveSend {
		s, err := dispatch.NewSESSender(ctx, cfg.Dispatch.SESRegion,
			cfg.Dispatch.SESAccessKey, cfg.Dispatch.SESSecretKey, cfg.Dispatch.FromEmail)
		if err != nil {
			out.Success = false
			out.Errors = append(out.Errors, fmt.Sprintf("dispatch: %v", err))
			return
		}
		sender = s
	}
	svc := dispatch.New(store, sender, dispatch.Config{
		LiveSend:  cfg.Dispatch.LiveSend,
		BatchSize: cfg.Dispatch.BatchMin,
		FromEmail: cfg.Dispatch.FromEmail,
		Channel:   cfg.Dispatch.Channel,
	})
	res, err := svc.Dispatch(ctx, out.TenantID, out.RunID)
	if err != nil {
		out.Success = false
		out.Errors = append(out.Errors, fmt.Sprintf("dispatch: %v", err))
		return
	}
	logger.Info("dispatch finished", "tenant_id", out.TenantID, "run_id", res.RunID,
		"dry_run", res.DryRun, "sent", res.Sent, "failed", res.Failed, "skipped", res.Skipped)
}

// engineConfig maps the file configuration onto the run engine's
// parameters. The "default" tenant key supplies the global scenario
// weight override.
func engineConfig(cfg *config.Config) reco.Config {
	ec := reco.Config{
		TopN:              cfg.Reco.TopN,
		SilenceWindowDays: cfg.Reco.SilenceWindowDays,
		Workers:           cfg.Reco.ClientWorkers,
		Timeout:           cfg.Reco.RunTimeout(),
	}
	if m, ok := cfg.Reco.ScenarioWeights["default"]; ok {
		w := scenario.Weights{}
		for scen, feats := range m {
			fw := make(map[string]float64, len(feats))
			for k, v := range feats {
				fw[k] = v
			}
			w[domain.Scenario(scen)] = fw
		}
		ec.ScenarioWeights = w
	}
	if len(cfg.Reco.ScoringWeights) > 0 {
		sc := reco.DefaultScoring()
		for scen, terms := range cfg.Reco.ScoringWeights {
			sc[domain.Scenario(scen)] = reco.ScoringWeights{
				Popularity: terms["popularity"],
				PriceFit:   terms["price_fit"],
				FamilyFit:  terms["family_fit"],
				RFMNorm:    terms["rfm_norm"],
			}
		}
		ec.Scoring = sc
	}
	return ec
}
