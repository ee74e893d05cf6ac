// The HTTP server: full pipeline and recommendation triggers behind
// the tenant-scoped API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/vintner-crm/internal/api"
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
	"github.com/ignite/vintner-crm/internal/service/metrics"
	"github.com/ignite/vintner-crm/internal/service/reco"
	"github.com/ignite/vintner-crm/internal/service/scenario"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
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

	runner := ingest.NewRunner(cfg.Data.Dir)
	load := loader.New(store)
	quality := audit.NewQualityService(store)
	metricsSvc := metrics.New(store, metrics.Config{
		BudgetQuantileLow:  cfg.Reco.BudgetQuantileLow,
		BudgetQuantileHigh: cfg.Reco.BudgetQuantileHigh,
		KMeansClusters:     cfg.Reco.KMeansClusters,
		KMeansSeed:         cfg.Reco.KMeansSeed,
	})
	engine := reco.New(store, engineConfig(cfg))

	var uploader export.Uploader
	if cfg.Export.S3Enabled {
		up, err := export.NewS3Uploader(context.Background(), cfg.Export.S3Region, cfg.Export.S3Bucket, "")
		if err != nil {
			log.Fatalf("Failed to initialize S3 export mirror: %v", err)
		}
		uploader = up
	}
	exporter := export.New(store, cfg.Export.Dir, uploader)

	orch := orchestrator.New(orchestrator.Deps{
		Ingest:   runner,
		Loader:   load,
		Quality:  quality,
		Metrics:  metricsSvc,
		Engine:   engine,
		Exporter: exporter,
		NewLock: func(tenantID int64) distlock.DistLock {
			return distlock.NewLock(redisClient, db, distlock.TenantKey(tenantID), cfg.Reco.RunTimeout())
		},
	}, 1)

	srv := api.NewServer(api.Deps{
		Ingest:   runner,
		Pipeline: orch,
		Engine:   engine,
		Runs:     store,
		Exporter: exporter,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		log.Fatalf("Server failed: %v", err)
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Shutdown: %v", err)
	}
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
