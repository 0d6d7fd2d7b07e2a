// Package app is the composition root: it wires configuration, telemetry,
// storage, and every job handler together and runs one of three service
// modes, grounded on wisbric-nightowl's internal/app/app.go Run-dispatch
// shape.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/cloudledger/jobcore/internal/cache"
	"github.com/cloudledger/jobcore/internal/config"
	"github.com/cloudledger/jobcore/internal/handler"
	"github.com/cloudledger/jobcore/internal/httpapi"
	"github.com/cloudledger/jobcore/internal/jobstore"
	"github.com/cloudledger/jobcore/internal/jobstore/migrations"
	"github.com/cloudledger/jobcore/internal/notify"
	"github.com/cloudledger/jobcore/internal/processor"
	"github.com/cloudledger/jobcore/internal/ratelimit"
	"github.com/cloudledger/jobcore/internal/scheduler"
	"github.com/cloudledger/jobcore/internal/storage/pg"
	"github.com/cloudledger/jobcore/internal/storage/rds"
	"github.com/cloudledger/jobcore/internal/telemetry"
	"github.com/cloudledger/jobcore/internal/tenant"
	"github.com/cloudledger/jobcore/internal/zombiescan"
	"github.com/cloudledger/jobcore/internal/zombiescan/zstypes"
)

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Run builds every dependency and runs cfg.ServiceMode until ctx is
// cancelled.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(telemetry.SentryConfig{
		DSN:      cfg.SentryDSN,
		MinLevel: logLevel(cfg.LogLevel),
	})
	slog.SetDefault(logger)

	tp := telemetry.NewTracerProvider()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx, tp); err != nil {
			logger.ErrorContext(shutdownCtx, "tracer shutdown failed", "error", err)
		}
	}()

	pool, err := pg.Open(ctx, cfg.DatabaseURL,
		pg.WithMigrations(migrations.FS),
		pg.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer pg.Shutdown(pool)(context.Background())

	if cfg.ServiceMode == "migrate" {
		logger.InfoContext(ctx, "migrations applied, exiting")
		return nil
	}

	var redisClient redis.UniversalClient
	if cfg.RedisURL != "" {
		redisClient, err = rds.Open(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("open redis: %w", err)
		}
	}

	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)
	rlsMetrics := &tenant.RLSMetrics{Missing: metrics.RLSContextMissing}

	var tierCache cache.Cache[bool] = cache.NewMemory[bool](cache.WithEvictionCounter(metrics.CacheEvictions))
	if redisClient != nil {
		tierCache = cache.NewRedis[bool](redisClient, nil, cache.WithPrefix("jobcore:tier:"))
	}
	tierGate := tenant.NewTierGate(pool, tierCache)

	limiterWindow := time.Hour
	limiter := ratelimit.New(redisClient, ratelimit.DefaultMaxActions, limiterWindow)

	notifier := notify.New(cfg.SlackBotToken, cfg.SlackAlertChannel, logger)

	store := jobstore.New(pool, metrics.JobsEnqueued)
	conns := newConnectionDirectory(pool)

	registry := buildRegistry(store, conns, tierGate, limiter, notifier, metrics, logger, cfg)

	proc := processor.New(store, pool, registry, metrics, telemetry.Tracer(), logger, rlsMetrics)

	sched := scheduler.New(pool, logger, &scheduler.Metrics{
		DeadlockDetected: metrics.SchedulerDeadlockDetected,
		CohortDuration:   metrics.SchedulerJobDuration,
	})
	runner := scheduler.NewRunner(sched, logger)
	if err := runner.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer runner.Stop()

	checks := map[string]httpapi.HealthCheck{
		"database": func(ctx context.Context) error { return pool.Ping(ctx) },
	}
	if redisClient != nil {
		checks["redis"] = rds.Healthcheck(redisClient)
	}

	switch cfg.ServiceMode {
	case "api":
		srv := httpapi.NewServer(store, proc, logger, reg, cfg.InternalProcessSecret, cfg.MaxJobsPerBatch, checks)
		httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv}

		errCh := make(chan error, 1)
		go func() {
			logger.InfoContext(ctx, "http server listening", "addr", cfg.HTTPAddr)
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()

		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		case err := <-errCh:
			return err
		}

	case "worker":
		return runWorkerLoop(ctx, proc, cfg, logger)

	default:
		return fmt.Errorf("unknown SERVICE_MODE %q", cfg.ServiceMode)
	}
}

// runWorkerLoop polls for due jobs on a fixed interval until ctx is
// cancelled, mirroring the teacher's own background-poller goroutine shape.
func runWorkerLoop(ctx context.Context, proc *processor.Processor, cfg *config.Config, logger *slog.Logger) error {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			result := proc.ProcessDueBatch(ctx, cfg.MaxJobsPerBatch)
			if result.BatchError != nil {
				logger.ErrorContext(ctx, "batch processing failed", "error", result.BatchError)
			}
		}
	}
}

// buildRegistry constructs every handler and binds it to its job type
// (SPEC_FULL.md §4.4).
func buildRegistry(store *jobstore.Store, conns *connectionDirectory, tierGate *tenant.TierGate, limiter *ratelimit.Limiter, notifier *notify.Notifier, metrics *telemetry.Metrics, logger *slog.Logger, cfg *config.Config) *handler.Registry {
	reg := handler.NewRegistry()

	enqueueZombieAnalysis := func(ctx context.Context, tenantID uuid.UUID, dedupKey string) error {
		_, err := store.Enqueue(ctx, jobstore.EnqueueParams{
			Type:     jobstore.TypeZombieAnalysis,
			TenantID: &tenantID,
			DedupKey: &dedupKey,
		})
		return err
	}

	orch := zombiescan.NewOrchestrator(conns, tierGate, enqueueZombieAnalysis, notifier,
		time.Duration(cfg.ZombiePluginTimeoutSeconds)*time.Second)
	orch.ScanTimeouts = metrics.ScanTimeouts.WithLabelValues("overall")

	reg.Register(jobstore.TypeZombieScan, handler.NewZombieScanHandler(orch, checkpointZombieScan(store)))
	reg.Register(jobstore.TypeFinOpsAnalysis, handler.NewFinOpsHandler(nil))
	reg.Register(jobstore.TypeCostIngestion, handler.NewCostIngestionHandler(connectionRefDirectory{conns}, cloudAdapterFactory))
	reg.Register(jobstore.TypeRecurringBilling, handler.NewBillingHandler(declinedBillingCollaborator{}))
	reg.Register(jobstore.TypeRemediation, handler.NewRemediationHandler(nil, limiter))
	reg.Register(jobstore.TypeWebhookRetry, handler.NewWebhookRetryHandler(nil))
	reg.Register(jobstore.TypeNotification, handler.NewNotificationHandler(notifier))

	return reg
}

// checkpointZombieScan persists partial zombie_scan results into the job's
// payload so a retried attempt can resume from the last completed category
// (§4.6 step 8).
func checkpointZombieScan(store *jobstore.Store) func(ctx context.Context, jobID string, categoryKey string, items []zstypes.Item) error {
	return func(ctx context.Context, jobID string, categoryKey string, items []zstypes.Item) error {
		id, err := uuid.Parse(jobID)
		if err != nil {
			return err
		}
		data, err := json.Marshal(items)
		if err != nil {
			return err
		}
		return store.CheckpointPayload(ctx, id, categoryKey, data)
	}
}
