// Command worker runs the pipeline on a cron schedule and exposes health
// and metrics endpoints.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/robfig/cron/v3"

	"research-pipeline/internal/config"
	pgRepo "research-pipeline/internal/infra/adapter/persistence/postgres"
	"research-pipeline/internal/infra/db"
	"research-pipeline/internal/infra/feedsource"
	"research-pipeline/internal/infra/lock"
	workerPkg "research-pipeline/internal/infra/worker"
	"research-pipeline/internal/observability/logging"
	"research-pipeline/internal/usecase/notify"
	"research-pipeline/internal/usecase/pipeline"
)

func main() {
	logger := logging.NewLogger()
	slog.SetDefault(logger)

	database := initDatabase(logger)
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	workerConfig := workerPkg.LoadConfigFromEnv(logger)
	logger.Info("worker configuration loaded",
		slog.String("cron_schedule", workerConfig.CronSchedule),
		slog.String("timezone", workerConfig.Timezone),
		slog.Duration("run_timeout", workerConfig.RunTimeout),
		slog.Int("health_port", workerConfig.HealthPort))

	fileCfg, err := config.Load(configDir())
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	notifyService, notifyCleanup := buildNotifyService(logger, fileCfg)
	defer notifyCleanup()

	startMetricsServer(ctx, logger, notifyService)

	healthServer := workerPkg.NewHealthServer(fmt.Sprintf(":%d", workerConfig.HealthPort), logger)
	go func() {
		if err := healthServer.Start(ctx); err != nil && err != http.ErrServerClosed {
			logger.Error("health server failed", slog.Any("error", err))
		}
	}()

	svc := buildPipelineService(logger, database, fileCfg, notifyService)
	workerMetrics := workerPkg.NewMetrics()

	runCronWorker(ctx, logger, svc, workerConfig, workerMetrics, healthServer)
}

func initDatabase(logger *slog.Logger) *sql.DB {
	database := db.Open()
	if err := db.MigrateUp(database); err != nil {
		logger.Error("migration failed", slog.Any("error", err))
		os.Exit(1)
	}
	return database
}

func buildPipelineService(logger *slog.Logger, database *sql.DB, fileCfg *config.Config, notifyService notify.Service) *pipeline.Service {
	httpClient := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	feedRepo := pgRepo.NewFeedRepo(database)
	processedRepo := pgRepo.NewProcessedRepo(database)
	collector := feedsource.NewCollector(feedRepo, processedRepo, feedsource.NewRSSFetcher(httpClient), logger)

	return pipeline.NewService(pipeline.Deps{
		Processed:    processedRepo,
		Retries:      pgRepo.NewRetryRepo(database),
		Runs:         pgRepo.NewRunRepo(database),
		Feeds:        feedRepo,
		Source:       collector,
		Processor:    buildProcessor(logger, fileCfg),
		Lock:         lock.New(lockPath()),
		Notifier:     notifyService,
		Logger:       logger,
		BatchSize:    fileCfg.Processing.EvaluateBatchSize,
		BatchTimeout: fileCfg.Processing.EvaluateBatchTimeout,
	})
}

func configDir() string {
	if dir := os.Getenv("PIPELINE_CONFIG_DIR"); dir != "" {
		return dir
	}
	return "config"
}

func lockPath() string {
	if path := os.Getenv("PIPELINE_LOCK_FILE"); path != "" {
		return path
	}
	return "/tmp/research-pipeline.lock"
}

// runCronWorker installs the schedule and blocks until shutdown.
func runCronWorker(ctx context.Context, logger *slog.Logger, svc *pipeline.Service, cfg workerPkg.Config, metrics *workerPkg.Metrics, healthServer *workerPkg.HealthServer) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Error("invalid timezone, using UTC",
			slog.String("timezone", cfg.Timezone),
			slog.Any("error", err))
		loc = time.UTC
	}

	c := cron.New(cron.WithLocation(loc))
	_, err = c.AddFunc(cfg.CronSchedule, func() {
		runScheduledJob(logger, svc, cfg, metrics)
	})
	if err != nil {
		logger.Error("failed to add cron job", slog.Any("error", err))
		os.Exit(1)
	}
	c.Start()

	healthServer.SetReady(true)
	logger.Info("worker started",
		slog.String("schedule", cfg.CronSchedule),
		slog.String("timezone", cfg.Timezone))

	<-ctx.Done()

	healthServer.SetReady(false)
	logger.Info("shutting down, waiting for running job")
	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(cfg.RunTimeout):
		logger.Warn("running job did not finish before shutdown deadline")
	}
	logger.Info("worker stopped")
}

// runScheduledJob executes one pipeline run under the configured timeout.
func runScheduledJob(logger *slog.Logger, svc *pipeline.Service, cfg workerPkg.Config, metrics *workerPkg.Metrics) {
	start := time.Now()
	metrics.RecordJobRun("started")
	logger.Info("scheduled run started")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RunTimeout)
	defer cancel()

	result, err := svc.Run(ctx, pipeline.Options{})
	duration := time.Since(start)
	metrics.RecordJobDuration(duration)

	if err != nil {
		metrics.RecordJobRun("failure")
		logger.Error("scheduled run failed",
			slog.Duration("duration", duration),
			slog.Any("error", err))
		return
	}

	metrics.RecordJobRun("success")
	metrics.RecordLastSuccess()
	logger.Info("scheduled run completed",
		slog.Int("processed", result.Processed),
		slog.Int("failed", result.Failed),
		slog.Int("retried", result.Retried),
		slog.Int("permanent_failures", result.PermanentFailures),
		slog.Duration("duration", duration))
}
