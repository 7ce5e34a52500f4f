package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/clinic-sheet-sync/cmd/mainconfig"
	"github.com/wolfman30/clinic-sheet-sync/internal/api/router"
	"github.com/wolfman30/clinic-sheet-sync/internal/app/bootstrap"
	appconfig "github.com/wolfman30/clinic-sheet-sync/internal/config"
	"github.com/wolfman30/clinic-sheet-sync/internal/dispatch"
	"github.com/wolfman30/clinic-sheet-sync/internal/health"
	httpmiddleware "github.com/wolfman30/clinic-sheet-sync/internal/http/middleware"
	"github.com/wolfman30/clinic-sheet-sync/internal/notify"
	"github.com/wolfman30/clinic-sheet-sync/internal/observability/metrics"
	"github.com/wolfman30/clinic-sheet-sync/internal/syncrun"
	"github.com/wolfman30/clinic-sheet-sync/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.NewWithFormat(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting clinic sheet sync", "env", cfg.Env, "port", cfg.Port)

	if err := run(cfg, logger); err != nil {
		logger.Error("sheet sync exited", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(cfg *appconfig.Config, logger *logging.Logger) error {
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tabs, err := appconfig.LoadTabs(cfg.TabsFile)
	if err != nil {
		return err
	}
	logger.Info("tabs loaded", "file", cfg.TabsFile, "count", len(tabs))

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	stores := bootstrap.BuildStores(pool)

	syncMetrics := metrics.NewSyncMetrics(prometheus.DefaultRegisterer)
	pipeline, err := bootstrap.BuildPipeline(ctx, bootstrap.PipelineConfig{
		App:     cfg,
		Stores:  stores,
		Tabs:    tabs,
		Logger:  logger,
		Metrics: syncMetrics,
	})
	if err != nil {
		return err
	}
	if err := pipeline.Runtime.EnsureFresh(ctx); err != nil {
		logger.Warn("initial credential refresh failed, retrying per job", "error", err)
	}

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("load AWS config: %w", err)
	}
	var sqsClient dispatch.SQSAPI
	if cfg.SyncQueueURL != "" && !cfg.UseMemoryQueue {
		sqsClient = sqs.NewFromConfig(awsCfg)
	}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer redisClient.Close()
	}
	jobs, err := bootstrap.BuildDispatch(cfg, pipeline.Handler, sqsClient, bootstrap.BuildLock(redisClient, logger), logger)
	if err != nil {
		return err
	}
	jobs.Worker.Start(ctx)

	if cfg.AutoSyncEnabled {
		auto, err := syncrun.NewAutoSync(syncrun.AutoSyncConfig{
			Syncer:   pipeline.Orchestrator,
			Runtime:  pipeline.Runtime,
			Tabs:     tabs,
			Interval: cfg.SyncInterval,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		go auto.Start(ctx)
	}

	alerter := notify.NewAlerter(mainconfig.NewEmailSender(&awsCfg, cfg, logger), cfg.AlertEmails, cfg.AlertInterval, logger)
	checker, err := health.NewChecker(health.Config{
		Ledger:   stores.Ledger,
		Alerts:   alerter,
		MaxGap:   cfg.MaxSyncGap,
		Interval: cfg.HealthCheckInterval,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	go checker.Start(ctx)

	routerCfg := &router.Config{
		Logger:         logger,
		Attempts:       stores.Ledger,
		Health:         checker,
		Tabs:           tabs,
		Runtime:        pipeline.Runtime,
		MetricsHandler: promhttp.Handler(),
	}
	if cfg.OpsToken != "" {
		routerCfg.Dispatcher = jobs.Dispatcher
		routerCfg.OpsToken = cfg.OpsToken
		routerCfg.Triggers = httpmiddleware.NewTriggerLimiter(float64(cfg.TriggerRatePerMinute)/60, cfg.TriggerBurst)
	} else {
		logger.Info("OPS_TOKEN not set, manual trigger endpoints disabled")
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router.New(routerCfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	// The worker finishes its current job before exiting.
	cancel()
	jobs.Worker.Wait()
	return nil
}
