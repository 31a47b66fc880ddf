package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	analyticsapp "github.com/sop/backend/internal/application/analytics"
	planningapp "github.com/sop/backend/internal/application/planning"
	"github.com/sop/backend/internal/domain/pricing"
	"github.com/sop/backend/internal/infrastructure/cache"
	"github.com/sop/backend/internal/infrastructure/config"
	"github.com/sop/backend/internal/infrastructure/logger"
	"github.com/sop/backend/internal/infrastructure/persistence"
	"github.com/sop/backend/internal/infrastructure/scheduler"
	"github.com/sop/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting S&OP Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
	)

	// Initialize OpenTelemetry tracing
	tracerProvider, err := telemetry.NewTracerProvider(context.Background(), telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Environment:       cfg.App.Env,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	// Create GORM logger backed by zap
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	gormLog := logger.NewGormLogger(log, gormLogLevel,
		logger.WithSlowQueryThreshold(cfg.Telemetry.DBSlowQueryThresh))

	// Initialize database connection with custom logger
	db, err := persistence.NewDatabase(&cfg.Database, persistence.WithGormLogger(gormLog))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if stats, err := db.Stats(); err == nil {
		log.Info("Database connected",
			zap.Int("max_open_conns", stats.MaxOpenConnections),
			zap.Int("open_conns", stats.OpenConnections),
		)
	}

	// Register database query tracing when enabled
	if cfg.Telemetry.DBTraceEnabled {
		queryTracing := telemetry.NewQueryTracing(telemetry.QueryTracingConfig{
			Enabled:         true,
			LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
			SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		}, log)
		if err := queryTracing.Install(db.DB); err != nil {
			log.Fatal("Failed to install query tracing", zap.Error(err))
		}
	}

	// Report payload cache: Redis when reachable, in-memory otherwise
	payloadCache, err := cache.NewPayloadCache(cfg.Redis, cache.WithLogger(log))
	if err != nil {
		log.Fatal("Failed to create report payload cache", zap.Error(err))
	}
	defer func() {
		if closer, ok := payloadCache.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				log.Error("Error closing report payload cache", zap.Error(err))
			}
		}
	}()

	// Initialize repositories
	cycleRepo := persistence.NewGormCycleRepository(db.DB)
	forecastRepo := persistence.NewGormForecastRepository(db.DB)
	matrixRepo := persistence.NewGormMatrixRepository(db.DB)
	reportRepo := persistence.NewGormReportRepository(db.DB)
	salesReportingRepo := persistence.NewGormSalesReportingRepository(db.DB)
	forecastReportingRepo := persistence.NewGormForecastReportingRepository(db.DB)
	jobRecords := scheduler.NewJobRecordRepository(db.DB)

	// Pricing resolver reads the matrix directly
	resolver := pricing.NewResolver(matrixRepo)

	// Initialize application services
	cycleService := planningapp.NewCycleService(cycleRepo, forecastRepo)
	forecastService := planningapp.NewForecastService(
		forecastRepo, cycleRepo, resolver, cfg.Planning.SubmitMinMonths, log)
	_ = forecastService
	analyticsService := analyticsapp.NewAnalyticsService(
		salesReportingRepo, forecastReportingRepo, cycleRepo)

	// Report worker pool and the service that feeds it. The worker is built
	// first so the service can enqueue into it; the processor is registered
	// afterwards because generation runs back through the service.
	reportWorker := scheduler.NewReportWorker(scheduler.WorkerConfig{
		Workers:    cfg.Reports.Workers,
		QueueSize:  cfg.Reports.QueueSize,
		JobTimeout: cfg.Reports.JobTimeout,
	}, log)
	reportService := analyticsapp.NewReportService(
		reportRepo, payloadCache, analyticsService, reportWorker, cfg.Reports.MaxAge, log)
	reportWorker.RegisterProcessor(reportService)

	if err := reportWorker.Start(context.Background()); err != nil {
		log.Fatal("Failed to start report worker", zap.Error(err))
	}

	// Lifecycle job runner on the in-process interval trigger
	jobRunner := scheduler.NewJobRunner(scheduler.JobRunnerConfig{
		JobTimeout:       cfg.Scheduler.JobTimeout,
		DeadlineLeadTime: cfg.Scheduler.DeadlineLeadTime,
		ReportRetention:  cfg.Reports.Retention,
	}, cycleService, reportService, jobRecords, log)

	jobCtx, stopJobs := context.WithCancel(context.Background())
	defer stopJobs()
	if cfg.Scheduler.Enabled {
		go runLifecycleJobs(jobCtx, jobRunner, cfg.Scheduler.Interval, log)
		log.Info("Lifecycle job trigger started",
			zap.Duration("interval", cfg.Scheduler.Interval),
		)
	}

	log.Info("S&OP backend ready",
		zap.Int("report_workers", cfg.Reports.Workers),
		zap.Bool("scheduler_enabled", cfg.Scheduler.Enabled),
	)

	// Block until asked to stop
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down...")

	stopJobs()

	// Drain the report queue within the shutdown budget
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := reportWorker.Stop(shutdownCtx); err != nil {
		log.Error("Report worker did not stop cleanly", zap.Error(err))
	}

	log.Info("Shutdown complete")
}

// runLifecycleJobs runs every lifecycle job once per interval until the
// context is cancelled. One immediate pass runs at startup so a restart
// does not postpone overdue work a full interval.
func runLifecycleJobs(ctx context.Context, runner *scheduler.JobRunner, interval time.Duration, log *zap.Logger) {
	if err := runner.RunAll(ctx); err != nil {
		log.Warn("Lifecycle job pass finished with errors", zap.Error(err))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := runner.RunAll(ctx); err != nil {
				log.Warn("Lifecycle job pass finished with errors", zap.Error(err))
			}
		}
	}
}
