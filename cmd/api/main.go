package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/binlookup-engine/internal/binapi"
	"github.com/kursadbilgin/binlookup-engine/internal/config"
	"github.com/kursadbilgin/binlookup-engine/internal/handler"
	"github.com/kursadbilgin/binlookup-engine/internal/infra/postgresql"
	"github.com/kursadbilgin/binlookup-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/binlookup-engine/internal/infra/redis"
	"github.com/kursadbilgin/binlookup-engine/internal/observability"
	"github.com/kursadbilgin/binlookup-engine/internal/queue"
	"github.com/kursadbilgin/binlookup-engine/internal/repository"
	"github.com/kursadbilgin/binlookup-engine/internal/service"
	"github.com/kursadbilgin/binlookup-engine/internal/transport"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	rabbit, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	defer rabbit.Close()

	limiter, err := infraredis.NewIntervalRateLimiter(rdb, cfg.RateLimitInterval())
	if err != nil {
		logger.Fatal("rate limiter initialization failed", zap.Error(err))
	}

	cache, err := infraredis.NewLookupCache(rdb, cfg.LookupCacheTTL(), logger)
	if err != nil {
		logger.Fatal("lookup cache initialization failed", zap.Error(err))
	}

	binClient, err := binapi.NewClient(binapi.Options{
		BaseURL: cfg.BinAPIBaseURL,
		Timeout: cfg.BinAPITimeout(),
	}, limiter, cache, logger)
	if err != nil {
		logger.Fatal("bin api client initialization failed", zap.Error(err))
	}

	importRepo := repository.NewGormImportRepo(db)
	lookupRepo := repository.NewGormLookupRepo(db)
	binDataRepo := repository.NewGormBinDataRepo(db)

	progressSvc, err := service.NewProgressService(importRepo, lookupRepo, logger)
	if err != nil {
		logger.Fatal("progress service initialization failed", zap.Error(err))
	}

	metrics := observability.NewMetrics()
	publisher := queue.NewRabbitMQPublisher(rabbit)

	importSvc, err := service.NewImportService(importRepo, lookupRepo, publisher, progressSvc, metrics, logger)
	if err != nil {
		logger.Fatal("import service initialization failed", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		AppName:      "binlookup-engine",
		ErrorHandler: transport.ErrorHandler(logger),
		BodyLimit:    12 << 20,
	})
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb, binClient)
	if err := handler.RegisterImportRoutes(app, importSvc); err != nil {
		logger.Fatal("import routes registration failed", zap.Error(err))
	}
	if err := handler.RegisterBinDataRoutes(app, binDataRepo); err != nil {
		logger.Fatal("bin data routes registration failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler:           metricsMux(metrics),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics server started", zap.Int("port", cfg.MetricsPort))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped with error", zap.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown failed", zap.Error(err))
		}
		if err := app.Shutdown(); err != nil {
			logger.Error("server shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("binlookup-engine api started", zap.Int("port", cfg.APIPort))
	if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
		logger.Fatal("server stopped with error", zap.Error(err))
	}
}

func metricsMux(metrics *observability.Metrics) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}
