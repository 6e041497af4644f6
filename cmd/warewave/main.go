package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/warewave/warewave/internal/app"
	"github.com/warewave/warewave/internal/inventory"
	"github.com/warewave/warewave/internal/lots"
	"github.com/warewave/warewave/internal/masterdata/locations"
	"github.com/warewave/warewave/internal/masterdata/products"
	"github.com/warewave/warewave/internal/observability"
	"github.com/warewave/warewave/internal/picking/orders"
	"github.com/warewave/warewave/internal/picking/tasks"
	"github.com/warewave/warewave/internal/picking/waves"
	"github.com/warewave/warewave/internal/platform/cache"
	"github.com/warewave/warewave/internal/platform/db"
	"github.com/warewave/warewave/internal/routing"
	"github.com/warewave/warewave/internal/shared"
	"github.com/warewave/warewave/internal/stats"
	"github.com/warewave/warewave/internal/trace"
	"github.com/warewave/warewave/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis connect", slog.Any("error", err))
	}
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	clock := shared.SystemClock{}
	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	productsRepo := products.NewRepository(dbpool)
	productsService := products.NewService(productsRepo)
	productsHandler := products.NewHandler(logger, productsService)

	locationsRepo := locations.NewRepository(dbpool)
	locationsService := locations.NewService(locationsRepo)
	locationsHandler := locations.NewHandler(logger, locationsService)

	inventoryRepo := inventory.NewRepository(dbpool)
	inventoryService := inventory.NewService(inventoryRepo, auditLogger, idempotencyStore, clock)
	inventoryHandler := inventory.NewHandler(logger, inventoryService)

	traceRepo := trace.NewRepository(dbpool)
	traceService := trace.NewService(traceRepo, clock)
	traceHandler := trace.NewHandler(logger, traceService)

	metrics := observability.NewMetrics()

	lotsRepo := lots.NewRepository(dbpool)
	lotsService := lots.NewService(lotsRepo, auditLogger, clock)
	lotsHandler := lots.NewHandler(logger, lotsService)

	wavesRepo := waves.NewRepository(dbpool)
	wavesService := waves.NewService(wavesRepo, auditLogger, clock).WithMetrics(metrics)
	wavesHandler := waves.NewHandler(logger, wavesService)

	ordersRepo := orders.NewRepository(dbpool)
	ordersService := orders.NewService(ordersRepo, wavesService, auditLogger, clock)
	ordersHandler := orders.NewHandler(logger, ordersService)

	tasksRepo := tasks.NewRepository(dbpool)
	tasksService := tasks.NewService(tasksRepo, ordersService, inventoryService, auditLogger, clock).WithMetrics(metrics)
	tasksHandler := tasks.NewHandler(logger, tasksService)

	routingRepo := routing.NewRepository(dbpool)
	routingService := routing.NewService(routingRepo, auditLogger, idempotencyStore, clock).WithMetrics(metrics)
	routingHandler := routing.NewHandler(logger, routingService)

	statsRepo := stats.NewRepository(dbpool)
	statsCache := stats.NewCache(redisClient, cfg.StatsCacheTTL)
	statsService := stats.NewService(statsRepo, statsCache, clock)
	statsHandler := stats.NewHandler(logger, statsService)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, jobsClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Metrics:          metrics,
		ProductsHandler:  productsHandler,
		LocationsHandler: locationsHandler,
		LotsHandler:      lotsHandler,
		InventoryHandler: inventoryHandler,
		TraceHandler:     traceHandler,
		WavesHandler:     wavesHandler,
		OrdersHandler:    ordersHandler,
		TasksHandler:     tasksHandler,
		RoutingHandler:   routingHandler,
		StatsHandler:     statsHandler,
		JobsHandler:      jobsHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
