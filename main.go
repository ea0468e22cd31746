package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"data-bounty-system/config"
	"data-bounty-system/handlers"
	"data-bounty-system/logger"
	"data-bounty-system/metrics"
	"data-bounty-system/oracle"
	"data-bounty-system/services"
	"data-bounty-system/storage"
	"data-bounty-system/utils"
	"data-bounty-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.Initialize(logger.Configuration{
		Level:   cfg.Log.Level,
		Console: cfg.Log.Console,
		LogFile: cfg.Log.File,
	})
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Store ---
	// With DATABASE_URL this instance is the networked store and also serves
	// /api/store; otherwise probe the remote store once and fall back to SQLite.
	var (
		store       storage.Gateway
		storeServer *storage.GormStore
	)
	if cfg.Database.URL != "" {
		storeServer, err = storage.NewPostgresStore(cfg.Database.URL, log)
		if err != nil {
			log.Fatal("failed to open postgres store", zap.Error(err))
		}
		if cfg.Server.ServiceToken == "" {
			log.Fatal("SERVER_SERVICE_TOKEN is not set, the store API cannot authenticate engine instances")
		}
		store = storeServer
		log.Info("store backend selected", zap.String("backend", "postgres"))
	} else {
		store, _, err = storage.Select(ctx, storage.SelectOptions{
			RemoteURL:    cfg.Store.RemoteURL,
			Token:        cfg.Store.Token,
			Timeout:      cfg.Store.Timeout,
			ProbeTimeout: cfg.Store.ProbeTimeout,
			LocalDSN:     cfg.Store.LocalDSN(),
		}, log)
		if err != nil {
			log.Fatal("failed to select store backend", zap.Error(err))
		}
	}

	// --- Oracle & sampler ---
	gemini := oracle.NewGeminiClient(oracle.GeminiConfig{
		BaseURL:           cfg.Oracle.BaseURL,
		APIKey:            cfg.Oracle.APIKey,
		Model:             cfg.Oracle.Model,
		Timeout:           cfg.Oracle.Timeout,
		RequestsPerMinute: cfg.Oracle.RequestsPerMinute,
		Burst:             cfg.Oracle.Burst,
	}, log)
	if cfg.Oracle.APIKey == "" {
		log.Warn("oracle api key not set, every sampled file will fail the pre-check")
	}

	pool, err := ants.NewPool(cfg.Oracle.Workers, ants.WithPanicHandler(func(p any) {
		log.Error("oracle worker panic", zap.Any("panic", p))
	}))
	if err != nil {
		log.Fatal("failed to create oracle worker pool", zap.Error(err))
	}
	defer pool.Release()

	engineMetrics := metrics.Engine()
	sampler := services.NewBatchSampler(gemini,
		services.WithPool(pool),
		services.WithSamplerLogger(log),
		services.WithSamplerMetrics(engineMetrics),
	)

	// --- Previews ---
	previews := services.NewPreviewBuilder(nil, log)
	if cfg.R2.Enabled() {
		uploader, err := utils.NewR2Uploader(ctx, utils.R2Config{
			AccountID:       cfg.R2.AccountID,
			AccessKeyID:     cfg.R2.AccessKeyID,
			AccessKeySecret: cfg.R2.AccessKeySecret,
			Bucket:          cfg.R2.Bucket,
			CDNBaseURL:      cfg.R2.CDNBaseURL,
		})
		if err != nil {
			log.Fatal("failed to initialize R2 client", zap.Error(err))
		}
		previews = services.NewPreviewBuilder(uploader, log)
		log.Info("image previews stored in R2", zap.String("bucket", cfg.R2.Bucket))
	}

	// --- Services ---
	ledger := services.NewBountyLedger(store, log)
	submissions := services.NewSubmissionService(store, ledger, engineMetrics, log)
	quota := services.NewDailyQuotaTracker(store, log)
	engine := services.NewEngine(ledger, submissions, quota, sampler, previews, log)

	if pruner, ok := store.(storage.StatsPruner); ok {
		janitor := workers.NewStatsJanitor(pruner,
			time.Duration(cfg.Quota.StatsRetentionDays)*24*time.Hour,
			cfg.Quota.JanitorInterval,
			log,
		)
		if err := janitor.Start(ctx); err != nil {
			log.Fatal("failed to start stats janitor", zap.Error(err))
		}
		defer janitor.Stop()
	}

	// --- HTTP ---
	app := fiber.New(fiber.Config{
		BodyLimit:    cfg.Server.BodyLimitMB * 1024 * 1024,
		UnescapePath: true,
		Immutable:    true,
	})

	origins := strings.Split(cfg.Server.AllowedOrigins, ",")
	for i, origin := range origins {
		origins[i] = strings.TrimSpace(origin)
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(origins, ","),
		AllowMethods: "GET,POST,PUT,OPTIONS,HEAD",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Wallet-Address",
		MaxAge:       86400,
	}))

	handlers.SetupMetricsRoutes(app)
	handlers.SetupEngineRoutes(app, engine, log)
	if storeServer != nil {
		handlers.SetupStoreRoutes(app, storeServer, cfg.Server.ServiceToken, log)
	}

	go func() {
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			log.Error("server error", zap.Error(err))
			stop()
		}
	}()

	log.Info("✅ server running",
		zap.String("port", cfg.Server.Port),
		zap.Bool("store_api", storeServer != nil),
		zap.String("origins", strings.Join(origins, ",")),
	)

	<-ctx.Done()
	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Warn("server shutdown error", zap.Error(err))
	}
}
