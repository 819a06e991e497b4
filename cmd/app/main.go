package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	rbac "github.com/bohemiyan/orgauthz"
	"github.com/bohemiyan/orgauthz/internal/config"
	"github.com/bohemiyan/orgauthz/internal/db"
	"github.com/bohemiyan/orgauthz/internal/routes"
	"github.com/bohemiyan/orgauthz/zapLogger"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// Initialize zapLogger
	logFile := zapLogger.Init(cfg.LogFile, cfg.LogLevel)
	defer logFile.Close()
	defer zapLogger.Base.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgDB, err := db.NewPostgresDB(cfg)
	if err != nil {
		zapLogger.Log.Fatalf("Failed to initialize PostgreSQL: %v", err)
	}
	zapLogger.Log.Info("Successfully connected to PostgreSQL database")
	defer pgDB.Close()

	var redisDB *redis.Client
	if cfg.CacheBackend == string(rbac.CacheBackendRedis) {
		redisDB, err = db.NewRedisClient(cfg)
		if err != nil {
			zapLogger.Log.Fatalf("Failed to initialize Redis: %v", err)
		}
		zapLogger.Log.Info("Successfully connected to Redis")
		defer redisDB.Close()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Configure RBAC
	rbacConfig := rbac.Config{
		DB:                 pgDB.GormDB,
		CacheTTL:           cfg.CacheTTL,
		CachePrefix:        cfg.CachePrefix,
		CacheBackend:       rbac.CacheBackend(cfg.CacheBackend),
		CacheShards:        cfg.CacheShards,
		SensitivityRefresh: cfg.SensitivityRefresh,
		Logger:             zapLogger.Base,
		Metrics:            rbac.NewMetrics(reg),
		AutoMigrate:        cfg.AutoMigrate,
		EnableAuditLogging: cfg.AuditLogging,
	}
	if redisDB != nil {
		rbacConfig.RedisClient = redisDB
	}

	rbacService, err := rbac.NewRBACService(ctx, rbacConfig)
	if err != nil {
		zapLogger.Log.Fatalf("Failed to initialize RBAC service: %v", err)
	}
	go rbacService.Run(ctx)

	// Set up Fiber app
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	// Middleware
	app.Use(zapLogger.FiberLoggingMiddleware(logFile))

	routes.Setup(app, routes.Deps{
		RBAC:     rbacService,
		DB:       pgDB.GormDB,
		Gatherer: reg,
		Health:   pgDB.Ping,
	})

	go func() {
		<-ctx.Done()
		zapLogger.Log.Info("Shutting down")
		if err := app.Shutdown(); err != nil {
			zapLogger.Log.Errorf("Shutdown failed: %v", err)
		}
	}()

	// Start server
	addr := fmt.Sprintf(":%d", cfg.AppPort)
	zapLogger.Log.Infof("Server started on port %d", cfg.AppPort)
	if err := app.Listen(addr); err != nil {
		zapLogger.Log.Fatalf("Server stopped: %v", err)
	}
}
