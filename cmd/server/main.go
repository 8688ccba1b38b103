package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/segyhp/fee-ledger/internal/config"
	"github.com/segyhp/fee-ledger/internal/database"
	"github.com/segyhp/fee-ledger/internal/handler"
	"github.com/segyhp/fee-ledger/internal/repository"
	"github.com/segyhp/fee-ledger/internal/service"
	"github.com/segyhp/fee-ledger/pkg/logger"
	"github.com/segyhp/fee-ledger/pkg/response"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()
	zap.ReplaceGlobals(zlog)

	// Initialize database
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	db, err := database.Open(ctx, cfg.Database)
	cancel()
	if err != nil {
		zlog.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// development databases are migrated in place
	if cfg.IsDevelopment() {
		mctx, mcancel := context.WithTimeout(context.Background(), 2*time.Minute)
		err := database.Run(mctx, db.DB, "up")
		mcancel()
		if err != nil {
			zlog.Fatal("failed to migrate development database", zap.Error(err))
		}
	}
	if err := database.EnsureSchema(db.DB); err != nil {
		zlog.Fatal("database schema check failed; run the migrate command", zap.Error(err))
	}

	// Initialize Redis
	redisClient := initRedis(cfg)
	defer redisClient.Close()

	// Initialize repositories
	tx := repository.NewTransactor(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	catalogRepo := repository.NewCatalogRepository(db)
	feePlanRepo := repository.NewFeePlanRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)

	// Initialize services
	cache := service.NewRedisStatementCache(redisClient, cfg.Business.StatementCacheTTL, zlog)
	references, err := service.NewSnowflakeReferences(cfg.Business.SnowflakeNode)
	if err != nil {
		zlog.Fatal("failed to create voucher reference generator", zap.Error(err))
	}

	feePlanService := service.NewFeePlanService(enrollmentRepo, catalogRepo, feePlanRepo, paymentRepo, outboxRepo, tx, cache, cfg, zlog)
	paymentLedger := service.NewPaymentLedger(enrollmentRepo, feePlanRepo, paymentRepo, outboxRepo, tx, cache, cfg, zlog)
	enrollmentGateway := service.NewEnrollmentGateway(enrollmentRepo, catalogRepo, feePlanService, tx, zlog)
	statementService := service.NewStatementService(enrollmentRepo, feePlanRepo, paymentRepo, cache, zlog)
	voucherService := service.NewVoucherService(enrollmentRepo, catalogRepo, feePlanRepo, paymentRepo, references)

	feeLedgerHandler := handler.NewFeeLedgerHandler(enrollmentGateway, feePlanService, paymentLedger, statementService, voucherService, zlog)
	healthHandler := handler.NewHealthHandler(db, redisClient, cfg.Health.Timeout, zlog)

	// Setup routes
	router := setupRoutes(feeLedgerHandler, healthHandler, zlog)

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in a goroutine
	go func() {
		zlog.Info("server starting", zap.String("addr", server.Addr), zap.String("env", cfg.Server.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error("server forced to shutdown", zap.Error(err))
	}

	zlog.Info("server exited")
}

func initRedis(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

func setupRoutes(feeLedgerHandler *handler.FeeLedgerHandler, healthHandler *handler.HealthHandler, zlog *zap.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(response.LoggingMiddleware(zlog))
	router.Use(response.JSONMiddleware)
	router.Use(response.CORSMiddleware)

	// Health check
	router.HandleFunc("/health", healthHandler.Health).Methods(http.MethodGet)
	router.HandleFunc("/health/ready", healthHandler.Ready).Methods(http.MethodGet)

	// API routes
	api := router.PathPrefix("/api/v1").Subrouter()
	feeLedgerHandler.Register(api)

	return router
}
