package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/segyhp/fee-ledger/internal/config"
	"github.com/segyhp/fee-ledger/internal/database"
	"github.com/segyhp/fee-ledger/internal/repository"
	"github.com/segyhp/fee-ledger/internal/service"
	"github.com/segyhp/fee-ledger/pkg/logger"
)

const jobTimeout = 2 * time.Minute

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

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	db, err := database.Open(ctx, cfg.Database)
	cancel()
	if err != nil {
		zlog.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := database.EnsureSchema(db.DB); err != nil {
		zlog.Fatal("database schema check failed; run the migrate command", zap.Error(err))
	}

	notifications := service.NewNotificationService(
		repository.NewOutboxRepository(db),
		repository.NewFeePlanRepository(db),
		repository.NewTransactor(db),
		service.NewLogNotifier(zlog.Named("notifier")),
		cfg,
		zlog,
	)

	// Initialize cron scheduler
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLocation(cfg.GetSchedulerLocation()),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	if err := setupCronJobs(c, cfg, notifications, zlog); err != nil {
		zlog.Fatal("failed to schedule jobs", zap.Error(err))
	}

	// Start the scheduler
	c.Start()
	zlog.Info("scheduler started",
		zap.String("outbox_cron", cfg.Scheduler.OutboxCron),
		zap.String("reminder_cron", cfg.Scheduler.ReminderCron),
	)

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("shutting down scheduler")
	<-c.Stop().Done()
	zlog.Info("scheduler stopped")
}

func setupCronJobs(c *cron.Cron, cfg *config.Config, notifications *service.NotificationService, zlog *zap.Logger) error {
	// deliver pending outbox events to the notifier
	if _, err := c.AddFunc(cfg.Scheduler.OutboxCron, func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		delivered, err := notifications.DispatchPending(ctx)
		if err != nil {
			zlog.Error("outbox dispatch failed", zap.Error(err))
			return
		}
		if delivered > 0 {
			zlog.Info("outbox dispatched", zap.Int("delivered", delivered))
		}
	}); err != nil {
		return err
	}

	// remind students of fee details falling due soon
	if _, err := c.AddFunc(cfg.Scheduler.ReminderCron, func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		if _, err := notifications.EnqueueDueReminders(ctx); err != nil {
			zlog.Error("due reminder job failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	return nil
}
