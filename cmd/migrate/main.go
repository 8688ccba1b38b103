package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/segyhp/fee-ledger/internal/config"
	"github.com/segyhp/fee-ledger/internal/database"
	"github.com/segyhp/fee-ledger/pkg/logger"
)

const usage = `Usage: migrate <command> [args]

Commands:
  up            apply all pending migrations
  up-to V       apply migrations up to version V
  down          roll back the latest migration
  down-to V     roll back to version V
  status        print the state of every migration
  version       print the current schema version
`

func main() {
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}
	command, args := flag.Arg(0), flag.Args()[1:]

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		zlog.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := database.Run(ctx, db.DB, command, args...); err != nil {
		zlog.Fatal("migration failed", zap.String("command", command), zap.Error(err))
	}

	current, latest, err := database.Versions(db.DB)
	if err != nil {
		zlog.Fatal("failed to read schema version", zap.Error(err))
	}
	zlog.Info("migration finished",
		zap.String("command", command),
		zap.Int64("version", current),
		zap.Int64("latest", latest),
	)
}
