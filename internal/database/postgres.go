package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/segyhp/fee-ledger/internal/config"
	"github.com/segyhp/fee-ledger/migrations"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
)

// ErrSchemaOutdated is returned when the database is behind the embedded migrations.
var ErrSchemaOutdated = errors.New("database schema is not at the latest migration")

// Open connects to Postgres and applies the pool settings.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := ping(ctx, db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// ping waits for the database to be ready, backing off a little longer after each attempt.
func ping(ctx context.Context, db *sql.DB) error {
	var err error
	maxAttempts := 10
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		if err = db.PingContext(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "pinging database")
		case <-time.After(time.Duration(attempts) * 100 * time.Millisecond):
		}
	}
	return errors.Wrap(err, "database ping timeout")
}

func init() {
	goose.SetBaseFS(migrations.FS)
}

// Run executes a goose command (up, down, status, version, ...) against db.
func Run(ctx context.Context, db *sql.DB, command string, args ...string) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "setting goose dialect")
	}
	if err := goose.RunContext(ctx, command, db, ".", args...); err != nil {
		return errors.Wrapf(err, "goose %s", command)
	}
	return nil
}

// Versions returns the version the database is at and the newest embedded migration.
func Versions(db *sql.DB) (current, latest int64, err error) {
	if err = goose.SetDialect("postgres"); err != nil {
		return 0, 0, errors.Wrap(err, "setting goose dialect")
	}

	current, err = goose.GetDBVersion(db)
	if err != nil {
		return 0, 0, errors.Wrap(err, "reading schema version")
	}

	all, err := goose.CollectMigrations(".", 0, goose.MaxVersion)
	if err != nil {
		return 0, 0, errors.Wrap(err, "collecting migrations")
	}
	last, err := all.Last()
	if err != nil {
		return 0, 0, errors.Wrap(err, "collecting migrations")
	}
	return current, last.Version, nil
}

// EnsureSchema fails when the database has not been migrated to the latest
// embedded version. The server never migrates on its own.
func EnsureSchema(db *sql.DB) error {
	current, latest, err := Versions(db)
	if err != nil {
		return err
	}
	if current < latest {
		return errors.Wrapf(ErrSchemaOutdated, "at version %d, want %d; run the migrate command", current, latest)
	}
	return nil
}
