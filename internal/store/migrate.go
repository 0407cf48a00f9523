package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

// MigrationCommand names a goose operation.
type MigrationCommand string

const (
	MigrateUp     MigrationCommand = "up"
	MigrateDown   MigrationCommand = "down"
	MigrateStatus MigrationCommand = "status"
)

type gooseLogger struct {
	log *zap.SugaredLogger
}

func (l gooseLogger) Printf(format string, v ...interface{}) { l.log.Infof(format, v...) }
func (l gooseLogger) Fatalf(format string, v ...interface{}) { l.log.Fatalf(format, v...) }

// Migrate runs a goose command against the pool using the SQL files in dir.
func Migrate(ctx context.Context, pool *pgxpool.Pool, dir string, cmd MigrationCommand, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	goose.SetLogger(gooseLogger{log: logger.Named("migrate").Sugar()})
	goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	switch cmd {
	case MigrateUp:
		err := goose.UpContext(ctx, db, dir)
		if err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
	case MigrateDown:
		if err := goose.DownContext(ctx, db, dir); err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
	case MigrateStatus:
		if err := goose.StatusContext(ctx, db, dir); err != nil {
			return fmt.Errorf("migrate status: %w", err)
		}
	default:
		return fmt.Errorf("unknown migration command %q", cmd)
	}
	return nil
}

// CreateMigration writes a new empty SQL migration into dir.
func CreateMigration(dir, name string) error {
	if name == "" {
		return fmt.Errorf("migration name is required")
	}
	if err := goose.Create(nil, dir, name, "sql"); err != nil {
		return fmt.Errorf("create migration: %w", err)
	}
	return nil
}
