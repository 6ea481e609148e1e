package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"incidentboard/config"
	"incidentboard/core/utils"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func gooseDialect(cfg *config.AppConfig) goose.Dialect {
	if cfg.IsPostgres() {
		return goose.DialectPostgres
	}
	return goose.DialectSQLite3
}

// ApplyMigrations brings the schema up to the latest embedded version.
func ApplyMigrations(ctx context.Context, cfg *config.AppConfig, db *sql.DB, logger *utils.Logger) error {
	provider, err := newMigrationProvider(cfg, db)
	if err != nil {
		return err
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	if logger != nil {
		for _, res := range results {
			logger.Printf("migration applied: %s (%s)", res.Source.Path, res.Duration)
		}
	}
	return nil
}

// SchemaVersion reports the current goose version of the database.
func SchemaVersion(ctx context.Context, cfg *config.AppConfig, db *sql.DB) (int64, error) {
	provider, err := newMigrationProvider(cfg, db)
	if err != nil {
		return 0, err
	}
	return provider.GetDBVersion(ctx)
}

func newMigrationProvider(cfg *config.AppConfig, db *sql.DB) (*goose.Provider, error) {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("migrations fs: %w", err)
	}
	provider, err := goose.NewProvider(gooseDialect(cfg), db, sub)
	if err != nil {
		return nil, fmt.Errorf("migration provider: %w", err)
	}
	return provider, nil
}
