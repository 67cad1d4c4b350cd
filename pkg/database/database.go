// Package database opens the Postgres pool and applies the embedded schema.
package database

import (
	"context"
	"embed"
	"errors"

	"github.com/Abraxas-365/tenantauth/pkg/config"
	"github.com/Abraxas-365/tenantauth/pkg/errx"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const driverName = "postgres"

// Open connects with the pool settings of cfg and verifies the connection
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	if !cfg.IsConfigured() {
		return nil, errx.New("database is not configured", errx.TypeUnavailable)
	}

	db, err := sqlx.ConnectContext(ctx, driverName, cfg.URL)
	if err != nil {
		return nil, errx.Wrap(err, "failed to connect to database", errx.TypeUnavailable)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return db, nil
}

// Ping opens a throwaway connection to dsn and closes it
func Ping(ctx context.Context, dsn string) error {
	db, err := sqlx.ConnectContext(ctx, driverName, dsn)
	if err != nil {
		return err
	}
	return db.Close()
}

// NewMigrator builds a migrate instance over the embedded migrations
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, errx.Wrap(err, "failed to create migration source", errx.TypeInternal)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, errx.Wrap(err, "failed to create migrator", errx.TypeInternal)
	}
	return m, nil
}

// RunMigrations applies every pending migration. An up-to-date schema is not an error.
func RunMigrations(databaseURL string) error {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errx.Wrap(err, "failed to run migrations", errx.TypeInternal)
	}
	return nil
}
