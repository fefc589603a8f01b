package storerouter

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

//go:embed schema_sqlite.sql
var sqliteSchema string

// MigratePostgres applies every pending migration from migrations/ using
// golang-migrate, the one-time schema-management tool the teacher does
// not carry but wisbric-nightowl depends on; it drives *database/sql
// specifically for this one startup step; the router's pgxpool
// connections are unaffected.
func MigratePostgres(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("storerouter: open migration conn: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("storerouter: migration driver: %w", err)
	}

	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("storerouter: migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("storerouter: migrate init: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("storerouter: migrate up: %w", err)
	}
	return nil
}

// MigrateStandalone applies the embedded SQLite schema directly.
// golang-migrate's sqlite3 source driver requires mattn/go-sqlite3 (cgo),
// which is incompatible with the pure-Go modernc.org/sqlite driver used
// for the standalone backend, so standalone schema application bypasses
// golang-migrate entirely and just executes the idempotent (CREATE TABLE
// IF NOT EXISTS) embedded schema once at startup.
func MigrateStandalone(ctx context.Context, r *Router) error {
	_, err := RunSimple(ctx, r, false, func(ctx context.Context, q Queryer) (struct{}, error) {
		return struct{}{}, q.Exec(ctx, sqliteSchema)
	})
	return err
}
