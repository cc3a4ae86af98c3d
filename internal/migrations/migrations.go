// Package migrations owns the run-history schema, embedded so the binary
// can bring any database file up to date on startup.
package migrations

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
)

//go:embed *.sql
var schemaFS embed.FS

// Run applies any pending migrations to the history database.
func Run(dbx *sqlx.DB) error {
	src, err := iofs.New(schemaFS, ".")
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}
	driver, err := sqlite.WithInstance(dbx.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("preparing sqlite for migration: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	slog.Debug("history schema up to date")

	return nil
}
