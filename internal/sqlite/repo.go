// Package sqlite persists run history for the dashboard.
package sqlite

import (
	"github.com/jmoiron/sqlx"

	"github.com/jdholdren/anisync/internal/anisync"
)

// Ensure Repo implements the history interface
var _ anisync.HistoryRepo = (*Repo)(nil)

type Repo struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) Repo {
	return Repo{db: db}
}
