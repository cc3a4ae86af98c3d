package anisync

import (
	"context"
	"time"
)

// Run is one recorded reconciliation run, for the dashboard's history
// view. The engine itself knows nothing about this: recording runs is the
// result consumer's job.
type Run struct {
	ID            string
	Mode          string
	DryRun        bool
	Success       bool
	EntriesSynced int
	EntriesFailed int
	Unmatched     int
	Errors        []string
	StartedAt     time.Time
	FinishedAt    time.Time
}

// HistoryRepo persists and queries past runs.
type HistoryRepo interface {
	InsertRun(ctx context.Context, run Run) (Run, error)
	RecentRuns(ctx context.Context, mode string, limit int) ([]Run, error)
	LastRun(ctx context.Context) (Run, error)
}
