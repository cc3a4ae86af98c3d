package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/jdholdren/anisync/internal/anisync"
)

const runNamespace = "-run"

// errorSeparator joins the run's error strings into one text column.
// Record separator: it can't show up in a title or an error message.
const errorSeparator = "\x1e"

type runRow struct {
	ID            string    `db:"id"`
	Mode          string    `db:"mode"`
	DryRun        bool      `db:"dry_run"`
	Success       bool      `db:"success"`
	EntriesSynced int       `db:"entries_synced"`
	EntriesFailed int       `db:"entries_failed"`
	Unmatched     int       `db:"unmatched"`
	Errors        string    `db:"errors"`
	StartedAt     time.Time `db:"started_at"`
	FinishedAt    time.Time `db:"finished_at"`
}

func (r runRow) toRun() anisync.Run {
	var errs []string
	if r.Errors != "" {
		errs = strings.Split(r.Errors, errorSeparator)
	}

	return anisync.Run{
		ID:            r.ID,
		Mode:          r.Mode,
		DryRun:        r.DryRun,
		Success:       r.Success,
		EntriesSynced: r.EntriesSynced,
		EntriesFailed: r.EntriesFailed,
		Unmatched:     r.Unmatched,
		Errors:        errs,
		StartedAt:     r.StartedAt,
		FinishedAt:    r.FinishedAt,
	}
}

func (r Repo) InsertRun(ctx context.Context, run anisync.Run) (anisync.Run, error) {
	const q = `INSERT INTO runs (id, mode, dry_run, success, entries_synced, entries_failed, unmatched, errors, started_at, finished_at)
VALUES (:id, :mode, :dry_run, :success, :entries_synced, :entries_failed, :unmatched, :errors, :started_at, :finished_at);`

	row := runRow{
		ID:            fmt.Sprintf("%s%s", uuid.NewString(), runNamespace),
		Mode:          run.Mode,
		DryRun:        run.DryRun,
		Success:       run.Success,
		EntriesSynced: run.EntriesSynced,
		EntriesFailed: run.EntriesFailed,
		Unmatched:     run.Unmatched,
		Errors:        strings.Join(run.Errors, errorSeparator),
		StartedAt:     run.StartedAt.UTC(),
		FinishedAt:    run.FinishedAt.UTC(),
	}
	if _, err := r.db.NamedExecContext(ctx, q, row); err != nil {
		return anisync.Run{}, fmt.Errorf("error inserting run: %s", err)
	}

	return r.run(ctx, row.ID)
}

func (r Repo) run(ctx context.Context, id string) (anisync.Run, error) {
	const q = `SELECT * FROM runs WHERE id = ?;`

	var row runRow
	err := r.db.GetContext(ctx, &row, q, id)
	if errors.Is(err, sql.ErrNoRows) {
		return anisync.Run{}, anisync.ErrNotFound
	}
	if err != nil {
		return anisync.Run{}, fmt.Errorf("error fetching run: %s", err)
	}

	return row.toRun(), nil
}

// RecentRuns lists runs newest-first, optionally filtered to one mode.
func (r Repo) RecentRuns(ctx context.Context, mode string, limit int) ([]anisync.Run, error) {
	if limit <= 0 {
		limit = 20
	}

	builder := sq.Select("*").
		From("runs").
		OrderBy("started_at DESC", "id").
		Limit(uint64(limit))
	if mode != "" {
		builder = builder.Where(sq.Eq{"mode": mode})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("error constructing sql: %s", err)
	}

	var rows []runRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("error fetching runs: %s", err)
	}

	runs := make([]anisync.Run, 0, len(rows))
	for _, row := range rows {
		runs = append(runs, row.toRun())
	}

	return runs, nil
}

// LastRun returns the most recently started run.
func (r Repo) LastRun(ctx context.Context) (anisync.Run, error) {
	const q = `SELECT * FROM runs ORDER BY started_at DESC, id LIMIT 1;`

	var row runRow
	err := r.db.GetContext(ctx, &row, q)
	if errors.Is(err, sql.ErrNoRows) {
		return anisync.Run{}, anisync.ErrNotFound
	}
	if err != nil {
		return anisync.Run{}, fmt.Errorf("error fetching last run: %s", err)
	}

	return row.toRun(), nil
}
