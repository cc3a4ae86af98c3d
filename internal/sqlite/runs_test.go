package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/jdholdren/anisync/internal/anisync"
	"github.com/jdholdren/anisync/internal/migrations"
)

func newTestRepo(t *testing.T) Repo {
	t.Helper()

	dbx, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { dbx.Close() })

	require.NoError(t, migrations.Run(dbx))
	return New(dbx)
}

func TestInsertAndFetchRun(t *testing.T) {
	repo := newTestRepo(t)
	started := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	inserted, err := repo.InsertRun(context.Background(), anisync.Run{
		Mode:          "bidirectional",
		DryRun:        true,
		Success:       false,
		EntriesSynced: 9,
		EntriesFailed: 2,
		Unmatched:     1,
		Errors:        []string{"MAL ID 100: boom", "Trigun: rejected"},
		StartedAt:     started,
		FinishedAt:    started.Add(30 * time.Second),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, inserted.ID)
	assert.Equal(t, 9, inserted.EntriesSynced)
	assert.Equal(t, []string{"MAL ID 100: boom", "Trigun: rejected"}, inserted.Errors)
	assert.True(t, inserted.DryRun)
}

func TestRecentRuns(t *testing.T) {
	repo := newTestRepo(t)
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	for i, mode := range []string{"bidirectional", "anilist-to-mal", "bidirectional"} {
		_, err := repo.InsertRun(context.Background(), anisync.Run{
			Mode:       mode,
			Success:    true,
			StartedAt:  base.Add(time.Duration(i) * time.Hour),
			FinishedAt: base.Add(time.Duration(i)*time.Hour + time.Minute),
		})
		require.NoError(t, err)
	}

	all, err := repo.RecentRuns(context.Background(), "", 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].StartedAt.After(all[1].StartedAt), "newest first")

	bidi, err := repo.RecentRuns(context.Background(), "bidirectional", 10)
	require.NoError(t, err)
	assert.Len(t, bidi, 2)

	limited, err := repo.RecentRuns(context.Background(), "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestLastRun(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.LastRun(context.Background())
	assert.ErrorIs(t, err, anisync.ErrNotFound)

	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		_, err := repo.InsertRun(context.Background(), anisync.Run{
			Mode:       "bidirectional",
			Success:    true,
			StartedAt:  base.Add(time.Duration(i) * time.Hour),
			FinishedAt: base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	last, err := repo.LastRun(context.Background())
	require.NoError(t, err)
	assert.Equal(t, base.Add(time.Hour), last.StartedAt)
}
