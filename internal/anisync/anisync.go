// Package anisync holds the canonical entry model shared by both remote
// services, along with the contracts the sync engine depends on.
package anisync

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a record doesn't exist on the remote.
	ErrNotFound = errors.New("resource not found")
	// ErrUnauthorized is returned when a remote rejects our token.
	ErrUnauthorized = errors.New("authentication failed")
)

// Status is the canonical watch status shared by both services.
type Status string

const (
	StatusWatching    Status = "watching"
	StatusCompleted   Status = "completed"
	StatusOnHold      Status = "on_hold"
	StatusDropped     Status = "dropped"
	StatusPlanToWatch Status = "plan_to_watch"
)

// Valid reports whether s is one of the five canonical statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusWatching, StatusCompleted, StatusOnHold, StatusDropped, StatusPlanToWatch:
		return true
	}
	return false
}

type (
	// Entry is one tracked anime as held by one or both services.
	//
	// At least one of AniListID or MALID must be set: an entry with
	// neither can't be addressed anywhere.
	Entry struct {
		AniListID int
		MALID     int
		Title     string

		Status        Status
		Score         *float64 // nil when unscored; AniList may report 0-100
		Progress      int      // episodes watched
		TotalEpisodes int      // 0 when the remote doesn't know
		RepeatCount   int
		Notes         string
		IsFavorite    bool

		StartDate  *time.Time
		FinishDate *time.Time
		UpdatedAt  *time.Time // last modification on the origin service, if reported
	}

	// SearchResult is one candidate from a title search on a remote catalog.
	SearchResult struct {
		AniListID int
		MALID     int
		Titles    []string // all known title variants for matching
	}

	// Client is the surface each remote service adapter implements.
	//
	// Update returning (false, nil) means the remote rejected the change
	// without an error; callers must treat that differently from an error.
	Client interface {
		FetchList(ctx context.Context, username string) ([]Entry, error)
		Update(ctx context.Context, entry Entry) (bool, error)
		SearchByTitle(ctx context.Context, title string, limit int) ([]SearchResult, error)
	}
)

// Identified reports whether the entry can be addressed on at least one service.
func (e Entry) Identified() bool {
	return e.AniListID != 0 || e.MALID != 0
}

// SyncResult is the immutable outcome of one reconciliation run.
type SyncResult struct {
	Success       bool
	EntriesSynced int
	EntriesFailed int
	Errors        []string
	DryRun        bool

	// One-way runs also report per-category counts.
	Summary Summary

	// Bidirectional runs count entries that couldn't be matched because
	// the AniList record carries no MAL id. They're neither synced nor
	// failed; there is no search fallback on that path.
	Unmatched int
}

// Summary breaks down how each attempted entry was classified during a
// one-way run. Skips are not failures.
type Summary struct {
	Attempted        int
	Updated          int
	SkippedMissingID int
	SkippedNotFound  int
	SkippedUnchanged int
	Failed           int
}
