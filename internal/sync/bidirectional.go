package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/jdholdren/anisync/internal/anisync"
)

// syncBidirectional propagates changes both ways, keyed on the MAL id that
// AniList embeds on its records. AniList entries without one can't be
// matched on this path (there is no search fallback here); they're counted
// as unmatched rather than silently dropped.
func (e *Engine) syncBidirectional(ctx context.Context) (anisync.SyncResult, error) {
	result := anisync.SyncResult{DryRun: e.cfg.DryRun}

	anilistEntries, err := e.anilist.FetchList(ctx, e.cfg.AniListUsername)
	if err != nil {
		return anisync.SyncResult{}, fmt.Errorf("error fetching anilist list: %w", err)
	}
	malEntries, err := e.mal.FetchList(ctx, e.cfg.MALUsername)
	if err != nil {
		return anisync.SyncResult{}, fmt.Errorf("error fetching mal list: %w", err)
	}

	anilistByMALID := make(map[int]anisync.Entry, len(anilistEntries))
	for _, entry := range anilistEntries {
		if entry.MALID == 0 {
			result.Unmatched++
			slog.Warn("anilist entry has no MAL id, can't match bidirectionally", "title", entry.Title)
			continue
		}
		anilistByMALID[entry.MALID] = entry
	}

	malByID := make(map[int]anisync.Entry, len(malEntries))
	for _, entry := range malEntries {
		malByID[entry.MALID] = entry
	}

	// Walk the union of both indexes in a stable order so the error list
	// comes out the same for the same inputs.
	ids := make([]int, 0, len(anilistByMALID)+len(malByID))
	seen := make(map[int]bool)
	for id := range anilistByMALID {
		ids = append(ids, id)
		seen[id] = true
	}
	for id := range malByID {
		if !seen[id] {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)

	for _, malID := range ids {
		alEntry, onAniList := anilistByMALID[malID]
		malEntry, onMAL := malByID[malID]

		switch {
		case onAniList && !onMAL:
			e.propagate(ctx, e.mal, alEntry, malID, "mal", &result)

		case onMAL && !onAniList:
			e.propagate(ctx, e.anilist, malEntry, malID, "anilist", &result)

		default:
			ok, err := e.resolveConflict(ctx, alEntry, malEntry)
			switch {
			case err != nil:
				slog.Error("error resolving conflict", "mal_id", malID, "error", err)
				result.EntriesFailed++
				result.Errors = append(result.Errors, fmt.Sprintf("MAL ID %d: %s", malID, err))
			case !ok:
				result.EntriesFailed++
				result.Errors = append(result.Errors, fmt.Sprintf("MAL ID %d: failed to sync conflict", malID))
			default:
				result.EntriesSynced++
			}
		}
	}

	result.Success = result.EntriesFailed == 0
	slog.Info("bidirectional sync finished",
		"synced", result.EntriesSynced,
		"failed", result.EntriesFailed,
		"unmatched", result.Unmatched,
	)

	return result, nil
}

// propagate creates an entry on the side that's missing it.
func (e *Engine) propagate(ctx context.Context, target anisync.Client, entry anisync.Entry, malID int, side string, result *anisync.SyncResult) {
	if e.cfg.DryRun {
		slog.Info("dry run: would add entry", "title", entry.Title, "target", side)
		result.EntriesSynced++
		return
	}

	ok, err := target.Update(ctx, entry)
	switch {
	case err != nil:
		slog.Error("error adding entry", "title", entry.Title, "target", side, "error", err)
		result.EntriesFailed++
		result.Errors = append(result.Errors, fmt.Sprintf("MAL ID %d: %s", malID, err))
	case !ok:
		result.EntriesFailed++
		result.Errors = append(result.Errors, fmt.Sprintf("MAL ID %d: update rejected", malID))
	default:
		result.EntriesSynced++
	}
}
