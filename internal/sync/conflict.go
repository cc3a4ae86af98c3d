package sync

import (
	"context"
	"log/slog"

	"github.com/jdholdren/anisync/internal/anisync"
)

// resolveConflict reconciles an entry that exists on both services.
//
// Timestamp wins: whichever side was modified strictly later gets pushed
// to the other; equal timestamps mean the pair is already in sync. When a
// timestamp is missing on either side it falls back to comparing episode
// progress, which is a coarser heuristic: a score- or notes-only edit with
// no progress delta is invisible to it, so that path logs loudly.
//
// The returned bool mirrors the adapter contract: true when the winning
// side was applied or nothing needed doing, false when the target rejected
// the update without an error.
func (e *Engine) resolveConflict(ctx context.Context, alEntry, malEntry anisync.Entry) (bool, error) {
	if alEntry.UpdatedAt != nil && malEntry.UpdatedAt != nil {
		switch {
		case alEntry.UpdatedAt.After(*malEntry.UpdatedAt):
			slog.Info("anilist has newer update, syncing to mal",
				"title", alEntry.Title,
				"anilist_updated", alEntry.UpdatedAt,
				"mal_updated", malEntry.UpdatedAt,
			)
			if e.cfg.DryRun {
				return true, nil
			}
			return e.mal.Update(ctx, alEntry)

		case malEntry.UpdatedAt.After(*alEntry.UpdatedAt):
			slog.Info("mal has newer update, syncing to anilist",
				"title", malEntry.Title,
				"mal_updated", malEntry.UpdatedAt,
				"anilist_updated", alEntry.UpdatedAt,
			)
			if e.cfg.DryRun {
				return true, nil
			}
			// The MAL entry doesn't know its AniList id; carry it over
			// from the matched pair before addressing AniList.
			malEntry.AniListID = alEntry.AniListID
			return e.anilist.Update(ctx, malEntry)

		default:
			slog.Debug("entries in sync, same update time", "title", alEntry.Title)
			return true, nil
		}
	}

	slog.Warn("missing timestamps, falling back to episode progress", "title", alEntry.Title)

	switch {
	case alEntry.Progress > malEntry.Progress:
		slog.Info("anilist has more progress, syncing to mal", "title", alEntry.Title)
		if e.cfg.DryRun {
			return true, nil
		}
		return e.mal.Update(ctx, alEntry)

	case malEntry.Progress > alEntry.Progress:
		slog.Info("mal has more progress, syncing to anilist", "title", malEntry.Title)
		if e.cfg.DryRun {
			return true, nil
		}
		malEntry.AniListID = alEntry.AniListID
		return e.anilist.Update(ctx, malEntry)
	}

	// Equal progress, nothing to move.
	return true, nil
}
