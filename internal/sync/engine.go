// Package sync implements the reconciliation engine: given both services'
// lists it decides, entry by entry, whether and in which direction state
// needs to move, and applies the minimal set of updates.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jdholdren/anisync/internal/anisync"
)

// Direction selects what a run does.
type Direction string

const (
	AniListToMAL  Direction = "anilist-to-mal"
	MALToAniList  Direction = "mal-to-anilist"
	Bidirectional Direction = "bidirectional"
)

// ParseDirection validates a user-supplied mode string.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(s); d {
	case AniListToMAL, MALToAniList, Bidirectional:
		return d, nil
	}
	return "", fmt.Errorf("unknown sync mode: %q", s)
}

// ScoreSyncMode controls whether scores participate in change detection
// and are transmitted to MyAnimeList.
type ScoreSyncMode string

const (
	ScoreSyncAuto     ScoreSyncMode = "auto"
	ScoreSyncDisabled ScoreSyncMode = "disabled"
)

// Config is the fixed configuration for an engine instance. There is no
// hidden settings state: everything a run depends on is in here.
type Config struct {
	AniListUsername string
	MALUsername     string
	ScoreSync       ScoreSyncMode
	DryRun          bool
}

// Engine reconciles one user's lists between AniList and MyAnimeList.
//
// It is synchronous and not re-entrant: entries are processed strictly
// sequentially, one remote call at a time, and the caller must ensure no
// two runs overlap.
type Engine struct {
	anilist anisync.Client
	mal     anisync.Client
	cfg     Config
}

func New(anilist, mal anisync.Client, cfg Config) *Engine {
	return &Engine{
		anilist: anilist,
		mal:     mal,
		cfg:     cfg,
	}
}

// Sync runs one reconciliation in the given direction.
//
// A result always comes back unless fetching a full list failed; that is
// the only run-aborting error, and deciding whether to retry it belongs to
// the caller.
func (e *Engine) Sync(ctx context.Context, dir Direction) (anisync.SyncResult, error) {
	slog.Info("starting sync", "mode", dir, "dry_run", e.cfg.DryRun)

	switch dir {
	case AniListToMAL:
		return e.syncOneWay(ctx, e.anilist, e.mal, dir)
	case MALToAniList:
		return e.syncOneWay(ctx, e.mal, e.anilist, dir)
	case Bidirectional:
		return e.syncBidirectional(ctx)
	}

	return anisync.SyncResult{}, fmt.Errorf("unknown sync mode: %q", dir)
}

func (e *Engine) syncOneWay(ctx context.Context, source, target anisync.Client, dir Direction) (anisync.SyncResult, error) {
	result := anisync.SyncResult{DryRun: e.cfg.DryRun}

	sourceEntries, err := source.FetchList(ctx, e.sourceUsername(dir))
	if err != nil {
		return anisync.SyncResult{}, fmt.Errorf("error fetching %s list: %w", dir.sourceName(), err)
	}
	targetByID, err := e.fetchTargetIndex(ctx, target, dir)
	if err != nil {
		return anisync.SyncResult{}, fmt.Errorf("error fetching %s list: %w", dir.targetName(), err)
	}

	for _, entry := range sourceEntries {
		result.Summary.Attempted++

		entry, targetID, skip := e.resolveTargetID(ctx, entry, dir, &result)
		if skip {
			continue
		}

		existing, known := targetByID[targetID]
		if known && !e.needsUpdate(entry, existing, e.scoreModeFor(dir)) {
			result.Summary.SkippedUnchanged++
			slog.Info("no changes, skipping", "title", entry.Title)
			continue
		}

		if e.cfg.DryRun {
			slog.Info("dry run: would sync", "title", entry.Title, "target", dir.targetName())
			result.EntriesSynced++
			result.Summary.Updated++
			continue
		}

		ok, err := target.Update(ctx, entry)
		switch {
		case err != nil:
			slog.Error("error syncing entry", "title", entry.Title, "error", err)
			result.EntriesFailed++
			result.Summary.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", entry.Title, err))
		case !ok:
			result.EntriesFailed++
			result.Summary.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("Failed to sync: %s", entry.Title))
		default:
			result.EntriesSynced++
			result.Summary.Updated++
		}
	}

	result.Success = result.EntriesFailed == 0
	slog.Info("one-way sync finished",
		"attempted", result.Summary.Attempted,
		"updated", result.Summary.Updated,
		"skipped_missing_id", result.Summary.SkippedMissingID,
		"skipped_not_found", result.Summary.SkippedNotFound,
		"skipped_unchanged", result.Summary.SkippedUnchanged,
		"failed", result.Summary.Failed,
	)

	return result, nil
}

// resolveTargetID establishes the identifier the entry has on the target
// service, searching the target catalog by title when syncing toward
// AniList and the id is unknown. Skips are counted on the result and are
// never failures.
func (e *Engine) resolveTargetID(ctx context.Context, entry anisync.Entry, dir Direction, result *anisync.SyncResult) (anisync.Entry, int, bool) {
	if dir == AniListToMAL {
		// There is no reliable reverse search on MAL for an AniList-only
		// entry, so a missing MAL id is a hard skip.
		if entry.MALID == 0 {
			result.Summary.SkippedMissingID++
			slog.Warn("skipping entry without MAL id", "title", entry.Title)
			return entry, 0, true
		}
		return entry, entry.MALID, false
	}

	if entry.AniListID != 0 {
		return entry, entry.AniListID, false
	}

	matches, err := e.anilist.SearchByTitle(ctx, entry.Title, 3)
	if err != nil {
		// Search failing is a per-entry failure, not a run abort.
		result.EntriesFailed++
		result.Summary.Failed++
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", entry.Title, err))
		return entry, 0, true
	}

	id := matchByTitle(entry.Title, matches)
	if id == 0 {
		result.Summary.SkippedNotFound++
		slog.Warn("no AniList match found", "title", entry.Title)
		return entry, 0, true
	}

	entry.AniListID = id
	return entry, id, false
}

// matchByTitle prefers a case-insensitive exact title match among the
// candidates and otherwise falls back to the first one returned.
func matchByTitle(title string, matches []anisync.SearchResult) int {
	for _, m := range matches {
		for _, t := range m.Titles {
			if strings.EqualFold(t, title) {
				return m.AniListID
			}
		}
	}
	if len(matches) > 0 {
		return matches[0].AniListID
	}
	return 0
}

// needsUpdate compares the fields we actually transmit. Notes compare as
// plain strings, so an absent note and an empty note are the same thing.
func (e *Engine) needsUpdate(source, target anisync.Entry, scoreMode ScoreSyncMode) bool {
	if source.Status != target.Status {
		slog.Debug("status differs", "title", source.Title, "source", source.Status, "target", target.Status)
		return true
	}
	if source.Progress != target.Progress {
		slog.Debug("progress differs", "title", source.Title, "source", source.Progress, "target", target.Progress)
		return true
	}
	if source.RepeatCount != target.RepeatCount {
		slog.Debug("repeat count differs", "title", source.Title, "source", source.RepeatCount, "target", target.RepeatCount)
		return true
	}
	if source.Notes != target.Notes {
		slog.Debug("notes differ", "title", source.Title)
		return true
	}

	if scoreMode == ScoreSyncAuto {
		ss, sok := anisync.NormalizeScore(source.Score)
		ts, tok := anisync.NormalizeScore(target.Score)
		if sok != tok || ss != ts {
			slog.Debug("score differs", "title", source.Title, "source", ss, "target", ts)
			return true
		}
	}

	return false
}

// scoreModeFor gates score comparison per direction: toward MAL it follows
// configuration, toward AniList scores always sync since AniList accepts
// the full scale.
func (e *Engine) scoreModeFor(dir Direction) ScoreSyncMode {
	if dir == AniListToMAL {
		return e.cfg.ScoreSync
	}
	return ScoreSyncAuto
}

// fetchTargetIndex builds the id-keyed lookup used for change detection.
// It is recomputed fresh every run; caching it would feed stale data into
// conflict decisions.
func (e *Engine) fetchTargetIndex(ctx context.Context, target anisync.Client, dir Direction) (map[int]anisync.Entry, error) {
	entries, err := target.FetchList(ctx, e.targetUsername(dir))
	if err != nil {
		return nil, err
	}

	byID := make(map[int]anisync.Entry, len(entries))
	for _, entry := range entries {
		if dir == AniListToMAL && entry.MALID != 0 {
			byID[entry.MALID] = entry
		}
		if dir == MALToAniList && entry.AniListID != 0 {
			byID[entry.AniListID] = entry
		}
	}

	return byID, nil
}

func (e *Engine) sourceUsername(dir Direction) string {
	if dir == AniListToMAL {
		return e.cfg.AniListUsername
	}
	return e.cfg.MALUsername
}

func (e *Engine) targetUsername(dir Direction) string {
	if dir == AniListToMAL {
		return e.cfg.MALUsername
	}
	return e.cfg.AniListUsername
}

func (d Direction) sourceName() string {
	if d == MALToAniList {
		return "mal"
	}
	return "anilist"
}

func (d Direction) targetName() string {
	if d == MALToAniList {
		return "anilist"
	}
	return "mal"
}
