package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdholdren/anisync/internal/anisync"
)

// fakeClient is an in-memory adapter for driving the engine.
type fakeClient struct {
	entries  []anisync.Entry
	fetchErr error

	searchResults []anisync.SearchResult
	searchErr     error
	searches      []string

	updates      []anisync.Entry
	rejectTitles map[string]bool
	errTitles    map[string]error
}

func (f *fakeClient) FetchList(_ context.Context, _ string) ([]anisync.Entry, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.entries, nil
}

func (f *fakeClient) Update(_ context.Context, entry anisync.Entry) (bool, error) {
	if err := f.errTitles[entry.Title]; err != nil {
		return false, err
	}
	if f.rejectTitles[entry.Title] {
		return false, nil
	}
	f.updates = append(f.updates, entry)
	return true, nil
}

func (f *fakeClient) SearchByTitle(_ context.Context, title string, _ int) ([]anisync.SearchResult, error) {
	f.searches = append(f.searches, title)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.searchResults, nil
}

func newEngine(al, mal *fakeClient, cfg Config) *Engine {
	if cfg.ScoreSync == "" {
		cfg.ScoreSync = ScoreSyncAuto
	}
	return New(al, mal, cfg)
}

func scorePtr(f float64) *float64 { return &f }

func timePtr(t time.Time) *time.Time { return &t }

func TestOneWay_CreatesMissingTargetEntry(t *testing.T) {
	al := &fakeClient{entries: []anisync.Entry{
		{AniListID: 1, MALID: 100, Title: "Trigun", Status: anisync.StatusWatching, Progress: 5},
	}}
	mal := &fakeClient{}

	result, err := newEngine(al, mal, Config{}).Sync(context.Background(), AniListToMAL)
	require.NoError(t, err)

	require.Len(t, mal.updates, 1)
	assert.Equal(t, 100, mal.updates[0].MALID)
	assert.Equal(t, 1, result.EntriesSynced)
	assert.Equal(t, 0, result.EntriesFailed)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Summary.Updated)
}

func TestOneWay_SkipsUnchangedEntries(t *testing.T) {
	entry := anisync.Entry{
		AniListID: 1, MALID: 100, Title: "Trigun",
		Status: anisync.StatusCompleted, Progress: 26, RepeatCount: 1,
		Notes: "great", Score: scorePtr(9),
	}
	al := &fakeClient{entries: []anisync.Entry{entry}}
	mal := &fakeClient{entries: []anisync.Entry{entry}}

	result, err := newEngine(al, mal, Config{}).Sync(context.Background(), AniListToMAL)
	require.NoError(t, err)

	assert.Empty(t, mal.updates, "no adapter call for an unchanged entry")
	assert.Equal(t, 1, result.Summary.SkippedUnchanged)
	assert.Equal(t, 0, result.EntriesSynced)
	assert.True(t, result.Success)
}

func TestOneWay_Idempotent(t *testing.T) {
	source := []anisync.Entry{
		{AniListID: 1, MALID: 100, Title: "Trigun", Status: anisync.StatusWatching, Progress: 5},
		{AniListID: 2, MALID: 200, Title: "Monster", Status: anisync.StatusCompleted, Progress: 74},
	}
	al := &fakeClient{entries: source}
	mal := &fakeClient{}

	eng := newEngine(al, mal, Config{})
	first, err := eng.Sync(context.Background(), AniListToMAL)
	require.NoError(t, err)
	require.Equal(t, 2, first.Summary.Updated)

	// The target now holds exactly what was pushed; a second run must
	// touch nothing.
	mal.entries = mal.updates
	mal.updates = nil

	second, err := eng.Sync(context.Background(), AniListToMAL)
	require.NoError(t, err)
	assert.Empty(t, mal.updates)
	assert.Equal(t, 2, second.Summary.SkippedUnchanged)
	assert.Equal(t, 0, second.Summary.Updated)
}

func TestOneWay_SkipsEntryWithoutMALID(t *testing.T) {
	al := &fakeClient{entries: []anisync.Entry{
		{AniListID: 1, Title: "Obscure OVA", Status: anisync.StatusWatching},
	}}
	mal := &fakeClient{}

	result, err := newEngine(al, mal, Config{}).Sync(context.Background(), AniListToMAL)
	require.NoError(t, err)

	assert.Empty(t, mal.updates)
	assert.Equal(t, 1, result.Summary.SkippedMissingID)
	assert.Equal(t, 0, result.EntriesFailed)
	assert.True(t, result.Success, "a skip is not a failure")
}

func TestOneWay_TitleSearchNoCandidates(t *testing.T) {
	mal := &fakeClient{entries: []anisync.Entry{
		{MALID: 100, Title: "Obscure OVA", Status: anisync.StatusWatching},
	}}
	al := &fakeClient{} // search returns nothing

	result, err := newEngine(al, mal, Config{}).Sync(context.Background(), MALToAniList)
	require.NoError(t, err)

	assert.Equal(t, []string{"Obscure OVA"}, al.searches)
	assert.Empty(t, mal.searches)
	assert.Empty(t, al.updates)
	assert.Equal(t, 1, result.Summary.SkippedNotFound)
	assert.Equal(t, 0, result.EntriesSynced)
	assert.Equal(t, 0, result.EntriesFailed)
}

func TestOneWay_TitleSearchPrefersExactMatch(t *testing.T) {
	mal := &fakeClient{entries: []anisync.Entry{
		{MALID: 100, Title: "Cowboy Bebop", Status: anisync.StatusWatching, Progress: 3},
	}}
	al := &fakeClient{searchResults: []anisync.SearchResult{
		{AniListID: 7, Titles: []string{"Cowboy Bebop: The Movie"}},
		{AniListID: 8, Titles: []string{"COWBOY BEBOP", "カウボーイビバップ"}},
	}}

	_, err := newEngine(al, mal, Config{}).Sync(context.Background(), MALToAniList)
	require.NoError(t, err)

	require.Len(t, al.updates, 1)
	assert.Equal(t, 8, al.updates[0].AniListID, "exact case-insensitive match wins over first result")
}

func TestOneWay_TitleSearchFallsBackToFirstCandidate(t *testing.T) {
	mal := &fakeClient{entries: []anisync.Entry{
		{MALID: 100, Title: "Bebop", Status: anisync.StatusWatching},
	}}
	al := &fakeClient{searchResults: []anisync.SearchResult{
		{AniListID: 7, Titles: []string{"Cowboy Bebop"}},
		{AniListID: 8, Titles: []string{"Space Dandy"}},
	}}

	_, err := newEngine(al, mal, Config{}).Sync(context.Background(), MALToAniList)
	require.NoError(t, err)

	require.Len(t, al.updates, 1)
	assert.Equal(t, 7, al.updates[0].AniListID)
}

func TestOneWay_AdapterErrorDoesNotAbortRun(t *testing.T) {
	entries := make([]anisync.Entry, 0, 5)
	for i, title := range []string{"A", "B", "C", "D", "E"} {
		entries = append(entries, anisync.Entry{
			AniListID: i + 1, MALID: (i + 1) * 100, Title: title,
			Status: anisync.StatusWatching, Progress: i,
		})
	}
	al := &fakeClient{entries: entries}
	mal := &fakeClient{errTitles: map[string]error{"C": errors.New("boom")}}

	result, err := newEngine(al, mal, Config{}).Sync(context.Background(), AniListToMAL)
	require.NoError(t, err)

	assert.Equal(t, 4, result.EntriesSynced)
	assert.Equal(t, 1, result.EntriesFailed)
	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "C:")
}

func TestOneWay_RejectedUpdateIsAFailure(t *testing.T) {
	al := &fakeClient{entries: []anisync.Entry{
		{AniListID: 1, MALID: 100, Title: "Trigun", Status: anisync.StatusWatching},
	}}
	mal := &fakeClient{rejectTitles: map[string]bool{"Trigun": true}}

	result, err := newEngine(al, mal, Config{}).Sync(context.Background(), AniListToMAL)
	require.NoError(t, err)

	assert.Equal(t, 1, result.EntriesFailed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "Failed to sync: Trigun", result.Errors[0])
}

func TestOneWay_DryRunMakesNoRemoteCalls(t *testing.T) {
	al := &fakeClient{entries: []anisync.Entry{
		{AniListID: 1, MALID: 100, Title: "Trigun", Status: anisync.StatusWatching, Progress: 5},
	}}
	mal := &fakeClient{}

	result, err := newEngine(al, mal, Config{DryRun: true}).Sync(context.Background(), AniListToMAL)
	require.NoError(t, err)

	assert.Empty(t, mal.updates)
	assert.True(t, result.DryRun)
	assert.Equal(t, 1, result.EntriesSynced, "dry run still counts what would succeed")
}

func TestOneWay_ScoreSyncDisabledIgnoresScoreDelta(t *testing.T) {
	source := anisync.Entry{AniListID: 1, MALID: 100, Title: "Trigun", Status: anisync.StatusCompleted, Progress: 26, Score: scorePtr(90)}
	target := source
	target.Score = scorePtr(5)

	al := &fakeClient{entries: []anisync.Entry{source}}
	mal := &fakeClient{entries: []anisync.Entry{target}}

	result, err := newEngine(al, mal, Config{ScoreSync: ScoreSyncDisabled}).Sync(context.Background(), AniListToMAL)
	require.NoError(t, err)
	assert.Empty(t, mal.updates)
	assert.Equal(t, 1, result.Summary.SkippedUnchanged)
}

func TestOneWay_ScoresCompareOnCanonicalScale(t *testing.T) {
	// 85 on AniList's 100-point scale normalizes to 9, matching MAL's 9.
	source := anisync.Entry{AniListID: 1, MALID: 100, Title: "Trigun", Status: anisync.StatusCompleted, Progress: 26, Score: scorePtr(85)}
	target := source
	target.Score = scorePtr(9)

	al := &fakeClient{entries: []anisync.Entry{source}}
	mal := &fakeClient{entries: []anisync.Entry{target}}

	result, err := newEngine(al, mal, Config{}).Sync(context.Background(), AniListToMAL)
	require.NoError(t, err)
	assert.Empty(t, mal.updates)
	assert.Equal(t, 1, result.Summary.SkippedUnchanged)
}

func TestOneWay_ListFetchFailureAbortsRun(t *testing.T) {
	al := &fakeClient{fetchErr: errors.New("anilist is down")}
	mal := &fakeClient{}

	_, err := newEngine(al, mal, Config{}).Sync(context.Background(), AniListToMAL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anilist is down")
}

func TestParseDirection(t *testing.T) {
	for _, valid := range []string{"anilist-to-mal", "mal-to-anilist", "bidirectional"} {
		d, err := ParseDirection(valid)
		require.NoError(t, err)
		assert.Equal(t, valid, string(d))
	}

	_, err := ParseDirection("sideways")
	require.Error(t, err)
}
