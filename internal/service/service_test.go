package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdholdren/anisync/internal/anisync"
	enginesync "github.com/jdholdren/anisync/internal/sync"
)

type fakeSyncer struct {
	result  anisync.SyncResult
	err     error
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (f *fakeSyncer) Sync(ctx context.Context, dir enginesync.Direction) (anisync.SyncResult, error) {
	f.calls.Add(1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	return f.result, f.err
}

type fakeHistory struct {
	anisync.HistoryRepo

	inserted []anisync.Run
}

func (f *fakeHistory) InsertRun(ctx context.Context, run anisync.Run) (anisync.Run, error) {
	run.ID = fmt.Sprintf("run-%d", len(f.inserted))
	f.inserted = append(f.inserted, run)
	return run, nil
}

func TestRunOnce_RecordsHistoryAndTotals(t *testing.T) {
	syncer := &fakeSyncer{
		result: anisync.SyncResult{
			Success:       true,
			EntriesSynced: 4,
			EntriesFailed: 1,
			Unmatched:     2,
			Errors:        []string{"Some Title: boom"},
		},
	}
	history := &fakeHistory{}
	svc := New(syncer, history, nil, Config{
		Mode:     enginesync.Bidirectional,
		Interval: time.Hour,
	})

	run, err := svc.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "run-0", run.ID)
	assert.True(t, run.Success)
	assert.Equal(t, 4, run.EntriesSynced)
	assert.Equal(t, 1, run.EntriesFailed)
	assert.Equal(t, 2, run.Unmatched)
	require.Len(t, history.inserted, 1)

	st := svc.Status()
	assert.False(t, st.Running)
	require.NotNil(t, st.LastRun)
	assert.Equal(t, "run-0", st.LastRun.ID)
	assert.Equal(t, 1, st.Totals.Runs)
	assert.Equal(t, 4, st.Totals.EntriesSynced)
	assert.Equal(t, 1, st.Totals.EntriesFailed)
}

func TestRunOnce_EngineErrorRecordedAsFailedRun(t *testing.T) {
	syncer := &fakeSyncer{err: errors.New("fetching anilist list: boom")}
	history := &fakeHistory{}
	svc := New(syncer, history, nil, Config{
		Mode:     enginesync.AniListToMAL,
		Interval: time.Hour,
	})

	run, err := svc.RunOnce(context.Background())
	require.Error(t, err)

	assert.False(t, run.Success)
	require.Len(t, run.Errors, 1)
	assert.Contains(t, run.Errors[0], "boom")
	require.Len(t, history.inserted, 1)
	assert.False(t, history.inserted[0].Success)
}

func TestRunOnce_ReauthorizesOnceOnUnauthorized(t *testing.T) {
	stale := &fakeSyncer{err: fmt.Errorf("fetching list: %w", anisync.ErrUnauthorized)}
	fresh := &fakeSyncer{result: anisync.SyncResult{Success: true, EntriesSynced: 2}}

	var reauths int
	reauth := func(ctx context.Context) (Syncer, error) {
		reauths++
		return fresh, nil
	}

	svc := New(stale, &fakeHistory{}, reauth, Config{
		Mode:     enginesync.Bidirectional,
		Interval: time.Hour,
	})

	run, err := svc.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, reauths)
	assert.Equal(t, int32(1), stale.calls.Load())
	assert.Equal(t, int32(1), fresh.calls.Load())
	assert.True(t, run.Success)

	// The fresh syncer sticks around for subsequent runs.
	_, err = svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, reauths)
	assert.Equal(t, int32(2), fresh.calls.Load())
}

func TestRunOnce_ReauthFailureSurfaces(t *testing.T) {
	stale := &fakeSyncer{err: anisync.ErrUnauthorized}
	reauth := func(ctx context.Context) (Syncer, error) {
		return nil, errors.New("no refresh token")
	}

	svc := New(stale, &fakeHistory{}, reauth, Config{
		Mode:     enginesync.Bidirectional,
		Interval: time.Hour,
	})

	_, err := svc.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "re-authorizing")
}

func TestRunOnce_RejectsOverlappingRuns(t *testing.T) {
	syncer := &fakeSyncer{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	svc := New(syncer, nil, nil, Config{
		Mode:     enginesync.Bidirectional,
		Interval: time.Hour,
	})

	done := make(chan error, 1)
	go func() {
		_, err := svc.RunOnce(context.Background())
		done <- err
	}()

	<-syncer.started
	assert.True(t, svc.Status().Running)

	_, err := svc.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(syncer.release)
	require.NoError(t, <-done)
	assert.False(t, svc.Status().Running)
}

func TestTriggerSync_RunsDirectlyWithoutLoop(t *testing.T) {
	syncer := &fakeSyncer{result: anisync.SyncResult{Success: true, EntriesSynced: 1}}
	svc := New(syncer, &fakeHistory{}, nil, Config{
		Mode:     enginesync.MALToAniList,
		Interval: time.Hour,
	})

	run, err := svc.TriggerSync(context.Background())
	require.NoError(t, err)
	assert.True(t, run.Success)
	assert.Equal(t, int32(1), syncer.calls.Load())
}

func TestLoop_StopsOnContextCancel(t *testing.T) {
	syncer := &fakeSyncer{result: anisync.SyncResult{Success: true}}
	svc := New(syncer, nil, nil, Config{
		Mode:     enginesync.Bidirectional,
		Interval: time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- svc.Loop(ctx)
	}()

	require.Eventually(t, func() bool { return syncer.calls.Load() >= 1 }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("loop did not stop after cancel")
	}
}
