// Package service runs the reconciliation engine on a schedule and keeps
// the status snapshot the dashboard reports on.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jdholdren/anisync/internal/anisync"
	enginesync "github.com/jdholdren/anisync/internal/sync"
	"github.com/jdholdren/anisync/logger"
)

// ErrRunInProgress is returned when a sync is requested while one is
// already underway.
var ErrRunInProgress = errors.New("a sync run is already in progress")

// Syncer runs one reconciliation pass in the given direction.
type Syncer interface {
	Sync(ctx context.Context, dir enginesync.Direction) (anisync.SyncResult, error)
}

// Reauthorizer refreshes credentials and returns a Syncer backed by fresh
// tokens. Called at most once per run, when the remotes reject the current
// credentials.
type Reauthorizer func(ctx context.Context) (Syncer, error)

type Config struct {
	Mode     enginesync.Direction
	Interval time.Duration
	DryRun   bool
}

// Totals accumulates across every run since the service started.
type Totals struct {
	Runs          int `json:"runs"`
	EntriesSynced int `json:"entries_synced"`
	EntriesFailed int `json:"entries_failed"`
}

// Status is a point-in-time snapshot of the service.
type Status struct {
	Running  bool         `json:"running"`
	Mode     string       `json:"mode"`
	DryRun   bool         `json:"dry_run"`
	Interval string       `json:"interval"`
	LastRun  *anisync.Run `json:"last_run,omitempty"`
	NextRun  *time.Time   `json:"next_run,omitempty"`
	Totals   Totals       `json:"totals"`
}

type Service struct {
	cfg     Config
	history anisync.HistoryRepo
	reauth  Reauthorizer

	trigger chan chan triggered

	mu      sync.Mutex
	syncer  Syncer
	running bool
	lastRun *anisync.Run
	nextRun time.Time
	totals  Totals
}

type triggered struct {
	run anisync.Run
	err error
}

func New(syncer Syncer, history anisync.HistoryRepo, reauth Reauthorizer, cfg Config) *Service {
	return &Service{
		cfg:     cfg,
		history: history,
		reauth:  reauth,
		syncer:  syncer,
		trigger: make(chan chan triggered),
	}
}

// Loop syncs immediately, then on every tick of the configured interval,
// until the context is cancelled. Manual triggers from [TriggerSync] run
// between ticks without resetting the schedule.
func (s *Service) Loop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.setNextRun(time.Now().Add(s.cfg.Interval))
	if _, err := s.RunOnce(ctx); err != nil {
		slog.Error("sync run failed", "err", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.setNextRun(time.Now().Add(s.cfg.Interval))
			if _, err := s.RunOnce(ctx); err != nil {
				slog.Error("sync run failed", "err", err)
			}
		case resp := <-s.trigger:
			run, err := s.RunOnce(ctx)
			resp <- triggered{run: run, err: err}
		}
	}
}

// TriggerSync requests a run from the loop and waits for it to finish. If
// no loop is draining the trigger channel it runs the sync directly.
func (s *Service) TriggerSync(ctx context.Context) (anisync.Run, error) {
	resp := make(chan triggered, 1)
	select {
	case s.trigger <- resp:
		select {
		case t := <-resp:
			return t.run, t.err
		case <-ctx.Done():
			return anisync.Run{}, ctx.Err()
		}
	default:
		return s.RunOnce(ctx)
	}
}

// RunOnce performs a single reconciliation run, re-authorizing once if the
// remotes reject the credentials, and records the outcome in history.
func (s *Service) RunOnce(ctx context.Context) (anisync.Run, error) {
	if !s.begin() {
		return anisync.Run{}, ErrRunInProgress
	}
	defer s.end()

	started := time.Now().UTC()
	ctx = logger.Ctx(ctx,
		slog.String("mode", string(s.cfg.Mode)),
		slog.Bool("dry_run", s.cfg.DryRun),
	)
	slog.InfoContext(ctx, "starting sync run")

	res, err := s.currentSyncer().Sync(ctx, s.cfg.Mode)
	if err != nil && errors.Is(err, anisync.ErrUnauthorized) && s.reauth != nil {
		slog.WarnContext(ctx, "credentials rejected, re-authorizing", "err", err)
		fresh, rerr := s.reauth(ctx)
		if rerr != nil {
			err = fmt.Errorf("re-authorizing: %w", rerr)
		} else {
			s.setSyncer(fresh)
			res, err = fresh.Sync(ctx, s.cfg.Mode)
		}
	}

	run := anisync.Run{
		Mode:      string(s.cfg.Mode),
		DryRun:    s.cfg.DryRun,
		StartedAt: started,
	}
	if err != nil {
		run.Errors = []string{err.Error()}
	} else {
		run.Success = res.Success
		run.EntriesSynced = res.EntriesSynced
		run.EntriesFailed = res.EntriesFailed
		run.Unmatched = res.Unmatched
		run.Errors = res.Errors
	}
	run.FinishedAt = time.Now().UTC()

	if s.history != nil {
		recorded, herr := s.history.InsertRun(ctx, run)
		if herr != nil {
			slog.ErrorContext(ctx, "recording run history", "err", herr)
		} else {
			run = recorded
		}
	}
	s.finish(run)

	slog.InfoContext(ctx, "sync run finished",
		"success", run.Success,
		"synced", run.EntriesSynced,
		"failed", run.EntriesFailed,
		"duration", run.FinishedAt.Sub(run.StartedAt),
	)

	return run, err
}

// Status reports the current snapshot.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Running:  s.running,
		Mode:     string(s.cfg.Mode),
		DryRun:   s.cfg.DryRun,
		Interval: s.cfg.Interval.String(),
		LastRun:  s.lastRun,
		Totals:   s.totals,
	}
	if !s.nextRun.IsZero() {
		next := s.nextRun
		st.NextRun = &next
	}
	return st
}

func (s *Service) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

func (s *Service) end() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

func (s *Service) finish(run anisync.Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRun = &run
	s.totals.Runs++
	s.totals.EntriesSynced += run.EntriesSynced
	s.totals.EntriesFailed += run.EntriesFailed
}

func (s *Service) currentSyncer() Syncer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncer
}

func (s *Service) setSyncer(syncer Syncer) {
	s.mu.Lock()
	s.syncer = syncer
	s.mu.Unlock()
}

func (s *Service) setNextRun(t time.Time) {
	s.mu.Lock()
	s.nextRun = t
	s.mu.Unlock()
}
