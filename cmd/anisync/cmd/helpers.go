package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/jdholdren/anisync/internal/anilist"
	"github.com/jdholdren/anisync/internal/config"
	"github.com/jdholdren/anisync/internal/mal"
	"github.com/jdholdren/anisync/internal/migrations"
	"github.com/jdholdren/anisync/internal/oauth"
	"github.com/jdholdren/anisync/internal/service"
	"github.com/jdholdren/anisync/internal/sqlite"
	enginesync "github.com/jdholdren/anisync/internal/sync"
)

func loadConfig(ctx context.Context) (config.Config, error) {
	cfg, err := config.Load(ctx, configPath)
	if err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func requireCredentials(cfg config.Config) error {
	invalid := cfg.Validate()
	if len(invalid) == 0 {
		return nil
	}
	return fmt.Errorf("config is missing credentials: %s (run 'anisync auth' after filling them in)",
		strings.Join(invalid, ", "))
}

// tokens resolves the access tokens for both services: environment
// overrides win, otherwise the token store (refreshing when expired).
func tokens(ctx context.Context, cfg config.Config, mgr *oauth.Manager) (anilistTok, malTok string, err error) {
	anilistTok = cfg.AniListAccessToken
	if anilistTok == "" {
		anilistTok, err = mgr.ValidToken(ctx, oauth.ServiceAniList)
		if err != nil {
			return "", "", fmt.Errorf("anilist token: %w", err)
		}
	}

	malTok = cfg.MALAccessToken
	if malTok == "" {
		malTok, err = mgr.ValidToken(ctx, oauth.ServiceMAL)
		if err != nil {
			return "", "", fmt.Errorf("mal token: %w", err)
		}
	}

	return anilistTok, malTok, nil
}

// buildEngine assembles the reconciliation engine with fresh tokens.
func buildEngine(ctx context.Context, cfg config.Config, mgr *oauth.Manager) (*enginesync.Engine, error) {
	anilistTok, malTok, err := tokens(ctx, cfg, mgr)
	if err != nil {
		return nil, err
	}

	var malOpts []mal.Option
	if enginesync.ScoreSyncMode(cfg.Sync.ScoreSyncMode) == enginesync.ScoreSyncDisabled {
		malOpts = append(malOpts, mal.WithoutScores())
	}

	return enginesync.New(
		anilist.New(anilistTok),
		mal.New(malTok, malOpts...),
		enginesync.Config{
			AniListUsername: cfg.AniList.Username,
			MALUsername:     cfg.MAL.Username,
			ScoreSync:       enginesync.ScoreSyncMode(cfg.Sync.ScoreSyncMode),
			DryRun:          cfg.Sync.DryRun,
		},
	), nil
}

// reauthorizer hands the service a way to rebuild the engine after the
// remotes reject the current tokens.
func reauthorizer(cfg config.Config, mgr *oauth.Manager) service.Reauthorizer {
	return func(ctx context.Context) (service.Syncer, error) {
		return buildEngine(ctx, cfg, mgr)
	}
}

// openHistory opens (creating if needed) the run-history database and
// brings its schema up to date.
func openHistory(path string) (*sqlx.DB, sqlite.Repo, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, sqlite.Repo{}, fmt.Errorf("creating history directory: %w", err)
		}
	}

	dbx, err := sqlx.Open("sqlite", fmt.Sprintf("%s?_txlock=immediate&_journal_mode=WAL&_busy_timeout=5000", path))
	if err != nil {
		return nil, sqlite.Repo{}, fmt.Errorf("opening history database: %w", err)
	}

	if err := migrations.Run(dbx); err != nil {
		dbx.Close()
		return nil, sqlite.Repo{}, fmt.Errorf("migrating history database: %w", err)
	}

	return dbx, sqlite.New(dbx), nil
}
