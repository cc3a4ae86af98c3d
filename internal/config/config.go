// Package config loads the application configuration from a YAML file and
// overlays the few secrets that may come from the environment instead.
package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// Placeholder values shipped in the example config that mean "not
// configured yet".
var placeholders = map[string]bool{
	"YOUR_ANILIST_CLIENT_ID_HERE":     true,
	"YOUR_ANILIST_CLIENT_SECRET_HERE": true,
	"YOUR_ANILIST_USERNAME_HERE":      true,
	"YOUR_MAL_CLIENT_ID_HERE":         true,
	"YOUR_MAL_CLIENT_SECRET_HERE":     true,
	"YOUR_MAL_USERNAME_HERE":          true,
	"":                                true,
}

type (
	// Service holds one remote service's OAuth application credentials.
	Service struct {
		ClientID     string `yaml:"client_id"`
		ClientSecret string `yaml:"client_secret"`
		Username     string `yaml:"username"`
		AuthURL      string `yaml:"auth_url"`
		TokenURL     string `yaml:"token_url"`
	}

	OAuth struct {
		Port        int    `yaml:"port"`
		RedirectURI string `yaml:"redirect_uri"`
	}

	Sync struct {
		Mode          string `yaml:"mode"`
		ScoreSyncMode string `yaml:"score_sync_mode"`
		Interval      string `yaml:"interval"`
		DryRun        bool   `yaml:"dry_run"`
		LogLevel      string `yaml:"log_level"`
	}

	Web struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	}

	Config struct {
		OAuth   OAuth    `yaml:"oauth"`
		AniList Service  `yaml:"anilist"`
		MAL     *Service `yaml:"mal"`
		// Both spellings are accepted for the MAL section.
		MyAnimeList *Service `yaml:"myanimelist"`
		Sync        Sync     `yaml:"sync"`
		Web         Web      `yaml:"web"`
		TokenFile   string   `yaml:"token_file_path"`
		HistoryFile string   `yaml:"history_db_path"`

		// Access tokens supplied directly via the environment bypass the
		// token store entirely.
		AniListAccessToken string `yaml:"-" env:"ANILIST_ACCESS_TOKEN"`
		MALAccessToken     string `yaml:"-" env:"MAL_ACCESS_TOKEN"`
		LoggerFormat       string `yaml:"-" env:"LOGGER_FORMAT, default=text"`
	}
)

func defaults() Config {
	return Config{
		OAuth: OAuth{
			Port:        18080,
			RedirectURI: "http://localhost:18080/callback",
		},
		AniList: Service{
			AuthURL:  "https://anilist.co/api/v2/oauth/authorize",
			TokenURL: "https://anilist.co/api/v2/oauth/token",
		},
		Sync: Sync{
			Mode:          "bidirectional",
			ScoreSyncMode: "auto",
			Interval:      "1h",
			LogLevel:      "info",
		},
		Web: Web{
			Host: "0.0.0.0",
			Port: 8080,
		},
		TokenFile:   "data/tokens.json",
		HistoryFile: "data/history.db",
	}
}

func malDefaults() Service {
	return Service{
		AuthURL:  "https://myanimelist.net/v1/oauth2/authorize",
		TokenURL: "https://myanimelist.net/v1/oauth2/token",
	}
}

// Load reads the YAML file at path, fills in defaults and applies
// environment overrides.
func Load(ctx context.Context, path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("error reading config file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("error parsing config file: %s", err)
	}

	// Fold the alternate MAL section spelling into one place.
	if cfg.MAL == nil {
		cfg.MAL = cfg.MyAnimeList
	}
	if cfg.MAL == nil {
		cfg.MAL = &Service{}
	}
	if cfg.MAL.AuthURL == "" {
		cfg.MAL.AuthURL = malDefaults().AuthURL
	}
	if cfg.MAL.TokenURL == "" {
		cfg.MAL.TokenURL = malDefaults().TokenURL
	}
	cfg.MyAnimeList = nil

	if err := envconfig.Process(ctx, &cfg); err != nil {
		return Config{}, fmt.Errorf("error applying env overrides: %s", err)
	}

	return cfg, nil
}

// IntervalDuration parses the configured sync interval.
func (s Sync) IntervalDuration() (time.Duration, error) {
	d, err := time.ParseDuration(s.Interval)
	if err != nil {
		return 0, fmt.Errorf("invalid sync interval %q: %s", s.Interval, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("sync interval must be positive, got %q", s.Interval)
	}
	return d, nil
}

// Validate reports which credentials are missing or still placeholders.
// An empty slice means the config is usable.
func (c Config) Validate() []string {
	var invalid []string
	check := func(name, value string) {
		if placeholders[value] {
			invalid = append(invalid, name)
		}
	}

	check("ANILIST_CLIENT_ID", c.AniList.ClientID)
	check("ANILIST_CLIENT_SECRET", c.AniList.ClientSecret)
	check("ANILIST_USERNAME", c.AniList.Username)
	check("MAL_CLIENT_ID", c.MAL.ClientID)
	check("MAL_CLIENT_SECRET", c.MAL.ClientSecret)
	check("MAL_USERNAME", c.MAL.Username)

	return invalid
}
