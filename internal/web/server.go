// Package web serves the dashboard: a small HTML status page plus the JSON
// API behind it for status, run history, manual syncs and config edits.
package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/securecookie"
	"gopkg.in/yaml.v3"

	"github.com/jdholdren/anisync/internal/anisync"
	"github.com/jdholdren/anisync/internal/config"
	syncerrs "github.com/jdholdren/anisync/internal/errors"
	"github.com/jdholdren/anisync/internal/service"
	"github.com/jdholdren/anisync/internal/serverutil"
)

const maxConfigBytes = 1 << 20

type (
	// Server exposes the dashboard and its JSON API.
	Server struct {
		*http.Server

		svc        *service.Service
		history    anisync.HistoryRepo
		configPath string

		secureCookie *securecookie.SecureCookie
	}

	ServerConfig struct {
		Host           string
		Port           int
		CookieHashKey  []byte
		CookieBlockKey []byte
		CorsOrigin     string
		ConfigPath     string
	}
)

func NewServer(cfg ServerConfig, svc *service.Service, history anisync.HistoryRepo) *Server {
	// Keys are ephemeral unless provided. Losing them on restart only
	// invalidates outstanding CSRF cookies, which is fine.
	if len(cfg.CookieHashKey) == 0 {
		cfg.CookieHashKey = securecookie.GenerateRandomKey(32)
	}
	if len(cfg.CookieBlockKey) == 0 {
		cfg.CookieBlockKey = securecookie.GenerateRandomKey(32)
	}

	r := serverutil.ErrRouter{Router: mux.NewRouter()}

	srvr := Server{
		svc:          svc,
		history:      history,
		configPath:   cfg.ConfigPath,
		secureCookie: securecookie.New(cfg.CookieHashKey, cfg.CookieBlockKey),
		Server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			Handler: handlers.CORS(
				handlers.AllowedOrigins([]string{corsOrigin(cfg)}),
				handlers.AllowCredentials(),
				handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
				handlers.AllowedHeaders([]string{"content-type", csrfHeaderName}),
			)(r),
		},
	}

	r.Use(serverutil.AccessLogMiddleware)
	r.HandleFuncE("/", srvr.handleDashboard).Methods(http.MethodGet)
	r.HandleFuncE("/healthz", srvr.handleHealthz).Methods(http.MethodGet)
	r.HandleFuncE("/api/status", srvr.handleStatus).Methods(http.MethodGet)
	r.HandleFuncE("/api/history", srvr.handleHistory).Methods(http.MethodGet)
	r.HandleFuncE("/api/csrf", srvr.handleCSRFToken).Methods(http.MethodGet)
	r.HandleFuncE("/api/config", srvr.handleGetConfig).Methods(http.MethodGet)

	// Mutations require the CSRF double-submit check.
	mutations := serverutil.ErrRouter{Router: r.NewRoute().Subrouter()}
	mutations.Use(requireCSRFMiddleware(srvr.secureCookie))
	mutations.HandleFuncE("/api/sync", srvr.handleSync).Methods(http.MethodPost)
	mutations.HandleFuncE("/api/config", srvr.handlePutConfig).Methods(http.MethodPost)

	return &srvr
}

func corsOrigin(cfg ServerConfig) string {
	if cfg.CorsOrigin != "" {
		return cfg.CorsOrigin
	}
	return fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) error {
	return serverutil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) error {
	return serverutil.WriteJSON(w, http.StatusOK, s.svc.Status())
}

// RunResp is the wire shape of one recorded run.
type RunResp struct {
	ID            string    `json:"id"`
	Mode          string    `json:"mode"`
	DryRun        bool      `json:"dry_run"`
	Success       bool      `json:"success"`
	EntriesSynced int       `json:"entries_synced"`
	EntriesFailed int       `json:"entries_failed"`
	Unmatched     int       `json:"unmatched"`
	Errors        []string  `json:"errors"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}

func runResp(run anisync.Run) RunResp {
	errs := run.Errors
	if errs == nil {
		errs = []string{}
	}
	return RunResp{
		ID:            run.ID,
		Mode:          run.Mode,
		DryRun:        run.DryRun,
		Success:       run.Success,
		EntriesSynced: run.EntriesSynced,
		EntriesFailed: run.EntriesFailed,
		Unmatched:     run.Unmatched,
		Errors:        errs,
		StartedAt:     run.StartedAt,
		FinishedAt:    run.FinishedAt,
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) error {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return syncerrs.E(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = min(parsed, 100)
	}
	mode := r.URL.Query().Get("mode")

	resp := []RunResp{}
	if s.history != nil {
		runs, err := s.history.RecentRuns(r.Context(), mode, limit)
		if err != nil {
			return fmt.Errorf("fetching run history: %w", err)
		}
		for _, run := range runs {
			resp = append(resp, runResp(run))
		}
	}

	return serverutil.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) error {
	run, err := s.svc.TriggerSync(r.Context())
	if errors.Is(err, service.ErrRunInProgress) {
		return syncerrs.E(http.StatusConflict, "a sync run is already in progress")
	}
	if err != nil {
		// The run record still carries what happened, so hand it back
		// alongside the failure status.
		return serverutil.WriteJSON(w, http.StatusBadGateway, runResp(run))
	}

	return serverutil.WriteJSON(w, http.StatusOK, runResp(run))
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) error {
	raw, err := os.ReadFile(s.configPath)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	w.Header().Set("Content-Type", "application/x-yaml")
	w.WriteHeader(http.StatusOK)
	_, err = w.Write(raw)
	return err
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) error {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxConfigBytes))
	if err != nil {
		return fmt.Errorf("reading request body: %w", err)
	}

	// Reject anything that isn't a parseable config before touching the
	// file. Edits take effect on the next restart.
	var cfg config.Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return syncerrs.E(http.StatusBadRequest, "config is not valid yaml", syncerrs.Detail{Field: "body", Error: err.Error()})
	}

	tmp := s.configPath + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.configPath), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	if err := os.Rename(tmp, s.configPath); err != nil {
		return fmt.Errorf("replacing config file: %w", err)
	}

	return serverutil.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "saved",
		"note":   "changes take effect on the next restart",
	})
}
