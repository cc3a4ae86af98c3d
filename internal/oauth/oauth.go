// Package oauth owns authentication for both remote services: the browser
// authorization flows, the persisted token store, and refresh.
package oauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/exec"
	"runtime"
	"time"

	"golang.org/x/oauth2"

	"github.com/jdholdren/anisync/internal/config"
)

const (
	ServiceAniList = "anilist"
	ServiceMAL     = "mal"
)

// Manager glues the oauth2 configs for both services to the token store.
type Manager struct {
	store *Store

	anilist *oauth2.Config
	mal     *oauth2.Config

	callbackPort int
	openBrowser  func(url string) error
}

func NewManager(cfg config.Config, store *Store) *Manager {
	if cfg.MAL == nil {
		cfg.MAL = &config.Service{}
	}

	return &Manager{
		store: store,
		anilist: &oauth2.Config{
			ClientID:     cfg.AniList.ClientID,
			ClientSecret: cfg.AniList.ClientSecret,
			RedirectURL:  cfg.OAuth.RedirectURI,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AniList.AuthURL,
				TokenURL: cfg.AniList.TokenURL,
			},
		},
		mal: &oauth2.Config{
			ClientID:     cfg.MAL.ClientID,
			ClientSecret: cfg.MAL.ClientSecret,
			RedirectURL:  cfg.OAuth.RedirectURI,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.MAL.AuthURL,
				TokenURL: cfg.MAL.TokenURL,
			},
		},
		callbackPort: cfg.OAuth.Port,
		openBrowser:  openBrowser,
	}
}

func (m *Manager) conf(service string) (*oauth2.Config, error) {
	switch service {
	case ServiceAniList:
		return m.anilist, nil
	case ServiceMAL:
		return m.mal, nil
	}
	return nil, fmt.Errorf("unknown service: %q", service)
}

// ValidToken returns a usable access token for the service, refreshing an
// expired MAL token through its refresh token. AniList tokens are
// long-lived and have no refresh path: once expired, re-authorization is
// the only way forward.
func (m *Manager) ValidToken(ctx context.Context, service string) (string, error) {
	conf, err := m.conf(service)
	if err != nil {
		return "", err
	}

	tok := m.store.Token(service)
	if tok == nil || tok.AccessToken == "" {
		return "", fmt.Errorf("no stored token for %s", service)
	}

	if !m.store.Expired(service) {
		return tok.AccessToken, nil
	}

	if tok.RefreshToken == "" {
		return "", fmt.Errorf("token for %s is expired and has no refresh token", service)
	}

	slog.Info("refreshing expired token", "service", service)
	fresh, err := conf.TokenSource(ctx, tok).Token()
	if err != nil {
		return "", fmt.Errorf("error refreshing %s token: %w", service, err)
	}
	if err := m.store.SetToken(service, fresh); err != nil {
		return "", err
	}

	return fresh.AccessToken, nil
}

// Authorize runs the full browser flow for a service: open the provider's
// consent page, catch the redirect on a local listener, exchange the code
// and persist the resulting token.
//
// MAL implements PKCE with the plain challenge method, so the verifier
// doubles as the challenge.
func (m *Manager) Authorize(ctx context.Context, service string) error {
	conf, err := m.conf(service)
	if err != nil {
		return err
	}

	state, err := randomHex(16)
	if err != nil {
		return err
	}

	var authOpts []oauth2.AuthCodeOption
	var exchangeOpts []oauth2.AuthCodeOption
	if service == ServiceMAL {
		verifier := oauth2.GenerateVerifier()
		authOpts = append(authOpts,
			oauth2.SetAuthURLParam("code_challenge", verifier),
			oauth2.SetAuthURLParam("code_challenge_method", "plain"),
		)
		exchangeOpts = append(exchangeOpts, oauth2.SetAuthURLParam("code_verifier", verifier))
	}

	authURL := conf.AuthCodeURL(state, authOpts...)
	slog.Info("opening browser for authorization", "service", service)
	fmt.Printf("If the browser doesn't open, visit:\n%s\n", authURL)
	if err := m.openBrowser(authURL); err != nil {
		slog.Warn("couldn't open browser", "error", err)
	}

	code, err := m.awaitCallback(ctx, state)
	if err != nil {
		return err
	}

	tok, err := conf.Exchange(ctx, code, exchangeOpts...)
	if err != nil {
		return fmt.Errorf("error exchanging code for token: %w", err)
	}
	if err := m.store.SetToken(service, tok); err != nil {
		return err
	}

	slog.Info("authenticated", "service", service)
	return nil
}

// awaitCallback serves exactly one OAuth redirect on the configured port
// and hands back the authorization code.
func (m *Manager) awaitCallback(ctx context.Context, expectedState string) (string, error) {
	type callback struct {
		code string
		err  error
	}
	done := make(chan callback, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("state") != expectedState:
			http.Error(w, "state mismatch", http.StatusBadRequest)
			done <- callback{err: errors.New("state mismatch in oauth callback")}
		case q.Get("error") != "":
			http.Error(w, q.Get("error"), http.StatusBadRequest)
			done <- callback{err: fmt.Errorf("authorization denied: %s", q.Get("error"))}
		case q.Get("code") == "":
			http.Error(w, "missing code", http.StatusBadRequest)
			done <- callback{err: errors.New("no authorization code received")}
		default:
			fmt.Fprintln(w, "Authorized. You can close this tab.")
			done <- callback{code: q.Get("code")}
		}
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", m.callbackPort),
		Handler: mux,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			done <- callback{err: fmt.Errorf("error serving oauth callback: %s", err)}
		}
	}()
	defer func() {
		shutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()

	select {
	case cb := <-done:
		return cb.code, cb.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("error generating random state: %s", err)
	}
	return hex.EncodeToString(buf), nil
}

func openBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}
