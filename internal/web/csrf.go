package web

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/securecookie"

	"github.com/jdholdren/anisync/internal/serverutil"
)

const (
	csrfCookieName = "anisync_csrf"
	csrfHeaderName = "X-CSRF-Token"
)

// Double-submit CSRF: GET /api/csrf hands out a token and sets the same
// value in an encrypted cookie. Mutations must echo the token in a header,
// and it has to match what the cookie decodes to.
func (s *Server) handleCSRFToken(w http.ResponseWriter, r *http.Request) error {
	token := uuid.NewString()

	encoded, err := s.secureCookie.Encode(csrfCookieName, token)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    encoded,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})

	return serverutil.WriteJSON(w, http.StatusOK, map[string]string{"token": token})
}

func requireCSRFMiddleware(sc *securecookie.SecureCookie) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(csrfCookieName)
			if errors.Is(err, http.ErrNoCookie) {
				http.Error(w, "missing csrf cookie", http.StatusForbidden)
				return
			}
			if err != nil {
				slog.Error("error fetching csrf cookie", "err", err)
				http.Error(w, "missing csrf cookie", http.StatusForbidden)
				return
			}

			var expected string
			if err := sc.Decode(csrfCookieName, cookie.Value, &expected); err != nil {
				http.Error(w, "invalid csrf cookie", http.StatusForbidden)
				return
			}

			got := r.Header.Get(csrfHeaderName)
			if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
				http.Error(w, "csrf token mismatch", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
