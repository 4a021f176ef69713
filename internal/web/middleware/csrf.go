package middleware

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
)

const (
	// CSRFCookieName is the cookie holding the per-browser token.
	CSRFCookieName = "csrftoken"

	// CSRFFieldName is the form field the token is echoed in.
	CSRFFieldName = "csrfmiddlewaretoken"

	// CSRFHeaderName may carry the token instead of the form field.
	CSRFHeaderName = "X-CSRFToken"

	csrfTokenBytes = 16
	csrfCookieAge  = 365 * 24 * 60 * 60
)

// ErrCSRF is returned when a form post carries no token or the wrong one.
var ErrCSRF = errors.New("csrf token missing or incorrect")

type csrfKey struct{}

// CSRFCookie ensures every response carries a csrftoken cookie and stores
// the token in the request context for forms to embed.
func CSRFCookie(secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ""
			if c, err := r.Cookie(CSRFCookieName); err == nil && validToken(c.Value) {
				token = c.Value
			} else {
				token = newToken()
				http.SetCookie(w, &http.Cookie{
					Name:     CSRFCookieName,
					Value:    token,
					Path:     "/",
					MaxAge:   csrfCookieAge,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), csrfKey{}, token)))
		})
	}
}

// CSRFToken returns the token CSRFCookie stored in ctx.
func CSRFToken(ctx context.Context) string {
	token, _ := ctx.Value(csrfKey{}).(string)
	return token
}

// VerifyCSRF compares the cookie token with the one submitted in the form
// (or header). The form must already be parsed for multipart requests.
func VerifyCSRF(r *http.Request) error {
	cookie, err := r.Cookie(CSRFCookieName)
	if err != nil || cookie.Value == "" {
		slog.Warn("csrf: missing cookie",
			"path", r.URL.Path,
			"method", r.Method,
			"remote_addr", r.RemoteAddr,
		)
		return ErrCSRF
	}

	submitted := r.FormValue(CSRFFieldName)
	if submitted == "" {
		submitted = r.Header.Get(CSRFHeaderName)
	}

	if subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(submitted)) != 1 {
		slog.Warn("csrf: token mismatch",
			"path", r.URL.Path,
			"method", r.Method,
			"remote_addr", r.RemoteAddr,
		)
		return ErrCSRF
	}
	return nil
}

func newToken() string {
	b := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(b); err != nil {
		panic("csrf: crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(b)
}

// validToken rejects cookie values this middleware could not have issued.
func validToken(s string) bool {
	if len(s) != 2*csrfTokenBytes {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
