// Package session moves session tokens between HTTP requests and responses
// using an HttpOnly cookie.
package session

import (
	"net/http"
	"time"

	"github.com/platinummonkey/larder/pkg/auth"
)

// DefaultCookieName is used when no name is configured
const DefaultCookieName = "session"

// CookieStore reads and writes the session cookie
type CookieStore struct {
	name   string
	secure bool
}

// NewCookieStore creates a cookie adapter. secure sets the Secure attribute
// and should be true in production.
func NewCookieStore(name string, secure bool) *CookieStore {
	if name == "" {
		name = DefaultCookieName
	}
	return &CookieStore{name: name, secure: secure}
}

// Name returns the cookie name
func (s *CookieStore) Name() string {
	return s.name
}

// Token returns the raw session token from the request, if any
func (s *CookieStore) Token(r *http.Request) (string, bool) {
	c, err := r.Cookie(s.name)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

// SetSession writes the session cookie. Max-Age matches the token lifetime.
func (s *CookieStore) SetSession(w http.ResponseWriter, token string, extended bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.name,
		Value:    token,
		Path:     "/",
		MaxAge:   int(auth.TokenTTL(extended) / time.Second),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSession expires the session cookie. It never inspects the request,
// so it works for stale or malformed cookies too.
func (s *CookieStore) ClearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
