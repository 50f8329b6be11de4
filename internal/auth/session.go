package auth

import (
	"net/http"
	"net/url"

	"room-broker/internal/session"
)

// Session keys written by the login flow.
const (
	userKey     = "info"
	redirectKey = "redirect_to"
	stateKey    = "oauth_state"
)

// DefaultRedirect is where a finished login lands when no redirect_to was given.
const DefaultRedirect = "/home"

// StoreUser records u as the logged-in user of s.
func StoreUser(s *session.Session, u User) {
	s.Set(userKey, map[string]any{
		"id":       u.ID,
		"username": u.Username,
		"avatar":   u.Avatar,
	})
}

// UserFrom returns the logged-in user of s, if any.
func UserFrom(s *session.Session) (User, bool) {
	v, ok := s.Get(userKey)
	if !ok {
		return User{}, false
	}
	m, ok := v.(map[string]any)
	if !ok {
		return User{}, false
	}
	str := func(k string) string {
		v, _ := m[k].(string)
		return v
	}
	u := User{ID: str("id"), Username: str("username"), Avatar: str("avatar")}
	if u.ID == "" {
		return User{}, false
	}
	return u, true
}

// RequireLogin redirects anonymous requests to /login, asking to come back to
// the requested path afterwards.
func RequireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserFrom(session.FromContext(r.Context())); !ok {
			target := "/login?" + url.Values{"redirect_to": {r.URL.Path}}.Encode()
			http.Redirect(w, r, target, http.StatusTemporaryRedirect)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// safeRedirect keeps redirects on this host.
func safeRedirect(target string) string {
	if target == "" || target[0] != '/' || (len(target) > 1 && (target[1] == '/' || target[1] == '\\')) {
		return DefaultRedirect
	}
	return target
}
