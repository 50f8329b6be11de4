// Package quicklinks serves the landing endpoints: the home document and
// redirects to the bot invite and the support server.
package quicklinks

import (
	"log/slog"
	"net/http"

	"room-broker/internal/auth"
	"room-broker/internal/platform/respond"
	"room-broker/internal/session"

	"github.com/go-chi/chi/v5"
)

// Handler serves /, /home, /invite and /discord.
type Handler struct {
	inviteURL  string
	supportURL string
	log        *slog.Logger
}

// NewHandler returns a Handler redirecting /invite to inviteURL and /discord
// to supportURL. An empty URL makes its route answer 404.
func NewHandler(inviteURL, supportURL string, log *slog.Logger) *Handler {
	return &Handler{inviteURL: inviteURL, supportURL: supportURL, log: log}
}

// Routes mounts the quick links on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, auth.DefaultRedirect, http.StatusTemporaryRedirect)
	})
	r.Get("/home", h.Home)
	r.Get("/invite", h.redirectTo(h.inviteURL))
	r.Get("/discord", h.redirectTo(h.supportURL))
}

// Home is the body of GET /home. Login is nil for anonymous sessions.
type Home struct {
	Login *string `json:"login"`
}

// Home handles GET /home.
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	var home Home
	if u, ok := auth.UserFrom(session.FromContext(r.Context())); ok {
		home.Login = &u.Username
	}
	respond.JSON(w, http.StatusOK, home)
}

func (h *Handler) redirectTo(target string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if target == "" {
			h.log.Warn("quick link not configured", slog.String("path", r.URL.Path))
			respond.Wrap(w, http.StatusNotFound, "not configured")
			return
		}
		http.Redirect(w, r, target, http.StatusTemporaryRedirect)
	}
}
