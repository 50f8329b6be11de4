// Package auth implements login through an OAuth2 identity provider and the
// RequireLogin middleware that guards viewer pages.
package auth

import (
	"log/slog"
	"net/http"

	"room-broker/internal/platform/respond"
	"room-broker/internal/session"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Handler serves the login flow.
type Handler struct {
	provider IdentityProvider
	log      *slog.Logger
}

// NewHandler returns a Handler that logs users in through provider.
func NewHandler(provider IdentityProvider, log *slog.Logger) *Handler {
	return &Handler{provider: provider, log: log}
}

// Routes mounts the login endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/login", h.Login)
	r.Get("/authorized", h.Authorized)
	r.Get("/logout", h.Logout)
	r.With(RequireLogin).Get("/api/@me", h.Me)
}

// Login handles GET /login?redirect_to=<path>.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	target := safeRedirect(r.URL.Query().Get("redirect_to"))

	if _, ok := UserFrom(sess); ok {
		http.Redirect(w, r, target, http.StatusTemporaryRedirect)
		return
	}

	state := uuid.NewString()
	sess.Set(redirectKey, target)
	sess.Set(stateKey, state)
	http.Redirect(w, r, h.provider.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

// Authorized handles GET /authorized?code=&state=, the provider's callback.
func (h *Handler) Authorized(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	q := r.URL.Query()

	code := q.Get("code")
	if code == "" {
		respond.Wrap(w, http.StatusBadRequest, "missing code")
		return
	}

	expected := sess.GetString(stateKey)
	if expected == "" || q.Get("state") != expected {
		h.log.Info("login state mismatch", slog.String("remote_addr", r.RemoteAddr))
		respond.Wrap(w, http.StatusUnauthorized, "invalid login state")
		return
	}
	sess.Delete(stateKey)

	user, err := h.provider.Login(r.Context(), code)
	if err != nil {
		h.log.Error("login failed", slog.String("error", err.Error()))
		respond.Wrap(w, http.StatusBadGateway, "login failed")
		return
	}

	StoreUser(sess, user)
	target := safeRedirect(sess.GetString(redirectKey))
	sess.Delete(redirectKey)

	h.log.Info("user logged in", slog.String("user_id", user.ID))
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

// Me handles GET /api/@me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(session.FromContext(r.Context()))
	respond.JSON(w, http.StatusOK, map[string]string{
		"username": user.Username,
		"avatar":   user.AvatarURL(),
	})
}

// Logout handles GET /logout.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	session.FromContext(r.Context()).Clear()
	http.Redirect(w, r, DefaultRedirect, http.StatusTemporaryRedirect)
}
