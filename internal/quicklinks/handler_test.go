package quicklinks

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"room-broker/internal/auth"
	"room-broker/internal/platform/logger"
	"room-broker/internal/session"

	"github.com/go-chi/chi/v5"
)

func newTestRouter(sess *session.Session, invite, support string) *chi.Mux {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(session.NewContext(req.Context(), sess)))
		})
	})
	NewHandler(invite, support, logger.Discard()).Routes(r)
	return r
}

func serve(r http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHandler_redirects(t *testing.T) {
	r := newTestRouter(session.New(), "https://invite.example.com", "https://support.example.com")

	cases := []struct {
		path     string
		location string
	}{
		{"/", "/home"},
		{"/invite", "https://invite.example.com"},
		{"/discord", "https://support.example.com"},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			rec := serve(r, tc.path)
			if rec.Code != http.StatusTemporaryRedirect || rec.Header().Get("Location") != tc.location {
				t.Errorf("expected redirect to %q, got %d %q", tc.location, rec.Code, rec.Header().Get("Location"))
			}
		})
	}
}

func TestHandler_unconfigured_link(t *testing.T) {
	r := newTestRouter(session.New(), "", "")
	for _, path := range []string{"/invite", "/discord"} {
		if rec := serve(r, path); rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, rec.Code)
		}
	}
}

func TestHandler_Home(t *testing.T) {
	sess := session.New()
	r := newTestRouter(sess, "", "")

	rec := serve(r, "/home")
	if rec.Code != http.StatusOK || rec.Body.String() != "{\"login\":null}\n" {
		t.Errorf("expected null login, got %d %q", rec.Code, rec.Body.String())
	}

	auth.StoreUser(sess, auth.User{ID: "1", Username: "viewer", Avatar: "a"})
	rec = serve(r, "/home")
	var home map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &home); err != nil || home["login"] != "viewer" {
		t.Errorf("expected login viewer, got %s (%v)", rec.Body.String(), err)
	}
}
