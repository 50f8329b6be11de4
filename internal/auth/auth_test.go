package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"room-broker/internal/platform/logger"
	"room-broker/internal/session"

	"github.com/go-chi/chi/v5"
)

// fakeProvider is an httptest server speaking the token and profile endpoints.
func fakeProvider(t *testing.T, tokenStatus, userStatus int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth2/token":
			if err := r.ParseForm(); err != nil || r.PostForm.Get("code") != "good-code" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(tokenStatus)
			w.Write([]byte(`{"access_token":"tok-1","token_type":"Bearer","expires_in":3600}`))
		case "/users/@me":
			if r.Header.Get("Authorization") != "Bearer tok-1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.WriteHeader(userStatus)
			w.Write([]byte(`{"id":"80351110224678912","username":"nelly","avatar":"8342729096ea"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestProvider(base string) *OAuthProvider {
	return NewOAuthProvider(ProviderConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURI:  "https://rooms.example.com/authorized",
		APIBase:      base,
	})
}

// newTestRouter binds sess to every request instead of going through cookies.
func newTestRouter(p IdentityProvider, sess *session.Session) *chi.Mux {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(session.NewContext(req.Context(), sess)))
		})
	})
	NewHandler(p, logger.Discard()).Routes(r)
	r.With(RequireLogin).Get("/room/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r
}

func get(r http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestUser_AvatarURL(t *testing.T) {
	u := User{ID: "42", Avatar: "abc"}
	if got := u.AvatarURL(); got != "https://cdn.discordapp.com/avatars/42/abc.png" {
		t.Errorf("unexpected avatar url %q", got)
	}
}

func TestOAuthProvider_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		p := newTestProvider(fakeProvider(t, http.StatusOK, http.StatusOK).URL)
		u, err := p.Login(ctx, "good-code")
		if err != nil {
			t.Fatalf("Login: %v", err)
		}
		if u.ID != "80351110224678912" || u.Username != "nelly" {
			t.Errorf("unexpected user %+v", u)
		}
	})

	t.Run("bad_code", func(t *testing.T) {
		p := newTestProvider(fakeProvider(t, http.StatusOK, http.StatusOK).URL)
		if _, err := p.Login(ctx, "other"); !errors.Is(err, ErrLogin) {
			t.Errorf("expected ErrLogin, got %v", err)
		}
	})

	t.Run("profile_error", func(t *testing.T) {
		p := newTestProvider(fakeProvider(t, http.StatusOK, http.StatusInternalServerError).URL)
		if _, err := p.Login(ctx, "good-code"); !errors.Is(err, ErrLogin) {
			t.Errorf("expected ErrLogin, got %v", err)
		}
	})
}

func TestOAuthProvider_AuthCodeURL(t *testing.T) {
	p := newTestProvider("https://idp.example.com/api")
	u, err := url.Parse(p.AuthCodeURL("st-1"))
	if err != nil {
		t.Fatal(err)
	}
	q := u.Query()
	if u.Path != "/api/oauth2/authorize" || q.Get("state") != "st-1" || q.Get("scope") != "identify" ||
		q.Get("client_id") != "client" || q.Get("response_type") != "code" {
		t.Errorf("unexpected auth url %s", u)
	}
}

func TestHandler_login_flow(t *testing.T) {
	p := newTestProvider(fakeProvider(t, http.StatusOK, http.StatusOK).URL)
	sess := session.New()
	r := newTestRouter(p, sess)

	rec := get(r, "/room/ABCDE")
	if rec.Code != http.StatusTemporaryRedirect || rec.Header().Get("Location") != "/login?redirect_to=%2Froom%2FABCDE" {
		t.Fatalf("expected redirect to login, got %d %q", rec.Code, rec.Header().Get("Location"))
	}

	rec = get(r, "/login?redirect_to=/room/ABCDE")
	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("expected redirect to provider, got %d", rec.Code)
	}
	loc, _ := url.Parse(rec.Header().Get("Location"))
	state := loc.Query().Get("state")
	if state == "" || state != sess.GetString(stateKey) {
		t.Fatalf("state %q not stored in session", state)
	}

	rec = get(r, "/authorized?code=good-code&state="+state)
	if rec.Code != http.StatusTemporaryRedirect || rec.Header().Get("Location") != "/room/ABCDE" {
		t.Fatalf("expected redirect back to room, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
	if _, ok := sess.Get(stateKey); ok {
		t.Error("state should be consumed")
	}

	rec = get(r, "/room/ABCDE")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 after login, got %d", rec.Code)
	}

	rec = get(r, "/api/@me")
	var me map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&me); err != nil {
		t.Fatal(err)
	}
	if me["username"] != "nelly" || !strings.HasSuffix(me["avatar"], "/80351110224678912/8342729096ea.png") {
		t.Errorf("unexpected @me %v", me)
	}

	rec = get(r, "/logout")
	if rec.Code != http.StatusTemporaryRedirect || sess.Len() != 0 {
		t.Errorf("logout should clear the session, got %d with %d values", rec.Code, sess.Len())
	}
}

func TestHandler_Authorized_errors(t *testing.T) {
	t.Run("state_mismatch", func(t *testing.T) {
		sess := session.New()
		sess.Set(stateKey, "expected")
		r := newTestRouter(newTestProvider(fakeProvider(t, http.StatusOK, http.StatusOK).URL), sess)

		rec := get(r, "/authorized?code=good-code&state=forged")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
		if _, ok := UserFrom(sess); ok {
			t.Error("user must not be stored on state mismatch")
		}
	})

	t.Run("no_state_in_session", func(t *testing.T) {
		r := newTestRouter(newTestProvider("http://127.0.0.1:0"), session.New())
		if rec := get(r, "/authorized?code=good-code&state="); rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("provider_failure", func(t *testing.T) {
		sess := session.New()
		sess.Set(stateKey, "st")
		r := newTestRouter(newTestProvider(fakeProvider(t, http.StatusBadRequest, http.StatusOK).URL), sess)

		rec := get(r, "/authorized?code=good-code&state=st")
		if rec.Code != http.StatusBadGateway {
			t.Errorf("expected 502, got %d", rec.Code)
		}
	})

	t.Run("missing_code", func(t *testing.T) {
		r := newTestRouter(newTestProvider("http://127.0.0.1:0"), session.New())
		if rec := get(r, "/authorized"); rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})
}

func TestHandler_Login_already_logged_in(t *testing.T) {
	sess := session.New()
	StoreUser(sess, User{ID: "1", Username: "u"})
	r := newTestRouter(newTestProvider("http://127.0.0.1:0"), sess)

	rec := get(r, "/login?redirect_to=//evil.example.com")
	if rec.Header().Get("Location") != DefaultRedirect {
		t.Errorf("expected off-site redirect to fall back to %s, got %q", DefaultRedirect, rec.Header().Get("Location"))
	}
}
