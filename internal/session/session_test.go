package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
)

const testSecret = "test-secret-key-0123456789abcdef"

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec(testSecret)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return c
}

func flipByte(s string) string {
	b := []byte(s)
	i := len(b) / 2
	if b[i] == 'A' {
		b[i] = 'B'
	} else {
		b[i] = 'A'
	}
	return string(b)
}

func TestNewCodec_requires_secret(t *testing.T) {
	if _, err := NewCodec(""); !errors.Is(err, ErrNoSecret) {
		t.Errorf("expected ErrNoSecret, got %v", err)
	}
}

func TestCodec_round_trip(t *testing.T) {
	c := newTestCodec(t)

	cases := map[string]map[string]any{
		"empty": {},
		"flat": {
			"redirect_to":     "/room/ABCDE",
			"expect_requests": true,
			"count":           float64(3),
			"nothing":         nil,
		},
		"nested": {
			"info": map[string]any{
				"id":       "80351110224678912",
				"username": "nelly",
				"avatar":   "8342729096ea3675442027381ff50dfe",
			},
			"tags": []any{"a", "b"},
		},
	}

	for name, values := range cases {
		t.Run(name, func(t *testing.T) {
			s := New()
			for k, v := range values {
				s.Set(k, v)
			}
			raw, err := c.Encode(s)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			got, err := c.Decode(raw)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !reflect.DeepEqual(got.Values(), values) {
				t.Errorf("round trip mismatch: got %#v want %#v", got.Values(), values)
			}
			if got.Modified() {
				t.Error("freshly decoded session should not be modified")
			}
		})
	}
}

func TestCodec_tampered_cookie(t *testing.T) {
	c := newTestCodec(t)
	s := New()
	s.Set("info", map[string]any{"id": "1"})
	raw, err := c.Encode(s)
	if err != nil {
		t.Fatal(err)
	}

	tampered := flipByte(raw)
	if _, err := c.Decode(tampered); err == nil {
		t.Fatal("Decode should reject a tampered cookie")
	}

	got, rejected := c.Load(tampered)
	if !rejected {
		t.Error("Load should report the cookie as rejected")
	}
	if got == nil || got.Len() != 0 {
		t.Errorf("Load of tampered cookie should give an empty session, got %v", got)
	}
}

func TestCodec_other_secret_rejected(t *testing.T) {
	c := newTestCodec(t)
	other, err := NewCodec("a-completely-different-secret")
	if err != nil {
		t.Fatal(err)
	}
	s := New()
	s.Set("k", "v")
	raw, _ := other.Encode(s)

	got, rejected := c.Load(raw)
	if !rejected || got.Len() != 0 {
		t.Errorf("cookie signed with another secret: rejected=%v len=%d", rejected, got.Len())
	}
}

func TestCodec_Load_empty(t *testing.T) {
	c := newTestCodec(t)
	s, rejected := c.Load("")
	if rejected || s.Len() != 0 {
		t.Errorf("empty cookie: rejected=%v len=%d", rejected, s.Len())
	}
}

func TestCodec_decodes_are_independent(t *testing.T) {
	c := newTestCodec(t)
	s := New()
	s.Set("k", "v")
	raw, _ := c.Encode(s)

	a, _ := c.Load(raw)
	b, _ := c.Load(raw)
	a.Set("k", "changed")
	if b.GetString("k") != "v" {
		t.Errorf("decoded sessions must not share state, got %q", b.GetString("k"))
	}
}

func TestSession_mutations(t *testing.T) {
	s := New()
	if s.Modified() {
		t.Error("new session should not be modified")
	}

	s.Delete("absent")
	if s.Modified() {
		t.Error("deleting an absent key should not mark modified")
	}

	s.Set("flag", true)
	s.Set("name", "x")
	if !s.GetBool("flag") || s.GetString("name") != "x" {
		t.Errorf("unexpected values %v", s.Values())
	}
	if s.GetString("flag") != "" || s.GetBool("name") {
		t.Error("typed getters should return zero values on type mismatch")
	}

	s.Delete("flag")
	if _, ok := s.Get("flag"); ok {
		t.Error("flag should be deleted")
	}

	s.Clear()
	if s.Len() != 0 || !s.Modified() {
		t.Errorf("Clear: len=%d modified=%v", s.Len(), s.Modified())
	}
}

func TestFromContext_without_middleware(t *testing.T) {
	s := FromContext(context.Background())
	if s == nil || s.Len() != 0 {
		t.Error("FromContext should return an empty session outside the middleware")
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == DefaultCookieName {
			return c
		}
	}
	t.Fatal("response has no session cookie")
	return nil
}

func TestMiddleware_sets_cookie_unconditionally(t *testing.T) {
	c := newTestCodec(t)
	mw := Middleware(c, DefaultCookieOptions(), discardLogger(), nil)

	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	ck := sessionCookie(t, rec)
	if !ck.HttpOnly || ck.Path != "/" || ck.Secure {
		t.Errorf("unexpected cookie attributes: %+v", ck)
	}
	s, err := c.Decode(ck.Value)
	if err != nil || s.Len() != 0 {
		t.Errorf("expected a valid empty session cookie: err=%v", err)
	}
}

func TestMiddleware_secure_flag(t *testing.T) {
	c := newTestCodec(t)
	opts := DefaultCookieOptions()
	opts.Secure = true
	h := Middleware(c, opts, discardLogger(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if !sessionCookie(t, rec).Secure {
		t.Error("expected Secure cookie")
	}
}

func TestMiddleware_persists_mutations_across_requests(t *testing.T) {
	c := newTestCodec(t)
	mw := Middleware(c, DefaultCookieOptions(), discardLogger(), nil)

	write := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).Set("redirect_to", "/home")
		w.Write([]byte("ok"))
	}))
	rec := httptest.NewRecorder()
	write.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login", nil))
	ck := sessionCookie(t, rec)

	var seen string
	read := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context()).GetString("redirect_to")
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	}))
	req := httptest.NewRequest(http.MethodGet, "/authorized", nil)
	req.AddCookie(ck)
	rec2 := httptest.NewRecorder()
	read.ServeHTTP(rec2, req)

	if seen != "/home" {
		t.Errorf("expected redirect_to from cookie, got %q", seen)
	}
	if rec2.Code != http.StatusFound {
		t.Errorf("expected 302, got %d", rec2.Code)
	}
	if _, err := c.Decode(sessionCookie(t, rec2).Value); err != nil {
		t.Errorf("re-signed cookie should verify: %v", err)
	}
}

func TestMiddleware_tampered_cookie_is_anonymous(t *testing.T) {
	c := newTestCodec(t)
	rejects := 0
	mw := Middleware(c, DefaultCookieOptions(), discardLogger(), func() { rejects++ })

	s := New()
	s.Set("info", map[string]any{"id": "1"})
	raw, _ := c.Encode(s)

	var got int
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context()).Len()
		w.Write([]byte("ok"))
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: flipByte(raw)})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("tampered cookie must not fail the request, got %d", rec.Code)
	}
	if got != 0 {
		t.Errorf("expected empty session, got %d values", got)
	}
	if rejects != 1 {
		t.Errorf("expected one rejection, got %d", rejects)
	}
	if strings.Count(rec.Header().Get("Set-Cookie"), DefaultCookieName+"=") != 1 {
		t.Errorf("expected a fresh session cookie, got %q", rec.Header().Get("Set-Cookie"))
	}
}

func TestMiddleware_oversized_session_expires_cookie(t *testing.T) {
	c := newTestCodec(t)
	mw := Middleware(c, DefaultCookieOptions(), discardLogger(), nil)

	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).Set("blob", strings.Repeat("x", 4000))
		w.Write([]byte("ok"))
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	ck := sessionCookie(t, rec)
	if ck.MaxAge >= 0 || ck.Value != "" {
		t.Errorf("expected an expiring empty cookie, got %+v", ck)
	}
}

func TestMiddleware_changes_after_response_start_are_dropped(t *testing.T) {
	c := newTestCodec(t)
	mw := Middleware(c, DefaultCookieOptions(), discardLogger(), nil)

	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := FromContext(r.Context())
		sess.Set("before", "kept")
		w.Write([]byte("ok"))
		sess.Set("after", "lost")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	s, err := c.Decode(sessionCookie(t, rec).Value)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if s.GetString("before") != "kept" {
		t.Error("change made before the first write should be persisted")
	}
	if _, ok := s.Get("after"); ok {
		t.Error("change made after the first write should not reach the cookie")
	}
}
