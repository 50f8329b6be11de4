package session

import (
	"log/slog"
	"net/http"
	"sync"
)

// CookieOptions controls the attributes of the session cookie written on
// every response.
type CookieOptions struct {
	Path     string
	Domain   string
	MaxAge   int
	Secure   bool
	HTTPOnly bool
	SameSite http.SameSite
}

// DefaultCookieOptions returns the attributes used when none are configured.
func DefaultCookieOptions() CookieOptions {
	return CookieOptions{
		Path:     "/",
		MaxAge:   DefaultMaxAge,
		HTTPOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// committer wraps http.ResponseWriter and writes the session cookie right
// before the response headers go out.
type committer struct {
	http.ResponseWriter
	once   sync.Once
	commit func(http.Header)
}

func (w *committer) flushCookie() {
	w.once.Do(func() { w.commit(w.ResponseWriter.Header()) })
}

func (w *committer) WriteHeader(code int) {
	w.flushCookie()
	w.ResponseWriter.WriteHeader(code)
}

func (w *committer) Write(b []byte) (int, error) {
	w.flushCookie()
	return w.ResponseWriter.Write(b)
}

func (w *committer) Flush() {
	w.flushCookie()
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *committer) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Middleware returns chi-compatible middleware that loads the session cookie
// on ingress, binds the Session to the request context and re-signs it into
// the response on egress, whether or not it was modified.
//
// The cookie is committed when the handler first calls WriteHeader, Write or
// Flush, or when it returns without writing. Session changes made after the
// response has started are not persisted.
//
// If the session cannot be encoded (securecookie refuses values over 4096
// bytes) the cookie is expired instead, so the client does not keep a stale
// session. onReject, if non-nil, is called for every cookie that fails
// verification.
func Middleware(codec *Codec, opts CookieOptions, log *slog.Logger, onReject func()) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var raw string
			if c, err := r.Cookie(codec.Name()); err == nil {
				raw = c.Value
			}

			sess, rejected := codec.Load(raw)
			if rejected {
				log.Debug("session cookie rejected",
					slog.String("path", r.URL.Path),
					slog.String("remote_addr", r.RemoteAddr))
				if onReject != nil {
					onReject()
				}
			}

			wrap := &committer{ResponseWriter: w}
			wrap.commit = func(h http.Header) {
				cookie := &http.Cookie{
					Name:     codec.Name(),
					Path:     opts.Path,
					Domain:   opts.Domain,
					MaxAge:   opts.MaxAge,
					Secure:   opts.Secure,
					HttpOnly: opts.HTTPOnly,
					SameSite: opts.SameSite,
				}
				value, err := codec.Encode(sess)
				if err != nil {
					log.Error("session encode failed, expiring cookie",
						slog.String("path", r.URL.Path),
						slog.Int("values", sess.Len()),
						slog.String("error", err.Error()))
					cookie.MaxAge = -1
				} else {
					cookie.Value = value
				}
				if v := cookie.String(); v != "" {
					h.Add("Set-Cookie", v)
				}
			}

			next.ServeHTTP(wrap, r.WithContext(NewContext(r.Context(), sess)))
			wrap.flushCookie()

			if sess.Modified() {
				log.Debug("session updated", slog.String("path", r.URL.Path))
			}
		})
	}
}
