package session

import (
	"errors"
	"fmt"

	"github.com/gorilla/securecookie"
)

// DefaultCookieName is the cookie that carries the signed session.
const DefaultCookieName = "session"

// DefaultMaxAge is the signature lifetime in seconds (30 days).
const DefaultMaxAge = 86400 * 30

// ErrNoSecret is returned by NewCodec when the signing secret is empty.
var ErrNoSecret = errors.New("session: signing secret is required")

// Codec signs and verifies session cookies with a process-wide secret.
// A Codec is safe for concurrent use; its key is never mutated after
// construction.
type Codec struct {
	name string
	sc   *securecookie.SecureCookie
}

// CodecOption configures a Codec.
type CodecOption func(*codecOptions)

type codecOptions struct {
	name   string
	maxAge int
}

// WithCookieName sets the cookie name bound into the signature.
func WithCookieName(name string) CodecOption {
	return func(o *codecOptions) { o.name = name }
}

// WithMaxAge sets how long, in seconds, a signature stays valid. Zero disables
// timestamp expiry.
func WithMaxAge(seconds int) CodecOption {
	return func(o *codecOptions) { o.maxAge = seconds }
}

// NewCodec returns a Codec that signs with HMAC-SHA256 keyed by secret and
// serializes values as JSON. Values are signed, not encrypted.
func NewCodec(secret string, opts ...CodecOption) (*Codec, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	o := codecOptions{name: DefaultCookieName, maxAge: DefaultMaxAge}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxAge < 0 {
		return nil, fmt.Errorf("session: negative max age %d", o.maxAge)
	}

	sc := securecookie.New([]byte(secret), nil).
		SetSerializer(securecookie.JSONEncoder{}).
		MaxAge(o.maxAge)
	return &Codec{name: o.name, sc: sc}, nil
}

// Name returns the cookie name this codec signs for.
func (c *Codec) Name() string {
	return c.name
}

// Encode serializes and signs the session contents.
func (c *Codec) Encode(s *Session) (string, error) {
	raw, err := c.sc.Encode(c.name, s.Values())
	if err != nil {
		return "", fmt.Errorf("session: encode: %w", err)
	}
	return raw, nil
}

// Decode verifies raw and returns an independent Session holding its
// contents. Tampered, expired or malformed input returns an error.
func (c *Codec) Decode(raw string) (*Session, error) {
	var values map[string]any
	if err := c.sc.Decode(c.name, raw, &values); err != nil {
		return nil, fmt.Errorf("session: decode: %w", err)
	}
	return newFromValues(values), nil
}

// Load is Decode for request ingress: an empty or unverifiable cookie yields
// an empty session instead of an error. rejected reports whether a non-empty
// cookie was discarded.
func (c *Codec) Load(raw string) (s *Session, rejected bool) {
	if raw == "" {
		return New(), false
	}
	s, err := c.Decode(raw)
	if err != nil {
		return New(), true
	}
	return s, false
}
