package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
)

// DefaultAPIBase is the identity provider's API root.
const DefaultAPIBase = "https://discord.com/api"

// ErrLogin is wrapped by every identity provider failure.
var ErrLogin = errors.New("login failed")

// User is the profile kept in the session after login.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// AvatarURL returns the CDN address of the user's avatar image.
func (u User) AvatarURL() string {
	return fmt.Sprintf("https://cdn.discordapp.com/avatars/%s/%s.png", u.ID, u.Avatar)
}

// IdentityProvider turns an authorization code into a user profile.
type IdentityProvider interface {
	AuthCodeURL(state string) string
	Login(ctx context.Context, code string) (User, error)
}

// ProviderConfig configures an OAuthProvider. APIBase defaults to DefaultAPIBase.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	APIBase      string
	HTTPClient   *http.Client
}

// OAuthProvider is an IdentityProvider for an OAuth2 authorization-code flow
// with the "identify" scope followed by a profile lookup.
type OAuthProvider struct {
	oauth   *oauth2.Config
	apiBase string
	client  *http.Client
}

// NewOAuthProvider builds a provider from cfg.
func NewOAuthProvider(cfg ProviderConfig) *OAuthProvider {
	base := cfg.APIBase
	if base == "" {
		base = DefaultAPIBase
	}
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &OAuthProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       []string{"identify"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   base + "/oauth2/authorize",
				TokenURL:  base + "/oauth2/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		apiBase: base,
		client:  client,
	}
}

// AuthCodeURL returns the provider's consent page URL carrying state.
func (p *OAuthProvider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state)
}

// Exchange trades an authorization code for a bearer token.
func (p *OAuthProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)
	tok, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: token exchange: %w", ErrLogin, err)
	}
	return tok, nil
}

// FetchUser reads the profile of the token's owner.
func (p *OAuthProvider) FetchUser(ctx context.Context, tok *oauth2.Token) (User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBase+"/users/@me", nil)
	if err != nil {
		return User{}, err
	}
	tok.SetAuthHeader(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return User{}, fmt.Errorf("%w: fetch user: %w", ErrLogin, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return User{}, fmt.Errorf("%w: fetch user: status %d", ErrLogin, resp.StatusCode)
	}

	var u User
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return User{}, fmt.Errorf("%w: fetch user: %w", ErrLogin, err)
	}
	if u.ID == "" {
		return User{}, fmt.Errorf("%w: fetch user: profile has no id", ErrLogin)
	}
	return u, nil
}

// Login runs Exchange then FetchUser; either failing fails the login.
func (p *OAuthProvider) Login(ctx context.Context, code string) (User, error) {
	tok, err := p.Exchange(ctx, code)
	if err != nil {
		return User{}, err
	}
	return p.FetchUser(ctx, tok)
}
