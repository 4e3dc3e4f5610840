package discord

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
)

// OAuthConfig collects the registered application credentials and endpoints
// for the authorization-code flow.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	BaseURL      string
	// DevMode leaves the redirect URL untouched; outside dev mode the
	// scheme is forced to https regardless of how the process is fronted.
	DevMode bool
}

// OAuth drives the delegated OAuth2 flow against the platform and builds
// refreshing token sources bound to a persistence callback, so a silently
// rotated token is always written back to the caller's session.
type OAuth struct {
	config oauth2.Config
}

// NewOAuth constructs the flow from explicit configuration.
func NewOAuth(cfg OAuthConfig) *OAuth {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	redirect := cfg.RedirectURL
	if !cfg.DevMode {
		redirect = strings.Replace(redirect, "http://", "https://", 1)
	}
	return &OAuth{
		config: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  redirect,
			Endpoint: oauth2.Endpoint{
				AuthURL:   base + "/oauth2/authorize",
				TokenURL:  base + "/oauth2/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}
}

// AuthURL returns the platform authorization URL for the requested scopes
// together with the CSRF state the caller must stash in the session and
// verify on callback.
func (o *OAuth) AuthURL(scopes []string) (string, string, error) {
	state, err := randomState()
	if err != nil {
		return "", "", fmt.Errorf("discord: generate state: %w", err)
	}
	cfg := o.config
	cfg.Scopes = scopes
	return cfg.AuthCodeURL(state), state, nil
}

// Exchange trades the callback authorization code for a token pair.
func (o *OAuth) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := o.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("discord: exchange code: %w", err)
	}
	return tok, nil
}

// TokenSource wraps the library's auto-refreshing source so that onRefresh
// fires whenever a new access token replaces the stored one.
func (o *OAuth) TokenSource(ctx context.Context, tok *oauth2.Token, onRefresh func(*oauth2.Token)) oauth2.TokenSource {
	return &notifyingSource{
		src:       o.config.TokenSource(ctx, tok),
		last:      tok.AccessToken,
		onRefresh: onRefresh,
	}
}

type notifyingSource struct {
	src       oauth2.TokenSource
	last      string
	onRefresh func(*oauth2.Token)
}

func (s *notifyingSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if s.onRefresh != nil {
			s.onRefresh(tok)
		}
	}
	return tok, nil
}

func randomState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
