package discord

import (
	"net/url"
	"strings"
	"testing"

	"golang.org/x/oauth2"
)

func TestAuthURLCarriesStateAndScopes(t *testing.T) {
	oauth := NewOAuth(OAuthConfig{
		ClientID:    "client-id",
		RedirectURL: "http://localhost:8080/auth/callback",
		DevMode:     true,
	})

	raw, state, err := oauth.AuthURL([]string{"identify", "guilds"})
	if err != nil {
		t.Fatalf("AuthURL returned error: %v", err)
	}
	if state == "" {
		t.Fatalf("expected non-empty state")
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse auth url: %v", err)
	}
	q := parsed.Query()
	if q.Get("state") != state {
		t.Fatalf("url state %q does not match returned state %q", q.Get("state"), state)
	}
	if q.Get("client_id") != "client-id" {
		t.Fatalf("unexpected client_id %q", q.Get("client_id"))
	}
	if q.Get("scope") != "identify guilds" {
		t.Fatalf("unexpected scope %q", q.Get("scope"))
	}
}

func TestAuthURLStateIsUnique(t *testing.T) {
	oauth := NewOAuth(OAuthConfig{ClientID: "client-id", DevMode: true})
	_, first, err := oauth.AuthURL(nil)
	if err != nil {
		t.Fatalf("AuthURL returned error: %v", err)
	}
	_, second, err := oauth.AuthURL(nil)
	if err != nil {
		t.Fatalf("AuthURL returned error: %v", err)
	}
	if first == second {
		t.Fatalf("state must differ between logins")
	}
}

func TestRedirectForcedToHTTPSOutsideDevMode(t *testing.T) {
	oauth := NewOAuth(OAuthConfig{
		ClientID:    "client-id",
		RedirectURL: "http://example.com/auth/callback",
	})
	raw, _, err := oauth.AuthURL(nil)
	if err != nil {
		t.Fatalf("AuthURL returned error: %v", err)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse auth url: %v", err)
	}
	redirect := parsed.Query().Get("redirect_uri")
	if !strings.HasPrefix(redirect, "https://") {
		t.Fatalf("expected https redirect, got %q", redirect)
	}
}

func TestRedirectUntouchedInDevMode(t *testing.T) {
	oauth := NewOAuth(OAuthConfig{
		ClientID:    "client-id",
		RedirectURL: "http://localhost:8080/auth/callback",
		DevMode:     true,
	})
	raw, _, err := oauth.AuthURL(nil)
	if err != nil {
		t.Fatalf("AuthURL returned error: %v", err)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse auth url: %v", err)
	}
	if got := parsed.Query().Get("redirect_uri"); got != "http://localhost:8080/auth/callback" {
		t.Fatalf("dev mode redirect changed: %q", got)
	}
}

type sequenceSource struct {
	tokens []*oauth2.Token
	i      int
}

func (s *sequenceSource) Token() (*oauth2.Token, error) {
	tok := s.tokens[s.i]
	if s.i < len(s.tokens)-1 {
		s.i++
	}
	return tok, nil
}

func TestNotifyingSourceFiresOnRotation(t *testing.T) {
	rotated := &oauth2.Token{AccessToken: "new"}
	src := &sequenceSource{tokens: []*oauth2.Token{
		{AccessToken: "old"},
		rotated,
	}}

	var notified []*oauth2.Token
	ns := &notifyingSource{
		src:  src,
		last: "old",
		onRefresh: func(tok *oauth2.Token) {
			notified = append(notified, tok)
		},
	}

	// Same token: no notification.
	if _, err := ns.Token(); err != nil {
		t.Fatalf("Token returned error: %v", err)
	}
	if len(notified) != 0 {
		t.Fatalf("unexpected notification for unchanged token")
	}

	// Rotated token: one notification carrying the new credential.
	if _, err := ns.Token(); err != nil {
		t.Fatalf("Token returned error: %v", err)
	}
	if len(notified) != 1 || notified[0] != rotated {
		t.Fatalf("expected one notification with rotated token, got %v", notified)
	}

	// Stable thereafter.
	if _, err := ns.Token(); err != nil {
		t.Fatalf("Token returned error: %v", err)
	}
	if len(notified) != 1 {
		t.Fatalf("expected no further notifications, got %d", len(notified))
	}
}
