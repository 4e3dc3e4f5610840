package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/rollvault/rollvault/internal/platform/httpx"
)

// Resolver turns a stored credential into a verified platform identity.
// Resolution happens once per request and is never cached beyond it; the
// extra round trip is the price of never acting on a stale identity.
type Resolver struct {
	client *Client
	oauth  *OAuth
}

// NewResolver constructs a Resolver.
func NewResolver(client *Client, oauth *OAuth) *Resolver {
	return &Resolver{client: client, oauth: oauth}
}

// Resolve issues a delegated "who am I" call with the stored token. It
// returns a nil identity (and no error) when the caller is simply not
// signed in: a nil token, an unrefreshable credential, or an upstream
// answer without an id field. The returned token source stays valid for
// further delegated calls within the same request.
func (r *Resolver) Resolve(ctx context.Context, tok *oauth2.Token, onRefresh func(*oauth2.Token)) (*User, oauth2.TokenSource, error) {
	if tok == nil || tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, nil, nil
	}

	ts := r.oauth.TokenSource(ctx, tok, onRefresh)
	resp, err := r.client.AsUser(ctx, ts, http.MethodGet, "/users/@me")
	if err != nil {
		var tokenErr *TokenError
		if errors.As(err, &tokenErr) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("resolve identity: %v: %w", err, httpx.ErrUpstream)
	}

	var user User
	if resp.OK() {
		if err := json.Unmarshal(resp.Body, &user); err != nil {
			return nil, nil, fmt.Errorf("resolve identity: decode: %v: %w", err, httpx.ErrUpstream)
		}
	}
	if user.ID == "" {
		return nil, ts, nil
	}
	return &user, ts, nil
}
