package auth

import (
	"context"
	"encoding/json"

	"golang.org/x/oauth2"

	"github.com/rollvault/rollvault/internal/discord"
	"github.com/rollvault/rollvault/internal/shared"
)

const (
	// SessionTokenKey stores the delegated OAuth2 credential as JSON.
	SessionTokenKey = "oauth_token"
	// SessionStateKey stores the CSRF state between login and callback.
	SessionStateKey = "oauth_state"
)

// SaveToken writes the credential into the session. It is also the refresh
// hook for delegated token sources: a silently rotated token ends up here.
func SaveToken(sess *shared.Session, tok *oauth2.Token) {
	if sess == nil || tok == nil {
		return
	}
	data, err := json.Marshal(tok)
	if err != nil {
		return
	}
	sess.Set(SessionTokenKey, string(data))
}

// TokenFromSession reads the stored credential, nil when absent or garbled.
func TokenFromSession(sess *shared.Session) *oauth2.Token {
	if sess == nil {
		return nil
	}
	raw := sess.Get(SessionTokenKey)
	if raw == "" {
		return nil
	}
	var tok oauth2.Token
	if err := json.Unmarshal([]byte(raw), &tok); err != nil {
		return nil
	}
	return &tok
}

// CurrentUser resolves the caller of the current request from the session
// credential. A nil user with nil error means "not signed in". The token
// source can be used for further delegated calls within this request.
func CurrentUser(ctx context.Context, resolver *discord.Resolver) (*discord.User, oauth2.TokenSource, error) {
	sess := shared.SessionFromContext(ctx)
	if sess == nil {
		return nil, nil, nil
	}
	tok := TokenFromSession(sess)
	return resolver.Resolve(ctx, tok, func(t *oauth2.Token) {
		SaveToken(sess, t)
	})
}
