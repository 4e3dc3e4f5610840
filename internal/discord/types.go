// Package discord integrates with the Discord REST API: a rate-limit aware
// HTTP client usable with either the bot credential or a delegated user
// token, the OAuth2 authorization-code flow, identity resolution, and the
// membership predicates every authorization decision is built on.
package discord

// User is a platform identity as returned by /users/@me. It is resolved
// fresh from the session credential on every request and never stored.
type User struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator"`
	Avatar        string `json:"avatar"`
}

// Guild is a chat server as returned by the platform guild resources.
type Guild struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Icon  string `json:"icon"`
	Owner bool   `json:"owner"`
}
