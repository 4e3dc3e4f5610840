package discord

import (
	"context"
	"net/http"
)

// Authorizer answers the two membership questions every protected operation
// depends on. Both go through the service credential: a user cannot be
// trusted to self-attest membership in a guild.
type Authorizer struct {
	client *Client
}

// NewAuthorizer constructs an Authorizer.
func NewAuthorizer(client *Client) *Authorizer {
	return &Authorizer{client: client}
}

// GuildContains reports whether the given user is a member of the given
// guild. All failures, transient ones included, read as false: the
// predicates are total and err toward denial.
func (a *Authorizer) GuildContains(ctx context.Context, guildID, userID string) bool {
	if guildID == "" || userID == "" {
		return false
	}
	resp, err := a.client.Bot(ctx, http.MethodGet, "/guilds/"+guildID+"/members/"+userID)
	return err == nil && resp.OK()
}

// BotInGuild reports whether the bot itself is installed in the guild. The
// character features only apply to guilds the bot is present in.
func (a *Authorizer) BotInGuild(ctx context.Context, guildID string) bool {
	if guildID == "" {
		return false
	}
	resp, err := a.client.Bot(ctx, http.MethodGet, "/guilds/"+guildID)
	return err == nil && resp.OK()
}
