package characters

import (
	"context"
	"fmt"

	"github.com/rollvault/rollvault/internal/discord"
	"github.com/rollvault/rollvault/internal/platform/httpx"
)

// AuthorizerPort is the membership predicate characters depend on.
type AuthorizerPort interface {
	GuildContains(ctx context.Context, guildID, userID string) bool
}

// Service applies the two-tier access policy to character operations:
// reads require guild membership, mutations require ownership.
type Service struct {
	repo  RepositoryPort
	authz AuthorizerPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, authz AuthorizerPort) *Service {
	return &Service{repo: repo, authz: authz}
}

// GetForViewer loads a character for a membership-gated read and reports
// whether the viewer owns it.
func (s *Service) GetForViewer(ctx context.Context, viewer *discord.User, id int64) (*Character, bool, error) {
	if viewer == nil {
		return nil, false, httpx.ErrUnauthenticated
	}
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	// Membership gates every read, owners included: an owner who left the
	// guild loses access until they rejoin.
	if !s.authz.GuildContains(ctx, c.GuildID, viewer.ID) {
		return nil, false, fmt.Errorf("not a member of the character's guild: %w", httpx.ErrForbidden)
	}
	return c, c.OwnedBy(viewer.ID), nil
}

// GetOwned loads a character for an ownership-gated mutation.
func (s *Service) GetOwned(ctx context.Context, viewer *discord.User, id int64) (*Character, error) {
	if viewer == nil {
		return nil, httpx.ErrUnauthenticated
	}
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.OwnedBy(viewer.ID) {
		return nil, fmt.Errorf("not the character's owner: %w", httpx.ErrForbidden)
	}
	return c, nil
}

// AuthorizeRead is the secure=false gate used by sheet operations.
func (s *Service) AuthorizeRead(ctx context.Context, viewer *discord.User, id int64) error {
	_, _, err := s.GetForViewer(ctx, viewer, id)
	return err
}

// AuthorizeWrite is the secure=true gate used by sheet operations.
func (s *Service) AuthorizeWrite(ctx context.Context, viewer *discord.User, id int64) error {
	_, err := s.GetOwned(ctx, viewer, id)
	return err
}

// ListGuild returns every character in the guild, for members only.
func (s *Service) ListGuild(ctx context.Context, viewer *discord.User, guildID string) ([]Character, error) {
	if viewer == nil {
		return nil, httpx.ErrUnauthenticated
	}
	if !s.authz.GuildContains(ctx, guildID, viewer.ID) {
		return nil, fmt.Errorf("not a guild member: %w", httpx.ErrForbidden)
	}
	return s.repo.ListByGuild(ctx, guildID)
}

// GetMine returns the viewer's claimed character in the guild.
func (s *Service) GetMine(ctx context.Context, viewer *discord.User, guildID string) (*Character, error) {
	if viewer == nil {
		return nil, httpx.ErrUnauthenticated
	}
	if !s.authz.GuildContains(ctx, guildID, viewer.ID) {
		return nil, fmt.Errorf("not a guild member: %w", httpx.ErrForbidden)
	}
	return s.repo.FindByGuildOwner(ctx, guildID, viewer.ID)
}

// Create adds a character to the guild, optionally claimed by the creator.
func (s *Service) Create(ctx context.Context, viewer *discord.User, guildID, name string, claim bool) (*Character, error) {
	if viewer == nil {
		return nil, httpx.ErrUnauthenticated
	}
	if !s.authz.GuildContains(ctx, guildID, viewer.ID) {
		return nil, fmt.Errorf("not a guild member: %w", httpx.ErrForbidden)
	}
	var owner *string
	if claim {
		owner = &viewer.ID
	}
	return s.repo.Create(ctx, name, guildID, owner)
}

// Rename changes the character's name; owner only, claim state untouched.
func (s *Service) Rename(ctx context.Context, viewer *discord.User, id int64, name string) (*Character, error) {
	if _, err := s.GetOwned(ctx, viewer, id); err != nil {
		return nil, err
	}
	return s.repo.Rename(ctx, id, name)
}

// Claim assigns an unclaimed character to the viewer. Requires guild
// membership; losing a concurrent race yields a conflict, never a silent
// double-claim.
func (s *Service) Claim(ctx context.Context, viewer *discord.User, id int64) (*Character, error) {
	if viewer == nil {
		return nil, httpx.ErrUnauthenticated
	}
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.authz.GuildContains(ctx, c.GuildID, viewer.ID) {
		return nil, fmt.Errorf("not a member of the character's guild: %w", httpx.ErrForbidden)
	}
	return s.repo.Claim(ctx, id, viewer.ID)
}

// Unclaim releases the viewer's character back to the unclaimed pool.
func (s *Service) Unclaim(ctx context.Context, viewer *discord.User, id int64) (*Character, error) {
	c, err := s.GetOwned(ctx, viewer, id)
	if err != nil {
		return nil, err
	}
	if !s.authz.GuildContains(ctx, c.GuildID, viewer.ID) {
		return nil, fmt.Errorf("not a member of the character's guild: %w", httpx.ErrForbidden)
	}
	return s.repo.Unclaim(ctx, id, viewer.ID)
}
