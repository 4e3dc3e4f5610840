package characters

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rollvault/rollvault/internal/discord"
	"github.com/rollvault/rollvault/internal/platform/httpx"
)

type memoryCharacterRepo struct {
	chars  map[int64]*Character
	nextID int64
}

func newMemoryCharacterRepo() *memoryCharacterRepo {
	return &memoryCharacterRepo{chars: make(map[int64]*Character)}
}

func (r *memoryCharacterRepo) GetByID(ctx context.Context, id int64) (*Character, error) {
	c, ok := r.chars[id]
	if !ok {
		return nil, httpx.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (r *memoryCharacterRepo) ListByGuild(ctx context.Context, guildID string) ([]Character, error) {
	out := []Character{}
	for _, c := range r.chars {
		if c.GuildID == guildID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memoryCharacterRepo) FindByGuildOwner(ctx context.Context, guildID, ownerID string) (*Character, error) {
	for _, c := range r.chars {
		if c.GuildID == guildID && c.OwnedBy(ownerID) {
			copied := *c
			return &copied, nil
		}
	}
	return nil, httpx.ErrNotFound
}

func (r *memoryCharacterRepo) Create(ctx context.Context, name, guildID string, ownerID *string) (*Character, error) {
	for _, c := range r.chars {
		if c.GuildID == guildID && c.Name == name {
			return nil, fmt.Errorf("character name already in use: %w", httpx.ErrConflict)
		}
		if ownerID != nil && c.GuildID == guildID && c.OwnedBy(*ownerID) {
			return nil, fmt.Errorf("already holding a character in this guild: %w", httpx.ErrConflict)
		}
	}
	r.nextID++
	c := &Character{
		ID:        r.nextID,
		Name:      name,
		GuildID:   guildID,
		OwnerID:   ownerID,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	r.chars[c.ID] = c
	copied := *c
	return &copied, nil
}

func (r *memoryCharacterRepo) Rename(ctx context.Context, id int64, name string) (*Character, error) {
	c, ok := r.chars[id]
	if !ok {
		return nil, httpx.ErrNotFound
	}
	c.Name = name
	copied := *c
	return &copied, nil
}

func (r *memoryCharacterRepo) Claim(ctx context.Context, id int64, ownerID string) (*Character, error) {
	c, ok := r.chars[id]
	if !ok {
		return nil, httpx.ErrNotFound
	}
	if c.OwnerID != nil {
		return nil, fmt.Errorf("character already held: %w", httpx.ErrConflict)
	}
	for _, other := range r.chars {
		if other.GuildID == c.GuildID && other.OwnedBy(ownerID) {
			return nil, fmt.Errorf("already holding a character in this guild: %w", httpx.ErrConflict)
		}
	}
	c.OwnerID = &ownerID
	copied := *c
	return &copied, nil
}

func (r *memoryCharacterRepo) Unclaim(ctx context.Context, id int64, ownerID string) (*Character, error) {
	c, ok := r.chars[id]
	if !ok || !c.OwnedBy(ownerID) {
		return nil, fmt.Errorf("character not held: %w", httpx.ErrConflict)
	}
	c.OwnerID = nil
	copied := *c
	return &copied, nil
}

// membershipStub answers membership from a fixed guild -> members table.
type membershipStub struct {
	members map[string][]string
}

func (m membershipStub) GuildContains(ctx context.Context, guildID, userID string) bool {
	for _, id := range m.members[guildID] {
		if id == userID {
			return true
		}
	}
	return false
}

func newCharacterService() (*Service, *memoryCharacterRepo) {
	repo := newMemoryCharacterRepo()
	svc := NewService(repo, membershipStub{members: map[string][]string{
		"guild-1": {"alice", "bob"},
		"guild-2": {"alice"},
	}})
	return svc, repo
}

var (
	alice = &discord.User{ID: "alice", Username: "alice"}
	bob   = &discord.User{ID: "bob", Username: "bob"}
	mal   = &discord.User{ID: "mallory", Username: "mallory"}
)

func TestCreateClaimedCharacter(t *testing.T) {
	svc, _ := newCharacterService()
	ctx := context.Background()

	c, err := svc.Create(ctx, alice, "guild-1", "Astra", true)
	require.NoError(t, err)
	require.True(t, c.OwnedBy("alice"))

	_, err = svc.Create(ctx, mal, "guild-1", "Shadow", false)
	require.ErrorIs(t, err, httpx.ErrForbidden)

	_, err = svc.Create(ctx, nil, "guild-1", "Ghost", false)
	require.ErrorIs(t, err, httpx.ErrUnauthenticated)
}

func TestGetForViewerVisibility(t *testing.T) {
	svc, _ := newCharacterService()
	ctx := context.Background()

	c, err := svc.Create(ctx, alice, "guild-1", "Astra", true)
	require.NoError(t, err)

	// The owner reads it as their own.
	got, own, err := svc.GetForViewer(ctx, alice, c.ID)
	require.NoError(t, err)
	require.True(t, own)
	require.Equal(t, "Astra", got.Name)

	// A fellow member sees it, not as their own.
	got, own, err = svc.GetForViewer(ctx, bob, c.ID)
	require.NoError(t, err)
	require.False(t, own)
	require.Equal(t, c.ID, got.ID)

	// Outsiders are denied, absent characters are not found.
	_, _, err = svc.GetForViewer(ctx, mal, c.ID)
	require.ErrorIs(t, err, httpx.ErrForbidden)
	_, _, err = svc.GetForViewer(ctx, alice, 999)
	require.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestGetForViewerDeniesOwnerWhoLeftGuild(t *testing.T) {
	repo := newMemoryCharacterRepo()
	svc := NewService(repo, membershipStub{members: map[string][]string{
		"guild-1": {"bob"},
	}})
	ctx := context.Background()

	// Alice claimed the character before leaving the guild.
	owner := "alice"
	c, err := repo.Create(ctx, "Astra", "guild-1", &owner)
	require.NoError(t, err)

	_, _, err = svc.GetForViewer(ctx, alice, c.ID)
	require.ErrorIs(t, err, httpx.ErrForbidden)
	require.ErrorIs(t, svc.AuthorizeRead(ctx, alice, c.ID), httpx.ErrForbidden)

	// Remaining members still see it.
	got, own, err := svc.GetForViewer(ctx, bob, c.ID)
	require.NoError(t, err)
	require.False(t, own)
	require.Equal(t, "Astra", got.Name)
}

func TestListGuildRequiresMembership(t *testing.T) {
	svc, _ := newCharacterService()
	ctx := context.Background()

	_, err := svc.Create(ctx, alice, "guild-1", "Astra", false)
	require.NoError(t, err)
	_, err = svc.Create(ctx, alice, "guild-1", "Borin", false)
	require.NoError(t, err)

	list, err := svc.ListGuild(ctx, bob, "guild-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "Astra", list[0].Name)
	require.Equal(t, "Borin", list[1].Name)

	_, err = svc.ListGuild(ctx, mal, "guild-1")
	require.ErrorIs(t, err, httpx.ErrForbidden)
}

func TestClaimTransitions(t *testing.T) {
	svc, _ := newCharacterService()
	ctx := context.Background()

	c, err := svc.Create(ctx, alice, "guild-1", "Astra", false)
	require.NoError(t, err)

	claimed, err := svc.Claim(ctx, bob, c.ID)
	require.NoError(t, err)
	require.True(t, claimed.OwnedBy("bob"))

	// A held character cannot be claimed again, not even by the holder.
	_, err = svc.Claim(ctx, alice, c.ID)
	require.ErrorIs(t, err, httpx.ErrConflict)
	_, err = svc.Claim(ctx, bob, c.ID)
	require.ErrorIs(t, err, httpx.ErrConflict)

	// Non-members cannot claim at all.
	c2, err := svc.Create(ctx, alice, "guild-1", "Borin", false)
	require.NoError(t, err)
	_, err = svc.Claim(ctx, mal, c2.ID)
	require.ErrorIs(t, err, httpx.ErrForbidden)
}

func TestClaimLimitedToOnePerGuild(t *testing.T) {
	svc, _ := newCharacterService()
	ctx := context.Background()

	_, err := svc.Create(ctx, alice, "guild-1", "Astra", true)
	require.NoError(t, err)
	c, err := svc.Create(ctx, alice, "guild-1", "Borin", false)
	require.NoError(t, err)

	_, err = svc.Claim(ctx, alice, c.ID)
	require.ErrorIs(t, err, httpx.ErrConflict)
}

func TestUnclaimRequiresOwnership(t *testing.T) {
	svc, _ := newCharacterService()
	ctx := context.Background()

	c, err := svc.Create(ctx, alice, "guild-1", "Astra", true)
	require.NoError(t, err)

	_, err = svc.Unclaim(ctx, bob, c.ID)
	require.ErrorIs(t, err, httpx.ErrForbidden)

	released, err := svc.Unclaim(ctx, alice, c.ID)
	require.NoError(t, err)
	require.Nil(t, released.OwnerID)
}

func TestRenameKeepsClaimState(t *testing.T) {
	svc, _ := newCharacterService()
	ctx := context.Background()

	c, err := svc.Create(ctx, alice, "guild-1", "Astra", true)
	require.NoError(t, err)

	renamed, err := svc.Rename(ctx, alice, c.ID, "Astra the Bold")
	require.NoError(t, err)
	require.Equal(t, "Astra the Bold", renamed.Name)
	require.True(t, renamed.OwnedBy("alice"))

	_, err = svc.Rename(ctx, bob, c.ID, "Stolen")
	require.ErrorIs(t, err, httpx.ErrForbidden)
}

func TestGetMine(t *testing.T) {
	svc, _ := newCharacterService()
	ctx := context.Background()

	_, err := svc.GetMine(ctx, alice, "guild-1")
	require.ErrorIs(t, err, httpx.ErrNotFound)

	created, err := svc.Create(ctx, alice, "guild-1", "Astra", true)
	require.NoError(t, err)

	mine, err := svc.GetMine(ctx, alice, "guild-1")
	require.NoError(t, err)
	require.Equal(t, created.ID, mine.ID)

	_, err = svc.GetMine(ctx, mal, "guild-1")
	require.ErrorIs(t, err, httpx.ErrForbidden)
}
