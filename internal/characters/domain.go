// Package characters owns the character entity and its claim lifecycle.
// A character belongs to one guild, is either unclaimed or owned by exactly
// one guild member, and gates access to all of its sheet attributes.
package characters

import "time"

// Character is the locally persisted attribute-sheet entity.
type Character struct {
	ID        int64
	Name      string
	GuildID   string
	OwnerID   *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OwnedBy reports whether the character is currently claimed by userID.
func (c *Character) OwnedBy(userID string) bool {
	return c != nil && c.OwnerID != nil && *c.OwnerID == userID
}
