package characters

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rollvault/rollvault/internal/platform/db"
	"github.com/rollvault/rollvault/internal/platform/httpx"
)

// RepositoryPort defines data access methods for characters.
type RepositoryPort interface {
	GetByID(ctx context.Context, id int64) (*Character, error)
	ListByGuild(ctx context.Context, guildID string) ([]Character, error)
	FindByGuildOwner(ctx context.Context, guildID, ownerID string) (*Character, error)
	Create(ctx context.Context, name, guildID string, ownerID *string) (*Character, error)
	Rename(ctx context.Context, id int64, name string) (*Character, error)
	Claim(ctx context.Context, id int64, ownerID string) (*Character, error)
	Unclaim(ctx context.Context, id int64, ownerID string) (*Character, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const characterColumns = `id, name, guild_id, owner_id, created_at, updated_at`

func scanCharacter(row pgx.Row) (*Character, error) {
	var c Character
	if err := row.Scan(&c.ID, &c.Name, &c.GuildID, &c.OwnerID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, httpx.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// GetByID fetches a single character.
func (r *Repository) GetByID(ctx context.Context, id int64) (*Character, error) {
	return scanCharacter(r.pool.QueryRow(ctx,
		`SELECT `+characterColumns+` FROM characters WHERE id = $1`, id))
}

// ListByGuild returns all characters in a guild ordered by name.
func (r *Repository) ListByGuild(ctx context.Context, guildID string) ([]Character, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+characterColumns+` FROM characters WHERE guild_id = $1 ORDER BY name`, guildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Character
	for rows.Next() {
		var c Character
		if err := rows.Scan(&c.ID, &c.Name, &c.GuildID, &c.OwnerID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// FindByGuildOwner returns the character ownerID holds in guildID.
func (r *Repository) FindByGuildOwner(ctx context.Context, guildID, ownerID string) (*Character, error) {
	return scanCharacter(r.pool.QueryRow(ctx,
		`SELECT `+characterColumns+` FROM characters WHERE guild_id = $1 AND owner_id = $2`, guildID, ownerID))
}

// Create inserts a new character, optionally already claimed.
func (r *Repository) Create(ctx context.Context, name, guildID string, ownerID *string) (*Character, error) {
	c, err := scanCharacter(r.pool.QueryRow(ctx,
		`INSERT INTO characters (name, guild_id, owner_id)
		 VALUES ($1, $2, $3)
		 RETURNING `+characterColumns, name, guildID, ownerID))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("character already exists: %w", httpx.ErrConflict)
		}
		return nil, err
	}
	return c, nil
}

// Rename updates the character's name.
func (r *Repository) Rename(ctx context.Context, id int64, name string) (*Character, error) {
	c, err := scanCharacter(r.pool.QueryRow(ctx,
		`UPDATE characters SET name = $2, updated_at = now() WHERE id = $1
		 RETURNING `+characterColumns, id, name))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("character name taken: %w", httpx.ErrConflict)
		}
		return nil, err
	}
	return c, nil
}

// Claim assigns an unclaimed character to ownerID. Two concurrent claims
// race on the row lock; exactly one wins and the loser sees a conflict.
func (r *Repository) Claim(ctx context.Context, id int64, ownerID string) (*Character, error) {
	var claimed *Character
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var current *string
		if err := tx.QueryRow(ctx,
			`SELECT owner_id FROM characters WHERE id = $1 FOR UPDATE`, id).Scan(&current); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return httpx.ErrNotFound
			}
			return err
		}
		if current != nil {
			return fmt.Errorf("character already claimed: %w", httpx.ErrConflict)
		}
		c, err := scanCharacter(tx.QueryRow(ctx,
			`UPDATE characters SET owner_id = $2, updated_at = now() WHERE id = $1
			 RETURNING `+characterColumns, id, ownerID))
		if err != nil {
			return err
		}
		claimed = c
		return nil
	})
	if err != nil {
		// The partial unique index on (guild_id, owner_id) backs the
		// one-character-per-guild rule.
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("already holding a character in this guild: %w", httpx.ErrConflict)
		}
		return nil, err
	}
	return claimed, nil
}

// Unclaim releases a character held by ownerID. A zero-row update means the
// caller lost a race with another mutation.
func (r *Repository) Unclaim(ctx context.Context, id int64, ownerID string) (*Character, error) {
	c, err := scanCharacter(r.pool.QueryRow(ctx,
		`UPDATE characters SET owner_id = NULL, updated_at = now()
		 WHERE id = $1 AND owner_id = $2
		 RETURNING `+characterColumns, id, ownerID))
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return nil, fmt.Errorf("character not held: %w", httpx.ErrConflict)
		}
		return nil, err
	}
	return c, nil
}

var _ RepositoryPort = (*Repository)(nil)
