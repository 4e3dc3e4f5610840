package sheet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rollvault/rollvault/internal/platform/db"
	"github.com/rollvault/rollvault/internal/platform/httpx"
)

// Entry is one attribute row keyed by field name, plus "id". Enum values
// appear by member name, so entries marshal directly to the wire shape.
type Entry map[string]any

// RepositoryPort defines data access for attribute rows. All statements
// are generated from compiled-in schema descriptors; no identifier ever
// comes from request input.
type RepositoryPort interface {
	List(ctx context.Context, s Schema, characterID int64) ([]Entry, error)
	Get(ctx context.Context, s Schema, characterID, itemID int64) (Entry, error)
	Create(ctx context.Context, s Schema, characterID int64, values map[string]any) (Entry, error)
	Update(ctx context.Context, s Schema, characterID, itemID int64, values map[string]any) (Entry, error)
	Delete(ctx context.Context, s Schema, characterID, itemID int64) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func columnList(s Schema) string {
	cols := make([]string, 0, len(s.Fields)+1)
	cols = append(cols, "id")
	for _, f := range s.Fields {
		cols = append(cols, quoteIdent(f.Name))
	}
	return strings.Join(cols, ", ")
}

// quoteIdent protects schema-declared names that collide with SQL keywords
// ("max", "number").
func quoteIdent(name string) string {
	return `"` + name + `"`
}

func scanEntry(s Schema, row pgx.Row) (Entry, error) {
	var id int64
	dests := make([]any, 0, len(s.Fields)+1)
	dests = append(dests, &id)
	holders := make([]any, len(s.Fields))
	for i, f := range s.Fields {
		switch f.Kind {
		case KindInt:
			holders[i] = new(int64)
		default:
			holders[i] = new(string)
		}
		dests = append(dests, holders[i])
	}
	if err := row.Scan(dests...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, httpx.ErrNotFound
		}
		return nil, err
	}
	entry := Entry{"id": id}
	for i, f := range s.Fields {
		switch v := holders[i].(type) {
		case *int64:
			entry[f.Name] = *v
		case *string:
			entry[f.Name] = *v
		}
	}
	return entry, nil
}

func listQuery(s Schema) string {
	order := make([]string, len(s.SortKey))
	for i, key := range s.SortKey {
		order[i] = quoteIdent(key)
	}
	return fmt.Sprintf(`SELECT %s FROM %s WHERE character_id = $1 ORDER BY %s`,
		columnList(s), s.Table, strings.Join(order, ", "))
}

// List returns all rows of one kind for a character in schema order.
func (r *Repository) List(ctx context.Context, s Schema, characterID int64) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, listQuery(s), characterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		entry, err := scanEntry(s, rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Get fetches one row, not-found when the id does not belong to the
// character.
func (r *Repository) Get(ctx context.Context, s Schema, characterID, itemID int64) (Entry, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE character_id = $1 AND id = $2`,
		columnList(s), s.Table)
	return scanEntry(s, r.pool.QueryRow(ctx, query, characterID, itemID))
}

// Create inserts a row. A duplicate name within the same character and
// kind is a conflict; the statement fails whole, nothing is applied.
func (r *Repository) Create(ctx context.Context, s Schema, characterID int64, values map[string]any) (Entry, error) {
	cols := []string{"character_id"}
	placeholders := []string{"$1"}
	args := []any{characterID}
	for _, f := range s.Fields {
		v, ok := values[f.Name]
		if !ok {
			continue
		}
		args = append(args, v)
		cols = append(cols, quoteIdent(f.Name))
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) RETURNING %s`,
		s.Table, strings.Join(cols, ", "), strings.Join(placeholders, ", "), columnList(s))

	entry, err := scanEntry(s, r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%s name already in use: %w", s.Kind, httpx.ErrConflict)
		}
		return nil, err
	}
	return entry, nil
}

// Update applies only the provided fields to one row.
func (r *Repository) Update(ctx context.Context, s Schema, characterID, itemID int64, values map[string]any) (Entry, error) {
	if len(values) == 0 {
		return r.Get(ctx, s, characterID, itemID)
	}
	assignments := []string{}
	args := []any{characterID, itemID}
	for _, f := range s.Fields {
		v, ok := values[f.Name]
		if !ok {
			continue
		}
		args = append(args, v)
		assignments = append(assignments, fmt.Sprintf("%s = $%d", quoteIdent(f.Name), len(args)))
	}
	query := fmt.Sprintf(`UPDATE %s SET %s WHERE character_id = $1 AND id = $2 RETURNING %s`,
		s.Table, strings.Join(assignments, ", "), columnList(s))

	entry, err := scanEntry(s, r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%s name already in use: %w", s.Kind, httpx.ErrConflict)
		}
		return nil, err
	}
	return entry, nil
}

// Delete removes one row. Deleting an absent id succeeds, so client
// retries stay safe.
func (r *Repository) Delete(ctx context.Context, s Schema, characterID, itemID int64) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE character_id = $1 AND id = $2`, s.Table)
	_, err := r.pool.Exec(ctx, query, characterID, itemID)
	return err
}

var _ RepositoryPort = (*Repository)(nil)
