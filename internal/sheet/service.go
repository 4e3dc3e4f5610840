package sheet

import (
	"context"
	"encoding/json"

	"github.com/rollvault/rollvault/internal/discord"
)

// CharacterGate is the two-tier authorization the protocol defers to:
// AuthorizeRead for membership-gated reads, AuthorizeWrite for
// ownership-gated mutations.
type CharacterGate interface {
	AuthorizeRead(ctx context.Context, viewer *discord.User, characterID int64) error
	AuthorizeWrite(ctx context.Context, viewer *discord.User, characterID int64) error
}

// Service executes the generic CRUD protocol for every attribute kind.
type Service struct {
	repo RepositoryPort
	gate CharacterGate
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, gate CharacterGate) *Service {
	return &Service{repo: repo, gate: gate}
}

// List returns all rows of the kind, sorted per the schema; empty, not
// null, when there are none.
func (s *Service) List(ctx context.Context, viewer *discord.User, schema Schema, characterID int64) ([]Entry, error) {
	if err := s.gate.AuthorizeRead(ctx, viewer, characterID); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, schema, characterID)
}

// Get fetches one row of the kind.
func (s *Service) Get(ctx context.Context, viewer *discord.User, schema Schema, characterID, itemID int64) (Entry, error) {
	if err := s.gate.AuthorizeRead(ctx, viewer, characterID); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, schema, characterID, itemID)
}

// Create coerces the payload against the schema, filling declared defaults
// for omitted fields, and inserts the row.
func (s *Service) Create(ctx context.Context, viewer *discord.User, schema Schema, characterID int64, raw map[string]json.RawMessage) (Entry, error) {
	if err := s.gate.AuthorizeWrite(ctx, viewer, characterID); err != nil {
		return nil, err
	}
	values, err := schema.Coerce(raw, false)
	if err != nil {
		return nil, err
	}
	return s.repo.Create(ctx, schema, characterID, values)
}

// Update coerces and applies only the fields present in the payload;
// absent fields keep their stored values.
func (s *Service) Update(ctx context.Context, viewer *discord.User, schema Schema, characterID, itemID int64, raw map[string]json.RawMessage) (Entry, error) {
	if err := s.gate.AuthorizeWrite(ctx, viewer, characterID); err != nil {
		return nil, err
	}
	values, err := schema.Coerce(raw, true)
	if err != nil {
		return nil, err
	}
	return s.repo.Update(ctx, schema, characterID, itemID, values)
}

// Delete removes one row; repeating the delete still succeeds.
func (s *Service) Delete(ctx context.Context, viewer *discord.User, schema Schema, characterID, itemID int64) error {
	if err := s.gate.AuthorizeWrite(ctx, viewer, characterID); err != nil {
		return err
	}
	return s.repo.Delete(ctx, schema, characterID, itemID)
}
