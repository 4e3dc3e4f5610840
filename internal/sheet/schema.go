// Package sheet implements the typed sub-resources of a character sheet as
// one generic CRUD protocol driven by explicit schema descriptors. Each of
// the six attribute kinds declares its fields, coercions, defaults, and
// sort key once; the repository, service, and handler are shared.
package sheet

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/rollvault/rollvault/internal/platform/httpx"
)

// FieldKind selects the coercion applied to an incoming field value.
type FieldKind int

const (
	// KindString passes JSON strings through, defaulting to "".
	KindString FieldKind = iota
	// KindInt accepts JSON numbers or numeric strings, defaulting to 0.
	KindInt
	// KindEnum accepts a member name of the field's enum, with a declared
	// default member. Unrecognized names are rejected, never defaulted.
	KindEnum
)

// EnumSpec declares an enumerated field type by member name.
type EnumSpec struct {
	Name    string
	Members []string
	Default string
}

// Contains reports whether name is a declared member.
func (e *EnumSpec) Contains(name string) bool {
	for _, m := range e.Members {
		if m == name {
			return true
		}
	}
	return false
}

// Field is one declared column of an attribute kind.
type Field struct {
	Name string
	Kind FieldKind
	Enum *EnumSpec
}

// Schema describes one attribute kind: its URL segment, table, fields
// beyond id/character_id, and the ordering applied to listings.
type Schema struct {
	Kind    string
	Table   string
	Fields  []Field
	SortKey []string
}

// Validate checks the descriptor at definition time, so a malformed schema
// fails startup instead of surfacing as a runtime coercion bug.
func (s Schema) Validate() error {
	if s.Kind == "" || s.Table == "" {
		return fmt.Errorf("sheet: schema %q: kind and table are required", s.Kind)
	}
	if len(s.Fields) == 0 {
		return fmt.Errorf("sheet: schema %q: no fields declared", s.Kind)
	}
	seen := map[string]bool{}
	for _, f := range s.Fields {
		if f.Name == "" || f.Name == "id" || f.Name == "character_id" {
			return fmt.Errorf("sheet: schema %q: invalid field name %q", s.Kind, f.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("sheet: schema %q: duplicate field %q", s.Kind, f.Name)
		}
		seen[f.Name] = true
		if f.Kind == KindEnum {
			if f.Enum == nil || len(f.Enum.Members) == 0 {
				return fmt.Errorf("sheet: schema %q: enum field %q has no members", s.Kind, f.Name)
			}
			if !f.Enum.Contains(f.Enum.Default) {
				return fmt.Errorf("sheet: schema %q: enum field %q default %q is not a member", s.Kind, f.Name, f.Enum.Default)
			}
		}
	}
	if len(s.SortKey) == 0 {
		return fmt.Errorf("sheet: schema %q: sort key is required", s.Kind)
	}
	for _, key := range s.SortKey {
		if !seen[key] {
			return fmt.Errorf("sheet: schema %q: sort key %q is not a declared field", s.Kind, key)
		}
	}
	return nil
}

// Field looks up a declared field by name.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Coerce converts a decoded JSON object into typed column values. With
// partial unset, absent fields take their declared defaults; with partial
// set, absent fields are omitted entirely so updates leave them untouched.
// Unknown fields and unrecognized enum members fail validation.
func (s Schema) Coerce(raw map[string]json.RawMessage, partial bool) (map[string]any, error) {
	for name := range raw {
		if _, ok := s.Field(name); !ok {
			return nil, fmt.Errorf("unknown field %q: %w", name, httpx.ErrValidation)
		}
	}

	values := make(map[string]any, len(s.Fields))
	for _, f := range s.Fields {
		rawValue, present := raw[f.Name]
		if !present {
			if partial {
				continue
			}
			values[f.Name] = defaultValue(f)
			continue
		}
		v, err := coerceValue(f, rawValue)
		if err != nil {
			return nil, err
		}
		values[f.Name] = v
	}
	return values, nil
}

func defaultValue(f Field) any {
	switch f.Kind {
	case KindInt:
		return int64(0)
	case KindEnum:
		return f.Enum.Default
	default:
		return ""
	}
}

func coerceValue(f Field, raw json.RawMessage) (any, error) {
	switch f.Kind {
	case KindInt:
		var n int64
		if err := json.Unmarshal(raw, &n); err == nil {
			return n, nil
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return n, nil
			}
		}
		return nil, fmt.Errorf("field %q must be an integer: %w", f.Name, httpx.ErrValidation)
	case KindEnum:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("field %q must name a %s member: %w", f.Name, f.Enum.Name, httpx.ErrValidation)
		}
		if !f.Enum.Contains(s) {
			return nil, fmt.Errorf("field %q: %q is not a %s member: %w", f.Name, s, f.Enum.Name, httpx.ErrValidation)
		}
		return s, nil
	default:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("field %q must be a string: %w", f.Name, httpx.ErrValidation)
		}
		return s, nil
	}
}

// RestEnum is how a resource recovers: on a long rest, a short rest, or
// some other trigger.
var RestEnum = EnumSpec{
	Name:    "rest",
	Members: []string{"long", "short", "other"},
	Default: "other",
}

// Definitions returns the six attribute schemas. The set is fixed at
// startup; Register panics on a malformed descriptor rather than letting a
// bad schema reach request handling.
func Definitions() []Schema {
	schemas := []Schema{
		{
			Kind:  "information",
			Table: "information",
			Fields: []Field{
				{Name: "name", Kind: KindString},
				{Name: "description", Kind: KindString},
			},
			SortKey: []string{"name"},
		},
		{
			Kind:  "variables",
			Table: "variables",
			Fields: []Field{
				{Name: "name", Kind: KindString},
				{Name: "value", Kind: KindInt},
			},
			SortKey: []string{"name"},
		},
		{
			Kind:  "rolls",
			Table: "rolls",
			Fields: []Field{
				{Name: "name", Kind: KindString},
				{Name: "expression", Kind: KindString},
			},
			SortKey: []string{"name"},
		},
		{
			Kind:  "resources",
			Table: "resources",
			Fields: []Field{
				{Name: "name", Kind: KindString},
				{Name: "current", Kind: KindInt},
				{Name: "max", Kind: KindInt},
				{Name: "recover", Kind: KindEnum, Enum: &RestEnum},
			},
			SortKey: []string{"name"},
		},
		{
			Kind:  "spells",
			Table: "spells",
			Fields: []Field{
				{Name: "name", Kind: KindString},
				{Name: "level", Kind: KindInt},
				{Name: "description", Kind: KindString},
			},
			SortKey: []string{"level", "name"},
		},
		{
			Kind:  "inventory",
			Table: "inventory",
			Fields: []Field{
				{Name: "name", Kind: KindString},
				{Name: "number", Kind: KindInt},
				{Name: "description", Kind: KindString},
			},
			SortKey: []string{"name"},
		},
	}
	for _, s := range schemas {
		if err := s.Validate(); err != nil {
			panic(err)
		}
	}
	return schemas
}
