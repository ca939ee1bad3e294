package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Field describes one column of a remote table.
type Field struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Table describes one remote table with its fields and views.
type Table struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Fields []Field  `json:"fields"`
	Views  []string `json:"views,omitempty"`
}

// FindField looks up a field by name, case-insensitively.
func (t Table) FindField(name string) (Field, bool) {
	for _, f := range t.Fields {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return Field{}, false
}

// Schema is the cached structure of the active base. It is replaced
// wholesale when a schema fetch completes, never mutated in place.
type Schema struct {
	BaseID string  `json:"base_id"`
	Tables []Table `json:"tables"`
}

// FindTable looks up a table by name or ID, case-insensitively on name.
func (s *Schema) FindTable(name string) (Table, bool) {
	if s == nil {
		return Table{}, false
	}
	for _, t := range s.Tables {
		if t.ID == name || strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return Table{}, false
}

// TableNames returns the names of all tables in the schema.
func (s *Schema) TableNames() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.Tables))
	for _, t := range s.Tables {
		names = append(names, t.Name)
	}
	return names
}

// ParseSchema decodes a get_base_schema payload into a Schema.
func ParseSchema(payload json.RawMessage) (*Schema, error) {
	var schema Schema
	if err := json.Unmarshal(payload, &schema); err != nil {
		return nil, fmt.Errorf("failed to parse base schema: %w", err)
	}
	return &schema, nil
}
