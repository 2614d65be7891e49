package storage

import (
	"fmt"
	"strings"
)

// ColumnType is a portable column type; each backend maps it to a native type.
type ColumnType string

const (
	Text      ColumnType = "text"
	Integer   ColumnType = "integer"
	Timestamp ColumnType = "timestamp"
)

// TableSpec describes a table to create.
type TableSpec struct {
	Name    string       `json:"name"`
	Columns []ColumnSpec `json:"columns"`
}

// ColumnSpec describes one column. Nullable nil means NOT NULL.
type ColumnSpec struct {
	Name     string     `json:"name"`
	Type     ColumnType `json:"type"`
	Nullable *bool      `json:"nullable,omitempty"`
}

// IsNullable reports the effective nullability of c.
func (c ColumnSpec) IsNullable() bool {
	return c.Nullable != nil && *c.Nullable
}

// ColumnNames returns the column names in declaration order.
func (t TableSpec) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// Validate checks that the table has a name, at least one column, unique
// column names and known column types.
func (t TableSpec) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("storage: table name is empty")
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("storage: table %s: no columns", t.Name)
	}
	seen := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		n := strings.ToLower(strings.TrimSpace(c.Name))
		if n == "" {
			return fmt.Errorf("storage: table %s: column name is empty", t.Name)
		}
		if seen[n] {
			return fmt.Errorf("storage: table %s: duplicate column %s", t.Name, c.Name)
		}
		seen[n] = true
		switch c.Type {
		case Text, Integer, Timestamp:
		default:
			return fmt.Errorf("storage: table %s: column %s has unsupported type %q", t.Name, c.Name, c.Type)
		}
	}
	return nil
}
