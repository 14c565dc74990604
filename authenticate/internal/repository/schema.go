package repository

import (
	"fmt"
	"sort"
	"strings"
)

// Column describes one credential table column.
type Column struct {
	Name     string
	Required bool

	// DDL used when an optional column has to be added back.
	PostgresType string
	SQLiteType   string
}

// SchemaDescriptor is the versioned shape of the credential table, checked
// once when a store is opened.
type SchemaDescriptor struct {
	Table string

	// Version is the lowest migration version that produces this layout.
	Version uint

	Columns []Column
}

// CredentialSchema is the current credential table layout.
var CredentialSchema = SchemaDescriptor{
	Table:   "credentials",
	Version: 2,
	Columns: []Column{
		{Name: "id", Required: true},
		{Name: "username", Required: true},
		{Name: "secret", Required: true},
		{Name: "locked_at", PostgresType: "TIMESTAMPTZ", SQLiteType: "INTEGER"},
		{Name: "failure_count", PostgresType: "INTEGER NOT NULL DEFAULT 0", SQLiteType: "INTEGER NOT NULL DEFAULT 0"},
		{Name: "last_attempt_at", PostgresType: "TIMESTAMPTZ", SQLiteType: "INTEGER"},
	},
}

// Check compares the descriptor to the columns present in the table. It
// returns ErrSchemaInvalid when a required column is absent, otherwise the
// optional columns that need to be added.
func (d SchemaDescriptor) Check(present []string) ([]Column, error) {
	have := make(map[string]bool, len(present))
	for _, p := range present {
		have[strings.ToLower(p)] = true
	}

	var missingRequired []string
	var missingOptional []Column
	for _, c := range d.Columns {
		if have[c.Name] {
			continue
		}
		if c.Required {
			missingRequired = append(missingRequired, c.Name)
		} else {
			missingOptional = append(missingOptional, c)
		}
	}

	if len(missingRequired) > 0 {
		sort.Strings(missingRequired)
		return nil, fmt.Errorf("%w: table %s is missing required columns %s",
			ErrSchemaInvalid, d.Table, strings.Join(missingRequired, ", "))
	}
	return missingOptional, nil
}
