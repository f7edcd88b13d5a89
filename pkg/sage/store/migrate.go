package store

import (
	"context"
	"fmt"
	"strings"

	serrors "github.com/sambeau/sage/pkg/sage/errors"
)

// ColumnDef declares a column for CreateTable. Kind is "text", "int" or "bool".
type ColumnDef struct {
	Name string
	Kind string
}

// columnTypes maps column kinds to SQL types per driver
var columnTypes = map[string]map[string]string{
	"sqlite":   {"text": "TEXT", "int": "INTEGER", "bool": "BOOLEAN"},
	"postgres": {"text": "TEXT", "int": "BIGINT", "bool": "BOOLEAN"},
	"mysql":    {"text": "TEXT", "int": "BIGINT", "bool": "BOOLEAN"},
}

// CreateTable creates the table if it does not already exist.
// An existing table is left untouched, whatever its columns.
func (s *Store) CreateTable(ctx context.Context, table string, columns []ColumnDef) error {
	stmt, err := s.buildCreateTable(table, columns)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return serrors.Wrap("DB-0006", err, map[string]any{"Table": table})
	}
	return nil
}

// buildCreateTable renders `CREATE TABLE IF NOT EXISTS t (c1 T1, c2 T2)`.
func (s *Store) buildCreateTable(table string, columns []ColumnDef) (string, error) {
	if len(columns) == 0 {
		return "", fmt.Errorf("table %s declares no columns", table)
	}

	idents := []string{table}
	for _, c := range columns {
		idents = append(idents, c.Name)
	}
	if err := validateIdentifiers(idents); err != nil {
		return "", err
	}

	types := columnTypes[s.dialect.name]
	defs := make([]string, len(columns))
	for i, c := range columns {
		sqlType, ok := types[c.Kind]
		if !ok {
			return "", fmt.Errorf("column %s.%s: unsupported kind %q", table, c.Name, c.Kind)
		}
		defs[i] = s.dialect.quote(c.Name) + " " + sqlType
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", s.dialect.quote(table), strings.Join(defs, ", ")), nil
}
