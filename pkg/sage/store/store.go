// Package store is the relational store behind sage programs: a query
// executor and an insert executor over database/sql.
//
// Statement text is assembled only from identifiers taken from the checked
// program (validated with IsValidIdentifier); every value is passed as a
// bound parameter.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	serrors "github.com/sambeau/sage/pkg/sage/errors"
)

// Store wraps a database handle and the SQL dialect of its driver.
// A Store is safe for concurrent use; the pool is owned by database/sql.
type Store struct {
	db      *sql.DB
	dialect dialect
}

// Options tunes the connection pool. Zero values leave the driver defaults.
type Options struct {
	MaxOpenConns int
	MaxIdleConns int
}

// Open connects to a database and verifies the connection.
// driver is one of "sqlite", "postgres" or "mysql".
func Open(driver, dsn string, opts Options) (*Store, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, serrors.New("DB-0004", map[string]any{"Driver": driver})
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, serrors.Wrap("DB-0001", err, map[string]any{"Driver": driver})
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, serrors.Wrap("DB-0001", err, map[string]any{"Driver": driver})
	}

	return &Store{db: db, dialect: d}, nil
}

// New wraps an already opened database handle.
func New(db *sql.DB, driver string) (*Store, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, serrors.New("DB-0004", map[string]any{"Driver": driver})
	}
	return &Store{db: db, dialect: d}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Driver returns the driver name the store was opened with.
func (s *Store) Driver() string {
	return s.dialect.name
}

// Exec runs a statement that is not part of a program (schema setup, seeding).
func (s *Store) Exec(ctx context.Context, query string, args ...any) error {
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

// Condition restricts a query to rows where `Column Operator ?` holds.
type Condition struct {
	Column   string
	Operator string
}

// Ordering sorts query results by a column.
type Ordering struct {
	Column     string
	Descending bool
}

// QueryDescriptor describes a single-table select. It holds identifiers only;
// the values for Where come separately as bound arguments.
type QueryDescriptor struct {
	Table   string
	Columns []string
	Where   []Condition
	OrderBy []Ordering
}

// Column is one named value of a result row, as stored.
type Column struct {
	Name  string
	Value any
}

// Row is a result row with columns in select order.
type Row []Column

// Query executes q with args bound to its Where conditions, in order, and
// returns the rows in the order the database produced them.
func (s *Store) Query(ctx context.Context, q QueryDescriptor, args []any) ([]Row, error) {
	if len(args) != len(q.Where) {
		return nil, fmt.Errorf("query on %s: %d conditions but %d arguments", q.Table, len(q.Where), len(args))
	}

	stmt, err := s.buildSelect(q)
	if err != nil {
		return nil, err
	}

	params := make([]any, len(args))
	for i, arg := range args {
		params[i] = s.dialect.bind(fmt.Sprintf("w%d", i+1), arg)
	}

	rows, err := s.db.QueryContext(ctx, stmt, params...)
	if err != nil {
		return nil, serrors.Wrap("DB-0002", err, map[string]any{"Table": q.Table})
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, serrors.Wrap("DB-0002", err, map[string]any{"Table": q.Table})
	}

	var results []Row
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, serrors.Wrap("DB-0002", err, map[string]any{"Table": q.Table})
		}

		row := make(Row, len(columns))
		for i, col := range columns {
			row[i] = Column{Name: col, Value: values[i]}
		}
		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		return nil, serrors.Wrap("DB-0002", err, map[string]any{"Table": q.Table})
	}

	return results, nil
}

// Insert issues exactly one INSERT of values into the named columns.
func (s *Store) Insert(ctx context.Context, table string, columns []string, values []any) error {
	if len(columns) != len(values) {
		return fmt.Errorf("insert into %s: %d columns but %d values", table, len(columns), len(values))
	}

	stmt, err := s.buildInsert(table, columns)
	if err != nil {
		return err
	}

	params := make([]any, len(values))
	for i, v := range values {
		params[i] = s.dialect.bind(columns[i], v)
	}

	if _, err := s.db.ExecContext(ctx, stmt, params...); err != nil {
		return serrors.Wrap("DB-0003", err, map[string]any{"Table": table})
	}
	return nil
}

// buildSelect renders the statement text for q.
func (s *Store) buildSelect(q QueryDescriptor) (string, error) {
	if len(q.Columns) == 0 {
		return "", fmt.Errorf("query on %s selects no columns", q.Table)
	}

	idents := append([]string{q.Table}, q.Columns...)
	for _, c := range q.Where {
		idents = append(idents, c.Column)
	}
	for _, o := range q.OrderBy {
		idents = append(idents, o.Column)
	}
	if err := validateIdentifiers(idents); err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	for i, col := range q.Columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(s.dialect.quote(col))
	}
	sb.WriteString(" FROM ")
	sb.WriteString(s.dialect.quote(q.Table))

	for i, c := range q.Where {
		if err := validateOperator(c.Operator); err != nil {
			return "", err
		}
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		sb.WriteString(s.dialect.quote(c.Column))
		sb.WriteString(" " + c.Operator + " ")
		sb.WriteString(s.dialect.placeholder(i+1, fmt.Sprintf("w%d", i+1)))
	}

	for i, o := range q.OrderBy {
		if i == 0 {
			sb.WriteString(" ORDER BY ")
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString(s.dialect.quote(o.Column))
		if o.Descending {
			sb.WriteString(" DESC")
		}
	}

	return sb.String(), nil
}

// buildInsert renders `INSERT INTO t(c1, c2) VALUES (p1, p2)`.
func (s *Store) buildInsert(table string, columns []string) (string, error) {
	if len(columns) == 0 {
		return "", fmt.Errorf("insert into %s names no columns", table)
	}
	if err := validateIdentifiers(append([]string{table}, columns...)); err != nil {
		return "", err
	}

	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = s.dialect.quote(col)
		placeholders[i] = s.dialect.placeholder(i+1, col)
	}

	return fmt.Sprintf("INSERT INTO %s(%s) VALUES (%s)",
		s.dialect.quote(table),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "),
	), nil
}
