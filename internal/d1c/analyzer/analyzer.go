// Package analyzer determines the Go shape of a parsed query: the field
// name, type, and nullability of every result column, and the parameter
// list it binds. It answers these questions by actually running the
// query's SQL against a throwaway in-memory database carrying the real
// schema, rather than guessing from the SQL text — the same migrations
// that bootstrap a live store.Store (store.LoadMigrations) are replayed
// into it by OpenSchema, so a generated Go type is only ever as stale as
// the schema itself.
package analyzer

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pulseward/pulseward/internal/d1c/parser"
	"github.com/pulseward/pulseward/internal/d1c/rewrite"
)

// Column is one inferred result column.
type Column struct {
	Name       string
	GoType     string // e.g. "string", "int64", "sql.NullString"
	Nullable   bool
	ScanImport string // package the GoType needs imported, or "" for builtins
}

// Analyzed is the fully resolved shape of one query: its rewritten SQL,
// ordered bind parameters (each reconciled against the declared Go type
// if the source gave one), and — for :one/:many/:scalar — its result
// columns.
type Analyzed struct {
	Query   parser.Query
	SQL     string
	Binds   []Bind
	Columns []Column
}

// Bind is one positional parameter the rewritten SQL expects.
type Bind struct {
	Name   string
	GoType string
}

// Schema is a replayed, queryable copy of the database schema, used to
// prepare and introspect queries without touching a live database.
type Schema struct {
	db *sql.DB
}

// OpenSchema replays migrations (as returned by store.LoadMigrations) into
// the caller-supplied db and returns a handle for query analysis. The
// Schema takes over db: callers must Close the Schema, which closes db.
func OpenSchema(ctx context.Context, db *sql.DB, migrations []string) (*Schema, error) {
	for i, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return nil, fmt.Errorf("replay migration %d: %w", i, err)
		}
	}
	return &Schema{db: db}, nil
}

func (s *Schema) Close() error { return s.db.Close() }

// Analyze rewrites q's named placeholders to positional ones, prepares
// the result against the replayed schema to discover bind count and
// (for :one/:many/:scalar) result-column shape, and reconciles the declared
// params header against the detected parameter names.
func (s *Schema) Analyze(ctx context.Context, q parser.Query) (Analyzed, error) {
	rw := rewrite.Rewrite(q.Body)

	if err := reconcileParams(q); err != nil {
		return Analyzed{}, fmt.Errorf("query %s: %w", q.Name, err)
	}

	binds, err := resolveBinds(q, rw.Params)
	if err != nil {
		return Analyzed{}, fmt.Errorf("query %s: %w", q.Name, err)
	}

	a := Analyzed{Query: q, SQL: rw.SQL, Binds: binds}

	if q.Cardinality == parser.One || q.Cardinality == parser.Many || q.Cardinality == parser.Scalar {
		cols, err := s.resultColumns(ctx, rw, binds)
		if err != nil {
			return Analyzed{}, fmt.Errorf("query %s: %w", q.Name, err)
		}
		if q.Cardinality == parser.Scalar && len(cols) != 1 {
			return Analyzed{}, fmt.Errorf("query %s: :scalar must project exactly one column, got %d", q.Name, len(cols))
		}
		a.Columns = cols
	}

	return a, nil
}

// reconcileParams enforces strict set equality between the SQL-detected
// parameter names and a declared params header, when one is present. A
// query with no params header is not checked; its Go types default to
// string (see resolveBinds).
func reconcileParams(q parser.Query) error {
	if len(q.Params) == 0 {
		return nil
	}
	detected := rewrite.Rewrite(q.Body).Params

	declared := make(map[string]bool, len(q.Params))
	for _, p := range q.Params {
		declared[p.Name] = true
	}
	seen := make(map[string]bool, len(detected))
	for _, n := range detected {
		seen[n] = true
	}

	var extraInSQL, extraInHeader []string
	for _, n := range detected {
		if !declared[n] {
			extraInSQL = append(extraInSQL, n)
		}
	}
	for name := range declared {
		if !seen[name] {
			extraInHeader = append(extraInHeader, name)
		}
	}
	if len(extraInSQL) > 0 || len(extraInHeader) > 0 {
		return fmt.Errorf("params header does not match SQL placeholders: in SQL but not header %v, in header but not SQL %v",
			extraInSQL, extraInHeader)
	}
	return nil
}

func resolveBinds(q parser.Query, detected []string) ([]Bind, error) {
	types := make(map[string]string, len(q.Params))
	for _, p := range q.Params {
		types[p.Name] = p.Type
	}

	binds := make([]Bind, len(detected))
	for i, name := range detected {
		t := types[name]
		if t == "" {
			t = "string"
		}
		binds[i] = Bind{Name: name, GoType: t}
	}
	return binds, nil
}

// resultColumns prepares rw.SQL against the replayed schema, binding
// zero values for every parameter, and inspects the statement's
// driver-reported column types to determine the Go shape of each
// result column.
func (s *Schema) resultColumns(ctx context.Context, rw rewrite.Result, binds []Bind) ([]Column, error) {
	stmt, err := s.db.PrepareContext(ctx, rw.SQL)
	if err != nil {
		return nil, fmt.Errorf("prepare: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	args := make([]any, len(binds))
	for i, b := range binds {
		args[i] = zeroValueFor(b.GoType)
	}

	rows, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("probe query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("column types: %w", err)
	}

	cols := make([]Column, len(types))
	for i, ct := range types {
		nullable, _ := ct.Nullable()
		goType, scanImport := mapSQLiteType(ct.DatabaseTypeName(), nullable)
		cols[i] = Column{
			Name:       ct.Name(),
			GoType:     goType,
			Nullable:   nullable,
			ScanImport: scanImport,
		}
	}
	return cols, nil
}

// mapSQLiteType maps a SQLite column affinity (as reported by the
// driver, e.g. "INTEGER", "TEXT", "REAL", "BOOL") to a Go type. Nullable
// columns map onto the corresponding database/sql Null* wrapper so that
// generated row structs can Scan directly without an intermediate
// pointer dance.
func mapSQLiteType(affinity string, nullable bool) (goType, scanImport string) {
	switch strings.ToUpper(affinity) {
	case "INTEGER", "INT":
		if nullable {
			return "sql.NullInt64", "database/sql"
		}
		return "int64", ""
	case "BOOL", "BOOLEAN":
		if nullable {
			return "sql.NullBool", "database/sql"
		}
		return "bool", ""
	case "REAL", "FLOAT", "DOUBLE":
		if nullable {
			return "sql.NullFloat64", "database/sql"
		}
		return "float64", ""
	case "TEXT", "VARCHAR", "CHAR", "":
		if nullable {
			return "sql.NullString", "database/sql"
		}
		return "string", ""
	default:
		if nullable {
			return "sql.NullString", "database/sql"
		}
		return "string", ""
	}
}

func zeroValueFor(goType string) any {
	switch goType {
	case "int", "int64":
		return int64(0)
	case "float64":
		return float64(0)
	case "bool":
		return false
	default:
		return ""
	}
}
