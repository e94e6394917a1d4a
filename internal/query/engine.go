// Package query implements the Query Engine Adapter (C4): it loads
// pack-owned SQL templates from <pack-root>/queries/*.sql, materializes the
// current evidence snapshot as a handful of in-memory tables, and executes a
// named template against them, returning tabular rows. The engine never
// interprets a row itself — its caller (the usage lens summary in `bman
// status --full`) does; this package only adapts SQL text to Go values.
package query

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"bman/internal/logging"
)

// Engine executes named query templates over an in-memory snapshot of the
// current evidence. One Engine is built per apply/status invocation from
// whatever evidence exists at that moment, then discarded — it holds no
// state that outlives a single command.
type Engine struct {
	db        *sql.DB
	templates map[string]string
}

// Open creates a fresh in-memory SQLite database and loads the named query
// templates. Callers must call Close when done.
func Open(ctx context.Context, templates map[string]string) (*Engine, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("query: open in-memory database: %w", err)
	}
	db.SetMaxOpenConns(1) // an in-memory :memory: db is per-connection; pin to one
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("query: ping in-memory database: %w", err)
	}
	return &Engine{db: db, templates: templates}, nil
}

// Close releases the underlying database handle.
func (e *Engine) Close() error {
	if e.db == nil {
		return nil
	}
	return e.db.Close()
}

// exec runs one statement on the underlying handle so table loaders in this
// package can populate it; the handle itself is not exported.
func (e *Engine) exec(ctx context.Context, stmt string, args ...interface{}) error {
	_, err := e.db.ExecContext(ctx, stmt, args...)
	return err
}

// Row is one result row, column name to decoded value.
type Row map[string]interface{}

// Run executes the named template and returns its rows in result order.
// Params are bound positionally via SQLite's `?` placeholders, matching how
// pack authors already write ad-hoc SQL.
func (e *Engine) Run(ctx context.Context, name string, params ...interface{}) ([]Row, error) {
	log := logging.For(logging.CategoryQuery)
	stmt, ok := e.templates[name]
	if !ok {
		return nil, fmt.Errorf("query: unknown template %q", name)
	}

	rows, err := e.db.QueryContext(ctx, stmt, params...)
	if err != nil {
		log.Error("template execution failed", map[string]interface{}{"template": name, "error": err.Error()})
		return nil, fmt.Errorf("query: run template %q: %w", name, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("query: read columns for %q: %w", name, err)
	}

	var out []Row
	for rows.Next() {
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("query: scan row for %q: %w", name, err)
		}
		r := make(Row, len(cols))
		for i, c := range cols {
			r[c] = normalizeValue(vals[i])
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query: iterate rows for %q: %w", name, err)
	}
	log.Debug("template executed", map[string]interface{}{"template": name, "rows": len(out)})
	return out, nil
}

// normalizeValue converts driver-returned []byte (SQLite's default text
// representation) into string so callers never have to type-switch on bytes.
func normalizeValue(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
