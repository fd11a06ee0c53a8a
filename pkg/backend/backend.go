// Package backend persists an abstraction into a SQL store and reads it back.
//
// One Backend owns one connection. Every write runs in a single transaction
// that is rolled back on any failure, so a failed Ingest or Update leaves
// the store as it was.
package backend

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dsiflow/dsi/pkg/abstraction"
	dsierr "github.com/dsiflow/dsi/pkg/errors"
	"github.com/dsiflow/dsi/pkg/schema"
)

// Options configures a backend.
type Options struct {
	// Engine is "sqlite" or "duckdb". Empty picks DuckDB for .duckdb files
	// and SQLite otherwise.
	Engine string
	// Path is the store file; "" or ":memory:" keeps the store in memory.
	Path string
	// RunTable records every ingest in runTable and tags user rows with it.
	RunTable bool
	// Backup copies the store file before every ingest and update.
	Backup bool
	// Portable makes ~ case-sensitive and ~~ case-insensitive on every
	// engine.
	Portable bool
	// Now is the clock stamped into runTable. Defaults to time.Now.
	Now func() time.Time
}

// Backend is a SQL store behind a Dialect.
type Backend struct {
	db      *sql.DB
	dialect Dialect
	opts    Options
}

// Open connects to a store, creating the file when needed.
func Open(opts Options) (*Backend, error) {
	engine := opts.Engine
	if engine == "" {
		engine = "sqlite"
		if strings.EqualFold(filepath.Ext(opts.Path), ".duckdb") {
			engine = "duckdb"
		}
	}
	d, ok := DialectFor(engine)
	if !ok {
		return nil, dsierr.Newf(dsierr.KindValue, "unknown backend engine %q", engine).
			WithContext("available", Engines())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	db, err := d.Open(opts.Path)
	if err != nil {
		return nil, dsierr.Wrapf(err, dsierr.KindDialect, "failed to open %s store", d.Name()).
			WithContext("path", opts.Path)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, dsierr.Wrapf(err, dsierr.KindDialect, "failed to open %s store", d.Name()).
			WithContext("path", opts.Path)
	}
	log.WithFields(log.Fields{"engine": d.Name(), "path": opts.Path}).Debug("backend opened")
	return &Backend{db: db, dialect: d, opts: opts}, nil
}

// Engine returns the dialect name.
func (b *Backend) Engine() string { return b.dialect.Name() }

// Path returns the store path.
func (b *Backend) Path() string { return b.opts.Path }

// RunTable reports whether ingests are recorded in runTable.
func (b *Backend) RunTable() bool { return b.opts.RunTable }

// Close closes the connection.
func (b *Backend) Close() error {
	return b.db.Close()
}

// ListTables returns the user tables, excluding the reserved ones.
func (b *Backend) ListTables(ctx context.Context) ([]string, error) {
	names, err := b.tables(ctx, b.db)
	if err != nil {
		return nil, classify(err, "failed to list tables")
	}
	return userTables(names), nil
}

// Describe returns the stored schema of a table.
func (b *Backend) Describe(ctx context.Context, table string) (*schema.Schema, error) {
	s, err := b.describe(ctx, b.db, table)
	if err != nil {
		return nil, classify(err, "failed to describe table")
	}
	return s, nil
}

func (b *Backend) describe(ctx context.Context, q querier, table string) (*schema.Schema, error) {
	s, err := b.dialect.Columns(ctx, q, table)
	if err != nil {
		return nil, err
	}
	if len(s.Columns) == 0 {
		return nil, dsierr.Newf(dsierr.KindValue, "no table %q in the store", table)
	}
	return s, nil
}

func (b *Backend) tables(ctx context.Context, q querier) ([]string, error) {
	return b.dialect.Tables(ctx, q)
}

func userTables(names []string) []string {
	var out []string
	for _, n := range names {
		if !abstraction.IsReserved(n) {
			out = append(out, n)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// classify turns a driver error into a structured one: constraint failures
// become ConstraintViolation, anything else DialectError. Structured errors
// pass through with their kind.
func classify(err error, message string) error {
	if err == nil {
		return nil
	}
	var e *dsierr.Error
	if dsierr.As(err, &e) {
		return dsierr.Wrap(err, e.Kind, message)
	}
	kind := dsierr.KindDialect
	if strings.Contains(strings.ToLower(err.Error()), "constraint") {
		kind = dsierr.KindConstraint
	}
	return dsierr.Wrap(err, kind, message)
}

// rollback undoes tx after a failed write, logging a failed rollback.
func rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
		log.WithError(err).Warn("rollback failed")
	}
}

// scanValues reads every row of rows into Values.
func scanValues(rows *sql.Rows) ([]string, [][]abstraction.Value, error) {
	defer rows.Close()
	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}
	raw := make([]interface{}, len(columns))
	ptrs := make([]interface{}, len(columns))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	var out [][]abstraction.Value
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		row := make([]abstraction.Value, len(columns))
		for i, x := range raw {
			row[i] = abstraction.MustFromAny(x)
		}
		out = append(out, row)
	}
	return columns, out, rows.Err()
}

// toTable pivots row-major values into a columnar table.
func toTable(name string, columns []string, rows [][]abstraction.Value) (*abstraction.Table, error) {
	values := make([][]abstraction.Value, len(columns))
	for i := range columns {
		values[i] = make([]abstraction.Value, len(rows))
		for r, row := range rows {
			values[i][r] = row[i]
		}
	}
	return abstraction.NewTableFromColumns(name, columns, values)
}
