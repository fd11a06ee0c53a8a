package backend

import (
	"context"
	"database/sql"
	"strings"

	"github.com/dsiflow/dsi/pkg/find"
	"github.com/dsiflow/dsi/pkg/schema"
)

// querier is the subset of *sql.DB and *sql.Tx the backend needs, so the
// same introspection code runs inside and outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// ForeignKey is one stored foreign-key constraint.
type ForeignKey struct {
	Column    string
	RefTable  string
	RefColumn string
}

// Dialect confines everything that differs between SQL engines. The write,
// read, query and find paths are written once against it.
type Dialect interface {
	// Name is the engine name used in configuration.
	Name() string
	// Open connects to the store at path; "" and ":memory:" are in-memory.
	Open(path string) (*sql.DB, error)
	// TypeName is the declared SQL type for a column type.
	TypeName(t schema.ColumnType) string
	// Syntax describes partial-match operators for find.
	Syntax(portable bool) find.Syntax
	// ReadOnlyKeywords lists dialect-specific leading keywords of read-only
	// statements, beyond SELECT, WITH, EXPLAIN and PRAGMA.
	ReadOnlyKeywords() []string

	// RunTableDDL returns the statements creating runTable if absent.
	RunTableDDL() []string
	// WidenColumn returns the statements retyping a column, if any.
	WidenColumn(table, column string, t schema.ColumnType) []string

	Tables(ctx context.Context, q querier) ([]string, error)
	Columns(ctx context.Context, q querier, table string) (*schema.Schema, error)
	PrimaryKeys(ctx context.Context, q querier, table string) ([]string, error)
	ForeignKeys(ctx context.Context, q querier, table string) ([]ForeignKey, error)

	// Backup writes a consistent copy of the store to dst.
	Backup(ctx context.Context, db *sql.DB, src, dst string) error
}

var dialects = map[string]Dialect{
	"sqlite": sqliteDialect{},
	"duckdb": duckdbDialect{},
}

// Engines lists the supported engine names.
func Engines() []string {
	return []string{"sqlite", "duckdb"}
}

// DialectFor returns the dialect registered under name.
func DialectFor(name string) (Dialect, bool) {
	d, ok := dialects[strings.ToLower(name)]
	return d, ok
}

// isMemory reports whether path names an in-memory store.
func isMemory(path string) bool {
	return path == "" || path == ":memory:"
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
