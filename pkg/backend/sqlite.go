package backend

import (
	"context"
	"database/sql"
	"os"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/dsiflow/dsi/pkg/find"
	"github.com/dsiflow/dsi/pkg/schema"
)

// sqliteDialect targets modernc.org/sqlite. Columns are dynamically typed,
// so widening never rewrites a table: stored cells keep their own type and
// the declared type only guides inference on read.
type sqliteDialect struct{}

func (sqliteDialect) Name() string { return "sqlite" }

func (sqliteDialect) Open(path string) (*sql.DB, error) {
	if isMemory(path) {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, err
	}
	// One connection: an in-memory store lives and dies with it, and the
	// store is owned by a single Terminal anyway.
	db.SetMaxOpenConns(1)
	return db, nil
}

func (sqliteDialect) TypeName(t schema.ColumnType) string {
	switch t {
	case schema.TypeInteger:
		return "INTEGER"
	case schema.TypeFloat:
		return "FLOAT"
	default:
		return "VARCHAR"
	}
}

func (sqliteDialect) Syntax(portable bool) find.Syntax {
	return find.Syntax{Portable: portable}
}

func (sqliteDialect) ReadOnlyKeywords() []string { return nil }

func (sqliteDialect) RunTableDDL() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS runTable (run_id INTEGER PRIMARY KEY AUTOINCREMENT, run_timestamp TEXT UNIQUE)`,
	}
}

func (sqliteDialect) WidenColumn(table, column string, t schema.ColumnType) []string {
	return nil
}

func (sqliteDialect) Tables(ctx context.Context, q querier) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite\_%' ESCAPE '\' ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}

func (sqliteDialect) Columns(ctx context.Context, q querier, table string) (*schema.Schema, error) {
	rows, err := q.QueryContext(ctx, `SELECT name, type FROM pragma_table_info(?) ORDER BY cid`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	s := &schema.Schema{Table: table}
	for rows.Next() {
		var name, declared string
		if err := rows.Scan(&name, &declared); err != nil {
			return nil, err
		}
		s.Columns = append(s.Columns, schema.Column{
			Name:     name,
			Type:     schema.FromDeclared(declared),
			Position: len(s.Columns),
		})
	}
	return s, rows.Err()
}

func (sqliteDialect) PrimaryKeys(ctx context.Context, q querier, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT name FROM pragma_table_info(?) WHERE pk > 0 ORDER BY pk`, table)
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}

func (sqliteDialect) ForeignKeys(ctx context.Context, q querier, table string) ([]ForeignKey, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT "from", "table", "to" FROM pragma_foreign_key_list(?) ORDER BY id, seq`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ForeignKey
	for rows.Next() {
		var fk ForeignKey
		var to sql.NullString
		if err := rows.Scan(&fk.Column, &fk.RefTable, &to); err != nil {
			return nil, err
		}
		// A missing target column references the parent's primary key,
		// which this backend always names explicitly; keep the local name.
		fk.RefColumn = fk.Column
		if to.Valid {
			fk.RefColumn = to.String
		}
		out = append(out, fk)
	}
	return out, rows.Err()
}

// Backup uses VACUUM INTO, which writes a consistent snapshot without
// closing the connection.
func (sqliteDialect) Backup(ctx context.Context, db *sql.DB, src, dst string) error {
	if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
		return err
	}
	_, err := db.ExecContext(ctx, `VACUUM INTO '`+strings.ReplaceAll(dst, "'", "''")+`'`)
	return err
}
