package backend

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/dsiflow/dsi/pkg/find"
	"github.com/dsiflow/dsi/pkg/schema"
)

// duckdbDialect targets github.com/marcboeker/go-duckdb.
type duckdbDialect struct{}

func (duckdbDialect) Name() string { return "duckdb" }

func (duckdbDialect) Open(path string) (*sql.DB, error) {
	if isMemory(path) {
		path = ""
	}
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(fmt.Sprintf("SET threads=%d", runtime.NumCPU())); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (duckdbDialect) TypeName(t schema.ColumnType) string {
	switch t {
	case schema.TypeInteger:
		return "BIGINT"
	case schema.TypeFloat:
		return "DOUBLE"
	default:
		return "VARCHAR"
	}
}

func (duckdbDialect) Syntax(portable bool) find.Syntax {
	return find.Syntax{ILike: "ILIKE", Portable: portable}
}

func (duckdbDialect) ReadOnlyKeywords() []string {
	return []string{"DESCRIBE", "SHOW", "SUMMARIZE"}
}

func (duckdbDialect) RunTableDDL() []string {
	return []string{
		`CREATE SEQUENCE IF NOT EXISTS runTable_seq`,
		`CREATE TABLE IF NOT EXISTS runTable (run_id BIGINT PRIMARY KEY DEFAULT nextval('runTable_seq'), run_timestamp VARCHAR UNIQUE)`,
	}
}

func (d duckdbDialect) WidenColumn(table, column string, t schema.ColumnType) []string {
	return []string{
		fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s", find.Ident(table), find.Ident(column), d.TypeName(t)),
	}
}

func (duckdbDialect) Tables(ctx context.Context, q querier) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT table_name FROM duckdb_tables() WHERE NOT internal AND schema_name = 'main' ORDER BY table_oid`)
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}

func (duckdbDialect) Columns(ctx context.Context, q querier, table string) (*schema.Schema, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT column_name, data_type FROM duckdb_columns() WHERE schema_name = 'main' AND table_name = ? ORDER BY column_index`,
		table)
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

var (
	primaryKeyRe = regexp.MustCompile(`(?is)^\s*PRIMARY KEY\s*\((.*)\)\s*$`)
	foreignKeyRe = regexp.MustCompile(`(?is)^\s*FOREIGN KEY\s*\((.*?)\)\s*REFERENCES\s+(.+?)\s*\((.*)\)\s*$`)
)

func (duckdbDialect) constraints(ctx context.Context, q querier, table, kind string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT constraint_text FROM duckdb_constraints() WHERE schema_name = 'main' AND table_name = ? AND constraint_type = ? ORDER BY constraint_index`,
		table, kind)
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}

func (d duckdbDialect) PrimaryKeys(ctx context.Context, q querier, table string) ([]string, error) {
	texts, err := d.constraints(ctx, q, table, "PRIMARY KEY")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, text := range texts {
		m := primaryKeyRe.FindStringSubmatch(text)
		if m == nil {
			return nil, fmt.Errorf("unrecognised primary key constraint %q", text)
		}
		out = append(out, splitIdents(m[1])...)
	}
	return out, nil
}

func (d duckdbDialect) ForeignKeys(ctx context.Context, q querier, table string) ([]ForeignKey, error) {
	texts, err := d.constraints(ctx, q, table, "FOREIGN KEY")
	if err != nil {
		return nil, err
	}
	var out []ForeignKey
	for _, text := range texts {
		m := foreignKeyRe.FindStringSubmatch(text)
		if m == nil {
			// The referenced side of a key may be listed with no text.
			continue
		}
		local, remote := splitIdents(m[1]), splitIdents(m[3])
		if len(local) != len(remote) {
			return nil, fmt.Errorf("foreign key %q: %d columns reference %d", text, len(local), len(remote))
		}
		qualified := splitQualified(m[2])
		ref := qualified[len(qualified)-1]
		for i := range local {
			out = append(out, ForeignKey{Column: local[i], RefTable: ref, RefColumn: remote[i]})
		}
	}
	return out, nil
}

// Backup checkpoints the WAL into the database file and copies the file.
func (duckdbDialect) Backup(ctx context.Context, db *sql.DB, src, dst string) error {
	if _, err := db.ExecContext(ctx, "CHECKPOINT"); err != nil {
		return err
	}
	return copyFile(src, dst)
}

// splitIdents splits a comma-separated identifier list, unquoting each.
func splitIdents(list string) []string {
	var out []string
	for _, part := range splitOutsideQuotes(list, ',') {
		out = append(out, unquoteIdent(strings.TrimSpace(part)))
	}
	return out
}

// splitQualified splits schema.table, unquoting each part.
func splitQualified(name string) []string {
	var out []string
	for _, part := range splitOutsideQuotes(strings.TrimSpace(name), '.') {
		out = append(out, unquoteIdent(strings.TrimSpace(part)))
	}
	return out
}

func splitOutsideQuotes(s string, sep byte) []string {
	var out []string
	inQuote := false
	start := 0
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '"':
			inQuote = !inQuote
		case s[i] == sep && !inQuote:
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return append(out, s[start:])
}

func unquoteIdent(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return strings.ReplaceAll(s[1:len(s)-1], `""`, `"`)
	}
	return s
}

// copyFile copies src to dst through a temp file and rename, so a failed
// copy never leaves a truncated backup.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".dsi-backup-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, dst)
}
