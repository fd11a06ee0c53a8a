package backend

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/dsiflow/dsi/pkg/abstraction"
	dsierr "github.com/dsiflow/dsi/pkg/errors"
	"github.com/dsiflow/dsi/pkg/find"
)

// FindOptions narrows a find.
type FindOptions struct {
	// Tables restricts the search to the named tables. When set, a column
	// present in several of them is searched in all of them.
	Tables []string
}

// Find evaluates a find expression against every table holding its
// column. Each matching table comes back with its full rows plus the
// dsi_table_name and dsi_row_index provenance columns Update consumes.
// Tables with no matching row are omitted.
//
// A column present in more than one table is a ValueError unless
// opts.Tables names the tables to search; the error carries the per-table
// statements the caller can run with Query instead.
func (b *Backend) Find(ctx context.Context, src string, opts FindOptions) ([]*abstraction.Table, error) {
	expr, err := find.Parse(src)
	if err != nil {
		return nil, err
	}
	syn := b.dialect.Syntax(b.opts.Portable)

	names := opts.Tables
	if len(names) == 0 {
		if names, err = b.ListTables(ctx); err != nil {
			return nil, err
		}
	}

	var candidates []string
	for _, name := range names {
		if abstraction.IsReserved(name) {
			continue
		}
		s, err := b.describe(ctx, b.db, name)
		if err != nil {
			return nil, classify(err, "failed to describe table "+name)
		}
		if s.Index(expr.Column) >= 0 {
			candidates = append(candidates, name)
		}
	}
	if len(candidates) > 1 && len(opts.Tables) == 0 {
		statements := make([]string, len(candidates))
		for i, t := range candidates {
			statements[i] = expr.Statement(t, syn)
		}
		return nil, dsierr.Newf(dsierr.KindValue,
			"column %q exists in tables %s; query one of them directly", expr.Column, strings.Join(candidates, ", ")).
			WithContext("statements", statements)
	}

	var out []*abstraction.Table
	for _, name := range candidates {
		t, err := b.findIn(ctx, name, expr, syn)
		if err != nil {
			return nil, err
		}
		if t.NumRows() > 0 {
			out = append(out, t)
		}
	}
	log.WithFields(log.Fields{"expression": expr.String(), "tables": len(out)}).Debug("find evaluated")
	return out, nil
}

func (b *Backend) findIn(ctx context.Context, table string, expr *find.Expr, syn find.Syntax) (*abstraction.Table, error) {
	s, err := b.describe(ctx, b.db, table)
	if err != nil {
		return nil, classify(err, "failed to describe table "+table)
	}
	stmt := fmt.Sprintf(
		"SELECT %s, %s AS %s, %s FROM (SELECT *, ROW_NUMBER() OVER (ORDER BY rowid) AS %s FROM %s) AS q WHERE %s ORDER BY %s",
		identList(s.Names()),
		find.Literal(abstraction.Text(table)), find.Ident(abstraction.TableNameColumn),
		find.Ident(abstraction.RowIndexColumn), find.Ident(abstraction.RowIndexColumn),
		find.Ident(table), expr.Where(syn, ""), find.Ident(abstraction.RowIndexColumn),
	)
	rows, err := b.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, classify(err, "find failed on "+table)
	}
	columns, values, err := scanValues(rows)
	if err != nil {
		return nil, classify(err, "find failed on "+table)
	}
	return toTable(table, columns, values)
}

// Union stacks find results into one table by column-name union, the
// single-table form of a find.
func Union(tables []*abstraction.Table) *abstraction.Table {
	out := abstraction.NewTable("find")
	for _, t := range tables {
		out.Append(t)
	}
	return out
}
