package backend

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/dsiflow/dsi/pkg/abstraction"
	dsierr "github.com/dsiflow/dsi/pkg/errors"
	"github.com/dsiflow/dsi/pkg/find"
	"github.com/dsiflow/dsi/pkg/schema"
)

// Update writes edited find results back in one transaction. Rows are
// located by dsi_row_index, the 1-based position in stored row order, and
// every other column overwrites the stored cell. A table may gain columns
// and stored types widen to fit the edits, but every stored column must be
// present. Rows of a union are routed by dsi_table_name, and a column the
// table does not store is added only if some routed row sets it.
func (b *Backend) Update(ctx context.Context, tables []*abstraction.Table) error {
	var parts []*abstraction.Table
	for _, t := range tables {
		split, err := splitByTable(t)
		if err != nil {
			return err
		}
		parts = append(parts, split...)
	}
	if len(parts) == 0 {
		return nil
	}
	if err := b.backup(ctx); err != nil {
		return err
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err, "failed to begin transaction")
	}
	for _, t := range parts {
		if err := b.updateTable(ctx, tx, t); err != nil {
			rollback(tx)
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		rollback(tx)
		return classify(err, "failed to commit update")
	}
	return nil
}

// splitByTable groups the rows of t by dsi_table_name, keeping row order.
// A table without the column updates the table it is named after.
func splitByTable(t *abstraction.Table) ([]*abstraction.Table, error) {
	if !t.HasColumn(abstraction.RowIndexColumn) {
		return nil, dsierr.Newf(dsierr.KindValue, "table %s has no %s column; update takes find results",
			t.Name, abstraction.RowIndexColumn)
	}
	names, ok := t.Column(abstraction.TableNameColumn)
	if !ok {
		return []*abstraction.Table{t}, nil
	}
	var order []string
	groups := make(map[string]*abstraction.Table)
	for row := 0; row < t.NumRows(); row++ {
		name := names[row].String()
		if name == "" {
			return nil, dsierr.Newf(dsierr.KindValue, "row %d of %s has no %s", row+1, t.Name, abstraction.TableNameColumn)
		}
		g, ok := groups[name]
		if !ok {
			g = abstraction.NewTable(name)
			groups[name] = g
			order = append(order, name)
		}
		if err := g.AppendRow(t.Columns(), t.Row(row)); err != nil {
			return nil, err
		}
	}
	out := make([]*abstraction.Table, len(order))
	for i, name := range order {
		out[i] = groups[name]
	}
	return out, nil
}

func (b *Backend) updateTable(ctx context.Context, tx *sql.Tx, t *abstraction.Table) error {
	stored, err := b.dialect.Columns(ctx, tx, t.Name)
	if err != nil {
		return classify(err, "failed to describe table "+t.Name)
	}
	if len(stored.Columns) == 0 {
		return dsierr.Newf(dsierr.KindValue, "no table %q in the store", t.Name)
	}

	edits := t.Clone()
	edits.DropColumn(abstraction.TableNameColumn)
	edits.DropColumn(abstraction.RowIndexColumn)
	for _, c := range edits.Columns() {
		// Rows routed out of a union carry the other tables' columns as
		// nulls; those are not additions to this table.
		if _, ok := stored.Lookup(c); ok {
			continue
		}
		if values, _ := edits.Column(c); allNull(values) {
			edits.DropColumn(c)
		}
	}
	incoming := schema.Infer(edits)
	for i, c := range incoming.Columns {
		// An all-null column says nothing about its type.
		if old, ok := stored.Lookup(c.Name); ok && allNull(edits.ColumnAt(i)) {
			incoming.Columns[i].Type = old.Type
		}
	}
	diff, err := schema.Plan(stored, incoming, schema.PolicyEvolving)
	if err != nil {
		return err
	}
	for _, c := range diff.Added {
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", find.Ident(t.Name), find.Ident(c.Name), b.dialect.TypeName(c.Type))
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return classify(err, "failed to add column "+t.Name+"."+c.Name)
		}
	}
	types := make(map[string]schema.ColumnType)
	for _, c := range stored.Columns {
		types[c.Name] = c.Type
	}
	for _, c := range diff.Added {
		types[c.Name] = c.Type
	}
	for _, ch := range diff.TypeChanges {
		for _, stmt := range b.dialect.WidenColumn(t.Name, ch.Column, ch.NewType) {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return classify(err, "failed to widen column "+t.Name+"."+ch.Column)
			}
		}
		types[ch.Column] = ch.NewType
		log.WithFields(log.Fields{"table": t.Name, "column": ch.Column, "from": ch.OldType, "to": ch.NewType}).
			Debug("column widened")
	}

	pks, err := b.dialect.PrimaryKeys(ctx, tx, t.Name)
	if err != nil {
		return classify(err, "failed to read primary key of "+t.Name)
	}
	current, err := b.rowKeys(ctx, tx, t.Name, pks)
	if err != nil {
		return err
	}

	index, _ := t.Column(abstraction.RowIndexColumn)
	columns := edits.Columns()
	for row := 0; row < t.NumRows(); row++ {
		pos := index[row]
		if pos.Kind() != abstraction.KindInteger || pos.Int64() < 1 || pos.Int64() > int64(len(current)) {
			return dsierr.Newf(dsierr.KindValue, "table %s: %s %s is out of range [1,%d]",
				t.Name, abstraction.RowIndexColumn, pos, len(current))
		}
		target := current[pos.Int64()-1]

		var sets []string
		var args []interface{}
		for _, c := range columns {
			v, _ := edits.Get(c, row)
			v = schema.Coerce(v, types[c])
			if old, isKey := target.keys[c]; isKey {
				// Rewriting an unchanged key would trip uniqueness checks on
				// engines that update keys as delete plus insert.
				if old.Equal(v) {
					continue
				}
				log.WithFields(log.Fields{"table": t.Name, "column": c, "row": pos.Int64()}).
					Warn("primary key edited; stored row order may change on the next read")
			}
			sets = append(sets, find.Ident(c)+" = ?")
			args = append(args, v.Any())
		}
		if len(sets) == 0 {
			continue
		}
		args = append(args, target.rowid)
		stmt := fmt.Sprintf("UPDATE %s SET %s WHERE rowid = ?", find.Ident(t.Name), strings.Join(sets, ", "))
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return classify(err, fmt.Sprintf("failed to update row %d of %s", pos.Int64(), t.Name))
		}
	}
	log.WithFields(log.Fields{"table": t.Name, "rows": t.NumRows()}).Debug("rows updated")
	return nil
}

// storedRow is a row's rowid plus its primary-key values.
type storedRow struct {
	rowid int64
	keys  map[string]abstraction.Value
}

// rowKeys returns every row of table in rowid order.
func (b *Backend) rowKeys(ctx context.Context, q querier, table string, pks []string) ([]storedRow, error) {
	cols := "rowid"
	if len(pks) > 0 {
		cols += ", " + identList(pks)
	}
	rows, err := q.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY rowid", cols, find.Ident(table)))
	if err != nil {
		return nil, classify(err, "failed to read rows of "+table)
	}
	_, values, err := scanValues(rows)
	if err != nil {
		return nil, classify(err, "failed to read rows of "+table)
	}
	out := make([]storedRow, len(values))
	for i, row := range values {
		out[i] = storedRow{rowid: row[0].Int64(), keys: make(map[string]abstraction.Value, len(pks))}
		for j, pk := range pks {
			out[i].keys[pk] = row[j+1]
		}
	}
	return out, nil
}

func allNull(values []abstraction.Value) bool {
	for _, v := range values {
		if !v.IsNull() {
			return false
		}
	}
	return true
}
