package backend

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/dsiflow/dsi/pkg/abstraction"
	"github.com/dsiflow/dsi/pkg/find"
)

// Process reads the whole store back into a fresh abstraction: user tables
// in stored column and row order, relations rebuilt from key constraints,
// units from dsi_units and runs from runTable.
func (b *Backend) Process(ctx context.Context) (*abstraction.Abstraction, error) {
	names, err := b.tables(ctx, b.db)
	if err != nil {
		return nil, classify(err, "failed to list tables")
	}

	a := abstraction.New()
	users := userTables(names)
	for _, name := range users {
		t, err := b.readTable(ctx, b.db, name)
		if err != nil {
			return nil, err
		}
		if err := a.Put(t); err != nil {
			return nil, err
		}
	}

	if err := b.readRelations(ctx, a, users); err != nil {
		return nil, err
	}
	if contains(names, abstraction.UnitsTable) {
		if err := b.readUnits(ctx, a); err != nil {
			return nil, err
		}
	}
	if contains(names, abstraction.RunTable) {
		runs, err := b.readTable(ctx, b.db, abstraction.RunTable)
		if err != nil {
			return nil, err
		}
		a.Runs = runs
	}
	log.WithField("tables", len(users)).Debug("store processed")
	return a, nil
}

// readTable reads a table in rowid order.
func (b *Backend) readTable(ctx context.Context, q querier, name string) (*abstraction.Table, error) {
	s, err := b.describe(ctx, q, name)
	if err != nil {
		return nil, classify(err, "failed to describe table "+name)
	}
	stmt := fmt.Sprintf("SELECT %s FROM %s ORDER BY rowid", identList(s.Names()), find.Ident(name))
	rows, err := q.QueryContext(ctx, stmt)
	if err != nil {
		return nil, classify(err, "failed to read table "+name)
	}
	columns, values, err := scanValues(rows)
	if err != nil {
		return nil, classify(err, "failed to read table "+name)
	}
	t, err := toTable(name, columns, values)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (b *Backend) readRelations(ctx context.Context, a *abstraction.Abstraction, tables []string) error {
	for _, name := range tables {
		pks, err := b.dialect.PrimaryKeys(ctx, b.db, name)
		if err != nil {
			return classify(err, "failed to read primary key of "+name)
		}
		for _, pk := range pks {
			a.Relations.AddPrimaryKey(abstraction.ColumnRef{Table: name, Column: pk})
		}
	}
	for _, name := range tables {
		fks, err := b.dialect.ForeignKeys(ctx, b.db, name)
		if err != nil {
			return classify(err, "failed to read foreign keys of "+name)
		}
		for _, fk := range fks {
			// run_id links are bookkeeping, not user relations.
			if fk.RefTable == abstraction.RunTable {
				continue
			}
			a.Relations.Add(
				abstraction.ColumnRef{Table: fk.RefTable, Column: fk.RefColumn},
				abstraction.ColumnRef{Table: name, Column: fk.Column},
			)
		}
	}
	return nil
}

func (b *Backend) readUnits(ctx context.Context, a *abstraction.Abstraction) error {
	rows, err := b.db.QueryContext(ctx,
		"SELECT table_name, column_name, unit FROM "+abstraction.UnitsTable+" ORDER BY rowid")
	if err != nil {
		return classify(err, "failed to read units")
	}
	defer rows.Close()
	for rows.Next() {
		var table, column, unit string
		if err := rows.Scan(&table, &column, &unit); err != nil {
			return classify(err, "failed to read units")
		}
		if err := a.Units.Set(table, column, unit); err != nil {
			return err
		}
	}
	return classify(rows.Err(), "failed to read units")
}
