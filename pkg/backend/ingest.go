package backend

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dsiflow/dsi/pkg/abstraction"
	dsierr "github.com/dsiflow/dsi/pkg/errors"
	"github.com/dsiflow/dsi/pkg/find"
	"github.com/dsiflow/dsi/pkg/schema"
)

// run is the per-ingest context: the runTable row every user row of this
// ingest is tagged with.
type run struct {
	id        int64
	timestamp string
}

// Ingest writes a into the store inside one transaction: tables are created
// or evolved in dependency order, rows are inserted (upserted when a
// primary key is declared) and units are recorded. On error nothing is
// written.
func (b *Backend) Ingest(ctx context.Context, a *abstraction.Abstraction) error {
	if a == nil || a.IsEmpty() {
		return nil
	}
	if err := b.backup(ctx); err != nil {
		return err
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err, "failed to begin transaction")
	}
	if err := b.ingest(ctx, tx, a); err != nil {
		rollback(tx)
		return err
	}
	if err := tx.Commit(); err != nil {
		rollback(tx)
		return classify(err, "failed to commit ingest")
	}
	return nil
}

func (b *Backend) ingest(ctx context.Context, tx *sql.Tx, a *abstraction.Abstraction) error {
	stored, err := b.tables(ctx, tx)
	if err != nil {
		return classify(err, "failed to list tables")
	}
	if err := a.Validate(func(t string) bool { return contains(stored, t) }); err != nil {
		return err
	}

	var r *run
	if b.opts.RunTable {
		if r, err = b.startRun(ctx, tx); err != nil {
			return err
		}
	}

	order, err := schema.Order(a.TableNames(), a.Relations)
	if err != nil {
		return err
	}
	for _, name := range order {
		t, _ := a.Table(name)
		if t.NumColumns() == 0 {
			log.WithField("table", name).Debug("skipping table without columns")
			continue
		}
		if contains(stored, name) {
			err = b.evolveTable(ctx, tx, t)
		} else {
			err = b.createTable(ctx, tx, t, a.Relations)
		}
		if err != nil {
			return err
		}
		if err := b.insertRows(ctx, tx, t, a.Relations, r); err != nil {
			return err
		}
	}

	if a.Units.Len() > 0 {
		if err := b.writeUnits(ctx, tx, a.Units); err != nil {
			return err
		}
	}
	return nil
}

// startRun ensures runTable exists and records this ingest in it.
func (b *Backend) startRun(ctx context.Context, tx *sql.Tx) (*run, error) {
	for _, stmt := range b.dialect.RunTableDDL() {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return nil, classify(err, "failed to create runTable")
		}
	}
	r := &run{timestamp: b.opts.Now().UTC().Format(time.RFC3339Nano)}
	err := tx.QueryRowContext(ctx,
		"INSERT INTO runTable (run_timestamp) VALUES (?) RETURNING run_id", r.timestamp).Scan(&r.id)
	if err != nil {
		return nil, classify(err, "failed to record run")
	}
	log.WithFields(log.Fields{"run_id": r.id, "run_timestamp": r.timestamp}).Debug("run recorded")
	return r, nil
}

func (b *Backend) createTable(ctx context.Context, tx *sql.Tx, t *abstraction.Table, rel *abstraction.Relations) error {
	s := schema.Infer(t)
	var defs []string
	for _, c := range s.Columns {
		defs = append(defs, find.Ident(c.Name)+" "+b.dialect.TypeName(c.Type))
	}

	pks := rel.PrimaryKeys(t.Name)
	for _, pk := range pks {
		if !t.HasColumn(pk) {
			return dsierr.Newf(dsierr.KindValue, "table %s: primary key column %q is not present", t.Name, pk)
		}
	}
	if len(pks) > 0 {
		defs = append(defs, "PRIMARY KEY ("+identList(pks)+")")
	}
	for _, fk := range rel.ForeignKeys(t.Name) {
		if !t.HasColumn(fk.ForeignKey.Column) {
			return dsierr.Newf(dsierr.KindValue, "table %s: foreign key column %q is not present", t.Name, fk.ForeignKey.Column)
		}
		defs = append(defs, fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s)",
			find.Ident(fk.ForeignKey.Column), find.Ident(fk.PrimaryKey.Table), find.Ident(fk.PrimaryKey.Column)))
	}
	if b.opts.RunTable && !t.HasColumn(abstraction.RunIDColumn) {
		defs = append(defs,
			find.Ident(abstraction.RunIDColumn)+" "+b.dialect.TypeName(schema.TypeInteger),
			fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s)",
				find.Ident(abstraction.RunIDColumn), find.Ident(abstraction.RunTable), find.Ident(abstraction.RunIDColumn)))
	}

	stmt := "CREATE TABLE " + find.Ident(t.Name) + " (" + strings.Join(defs, ", ") + ")"
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return classify(err, "failed to create table "+t.Name)
	}
	log.WithFields(log.Fields{"table": t.Name, "columns": len(s.Columns), "primary_key": pks}).Debug("table created")
	return nil
}

// evolveTable adds the contribution's new columns. Stored columns are never
// dropped or retyped.
func (b *Backend) evolveTable(ctx context.Context, tx *sql.Tx, t *abstraction.Table) error {
	stored, err := b.describe(ctx, tx, t.Name)
	if err != nil {
		return classify(err, "failed to describe table "+t.Name)
	}
	diff, err := schema.Plan(stored, schema.Infer(t), schema.PolicyMergeNullable)
	if err != nil {
		return err
	}
	added := diff.Added
	if b.opts.RunTable && stored.Index(abstraction.RunIDColumn) < 0 && !t.HasColumn(abstraction.RunIDColumn) {
		added = append(added, schema.Column{Name: abstraction.RunIDColumn, Type: schema.TypeInteger})
	}
	for _, c := range added {
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", find.Ident(t.Name), find.Ident(c.Name), b.dialect.TypeName(c.Type))
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return classify(err, "failed to add column "+t.Name+"."+c.Name)
		}
		log.WithFields(log.Fields{"table": t.Name, "column": c.Name, "type": c.Type}).Debug("column added")
	}
	return nil
}

func (b *Backend) insertRows(ctx context.Context, tx *sql.Tx, t *abstraction.Table, rel *abstraction.Relations, r *run) error {
	if t.NumRows() == 0 {
		return nil
	}
	stored, err := b.describe(ctx, tx, t.Name)
	if err != nil {
		return classify(err, "failed to describe table "+t.Name)
	}
	pks, err := b.dialect.PrimaryKeys(ctx, tx, t.Name)
	if err != nil {
		return classify(err, "failed to read primary key of "+t.Name)
	}
	if err := checkKeys(t, pks); err != nil {
		return err
	}

	columns := t.Columns()
	tagRun := r != nil && !t.HasColumn(abstraction.RunIDColumn)
	if tagRun {
		columns = append(columns, abstraction.RunIDColumn)
	}
	types := make([]schema.ColumnType, len(columns))
	for i, c := range columns {
		if col, ok := stored.Lookup(c); ok {
			types[i] = col.Type
		}
	}

	stmt := insertStatement(t.Name, columns, pks)
	prep, err := tx.PrepareContext(ctx, stmt)
	if err != nil {
		return classify(err, "failed to prepare insert into "+t.Name)
	}
	defer prep.Close()

	args := make([]interface{}, len(columns))
	for row := 0; row < t.NumRows(); row++ {
		for i, v := range t.Row(row) {
			args[i] = schema.Coerce(v, types[i]).Any()
		}
		if tagRun {
			args[len(args)-1] = r.id
		}
		if _, err := prep.ExecContext(ctx, args...); err != nil {
			return classify(err, fmt.Sprintf("failed to insert row %d into %s", row+1, t.Name))
		}
	}
	log.WithFields(log.Fields{"table": t.Name, "rows": t.NumRows()}).Debug("rows inserted")
	return nil
}

// insertStatement builds the INSERT for columns, upserting on the primary
// key when one is declared.
func insertStatement(table string, columns, pks []string) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", find.Ident(table), identList(columns), placeholders)
	if len(pks) == 0 {
		return stmt
	}
	var sets []string
	for _, c := range columns {
		if contains(pks, c) {
			continue
		}
		sets = append(sets, find.Ident(c)+" = excluded."+find.Ident(c))
	}
	if len(sets) == 0 {
		return stmt + " ON CONFLICT (" + identList(pks) + ") DO NOTHING"
	}
	return stmt + " ON CONFLICT (" + identList(pks) + ") DO UPDATE SET " + strings.Join(sets, ", ")
}

// checkKeys rejects null or repeated primary keys within one contribution,
// which an upsert would otherwise silently collapse.
func checkKeys(t *abstraction.Table, pks []string) error {
	if len(pks) == 0 {
		return nil
	}
	for _, pk := range pks {
		if !t.HasColumn(pk) {
			return dsierr.Newf(dsierr.KindConstraint, "table %s: primary key column %q is missing", t.Name, pk)
		}
	}
	seen := make(map[string]int, t.NumRows())
	for row := 0; row < t.NumRows(); row++ {
		var key []string
		for _, pk := range pks {
			v, _ := t.Get(pk, row)
			if v.IsNull() {
				return dsierr.Newf(dsierr.KindConstraint, "table %s: row %d has a null primary key %q", t.Name, row+1, pk)
			}
			key = append(key, v.Kind().String()+":"+v.String())
		}
		k := strings.Join(key, "\x00")
		if prev, ok := seen[k]; ok {
			return dsierr.Newf(dsierr.KindConstraint, "table %s: rows %d and %d share the primary key %v",
				t.Name, prev+1, row+1, pks)
		}
		seen[k] = row
	}
	return nil
}

// writeUnits records units in dsi_units, rejecting a different unit for a
// column that already has one.
func (b *Backend) writeUnits(ctx context.Context, tx *sql.Tx, units *abstraction.Units) error {
	text := b.dialect.TypeName(schema.TypeText)
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (table_name %s, column_name %s, unit %s, UNIQUE (table_name, column_name))",
		abstraction.UnitsTable, text, text, text)
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return classify(err, "failed to create "+abstraction.UnitsTable)
	}
	for _, e := range units.Entries() {
		var existing string
		err := tx.QueryRowContext(ctx,
			"SELECT unit FROM "+abstraction.UnitsTable+" WHERE table_name = ? AND column_name = ?",
			e.Table, e.Column).Scan(&existing)
		switch {
		case err == sql.ErrNoRows:
			_, err = tx.ExecContext(ctx,
				"INSERT INTO "+abstraction.UnitsTable+" (table_name, column_name, unit) VALUES (?, ?, ?)",
				e.Table, e.Column, e.Unit)
			if err != nil {
				return classify(err, "failed to record unit")
			}
		case err != nil:
			return classify(err, "failed to read units")
		case existing != e.Unit:
			return dsierr.UnitConflict(e.Table, e.Column, existing, e.Unit)
		}
	}
	return nil
}

func identList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = find.Ident(n)
	}
	return strings.Join(quoted, ", ")
}
