package abstraction

import (
	dsierr "github.com/dsiflow/dsi/pkg/errors"
)

// UnitEntry is one flattened (table, column, unit) triple.
type UnitEntry struct {
	Table  string
	Column string
	Unit   string
}

// Units maps table -> column -> unit, preserving declaration order.
type Units struct {
	tables  []string
	columns map[string][]string
	units   map[string]map[string]string
}

// NewUnits creates an empty unit table.
func NewUnits() *Units {
	return &Units{
		columns: make(map[string][]string),
		units:   make(map[string]map[string]string),
	}
}

// Len returns the number of (table, column) entries.
func (u *Units) Len() int {
	n := 0
	for _, t := range u.tables {
		n += len(u.columns[t])
	}
	return n
}

// Get returns the unit of a column.
func (u *Units) Get(table, column string) (string, bool) {
	cols, ok := u.units[table]
	if !ok {
		return "", false
	}
	unit, ok := cols[column]
	return unit, ok
}

// Set declares the unit of a column. Re-declaring the same unit is a no-op;
// a different unit is a UnitConflict.
func (u *Units) Set(table, column, unit string) error {
	cols, ok := u.units[table]
	if !ok {
		cols = make(map[string]string)
		u.units[table] = cols
		u.tables = append(u.tables, table)
	}
	if existing, ok := cols[column]; ok {
		if existing != unit {
			return dsierr.UnitConflict(table, column, existing, unit)
		}
		return nil
	}
	cols[column] = unit
	u.columns[table] = append(u.columns[table], column)
	return nil
}

// Merge folds other into u, failing on the first conflict. u is left
// unchanged on failure.
func (u *Units) Merge(other *Units) error {
	if other == nil {
		return nil
	}
	for _, e := range other.Entries() {
		if existing, ok := u.Get(e.Table, e.Column); ok && existing != e.Unit {
			return dsierr.UnitConflict(e.Table, e.Column, existing, e.Unit)
		}
	}
	for _, e := range other.Entries() {
		_ = u.Set(e.Table, e.Column, e.Unit)
	}
	return nil
}

// Table returns the ordered column->unit pairs for one table.
func (u *Units) Table(table string) []UnitEntry {
	var out []UnitEntry
	for _, c := range u.columns[table] {
		out = append(out, UnitEntry{Table: table, Column: c, Unit: u.units[table][c]})
	}
	return out
}

// Entries flattens the units into triples.
func (u *Units) Entries() []UnitEntry {
	var out []UnitEntry
	for _, t := range u.tables {
		out = append(out, u.Table(t)...)
	}
	return out
}

// Prefixed returns a copy with every table name prefixed.
func (u *Units) Prefixed(prefix string) *Units {
	out := NewUnits()
	for _, e := range u.Entries() {
		_ = out.Set(prefix+e.Table, e.Column, e.Unit)
	}
	return out
}

// Clone returns a copy.
func (u *Units) Clone() *Units {
	out := NewUnits()
	for _, e := range u.Entries() {
		_ = out.Set(e.Table, e.Column, e.Unit)
	}
	return out
}

// AsTable flattens the units into the three-column dsi_units layout.
func (u *Units) AsTable() *Table {
	entries := u.Entries()
	tables := make([]Value, len(entries))
	columns := make([]Value, len(entries))
	units := make([]Value, len(entries))
	for i, e := range entries {
		tables[i] = Text(e.Table)
		columns[i] = Text(e.Column)
		units[i] = Text(e.Unit)
	}
	t := NewTable(UnitsTable)
	_ = t.AddColumn("table_name", tables)
	_ = t.AddColumn("column_name", columns)
	_ = t.AddColumn("unit", units)
	return t
}
