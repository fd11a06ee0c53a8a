// Package abstraction implements the active metadata model: an ordered set
// of columnar tables plus the reserved relation and unit side-tables.
//
// Reserved names never appear as user tables. Relations and Units are
// fields of Abstraction rather than magic keys, and the run table hydrated
// from a backend lives in Runs.
package abstraction

import (
	dsierr "github.com/dsiflow/dsi/pkg/errors"
)

// Reserved table names.
const (
	RelationsTable = "dsi_relations"
	UnitsTable     = "dsi_units"
	RunTable       = "runTable"
	RunIDColumn    = "run_id"
	RunTimeColumn  = "run_timestamp"
)

// Provenance columns attached to find results.
const (
	TableNameColumn = "dsi_table_name"
	RowIndexColumn  = "dsi_row_index"
)

// IsReserved reports whether name is reserved for internal tables.
func IsReserved(name string) bool {
	switch name {
	case RelationsTable, UnitsTable, RunTable:
		return true
	}
	return false
}

// IsProvenance reports whether a column is one of the find provenance columns.
func IsProvenance(column string) bool {
	return column == TableNameColumn || column == RowIndexColumn
}

// Abstraction is the in-memory canonical store.
type Abstraction struct {
	order  []string
	tables map[string]*Table

	Relations *Relations
	Units     *Units

	// Runs is the hydrated runTable, nil when the store has none.
	Runs *Table
}

// New creates an empty abstraction.
func New() *Abstraction {
	return &Abstraction{
		tables:    make(map[string]*Table),
		Relations: NewRelations(),
		Units:     NewUnits(),
	}
}

// IsEmpty reports whether there is nothing to ingest.
func (a *Abstraction) IsEmpty() bool {
	return len(a.order) == 0 && a.Relations.Len() == 0 && a.Units.Len() == 0
}

// TableNames returns user table names in insertion order.
func (a *Abstraction) TableNames() []string {
	out := make([]string, len(a.order))
	copy(out, a.order)
	return out
}

// Tables returns user tables in insertion order.
func (a *Abstraction) Tables() []*Table {
	out := make([]*Table, len(a.order))
	for i, n := range a.order {
		out[i] = a.tables[n]
	}
	return out
}

// Table returns a user table.
func (a *Abstraction) Table(name string) (*Table, bool) {
	t, ok := a.tables[name]
	return t, ok
}

// HasTable reports whether a user table exists.
func (a *Abstraction) HasTable(name string) bool {
	_, ok := a.tables[name]
	return ok
}

// Put inserts or replaces a table.
func (a *Abstraction) Put(t *Table) error {
	if IsReserved(t.Name) {
		return dsierr.Newf(dsierr.KindValue, "%q is a reserved table name", t.Name)
	}
	if t.Name == "" {
		return dsierr.New(dsierr.KindValue, "table name must not be empty")
	}
	if _, ok := a.tables[t.Name]; !ok {
		a.order = append(a.order, t.Name)
	}
	a.tables[t.Name] = t
	return nil
}

// AddTable merges t into the table of the same name, or inserts it. Merging
// is a column-name union with null padding.
func (a *Abstraction) AddTable(t *Table) error {
	if err := t.Validate(); err != nil {
		return err
	}
	existing, ok := a.tables[t.Name]
	if !ok {
		return a.Put(t)
	}
	existing.Append(t)
	return nil
}

// Remove deletes a user table.
func (a *Abstraction) Remove(name string) {
	if _, ok := a.tables[name]; !ok {
		return
	}
	delete(a.tables, name)
	for i, n := range a.order {
		if n == name {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
}

// Merge folds a reader fragment into a. Tables merge by AddTable, relations
// append, and units must not conflict. On error a is unchanged.
func (a *Abstraction) Merge(fragment *Abstraction) error {
	if fragment == nil {
		return nil
	}
	for _, t := range fragment.Tables() {
		if IsReserved(t.Name) {
			return dsierr.Newf(dsierr.KindValue, "%q is a reserved table name", t.Name)
		}
		if t.Name == "" {
			return dsierr.New(dsierr.KindValue, "table name must not be empty")
		}
		if err := t.Validate(); err != nil {
			return err
		}
	}
	units := a.Units.Clone()
	if err := units.Merge(fragment.Units); err != nil {
		return err
	}

	for _, t := range fragment.Tables() {
		_ = a.AddTable(t.Clone())
	}
	a.Relations.Merge(fragment.Relations)
	a.Units = units
	return nil
}

// Clone returns a deep copy.
func (a *Abstraction) Clone() *Abstraction {
	out := New()
	for _, t := range a.Tables() {
		_ = out.Put(t.Clone())
	}
	out.Relations = a.Relations.Clone()
	out.Units = a.Units.Clone()
	if a.Runs != nil {
		out.Runs = a.Runs.Clone()
	}
	return out
}

// Reset empties the abstraction.
func (a *Abstraction) Reset() {
	a.order = nil
	a.tables = make(map[string]*Table)
	a.Relations = NewRelations()
	a.Units = NewUnits()
	a.Runs = nil
}

// Validate checks the structural invariants: equal column lengths, and
// relations naming tables present here or accepted by known.
func (a *Abstraction) Validate(known func(table string) bool) error {
	for _, t := range a.Tables() {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	err := a.Relations.Validate(func(table string) bool {
		return a.HasTable(table) || (known != nil && known(table))
	})
	if err != nil {
		return dsierr.Wrap(err, dsierr.KindValue, "invalid relation")
	}
	return nil
}
