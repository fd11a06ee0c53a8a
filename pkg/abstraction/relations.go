package abstraction

import "fmt"

// ColumnRef names one column of one table. The zero ColumnRef stands for
// "no column" and pairs with primary keys that have no dependants.
type ColumnRef struct {
	Table  string
	Column string
}

// IsZero reports whether the reference is empty.
func (c ColumnRef) IsZero() bool { return c.Table == "" && c.Column == "" }

// String formats the reference as table.column, or "None".
func (c ColumnRef) String() string {
	if c.IsZero() {
		return "None"
	}
	return c.Table + "." + c.Column
}

// Relation states that ForeignKey references PrimaryKey. A zero ForeignKey
// declares a primary key without dependants.
type Relation struct {
	PrimaryKey ColumnRef
	ForeignKey ColumnRef
}

// String formats the entry as "fk references pk", or "primary key pk" for
// a key without dependants.
func (e Relation) String() string {
	if e.ForeignKey.IsZero() {
		return "primary key " + e.PrimaryKey.String()
	}
	return e.ForeignKey.String() + " references " + e.PrimaryKey.String()
}

// Relations is the ordered primary_key/foreign_key pair list.
type Relations struct {
	entries []Relation
}

// NewRelations creates an empty relation list.
func NewRelations() *Relations {
	return &Relations{}
}

// Len returns the number of entries.
func (r *Relations) Len() int { return len(r.entries) }

// Entries returns a copy of the entries.
func (r *Relations) Entries() []Relation {
	out := make([]Relation, len(r.entries))
	copy(out, r.entries)
	return out
}

// AddPrimaryKey declares a primary key without dependants.
func (r *Relations) AddPrimaryKey(pk ColumnRef) {
	r.Add(pk, ColumnRef{})
}

// Add records that fk references pk. Duplicate entries are ignored, and a
// bare primary-key entry is dropped once the key gains a dependant.
func (r *Relations) Add(pk, fk ColumnRef) {
	for _, e := range r.entries {
		if e.PrimaryKey == pk && e.ForeignKey == fk {
			return
		}
		if e.PrimaryKey == pk && !e.ForeignKey.IsZero() && fk.IsZero() {
			return
		}
	}
	if !fk.IsZero() {
		out := r.entries[:0]
		for _, e := range r.entries {
			if e.PrimaryKey == pk && e.ForeignKey.IsZero() {
				continue
			}
			out = append(out, e)
		}
		r.entries = out
	}
	r.entries = append(r.entries, Relation{PrimaryKey: pk, ForeignKey: fk})
}

// Merge appends every entry of other.
func (r *Relations) Merge(other *Relations) {
	if other == nil {
		return
	}
	for _, e := range other.entries {
		r.Add(e.PrimaryKey, e.ForeignKey)
	}
}

// PrimaryKeys returns the distinct primary-key columns declared for table,
// in declaration order.
func (r *Relations) PrimaryKeys(table string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, e := range r.entries {
		if e.PrimaryKey.Table == table && !seen[e.PrimaryKey.Column] {
			seen[e.PrimaryKey.Column] = true
			out = append(out, e.PrimaryKey.Column)
		}
	}
	return out
}

// DistinctPrimaryKeys returns every distinct primary-key reference.
func (r *Relations) DistinctPrimaryKeys() []ColumnRef {
	var out []ColumnRef
	seen := make(map[ColumnRef]bool)
	for _, e := range r.entries {
		if !seen[e.PrimaryKey] {
			seen[e.PrimaryKey] = true
			out = append(out, e.PrimaryKey)
		}
	}
	return out
}

// ForeignKeys returns the relations whose foreign key lives in table.
func (r *Relations) ForeignKeys(table string) []Relation {
	var out []Relation
	for _, e := range r.entries {
		if e.ForeignKey.Table == table {
			out = append(out, e)
		}
	}
	return out
}

// Tables returns every table named by any entry.
func (r *Relations) Tables() []string {
	var out []string
	seen := make(map[string]bool)
	add := func(t string) {
		if t != "" && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, e := range r.entries {
		add(e.PrimaryKey.Table)
		add(e.ForeignKey.Table)
	}
	return out
}

// Prefixed returns a copy with every table name prefixed.
func (r *Relations) Prefixed(prefix string) *Relations {
	out := NewRelations()
	p := func(c ColumnRef) ColumnRef {
		if c.IsZero() {
			return c
		}
		return ColumnRef{Table: prefix + c.Table, Column: c.Column}
	}
	for _, e := range r.entries {
		out.Add(p(e.PrimaryKey), p(e.ForeignKey))
	}
	return out
}

// Clone returns a copy.
func (r *Relations) Clone() *Relations {
	return &Relations{entries: r.Entries()}
}

// Validate checks that every referenced table is known.
func (r *Relations) Validate(known func(table string) bool) error {
	for _, e := range r.entries {
		for _, ref := range []ColumnRef{e.PrimaryKey, e.ForeignKey} {
			if ref.IsZero() {
				continue
			}
			if !known(ref.Table) {
				return fmt.Errorf("relation %s names unknown table %q", e, ref.Table)
			}
		}
	}
	return nil
}

// AsTable flattens the relations into the two-column dsi_relations layout.
func (r *Relations) AsTable() *Table {
	pks := make([]Value, len(r.entries))
	fks := make([]Value, len(r.entries))
	for i, e := range r.entries {
		pks[i] = Text(e.PrimaryKey.String())
		if e.ForeignKey.IsZero() {
			fks[i] = Null()
		} else {
			fks[i] = Text(e.ForeignKey.String())
		}
	}
	t := NewTable(RelationsTable)
	_ = t.AddColumn("primary_key", pks)
	_ = t.AddColumn("foreign_key", fks)
	return t
}
