package abstraction

import (
	"fmt"

	dsierr "github.com/dsiflow/dsi/pkg/errors"
)

// Table is an ordered, columnar table: every column holds exactly NumRows
// values.
type Table struct {
	Name string

	columns []string
	index   map[string]int
	data    [][]Value
	rows    int
}

// NewTable creates an empty table.
func NewTable(name string) *Table {
	return &Table{
		Name:  name,
		index: make(map[string]int),
	}
}

// NewTableFromColumns builds a table from parallel column names and values.
func NewTableFromColumns(name string, columns []string, values [][]Value) (*Table, error) {
	if len(columns) != len(values) {
		return nil, dsierr.Newf(dsierr.KindValue, "table %s: %d column names for %d columns", name, len(columns), len(values))
	}
	t := NewTable(name)
	for i, c := range columns {
		if err := t.AddColumn(c, values[i]); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Columns returns the column names in order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// NumColumns returns the number of columns.
func (t *Table) NumColumns() int { return len(t.columns) }

// NumRows returns the row count.
func (t *Table) NumRows() int { return t.rows }

// HasColumn reports whether the table has a column.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Column returns the values of a column. The slice is shared with the table.
func (t *Table) Column(name string) ([]Value, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.data[i], true
}

// ColumnAt returns the values of the i-th column.
func (t *Table) ColumnAt(i int) []Value { return t.data[i] }

// AddColumn appends a column. The first column fixes the row count of an
// empty table; later columns must match it.
func (t *Table) AddColumn(name string, values []Value) error {
	if _, ok := t.index[name]; ok {
		return dsierr.Newf(dsierr.KindValue, "table %s: duplicate column %q", t.Name, name)
	}
	if len(t.columns) > 0 && len(values) != t.rows {
		return dsierr.Newf(dsierr.KindValue, "table %s: column %q has %d rows, table has %d",
			t.Name, name, len(values), t.rows)
	}
	if len(t.columns) == 0 {
		t.rows = len(values)
	}
	t.index[name] = len(t.columns)
	t.columns = append(t.columns, name)
	col := make([]Value, len(values))
	copy(col, values)
	t.data = append(t.data, col)
	return nil
}

// SetColumn replaces the values of a column, adding it when absent.
func (t *Table) SetColumn(name string, values []Value) error {
	i, ok := t.index[name]
	if !ok {
		return t.AddColumn(name, values)
	}
	if len(values) != t.rows {
		return dsierr.Newf(dsierr.KindValue, "table %s: column %q has %d rows, table has %d",
			t.Name, name, len(values), t.rows)
	}
	col := make([]Value, len(values))
	copy(col, values)
	t.data[i] = col
	return nil
}

// Fill sets every cell of a column to v, adding the column when absent.
func (t *Table) Fill(name string, v Value) error {
	values := make([]Value, t.rows)
	for i := range values {
		values[i] = v
	}
	return t.SetColumn(name, values)
}

// DropColumn removes a column if present.
func (t *Table) DropColumn(name string) {
	i, ok := t.index[name]
	if !ok {
		return
	}
	t.columns = append(t.columns[:i], t.columns[i+1:]...)
	t.data = append(t.data[:i], t.data[i+1:]...)
	delete(t.index, name)
	for j := i; j < len(t.columns); j++ {
		t.index[t.columns[j]] = j
	}
}

// Get returns one cell.
func (t *Table) Get(column string, row int) (Value, bool) {
	i, ok := t.index[column]
	if !ok || row < 0 || row >= t.rows {
		return Value{}, false
	}
	return t.data[i][row], true
}

// Set overwrites one cell.
func (t *Table) Set(column string, row int, v Value) error {
	i, ok := t.index[column]
	if !ok {
		return dsierr.Newf(dsierr.KindValue, "table %s: no column %q", t.Name, column)
	}
	if row < 0 || row >= t.rows {
		return dsierr.Newf(dsierr.KindValue, "table %s: row %d out of range [0,%d)", t.Name, row, t.rows)
	}
	t.data[i][row] = v
	return nil
}

// Row returns the values of one row in column order.
func (t *Table) Row(row int) []Value {
	out := make([]Value, len(t.columns))
	for i := range t.columns {
		out[i] = t.data[i][row]
	}
	return out
}

// AppendRow appends one row given as parallel names and values. Columns
// seen for the first time are back-filled with nulls; existing columns the
// row does not mention receive a null.
func (t *Table) AppendRow(columns []string, values []Value) error {
	if len(columns) != len(values) {
		return dsierr.Newf(dsierr.KindValue, "table %s: row has %d names for %d values", t.Name, len(columns), len(values))
	}
	row := NewTable(t.Name)
	for i, c := range columns {
		if err := row.AddColumn(c, []Value{values[i]}); err != nil {
			return err
		}
	}
	if len(columns) == 0 {
		row.rows = 1
	}
	t.Append(row)
	return nil
}

// Append concatenates other below t by column-name union. Cells that exist
// on only one side are null: (rows of t x columns only in other) and
// (rows of other x columns only in t).
func (t *Table) Append(other *Table) {
	if other == nil {
		return
	}
	if len(t.columns) == 0 && t.rows == 0 {
		for i, c := range other.columns {
			_ = t.AddColumn(c, other.data[i])
		}
		t.rows = other.rows
		return
	}

	for _, c := range other.columns {
		if _, ok := t.index[c]; ok {
			continue
		}
		t.index[c] = len(t.columns)
		t.columns = append(t.columns, c)
		t.data = append(t.data, make([]Value, t.rows))
	}

	for i, c := range t.columns {
		if j, ok := other.index[c]; ok {
			t.data[i] = append(t.data[i], other.data[j]...)
		} else {
			t.data[i] = append(t.data[i], make([]Value, other.rows)...)
		}
	}
	t.rows += other.rows
}

// Project returns a new table holding only the named columns, in the given
// order.
func (t *Table) Project(columns []string) (*Table, error) {
	out := NewTable(t.Name)
	var missing []string
	for _, c := range columns {
		if _, ok := t.index[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, dsierr.Newf(dsierr.KindValue, "table %s has no column(s) %v", t.Name, missing).
			WithContext("available", t.columns)
	}
	for _, c := range columns {
		_ = out.AddColumn(c, t.data[t.index[c]])
	}
	if len(columns) == 0 {
		out.rows = t.rows
	}
	return out, nil
}

// Head returns a copy of the first n rows.
func (t *Table) Head(n int) *Table {
	if n < 0 || n > t.rows {
		n = t.rows
	}
	out := NewTable(t.Name)
	for i, c := range t.columns {
		_ = out.AddColumn(c, t.data[i][:n])
	}
	out.rows = n
	return out
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	out := NewTable(t.Name)
	for i, c := range t.columns {
		_ = out.AddColumn(c, t.data[i])
	}
	out.rows = t.rows
	return out
}

// Equal reports whether two tables have the same name, column order and
// cells.
func (t *Table) Equal(o *Table) bool {
	if t.Name != o.Name || t.rows != o.rows || len(t.columns) != len(o.columns) {
		return false
	}
	for i, c := range t.columns {
		if o.columns[i] != c {
			return false
		}
		for r := 0; r < t.rows; r++ {
			if !t.data[i][r].Equal(o.data[i][r]) {
				return false
			}
		}
	}
	return true
}

// Validate checks the equal-length invariant.
func (t *Table) Validate() error {
	for i, c := range t.columns {
		if len(t.data[i]) != t.rows {
			return dsierr.Newf(dsierr.KindValue, "table %s: column %q has %d values, table has %d rows",
				t.Name, c, len(t.data[i]), t.rows)
		}
	}
	return nil
}

// String renders a short description.
func (t *Table) String() string {
	return fmt.Sprintf("%s(%d rows x %d cols)", t.Name, t.rows, len(t.columns))
}
