// Package schema provides column type inference, schema comparison under a
// change policy, and dependency ordering of related tables.
package schema

import (
	"strings"

	"github.com/dsiflow/dsi/pkg/abstraction"
)

// ColumnType is the stored type of a column. The order is the widening
// order: Integer -> Float -> Text.
type ColumnType int

const (
	TypeInteger ColumnType = iota
	TypeFloat
	TypeText
)

func (c ColumnType) String() string {
	switch c {
	case TypeInteger:
		return "integer"
	case TypeFloat:
		return "float"
	default:
		return "text"
	}
}

// Column is one named, typed column.
type Column struct {
	Name     string
	Type     ColumnType
	Position int
}

// Schema is the ordered column list of one table.
type Schema struct {
	Table   string
	Columns []Column
}

// Index returns the position of a column, or -1.
func (s *Schema) Index(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Lookup returns a column by name.
func (s *Schema) Lookup(name string) (Column, bool) {
	if i := s.Index(name); i >= 0 {
		return s.Columns[i], true
	}
	return Column{}, false
}

// Names returns the column names in order.
func (s *Schema) Names() []string {
	out := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.Name
	}
	return out
}

// InferColumn returns Integer if every non-null value is an integer, Float
// if every non-null value is numeric, and Text otherwise. An all-null
// column is Text.
func InferColumn(values []abstraction.Value) ColumnType {
	seen := false
	t := TypeInteger
	for _, v := range values {
		switch v.Kind() {
		case abstraction.KindNull:
			continue
		case abstraction.KindInteger:
		case abstraction.KindFloat:
			if t < TypeFloat {
				t = TypeFloat
			}
		default:
			return TypeText
		}
		seen = true
	}
	if !seen {
		return TypeText
	}
	return t
}

// Infer builds the schema of an in-memory table.
func Infer(t *abstraction.Table) *Schema {
	s := &Schema{Table: t.Name}
	for i, name := range t.Columns() {
		s.Columns = append(s.Columns, Column{
			Name:     name,
			Type:     InferColumn(t.ColumnAt(i)),
			Position: i,
		})
	}
	return s
}

// Wider returns the common super-type of a and b.
func Wider(a, b ColumnType) ColumnType {
	if a > b {
		return a
	}
	return b
}

// IsWidening reports whether changing from old to new never loses values.
func IsWidening(old, new ColumnType) bool {
	return new >= old
}

// FromDeclared maps a declared SQL column type onto a ColumnType using the
// SQLite affinity rules, which also cover the DuckDB type names.
func FromDeclared(declared string) ColumnType {
	d := strings.ToUpper(declared)
	switch {
	case strings.Contains(d, "INT"):
		return TypeInteger
	case strings.Contains(d, "CHAR"), strings.Contains(d, "CLOB"), strings.Contains(d, "TEXT"),
		strings.Contains(d, "STRING"), strings.Contains(d, "UUID"), strings.Contains(d, "DATE"),
		strings.Contains(d, "TIME"):
		return TypeText
	case strings.Contains(d, "REAL"), strings.Contains(d, "FLOA"), strings.Contains(d, "DOUB"),
		strings.Contains(d, "DECIMAL"), strings.Contains(d, "NUMERIC"):
		return TypeFloat
	case d == "":
		return TypeText
	default:
		return TypeText
	}
}

// Coerce converts v for storage in a column of type t. Integers stored in
// a Float column become floats; anything stored in a Text column becomes
// text. Values already of a wider kind are left alone.
func Coerce(v abstraction.Value, t ColumnType) abstraction.Value {
	switch {
	case v.IsNull():
		return v
	case t == TypeFloat && v.Kind() == abstraction.KindInteger:
		return abstraction.Float(v.Float64())
	case t == TypeText && v.Kind() != abstraction.KindText:
		return abstraction.Text(v.String())
	}
	return v
}
