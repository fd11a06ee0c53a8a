package find

import (
	"strconv"
	"strings"

	"github.com/dsiflow/dsi/pkg/abstraction"
)

// Syntax describes the SQL dialect a condition is emitted for.
type Syntax struct {
	// ILike is the dialect's case-insensitive LIKE operator, empty when it
	// has none and LIKE serves both partial-match operators.
	ILike string
	// Portable makes ~ case-sensitive and ~~ case-insensitive on every
	// dialect instead of following the dialect's LIKE semantics.
	Portable bool
}

// Ident quotes an identifier.
func Ident(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Literal renders a value as a SQL literal.
func Literal(v abstraction.Value) string {
	switch v.Kind() {
	case abstraction.KindNull:
		return "NULL"
	case abstraction.KindInteger:
		return strconv.FormatInt(v.Int64(), 10)
	case abstraction.KindFloat:
		return strconv.FormatFloat(v.Float64(), 'g', -1, 64)
	default:
		return "'" + strings.ReplaceAll(v.Str(), "'", "''") + "'"
	}
}

// escapeLike escapes LIKE wildcards with a backslash.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Where renders the expression as a SQL condition. qualifier, when set,
// prefixes the column ("t" gives t."col").
func (e *Expr) Where(syn Syntax, qualifier string) string {
	col := Ident(e.Column)
	if qualifier != "" {
		col = qualifier + "." + col
	}
	text := "CAST(" + col + " AS VARCHAR)"

	switch e.Op {
	case OpContains, OpContainsFold:
		needle := e.Value.String()
		pattern := Literal(abstraction.Text("%" + escapeLike(needle) + "%"))
		switch {
		case syn.Portable && e.Op == OpContains:
			return "instr(" + text + ", " + Literal(abstraction.Text(needle)) + ") > 0"
		case syn.Portable:
			return "lower(" + text + ") LIKE lower(" + pattern + `) ESCAPE '\'`
		case e.Op == OpContainsFold && syn.ILike != "":
			return text + " " + syn.ILike + " " + pattern + ` ESCAPE '\'`
		default:
			return text + " LIKE " + pattern + ` ESCAPE '\'`
		}
	case OpEqual:
		return col + " = " + Literal(e.Value)
	case OpNotEqual:
		return col + " <> " + Literal(e.Value)
	case OpLess:
		return col + " < " + Literal(e.Value)
	case OpLessEqual:
		return col + " <= " + Literal(e.Value)
	case OpGreater:
		return col + " > " + Literal(e.Value)
	case OpGreaterEqual:
		return col + " >= " + Literal(e.Value)
	case OpRange:
		return col + " BETWEEN " + Literal(e.Low) + " AND " + Literal(e.High)
	default:
		return "FALSE"
	}
}

// Statement returns the single-table query equivalent to the expression,
// the form offered to users when a column is ambiguous.
func (e *Expr) Statement(table string, syn Syntax) string {
	return "SELECT * FROM " + Ident(table) + " WHERE " + e.Where(syn, "")
}
