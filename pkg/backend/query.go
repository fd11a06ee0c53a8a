package backend

import (
	"context"
	"strings"

	"github.com/dsiflow/dsi/pkg/abstraction"
	dsierr "github.com/dsiflow/dsi/pkg/errors"
)

// Result is a query result: column names plus row-major values.
type Result struct {
	Columns []string
	Rows    [][]abstraction.Value
	// Table names the single table the statement reads from, when it reads
	// exactly one and joins nothing.
	Table string
}

// AsTable returns the result as a columnar table named after the source
// table, or "query" when there is none.
func (r *Result) AsTable() (*abstraction.Table, error) {
	name := r.Table
	if name == "" {
		name = "query"
	}
	return toTable(name, r.Columns, r.Rows)
}

// writeKeywords may not appear anywhere in a read-only statement.
var writeKeywords = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "CREATE": true, "DROP": true,
	"ALTER": true, "ATTACH": true, "DETACH": true, "COPY": true, "VACUUM": true,
	"REINDEX": true, "INSTALL": true, "CHECKPOINT": true,
}

// Query runs a read-only statement. Anything that could write is a
// ValueError and never reaches the engine.
func (b *Backend) Query(ctx context.Context, stmt string) (*Result, error) {
	toks, err := b.checkReadOnly(stmt)
	if err != nil {
		return nil, err
	}
	rows, err := b.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, classify(err, "query failed")
	}
	columns, values, err := scanValues(rows)
	if err != nil {
		return nil, classify(err, "query failed")
	}
	return &Result{Columns: columns, Rows: values, Table: singleTable(toks)}, nil
}

func (b *Backend) checkReadOnly(stmt string) ([]token, error) {
	toks, err := lex(stmt)
	if err != nil {
		return nil, dsierr.Wrap(err, dsierr.KindValue, "cannot parse statement").WithContext("statement", stmt)
	}
	for len(toks) > 0 && toks[len(toks)-1].kind == tokPunct && toks[len(toks)-1].text == ";" {
		toks = toks[:len(toks)-1]
	}
	if len(toks) == 0 {
		return nil, dsierr.New(dsierr.KindValue, "empty statement")
	}
	for _, t := range toks {
		if t.kind == tokPunct && t.text == ";" {
			return nil, dsierr.New(dsierr.KindValue, "only one statement may be queried at a time").
				WithContext("statement", stmt)
		}
	}

	reject := func() error {
		return dsierr.New(dsierr.KindValue, "only read-only statements may be queried").
			WithContext("statement", stmt)
	}
	first := toks[0].upper()
	allowed := first == "SELECT" || first == "WITH" || first == "EXPLAIN" || first == "PRAGMA" || first == "VALUES"
	for _, k := range b.dialect.ReadOnlyKeywords() {
		if first == k {
			allowed = true
		}
	}
	if !allowed {
		return nil, reject()
	}
	for _, t := range toks {
		if t.kind == tokWord && writeKeywords[t.upper()] {
			return nil, reject()
		}
		// PRAGMA x = y sets state.
		if first == "PRAGMA" && t.kind == tokPunct && t.text == "=" {
			return nil, reject()
		}
	}
	return toks, nil
}

// singleTable returns the table a statement reads when it has exactly one
// top-level FROM naming one plain table and no join.
func singleTable(toks []token) string {
	if len(toks) == 0 || toks[0].upper() != "SELECT" {
		return ""
	}
	depth := 0
	table := ""
	froms := 0
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		switch {
		case t.kind == tokPunct && t.text == "(":
			depth++
		case t.kind == tokPunct && t.text == ")":
			depth--
		case t.kind == tokWord && t.upper() == "JOIN":
			return ""
		case depth == 0 && t.kind == tokWord && t.upper() == "FROM":
			froms++
			if i+1 >= len(toks) {
				return ""
			}
			next := toks[i+1]
			if next.kind != tokWord && next.kind != tokQuoted {
				return ""
			}
			table = next.ident()
			// A comma after the table (and optional alias) is an implicit join.
			for j := i + 2; j < len(toks) && j <= i+4; j++ {
				if toks[j].kind == tokPunct && toks[j].text == "," {
					return ""
				}
				if toks[j].kind == tokPunct && toks[j].text == "." {
					return ""
				}
			}
		}
	}
	if froms != 1 || depth != 0 {
		return ""
	}
	return table
}

type tokenKind int

const (
	tokWord tokenKind = iota
	tokQuoted
	tokString
	tokNumber
	tokPunct
)

type token struct {
	kind tokenKind
	text string
}

func (t token) upper() string {
	if t.kind != tokWord {
		return ""
	}
	return strings.ToUpper(t.text)
}

// ident returns the identifier a word or quoted token names.
func (t token) ident() string {
	if t.kind == tokQuoted {
		return unquoteIdent(t.text)
	}
	return t.text
}

// lex splits a statement into tokens, dropping comments and whitespace.
// String literals and quoted identifiers are single tokens, so keywords
// inside them are never mistaken for statement keywords.
func lex(src string) ([]token, error) {
	var out []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '-' && i+1 < len(src) && src[i+1] == '-':
			for i < len(src) && src[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				return nil, dsierr.New(dsierr.KindValue, "unterminated comment")
			}
			i += end + 4
		case c == '\'' || c == '"':
			j := i + 1
			for {
				if j >= len(src) {
					return nil, dsierr.Newf(dsierr.KindValue, "unterminated %c quote", c)
				}
				if src[j] == c {
					if j+1 < len(src) && src[j+1] == c {
						j += 2
						continue
					}
					break
				}
				j++
			}
			kind := tokString
			if c == '"' {
				kind = tokQuoted
			}
			out = append(out, token{kind: kind, text: src[i : j+1]})
			i = j + 1
		case isWordByte(c):
			j := i
			for j < len(src) && isWordByte(src[j]) {
				j++
			}
			kind := tokWord
			if c >= '0' && c <= '9' {
				kind = tokNumber
			}
			out = append(out, token{kind: kind, text: src[i:j]})
			i = j
		default:
			out = append(out, token{kind: tokPunct, text: string(c)})
			i++
		}
	}
	return out, nil
}

func isWordByte(c byte) bool {
	return c == '_' || c == '$' || c >= 0x80 ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
