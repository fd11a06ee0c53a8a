// Package find parses find expressions and translates them to SQL.
//
//	expr  ::= col op rhs
//	col   ::= IDENT | '"' any-except-double-quote '"'
//	op    ::= '~~' | '~' | '==' | '!=' | '<=' | '>=' | '=' | '<' | '>' | RANGE
//	RANGE ::= '(' value ',' value ')'
//	rhs   ::= number | "'" any-with-doubled-quotes "'" | IDENT
package find

import (
	"fmt"
	"strings"

	"github.com/dsiflow/dsi/pkg/abstraction"
	dsierr "github.com/dsiflow/dsi/pkg/errors"
)

// Op is a find operator.
type Op int

const (
	OpContains     Op = iota // ~
	OpContainsFold           // ~~
	OpEqual                  // = or ==
	OpNotEqual               // !=
	OpLess                   // <
	OpLessEqual              // <=
	OpGreater                // >
	OpGreaterEqual           // >=
	OpRange                  // (lo, hi)
)

func (o Op) String() string {
	switch o {
	case OpContains:
		return "~"
	case OpContainsFold:
		return "~~"
	case OpEqual:
		return "="
	case OpNotEqual:
		return "!="
	case OpLess:
		return "<"
	case OpLessEqual:
		return "<="
	case OpGreater:
		return ">"
	case OpGreaterEqual:
		return ">="
	case OpRange:
		return "range"
	default:
		return "unknown"
	}
}

// Expr is one parsed find expression.
type Expr struct {
	Column string
	Op     Op
	// Value is the right-hand side of every operator but OpRange.
	Value abstraction.Value
	// Low and High bound OpRange, inclusive.
	Low, High abstraction.Value
}

func (e *Expr) String() string {
	if e.Op == OpRange {
		return fmt.Sprintf("%s (%s, %s)", e.Column, e.Low, e.High)
	}
	return fmt.Sprintf("%s %s %s", e.Column, e.Op, e.Value)
}

type parser struct {
	src string
	pos int
}

// Parse parses one expression. Errors are ValueErrors naming the offending
// position.
func Parse(src string) (*Expr, error) {
	p := &parser{src: src}
	p.skipSpace()
	if p.eof() {
		return nil, p.errorf("empty find expression; expected <column> <operator> <value>")
	}

	col, err := p.column()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.eof() {
		return nil, p.errorf("missing operator after column %q; use one of ~~ ~ == != <= >= = < > or (lo, hi)", col)
	}

	e := &Expr{Column: col}
	if p.peek() == '(' {
		e.Op = OpRange
		if e.Low, e.High, err = p.rangeBounds(); err != nil {
			return nil, err
		}
	} else {
		if e.Op, err = p.operator(); err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.eof() {
			return nil, p.errorf("missing value after operator %s", e.Op)
		}
		if e.Value, err = p.value(); err != nil {
			return nil, err
		}
	}

	p.skipSpace()
	if !p.eof() {
		if strings.ContainsRune("~=!<>(", rune(p.peek())) {
			return nil, p.errorf("a find expression may contain only one operator; quote values containing operator characters")
		}
		return nil, p.errorf("unexpected %q after value; quote values containing spaces", p.src[p.pos:])
	}
	return e, nil
}

func (p *parser) eof() bool  { return p.pos >= len(p.src) }
func (p *parser) peek() byte { return p.src[p.pos] }

func (p *parser) skipSpace() {
	for !p.eof() && (p.peek() == ' ' || p.peek() == '\t' || p.peek() == '\n' || p.peek() == '\r') {
		p.pos++
	}
}

func (p *parser) errorf(format string, args ...interface{}) error {
	return dsierr.Newf(dsierr.KindValue, format, args...).
		WithContext("expression", p.src).
		WithContext("position", p.pos)
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// column reads an unquoted identifier or a double-quoted name.
func (p *parser) column() (string, error) {
	switch c := p.peek(); {
	case c == '\'':
		return "", p.errorf("column names must not be single-quoted; single quotes are reserved for values, use double quotes")
	case c == '"':
		start := p.pos
		p.pos++
		end := strings.IndexByte(p.src[p.pos:], '"')
		if end < 0 {
			p.pos = start
			return "", p.errorf("unterminated double-quoted column name")
		}
		name := p.src[p.pos : p.pos+end]
		p.pos += end + 1
		if name == "" {
			return "", p.errorf("empty column name")
		}
		return name, nil
	case isIdentByte(c):
		start := p.pos
		for !p.eof() && isIdentByte(p.peek()) {
			p.pos++
		}
		return p.src[start:p.pos], nil
	default:
		return "", p.errorf("expected a column name, found %q", string(c))
	}
}

// operator reads the longest operator at the cursor.
func (p *parser) operator() (Op, error) {
	rest := p.src[p.pos:]
	ops := []struct {
		tok string
		op  Op
	}{
		{"~~", OpContainsFold}, {"==", OpEqual}, {"!=", OpNotEqual}, {"<=", OpLessEqual},
		{">=", OpGreaterEqual}, {"~", OpContains}, {"=", OpEqual}, {"<", OpLess}, {">", OpGreater},
	}
	for _, o := range ops {
		if strings.HasPrefix(rest, o.tok) {
			p.pos += len(o.tok)
			if !p.eof() && strings.ContainsRune("~=!<>", rune(p.peek())) {
				return 0, p.errorf("unknown operator %q", o.tok+string(p.peek()))
			}
			return o.op, nil
		}
	}
	if isIdentByte(rest[0]) {
		return 0, p.errorf("unexpected %q after column; double-quote column names that contain spaces", strings.Fields(rest)[0])
	}
	return 0, p.errorf("unknown operator at %q; use one of ~~ ~ == != <= >= = < > or (lo, hi)", rest)
}

// value reads a number, a single-quoted string or a bare word.
func (p *parser) value() (abstraction.Value, error) {
	switch c := p.peek(); {
	case c == '\'':
		return p.quoted()
	case c == '"':
		return abstraction.Value{}, p.errorf("values are single-quoted; double quotes are reserved for column names")
	default:
		start := p.pos
		for !p.eof() && !strings.ContainsRune(" \t\r\n,()~=!<>'\"", rune(p.peek())) {
			p.pos++
		}
		if start == p.pos {
			return abstraction.Value{}, p.errorf("expected a value, found %q", string(c))
		}
		return abstraction.ParseValue(p.src[start:p.pos]), nil
	}
}

// quoted reads a single-quoted string where '' stands for one quote.
func (p *parser) quoted() (abstraction.Value, error) {
	start := p.pos
	p.pos++
	var sb strings.Builder
	for !p.eof() {
		c := p.peek()
		p.pos++
		if c != '\'' {
			sb.WriteByte(c)
			continue
		}
		if !p.eof() && p.peek() == '\'' {
			sb.WriteByte('\'')
			p.pos++
			continue
		}
		return abstraction.Text(sb.String()), nil
	}
	p.pos = start
	return abstraction.Value{}, p.errorf("unterminated string value; escape an apostrophe by doubling it (he''s)")
}

// rangeBounds reads "(lo, hi)" and checks lo <= hi.
func (p *parser) rangeBounds() (abstraction.Value, abstraction.Value, error) {
	p.pos++
	p.skipSpace()
	if p.eof() {
		return abstraction.Value{}, abstraction.Value{}, p.errorf("unterminated range; expected (lo, hi)")
	}
	lo, err := p.value()
	if err != nil {
		return lo, lo, err
	}
	p.skipSpace()
	if p.eof() || p.peek() != ',' {
		return lo, lo, p.errorf("a range needs two values separated by a comma: (lo, hi)")
	}
	p.pos++
	p.skipSpace()
	if p.eof() {
		return lo, lo, p.errorf("unterminated range; expected (lo, hi)")
	}
	hi, err := p.value()
	if err != nil {
		return lo, hi, err
	}
	p.skipSpace()
	if p.eof() || p.peek() != ')' {
		return lo, hi, p.errorf("a range takes exactly two values and ends with ')'")
	}
	p.pos++

	if lo.IsNumeric() != hi.IsNumeric() {
		return lo, hi, p.errorf("range bounds must both be numbers or both be strings")
	}
	if abstraction.Compare(lo, hi) > 0 {
		return lo, hi, p.errorf("range lower bound %s is greater than upper bound %s", lo, hi)
	}
	return lo, hi, nil
}
