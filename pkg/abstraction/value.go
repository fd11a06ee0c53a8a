package abstraction

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies the scalar held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindInteger
	KindFloat
	KindText
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindText:
		return "text"
	default:
		return "null"
	}
}

// Value is a single cell: integer, floating, text or null.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
}

// Null returns the null value.
func Null() Value { return Value{} }

// Int returns an integer value.
func Int(v int64) Value { return Value{kind: KindInteger, i: v} }

// Float returns a floating value.
func Float(v float64) Value { return Value{kind: KindFloat, f: v} }

// Text returns a text value.
func Text(v string) Value { return Value{kind: KindText, s: v} }

// Kind returns the value kind.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsNumeric reports whether v is an integer or a float.
func (v Value) IsNumeric() bool { return v.kind == KindInteger || v.kind == KindFloat }

// Int64 returns the integer payload. Floats are truncated.
func (v Value) Int64() int64 {
	if v.kind == KindFloat {
		return int64(v.f)
	}
	return v.i
}

// Float64 returns the numeric payload as a float.
func (v Value) Float64() float64 {
	if v.kind == KindInteger {
		return float64(v.i)
	}
	return v.f
}

// Str returns the text payload, or the formatted scalar for other kinds.
func (v Value) Str() string {
	return v.String()
}

// String formats the value. Null formats as the empty string.
func (v Value) String() string {
	switch v.kind {
	case KindInteger:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindText:
		return v.s
	default:
		return ""
	}
}

// Any returns the Go scalar used as a database/sql argument.
func (v Value) Any() interface{} {
	switch v.kind {
	case KindInteger:
		return v.i
	case KindFloat:
		return v.f
	case KindText:
		return v.s
	default:
		return nil
	}
}

// Equal reports whether two values hold the same kind and payload.
// Floats compare by bit pattern so NaN equals itself.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindInteger:
		return v.i == o.i
	case KindFloat:
		return math.Float64bits(v.f) == math.Float64bits(o.f)
	case KindText:
		return v.s == o.s
	default:
		return true
	}
}

// ParseValue classifies a raw field: integer if it parses as one, else
// floating, else text. The empty string is null.
func ParseValue(raw string) Value {
	if raw == "" {
		return Null()
	}
	s := strings.TrimSpace(raw)
	if s == "" {
		return Text(raw)
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Int(i)
	}
	if f, ok := parseFloat(s); ok {
		return Float(f)
	}
	return Text(raw)
}

// parseFloat accepts decimal and exponent forms but rejects the spellings
// strconv tolerates that are words in scientific metadata ("inf", "nan").
func parseFloat(s string) (float64, bool) {
	c := s[0]
	if !(c >= '0' && c <= '9') && c != '-' && c != '+' && c != '.' {
		return 0, false
	}
	if strings.ContainsAny(s, "_xXpP") {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// FromAny converts a decoded scalar (from JSON, YAML, TOML, SQL drivers) into
// a Value. Booleans become 1/0. Non-scalars return ok=false.
func FromAny(x interface{}) (Value, bool) {
	switch t := x.(type) {
	case nil:
		return Null(), true
	case Value:
		return t, true
	case bool:
		if t {
			return Int(1), true
		}
		return Int(0), true
	case int:
		return Int(int64(t)), true
	case int8:
		return Int(int64(t)), true
	case int16:
		return Int(int64(t)), true
	case int32:
		return Int(int64(t)), true
	case int64:
		return Int(t), true
	case uint8:
		return Int(int64(t)), true
	case uint16:
		return Int(int64(t)), true
	case uint32:
		return Int(int64(t)), true
	case uint64:
		if t > math.MaxInt64 {
			return Float(float64(t)), true
		}
		return Int(int64(t)), true
	case uint:
		return Int(int64(t)), true
	case float32:
		return Float(float64(t)), true
	case float64:
		return Float(t), true
	case string:
		return Text(t), true
	case []byte:
		return Text(string(t)), true
	case fmt.Stringer:
		return Text(t.String()), true
	default:
		return Value{}, false
	}
}

// MustFromAny is FromAny for values known to be scalars; anything else is
// formatted as text.
func MustFromAny(x interface{}) Value {
	if v, ok := FromAny(x); ok {
		return v
	}
	return Text(fmt.Sprint(x))
}

// Compare orders two non-null values: numerics numerically, otherwise by
// their text form. Nulls sort first.
func Compare(a, b Value) int {
	switch {
	case a.IsNull() && b.IsNull():
		return 0
	case a.IsNull():
		return -1
	case b.IsNull():
		return 1
	}
	if a.IsNumeric() && b.IsNumeric() {
		if a.kind == KindInteger && b.kind == KindInteger {
			switch {
			case a.i < b.i:
				return -1
			case a.i > b.i:
				return 1
			}
			return 0
		}
		af, bf := a.Float64(), b.Float64()
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	}
	return strings.Compare(a.String(), b.String())
}
