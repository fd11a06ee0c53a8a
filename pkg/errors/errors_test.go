package errors

import (
	"fmt"
	"strings"
	"testing"
)

func TestError_Message(t *testing.T) {
	err := New(KindValue, "bad expression").WithContext("expr", "a >< 1")

	got := err.Error()
	if !strings.HasPrefix(got, "ValueError: bad expression") {
		t.Errorf("Error() = %q, want ValueError prefix", got)
	}
	if !strings.Contains(got, "expr=a >< 1") {
		t.Errorf("Error() = %q, want context", got)
	}
}

func TestWrap_KeepsInnerKind(t *testing.T) {
	inner := UnitConflict("physics", "n", "m/s", "km/s")
	outer := Wrap(inner, KindDialect, "ingest failed")

	if outer.Kind != KindUnitConflict {
		t.Errorf("Kind = %s, want %s", outer.Kind, KindUnitConflict)
	}
	if !IsKind(outer, KindUnitConflict) {
		t.Error("IsKind should see through wrapping")
	}
}

func TestWrap_Nil(t *testing.T) {
	if Wrap(nil, KindIO, "x") != nil {
		t.Error("Wrap(nil) should be nil")
	}
	if Wrapf(nil, KindIO, "x %d", 1) != nil {
		t.Error("Wrapf(nil) should be nil")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{New(KindIO, "x"), KindIO},
		{fmt.Errorf("ctx: %w", New(KindType, "nested")), KindType},
		{fmt.Errorf("plain"), KindDialect},
	}

	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Errorf("KindOf(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestTuple(t *testing.T) {
	kind, msg := New(KindSchemaMismatch, "missing field").Tuple()
	if kind != KindSchemaMismatch {
		t.Errorf("kind = %s", kind)
	}
	if !strings.Contains(msg, "missing field") {
		t.Errorf("msg = %q", msg)
	}
}

func TestMultiError(t *testing.T) {
	var m MultiError
	if m.Combined() != nil {
		t.Error("empty MultiError should combine to nil")
	}

	m.Add(nil)
	m.Add(New(KindIO, "a"))
	if m.Combined() != m.Errors[0] {
		t.Error("single error should be returned as-is")
	}

	m.Add(New(KindIO, "b"))
	if !strings.Contains(m.Combined().Error(), "2 errors occurred") {
		t.Errorf("unexpected message %q", m.Error())
	}
}

func TestMultiError_Kind(t *testing.T) {
	var m MultiError
	m.Add(New(KindType, "nested value"))
	m.Add(New(KindIO, "missing file"))
	err := m.Combined()
	if got := KindOf(err); got != KindType {
		t.Errorf("KindOf = %s, want %s", got, KindType)
	}
	if !IsKind(err, KindType) {
		t.Error("IsKind should follow the first collected error")
	}
}
