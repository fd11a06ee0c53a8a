package schema

import (
	"reflect"
	"testing"

	"github.com/dsiflow/dsi/pkg/abstraction"
	dsierr "github.com/dsiflow/dsi/pkg/errors"
)

func TestInferColumn(t *testing.T) {
	I, F, S, N := abstraction.Int, abstraction.Float, abstraction.Text, abstraction.Null
	tests := []struct {
		name   string
		values []abstraction.Value
		want   ColumnType
	}{
		{"integers", []abstraction.Value{I(1), I(2)}, TypeInteger},
		{"integers with null", []abstraction.Value{I(1), N(), I(3)}, TypeInteger},
		{"mixed numeric", []abstraction.Value{I(1), F(2.5)}, TypeFloat},
		{"text wins", []abstraction.Value{I(1), F(2.5), S("x")}, TypeText},
		{"all null", []abstraction.Value{N(), N()}, TypeText},
		{"empty", nil, TypeText},
	}

	for _, tt := range tests {
		if got := InferColumn(tt.values); got != tt.want {
			t.Errorf("%s: InferColumn() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestWider(t *testing.T) {
	if Wider(TypeInteger, TypeFloat) != TypeFloat {
		t.Error("integer and float should widen to float")
	}
	if Wider(TypeText, TypeInteger) != TypeText {
		t.Error("text and integer should widen to text")
	}
	if !IsWidening(TypeInteger, TypeText) || IsWidening(TypeText, TypeFloat) {
		t.Error("IsWidening disagrees with the integer->float->text order")
	}
}

func TestFromDeclared(t *testing.T) {
	tests := map[string]ColumnType{
		"INTEGER": TypeInteger,
		"BIGINT":  TypeInteger,
		"FLOAT":   TypeFloat,
		"DOUBLE":  TypeFloat,
		"REAL":    TypeFloat,
		"VARCHAR": TypeText,
		"TEXT":    TypeText,
		"":        TypeText,
	}
	for in, want := range tests {
		if got := FromDeclared(in); got != want {
			t.Errorf("FromDeclared(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestCoerce(t *testing.T) {
	if v := Coerce(abstraction.Int(2), TypeFloat); v.Kind() != abstraction.KindFloat || v.Float64() != 2 {
		t.Errorf("Coerce(int, float) = %v", v)
	}
	if v := Coerce(abstraction.Float(2.5), TypeText); v.Kind() != abstraction.KindText || v.Str() != "2.5" {
		t.Errorf("Coerce(float, text) = %v", v)
	}
	if v := Coerce(abstraction.Null(), TypeText); !v.IsNull() {
		t.Errorf("Coerce(null) = %v, want null", v)
	}
}

func TestPolicy_String(t *testing.T) {
	tests := []struct {
		policy   Policy
		expected string
	}{
		{PolicyStrict, "strict"},
		{PolicyMergeNullable, "merge_nullable"},
		{PolicyEvolving, "evolving"},
		{Policy(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.policy.String(); got != tt.expected {
			t.Errorf("Policy(%d).String() = %q, want %q", tt.policy, got, tt.expected)
		}
	}
}

func stored() *Schema {
	return &Schema{Table: "math", Columns: []Column{
		{Name: "a", Type: TypeInteger},
		{Name: "b", Type: TypeFloat},
	}}
}

func TestPlan_MergeNullable(t *testing.T) {
	incoming := &Schema{Table: "math", Columns: []Column{
		{Name: "a", Type: TypeText},
		{Name: "c", Type: TypeInteger},
	}}

	diff, err := Plan(stored(), incoming, PolicyMergeNullable)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(diff.Added) != 1 || diff.Added[0].Name != "c" {
		t.Errorf("Added = %v, want [c]", diff.Added)
	}
	if len(diff.TypeChanges) != 0 {
		t.Errorf("ingest must never retype, got %v", diff.TypeChanges)
	}
	if len(diff.Missing) != 0 {
		t.Errorf("missing columns are padded on ingest, got %v", diff.Missing)
	}
}

func TestPlan_Evolving(t *testing.T) {
	incoming := &Schema{Table: "math", Columns: []Column{
		{Name: "a", Type: TypeFloat},
		{Name: "b", Type: TypeInteger},
		{Name: "f", Type: TypeInteger},
	}}

	diff, err := Plan(stored(), incoming, PolicyEvolving)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(diff.TypeChanges) != 1 || diff.TypeChanges[0].Column != "a" {
		t.Errorf("TypeChanges = %v, want only the widening of a", diff.TypeChanges)
	}
	if len(diff.Added) != 1 || diff.Added[0].Name != "f" {
		t.Errorf("Added = %v, want [f]", diff.Added)
	}

	_, err = Plan(stored(), &Schema{Table: "math", Columns: []Column{{Name: "a"}}}, PolicyEvolving)
	if !dsierr.IsKind(err, dsierr.KindValue) {
		t.Errorf("dropping a stored column should be a ValueError, got %v", err)
	}
}

func TestPlan_Strict(t *testing.T) {
	if _, err := Plan(stored(), stored(), PolicyStrict); err != nil {
		t.Errorf("identical schemas: %v", err)
	}
	_, err := Plan(stored(), &Schema{Table: "math"}, PolicyStrict)
	if !dsierr.IsKind(err, dsierr.KindType) {
		t.Errorf("expected TypeError, got %v", err)
	}
}

func TestOrder(t *testing.T) {
	rel := abstraction.NewRelations()
	rel.Add(abstraction.ColumnRef{Table: "math", Column: "spec"}, abstraction.ColumnRef{Table: "address", Column: "spec"})
	rel.Add(abstraction.ColumnRef{Table: "address", Column: "id"}, abstraction.ColumnRef{Table: "physics", Column: "addr"})

	got, err := Order([]string{"physics", "wildfire", "address", "math"}, rel)
	if err != nil {
		t.Fatalf("Order: %v", err)
	}
	want := []string{"wildfire", "math", "address", "physics"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Order() = %v, want %v", got, want)
	}
}

func TestOrder_IgnoresStoredParents(t *testing.T) {
	rel := abstraction.NewRelations()
	rel.Add(abstraction.ColumnRef{Table: "stored", Column: "id"}, abstraction.ColumnRef{Table: "child", Column: "sid"})

	got, err := Order([]string{"child"}, rel)
	if err != nil {
		t.Fatalf("Order: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"child"}) {
		t.Errorf("Order() = %v", got)
	}
}

func TestOrder_Cycle(t *testing.T) {
	rel := abstraction.NewRelations()
	rel.Add(abstraction.ColumnRef{Table: "a", Column: "id"}, abstraction.ColumnRef{Table: "b", Column: "a_id"})
	rel.Add(abstraction.ColumnRef{Table: "b", Column: "id"}, abstraction.ColumnRef{Table: "a", Column: "b_id"})

	_, err := Order([]string{"a", "b"}, rel)
	if !dsierr.IsKind(err, dsierr.KindValue) {
		t.Errorf("expected ValueError for a cycle, got %v", err)
	}
}
