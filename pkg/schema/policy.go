package schema

import (
	"fmt"
	"strings"

	dsierr "github.com/dsiflow/dsi/pkg/errors"
)

// Policy determines how differences between a stored schema and an
// incoming one are handled.
type Policy int

const (
	// PolicyStrict rejects any difference.
	PolicyStrict Policy = iota
	// PolicyMergeNullable adds new columns; stored columns are never
	// dropped or retyped. Ingest uses this policy.
	PolicyMergeNullable
	// PolicyEvolving adds new columns and widens stored types, and requires
	// every stored column to be present. Update uses this policy.
	PolicyEvolving
)

func (p Policy) String() string {
	switch p {
	case PolicyStrict:
		return "strict"
	case PolicyMergeNullable:
		return "merge_nullable"
	case PolicyEvolving:
		return "evolving"
	default:
		return "unknown"
	}
}

// TypeChange is a column whose incoming type differs from the stored one.
type TypeChange struct {
	Column     string
	OldType    ColumnType
	NewType    ColumnType
	IsWidening bool
}

// Diff holds the differences between a stored and an incoming schema.
type Diff struct {
	// Added are incoming columns absent from the stored table, in incoming
	// order.
	Added []Column
	// Missing are stored columns absent from the incoming table.
	Missing []Column
	// TypeChanges are columns present on both sides with different types.
	TypeChanges []TypeChange
}

// IsEmpty reports whether the schemas match.
func (d *Diff) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Missing) == 0 && len(d.TypeChanges) == 0
}

// Widenings returns the type changes that widen the stored column.
func (d *Diff) Widenings() []TypeChange {
	var out []TypeChange
	for _, c := range d.TypeChanges {
		if c.IsWidening {
			out = append(out, c)
		}
	}
	return out
}

// Compare returns the differences from stored to incoming.
func Compare(stored, incoming *Schema) *Diff {
	diff := &Diff{}
	for _, c := range incoming.Columns {
		old, ok := stored.Lookup(c.Name)
		if !ok {
			diff.Added = append(diff.Added, c)
			continue
		}
		if old.Type != c.Type {
			diff.TypeChanges = append(diff.TypeChanges, TypeChange{
				Column:     c.Name,
				OldType:    old.Type,
				NewType:    c.Type,
				IsWidening: IsWidening(old.Type, c.Type),
			})
		}
	}
	for _, c := range stored.Columns {
		if incoming.Index(c.Name) < 0 {
			diff.Missing = append(diff.Missing, c)
		}
	}
	return diff
}

// Plan compares stored and incoming under a policy and returns the changes
// the store must apply. Type changes that the policy does not apply are
// dropped from the returned diff.
func Plan(stored, incoming *Schema, policy Policy) (*Diff, error) {
	diff := Compare(stored, incoming)
	switch policy {
	case PolicyStrict:
		if !diff.IsEmpty() {
			return nil, dsierr.Newf(dsierr.KindType, "table %s: schema mismatch (%s)", stored.Table, describe(diff))
		}
		return diff, nil
	case PolicyMergeNullable:
		diff.TypeChanges = nil
		diff.Missing = nil
		return diff, nil
	case PolicyEvolving:
		if len(diff.Missing) > 0 {
			names := make([]string, len(diff.Missing))
			for i, c := range diff.Missing {
				names[i] = c.Name
			}
			return nil, dsierr.Newf(dsierr.KindValue,
				"table %s: input is missing stored column(s) %s; columns may be added but never removed",
				stored.Table, strings.Join(names, ", "))
		}
		diff.TypeChanges = diff.Widenings()
		return diff, nil
	default:
		return nil, dsierr.Newf(dsierr.KindValue, "unknown schema policy: %v", policy)
	}
}

func describe(d *Diff) string {
	var parts []string
	for _, c := range d.Added {
		parts = append(parts, "+"+c.Name)
	}
	for _, c := range d.Missing {
		parts = append(parts, "-"+c.Name)
	}
	for _, c := range d.TypeChanges {
		parts = append(parts, fmt.Sprintf("%s %s->%s", c.Column, c.OldType, c.NewType))
	}
	return strings.Join(parts, ", ")
}
