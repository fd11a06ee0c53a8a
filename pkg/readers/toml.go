package readers

import (
	"context"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/dsiflow/dsi/pkg/abstraction"
	dsierr "github.com/dsiflow/dsi/pkg/errors"
)

// TOML reads TOML documents. Every top-level table is a DSI table and
// contributes one row per file; top-level keys outside any table go to a
// table named after the file. A `{value = v, units = "u"}` sub-table stores
// v and records u as the column's unit.
type TOML struct {
	opts Options
}

// NewTOML creates a TOML reader.
func NewTOML(opts Options) (*TOML, error) {
	if err := requireFiles(KindTOML, opts); err != nil {
		return nil, err
	}
	return &TOML{opts: opts}, nil
}

// Name returns the reader kind.
func (r *TOML) Name() string { return KindTOML }

// Read parses every file.
func (r *TOML) Read(ctx context.Context) (*abstraction.Abstraction, error) {
	frag := abstraction.New()
	tables := make(map[string]*abstraction.Table)
	var order []string

	addRow := func(name string, cols []string, vals []abstraction.Value) error {
		t, ok := tables[name]
		if !ok {
			t = abstraction.NewTable(name)
			tables[name] = t
			order = append(order, name)
		}
		return t.AppendRow(cols, vals)
	}

	for _, path := range r.opts.Filenames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := readFile(path)
		if err != nil {
			return nil, err
		}
		var doc map[string]interface{}
		md, err := toml.Decode(string(data), &doc)
		if err != nil {
			return nil, dsierr.Wrapf(err, dsierr.KindType, "malformed TOML in %s", path)
		}

		var topCols []string
		var topVals []abstraction.Value
		for _, key := range topLevelKeys(md) {
			raw := doc[key]
			section, isTable := raw.(map[string]interface{})
			if !isTable || isValueUnits(section) {
				v, unit, err := tomlCell(path, key, raw)
				if err != nil {
					return nil, err
				}
				topCols = append(topCols, key)
				topVals = append(topVals, v)
				if unit != "" {
					if err := frag.Units.Set(tableName(r.opts.Prefix, stem(path)), key, unit); err != nil {
						return nil, err
					}
				}
				continue
			}

			name := tableName(r.opts.Prefix, key)
			var cols []string
			var vals []abstraction.Value
			for _, col := range sectionKeys(md, key, section) {
				v, unit, err := tomlCell(path, key+"."+col, section[col])
				if err != nil {
					return nil, err
				}
				cols = append(cols, col)
				vals = append(vals, v)
				if unit != "" {
					if err := frag.Units.Set(name, col, unit); err != nil {
						return nil, err
					}
				}
			}
			if err := addRow(name, cols, vals); err != nil {
				return nil, err
			}
		}
		if len(topCols) > 0 {
			if err := addRow(tableName(r.opts.Prefix, stem(path)), topCols, topVals); err != nil {
				return nil, err
			}
		}
	}

	for _, name := range order {
		if err := frag.AddTable(tables[name]); err != nil {
			return nil, err
		}
	}
	return frag, nil
}

// topLevelKeys returns the document's top-level keys in definition order.
func topLevelKeys(md toml.MetaData) []string {
	var out []string
	seen := make(map[string]bool)
	for _, k := range md.Keys() {
		if len(k) == 0 || seen[k[0]] {
			continue
		}
		seen[k[0]] = true
		out = append(out, k[0])
	}
	return out
}

// sectionKeys returns the keys of one section in definition order. Keys the
// metadata does not list are appended sorted.
func sectionKeys(md toml.MetaData, section string, values map[string]interface{}) []string {
	var out []string
	seen := make(map[string]bool)
	for _, k := range md.Keys() {
		if len(k) < 2 || k[0] != section || seen[k[1]] {
			continue
		}
		seen[k[1]] = true
		out = append(out, k[1])
	}
	var rest []string
	for k := range values {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

func isValueUnits(m map[string]interface{}) bool {
	if len(m) != 2 {
		return false
	}
	_, hasValue := m["value"]
	_, hasUnits := m["units"]
	return hasValue && hasUnits
}

// tomlCell converts one TOML value, unwrapping {value, units}.
func tomlCell(path, key string, raw interface{}) (abstraction.Value, string, error) {
	unit := ""
	if m, ok := raw.(map[string]interface{}); ok {
		if !isValueUnits(m) {
			return abstraction.Value{}, "", dsierr.NestedValue(path, key)
		}
		u, ok := m["units"].(string)
		if !ok {
			return abstraction.Value{}, "", dsierr.Newf(dsierr.KindType, "%s: units of %q must be a string", path, key)
		}
		unit = strings.TrimSpace(u)
		raw = m["value"]
	}
	switch raw.(type) {
	case []interface{}, []map[string]interface{}, map[string]interface{}:
		return abstraction.Value{}, "", dsierr.NestedValue(path, key)
	}
	v, ok := abstraction.FromAny(raw)
	if !ok {
		return abstraction.Value{}, "", dsierr.NestedValue(path, key)
	}
	if v.Kind() == abstraction.KindText && v.Str() == "" {
		v = abstraction.Null()
	}
	return v, unit, nil
}
