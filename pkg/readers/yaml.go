package readers

import (
	"bytes"
	"context"
	"io"
	"math"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/dsiflow/dsi/pkg/abstraction"
	dsierr "github.com/dsiflow/dsi/pkg/errors"
)

// YAML reads segment-per-document YAML. Each document is one of:
//
//	- segment: math          # a list of segments
//	  columns: {a: 1, b: 2}
//
//	--- !math                # a tagged mapping
//	a: 1
//
//	math: {a: 1}             # a mapping of segments
//
// Every segment contributes one row to the table it names. Scalars of the
// form "<number> <unit>" store the number and record the unit. Tokens
// tagged with a local "!" tag are kept as strings.
type YAML struct {
	opts Options
}

// NewYAML creates a YAML reader.
func NewYAML(opts Options) (*YAML, error) {
	if err := requireFiles(KindYAML, opts); err != nil {
		return nil, err
	}
	return &YAML{opts: opts}, nil
}

// Name returns the reader kind.
func (r *YAML) Name() string { return KindYAML }

// Read parses every file.
func (r *YAML) Read(ctx context.Context) (*abstraction.Abstraction, error) {
	frag := abstraction.New()
	tables := make(map[string]*abstraction.Table)
	var order []string

	for _, path := range r.opts.Filenames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		segments, err := parseYAMLFile(path)
		if err != nil {
			return nil, err
		}
		for _, seg := range segments {
			name := tableName(r.opts.Prefix, seg.name)
			cols, vals, units, err := seg.row(path)
			if err != nil {
				return nil, err
			}
			t, ok := tables[name]
			if !ok {
				t = abstraction.NewTable(name)
				tables[name] = t
				order = append(order, name)
			}
			if err := t.AppendRow(cols, vals); err != nil {
				return nil, err
			}
			for col, unit := range units {
				if err := frag.Units.Set(name, col, unit); err != nil {
					return nil, dsierr.Wrapf(err, dsierr.KindUnitConflict, "%s", path)
				}
			}
		}
		log.WithFields(log.Fields{"file": path, "segments": len(segments)}).Debug("yaml file parsed")
	}

	for _, name := range order {
		if err := frag.AddTable(tables[name]); err != nil {
			return nil, err
		}
	}
	return frag, nil
}

type yamlSegment struct {
	name    string
	columns *yaml.Node
}

func parseYAMLFile(path string) ([]yamlSegment, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}

	var segments []yamlSegment
	dec := yaml.NewDecoder(bytes.NewReader(data))
	for {
		var doc yaml.Node
		err := dec.Decode(&doc)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, dsierr.Wrapf(err, dsierr.KindType, "malformed YAML in %s", path)
		}
		if len(doc.Content) == 0 {
			continue
		}
		segs, err := documentSegments(path, resolve(doc.Content[0]))
		if err != nil {
			return nil, err
		}
		segments = append(segments, segs...)
	}
	return segments, nil
}

func documentSegments(path string, root *yaml.Node) ([]yamlSegment, error) {
	switch root.Kind {
	case yaml.SequenceNode:
		var out []yamlSegment
		for _, item := range root.Content {
			item = resolve(item)
			if item.Kind != yaml.MappingNode {
				return nil, dsierr.Newf(dsierr.KindType, "%s line %d: segment must be a mapping", path, item.Line)
			}
			name := mappingValue(item, "segment")
			cols := mappingValue(item, "columns")
			if name == nil || cols == nil {
				return nil, dsierr.Newf(dsierr.KindType, "%s line %d: segment needs 'segment' and 'columns'", path, item.Line)
			}
			cols = resolve(cols)
			if cols.Kind != yaml.MappingNode {
				return nil, dsierr.Newf(dsierr.KindType, "%s line %d: columns must be a mapping", path, cols.Line)
			}
			out = append(out, yamlSegment{name: resolve(name).Value, columns: cols})
		}
		return out, nil

	case yaml.MappingNode:
		if tag := localTag(root); tag != "" {
			return []yamlSegment{{name: tag, columns: root}}, nil
		}
		var out []yamlSegment
		for i := 0; i+1 < len(root.Content); i += 2 {
			key, val := root.Content[i], resolve(root.Content[i+1])
			if val.Kind != yaml.MappingNode {
				return nil, dsierr.Newf(dsierr.KindType, "%s line %d: segment %q must be a mapping of columns",
					path, key.Line, key.Value)
			}
			out = append(out, yamlSegment{name: key.Value, columns: val})
		}
		return out, nil

	case yaml.ScalarNode:
		if root.ShortTag() == "!!null" {
			return nil, nil
		}
	}
	return nil, dsierr.Newf(dsierr.KindType, "%s line %d: document is not a segment layout", path, root.Line)
}

// row converts the segment's columns into one row plus its units.
func (s yamlSegment) row(path string) ([]string, []abstraction.Value, map[string]string, error) {
	var cols []string
	var vals []abstraction.Value
	units := make(map[string]string)
	for i := 0; i+1 < len(s.columns.Content); i += 2 {
		key, node := s.columns.Content[i].Value, resolve(s.columns.Content[i+1])
		if node.Kind != yaml.ScalarNode {
			return nil, nil, nil, dsierr.NestedValue(path, s.name+"."+key)
		}
		v, unit := yamlScalar(node, true)
		cols = append(cols, key)
		vals = append(vals, v)
		if unit != "" {
			units[key] = unit
		}
	}
	return cols, vals, units, nil
}

// yamlScalar converts a scalar node. With units set, "<number> <unit>"
// text is split into the number and the unit.
func yamlScalar(node *yaml.Node, units bool) (abstraction.Value, string) {
	if tag := localTag(node); tag != "" {
		if node.Value == "" {
			return abstraction.Text("!" + tag), ""
		}
		return abstraction.Text("!" + tag + " " + node.Value), ""
	}

	switch node.ShortTag() {
	case "!!null":
		return abstraction.Null(), ""
	case "!!bool":
		var b bool
		if err := node.Decode(&b); err == nil {
			return abstraction.MustFromAny(b), ""
		}
	case "!!int":
		var i int64
		if err := node.Decode(&i); err == nil {
			return abstraction.Int(i), ""
		}
	case "!!float":
		var f float64
		if err := node.Decode(&f); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
			return abstraction.Float(f), ""
		}
	}
	if !units {
		if node.Value == "" {
			return abstraction.Null(), ""
		}
		return abstraction.Text(node.Value), ""
	}
	return splitUnit(node.Value)
}

// splitUnit recognises "<number> <unit>". Other text is returned whole.
func splitUnit(s string) (abstraction.Value, string) {
	if s == "" {
		return abstraction.Null(), ""
	}
	trimmed := strings.TrimSpace(s)
	idx := strings.IndexByte(trimmed, ' ')
	if idx <= 0 {
		return abstraction.ParseValue(s), ""
	}
	num := abstraction.ParseValue(trimmed[:idx])
	unit := strings.TrimSpace(trimmed[idx+1:])
	if !num.IsNumeric() || unit == "" {
		return abstraction.Text(s), ""
	}
	return num, unit
}

// localTag returns the name of a "!name" tag, or "".
func localTag(node *yaml.Node) string {
	if strings.HasPrefix(node.Tag, "!") && !strings.HasPrefix(node.Tag, "!!") {
		return strings.TrimPrefix(node.Tag, "!")
	}
	return ""
}

func resolve(node *yaml.Node) *yaml.Node {
	for node.Kind == yaml.AliasNode && node.Alias != nil {
		node = node.Alias
	}
	return node
}

func mappingValue(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

// yamlToAny converts a node to the shapes decodeOrdered produces.
func yamlToAny(node *yaml.Node) interface{} {
	node = resolve(node)
	switch node.Kind {
	case yaml.MappingNode:
		obj := newObject()
		for i := 0; i+1 < len(node.Content); i += 2 {
			obj.set(node.Content[i].Value, yamlToAny(node.Content[i+1]))
		}
		return obj
	case yaml.SequenceNode:
		list := make([]interface{}, 0, len(node.Content))
		for _, c := range node.Content {
			list = append(list, yamlToAny(c))
		}
		return list
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			return nil
		}
		return yamlToAny(node.Content[0])
	default:
		v, _ := yamlScalar(node, false)
		if v.IsNull() {
			return nil
		}
		return v
	}
}
