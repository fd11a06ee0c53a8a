package readers

import (
	"bytes"
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/dsiflow/dsi/pkg/abstraction"
	dsierr "github.com/dsiflow/dsi/pkg/errors"
)

// Standard is a data-card template: a table name and the exact field set
// a card must carry.
type Standard struct {
	Kind   string
	Table  string
	Fields []string
}

// Supported data-card standards.
var (
	Oceans11 = Standard{
		Kind:  KindOceans11,
		Table: "oceans11_datacard",
		Fields: []string{
			"name", "description", "data_uses", "creators", "creation_date", "la_ur",
			"owner", "funding", "publisher", "published_date", "origin_location",
			"num_simulations", "version", "license", "live_dataset",
		},
	}
	DublinCore = Standard{
		Kind:  KindDublinCore,
		Table: "dublin_core_datacard",
		Fields: []string{
			"title", "creator", "subject", "description", "publisher", "contributor",
			"date", "type", "format", "identifier", "source", "language", "relation",
			"coverage", "rights",
		},
	}
	SchemaOrg = Standard{
		Kind:  KindSchemaOrg,
		Table: "schema_org_datacard",
		Fields: []string{
			"name", "description", "keywords", "creator", "publisher", "datePublished",
			"dateModified", "license", "url", "version", "identifier", "distribution",
			"funder", "temporalCoverage", "spatialCoverage",
		},
	}
	GoogleDatacard = Standard{
		Kind:  KindGoogle,
		Table: "google_datacard",
		Fields: []string{
			"title", "summary", "dataset_link", "documentation_link", "publishers",
			"industry_types", "publishing_date", "authors", "funding_sources",
			"dataset_owners", "sensitive_data", "data_domains", "intended_uses",
			"known_limitations", "license", "version",
		},
	}
)

// Datacard reads data cards of one standard. Each card file is one row; the
// card's top-level field set must equal the template's. Cards may be JSON
// or YAML, chosen by extension. List and object fields are stored as JSON
// text.
type Datacard struct {
	std  Standard
	opts Options
}

// NewDatacard creates a reader for one standard.
func NewDatacard(std Standard, opts Options) (*Datacard, error) {
	if err := requireFiles(std.Kind, opts); err != nil {
		return nil, err
	}
	return &Datacard{std: std, opts: opts}, nil
}

// Name returns the reader kind.
func (r *Datacard) Name() string { return r.std.Kind }

// Read parses every card into one row of the standard's table.
func (r *Datacard) Read(ctx context.Context) (*abstraction.Abstraction, error) {
	table := abstraction.NewTable(tableName(r.opts.Prefix, r.std.Table))
	for _, path := range r.opts.Filenames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		card, err := decodeCard(path)
		if err != nil {
			return nil, err
		}
		if err := r.std.check(path, card); err != nil {
			return nil, err
		}

		vals := make([]abstraction.Value, len(r.std.Fields))
		for i, f := range r.std.Fields {
			v, err := cardValue(card.values[f])
			if err != nil {
				return nil, dsierr.Wrapf(err, dsierr.KindType, "%s: field %q", path, f)
			}
			vals[i] = v
		}
		if err := table.AppendRow(r.std.Fields, vals); err != nil {
			return nil, err
		}
	}

	frag := abstraction.New()
	if err := frag.AddTable(table); err != nil {
		return nil, err
	}
	return frag, nil
}

func decodeCard(path string) (*object, error) {
	var doc interface{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		data, err := readFile(path)
		if err != nil {
			return nil, err
		}
		var node yaml.Node
		if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&node); err != nil {
			return nil, dsierr.Wrapf(err, dsierr.KindType, "malformed YAML in %s", path)
		}
		doc = yamlToAny(&node)
	default:
		var err error
		if doc, err = decodeJSONFile(path); err != nil {
			return nil, err
		}
	}
	card, ok := doc.(*object)
	if !ok {
		return nil, dsierr.Newf(dsierr.KindSchemaMismatch, "%s: data card must be a mapping", path)
	}
	return card, nil
}

// check compares the card's fields with the template.
func (s Standard) check(path string, card *object) error {
	want := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		want[f] = true
	}
	var extra, missing []string
	for _, k := range card.keys {
		if !want[k] {
			extra = append(extra, k)
		}
	}
	for _, f := range s.Fields {
		if _, ok := card.values[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(extra) == 0 && len(missing) == 0 {
		return nil
	}
	sort.Strings(extra)
	e := dsierr.Newf(dsierr.KindSchemaMismatch, "%s does not match the %s template", path, s.Kind)
	if len(missing) > 0 {
		e = e.WithContext("missing", strings.Join(missing, ","))
	}
	if len(extra) > 0 {
		e = e.WithContext("unexpected", strings.Join(extra, ","))
	}
	return e
}

// cardValue stores scalars as-is and nested values as JSON text.
func cardValue(x interface{}) (abstraction.Value, error) {
	if v, ok := scalarValue(x); ok {
		return v, nil
	}
	data, err := json.Marshal(plain(x))
	if err != nil {
		return abstraction.Value{}, err
	}
	return abstraction.Text(string(data)), nil
}

// plain converts ordered objects into values json.Marshal understands.
// Object keys are emitted sorted by the encoder.
func plain(x interface{}) interface{} {
	switch t := x.(type) {
	case *object:
		m := make(map[string]interface{}, len(t.keys))
		for _, k := range t.keys {
			m[k] = plain(t.values[k])
		}
		return m
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = plain(e)
		}
		return out
	case abstraction.Value:
		return t.Any()
	default:
		return x
	}
}
