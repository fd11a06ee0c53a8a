package readers

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/dsiflow/dsi/pkg/abstraction"
	dsierr "github.com/dsiflow/dsi/pkg/errors"
)

// Schema reads a JSON description of primary and foreign keys and emits
// relations only:
//
//	{
//	  "math":    {"primary_key": "specification"},
//	  "address": {"primary_key": "specification",
//	              "foreign_key": {"specification": ["math", "specification"]}}
//	}
//
// The Terminal runs schema readers before data readers so that tables are
// created with their constraints.
type Schema struct {
	opts Options
}

// NewSchema creates a schema reader.
func NewSchema(opts Options) (*Schema, error) {
	if err := requireFiles(KindSchema, opts); err != nil {
		return nil, err
	}
	return &Schema{opts: opts}, nil
}

// Name returns the reader kind.
func (r *Schema) Name() string { return KindSchema }

// DeclaresSchema marks the reader for early execution.
func (r *Schema) DeclaresSchema() bool { return true }

// Read parses every schema file.
func (r *Schema) Read(ctx context.Context) (*abstraction.Abstraction, error) {
	frag := abstraction.New()
	for _, path := range r.opts.Filenames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := decodeJSONFile(path)
		if err != nil {
			return nil, err
		}
		root, ok := doc.(*object)
		if !ok {
			return nil, dsierr.Newf(dsierr.KindType, "%s: schema must be an object of tables", path)
		}
		if err := r.declare(path, root, frag.Relations); err != nil {
			return nil, err
		}
	}
	log.WithField("relations", frag.Relations.Len()).Debug("schema parsed")
	return frag, nil
}

func (r *Schema) declare(path string, root *object, rel *abstraction.Relations) error {
	for _, table := range root.keys {
		spec, ok := root.values[table].(*object)
		if !ok {
			return dsierr.Newf(dsierr.KindType, "%s: entry for table %q must be an object", path, table)
		}
		name := tableName(r.opts.Prefix, table)

		for _, key := range spec.keys {
			switch key {
			case "primary_key":
				cols, err := stringList(spec.values[key])
				if err != nil {
					return dsierr.Wrapf(err, dsierr.KindType, "%s: %s.primary_key", path, table)
				}
				for _, c := range cols {
					rel.AddPrimaryKey(abstraction.ColumnRef{Table: name, Column: c})
				}
			case "foreign_key":
				fks, ok := spec.values[key].(*object)
				if !ok {
					return dsierr.Newf(dsierr.KindType, "%s: %s.foreign_key must map columns to [table, column]", path, table)
				}
				for _, col := range fks.keys {
					target, err := stringList(fks.values[col])
					if err != nil || len(target) != 2 {
						return dsierr.Newf(dsierr.KindType, "%s: %s.foreign_key.%s must be [table, column]", path, table, col)
					}
					rel.Add(
						abstraction.ColumnRef{Table: tableName(r.opts.Prefix, target[0]), Column: target[1]},
						abstraction.ColumnRef{Table: name, Column: col},
					)
				}
			default:
				return dsierr.Newf(dsierr.KindType, "%s: unknown key %q for table %q", path, key, table)
			}
		}
	}
	return nil
}

// stringList accepts a string or a list of strings.
func stringList(x interface{}) ([]string, error) {
	switch t := x.(type) {
	case string:
		return []string{t}, nil
	case []interface{}:
		out := make([]string, len(t))
		for i, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, dsierr.Newf(dsierr.KindType, "element %d is not a string", i)
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, dsierr.New(dsierr.KindType, "expected a string or a list of strings")
	}
}
