package readers

import (
	"bytes"
	"context"
	"strings"

	"github.com/goccy/go-json"

	"github.com/dsiflow/dsi/pkg/abstraction"
	dsierr "github.com/dsiflow/dsi/pkg/errors"
)

// object is a decoded JSON or YAML mapping with its key order kept.
type object struct {
	keys   []string
	values map[string]interface{}
}

func newObject() *object {
	return &object{values: make(map[string]interface{})}
}

func (o *object) set(key string, v interface{}) {
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = v
}

// decodeOrdered decodes one JSON document into *object, []interface{} and
// scalars, keeping object key order.
func decodeOrdered(data []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, dsierr.New(dsierr.KindType, "trailing data after JSON document")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (interface{}, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		if n, isNum := tok.(json.Number); isNum {
			// Number tokens alias the decoder buffer.
			return json.Number(strings.Clone(string(n))), nil
		}
		return tok, nil
	}
	switch delim {
	case '{':
		obj := newObject()
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := keyTok.(string)
			if !ok {
				return nil, dsierr.Newf(dsierr.KindType, "object key %v is not a string", keyTok)
			}
			v, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			obj.set(key, v)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return obj, nil
	case '[':
		var list []interface{}
		for dec.More() {
			v, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return list, nil
	default:
		return nil, dsierr.Newf(dsierr.KindType, "unexpected %v", delim)
	}
}

// scalarValue converts a decoded scalar. Nested values return ok=false.
func scalarValue(x interface{}) (abstraction.Value, bool) {
	switch t := x.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return abstraction.Int(i), true
		}
		if f, err := t.Float64(); err == nil {
			return abstraction.Float(f), true
		}
		return abstraction.Text(t.String()), true
	case *object, []interface{}, map[string]interface{}:
		return abstraction.Value{}, false
	default:
		return abstraction.FromAny(x)
	}
}

func decodeJSONFile(path string) (interface{}, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	v, err := decodeOrdered(data)
	if err != nil {
		return nil, dsierr.Wrapf(err, dsierr.KindType, "malformed JSON in %s", path)
	}
	return v, nil
}

// flatRow converts an object of scalars into one row.
func flatRow(path string, obj *object) ([]string, []abstraction.Value, error) {
	values := make([]abstraction.Value, len(obj.keys))
	for i, k := range obj.keys {
		v, ok := scalarValue(obj.values[k])
		if !ok {
			return nil, nil, dsierr.NestedValue(path, k)
		}
		values[i] = v
	}
	return obj.keys, values, nil
}

// JSON reads flat JSON objects. A file holds one object (one row) or an
// array of objects (one row each). Nested values are a TypeError.
type JSON struct {
	opts Options
}

// NewJSON creates a generic JSON reader.
func NewJSON(opts Options) (*JSON, error) {
	if err := requireFiles(KindJSON, opts); err != nil {
		return nil, err
	}
	if opts.TableName == "" {
		opts.TableName = stem(opts.Filenames[0])
	}
	return &JSON{opts: opts}, nil
}

// Name returns the reader kind.
func (r *JSON) Name() string { return KindJSON }

// Read parses every file into one table.
func (r *JSON) Read(ctx context.Context) (*abstraction.Abstraction, error) {
	table := abstraction.NewTable(tableName(r.opts.Prefix, r.opts.TableName))
	for _, path := range r.opts.Filenames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := decodeJSONFile(path)
		if err != nil {
			return nil, err
		}

		var rows []*object
		switch d := doc.(type) {
		case *object:
			rows = []*object{d}
		case []interface{}:
			for i, item := range d {
				obj, ok := item.(*object)
				if !ok {
					return nil, dsierr.Newf(dsierr.KindType, "element %d of %s is not an object", i, path)
				}
				rows = append(rows, obj)
			}
		default:
			return nil, dsierr.Newf(dsierr.KindType, "%s: top level must be an object or an array of objects", path)
		}

		for _, obj := range rows {
			cols, vals, err := flatRow(path, obj)
			if err != nil {
				return nil, err
			}
			if err := table.AppendRow(cols, vals); err != nil {
				return nil, err
			}
		}
	}

	frag := abstraction.New()
	if err := frag.AddTable(table); err != nil {
		return nil, err
	}
	return frag, nil
}

// Bueno reads Bueno performance records: each file is one row whose
// columns are the object's keys. Nested objects are flattened with dotted
// keys.
type Bueno struct {
	opts Options
}

// NewBueno creates a Bueno reader.
func NewBueno(opts Options) (*Bueno, error) {
	if err := requireFiles(KindBueno, opts); err != nil {
		return nil, err
	}
	if opts.TableName == "" {
		opts.TableName = "bueno"
	}
	return &Bueno{opts: opts}, nil
}

// Name returns the reader kind.
func (r *Bueno) Name() string { return KindBueno }

// Read parses every file into one row of the Bueno table.
func (r *Bueno) Read(ctx context.Context) (*abstraction.Abstraction, error) {
	table := abstraction.NewTable(tableName(r.opts.Prefix, r.opts.TableName))
	for _, path := range r.opts.Filenames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := decodeJSONFile(path)
		if err != nil {
			return nil, err
		}
		obj, ok := doc.(*object)
		if !ok {
			return nil, dsierr.Newf(dsierr.KindType, "%s: Bueno record must be an object", path)
		}
		var cols []string
		var vals []abstraction.Value
		if err := flatten(path, "", obj, &cols, &vals); err != nil {
			return nil, err
		}
		if err := table.AppendRow(cols, vals); err != nil {
			return nil, err
		}
	}

	frag := abstraction.New()
	if err := frag.AddTable(table); err != nil {
		return nil, err
	}
	return frag, nil
}

func flatten(path, prefix string, obj *object, cols *[]string, vals *[]abstraction.Value) error {
	for _, k := range obj.keys {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := obj.values[k].(*object); ok {
			if err := flatten(path, key, nested, cols, vals); err != nil {
				return err
			}
			continue
		}
		v, ok := scalarValue(obj.values[k])
		if !ok {
			return dsierr.NestedValue(path, key)
		}
		for _, c := range *cols {
			if strings.EqualFold(c, key) && c != key {
				return dsierr.Newf(dsierr.KindType, "%s: keys %q and %q differ only in case", path, c, key)
			}
		}
		*cols = append(*cols, key)
		*vals = append(*vals, v)
	}
	return nil
}
