// Package readers turns input artifacts into abstraction fragments.
//
// A Reader never touches the Terminal's abstraction: it returns a fragment
// that the Terminal merges, so a failing reader leaves no trace.
package readers

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dsiflow/dsi/pkg/abstraction"
	dsierr "github.com/dsiflow/dsi/pkg/errors"
)

// Reader parses one file or file set.
type Reader interface {
	// Name returns the registered kind.
	Name() string
	// Read parses the inputs into a fresh fragment.
	Read(ctx context.Context) (*abstraction.Abstraction, error)
}

// SchemaReader is implemented by readers that only declare relations. The
// Terminal runs them before any data reader.
type SchemaReader interface {
	Reader
	DeclaresSchema() bool
}

// Options configures a reader. Each kind uses the fields it needs.
type Options struct {
	// Filenames are the inputs, read in order.
	Filenames []string
	// TableName names the single table of CSV, JSON and Bueno readers.
	TableName string
	// Prefix is prepended to every table name as "<prefix>__<table>".
	Prefix string
	// SimulationTable makes the ensemble reader synthesize a simulation table.
	SimulationTable bool
	// Strict makes the CSV readers reject files whose headers name
	// different columns. Column order may differ.
	Strict bool
}

// Factory creates a reader from options.
type Factory func(opts Options) (Reader, error)

// Registry maps reader kinds to factories. Kinds are matched
// case-insensitively.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	names     map[string]string
}

// DefaultRegistry holds the built-in readers.
var DefaultRegistry = NewRegistry()

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		names:     make(map[string]string),
	}
}

// Register adds a factory under kind.
func (r *Registry) Register(kind string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(kind)
	r.factories[key] = factory
	r.names[key] = kind
}

// New instantiates a reader.
func (r *Registry) New(kind string, opts Options) (Reader, error) {
	r.mu.RLock()
	factory, ok := r.factories[strings.ToLower(kind)]
	r.mu.RUnlock()

	if !ok {
		return nil, dsierr.Newf(dsierr.KindValue, "unknown reader %q", kind).
			WithContext("available", strings.Join(r.Kinds(), ", "))
	}
	return factory(opts)
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.names))
	for _, n := range r.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Register adds a factory to the default registry.
func Register(kind string, factory Factory) {
	DefaultRegistry.Register(kind, factory)
}

// New instantiates a reader from the default registry.
func New(kind string, opts Options) (Reader, error) {
	return DefaultRegistry.New(kind, opts)
}

// Built-in reader kinds.
const (
	KindCSV        = "CSV"
	KindEnsemble   = "Ensemble"
	KindYAML       = "YAML1"
	KindTOML       = "TOML1"
	KindJSON       = "JSON"
	KindBueno      = "Bueno"
	KindOceans11   = "Oceans11Datacard"
	KindDublinCore = "DublinCoreDatacard"
	KindSchemaOrg  = "SchemaOrgDatacard"
	KindGoogle     = "GoogleDatacard"
	KindSchema     = "Schema"
	KindCloverleaf = "Cloverleaf"
	KindExcel      = "Excel"
)

func init() {
	Register(KindCSV, func(o Options) (Reader, error) { return NewCSV(o) })
	Register(KindEnsemble, func(o Options) (Reader, error) { return NewEnsemble(o) })
	Register(KindYAML, func(o Options) (Reader, error) { return NewYAML(o) })
	Register(KindTOML, func(o Options) (Reader, error) { return NewTOML(o) })
	Register(KindJSON, func(o Options) (Reader, error) { return NewJSON(o) })
	Register(KindBueno, func(o Options) (Reader, error) { return NewBueno(o) })
	Register(KindOceans11, func(o Options) (Reader, error) { return NewDatacard(Oceans11, o) })
	Register(KindDublinCore, func(o Options) (Reader, error) { return NewDatacard(DublinCore, o) })
	Register(KindSchemaOrg, func(o Options) (Reader, error) { return NewDatacard(SchemaOrg, o) })
	Register(KindGoogle, func(o Options) (Reader, error) { return NewDatacard(GoogleDatacard, o) })
	Register(KindSchema, func(o Options) (Reader, error) { return NewSchema(o) })
	Register(KindCloverleaf, func(o Options) (Reader, error) { return NewCloverleaf(o) })
	Register(KindExcel, func(o Options) (Reader, error) { return NewExcel(o) })
}

// tableName applies the prefix rule.
func tableName(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "__" + name
}

// stem returns the file name without directory and extension.
func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func requireFiles(kind string, opts Options) error {
	if len(opts.Filenames) == 0 {
		return dsierr.Newf(dsierr.KindValue, "%s reader needs at least one input file", kind)
	}
	return nil
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, dsierr.FileNotFound(path, err)
	}
	return data, nil
}

// putTables adds tables to a fragment in order. Reserved names surface as
// ValueError.
func putTables(frag *abstraction.Abstraction, tables []*abstraction.Table) error {
	for _, t := range tables {
		if err := frag.AddTable(t); err != nil {
			return err
		}
	}
	return nil
}
