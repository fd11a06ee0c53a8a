// Package writers renders an abstraction to files. Writers are pure
// consumers: they never modify the abstraction they are given.
package writers

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

// Writer renders an abstraction.
type Writer interface {
	// Name returns the registered kind.
	Name() string
	// Write renders a to the configured file.
	Write(ctx context.Context, a *abstraction.Abstraction) error
}

// Options configures a writer. Each kind uses the fields it needs.
type Options struct {
	// Filename is the output file. Its extension picks the format of the
	// diagram and plot writers.
	Filename string
	// Table selects the table of single-table writers. It may be omitted
	// when the abstraction holds exactly one table.
	Table string
	// Columns projects the table. Empty means every column.
	Columns []string
	// Compression is the Parquet codec.
	Compression CompressionType
}

// CompressionType represents Parquet compression options.
type CompressionType uint8

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionGzip
	CompressionZstd
)

// String returns the compression type name.
func (c CompressionType) String() string {
	switch c {
	case CompressionSnappy:
		return "snappy"
	case CompressionGzip:
		return "gzip"
	case CompressionZstd:
		return "zstd"
	default:
		return "none"
	}
}

// ParseCompression parses a compression type string.
func ParseCompression(s string) CompressionType {
	switch strings.ToLower(s) {
	case "snappy":
		return CompressionSnappy
	case "gzip":
		return CompressionGzip
	case "zstd":
		return CompressionZstd
	default:
		return CompressionNone
	}
}

// Factory creates a writer from options.
type Factory func(opts Options) (Writer, error)

// Registry maps writer kinds to factories. Kinds are matched
// case-insensitively.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	names     map[string]string
}

// DefaultRegistry holds the built-in writers.
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

// New instantiates a writer.
func (r *Registry) New(kind string, opts Options) (Writer, error) {
	r.mu.RLock()
	factory, ok := r.factories[strings.ToLower(kind)]
	r.mu.RUnlock()

	if !ok {
		return nil, dsierr.Newf(dsierr.KindValue, "unknown writer %q", kind).
			WithContext("available", strings.Join(r.Kinds(), ", "))
	}
	if opts.Filename == "" {
		return nil, dsierr.Newf(dsierr.KindValue, "%s writer needs an output filename", kind)
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

// New instantiates a writer from the default registry.
func New(kind string, opts Options) (Writer, error) {
	return DefaultRegistry.New(kind, opts)
}

// Built-in writer kinds.
const (
	KindERDiagram = "ER_Diagram"
	KindTablePlot = "Table_Plot"
	KindCSV       = "Csv_Writer"
	KindParquet   = "Parquet"
)

func init() {
	Register(KindERDiagram, func(o Options) (Writer, error) { return &ERDiagram{opts: o}, nil })
	Register(KindTablePlot, func(o Options) (Writer, error) { return &TablePlot{opts: o}, nil })
	Register(KindCSV, func(o Options) (Writer, error) { return &CSV{opts: o}, nil })
	Register(KindParquet, func(o Options) (Writer, error) { return &Parquet{opts: o}, nil })
}

// selectTable resolves the table a single-table writer renders, projected
// to opts.Columns.
func selectTable(a *abstraction.Abstraction, opts Options) (*abstraction.Table, error) {
	name := opts.Table
	if name == "" {
		names := a.TableNames()
		if len(names) != 1 {
			return nil, dsierr.Newf(dsierr.KindValue, "name the table to write; have %s", strings.Join(names, ", "))
		}
		name = names[0]
	}
	t, ok := a.Table(name)
	if !ok {
		return nil, dsierr.Newf(dsierr.KindValue, "no table %q to write", name).
			WithContext("available", strings.Join(a.TableNames(), ", "))
	}
	if len(opts.Columns) == 0 {
		return t, nil
	}
	return t.Project(opts.Columns)
}

// createAtomic opens a temp file next to path. commit renames it into
// place; abort removes it.
func createAtomic(path string) (f *os.File, commit func() error, abort func(), err error) {
	f, err = os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return nil, nil, nil, dsierr.Wrap(err, dsierr.KindIO, "cannot create output").WithContext("path", path)
	}
	tmp := f.Name()
	commit = func() error {
		if err := os.Rename(tmp, path); err != nil {
			os.Remove(tmp)
			return dsierr.Wrap(err, dsierr.KindIO, "cannot write output").WithContext("path", path)
		}
		return nil
	}
	abort = func() {
		f.Close()
		os.Remove(tmp)
	}
	return f, commit, abort, nil
}
