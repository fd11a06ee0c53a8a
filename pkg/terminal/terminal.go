// Package terminal is the user-facing front of DSI. A Terminal owns the
// active abstraction, the queued readers and the open backend, and exposes
// one method per CLI command.
//
// A Terminal is not safe for concurrent use.
package terminal

import (
	"context"
	"runtime"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dsiflow/dsi/pkg/abstraction"
	"github.com/dsiflow/dsi/pkg/backend"
	dsierr "github.com/dsiflow/dsi/pkg/errors"
	"github.com/dsiflow/dsi/pkg/readers"
	"github.com/dsiflow/dsi/pkg/telemetry"
	"github.com/dsiflow/dsi/pkg/writers"
)

// ProgressFunc is told how many of the queued readers have finished.
type ProgressFunc func(done, total int)

// Option configures a Terminal.
type Option func(*Terminal)

// WithReaders replaces the reader registry.
func WithReaders(r *readers.Registry) Option {
	return func(t *Terminal) { t.readers = r }
}

// WithWriters replaces the writer registry.
func WithWriters(w *writers.Registry) Option {
	return func(t *Terminal) { t.writers = w }
}

// WithProgress reports reader completion during Transload.
func WithProgress(fn ProgressFunc) Option {
	return func(t *Terminal) { t.progress = fn }
}

// WithParallelism bounds how many readers run at once. Values below one
// mean one per CPU.
func WithParallelism(n int) Option {
	return func(t *Terminal) { t.parallelism = n }
}

// Terminal holds the active abstraction and the plugins acting on it.
type Terminal struct {
	abstraction *abstraction.Abstraction
	queue       []readers.Reader
	backend     *backend.Backend

	readers     *readers.Registry
	writers     *writers.Registry
	progress    ProgressFunc
	parallelism int
}

// New creates a Terminal with an empty abstraction and no backend.
func New(opts ...Option) *Terminal {
	t := &Terminal{
		abstraction: abstraction.New(),
		readers:     readers.DefaultRegistry,
		writers:     writers.DefaultRegistry,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Abstraction returns the active abstraction.
func (t *Terminal) Abstraction() *abstraction.Abstraction { return t.abstraction }

// Backend returns the open backend, or nil.
func (t *Terminal) Backend() *backend.Backend { return t.backend }

// Pending returns the kinds of the queued readers.
func (t *Terminal) Pending() []string {
	out := make([]string, len(t.queue))
	for i, r := range t.queue {
		out[i] = r.Name()
	}
	return out
}

// ReaderKinds lists the loadable reader kinds.
func (t *Terminal) ReaderKinds() []string { return t.readers.Kinds() }

// WriterKinds lists the loadable writer kinds.
func (t *Terminal) WriterKinds() []string { return t.writers.Kinds() }

// LoadReader instantiates a reader and queues it for the next Transload.
func (t *Terminal) LoadReader(kind string, opts readers.Options) error {
	r, err := t.readers.New(kind, opts)
	if err != nil {
		return err
	}
	t.queue = append(t.queue, r)
	log.WithFields(log.Fields{"reader": r.Name(), "files": opts.Filenames}).Debug("reader loaded")
	return nil
}

// Discard drops the queued readers and empties the abstraction.
func (t *Terminal) Discard() {
	t.queue = nil
	t.abstraction.Reset()
}

// LoadBackend opens the store, replacing any open one.
func (t *Terminal) LoadBackend(opts backend.Options) error {
	b, err := backend.Open(opts)
	if err != nil {
		return err
	}
	if t.backend != nil {
		if err := t.backend.Close(); err != nil {
			log.WithError(err).Warn("closing previous backend")
		}
	}
	t.backend = b
	log.WithFields(log.Fields{"engine": b.Engine(), "path": b.Path()}).Debug("backend loaded")
	return nil
}

// Close releases the backend.
func (t *Terminal) Close() error {
	if t.backend == nil {
		return nil
	}
	err := t.backend.Close()
	t.backend = nil
	return err
}

func (t *Terminal) requireBackend() error {
	if t.backend == nil {
		return dsierr.New(dsierr.KindValue, "no backend loaded")
	}
	return nil
}

// Transload runs every queued reader and merges the fragments into the
// abstraction. Schema readers merge first; the others merge in load order.
// Any failure leaves the abstraction as it was before the call. The queue
// is emptied on success.
func (t *Terminal) Transload(ctx context.Context) (err error) {
	opID := uuid.New().String()
	ctx, span := telemetry.Start(ctx, "dsi.transload",
		telemetry.Attr("dsi.operation_id", opID),
		telemetry.Attr("dsi.readers", len(t.queue)))
	defer func() { telemetry.End(span, err) }()

	logger := log.WithFields(log.Fields{"op": opID, "readers": len(t.queue)})
	start := time.Now()

	ordered := make([]readers.Reader, 0, len(t.queue))
	for _, r := range t.queue {
		if sr, ok := r.(readers.SchemaReader); ok && sr.DeclaresSchema() {
			ordered = append(ordered, r)
		}
	}
	for _, r := range t.queue {
		if sr, ok := r.(readers.SchemaReader); !ok || !sr.DeclaresSchema() {
			ordered = append(ordered, r)
		}
	}

	fragments, err := t.read(ctx, ordered)
	if err != nil {
		logger.WithError(err).Debug("transload failed")
		return err
	}

	next := t.abstraction.Clone()
	for i, frag := range fragments {
		if err := next.Merge(frag); err != nil {
			logger.WithError(err).WithField("reader", ordered[i].Name()).Debug("transload rolled back")
			return dsierr.Wrapf(err, dsierr.KindValue, "%s reader", ordered[i].Name())
		}
	}
	t.abstraction = next
	t.queue = nil

	logger.WithFields(log.Fields{
		"tables":   len(next.TableNames()),
		"duration": time.Since(start),
	}).Debug("transload complete")
	return nil
}

// read runs the readers concurrently and returns their fragments in order.
// Every reader runs to completion; failures are reported together in queue
// order.
func (t *Terminal) read(ctx context.Context, rs []readers.Reader) ([]*abstraction.Abstraction, error) {
	fragments := make([]*abstraction.Abstraction, len(rs))
	errs := make([]error, len(rs))
	limit := t.parallelism
	if limit < 1 {
		limit = runtime.NumCPU()
	}

	done := make(chan struct{}, len(rs))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, r := range rs {
		i, r := i, r
		g.Go(func() error {
			frag, err := r.Read(ctx)
			if err != nil {
				errs[i] = dsierr.Wrapf(err, dsierr.KindIO, "%s reader failed", r.Name())
				return nil
			}
			fragments[i] = frag
			done <- struct{}{}
			return nil
		})
	}

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		n := 0
		for range done {
			n++
			if t.progress != nil {
				t.progress(n, len(rs))
			}
		}
	}()
	g.Wait()
	close(done)
	<-finished

	var merr dsierr.MultiError
	for _, err := range errs {
		merr.Add(err)
	}
	if err := merr.Combined(); err != nil {
		return nil, err
	}
	return fragments, nil
}

// Ingest writes the abstraction to the backend and empties it. On failure
// the backend and the abstraction are both unchanged.
func (t *Terminal) Ingest(ctx context.Context) (err error) {
	if err := t.requireBackend(); err != nil {
		return err
	}
	opID := uuid.New().String()
	ctx, span := telemetry.Start(ctx, "dsi.ingest",
		telemetry.Attr("dsi.operation_id", opID),
		telemetry.Attr("dsi.tables", t.abstraction.TableNames()))
	defer func() { telemetry.End(span, err) }()

	logger := log.WithFields(log.Fields{"op": opID, "engine": t.backend.Engine()})
	if err := t.backend.Ingest(ctx, t.abstraction); err != nil {
		logger.WithError(err).Debug("ingest failed")
		return err
	}
	logger.WithField("tables", t.abstraction.TableNames()).Debug("ingest complete")
	t.abstraction.Reset()
	return nil
}

// Process replaces the abstraction with the backend's contents.
func (t *Terminal) Process(ctx context.Context) (err error) {
	if err := t.requireBackend(); err != nil {
		return err
	}
	ctx, span := telemetry.Start(ctx, "dsi.process")
	defer func() { telemetry.End(span, err) }()

	a, err := t.backend.Process(ctx)
	if err != nil {
		return err
	}
	t.abstraction = a
	return nil
}

// Query runs a read-only statement against the backend.
func (t *Terminal) Query(ctx context.Context, stmt string) (res *backend.Result, err error) {
	if err := t.requireBackend(); err != nil {
		return nil, err
	}
	ctx, span := telemetry.Start(ctx, "dsi.query")
	defer func() { telemetry.End(span, err) }()

	return t.backend.Query(ctx, stmt)
}

// Find evaluates a find expression against the backend. The results carry
// provenance columns so they can be edited and passed to Update.
func (t *Terminal) Find(ctx context.Context, expr string, opts backend.FindOptions) (out []*abstraction.Table, err error) {
	if err := t.requireBackend(); err != nil {
		return nil, err
	}
	ctx, span := telemetry.Start(ctx, "dsi.find",
		telemetry.Attr("dsi.expression", expr),
		telemetry.Attr("dsi.tables", opts.Tables))
	defer func() { telemetry.End(span, err) }()

	return t.backend.Find(ctx, expr, opts)
}

// FindCollection is Find with the per-table results merged into one table.
func (t *Terminal) FindCollection(ctx context.Context, expr string, opts backend.FindOptions) (*abstraction.Table, error) {
	out, err := t.Find(ctx, expr, opts)
	if err != nil {
		return nil, err
	}
	return backend.Union(out), nil
}

// Update writes edited find results back to the backend.
func (t *Terminal) Update(ctx context.Context, edits ...*abstraction.Table) (err error) {
	if err := t.requireBackend(); err != nil {
		return err
	}
	ctx, span := telemetry.Start(ctx, "dsi.update", telemetry.Attr("dsi.tables", len(edits)))
	defer func() { telemetry.End(span, err) }()

	return t.backend.Update(ctx, edits)
}
