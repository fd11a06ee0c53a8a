package terminal

import (
	"context"
	"math"

	log "github.com/sirupsen/logrus"

	"github.com/dsiflow/dsi/pkg/abstraction"
	dsierr "github.com/dsiflow/dsi/pkg/errors"
	"github.com/dsiflow/dsi/pkg/schema"
	"github.com/dsiflow/dsi/pkg/telemetry"
	"github.com/dsiflow/dsi/pkg/writers"
)

// TableInfo is one line of List.
type TableInfo struct {
	Name    string
	Rows    int
	Columns int
}

// ColumnSummary describes one column. Min, Max and Mean are set for
// numeric columns only.
type ColumnSummary struct {
	Name  string
	Type  schema.ColumnType
	Unit  string
	Nulls int
	Min   *float64
	Max   *float64
	Mean  *float64
}

// TableSummary describes one table.
type TableSummary struct {
	Name    string
	Rows    int
	Columns []ColumnSummary
}

// source returns what the views read: the backend contents when a backend
// is open, otherwise the active abstraction.
func (t *Terminal) source(ctx context.Context) (*abstraction.Abstraction, error) {
	if t.backend == nil {
		return t.abstraction, nil
	}
	return t.backend.Process(ctx)
}

// List returns every table with its shape.
func (t *Terminal) List(ctx context.Context) ([]TableInfo, error) {
	a, err := t.source(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]TableInfo, 0, len(a.TableNames()))
	for _, tbl := range a.Tables() {
		out = append(out, TableInfo{Name: tbl.Name, Rows: tbl.NumRows(), Columns: tbl.NumColumns()})
	}
	return out, nil
}

// Display returns the first n rows of a table; n < 0 means all rows.
func (t *Terminal) Display(ctx context.Context, table string, n int) (*abstraction.Table, error) {
	a, err := t.source(ctx)
	if err != nil {
		return nil, err
	}
	tbl, ok := a.Table(table)
	if !ok {
		return nil, dsierr.Newf(dsierr.KindValue, "no table %q", table).
			WithContext("available", a.TableNames())
	}
	return tbl.Head(n), nil
}

// Summary computes per-column statistics. An empty table name summarizes
// every table.
func (t *Terminal) Summary(ctx context.Context, table string) ([]TableSummary, error) {
	a, err := t.source(ctx)
	if err != nil {
		return nil, err
	}
	tables := a.Tables()
	if table != "" {
		tbl, ok := a.Table(table)
		if !ok {
			return nil, dsierr.Newf(dsierr.KindValue, "no table %q", table).
				WithContext("available", a.TableNames())
		}
		tables = []*abstraction.Table{tbl}
	}

	out := make([]TableSummary, 0, len(tables))
	for _, tbl := range tables {
		s := TableSummary{Name: tbl.Name, Rows: tbl.NumRows()}
		for i, name := range tbl.Columns() {
			cs := summarize(tbl.ColumnAt(i))
			cs.Name = name
			cs.Unit, _ = a.Units.Get(tbl.Name, name)
			s.Columns = append(s.Columns, cs)
		}
		out = append(out, s)
	}
	return out, nil
}

func summarize(values []abstraction.Value) ColumnSummary {
	cs := ColumnSummary{Type: schema.InferColumn(values)}
	lo, hi, sum, n := math.Inf(1), math.Inf(-1), 0.0, 0
	for _, v := range values {
		if v.IsNull() {
			cs.Nulls++
			continue
		}
		if !v.IsNumeric() {
			continue
		}
		f := v.Float64()
		lo = math.Min(lo, f)
		hi = math.Max(hi, f)
		sum += f
		n++
	}
	if cs.Type != schema.TypeText && n > 0 {
		mean := sum / float64(n)
		cs.Min, cs.Max, cs.Mean = &lo, &hi, &mean
	}
	return cs
}

// Save renders the backend contents, or the active abstraction when no
// backend is open, with the named writer.
func (t *Terminal) Save(ctx context.Context, kind string, opts writers.Options) (err error) {
	ctx, span := telemetry.Start(ctx, "dsi.write",
		telemetry.Attr("dsi.writer", kind),
		telemetry.Attr("dsi.path", opts.Filename))
	defer func() { telemetry.End(span, err) }()

	w, err := t.writers.New(kind, opts)
	if err != nil {
		return err
	}
	a, err := t.source(ctx)
	if err != nil {
		return err
	}
	if err := w.Write(ctx, a); err != nil {
		return err
	}
	log.WithFields(log.Fields{"writer": w.Name(), "path": opts.Filename}).Debug("saved")
	return nil
}
