package writers

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/dsiflow/dsi/pkg/abstraction"
	dsierr "github.com/dsiflow/dsi/pkg/errors"
)

// TablePlot draws the numeric columns of one table as line series. The x
// axis is the row number, or the run time when the table carries run ids
// that resolve against the run table.
type TablePlot struct {
	opts Options
}

// Name implements Writer.
func (w *TablePlot) Name() string { return KindTablePlot }

var plotFormats = map[string]bool{
	"png": true, "svg": true, "pdf": true, "eps": true,
	"jpg": true, "jpeg": true, "tif": true, "tiff": true,
}

// Write implements Writer.
func (w *TablePlot) Write(ctx context.Context, a *abstraction.Abstraction) error {
	format := strings.ToLower(strings.TrimPrefix(filepath.Ext(w.opts.Filename), "."))
	if !plotFormats[format] {
		return dsierr.Newf(dsierr.KindValue, "cannot plot to %q", w.opts.Filename).
			WithContext("formats", "png, svg, pdf, eps, jpg, tif")
	}
	t, err := selectTable(a, w.opts)
	if err != nil {
		return err
	}

	xs, byTime := xValues(a, t)

	var series []interface{}
	for _, col := range t.Columns() {
		if col == abstraction.RunIDColumn || abstraction.IsProvenance(col) {
			continue
		}
		values, _ := t.Column(col)
		if !numeric(values) {
			if len(w.opts.Columns) > 0 {
				log.WithFields(log.Fields{"table": t.Name, "column": col}).Warn("skipping non-numeric column")
			}
			continue
		}
		pts := make(plotter.XYs, 0, len(values))
		for i, v := range values {
			if v.IsNull() {
				continue
			}
			pts = append(pts, plotter.XY{X: xs[i], Y: v.Float64()})
		}
		label := col
		if unit, ok := a.Units.Get(t.Name, col); ok && unit != "" {
			label = fmt.Sprintf("%s (%s)", col, unit)
		}
		series = append(series, label, pts)
	}
	if len(series) == 0 {
		return dsierr.Newf(dsierr.KindValue, "table %s has no numeric columns to plot", t.Name)
	}

	p := plot.New()
	p.Title.Text = t.Name
	p.Y.Label.Text = "value"
	if byTime {
		p.X.Label.Text = "run time"
		p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01-02\n15:04:05"}
	} else {
		p.X.Label.Text = "row"
	}
	if err := plotutil.AddLinePoints(p, series...); err != nil {
		return dsierr.Wrap(err, dsierr.KindValue, "cannot build plot")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	wt, err := p.WriterTo(8*vg.Inch, 5*vg.Inch, format)
	if err != nil {
		return dsierr.Wrap(err, dsierr.KindValue, "cannot render plot")
	}
	f, commit, abort, err := createAtomic(w.opts.Filename)
	if err != nil {
		return err
	}
	if _, err := wt.WriteTo(f); err != nil {
		abort()
		return dsierr.Wrap(err, dsierr.KindIO, "cannot write plot").WithContext("path", w.opts.Filename)
	}
	if err := f.Close(); err != nil {
		abort()
		return dsierr.Wrap(err, dsierr.KindIO, "cannot write plot").WithContext("path", w.opts.Filename)
	}
	if err := commit(); err != nil {
		return err
	}
	log.WithFields(log.Fields{"table": t.Name, "series": len(series) / 2, "path": w.opts.Filename}).Debug("plot written")
	return nil
}

// numeric reports whether every non-null value is a number and at least one
// is present.
func numeric(values []abstraction.Value) bool {
	seen := false
	for _, v := range values {
		if v.IsNull() {
			continue
		}
		if !v.IsNumeric() {
			return false
		}
		seen = true
	}
	return seen
}

// xValues returns the x coordinate of each row. Rows map to their run's
// Unix time when every run id resolves; otherwise rows are numbered from 1.
func xValues(a *abstraction.Abstraction, t *abstraction.Table) ([]float64, bool) {
	xs := make([]float64, t.NumRows())
	for i := range xs {
		xs[i] = float64(i + 1)
	}
	ids, ok := t.Column(abstraction.RunIDColumn)
	if !ok || a.Runs == nil {
		return xs, false
	}
	runIDs, _ := a.Runs.Column(abstraction.RunIDColumn)
	stamps, _ := a.Runs.Column(abstraction.RunTimeColumn)
	times := make(map[int64]time.Time, len(runIDs))
	for i := range runIDs {
		if i >= len(stamps) {
			break
		}
		ts, err := time.Parse(time.RFC3339Nano, stamps[i].String())
		if err != nil {
			return xs, false
		}
		times[runIDs[i].Int64()] = ts
	}

	byTime := make([]float64, len(xs))
	for i, id := range ids {
		ts, ok := times[id.Int64()]
		if id.IsNull() || !ok {
			return xs, false
		}
		byTime[i] = float64(ts.UnixNano()) / 1e9
	}
	return byTime, true
}
