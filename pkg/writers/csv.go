package writers

import (
	"context"
	"encoding/csv"

	log "github.com/sirupsen/logrus"

	"github.com/dsiflow/dsi/pkg/abstraction"
	dsierr "github.com/dsiflow/dsi/pkg/errors"
)

// CSV writes one table, optionally projected, as RFC 4180 CSV. Nulls are
// written as empty fields.
type CSV struct {
	opts Options
}

// Name implements Writer.
func (w *CSV) Name() string { return KindCSV }

// Write implements Writer.
func (w *CSV) Write(ctx context.Context, a *abstraction.Abstraction) error {
	t, err := selectTable(a, w.opts)
	if err != nil {
		return err
	}
	f, commit, abort, err := createAtomic(w.opts.Filename)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(f)
	if err := cw.Write(t.Columns()); err != nil {
		abort()
		return dsierr.Wrap(err, dsierr.KindIO, "cannot write csv header")
	}
	record := make([]string, t.NumColumns())
	for row := 0; row < t.NumRows(); row++ {
		if row%1024 == 0 {
			if err := ctx.Err(); err != nil {
				abort()
				return err
			}
		}
		for i, v := range t.Row(row) {
			record[i] = v.String()
		}
		if err := cw.Write(record); err != nil {
			abort()
			return dsierr.Wrapf(err, dsierr.KindIO, "cannot write csv row %d", row+1)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		abort()
		return dsierr.Wrap(err, dsierr.KindIO, "cannot write csv")
	}
	if err := f.Close(); err != nil {
		abort()
		return dsierr.Wrap(err, dsierr.KindIO, "cannot write csv")
	}
	if err := commit(); err != nil {
		return err
	}
	log.WithFields(log.Fields{"table": t.Name, "rows": t.NumRows(), "path": w.opts.Filename}).Debug("csv written")
	return nil
}
