package readers

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/dsiflow/dsi/pkg/abstraction"
	dsierr "github.com/dsiflow/dsi/pkg/errors"
)

// Excel reads .xlsx workbooks. Every sheet becomes a table named after the
// sheet; its first row is the header.
type Excel struct {
	opts Options
}

// NewExcel creates an Excel reader.
func NewExcel(opts Options) (*Excel, error) {
	if err := requireFiles(KindExcel, opts); err != nil {
		return nil, err
	}
	return &Excel{opts: opts}, nil
}

// Name returns the reader kind.
func (r *Excel) Name() string { return KindExcel }

// Read parses every sheet of every workbook.
func (r *Excel) Read(ctx context.Context) (*abstraction.Abstraction, error) {
	frag := abstraction.New()
	for _, path := range r.opts.Filenames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tables, err := readWorkbook(path, r.opts.Prefix)
		if err != nil {
			return nil, err
		}
		if err := putTables(frag, tables); err != nil {
			return nil, err
		}
	}
	return frag, nil
}

func readWorkbook(path, prefix string) ([]*abstraction.Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, dsierr.Wrapf(err, dsierr.KindIO, "failed to open workbook %s", path)
	}
	defer f.Close()

	var tables []*abstraction.Table
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, dsierr.Wrapf(err, dsierr.KindIO, "failed to read sheet %q of %s", sheet, path)
		}
		if len(rows) == 0 {
			log.WithFields(log.Fields{"file": path, "sheet": sheet}).Debug("skipping empty sheet")
			continue
		}

		header := make([]string, len(rows[0]))
		for i, h := range rows[0] {
			h = strings.TrimSpace(h)
			if h == "" {
				return nil, dsierr.Newf(dsierr.KindType, "%s sheet %q: column %d has an empty header", path, sheet, i+1)
			}
			header[i] = h
		}

		data := rows[1:]
		columns := make([][]abstraction.Value, len(header))
		for c := range columns {
			columns[c] = make([]abstraction.Value, len(data))
			for r, row := range data {
				if c < len(row) {
					columns[c][r] = abstraction.ParseValue(row[c])
				}
			}
		}
		t, err := abstraction.NewTableFromColumns(tableName(prefix, sheet), header, columns)
		if err != nil {
			return nil, dsierr.Wrapf(err, dsierr.KindType, "%s sheet %q", path, sheet)
		}
		tables = append(tables, t)
	}
	return tables, nil
}
