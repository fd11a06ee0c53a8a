package readers

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/dsiflow/dsi/pkg/abstraction"
	dsierr "github.com/dsiflow/dsi/pkg/errors"
	"github.com/dsiflow/dsi/pkg/schema"
)

// CSV reads one logical table from one or more CSV files. Files are
// concatenated vertically by column-name union.
type CSV struct {
	opts Options
}

// NewCSV creates a CSV reader. The table name defaults to the stem of the
// first file.
func NewCSV(opts Options) (*CSV, error) {
	if err := requireFiles(KindCSV, opts); err != nil {
		return nil, err
	}
	if opts.TableName == "" {
		opts.TableName = stem(opts.Filenames[0])
	}
	return &CSV{opts: opts}, nil
}

// Name returns the reader kind.
func (r *CSV) Name() string { return KindCSV }

// Read parses every file into one table.
func (r *CSV) Read(ctx context.Context) (*abstraction.Abstraction, error) {
	table, err := readCSVTable(ctx, tableName(r.opts.Prefix, r.opts.TableName), r.opts)
	if err != nil {
		return nil, err
	}
	frag := abstraction.New()
	if err := frag.AddTable(table); err != nil {
		return nil, err
	}
	return frag, nil
}

func readCSVTable(ctx context.Context, name string, opts Options) (*abstraction.Table, error) {
	table := abstraction.NewTable(name)
	var firstHeader []string

	for _, path := range opts.Filenames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		part, header, err := parseCSVFile(path, name)
		if err != nil {
			return nil, err
		}
		if firstHeader == nil {
			firstHeader = header
		} else if opts.Strict {
			_, err := schema.Plan(headerSchema(name, firstHeader), headerSchema(name, header), schema.PolicyStrict)
			if err != nil {
				return nil, dsierr.Wrapf(err, dsierr.KindType, "CSV header of %s differs from %s", path, opts.Filenames[0]).
					WithContext("expected", strings.Join(firstHeader, ",")).
					WithContext("got", strings.Join(header, ","))
			}
		}
		log.WithFields(log.Fields{
			"table": name,
			"file":  path,
			"rows":  part.NumRows(),
		}).Debug("csv file parsed")
		table.Append(part)
	}
	return table, nil
}

func parseCSVFile(path, name string) (*abstraction.Table, []string, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, nil, err
	}
	records, err := newRecordScanner(',').Scan(data)
	if err != nil {
		return nil, nil, dsierr.Wrapf(err, dsierr.KindType, "malformed CSV in %s", path)
	}
	if len(records) == 0 {
		return nil, nil, dsierr.Newf(dsierr.KindType, "CSV file %s has no header", path)
	}

	header := records[0]
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			return nil, nil, dsierr.Newf(dsierr.KindType, "CSV file %s: column %d has an empty name", path, i+1)
		}
		if seen[h] {
			return nil, nil, dsierr.Newf(dsierr.KindType, "CSV file %s: duplicate column %q", path, h)
		}
		seen[h] = true
		header[i] = h
	}

	rows := records[1:]
	columns := make([][]abstraction.Value, len(header))
	for i := range columns {
		columns[i] = make([]abstraction.Value, len(rows))
	}
	for r, rec := range rows {
		if len(rec) > len(header) {
			return nil, nil, dsierr.Newf(dsierr.KindType, "CSV file %s: row %d has %d fields, header has %d",
				path, r+2, len(rec), len(header))
		}
		for c := range header {
			if c < len(rec) {
				columns[c][r] = abstraction.ParseValue(rec[c])
			}
		}
	}

	table, err := abstraction.NewTableFromColumns(name, header, columns)
	if err != nil {
		return nil, nil, err
	}
	return table, header, nil
}

// headerSchema compares headers by name only; every column is text.
func headerSchema(table string, header []string) *schema.Schema {
	s := &schema.Schema{Table: table, Columns: make([]schema.Column, len(header))}
	for i, h := range header {
		s.Columns[i] = schema.Column{Name: h, Type: schema.TypeText, Position: i}
	}
	return s
}

// Ensemble reads simulation ensembles from CSV: every input row is one run.
// With SimulationTable set it synthesizes a "simulation" table with one row
// per run and links the data table to it through sim_id.
type Ensemble struct {
	opts Options
}

// NewEnsemble creates an ensemble reader.
func NewEnsemble(opts Options) (*Ensemble, error) {
	if err := requireFiles(KindEnsemble, opts); err != nil {
		return nil, err
	}
	if opts.TableName == "" {
		opts.TableName = stem(opts.Filenames[0])
	}
	return &Ensemble{opts: opts}, nil
}

// Name returns the reader kind.
func (r *Ensemble) Name() string { return KindEnsemble }

// Read parses the ensemble.
func (r *Ensemble) Read(ctx context.Context) (*abstraction.Abstraction, error) {
	name := tableName(r.opts.Prefix, r.opts.TableName)
	table, err := readCSVTable(ctx, name, r.opts)
	if err != nil {
		return nil, err
	}

	frag := abstraction.New()
	if !r.opts.SimulationTable {
		if err := frag.AddTable(table); err != nil {
			return nil, err
		}
		return frag, nil
	}

	if table.HasColumn("sim_id") {
		return nil, dsierr.Newf(dsierr.KindType, "ensemble table %s already has a sim_id column", name)
	}
	simName := tableName(r.opts.Prefix, "simulation")
	ids := make([]abstraction.Value, table.NumRows())
	for i := range ids {
		ids[i] = abstraction.Int(int64(i + 1))
	}

	sim := abstraction.NewTable(simName)
	if err := sim.AddColumn("sim_id", ids); err != nil {
		return nil, err
	}
	if err := table.AddColumn("sim_id", ids); err != nil {
		return nil, err
	}
	if err := putTables(frag, []*abstraction.Table{sim, table}); err != nil {
		return nil, err
	}
	frag.Relations.Add(
		abstraction.ColumnRef{Table: simName, Column: "sim_id"},
		abstraction.ColumnRef{Table: name, Column: "sim_id"},
	)
	return frag, nil
}
