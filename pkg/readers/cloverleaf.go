package readers

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dsiflow/dsi/pkg/abstraction"
	dsierr "github.com/dsiflow/dsi/pkg/errors"
)

// Cloverleaf output files inside one run directory.
const (
	cloverInput     = "clover.in"
	cloverOutput    = "clover.out"
	cloverTimestamp = "timestamp.txt"
)

var cloverSummary = []string{
	"volume", "mass", "density", "pressure", "internal_energy", "kinetic_energy", "total_energy",
}

// Cloverleaf reads Cloverleaf ensembles. Each input is a folder whose
// subdirectories are runs; runs are numbered sim_id 1..n in name order and
// parsed in parallel. It produces the tables input, output, simulation and
// viz_files, all keyed by sim_id.
type Cloverleaf struct {
	opts Options
}

// NewCloverleaf creates a Cloverleaf reader.
func NewCloverleaf(opts Options) (*Cloverleaf, error) {
	if err := requireFiles(KindCloverleaf, opts); err != nil {
		return nil, err
	}
	return &Cloverleaf{opts: opts}, nil
}

// Name returns the reader kind.
func (r *Cloverleaf) Name() string { return KindCloverleaf }

type cloverRun struct {
	input     *abstraction.Table
	output    *abstraction.Table
	timestamp string
	vizFiles  []string
}

// Read walks every ensemble folder.
func (r *Cloverleaf) Read(ctx context.Context) (*abstraction.Abstraction, error) {
	var dirs []string
	for _, root := range r.opts.Filenames {
		entries, err := os.ReadDir(root)
		if err != nil {
			return nil, dsierr.FileNotFound(root, err)
		}
		var names []string
		for _, e := range entries {
			if e.IsDir() {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)
		for _, n := range names {
			dirs = append(dirs, filepath.Join(root, n))
		}
	}
	if len(dirs) == 0 {
		return nil, dsierr.Newf(dsierr.KindIO, "no run directories under %s", strings.Join(r.opts.Filenames, ", "))
	}

	runs := make([]*cloverRun, len(dirs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, dir := range dirs {
		i, dir := i, dir
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			run, err := parseCloverRun(dir, int64(i+1))
			if err != nil {
				return err
			}
			runs[i] = run
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	name := func(t string) string { return tableName(r.opts.Prefix, t) }
	input := abstraction.NewTable(name("input"))
	output := abstraction.NewTable(name("output"))
	sim := abstraction.NewTable(name("simulation"))
	viz := abstraction.NewTable(name("viz_files"))

	for i, run := range runs {
		id := abstraction.Int(int64(i + 1))
		input.Append(run.input)
		output.Append(run.output)
		ts := abstraction.Text(run.timestamp)
		if run.timestamp == "" {
			ts = abstraction.Null()
		}
		if err := sim.AppendRow([]string{"sim_id", "sim_datetime"}, []abstraction.Value{id, ts}); err != nil {
			return nil, err
		}
		for _, f := range run.vizFiles {
			if err := viz.AppendRow([]string{"sim_id", "file_name"}, []abstraction.Value{id, abstraction.Text(f)}); err != nil {
				return nil, err
			}
		}
	}

	frag := abstraction.New()
	tables := []*abstraction.Table{sim, input, output}
	if viz.NumRows() > 0 {
		tables = append(tables, viz)
	}
	if err := putTables(frag, tables); err != nil {
		return nil, err
	}
	pk := abstraction.ColumnRef{Table: sim.Name, Column: "sim_id"}
	frag.Relations.AddPrimaryKey(pk)
	for _, t := range tables[1:] {
		frag.Relations.Add(pk, abstraction.ColumnRef{Table: t.Name, Column: "sim_id"})
	}

	log.WithFields(log.Fields{"runs": len(runs), "output_rows": output.NumRows()}).Debug("cloverleaf ensemble parsed")
	return frag, nil
}

func parseCloverRun(dir string, simID int64) (*cloverRun, error) {
	run := &cloverRun{}

	data, err := readFile(filepath.Join(dir, cloverInput))
	if err != nil {
		return nil, err
	}
	cols, vals, err := parseCloverInput(data)
	if err != nil {
		return nil, dsierr.Wrapf(err, dsierr.KindType, "%s", filepath.Join(dir, cloverInput))
	}
	run.input = abstraction.NewTable("input")
	if err := run.input.AppendRow(append([]string{"sim_id"}, cols...),
		append([]abstraction.Value{abstraction.Int(simID)}, vals...)); err != nil {
		return nil, err
	}

	data, err = readFile(filepath.Join(dir, cloverOutput))
	if err != nil {
		return nil, err
	}
	run.output = parseCloverOutput(data, simID)

	if ts, err := os.ReadFile(filepath.Join(dir, cloverTimestamp)); err == nil {
		run.timestamp = strings.TrimSpace(string(ts))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, dsierr.FileNotFound(dir, err)
	}
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".vtk") {
			run.vizFiles = append(run.vizFiles, filepath.Join(dir, e.Name()))
		}
	}
	return run, nil
}

// parseCloverInput reads the *clover ... *endclover block. "key=value" and
// "key value" give one column each, "state N k=v ..." gives state_N_k
// columns, and a bare word is a flag stored as 1.
func parseCloverInput(data []byte) ([]string, []abstraction.Value, error) {
	var cols []string
	var vals []abstraction.Value
	seen := make(map[string]int)
	set := func(k string, v abstraction.Value) {
		if i, ok := seen[k]; ok {
			vals[i] = v
			return
		}
		seen[k] = len(cols)
		cols = append(cols, k)
		vals = append(vals, v)
	}

	inBlock := false
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if i := strings.Index(line, "!"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		switch {
		case line == "":
			continue
		case strings.EqualFold(line, "*clover"):
			inBlock = true
			continue
		case strings.EqualFold(line, "*endclover"):
			inBlock = false
			continue
		case !inBlock:
			continue
		}

		fields := strings.Fields(line)
		if strings.EqualFold(fields[0], "state") && len(fields) > 1 {
			n := fields[1]
			for _, kv := range fields[2:] {
				k, v, ok := strings.Cut(kv, "=")
				if !ok {
					return nil, nil, dsierr.Newf(dsierr.KindType, "state %s: malformed %q", n, kv)
				}
				set("state_"+n+"_"+k, abstraction.ParseValue(v))
			}
			continue
		}
		for j := 0; j < len(fields); j++ {
			if k, v, ok := strings.Cut(fields[j], "="); ok {
				set(k, abstraction.ParseValue(v))
				continue
			}
			if j+1 < len(fields) && !strings.Contains(fields[j+1], "=") {
				set(fields[j], abstraction.ParseValue(fields[j+1]))
				j++
				continue
			}
			set(fields[j], abstraction.Int(1))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, nil, err
	}
	if len(cols) == 0 {
		return nil, nil, dsierr.New(dsierr.KindType, "no *clover block found")
	}
	return cols, vals, nil
}

// parseCloverOutput collects the field summaries: "step:" lines with a step
// number followed by volume, mass, density, pressure, internal, kinetic and
// total energy.
func parseCloverOutput(data []byte, simID int64) *abstraction.Table {
	t := abstraction.NewTable("output")
	names := append([]string{"sim_id", "step"}, cloverSummary...)

	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2+len(cloverSummary) || fields[0] != "step:" {
			continue
		}
		step := abstraction.ParseValue(fields[1])
		if step.Kind() != abstraction.KindInteger {
			continue
		}
		vals := []abstraction.Value{abstraction.Int(simID), step}
		ok := true
		for _, f := range fields[2 : 2+len(cloverSummary)] {
			v := abstraction.ParseValue(f)
			if !v.IsNumeric() {
				ok = false
				break
			}
			vals = append(vals, abstraction.Float(v.Float64()))
		}
		if ok {
			_ = t.AppendRow(names, vals)
		}
	}
	return t
}
