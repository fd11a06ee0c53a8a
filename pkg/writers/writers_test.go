package writers

import (
	"context"
	"encoding/csv"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/dsiflow/dsi/pkg/abstraction"
	dsierr "github.com/dsiflow/dsi/pkg/errors"
)

func sample(t *testing.T) *abstraction.Abstraction {
	t.Helper()
	a := abstraction.New()

	math, err := abstraction.NewTableFromColumns("math", []string{"specification", "a", "b", "c"}, [][]abstraction.Value{
		{abstraction.Text("!jack"), abstraction.Text("!jill")},
		{abstraction.Int(1), abstraction.Int(2)},
		{abstraction.Text("there is a <tag>"), abstraction.Null()},
		{abstraction.Float(45.98), abstraction.Float(3.5)},
	})
	if err != nil {
		t.Fatal(err)
	}
	address, err := abstraction.NewTableFromColumns("address", []string{"specification", "i"}, [][]abstraction.Value{
		{abstraction.Text("!jack"), abstraction.Text("!jill")},
		{abstraction.Int(2), abstraction.Int(3)},
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, tbl := range []*abstraction.Table{math, address} {
		if err := a.AddTable(tbl); err != nil {
			t.Fatal(err)
		}
	}
	a.Relations.AddPrimaryKey(abstraction.ColumnRef{Table: "math", Column: "specification"})
	a.Relations.Add(
		abstraction.ColumnRef{Table: "math", Column: "specification"},
		abstraction.ColumnRef{Table: "address", Column: "specification"},
	)
	if err := a.Units.Set("math", "c", "cm"); err != nil {
		t.Fatal(err)
	}
	return a
}

func write(t *testing.T, kind string, opts Options, a *abstraction.Abstraction) error {
	t.Helper()
	w, err := New(kind, opts)
	if err != nil {
		t.Fatalf("New(%s): %v", kind, err)
	}
	if w.Name() != kind {
		t.Errorf("Name() = %s, want %s", w.Name(), kind)
	}
	return w.Write(context.Background(), a)
}

func TestRegistry(t *testing.T) {
	want := []string{KindCSV, KindERDiagram, KindParquet, KindTablePlot}
	if got := DefaultRegistry.Kinds(); !reflect.DeepEqual(got, want) {
		t.Errorf("Kinds() = %v, want %v", got, want)
	}
	if _, err := New("er_diagram", Options{Filename: "x.dot"}); err != nil {
		t.Errorf("lookup is case-sensitive: %v", err)
	}
	if _, err := New("Bogus", Options{Filename: "x"}); !dsierr.IsKind(err, dsierr.KindValue) {
		t.Errorf("unknown writer = %v, want ValueError", err)
	}
	if _, err := New(KindCSV, Options{}); !dsierr.IsKind(err, dsierr.KindValue) {
		t.Errorf("missing filename = %v, want ValueError", err)
	}
}

func TestParseCompression(t *testing.T) {
	tests := []struct {
		in   string
		want CompressionType
	}{
		{"snappy", CompressionSnappy},
		{"GZIP", CompressionGzip},
		{"zstd", CompressionZstd},
		{"", CompressionNone},
		{"brotli", CompressionNone},
	}
	for _, tt := range tests {
		if got := ParseCompression(tt.in); got != tt.want {
			t.Errorf("ParseCompression(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDOT(t *testing.T) {
	dot, err := DOT(sample(t))
	if err != nil {
		t.Fatal(err)
	}
	s := string(dot)
	for _, want := range []string{
		"digraph dsi {",
		"<B>math</B>",
		"<B>address</B>",
		`<TD PORT="c0" ALIGN="LEFT"><U>specification</U></TD>`,
		"t0:c0 -> t1:c0;",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("diagram lacks %q:\n%s", want, s)
		}
	}
	if strings.Count(s, "->") != 1 {
		t.Errorf("want exactly one edge:\n%s", s)
	}
}

func TestERDiagram_DotFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "er.dot")
	if err := write(t, KindERDiagram, Options{Filename: out}, sample(t)); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "digraph") {
		t.Errorf("unexpected output: %s", data)
	}
}

func TestERDiagram_Rendered(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "er.png")
	err := write(t, KindERDiagram, Options{Filename: out}, sample(t))

	if _, lookErr := exec.LookPath("dot"); lookErr != nil {
		if !dsierr.IsKind(err, dsierr.KindIO) {
			t.Errorf("without graphviz err = %v, want IOError", err)
		}
		if _, statErr := os.Stat(filepath.Join(dir, "er.dot")); statErr != nil {
			t.Errorf("graph description not kept: %v", statErr)
		}
		t.Skip("graphviz dot not installed")
	}
	if err != nil {
		t.Fatal(err)
	}
	if fi, err := os.Stat(out); err != nil || fi.Size() == 0 {
		t.Errorf("rendered diagram missing: %v", err)
	}
}

func TestTablePlot(t *testing.T) {
	out := filepath.Join(t.TempDir(), "math.png")
	if err := write(t, KindTablePlot, Options{Filename: out, Table: "math"}, sample(t)); err != nil {
		t.Fatal(err)
	}
	fi, err := os.Stat(out)
	if err != nil {
		t.Fatal(err)
	}
	if fi.Size() == 0 {
		t.Error("empty plot")
	}
}

func TestTablePlot_Errors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		opts Options
	}{
		{"no numeric columns", Options{Filename: filepath.Join(dir, "a.png"), Table: "math", Columns: []string{"specification"}}},
		{"unknown format", Options{Filename: filepath.Join(dir, "a.bmp"), Table: "math"}},
		{"ambiguous table", Options{Filename: filepath.Join(dir, "a.png")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := write(t, KindTablePlot, tt.opts, sample(t))
			if !dsierr.IsKind(err, dsierr.KindValue) {
				t.Errorf("err = %v, want ValueError", err)
			}
		})
	}
}

func TestXValues_RunTime(t *testing.T) {
	a := sample(t)
	runs, err := abstraction.NewTableFromColumns(abstraction.RunTable,
		[]string{abstraction.RunIDColumn, abstraction.RunTimeColumn},
		[][]abstraction.Value{
			{abstraction.Int(1), abstraction.Int(2)},
			{abstraction.Text("2024-05-01T12:00:00Z"), abstraction.Text("2024-05-01T12:01:00Z")},
		})
	if err != nil {
		t.Fatal(err)
	}
	a.Runs = runs
	math, _ := a.Table("math")
	if err := math.AddColumn(abstraction.RunIDColumn, []abstraction.Value{abstraction.Int(1), abstraction.Int(2)}); err != nil {
		t.Fatal(err)
	}

	xs, byTime := xValues(a, math)
	if !byTime {
		t.Fatal("run ids did not resolve")
	}
	if xs[1]-xs[0] != 60 {
		t.Errorf("xs = %v, want runs 60s apart", xs)
	}

	address, _ := a.Table("address")
	if xs, byTime := xValues(a, address); byTime || !reflect.DeepEqual(xs, []float64{1, 2}) {
		t.Errorf("address xs = %v (byTime %v)", xs, byTime)
	}
}

func TestCSV(t *testing.T) {
	out := filepath.Join(t.TempDir(), "math.csv")
	opts := Options{Filename: out, Table: "math", Columns: []string{"a", "b"}}
	if err := write(t, KindCSV, opts, sample(t)); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	want := [][]string{{"a", "b"}, {"1", "there is a <tag>"}, {"2", ""}}
	if !reflect.DeepEqual(records, want) {
		t.Errorf("records = %v, want %v", records, want)
	}
}

func TestCSV_MissingColumn(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "math.csv")
	err := write(t, KindCSV, Options{Filename: out, Table: "math", Columns: []string{"zz"}}, sample(t))
	if !dsierr.IsKind(err, dsierr.KindValue) {
		t.Errorf("err = %v, want ValueError", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("failed write left files behind: %v", entries)
	}
}

func TestParquet(t *testing.T) {
	out := filepath.Join(t.TempDir(), "math.parquet")
	opts := Options{Filename: out, Table: "math", Compression: CompressionSnappy}
	if err := write(t, KindParquet, opts, sample(t)); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	tbl, err := pqarrow.ReadTable(context.Background(), f, parquet.NewReaderProperties(nil),
		pqarrow.ArrowReadProperties{}, memory.NewGoAllocator())
	if err != nil {
		t.Fatal(err)
	}
	defer tbl.Release()

	if tbl.NumRows() != 2 || tbl.NumCols() != 4 {
		t.Fatalf("shape = %dx%d, want 2x4", tbl.NumRows(), tbl.NumCols())
	}
	wantTypes := []arrow.Type{arrow.STRING, arrow.INT64, arrow.STRING, arrow.FLOAT64}
	for i, want := range wantTypes {
		if got := tbl.Schema().Field(i).Type.ID(); got != want {
			t.Errorf("column %d type = %s, want %s", i, got, want)
		}
	}
	b := tbl.Column(2).Data().Chunk(0).(*array.String)
	if b.Value(0) != "there is a <tag>" || !b.IsNull(1) {
		t.Errorf("column b = %v", b)
	}
}

func TestArrowType(t *testing.T) {
	tests := []struct {
		name   string
		values []abstraction.Value
		want   arrow.Type
	}{
		{"ints", []abstraction.Value{abstraction.Int(1), abstraction.Null()}, arrow.INT64},
		{"mixed numbers", []abstraction.Value{abstraction.Int(1), abstraction.Float(2.5)}, arrow.FLOAT64},
		{"text wins", []abstraction.Value{abstraction.Float(1), abstraction.Text("x")}, arrow.STRING},
		{"all null", []abstraction.Value{abstraction.Null()}, arrow.STRING},
	}
	for _, tt := range tests {
		if got := arrowType(tt.values).ID(); got != tt.want {
			t.Errorf("%s: type = %s, want %s", tt.name, got, tt.want)
		}
	}
}
