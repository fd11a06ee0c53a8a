package terminal

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/dsiflow/dsi/internal/fixtures"
	"github.com/dsiflow/dsi/pkg/abstraction"
	"github.com/dsiflow/dsi/pkg/backend"
	dsierr "github.com/dsiflow/dsi/pkg/errors"
	"github.com/dsiflow/dsi/pkg/readers"
	"github.com/dsiflow/dsi/pkg/writers"
)

func newTerminal(t *testing.T, opts ...Option) *Terminal {
	t.Helper()
	term := New(opts...)
	if err := term.LoadBackend(backend.Options{Path: filepath.Join(t.TempDir(), "dsi.db")}); err != nil {
		t.Fatalf("LoadBackend: %v", err)
	}
	t.Cleanup(func() { term.Close() })
	return term
}

func mustLoad(t *testing.T, term *Terminal, kind string, names ...string) {
	t.Helper()
	if err := term.LoadReader(kind, readers.Options{Filenames: fixtures.Paths(t, names...)}); err != nil {
		t.Fatalf("LoadReader(%s): %v", kind, err)
	}
}

func mustTransload(t *testing.T, term *Terminal) {
	t.Helper()
	if err := term.Transload(context.Background()); err != nil {
		t.Fatalf("Transload: %v", err)
	}
}

func students(t *testing.T) *Terminal {
	t.Helper()
	term := newTerminal(t)
	mustLoad(t, term, readers.KindYAML, "student_test1.yml", "student_test2.yml")
	mustTransload(t, term)
	if err := term.Ingest(context.Background()); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	return term
}

func TestTransload_SchemaReaderRunsFirst(t *testing.T) {
	term := newTerminal(t)
	mustLoad(t, term, readers.KindYAML, "student_test1.yml")
	mustLoad(t, term, readers.KindSchema, "example_schema.json")
	if got := term.Pending(); !reflect.DeepEqual(got, []string{readers.KindYAML, readers.KindSchema}) {
		t.Fatalf("pending = %v", got)
	}
	mustTransload(t, term)

	if len(term.Pending()) != 0 {
		t.Errorf("queue not drained: %v", term.Pending())
	}
	a := term.Abstraction()
	if got := a.TableNames(); !reflect.DeepEqual(got, []string{"math", "address", "physics"}) {
		t.Errorf("tables = %v", got)
	}
	if n := len(a.Relations.DistinctPrimaryKeys()); n != 3 {
		t.Errorf("primary keys = %d, want 3", n)
	}

	ctx := context.Background()
	if err := term.Ingest(ctx); err != nil {
		t.Fatal(err)
	}
	if err := term.Process(ctx); err != nil {
		t.Fatal(err)
	}
	if fks := term.Abstraction().Relations.ForeignKeys("physics"); len(fks) != 1 {
		t.Errorf("physics foreign keys after round trip = %v", fks)
	}
}

func TestTransload_UnitConflictRollsBack(t *testing.T) {
	term := newTerminal(t)
	mustLoad(t, term, readers.KindCSV, "wildfire.csv")
	mustTransload(t, term)
	before := term.Abstraction().Clone()

	mustLoad(t, term, readers.KindYAML, "student_test1.yml")
	mustLoad(t, term, readers.KindYAML, "student_conflict.yml")
	err := term.Transload(context.Background())
	if !dsierr.IsKind(err, dsierr.KindUnitConflict) {
		t.Fatalf("err = %v, want UnitConflict", err)
	}
	after := term.Abstraction()
	if !reflect.DeepEqual(after.TableNames(), before.TableNames()) {
		t.Errorf("tables after rollback = %v, want %v", after.TableNames(), before.TableNames())
	}
	if after.Units.Len() != before.Units.Len() {
		t.Errorf("units changed by failed transload")
	}
	if len(term.Pending()) != 2 {
		t.Errorf("failed transload dropped the queue: %v", term.Pending())
	}
}

func TestTransload_ReaderError(t *testing.T) {
	term := New()
	mustLoad(t, term, readers.KindJSON, "nested.json")
	err := term.Transload(context.Background())
	if !dsierr.IsKind(err, dsierr.KindType) {
		t.Errorf("err = %v, want TypeError", err)
	}
	if !term.Abstraction().IsEmpty() {
		t.Error("failed reader left tables behind")
	}
}

func TestTransload_ReportsEveryReaderError(t *testing.T) {
	term := New()
	mustLoad(t, term, readers.KindJSON, "nested.json")
	missing := filepath.Join(t.TempDir(), "none.csv")
	if err := term.LoadReader(readers.KindCSV, readers.Options{Filenames: []string{missing}}); err != nil {
		t.Fatal(err)
	}
	mustLoad(t, term, readers.KindCSV, "wildfire.csv")

	err := term.Transload(context.Background())
	if err == nil {
		t.Fatal("failing readers accepted")
	}
	if !strings.Contains(err.Error(), "2 errors occurred") {
		t.Errorf("err = %v, want both reader failures", err)
	}
	if got := dsierr.KindOf(err); got != dsierr.KindType {
		t.Errorf("kind = %s, want the first failure's %s", got, dsierr.KindType)
	}
	if !term.Abstraction().IsEmpty() {
		t.Error("failed transload left tables behind")
	}
	if got := len(term.Pending()); got != 3 {
		t.Errorf("pending = %d, want 3", got)
	}
}

func TestDiscard(t *testing.T) {
	term := New()
	mustLoad(t, term, readers.KindYAML, "student_test1.yml")
	mustTransload(t, term)
	mustLoad(t, term, readers.KindCSV, "wildfire.csv")

	term.Discard()
	if len(term.Pending()) != 0 || !term.Abstraction().IsEmpty() {
		t.Errorf("after Discard: pending %v, tables %v", term.Pending(), term.Abstraction().TableNames())
	}
}

func TestTransload_Progress(t *testing.T) {
	var mu sync.Mutex
	var calls [][2]int
	term := New(WithParallelism(1), WithProgress(func(done, total int) {
		mu.Lock()
		calls = append(calls, [2]int{done, total})
		mu.Unlock()
	}))
	mustLoad(t, term, readers.KindCSV, "wildfire.csv")
	mustLoad(t, term, readers.KindYAML, "student_test1.yml")
	mustTransload(t, term)

	want := [][2]int{{1, 2}, {2, 2}}
	if !reflect.DeepEqual(calls, want) {
		t.Errorf("progress = %v, want %v", calls, want)
	}
}

func TestIngest(t *testing.T) {
	term := students(t)
	ctx := context.Background()

	if !term.Abstraction().IsEmpty() {
		t.Error("abstraction not emptied after ingest")
	}
	res, err := term.Query(ctx, "SELECT n FROM physics ORDER BY rowid")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Rows) != 2 || res.Rows[0][0].Float64() != 9.8 || res.Rows[1][0].Float64() != 91.8 {
		t.Errorf("physics.n = %v", res.Rows)
	}

	mustLoad(t, term, readers.KindYAML, "student_conflict.yml")
	mustTransload(t, term)
	err = term.Ingest(ctx)
	if !dsierr.IsKind(err, dsierr.KindUnitConflict) {
		t.Fatalf("err = %v, want UnitConflict", err)
	}
	if !term.Abstraction().HasTable("physics") {
		t.Error("failed ingest discarded the abstraction")
	}
	res, err = term.Query(ctx, "SELECT COUNT(*) FROM physics")
	if err != nil {
		t.Fatal(err)
	}
	if res.Rows[0][0].Int64() != 2 {
		t.Errorf("physics rows after failed ingest = %v", res.Rows[0][0])
	}
}

func TestNoBackend(t *testing.T) {
	term := New()
	ctx := context.Background()
	checks := map[string]error{
		"ingest":  term.Ingest(ctx),
		"process": term.Process(ctx),
		"update":  term.Update(ctx),
	}
	_, checks["query"] = term.Query(ctx, "SELECT 1")
	_, checks["find"] = term.Find(ctx, "a=1", backend.FindOptions{})
	for name, err := range checks {
		if !dsierr.IsKind(err, dsierr.KindValue) {
			t.Errorf("%s without backend = %v, want ValueError", name, err)
		}
	}
}

func TestFindUpdate(t *testing.T) {
	term := students(t)
	ctx := context.Background()

	q, err := term.FindCollection(ctx, "a>1", backend.FindOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if q.NumRows() != 1 {
		t.Fatalf("find a>1 = %d rows, want 1", q.NumRows())
	}
	if err := q.Fill("f", abstraction.Int(123)); err != nil {
		t.Fatal(err)
	}
	if err := term.Update(ctx, q); err != nil {
		t.Fatal(err)
	}
	res, err := term.Query(ctx, "SELECT f FROM math WHERE a>1")
	if err != nil {
		t.Fatal(err)
	}
	for _, row := range res.Rows {
		if row[0].Float64() != 123 {
			t.Errorf("f = %v, want 123", row[0])
		}
	}

	empty, err := term.Find(ctx, "a=3", backend.FindOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(empty) != 0 {
		t.Errorf("find a=3 = %v, want nothing", empty)
	}
}

func TestList(t *testing.T) {
	term := students(t)
	got, err := term.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []TableInfo{
		{Name: "math", Rows: 2, Columns: 7},
		{Name: "address", Rows: 2, Columns: 8},
		{Name: "physics", Rows: 2, Columns: 7},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("List = %+v, want %+v", got, want)
	}
}

func TestDisplay(t *testing.T) {
	term := students(t)
	ctx := context.Background()

	head, err := term.Display(ctx, "address", 1)
	if err != nil {
		t.Fatal(err)
	}
	if head.NumRows() != 1 {
		t.Errorf("rows = %d, want 1", head.NumRows())
	}
	if g, _ := head.Get("g", 0); g.String() != "good memories" {
		t.Errorf("g = %q", g)
	}
	if _, err := term.Display(ctx, "nope", 1); !dsierr.IsKind(err, dsierr.KindValue) {
		t.Errorf("unknown table = %v, want ValueError", err)
	}
}

func TestSummary(t *testing.T) {
	term := students(t)
	got, err := term.Summary(context.Background(), "physics")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Rows != 2 {
		t.Fatalf("summary = %+v", got)
	}
	cols := make(map[string]ColumnSummary)
	for _, c := range got[0].Columns {
		cols[c.Name] = c
	}

	n := cols["n"]
	if n.Unit != "m/s" || n.Min == nil || *n.Min != 9.8 || *n.Max != 91.8 {
		t.Errorf("n = %+v", n)
	}
	if p := cols["p"]; p.Mean == nil || *p.Mean != 4.5 {
		t.Errorf("p = %+v", p)
	}
	if r := cols["r"]; r.Nulls != 1 || r.Min != nil {
		t.Errorf("r = %+v", r)
	}
	if s := cols["specification"]; s.Type.String() != "text" || s.Mean != nil {
		t.Errorf("specification = %+v", s)
	}
}

func TestSummary_WithoutBackend(t *testing.T) {
	term := New()
	mustLoad(t, term, readers.KindCSV, "wildfire.csv")
	mustTransload(t, term)
	got, err := term.Summary(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Name != "wildfire" || len(got[0].Columns) != 11 {
		t.Errorf("summary = %+v", got)
	}
}

func TestSave(t *testing.T) {
	term := students(t)
	out := filepath.Join(t.TempDir(), "address.csv")
	err := term.Save(context.Background(), writers.KindCSV, writers.Options{
		Filename: out,
		Table:    "address",
		Columns:  []string{"specification", "i"},
	})
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(data), "specification,i\n!amy,2\n!sam,5\n"; got != want {
		t.Errorf("csv = %q, want %q", got, want)
	}

	if err := term.Save(context.Background(), "nope", writers.Options{Filename: out}); !dsierr.IsKind(err, dsierr.KindValue) {
		t.Errorf("unknown writer = %v, want ValueError", err)
	}
}
