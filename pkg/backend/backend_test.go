package backend

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/dsiflow/dsi/internal/fixtures"
	"github.com/dsiflow/dsi/pkg/abstraction"
	dsierr "github.com/dsiflow/dsi/pkg/errors"
	"github.com/dsiflow/dsi/pkg/readers"
)

func openStore(t *testing.T, opts Options) *Backend {
	t.Helper()
	if opts.Path == "" {
		opts.Path = filepath.Join(t.TempDir(), "dsi.db")
	}
	b, err := Open(opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

// load runs the readers in order and merges their fragments.
func load(t *testing.T, steps ...func(t *testing.T) *abstraction.Abstraction) *abstraction.Abstraction {
	t.Helper()
	a := abstraction.New()
	for _, step := range steps {
		if err := a.Merge(step(t)); err != nil {
			t.Fatalf("merge: %v", err)
		}
	}
	return a
}

func reader(kind string, names ...string) func(t *testing.T) *abstraction.Abstraction {
	return func(t *testing.T) *abstraction.Abstraction {
		t.Helper()
		r, err := readers.New(kind, readers.Options{Filenames: fixtures.Paths(t, names...)})
		if err != nil {
			t.Fatalf("readers.New(%s): %v", kind, err)
		}
		frag, err := r.Read(context.Background())
		if err != nil {
			t.Fatalf("%s.Read: %v", kind, err)
		}
		return frag
	}
}

func ingest(t *testing.T, b *Backend, a *abstraction.Abstraction) {
	t.Helper()
	if err := b.Ingest(context.Background(), a); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
}

func query(t *testing.T, b *Backend, stmt string) *Result {
	t.Helper()
	res, err := b.Query(context.Background(), stmt)
	if err != nil {
		t.Fatalf("Query(%q): %v", stmt, err)
	}
	return res
}

func column(res *Result, i int) []abstraction.Value {
	out := make([]abstraction.Value, len(res.Rows))
	for r, row := range res.Rows {
		out[r] = row[i]
	}
	return out
}

func studentStore(t *testing.T) *Backend {
	t.Helper()
	b := openStore(t, Options{})
	ingest(t, b, load(t, reader(readers.KindYAML, "student_test1.yml", "student_test2.yml")))
	return b
}

func TestScenario_CSV(t *testing.T) {
	b := openStore(t, Options{})
	ingest(t, b, load(t, reader(readers.KindCSV, "wildfire.csv")))

	tables, err := b.ListTables(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(tables, []string{"wildfire"}) {
		t.Fatalf("tables = %v", tables)
	}
	res := query(t, b, "SELECT COUNT(*) FROM wildfire")
	if len(res.Rows) != 1 || res.Rows[0][0].Int64() != 2 {
		t.Errorf("COUNT(*) = %v", res.Rows)
	}
	if res.Table != "wildfire" {
		t.Errorf("single-table result names %q", res.Table)
	}
}

func TestScenario_TwoYAML(t *testing.T) {
	b := studentStore(t)

	tables, _ := b.ListTables(context.Background())
	if !reflect.DeepEqual(tables, []string{"math", "address", "physics"}) {
		t.Fatalf("tables = %v", tables)
	}
	a := column(query(t, b, "SELECT a FROM math"), 0)
	if len(a) != 2 || a[0].Int64() != 1 || a[1].Int64() != 2 {
		t.Errorf("math.a = %v, want [1 2]", a)
	}
	n := column(query(t, b, "SELECT n FROM physics"), 0)
	if len(n) != 2 || n[0].Float64() != 9.8 || n[1].Float64() != 91.8 {
		t.Errorf("physics.n = %v, want [9.8 91.8]", n)
	}
}

func TestScenario_UnitConflict(t *testing.T) {
	b := openStore(t, Options{})
	ingest(t, b, load(t, reader(readers.KindYAML, "student_test1.yml")))

	err := b.Ingest(context.Background(), load(t, reader(readers.KindYAML, "student_conflict.yml")))
	if !dsierr.IsKind(err, dsierr.KindUnitConflict) {
		t.Fatalf("expected UnitConflict, got %v", err)
	}
	res := query(t, b, "SELECT specification FROM physics")
	if len(res.Rows) != 1 || res.Rows[0][0].Str() != "!amy" {
		t.Errorf("physics after failed ingest = %v", res.Rows)
	}
	a, err := b.Process(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if unit, _ := a.Units.Get("physics", "n"); unit != "m/s" {
		t.Errorf("unit of physics.n = %q", unit)
	}
}

func TestScenario_FindRange(t *testing.T) {
	b := studentStore(t)
	ctx := context.Background()

	tests := []struct {
		expr string
		rows int
	}{
		{"a (1,2)", 2},
		{"a=3", 0},
		{"a>2", 0},
		{"a>=2", 1},
		{"e < 30", 1},
		{"g ~ 'memories'", 2},
		{"nosuchcolumn = 1", 0},
	}
	for _, tt := range tests {
		got, err := b.Find(ctx, tt.expr, FindOptions{})
		if err != nil {
			t.Errorf("Find(%q): %v", tt.expr, err)
			continue
		}
		if rows := Union(got).NumRows(); rows != tt.rows {
			t.Errorf("Find(%q) returned %d rows, want %d", tt.expr, rows, tt.rows)
		}
	}
}

func TestFind_Provenance(t *testing.T) {
	b := studentStore(t)
	got, err := b.Find(context.Background(), "a (1,2)", FindOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Name != "math" {
		t.Fatalf("find tables = %v", got)
	}
	cols := got[0].Columns()
	if cols[len(cols)-2] != abstraction.TableNameColumn || cols[len(cols)-1] != abstraction.RowIndexColumn {
		t.Errorf("columns = %v", cols)
	}
	idx, _ := got[0].Column(abstraction.RowIndexColumn)
	if idx[0].Int64() != 1 || idx[1].Int64() != 2 {
		t.Errorf("row index = %v", idx)
	}
	name, _ := got[0].Get(abstraction.TableNameColumn, 1)
	if name.Str() != "math" {
		t.Errorf("table name = %v", name)
	}
}

func TestFind_Ambiguous(t *testing.T) {
	b := studentStore(t)
	ctx := context.Background()

	_, err := b.Find(ctx, "specification = '!amy'", FindOptions{})
	var e *dsierr.Error
	if !dsierr.As(err, &e) || e.Kind != dsierr.KindValue {
		t.Fatalf("expected ValueError, got %v", err)
	}
	statements, _ := e.Context["statements"].([]string)
	if len(statements) != 3 {
		t.Errorf("candidate statements = %v", e.Context["statements"])
	}

	got, err := b.Find(ctx, "specification = '!amy'", FindOptions{Tables: []string{"math", "physics"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("narrowed find returned %d tables", len(got))
	}
	if u := Union(got); u.NumRows() != 2 || !u.HasColumn("a") || !u.HasColumn("n") {
		t.Errorf("union = %s %v", u, u.Columns())
	}
}

func TestFind_Malformed(t *testing.T) {
	b := studentStore(t)
	for _, expr := range []string{"", "a", "a = = 1", "a (2,1)"} {
		if _, err := b.Find(context.Background(), expr, FindOptions{}); !dsierr.IsKind(err, dsierr.KindValue) {
			t.Errorf("Find(%q) = %v, want ValueError", expr, err)
		}
	}
}

func TestScenario_Schema(t *testing.T) {
	b := openStore(t, Options{})
	ingest(t, b, load(t,
		reader(readers.KindSchema, "example_schema.json"),
		reader(readers.KindYAML, "student_test1.yml"),
	))

	a, err := b.Process(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n := len(a.Relations.DistinctPrimaryKeys()); n != 3 {
		t.Errorf("distinct primary keys = %d, want 3 (%v)", n, a.Relations.Entries())
	}
	fks := a.Relations.ForeignKeys("physics")
	want := abstraction.ColumnRef{Table: "math", Column: "specification"}
	if len(fks) != 1 || fks[0].PrimaryKey != want {
		t.Errorf("physics foreign keys = %v", fks)
	}

	// Re-ingesting keyed rows upserts instead of duplicating.
	ingest(t, b, load(t,
		reader(readers.KindSchema, "example_schema.json"),
		reader(readers.KindYAML, "student_test1.yml"),
	))
	res := query(t, b, "SELECT COUNT(*) FROM math")
	if res.Rows[0][0].Int64() != 1 {
		t.Errorf("math rows after re-ingest = %v, want 1", res.Rows[0][0])
	}
}

func TestScenario_UpdateViaFind(t *testing.T) {
	b := studentStore(t)
	ctx := context.Background()

	q, err := b.Find(ctx, "a>1", FindOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(q) != 1 {
		t.Fatalf("find returned %d tables", len(q))
	}
	if err := q[0].Fill("f", abstraction.Int(123)); err != nil {
		t.Fatal(err)
	}
	if err := b.Update(ctx, q); err != nil {
		t.Fatalf("Update: %v", err)
	}

	f := column(query(t, b, "SELECT f FROM math WHERE a>1"), 0)
	if len(f) == 0 {
		t.Fatal("no rows")
	}
	for _, v := range f {
		if v.Float64() != 123 {
			t.Errorf("f = %v, want 123", v)
		}
	}
	untouched := column(query(t, b, "SELECT f FROM math WHERE a=1"), 0)
	if untouched[0].Float64() != 89.0e-4 {
		t.Errorf("row outside the find changed: %v", untouched)
	}
}

func TestUpdate_Rules(t *testing.T) {
	b := studentStore(t)
	ctx := context.Background()

	q, err := b.Find(ctx, "a=1", FindOptions{})
	if err != nil {
		t.Fatal(err)
	}

	dropped := q[0].Clone()
	dropped.DropColumn("c")
	if err := b.Update(ctx, []*abstraction.Table{dropped}); !dsierr.IsKind(err, dsierr.KindValue) {
		t.Errorf("dropping a stored column: got %v, want ValueError", err)
	}

	noIndex := q[0].Clone()
	noIndex.DropColumn(abstraction.RowIndexColumn)
	if err := b.Update(ctx, []*abstraction.Table{noIndex}); !dsierr.IsKind(err, dsierr.KindValue) {
		t.Errorf("missing row index: got %v, want ValueError", err)
	}

	// New columns are added and a text edit widens an integer column.
	edited := q[0].Clone()
	if err := edited.Fill("note", abstraction.Text("checked")); err != nil {
		t.Fatal(err)
	}
	if err := edited.Fill("d", abstraction.Text("two")); err != nil {
		t.Fatal(err)
	}
	if err := b.Update(ctx, []*abstraction.Table{edited}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	res := query(t, b, "SELECT note, d FROM math ORDER BY rowid")
	if res.Rows[0][0].Str() != "checked" || !res.Rows[1][0].IsNull() {
		t.Errorf("note = %v", column(res, 0))
	}
	if res.Rows[0][1].Str() != "two" || res.Rows[1][1].Int64() != 4 {
		t.Errorf("d = %v", column(res, 1))
	}
}

func keyedStore(t *testing.T) *Backend {
	t.Helper()
	b := openStore(t, Options{})
	a := abstraction.New()
	items, _ := abstraction.NewTableFromColumns("items",
		[]string{"id", "name"},
		[][]abstraction.Value{
			{abstraction.Int(1), abstraction.Int(2)},
			{abstraction.Text("x"), abstraction.Text("y")},
		})
	if err := a.Put(items); err != nil {
		t.Fatal(err)
	}
	a.Relations.AddPrimaryKey(abstraction.ColumnRef{Table: "items", Column: "id"})
	ingest(t, b, a)
	return b
}

func warnings(hook *logtest.Hook) int {
	n := 0
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			n++
		}
	}
	return n
}

func TestUpdate_PrimaryKeyWarning(t *testing.T) {
	tests := []struct {
		name   string
		expr   string
		column string
		value  abstraction.Value
		warns  int
	}{
		{"key edited", "id=1", "id", abstraction.Int(10), 1},
		{"key rewritten unchanged", "id=1", "id", abstraction.Int(1), 0},
		{"other column edited", "id=2", "name", abstraction.Text("z"), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := keyedStore(t)
			ctx := context.Background()
			q, err := b.Find(ctx, tt.expr, FindOptions{})
			if err != nil {
				t.Fatal(err)
			}
			if err := q[0].Fill(tt.column, tt.value); err != nil {
				t.Fatal(err)
			}

			hook := logtest.NewGlobal()
			defer hook.Reset()
			if err := b.Update(ctx, q); err != nil {
				t.Fatalf("Update: %v", err)
			}
			if got := warnings(hook); got != tt.warns {
				t.Errorf("warnings = %d, want %d (%v)", got, tt.warns, hook.AllEntries())
			}
			res := query(t, b, "SELECT "+tt.column+" FROM items ORDER BY rowid")
			if len(res.Rows) != 2 {
				t.Fatalf("items rows = %d", len(res.Rows))
			}
		})
	}
}

func TestUpdate_RollsBackAllTables(t *testing.T) {
	b := studentStore(t)
	ctx := context.Background()

	math, err := b.Find(ctx, "a=1", FindOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if err := math[0].Fill("f", abstraction.Int(123)); err != nil {
		t.Fatal(err)
	}
	if err := math[0].Fill("note", abstraction.Text("checked")); err != nil {
		t.Fatal(err)
	}
	address, err := b.Find(ctx, "g ~ 'good'", FindOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if err := address[0].Set(abstraction.RowIndexColumn, 0, abstraction.Int(99)); err != nil {
		t.Fatal(err)
	}

	if err := b.Update(ctx, append(math, address...)); !dsierr.IsKind(err, dsierr.KindValue) {
		t.Fatalf("out-of-range row: got %v, want ValueError", err)
	}
	f := column(query(t, b, "SELECT f FROM math WHERE a=1"), 0)
	if f[0].Float64() != 89.0e-4 {
		t.Errorf("math.f = %v after a failed update", f)
	}
	s, err := b.Describe(ctx, "math")
	if err != nil {
		t.Fatal(err)
	}
	if s.Index("note") >= 0 {
		t.Errorf("failed update added a column: %v", s.Names())
	}
}

func TestUpdate_UnionKeepsTablesApart(t *testing.T) {
	b := openStore(t, Options{})
	ctx := context.Background()
	a := abstraction.New()
	t1, _ := abstraction.NewTableFromColumns("t1", []string{"a", "x"},
		[][]abstraction.Value{{abstraction.Int(1)}, {abstraction.Text("one")}})
	t2, _ := abstraction.NewTableFromColumns("t2", []string{"a", "y"},
		[][]abstraction.Value{{abstraction.Int(2)}, {abstraction.Float(2.5)}})
	for _, tbl := range []*abstraction.Table{t1, t2} {
		if err := a.Put(tbl); err != nil {
			t.Fatal(err)
		}
	}
	ingest(t, b, a)

	found, err := b.Find(ctx, "a>0", FindOptions{Tables: []string{"t1", "t2"}})
	if err != nil {
		t.Fatal(err)
	}
	union := Union(found)
	if err := union.Fill("note", abstraction.Text("seen")); err != nil {
		t.Fatal(err)
	}
	if err := b.Update(ctx, []*abstraction.Table{union}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	want := map[string][]string{
		"t1": {"a", "x", "note"},
		"t2": {"a", "y", "note"},
	}
	for table, cols := range want {
		s, err := b.Describe(ctx, table)
		if err != nil {
			t.Fatal(err)
		}
		if got := s.Names(); !reflect.DeepEqual(got, cols) {
			t.Errorf("%s columns = %v, want %v", table, got, cols)
		}
	}
	res := query(t, b, "SELECT x, note FROM t1")
	if res.Rows[0][0].Str() != "one" || res.Rows[0][1].Str() != "seen" {
		t.Errorf("t1 row = %v", res.Rows[0])
	}
}

func TestQuery_ReadOnly(t *testing.T) {
	b := studentStore(t)
	ctx := context.Background()

	rejected := []string{
		"",
		"DELETE FROM math",
		"DROP TABLE math",
		"INSERT INTO math (a) VALUES (3)",
		"SELECT 1; DROP TABLE math",
		"PRAGMA foreign_keys = OFF",
		"WITH x AS (SELECT 1) DELETE FROM math",
		"SELECT 'unterminated",
	}
	for _, stmt := range rejected {
		if _, err := b.Query(ctx, stmt); !dsierr.IsKind(err, dsierr.KindValue) {
			t.Errorf("Query(%q) = %v, want ValueError", stmt, err)
		}
	}

	accepted := []string{
		"SELECT * FROM math",
		"select a from math where b = 'DROP TABLE math';",
		"-- comment\nSELECT 1",
		"PRAGMA table_info(math)",
		"WITH x AS (SELECT a FROM math) SELECT * FROM x",
	}
	for _, stmt := range accepted {
		if _, err := b.Query(ctx, stmt); err != nil {
			t.Errorf("Query(%q): %v", stmt, err)
		}
	}

	if _, err := b.Query(ctx, "SELECT * FROM nosuchtable"); !dsierr.IsKind(err, dsierr.KindDialect) {
		t.Errorf("engine error = %v, want DialectError", err)
	}
	res := query(t, b, "SELECT COUNT(*) FROM math")
	if res.Rows[0][0].Int64() != 2 {
		t.Errorf("rejected statements changed the store: %v", res.Rows)
	}
}

func TestSingleTable(t *testing.T) {
	tests := []struct {
		stmt string
		want string
	}{
		{"SELECT * FROM math", "math"},
		{`SELECT a FROM "my table" WHERE a > 1`, "my table"},
		{"SELECT * FROM math m WHERE m.a > 1", "math"},
		{"SELECT * FROM math, physics", ""},
		{"SELECT * FROM math JOIN physics USING (specification)", ""},
		{"SELECT * FROM (SELECT * FROM math)", ""},
		{"SELECT 1", ""},
		{"PRAGMA table_info(math)", ""},
		{"SELECT a FROM math WHERE a IN (SELECT d FROM math)", "math"},
	}
	for _, tt := range tests {
		toks, err := lex(tt.stmt)
		if err != nil {
			t.Fatalf("lex(%q): %v", tt.stmt, err)
		}
		if got := singleTable(toks); got != tt.want {
			t.Errorf("singleTable(%q) = %q, want %q", tt.stmt, got, tt.want)
		}
	}
}

func TestIngest_RoundTrip(t *testing.T) {
	b := openStore(t, Options{})
	in := load(t, reader(readers.KindCSV, "wildfire.csv"))
	ingest(t, b, in.Clone())

	out, err := b.Process(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want, _ := in.Table("wildfire")
	got, ok := out.Table("wildfire")
	if !ok || !got.Equal(want) {
		t.Errorf("round trip changed wildfire:\n got %v\nwant %v", got, want)
	}
	if out.Runs != nil {
		t.Error("runs hydrated without a run table")
	}
}

func TestIngest_ColumnEvolution(t *testing.T) {
	b := openStore(t, Options{})
	ingest(t, b, load(t, reader(readers.KindYAML, "student_test1.yml")))
	ingest(t, b, load(t, reader(readers.KindYAML, "student_test2.yml")))

	s, err := b.Describe(context.Background(), "physics")
	if err != nil {
		t.Fatal(err)
	}
	if s.Index("r") < 0 || s.Index("m") < 0 {
		t.Errorf("physics columns = %v", s.Names())
	}
	res := query(t, b, "SELECT r FROM physics ORDER BY rowid")
	if len(res.Rows) != 2 || !res.Rows[0][0].IsNull() || res.Rows[1][0].Str() != "extra" {
		t.Errorf("physics.r = %v", column(res, 0))
	}
}

func TestIngest_DuplicateKey(t *testing.T) {
	b := openStore(t, Options{})
	a := abstraction.New()
	tbl, _ := abstraction.NewTableFromColumns("items",
		[]string{"id", "name"},
		[][]abstraction.Value{
			{abstraction.Int(1), abstraction.Int(1)},
			{abstraction.Text("x"), abstraction.Text("y")},
		})
	if err := a.Put(tbl); err != nil {
		t.Fatal(err)
	}
	a.Relations.AddPrimaryKey(abstraction.ColumnRef{Table: "items", Column: "id"})

	if err := b.Ingest(context.Background(), a); !dsierr.IsKind(err, dsierr.KindConstraint) {
		t.Fatalf("expected ConstraintViolation, got %v", err)
	}
	tables, _ := b.ListTables(context.Background())
	if len(tables) != 0 {
		t.Errorf("failed ingest left tables %v", tables)
	}
}

func TestIngest_ForeignKeyViolation(t *testing.T) {
	b := openStore(t, Options{})
	a := abstraction.New()
	parent, _ := abstraction.NewTableFromColumns("parent", []string{"id"},
		[][]abstraction.Value{{abstraction.Int(1)}})
	child, _ := abstraction.NewTableFromColumns("child", []string{"pid"},
		[][]abstraction.Value{{abstraction.Int(2)}})
	_ = a.Put(child)
	_ = a.Put(parent)
	a.Relations.Add(
		abstraction.ColumnRef{Table: "parent", Column: "id"},
		abstraction.ColumnRef{Table: "child", Column: "pid"},
	)

	if err := b.Ingest(context.Background(), a); !dsierr.IsKind(err, dsierr.KindConstraint) {
		t.Fatalf("expected ConstraintViolation, got %v", err)
	}
}

func TestIngest_RunTable(t *testing.T) {
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	b := openStore(t, Options{
		RunTable: true,
		Now: func() time.Time {
			clock = clock.Add(time.Minute)
			return clock
		},
	})
	ingest(t, b, load(t, reader(readers.KindCSV, "wildfire.csv")))
	ingest(t, b, load(t, reader(readers.KindCSV, "wildfire.csv")))

	a, err := b.Process(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if a.Runs == nil || a.Runs.NumRows() != 2 {
		t.Fatalf("runs = %v", a.Runs)
	}
	if ts, _ := a.Runs.Get(abstraction.RunTimeColumn, 0); ts.Str() != "2024-05-01T12:01:00Z" {
		t.Errorf("first run timestamp = %v", ts)
	}
	wf, _ := a.Table("wildfire")
	ids, ok := wf.Column(abstraction.RunIDColumn)
	if !ok || len(ids) != 4 {
		t.Fatalf("run_id column = %v", ids)
	}
	if ids[0].Int64() != 1 || ids[3].Int64() != 2 {
		t.Errorf("run ids = %v", ids)
	}
	if a.Relations.Len() != 0 {
		t.Errorf("run links leaked into relations: %v", a.Relations.Entries())
	}
	if names := a.TableNames(); !reflect.DeepEqual(names, []string{"wildfire"}) {
		t.Errorf("user tables = %v", names)
	}
}

func TestBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	b := openStore(t, Options{Path: path, Backup: true})
	ingest(t, b, load(t, reader(readers.KindCSV, "wildfire.csv")))
	ingest(t, b, load(t, reader(readers.KindCSV, "wildfire.csv")))

	if got := BackupPath(path); got != filepath.Join(filepath.Dir(path), "store_backup.db") {
		t.Fatalf("BackupPath = %s", got)
	}
	snap := openStore(t, Options{Path: BackupPath(path)})
	res := query(t, snap, "SELECT COUNT(*) FROM wildfire")
	if res.Rows[0][0].Int64() != 2 {
		t.Errorf("backup holds %v rows, want the 2 rows before the last ingest", res.Rows[0][0])
	}
}

func TestOpen_UnknownEngine(t *testing.T) {
	if _, err := Open(Options{Engine: "oracle"}); !dsierr.IsKind(err, dsierr.KindValue) {
		t.Errorf("Open(oracle) = %v, want ValueError", err)
	}
}

func TestInsertStatement(t *testing.T) {
	tests := []struct {
		columns, pks []string
		want         string
	}{
		{[]string{"a", "b"}, nil, `INSERT INTO "t" ("a", "b") VALUES (?, ?)`},
		{[]string{"id", "b"}, []string{"id"},
			`INSERT INTO "t" ("id", "b") VALUES (?, ?) ON CONFLICT ("id") DO UPDATE SET "b" = excluded."b"`},
		{[]string{"id"}, []string{"id"}, `INSERT INTO "t" ("id") VALUES (?) ON CONFLICT ("id") DO NOTHING`},
	}
	for _, tt := range tests {
		if got := insertStatement("t", tt.columns, tt.pks); got != tt.want {
			t.Errorf("insertStatement(%v, %v) =\n %s\nwant\n %s", tt.columns, tt.pks, got, tt.want)
		}
	}
}
