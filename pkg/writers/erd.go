package writers

import (
	"bytes"
	"context"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"

	log "github.com/sirupsen/logrus"

	"github.com/dsiflow/dsi/pkg/abstraction"
	dsierr "github.com/dsiflow/dsi/pkg/errors"
)

// ERDiagram draws the tables and their key relations. Each table is a box
// with one row per column; each relation is an edge from the primary-key
// row to the foreign-key row. A .dot or .gv filename gets the graph
// description itself; any other extension is rendered by Graphviz dot from
// an intermediate <stem>.dot written next to it.
type ERDiagram struct {
	opts Options
}

// Name implements Writer.
func (w *ERDiagram) Name() string { return KindERDiagram }

type erdTable struct {
	ID      string
	Name    string
	Columns []erdColumn
}

type erdColumn struct {
	Port string
	Name string
	Key  bool
}

type erdEdge struct {
	From, FromPort string
	To, ToPort     string
}

var erdTemplate = template.Must(template.New("erd").Parse(`digraph dsi {
  graph [rankdir=LR];
  node [shape=plaintext];
{{range .Tables}}  {{.ID}} [label=<<TABLE BORDER="0" CELLBORDER="1" CELLSPACING="0">
    <TR><TD BGCOLOR="lightgrey"><B>{{html .Name}}</B></TD></TR>
{{range .Columns}}    <TR><TD PORT="{{.Port}}" ALIGN="LEFT">{{if .Key}}<U>{{html .Name}}</U>{{else}}{{html .Name}}{{end}}</TD></TR>
{{end}}  </TABLE>>];
{{end}}{{range .Edges}}  {{.From}}:{{.FromPort}} -> {{.To}}:{{.ToPort}};
{{end}}}
`))

// DOT returns the graph description of a.
func DOT(a *abstraction.Abstraction) ([]byte, error) {
	var tables []*erdTable
	byName := make(map[string]*erdTable)
	add := func(name string) *erdTable {
		if t, ok := byName[name]; ok {
			return t
		}
		t := &erdTable{ID: "t" + strconv.Itoa(len(tables)), Name: name}
		tables = append(tables, t)
		byName[name] = t
		return t
	}
	port := func(ref abstraction.ColumnRef) string {
		t := add(ref.Table)
		for _, c := range t.Columns {
			if c.Name == ref.Column {
				return c.Port
			}
		}
		c := erdColumn{Port: "c" + strconv.Itoa(len(t.Columns)), Name: ref.Column}
		t.Columns = append(t.Columns, c)
		return c.Port
	}

	for _, t := range a.Tables() {
		et := add(t.Name)
		keys := a.Relations.PrimaryKeys(t.Name)
		for i, c := range t.Columns() {
			et.Columns = append(et.Columns, erdColumn{Port: "c" + strconv.Itoa(i), Name: c, Key: contains(keys, c)})
		}
	}

	var edges []erdEdge
	for _, r := range a.Relations.Entries() {
		from := port(r.PrimaryKey)
		pt := byName[r.PrimaryKey.Table]
		for i := range pt.Columns {
			if pt.Columns[i].Port == from {
				pt.Columns[i].Key = true
			}
		}
		if r.ForeignKey.IsZero() {
			continue
		}
		to := port(r.ForeignKey)
		edges = append(edges, erdEdge{
			From: pt.ID, FromPort: from,
			To: byName[r.ForeignKey.Table].ID, ToPort: to,
		})
	}

	var buf bytes.Buffer
	err := erdTemplate.Execute(&buf, struct {
		Tables []*erdTable
		Edges  []erdEdge
	}{tables, edges})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write implements Writer.
func (w *ERDiagram) Write(ctx context.Context, a *abstraction.Abstraction) error {
	dot, err := DOT(a)
	if err != nil {
		return dsierr.Wrap(err, dsierr.KindValue, "cannot build diagram")
	}

	out := w.opts.Filename
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(out), "."))
	if ext == "dot" || ext == "gv" {
		return writeFile(out, dot)
	}
	if ext == "" {
		return dsierr.New(dsierr.KindValue, "diagram filename needs an extension naming the image format").
			WithContext("path", out)
	}

	intermediate := strings.TrimSuffix(out, filepath.Ext(out)) + ".dot"
	if err := writeFile(intermediate, dot); err != nil {
		return err
	}
	bin, err := exec.LookPath("dot")
	if err != nil {
		return dsierr.Wrap(err, dsierr.KindIO, "graphviz dot is not installed; the graph description was written instead").
			WithContext("path", intermediate)
	}
	cmd := exec.CommandContext(ctx, bin, "-T"+ext, "-o", out, intermediate)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return dsierr.Wrap(err, dsierr.KindIO, "dot failed: "+strings.TrimSpace(stderr.String())).
			WithContext("path", out)
	}
	log.WithFields(log.Fields{"path": out, "tables": len(a.TableNames())}).Debug("diagram rendered")
	return nil
}

func writeFile(path string, data []byte) error {
	f, commit, abort, err := createAtomic(path)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		abort()
		return dsierr.Wrap(err, dsierr.KindIO, "cannot write output").WithContext("path", path)
	}
	if err := f.Close(); err != nil {
		abort()
		return dsierr.Wrap(err, dsierr.KindIO, "cannot write output").WithContext("path", path)
	}
	return commit()
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
