package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dsiflow/dsi/pkg/abstraction"
	"github.com/dsiflow/dsi/pkg/backend"
	dsierr "github.com/dsiflow/dsi/pkg/errors"
	"github.com/dsiflow/dsi/pkg/readers"
	"github.com/dsiflow/dsi/pkg/tui"
	"github.com/dsiflow/dsi/pkg/writers"
)

func newLoadCmd(a *app) *cobra.Command {
	var opts readers.Options
	var schemaFile string
	cmd := &cobra.Command{
		Use:   "load <reader> <file>...",
		Short: "Read files and ingest them into the store",
		Long: `Run a reader over the given files and ingest the result.

Keys and relations are declared when a table is created, so give the schema
with --schema on the load that first creates its tables.

Readers: ` + strings.Join(readers.DefaultRegistry.Kinds(), ", ") + `

Examples:
  dsi load CSV wildfire.csv --table wildfire
  dsi load YAML1 student_test1.yml --schema example_schema.json
  dsi load YAML1 student_test1.yml student_test2.yml --prefix run1`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Filenames = args[1:]
			start := time.Now()
			tables, err := a.load(cmd, args[0], opts, schemaFile)
			if err != nil {
				a.term.Discard()
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tui.RenderSuccess(fmt.Sprintf("loaded %s %s",
				strings.Join(tables, ", "), tui.Muted("in "+tui.FormatDuration(time.Since(start))))))
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.TableName, "table", "", "Table name for single-table readers")
	cmd.Flags().StringVar(&opts.Prefix, "prefix", "", "Prefix every table name as <prefix>__<table>")
	cmd.Flags().StringVar(&schemaFile, "schema", "", "Schema file read before the data (keys and relations)")
	cmd.Flags().BoolVar(&opts.SimulationTable, "simulation", false, "Synthesize a simulation table (Ensemble)")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "Reject CSV files whose headers differ")
	return cmd
}

// load queues the schema and data readers, transloads and ingests. It
// returns the names of the ingested tables.
func (a *app) load(cmd *cobra.Command, kind string, opts readers.Options, schemaFile string) ([]string, error) {
	if schemaFile != "" {
		err := a.term.LoadReader(readers.KindSchema, readers.Options{Filenames: []string{schemaFile}, Prefix: opts.Prefix})
		if err != nil {
			return nil, err
		}
	}
	if err := a.term.LoadReader(kind, opts); err != nil {
		return nil, err
	}
	if err := a.term.Transload(cmd.Context()); err != nil {
		return nil, err
	}
	tables := a.term.Abstraction().TableNames()
	if err := a.term.Ingest(cmd.Context()); err != nil {
		return nil, err
	}
	return tables, nil
}

func newQueryCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "query <statement>",
		Short: "Run a read-only SQL statement",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.term.Query(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			t, err := res.AsTable()
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), tui.RenderTable(t.Head(limit)))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", -1, "Show at most n rows")
	return cmd
}

func newDisplayCmd(a *app) *cobra.Command {
	var rows int
	cmd := &cobra.Command{
		Use:   "display <table>",
		Short: "Show the first rows of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.term.Display(cmd.Context(), args[0], rows)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), tui.RenderTable(t))
			return nil
		},
	}
	cmd.Flags().IntVarP(&rows, "rows", "n", 10, "Number of rows, -1 for all")
	return cmd
}

func newFindCmd(a *app) *cobra.Command {
	var opts backend.FindOptions
	var collection bool
	cmd := &cobra.Command{
		Use:   "find <expression>",
		Short: "Find rows by a column condition",
		Long: `Find rows whose column satisfies one condition.

Operators: = == != < <= > >= ~ (contains) ~~ (contains, any case) (lo,hi) (range)

Examples:
  dsi find "a (1,2)"
  dsi find "g ~~ 'MEMORIES'"
  dsi find "specification = '!amy'" --table math`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			found, err := a.term.Find(cmd.Context(), strings.Join(args, " "), opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(found) == 0 {
				fmt.Fprintln(out, tui.Muted("no rows found"))
				return nil
			}
			if collection {
				fmt.Fprint(out, tui.RenderTable(backend.Union(found)))
				return nil
			}
			for _, t := range found {
				fmt.Fprint(out, tui.RenderTable(t))
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&opts.Tables, "table", "t", nil, "Search only these tables")
	cmd.Flags().BoolVar(&collection, "collection", false, "Merge the matches into one table")
	return cmd
}

func newUpdateCmd(a *app) *cobra.Command {
	var opts backend.FindOptions
	var sets []string
	cmd := &cobra.Command{
		Use:   "update <expression> --set column=value",
		Short: "Edit the rows a find expression selects",
		Long: `Find rows, assign the given values, and write them back in place.
New columns are added to the table.

Example:
  dsi update "a>1" --set f=123`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			assignments, err := parseAssignments(sets)
			if err != nil {
				return err
			}
			found, err := a.term.Find(cmd.Context(), strings.Join(args, " "), opts)
			if err != nil {
				return err
			}
			rows := 0
			for _, t := range found {
				for _, as := range assignments {
					if err := t.Fill(as.column, as.value); err != nil {
						return err
					}
				}
				rows += t.NumRows()
			}
			if rows == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), tui.Muted("no rows found"))
				return nil
			}
			if err := a.term.Update(cmd.Context(), found...); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tui.RenderSuccess(fmt.Sprintf("updated %d rows", rows)))
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&opts.Tables, "table", "t", nil, "Search only these tables")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "Assignment column=value (repeatable)")
	cmd.MarkFlagRequired("set")
	return cmd
}

type assignment struct {
	column string
	value  abstraction.Value
}

func parseAssignments(sets []string) ([]assignment, error) {
	out := make([]assignment, 0, len(sets))
	for _, s := range sets {
		column, raw, ok := strings.Cut(s, "=")
		column = strings.TrimSpace(column)
		if !ok || column == "" {
			return nil, dsierr.Newf(dsierr.KindValue, "assignment %q is not column=value", s)
		}
		if abstraction.IsProvenance(column) {
			return nil, dsierr.Newf(dsierr.KindValue, "column %s cannot be assigned", column)
		}
		out = append(out, assignment{column: column, value: abstraction.ParseValue(strings.TrimSpace(raw))})
	}
	return out, nil
}

func newSummaryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "summary [table]",
		Short: "Show per-column statistics",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table := ""
			if len(args) == 1 {
				table = args[0]
			}
			s, err := a.term.Summary(cmd.Context(), table)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), tui.RenderSummary(s))
			return nil
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the stored tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			infos, err := a.term.List(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), tui.RenderList(infos))
			return nil
		},
	}
}

func newSaveCmd(a *app) *cobra.Command {
	var opts writers.Options
	var compression string
	cmd := &cobra.Command{
		Use:   "save <writer> <file>",
		Short: "Render the store with a writer",
		Long: `Render the store to a file.

Writers: ` + strings.Join(writers.DefaultRegistry.Kinds(), ", ") + `

Examples:
  dsi save ER_Diagram schema.png
  dsi save Table_Plot physics.png --table physics
  dsi save Csv_Writer math.csv --table math --columns a,c
  dsi save Parquet math.parquet --table math --compression zstd`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Filename = args[1]
			opts.Compression = writers.ParseCompression(compression)
			if err := a.term.Save(cmd.Context(), args[0], opts); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tui.RenderSuccess("wrote "+opts.Filename))
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.Table, "table", "t", "", "Table to write")
	cmd.Flags().StringSliceVar(&opts.Columns, "columns", nil, "Columns to write")
	cmd.Flags().StringVar(&compression, "compression", "snappy", "Parquet compression (none, snappy, gzip, zstd)")
	return cmd
}
