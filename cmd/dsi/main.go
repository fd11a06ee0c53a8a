// DSI - Data Science Interface
// Loads scientific metadata into a queryable SQL store and renders it back out.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dsiflow/dsi/pkg/backend"
	"github.com/dsiflow/dsi/pkg/config"
	"github.com/dsiflow/dsi/pkg/telemetry"
	"github.com/dsiflow/dsi/pkg/terminal"
	"github.com/dsiflow/dsi/pkg/tui"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// app is the state shared by every command of one process, including all
// lines of an interactive shell.
type app struct {
	term     *terminal.Terminal
	cfg      *config.Config
	shutdown func(context.Context) error
	inShell  bool

	// Global flags
	verbose    bool
	configPath string
	database   string
	engine     string
	runTable   bool
	backup     bool
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a := &app{}
	root := newRootCmd(a)
	err := root.ExecuteContext(ctx)
	a.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, tui.RenderError(err))
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "dsi",
		Short: "DSI - query and render scientific metadata",
		Long: `DSI reads metadata from CSV, YAML, TOML, JSON, data cards and simulation
directories, stores it in SQLite or DuckDB, and lets you query, find,
update and render it.

Examples:
  dsi load YAML1 student_test1.yml student_test2.yml
  dsi query "SELECT * FROM math"
  dsi find "a (1,2)"
  dsi save ER_Diagram er.png`,
		Version:           fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	flags := root.PersistentFlags()
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	flags.StringVar(&a.configPath, "config", "", "Read configuration from this file only")
	flags.StringVarP(&a.database, "database", "d", "", "Store file (default from config, dsi.db)")
	flags.StringVar(&a.engine, "engine", "", "Store engine: sqlite or duckdb")
	flags.BoolVar(&a.runTable, "run-table", false, "Record each ingest in runTable")
	flags.BoolVar(&a.backup, "backup", false, "Copy the store before ingest and update")

	root.AddCommand(
		newLoadCmd(a),
		newQueryCmd(a),
		newDisplayCmd(a),
		newFindCmd(a),
		newUpdateCmd(a),
		newSummaryCmd(a),
		newListCmd(a),
		newSaveCmd(a),
		newShellCmd(a),
	)
	return root
}

// setup resolves configuration and opens the store once per process.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	if a.term != nil {
		if a.verbose {
			log.SetLevel(log.DebugLevel)
		}
		return nil
	}

	mgr := config.Global()
	if a.configPath != "" {
		mgr = config.NewManagerWithPaths(a.configPath)
		if err := mgr.Load(); err != nil {
			return err
		}
	}
	a.cfg = mgr.Get()
	a.applyFlags(cmd)

	level, err := log.ParseLevel(a.cfg.Log.Level)
	if err != nil {
		level = log.WarnLevel
	}
	if a.verbose {
		level = log.DebugLevel
	}
	log.SetLevel(level)
	log.SetOutput(cmd.ErrOrStderr())

	otlp := telemetry.DefaultOTLPConfig(a.cfg.Telemetry.ServiceName)
	otlp.Endpoint = a.cfg.Telemetry.Endpoint
	otlp.ServiceVersion = version
	otlp.SamplingRatio = a.cfg.Telemetry.SamplingRatio
	a.shutdown, err = telemetry.Setup(cmd.Context(), config.Bool(a.cfg.Telemetry.Enabled), otlp)
	if err != nil {
		log.WithError(err).Warn("tracing disabled")
	}

	bar := tui.ShowProgress(cmd.ErrOrStderr(), 1, "reading")
	a.term = terminal.New(terminal.WithProgress(tui.ProgressFunc(bar)))
	return a.term.LoadBackend(backend.Options{
		Engine:   a.cfg.Backend.Engine,
		Path:     a.cfg.Backend.Path,
		RunTable: config.Bool(a.cfg.Backend.RunTable),
		Backup:   config.Bool(a.cfg.Backend.Backup),
		Portable: config.Bool(a.cfg.Find.Portable),
	})
}

// applyFlags lets explicitly set flags override the configuration.
func (a *app) applyFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("database") {
		a.cfg.Backend.Path = a.database
		if !flags.Changed("engine") {
			// Let the file extension pick the engine.
			a.cfg.Backend.Engine = ""
		}
	}
	if flags.Changed("engine") {
		a.cfg.Backend.Engine = a.engine
	}
	if flags.Changed("run-table") {
		a.cfg.Backend.RunTable = &a.runTable
	}
	if flags.Changed("backup") {
		a.cfg.Backend.Backup = &a.backup
	}
}

func (a *app) close() {
	if a.term != nil {
		if err := a.term.Close(); err != nil {
			log.WithError(err).Warn("closing store")
		}
		a.term = nil
	}
	if a.shutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.shutdown(ctx); err != nil {
			log.WithError(err).Warn("flushing traces")
		}
		a.shutdown = nil
	}
}
