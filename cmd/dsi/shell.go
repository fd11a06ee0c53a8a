package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dsiflow/dsi/pkg/tui"
)

func newShellCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Run commands interactively",
		Long: `Read commands line by line against one open store. Type "help" for the
command list and "exit" to leave.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.inShell {
				return nil
			}
			a.inShell = true
			defer func() { a.inShell = false }()
			return a.shell(cmd, bufio.NewReader(cmd.InOrStdin()))
		},
	}
}

func (a *app) shell(cmd *cobra.Command, in *bufio.Reader) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, tui.Muted("dsi "+version+", store "+a.term.Backend().Path()))
	for {
		if err := cmd.Context().Err(); err != nil {
			return nil
		}
		line, err := tui.Prompt(in, out, "dsi> ")
		if err == io.EOF {
			fmt.Fprintln(out)
			return nil
		}
		if err != nil {
			return err
		}
		args := shellArgs(line)
		if len(args) == 0 {
			continue
		}
		if args[0] == "exit" || args[0] == "quit" {
			return nil
		}

		root := newRootCmd(a)
		root.SetArgs(args)
		root.SetIn(in)
		root.SetOut(out)
		root.SetErr(cmd.ErrOrStderr())
		if err := root.ExecuteContext(cmd.Context()); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), tui.RenderError(err))
		}
	}
}

// shellArgs splits a shell line. Statements and find expressions are free
// text, so everything after query, find or update stays one argument up to
// the first flag.
func shellArgs(line string) []string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	switch fields[0] {
	case "query", "find", "update":
	default:
		return fields
	}

	rest := strings.TrimSpace(strings.TrimPrefix(line, fields[0]))
	var flags []string
	if i := strings.Index(rest, " --"); i >= 0 {
		flags = strings.Fields(rest[i:])
		rest = strings.TrimSpace(rest[:i])
	}
	if rest == "" {
		return append([]string{fields[0]}, flags...)
	}
	return append([]string{fields[0], rest}, flags...)
}
