// Package tui renders DSI results for the terminal.
// Simple, streaming, no complex TUI - just clean tables and status lines.
package tui

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/schollz/progressbar/v3"

	"github.com/dsiflow/dsi/pkg/abstraction"
	dsierr "github.com/dsiflow/dsi/pkg/errors"
	"github.com/dsiflow/dsi/pkg/terminal"
)

// Colors (Swiss minimal)
var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	nullStyle    = lipgloss.NewStyle().Foreground(muted).Padding(0, 1)
)

func grid(headers []string, rows [][]string, nulls func(row, col int) bool) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case nulls != nil && nulls(row, col):
				return nullStyle
			default:
				return cellStyle
			}
		})
	return t.Render()
}

// RenderTable draws a table with its name as title. Nulls print as NULL.
func RenderTable(t *abstraction.Table) string {
	rows := make([][]string, t.NumRows())
	for r := range rows {
		values := t.Row(r)
		cells := make([]string, len(values))
		for c, v := range values {
			if v.IsNull() {
				cells[c] = "NULL"
			} else {
				cells[c] = v.String()
			}
		}
		rows[r] = cells
	}
	nulls := func(row, col int) bool {
		if row < 0 || row >= t.NumRows() || col >= t.NumColumns() {
			return false
		}
		return t.ColumnAt(col)[row].IsNull()
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(t.Name))
	b.WriteString(mutedStyle.Render(fmt.Sprintf("  %d rows", t.NumRows())))
	b.WriteString("\n")
	b.WriteString(grid(t.Columns(), rows, nulls))
	b.WriteString("\n")
	return b.String()
}

// RenderList draws the output of Terminal.List.
func RenderList(infos []terminal.TableInfo) string {
	if len(infos) == 0 {
		return mutedStyle.Render("no tables") + "\n"
	}
	rows := make([][]string, len(infos))
	for i, info := range infos {
		rows[i] = []string{info.Name, strconv.Itoa(info.Rows), strconv.Itoa(info.Columns)}
	}
	return grid([]string{"table", "rows", "columns"}, rows, nil) + "\n"
}

// RenderSummary draws the output of Terminal.Summary, one grid per table.
func RenderSummary(summaries []terminal.TableSummary) string {
	var b strings.Builder
	for _, s := range summaries {
		b.WriteString(titleStyle.Render(s.Name))
		b.WriteString(mutedStyle.Render(fmt.Sprintf("  %d rows", s.Rows)))
		b.WriteString("\n")
		rows := make([][]string, len(s.Columns))
		for i, c := range s.Columns {
			rows[i] = []string{c.Name, c.Type.String(), c.Unit, formatStat(c.Min), formatStat(c.Max), formatStat(c.Mean), strconv.Itoa(c.Nulls)}
		}
		b.WriteString(grid([]string{"column", "type", "unit", "min", "max", "mean", "nulls"}, rows, nil))
		b.WriteString("\n\n")
	}
	return b.String()
}

func formatStat(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'g', 6, 64)
}

// RenderError formats an error as "kind: message".
func RenderError(err error) string {
	return accentStyle.Render("✗ "+string(dsierr.KindOf(err))) + " " + err.Error()
}

// RenderSuccess formats a confirmation line.
func RenderSuccess(msg string) string {
	return successStyle.Render("✓") + " " + msg
}

// Muted formats secondary text.
func Muted(msg string) string {
	return mutedStyle.Render(msg)
}

// Prompt reads one line after printing prompt. io.EOF ends the session.
func Prompt(r *bufio.Reader, w io.Writer, prompt string) (string, error) {
	fmt.Fprint(w, accentStyle.Render(prompt))
	line, err := r.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// ShowProgress creates a progress bar for reader completion.
func ShowProgress(w io.Writer, total int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(false),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

// ProgressFunc adapts a progress bar to terminal.ProgressFunc.
func ProgressFunc(bar *progressbar.ProgressBar) terminal.ProgressFunc {
	return func(done, total int) {
		bar.ChangeMax(total)
		_ = bar.Set(done)
	}
}

// FormatDuration formats a duration in a human-readable way.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
