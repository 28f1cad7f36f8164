// Package format renders patch metadata: a terminal-friendly table for
// interactive use and the fixed-width text report used for exports.
package format

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/greg-hellings/patchinspect/pkg/patch"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/term"
)

// ConsoleFormatter renders patch entries in a terminal table that attempts to
// adapt the name column to the current console width.
type ConsoleFormatter struct {
	// MaxNameColWidth constrains the name column. If 0, a dynamic width is
	// chosen based on terminal width.
	MaxNameColWidth int

	// EnableColors toggles ANSI color output for the build type column.
	EnableColors bool

	// Title is printed above the table when not empty.
	Title string
}

// NewConsoleFormatter creates a formatter with sensible defaults.
func NewConsoleFormatter() *ConsoleFormatter {
	return &ConsoleFormatter{
		MaxNameColWidth: 0,
		EnableColors:    true,
	}
}

// Render writes entries as a table followed by a short summary.
func (f *ConsoleFormatter) Render(entries []patch.Entry, writer io.Writer) error {
	if entries == nil {
		return fmt.Errorf("nil entries")
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(writer)
	tw.SetStyle(table.StyleRounded)
	tw.Style().Options.SeparateRows = false
	tw.Style().Options.SeparateColumns = false
	tw.Style().Options.DrawBorder = true
	if f.Title != "" {
		tw.SetTitle(f.Title)
	}

	tw.AppendHeader(table.Row{"Name", "Type", "Build", "Date", "Size"})
	tw.SetColumnConfigs(f.buildColumnConfig(entries, writer))

	for _, e := range entries {
		tw.AppendRow(table.Row{e.Name, e.Type, f.buildCell(e.BuildType), e.Date, e.Size})
	}

	tw.Render()

	if _, err := fmt.Fprintln(writer); err != nil {
		return fmt.Errorf("failed writing summary spacer newline: %w", err)
	}
	if _, err := fmt.Fprintf(writer, "Items: %d\n", len(entries)); err != nil {
		return fmt.Errorf("failed writing summary line: %w", err)
	}
	return nil
}

func (f *ConsoleFormatter) buildCell(build string) string {
	if strings.EqualFold(build, "INTERNAL") {
		return f.color(build, text.FgYellow)
	}
	return build
}

// buildColumnConfig sizes the name column to fit the terminal and
// right-aligns the size column.
func (f *ConsoleFormatter) buildColumnConfig(entries []patch.Entry, w io.Writer) []table.ColumnConfig {
	configs := []table.ColumnConfig{
		{Number: 5, Align: text.AlignRight, AlignHeader: text.AlignRight},
	}

	nameWidth := f.MaxNameColWidth
	if nameWidth <= 0 {
		termWidth := detectTerminalWidth(w)
		if termWidth <= 0 {
			return configs
		}
		if termWidth < 60 {
			termWidth = 60
		}
		// type, build, date and size columns plus borders
		nameWidth = dynamicNameWidth(entries, termWidth-(TypeWidth+BuildWidth+DateWidth+SizeWidth)-6)
	}

	configs = append(configs, table.ColumnConfig{
		Number:      1,
		WidthMax:    nameWidth,
		WidthMin:    minInt(10, nameWidth),
		Transformer: truncTransformer(nameWidth),
	})
	return configs
}

// dynamicNameWidth returns the longest observed name, capped by available.
func dynamicNameWidth(entries []patch.Entry, available int) int {
	if available < 15 {
		available = 15
	}
	maxLen := 0
	for _, e := range entries {
		if l := utf8.RuneCountInString(e.Name); l > maxLen {
			maxLen = l
		}
	}
	if maxLen > available || maxLen == 0 {
		return available
	}
	return maxLen
}

// detectTerminalWidth attempts to get terminal width if writer is a file (stdout/stderr).
func detectTerminalWidth(w io.Writer) int {
	if f, ok := w.(*os.File); ok {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil {
			return width
		}
	}
	return -1
}

// truncTransformer returns a text.Transformer to ellipsize overly wide cells.
func truncTransformer(max int) text.Transformer {
	return func(val interface{}) string {
		s := fmt.Sprint(val)
		if runeLen := utf8.RuneCountInString(s); runeLen > max {
			if max <= 1 {
				return "…"
			}
			return truncateRunes(s, max)
		}
		return s
	}
}

// truncateRunes truncates a string to (max) runes with ellipsis.
func truncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	var b strings.Builder
	count := 0
	for _, r := range s {
		if count >= max-1 {
			break
		}
		b.WriteRune(r)
		count++
	}
	b.WriteRune('…')
	return b.String()
}

func (f *ConsoleFormatter) color(s string, c text.Color) string {
	if !f.EnableColors {
		return s
	}
	return text.Colors{c}.Sprint(s)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// RenderConsole renders entries to the writer using the default console formatter.
func RenderConsole(entries []patch.Entry, w io.Writer) error {
	return NewConsoleFormatter().Render(entries, w)
}
