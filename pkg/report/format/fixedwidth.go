package format

import (
	"fmt"
	"io"
	"runtime"
	"strings"
	"unicode/utf16"

	"github.com/greg-hellings/patchinspect/pkg/patch"
)

// Column widths of the exported report. The layout is an external contract:
// NAME, TYPE, BUILD and DATE are left-aligned, SIZE is right-aligned.
const (
	NameWidth  = 80
	TypeWidth  = 10
	BuildWidth = 15
	DateWidth  = 20
	SizeWidth  = 12
)

// NativeLineTerminator is the line terminator of the running platform.
var NativeLineTerminator = nativeEOL()

func nativeEOL() string {
	if runtime.GOOS == "windows" {
		return "\r\n"
	}
	return "\n"
}

// FixedWidthFormatter renders patch entries as a plain-text, fixed-column
// report. Values wider than their column are written in full, which breaks
// alignment for that row only.
type FixedWidthFormatter struct {
	// LineTerminator ends every line. Defaults to NativeLineTerminator.
	LineTerminator string
}

// NewFixedWidthFormatter creates a formatter using the platform line terminator.
func NewFixedWidthFormatter() *FixedWidthFormatter {
	return &FixedWidthFormatter{LineTerminator: NativeLineTerminator}
}

// Format returns the complete report for entries.
func (f *FixedWidthFormatter) Format(entries []patch.Entry) string {
	eol := f.LineTerminator
	if eol == "" {
		eol = NativeLineTerminator
	}

	var b strings.Builder
	b.WriteString(fixedLine("NAME", "TYPE", "BUILD", "DATE", "SIZE"))
	b.WriteString(eol)
	for _, e := range entries {
		b.WriteString(fixedLine(e.Name, e.Type, e.BuildType, e.Date, e.Size))
		b.WriteString(eol)
	}
	return b.String()
}

// Render writes the report for entries to writer.
func (f *FixedWidthFormatter) Render(entries []patch.Entry, writer io.Writer) error {
	if _, err := io.WriteString(writer, f.Format(entries)); err != nil {
		return fmt.Errorf("failed writing fixed-width report: %w", err)
	}
	return nil
}

// FormatFixedWidth renders entries with the platform line terminator.
func FormatFixedWidth(entries []patch.Entry) string {
	return NewFixedWidthFormatter().Format(entries)
}

func fixedLine(name, typ, build, date, size string) string {
	return padEnd(name, NameWidth) +
		padEnd(typ, TypeWidth) +
		padEnd(build, BuildWidth) +
		padEnd(date, DateWidth) +
		padStart(size, SizeWidth)
}

// padEnd appends spaces until s is width UTF-16 code units long. Longer
// values are kept.
func padEnd(s string, width int) string {
	if n := width - utf16Len(s); n > 0 {
		return s + strings.Repeat(" ", n)
	}
	return s
}

// padStart prepends spaces until s is width UTF-16 code units long. Longer
// values are kept.
func padStart(s string, width int) string {
	if n := width - utf16Len(s); n > 0 {
		return strings.Repeat(" ", n) + s
	}
	return s
}

// utf16Len returns the length of s in UTF-16 code units.
func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if l := utf16.RuneLen(r); l > 0 {
			n += l
		} else {
			n++
		}
	}
	return n
}
