package format

import (
	"bytes"
	"strings"
	"testing"

	"github.com/greg-hellings/patchinspect/pkg/patch"
)

// helper to build sample entries
func sampleEntries() []patch.Entry {
	return []patch.Entry{
		{Name: "MATA010.PRW", Type: "PTM", BuildType: "INTERNAL", Date: "2023-01-01 10:00:00", Size: "1024"},
		{Name: "FINA050.PRW", Type: "PTM", BuildType: "PARTNER", Date: "2023-01-02 11:30:00", Size: "2048"},
	}
}

func TestConsoleFormatterBasicRender(t *testing.T) {
	var buf bytes.Buffer
	f := NewConsoleFormatter()
	f.EnableColors = false // deterministic output for assertions

	if err := f.Render(sampleEntries(), &buf); err != nil {
		t.Fatalf("Render returned error: %v", err)
	}

	out := buf.String()

	expectContains(t, out, "NAME", "name header missing")
	expectContains(t, out, "BUILD", "build header missing")
	expectContains(t, out, "MATA010.PRW", "first entry missing")
	expectContains(t, out, "FINA050.PRW", "second entry missing")
	expectContains(t, out, "2048", "size missing")
	expectContains(t, out, "Items: 2", "summary count mismatch")

	if strings.Contains(out, "\x1b[") {
		t.Errorf("unexpected ANSI color sequences found when colors disabled")
	}
}

func TestConsoleFormatterColorsEnabledHighlightsInternalBuild(t *testing.T) {
	var buf bytes.Buffer
	f := NewConsoleFormatter()
	f.EnableColors = true

	if err := f.Render(sampleEntries(), &buf); err != nil {
		t.Fatalf("Render returned error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "\x1b[") {
		t.Errorf("expected ANSI color sequences but none found")
	}
	if !strings.Contains(stripANSI(out), "INTERNAL") {
		t.Errorf("expected INTERNAL build marker in output (stripANSI)")
	}
}

func TestConsoleFormatterTruncatesLongNames(t *testing.T) {
	var buf bytes.Buffer
	f := NewConsoleFormatter()
	f.EnableColors = false
	f.MaxNameColWidth = 12

	entries := []patch.Entry{{Name: strings.Repeat("X", 40), Type: "PTM", BuildType: "INTERNAL", Date: "d", Size: "1"}}
	if err := f.Render(entries, &buf); err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, strings.Repeat("X", 40)) {
		t.Errorf("expected long name to be truncated\n%s", out)
	}
	expectContains(t, out, "…", "ellipsis missing")
}

func TestConsoleFormatterTitle(t *testing.T) {
	var buf bytes.Buffer
	f := NewConsoleFormatter()
	f.EnableColors = false
	f.Title = "Patch Infos"
	if err := f.Render(sampleEntries(), &buf); err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	expectContains(t, buf.String(), "Patch Infos", "title missing")
}

func TestConsoleFormatterNilEntries(t *testing.T) {
	var buf bytes.Buffer
	f := NewConsoleFormatter()
	if err := f.Render(nil, &buf); err == nil {
		t.Fatalf("expected error rendering nil entries, got nil")
	}
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly", 7, "exactly"},
		{"toolongvalue", 5, "tool…"},
		{"x", 0, ""},
	}
	for _, tt := range tests {
		if got := truncateRunes(tt.in, tt.max); got != tt.want {
			t.Errorf("truncateRunes(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func expectContains(t *testing.T, s, substr, msg string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Fatalf("%s: expected to contain %q\nFull output:\n%s", msg, substr, s)
	}
}

// stripANSI removes ANSI escape sequences for simplified checks.
func stripANSI(s string) string {
	var b strings.Builder
	inEsc := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == 0x1b {
			inEsc = true
			continue
		}
		if inEsc {
			if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') {
				inEsc = false
			}
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}
