package export

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/greg-hellings/patchinspect/pkg/patch"
	"github.com/greg-hellings/patchinspect/pkg/report/format"
)

type mockPicker struct {
	path   string
	ok     bool
	err    error
	calls  int
	offers []string
}

func (m *mockPicker) PickDestination(_ context.Context, suggested string) (string, bool, error) {
	m.calls++
	m.offers = append(m.offers, suggested)
	return m.path, m.ok, m.err
}

type mockWriter struct {
	writes map[string][]byte
	err    error
}

func (m *mockWriter) WriteFile(path string, data []byte) error {
	if m.err != nil {
		return m.err
	}
	if m.writes == nil {
		m.writes = map[string][]byte{}
	}
	m.writes[path] = data
	return nil
}

func entries() []patch.Entry {
	return []patch.Entry{{Name: "AP", Type: "PTM", BuildType: "INTERNAL", Date: "2023-01-01", Size: "1024"}}
}

func TestExportWithoutDatasetIsNoop(t *testing.T) {
	picker := &mockPicker{path: "/tmp/out.txt", ok: true}
	writer := &mockWriter{}
	c := NewController(patch.NewDataset(), picker, writer)

	res, err := c.Export(context.Background())
	if err != nil || res != nil {
		t.Fatalf("expected silent no-op, got %v, %v", res, err)
	}
	if picker.calls != 0 {
		t.Errorf("picker should not be consulted, got %d calls", picker.calls)
	}
	if len(writer.writes) != 0 {
		t.Errorf("no write expected, got %d", len(writer.writes))
	}
}

func TestExportWithEmptyDatasetIsNoop(t *testing.T) {
	ds := patch.NewDataset()
	ds.Replace("/p/a.ptm", nil)
	picker := &mockPicker{path: "/tmp/out.txt", ok: true}
	writer := &mockWriter{}

	res, err := NewController(ds, picker, writer).Export(context.Background())
	if err != nil || res != nil {
		t.Fatalf("expected silent no-op, got %v, %v", res, err)
	}
	if picker.calls != 0 || len(writer.writes) != 0 {
		t.Errorf("nothing should happen for an empty dataset")
	}
}

func TestExportCancelledIsNoop(t *testing.T) {
	ds := patch.NewDataset()
	ds.Replace("/p/a.ptm", entries())
	picker := &mockPicker{ok: false}
	writer := &mockWriter{}

	res, err := NewController(ds, picker, writer).Export(context.Background())
	if err != nil || res != nil {
		t.Fatalf("expected silent cancel, got %v, %v", res, err)
	}
	if picker.calls != 1 {
		t.Errorf("expected one prompt, got %d", picker.calls)
	}
	if len(writer.writes) != 0 {
		t.Errorf("no write expected after cancel")
	}
}

func TestExportWritesFixedWidthReport(t *testing.T) {
	ds := patch.NewDataset()
	ds.Replace("/p/bundle.ptm", entries())
	picker := &mockPicker{path: "/tmp/out.txt", ok: true}
	writer := &mockWriter{}
	c := NewController(ds, picker, writer).WithFormatter(&format.FixedWidthFormatter{LineTerminator: "\n"})

	res, err := c.Export(context.Background())
	if err != nil {
		t.Fatalf("Export returned error: %v", err)
	}
	if res == nil || res.Path != "/tmp/out.txt" || res.Entries != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	got := string(writer.writes["/tmp/out.txt"])
	want := (&format.FixedWidthFormatter{LineTerminator: "\n"}).Format(entries())
	if got != want {
		t.Errorf("written report mismatch\n got: %q\nwant: %q", got, want)
	}
	if picker.offers[0] != "bundle.txt" {
		t.Errorf("expected suggested name bundle.txt, got %q", picker.offers[0])
	}
}

func TestExportPropagatesErrors(t *testing.T) {
	ds := patch.NewDataset()
	ds.Replace("/p/a.ptm", entries())

	_, err := NewController(ds, &mockPicker{err: errors.New("dialog broke")}, &mockWriter{}).Export(context.Background())
	if err == nil || !strings.Contains(err.Error(), "dialog broke") {
		t.Errorf("expected picker error, got %v", err)
	}

	_, err = NewController(ds, &mockPicker{path: "/x", ok: true}, &mockWriter{err: errors.New("disk full")}).Export(context.Background())
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("expected writer error, got %v", err)
	}
}

func TestPlanSnapshotsDataset(t *testing.T) {
	ds := patch.NewDataset()
	ds.Replace("/p/a.ptm", entries())
	writer := &mockWriter{}
	c := NewController(ds, &mockPicker{path: "/out", ok: true}, writer)

	job := c.Plan()
	if job == nil {
		t.Fatal("expected a job")
	}
	ds.Replace("/p/b.ptm", []patch.Entry{{Name: "B1"}, {Name: "B2"}})

	res, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res.Entries != 1 {
		t.Errorf("job should export the planned snapshot, got %d entries", res.Entries)
	}
}

func TestDestinationPicker(t *testing.T) {
	tests := []struct {
		name    string
		dest    Destination
		entries []patch.Entry
		want    string
	}{
		{name: "writes to the fixed path", dest: "/out/report.txt", entries: entries(), want: "/out/report.txt"},
		{name: "empty dataset writes nothing", dest: "/out/report.txt", entries: []patch.Entry{}},
		{name: "empty destination cancels", dest: "", entries: entries()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := patch.NewDataset()
			ds.Replace("/patches/update.ptm", tt.entries)
			writer := &mockWriter{}

			res, err := NewController(ds, tt.dest, writer).Export(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.want == "" {
				if res != nil || len(writer.writes) != 0 {
					t.Errorf("expected no write, got %v and %v", res, writer.writes)
				}
				return
			}
			if res == nil || res.Path != tt.want {
				t.Fatalf("expected a write to %s, got %+v", tt.want, res)
			}
			if _, ok := writer.writes[tt.want]; !ok {
				t.Errorf("report not written to %s", tt.want)
			}
		})
	}
}

func TestFileWriterOverwrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "report.txt")
	w := FileWriter{}

	if err := w.WriteFile(path, []byte("first version, longer")); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := w.WriteFile(path, []byte("second")); err != nil {
		t.Fatalf("second write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "second" {
		t.Errorf("expected overwrite, got %q", data)
	}
}

func TestSuggestedName(t *testing.T) {
	tests := map[string]string{
		"":                     "patch-info.txt",
		"/a/b/tttp120.ptm":     "tttp120.txt",
		"relative/noext":       "noext.txt",
		"/a/b/multi.dot.patch": "multi.dot.txt",
	}
	for in, want := range tests {
		if got := SuggestedName(in); got != want {
			t.Errorf("SuggestedName(%q) = %q, want %q", in, got, want)
		}
	}
}
