// Package export writes the cached patch dataset to a user-chosen file as a
// fixed-width text report.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/greg-hellings/patchinspect/pkg/patch"
	"github.com/greg-hellings/patchinspect/pkg/report/format"
)

// Picker asks the user where to save the report. ok is false when the user
// cancelled the prompt.
type Picker interface {
	PickDestination(ctx context.Context, suggested string) (path string, ok bool, err error)
}

// Writer persists data at path, replacing any existing file.
type Writer interface {
	WriteFile(path string, data []byte) error
}

// Source exposes the dataset to export.
type Source interface {
	Entries() []patch.Entry
	Present() bool
	Source() string
}

// Destination is a Picker that always answers with the same path. An empty
// Destination behaves as a cancelled prompt.
type Destination string

// PickDestination returns d.
func (d Destination) PickDestination(context.Context, string) (string, bool, error) {
	return string(d), d != "", nil
}

// FileWriter writes reports to the local file system.
type FileWriter struct{}

// WriteFile creates parent directories as needed and overwrites path.
func (FileWriter) WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write export file: %w", err)
	}
	return nil
}

// Result describes a completed export.
type Result struct {
	Path    string
	Entries int
	Bytes   int
}

// Controller runs the pick → format → write sequence.
type Controller struct {
	source    Source
	picker    Picker
	writer    Writer
	formatter *format.FixedWidthFormatter
	logger    *slog.Logger
}

// NewController creates an export controller reading from source.
func NewController(source Source, picker Picker, writer Writer) *Controller {
	if writer == nil {
		writer = FileWriter{}
	}
	return &Controller{
		source:    source,
		picker:    picker,
		writer:    writer,
		formatter: format.NewFixedWidthFormatter(),
		logger:    slog.Default(),
	}
}

// WithFormatter overrides the report formatter.
func (c *Controller) WithFormatter(f *format.FixedWidthFormatter) *Controller {
	c.formatter = f
	return c
}

// WithLogger overrides the logger.
func (c *Controller) WithLogger(l *slog.Logger) *Controller {
	if l != nil {
		c.logger = l
	}
	return c
}

// Export saves the dataset. A missing or empty dataset and a cancelled prompt
// both return a nil Result and a nil error.
func (c *Controller) Export(ctx context.Context) (*Result, error) {
	job := c.Plan()
	if job == nil {
		return nil, nil
	}
	return job.Run(ctx)
}

// Plan captures the current dataset for export, or returns nil when there is
// nothing to export. Callers that own the dataset on an event loop call Plan
// there and Run elsewhere.
func (c *Controller) Plan() *Job {
	if c.source == nil || !c.source.Present() {
		c.logger.Debug("Nothing to export: no dataset")
		return nil
	}
	entries := c.source.Entries()
	if len(entries) == 0 {
		c.logger.Debug("Nothing to export: dataset is empty", "patch", c.source.Source())
		return nil
	}
	return &Job{controller: c, entries: entries, patchPath: c.source.Source()}
}

// Job is a planned export of a fixed set of entries.
type Job struct {
	controller *Controller
	entries    []patch.Entry
	patchPath  string
}

// Run prompts for a destination and writes the report there.
func (j *Job) Run(ctx context.Context) (*Result, error) {
	c := j.controller
	if c.picker == nil {
		return nil, fmt.Errorf("no destination picker configured")
	}

	dest, ok, err := c.picker.PickDestination(ctx, SuggestedName(j.patchPath))
	if err != nil {
		return nil, fmt.Errorf("failed to choose export destination: %w", err)
	}
	if !ok || dest == "" {
		c.logger.Debug("Export cancelled")
		return nil, nil
	}

	return c.WriteTo(dest, j.entries)
}

// WriteTo formats entries and writes them to dest without prompting.
func (c *Controller) WriteTo(dest string, entries []patch.Entry) (*Result, error) {
	data := []byte(c.formatter.Format(entries))
	if err := c.writer.WriteFile(dest, data); err != nil {
		return nil, err
	}
	c.logger.Info("Patch info exported", "path", dest, "entries", len(entries), "bytes", len(data))
	return &Result{Path: dest, Entries: len(entries), Bytes: len(data)}, nil
}

// SuggestedName derives a default report file name from the patch path.
func SuggestedName(patchPath string) string {
	if patchPath == "" {
		return "patch-info.txt"
	}
	base := filepath.Base(patchPath)
	return base[:len(base)-len(filepath.Ext(base))] + ".txt"
}
