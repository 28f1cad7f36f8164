package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/greg-hellings/patchinspect/pkg/config"
	"github.com/greg-hellings/patchinspect/pkg/export"
	"github.com/greg-hellings/patchinspect/pkg/l10n"
	"github.com/greg-hellings/patchinspect/pkg/patch"
	"github.com/greg-hellings/patchinspect/pkg/report/format"
	"github.com/greg-hellings/patchinspect/pkg/state"
)

// infoFlags groups flags for the info subcommand.
type infoFlags struct {
	outputFormat string
	outputFile   string
	exportFile   string
	filter       string
	noColor      bool
	nameColWidth int
	jsonIndent   bool
}

var infoOpts infoFlags

func newInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info <patch>",
		Short: "Print the content of a patch",
		Long: strings.TrimSpace(`
Requests the content of a patch from the language server and prints it.

Formats:
  console (default) - table adapted to the terminal width
  text              - the fixed-width report written by export
  json              - structured output`),
		Args: cobra.ExactArgs(1),
		RunE: runInfo,
	}

	cmd.Flags().StringVarP(&infoOpts.outputFormat, "format", "f", "console", "Output format: console|text|json")
	cmd.Flags().StringVarP(&infoOpts.outputFile, "output", "o", "", "Write output to this file instead of stdout")
	cmd.Flags().StringVar(&infoOpts.exportFile, "export", "", "Also write the fixed-width report to this file")
	cmd.Flags().StringVar(&infoOpts.filter, "filter", "", "Only show entries matching this text")
	cmd.Flags().BoolVar(&infoOpts.noColor, "no-color", false, "Disable ANSI colors in console output")
	cmd.Flags().IntVar(&infoOpts.nameColWidth, "name-col-width", 0, "Max width for the name column (console format)")
	cmd.Flags().BoolVar(&infoOpts.jsonIndent, "json-indent", true, "Indent JSON output")
	return cmd
}

func runInfo(cmd *cobra.Command, args []string) error {
	start := time.Now()
	slog.Info("Starting patch info", "patch", args[0], "format", infoOpts.outputFormat)

	env, err := loadEnvironment()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(commandContext(cmd), env.cfg.LanguageServer.Timeout)
	defer cancel()

	entries, local, err := env.fetch(ctx, args[0])
	if err != nil {
		return err
	}
	entries = patch.Filter(entries, infoOpts.filter)

	var outWriter io.WriteCloser = nopWriteCloser{w: cmd.OutOrStdout()}
	if infoOpts.outputFile != "" {
		if err := os.MkdirAll(filepath.Dir(infoOpts.outputFile), 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		f, err := os.Create(infoOpts.outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		outWriter = f
	}
	defer outWriter.Close()

	switch strings.ToLower(infoOpts.outputFormat) {
	case "console":
		formatter := format.NewConsoleFormatter()
		formatter.EnableColors = !infoOpts.noColor
		formatter.MaxNameColWidth = infoOpts.nameColWidth
		formatter.Title = env.labels.T(l10n.KeyTitle) + ": " + filepath.Base(local)
		if err := formatter.Render(entries, outWriter); err != nil {
			return fmt.Errorf("failed to render console output: %w", err)
		}
	case "text":
		if err := format.NewFixedWidthFormatter().Render(entries, outWriter); err != nil {
			return fmt.Errorf("failed to render text output: %w", err)
		}
	case "json":
		if err := renderJSON(local, entries, outWriter); err != nil {
			return fmt.Errorf("failed to render JSON output: %w", err)
		}
	default:
		return fmt.Errorf("unsupported format: %s", infoOpts.outputFormat)
	}

	if infoOpts.exportFile != "" {
		res, err := exportEntries(ctx, local, infoOpts.exportFile, entries)
		if err != nil {
			return err
		}
		if res == nil {
			slog.Warn("Nothing to export", "patch", local, "filter", infoOpts.filter)
		} else {
			env.st.LastExportDir = filepath.Dir(res.Path)
			env.save()
		}
	}

	slog.Info("Patch info complete",
		"entries", len(entries),
		"duration", time.Since(start).String())
	return nil
}

// jsonOutput is the structured JSON shape emitted by info.
type jsonOutput struct {
	Version     string        `json:"cliVersion"`
	GeneratedAt time.Time     `json:"generatedAt"`
	Patch       string        `json:"patch"`
	Count       int           `json:"count"`
	Entries     []patch.Entry `json:"entries"`
}

func renderJSON(patchPath string, entries []patch.Entry, w io.Writer) error {
	if entries == nil {
		entries = []patch.Entry{}
	}
	payload := jsonOutput{
		Version:     version,
		GeneratedAt: time.Now().UTC(),
		Patch:       patchPath,
		Count:       len(entries),
		Entries:     entries,
	}

	var data []byte
	var err error
	if infoOpts.jsonIndent {
		data, err = json.MarshalIndent(payload, "", "  ")
	} else {
		data, err = json.Marshal(payload)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return err
	}
	return nil
}

func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <patch> [output]",
		Short: "Write the fixed-width report of a patch",
		Long: strings.TrimSpace(`
Requests the content of a patch and writes the fixed-width text report. The
output defaults to the patch name with a .txt extension, placed in the
configured export directory.`),
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnvironment()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(commandContext(cmd), env.cfg.LanguageServer.Timeout)
			defer cancel()

			entries, local, err := env.fetch(ctx, args[0])
			if err != nil {
				return err
			}

			dest := exportDestination(env, local, args[1:])
			res, err := exportEntries(ctx, local, dest, entries)
			if err != nil {
				return err
			}
			if res == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "No entries to export from %s\n", filepath.Base(local))
				return nil
			}

			env.st.LastExportDir = filepath.Dir(res.Path)
			env.save()
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", env.labels.T(l10n.KeyExported), res.Path)
			return nil
		},
	}
}

// exportEntries writes the report of entries to dest. It returns a nil
// Result when there is nothing to export.
func exportEntries(ctx context.Context, patchPath, dest string, entries []patch.Entry) (*export.Result, error) {
	ds := patch.NewDataset()
	ds.Replace(patchPath, entries)
	job := export.NewController(ds, export.Destination(dest), export.FileWriter{}).Plan()
	if job == nil {
		return nil, nil
	}
	return job.Run(ctx)
}

func exportDestination(env *environment, patchPath string, rest []string) string {
	if len(rest) == 1 && rest[0] != "" {
		return rest[0]
	}
	dir := env.cfg.Export.Directory
	if dir == "" {
		dir = env.st.LastExportDir
	}
	return filepath.Join(dir, export.SuggestedName(patchPath))
}

func newServersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "servers",
		Short: "List configured servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnvironment()
			if err != nil {
				return err
			}
			if len(env.cfg.Servers) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No servers configured (%s)\n", configPath())
				return nil
			}
			renderServers(env, cmd.OutOrStdout())
			return nil
		},
	}
}

func renderServers(env *environment, w io.Writer) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"", "Name", "Environment", "Address", "Token"})
	for _, srv := range env.cfg.Servers {
		mark := ""
		if env.connErr == nil && env.conn.Server == srv.Name {
			mark = "*"
		}
		tw.AppendRow(table.Row{mark, srv.Name, srv.Environment, srv.Address, state.RedactToken(srv.Token)})
	}
	tw.Render()
}

func configPath() string {
	if flagConfig != "" {
		return flagConfig
	}
	return config.DefaultPath()
}

var recentFlags struct {
	clear bool
	yaml  bool
}

func newRecentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List recently inspected patches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := stateStore.Load(flagStateFile)
			if err != nil {
				return fmt.Errorf("failed to load state: %w", err)
			}
			switch {
			case recentFlags.clear:
				st.RecentPatches = []string{}
				return stateStore.Save(st, flagStateFile)
			case recentFlags.yaml:
				_, err := st.WriteTo(cmd.OutOrStdout())
				return err
			case len(st.RecentPatches) == 0:
				fmt.Fprintln(cmd.OutOrStdout(), "No recent patches")
				return nil
			}
			for i, p := range st.RecentPatches {
				fmt.Fprintf(cmd.OutOrStdout(), "%2d  %s\n", i+1, p)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&recentFlags.clear, "clear", false, "Forget the recent patches")
	cmd.Flags().BoolVar(&recentFlags.yaml, "yaml", false, "Print the whole saved state as YAML")
	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// nopWriteCloser keeps stdout open when the output writer is closed.
type nopWriteCloser struct {
	w io.Writer
}

func (n nopWriteCloser) Write(p []byte) (int, error) {
	return n.w.Write(p)
}

func (n nopWriteCloser) Close() error {
	return nil
}
