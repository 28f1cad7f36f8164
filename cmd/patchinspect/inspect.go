package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/greg-hellings/patchinspect/pkg/export"
	"github.com/greg-hellings/patchinspect/pkg/inspect"
	"github.com/greg-hellings/patchinspect/pkg/surface/jsonl"
	"github.com/greg-hellings/patchinspect/pkg/tui"
)

var inspectFlags struct {
	stdio       bool
	noAltScreen bool
}

// errServerGone is returned when the language server drops the connection
// while the panel is open.
var errServerGone = errors.New("language server connection closed")

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect [patch]",
		Short: "Open the patch inspection panel",
		Long: strings.TrimSpace(`
Opens the inspection panel. When a patch is given (a local path, or a
github:owner/repo/path@ref or gitlab:group/project//path@ref reference) its
content is requested immediately; otherwise use the open key in the panel.

With --stdio the panel is driven by JSON lines on stdin and stdout instead of
the terminal user interface.`),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patchArg string
			if len(args) == 1 {
				patchArg = args[0]
			}
			return runInspect(cmd.Context(), patchArg, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&inspectFlags.stdio, "stdio", false, "Speak JSON lines on stdin/stdout instead of drawing the terminal panel")
	cmd.Flags().BoolVar(&inspectFlags.noAltScreen, "no-alt-screen", false, "Draw the panel inline instead of on the alternate screen")
	return cmd
}

// panelHost is what both front ends provide to the session.
type panelHost interface {
	inspect.Host
	inspect.Notifier
	export.Picker
}

// stateRecorder remembers requested patches. It runs on the loop goroutine.
type stateRecorder struct {
	env *environment
}

func (r stateRecorder) RecordPatch(path string) {
	r.env.recordPatch(path)
	r.env.save()
}

func runInspect(parent context.Context, patchArg string, in io.Reader, out io.Writer) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting inspector", "patch", patchArg, "stdio", inspectFlags.stdio)

	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	if err := env.requireConnection(); err != nil {
		return err
	}
	if !inspectFlags.stdio && !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("inspect needs a terminal; use --stdio to drive it with JSON lines")
	}

	local := ""
	if patchArg != "" {
		if local, err = env.resolver.Resolve(ctx, patchArg); err != nil {
			return err
		}
	}

	client, err := env.dial(ctx)
	if err != nil {
		return fmt.Errorf("failed to reach language server: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Close(closeCtx); err != nil {
			slog.Debug("Closing language server connection failed", "error", err)
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	loop := inspect.NewLoop()
	exportDir := env.cfg.Export.Directory
	if exportDir == "" {
		exportDir = env.st.LastExportDir
	}

	var (
		host      panelHost
		runHost   func(context.Context) error
		stdioHost *jsonl.Host
	)
	if inspectFlags.stdio {
		stdioHost = jsonl.NewHost(in, out, exportDir)
		host, runHost = stdioHost, stdioHost.Run
	} else {
		opts := []tea.ProgramOption{tea.WithContext(gctx)}
		if !inspectFlags.noAltScreen {
			opts = append(opts, tea.WithAltScreen())
		}
		app := tui.NewApp(tui.Options{
			Labels:    env.labels,
			Resolve:   env.resolver.Resolve,
			ExportDir: exportDir,
			OnExportDir: func(dir string) {
				loop.Post(func() {
					env.st.LastExportDir = dir
					env.save()
				})
			},
			ProgramOptions: opts,
		})
		host, runHost = app, func(context.Context) error { return app.Run() }
	}

	session, err := inspect.NewSession(inspect.Config{
		Scheduler:   loop,
		Connections: inspect.ConnectionFunc(env.connection),
		Client:      client,
		Notifier:    host,
		Picker:      host,
		Writer:      export.FileWriter{},
		Recorder:    stateRecorder{env: env},
		Labels:      env.labels,
		Logger:      slog.Default(),
		Context:     gctx,
	})
	if err != nil {
		return err
	}
	boot := inspect.NewBootstrap(session, host)
	if stdioHost != nil {
		// Answers to the last commands are written before the input's end
		// closes the panel.
		stdioHost.SetDrain(session.Drain)
	}

	// Queued before the host starts reading so a drain at end of input
	// covers it.
	var openErr error
	loop.Post(func() {
		if openErr = boot.Open(inspect.OpenArgs{FSPath: local}); openErr != nil {
			cancel()
		}
	})

	g.Go(func() error {
		if err := loop.Run(gctx); err != nil && !isCancel(err) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := runHost(gctx)
		// Queued behind the disposal callbacks the host just posted.
		loop.Post(loop.Stop)
		if err != nil && !isCancel(err) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-client.Done():
			return errServerGone
		case <-loop.Done():
			return nil
		case <-gctx.Done():
			return nil
		}
	})

	err = g.Wait()
	cancel()
	session.Wait()
	if openErr != nil {
		return openErr
	}
	if err != nil {
		return err
	}

	slog.Info("Inspector closed", "panel", session.PanelState().String())
	return nil
}
