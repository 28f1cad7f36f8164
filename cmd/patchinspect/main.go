package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/greg-hellings/patchinspect/pkg/config"
	"github.com/greg-hellings/patchinspect/pkg/inspect"
	"github.com/greg-hellings/patchinspect/pkg/l10n"
	"github.com/greg-hellings/patchinspect/pkg/patch"
	"github.com/greg-hellings/patchinspect/pkg/rpc"
	"github.com/greg-hellings/patchinspect/pkg/source"
	"github.com/greg-hellings/patchinspect/pkg/state"
)

// build-time override (e.g. -ldflags "-X main.version=1.2.3")
var version = "dev"

// Global (root-level) flag variables
var (
	flagVerbose    bool
	flagDebug      bool
	flagConfig     string
	flagServer     string
	flagStateFile  string
	flagLogFile    string
	flagAuthToken  string
	flagCredFile   string
	flagLabels     string
	logDestination io.Writer = os.Stderr
	logCloser      io.Closer
)

func main() {
	root := newRootCmd()
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := root.Execute()
	if logCloser != nil {
		_ = logCloser.Close()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root Cobra command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patchinspect",
		Short: "Inspect the content of patch files through a language server",
		Long: strings.TrimSpace(`
patchinspect - Patch inspection tool

Asks the language server holding the selected server connection for the
resources contained in a patch file, shows them in a filterable table and
exports them as a fixed-width text report.`),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initLogging(cmd)
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable verbose (info) logging")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging (overrides --verbose)")
	cmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "Configuration file (YAML or TOML; default "+config.DefaultPath()+")")
	cmd.PersistentFlags().StringVarP(&flagServer, "server", "s", "", "Server to use instead of the configured selection")
	cmd.PersistentFlags().StringVar(&flagStateFile, "state", "", "State file (default "+state.DefaultPath()+")")
	cmd.PersistentFlags().StringVar(&flagLogFile, "log-file", "", "Write logs to this file")
	cmd.PersistentFlags().StringVar(&flagAuthToken, "authorization-token", "", "Authorization token sent with requests (or "+state.EnvName(state.AuthorizationKey)+")")
	cmd.PersistentFlags().StringVar(&flagCredFile, "credentials", "", "Token file (default "+state.DefaultCredentialsPath()+")")
	cmd.PersistentFlags().StringVar(&flagLabels, "labels", "", "TOML file overriding the built-in labels")
	cmd.Version = version

	// Add subcommands
	cmd.AddCommand(newInspectCmd())
	cmd.AddCommand(newInfoCmd())
	cmd.AddCommand(newExportCmd())
	cmd.AddCommand(newServersCmd())
	cmd.AddCommand(newRecentCmd())
	cmd.AddCommand(newTokenCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// newVersionCmd prints version info (simple helper).
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "patchinspect version: %s\n", version)
		},
	}
}

// initLogging configures the default slog logger. The terminal panel owns
// the screen, so unless --log-file is given its logs are discarded.
func initLogging(cmd *cobra.Command) error {
	var level slog.Level
	switch {
	case flagDebug:
		level = slog.LevelDebug
	case flagVerbose:
		level = slog.LevelInfo
	default:
		level = slog.LevelWarn
	}

	logDestination = os.Stderr
	switch {
	case flagLogFile != "":
		f, err := os.OpenFile(flagLogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		logDestination, logCloser = f, f
	case cmd.Name() == "inspect" && !inspectFlags.stdio:
		logDestination = io.Discard
	}

	handler := slog.NewTextHandler(logDestination, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
	slog.Debug("Logging initialized", "level", level.String())
	return nil
}

// stateStore persists inspector state between runs.
var stateStore state.Store = state.FilesystemStore{}

// newCredentialStore layers the token file over a session-only store that
// takes writes when the file cannot be written.
func newCredentialStore() state.CredentialStore {
	return state.NewFallbackCredentialStore(
		state.NewFileCredentialStore(flagCredFile),
		state.NewInMemoryCredentialStore(),
	)
}

// environment bundles what every command loads before talking to a server.
type environment struct {
	cfg       *config.Config
	st        *state.State
	statePath string
	conn      state.Connection
	connErr   error
	labels    *l10n.Bundle
	resolver  *source.Resolver
}

func loadEnvironment() (*environment, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if flagAuthToken != "" {
		cfg.AuthorizationToken = flagAuthToken
	}
	if flagLabels != "" {
		cfg.Labels = flagLabels
	}

	st, err := stateStore.Load(flagStateFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	labels := l10n.Load(cfg.Locale)
	if cfg.Labels != "" {
		if err := labels.Merge(cfg.Labels); err != nil {
			return nil, fmt.Errorf("failed to load labels: %w", err)
		}
	}

	creds := newCredentialStore()

	server := flagServer
	if server == "" && cfg.Selected == "" {
		if _, ok := cfg.Server(st.LastServer); ok {
			server = st.LastServer
		}
	}
	conn, connErr := state.ResolveConnection(cfg, server, creds)
	if connErr == nil {
		slog.Debug("Using server",
			"server", conn.Server,
			"environment", conn.Environment,
			"connectionToken", state.RedactToken(conn.ConnectionToken),
			"authorizationToken", state.RedactToken(conn.AuthorizationToken))
	}

	resolver, err := newResolver(cfg, creds)
	if err != nil {
		return nil, err
	}

	return &environment{
		cfg:       cfg,
		st:        st,
		statePath: flagStateFile,
		conn:      conn,
		connErr:   connErr,
		labels:    labels,
		resolver:  resolver,
	}, nil
}

func newResolver(cfg *config.Config, creds state.CredentialStore) (*source.Resolver, error) {
	r := source.NewResolver(cfg.Sources.CacheDir)

	ghToken, err := state.ResolveToken(source.ProviderGitHub, cfg.Sources.GitHub.Token, creds)
	if err != nil {
		return nil, err
	}
	gh, err := source.NewGitHubFetcher(ghToken, cfg.Sources.GitHub.BaseURL)
	if err != nil {
		return nil, err
	}

	glToken, err := state.ResolveToken(source.ProviderGitLab, cfg.Sources.GitLab.Token, creds)
	if err != nil {
		return nil, err
	}
	gl, err := source.NewGitLabFetcher(glToken, cfg.Sources.GitLab.BaseURL)
	if err != nil {
		return nil, err
	}

	return r.Register(source.ProviderGitHub, gh).Register(source.ProviderGitLab, gl), nil
}

// connection returns the selected connection as the session sees it.
func (e *environment) connection() (inspect.SessionContext, bool) {
	if e.connErr != nil {
		return inspect.SessionContext{}, false
	}
	return inspect.SessionContext{
		ConnectionToken:    e.conn.ConnectionToken,
		AuthorizationToken: e.conn.AuthorizationToken,
		Environment:        e.conn.Environment,
		IsLocal:            true,
	}, true
}

func (e *environment) requireConnection() error {
	if e.connErr != nil {
		slog.Debug("No usable server", "error", e.connErr)
		return inspect.NoConnectionError(e.labels)
	}
	return nil
}

// dialConfig targets the selected server's own address when it has one and
// the configured language server otherwise.
func (e *environment) dialConfig() rpc.DialConfig {
	ls := e.cfg.LanguageServer
	dc := rpc.DialConfig{
		Command: ls.Command,
		Address: ls.Address,
		Timeout: ls.Timeout,
		Stderr:  logDestination,
	}
	if e.connErr == nil && e.conn.Address != "" {
		dc.Command, dc.Address = nil, e.conn.Address
	}
	return dc
}

// dial connects to the language server and performs the handshake.
func (e *environment) dial(ctx context.Context) (*rpc.Client, error) {
	client, err := rpc.Dial(ctx, e.dialConfig())
	if err != nil {
		return nil, err
	}
	if _, err := client.Initialize(ctx, "patchinspect", version); err != nil {
		_ = client.Close(ctx)
		return nil, err
	}
	return client, nil
}

// fetch resolves arg and requests its entries in one round trip.
func (e *environment) fetch(ctx context.Context, arg string) ([]patch.Entry, string, error) {
	if err := e.requireConnection(); err != nil {
		return nil, "", err
	}
	local, err := e.resolver.Resolve(ctx, arg)
	if err != nil {
		return nil, "", err
	}

	client, err := e.dial(ctx)
	if err != nil {
		return nil, "", err
	}
	defer func() {
		if err := client.Close(context.Background()); err != nil {
			slog.Debug("Closing language server connection failed", "error", err)
		}
	}()

	sc, _ := e.connection()
	entries, err := client.PatchInfo(ctx, rpc.PatchInfoInfo{
		ConnectionToken:    sc.ConnectionToken,
		AuthorizationToken: sc.AuthorizationToken,
		Environment:        sc.Environment,
		PatchURI:           rpc.FileURI(local),
		IsLocal:            true,
	})
	if err != nil {
		return nil, "", err
	}
	e.recordPatch(local)
	e.save()
	return entries, local, nil
}

func (e *environment) recordPatch(p string) {
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	e.st.AddRecentPatch(p, state.RecentLimit)
	if e.connErr == nil {
		e.st.LastServer = e.conn.Server
	}
}

func (e *environment) save() {
	if err := stateStore.Save(e.st, e.statePath); err != nil {
		slog.Warn("Failed to save state", "error", err)
	}
}

func isCancel(err error) bool {
	return errors.Is(err, context.Canceled)
}
