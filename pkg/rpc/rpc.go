// Package rpc talks to the language server that owns the remote connection.
// Requests travel as JSON-RPC 2.0 over an LSP header-framed stream, either on
// the stdio of a spawned server process or on a TCP socket.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"github.com/greg-hellings/patchinspect/pkg/patch"
)

// MethodPatchInfo is the custom request that returns the content of a patch.
const MethodPatchInfo = "$totvsserver/patchInfo"

// PatchInfoInfo is the payload of a patch info request.
type PatchInfoInfo struct {
	ConnectionToken    string `json:"connectionToken"`
	AuthorizationToken string `json:"authorizationToken"`
	Environment        string `json:"environment"`
	PatchURI           string `json:"patchUri"`
	IsLocal            bool   `json:"isLocal"`
}

// PatchInfoParams wraps PatchInfoInfo the way the server expects it.
type PatchInfoParams struct {
	PatchInfoInfo PatchInfoInfo `json:"patchInfoInfo"`
}

// PatchInfoResult is the server response to MethodPatchInfo.
type PatchInfoResult struct {
	PatchInfos []patch.Entry `json:"patchInfos"`
}

// ResponseError is a structured error returned by the server.
type ResponseError struct {
	Code    int32
	Message string
}

func (e *ResponseError) Error() string {
	return e.Message
}

// DialConfig selects how to reach the language server. Command takes
// precedence over Address.
type DialConfig struct {
	Command []string
	Address string
	Timeout time.Duration
	// Stderr receives the spawned server's standard error. Nil discards it.
	Stderr io.Writer
}

// Client issues requests over an established jsonrpc2 connection. It is safe
// for concurrent use.
type Client struct {
	conn    jsonrpc2.Conn
	timeout time.Duration
	logger  *slog.Logger
}

// NewClient wraps an existing connection. The caller must have started the
// connection's read loop with conn.Go.
func NewClient(conn jsonrpc2.Conn, timeout time.Duration) *Client {
	return &Client{conn: conn, timeout: timeout, logger: slog.Default()}
}

// Dial connects to the language server described by cfg and starts the read
// loop. Server-initiated requests and notifications are logged and answered
// with an empty result.
func Dial(ctx context.Context, cfg DialConfig) (*Client, error) {
	var (
		rwc io.ReadWriteCloser
		err error
	)
	switch {
	case len(cfg.Command) > 0:
		rwc, err = spawn(cfg.Command, cfg.Stderr)
	case cfg.Address != "":
		var d net.Dialer
		rwc, err = d.DialContext(ctx, "tcp", cfg.Address)
	default:
		return nil, errors.New("no language server command or address configured")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to language server: %w", err)
	}

	conn := jsonrpc2.NewConn(jsonrpc2.NewStream(rwc))
	c := NewClient(conn, cfg.Timeout)
	conn.Go(ctx, c.handleServerMessage)
	return c, nil
}

func (c *Client) handleServerMessage(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	c.logger.Debug("Ignoring server message", "method", req.Method())
	return reply(ctx, nil, nil)
}

var getwd = os.Getwd

// Initialize performs the LSP initialize/initialized handshake. The working
// directory is sent as the root when it can be determined.
func (c *Client) Initialize(ctx context.Context, name, version string) (*protocol.InitializeResult, error) {
	params := &protocol.InitializeParams{
		ProcessID: int32(os.Getpid()),
		ClientInfo: &protocol.ClientInfo{
			Name:    name,
			Version: version,
		},
	}
	if wd, err := getwd(); err != nil {
		c.logger.Warn("Initializing without a root directory", "error", err)
	} else {
		params.RootURI = uri.File(wd)
	}

	var result protocol.InitializeResult
	if err := c.call(ctx, protocol.MethodInitialize, params, &result); err != nil {
		return nil, fmt.Errorf("initialize failed: %w", err)
	}
	if err := c.conn.Notify(ctx, protocol.MethodInitialized, &protocol.InitializedParams{}); err != nil {
		return nil, fmt.Errorf("initialized notification failed: %w", err)
	}
	if result.ServerInfo != nil {
		c.logger.Info("Language server ready", "name", result.ServerInfo.Name, "version", result.ServerInfo.Version)
	}
	return &result, nil
}

// PatchInfo asks the server for the entries of the patch described by info.
func (c *Client) PatchInfo(ctx context.Context, info PatchInfoInfo) ([]patch.Entry, error) {
	var result PatchInfoResult
	if err := c.call(ctx, MethodPatchInfo, &PatchInfoParams{PatchInfoInfo: info}, &result); err != nil {
		return nil, err
	}
	if result.PatchInfos == nil {
		result.PatchInfos = []patch.Entry{}
	}
	return result.PatchInfos, nil
}

// Close shuts the server down politely and releases the connection and, for
// spawned servers, waits for the process to exit.
func (c *Client) Close(ctx context.Context) error {
	var discard interface{}
	if err := c.call(ctx, protocol.MethodShutdown, nil, &discard); err != nil {
		c.logger.Debug("Shutdown request failed", "error", err)
	} else if err := c.conn.Notify(ctx, protocol.MethodExit, nil); err != nil {
		c.logger.Debug("Exit notification failed", "error", err)
	}
	return c.conn.Close()
}

// Done is closed when the underlying connection terminates.
func (c *Client) Done() <-chan struct{} {
	return c.conn.Done()
}

func (c *Client) call(ctx context.Context, method string, params, result interface{}) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	_, err := c.conn.Call(ctx, method, params, result)
	c.logger.Debug("RPC call finished", "method", method, "duration", time.Since(start).String(), "error", err)
	if err == nil {
		return nil
	}

	var wireErr *jsonrpc2.Error
	if errors.As(err, &wireErr) {
		return &ResponseError{Code: int32(wireErr.Code), Message: wireErr.Message}
	}
	return fmt.Errorf("%s request failed: %w", method, err)
}

// FileURI converts a local path into the file URI sent as patchUri.
// Relative paths are resolved against the working directory.
func FileURI(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return string(uri.File(path))
}

// processPipe joins a child's stdout and stdin into one stream.
type processPipe struct {
	io.ReadCloser
	io.WriteCloser
	cmd *exec.Cmd
}

func (p *processPipe) Close() error {
	werr := p.WriteCloser.Close()
	rerr := p.ReadCloser.Close()
	_ = p.cmd.Wait()
	if werr != nil {
		return werr
	}
	return rerr
}

func spawn(argv []string, stderr io.Writer) (*processPipe, error) {
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stderr = stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", argv[0], err)
	}
	return &processPipe{ReadCloser: stdout, WriteCloser: stdin, cmd: cmd}, nil
}
