// Package jsonl exposes the inspector panel over a line-delimited JSON
// stream, one message object per line. Inbound lines are panel commands
// ({"command":"patchInfo","patchFile":...}); outbound lines are panel
// messages and notifications.
package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/greg-hellings/patchinspect/pkg/inspect"
)

// CommandNotify tags outbound notifications.
const CommandNotify = "notify"

// ErrClosed is returned after the stream has been closed.
var ErrClosed = errors.New("stream closed")

const maxLine = 1 << 20

// Notification is the outbound form of a user notification.
type Notification struct {
	Command string `json:"command"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Host serves a single panel over in and out. It implements inspect.Host,
// inspect.Surface, inspect.Notifier and export.Picker. Exports are written
// into ExportDir under the suggested name without prompting.
type Host struct {
	in        io.Reader
	out       io.Writer
	exportDir string
	logger    *slog.Logger

	writeMu sync.Mutex

	mu        sync.Mutex
	disposed  bool
	onMessage []func(inspect.Command)
	onDispose []func()
	drain     func()
	done      chan struct{}
}

// NewHost creates a host reading commands from in and writing to out.
func NewHost(in io.Reader, out io.Writer, exportDir string) *Host {
	return &Host{
		in:        in,
		out:       out,
		exportDir: exportDir,
		logger:    slog.Default(),
		done:      make(chan struct{}),
	}
}

// SetDrain registers fn to run when the input ends, before the panel is
// disposed. fn should return once the work started by earlier commands has
// been delivered.
func (h *Host) SetDrain(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.drain = fn
}

// Run reads commands until the input ends, the panel is disposed or ctx is
// cancelled. The end of input disposes the panel once the drain function has
// returned.
func (h *Host) Run(ctx context.Context) error {
	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(h.in)
		sc.Buffer(make([]byte, 0, 64*1024), maxLine)
		for sc.Scan() {
			line := append([]byte(nil), sc.Bytes()...)
			select {
			case lines <- line:
			case <-h.done:
				return
			}
		}
		readErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			h.Dispose()
			return ctx.Err()
		case <-h.done:
			return nil
		case err := <-readErr:
			h.waitDrain(ctx)
			h.Dispose()
			if err != nil {
				return fmt.Errorf("failed to read commands: %w", err)
			}
			return nil
		case line := <-lines:
			h.dispatch(line)
		}
	}
}

func (h *Host) waitDrain(ctx context.Context) {
	h.mu.Lock()
	fn := h.drain
	h.mu.Unlock()
	if fn == nil {
		return
	}

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		fn()
	}()
	select {
	case <-drained:
	case <-ctx.Done():
	case <-h.done:
	}
}

func (h *Host) dispatch(line []byte) {
	if len(line) == 0 {
		return
	}
	cmd, err := inspect.DecodeCommand(line)
	if err != nil {
		h.logger.Warn("Ignoring malformed command", "error", err)
		h.ShowError(err.Error())
		return
	}

	h.mu.Lock()
	handlers := append([]func(inspect.Command){}, h.onMessage...)
	h.mu.Unlock()
	for _, fn := range handlers {
		fn(cmd)
	}
}

// Done is closed once the panel is disposed.
func (h *Host) Done() <-chan struct{} {
	return h.done
}

func (h *Host) write(v interface{}) error {
	h.mu.Lock()
	closed := h.disposed
	h.mu.Unlock()
	if closed {
		return ErrClosed
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	data = append(data, '\n')

	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	if _, err := h.out.Write(data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// CreateSurface implements inspect.Host.
func (h *Host) CreateSurface(string) (inspect.Surface, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.disposed {
		return nil, ErrClosed
	}
	return h, nil
}

// Post implements inspect.Surface.
func (h *Host) Post(msg inspect.Message) error {
	return h.write(msg)
}

// Reveal implements inspect.Surface.
func (h *Host) Reveal() {}

// Dispose implements inspect.Surface.
func (h *Host) Dispose() {
	h.mu.Lock()
	if h.disposed {
		h.mu.Unlock()
		return
	}
	h.disposed = true
	handlers := append([]func(){}, h.onDispose...)
	close(h.done)
	h.mu.Unlock()

	for _, fn := range handlers {
		fn()
	}
}

// OnDidDispose implements inspect.Surface.
func (h *Host) OnDidDispose(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onDispose = append(h.onDispose, fn)
}

// OnDidReceiveMessage implements inspect.Surface.
func (h *Host) OnDidReceiveMessage(fn func(inspect.Command)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onMessage = append(h.onMessage, fn)
}

// ShowError implements inspect.Notifier.
func (h *Host) ShowError(msg string) {
	h.notify("error", msg)
}

// ShowInfo implements inspect.Notifier.
func (h *Host) ShowInfo(msg string) {
	h.notify("info", msg)
}

func (h *Host) notify(level, msg string) {
	if err := h.write(Notification{Command: CommandNotify, Level: level, Message: msg}); err != nil {
		h.logger.Debug("Dropping notification", "level", level, "message", msg, "error", err)
	}
}

// PickDestination implements export.Picker.
func (h *Host) PickDestination(_ context.Context, suggested string) (string, bool, error) {
	if h.exportDir == "" {
		return suggested, true, nil
	}
	return filepath.Join(h.exportDir, suggested), true, nil
}
