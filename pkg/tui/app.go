// Package tui is the terminal presentation of the inspector: a bubbletea
// program acting as the panel host, the panel itself, the user notifier and
// the destination prompt for exports.
package tui

import (
	"context"
	"errors"
	"path/filepath"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/greg-hellings/patchinspect/pkg/inspect"
	"github.com/greg-hellings/patchinspect/pkg/l10n"
)

// ErrPanelClosed is returned when posting to or creating a panel after the
// program ended.
var ErrPanelClosed = errors.New("panel closed")

// Options configures an App.
type Options struct {
	Labels  *l10n.Bundle
	Resolve ResolveFunc
	// ExportDir is the initial directory offered for exports.
	ExportDir string
	// OnExportDir is called with the directory of every chosen destination.
	OnExportDir    func(dir string)
	ProgramOptions []tea.ProgramOption
}

// App runs the panel. It implements inspect.Host, inspect.Surface,
// inspect.Notifier and export.Picker.
type App struct {
	model   *Model
	program *tea.Program
	send    func(tea.Msg)
	quit    func()

	exportDir   string
	onExportDir func(string)

	mu        sync.Mutex
	disposed  bool
	onMessage []func(inspect.Command)
	onDispose []func()
	done      chan struct{}
}

// NewApp creates the program. Call Run to start it.
func NewApp(opts Options) *App {
	a := &App{
		exportDir:   opts.ExportDir,
		onExportDir: opts.OnExportDir,
		done:        make(chan struct{}),
	}
	a.model = NewModel(opts.Labels, a.emit, opts.Resolve)
	a.program = tea.NewProgram(a.model, opts.ProgramOptions...)
	a.send = a.program.Send
	a.quit = a.program.Quit
	return a
}

// Run blocks until the program exits, then reports the disposal.
func (a *App) Run() error {
	_, err := a.program.Run()
	a.markDisposed()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

// Done is closed once the panel is gone.
func (a *App) Done() <-chan struct{} {
	return a.done
}

func (a *App) markDisposed() {
	a.mu.Lock()
	if a.disposed {
		a.mu.Unlock()
		return
	}
	a.disposed = true
	handlers := append([]func(){}, a.onDispose...)
	close(a.done)
	a.mu.Unlock()

	for _, fn := range handlers {
		fn()
	}
}

func (a *App) emit(cmd inspect.Command) {
	a.mu.Lock()
	handlers := append([]func(inspect.Command){}, a.onMessage...)
	a.mu.Unlock()
	for _, fn := range handlers {
		fn(cmd)
	}
}

func (a *App) deliver(msg tea.Msg) bool {
	a.mu.Lock()
	closed := a.disposed
	a.mu.Unlock()
	if closed {
		return false
	}
	a.send(msg)
	return true
}

// CreateSurface implements inspect.Host. The terminal holds a single panel;
// once it has been disposed no other can be created.
func (a *App) CreateSurface(title string) (inspect.Surface, error) {
	a.mu.Lock()
	if a.disposed {
		a.mu.Unlock()
		return nil, ErrPanelClosed
	}
	a.mu.Unlock()

	a.deliver(titleMsg{title: title})
	return a, nil
}

// Post implements inspect.Surface.
func (a *App) Post(msg inspect.Message) error {
	var m tea.Msg
	switch msg := msg.(type) {
	case inspect.SetPatchPath:
		m = patchPathMsg{path: msg.Path}
	case inspect.SetData:
		m = dataMsg{entries: msg.Data}
	default:
		return nil
	}
	if !a.deliver(m) {
		return ErrPanelClosed
	}
	return nil
}

// Reveal implements inspect.Surface. The terminal panel is always in front.
func (a *App) Reveal() {}

// Dispose implements inspect.Surface.
func (a *App) Dispose() {
	a.quit()
}

// OnDidDispose implements inspect.Surface.
func (a *App) OnDidDispose(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onDispose = append(a.onDispose, fn)
}

// OnDidReceiveMessage implements inspect.Surface.
func (a *App) OnDidReceiveMessage(fn func(inspect.Command)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onMessage = append(a.onMessage, fn)
}

// ShowError implements inspect.Notifier.
func (a *App) ShowError(msg string) {
	a.deliver(statusMsg{text: msg, err: true})
}

// ShowInfo implements inspect.Notifier.
func (a *App) ShowInfo(msg string) {
	a.deliver(statusMsg{text: msg})
}

// PickDestination implements export.Picker by prompting inside the panel.
func (a *App) PickDestination(ctx context.Context, suggested string) (string, bool, error) {
	a.mu.Lock()
	dir := a.exportDir
	a.mu.Unlock()
	initial := suggested
	if dir != "" {
		initial = filepath.Join(dir, suggested)
	}
	reply := make(chan promptResult, 1)
	if !a.deliver(promptMsg{kind: promptSave, initial: initial, reply: reply}) {
		return "", false, nil
	}

	select {
	case r := <-reply:
		if !r.ok {
			return "", false, nil
		}
		dir = filepath.Dir(r.value)
		a.mu.Lock()
		a.exportDir = dir
		a.mu.Unlock()
		if a.onExportDir != nil {
			a.onExportDir(dir)
		}
		return r.value, true, nil
	case <-a.done:
		return "", false, nil
	case <-ctx.Done():
		return "", false, ctx.Err()
	}
}
