package tui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/greg-hellings/patchinspect/pkg/inspect"
	"github.com/greg-hellings/patchinspect/pkg/l10n"
	"github.com/greg-hellings/patchinspect/pkg/patch"
)

var sample = []patch.Entry{
	{Name: "MATA010.PRW", Type: "PTM", BuildType: "INTERNAL", Date: "01/01/2023", Size: "1024"},
	{Name: "FINA050.PRW", Type: "PTM", BuildType: "INTERNAL", Date: "02/01/2023", Size: "2048"},
	{Name: "fina060.prw", Type: "PTM", BuildType: "USER", Date: "03/01/2023", Size: "512"},
}

type emitted struct {
	mu   sync.Mutex
	cmds []inspect.Command
}

func (e *emitted) emit(c inspect.Command) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cmds = append(e.cmds, c)
}

func (e *emitted) last() inspect.Command {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.cmds) == 0 {
		return nil
	}
	return e.cmds[len(e.cmds)-1]
}

func keys(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func newTestModel(resolve ResolveFunc) (*Model, *emitted) {
	e := &emitted{}
	m := NewModel(l10n.Load("en"), e.emit, resolve)
	m.Update(dataMsg{entries: sample})
	return m, e
}

func TestModelFilter(t *testing.T) {
	tests := []struct {
		name   string
		typed  string
		expect int
	}{
		{"empty shows all", "", 3},
		{"case insensitive", "fina", 2},
		{"star shows all", "*", 3},
		{"no match", "xyz", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestModel(nil)
			if tt.typed != "" {
				m.Update(keys(tt.typed))
			}
			if got := len(m.Shown()); got != tt.expect {
				t.Errorf("shown = %d, want %d", got, tt.expect)
			}
			if !strings.Contains(m.View(), "Items showing") {
				t.Errorf("view should show the item counter")
			}
		})
	}
}

func TestModelKeyCommands(t *testing.T) {
	m, e := newTestModel(nil)

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlE})
	if _, ok := e.last().(inspect.ExportPatchInfo); !ok {
		t.Errorf("ctrl+e should emit export, got %#v", e.last())
	}

	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if _, ok := e.last().(inspect.Close); !ok {
		t.Errorf("esc should emit close, got %#v", e.last())
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("ctrl+c should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Errorf("expected quit message")
	}
}

func TestModelOpenPrompt(t *testing.T) {
	m, e := newTestModel(nil)

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlO})
	m.Update(keys("/p/new.ptm"))
	if len(m.Shown()) != 3 {
		t.Errorf("typing in the prompt must not touch the filter")
	}
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	got, ok := e.last().(inspect.PatchInfo)
	if !ok || got.PatchFile != "/p/new.ptm" {
		t.Errorf("expected patchInfo for /p/new.ptm, got %#v", e.last())
	}
	if !strings.Contains(m.View(), "/p/new.ptm") {
		t.Errorf("view should show the opened path")
	}
}

func TestModelOpenPromptResolves(t *testing.T) {
	resolve := func(_ context.Context, ref string) (string, error) {
		if ref == "github:o/r/bad.ptm" {
			return "", errors.New("404 Not Found")
		}
		return "/cache/a.ptm", nil
	}
	m, e := newTestModel(resolve)

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlO})
	m.Update(keys("github:o/r/a.ptm"))
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("expected a resolve command")
	}
	msg := cmd()
	if got, ok := e.last().(inspect.PatchInfo); !ok || got.PatchFile != "/cache/a.ptm" {
		t.Errorf("expected resolved path, got %#v", e.last())
	}
	if pm, ok := msg.(patchPathMsg); !ok || pm.path != "/cache/a.ptm" {
		t.Errorf("expected patch path update, got %#v", msg)
	}

	m.Update(msg)

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlO})
	if got := m.prompt.Value(); got != "/cache/a.ptm" {
		t.Errorf("open prompt should start from the current patch, got %q", got)
	}
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlU})
	m.Update(keys("github:o/r/bad.ptm"))
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m.Update(cmd())
	if !strings.Contains(m.View(), "404 Not Found") {
		t.Errorf("resolve failures should be shown")
	}
}

func TestModelSavePrompt(t *testing.T) {
	m, _ := newTestModel(nil)

	reply := make(chan promptResult, 1)
	m.Update(promptMsg{kind: promptSave, initial: "/out/a.txt", reply: reply})
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if r := <-reply; !r.ok || r.value != "/out/a.txt" {
		t.Errorf("unexpected reply %+v", r)
	}

	reply = make(chan promptResult, 1)
	m.Update(promptMsg{kind: promptSave, initial: "/out/b.txt", reply: reply})
	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if r := <-reply; r.ok {
		t.Errorf("esc should cancel, got %+v", r)
	}
}

type sink struct {
	mu   sync.Mutex
	msgs []tea.Msg
	hook func(tea.Msg)
}

func (s *sink) send(msg tea.Msg) {
	s.mu.Lock()
	s.msgs = append(s.msgs, msg)
	hook := s.hook
	s.mu.Unlock()
	if hook != nil {
		hook(msg)
	}
}

func newTestApp() (*App, *sink) {
	a := NewApp(Options{Labels: l10n.Load("en"), ExportDir: "/reports"})
	s := &sink{}
	a.send = s.send
	a.quit = func() {}
	return a, s
}

func TestAppSurface(t *testing.T) {
	a, s := newTestApp()

	surface, err := a.CreateSurface("Patch Infos")
	if err != nil {
		t.Fatalf("CreateSurface: %v", err)
	}
	if err := surface.Post(inspect.SetData{Data: sample}); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if err := surface.Post(inspect.SetPatchPath{Path: "/p/a.ptm"}); err != nil {
		t.Fatalf("Post: %v", err)
	}
	a.ShowError("boom")

	if len(s.msgs) != 4 {
		t.Fatalf("expected 4 messages, got %#v", s.msgs)
	}
	if dm, ok := s.msgs[1].(dataMsg); !ok || len(dm.entries) != 3 {
		t.Errorf("expected data message, got %#v", s.msgs[1])
	}
	if sm, ok := s.msgs[3].(statusMsg); !ok || !sm.err || sm.text != "boom" {
		t.Errorf("expected error status, got %#v", s.msgs[3])
	}

	var got []inspect.Command
	surface.OnDidReceiveMessage(func(c inspect.Command) { got = append(got, c) })
	a.emit(inspect.Close{})
	if len(got) != 1 {
		t.Errorf("expected forwarded command, got %v", got)
	}

	disposals := 0
	surface.OnDidDispose(func() { disposals++ })
	a.markDisposed()
	a.markDisposed()
	if disposals != 1 {
		t.Errorf("dispose handlers must fire once, got %d", disposals)
	}
	if err := surface.Post(inspect.SetData{}); !errors.Is(err, ErrPanelClosed) {
		t.Errorf("expected ErrPanelClosed after disposal, got %v", err)
	}
	if _, err := a.CreateSurface("again"); !errors.Is(err, ErrPanelClosed) {
		t.Errorf("expected ErrPanelClosed, got %v", err)
	}
}

func TestAppPickDestination(t *testing.T) {
	a, s := newTestApp()
	var remembered string
	a.onExportDir = func(dir string) { remembered = dir }

	s.hook = func(msg tea.Msg) {
		if pm, ok := msg.(promptMsg); ok {
			if pm.initial != "/reports/a.txt" {
				t.Errorf("unexpected initial path %q", pm.initial)
			}
			pm.reply <- promptResult{value: "/elsewhere/a.txt", ok: true}
		}
	}
	path, ok, err := a.PickDestination(context.Background(), "a.txt")
	if err != nil || !ok || path != "/elsewhere/a.txt" {
		t.Fatalf("unexpected result %q, %v, %v", path, ok, err)
	}
	if remembered != "/elsewhere" {
		t.Errorf("export dir not remembered, got %q", remembered)
	}

	s.hook = func(msg tea.Msg) {
		if pm, ok := msg.(promptMsg); ok {
			pm.reply <- promptResult{}
		}
	}
	if _, ok, err := a.PickDestination(context.Background(), "b.txt"); ok || err != nil {
		t.Errorf("cancel should return not ok without error, got %v, %v", ok, err)
	}

	s.hook = nil
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, _, err := a.PickDestination(ctx, "c.txt"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}
}
