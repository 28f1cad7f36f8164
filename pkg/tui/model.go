package tui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/greg-hellings/patchinspect/pkg/inspect"
	"github.com/greg-hellings/patchinspect/pkg/l10n"
	"github.com/greg-hellings/patchinspect/pkg/patch"
)

// ResolveFunc maps a user-entered patch reference to a local path.
type ResolveFunc func(ctx context.Context, ref string) (string, error)

type (
	titleMsg     struct{ title string }
	patchPathMsg struct{ path string }
	dataMsg      struct{ entries []patch.Entry }
	statusMsg    struct {
		text string
		err  bool
	}
	promptMsg struct {
		kind    promptKind
		initial string
		reply   chan promptResult
	}
)

type promptKind int

const (
	promptNone promptKind = iota
	promptOpen
	promptSave
)

type promptResult struct {
	value string
	ok    bool
}

const (
	typeWidth  = 8
	buildWidth = 10
	dateWidth  = 20
	sizeWidth  = 10
	minName    = 20
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	pathStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	infoStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	promptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// Model is the bubbletea model of the inspector panel.
type Model struct {
	labels  *l10n.Bundle
	keys    keyMap
	help    help.Model
	table   table.Model
	filter  textinput.Model
	prompt  textinput.Model
	emit    func(inspect.Command)
	resolve ResolveFunc

	title      string
	patchPath  string
	entries    []patch.Entry
	shown      []patch.Entry
	status     string
	statusErr  bool
	promptKind promptKind
	reply      chan promptResult
	width      int
	height     int
}

// NewModel creates the panel model. emit receives the commands the user
// triggers; resolve may be nil.
func NewModel(labels *l10n.Bundle, emit func(inspect.Command), resolve ResolveFunc) *Model {
	if labels == nil {
		labels = l10n.Load(l10n.DefaultLocale)
	}
	if emit == nil {
		emit = func(inspect.Command) {}
	}

	filter := textinput.New()
	filter.Placeholder = labels.T(l10n.KeyFilter)
	filter.Prompt = "› "
	filter.CharLimit = 128
	filter.Focus()

	prompt := textinput.New()
	prompt.CharLimit = 1024

	m := &Model{
		labels:  labels,
		keys:    newKeyMap(labels),
		help:    help.New(),
		filter:  filter,
		prompt:  prompt,
		emit:    emit,
		resolve: resolve,
		title:   labels.T(l10n.KeyTitle),
		width:   120,
		height:  24,
	}
	m.table = table.New(
		table.WithColumns(m.columns()),
		table.WithFocused(true),
		table.WithKeyMap(tableKeys()),
		table.WithHeight(m.tableHeight()),
	)
	return m
}

func (m *Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.table.SetColumns(m.columns())
		m.table.SetHeight(m.tableHeight())
		m.help.Width = msg.Width
		return m, nil
	case titleMsg:
		m.title = msg.title
		return m, nil
	case patchPathMsg:
		m.patchPath = msg.path
		return m, nil
	case dataMsg:
		m.entries = msg.entries
		m.refilter()
		return m, nil
	case statusMsg:
		m.status, m.statusErr = msg.text, msg.err
		return m, nil
	case promptMsg:
		m.openPrompt(msg.kind, msg.initial, msg.reply)
		return m, textinput.Blink
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		m.answerPrompt(promptResult{})
		return m, tea.Quit
	}

	if m.promptKind != promptNone {
		switch {
		case key.Matches(msg, m.keys.Submit):
			return m, m.submitPrompt()
		case key.Matches(msg, m.keys.Cancel):
			m.answerPrompt(promptResult{})
			m.closePrompt()
			return m, nil
		}
		var cmd tea.Cmd
		m.prompt, cmd = m.prompt.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Close):
		m.emit(inspect.Close{})
		return m, nil
	case key.Matches(msg, m.keys.Export):
		m.emit(inspect.ExportPatchInfo{})
		return m, nil
	case key.Matches(msg, m.keys.Open):
		m.openPrompt(promptOpen, m.patchPath, nil)
		return m, textinput.Blink
	}

	for _, b := range []key.Binding{
		m.table.KeyMap.LineUp, m.table.KeyMap.LineDown,
		m.table.KeyMap.PageUp, m.table.KeyMap.PageDown,
		m.table.KeyMap.HalfPageUp, m.table.KeyMap.HalfPageDown,
		m.table.KeyMap.GotoTop, m.table.KeyMap.GotoBottom,
	} {
		if key.Matches(msg, b) {
			var cmd tea.Cmd
			m.table, cmd = m.table.Update(msg)
			return m, cmd
		}
	}

	before := m.filter.Value()
	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	if m.filter.Value() != before {
		m.refilter()
	}
	return m, cmd
}

func (m *Model) openPrompt(kind promptKind, initial string, reply chan promptResult) {
	m.answerPrompt(promptResult{})
	m.promptKind = kind
	m.reply = reply
	switch kind {
	case promptSave:
		m.prompt.Prompt = m.labels.T(l10n.KeySaveAs) + ": "
	default:
		m.prompt.Prompt = m.labels.T(l10n.KeyOpen) + ": "
	}
	m.prompt.SetValue(initial)
	m.prompt.CursorEnd()
	m.prompt.Focus()
	m.filter.Blur()
}

func (m *Model) closePrompt() {
	m.promptKind = promptNone
	m.reply = nil
	m.prompt.Blur()
	m.filter.Focus()
}

// answerPrompt delivers r to a waiting destination prompt, if any.
func (m *Model) answerPrompt(r promptResult) {
	if m.reply != nil {
		m.reply <- r
		m.reply = nil
	}
}

func (m *Model) submitPrompt() tea.Cmd {
	value := m.prompt.Value()
	kind := m.promptKind
	if value == "" {
		return nil
	}
	m.answerPrompt(promptResult{value: value, ok: true})
	m.closePrompt()

	if kind != promptOpen {
		return nil
	}
	m.patchPath = value
	if m.resolve == nil {
		m.emit(inspect.PatchInfo{PatchFile: value})
		return nil
	}
	resolve, emit := m.resolve, m.emit
	return func() tea.Msg {
		local, err := resolve(context.Background(), value)
		if err != nil {
			return statusMsg{text: err.Error(), err: true}
		}
		emit(inspect.PatchInfo{PatchFile: local})
		if local != value {
			return patchPathMsg{path: local}
		}
		return nil
	}
}

func (m *Model) refilter() {
	m.shown = patch.Filter(m.entries, m.filter.Value())
	rows := make([]table.Row, 0, len(m.shown))
	for _, e := range m.shown {
		rows = append(rows, table.Row{e.Name, e.Type, e.BuildType, e.Date, e.Size})
	}
	m.table.SetRows(rows)
	m.table.GotoTop()
}

func (m *Model) columns() []table.Column {
	name := m.width - typeWidth - buildWidth - dateWidth - sizeWidth - 12
	if name < minName {
		name = minName
	}
	return []table.Column{
		{Title: m.labels.T(l10n.KeyColName), Width: name},
		{Title: m.labels.T(l10n.KeyColType), Width: typeWidth},
		{Title: m.labels.T(l10n.KeyColBuild), Width: buildWidth},
		{Title: m.labels.T(l10n.KeyColDate), Width: dateWidth},
		{Title: m.labels.T(l10n.KeyColSize), Width: sizeWidth},
	}
}

func (m *Model) tableHeight() int {
	h := m.height - 9
	if h < 3 {
		h = 3
	}
	return h
}

// Shown returns the entries passing the current filter.
func (m *Model) Shown() []patch.Entry {
	return m.shown
}

func (m *Model) View() string {
	header := titleStyle.Render(m.title)
	if m.patchPath != "" {
		header += "  " + pathStyle.Render(m.patchPath)
	}

	count := fmt.Sprintf("%s: %d/%d", m.labels.T(l10n.KeyItemsShowing), len(m.shown), len(m.entries))

	status := ""
	if m.status != "" {
		if m.statusErr {
			status = errorStyle.Render(m.status)
		} else {
			status = infoStyle.Render(m.status)
		}
	}

	parts := []string{header, m.filter.View(), m.table.View(), count}
	if m.promptKind != promptNone {
		parts = append(parts, promptStyle.Render(m.prompt.View()))
	}
	parts = append(parts, status, m.help.View(m.keys))
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}
