package tui

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"

	"github.com/greg-hellings/patchinspect/pkg/l10n"
)

type keyMap struct {
	Export key.Binding
	Open   key.Binding
	Close  key.Binding
	Quit   key.Binding
	Up     key.Binding
	Down   key.Binding
	Submit key.Binding
	Cancel key.Binding
}

func newKeyMap(labels *l10n.Bundle) keyMap {
	return keyMap{
		Export: key.NewBinding(key.WithKeys("ctrl+e"), key.WithHelp("ctrl+e", labels.T(l10n.KeyExport))),
		Open:   key.NewBinding(key.WithKeys("ctrl+o"), key.WithHelp("ctrl+o", labels.T(l10n.KeyOpen))),
		Close:  key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", labels.T(l10n.KeyClose))),
		Quit:   key.NewBinding(key.WithKeys("ctrl+c")),
		Up:     key.NewBinding(key.WithKeys("up"), key.WithHelp("↑/↓", "scroll")),
		Down:   key.NewBinding(key.WithKeys("down")),
		Submit: key.NewBinding(key.WithKeys("enter")),
		Cancel: key.NewBinding(key.WithKeys("esc")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Export, k.Open, k.Close}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

// tableKeys keeps letters free for the filter input.
func tableKeys() table.KeyMap {
	return table.KeyMap{
		LineUp:       key.NewBinding(key.WithKeys("up")),
		LineDown:     key.NewBinding(key.WithKeys("down")),
		PageUp:       key.NewBinding(key.WithKeys("pgup")),
		PageDown:     key.NewBinding(key.WithKeys("pgdown")),
		HalfPageUp:   key.NewBinding(key.WithKeys("ctrl+u")),
		HalfPageDown: key.NewBinding(key.WithKeys("ctrl+d")),
		GotoTop:      key.NewBinding(key.WithKeys("home")),
		GotoBottom:   key.NewBinding(key.WithKeys("end")),
	}
}
