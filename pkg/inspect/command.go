package inspect

import (
	"encoding/json"
	"fmt"

	"github.com/greg-hellings/patchinspect/pkg/patch"
)

// Wire command tags.
const (
	CommandPatchInfo       = "patchInfo"
	CommandExportPatchInfo = "exportPatchInfo"
	CommandClose           = "close"
	CommandSetPatchPath    = "setPatchPath"
	CommandSetData         = "setData"
)

// Command is a message sent by the panel to the session.
type Command interface {
	isCommand()
}

// PatchInfo asks for the metadata of PatchFile.
type PatchInfo struct {
	PatchFile string
}

// ExportPatchInfo asks to export the current dataset.
type ExportPatchInfo struct{}

// Close asks to dispose the panel.
type Close struct{}

// Unknown is any command tag this version does not understand.
type Unknown struct {
	Name string
}

func (PatchInfo) isCommand()       {}
func (ExportPatchInfo) isCommand() {}
func (Close) isCommand()           {}
func (Unknown) isCommand()         {}

// InboundMessage is the wire form of a Command.
type InboundMessage struct {
	Command   string `json:"command"`
	PatchFile string `json:"patchFile,omitempty"`
}

// ToCommand converts the wire form into a Command.
func (m InboundMessage) ToCommand() Command {
	switch m.Command {
	case CommandPatchInfo:
		return PatchInfo{PatchFile: m.PatchFile}
	case CommandExportPatchInfo:
		return ExportPatchInfo{}
	case CommandClose:
		return Close{}
	default:
		return Unknown{Name: m.Command}
	}
}

// DecodeCommand parses one JSON inbound message.
func DecodeCommand(data []byte) (Command, error) {
	var m InboundMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid inbound message: %w", err)
	}
	return m.ToCommand(), nil
}

// Message is a message posted by the session to the panel.
type Message interface {
	CommandName() string
}

// SetPatchPath tells the panel which patch is being inspected.
type SetPatchPath struct {
	Path string
}

// SetData carries the full dataset to display.
type SetData struct {
	Data []patch.Entry
}

// CommandName implements Message.
func (SetPatchPath) CommandName() string { return CommandSetPatchPath }

// CommandName implements Message.
func (SetData) CommandName() string { return CommandSetData }

// MarshalJSON emits {"command":"setPatchPath","path":...}.
func (m SetPatchPath) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Command string `json:"command"`
		Path    string `json:"path"`
	}{CommandSetPatchPath, m.Path})
}

// MarshalJSON emits {"command":"setData","data":[...]}; data is never null.
func (m SetData) MarshalJSON() ([]byte, error) {
	data := m.Data
	if data == nil {
		data = []patch.Entry{}
	}
	return json.Marshal(struct {
		Command string        `json:"command"`
		Data    []patch.Entry `json:"data"`
	}{CommandSetData, data})
}
