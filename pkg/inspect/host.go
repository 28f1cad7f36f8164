package inspect

import (
	"context"
	"errors"

	"github.com/greg-hellings/patchinspect/pkg/l10n"
	"github.com/greg-hellings/patchinspect/pkg/patch"
	"github.com/greg-hellings/patchinspect/pkg/rpc"
)

// ErrNoConnection is returned when the inspector is opened without an active
// server connection.
var ErrNoConnection = errors.New("There is no server connected.") //nolint:staticcheck // user-facing text

// labelError shows a translated message and still matches its sentinel.
type labelError struct {
	msg string
	err error
}

func (e *labelError) Error() string { return e.msg }
func (e *labelError) Unwrap() error { return e.err }

// NoConnectionError returns ErrNoConnection carrying the message of labels.
func NoConnectionError(labels *l10n.Bundle) error {
	if labels == nil {
		return ErrNoConnection
	}
	return &labelError{msg: labels.T(l10n.KeyNoServer), err: ErrNoConnection}
}

// Surface is one presentation panel. Callbacks registered with
// OnDidDispose and OnDidReceiveMessage may be invoked from any goroutine.
type Surface interface {
	Post(msg Message) error
	Reveal()
	Dispose()
	OnDidDispose(fn func())
	OnDidReceiveMessage(fn func(Command))
}

// Host creates panels.
type Host interface {
	CreateSurface(title string) (Surface, error)
}

// Notifier shows messages to the user.
type Notifier interface {
	ShowError(msg string)
	ShowInfo(msg string)
}

// SessionContext identifies the connection a request is issued for.
type SessionContext struct {
	ConnectionToken    string
	AuthorizationToken string
	Environment        string
	IsLocal            bool
}

// ConnectionSource reports the currently selected connection.
type ConnectionSource interface {
	Current() (SessionContext, bool)
}

// ConnectionFunc adapts a function to ConnectionSource.
type ConnectionFunc func() (SessionContext, bool)

// Current implements ConnectionSource.
func (f ConnectionFunc) Current() (SessionContext, bool) { return f() }

// PatchInfoClient performs the remote metadata request.
type PatchInfoClient interface {
	PatchInfo(ctx context.Context, info rpc.PatchInfoInfo) ([]patch.Entry, error)
}

// Recorder is told about every patch path a request is issued for.
type Recorder interface {
	RecordPatch(path string)
}
