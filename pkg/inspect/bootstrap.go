package inspect

import (
	"fmt"

	"github.com/greg-hellings/patchinspect/pkg/l10n"
)

// OpenArgs are the arguments of an inspector invocation.
type OpenArgs struct {
	// FSPath is the patch file the inspector was invoked on, if any.
	FSPath string
}

// Bootstrap opens or reuses the singleton panel of a Session.
type Bootstrap struct {
	session *Session
	host    Host
}

// NewBootstrap creates a bootstrap creating panels through host.
func NewBootstrap(session *Session, host Host) *Bootstrap {
	return &Bootstrap{session: session, host: host}
}

// Open ensures the panel exists and is in front. A new panel is wired to the
// session exactly once; an existing one is only revealed. When args carries
// a path it is posted to the panel and requested, on every invocation.
// Without a connection nothing is created and ErrNoConnection is returned.
func (b *Bootstrap) Open(args OpenArgs) error {
	s := b.session
	if _, ok := s.conns.Current(); !ok {
		err := NoConnectionError(s.labels)
		s.notifier.ShowError(err.Error())
		return err
	}

	if s.panel == nil {
		if err := b.create(); err != nil {
			s.notifier.ShowError(err.Error())
			return err
		}
	} else {
		s.panel.surface.Reveal()
	}

	if args.FSPath != "" {
		s.post(s.panel, SetPatchPath{Path: args.FSPath})
		s.RequestMetadata(args.FSPath)
	}
	return nil
}

func (b *Bootstrap) create() error {
	s := b.session
	surface, err := b.host.CreateSurface(s.labels.T(l10n.KeyTitle))
	if err != nil {
		return fmt.Errorf("failed to create panel: %w", err)
	}

	p := &panel{surface: surface, state: PanelCreated}
	s.panel = p

	surface.OnDidDispose(func() {
		s.sched.Post(func() { s.panelDisposed(p) })
	})
	surface.OnDidReceiveMessage(func(cmd Command) {
		s.sched.Post(func() {
			if s.panel == p {
				s.HandleInbound(cmd)
			}
		})
	})

	p.state = PanelActive
	s.logger.Debug("Panel created")
	return nil
}
