// Package inspect implements the patch inspection session: the singleton
// panel, the metadata requests it triggers and the export of their result.
//
// All Session and Bootstrap methods must be called on the Scheduler's
// goroutine. Remote requests, destination prompts and file writes run on
// their own goroutines and post their continuations back to the Scheduler.
package inspect

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/greg-hellings/patchinspect/pkg/export"
	"github.com/greg-hellings/patchinspect/pkg/l10n"
	"github.com/greg-hellings/patchinspect/pkg/patch"
	"github.com/greg-hellings/patchinspect/pkg/rpc"
)

// PanelState is the lifecycle state of the panel handle.
type PanelState int

// Panel lifecycle: Absent → Created → Active → Disposed → Absent.
const (
	PanelAbsent PanelState = iota
	PanelCreated
	PanelActive
	PanelDisposed
)

func (s PanelState) String() string {
	switch s {
	case PanelCreated:
		return "created"
	case PanelActive:
		return "active"
	case PanelDisposed:
		return "disposed"
	default:
		return "absent"
	}
}

type panel struct {
	surface Surface
	state   PanelState
}

// Config wires a Session to its collaborators. Scheduler, Connections,
// Client and Notifier are required.
type Config struct {
	Scheduler   Scheduler
	Connections ConnectionSource
	Client      PatchInfoClient
	Notifier    Notifier
	Picker      export.Picker
	Writer      export.Writer
	Recorder    Recorder
	Labels      *l10n.Bundle
	Logger      *slog.Logger
	// Context bounds background requests. Defaults to context.Background.
	Context context.Context
}

// Session mediates between the panel and the remote metadata endpoint. It
// owns the dataset and the panel handle.
type Session struct {
	sched    Scheduler
	conns    ConnectionSource
	client   PatchInfoClient
	notifier Notifier
	recorder Recorder
	labels   *l10n.Bundle
	logger   *slog.Logger
	ctx      context.Context

	dataset  *patch.Dataset
	exporter *export.Controller
	panel    *panel

	inflight sync.WaitGroup
}

// NewSession creates a session with an absent dataset and no panel.
func NewSession(cfg Config) (*Session, error) {
	if cfg.Scheduler == nil || cfg.Connections == nil || cfg.Client == nil || cfg.Notifier == nil {
		return nil, fmt.Errorf("inspect: scheduler, connections, client and notifier are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	labels := cfg.Labels
	if labels == nil {
		labels = l10n.Load(l10n.DefaultLocale)
	}
	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}

	s := &Session{
		sched:    cfg.Scheduler,
		conns:    cfg.Connections,
		client:   cfg.Client,
		notifier: cfg.Notifier,
		recorder: cfg.Recorder,
		labels:   labels,
		logger:   logger,
		ctx:      ctx,
		dataset:  patch.NewDataset(),
	}
	s.exporter = export.NewController(s.dataset, cfg.Picker, cfg.Writer).WithLogger(logger)
	return s, nil
}

// Dataset returns the session's dataset. Read it on the scheduler goroutine.
func (s *Session) Dataset() *patch.Dataset {
	return s.dataset
}

// PanelState reports the state of the current panel handle.
func (s *Session) PanelState() PanelState {
	if s.panel == nil {
		return PanelAbsent
	}
	return s.panel.state
}

// Wait blocks until all background work started by the session returned.
func (s *Session) Wait() {
	s.inflight.Wait()
}

// Drain runs the tasks already queued on the scheduler, waits for the
// requests they started and then runs the continuations those requests
// queued. The scheduler must be running.
func (s *Session) Drain() {
	s.flush()
	s.inflight.Wait()
	s.flush()
}

func (s *Session) flush() {
	flushed := make(chan struct{})
	if s.sched.Post(func() { close(flushed) }) {
		<-flushed
	}
}

// HandleInbound dispatches a panel command. Unknown commands are ignored.
func (s *Session) HandleInbound(cmd Command) {
	switch c := cmd.(type) {
	case PatchInfo:
		s.RequestMetadata(c.PatchFile)
	case ExportPatchInfo:
		s.Export()
	case Close:
		s.ClosePanel()
	case Unknown:
		s.logger.Debug("Ignoring unknown panel command", "command", c.Name)
	default:
		s.logger.Debug("Ignoring unexpected panel command", "type", fmt.Sprintf("%T", cmd))
	}
}

// RequestMetadata asks the server for the entries of patchFile. On success
// the dataset is replaced and posted to the panel that was current when the
// request was issued, if it is still live. On failure the dataset is kept
// and the error message is shown to the user. Concurrent requests are not
// cancelled: the last one to complete wins.
func (s *Session) RequestMetadata(patchFile string) {
	sc, ok := s.conns.Current()
	if !ok {
		s.notifier.ShowError(s.labels.T(l10n.KeyNoServer))
		return
	}

	info := rpc.PatchInfoInfo{
		ConnectionToken:    sc.ConnectionToken,
		AuthorizationToken: sc.AuthorizationToken,
		Environment:        sc.Environment,
		PatchURI:           rpc.FileURI(patchFile),
		IsLocal:            true,
	}
	issuedFor := s.panel
	if s.recorder != nil {
		s.recorder.RecordPatch(patchFile)
	}
	s.logger.Info("Requesting patch info", "patch", patchFile, "environment", sc.Environment)

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		entries, err := s.client.PatchInfo(s.ctx, info)
		if !s.sched.Post(func() { s.completeRequest(issuedFor, patchFile, entries, err) }) {
			s.logger.Debug("Dropping patch info result after shutdown", "patch", patchFile)
		}
	}()
}

func (s *Session) completeRequest(issuedFor *panel, patchFile string, entries []patch.Entry, err error) {
	if err != nil {
		s.logger.Warn("Patch info request failed", "patch", patchFile, "error", err)
		s.notifier.ShowError(err.Error())
		return
	}

	s.dataset.Replace(patchFile, entries)
	s.logger.Info("Patch info received", "patch", patchFile, "entries", len(entries))
	s.post(issuedFor, SetData{Data: s.dataset.Entries()})
}

// Export writes the dataset to a file chosen by the user. Nothing happens
// when there is no dataset or the user cancels.
func (s *Session) Export() {
	job := s.exporter.Plan()
	if job == nil {
		return
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		res, err := job.Run(s.ctx)
		s.sched.Post(func() { s.completeExport(res, err) })
	}()
}

func (s *Session) completeExport(res *export.Result, err error) {
	switch {
	case err != nil:
		s.logger.Warn("Export failed", "error", err)
		s.notifier.ShowError(err.Error())
	case res != nil:
		s.notifier.ShowInfo(fmt.Sprintf("%s %s", s.labels.T(l10n.KeyExported), res.Path))
	}
}

// ClosePanel disposes the active panel, if any.
func (s *Session) ClosePanel() {
	p := s.panel
	if p == nil || p.state == PanelDisposed {
		return
	}
	p.state = PanelDisposed
	s.panel = nil
	p.surface.Dispose()
}

// panelDisposed runs when a surface reports its disposal.
func (s *Session) panelDisposed(p *panel) {
	defer func() {
		if s.panel == p {
			s.panel = nil
		}
	}()
	p.state = PanelDisposed
	s.logger.Debug("Panel disposed")
}

// post sends msg to p if p is still the live panel.
func (s *Session) post(p *panel, msg Message) bool {
	if p == nil || p != s.panel || p.state != PanelActive {
		s.logger.Debug("Not posting to inactive panel", "command", msg.CommandName())
		return false
	}
	if err := p.surface.Post(msg); err != nil {
		s.logger.Warn("Failed to post to panel", "command", msg.CommandName(), "error", err)
		return false
	}
	return true
}
