package inspect

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/greg-hellings/patchinspect/pkg/patch"
	"github.com/greg-hellings/patchinspect/pkg/rpc"
)

// manualLoop is a Scheduler the test drains explicitly.
type manualLoop struct {
	mu     sync.Mutex
	queue  []func()
	notify chan struct{}
}

func newManualLoop() *manualLoop {
	return &manualLoop{notify: make(chan struct{}, 1)}
}

func (m *manualLoop) Post(fn func()) bool {
	m.mu.Lock()
	m.queue = append(m.queue, fn)
	m.mu.Unlock()
	select {
	case m.notify <- struct{}{}:
	default:
	}
	return true
}

func (m *manualLoop) drain() {
	for {
		m.mu.Lock()
		q := m.queue
		m.queue = nil
		m.mu.Unlock()
		if len(q) == 0 {
			return
		}
		for _, fn := range q {
			fn()
		}
	}
}

// waitFor drains the loop until cond holds.
func (m *manualLoop) waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		m.drain()
		if cond() {
			return
		}
		select {
		case <-m.notify:
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		}
	}
}

type fakeSurface struct {
	mu          sync.Mutex
	posts       []Message
	reveals     int
	disposed    bool
	onDispose   []func()
	onMessage   []func(Command)
	postsAfterD int
}

func (f *fakeSurface) Post(msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.disposed {
		f.postsAfterD++
		return errors.New("surface disposed")
	}
	f.posts = append(f.posts, msg)
	return nil
}

func (f *fakeSurface) Reveal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reveals++
}

// Dispose mimics a host: the dispose event fires asynchronously.
func (f *fakeSurface) Dispose() {
	f.mu.Lock()
	f.disposed = true
	handlers := append([]func(){}, f.onDispose...)
	f.mu.Unlock()
	go func() {
		for _, fn := range handlers {
			fn()
		}
	}()
}

func (f *fakeSurface) OnDidDispose(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onDispose = append(f.onDispose, fn)
}

func (f *fakeSurface) OnDidReceiveMessage(fn func(Command)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onMessage = append(f.onMessage, fn)
}

// send simulates the panel emitting cmd.
func (f *fakeSurface) send(cmd Command) {
	f.mu.Lock()
	handlers := append([]func(Command){}, f.onMessage...)
	f.mu.Unlock()
	for _, fn := range handlers {
		fn(cmd)
	}
}

// userClose simulates the user closing the panel from the host side.
func (f *fakeSurface) userClose() {
	f.Dispose()
}

func (f *fakeSurface) snapshot() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.posts...)
}

func (f *fakeSurface) lastPost() Message {
	posts := f.snapshot()
	if len(posts) == 0 {
		return nil
	}
	return posts[len(posts)-1]
}

type fakeHost struct {
	surfaces []*fakeSurface
	titles   []string
	err      error
}

func (h *fakeHost) CreateSurface(title string) (Surface, error) {
	if h.err != nil {
		return nil, h.err
	}
	s := &fakeSurface{}
	h.surfaces = append(h.surfaces, s)
	h.titles = append(h.titles, title)
	return s, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	errors []string
	infos  []string
}

func (n *fakeNotifier) ShowError(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, msg)
}

func (n *fakeNotifier) ShowInfo(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.infos = append(n.infos, msg)
}

func (n *fakeNotifier) errorCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.errors)
}

func (n *fakeNotifier) infoCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.infos)
}

type reply struct {
	entries []patch.Entry
	err     error
}

// fakeClient answers requests with queued replies. When gated, each call
// waits for a release before answering.
type fakeClient struct {
	mu      sync.Mutex
	replies map[string]reply
	gates   map[string]chan struct{}
	calls   []rpc.PatchInfoInfo
	done    int
}

func newFakeClient() *fakeClient {
	return &fakeClient{replies: map[string]reply{}, gates: map[string]chan struct{}{}}
}

func (c *fakeClient) on(path string, r reply) *fakeClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies[rpc.FileURI(path)] = r
	return c
}

func (c *fakeClient) gate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gates[rpc.FileURI(path)] = make(chan struct{})
}

func (c *fakeClient) release(path string) {
	c.mu.Lock()
	ch := c.gates[rpc.FileURI(path)]
	c.mu.Unlock()
	close(ch)
}

func (c *fakeClient) PatchInfo(ctx context.Context, info rpc.PatchInfoInfo) ([]patch.Entry, error) {
	c.mu.Lock()
	c.calls = append(c.calls, info)
	gate := c.gates[info.PatchURI]
	r, ok := c.replies[info.PatchURI]
	c.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	defer func() {
		c.mu.Lock()
		c.done++
		c.mu.Unlock()
	}()
	if !ok {
		return nil, &rpc.ResponseError{Code: -32603, Message: "Patch file not found"}
	}
	return r.entries, r.err
}

func (c *fakeClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func (c *fakeClient) doneCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

type fakePicker struct {
	mu    sync.Mutex
	path  string
	ok    bool
	calls int
}

func (p *fakePicker) PickDestination(_ context.Context, _ string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.path, p.ok, nil
}

type fakeWriter struct {
	mu     sync.Mutex
	writes map[string][]byte
}

func (w *fakeWriter) WriteFile(path string, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.writes == nil {
		w.writes = map[string][]byte{}
	}
	w.writes[path] = data
	return nil
}

func (w *fakeWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.writes)
}

type recorder struct{ paths []string }

func (r *recorder) RecordPatch(p string) { r.paths = append(r.paths, p) }

var connected = ConnectionFunc(func() (SessionContext, bool) {
	return SessionContext{ConnectionToken: "conn", AuthorizationToken: "auth", Environment: "P12", IsLocal: true}, true
})

var disconnected = ConnectionFunc(func() (SessionContext, bool) { return SessionContext{}, false })

type harness struct {
	loop     *manualLoop
	host     *fakeHost
	notifier *fakeNotifier
	client   *fakeClient
	picker   *fakePicker
	writer   *fakeWriter
	recorder *recorder
	session  *Session
	boot     *Bootstrap
}

func newHarness(t *testing.T, conns ConnectionSource) *harness {
	t.Helper()
	h := &harness{
		loop:     newManualLoop(),
		host:     &fakeHost{},
		notifier: &fakeNotifier{},
		client:   newFakeClient(),
		picker:   &fakePicker{},
		writer:   &fakeWriter{},
		recorder: &recorder{},
	}
	s, err := NewSession(Config{
		Scheduler:   h.loop,
		Connections: conns,
		Client:      h.client,
		Notifier:    h.notifier,
		Picker:      h.picker,
		Writer:      h.writer,
		Recorder:    h.recorder,
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	h.session = s
	h.boot = NewBootstrap(s, h.host)
	t.Cleanup(s.Wait)
	return h
}
