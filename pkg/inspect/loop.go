package inspect

import (
	"context"
	"sync"
)

// Scheduler runs tasks on the goroutine that owns session state. Post
// returns false once the scheduler no longer accepts work.
type Scheduler interface {
	Post(fn func()) bool
}

// Loop is a Scheduler draining an unbounded FIFO queue on the goroutine
// calling Run. Post never blocks, so tasks may post further tasks.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	done    chan struct{}
	stopped bool
}

// NewLoop creates an idle loop.
func NewLoop() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Post enqueues fn.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Run executes posted tasks in order until ctx is cancelled or Stop is
// called. Tasks already queued when Stop is called are still run.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.drain()
		select {
		case <-ctx.Done():
			l.Stop()
			return ctx.Err()
		case <-l.done:
			l.drain()
			return nil
		case <-l.wake:
		}
	}
}

// Stop makes Post refuse new work and ends Run.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.stopped {
		l.stopped = true
		close(l.done)
	}
}

// Done is closed once Stop has been called.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) drain() {
	for {
		l.mu.Lock()
		q := l.queue
		l.queue = nil
		l.mu.Unlock()
		if len(q) == 0 {
			return
		}
		for _, fn := range q {
			fn()
		}
	}
}
