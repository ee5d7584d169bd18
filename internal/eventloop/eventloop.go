// Package eventloop implements the single-threaded cooperative scheduling
// model spec.md §5 requires: every IAP state transition, module callback,
// script exit, and timer fire runs on one goroutine, so the state machine
// itself needs no internal locking beyond checking its own state field.
// Work originating on other goroutines (module RPCs, exec.Cmd.Wait,
// time.AfterFunc) is handed back to the loop via Post.
package eventloop

import (
	"context"
	"log/slog"
)

// Loop drains a work queue on a single goroutine until its context is
// cancelled.
type Loop struct {
	work chan func()
	done chan struct{}
}

// New creates a Loop with the given queue depth. A depth of 0 makes Post
// block until the loop goroutine is ready for it, which is the tightest
// possible backpressure; callers that can't afford to block should size
// the queue instead.
func New(queueDepth int) *Loop {
	return &Loop{
		work: make(chan func(), queueDepth),
		done: make(chan struct{}),
	}
}

// Run drains the queue until ctx is cancelled, executing each posted
// function in order on the calling goroutine. Call this once, from the
// goroutine that is to become "the" event loop goroutine.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-l.work:
			l.runOne(fn)
		}
	}
}

func (l *Loop) runOne(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("eventloop: recovered panic in posted work", "panic", r)
		}
	}()
	fn()
}

// Post enqueues fn to run on the loop goroutine. Safe to call from any
// goroutine. The send blocks while the queue is full, so a call from the
// loop goroutine itself returns only if the queue has room; otherwise it
// never returns.
func (l *Loop) Post(fn func()) {
	l.work <- fn
}

// Done returns a channel closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}
