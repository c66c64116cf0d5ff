// Package ticker runs a function repeatedly, scheduling each run only after the
// previous one has returned.
package ticker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

var ErrStarted = errors.New("task already started")

// Func is one tick. ctx is cancelled when the task is stopped.
type Func func(ctx context.Context)

// Task is single use: Start it once, Stop it once.
type Task struct {
	clock    clock.Clock
	interval time.Duration
	fn       Func

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(clk clock.Clock, interval time.Duration, fn Func) *Task {
	if clk == nil {
		clk = clock.New()
	}
	return &Task{
		clock:    clk,
		interval: interval,
		fn:       fn,
		done:     make(chan struct{}),
	}
}

// Start runs the first tick immediately on a new goroutine.
func (t *Task) Start(parent context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return ErrStarted
	}
	t.started = true

	ctx, cancel := context.WithCancel(parent)
	t.cancel = cancel
	go t.run(ctx)
	return nil
}

// Stop cancels the pending tick and returns without waiting. A tick already running
// sees its context cancelled and finishes on its own; Done closes after it.
func (t *Task) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started {
		t.started = true
		close(t.done)
		return
	}
	if t.cancel != nil {
		t.cancel()
	}
}

// Done is closed once the task goroutine has exited.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

func (t *Task) run(ctx context.Context) {
	defer close(t.done)
	defer t.cancel()

	for {
		t.fn(ctx)
		if ctx.Err() != nil {
			return
		}

		timer := t.clock.Timer(t.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
