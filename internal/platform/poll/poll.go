// Package poll runs a function on a fixed interval until it finishes, its
// context is cancelled or the task is stopped.
package poll

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Done is returned by a poll function to end the task without error.
var Done = errors.New("poll: done")

// Func is invoked on every tick.
type Func func(ctx context.Context) error

// Task is a running poller.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	mu  sync.Mutex
	err error
}

// Start runs fn immediately and then every interval. A non-nil error other
// than Done is recorded and ends the task.
func Start(ctx context.Context, interval time.Duration, fn Func) *Task {
	if interval <= 0 {
		interval = time.Second
	}
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{cancel: cancel, done: make(chan struct{})}
	go t.loop(ctx, interval, fn)
	return t
}

func (t *Task) loop(ctx context.Context, interval time.Duration, fn Func) {
	defer close(t.done)
	defer t.cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := fn(ctx); err != nil {
			if !errors.Is(err, Done) && ctx.Err() == nil {
				t.setErr(err)
			}
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop cancels the task and blocks until its goroutine has exited.
func (t *Task) Stop() {
	if t == nil {
		return
	}
	t.once.Do(t.cancel)
	<-t.done
}

// Done is closed once the task has exited.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Err returns the error that ended the task, if any.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Task) setErr(err error) {
	t.mu.Lock()
	t.err = err
	t.mu.Unlock()
}
