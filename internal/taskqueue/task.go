package taskqueue

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Task is a unit of work plus its completion slot. The producer keeps the
// pointer to wait on it, the consumer runs it. Run executes the closure at most
// once, and the completion is signalled exactly once, by Run or Abandon.
type Task struct {
	id       uuid.UUID
	fn       func() (any, error)
	poison   bool
	enqueued time.Time

	ran  atomic.Bool
	once sync.Once
	done chan struct{}

	value any
	err   error
}

// NewTask wraps fn in a task that has not been scheduled yet.
func NewTask(fn func() (any, error)) *Task {
	return &Task{
		id:   uuid.New(),
		fn:   fn,
		done: make(chan struct{}),
	}
}

func newPoison() *Task {
	t := NewTask(nil)
	t.poison = true
	return t
}

// ID returns the task's identifier, used to correlate log lines.
func (t *Task) ID() uuid.UUID { return t.id }

// Poison reports whether this is the shutdown marker produced by Queue.Close.
func (t *Task) Poison() bool { return t.poison }

// Enqueued returns the time at which the task was accepted by a queue, or the
// zero time if it never was.
func (t *Task) Enqueued() time.Time { return t.enqueued }

// Done is closed once the task has completed.
func (t *Task) Done() <-chan struct{} { return t.done }

// Run executes the closure on the calling goroutine and fills the completion
// slot. Panics are recovered and reported as errors, so the caller (the loop)
// always proceeds. Calls after the first are no-ops, as are calls on the
// poison task.
func (t *Task) Run() {
	if t.poison || !t.ran.CompareAndSwap(false, true) {
		return
	}
	var (
		value any
		err   error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				value, err = nil, recoveredError(r)
			}
		}()
		value, err = t.fn()
	}()
	t.complete(value, err)
}

// Abandon completes the task with err without running it. It is used when a
// task can no longer be delivered, e.g. after shutdown.
func (t *Task) Abandon(err error) {
	if !t.ran.CompareAndSwap(false, true) {
		return
	}
	t.complete(nil, err)
}

func (t *Task) complete(value any, err error) {
	t.once.Do(func() {
		t.value, t.err = value, err
		close(t.done)
	})
}

// Wait blocks until the task completes or ctx is done. A context error does
// not stop the task, it only stops waiting for it.
func (t *Task) Wait(ctx context.Context) (any, error) {
	select {
	case <-t.done:
		return t.value, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result blocks until the task completes and returns its outcome.
func (t *Task) Result() (any, error) {
	<-t.done
	return t.value, t.err
}

// Passthrough is implemented by panic values that carry an error which should
// reach the waiting producer unchanged, rather than as a PanicError.
type Passthrough interface {
	PassthroughError() error
}

// PanicError reports a panic recovered while running a task.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

// Unwrap exposes the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

func recoveredError(r any) error {
	if p, ok := r.(Passthrough); ok {
		if err := p.PassthroughError(); err != nil {
			return err
		}
	}
	return &PanicError{Value: r, Stack: debug.Stack()}
}
