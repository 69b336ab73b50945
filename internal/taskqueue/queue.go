// Package taskqueue implements the blocking FIFO that carries work from any
// number of producer goroutines to the single goroutine that owns the script
// engine.
//
// A Queue preserves insertion order exactly: there is no priority and no
// reordering, so tasks submitted by one producer run in program order. Close
// appends a poison task; everything accepted before it is still delivered, and
// the consumer stops once it takes the poison.
package taskqueue

import (
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned by Put after Close.
var ErrClosed = errors.New("taskqueue: closed")

var now = time.Now

// Queue is a multi-producer, single-consumer blocking queue of tasks. The zero
// value is not usable; use New.
type Queue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	items    []*Task
	capacity int
	closed   bool
	poison   *Task
}

// Option configures a Queue.
type Option func(*Queue)

// WithCapacity bounds the queue; Put blocks while it is full. Zero or a
// negative value means unbounded, which is the default.
func WithCapacity(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.capacity = n
		}
	}
}

// New creates an empty queue.
func New(opts ...Option) *Queue {
	q := &Queue{}
	for _, opt := range opts {
		opt(q)
	}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Put appends t. It blocks while a bounded queue is full, and fails with
// ErrClosed if the queue is or becomes closed.
func (q *Queue) Put(t *Task) error {
	if t == nil {
		return errors.New("taskqueue: nil task")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for !q.closed && q.capacity > 0 && len(q.items) >= q.capacity {
		q.notFull.Wait()
	}
	if q.closed {
		return ErrClosed
	}
	t.enqueued = now()
	q.items = append(q.items, t)
	q.notEmpty.Signal()
	return nil
}

// Take removes and returns the oldest task, blocking until one is available.
// Once the queue is closed and every task accepted before Close has been
// taken, Take returns the poison task, repeatedly.
func (q *Queue) Take() *Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if len(q.items) == 0 {
		return q.poison
	}
	t := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	if len(q.items) == 0 {
		// release the backing array once drained
		q.items = nil
	}
	q.notFull.Signal()
	return t
}

// Close marks the queue closed. Pending tasks are still delivered; blocked
// producers are released with ErrClosed. Close is idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.poison = newPoison()
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len returns the number of tasks waiting to be taken, excluding the poison.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
