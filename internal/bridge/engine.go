package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/dop251/goja_nodejs/require"
	"github.com/joeycumines/hostbridge/internal/goroutineid"
	"github.com/joeycumines/hostbridge/internal/taskqueue"
)

// Engine owns a goja runtime and the single goroutine allowed to touch it.
//
// Key Design Principles:
//   - goja.Runtime is NOT goroutine-safe; all access happens inside tasks
//     delivered through Submit and friends
//   - tasks travel through a FIFO taskqueue.Queue; a relay goroutine takes
//     them one at a time and hands them to the event loop
//   - a task runs to completion before the next one starts, and its failure
//     never stops the loop
//   - values obtained inside a task are only usable inside that task
//
// Usage:
//
//	e, err := New(WithArgs(os.Args[1:]))
//	if err != nil { ... }
//	if err := e.Start(); err != nil { ... }
//	defer e.Close()
//
//	v, err := Run(e, func(s *Scope) (int, error) {
//	    return EvalAs[int](s, "1+1")
//	})
type Engine struct {
	loop     *eventloop.EventLoop
	registry *require.Registry
	queue    *taskqueue.Queue
	logger   *slog.Logger
	opts     options

	// loopID is the goroutine id of the event loop, captured at boot.
	loopID atomic.Int64
	closed atomic.Bool

	// The fields below are only touched on the engine goroutine.
	vm          *goja.Runtime
	evalFn      goja.Callable
	objectProto *goja.Object
	slot        globalSlot
	seq         uint64
	// window is the sequence number of the task currently executing, or 0.
	window uint64

	// argv is set by the bootstrap handoff and read-only once Start returns.
	argv []string

	mu      sync.RWMutex
	started bool
	stopped bool

	relayDone chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
}

// New creates an Engine. Nothing runs until Start.
func New(opts ...Option) (*Engine, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.bootSource == "" {
		return nil, errors.New("bridge: empty boot script")
	}
	registry := o.registry
	if registry == nil {
		registry = require.NewRegistry()
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		registry:  registry,
		queue:     taskqueue.New(taskqueue.WithCapacity(o.queueCapacity)),
		logger:    o.logger,
		opts:      o,
		argv:      o.args,
		relayDone: make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}

	registry.RegisterNativeModule(hostModuleName, e.requireHost)
	if o.console {
		registry.RegisterNativeModule(console.ModuleName, console.RequireWithPrinter(consolePrinter{logger: o.logger}))
	}
	e.loop = eventloop.NewEventLoop(
		eventloop.WithRegistry(registry),
		eventloop.EnableConsole(o.console),
	)
	return e, nil
}

// Start runs the event loop, performs the bootstrap handoff on the engine
// goroutine and starts relaying tasks. It returns once the engine accepts
// submissions.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return errors.New("bridge: engine already started")
	}
	e.started = true
	e.mu.Unlock()

	e.loop.Start()

	errCh := make(chan error, 1)
	if !e.loop.RunOnLoop(func(vm *goja.Runtime) { errCh <- e.boot(vm) }) {
		e.abort()
		return errors.New("bridge: event loop not running")
	}
	if err := <-errCh; err != nil {
		e.abort()
		return fmt.Errorf("bridge: boot: %w", err)
	}

	go e.relay()

	e.logger.Info("engine started",
		slog.Int64("goroutine", e.loopID.Load()),
		slog.Int("args", len(e.argv)))
	return nil
}

func (e *Engine) abort() {
	e.mu.Lock()
	e.stopped = true
	e.mu.Unlock()
	e.closed.Store(true)
	e.queue.Close()
	close(e.relayDone)
	e.cancel()
	e.loop.Stop()
}

// relay is the only consumer of the queue. It hands one task at a time to
// the event loop and waits for it to complete before taking the next, so a
// bounded queue fills up while the engine is busy. It exits on the poison
// task.
func (e *Engine) relay() {
	defer close(e.relayDone)
	for {
		t := e.queue.Take()
		if t.Poison() {
			e.logger.Debug("relay observed shutdown")
			return
		}
		if !e.loop.RunOnLoop(func(*goja.Runtime) { e.execute(t) }) {
			t.Abandon(ErrClosed)
			continue
		}
		<-t.Done()
	}
}

// execute runs t on the engine goroutine inside a fresh execution window.
func (e *Engine) execute(t *taskqueue.Task) {
	e.seq++
	e.window = e.seq
	start := time.Now()
	t.Run()
	e.window = 0

	_, err := t.Result()
	attrs := []any{
		slog.String("task", t.ID().String()),
		slog.Duration("duration", time.Since(start)),
	}
	if !t.Enqueued().IsZero() {
		attrs = append(attrs, slog.Duration("queued", start.Sub(t.Enqueued())))
	}
	if err != nil {
		e.logger.Warn("task failed", append(attrs, slog.Any("error", err))...)
		return
	}
	e.logger.Debug("task completed", attrs...)
}

// Close stops accepting tasks, waits for every accepted task to run, then
// stops the event loop. It is safe to call multiple times, but not from the
// engine goroutine.
func (e *Engine) Close() error {
	e.mu.Lock()
	if !e.started || e.stopped {
		e.stopped = true
		e.mu.Unlock()
		return nil
	}
	if e.OnEngineGoroutine() {
		e.mu.Unlock()
		return errors.New("bridge: Close called from the engine goroutine")
	}
	e.stopped = true
	e.mu.Unlock()

	e.queue.Close()
	<-e.relayDone

	// The loop's own job queue is FIFO, so once this barrier runs every task
	// relayed before it has completed.
	barrier := make(chan struct{})
	if e.loop.RunOnLoop(func(*goja.Runtime) { close(barrier) }) {
		<-barrier
	}

	e.closed.Store(true)
	e.cancel()
	e.loop.Stop()
	e.logger.Info("engine stopped")
	return nil
}

// Done returns a channel that is closed when the engine is stopped.
func (e *Engine) Done() <-chan struct{} {
	return e.ctx.Done()
}

// IsRunning reports whether the engine has started and not been closed.
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.started && !e.stopped
}

// Registry returns the require registry used by the engine.
func (e *Engine) Registry() *require.Registry {
	return e.registry
}

// Args returns a copy of the program arguments, as handed back by the
// bootstrap script. Before Start they are the ones set with WithArgs.
func (e *Engine) Args() []string {
	return append([]string(nil), e.argv...)
}

// OnEngineGoroutine reports whether the caller is running on the engine
// goroutine.
func (e *Engine) OnEngineGoroutine() bool {
	id := e.loopID.Load()
	return id != 0 && goroutineid.Get() == id
}

// Submit runs fn on the engine goroutine and blocks until it returns. Any
// error, including a panic or script exception, is returned here rather than
// on the engine goroutine. Called from inside a task, fn runs inline.
func (e *Engine) Submit(fn func(*Scope) (any, error)) (any, error) {
	if e.opts.submitTimeout > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), e.opts.submitTimeout)
		defer cancel()
		v, err := e.SubmitContext(ctx, fn)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("bridge: gave up waiting for task after %v: %w", e.opts.submitTimeout, err)
		}
		return v, err
	}
	t, err := e.SubmitAsync(fn)
	if err != nil {
		return nil, err
	}
	return t.Result()
}

// SubmitContext is Submit, but stops waiting when ctx is done. The task is not
// preempted; its result is discarded.
func (e *Engine) SubmitContext(ctx context.Context, fn func(*Scope) (any, error)) (any, error) {
	t, err := e.SubmitAsync(fn)
	if err != nil {
		return nil, err
	}
	return t.Wait(ctx)
}

// SubmitAsync schedules fn and returns the task as a future. Called from the
// engine goroutine, fn runs before SubmitAsync returns.
func (e *Engine) SubmitAsync(fn func(*Scope) (any, error)) (*taskqueue.Task, error) {
	if fn == nil {
		return nil, errors.New("bridge: nil task function")
	}
	e.mu.RLock()
	started, stopped := e.started, e.stopped
	e.mu.RUnlock()
	switch {
	case !started:
		return nil, ErrNotStarted
	case stopped:
		return nil, ErrClosed
	}

	t := taskqueue.NewTask(func() (any, error) { return e.call(fn) })
	if e.OnEngineGoroutine() {
		if e.window != 0 {
			t.Run()
		} else {
			e.execute(t)
		}
		return t, nil
	}
	if err := e.queue.Put(t); err != nil {
		if errors.Is(err, taskqueue.ErrClosed) {
			return nil, ErrClosed
		}
		return nil, err
	}
	return t, nil
}

// Run is the typed form of Submit.
func Run[T any](e *Engine, fn func(*Scope) (T, error)) (T, error) {
	v, err := e.Submit(func(s *Scope) (any, error) { return fn(s) })
	if err != nil {
		var zero T
		return zero, err
	}
	out, _ := v.(T)
	return out, nil
}

// Evaluate evaluates src in a task and exports the result to a plain Go value.
func (e *Engine) Evaluate(src string) (any, error) {
	return e.Submit(func(s *Scope) (any, error) {
		h, err := s.Eval(src)
		if err != nil {
			return nil, err
		}
		return h.Export()
	})
}

func (e *Engine) call(fn func(*Scope) (any, error)) (any, error) {
	v, err := fn(&Scope{engine: e, window: e.window})
	return v, asScriptError(err)
}

// checkAccess is the affinity guard shared by every engine-touching operation.
func (e *Engine) checkAccess(window uint64) error {
	if !e.OnEngineGoroutine() {
		return ErrThreadAffinity
	}
	if e.closed.Load() {
		return ErrClosed
	}
	if window == 0 || window != e.window {
		return ErrStaleHandle
	}
	return nil
}

// asScriptError wraps raw goja exceptions that escaped a task without
// passing through a Handle or Scope method.
func asScriptError(err error) error {
	if err == nil {
		return nil
	}
	var se *ScriptError
	if errors.As(err, &se) {
		return err
	}
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return &ScriptError{Err: err}
	}
	return err
}
