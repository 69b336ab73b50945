package bridge

import (
	"github.com/dop251/goja"
)

// Scope is handed to every task. It is the entry point to the engine for the
// duration of that task and must not be retained beyond it.
type Scope struct {
	engine *Engine
	window uint64
}

// Engine returns the engine running the task.
func (s *Scope) Engine() *Engine { return s.engine }

func (s *Scope) check() error { return s.engine.checkAccess(s.window) }

func (s *Scope) handle(v goja.Value) *Handle {
	return &Handle{engine: s.engine, window: s.window, value: v}
}

// Eval evaluates src in global scope using the callback registered by the
// bootstrap script.
func (s *Scope) Eval(src string) (*Handle, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	e := s.engine
	v, err := e.evalFn(goja.Undefined(), e.vm.ToValue(src))
	if err != nil {
		return nil, &ScriptError{Source: src, Err: err}
	}
	return s.handle(v), nil
}

// Exec evaluates src and discards the result.
func (s *Scope) Exec(src string) error {
	_, err := s.Eval(src)
	return err
}

// EvalAs evaluates src and casts the result to T.
func EvalAs[T any](s *Scope, src string) (T, error) {
	h, err := s.Eval(src)
	if err != nil {
		var zero T
		return zero, err
	}
	return Cast[T](h)
}

// Global returns the global object.
func (s *Scope) Global() (*Handle, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.handle(s.engine.vm.GlobalObject()), nil
}

// ValueOf converts a host value into a script value owned by this task.
func (s *Scope) ValueOf(v any) (*Handle, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	jv, err := s.engine.toValue(v)
	if err != nil {
		return nil, err
	}
	return s.handle(jv), nil
}

// Adopt re-validates a handle retained from an earlier task, returning a copy
// bound to this task. The underlying value must still be reachable by the
// engine; Adopt cannot detect a value the script has since discarded or
// mutated.
func (s *Scope) Adopt(h *Handle) (*Handle, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if h == nil || h.engine != s.engine {
		return nil, errForeignHandle
	}
	return s.handle(h.value), nil
}

// Runtime exposes the underlying runtime for operations the bridge does not
// wrap. It is only valid for the duration of the task.
func (s *Scope) Runtime() (*goja.Runtime, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.engine.vm, nil
}

// SlotEmpty reports whether the global transfer slot is empty. It is meant
// for tests and diagnostics.
func (s *Scope) SlotEmpty() (bool, error) {
	if err := s.check(); err != nil {
		return false, err
	}
	return !s.engine.slot.filled, nil
}
