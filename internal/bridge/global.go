package bridge

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/dop251/goja"
)

const (
	// importName is the script-side primitive that moves the staged value out
	// of the slot. It is non-enumerable, non-writable and non-configurable.
	importName = "__hostbridge_import"
	// transferKey is the reserved key the slot is filled under.
	transferKey = "__hostbridge_transfer"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// unassignable names match the identifier pattern but cannot be the target
// of a global assignment: reserved words fail to parse, and the read-only
// globals silently ignore the write.
var unassignable = map[string]struct{}{
	"await": {}, "break": {}, "case": {}, "catch": {}, "class": {}, "const": {},
	"continue": {}, "debugger": {}, "default": {}, "delete": {}, "do": {},
	"else": {}, "enum": {}, "export": {}, "extends": {}, "false": {},
	"finally": {}, "for": {}, "function": {}, "if": {}, "implements": {},
	"import": {}, "in": {}, "instanceof": {}, "interface": {}, "let": {},
	"new": {}, "null": {}, "package": {}, "private": {}, "protected": {},
	"public": {}, "return": {}, "static": {}, "super": {}, "switch": {},
	"this": {}, "throw": {}, "true": {}, "try": {}, "typeof": {}, "var": {},
	"void": {}, "while": {}, "with": {}, "yield": {},

	"undefined": {}, "NaN": {}, "Infinity": {},
	importName: {}, transferKey: {},
}

// globalSlot moves one host value into script scope. It is only touched on
// the engine goroutine, and is empty outside WriteGlobal.
type globalSlot struct {
	key    string
	value  goja.Value
	filled bool
}

func (g *globalSlot) acquire(key string, v goja.Value) error {
	if g.filled {
		return ErrSlotBusy
	}
	g.key, g.value, g.filled = key, v, true
	return nil
}

func (g *globalSlot) release() {
	*g = globalSlot{}
}

func (g *globalSlot) take(key string) (goja.Value, bool) {
	if !g.filled || g.key != key {
		return nil, false
	}
	return g.value, true
}

func (e *Engine) jsImport(call goja.FunctionCall) goja.Value {
	key := call.Argument(0).String()
	v, ok := e.slot.take(key)
	if !ok {
		panic(e.vm.NewTypeError("%s: nothing staged under %q", importName, key))
	}
	return v
}

func validIdentifier(name string) error {
	if _, ok := unassignable[name]; ok || !identifierPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}
	return nil
}

// WriteGlobal assigns v to the script global name. Host values are converted
// as by Scope.ValueOf. The transfer slot is cleared before WriteGlobal
// returns, including when the assignment throws.
func WriteGlobal(s *Scope, name string, v any) error {
	if err := s.check(); err != nil {
		return err
	}
	if err := validIdentifier(name); err != nil {
		return err
	}
	e := s.engine
	jv, err := e.toValue(v)
	if err != nil {
		return err
	}
	if err := e.slot.acquire(transferKey, jv); err != nil {
		return err
	}
	defer e.slot.release()
	return s.Exec(fmt.Sprintf("%s = %s(%q);", name, importName, transferKey))
}

// ReadGlobal evaluates the script global name and casts it to T. Reading an
// undeclared global fails with a ScriptError wrapping the ReferenceError.
func ReadGlobal[T any](s *Scope, name string) (T, error) {
	if err := validIdentifier(name); err != nil {
		var zero T
		return zero, err
	}
	return EvalAs[T](s, name)
}

// Binding pairs a typed accessor with a script global.
//
//	count, _ := bridge.Bind(e, "count", bridge.Default(0))
//	_, err := e.Submit(func(s *bridge.Scope) (any, error) {
//	    n, err := count.Get(s)
//	    if err != nil {
//	        return nil, err
//	    }
//	    return nil, count.Set(s, n+1)
//	})
type Binding[T any] struct {
	engine *Engine
	name   string
	def    T
	hasDef bool
	// applied is only touched on the engine goroutine.
	applied bool
}

// BindOption configures a Binding.
type BindOption[T any] func(*Binding[T])

// Default sets a value written to the global on first use, unless Set is
// called first.
func Default[T any](v T) BindOption[T] {
	return func(b *Binding[T]) {
		b.def = v
		b.hasDef = true
	}
}

// Bind creates a Binding for the script global name. Nothing is written until
// the binding is first used inside a task.
func Bind[T any](e *Engine, name string, opts ...BindOption[T]) (*Binding[T], error) {
	if e == nil {
		return nil, errors.New("bridge: nil engine")
	}
	if err := validIdentifier(name); err != nil {
		return nil, err
	}
	b := &Binding[T]{engine: e, name: name}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Name returns the script global name.
func (b *Binding[T]) Name() string { return b.name }

func (b *Binding[T]) check(s *Scope) error {
	if s.engine != b.engine {
		return errors.New("bridge: binding belongs to a different engine")
	}
	return s.check()
}

// Get reads the global, writing the default first if this is the first use.
func (b *Binding[T]) Get(s *Scope) (T, error) {
	var zero T
	if err := b.check(s); err != nil {
		return zero, err
	}
	if b.hasDef && !b.applied {
		if err := WriteGlobal(s, b.name, b.def); err != nil {
			return zero, err
		}
		b.applied = true
	}
	return ReadGlobal[T](s, b.name)
}

// Set writes the global.
func (b *Binding[T]) Set(s *Scope, v T) error {
	if err := b.check(s); err != nil {
		return err
	}
	if err := WriteGlobal(s, b.name, v); err != nil {
		return err
	}
	b.applied = true
	return nil
}
