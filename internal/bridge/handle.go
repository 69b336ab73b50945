package bridge

import (
	"errors"
	"fmt"
	"reflect"
	"sort"

	"github.com/dop251/goja"
)

var errForeignHandle = errors.New("bridge: handle belongs to a different engine")

// Handle is an opaque reference to a value living inside the engine. It is
// valid only on the engine goroutine, within the task that produced it; every
// method checks this before touching the engine.
type Handle struct {
	engine *Engine
	window uint64
	value  goja.Value
}

func (h *Handle) check() error {
	if h == nil {
		return errors.New("bridge: nil handle")
	}
	return h.engine.checkAccess(h.window)
}

func (h *Handle) object() (*goja.Object, error) {
	if err := h.check(); err != nil {
		return nil, err
	}
	obj, ok := h.value.(*goja.Object)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoMembers, describe(h.value))
	}
	return obj, nil
}

func (h *Handle) derive(v goja.Value) *Handle {
	return &Handle{engine: h.engine, window: h.window, value: v}
}

// Value returns the underlying goja value.
func (h *Handle) Value() (goja.Value, error) {
	if err := h.check(); err != nil {
		return nil, err
	}
	return h.value, nil
}

// IsNullish reports whether the value is null or undefined.
func (h *Handle) IsNullish() (bool, error) {
	if err := h.check(); err != nil {
		return false, err
	}
	return h.value == nil || goja.IsUndefined(h.value) || goja.IsNull(h.value), nil
}

// HasMembers reports whether the value is an object.
func (h *Handle) HasMembers() (bool, error) {
	if err := h.check(); err != nil {
		return false, err
	}
	_, ok := h.value.(*goja.Object)
	return ok, nil
}

// GetMember reads a property, following the prototype chain.
func (h *Handle) GetMember(name string) (*Handle, error) {
	obj, err := h.object()
	if err != nil {
		return nil, err
	}
	v, err := h.engine.get(obj, name)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, h.engine.notFound(obj, name, KindProperty)
	}
	return h.derive(v), nil
}

// HasMember reports whether the property exists, on the object or its
// prototype chain.
func (h *Handle) HasMember(name string) (bool, error) {
	obj, err := h.object()
	if err != nil {
		return false, err
	}
	v, err := h.engine.get(obj, name)
	if err != nil {
		return false, err
	}
	return v != nil, nil
}

// PutMember writes a property. Host values are converted as by
// Scope.ValueOf.
func (h *Handle) PutMember(name string, value any) error {
	obj, err := h.object()
	if err != nil {
		return err
	}
	v, err := h.engine.toValue(value)
	if err != nil {
		return err
	}
	if err := obj.Set(name, v); err != nil {
		return &ScriptError{Source: name, Err: err}
	}
	return nil
}

// CanInvokeMember reports whether the named member is callable.
func (h *Handle) CanInvokeMember(name string) (bool, error) {
	obj, err := h.object()
	if err != nil {
		return false, err
	}
	v, err := h.engine.get(obj, name)
	if err != nil {
		return false, err
	}
	_, ok := goja.AssertFunction(v)
	return ok, nil
}

// InvokeMember calls the named method with the object as this.
func (h *Handle) InvokeMember(name string, args ...any) (*Handle, error) {
	obj, err := h.object()
	if err != nil {
		return nil, err
	}
	v, err := h.engine.get(obj, name)
	if err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil, h.engine.notFound(obj, name, KindMethod)
	}
	jsArgs, err := h.engine.toValues(args)
	if err != nil {
		return nil, err
	}
	v, err = fn(obj, jsArgs...)
	if err != nil {
		return nil, &ScriptError{Source: name, Err: err}
	}
	return h.derive(v), nil
}

// Call invokes the value itself, with undefined as this.
func (h *Handle) Call(args ...any) (*Handle, error) {
	if err := h.check(); err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(h.value)
	if !ok {
		return nil, fmt.Errorf("bridge: %s is not callable", describe(h.value))
	}
	jsArgs, err := h.engine.toValues(args)
	if err != nil {
		return nil, err
	}
	v, err := fn(goja.Undefined(), jsArgs...)
	if err != nil {
		return nil, &ScriptError{Err: err}
	}
	return h.derive(v), nil
}

// MemberKeys lists the property names of the object and its prototypes,
// excluding those inherited from Object.prototype.
func (h *Handle) MemberKeys() ([]string, error) {
	obj, err := h.object()
	if err != nil {
		return nil, err
	}
	return h.engine.memberKeys(obj)
}

// Export converts the value to a plain Go value, as goja.Value.Export does.
func (h *Handle) Export() (any, error) {
	if err := h.check(); err != nil {
		return nil, err
	}
	if h.value == nil {
		return nil, nil
	}
	return h.value.Export(), nil
}

// ExportTo converts the value into target, which must be a non-nil pointer.
func (h *Handle) ExportTo(target any) error {
	if err := h.check(); err != nil {
		return err
	}
	if err := h.engine.vm.ExportTo(h.value, target); err != nil {
		return fmt.Errorf("bridge: cannot convert %s to %s: %w", describe(h.value), reflect.TypeOf(target), err)
	}
	return nil
}

// String implements fmt.Stringer. Off the engine goroutine it reports the
// violation instead of touching the value.
func (h *Handle) String() string {
	if err := h.check(); err != nil {
		return "<handle: " + err.Error() + ">"
	}
	if h.value == nil {
		return "undefined"
	}
	return h.value.String()
}

// get reads a property. Getters and proxy traps run script code, so a throw
// is reported as a ScriptError instead of unwinding the task. A nil value
// means the property does not exist.
func (e *Engine) get(obj *goja.Object, name string) (v goja.Value, err error) {
	if ex := e.vm.Try(func() { v = obj.Get(name) }); ex != nil {
		return nil, &ScriptError{Source: name, Err: ex}
	}
	return v, nil
}

// notFound builds the error for a missing member. The member list is best
// effort: it is left empty if listing the keys throws.
func (e *Engine) notFound(obj *goja.Object, name string, kind MemberKind) error {
	keys, _ := e.memberKeys(obj)
	return &MemberNotFoundError{Name: name, Kind: kind, Available: keys}
}

func (e *Engine) memberKeys(obj *goja.Object) ([]string, error) {
	seen := make(map[string]struct{})
	var keys []string
	ex := e.vm.Try(func() {
		for o := obj; o != nil && o != e.objectProto; o = o.Prototype() {
			for _, k := range o.GetOwnPropertyNames() {
				if k == "constructor" && o != obj {
					continue
				}
				if _, ok := seen[k]; ok {
					continue
				}
				seen[k] = struct{}{}
				keys = append(keys, k)
			}
		}
	})
	if ex != nil {
		return nil, &ScriptError{Err: ex}
	}
	sort.Strings(keys)
	return keys, nil
}

func (e *Engine) toValues(args []any) ([]goja.Value, error) {
	out := make([]goja.Value, len(args))
	for i, a := range args {
		v, err := e.toValue(a)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// toValue converts a host value for use by the engine. Handles and proxies
// are unwrapped to the script value they stand for.
func (e *Engine) toValue(v any) (goja.Value, error) {
	switch v := v.(type) {
	case nil:
		return goja.Null(), nil
	case *Handle:
		if v.engine != e {
			return nil, errForeignHandle
		}
		if err := v.check(); err != nil {
			return nil, err
		}
		return v.value, nil
	case goja.Value:
		return v, nil
	case backed:
		if h := v.backingHandle(); h != nil {
			return e.toValue(h)
		}
	}
	return e.vm.ToValue(v), nil
}

func describe(v goja.Value) string {
	switch {
	case v == nil || goja.IsUndefined(v):
		return "undefined"
	case goja.IsNull(v):
		return "null"
	}
	if t := v.ExportType(); t != nil {
		return fmt.Sprintf("%s value", t)
	}
	return "value"
}
