package bridge

import (
	"fmt"
	"reflect"

	"github.com/dop251/goja"
)

var (
	handleType = reflect.TypeFor[*Handle]()
	valueType  = reflect.TypeFor[goja.Value]()
)

// Cast converts the value behind h to T.
//
// If T (or *T) is a shape, a struct whose exported fields are all funcs, the
// result is a proxy: each field dispatches to the script object on call.
// Fields named IsX, GetX and SetX read or write the property x; any other
// field invokes the method of the same name, first letter lower-cased. The
// `js:"name,kind"` tag overrides the name, the kind (get, set, is or call),
// or both, and `js:"-"` leaves a field nil. A field may declare a trailing
// error result to receive dispatch failures; without one, failures panic and
// are reported by the enclosing task as its error.
//
// Func types, and shapes embedding Functional with a single func field, call
// the script value itself. *Handle and goja.Value are returned as-is. Every
// other T is converted with goja's ExportTo.
//
// Proxies share the handle's restrictions: they may only be called on the
// engine goroutine, within the task that produced them.
func Cast[T any](h *Handle) (T, error) {
	var zero T
	if err := h.check(); err != nil {
		return zero, err
	}
	v, err := h.engine.convert(h, reflect.TypeFor[T]())
	if err != nil {
		return zero, err
	}
	out, _ := v.Interface().(T)
	return out, nil
}

func (e *Engine) convert(h *Handle, rt reflect.Type) (reflect.Value, error) {
	switch rt {
	case handleType:
		return reflect.ValueOf(h), nil
	case valueType:
		return reflect.ValueOf(&h.value).Elem(), nil
	}

	if rt.Kind() == reflect.Func {
		if _, ok := goja.AssertFunction(h.value); !ok {
			return reflect.Value{}, fmt.Errorf("bridge: cannot convert %s to %s: not callable", describe(h.value), rt)
		}
		return e.makeFunc(h, nil, funcMember(rt)), nil
	}

	if sh, ptr := shapeFor(rt); sh != nil {
		return e.proxy(h, sh, ptr)
	}

	out := reflect.New(rt)
	if err := e.vm.ExportTo(h.value, out.Interface()); err != nil {
		return reflect.Value{}, fmt.Errorf("bridge: cannot convert %s to %s: %w", describe(h.value), rt, err)
	}
	return out.Elem(), nil
}

func (e *Engine) proxy(h *Handle, sh *shape, ptr bool) (reflect.Value, error) {
	pv := reflect.New(sh.typ)
	sv := pv.Elem()

	if sh.proxied() {
		obj, ok := h.value.(*goja.Object)
		if !ok {
			return reflect.Value{}, fmt.Errorf("%w: cannot translate %s to %s", ErrNoMembers, describe(h.value), sh.typ)
		}
		for _, m := range sh.members {
			sv.Field(m.index).Set(e.makeFunc(h, obj, m))
		}
	} else {
		m := sh.members[0]
		if _, ok := goja.AssertFunction(h.value); !ok {
			return reflect.Value{}, fmt.Errorf("bridge: cannot convert %s to %s: not callable", describe(h.value), sh.typ)
		}
		sv.Field(m.index).Set(e.makeFunc(h, nil, funcMember(m.fn)))
	}

	if sh.backing >= 0 {
		sv.Field(sh.backing).Set(reflect.ValueOf(Backing{handle: h}))
	}
	if ptr {
		return pv, nil
	}
	return sv, nil
}

func (e *Engine) makeFunc(h *Handle, obj *goja.Object, m *member) reflect.Value {
	return reflect.MakeFunc(m.fn, func(args []reflect.Value) []reflect.Value {
		res, err := e.dispatch(h, obj, m, args)
		return m.results(res, err)
	})
}

// dispatch performs one proxied call. The signature is checked before
// affinity, so a malformed shape fails the same way on any goroutine.
func (e *Engine) dispatch(h *Handle, obj *goja.Object, m *member, args []reflect.Value) (reflect.Value, error) {
	if m.sigErr != nil {
		return reflect.Value{}, m.sigErr
	}
	if err := h.check(); err != nil {
		return reflect.Value{}, err
	}

	switch m.kind {
	case accessGet, accessIs:
		v, err := e.get(obj, m.name)
		if err != nil {
			return reflect.Value{}, err
		}
		if v == nil {
			return reflect.Value{}, e.notFound(obj, m.name, KindProperty)
		}
		return e.convert(h.derive(v), m.result)

	case accessSet:
		v, err := e.toValue(args[0].Interface())
		if err != nil {
			return reflect.Value{}, err
		}
		if err := obj.Set(m.name, v); err != nil {
			return reflect.Value{}, &ScriptError{Source: m.name, Err: err}
		}
		return reflect.Value{}, nil

	case accessInvoke:
		fn, _ := goja.AssertFunction(h.value)
		return e.invoke(h, fn, goja.Undefined(), m, args)

	default:
		v, err := e.get(obj, m.name)
		if err != nil {
			return reflect.Value{}, err
		}
		fn, ok := goja.AssertFunction(v)
		if !ok {
			return reflect.Value{}, e.notFound(obj, m.name, KindMethod)
		}
		return e.invoke(h, fn, obj, m, args)
	}
}

func (e *Engine) invoke(h *Handle, fn goja.Callable, this goja.Value, m *member, args []reflect.Value) (reflect.Value, error) {
	jsArgs, err := e.toValues(flatten(m.fn, args))
	if err != nil {
		return reflect.Value{}, err
	}
	ret, err := fn(this, jsArgs...)
	if err != nil {
		src := m.name
		if m.kind == accessInvoke {
			src = ""
		}
		return reflect.Value{}, &ScriptError{Source: src, Err: err}
	}
	if m.result == nil {
		return reflect.Value{}, nil
	}
	return e.convert(h.derive(ret), m.result)
}

// flatten expands a variadic tail into individual arguments.
func flatten(ft reflect.Type, args []reflect.Value) []any {
	out := make([]any, 0, len(args))
	for i, a := range args {
		if ft.IsVariadic() && i == len(args)-1 {
			for j := 0; j < a.Len(); j++ {
				out = append(out, a.Index(j).Interface())
			}
			continue
		}
		out = append(out, a.Interface())
	}
	return out
}
