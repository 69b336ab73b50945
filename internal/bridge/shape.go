package bridge

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

// Functional, embedded in a shape with exactly one func field, marks it as a
// callback adapter: Cast fills the field by calling the script value itself
// rather than treating the value as a property bag. It is ignored on shapes
// with more than one func field.
type Functional struct{}

// Backing, embedded in a shape, is filled by Cast with the handle the proxy
// dispatches to. Passing such a proxy back into the engine (as an argument,
// a property or a global) passes the original script value.
type Backing struct {
	handle *Handle
}

// Handle returns the handle behind the proxy, or nil for a shape that was
// not produced by Cast.
func (b Backing) Handle() *Handle { return b.handle }

func (b Backing) backingHandle() *Handle { return b.handle }

type backed interface {
	backingHandle() *Handle
}

type accessKind int

const (
	accessCall accessKind = iota
	accessGet
	accessSet
	accessIs
	// accessInvoke calls the script value itself (functional targets).
	accessInvoke
)

func (k accessKind) String() string {
	switch k {
	case accessGet:
		return "get"
	case accessSet:
		return "set"
	case accessIs:
		return "is"
	case accessInvoke:
		return "invoke"
	default:
		return "call"
	}
}

// member is one entry of a dispatch table: a func field of a shape, or a bare
// func type.
type member struct {
	index  int
	field  string
	name   string
	kind   accessKind
	fn     reflect.Type
	result reflect.Type
	hasErr bool
	// sigErr is reported when the member is called, not when it is cast.
	sigErr error
}

// shape is the dispatch table of a struct type whose exported fields are all
// funcs. Tables are pure functions of the type and cached for the life of
// the process.
type shape struct {
	typ        reflect.Type
	members    []*member
	backing    int
	functional bool
}

// proxied reports whether values are translated by property/method dispatch,
// as opposed to calling the value directly.
func (s *shape) proxied() bool {
	return !(s.functional && len(s.members) == 1)
}

var (
	errorType      = reflect.TypeFor[error]()
	backingType    = reflect.TypeFor[Backing]()
	functionalType = reflect.TypeFor[Functional]()

	shapeCache sync.Map // reflect.Type -> *shape (nil for non-shapes)
	funcCache  sync.Map // reflect.Type -> *member
)

// shapeFor resolves t, or a pointer to t, to a shape. sh is nil if t is not
// one.
func shapeFor(t reflect.Type) (sh *shape, ptr bool) {
	switch {
	case t.Kind() == reflect.Struct:
		return shapeOf(t), false
	case t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Struct:
		return shapeOf(t.Elem()), true
	}
	return nil, false
}

func shapeOf(t reflect.Type) *shape {
	if v, ok := shapeCache.Load(t); ok {
		return v.(*shape)
	}
	sh := buildShape(t)
	v, _ := shapeCache.LoadOrStore(t, sh)
	return v.(*shape)
}

func buildShape(t reflect.Type) *shape {
	sh := &shape{typ: t, backing: -1}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		switch {
		case f.Anonymous && f.Type == backingType:
			sh.backing = i
			continue
		case f.Anonymous && f.Type == functionalType:
			sh.functional = true
			continue
		case !f.IsExported():
			continue
		case f.Type.Kind() != reflect.Func:
			// data fields: leave it to the generic conversion
			return nil
		}
		tag := f.Tag.Get("js")
		if tag == "-" {
			continue
		}
		sh.members = append(sh.members, newMember(t, f, i, tag))
	}
	if len(sh.members) == 0 {
		return nil
	}
	return sh
}

func newMember(owner reflect.Type, f reflect.StructField, index int, tag string) *member {
	m := &member{index: index, field: f.Name, fn: f.Type}
	m.kind, m.name = classify(f.Name)

	tagName, tagKind, _ := strings.Cut(tag, ",")
	if tagKind != "" {
		kind, ok := parseKind(tagKind)
		if !ok {
			m.sigErr = &SignatureError{Shape: owner.String(), Field: f.Name, Reason: fmt.Sprintf("unknown js tag kind %q", tagKind)}
			return m
		}
		if kind != m.kind {
			m.kind = kind
			m.name = decapitalize(f.Name)
		}
	}
	if tagName != "" {
		m.name = tagName
	}

	m.analyse(owner.String())
	return m
}

// funcMember is the dispatch entry for a bare func type, or the single field
// of a functional shape.
func funcMember(t reflect.Type) *member {
	if v, ok := funcCache.Load(t); ok {
		return v.(*member)
	}
	m := &member{index: -1, field: "func", kind: accessInvoke, fn: t}
	m.analyse(t.String())
	v, _ := funcCache.LoadOrStore(t, m)
	return v.(*member)
}

// analyse derives the result type and checks the convention's arity rules.
func (m *member) analyse(owner string) {
	fail := func(format string, args ...any) {
		m.sigErr = &SignatureError{Shape: owner, Field: m.field, Reason: fmt.Sprintf(format, args...)}
	}

	n := m.fn.NumOut()
	if n > 0 && m.fn.Out(n-1) == errorType {
		m.hasErr = true
		n--
	}
	switch n {
	case 0:
	case 1:
		m.result = m.fn.Out(0)
	default:
		fail("must return at most one value and an optional error")
		return
	}

	in := m.fn.NumIn()
	switch m.kind {
	case accessIs:
		if in != 0 || m.result == nil || m.result.Kind() != reflect.Bool {
			fail("methods starting with 'Is' should return bool and have no parameters")
		}
	case accessGet:
		if in != 0 {
			fail("methods starting with 'Get' should not have any parameters")
		} else if m.result == nil {
			fail("methods starting with 'Get' should return a value")
		}
	case accessSet:
		if in != 1 || m.fn.IsVariadic() {
			fail("methods starting with 'Set' should have a single parameter")
		} else if m.result != nil {
			fail("methods starting with 'Set' should not return a value")
		}
	}
}

func parseKind(s string) (accessKind, bool) {
	switch s {
	case "get":
		return accessGet, true
	case "set":
		return accessSet, true
	case "is":
		return accessIs, true
	case "call":
		return accessCall, true
	}
	return 0, false
}

// classify applies the bean naming convention: IsX, GetX and SetX map to the
// property x, provided X starts with an upper case letter. Anything else is a
// method call.
func classify(name string) (accessKind, string) {
	for _, p := range [...]struct {
		prefix string
		kind   accessKind
	}{
		{"Get", accessGet},
		{"Set", accessSet},
		{"Is", accessIs},
	} {
		if rest, ok := strings.CutPrefix(name, p.prefix); ok {
			if r, _ := utf8.DecodeRuneInString(rest); unicode.IsUpper(r) {
				return p.kind, decapitalize(rest)
			}
		}
	}
	return accessCall, decapitalize(name)
}

// decapitalize lower-cases the first letter, except when the first two are
// both upper case ("URL" stays "URL"), following java.beans.Introspector.
func decapitalize(s string) string {
	r0, n0 := utf8.DecodeRuneInString(s)
	if n0 == 0 {
		return s
	}
	if r1, _ := utf8.DecodeRuneInString(s[n0:]); unicode.IsUpper(r0) && unicode.IsUpper(r1) {
		return s
	}
	return string(unicode.ToLower(r0)) + s[n0:]
}

// results builds the return values of a generated func. Errors go to the
// trailing error result if there is one, otherwise they panic with a carrier
// the task runner turns back into the error.
func (m *member) results(res reflect.Value, err error) []reflect.Value {
	n := m.fn.NumOut()
	out := make([]reflect.Value, n)
	for i := range out {
		out[i] = reflect.Zero(m.fn.Out(i))
	}
	if err != nil {
		if !m.hasErr {
			panic(dispatchPanic{err: err})
		}
		out[n-1] = reflect.ValueOf(&err).Elem()
		return out
	}
	if m.result != nil && res.IsValid() {
		out[0] = res
	}
	return out
}
