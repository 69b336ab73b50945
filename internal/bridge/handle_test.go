package bridge_test

import (
	"testing"

	"github.com/joeycumines/hostbridge/internal/bridge"
	"github.com/joeycumines/hostbridge/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func evalHandle(t *testing.T, e *bridge.Engine, src string) *bridge.Handle {
	t.Helper()
	h, err := bridge.Run(e, func(s *bridge.Scope) (*bridge.Handle, error) {
		return s.Eval(src)
	})
	require.NoError(t, err)
	return h
}

func TestHandle_ThreadAffinity(t *testing.T) {
	e := testutil.NewEngine(t)
	h := evalHandle(t, e, "var shared = {a: 1, f: function () { this.a++; }}; shared")

	_, err := h.GetMember("a")
	assert.ErrorIs(t, err, bridge.ErrThreadAffinity)
	assert.ErrorIs(t, h.PutMember("a", 2), bridge.ErrThreadAffinity)
	_, err = h.InvokeMember("f")
	assert.ErrorIs(t, err, bridge.ErrThreadAffinity)
	_, err = h.HasMember("a")
	assert.ErrorIs(t, err, bridge.ErrThreadAffinity)
	_, err = h.MemberKeys()
	assert.ErrorIs(t, err, bridge.ErrThreadAffinity)
	_, err = h.Export()
	assert.ErrorIs(t, err, bridge.ErrThreadAffinity)
	assert.Contains(t, h.String(), "off the engine goroutine")

	v, err := e.Evaluate("shared.a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v, "rejected calls must not mutate engine state")
}

func TestHandle_StaleAcrossTasks(t *testing.T) {
	e := testutil.NewEngine(t)
	h := evalHandle(t, e, "({a: 'kept'})")

	_, err := e.Submit(func(*bridge.Scope) (any, error) {
		return h.GetMember("a")
	})
	assert.ErrorIs(t, err, bridge.ErrStaleHandle)

	v, err := e.Submit(func(s *bridge.Scope) (any, error) {
		adopted, err := s.Adopt(h)
		if err != nil {
			return nil, err
		}
		a, err := adopted.GetMember("a")
		if err != nil {
			return nil, err
		}
		return a.Export()
	})
	require.NoError(t, err)
	assert.Equal(t, "kept", v)
}

func TestHandle_AdoptForeign(t *testing.T) {
	a := testutil.NewEngine(t)
	b := testutil.NewEngine(t)
	h := evalHandle(t, a, "({})")

	_, err := b.Submit(func(s *bridge.Scope) (any, error) {
		return s.Adopt(h)
	})
	assert.Error(t, err)

	_, err = b.Submit(func(s *bridge.Scope) (any, error) {
		g, err := s.Global()
		if err != nil {
			return nil, err
		}
		return nil, g.PutMember("foreign", h)
	})
	assert.Error(t, err)
}

func TestHandle_Members(t *testing.T) {
	e := testutil.NewEngine(t)

	_, err := e.Submit(func(s *bridge.Scope) (any, error) {
		// assert only in here: FailNow must not run on the engine goroutine
		h, err := s.Eval(`
			function Base() {}
			Base.prototype.greet = function (who) { return 'hello ' + who; };
			var obj = new Base();
			obj.name = 'widget';
			obj.size = 3;
			obj;
		`)
		assert.NoError(t, err)

		keys, err := h.MemberKeys()
		assert.NoError(t, err)
		assert.Equal(t, []string{"greet", "name", "size"}, keys)

		name, err := h.GetMember("name")
		assert.NoError(t, err)
		assert.Equal(t, "widget", name.String())

		ok, err := h.HasMember("greet")
		assert.NoError(t, err)
		assert.True(t, ok)
		ok, err = h.HasMember("missing")
		assert.NoError(t, err)
		assert.False(t, ok)

		ok, err = h.CanInvokeMember("greet")
		assert.NoError(t, err)
		assert.True(t, ok)
		ok, err = h.CanInvokeMember("name")
		assert.NoError(t, err)
		assert.False(t, ok)

		out, err := h.InvokeMember("greet", "world")
		assert.NoError(t, err)
		assert.Equal(t, "hello world", out.String())

		assert.NoError(t, h.PutMember("size", 7))
		var size int
		sz, err := h.GetMember("size")
		assert.NoError(t, err)
		assert.NoError(t, sz.ExportTo(&size))
		assert.Equal(t, 7, size)

		_, err = h.GetMember("colour")
		var mnf *bridge.MemberNotFoundError
		assert.ErrorAs(t, err, &mnf)
		assert.Equal(t, bridge.KindProperty, mnf.Kind)
		assert.Equal(t, []string{"greet", "name", "size"}, mnf.Available)
		assert.Contains(t, err.Error(), `no property with name "colour" found`)

		_, err = h.InvokeMember("name")
		assert.ErrorAs(t, err, &mnf)
		assert.Equal(t, bridge.KindMethod, mnf.Kind)
		assert.Contains(t, err.Error(), `method "name" does not map to an executable member`)
		return nil, nil
	})
	require.NoError(t, err)
}

func TestHandle_CallAndErrors(t *testing.T) {
	e := testutil.NewEngine(t)

	_, err := e.Submit(func(s *bridge.Scope) (any, error) {
		fn, err := s.Eval("(function (a, b) { if (b === 0) throw new RangeError('div by zero'); return a / b; })")
		assert.NoError(t, err)

		out, err := fn.Call(9, 3)
		assert.NoError(t, err)
		v, err := out.Export()
		assert.NoError(t, err)
		assert.EqualValues(t, 3, v)

		_, err = fn.Call(1, 0)
		var se *bridge.ScriptError
		assert.ErrorAs(t, err, &se)
		assert.Contains(t, err.Error(), "div by zero")

		num, err := s.Eval("42")
		assert.NoError(t, err)
		_, err = num.GetMember("x")
		assert.ErrorIs(t, err, bridge.ErrNoMembers)
		_, err = num.Call()
		assert.Error(t, err)

		has, err := num.HasMembers()
		assert.NoError(t, err)
		assert.False(t, has)

		undef, err := s.Eval("undefined")
		assert.NoError(t, err)
		nullish, err := undef.IsNullish()
		assert.NoError(t, err)
		assert.True(t, nullish)
		return nil, nil
	})
	require.NoError(t, err)
}

func TestScope_ValueOfAndGlobal(t *testing.T) {
	e := testutil.NewEngine(t)

	v, err := e.Submit(func(s *bridge.Scope) (any, error) {
		list, err := s.ValueOf([]any{"a", "b"})
		if err != nil {
			return nil, err
		}
		g, err := s.Global()
		if err != nil {
			return nil, err
		}
		if err := g.PutMember("letters", list); err != nil {
			return nil, err
		}
		h, err := s.Eval("letters.join('+')")
		if err != nil {
			return nil, err
		}
		return h.Export()
	})
	require.NoError(t, err)
	assert.Equal(t, "a+b", v)
}

func TestScope_RetainedOutsideTask(t *testing.T) {
	e := testutil.NewEngine(t)

	s, err := bridge.Run(e, func(s *bridge.Scope) (*bridge.Scope, error) { return s, nil })
	require.NoError(t, err)

	_, err = s.Eval("1")
	assert.ErrorIs(t, err, bridge.ErrThreadAffinity)
	_, err = s.Runtime()
	assert.ErrorIs(t, err, bridge.ErrThreadAffinity)
}

func TestHandle_ThrowingMembers(t *testing.T) {
	e := testutil.NewEngine(t)

	_, err := e.Submit(func(s *bridge.Scope) (any, error) {
		// assert only in here: FailNow must not run on the engine goroutine
		h, err := s.Eval("({get boom() { throw new Error('x'); }})")
		if !assert.NoError(t, err) {
			return nil, nil
		}

		var se *bridge.ScriptError
		_, err = h.GetMember("boom")
		if assert.ErrorAs(t, err, &se) {
			assert.Equal(t, "boom", se.Source)
		}
		_, err = h.HasMember("boom")
		assert.ErrorAs(t, err, &se)
		_, err = h.CanInvokeMember("boom")
		assert.ErrorAs(t, err, &se)
		_, err = h.InvokeMember("boom")
		assert.ErrorAs(t, err, &se)

		keys, err := h.MemberKeys()
		assert.NoError(t, err)
		assert.Equal(t, []string{"boom"}, keys)

		trap, err := s.Eval("new Proxy({}, {ownKeys() { throw new Error('no keys'); }})")
		if !assert.NoError(t, err) {
			return nil, nil
		}
		_, err = trap.MemberKeys()
		if assert.ErrorAs(t, err, &se) {
			assert.ErrorContains(t, err, "no keys")
		}
		return nil, nil
	})
	require.NoError(t, err)
}
