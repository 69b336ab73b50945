package bridge

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	// ErrThreadAffinity is returned when engine state is touched from any
	// goroutine other than the engine goroutine. It indicates a programming
	// error in the caller and is never retried.
	ErrThreadAffinity = errors.New("bridge: engine accessed off the engine goroutine; wrap the call in Engine.Submit")

	// ErrStaleHandle is returned when a handle (or a proxy built on one) is
	// used outside the task that produced it. Use Scope.Adopt to re-validate.
	ErrStaleHandle = errors.New("bridge: handle used outside the task that produced it")

	// ErrClosed is returned by submissions after Close, and to tasks that
	// could not be delivered before shutdown.
	ErrClosed = errors.New("bridge: engine closed")

	// ErrNotStarted is returned by submissions before Start.
	ErrNotStarted = errors.New("bridge: engine not started")

	// ErrNoMembers is returned when a value that is not an object is cast to a
	// shape.
	ErrNoMembers = errors.New("bridge: value has no members")

	// ErrSlotBusy is returned if the global transfer slot is already occupied.
	ErrSlotBusy = errors.New("bridge: global transfer slot busy")

	// ErrInvalidIdentifier is returned when a global name is not a plain
	// script identifier.
	ErrInvalidIdentifier = errors.New("bridge: invalid global identifier")
)

// MemberKind distinguishes properties from methods in MemberNotFoundError.
type MemberKind string

const (
	KindProperty MemberKind = "property"
	KindMethod   MemberKind = "method"
)

// MemberNotFoundError reports a translated accessor or method with no
// corresponding member on the underlying script value.
type MemberNotFoundError struct {
	Name      string
	Kind      MemberKind
	Available []string
}

func (e *MemberNotFoundError) Error() string {
	switch e.Kind {
	case KindMethod:
		return fmt.Sprintf("bridge: method %q does not map to an executable member: [%s]", e.Name, strings.Join(e.Available, ", "))
	default:
		return fmt.Sprintf("bridge: no property with name %q found: [%s]", e.Name, strings.Join(e.Available, ", "))
	}
}

// SignatureError reports a func field that breaks the accessor naming
// convention, e.g. an Is method that does not return bool. It is raised when
// the field is called, not when the shape is cast.
type SignatureError struct {
	Shape  string
	Field  string
	Reason string
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("bridge: %s.%s: %s", e.Shape, e.Field, e.Reason)
}

// ScriptError wraps an exception raised by script code. It is captured on the
// engine goroutine and returned from the Submit call that scheduled the work.
type ScriptError struct {
	// Source is the evaluated source or the member being invoked, if known.
	Source string
	Err    error
}

func (e *ScriptError) Error() string {
	if e.Source == "" {
		return "bridge: script execution failed: " + e.Err.Error()
	}
	return fmt.Sprintf("bridge: script execution failed (%s): %v", abbreviate(e.Source, 60), e.Err)
}

func (e *ScriptError) Unwrap() error { return e.Err }

// abbreviate collapses whitespace and cuts s to at most n runes.
func abbreviate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n-3]) + "..."
}

// dispatchPanic carries a dispatch error out of a func field that has no
// error result. The task runner unwraps it back into err.
type dispatchPanic struct{ err error }

func (p dispatchPanic) Error() string           { return p.err.Error() }
func (p dispatchPanic) Unwrap() error           { return p.err }
func (p dispatchPanic) PassthroughError() error { return p.err }
