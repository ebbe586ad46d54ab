// Package failure classifies automation errors so the batch loop can decide
// whether to continue, fall back or retry.
package failure

import (
	"errors"
	"fmt"
)

// Kind is one class of automation failure.
type Kind int

const (
	// Discovery: a window, dialog or control was not found within its budget.
	Discovery Kind = iota + 1
	// Focus: the window was found but could not be activated.
	Focus
	// Injection: the clipboard or keystroke path raised.
	Injection
	// CaptureInvalid: copied text failed validation.
	CaptureInvalid
	// Persist: an artifact could not be written.
	Persist
	// Clipboard: the text went out but the user's clipboard was not restored.
	Clipboard
)

func (k Kind) String() string {
	switch k {
	case Discovery:
		return "discovery"
	case Focus:
		return "focus"
	case Injection:
		return "injection"
	case CaptureInvalid:
		return "capture-invalid"
	case Persist:
		return "persist"
	case Clipboard:
		return "clipboard"
	default:
		return "unknown"
	}
}

// Error lets a Kind be used as an errors.Is target:
//
//	errors.Is(err, failure.Discovery)
func (k Kind) Error() string { return k.String() + " failure" }

// Error is a classified failure raised by operation Op.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// New wraps err with a kind and the operation that produced it.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind.Error())
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind.Error(), e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches both the Kind and any *Error with the same Kind.
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case Kind:
		return e.Kind == t
	case *Error:
		return e.Kind == t.Kind
	}
	return false
}

// KindOf returns the kind of the first classified error in err's chain, or 0.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}

// Fatal reports whether a failure must stop the current item. Discovery and
// focus failures are tolerated because global input still works without a
// confirmed window, and a clipboard failure leaves the delivered text in place.
func Fatal(err error) bool {
	switch KindOf(err) {
	case Discovery, Focus, Clipboard:
		return false
	case 0:
		return err != nil
	default:
		return true
	}
}
