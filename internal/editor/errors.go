package editor

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by operations on a Session after Close.
var ErrClosed = errors.New("editor: session closed")

// ErrSuperseded is returned by a save whose result was dropped because a
// newer Load replaced the document underneath it.
var ErrSuperseded = errors.New("editor: save superseded by a newer load")

// Kind classifies every failure that reaches a shell. Raw store errors are
// always wrapped in an *Error with one of these kinds.
type Kind int

const (
	KindAuthRequired Kind = iota + 1
	KindPermissionDenied
	KindNotFound
	KindLoadFailed
	KindSaveFailed
)

func (k Kind) String() string {
	switch k {
	case KindAuthRequired:
		return "auth required"
	case KindPermissionDenied:
		return "permission denied"
	case KindNotFound:
		return "not found"
	case KindLoadFailed:
		return "load failed"
	case KindSaveFailed:
		return "save failed"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("editor %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("editor %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// UserMessage is safe to show. NotFound and PermissionDenied share a message
// so the UI does not reveal whether someone else's document exists.
func (e *Error) UserMessage() string {
	switch e.Kind {
	case KindAuthRequired:
		if e.Op == "save" {
			return "Please log in to save documents."
		}
		return "Please log in to continue."
	case KindPermissionDenied, KindNotFound:
		return "Document not found or you do not have access to it."
	case KindLoadFailed:
		return "Failed to load document."
	case KindSaveFailed:
		return "Failed to save document."
	default:
		return "Something went wrong."
	}
}

// KindOf extracts the Kind of an *Error anywhere in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

func IsKind(err error, k Kind) bool {
	got, ok := KindOf(err)
	return ok && got == k
}

// UserMessage returns a presentable message for any error.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.UserMessage()
	}
	if err == nil {
		return ""
	}
	return "Something went wrong."
}

// RequiresNavigation reports whether the shell must leave the editor
// (auth, permission and not-found failures).
func RequiresNavigation(err error) bool {
	k, ok := KindOf(err)
	return ok && (k == KindAuthRequired || k == KindPermissionDenied || k == KindNotFound)
}
