package cli

import (
	"errors"
	"fmt"

	"mdpreview/internal/auth"
)

type notFoundError struct {
	kind string
	id   string
}

func (e notFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.kind, e.id)
}

func errNotFound(kind, id string) error {
	return notFoundError{kind: kind, id: id}
}

var errNotSignedIn = errors.New("not signed in; run `mdpreview login` (or `mdpreview register`) first")

// messageError shows a fixed user-facing message while keeping the cause
// reachable for errors.Is.
type messageError struct {
	msg string
	err error
}

func (e messageError) Error() string { return e.msg }
func (e messageError) Unwrap() error { return e.err }

func authError(op string, err error) error {
	return messageError{msg: op + ": " + auth.Message(err), err: err}
}
