package runner

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure kinds the Runner produces itself. Failures
// reported by the prefiller or token generator are returned unchanged.
var (
	ErrLoadFailure     = errors.New("load failure")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInvalidState    = errors.New("invalid state")
)

// Error describes a Runner failure. errors.Is matches it against its Kind
// sentinel and, through Unwrap, against the underlying cause when present.
type Error struct {
	Kind error
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Op + ": " + e.Kind.Error()
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

func loadFailure(op string, err error) error {
	return &Error{Kind: ErrLoadFailure, Op: op, Err: err}
}

func invalidArgument(op, format string, args ...any) error {
	return &Error{Kind: ErrInvalidArgument, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func invalidState(op, format string, args ...any) error {
	return &Error{Kind: ErrInvalidState, Op: op, Msg: fmt.Sprintf(format, args...)}
}
