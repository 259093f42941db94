package expr

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSyntax means the text does not parse into the rule grammar.
	ErrInvalidSyntax = errors.New("invalid syntax")
	// ErrUnsafeExpression means the text parsed but uses a construct outside the sandbox.
	ErrUnsafeExpression = errors.New("unsafe expression")
	// ErrUnresolvedPath means a dotted lookup found nothing.
	ErrUnresolvedPath = errors.New("unresolved path")
	// ErrTypeMismatch means a value has the wrong type for where it is used.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrArithmetic covers division by zero and integer overflow.
	ErrArithmetic = errors.New("arithmetic error")
	// ErrNoRNG means a dice term was evaluated without a random source.
	ErrNoRNG = errors.New("dice evaluation requires an rng")
)

// Error carries the offending expression alongside the error kind.
type Error struct {
	Kind error
	Expr string
	Msg  string
}

func (e *Error) Error() string {
	if e.Expr == "" {
		return fmt.Sprintf("%v: %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("%v: %s (in %q)", e.Kind, e.Msg, e.Expr)
}

// Unwrap lets errors.Is match the kind sentinel.
func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, src, format string, args ...any) *Error {
	return &Error{Kind: kind, Expr: src, Msg: fmt.Sprintf(format, args...)}
}

// withExpr fills in the expression text on errors raised below the point
// where it is known.
func withExpr(err error, src string) error {
	var e *Error
	if errors.As(err, &e) && e.Expr == "" {
		return &Error{Kind: e.Kind, Expr: src, Msg: e.Msg}
	}
	return err
}
