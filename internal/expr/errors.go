package expr

import (
	"errors"
	"fmt"
)

// ErrType is returned when an operator is applied to operands of the wrong kind.
var ErrType = errors.New("expr: type mismatch")

// SyntaxError reports expression text that does not parse or uses a construct
// outside the supported grammar.
type SyntaxError struct {
	Expr string
	Msg  string
	Err  error
}

func (e *SyntaxError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("expr: syntax error in %q: %v", e.Expr, e.Err)
	}
	return fmt.Sprintf("expr: syntax error in %q: %s", e.Expr, e.Msg)
}

func (e *SyntaxError) Unwrap() error { return e.Err }

// UnboundVariableError reports a reference to a variable that is not declared
// or not supplied.
type UnboundVariableError struct {
	Expr string
	Name string
}

func (e *UnboundVariableError) Error() string {
	return fmt.Sprintf("expr: unbound variable %q in %q", e.Name, e.Expr)
}
