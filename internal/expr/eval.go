package expr

import (
	"fmt"
	"math"

	"github.com/google/cel-go/common/operators"
)

type scope struct {
	src  string
	vars map[string]any
}

type node interface {
	eval(s *scope) (any, error)
}

type literal struct{ v any }

func (n literal) eval(*scope) (any, error) { return n.v, nil }

type ident string

func (n ident) eval(s *scope) (any, error) {
	v, ok := s.vars[string(n)]
	if !ok {
		return nil, &UnboundVariableError{Expr: s.src, Name: string(n)}
	}
	return normalize(v), nil
}

type field struct {
	operand node
	name    string
}

func (n *field) eval(s *scope) (any, error) {
	v, err := n.operand.eval(s)
	if err != nil {
		return nil, err
	}
	return lookup(v, n.name)
}

type index struct {
	operand, key node
}

func (n *index) eval(s *scope) (any, error) {
	v, err := n.operand.eval(s)
	if err != nil {
		return nil, err
	}
	k, err := n.key.eval(s)
	if err != nil {
		return nil, err
	}
	name, ok := k.(string)
	if !ok {
		return nil, fmt.Errorf("%w: index key %T, want string", ErrType, k)
	}
	return lookup(v, name)
}

// lookup reads a field of a bound map. A missing field yields nil, which
// compares false against everything.
func lookup(v any, name string) (any, error) {
	switch m := v.(type) {
	case map[string]any:
		return normalize(m[name]), nil
	case map[string]float64:
		f, ok := m[name]
		if !ok {
			return nil, nil
		}
		return f, nil
	default:
		return nil, fmt.Errorf("%w: cannot select .%s on %T", ErrType, name, v)
	}
}

type unary struct {
	op string
	x  node
}

func (n *unary) eval(s *scope) (any, error) {
	v, err := n.x.eval(s)
	if err != nil {
		return nil, err
	}
	if n.op == operators.LogicalNot {
		return !truthy(v), nil
	}
	f, ok := toNumber(v)
	if !ok {
		return nil, fmt.Errorf("%w: negation of %T", ErrType, v)
	}
	return -f, nil
}

type logical struct {
	and  bool
	l, r node
}

func (n *logical) eval(s *scope) (any, error) {
	lv, err := n.l.eval(s)
	if err != nil {
		return nil, err
	}
	if truthy(lv) != n.and {
		return !n.and, nil
	}
	rv, err := n.r.eval(s)
	if err != nil {
		return nil, err
	}
	return truthy(rv), nil
}

type ternary struct {
	cond, then, els node
}

func (n *ternary) eval(s *scope) (any, error) {
	c, err := n.cond.eval(s)
	if err != nil {
		return nil, err
	}
	if truthy(c) {
		return n.then.eval(s)
	}
	return n.els.eval(s)
}

type binary struct {
	op   string
	l, r node
}

func (n *binary) eval(s *scope) (any, error) {
	a, err := n.l.eval(s)
	if err != nil {
		return nil, err
	}
	b, err := n.r.eval(s)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case operators.Equals:
		return equal(a, b), nil
	case operators.NotEquals:
		return !equal(a, b), nil
	case operators.Less, operators.LessEquals, operators.Greater, operators.GreaterEquals:
		return compare(n.op, a, b), nil
	}

	if n.op == operators.Add {
		as, aok := a.(string)
		bs, bok := b.(string)
		if aok && bok {
			return as + bs, nil
		}
	}

	x, xok := toNumber(a)
	y, yok := toNumber(b)
	if !xok || !yok {
		return nil, fmt.Errorf("%w: %s applied to %T and %T", ErrType, displayOp(n.op), a, b)
	}
	switch n.op {
	case operators.Add:
		return x + y, nil
	case operators.Subtract:
		return x - y, nil
	case operators.Multiply:
		return x * y, nil
	case operators.Divide:
		return x / y, nil
	case operators.Modulo:
		return math.Mod(x, y), nil
	}
	return nil, fmt.Errorf("expr: unknown operator %s", n.op)
}

type mathCall struct {
	name string
	fn   func([]float64) float64
	args []node
}

func (n *mathCall) eval(s *scope) (any, error) {
	in := make([]float64, len(n.args))
	for i, a := range n.args {
		v, err := a.eval(s)
		if err != nil {
			return nil, err
		}
		f, ok := toNumber(v)
		if !ok {
			return nil, fmt.Errorf("%w: Math.%s argument %d is %T", ErrType, n.name, i+1, v)
		}
		in[i] = f
	}
	return n.fn(in), nil
}

// compare orders two numbers or two strings. Mixed or missing operands
// compare false in every direction.
func compare(op string, a, b any) bool {
	var c int
	if x, ok := toNumber(a); ok {
		y, ok := toNumber(b)
		if !ok || math.IsNaN(x) || math.IsNaN(y) {
			return false
		}
		switch {
		case x < y:
			c = -1
		case x > y:
			c = 1
		}
	} else if x, ok := a.(string); ok {
		y, ok := b.(string)
		if !ok {
			return false
		}
		switch {
		case x < y:
			c = -1
		case x > y:
			c = 1
		}
	} else {
		return false
	}

	switch op {
	case operators.Less:
		return c < 0
	case operators.LessEquals:
		return c <= 0
	case operators.Greater:
		return c > 0
	default:
		return c >= 0
	}
}

func equal(a, b any) bool {
	if x, ok := toNumber(a); ok {
		y, ok := toNumber(b)
		return ok && x == y
	}
	switch x := a.(type) {
	case nil:
		return b == nil
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case string:
		y, ok := b.(string)
		return ok && x == y
	}
	return false
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	}
	if f, ok := toNumber(v); ok {
		return f != 0 && !math.IsNaN(f)
	}
	return true
}

// normalize widens every numeric kind to float64 so operators see one
// number type.
func normalize(v any) any {
	if f, ok := toNumber(v); ok {
		return f
	}
	return v
}

func toNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	default:
		return 0, false
	}
}

// displayOp turns "_+_" into "+" for error messages.
func displayOp(op string) string {
	if d, ok := operators.FindReverse(op); ok {
		return d
	}
	return op
}
