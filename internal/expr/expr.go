package expr

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
	celast "github.com/google/cel-go/common/ast"
	"github.com/google/cel-go/common/operators"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// parseEnv is used only for parsing; type checking and CEL evaluation are
// never run. Macros are cleared so has()/all()/exists() are not available.
var parseEnv = mustParseEnv()

func mustParseEnv() *cel.Env {
	env, err := cel.NewEnv(cel.ClearMacros())
	if err != nil {
		panic(fmt.Sprintf("expr: build parser env: %v", err))
	}
	return env
}

// JavaScript strict equality is accepted so legacy policy files keep working.
var aliases = strings.NewReplacer("!==", "!=", "===", "==")

// Program is a compiled expression. It is immutable once returned by Compile.
type Program struct {
	src  string
	vars []string
	root node
}

// Compile parses text and binds it to the declared variable names.
func Compile(text string, vars []string) (*Program, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &SyntaxError{Expr: text, Msg: "empty expression"}
	}

	declared := make(map[string]bool, len(vars))
	for _, v := range vars {
		if v == mathNamespace {
			return nil, fmt.Errorf("expr: %q is reserved and cannot be a variable name", v)
		}
		if declared[v] {
			return nil, fmt.Errorf("expr: variable %q declared twice", v)
		}
		declared[v] = true
	}

	parsed, iss := parseEnv.Parse(aliases.Replace(text))
	if iss != nil && iss.Err() != nil {
		return nil, &SyntaxError{Expr: text, Err: iss.Err()}
	}

	l := lowerer{src: text, declared: declared}
	root, err := l.lower(parsed.NativeRep().Expr())
	if err != nil {
		return nil, err
	}

	return &Program{src: text, vars: append([]string(nil), vars...), root: root}, nil
}

// MustCompile is like Compile but panics on error. Use it for built-in
// expressions only, never for policy text.
func MustCompile(text string, vars []string) *Program {
	p, err := Compile(text, vars)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the source text.
func (p *Program) String() string { return p.src }

// Vars returns the declared variable names in order.
func (p *Program) Vars() []string { return append([]string(nil), p.vars...) }

// Eval evaluates the program against named bindings. The result is a
// float64, bool, string, map or nil.
func (p *Program) Eval(vars map[string]any) (any, error) {
	return p.root.eval(&scope{src: p.src, vars: vars})
}

// Call binds args positionally to the declared variables and evaluates.
func (p *Program) Call(args ...any) (any, error) {
	if len(args) != len(p.vars) {
		return nil, fmt.Errorf("expr: %q takes %d arguments, got %d", p.src, len(p.vars), len(args))
	}
	vars := make(map[string]any, len(args))
	for i, name := range p.vars {
		vars[name] = args[i]
	}
	return p.Eval(vars)
}

// EvalFloat evaluates and requires a numeric result.
func (p *Program) EvalFloat(vars map[string]any) (float64, error) {
	v, err := p.Eval(vars)
	if err != nil {
		return 0, err
	}
	f, ok := toNumber(v)
	if !ok {
		return 0, fmt.Errorf("%w: %q produced %T, want number", ErrType, p.src, v)
	}
	return f, nil
}

// EvalBool evaluates and reports whether the result is truthy.
func (p *Program) EvalBool(vars map[string]any) (bool, error) {
	v, err := p.Eval(vars)
	if err != nil {
		return false, err
	}
	return truthy(v), nil
}

// lowerer converts the parsed CEL tree into evaluator nodes, rejecting
// anything outside the supported grammar.
type lowerer struct {
	src      string
	declared map[string]bool
}

func (l *lowerer) syntax(format string, args ...any) error {
	return &SyntaxError{Expr: l.src, Msg: fmt.Sprintf(format, args...)}
}

func (l *lowerer) lower(e celast.Expr) (node, error) {
	switch e.Kind() {
	case celast.LiteralKind:
		return l.literal(e.AsLiteral())

	case celast.IdentKind:
		name := e.AsIdent()
		if name == mathNamespace {
			return nil, l.syntax("%s can only be used as Math.<function>(...) or Math.<constant>", mathNamespace)
		}
		if !l.declared[name] {
			return nil, &UnboundVariableError{Expr: l.src, Name: name}
		}
		return ident(name), nil

	case celast.SelectKind:
		sel := e.AsSelect()
		if sel.IsTestOnly() {
			return nil, l.syntax("presence tests are not supported")
		}
		if isMath(sel.Operand()) {
			c, ok := mathConsts[sel.FieldName()]
			if !ok {
				return nil, l.syntax("unknown constant Math.%s", sel.FieldName())
			}
			return literal{v: c}, nil
		}
		operand, err := l.lower(sel.Operand())
		if err != nil {
			return nil, err
		}
		return &field{operand: operand, name: sel.FieldName()}, nil

	case celast.CallKind:
		return l.call(e.AsCall())

	default:
		return nil, l.syntax("unsupported construct")
	}
}

func (l *lowerer) literal(v ref.Val) (node, error) {
	switch x := v.(type) {
	case types.Int:
		return literal{v: float64(x)}, nil
	case types.Uint:
		return literal{v: float64(x)}, nil
	case types.Double:
		return literal{v: float64(x)}, nil
	case types.Bool:
		return literal{v: bool(x)}, nil
	case types.String:
		return literal{v: string(x)}, nil
	case types.Null:
		return literal{v: nil}, nil
	default:
		return nil, l.syntax("unsupported literal %v", v)
	}
}

func (l *lowerer) call(c celast.CallExpr) (node, error) {
	fn := c.FunctionName()
	if c.IsMemberFunction() {
		if !isMath(c.Target()) {
			return nil, l.syntax("method call %s() is not supported", fn)
		}
		return l.mathCall(fn, c.Args())
	}
	if name, ok := strings.CutPrefix(fn, mathNamespace+"."); ok {
		return l.mathCall(name, c.Args())
	}

	args := make([]node, 0, len(c.Args()))
	for _, a := range c.Args() {
		n, err := l.lower(a)
		if err != nil {
			return nil, err
		}
		args = append(args, n)
	}

	switch fn {
	case operators.Conditional:
		return &ternary{cond: args[0], then: args[1], els: args[2]}, nil
	case operators.LogicalAnd, operators.LogicalOr:
		n := args[0]
		for _, next := range args[1:] {
			n = &logical{and: fn == operators.LogicalAnd, l: n, r: next}
		}
		return n, nil
	case operators.LogicalNot, operators.Negate:
		return &unary{op: fn, x: args[0]}, nil
	case operators.Index:
		return &index{operand: args[0], key: args[1]}, nil
	case operators.Add, operators.Subtract, operators.Multiply, operators.Divide, operators.Modulo,
		operators.Equals, operators.NotEquals,
		operators.Less, operators.LessEquals, operators.Greater, operators.GreaterEquals:
		return &binary{op: fn, l: args[0], r: args[1]}, nil
	default:
		return nil, l.syntax("function %s() is not supported", fn)
	}
}

func (l *lowerer) mathCall(name string, in []celast.Expr) (node, error) {
	mf, ok := mathFuncs[name]
	if !ok {
		return nil, l.syntax("unknown function Math.%s", name)
	}
	if mf.arity >= 0 && len(in) != mf.arity {
		return nil, l.syntax("Math.%s takes %d arguments, got %d", name, mf.arity, len(in))
	}
	if mf.arity < 0 && len(in) == 0 {
		return nil, l.syntax("Math.%s needs at least one argument", name)
	}
	args := make([]node, 0, len(in))
	for _, a := range in {
		n, err := l.lower(a)
		if err != nil {
			return nil, err
		}
		args = append(args, n)
	}
	return &mathCall{name: name, fn: mf.fn, args: args}, nil
}

func isMath(e celast.Expr) bool {
	return e.Kind() == celast.IdentKind && e.AsIdent() == mathNamespace
}
