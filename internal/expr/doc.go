// Package expr compiles the small expression language used in scoring
// policies: decay formulas, rule operators and rule actions.
//
// Text is parsed with the Common Expression Language parser (macros
// disabled) and lowered into a private tree that is evaluated with float64
// arithmetic. The only callable surface is the Math namespace
// (Math.exp, Math.pow, Math.min, ...). Identifiers must be declared at
// compile time, so policy text can read its bound variables and nothing else.
//
// Compile fails with *SyntaxError when the text does not parse or uses an
// unsupported construct, and with *UnboundVariableError when it references an
// undeclared name. A compiled *Program is immutable and safe for concurrent use.
package expr
