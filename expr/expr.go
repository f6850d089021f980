// Package expr implements the typed Cypher expression tree: property
// access, comparison, arithmetic, logical composition, function calls and
// existential sub-patterns. Expressions render themselves against a
// Renderer (satisfied by query.Query) which supplies parameter interning
// and alias-visibility checks.
package expr

import (
	"fmt"
	"strings"

	"github.com/cyphergraph/go-cypher-bolt/value"
)

// Renderer is the minimal surface an Expression needs from its owning
// Query: intern a literal Value into a named parameter, and check
// whether an alias has been declared anywhere in the query so far. This
// interface — rather than a direct import of package query — is what
// keeps query -> expr a one-way import edge.
type Renderer interface {
	Intern(v value.Value) string
	HasAlias(alias string) bool
	Warnf(format string, args ...any)
}

// Expression is the closed tagged variant of all renderable Cypher
// expressions.
type Expression interface {
	// Render emits valid Cypher for this expression, interning any
	// embedded literal Value via r.Intern.
	Render(r Renderer) string

	// Aliases returns the set of aliases this expression depends on.
	Aliases() map[string]struct{}
}

// Pattern is the minimal surface expr needs from package pattern, to
// support Exists(Pattern) without importing it (pattern already imports
// expr for property values).
type Pattern interface {
	Render(r Renderer) string
}

func union(sets ...map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	for _, s := range sets {
		for k := range s {
			out[k] = struct{}{}
		}
	}
	return out
}

// ---- Literal ----

// Literal wraps a value.Value as an expression; rendering interns it as
// a parameter.
type Literal struct{ Value value.Value }

func NewLiteral(v value.Value) Literal { return Literal{Value: v} }

func (l Literal) Render(r Renderer) string  { return "$" + r.Intern(l.Value) }
func (Literal) Aliases() map[string]struct{} { return nil }

// ---- PropertyAccess ----

// PropertyAccess renders "alias.key". It is a soft ("warnings-level")
// error, not a build failure, to reference an alias not declared
// elsewhere in the Query — per spec.md §4.2, UnknownAlias is a warning,
// surfaced here via Renderer.Warnf rather than a returned error, since
// Render itself cannot fail.
type PropertyAccess struct {
	Alias string
	Key   string
}

func NewPropertyAccess(alias, key string) PropertyAccess {
	return PropertyAccess{Alias: alias, Key: key}
}

func (p PropertyAccess) Render(r Renderer) string {
	if !r.HasAlias(p.Alias) {
		r.Warnf("unknown alias %q referenced by property access %q", p.Alias, p.Key)
	}
	return p.Alias + "." + p.Key
}

func (p PropertyAccess) Aliases() map[string]struct{} {
	return map[string]struct{}{p.Alias: {}}
}

// ---- VariableRef ----

// VariableRef renders a bare identifier, e.g. in RETURN n.
type VariableRef struct{ Alias string }

func NewVariableRef(alias string) VariableRef { return VariableRef{Alias: alias} }

func (v VariableRef) Render(r Renderer) string { return v.Alias }
func (v VariableRef) Aliases() map[string]struct{} {
	return map[string]struct{}{v.Alias: {}}
}

// ---- Parameter ----

// Parameter renders a previously-interned parameter name directly
// (`$name`), used when re-targeting expressions carried over from a
// merged sub-query.
type Parameter struct{ Name string }

func NewParameter(name string) Parameter { return Parameter{Name: name} }

func (p Parameter) Render(Renderer) string          { return "$" + p.Name }
func (Parameter) Aliases() map[string]struct{}      { return nil }

// RetargetablePattern is implemented by package pattern's concrete
// pattern types (NodePattern, RelationshipPattern, PathPattern): it lets
// Retarget rewrite Parameter references embedded in a pattern's property
// values (via a PropValue built from Expr(expr.Expression)) without expr
// importing package pattern — pattern already imports expr (see Pattern's
// doc comment above for why that dependency only runs one way).
type RetargetablePattern interface {
	Retarget(rewrite map[string]string) Pattern
}

// Retarget returns a copy of e with every embedded Parameter's Name
// rewritten via rewrite (old name -> new name); a Parameter whose Name
// has no entry in rewrite is left unchanged. This is what actually
// carries out spec.md §4.4's "All Expressions from other... [are]
// retargeted via the rewrite map" step when Query.Merge re-interns a
// merged-in query's ParamTable and needs any bare Parameter references
// it carried over (as opposed to Literal, which simply re-interns itself
// the next time it renders) to keep pointing at the right name.
func Retarget(e Expression, rewrite map[string]string) Expression {
	if e == nil {
		return nil
	}
	switch v := e.(type) {
	case Parameter:
		if newName, ok := rewrite[v.Name]; ok {
			return Parameter{Name: newName}
		}
		return v
	case Comparison:
		v.LHS = Retarget(v.LHS, rewrite)
		if v.RHS != nil {
			v.RHS = Retarget(v.RHS, rewrite)
		}
		return v
	case Logical:
		ops := make([]Expression, len(v.Operands))
		for i, o := range v.Operands {
			ops[i] = Retarget(o, rewrite)
		}
		v.Operands = ops
		return v
	case Arithmetic:
		v.LHS = Retarget(v.LHS, rewrite)
		v.RHS = Retarget(v.RHS, rewrite)
		return v
	case FunctionCall:
		args := make([]Expression, len(v.Args))
		for i, a := range v.Args {
			args[i] = Retarget(a, rewrite)
		}
		v.Args = args
		return v
	case Exists:
		if rp, ok := v.Pattern.(RetargetablePattern); ok {
			v.Pattern = rp.Retarget(rewrite)
		}
		return v
	case As:
		v.Inner = Retarget(v.Inner, rewrite)
		return v
	default:
		// Literal, PropertyAccess and VariableRef carry no Parameter
		// references to rewrite.
		return e
	}
}

// ---- Comparison ----

// ComparisonOp enumerates Cypher comparison operators.
type ComparisonOp string

const (
	OpEQ        ComparisonOp = "="
	OpNE        ComparisonOp = "<>"
	OpLT        ComparisonOp = "<"
	OpLE        ComparisonOp = "<="
	OpGT        ComparisonOp = ">"
	OpGE        ComparisonOp = ">="
	OpIn        ComparisonOp = "IN"
	OpStartsWith ComparisonOp = "STARTS WITH"
	OpEndsWith  ComparisonOp = "ENDS WITH"
	OpContains  ComparisonOp = "CONTAINS"
	OpIsNull    ComparisonOp = "IS NULL"
	OpIsNotNull ComparisonOp = "IS NOT NULL"
)

// Comparison renders "(lhs OP rhs)"; unary forms (IS NULL/IS NOT NULL)
// omit the rhs.
type Comparison struct {
	LHS Expression
	Op  ComparisonOp
	RHS Expression // nil for IS NULL / IS NOT NULL
}

func NewComparison(lhs Expression, op ComparisonOp, rhs Expression) Comparison {
	return Comparison{LHS: lhs, Op: op, RHS: rhs}
}

func (c Comparison) Render(r Renderer) string {
	if c.Op == OpIsNull || c.Op == OpIsNotNull {
		return fmt.Sprintf("(%s %s)", c.LHS.Render(r), c.Op)
	}
	return fmt.Sprintf("(%s %s %s)", c.LHS.Render(r), c.Op, c.RHS.Render(r))
}

func (c Comparison) Aliases() map[string]struct{} {
	if c.RHS == nil {
		return union(c.LHS.Aliases())
	}
	return union(c.LHS.Aliases(), c.RHS.Aliases())
}

// ---- Logical ----

// LogicalOp enumerates AND/OR/NOT.
type LogicalOp string

const (
	OpAnd LogicalOp = "AND"
	OpOr  LogicalOp = "OR"
	OpNot LogicalOp = "NOT"
)

// Logical renders a NOT/AND/OR composition. NOT takes exactly one
// operand and binds tightest (after function call / property access);
// AND/OR bind loosest, per spec.md §4.2. Every compound expression is
// parenthesized so precedence is explicit in the output regardless of Go
// operator-binding concerns.
type Logical struct {
	Op       LogicalOp
	Operands []Expression
}

func NewLogical(op LogicalOp, operands ...Expression) Logical {
	return Logical{Op: op, Operands: operands}
}

func (l Logical) Render(r Renderer) string {
	if l.Op == OpNot {
		return fmt.Sprintf("(NOT %s)", l.Operands[0].Render(r))
	}
	parts := make([]string, len(l.Operands))
	for i, o := range l.Operands {
		parts[i] = o.Render(r)
	}
	sep := fmt.Sprintf(" %s ", l.Op)
	return "(" + strings.Join(parts, sep) + ")"
}

func (l Logical) Aliases() map[string]struct{} {
	sets := make([]map[string]struct{}, len(l.Operands))
	for i, o := range l.Operands {
		sets[i] = o.Aliases()
	}
	return union(sets...)
}

// ---- Arithmetic ----

// ArithmeticOp enumerates +, -, *, /, % and ^.
type ArithmeticOp string

const (
	OpAdd ArithmeticOp = "+"
	OpSub ArithmeticOp = "-"
	OpMul ArithmeticOp = "*"
	OpDiv ArithmeticOp = "/"
	OpMod ArithmeticOp = "%"
	OpPow ArithmeticOp = "^"
)

// Arithmetic renders "(lhs OP rhs)".
type Arithmetic struct {
	LHS Expression
	Op  ArithmeticOp
	RHS Expression
}

func NewArithmetic(lhs Expression, op ArithmeticOp, rhs Expression) Arithmetic {
	return Arithmetic{LHS: lhs, Op: op, RHS: rhs}
}

func (a Arithmetic) Render(r Renderer) string {
	return fmt.Sprintf("(%s %s %s)", a.LHS.Render(r), a.Op, a.RHS.Render(r))
}

func (a Arithmetic) Aliases() map[string]struct{} {
	return union(a.LHS.Aliases(), a.RHS.Aliases())
}

// ---- FunctionCall ----

// FunctionCall renders "name(arg1, arg2, ...)".
type FunctionCall struct {
	Name string
	Args []Expression
}

func NewFunctionCall(name string, args ...Expression) FunctionCall {
	return FunctionCall{Name: name, Args: args}
}

func (f FunctionCall) Render(r Renderer) string {
	parts := make([]string, len(f.Args))
	for i, a := range f.Args {
		parts[i] = a.Render(r)
	}
	return fmt.Sprintf("%s(%s)", f.Name, strings.Join(parts, ", "))
}

func (f FunctionCall) Aliases() map[string]struct{} {
	sets := make([]map[string]struct{}, len(f.Args))
	for i, a := range f.Args {
		sets[i] = a.Aliases()
	}
	return union(sets...)
}

// ---- Exists ----

// Exists renders "EXISTS { <pattern> }".
type Exists struct{ Pattern Pattern }

func NewExists(p Pattern) Exists { return Exists{Pattern: p} }

func (e Exists) Render(r Renderer) string {
	return "EXISTS { " + e.Pattern.Render(r) + " }"
}

func (Exists) Aliases() map[string]struct{} { return nil }

// As wraps an expression with an output alias for RETURN/WITH items.
type As struct {
	Inner Expression
	Alias string
}

func NewAs(inner Expression, alias string) As { return As{Inner: inner, Alias: alias} }

func (a As) Render(r Renderer) string {
	return a.Inner.Render(r) + " AS " + a.Alias
}

func (a As) Aliases() map[string]struct{} { return a.Inner.Aliases() }
