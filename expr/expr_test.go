package expr_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cyphergraph/go-cypher-bolt/expr"
	"github.com/cyphergraph/go-cypher-bolt/value"
)

// fakeRenderer is a minimal expr.Renderer for unit-testing rendering in
// isolation from package query.
type fakeRenderer struct {
	aliases map[string]struct{}
	n       int
	warned  []string
}

func newFakeRenderer(aliases ...string) *fakeRenderer {
	f := &fakeRenderer{aliases: map[string]struct{}{}}
	for _, a := range aliases {
		f.aliases[a] = struct{}{}
	}
	return f
}

func (f *fakeRenderer) Intern(value.Value) string {
	f.n++
	return fmt.Sprintf("p%d", f.n)
}

func (f *fakeRenderer) HasAlias(alias string) bool {
	_, ok := f.aliases[alias]
	return ok
}

func (f *fakeRenderer) Warnf(format string, args ...any) {
	f.warned = append(f.warned, fmt.Sprintf(format, args...))
}

func TestLiteral_InternsAndRendersParameter(t *testing.T) {
	r := newFakeRenderer()
	lit := expr.NewLiteral(value.Int(5))
	require.Equal(t, "$p1", lit.Render(r))
}

func TestPropertyAccess_KnownAlias(t *testing.T) {
	r := newFakeRenderer("n")
	pa := expr.NewPropertyAccess("n", "name")
	require.Equal(t, "n.name", pa.Render(r))
	require.Empty(t, r.warned)
}

func TestPropertyAccess_UnknownAliasWarnsNotFails(t *testing.T) {
	r := newFakeRenderer()
	pa := expr.NewPropertyAccess("missing", "name")
	require.Equal(t, "missing.name", pa.Render(r))
	require.Len(t, r.warned, 1)
}

func TestComparison_Binary(t *testing.T) {
	r := newFakeRenderer("n")
	c := expr.NewComparison(expr.NewPropertyAccess("n", "age"), expr.OpGT, expr.NewLiteral(value.Int(18)))
	require.Equal(t, "(n.age > $p1)", c.Render(r))
}

func TestComparison_IsNullUnary(t *testing.T) {
	r := newFakeRenderer("n")
	c := expr.NewComparison(expr.NewPropertyAccess("n", "age"), expr.OpIsNull, nil)
	require.Equal(t, "(n.age IS NULL)", c.Render(r))
}

func TestLogical_NotBindsTightest(t *testing.T) {
	r := newFakeRenderer("n")
	not := expr.NewLogical(expr.OpNot, expr.NewComparison(expr.NewPropertyAccess("n", "age"), expr.OpLT, expr.NewLiteral(value.Int(18))))
	require.Equal(t, "(NOT (n.age < $p1))", not.Render(r))
}

func TestLogical_AndOr(t *testing.T) {
	r := newFakeRenderer("n")
	and := expr.NewLogical(expr.OpAnd,
		expr.NewComparison(expr.NewPropertyAccess("n", "a"), expr.OpEQ, expr.NewLiteral(value.Int(1))),
		expr.NewComparison(expr.NewPropertyAccess("n", "b"), expr.OpEQ, expr.NewLiteral(value.Int(2))),
	)
	require.Equal(t, "((n.a = $p1) AND (n.b = $p2))", and.Render(r))
}

func TestArithmetic(t *testing.T) {
	r := newFakeRenderer("n")
	a := expr.NewArithmetic(expr.NewPropertyAccess("n", "x"), expr.OpAdd, expr.NewLiteral(value.Int(1)))
	require.Equal(t, "(n.x + $p1)", a.Render(r))
}

func TestFunctionCall(t *testing.T) {
	r := newFakeRenderer("n")
	f := expr.NewFunctionCall("count", expr.NewVariableRef("n"))
	require.Equal(t, "count(n)", f.Render(r))
}

type fakePattern struct{ text string }

func (f fakePattern) Render(expr.Renderer) string { return f.text }

func TestExists(t *testing.T) {
	r := newFakeRenderer()
	e := expr.NewExists(fakePattern{text: "(n)-[:KNOWS]->(m)"})
	require.Equal(t, "EXISTS { (n)-[:KNOWS]->(m) }", e.Render(r))
}

func TestAs(t *testing.T) {
	r := newFakeRenderer("n")
	a := expr.NewAs(expr.NewPropertyAccess("n", "name"), "fullName")
	require.Equal(t, "n.name AS fullName", a.Render(r))
}

func TestRetarget_RewritesBareParameterName(t *testing.T) {
	e := expr.NewComparison(
		expr.NewPropertyAccess("n", "name"),
		expr.OpEQ,
		expr.NewParameter("p1"),
	)
	rewritten := expr.Retarget(e, map[string]string{"p1": "p9"})

	r := newFakeRenderer("n")
	require.Equal(t, "(n.name = $p9)", rewritten.Render(r))
	require.Equal(t, "(n.name = $p1)", e.Render(r), "retarget must not mutate the original expression")
}

func TestRetarget_LeavesUnmappedNameUnchanged(t *testing.T) {
	e := expr.NewParameter("p1")
	rewritten := expr.Retarget(e, map[string]string{"other": "p9"})

	r := newFakeRenderer()
	require.Equal(t, "$p1", rewritten.Render(r))
}

func TestRetarget_WalksNestedExpressions(t *testing.T) {
	e := expr.NewLogical(expr.OpAnd,
		expr.NewComparison(expr.NewPropertyAccess("n", "a"), expr.OpEQ, expr.NewParameter("p1")),
		expr.NewFunctionCall("toLower", expr.NewParameter("p2")),
	)
	rewritten := expr.Retarget(e, map[string]string{"p1": "p9", "p2": "p10"})

	r := newFakeRenderer("n")
	require.Equal(t, "((n.a = $p9) AND toLower($p10))", rewritten.Render(r))
}

func TestAliasesUnion(t *testing.T) {
	and := expr.NewLogical(expr.OpAnd,
		expr.NewPropertyAccess("a", "x"),
		expr.NewPropertyAccess("b", "y"),
	)
	aliases := and.Aliases()
	require.Contains(t, aliases, "a")
	require.Contains(t, aliases, "b")
}
