package clause_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cyphergraph/go-cypher-bolt/clause"
	"github.com/cyphergraph/go-cypher-bolt/expr"
	"github.com/cyphergraph/go-cypher-bolt/pattern"
	"github.com/cyphergraph/go-cypher-bolt/value"
)

type fakeRenderer struct {
	n       int
	aliases map[string]struct{}
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
func (f *fakeRenderer) HasAlias(a string) bool { _, ok := f.aliases[a]; return ok }
func (f *fakeRenderer) Warnf(string, ...any)   {}

func TestMatch_Render(t *testing.T) {
	r := newFakeRenderer()
	n := pattern.NewNode("n")
	m := clause.NewMatch(n)
	require.Equal(t, "MATCH (n)", m.Render(r))
	require.Equal(t, clause.OrderMatchCreateMerge, m.OrderKey())
}

func TestMatch_OptionalWithPathVar(t *testing.T) {
	r := newFakeRenderer()
	n := pattern.NewNode("n")
	m := clause.NewOptionalMatch(n).WithPathVar("p")
	require.Equal(t, "OPTIONAL MATCH p = (n)", m.Render(r))
}

func TestSkipLimit_Parameterized(t *testing.T) {
	r := newFakeRenderer()
	skip := clause.NewSkip(clause.IntAmount(10))
	limit := clause.NewLimit(clause.IntAmount(5))
	require.Equal(t, "SKIP $p1", skip.Render(r))
	require.Equal(t, "LIMIT $p2", limit.Render(r))
}

func TestReturn_DistinctAndAlias(t *testing.T) {
	r := newFakeRenderer("n")
	ret := clause.NewReturn(
		clause.NewItem(expr.NewPropertyAccess("n", "name")).As("fullName"),
	).WithDistinct()
	require.Equal(t, "RETURN DISTINCT n.name AS fullName", ret.Render(r))
}

func TestOrderBy_DefaultAscOmitted(t *testing.T) {
	r := newFakeRenderer("n")
	ob := clause.NewOrderBy(
		clause.SortItem{Expr: expr.NewPropertyAccess("n", "age")},
		clause.SortItem{Expr: expr.NewPropertyAccess("n", "name"), Direction: clause.Desc},
	)
	require.Equal(t, "ORDER BY n.age, n.name DESC", ob.Render(r))
}

func TestSet_PlusAssignment(t *testing.T) {
	r := newFakeRenderer("n")
	m := value.NewMap([]string{"a"}, map[string]value.Value{"a": value.Int(1)})
	s := clause.NewSet(clause.MergeProps("n", m))
	require.Equal(t, "SET n += $p1", s.Render(r))
}

func TestMerge_OnCreateOnMatch(t *testing.T) {
	r := newFakeRenderer("n")
	n := pattern.NewNode("n")
	m := clause.NewMerge(n).
		WithOnCreate(clause.SetProp(expr.NewPropertyAccess("n", "created"), expr.NewLiteral(value.Bool(true)))).
		WithOnMatch(clause.SetProp(expr.NewPropertyAccess("n", "seen"), expr.NewLiteral(value.Bool(true))))
	out := m.Render(r)
	require.Equal(t, "MERGE (n)\nON CREATE SET n.created = $p1\nON MATCH SET n.seen = $p2", out)
}

func TestDelete_Detach(t *testing.T) {
	r := newFakeRenderer()
	d := clause.NewDetachDelete("n", "m")
	require.Equal(t, "DETACH DELETE n, m", d.Render(r))
}

func TestRetarget_Where_RewritesBareParameter(t *testing.T) {
	r := newFakeRenderer("n")
	w := clause.NewWhere(expr.NewComparison(expr.NewPropertyAccess("n", "a"), expr.OpEQ, expr.NewParameter("p1")))
	retargeted := clause.Retarget(w, map[string]string{"p1": "p9"}).(clause.Where)
	require.Equal(t, "WHERE (n.a = $p9)", retargeted.Render(r))
}

func TestRetarget_MatchPattern_RewritesEmbeddedParameter(t *testing.T) {
	r := newFakeRenderer()
	n := pattern.NewNode("n").WithProp("name", pattern.Expr(expr.NewParameter("p1")))
	m := clause.NewMatch(n)
	retargeted := clause.Retarget(m, map[string]string{"p1": "p9"}).(clause.Match)
	require.Equal(t, "MATCH (n {name: $p9})", retargeted.Render(r))
}

func TestRetarget_SkipLimit_RewritesAmount(t *testing.T) {
	r := newFakeRenderer()
	skip := clause.NewSkip(clause.ExprAmount(expr.NewParameter("p1")))
	retargeted := clause.Retarget(skip, map[string]string{"p1": "p9"}).(clause.Skip)
	require.Equal(t, "SKIP $p9", retargeted.Render(r))
}

func TestWhere_MergeAppendsConjuncts(t *testing.T) {
	r := newFakeRenderer("n")
	w1 := clause.NewWhere(expr.NewComparison(expr.NewPropertyAccess("n", "a"), expr.OpEQ, expr.NewLiteral(value.Int(1))))
	w2 := clause.NewWhere(expr.NewComparison(expr.NewPropertyAccess("n", "b"), expr.OpEQ, expr.NewLiteral(value.Int(2))))
	merged := w1.MergeWhere(w2)
	require.Equal(t, "WHERE (n.a = $p1) AND (n.b = $p2)", merged.Render(r))
}
