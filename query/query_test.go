package query_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cyphergraph/go-cypher-bolt/expr"
	"github.com/cyphergraph/go-cypher-bolt/pattern"
	"github.com/cyphergraph/go-cypher-bolt/query"
	"github.com/cyphergraph/go-cypher-bolt/value"
)

func TestQuery_Build_CanonicalOrder(t *testing.T) {
	q := query.New()
	q.Match(query.Node("n", "Person"))
	q.Limit(5)
	q.Skip(10)
	q.Return(query.Item(query.Var("n")))
	q.Where(expr.NewComparison(query.Prop("n", "age"), expr.OpGT, query.Lit(value.Int(18))))

	text, params := q.Build()
	require.Equal(t,
		"MATCH (n:Person)\nWHERE (n.age > $p1)\nRETURN n\nSKIP $p2\nLIMIT $p3",
		text,
	)
	require.Equal(t, value.Int(18), params["p1"])
	require.Equal(t, value.Int(10), params["p2"])
	require.Equal(t, value.Int(5), params["p3"])
}

func TestQuery_Build_OrderInvariantUnderCallPermutation(t *testing.T) {
	a := query.New()
	a.Skip(10)
	a.Limit(5)
	aText, _ := a.Build()

	b := query.New()
	b.Limit(5)
	b.Skip(10)
	bText, _ := b.Build()

	require.Equal(t, "SKIP $p1\nLIMIT $p2", aText)
	require.Equal(t, "SKIP $p1\nLIMIT $p2", bText)
	require.Equal(t, aText, bText, "clause category order does not depend on DSL call order")
}

func TestQuery_WhereEquals_InfersAliasFromLastPattern(t *testing.T) {
	q := query.New()
	q.Match(query.Node("n", "Person"))
	_, err := q.WhereEquals(map[string]value.Value{"name": value.Str("Alice")})
	require.NoError(t, err)

	text, params := q.Build()
	require.Equal(t, "MATCH (n:Person)\nWHERE (n.name = $p1)", text)
	require.Equal(t, value.Str("Alice"), params["p1"])
}

func TestQuery_WhereEquals_NoPriorAliasErrors(t *testing.T) {
	q := query.New()
	_, err := q.WhereEquals(map[string]value.Value{"name": value.Str("Alice")})
	require.ErrorIs(t, err, query.ErrCannotInferAlias)
}

func TestQuery_Merge_AliasConflictRejected(t *testing.T) {
	a := query.New()
	a.Match(query.Node("n", "Person"))

	b := query.New()
	b.Match(query.Node("n", "Movie"))

	err := a.Merge(b)
	require.ErrorIs(t, err, query.ErrAliasConflict)
}

func TestQuery_Merge_WhereMergesAndOrderSkipLimitReplace(t *testing.T) {
	a := query.New()
	a.Match(query.Node("n", "Person"))
	a.Where(expr.NewComparison(query.Prop("n", "age"), expr.OpGT, query.Lit(value.Int(18))))
	a.Skip(0)

	b := query.New()
	b.Match(query.Node("n", "Person"))
	b.Where(expr.NewComparison(query.Prop("n", "name"), expr.OpEQ, query.Lit(value.Str("Alice"))))
	b.Limit(5)

	err := a.Merge(b)
	require.NoError(t, err)

	text, params := a.Build()
	require.Equal(t,
		"MATCH (n:Person)\nMATCH (n:Person)\nWHERE (n.age > $p1) AND (n.name = $p2)\nLIMIT $p3",
		text,
	)
	require.Equal(t, value.Int(18), params["p1"])
	require.Equal(t, value.Str("Alice"), params["p2"])
	require.Equal(t, value.Int(5), params["p3"])
}

func TestQuery_Merge_RetargetsBareParameterReference(t *testing.T) {
	a := query.New()
	a.Match(query.Node("n", "Person"))
	aParam := a.Intern(value.Int(18)) // a's own p1
	a.Where(expr.NewComparison(query.Prop("n", "age"), expr.OpGT, expr.NewParameter(aParam)))

	b := query.New()
	b.Match(query.Node("m", "Person"))
	bParam := b.Intern(value.Str("Bob")) // b's own p1, collides by name but not by value with a's
	b.Where(expr.NewComparison(query.Prop("m", "name"), expr.OpEQ, expr.NewParameter(bParam)))

	err := a.Merge(b)
	require.NoError(t, err)

	text, params := a.Build()
	require.Equal(t,
		"MATCH (n:Person)\nMATCH (m:Person)\nWHERE (n.age > $p1) AND (m.name = $p2)",
		text,
	)
	require.Equal(t, value.Int(18), params["p1"])
	require.Equal(t, value.Str("Bob"), params["p2"], "the carried-over bare Parameter now points at its re-interned name in a's table, not b's stale p1")
}

func TestQuery_CallSubquery_ReinternsAndDedupsAgainstOuter(t *testing.T) {
	outer := query.New()
	outer.Match(query.Node("n", "Person"))
	outer.Where(expr.NewComparison(query.Prop("n", "age"), expr.OpGT, query.Lit(value.Int(18))))

	rel, err := pattern.NewPath(pattern.NewNode("n"), pattern.NewRelationship("", pattern.DirOut, "KNOWS"), pattern.NewNode("m"))
	require.NoError(t, err)

	inner := query.New()
	inner.Match(rel)
	inner.Where(expr.NewComparison(query.Prop("m", "age"), expr.OpGT, query.Lit(value.Int(18))))
	inner.Return(query.Item(query.Var("m")))

	outer.CallSubquery(inner)

	text, params := outer.Build()
	require.Contains(t, text, "CALL {")
	require.Contains(t, text, "$p1", "the inner and outer WHERE share $p1 for the structurally-equal literal 18")
	require.NotContains(t, text, "$p2", "no second distinct parameter is minted for the duplicate literal")
	require.Len(t, params, 1)
}

func TestQuery_Match_ObservesPatternAliasAndLabels(t *testing.T) {
	q := query.New()
	q.Match(query.Node("n", "Person", "Employee"))
	labels := q.AliasLabels("n")
	require.Len(t, labels, 2)
	_, hasPerson := labels["Person"]
	_, hasEmployee := labels["Employee"]
	require.True(t, hasPerson)
	require.True(t, hasEmployee)
}

func TestQuery_DetachDelete(t *testing.T) {
	q := query.New()
	q.Match(query.Node("n"))
	q.DetachDelete("n")
	text, _ := q.Build()
	require.Equal(t, "MATCH (n)\nDETACH DELETE n", text)
}

func TestQuery_CallProcedure(t *testing.T) {
	q := query.New()
	q.CallProcedure("db.labels")
	text, _ := q.Build()
	require.Equal(t, "CALL db.labels()", text)
}

func TestQuery_MergePattern_WithoutAssignments(t *testing.T) {
	q := query.New()
	q.MergePattern(
		query.Node("n", "Person"),
		nil,
		nil,
	)
	text, _ := q.Build()
	require.Equal(t, "MERGE (n:Person)", text)
}
