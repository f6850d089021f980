package query

import (
	"fmt"
	"sort"

	"github.com/cyphergraph/go-cypher-bolt/clause"
	"github.com/cyphergraph/go-cypher-bolt/expr"
	"github.com/cyphergraph/go-cypher-bolt/pattern"
	"github.com/cyphergraph/go-cypher-bolt/value"
)

// ---- top-level pattern-builder helpers ----
//
// spec.md §9 notes the source carries two divergent definitions of its
// top-level DSL surface, one including Plus/path-builder helpers and one
// not; per the spec's resolution this module always exposes the
// superset. Node/Rel/Path (plus MustPath) are that superset's pattern
// constructors, re-exported here so callers write `query.Node(...)`
// rather than reaching into package pattern directly.

// Node builds a node pattern.
func Node(alias string, labels ...string) *pattern.NodePattern { return pattern.NewNode(alias, labels...) }

// Rel builds a relationship pattern.
func Rel(alias string, dir pattern.Direction, types ...string) *pattern.RelationshipPattern {
	return pattern.NewRelationship(alias, dir, types...)
}

// Path validates and builds a path pattern.
func Path(elements ...pattern.Element) (*pattern.PathPattern, error) { return pattern.NewPath(elements...) }

// MustPath builds a path pattern, panicking on an invalid sequence — for
// call sites building paths from a literal, statically-known sequence.
func MustPath(elements ...pattern.Element) *pattern.PathPattern { return pattern.MustNewPath(elements...) }

// Plus builds an `alias += $p` property-merge assignment from a Go map
// of literal values — the DSL's path-builder-adjacent shorthand for
// clause.MergeProps, named after the Cypher `+=` operator it renders.
func Plus(alias string, props map[string]value.Value) clause.Assignment {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	return clause.MergeProps(alias, value.NewMap(keys, props))
}

// ---- fluent Query DSL ----

// Match appends a MATCH clause.
func (q *Query) Match(p clause.Pattern) *Query {
	q.observePattern(p)
	return q.append(clause.NewMatch(p))
}

// OptionalMatch appends an OPTIONAL MATCH clause.
func (q *Query) OptionalMatch(p clause.Pattern) *Query {
	q.observePattern(p)
	return q.append(clause.NewOptionalMatch(p))
}

// Create appends a CREATE clause.
func (q *Query) Create(p clause.Pattern) *Query {
	q.observePattern(p)
	return q.append(clause.NewCreate(p))
}

// MergePattern appends a MERGE clause (named to avoid colliding with the
// Query.Merge query-combination method).
func (q *Query) MergePattern(p clause.Pattern, onCreate, onMatch []clause.Assignment) *Query {
	q.observePattern(p)
	m := clause.NewMerge(p)
	if len(onCreate) > 0 {
		m = m.WithOnCreate(onCreate...)
	}
	if len(onMatch) > 0 {
		m = m.WithOnMatch(onMatch...)
	}
	return q.append(m)
}

// Where appends a WHERE clause built from explicit conjuncts.
func (q *Query) Where(conjuncts ...expr.Expression) *Query {
	return q.append(clause.NewWhere(conjuncts...))
}

// WhereEquals implicitly converts a `{key: value}` mapping into an
// equality conjunct against the last node alias introduced by a prior
// Match/Create/MergePattern call, per spec.md §4.4, with one conjunct per
// key in sorted key order. It returns ErrCannotInferAlias if no such
// alias exists.
func (q *Query) WhereEquals(props map[string]value.Value) (*Query, error) {
	if q.lastPatternAlias == "" {
		return q, fmt.Errorf("%w: no prior MATCH/CREATE/MERGE alias to target", ErrCannotInferAlias)
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	conjuncts := make([]expr.Expression, 0, len(props))
	for _, k := range keys {
		conjuncts = append(conjuncts, expr.NewComparison(
			expr.NewPropertyAccess(q.lastPatternAlias, k), expr.OpEQ, expr.NewLiteral(props[k]),
		))
	}
	return q.append(clause.NewWhere(conjuncts...)), nil
}

// Set appends a SET clause. Multiple Set clauses are never deduplicated.
func (q *Query) Set(assignments ...clause.Assignment) *Query {
	return q.append(clause.NewSet(assignments...))
}

// Remove appends a REMOVE clause.
func (q *Query) Remove(targets ...expr.Expression) *Query {
	return q.append(clause.NewRemove(targets...))
}

// Delete appends a DELETE clause.
func (q *Query) Delete(vars ...string) *Query {
	return q.append(clause.NewDelete(vars...))
}

// DetachDelete appends a DETACH DELETE clause.
func (q *Query) DetachDelete(vars ...string) *Query {
	return q.append(clause.NewDetachDelete(vars...))
}

// With appends a WITH clause.
func (q *Query) With(items ...clause.Item) *Query {
	return q.append(clause.NewWith(items...))
}

// WithDistinctWhere appends a `WITH DISTINCT ... WHERE ...` clause.
func (q *Query) WithDistinctWhere(where *clause.Where, items ...clause.Item) *Query {
	w := clause.NewWith(items...).WithDistinct()
	if where != nil {
		w = w.WithWhere(*where)
	}
	return q.append(w)
}

// Return appends a RETURN clause.
func (q *Query) Return(items ...clause.Item) *Query {
	return q.append(clause.NewReturn(items...))
}

// ReturnDistinct appends a `RETURN DISTINCT ...` clause.
func (q *Query) ReturnDistinct(items ...clause.Item) *Query {
	return q.append(clause.NewReturn(items...).WithDistinct())
}

// OrderBy appends an ORDER BY clause.
func (q *Query) OrderBy(items ...clause.SortItem) *Query {
	return q.append(clause.NewOrderBy(items...))
}

// Skip appends a SKIP clause.
func (q *Query) Skip(n int64) *Query {
	return q.append(clause.NewSkip(clause.IntAmount(n)))
}

// Limit appends a LIMIT clause.
func (q *Query) Limit(n int64) *Query {
	return q.append(clause.NewLimit(clause.IntAmount(n)))
}

// CallProcedure appends a CALL proc(args) clause.
func (q *Query) CallProcedure(proc string, args ...expr.Expression) *Query {
	return q.append(clause.NewCall(proc, args...))
}

// CallSubquery appends a `CALL { <inner> }` clause. The inner Query's
// ParamTable is merged into q per spec.md §4.4; see Query.RenderSubquery
// for how its text is rendered in terms of q's interning.
func (q *Query) CallSubquery(inner *Query) *Query {
	return q.append(clause.NewCallSubquery(inner))
}

// Item is re-exported for DSL ergonomics (query.Item(...) instead of
// reaching into package clause).
func Item(e expr.Expression) clause.Item { return clause.NewItem(e) }

// Prop builds a PropertyAccess expression.
func Prop(alias, key string) expr.PropertyAccess { return expr.NewPropertyAccess(alias, key) }

// Var builds a bare VariableRef expression.
func Var(alias string) expr.VariableRef { return expr.NewVariableRef(alias) }

// Lit builds a Literal expression from a value.Value.
func Lit(v value.Value) expr.Literal { return expr.NewLiteral(v) }
