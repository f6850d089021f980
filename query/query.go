// Package query implements the Query AST: an ordered collection of
// Clauses plus one ParamTable, with DSL construction methods, alias-aware
// merging, and deterministic canonical-order rendering (spec.md §3–§4.4,
// §4.11).
package query

import (
	"errors"
	"fmt"
	"sort"

	"github.com/cyphergraph/go-cypher-bolt/clause"
	"github.com/cyphergraph/go-cypher-bolt/expr"
	"github.com/cyphergraph/go-cypher-bolt/pattern"
	"github.com/cyphergraph/go-cypher-bolt/value"
)

// Sentinel errors, matching spec.md §7's domain-level error kinds.
var (
	ErrAliasConflict     = errors.New("query: alias conflict")
	ErrCannotInferAlias   = errors.New("query: cannot infer alias")
)

// orderedClause pairs a Clause with its insertion index, so Build's
// stable sort by OrderKey can apply an explicit secondary tie-break
// (spec.md §4.11) even though sort.SliceStable already preserves
// relative order — the index also lets Merge interleave two clause
// lists deterministically.
type orderedClause struct {
	clause clause.Clause
	seq    int
}

// Query is an ordered list of Clauses plus one ParamTable. Queries are
// single-producer: build once, render possibly many times, never mutate
// after Build (spec.md §3 Lifecycle). DSL methods return the same *Query
// (mutating builder pattern), matching idiomatic fluent query builders.
type Query struct {
	clauses []orderedClause
	seq     int
	params  *ParamTable

	// aliasLabels is the AliasIndex: alias -> set of labels/types it has
	// been observed with, used by Merge's conflict detection.
	aliasLabels map[string]map[string]struct{}

	// lastPatternAlias is the most recently introduced alias from a
	// Match/Create/Merge pattern, used by Where(map)'s implicit alias
	// inference.
	lastPatternAlias string

	warnings []string
}

// New returns an empty Query.
func New() *Query {
	return &Query{
		params:      NewParamTable(),
		aliasLabels: map[string]map[string]struct{}{},
	}
}

// ---- expr.Renderer / clause rendering surface ----

// Intern interns v into the Query's ParamTable, implementing
// expr.Renderer.
func (q *Query) Intern(v value.Value) string { return q.params.Intern(v) }

// HasAlias reports whether alias has been declared anywhere in the
// Query so far, implementing expr.Renderer.
func (q *Query) HasAlias(alias string) bool {
	_, ok := q.aliasLabels[alias]
	return ok
}

// Warnf records a non-fatal warning (e.g. UnknownAlias), implementing
// expr.Renderer.
func (q *Query) Warnf(format string, args ...any) {
	q.warnings = append(q.warnings, fmt.Sprintf(format, args...))
}

// Warnings returns warnings accumulated during the most recent Build.
func (q *Query) Warnings() []string {
	out := make([]string, len(q.warnings))
	copy(out, q.warnings)
	return out
}

// Params exposes the Query's ParamTable, e.g. for CallSubquery merging.
func (q *Query) Params() *ParamTable { return q.params }

// ---- alias index bookkeeping ----

func (q *Query) observeAlias(alias string, label string) {
	if alias == "" {
		return
	}
	set, ok := q.aliasLabels[alias]
	if !ok {
		set = map[string]struct{}{}
		q.aliasLabels[alias] = set
	}
	if label != "" {
		set[label] = struct{}{}
	}
}

func nodesOf(p clause.Pattern) []*pattern.NodePattern {
	switch pt := p.(type) {
	case *pattern.NodePattern:
		return []*pattern.NodePattern{pt}
	case *pattern.PathPattern:
		var out []*pattern.NodePattern
		for _, el := range pt.Elements() {
			if n, ok := el.(*pattern.NodePattern); ok {
				out = append(out, n)
			}
		}
		return out
	default:
		return nil
	}
}

func (q *Query) observePattern(p clause.Pattern) {
	nodes := nodesOf(p)
	for _, n := range nodes {
		if n.Alias() == "" {
			continue
		}
		q.lastPatternAlias = n.Alias()
		labels := n.Labels()
		if len(labels) == 0 {
			q.observeAlias(n.Alias(), "")
			continue
		}
		for _, l := range labels {
			q.observeAlias(n.Alias(), l)
		}
	}
}

// AliasLabels returns a copy of the observed labels for alias (the
// AliasIndex entry), or nil if the alias is unknown.
func (q *Query) AliasLabels(alias string) map[string]struct{} {
	src, ok := q.aliasLabels[alias]
	if !ok {
		return nil
	}
	out := make(map[string]struct{}, len(src))
	for k := range src {
		out[k] = struct{}{}
	}
	return out
}

// ---- clause append ----

func (q *Query) append(c clause.Clause) *Query {
	q.clauses = append(q.clauses, orderedClause{clause: c, seq: q.seq})
	q.seq++
	return q
}

// ---- Build ----

// Build sorts clauses by OrderKey with a stable insertion-order
// tie-break, joins their renderings with newline separators, and
// returns the resulting Cypher text plus the ParamTable's contents as a
// map keyed by parameter name (spec.md §4.4); Params().Names() gives the
// names in rendering order. Warnings from an earlier Build are cleared.
func (q *Query) Build() (string, map[string]value.Value) {
	q.warnings = nil
	ordered := make([]orderedClause, len(q.clauses))
	copy(ordered, q.clauses)
	sort.SliceStable(ordered, func(i, j int) bool {
		ki, kj := ordered[i].clause.OrderKey(), ordered[j].clause.OrderKey()
		if ki != kj {
			return ki < kj
		}
		return ordered[i].seq < ordered[j].seq
	})

	text := ""
	for i, oc := range ordered {
		if i > 0 {
			text += "\n"
		}
		text += oc.clause.Render(q)
	}
	return text, q.params.AsMap()
}

// RenderSubquery renders this Query's clauses using outer as the
// parameter-interning/alias-visibility surface instead of q itself: any
// Literal expressions re-intern (and so dedup) directly against outer's
// ParamTable, which is the CallSubquery re-interning behavior spec.md
// §4.4/§9 prescribes. Alias visibility considers both this Query's own
// declarations and the outer's, since a Cypher subquery can reference
// imported outer variables. Values held in this Query's own ParamTable
// (referenced by bare Parameter expressions) are first re-interned into
// outer, and those references are rewritten to the outer names.
func (q *Query) RenderSubquery(outer expr.Renderer) string {
	sr := &subqueryRenderer{outer: outer, inner: q}
	rewrite := make(map[string]string, q.params.Len())
	for _, name := range q.params.Names() {
		v, _ := q.params.Get(name)
		rewrite[name] = outer.Intern(v)
	}
	ordered := make([]orderedClause, len(q.clauses))
	copy(ordered, q.clauses)
	sort.SliceStable(ordered, func(i, j int) bool {
		ki, kj := ordered[i].clause.OrderKey(), ordered[j].clause.OrderKey()
		if ki != kj {
			return ki < kj
		}
		return ordered[i].seq < ordered[j].seq
	})
	text := ""
	for i, oc := range ordered {
		if i > 0 {
			text += "\n"
		}
		text += clause.Retarget(oc.clause, rewrite).Render(sr)
	}
	return text
}

type subqueryRenderer struct {
	outer expr.Renderer
	inner *Query
}

func (s *subqueryRenderer) Intern(v value.Value) string { return s.outer.Intern(v) }

func (s *subqueryRenderer) HasAlias(alias string) bool {
	return s.inner.HasAlias(alias) || s.outer.HasAlias(alias)
}

func (s *subqueryRenderer) Warnf(format string, args ...any) { s.outer.Warnf(format, args...) }

// ---- Merge ----

// Merge merges other into q in place, per spec.md §4.4:
//  1. detects alias conflicts (same alias, non-empty non-equal label
//     sets) and returns ErrAliasConflict without mutating q;
//  2. merges parameter tables (always re-interning), producing a
//     rewrite map;
//  3. recombines clauses: OrderBy/Skip/Limit from other replace q's,
//     Where clauses merge conjuncts, everything else appends in order.
//
// Literal expressions need no help from the rewrite map: they carry the
// Value itself and simply re-intern through q.Intern when rendered
// against q, which dedups structurally and assigns whatever name q sees
// fit. Bare Parameter expressions carry only a name, not a Value, so
// they cannot re-intern themselves; retarget below walks every clause's
// expression (and pattern property) tree and rewrites Parameter.Name via
// the rewrite map before the clause is appended to q.
func (q *Query) Merge(other *Query) error {
	for alias, otherLabels := range other.aliasLabels {
		mine, ok := q.aliasLabels[alias]
		if !ok || len(mine) == 0 || len(otherLabels) == 0 {
			continue
		}
		if !labelSetsEqual(mine, otherLabels) {
			return fmt.Errorf("%w: alias %q has incompatible label sets %v vs %v", ErrAliasConflict, alias, setKeys(mine), setKeys(otherLabels))
		}
	}

	rewrite := q.params.MergeFrom(other.params)

	var orderBySkipLimit []orderedClause
	var rest []orderedClause
	var mergedWhere *clause.Where

	for _, oc := range other.clauses {
		c := retarget(oc.clause, rewrite)
		switch typed := c.(type) {
		case clause.OrderBy, clause.Skip, clause.Limit:
			orderBySkipLimit = append(orderBySkipLimit, orderedClause{clause: typed})
		case clause.Where:
			if mergedWhere == nil {
				mergedWhere = findWhere(q.clauses)
			}
			if mergedWhere != nil {
				merged := mergedWhere.MergeWhere(typed)
				mergedWhere = &merged
			} else {
				w := typed
				mergedWhere = &w
			}
		default:
			rest = append(rest, orderedClause{clause: c})
		}
	}

	// OrderBy/Skip/Limit from other replace q's own.
	if len(orderBySkipLimit) > 0 {
		q.clauses = removeOrderSkipLimit(q.clauses)
	}
	// Where from other merges with q's existing Where in place.
	if mergedWhere != nil {
		q.clauses = replaceOrAppendWhere(q.clauses, *mergedWhere, q.seq)
		q.seq++
	}

	for _, oc := range rest {
		oc.seq = q.seq
		q.seq++
		q.clauses = append(q.clauses, oc)
	}
	for _, oc := range orderBySkipLimit {
		oc.seq = q.seq
		q.seq++
		q.clauses = append(q.clauses, oc)
	}

	for alias, labels := range other.aliasLabels {
		for l := range labels {
			q.observeAlias(alias, l)
		}
		if _, ok := q.aliasLabels[alias]; !ok {
			q.aliasLabels[alias] = map[string]struct{}{}
		}
	}
	return nil
}

func labelSetsEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

func setKeys(s map[string]struct{}) []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func findWhere(clauses []orderedClause) *clause.Where {
	for _, oc := range clauses {
		if w, ok := oc.clause.(clause.Where); ok {
			return &w
		}
	}
	return nil
}

func replaceOrAppendWhere(clauses []orderedClause, w clause.Where, seq int) []orderedClause {
	for i, oc := range clauses {
		if _, ok := oc.clause.(clause.Where); ok {
			clauses[i].clause = w
			return clauses
		}
	}
	return append(clauses, orderedClause{clause: w, seq: seq})
}

func removeOrderSkipLimit(clauses []orderedClause) []orderedClause {
	out := clauses[:0:0]
	for _, oc := range clauses {
		switch oc.clause.(type) {
		case clause.OrderBy, clause.Skip, clause.Limit:
			continue
		default:
			out = append(out, oc)
		}
	}
	return out
}

// retarget rewrites c's embedded Parameter references — in both its
// expressions and any pattern's property values — via rewrite, delegating
// to clause.Retarget's exhaustive per-variant walk.
func retarget(c clause.Clause, rewrite map[string]string) clause.Clause {
	return clause.Retarget(c, rewrite)
}
