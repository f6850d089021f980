// Package clause implements the Cypher clause variants (MATCH, CREATE,
// MERGE, WHERE, SET, REMOVE, DELETE, WITH, RETURN, ORDER BY, SKIP, LIMIT,
// CALL, CALL { subquery }) with deterministic rendering and the clause
// canonical ordering from spec.md §2 / §4.4 / §4.11.
package clause

import (
	"strings"

	"github.com/cyphergraph/go-cypher-bolt/expr"
	"github.com/cyphergraph/go-cypher-bolt/value"
)

// OrderKey is the canonical clause-category ordering Query.Build sorts
// by (stable, insertion-order tie-break).
type OrderKey int

const (
	OrderMatchCreateMerge OrderKey = iota
	OrderCall
	OrderWith
	OrderWhere
	OrderSetRemoveDelete
	OrderReturn
	OrderOrderBy
	OrderSkip
	OrderLimit
)

// Clause is the closed tagged variant of all Cypher clauses.
type Clause interface {
	Render(r expr.Renderer) string
	OrderKey() OrderKey
}

// Pattern mirrors expr.Pattern; clauses never need anything more than
// Render from a pattern.
type Pattern interface {
	Render(r expr.Renderer) string
}

// ---- Match ----

// Match renders `MATCH <pattern>` / `OPTIONAL MATCH <pattern>`, with an
// optional `p = ` path-variable prefix.
type Match struct {
	Pattern  Pattern
	Optional bool
	PathVar  string // "" if unset
}

func NewMatch(p Pattern) Match               { return Match{Pattern: p} }
func NewOptionalMatch(p Pattern) Match        { return Match{Pattern: p, Optional: true} }
func (m Match) WithPathVar(name string) Match { m.PathVar = name; return m }

func (m Match) OrderKey() OrderKey { return OrderMatchCreateMerge }

func (m Match) Render(r expr.Renderer) string {
	kw := "MATCH "
	if m.Optional {
		kw = "OPTIONAL MATCH "
	}
	if m.PathVar != "" {
		return kw + m.PathVar + " = " + m.Pattern.Render(r)
	}
	return kw + m.Pattern.Render(r)
}

// ---- Create ----

// Create renders `CREATE <pattern>`.
type Create struct{ Pattern Pattern }

func NewCreate(p Pattern) Create { return Create{Pattern: p} }

func (c Create) OrderKey() OrderKey        { return OrderMatchCreateMerge }
func (c Create) Render(r expr.Renderer) string { return "CREATE " + c.Pattern.Render(r) }

// ---- Assignment ----

// AssignmentKind distinguishes a plain property SET from the `+=` merge
// form.
type AssignmentKind int

const (
	AssignSet  AssignmentKind = iota // target.property = expr
	AssignPlus                       // alias += $mapParam
)

// Assignment is either property_set(PropertyAccess, Expression) or
// property_merge(alias, Value::map) per spec.md §3.
type Assignment struct {
	Kind     AssignmentKind
	Target   expr.PropertyAccess // used when Kind == AssignSet
	Value    expr.Expression     // used when Kind == AssignSet
	PlusVar  string              // used when Kind == AssignPlus
	PlusProp *value.Map          // used when Kind == AssignPlus
}

// SetProp builds a plain `target.property = expr` assignment.
func SetProp(target expr.PropertyAccess, v expr.Expression) Assignment {
	return Assignment{Kind: AssignSet, Target: target, Value: v}
}

// MergeProps builds an `alias += $p` assignment, interning props as one
// map-valued parameter.
func MergeProps(alias string, props *value.Map) Assignment {
	return Assignment{Kind: AssignPlus, PlusVar: alias, PlusProp: props}
}

func renderAssignment(a Assignment, r expr.Renderer) string {
	if a.Kind == AssignPlus {
		return a.PlusVar + " += $" + r.Intern(a.PlusProp)
	}
	return a.Target.Render(r) + " = " + a.Value.Render(r)
}

func renderAssignments(items []Assignment, r expr.Renderer) string {
	parts := make([]string, len(items))
	for i, a := range items {
		parts[i] = renderAssignment(a, r)
	}
	return strings.Join(parts, ", ")
}

// ---- Merge ----

// Merge renders `MERGE <pattern>` optionally followed by `ON CREATE SET
// ...` and/or `ON MATCH SET ...`.
type Merge struct {
	Pattern  Pattern
	OnCreate []Assignment
	OnMatch  []Assignment
}

func NewMerge(p Pattern) Merge { return Merge{Pattern: p} }

func (m Merge) WithOnCreate(assignments ...Assignment) Merge {
	m.OnCreate = append(append([]Assignment(nil), m.OnCreate...), assignments...)
	return m
}

func (m Merge) WithOnMatch(assignments ...Assignment) Merge {
	m.OnMatch = append(append([]Assignment(nil), m.OnMatch...), assignments...)
	return m
}

func (m Merge) OrderKey() OrderKey { return OrderMatchCreateMerge }

func (m Merge) Render(r expr.Renderer) string {
	var b strings.Builder
	b.WriteString("MERGE ")
	b.WriteString(m.Pattern.Render(r))
	if len(m.OnCreate) > 0 {
		b.WriteString("\nON CREATE SET ")
		b.WriteString(renderAssignments(m.OnCreate, r))
	}
	if len(m.OnMatch) > 0 {
		b.WriteString("\nON MATCH SET ")
		b.WriteString(renderAssignments(m.OnMatch, r))
	}
	return b.String()
}

// ---- Where ----

// Where stores a list of conjuncts, rendered `WHERE c1 AND c2 ...`.
type Where struct {
	Conjuncts []expr.Expression
}

func NewWhere(conjuncts ...expr.Expression) Where { return Where{Conjuncts: conjuncts} }

// MergeWhere appends other's conjuncts to a copy of w.
func (w Where) MergeWhere(other Where) Where {
	w.Conjuncts = append(append([]expr.Expression(nil), w.Conjuncts...), other.Conjuncts...)
	return w
}

func (w Where) OrderKey() OrderKey { return OrderWhere }

func (w Where) Render(r expr.Renderer) string {
	parts := make([]string, len(w.Conjuncts))
	for i, c := range w.Conjuncts {
		parts[i] = c.Render(r)
	}
	return "WHERE " + strings.Join(parts, " AND ")
}

// ---- Set / Remove / Delete ----

// Set renders `SET a1, a2, ...`. Multiple Set clauses are never
// deduplicated (spec.md §9 open question resolution).
type Set struct{ Assignments []Assignment }

func NewSet(assignments ...Assignment) Set { return Set{Assignments: assignments} }

func (s Set) OrderKey() OrderKey        { return OrderSetRemoveDelete }
func (s Set) Render(r expr.Renderer) string { return "SET " + renderAssignments(s.Assignments, r) }

// Remove renders `REMOVE t1, t2, ...`, where each target is typically a
// PropertyAccess or a bare label-removal expression rendered as-is.
type Remove struct{ Targets []expr.Expression }

func NewRemove(targets ...expr.Expression) Remove { return Remove{Targets: targets} }

func (rm Remove) OrderKey() OrderKey { return OrderSetRemoveDelete }

func (rm Remove) Render(r expr.Renderer) string {
	parts := make([]string, len(rm.Targets))
	for i, t := range rm.Targets {
		parts[i] = t.Render(r)
	}
	return "REMOVE " + strings.Join(parts, ", ")
}

// Delete renders `DELETE v1, v2` or `DETACH DELETE v1, v2`.
type Delete struct {
	Vars   []string
	Detach bool
}

func NewDelete(vars ...string) Delete             { return Delete{Vars: vars} }
func NewDetachDelete(vars ...string) Delete       { return Delete{Vars: vars, Detach: true} }

func (d Delete) OrderKey() OrderKey { return OrderSetRemoveDelete }

func (d Delete) Render(r expr.Renderer) string {
	kw := "DELETE "
	if d.Detach {
		kw = "DETACH DELETE "
	}
	return kw + strings.Join(d.Vars, ", ")
}

// ---- With / Return ----

// Item is a projected expression with an optional output alias, used by
// both With and Return.
type Item struct {
	Expr  expr.Expression
	Alias string // "" if unaliased
}

func NewItem(e expr.Expression) Item                { return Item{Expr: e} }
func (i Item) As(alias string) Item                 { i.Alias = alias; return i }

func renderItem(i Item, r expr.Renderer) string {
	if i.Alias == "" {
		return i.Expr.Render(r)
	}
	return i.Expr.Render(r) + " AS " + i.Alias
}

func renderItems(items []Item, r expr.Renderer) string {
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = renderItem(it, r)
	}
	return strings.Join(parts, ", ")
}

// With renders `WITH [DISTINCT] i1, i2 ...` with an optional trailing
// WHERE.
type With struct {
	Items    []Item
	Distinct bool
	Where    *Where
}

func NewWith(items ...Item) With { return With{Items: items} }
func (w With) WithDistinct() With { w.Distinct = true; return w }
func (w With) WithWhere(where Where) With { w.Where = &where; return w }

func (w With) OrderKey() OrderKey { return OrderWith }

func (w With) Render(r expr.Renderer) string {
	var b strings.Builder
	b.WriteString("WITH ")
	if w.Distinct {
		b.WriteString("DISTINCT ")
	}
	b.WriteString(renderItems(w.Items, r))
	if w.Where != nil {
		b.WriteByte('\n')
		b.WriteString(w.Where.Render(r))
	}
	return b.String()
}

// Return renders `RETURN [DISTINCT] i1, i2 ...`.
type Return struct {
	Items    []Item
	Distinct bool
}

func NewReturn(items ...Item) Return  { return Return{Items: items} }
func (rt Return) WithDistinct() Return { rt.Distinct = true; return rt }

func (rt Return) OrderKey() OrderKey { return OrderReturn }

func (rt Return) Render(r expr.Renderer) string {
	prefix := "RETURN "
	if rt.Distinct {
		prefix = "RETURN DISTINCT "
	}
	return prefix + renderItems(rt.Items, r)
}

// ---- OrderBy / Skip / Limit ----

// SortDirection is ASC or DESC; ASC is the default and is omitted from
// rendering.
type SortDirection int

const (
	Asc SortDirection = iota
	Desc
)

// SortItem pairs an expression with a sort direction.
type SortItem struct {
	Expr      expr.Expression
	Direction SortDirection
}

// OrderBy renders `ORDER BY e1 [ASC|DESC], e2 ...`.
type OrderBy struct{ Items []SortItem }

func NewOrderBy(items ...SortItem) OrderBy { return OrderBy{Items: items} }

func (o OrderBy) OrderKey() OrderKey { return OrderOrderBy }

func (o OrderBy) Render(r expr.Renderer) string {
	parts := make([]string, len(o.Items))
	for i, it := range o.Items {
		s := it.Expr.Render(r)
		if it.Direction == Desc {
			s += " DESC"
		}
		parts[i] = s
	}
	return "ORDER BY " + strings.Join(parts, ", ")
}

// Amount is the nil-able, parameterized amount used by Skip/Limit: nil
// interns as a NULL literal per spec.md §4.4.
type Amount struct {
	expr expr.Expression
}

// IntAmount builds an Amount from an integer.
func IntAmount(n int64) Amount { return Amount{expr: expr.NewLiteral(value.Int(n))} }

// NullAmount builds an Amount that interns as NULL.
func NullAmount() Amount { return Amount{expr: expr.NewLiteral(value.Null{})} }

// ExprAmount builds an Amount from an arbitrary expression (e.g. a
// previously-interned Parameter, for a "symbol" amount).
func ExprAmount(e expr.Expression) Amount { return Amount{expr: e} }

func (a Amount) render(r expr.Renderer) string { return a.expr.Render(r) }

// Skip renders `SKIP <amount>`.
type Skip struct{ Amount Amount }

func NewSkip(a Amount) Skip { return Skip{Amount: a} }

func (s Skip) OrderKey() OrderKey        { return OrderSkip }
func (s Skip) Render(r expr.Renderer) string { return "SKIP " + s.Amount.render(r) }

// Limit renders `LIMIT <amount>`.
type Limit struct{ Amount Amount }

func NewLimit(a Amount) Limit { return Limit{Amount: a} }

func (l Limit) OrderKey() OrderKey        { return OrderLimit }
func (l Limit) Render(r expr.Renderer) string { return "LIMIT " + l.Amount.render(r) }

// ---- Call / CallSubquery ----

// Call renders `CALL proc(args) [YIELD ...] [WHERE ...] [RETURN ...]`.
type Call struct {
	Proc   string
	Args   []expr.Expression
	Yield  []string
	Where  *Where
	Return *Return
}

func NewCall(proc string, args ...expr.Expression) Call { return Call{Proc: proc, Args: args} }

func (c Call) WithYield(names ...string) Call    { c.Yield = names; return c }
func (c Call) WithWhere(w Where) Call            { c.Where = &w; return c }
func (c Call) WithReturn(ret Return) Call        { c.Return = &ret; return c }

func (c Call) OrderKey() OrderKey { return OrderCall }

func (c Call) Render(r expr.Renderer) string {
	var b strings.Builder
	parts := make([]string, len(c.Args))
	for i, a := range c.Args {
		parts[i] = a.Render(r)
	}
	b.WriteString("CALL ")
	b.WriteString(c.Proc)
	b.WriteByte('(')
	b.WriteString(strings.Join(parts, ", "))
	b.WriteByte(')')
	if len(c.Yield) > 0 {
		b.WriteString("\nYIELD ")
		b.WriteString(strings.Join(c.Yield, ", "))
	}
	if c.Where != nil {
		b.WriteByte('\n')
		b.WriteString(c.Where.Render(r))
	}
	if c.Return != nil {
		b.WriteByte('\n')
		b.WriteString(c.Return.Render(r))
	}
	return b.String()
}

// InnerQuery is the minimal surface CallSubquery needs from package
// query (rendering + parameter-table merge), avoiding a clause -> query
// import cycle (query already imports clause).
type InnerQuery interface {
	// RenderSubquery returns the inner query's rendered text, with the
	// inner query's parameters re-interned into the outer query's
	// ParamTable through outer and referenced by their outer names.
	RenderSubquery(outer expr.Renderer) string
}

// CallSubquery renders `CALL { <inner.render()> }`.
type CallSubquery struct{ Inner InnerQuery }

func NewCallSubquery(inner InnerQuery) CallSubquery { return CallSubquery{Inner: inner} }

func (c CallSubquery) OrderKey() OrderKey { return OrderCall }

func (c CallSubquery) Render(r expr.Renderer) string {
	inner := c.Inner.RenderSubquery(r)
	indented := strings.ReplaceAll(inner, "\n", "\n  ")
	return "CALL {\n  " + indented + "\n}"
}

// ---- Retarget ----

// retargetablePattern is satisfied by package pattern's NodePattern,
// RelationshipPattern and PathPattern: it lets Retarget rewrite any
// Parameter references embedded in a pattern's property values.
type retargetablePattern interface {
	Retarget(rewrite map[string]string) expr.Pattern
}

func retargetPattern(p Pattern, rewrite map[string]string) Pattern {
	if rp, ok := p.(retargetablePattern); ok {
		return rp.Retarget(rewrite)
	}
	return p
}

func retargetExprs(in []expr.Expression, rewrite map[string]string) []expr.Expression {
	if in == nil {
		return nil
	}
	out := make([]expr.Expression, len(in))
	for i, e := range in {
		out[i] = expr.Retarget(e, rewrite)
	}
	return out
}

func retargetAssignments(in []Assignment, rewrite map[string]string) []Assignment {
	if in == nil {
		return nil
	}
	out := make([]Assignment, len(in))
	for i, a := range in {
		if a.Kind == AssignSet {
			a.Value = expr.Retarget(a.Value, rewrite)
		}
		out[i] = a
	}
	return out
}

func retargetItems(in []Item, rewrite map[string]string) []Item {
	if in == nil {
		return nil
	}
	out := make([]Item, len(in))
	for i, it := range in {
		it.Expr = expr.Retarget(it.Expr, rewrite)
		out[i] = it
	}
	return out
}

// retarget rewrites w's embedded Parameter references via rewrite.
func (w Where) retarget(rewrite map[string]string) Where {
	w.Conjuncts = retargetExprs(w.Conjuncts, rewrite)
	return w
}

// retarget rewrites a's embedded Parameter reference via rewrite.
func (a Amount) retarget(rewrite map[string]string) Amount {
	return Amount{expr: expr.Retarget(a.expr, rewrite)}
}

// Retarget returns a copy of c with every embedded Parameter reference —
// in both its expressions and any pattern's property values — rewritten
// via rewrite. This is what Query.Merge uses to carry a merged-in
// query's clauses over once its ParamTable has been re-interned into the
// host query's, per spec.md §4.4 ("All Expressions from other... [are]
// retargeted via the rewrite map").
func Retarget(c Clause, rewrite map[string]string) Clause {
	switch typed := c.(type) {
	case Match:
		typed.Pattern = retargetPattern(typed.Pattern, rewrite)
		return typed
	case Create:
		typed.Pattern = retargetPattern(typed.Pattern, rewrite)
		return typed
	case Merge:
		typed.Pattern = retargetPattern(typed.Pattern, rewrite)
		typed.OnCreate = retargetAssignments(typed.OnCreate, rewrite)
		typed.OnMatch = retargetAssignments(typed.OnMatch, rewrite)
		return typed
	case Where:
		return typed.retarget(rewrite)
	case Set:
		typed.Assignments = retargetAssignments(typed.Assignments, rewrite)
		return typed
	case Remove:
		typed.Targets = retargetExprs(typed.Targets, rewrite)
		return typed
	case Delete:
		return typed
	case With:
		typed.Items = retargetItems(typed.Items, rewrite)
		if typed.Where != nil {
			w := typed.Where.retarget(rewrite)
			typed.Where = &w
		}
		return typed
	case Return:
		typed.Items = retargetItems(typed.Items, rewrite)
		return typed
	case OrderBy:
		items := make([]SortItem, len(typed.Items))
		for i, it := range typed.Items {
			items[i] = SortItem{Expr: expr.Retarget(it.Expr, rewrite), Direction: it.Direction}
		}
		typed.Items = items
		return typed
	case Skip:
		typed.Amount = typed.Amount.retarget(rewrite)
		return typed
	case Limit:
		typed.Amount = typed.Amount.retarget(rewrite)
		return typed
	case Call:
		typed.Args = retargetExprs(typed.Args, rewrite)
		if typed.Where != nil {
			w := typed.Where.retarget(rewrite)
			typed.Where = &w
		}
		if typed.Return != nil {
			ret := Retarget(*typed.Return, rewrite).(Return)
			typed.Return = &ret
		}
		return typed
	case CallSubquery:
		// Inner is a full sub-Query behind an opaque InnerQuery
		// interface with its own ParamTable; it is retargeted by
		// RenderSubquery re-resolving against the outer Renderer at
		// render time, not by rewriting bare Parameter names here.
		return typed
	default:
		return c
	}
}
