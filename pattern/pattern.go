// Package pattern implements Cypher pattern values: nodes, relationships
// and paths, with deterministic rendering.
package pattern

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cyphergraph/go-cypher-bolt/expr"
	"github.com/cyphergraph/go-cypher-bolt/value"
)

// ErrInvalidPattern is returned when a PathPattern's element sequence is
// malformed (spec.md §4.3 / §7 InvalidPattern).
var ErrInvalidPattern = errors.New("pattern: invalid path pattern")

// PropValue is either a literal value.Value or an expr.Expression,
// matching spec.md §3's `mapping<text, Expression|Value>` property type.
type PropValue struct {
	expression expr.Expression
	literal    value.Value
}

// Lit builds a PropValue from a literal Value.
func Lit(v value.Value) PropValue { return PropValue{literal: v} }

// Expr builds a PropValue from an Expression.
func Expr(e expr.Expression) PropValue { return PropValue{expression: e} }

func (p PropValue) render(r expr.Renderer) string {
	if p.expression != nil {
		return p.expression.Render(r)
	}
	return "$" + r.Intern(p.literal)
}

// retarget rewrites any embedded Expression's Parameter references via
// rewrite; a literal PropValue is returned unchanged.
func (p PropValue) retarget(rewrite map[string]string) PropValue {
	if p.expression == nil {
		return p
	}
	return PropValue{expression: expr.Retarget(p.expression, rewrite)}
}

// props is an ordered multimap of property key -> PropValue, preserving
// insertion order per spec.md §4.3.
type props struct {
	keys []string
	vals map[string]PropValue
}

func newProps() *props { return &props{vals: map[string]PropValue{}} }

func (p *props) set(key string, v PropValue) {
	if _, ok := p.vals[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.vals[key] = v
}

func (p *props) empty() bool { return len(p.keys) == 0 }

// retarget returns a copy of p with every property's embedded Parameter
// reference rewritten via rewrite.
func (p *props) retarget(rewrite map[string]string) *props {
	out := &props{
		keys: append([]string(nil), p.keys...),
		vals: make(map[string]PropValue, len(p.vals)),
	}
	for k, v := range p.vals {
		out.vals[k] = v.retarget(rewrite)
	}
	return out
}

func (p *props) render(r expr.Renderer) string {
	if p.empty() {
		return ""
	}
	parts := make([]string, len(p.keys))
	for i, k := range p.keys {
		parts[i] = fmt.Sprintf("%s: %s", k, p.vals[k].render(r))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// labels is an ordered set of labels/types, preserving insertion order
// and rejecting duplicates.
type labels struct {
	order []string
	seen  map[string]struct{}
}

func newLabels(initial ...string) *labels {
	l := &labels{seen: map[string]struct{}{}}
	for _, s := range initial {
		l.add(s)
	}
	return l
}

func (l *labels) add(s string) {
	if _, ok := l.seen[s]; ok {
		return
	}
	l.seen[s] = struct{}{}
	l.order = append(l.order, s)
}

func (l *labels) empty() bool { return len(l.order) == 0 }

// ---- NodePattern ----

// NodePattern is a Cypher node pattern: `(alias:Label1:Label2 {k: $p})`.
type NodePattern struct {
	alias  string
	labels *labels
	props  *props
}

// NewNode builds a NodePattern. alias may be empty for an anonymous node.
func NewNode(alias string, labelList ...string) *NodePattern {
	return &NodePattern{alias: alias, labels: newLabels(labelList...), props: newProps()}
}

// WithLabel appends a label, preserving insertion order, and returns the
// receiver for chaining.
func (n *NodePattern) WithLabel(label string) *NodePattern {
	n.labels.add(label)
	return n
}

// WithProp sets a property, preserving first-seen key order.
func (n *NodePattern) WithProp(key string, v PropValue) *NodePattern {
	n.props.set(key, v)
	return n
}

// Alias returns the node's alias, or "" if anonymous.
func (n *NodePattern) Alias() string { return n.alias }

// Labels returns the node's labels in insertion order.
func (n *NodePattern) Labels() []string {
	out := make([]string, len(n.labels.order))
	copy(out, n.labels.order)
	return out
}

// Retarget returns a copy of n with every property's embedded Parameter
// reference rewritten via rewrite (satisfies expr.RetargetablePattern),
// used when a Query carrying this node pattern is merged into another
// Query and the owning ParamTable re-interns (and possibly renames)
// parameters (spec.md §4.4).
func (n *NodePattern) Retarget(rewrite map[string]string) expr.Pattern {
	return &NodePattern{alias: n.alias, labels: n.labels, props: n.props.retarget(rewrite)}
}

// Render emits `(alias:Label1:Label2 {k1: $p1})`; an entirely empty node
// renders as `()`.
func (n *NodePattern) Render(r expr.Renderer) string {
	var b strings.Builder
	b.WriteByte('(')
	b.WriteString(n.alias)
	for _, l := range n.labels.order {
		b.WriteByte(':')
		b.WriteString(l)
	}
	propsText := n.props.render(r)
	if propsText != "" {
		if n.alias != "" || !n.labels.empty() {
			b.WriteByte(' ')
		}
		b.WriteString(propsText)
	}
	b.WriteByte(')')
	return b.String()
}

// ---- RelationshipPattern ----

// Direction enumerates relationship arrow direction.
type Direction int

const (
	DirOut Direction = iota
	DirIn
	DirBoth
)

// LengthKind enumerates the variable-length relationship encodings.
type LengthKind int

const (
	LengthNone LengthKind = iota
	LengthExact
	LengthRange
)

// Length encodes a relationship's `*n` / `*lo..hi` variable-length
// suffix. Range ends follow Ruby Range#exclude_end? semantics per
// spec.md §4.3 / §9: when ExcludeEnd is true, the rendered upper bound
// is Hi-1.
type Length struct {
	Kind       LengthKind
	Exact      int
	Lo, Hi     *int
	ExcludeEnd bool
}

// NoLength is the absence of a variable-length suffix.
func NoLength() Length { return Length{Kind: LengthNone} }

// ExactLength is `*n`.
func ExactLength(n int) Length { return Length{Kind: LengthExact, Exact: n} }

// RangeLength is `*lo..hi`, either bound may be nil.
func RangeLength(lo, hi *int, excludeEnd bool) Length {
	return Length{Kind: LengthRange, Lo: lo, Hi: hi, ExcludeEnd: excludeEnd}
}

func (l Length) render() string {
	switch l.Kind {
	case LengthNone:
		return ""
	case LengthExact:
		return fmt.Sprintf("*%d", l.Exact)
	case LengthRange:
		var lo, hi string
		if l.Lo != nil {
			lo = fmt.Sprintf("%d", *l.Lo)
		}
		if l.Hi != nil {
			h := *l.Hi
			if l.ExcludeEnd {
				h--
			}
			hi = fmt.Sprintf("%d", h)
		}
		return "*" + lo + ".." + hi
	default:
		return ""
	}
}

// RelationshipPattern is a Cypher relationship pattern:
// `[alias:T1|T2*length {props}]` surrounded by direction arrows.
type RelationshipPattern struct {
	alias     string
	types     *labels
	props     *props
	direction Direction
	length    Length
}

// NewRelationship builds a RelationshipPattern. alias may be empty.
func NewRelationship(alias string, direction Direction, relTypes ...string) *RelationshipPattern {
	return &RelationshipPattern{
		alias:     alias,
		types:     newLabels(relTypes...),
		props:     newProps(),
		direction: direction,
		length:    NoLength(),
	}
}

// WithType appends a relationship type, preserving insertion order.
func (rp *RelationshipPattern) WithType(t string) *RelationshipPattern {
	rp.types.add(t)
	return rp
}

// WithProp sets a property, preserving first-seen key order.
func (rp *RelationshipPattern) WithProp(key string, v PropValue) *RelationshipPattern {
	rp.props.set(key, v)
	return rp
}

// WithLength sets the variable-length encoding.
func (rp *RelationshipPattern) WithLength(l Length) *RelationshipPattern {
	rp.length = l
	return rp
}

// isAnonymousZeroContent reports whether the relationship has no alias,
// types, props or length — the bare-arrow rendering case from spec.md
// §4.3.
func (rp *RelationshipPattern) isAnonymousZeroContent() bool {
	return rp.alias == "" && rp.types.empty() && rp.props.empty() && rp.length.Kind == LengthNone
}

// Retarget returns a copy of rp with every property's embedded Parameter
// reference rewritten via rewrite (satisfies expr.RetargetablePattern).
func (rp *RelationshipPattern) Retarget(rewrite map[string]string) expr.Pattern {
	return &RelationshipPattern{
		alias:     rp.alias,
		types:     rp.types,
		props:     rp.props.retarget(rewrite),
		direction: rp.direction,
		length:    rp.length,
	}
}

// Render emits the direction-wrapped relationship pattern.
func (rp *RelationshipPattern) Render(r expr.Renderer) string {
	var left, right string
	switch rp.direction {
	case DirOut:
		left, right = "-", "->"
	case DirIn:
		left, right = "<-", "-"
	default:
		left, right = "-", "-"
	}

	if rp.isAnonymousZeroContent() {
		return left + right
	}

	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(rp.alias)
	for i, t := range rp.types.order {
		if i == 0 {
			b.WriteByte(':')
		} else {
			b.WriteByte('|')
		}
		b.WriteString(t)
	}
	b.WriteString(rp.length.render())
	propsText := rp.props.render(r)
	if propsText != "" {
		b.WriteByte(' ')
		b.WriteString(propsText)
	}
	b.WriteByte(']')

	return left + b.String() + right
}

// ---- PathPattern ----

// Element is a path element: either a *NodePattern or a
// *RelationshipPattern, validated to alternate starting with a node.
type Element interface {
	Render(r expr.Renderer) string
	isPathElement()
}

func (*NodePattern) isPathElement()         {}
func (*RelationshipPattern) isPathElement() {}

// PathPattern is a sequence of alternating Node/Relationship/Node/...
// elements.
type PathPattern struct {
	elements []Element
}

// NewPath validates and constructs a PathPattern. Per spec.md §4.3, it
// errors on an empty element list, a non-Node at an even index, or a
// non-Relationship at an odd index.
func NewPath(elements ...Element) (*PathPattern, error) {
	if len(elements) == 0 {
		return nil, fmt.Errorf("%w: empty element list", ErrInvalidPattern)
	}
	for i, el := range elements {
		if i%2 == 0 {
			if _, ok := el.(*NodePattern); !ok {
				return nil, fmt.Errorf("%w: element %d must be a node", ErrInvalidPattern, i)
			}
		} else {
			if _, ok := el.(*RelationshipPattern); !ok {
				return nil, fmt.Errorf("%w: element %d must be a relationship", ErrInvalidPattern, i)
			}
		}
	}
	return &PathPattern{elements: elements}, nil
}

// MustNewPath panics on an invalid element sequence; for call sites that
// construct paths from a literal, statically-known element list.
func MustNewPath(elements ...Element) *PathPattern {
	p, err := NewPath(elements...)
	if err != nil {
		panic(err)
	}
	return p
}

// Elements returns the path's elements in order.
func (p *PathPattern) Elements() []Element {
	out := make([]Element, len(p.elements))
	copy(out, p.elements)
	return out
}

// Retarget returns a copy of p with every element's embedded Parameter
// reference rewritten via rewrite (satisfies expr.RetargetablePattern).
func (p *PathPattern) Retarget(rewrite map[string]string) expr.Pattern {
	elements := make([]Element, len(p.elements))
	for i, el := range p.elements {
		switch t := el.(type) {
		case *NodePattern:
			elements[i] = t.Retarget(rewrite).(*NodePattern)
		case *RelationshipPattern:
			elements[i] = t.Retarget(rewrite).(*RelationshipPattern)
		default:
			elements[i] = el
		}
	}
	return &PathPattern{elements: elements}
}

// Render concatenates element renderings with no separators.
func (p *PathPattern) Render(r expr.Renderer) string {
	var b strings.Builder
	for _, el := range p.elements {
		b.WriteString(el.Render(r))
	}
	return b.String()
}

// LastNodeAlias returns the alias of the last node in the path, used by
// Query.Where(map) alias inference (spec.md §4.4) when the pattern last
// introduced is a path.
func (p *PathPattern) LastNodeAlias() string {
	for i := len(p.elements) - 1; i >= 0; i-- {
		if n, ok := p.elements[i].(*NodePattern); ok {
			return n.Alias()
		}
	}
	return ""
}
