// Package value defines the closed set of literal types admissible as
// Cypher query parameters and server-returned scalars.
package value

import (
	"fmt"
	"math"
	"sort"
)

// Value is the universe of literals a Query can intern as a parameter, or
// that PackStream can decode a server RECORD field into. Implementations
// are immutable once constructed; every constructor here copies any slice
// or map argument it receives.
type Value interface {
	// isValue is unexported so Value remains a closed sum type: only the
	// variants defined in this package may implement it.
	isValue()

	// String renders a debug representation, not Cypher syntax.
	String() string
}

// Null is the Cypher null literal.
type Null struct{}

func (Null) isValue()        {}
func (Null) String() string  { return "null" }

// Bool is a boolean literal.
type Bool bool

func (Bool) isValue() {}
func (b Bool) String() string {
	if b {
		return "true"
	}
	return "false"
}

// Int is a 64-bit signed integer literal.
type Int int64

func (Int) isValue()          {}
func (i Int) String() string  { return fmt.Sprintf("%d", int64(i)) }

// Float is an IEEE-754 double literal.
type Float float64

func (Float) isValue()         {}
func (f Float) String() string { return fmt.Sprintf("%v", float64(f)) }

// Bytes is an opaque byte-string literal.
type Bytes []byte

func (Bytes) isValue() {}
func (b Bytes) String() string { return fmt.Sprintf("%x", []byte(b)) }

// Str is a UTF-8 text literal.
type Str string

func (Str) isValue()         {}
func (s Str) String() string { return string(s) }

// List is an ordered sequence of Values.
type List []Value

func (List) isValue() {}
func (l List) String() string {
	out := make([]string, len(l))
	for i, v := range l {
		out[i] = v.String()
	}
	return fmt.Sprintf("%v", out)
}

// Map is a mapping of text keys to Values. Key order is not significant
// for equality but NewMap preserves insertion order for rendering.
type Map struct {
	keys   []string
	values map[string]Value
}

func (*Map) isValue() {}

// NewMap builds a Map preserving the insertion order of keys.
func NewMap(keys []string, values map[string]Value) *Map {
	k := make([]string, len(keys))
	copy(k, keys)
	v := make(map[string]Value, len(values))
	for key, val := range values {
		v[key] = val
	}
	return &Map{keys: k, values: v}
}

// Keys returns the map's keys in insertion order.
func (m *Map) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Get returns the value for key and whether it was present.
func (m *Map) Get(key string) (Value, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Len returns the number of entries.
func (m *Map) Len() int { return len(m.keys) }

func (m *Map) String() string {
	out := make(map[string]string, m.Len())
	for _, k := range m.keys {
		out[k] = m.values[k].String()
	}
	return fmt.Sprintf("%v", out)
}

// NodeRef is an opaque reference to a node returned by the server
// (element id plus labels plus properties), never itself interned as a
// query parameter.
type NodeRef struct {
	ElementID string
	Labels    []string
	Props     *Map
}

func (NodeRef) isValue()       {}
func (n NodeRef) String() string { return fmt.Sprintf("Node(%s:%v)", n.ElementID, n.Labels) }

// RelRef is an opaque reference to a relationship returned by the server.
type RelRef struct {
	ElementID      string
	Type           string
	StartElementID string
	EndElementID   string
	Props          *Map
}

func (RelRef) isValue() {}
func (r RelRef) String() string {
	return fmt.Sprintf("Rel(%s:%s)", r.ElementID, r.Type)
}

// PathRef is an opaque reference to a path (alternating node/relationship
// sequence) returned by the server.
type PathRef struct {
	Nodes []NodeRef
	Rels  []RelRef
}

func (PathRef) isValue() {}
func (p PathRef) String() string {
	return fmt.Sprintf("Path(%d nodes, %d rels)", len(p.Nodes), len(p.Rels))
}

// Equal reports structural equality between two Values, per spec.md
// §4.1: NaN floats are equal to each other only when their bit patterns
// match, and never equal to any other float (including a differently
// bit-patterned NaN).
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case Null:
		_, ok := b.(Null)
		return ok
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case Float:
		bv, ok := b.(Float)
		if !ok {
			return false
		}
		if math.IsNaN(float64(av)) || math.IsNaN(float64(bv)) {
			return math.Float64bits(float64(av)) == math.Float64bits(float64(bv))
		}
		return av == bv
	case Bytes:
		bv, ok := b.(Bytes)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}
		return true
	case Str:
		bv, ok := b.(Str)
		return ok && av == bv
	case List:
		bv, ok := b.(List)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case *Map:
		bv, ok := b.(*Map)
		if !ok || av.Len() != bv.Len() {
			return false
		}
		for _, k := range av.keys {
			bval, ok := bv.Get(k)
			if !ok || !Equal(av.values[k], bval) {
				return false
			}
		}
		return true
	case NodeRef:
		bv, ok := b.(NodeRef)
		return ok && av.ElementID == bv.ElementID
	case RelRef:
		bv, ok := b.(RelRef)
		return ok && av.ElementID == bv.ElementID
	case PathRef:
		bv, ok := b.(PathRef)
		return ok && len(av.Nodes) == len(bv.Nodes) && len(av.Rels) == len(bv.Rels)
	default:
		return false
	}
}

// structuralKey returns a total-ordering-friendly key string used to
// bucket Values for parameter interning. It is not cryptographic; it
// only needs to group structurally-equal Values together so Equal can
// disambiguate within a bucket.
func structuralKey(v Value) string {
	switch t := v.(type) {
	case Null:
		return "N"
	case Bool:
		return fmt.Sprintf("B%v", bool(t))
	case Int:
		return fmt.Sprintf("I%d", int64(t))
	case Float:
		bits := math.Float64bits(float64(t))
		return fmt.Sprintf("F%x", bits)
	case Bytes:
		return fmt.Sprintf("X%x", []byte(t))
	case Str:
		return "S" + string(t)
	case List:
		out := "L["
		for _, e := range t {
			out += structuralKey(e) + ","
		}
		return out + "]"
	case *Map:
		keys := append([]string(nil), t.keys...)
		sort.Strings(keys)
		out := "M{"
		for _, k := range keys {
			val, _ := t.Get(k)
			out += k + "=" + structuralKey(val) + ";"
		}
		return out + "}"
	case NodeRef:
		return "ND" + t.ElementID
	case RelRef:
		return "RD" + t.ElementID
	case PathRef:
		return fmt.Sprintf("PD%d/%d", len(t.Nodes), len(t.Rels))
	default:
		return fmt.Sprintf("?%v", v)
	}
}

// Bucket returns the structural-equality bucket key for v, used by
// ParamTable's reverse index. Values that hash to the same bucket are
// compared with Equal to confirm identity before being treated as the
// same interned parameter.
func Bucket(v Value) string { return structuralKey(v) }
