package query

import (
	"fmt"

	"github.com/cyphergraph/go-cypher-bolt/value"
)

// ParamTable is an ordered mapping from parameter name ("p1", "p2", ...)
// to value.Value, plus a reverse index for dedup by structural equality
// (spec.md §3 / §4.1).
type ParamTable struct {
	names   []string
	values  map[string]value.Value
	buckets map[string][]string // structural bucket -> candidate names, in insertion order
}

// NewParamTable returns an empty table.
func NewParamTable() *ParamTable {
	return &ParamTable{
		values:  map[string]value.Value{},
		buckets: map[string][]string{},
	}
}

// Intern interns v, returning its name. If a structurally-equal Value was
// already interned, the existing name is returned; names are never
// reused for a different value.
func (t *ParamTable) Intern(v value.Value) string {
	bucket := value.Bucket(v)
	for _, name := range t.buckets[bucket] {
		if value.Equal(t.values[name], v) {
			return name
		}
	}
	name := fmt.Sprintf("p%d", len(t.names)+1)
	t.names = append(t.names, name)
	t.values[name] = v
	t.buckets[bucket] = append(t.buckets[bucket], name)
	return name
}

// Get returns the value bound to name.
func (t *ParamTable) Get(name string) (value.Value, bool) {
	v, ok := t.values[name]
	return v, ok
}

// Names returns parameter names in rendering (first-seen) order.
func (t *ParamTable) Names() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

// Len returns the number of distinct interned parameters.
func (t *ParamTable) Len() int { return len(t.names) }

// AsMap returns the table's contents as a plain ordered-iteration-free
// map, the shape build() returns to callers per spec.md §4.4.
func (t *ParamTable) AsMap() map[string]value.Value {
	out := make(map[string]value.Value, len(t.names))
	for _, n := range t.names {
		out[n] = t.values[n]
	}
	return out
}

// MergeFrom interns every value from other into t (preserving t's
// existing names) and returns a rewrite map from other's names to t's
// names, so expressions rendered from other can be retargeted. Per
// spec.md §4.1/§9: merge always re-interns.
func (t *ParamTable) MergeFrom(other *ParamTable) map[string]string {
	rewrite := make(map[string]string, len(other.names))
	for _, name := range other.names {
		v := other.values[name]
		rewrite[name] = t.Intern(v)
	}
	return rewrite
}
