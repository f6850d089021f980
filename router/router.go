// Package router maps a logical {role, shard} pair to a concrete
// pool.Pool: a role_map with direct and shard-table fallbacks, plus
// optional dynamic overrides evaluated with expr-lang/expr (spec.md §4.9).
package router

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/cyphergraph/go-cypher-bolt/pool"
)

// ErrNoRoute is returned when neither a dynamic rule nor the role_map
// resolves a db_key for a {role, shard} pair.
var ErrNoRoute = errors.New("router: no route for role/shard")

// ErrUnknownDBKey is returned when a resolved db_key has no registered Pool.
var ErrUnknownDBKey = errors.New("router: unknown db_key")

// defaultRole and defaultShard are the ambient values assumed when a
// caller's context carries no explicit route (spec.md §4.9 step 1).
const (
	defaultRole  = "writing"
	defaultShard = "default"
)

// RoutingRule is an optional dynamic override checked before role_map:
// When is an expr-lang/expr boolean expression evaluated against
// {role, shard}; the first matching rule wins.
type RoutingRule struct {
	When  string
	DBKey string

	program *vm.Program
}

// RoleRoute is one role_map entry. A role maps either directly to a single
// db_key (DBKey set), or to a shard table (Shards set) keyed by shard name
// with an optional "default" entry used when the requested shard is
// unknown. Exactly one of DBKey or Shards should be set.
type RoleRoute struct {
	DBKey  string
	Shards map[string]string
}

// ModelRouting is the role_map plus optional dynamic rules for one logical
// model/graph.
type ModelRouting struct {
	// RoleMap maps a role (e.g. "writing", "reading") to its route. If a
	// role has no entry, or its entry does not resolve for the requested
	// shard, resolution falls back to RoleMap["writing"].
	RoleMap map[string]RoleRoute
	// Rules are checked in order before RoleMap; first match wins.
	Rules []RoutingRule
}

// compileRules compiles each rule's When expression once, so routing
// lookups don't recompile on every call.
func (m *ModelRouting) compileRules() error {
	for i := range m.Rules {
		if m.Rules[i].program != nil {
			continue
		}
		env := map[string]any{"role": "", "shard": ""}
		prog, err := expr.Compile(m.Rules[i].When, expr.Env(env), expr.AsBool())
		if err != nil {
			return fmt.Errorf("router: compiling rule %q: %w", m.Rules[i].When, err)
		}
		m.Rules[i].program = prog
	}
	return nil
}

// Router owns the process-wide db_key -> Pool registry (insert-only) and
// per-model routing configuration.
type Router struct {
	mu      sync.RWMutex
	pools   map[string]*pool.Pool
	routing map[string]*ModelRouting
}

// New returns an empty Router.
func New() *Router {
	return &Router{
		pools:   map[string]*pool.Pool{},
		routing: map[string]*ModelRouting{},
	}
}

// RegisterPool inserts (or overwrites) the Pool for db_key. The registry
// is insert-only from the router's own perspective: callers may replace
// an entry (e.g. during reconfiguration) but Resolve never mutates it.
func (r *Router) RegisterPool(dbKey string, p *pool.Pool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pools[dbKey] = p
}

// SetRouting installs the ModelRouting for a logical model name.
func (r *Router) SetRouting(model string, routing *ModelRouting) error {
	if err := routing.compileRules(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routing[model] = routing
	return nil
}

// routeKey is the private context-value key type for WithRoute.
type routeKey struct{}

type route struct {
	model, role, shard string
}

// WithRoute returns a context carrying the {model, role, shard} route, the
// idiomatic Go rendering of connected_to's "task-local stack, restoring on
// every exit path" behavior: ctx immutability means the caller's own ctx
// is simply what's left after the callee returns, no explicit pop
// required (spec.md §5). An empty role or shard defers to the ambient
// defaults ("writing" / "default") at resolve time.
func WithRoute(ctx context.Context, model, role, shard string) context.Context {
	return context.WithValue(ctx, routeKey{}, route{model: model, role: role, shard: shard})
}

func routeFromContext(ctx context.Context) (route, bool) {
	r, ok := ctx.Value(routeKey{}).(route)
	return r, ok
}

// Resolve returns the Pool bound to ctx's route (set by WithRoute),
// checking dynamic Rules before role_map.
func (r *Router) Resolve(ctx context.Context) (*pool.Pool, error) {
	rt, ok := routeFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("%w: no route on context", ErrNoRoute)
	}
	role := rt.role
	if role == "" {
		role = defaultRole
	}
	shard := rt.shard
	if shard == "" {
		shard = defaultShard
	}
	return r.resolve(rt.model, role, shard)
}

// ResolveExplicit resolves a {model, role, shard} triple directly, without
// requiring a context route, for callers that inspect routing state
// outside of a query execution path.
func (r *Router) ResolveExplicit(model, role, shard string) (*pool.Pool, error) {
	if role == "" {
		role = defaultRole
	}
	if shard == "" {
		shard = defaultShard
	}
	return r.resolve(model, role, shard)
}

func (r *Router) resolve(model, role, shard string) (*pool.Pool, error) {
	r.mu.RLock()
	routing, ok := r.routing[model]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown model %q", ErrNoRoute, model)
	}

	env := map[string]any{"role": role, "shard": shard}
	for _, rule := range routing.Rules {
		if rule.program == nil {
			continue
		}
		out, err := expr.Run(rule.program, env)
		if err != nil {
			continue // evaluation error: fall through to role_map
		}
		matched, ok := out.(bool)
		if !ok || !matched {
			continue
		}
		if p, ok := r.lookupPool(rule.DBKey); ok {
			return p, nil
		}
	}

	dbKey, err := routing.dbKeyFor(role, shard)
	if err != nil {
		return nil, fmt.Errorf("%w: model %q role %q shard %q: %s", ErrNoRoute, model, role, shard, err)
	}
	if p, ok := r.lookupPool(dbKey); ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDBKey, dbKey)
}

// dbKeyFor applies the role_map fallbacks of spec.md §4.9 step 2: a direct
// role -> db_key mapping, else a role -> shard-table mapping consulting
// the requested shard or its "default" entry, else (when role's own entry
// is missing or resolves neither way) the same two checks against the
// "writing" role.
func (m *ModelRouting) dbKeyFor(role, shard string) (string, error) {
	if dbKey, err := routeEntry(m.RoleMap, role, shard); err == nil {
		return dbKey, nil
	} else if role != defaultRole {
		if dbKey, err := routeEntry(m.RoleMap, defaultRole, shard); err == nil {
			return dbKey, nil
		}
	}
	return "", fmt.Errorf("no role_map entry for role %q (nor fallback %q)", role, defaultRole)
}

func routeEntry(roleMap map[string]RoleRoute, role, shard string) (string, error) {
	entry, ok := roleMap[role]
	if !ok {
		return "", fmt.Errorf("role %q not mapped", role)
	}
	if entry.DBKey != "" {
		return entry.DBKey, nil
	}
	if dbKey, ok := entry.Shards[shard]; ok {
		return dbKey, nil
	}
	if dbKey, ok := entry.Shards[defaultShard]; ok {
		return dbKey, nil
	}
	return "", fmt.Errorf("role %q has no shard %q or %q entry", role, shard, defaultShard)
}

func (r *Router) lookupPool(dbKey string) (*pool.Pool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pools[dbKey]
	return p, ok
}

// Pools returns a snapshot of the process-wide db_key -> Pool registry,
// for monitoring consumers that have no single route to resolve through.
func (r *Router) Pools() map[string]*pool.Pool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*pool.Pool, len(r.pools))
	for k, p := range r.pools {
		out[k] = p
	}
	return out
}
