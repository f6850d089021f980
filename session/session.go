// Package session implements the Adapter surface: execute, transaction,
// and wipe_database against a Router-resolved Connection, decoding
// PackStream records into value.Value rows and emitting redacted
// instrumentation events (spec.md §4.10).
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cyphergraph/go-cypher-bolt/internal/bolt"
	"github.com/cyphergraph/go-cypher-bolt/internal/packstream"
	"github.com/cyphergraph/go-cypher-bolt/internal/telemetry"
	"github.com/cyphergraph/go-cypher-bolt/router"
	"github.com/cyphergraph/go-cypher-bolt/value"
)

// ErrWipeConfirmationRequired is returned by WipeDatabase when confirm
// isn't the exact literal "yes, really".
var ErrWipeConfirmationRequired = errors.New("session: wipe_database requires confirm=\"yes, really\"")

// ErrTransactionAborted is surfaced when a mid-transaction connection
// failure leaves the connection unusable for ROLLBACK (spec.md §4.10).
var ErrTransactionAborted = errors.New("session: transaction aborted")

// pullBatchSize is the PULL(n) batch used by Execute's result-draining
// loop; the adapter always exhausts the result before returning, so this
// only bounds the number of round trips, not the row count.
const pullBatchSize = 1000

// Row is one result record, keyed by the field names RUN declared.
type Row map[string]value.Value

// Rows is an ordered result set.
type Rows []Row

// Session is a Router-backed Adapter for one logical model/graph.
type Session struct {
	model  string
	router *router.Router
	events *telemetry.Emitter
}

// New returns a Session executing against model's routing configuration
// in r, emitting instrumentation through em (nil-safe, see
// telemetry.NewEmitter).
func New(model string, r *router.Router, em *telemetry.Emitter) *Session {
	if em == nil {
		em = telemetry.NewEmitter(nil)
	}
	return &Session{model: model, router: r, events: em}
}

// ConnectedTo returns a context routed to {role, shard} for this
// Session's model, the idiomatic rendering of connected_to's dynamic
// scoping (spec.md §4.9); pass the result to Execute/Transaction.
func (s *Session) ConnectedTo(ctx context.Context, role, shard string) context.Context {
	return router.WithRoute(ctx, s.model, role, shard)
}

// Execute acquires a Connection via Router -> Pool, runs cypher with
// params, drains the result, and releases the connection (or discards it
// on failure), per spec.md §4.10 execute().
func (s *Session) Execute(ctx context.Context, cypher string, params map[string]value.Value, contextLabel string) (Rows, error) {
	if contextLabel == "" {
		contextLabel = "Query"
	}

	p, err := s.router.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	conn, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.Release(conn)

	return runQuery(ctx, conn, s.events, cypher, params, contextLabel)
}

// TxSession is the restricted view of a Session handed to Transaction's
// work function: it exposes only Execute, matching spec.md §4.10's
// "TxSession exposing only execute".
type TxSession struct {
	conn   *bolt.Conn
	events *telemetry.Emitter
}

// Execute runs cypher within the enclosing transaction.
func (tx *TxSession) Execute(ctx context.Context, cypher string, params map[string]value.Value) (Rows, error) {
	return runQuery(ctx, tx.conn, tx.events, cypher, params, "Transaction")
}

// Transaction sends BEGIN, runs work against a TxSession, then COMMITs on
// a normal return or ROLLBACKs and re-raises on error. A connection
// failure observed mid-transaction (the connection left in Failed rather
// than a clean Ready/TxReady) discards the connection and surfaces
// ErrTransactionAborted instead of attempting ROLLBACK (spec.md §4.10).
func (s *Session) Transaction(ctx context.Context, work func(tx *TxSession) error) error {
	p, err := s.router.Resolve(ctx)
	if err != nil {
		return err
	}
	conn, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(conn)

	if err := conn.Begin(ctx, nil); err != nil {
		return err
	}

	tx := &TxSession{conn: conn, events: s.events}
	workErr := work(tx)
	if workErr != nil {
		if conn.State() == bolt.StateFailed {
			return fmt.Errorf("%w: %v", ErrTransactionAborted, workErr)
		}
		if rbErr := conn.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w: rollback failed after %v: %v", ErrTransactionAborted, workErr, rbErr)
		}
		return workErr
	}

	if err := conn.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit failed: %v", ErrTransactionAborted, err)
	}
	return nil
}

// WipeDatabase refuses unless confirm is exactly "yes, really"; it then
// runs a bounded-loop detach-delete in batches of batch entities,
// emitting WipeDB/Batch-Delete events, and returns once a batch deletes
// zero entities (spec.md §4.10).
func (s *Session) WipeDatabase(ctx context.Context, confirm string, batch int) error {
	if confirm != "yes, really" {
		return ErrWipeConfirmationRequired
	}
	if batch <= 0 {
		batch = 1000
	}

	p, err := s.router.Resolve(ctx)
	if err != nil {
		return err
	}
	conn, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(conn)

	s.events.Emit(ctx, telemetry.Event{Name: "WipeDB", Fields: map[string]any{"model": s.model, "batch": batch}})

	const cypher = "MATCH (n) WITH n LIMIT $batch DETACH DELETE n RETURN count(n) AS deleted"
	for {
		rows, err := runQuery(ctx, conn, s.events, cypher, map[string]value.Value{"batch": value.Int(batch)}, "WipeDatabase")
		if err != nil {
			return err
		}
		deleted := int64(0)
		if len(rows) > 0 {
			if n, ok := rows[0]["deleted"].(value.Int); ok {
				deleted = int64(n)
			}
		}
		s.events.Emit(ctx, telemetry.Event{Name: "Batch-Delete", Fields: map[string]any{"model": s.model, "deleted": deleted}})
		if deleted == 0 {
			return nil
		}
	}
}

// runQuery runs the RUN/PULL message cycle on conn and decodes the
// result into Rows, emitting query.start/query.end around it (spec.md
// §4.10 steps 2-4). It does not acquire or release conn; callers own
// that.
func runQuery(ctx context.Context, conn *bolt.Conn, events *telemetry.Emitter, cypher string, params map[string]value.Value, contextLabel string) (Rows, error) {
	start := time.Now()
	nativeP := nativeParams(params)
	events.Emit(ctx, telemetry.Event{Name: "query.start", Fields: map[string]any{
		"cypher":  cypher,
		"params":  nativeP,
		"context": contextLabel,
	}})

	fieldNames, qid, err := conn.Run(ctx, cypher, nativeP, nil)
	if err != nil {
		return nil, err
	}

	var rawRecords [][]any
	for {
		batch, hasMore, err := conn.Pull(ctx, int64(pullBatchSize), qidRef(qid))
		if err != nil {
			return nil, err
		}
		rawRecords = append(rawRecords, batch...)
		if !hasMore {
			break
		}
	}

	rows := make(Rows, 0, len(rawRecords))
	for _, rec := range rawRecords {
		row := make(Row, len(fieldNames))
		for i, name := range fieldNames {
			if i < len(rec) {
				row[name] = fromNative(rec[i])
			} else {
				row[name] = value.Null{}
			}
		}
		rows = append(rows, row)
	}

	events.Emit(ctx, telemetry.Event{
		Name:     "query.end",
		Duration: time.Since(start),
		Fields:   map[string]any{"row_count": len(rows), "context": contextLabel},
	})
	return rows, nil
}

func qidRef(qid int64) *int64 {
	if qid == 0 {
		return nil
	}
	return &qid
}

// nativeParams converts a params map of query Values into the plain Go
// types PackStream/internal/bolt encode over the wire.
func nativeParams(params map[string]value.Value) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = toNative(v)
	}
	return out
}

func toNative(v value.Value) any {
	switch t := v.(type) {
	case value.Null:
		return nil
	case value.Bool:
		return bool(t)
	case value.Int:
		return int64(t)
	case value.Float:
		return float64(t)
	case value.Bytes:
		return []byte(t)
	case value.Str:
		return string(t)
	case value.List:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = toNative(e)
		}
		return out
	case *value.Map:
		out := make(map[string]any, t.Len())
		for _, k := range t.Keys() {
			val, _ := t.Get(k)
			out[k] = toNative(val)
		}
		return out
	default:
		return nil
	}
}

// fromNative converts a PackStream-decoded native value (as returned by
// internal/bolt's Pull) into a value.Value, recognizing the structure
// tags of spec.md §6 as Node/Relationship/Path references.
func fromNative(v any) value.Value {
	switch t := v.(type) {
	case nil:
		return value.Null{}
	case bool:
		return value.Bool(t)
	case int64:
		return value.Int(t)
	case float64:
		return value.Float(t)
	case []byte:
		return value.Bytes(t)
	case string:
		return value.Str(t)
	case []any:
		out := make(value.List, len(t))
		for i, e := range t {
			out[i] = fromNative(e)
		}
		return out
	case map[string]any:
		keys := make([]string, 0, len(t))
		vals := make(map[string]value.Value, len(t))
		for k, e := range t {
			keys = append(keys, k)
			vals[k] = fromNative(e)
		}
		return value.NewMap(keys, vals)
	case packstream.Structure:
		return fromStructure(t)
	default:
		return value.Null{}
	}
}

func fromStructure(s packstream.Structure) value.Value {
	switch s.Tag {
	case 'N': // Node: id, labels, properties, element_id
		return value.NodeRef{
			ElementID: structureElementID(s.Fields, 0, 3),
			Labels:    structureLabels(s.Fields, 1),
			Props:     structureProps(s.Fields, 2),
		}
	case 'R': // Relationship: id, startId, endId, type, properties, element_id, ...
		return value.RelRef{
			ElementID:      structureElementID(s.Fields, 0, 5),
			Type:           structureString(s.Fields, 3),
			StartElementID: structureElementID(s.Fields, 1, 6),
			EndElementID:   structureElementID(s.Fields, 2, 7),
			Props:          structureProps(s.Fields, 4),
		}
	case 'r': // UnboundRelationship: id, type, properties, element_id
		return value.RelRef{
			ElementID: structureElementID(s.Fields, 0, 3),
			Type:      structureString(s.Fields, 1),
			Props:     structureProps(s.Fields, 2),
		}
	case 'P': // Path: nodes, rels, indices — indices are not resolved here,
		// since this module never needs to walk a path's edge directions.
		path := value.PathRef{}
		if len(s.Fields) > 0 {
			if nodes, ok := s.Fields[0].([]any); ok {
				for _, n := range nodes {
					if ns, ok := n.(packstream.Structure); ok {
						if nr, ok := fromStructure(ns).(value.NodeRef); ok {
							path.Nodes = append(path.Nodes, nr)
						}
					}
				}
			}
		}
		if len(s.Fields) > 1 {
			if rels, ok := s.Fields[1].([]any); ok {
				for _, r := range rels {
					if rs, ok := r.(packstream.Structure); ok {
						if rr, ok := fromStructure(rs).(value.RelRef); ok {
							path.Rels = append(path.Rels, rr)
						}
					}
				}
			}
		}
		return path
	default:
		// Temporal/spatial structure tags (D/F/I/E/X/Y) decode to their raw
		// field list; this module has no native temporal/spatial Value
		// variant (out of scope per spec.md Non-goals on a full Cypher type
		// system), so callers see them as an opaque list.
		out := make(value.List, len(s.Fields))
		for i, f := range s.Fields {
			out[i] = fromNative(f)
		}
		return out
	}
}

func structureString(fields []any, idx int) string {
	if idx < len(fields) {
		if s, ok := fields[idx].(string); ok {
			return s
		}
	}
	return ""
}

func structureElementID(fields []any, idIdx, elementIDIdx int) string {
	if elementIDIdx < len(fields) {
		if s, ok := fields[elementIDIdx].(string); ok {
			return s
		}
	}
	if idIdx < len(fields) {
		if id, ok := fields[idIdx].(int64); ok {
			return fmt.Sprintf("%d", id)
		}
	}
	return ""
}

func structureLabels(fields []any, idx int) []string {
	if idx >= len(fields) {
		return nil
	}
	raw, ok := fields[idx].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, l := range raw {
		if s, ok := l.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func structureProps(fields []any, idx int) *value.Map {
	if idx >= len(fields) {
		return value.NewMap(nil, nil)
	}
	raw, ok := fields[idx].(map[string]any)
	if !ok {
		return value.NewMap(nil, nil)
	}
	keys := make([]string, 0, len(raw))
	vals := make(map[string]value.Value, len(raw))
	for k, v := range raw {
		keys = append(keys, k)
		vals[k] = fromNative(v)
	}
	return value.NewMap(keys, vals)
}
