// Package telemetry implements the Emit(ctx, Event) structured-logging
// seam that session reports through (and that cmd/cymb-console reads back
// via a Recorder), plus the recursive sensitive-key redaction rule of
// spec.md §4.10.
package telemetry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event is one structured telemetry point: connection lifecycle
// transitions, reset durations, query starts/ends, pool acquisitions.
type Event struct {
	Name     string
	Fields   map[string]any
	Duration time.Duration
	At       time.Time
}

// Recorder keeps the most recently emitted Events in a bounded ring
// buffer, for consumers (cymb-console) that need to display live
// telemetry without attaching their own zap sink.
type Recorder struct {
	mu     sync.Mutex
	cap    int
	events []Event
}

// NewRecorder returns a Recorder retaining the last capacity Events.
func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = 1
	}
	return &Recorder{cap: capacity}
}

func (r *Recorder) record(ev Event) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	if over := len(r.events) - r.cap; over > 0 {
		r.events = r.events[over:]
	}
}

// Recent returns a copy of the currently buffered Events, oldest first.
func (r *Recorder) Recent() []Event {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Emitter emits Events to a zap.Logger at the appropriate level, and
// optionally mirrors them into an attached Recorder.
type Emitter struct {
	logger   *zap.Logger
	recorder *Recorder
}

// NewEmitter wraps logger (nil-safe: defaults to a no-op logger).
func NewEmitter(logger *zap.Logger) *Emitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Emitter{logger: logger}
}

// WithRecorder attaches rec to e, returning e for chaining. Every
// subsequent Emit/Warn call also appends to rec.
func (e *Emitter) WithRecorder(rec *Recorder) *Emitter {
	e.recorder = rec
	return e
}

// Emit records ev at Info level, with redacted fields and the duration if
// set. ctx is accepted for call-site symmetry with other blocking
// operations and future trace-id propagation; it is not yet consulted.
func (e *Emitter) Emit(_ context.Context, ev Event) {
	redacted := Redact(ev.Fields)
	fields := make([]zap.Field, 0, len(ev.Fields)+1)
	for k, v := range redacted {
		fields = append(fields, zap.Any(k, v))
	}
	if ev.Duration > 0 {
		fields = append(fields, zap.Duration("duration", ev.Duration))
	}
	e.logger.Info(ev.Name, fields...)
	e.recorder.record(Event{Name: ev.Name, Fields: redacted, Duration: ev.Duration, At: ev.At})
}

// Warn records ev at Warn level (e.g. FAILURE responses, discarded
// connections).
func (e *Emitter) Warn(_ context.Context, ev Event) {
	redacted := Redact(ev.Fields)
	fields := make([]zap.Field, 0, len(ev.Fields))
	for k, v := range redacted {
		fields = append(fields, zap.Any(k, v))
	}
	e.logger.Warn(ev.Name, fields...)
	e.recorder.record(Event{Name: ev.Name, Fields: redacted, Duration: ev.Duration, At: ev.At})
}

// sensitiveKeys names the keys redaction replaces wholesale, per
// spec.md §4.10.
var sensitiveKeys = map[string]struct{}{
	"password":             {},
	"credentials":          {},
	"token":                {},
	"api_key":               {},
	"secret":               {},
	"auth_token.credentials": {},
}

const redactedPlaceholder = "[REDACTED]"

// Redact walks m recursively through nested maps and lists, replacing any
// value whose key (or dotted path) is in sensitiveKeys with a
// placeholder. The input is never mutated; a deep copy is returned.
func Redact(m map[string]any) map[string]any {
	return redactMap(m, "")
}

func redactMap(m map[string]any, pathPrefix string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		path := k
		if pathPrefix != "" {
			path = pathPrefix + "." + k
		}
		if isSensitive(k) || isSensitive(path) {
			out[k] = redactedPlaceholder
			continue
		}
		out[k] = redactValue(v, path)
	}
	return out
}

func redactValue(v any, path string) any {
	switch t := v.(type) {
	case map[string]any:
		return redactMap(t, path)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = redactValue(item, path)
		}
		return out
	default:
		return v
	}
}

func isSensitive(key string) bool {
	_, ok := sensitiveKeys[key]
	return ok
}
