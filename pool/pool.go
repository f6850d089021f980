// Package pool implements a bounded pool of idle Bolt connections for one
// physical endpoint: checkout/return, a FIFO waiter queue, and lazy
// idle-timeout eviction (spec.md §4.8).
package pool

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cyphergraph/go-cypher-bolt/internal/bolt"
)

// ErrAcquireTimeout is returned when Acquire's deadline elapses before a
// connection becomes available.
var ErrAcquireTimeout = errors.New("pool: acquire timed out")

// ErrClosed is returned by Acquire once the pool has been closed.
var ErrClosed = errors.New("pool: closed")

// Dialer creates a new, handshaken, ready Conn to the pool's endpoint.
type Dialer func(ctx context.Context) (*bolt.Conn, error)

// Config bounds a Pool's size and timing behavior.
type Config struct {
	MaxSize     int
	IdleTimeout time.Duration
	Logger      *zap.Logger
}

type idleEntry struct {
	conn     *bolt.Conn
	returned time.Time
}

// Pool is a bounded set of idle Ready connections plus an in-flight
// creation counter, matching spec.md §4.8's acquire/release rules.
type Pool struct {
	dial   Dialer
	cfg    Config
	logger *zap.Logger

	mu         sync.Mutex
	idle       *list.List // of *idleEntry
	inFlight   int        // connections being created or currently checked out
	closed     bool
	waiters    *list.List // of chan struct{}, FIFO
}

// New constructs a Pool bounded by cfg against connections produced by dial.
func New(dial Dialer, cfg Config) *Pool {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 1
	}
	return &Pool{
		dial:    dial,
		cfg:     cfg,
		logger:  logger,
		idle:    list.New(),
		waiters: list.New(),
	}
}

// Stats is a snapshot of the pool's bookkeeping, exposed for telemetry and
// the cymb-console TUI.
type Stats struct {
	Idle      int
	InFlight  int
	Waiting   int
	MaxSize   int
}

// Stats returns a point-in-time snapshot of the pool's state.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Idle:     p.idle.Len(),
		InFlight: p.inFlight,
		Waiting:  p.waiters.Len(),
		MaxSize:  p.cfg.MaxSize,
	}
}

// Acquire returns an idle Ready connection if one exists; otherwise, if
// fewer than MaxSize connections are currently in flight, dials a new
// one; otherwise blocks until a connection is released or ctx is done,
// returning ErrAcquireTimeout on the latter (spec.md §4.8).
func (p *Pool) Acquire(ctx context.Context) (*bolt.Conn, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrClosed
		}
		p.evictExpired()
		if el := p.idle.Front(); el != nil {
			entry := p.idle.Remove(el).(*idleEntry)
			p.inFlight++
			p.mu.Unlock()
			return entry.conn, nil
		}
		if p.inFlight < p.cfg.MaxSize {
			p.inFlight++
			p.mu.Unlock()
			conn, err := p.dial(ctx)
			if err != nil {
				p.mu.Lock()
				p.inFlight--
				p.mu.Unlock()
				return nil, fmt.Errorf("pool: dialing new connection: %w", err)
			}
			return conn, nil
		}

		ready := make(chan struct{})
		el := p.waiters.PushBack(ready)
		p.mu.Unlock()

		select {
		case <-ready:
			continue
		case <-ctx.Done():
			p.mu.Lock()
			p.waiters.Remove(el)
			p.mu.Unlock()
			return nil, ErrAcquireTimeout
		}
	}
}

// Release returns conn to the pool if it is Ready and the pool is open,
// or closes it otherwise, waking the oldest waiter if any (spec.md §4.8).
func (p *Pool) Release(conn *bolt.Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.inFlight--
	if conn.State() != bolt.StateReady || p.closed {
		if conn.State() != bolt.StateReady {
			p.logger.Debug("pool: discarding non-ready connection", zap.String("state", conn.State().String()))
		}
		_ = conn.Close()
		p.wakeOneWaiterLocked()
		return
	}

	p.idle.PushBack(&idleEntry{conn: conn, returned: time.Now()})
	p.wakeOneWaiterLocked()
}

func (p *Pool) wakeOneWaiterLocked() {
	if el := p.waiters.Front(); el != nil {
		p.waiters.Remove(el)
		close(el.Value.(chan struct{}))
	}
}

func (p *Pool) evictExpired() {
	if p.cfg.IdleTimeout <= 0 {
		return
	}
	cutoff := time.Now().Add(-p.cfg.IdleTimeout)
	for el := p.idle.Front(); el != nil; {
		next := el.Next()
		entry := el.Value.(*idleEntry)
		if entry.returned.Before(cutoff) {
			p.idle.Remove(el)
			_ = entry.conn.Close()
		}
		el = next
	}
}

// Close closes every idle connection and marks the pool closed; in-flight
// (checked-out) connections are closed by their callers' own Release.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	var firstErr error
	for el := p.idle.Front(); el != nil; el = el.Next() {
		if err := el.Value.(*idleEntry).conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.idle.Init()
	return firstErr
}
