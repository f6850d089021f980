// Package bolt implements a from-scratch Bolt protocol client: version
// handshake, PackStream-framed messages, and the per-connection
// request/reply state machine of spec.md §4.7.
package bolt

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// Sentinel errors for connection-level failures (spec.md §7).
var (
	ErrHandshakeFailed = errors.New("bolt: handshake failed")
	ErrAuthFailed      = errors.New("bolt: authentication failed")
	ErrProtocolError   = errors.New("bolt: protocol error")
	ErrConnectionLost  = errors.New("bolt: connection lost")
)

// QueryError wraps a server FAILURE response's code and message.
type QueryError struct {
	Code    string
	Message string
}

func (e *QueryError) Error() string { return fmt.Sprintf("bolt: query failed (%s): %s", e.Code, e.Message) }

// State is the connection's position in the per-message state machine of
// spec.md §4.7.
type State int

const (
	StateNew State = iota
	StateHandshaking
	StateAuthenticating
	StateReady
	StateStreaming
	StateTxReady
	StateTxStreaming
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "New"
	case StateHandshaking:
		return "Handshaking"
	case StateAuthenticating:
		return "Authenticating"
	case StateReady:
		return "Ready"
	case StateStreaming:
		return "Streaming"
	case StateTxReady:
		return "TxReady"
	case StateTxStreaming:
		return "TxStreaming"
	case StateFailed:
		return "Failed"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// ConnectOptions configures a new Conn's startup handshake.
type ConnectOptions struct {
	UserAgent   string
	Principal   string
	Credentials string
	Routing     map[string]any
	Logger      *zap.Logger
}

// Conn is a single Bolt connection: transport plus the message-level
// state machine. Not safe for concurrent use — callers serialize access,
// typically via pool.Pool's checkout discipline.
type Conn struct {
	rwc     io.ReadWriteCloser
	cw      *chunkWriter
	cr      *chunkReader
	version Version
	state   State
	logger  *zap.Logger

	serverAgent  string
	connectionID string
}

// Connect performs the handshake and HELLO/LOGON startup sequence over
// rwc, returning a Conn in StateReady.
func Connect(rwc io.ReadWriteCloser, opts ConnectOptions) (*Conn, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Conn{
		rwc:    rwc,
		cw:     newChunkWriter(rwc),
		cr:     newChunkReader(rwc),
		state:  StateHandshaking,
		logger: logger,
	}

	version, err := Handshake(rwc)
	if err != nil {
		logger.Warn("bolt: handshake failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	c.version = version
	c.state = StateAuthenticating

	// v5.1+ carries credentials in a separate LOGON message rather than
	// inline in HELLO; each message gets its own reply.
	includeAuthInHello := version.Major < 5 || (version.Major == 5 && version.Minor < 1)
	hello, err := encodeMessage(MsgHello, helloFields(opts.UserAgent, opts.Principal, opts.Credentials, opts.Routing, includeAuthInHello))
	if err != nil {
		return nil, err
	}
	if err := c.cw.WriteMessage(hello); err != nil {
		return nil, fmt.Errorf("%w: sending HELLO: %v", ErrConnectionLost, err)
	}
	helloReply, err := c.recv()
	if err != nil {
		return nil, fmt.Errorf("%w: reading HELLO reply: %v", ErrConnectionLost, err)
	}
	if helloReply.Type == MsgFailure {
		logger.Warn("bolt: HELLO rejected", zap.Any("failure", helloReply.Fields))
		c.state = StateFailed
		return nil, fmt.Errorf("%w: %v", ErrAuthFailed, helloReply.Fields)
	}
	if helloReply.Type != MsgSuccess {
		return nil, fmt.Errorf("%w: unexpected HELLO reply type 0x%02X", ErrProtocolError, helloReply.Type)
	}

	reply := helloReply
	if !includeAuthInHello {
		logon, err := encodeMessage(MsgLogon, logonFields(opts.Principal, opts.Credentials))
		if err != nil {
			return nil, err
		}
		if err := c.cw.WriteMessage(logon); err != nil {
			return nil, fmt.Errorf("%w: sending LOGON: %v", ErrConnectionLost, err)
		}
		logonReply, err := c.recv()
		if err != nil {
			return nil, fmt.Errorf("%w: reading LOGON reply: %v", ErrConnectionLost, err)
		}
		if logonReply.Type == MsgFailure {
			logger.Warn("bolt: LOGON rejected", zap.Any("failure", logonReply.Fields))
			c.state = StateFailed
			return nil, fmt.Errorf("%w: %v", ErrAuthFailed, logonReply.Fields)
		}
		if logonReply.Type != MsgSuccess {
			return nil, fmt.Errorf("%w: unexpected LOGON reply type 0x%02X", ErrProtocolError, logonReply.Type)
		}
		reply = logonReply
	}

	if meta, ok := singleMapField(reply); ok {
		if agent, ok := meta["server"].(string); ok {
			c.serverAgent = agent
		}
		if cid, ok := meta["connection_id"].(string); ok {
			c.connectionID = cid
		}
	}
	if c.serverAgent == "" {
		if meta, ok := singleMapField(helloReply); ok {
			if agent, ok := meta["server"].(string); ok {
				c.serverAgent = agent
			}
			if cid, ok := meta["connection_id"].(string); ok {
				c.connectionID = cid
			}
		}
	}

	c.state = StateReady
	logger.Debug("bolt: connection ready", zap.String("version", version.String()), zap.String("server", c.serverAgent))
	return c, nil
}

// State returns the connection's current state.
func (c *Conn) State() State { return c.state }

// Version returns the negotiated Bolt protocol version.
func (c *Conn) Version() Version { return c.version }

func singleMapField(m Message) (map[string]any, bool) {
	if len(m.Fields) != 1 {
		return nil, false
	}
	meta, ok := m.Fields[0].(map[string]any)
	return meta, ok
}

func (c *Conn) send(typ byte, fields ...any) error {
	raw, err := encodeMessage(typ, fields...)
	if err != nil {
		return err
	}
	if err := c.cw.WriteMessage(raw); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	return nil
}

func (c *Conn) recv() (Message, error) {
	raw, err := c.cr.ReadMessage()
	if err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	return decodeMessage(raw)
}

// Run sends RUN and reads its SUCCESS reply, returning the declared
// result fields and query id (spec.md §4.7 run() steps 1-2). Asserts the
// connection is Ready or TxReady.
func (c *Conn) Run(ctx context.Context, cypher string, params map[string]any, metadata map[string]any) (fields []string, qid int64, err error) {
	if c.state != StateReady && c.state != StateTxReady {
		return nil, 0, fmt.Errorf("%w: RUN not allowed in state %s", ErrProtocolError, c.state)
	}
	if err := ctxErr(ctx); err != nil {
		return nil, 0, err
	}

	asAny := make(map[string]any, len(params))
	for k, v := range params {
		asAny[k] = v
	}
	if err := c.send(MsgRun, runFields(cypher, asAny, metadata)...); err != nil {
		return nil, 0, err
	}

	reply, err := c.recv()
	if err != nil {
		return nil, 0, err
	}
	if reply.Type == MsgFailure {
		c.state = StateFailed
		return nil, 0, c.queryError(reply)
	}
	if reply.Type != MsgSuccess {
		return nil, 0, fmt.Errorf("%w: unexpected RUN reply type 0x%02X", ErrProtocolError, reply.Type)
	}

	meta, _ := singleMapField(reply)
	if raw, ok := meta["fields"].([]any); ok {
		fields = make([]string, len(raw))
		for i, f := range raw {
			if s, ok := f.(string); ok {
				fields[i] = s
			}
		}
	}
	if q, ok := meta["qid"].(int64); ok {
		qid = q
	}

	if c.state == StateReady {
		c.state = StateStreaming
	} else {
		c.state = StateTxStreaming
	}
	return fields, qid, nil
}

// Pull sends PULL(n) and collects RECORDs until a SUCCESS with
// has_more=false or a FAILURE (spec.md §4.7 run() step 3-4).
func (c *Conn) Pull(ctx context.Context, n int64, qid *int64) (records [][]any, hasMore bool, err error) {
	if c.state != StateStreaming && c.state != StateTxStreaming {
		return nil, false, fmt.Errorf("%w: PULL not allowed in state %s", ErrProtocolError, c.state)
	}
	if err := ctxErr(ctx); err != nil {
		return nil, false, err
	}

	if err := c.send(MsgPull, pullFields(n, qid)); err != nil {
		return nil, false, err
	}

	for {
		reply, err := c.recv()
		if err != nil {
			return nil, false, err
		}
		switch reply.Type {
		case MsgRecord:
			if len(reply.Fields) == 1 {
				if row, ok := reply.Fields[0].([]any); ok {
					records = append(records, row)
				}
			}
		case MsgSuccess:
			meta, _ := singleMapField(reply)
			hasMore, _ = meta["has_more"].(bool)
			if !hasMore {
				if c.state == StateStreaming {
					c.state = StateReady
				} else {
					c.state = StateTxReady
				}
			}
			return records, hasMore, nil
		case MsgFailure:
			c.state = StateFailed
			return records, false, c.queryError(reply)
		default:
			return records, false, fmt.Errorf("%w: unexpected PULL reply type 0x%02X", ErrProtocolError, reply.Type)
		}
	}
}

func (c *Conn) queryError(reply Message) error {
	meta, _ := singleMapField(reply)
	code, _ := meta["code"].(string)
	message, _ := meta["message"].(string)
	return &QueryError{Code: code, Message: message}
}

// Begin sends BEGIN, transitioning Ready -> TxReady.
func (c *Conn) Begin(ctx context.Context, metadata map[string]any) error {
	if c.state != StateReady {
		return fmt.Errorf("%w: BEGIN not allowed in state %s", ErrProtocolError, c.state)
	}
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	if err := c.send(MsgBegin, metadata); err != nil {
		return err
	}
	reply, err := c.recv()
	if err != nil {
		return err
	}
	if reply.Type == MsgFailure {
		c.state = StateFailed
		return c.queryError(reply)
	}
	if reply.Type != MsgSuccess {
		return fmt.Errorf("%w: unexpected BEGIN reply type 0x%02X", ErrProtocolError, reply.Type)
	}
	c.state = StateTxReady
	return nil
}

// Commit sends COMMIT, transitioning TxReady -> Ready.
func (c *Conn) Commit(ctx context.Context) error { return c.endTx(ctx, MsgCommit) }

// Rollback sends ROLLBACK, transitioning TxReady -> Ready.
func (c *Conn) Rollback(ctx context.Context) error { return c.endTx(ctx, MsgRollback) }

func (c *Conn) endTx(ctx context.Context, typ byte) error {
	if c.state != StateTxReady {
		return fmt.Errorf("%w: commit/rollback not allowed in state %s", ErrProtocolError, c.state)
	}
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if err := c.send(typ); err != nil {
		return err
	}
	reply, err := c.recv()
	if err != nil {
		return err
	}
	if reply.Type == MsgFailure {
		c.state = StateFailed
		return c.queryError(reply)
	}
	if reply.Type != MsgSuccess {
		return fmt.Errorf("%w: unexpected reply type 0x%02X", ErrProtocolError, reply.Type)
	}
	c.state = StateReady
	return nil
}

// Reset writes RESET as the single outstanding request and reads
// responses until a SUCCESS for RESET, cancelling any in-flight work
// (spec.md §4.7 reset()). Returns false (without error) if the
// connection is Closed, or if the server answers RESET with FAILURE (the
// connection is then left in StateFailed); transport and protocol errors
// are returned as an error.
func (c *Conn) Reset(ctx context.Context) (bool, error) {
	if c.state == StateClosed {
		return false, nil
	}
	if err := ctxErr(ctx); err != nil {
		return false, err
	}
	if err := c.send(MsgReset); err != nil {
		return false, err
	}
	for {
		reply, err := c.recv()
		if err != nil {
			return false, err
		}
		switch reply.Type {
		case MsgSuccess:
			c.state = StateReady
			return true, nil
		case MsgFailure:
			c.state = StateFailed
			return false, nil
		case MsgIgnored, MsgRecord:
			continue
		default:
			return false, fmt.Errorf("%w: unexpected RESET reply type 0x%02X", ErrProtocolError, reply.Type)
		}
	}
}

// Close writes GOODBYE (best effort, errors ignored) and closes the
// underlying transport (spec.md §4.7 close()).
func (c *Conn) Close() error {
	if c.state == StateClosed {
		return nil
	}
	_ = c.send(MsgGoodbye)
	c.state = StateClosed
	return c.rwc.Close()
}

func ctxErr(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
