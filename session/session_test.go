package session_test

import (
	"bytes"
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cyphergraph/go-cypher-bolt/internal/bolt"
	"github.com/cyphergraph/go-cypher-bolt/internal/packstream"
	"github.com/cyphergraph/go-cypher-bolt/pool"
	"github.com/cyphergraph/go-cypher-bolt/router"
	"github.com/cyphergraph/go-cypher-bolt/session"
	"github.com/cyphergraph/go-cypher-bolt/value"
)

// frameMessage encodes msg as one PackStream structure and wraps it in a
// single chunk plus the zero-length terminator, mirroring internal/bolt's
// own chunked framing (spec.md §4.6).
func frameMessage(t *testing.T, msg packstream.Structure) []byte {
	t.Helper()
	var body bytes.Buffer
	require.NoError(t, packstream.Encode(&body, msg))
	out := make([]byte, 0, 2+body.Len()+2)
	out = append(out, byte(body.Len()>>8), byte(body.Len()))
	out = append(out, body.Bytes()...)
	out = append(out, 0x00, 0x00)
	return out
}

func readFullConn(t *testing.T, conn net.Conn, buf []byte) {
	t.Helper()
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		require.NoError(t, err)
	}
}

// drainOneChunkedMessage reads and discards one complete chunked message
// (any number of chunks through the zero-length terminator).
func drainOneChunkedMessage(t *testing.T, conn net.Conn) {
	t.Helper()
	header := make([]byte, 2)
	for {
		readFullConn(t, conn, header)
		size := int(header[0])<<8 | int(header[1])
		if size == 0 {
			return
		}
		payload := make([]byte, size)
		readFullConn(t, conn, payload)
	}
}

func writeSuccess(t *testing.T, conn net.Conn, meta map[string]any) {
	t.Helper()
	_, _ = conn.Write(frameMessage(t, packstream.Structure{Tag: bolt.MsgSuccess, Fields: []any{meta}}))
}

func writeRecord(t *testing.T, conn net.Conn, row []any) {
	t.Helper()
	_, _ = conn.Write(frameMessage(t, packstream.Structure{Tag: bolt.MsgRecord, Fields: []any{row}}))
}

// runFakeServer completes the handshake + HELLO + LOGON on conn, then
// hands off to script for whatever request/reply sequence the test needs
// (RUN/PULL, or BEGIN/RUN/PULL/COMMIT), and finally idles until the test
// closes the pipe.
func runFakeServer(t *testing.T, conn net.Conn, script func(conn net.Conn)) {
	t.Helper()
	go func() {
		preamble := make([]byte, 20)
		readFullConn(t, conn, preamble)
		_, _ = conn.Write([]byte{0x00, 0x00, 0x04, 0x05})

		drainOneChunkedMessage(t, conn) // HELLO
		writeSuccess(t, conn, map[string]any{})
		drainOneChunkedMessage(t, conn) // LOGON
		writeSuccess(t, conn, map[string]any{"server": "fake/1.0", "connection_id": "x"})

		if script != nil {
			script(conn)
		}

		buf := make([]byte, 1024)
		for {
			if _, err := conn.Read(buf); err != nil {
				return
			}
		}
	}()
}

// runOneQuery reads one RUN and one PULL and replies with fields/records,
// as a single query cycle (spec.md §4.7 run()).
func runOneQuery(t *testing.T, conn net.Conn, fields []string, records [][]any) {
	t.Helper()
	drainOneChunkedMessage(t, conn) // RUN
	fieldsAny := make([]any, len(fields))
	for i, f := range fields {
		fieldsAny[i] = f
	}
	writeSuccess(t, conn, map[string]any{"fields": fieldsAny})
	drainOneChunkedMessage(t, conn) // PULL
	for _, rec := range records {
		writeRecord(t, conn, rec)
	}
	writeSuccess(t, conn, map[string]any{"has_more": false})
}

func newTestSession(t *testing.T, script func(conn net.Conn)) *session.Session {
	t.Helper()
	dialer := func(ctx context.Context) (*bolt.Conn, error) {
		client, server := net.Pipe()
		runFakeServer(t, server, script)
		return bolt.Connect(client, bolt.ConnectOptions{UserAgent: "test", Principal: "neo4j", Credentials: "pw"})
	}
	p := pool.New(dialer, pool.Config{MaxSize: 1})
	r := router.New()
	r.RegisterPool("primary", p)
	require.NoError(t, r.SetRouting("graph", &router.ModelRouting{
		RoleMap: map[string]router.RoleRoute{"writing": {DBKey: "primary"}},
	}))
	return session.New("graph", r, nil)
}

func TestSession_Execute_DecodesRows(t *testing.T) {
	s := newTestSession(t, func(conn net.Conn) {
		runOneQuery(t, conn, []string{"n.name"}, [][]any{{"Alice"}, {"Bob"}})
	})

	ctx := s.ConnectedTo(context.Background(), "writing", "")
	rows, err := s.Execute(ctx, "MATCH (n) RETURN n.name", nil, "")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, value.Str("Alice"), rows[0]["n.name"])
	require.Equal(t, value.Str("Bob"), rows[1]["n.name"])
}

func TestSession_Execute_EmptyResult(t *testing.T) {
	s := newTestSession(t, func(conn net.Conn) {
		runOneQuery(t, conn, []string{"n.name"}, nil)
	})

	ctx := s.ConnectedTo(context.Background(), "writing", "")
	rows, err := s.Execute(ctx, "MATCH (n) RETURN n.name", nil, "")
	require.NoError(t, err)
	require.Len(t, rows, 0)
}

func TestSession_Transaction_CommitsOnSuccess(t *testing.T) {
	s := newTestSession(t, func(conn net.Conn) {
		drainOneChunkedMessage(t, conn) // BEGIN
		writeSuccess(t, conn, map[string]any{})
		runOneQuery(t, conn, []string{"n.name"}, [][]any{{"Alice"}})
		drainOneChunkedMessage(t, conn) // COMMIT
		writeSuccess(t, conn, map[string]any{})
	})

	ctx := s.ConnectedTo(context.Background(), "writing", "")
	var got session.Rows
	err := s.Transaction(ctx, func(tx *session.TxSession) error {
		rows, err := tx.Execute(ctx, "MATCH (n) RETURN n.name", nil)
		got = rows
		return err
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestSession_WipeDatabase_RefusesWithoutConfirmation(t *testing.T) {
	s := newTestSession(t, nil)
	err := s.WipeDatabase(context.Background(), "nope", 100)
	require.ErrorIs(t, err, session.ErrWipeConfirmationRequired)
}

func TestSession_WipeDatabase_StopsWhenBatchDeletesZero(t *testing.T) {
	s := newTestSession(t, func(conn net.Conn) {
		runOneQuery(t, conn, []string{"deleted"}, [][]any{{int64(0)}})
	})

	ctx := s.ConnectedTo(context.Background(), "writing", "")
	err := s.WipeDatabase(ctx, "yes, really", 50)
	require.NoError(t, err)
}
