package bolt

import (
	"context"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeServer drives the server side of a net.Pipe connection, replaying a
// scripted handshake + HELLO + whatever the test body additionally reads.
func fakeServer(t *testing.T, conn net.Conn, onRun func(cr *chunkReader, cw *chunkWriter)) {
	t.Helper()
	go func() {
		var preamble [20]byte
		if _, err := io.ReadFull(conn, preamble[:]); err != nil {
			return
		}
		// Agree on the client's first-offered version, 5.4.
		_, _ = conn.Write([]byte{0x00, 0x00, 0x04, 0x05})

		cr := newChunkReader(conn)
		cw := newChunkWriter(conn)

		hello, err := cr.ReadMessage()
		if err != nil || len(hello) == 0 {
			return
		}
		helloSuccess, err := encodeMessage(MsgSuccess, map[string]any{})
		if err != nil {
			return
		}
		if err := cw.WriteMessage(helloSuccess); err != nil {
			return
		}

		logon, err := cr.ReadMessage()
		if err != nil || len(logon) == 0 {
			return
		}
		logonSuccess, err := encodeMessage(MsgSuccess, map[string]any{"server": "fake/1.0", "connection_id": "x"})
		if err != nil {
			return
		}
		if err := cw.WriteMessage(logonSuccess); err != nil {
			return
		}

		if onRun != nil {
			onRun(cr, cw)
		}
	}()
}

func TestConnect_Handshake_Hello_Success(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	fakeServer(t, server, nil)

	conn, err := Connect(client, ConnectOptions{UserAgent: "test/1.0", Principal: "neo4j", Credentials: "pw"})
	require.NoError(t, err)
	require.Equal(t, StateReady, conn.State())
	require.Equal(t, "fake/1.0", conn.serverAgent)
}

func TestConn_RunAndPull_FullCycle(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	fakeServer(t, server, func(cr *chunkReader, cw *chunkWriter) {
		runRaw, err := cr.ReadMessage()
		require.NoError(t, err)
		runMsg, err := decodeMessage(runRaw)
		require.NoError(t, err)
		require.Equal(t, MsgRun, runMsg.Type)

		runSuccess, err := encodeMessage(MsgSuccess, map[string]any{"fields": []any{"n"}})
		require.NoError(t, err)
		require.NoError(t, cw.WriteMessage(runSuccess))

		pullRaw, err := cr.ReadMessage()
		require.NoError(t, err)
		pullMsg, err := decodeMessage(pullRaw)
		require.NoError(t, err)
		require.Equal(t, MsgPull, pullMsg.Type)

		record, err := encodeMessage(MsgRecord, []any{int64(42)})
		require.NoError(t, err)
		require.NoError(t, cw.WriteMessage(record))

		pullSuccess, err := encodeMessage(MsgSuccess, map[string]any{"has_more": false})
		require.NoError(t, err)
		require.NoError(t, cw.WriteMessage(pullSuccess))
	})

	conn, err := Connect(client, ConnectOptions{UserAgent: "test/1.0", Principal: "neo4j", Credentials: "pw"})
	require.NoError(t, err)

	ctx := context.Background()
	fields, _, err := conn.Run(ctx, "MATCH (n) RETURN n", nil, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"n"}, fields)
	require.Equal(t, StateStreaming, conn.State())

	records, hasMore, err := conn.Pull(ctx, -1, nil)
	require.NoError(t, err)
	require.False(t, hasMore)
	require.Equal(t, [][]any{{int64(42)}}, records)
	require.Equal(t, StateReady, conn.State())
}

func TestConn_FailureThenReset(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	fakeServer(t, server, func(cr *chunkReader, cw *chunkWriter) {
		_, err := cr.ReadMessage() // RUN
		require.NoError(t, err)
		failure, err := encodeMessage(MsgFailure, map[string]any{"code": "Neo.ClientError.Statement.SyntaxError", "message": "bad"})
		require.NoError(t, err)
		require.NoError(t, cw.WriteMessage(failure))

		_, err = cr.ReadMessage() // RESET
		require.NoError(t, err)
		success, err := encodeMessage(MsgSuccess, map[string]any{})
		require.NoError(t, err)
		require.NoError(t, cw.WriteMessage(success))
	})

	conn, err := Connect(client, ConnectOptions{UserAgent: "test/1.0", Principal: "neo4j", Credentials: "pw"})
	require.NoError(t, err)

	ctx := context.Background()
	_, _, err = conn.Run(ctx, "bad cypher", nil, nil)
	require.Error(t, err)
	var qerr *QueryError
	require.ErrorAs(t, err, &qerr)
	require.Equal(t, StateFailed, conn.State())

	ok, err := conn.Reset(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, StateReady, conn.State())
}
