package pool_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cyphergraph/go-cypher-bolt/internal/bolt"
	"github.com/cyphergraph/go-cypher-bolt/pool"
)

// testDialer hands out a fresh in-memory Conn pair backed by a minimal
// fake server that only completes the handshake + HELLO + LOGON, enough
// to leave the client Conn in StateReady.
func testDialer(t *testing.T) pool.Dialer {
	t.Helper()
	return func(ctx context.Context) (*bolt.Conn, error) {
		client, server := net.Pipe()
		go runFakeHandshakeServer(server)
		return bolt.Connect(client, bolt.ConnectOptions{UserAgent: "test", Principal: "neo4j", Credentials: "pw"})
	}
}

func runFakeHandshakeServer(conn net.Conn) {
	buf := make([]byte, 20)
	if _, err := readFullConn(conn, buf); err != nil {
		return
	}
	_, _ = conn.Write([]byte{0x00, 0x00, 0x04, 0x05})

	for i := 0; i < 2; i++ {
		if _, err := drainOneChunkedMessage(conn); err != nil {
			return
		}
		reply := encodeSuccess()
		if _, err := conn.Write(reply); err != nil {
			return
		}
	}
	// Keep the pipe open; the test closes connections explicitly.
	buf2 := make([]byte, 1024)
	for {
		if _, err := conn.Read(buf2); err != nil {
			return
		}
	}
}

func readFullConn(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func drainOneChunkedMessage(conn net.Conn) (int, error) {
	header := make([]byte, 2)
	total := 0
	for {
		n, err := readFullConn(conn, header)
		total += n
		if err != nil {
			return total, err
		}
		size := int(header[0])<<8 | int(header[1])
		if size == 0 {
			return total, nil
		}
		payload := make([]byte, size)
		n, err = readFullConn(conn, payload)
		total += n
		if err != nil {
			return total, err
		}
	}
}

// encodeSuccess hand-encodes a PackStream-framed, chunked SUCCESS({})
// message, avoiding an import of internal/packstream from this _test
// package (pool_test only depends on internal/bolt's public surface).
func encodeSuccess() []byte {
	// tiny-struct(1 field), tag 0x70 ('p' SUCCESS), tiny-map(0 entries)
	body := []byte{0xB1, 0x70, 0xA0}
	out := make([]byte, 0, 2+len(body)+2)
	out = append(out, 0x00, byte(len(body)))
	out = append(out, body...)
	out = append(out, 0x00, 0x00)
	return out
}

func TestPool_AcquireRelease(t *testing.T) {
	p := pool.New(testDialer(t), pool.Config{MaxSize: 2})
	defer p.Close()

	ctx := context.Background()
	c1, err := p.Acquire(ctx)
	require.NoError(t, err)
	require.Equal(t, bolt.StateReady, c1.State())
	require.Equal(t, 1, p.Stats().InFlight)

	p.Release(c1)
	require.Equal(t, 1, p.Stats().Idle)
	require.Equal(t, 0, p.Stats().InFlight)

	c2, err := p.Acquire(ctx)
	require.NoError(t, err)
	require.Same(t, c1, c2, "a released Ready connection is reused before dialing a new one")
}

func TestPool_AcquireTimeout(t *testing.T) {
	p := pool.New(testDialer(t), pool.Config{MaxSize: 1})
	defer p.Close()

	ctx := context.Background()
	c1, err := p.Acquire(ctx)
	require.NoError(t, err)
	defer p.Release(c1)

	shortCtx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(shortCtx)
	require.ErrorIs(t, err, pool.ErrAcquireTimeout)
}

func TestPool_ReleaseWaitsWakesWaiter(t *testing.T) {
	p := pool.New(testDialer(t), pool.Config{MaxSize: 1})
	defer p.Close()

	ctx := context.Background()
	c1, err := p.Acquire(ctx)
	require.NoError(t, err)

	done := make(chan struct{})
	var got *bolt.Conn
	go func() {
		defer close(done)
		got, err = p.Acquire(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	p.Release(c1)

	select {
	case <-done:
		require.NoError(t, err)
		require.Same(t, c1, got)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was never woken")
	}
}
