// Package driver wires config.Endpoint connection details into the
// pool.Dialer the rest of the stack expects: a TCP (optionally TLS) dial
// to the endpoint followed by the Bolt handshake/HELLO/LOGON sequence.
package driver

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"

	"go.uber.org/zap"

	"github.com/cyphergraph/go-cypher-bolt/config"
	"github.com/cyphergraph/go-cypher-bolt/internal/bolt"
)

// UserAgent identifies this driver to the server in HELLO, following the
// "<product>/<version>" convention the Bolt protocol expects.
const UserAgent = "go-cypher-bolt/0.1"

// Dialer returns a pool.Dialer (a context.Context -> *bolt.Conn func)
// that connects to ep: a plain TCP dial, or a TLS dial when ep.Secure is
// set (ep.VerifyCert false relaxes certificate verification for the
// self-signed "+ssc" scheme variant, spec.md §6).
func Dialer(ep config.Endpoint, logger *zap.Logger) func(ctx context.Context) (*bolt.Conn, error) {
	addr := net.JoinHostPort(ep.Host, strconv.Itoa(ep.Port))
	return func(ctx context.Context) (*bolt.Conn, error) {
		var netDialer net.Dialer
		rawConn, err := netDialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("driver: dialing %s: %w", addr, err)
		}

		var conn net.Conn = rawConn
		if ep.Secure {
			conn = tls.Client(rawConn, &tls.Config{
				ServerName:         ep.Host,
				InsecureSkipVerify: !ep.VerifyCert, //nolint:gosec // explicit "+ssc" opt-in, spec.md §6
				MinVersion:         tls.VersionTLS12,
			})
		}

		return bolt.Connect(conn, bolt.ConnectOptions{
			UserAgent:   UserAgent,
			Principal:   ep.Username,
			Credentials: ep.Password,
			Routing:     map[string]any{"address": addr},
			Logger:      logger,
		})
	}
}
