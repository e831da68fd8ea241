package netstream

import (
	"crypto/tls"
	"net"
	"strconv"
	"time"

	"github.com/duskline/netasync/reactor"
)

// ConnectOptions configures an outbound dial.
type ConnectOptions struct {
	// TLSConfig, if non-nil, upgrades the connection to TLS once the
	// TCP handshake completes.
	TLSConfig *tls.Config
	// Timeout bounds the whole dial (TCP plus, if requested, TLS).
	// Zero means no timeout.
	Timeout time.Duration
}

// Connect dials host:port on a background goroutine and invokes cb on
// the Reactor goroutine with the resulting Stream, or cb(nil, err) on
// failure — mirroring tinycore's connect(host, port, cb) contract: cb
// fires at most once, and a failed dial never produces a close-callback
// invocation since no Stream was ever constructed.
func Connect(r *reactor.Reactor, host string, port int, opts ConnectOptions, cb func(*Stream, error)) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	go func() {
		dialer := net.Dialer{Timeout: opts.Timeout}
		conn, err := dialer.Dial("tcp", addr)
		if err != nil {
			r.AddCallback(func() { cb(nil, err) })
			return
		}
		if opts.TLSConfig != nil {
			tlsConn := tls.Client(conn, opts.TLSConfig)
			if opts.Timeout > 0 {
				tlsConn.SetDeadline(time.Now().Add(opts.Timeout))
			}
			if err := tlsConn.Handshake(); err != nil {
				conn.Close()
				r.AddCallback(func() { cb(nil, err) })
				return
			}
			if opts.Timeout > 0 {
				tlsConn.SetDeadline(time.Time{})
			}
			conn = tlsConn
		}
		r.AddCallback(func() {
			cb(New(r, conn), nil)
		})
	}()
}
