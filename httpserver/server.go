// Package httpserver implements the HttpServer/Connection component:
// for each Stream an Acceptor hands it, it parses the request line and
// headers, decides how (or whether) to read a body, builds a
// web.Request, and dispatches it to a web.Application. It implements
// web.Connection over a netstream.Stream so the two packages never
// import one another directly.
//
// Grounded on tinycore::HTTPServer (asyncio/httpserver.h/.cpp) for the
// state machine and tinycore::HTTPConnection for the per-request
// read-headers/read-body/dispatch/write/finish sequence; badu-http has
// no equivalent of its own (it hands straight off to net/http's
// goroutine-per-connection Server), so this is new code in the
// teacher's file-per-concern style built on top of netstream.Stream
// and web.Application.
package httpserver

import (
	"net"

	"github.com/duskline/netasync/applog"
	"github.com/duskline/netasync/netstream"
	"github.com/duskline/netasync/reactor"
	"github.com/duskline/netasync/web"
)

// Server owns an Acceptor and dispatches every accepted Stream to a
// web.Application through a new Connection.
type Server struct {
	r        *reactor.Reactor
	app      *web.Application
	acceptor *netstream.Acceptor
	log      *applog.Logger

	trustProxyHeaders bool
}

// Option configures a Server at construction time.
type Option func(*Server)

// TrustProxyHeaders makes the server resolve a Request's Scheme, Host,
// and RemoteIP from X-Forwarded-Proto/X-Forwarded-Host/X-Forwarded-For
// when present, for use behind a reverse proxy. Off by default, since
// trusting these headers from an untrusted peer lets it spoof its own
// address.
func TrustProxyHeaders() Option {
	return func(s *Server) { s.trustProxyHeaders = true }
}

// New builds a Server bound to r and dispatching to app. Call Listen
// to start accepting connections.
func New(r *reactor.Reactor, app *web.Application, opts ...Option) *Server {
	s := &Server{
		r:   r,
		app: app,
		log: applog.Default().WithField("component", "httpserver"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Listen opens a TCP listener on addr and starts accepting
// connections, each handed off to a new Connection.
func (s *Server) Listen(addr string, acceptorOpts ...netstream.AcceptorOption) error {
	a, err := netstream.Listen(s.r, addr, s.onAccept, acceptorOpts...)
	if err != nil {
		return err
	}
	s.acceptor = a
	a.Start()
	return nil
}

// Addr returns the listener's bound address (useful for picking an
// ephemeral port in tests).
func (s *Server) Addr() net.Addr {
	if s.acceptor == nil {
		return nil
	}
	return s.acceptor.Addr()
}

// Stop closes the listener; in-flight connections run to completion.
func (s *Server) Stop() {
	if s.acceptor != nil {
		s.acceptor.Stop()
	}
}

func (s *Server) onAccept(stream *netstream.Stream) {
	c := newConnection(stream, s.app, s.trustProxyHeaders, s.log)
	c.serve()
}
