package netstream

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/duskline/netasync/applog"
	"github.com/duskline/netasync/reactor"
	"golang.org/x/time/rate"
)

// tcpKeepAliveListener enables TCP keep-alives on every accepted
// connection, adapted directly from badu-http's tcpKeepAliveListener
// (tcp_keep_alive_listener.go) — same three-minute period.
type tcpKeepAliveListener struct {
	*net.TCPListener
}

func (l tcpKeepAliveListener) Accept() (net.Conn, error) {
	conn, err := l.AcceptTCP()
	if err != nil {
		return nil, err
	}
	conn.SetKeepAlive(true)
	conn.SetKeepAlivePeriod(3 * time.Minute)
	return conn, nil
}

// Acceptor drives a net.Listener's Accept loop from a background
// goroutine, handing each accepted connection to the Reactor as a new
// Stream. A token-bucket limiter guards the single-threaded Reactor
// from an accept storm driving unbounded Stream creation.
type Acceptor struct {
	ln      net.Listener
	r       *reactor.Reactor
	log     *applog.Logger
	limiter *rate.Limiter
	tlsConf *tls.Config

	onAccept func(*Stream)
	onError  func(error)

	stopCh chan struct{}
}

// AcceptorOption configures an Acceptor at construction time.
type AcceptorOption func(*Acceptor)

// WithAcceptRateLimit bounds accepts to at most rps per second with a
// burst of burst, backed by golang.org/x/time/rate.
func WithAcceptRateLimit(rps float64, burst int) AcceptorOption {
	return func(a *Acceptor) {
		a.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithTLS wraps every accepted connection in a server-side TLS
// handshake using conf.
func WithTLS(conf *tls.Config) AcceptorOption {
	return func(a *Acceptor) { a.tlsConf = conf }
}

// Listen opens a TCP listener on addr and returns an Acceptor bound to
// r. Call Start to begin accepting.
func Listen(r *reactor.Reactor, addr string, onAccept func(*Stream), opts ...AcceptorOption) (*Acceptor, error) {
	tcpLn, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	ln := tcpKeepAliveListener{tcpLn.(*net.TCPListener)}
	a := &Acceptor{
		ln:       ln,
		r:        r,
		log:      applog.Default().WithField("component", "acceptor"),
		onAccept: onAccept,
		onError:  func(error) {},
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Addr returns the listener's bound address, useful for picking an
// ephemeral port in tests.
func (a *Acceptor) Addr() net.Addr { return a.ln.Addr() }

// OnError installs a handler for terminal Accept errors.
func (a *Acceptor) OnError(cb func(error)) { a.onError = cb }

// Start launches the background accept loop. Accepted connections are
// handed to onAccept on the Reactor goroutine via AddCallback, so
// handler code never has to reason about the accept goroutine itself.
func (a *Acceptor) Start() {
	go a.acceptLoop()
}

// Stop closes the listener, unblocking the accept goroutine.
func (a *Acceptor) Stop() {
	close(a.stopCh)
	a.ln.Close()
}

func (a *Acceptor) acceptLoop() {
	for {
		conn, err := a.ln.Accept()
		if err != nil {
			select {
			case <-a.stopCh:
				return
			default:
			}
			a.r.AddCallback(func() { a.onError(err) })
			return
		}
		if a.limiter != nil {
			if err := a.limiter.Wait(context.Background()); err != nil {
				conn.Close()
				continue
			}
		}
		a.r.AddCallback(func() {
			a.handleAccepted(conn)
		})
	}
}

func (a *Acceptor) handleAccepted(conn net.Conn) {
	if a.tlsConf != nil {
		conn = tls.Server(conn, a.tlsConf)
	}
	s := New(a.r, conn)
	a.onAccept(s)
}
