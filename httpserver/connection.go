package httpserver

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/duskline/netasync/applog"
	"github.com/duskline/netasync/hdr"
	"github.com/duskline/netasync/netstream"
	"github.com/duskline/netasync/url"
	"github.com/duskline/netasync/web"
)

type connState int

const (
	stateReadingHeaders connState = iota
	stateReadingBody
	stateDispatching
	stateWriting
	stateFinishing
	stateKeepAliveIdle
	stateClosed
)

// Connection is the per-accepted-Stream state machine: reading-
// headers -> reading-body -> dispatching -> writing -> finishing,
// looping back to reading-headers on keep-alive. It implements
// web.Connection so web.Context.Flush/Finish can write to and close
// the underlying Stream without web importing netstream.
//
// Grounded on tinycore::HTTPConnection (asyncio/httpserver.cpp): the
// headers-then-body read sequence, the Expect:100-continue
// intermediate response, and the HTTP/1.1-vs-1.0 keep-alive decision
// in _finishRequest.
type Connection struct {
	stream *netstream.Stream
	app    *web.Application
	log    *applog.Logger

	trustProxyHeaders bool

	state connState

	req *web.Request

	// set from the first chunk of a response's bytes (status line +
	// headers), so Finish can apply the spec's HTTP/1.0 keep-alive
	// rule ("stays alive only if ... the response is framed") without
	// web.Context needing to expose more than the Connection interface
	// already promises.
	respSeen          bool
	respHasLength     bool
	respMethodWasHead bool
}

func newConnection(stream *netstream.Stream, app *web.Application, trustProxyHeaders bool, log *applog.Logger) *Connection {
	return &Connection{
		stream:            stream,
		app:               app,
		log:               log,
		trustProxyHeaders: trustProxyHeaders,
	}
}

func (c *Connection) serve() {
	c.readHeaders()
}

func (c *Connection) readHeaders() {
	c.state = stateReadingHeaders
	c.respSeen = false
	c.stream.ReadUntil("\r\n\r\n", c.onHeadersRead)
}

func (c *Connection) onHeadersRead(data []byte) {
	req, err := c.parseRequest(data)
	if err != nil {
		c.log.Warnf("malformed request: %v", err)
		c.stream.Close()
		return
	}
	c.req = req
	c.decideBody()
}

// parseRequest splits the "\r\n\r\n"-terminated block ReadUntil
// delivered into a request line and a header block, matching
// tinycore's HTTPConnection::_onHeaders (three-token request line,
// version starting with "HTTP/").
func (c *Connection) parseRequest(data []byte) (*web.Request, error) {
	lineEnd := bytes.Index(data, []byte("\r\n"))
	if lineEnd < 0 {
		return nil, fmt.Errorf("httpserver: no request line")
	}
	line := string(data[:lineEnd])
	parts := strings.Fields(line)
	if len(parts) != 3 {
		return nil, fmt.Errorf("httpserver: malformed request line %q", line)
	}
	method, uri, version := parts[0], parts[1], parts[2]
	if !strings.HasPrefix(version, "HTTP/") {
		return nil, fmt.Errorf("httpserver: unsupported version %q", version)
	}

	hr := hdr.NewHeaderReader(bufio.NewReader(bytes.NewReader(data[lineEnd+2:])))
	rawHeaders, err := hr.ReadHeader()
	if err != nil {
		return nil, fmt.Errorf("httpserver: reading headers: %w", err)
	}
	store := hdr.FromHeader(rawHeaders)

	path, query := uri, ""
	if i := strings.IndexByte(uri, '?'); i >= 0 {
		path, query = uri[:i], uri[i+1:]
	}

	queryArgs := map[string][]string{}
	if vv, err := url.ParseQuery(query); err == nil {
		for k, v := range vv {
			queryArgs[k] = v
		}
	}

	req := &web.Request{
		Method:         method,
		URI:            uri,
		Path:           path,
		Query:          query,
		Version:        version,
		Header:         store,
		RemoteIP:       c.stream.RemoteAddr(),
		Scheme:         c.scheme(),
		Host:           store.Get(hdr.Host),
		QueryArguments: queryArgs,
		BodyArguments:  map[string][]string{},
		Files:          map[string][]*web.FormFile{},
		StartTime:      nowOrStamp(),
		Conn:           c,
	}
	c.applyProxyHeaders(req)
	return req, nil
}

// dispatch hands the fully-parsed (and, for form/multipart bodies,
// fully-decoded) Request to the Application. ServeRequest drives the
// handler synchronously up to its first suspension point; whatever
// happens after that runs via callbacks the handler itself registered,
// eventually calling Context.Finish, which calls back into this
// Connection's Finish.
func (c *Connection) dispatch() {
	c.state = stateDispatching
	c.app.ServeRequest(c.req)
}

func (c *Connection) scheme() string {
	if c.stream.IsTLS() {
		return "https"
	}
	return "http"
}

// applyProxyHeaders overrides Scheme/Host/RemoteIP from X-Forwarded-*
// headers when the server was built with TrustProxyHeaders.
func (c *Connection) applyProxyHeaders(req *web.Request) {
	if !c.trustProxyHeaders {
		return
	}
	if proto := req.Header.Get("X-Forwarded-Proto"); proto != "" {
		req.Scheme = proto
	}
	if host := req.Header.Get("X-Forwarded-Host"); host != "" {
		req.Host = host
	}
	if xff := req.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			xff = xff[:i]
		}
		req.RemoteIP = strings.TrimSpace(xff)
	}
}

// Write implements web.Connection. The response head (status line +
// headers) arrives prepended to the first chunk; it is inspected once
// so Finish can apply the HTTP/1.0 keep-alive rule.
func (c *Connection) Write(data []byte, cb func()) {
	c.state = stateWriting
	if !c.respSeen {
		c.noteResponseHead(data)
	}
	c.stream.Write(data, cb)
}

func (c *Connection) noteResponseHead(data []byte) {
	c.respSeen = true
	end := bytes.Index(data, []byte("\r\n\r\n"))
	if end < 0 {
		end = len(data)
	}
	lower := strings.ToLower(string(data[:end]))
	c.respHasLength = strings.Contains(lower, "\r\ncontent-length:") || strings.HasPrefix(lower, "content-length:")
	c.respMethodWasHead = c.req != nil && c.req.Method == "HEAD"
}

// Finish implements web.Connection: decides keep-alive per the
// request's HTTP version and the observed response framing, then
// either loops back to reading the next request's headers or closes
// the Stream.
func (c *Connection) Finish() {
	c.state = stateFinishing
	if c.keepAlive() {
		c.state = stateKeepAliveIdle
		c.readHeaders()
		return
	}
	c.state = stateClosed
	c.stream.Close()
}

// keepAlive implements the spec's rule: HTTP/1.1 stays alive unless
// Connection: close; HTTP/1.0 stays alive only if Connection:
// Keep-Alive was sent and the response is framed (Content-Length, or
// the request was HEAD/GET).
func (c *Connection) keepAlive() bool {
	if c.req == nil {
		return false
	}
	connHeader := strings.ToLower(c.req.Header.Get(hdr.Connection))
	if c.req.Version == "HTTP/1.1" {
		return connHeader != "close"
	}
	if connHeader != "keep-alive" {
		return false
	}
	framed := c.respHasLength || c.respMethodWasHead || c.req.Method == "GET"
	return framed
}

// SetCloseCallback implements web.Connection.
func (c *Connection) SetCloseCallback(cb func()) { c.stream.SetCloseCallback(cb) }

// RemoteAddr implements web.Connection.
func (c *Connection) RemoteAddr() string { return c.stream.RemoteAddr() }

// Hijack releases the underlying Stream to a caller that wants to run
// its own framing protocol over it (the WebSocket handshake). Once
// hijacked, this Connection's state machine never reads or writes the
// Stream again; the caller owns it exclusively.
func (c *Connection) Hijack() *netstream.Stream {
	c.state = stateClosed
	return c.stream
}

// nowOrStamp is split out only so a future deterministic test clock
// can replace it without touching every call site.
func nowOrStamp() (t time.Time) {
	return time.Now()
}
