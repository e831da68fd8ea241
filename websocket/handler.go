// Package websocket implements the RFC-6455 and legacy hixie-76
// WebSocket protocols over a hijacked Stream: the server-side
// handshake (both dialects), RFC-6455 frame read/write with masking,
// fragmentation and control-frame handling, the close handshake with
// its 5-second timer, and a client dialer that performs the RFC-6455
// opening handshake and runs the masked-outgoing side of the same
// framing loop.
//
// Grounded on tinycore::WebSocketHandler/WebSocketProtocol/
// WebSocketProtocol13/WebSocketClientConnection
// (asyncio/websocket.h/.cpp); badu-http carries no WebSocket support
// of its own, so this package is new code built directly on this
// module's netstream.Stream, reusing hdr.Store for header access and
// web.Connection's Hijack seam (httpserver.Connection.Hijack) to take
// the Stream over from the HTTP server once the handshake completes.
package websocket

import (
	"fmt"
	"strings"

	"github.com/duskline/netasync/hdr"
	"github.com/duskline/netasync/netstream"
	"github.com/duskline/netasync/web"
)

// Handler receives the lifecycle events of one WebSocket connection,
// matching tinycore::WebSocketHandler's on_open/on_message/on_pong/
// on_close virtuals.
type Handler interface {
	OnOpen(subprotocol string)
	OnMessage(data []byte, binary bool)
	OnPong(data []byte)
	OnClose()
}

// BaseHandler gives every hook a no-op default, the same texture
// web.BaseHandler uses for unimplemented HTTP verbs.
type BaseHandler struct{}

func (BaseHandler) OnOpen(string)        {}
func (BaseHandler) OnMessage([]byte, bool) {}
func (BaseHandler) OnPong([]byte)        {}
func (BaseHandler) OnClose()             {}

// Conn is the handle a Handler uses to talk back to its peer once a
// connection is open.
type Conn interface {
	WriteMessage(data []byte, binary bool)
	Ping(data []byte)
	Close()
}

// hijacker is implemented by httpserver.Connection; it is declared
// locally so this package does not import httpserver (which would
// create an import cycle, since httpserver depends on web and web's
// Context is what Upgrade is handed).
type hijacker interface {
	Hijack() *netstream.Stream
}

// Upgrade detects which WebSocket dialect ctx's request headers ask
// for, validates them, performs that dialect's handshake directly on
// the hijacked Stream (bypassing ctx's buffered response machinery
// entirely, per the spec's "detaches from HttpServer" requirement),
// and on success starts the frame read loop, delivering h's hooks,
// and returns a Conn for sending messages back. It never calls
// ctx.Finish — the Stream no longer belongs to the HTTP connection
// once this returns successfully.
func Upgrade(ctx *web.Context, h Handler, subprotocols ...string) (Conn, error) {
	hj, ok := ctx.Request.Conn.(hijacker)
	if !ok {
		return nil, fmt.Errorf("websocket: connection does not support hijacking")
	}
	headers := ctx.Request.Header

	if strings.EqualFold(headers.Get(hdr.UpgradeHeader), "websocket") &&
		strings.Contains(strings.ToLower(headers.Get(hdr.Connection)), "upgrade") &&
		headers.Get("Sec-WebSocket-Key") != "" {
		stream := hj.Hijack()
		return acceptRFC6455(stream, ctx.Request, headers, h, subprotocols)
	}

	if strings.EqualFold(headers.Get(hdr.UpgradeHeader), "websocket") &&
		strings.EqualFold(headers.Get(hdr.Connection), "upgrade") &&
		headers.Get("Sec-WebSocket-Key1") != "" && headers.Get("Sec-WebSocket-Key2") != "" {
		stream := hj.Hijack()
		return acceptHixie76(stream, ctx.Request, headers, h)
	}

	return nil, fmt.Errorf("websocket: missing or invalid WebSocket headers")
}
