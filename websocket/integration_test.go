package websocket_test

// This file dials our own RFC-6455 server implementation with
// github.com/gorilla/websocket acting as a known-good independent
// peer — SPEC_FULL.md's DOMAIN STACK table earmarks gorilla/websocket
// for exactly this: checking the handshake and framing this package
// implements against a second, widely-used implementation rather than
// reimplementing the protocol with it.

import (
	"fmt"
	"testing"
	"time"

	"github.com/duskline/netasync/httpserver"
	"github.com/duskline/netasync/reactor"
	"github.com/duskline/netasync/web"
	"github.com/duskline/netasync/websocket"
	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// echoHandler delivers every inbound message back to the same peer
// unchanged, matching §8 scenario 6's "WebSocket echo".
type echoHandler struct {
	websocket.BaseHandler
	conn websocket.Conn
}

func (h *echoHandler) OnMessage(data []byte, binary bool) {
	h.conn.WriteMessage(data, binary)
}

type echoRoute struct {
	web.BaseHandler
}

func (*echoRoute) Get(ctx *web.Context) {
	h := &echoHandler{}
	conn, err := websocket.Upgrade(ctx, h)
	if err != nil {
		ctx.SendError(400, err)
		return
	}
	h.conn = conn
}

func TestRFC6455EchoAgainstGorillaClient(t *testing.T) {
	app := web.NewApplication("", nil)
	spec, err := web.NewURLSpec("/echo", func() web.Handler { return &echoRoute{} }, "echo", nil)
	require.NoError(t, err)
	require.NoError(t, app.AddHandlers(".*$", []*web.URLSpec{spec}))

	r := reactor.New()
	srv := httpserver.New(r, app)
	require.NoError(t, srv.Listen("127.0.0.1:0"))
	defer srv.Stop()

	go r.Start()
	defer r.Stop()

	// No wait for the acceptor's background goroutine: the listener
	// itself is already bound synchronously by Listen above, and the
	// accept backlog absorbs the handshake until it starts accepting.
	url := fmt.Sprintf("ws://%s/echo", srv.Addr().String())

	conn, resp, err := gorillaws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Equal(t, 101, resp.StatusCode)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(gorillaws.TextMessage, []byte("Hello")))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	msgType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, gorillaws.TextMessage, msgType)
	require.Equal(t, "Hello", string(data))
}

func TestRFC6455EchoBinaryAllBytes(t *testing.T) {
	app := web.NewApplication("", nil)
	spec, err := web.NewURLSpec("/echo", func() web.Handler { return &echoRoute{} }, "echo", nil)
	require.NoError(t, err)
	require.NoError(t, app.AddHandlers(".*$", []*web.URLSpec{spec}))

	r := reactor.New()
	srv := httpserver.New(r, app)
	require.NoError(t, srv.Listen("127.0.0.1:0"))
	defer srv.Stop()

	go r.Start()
	defer r.Stop()

	url := fmt.Sprintf("ws://%s/echo", srv.Addr().String())
	conn, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	payload := make([]byte, 256)
	for i := range payload {
		payload[i] = byte(i)
	}
	require.NoError(t, conn.WriteMessage(gorillaws.BinaryMessage, payload))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	msgType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, gorillaws.BinaryMessage, msgType)
	require.Equal(t, payload, data)
}
