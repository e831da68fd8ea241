package websocket

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"strings"
	"time"

	"github.com/duskline/netasync/applog"
	"github.com/duskline/netasync/hdr"
	"github.com/duskline/netasync/netstream"
	"github.com/duskline/netasync/web"
)

const websocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

const (
	opContinuation byte = 0x0
	opText         byte = 0x1
	opBinary       byte = 0x2
	opClose        byte = 0x8
	opPing         byte = 0x9
	opPong         byte = 0xA
)

const closeTimeout = 5 * time.Second

// computeAcceptValue implements tinycore::WebSocketProtocol13::computeAcceptValue:
// base64(sha1(key + magicGUID)).
func computeAcceptValue(key string) string {
	sum := sha1.Sum([]byte(key + websocketGUID))
	return base64.StdEncoding.EncodeToString(sum[:])
}

func selectSubprotocol(requested string, offered []string) string {
	if requested == "" || len(offered) == 0 {
		return ""
	}
	for _, want := range strings.Split(requested, ",") {
		want = strings.TrimSpace(want)
		for _, have := range offered {
			if want == have {
				return want
			}
		}
	}
	return ""
}

// acceptRFC6455 writes the §4.10 RFC-6455 handshake response and
// starts the frame loop, server side (reads masked frames, writes
// unmasked).
func acceptRFC6455(stream *netstream.Stream, req *web.Request, headers *hdr.Store, h Handler, offered []string) (Conn, error) {
	accept := computeAcceptValue(headers.Get("Sec-WebSocket-Key"))
	subprotocol := selectSubprotocol(headers.Get("Sec-WebSocket-Protocol"), offered)

	var b strings.Builder
	b.WriteString("HTTP/1.1 101 Switching Protocols\r\n")
	b.WriteString("Upgrade: websocket\r\n")
	b.WriteString("Connection: Upgrade\r\n")
	b.WriteString("Sec-WebSocket-Accept: " + accept + "\r\n")
	if subprotocol != "" {
		b.WriteString("Sec-WebSocket-Protocol: " + subprotocol + "\r\n")
	}
	b.WriteString("\r\n")

	conn := &serverConn{stream: stream, handler: h, log: applog.Default().WithField("component", "websocket")}
	stream.Write([]byte(b.String()), func() {
		h.OnOpen(subprotocol)
		conn.receiveFrame()
	})
	stream.SetCloseCallback(func() {
		conn.clientTerminated = true
		h.OnClose()
	})
	return conn, nil
}

// serverConn is the server-side RFC-6455 protocol state machine,
// grounded on tinycore::WebSocketProtocol13: it reads two header
// bytes, an optional extended length, an optional 4-byte mask, then
// the payload, accumulating fragments until FIN, and dispatches
// control opcodes inline.
type serverConn struct {
	stream  *netstream.Stream
	handler Handler

	clientTerminated bool
	serverTerminated bool

	fragBuf    []byte
	fragOpcode byte

	log *applog.Logger
}

func (c *serverConn) receiveFrame() {
	c.stream.ReadBytes(2, c.onFrameStart, nil)
}

func (c *serverConn) onFrameStart(data []byte) {
	fin := data[0]&0x80 != 0
	opcode := data[0] & 0x0F
	masked := data[1]&0x80 != 0
	len7 := data[1] & 0x7F

	isControl := opcode >= 0x8
	if isControl && !fin {
		c.protocolError("control frame must not be fragmented")
		return
	}

	switch {
	case len7 == 126:
		c.stream.ReadBytes(2, func(ext []byte) {
			c.onLengthRead(fin, opcode, masked, uint64(binary.BigEndian.Uint16(ext)))
		}, nil)
	case len7 == 127:
		c.stream.ReadBytes(8, func(ext []byte) {
			c.onLengthRead(fin, opcode, masked, binary.BigEndian.Uint64(ext))
		}, nil)
	default:
		c.onLengthRead(fin, opcode, masked, uint64(len7))
	}
}

func (c *serverConn) onLengthRead(fin bool, opcode byte, masked bool, length uint64) {
	if masked {
		c.stream.ReadBytes(4, func(maskKey []byte) {
			c.readPayload(fin, opcode, length, maskKey)
		}, nil)
		return
	}
	c.readPayload(fin, opcode, length, nil)
}

func (c *serverConn) readPayload(fin bool, opcode byte, length uint64, maskKey []byte) {
	if length == 0 {
		c.onPayload(fin, opcode, nil, maskKey)
		return
	}
	c.stream.ReadBytes(int(length), func(data []byte) {
		c.onPayload(fin, opcode, data, maskKey)
	}, nil)
}

func (c *serverConn) onPayload(fin bool, opcode byte, data []byte, maskKey []byte) {
	if maskKey != nil {
		applyMask(maskKey, data)
	}

	switch opcode {
	case opClose:
		c.handleClose()
		return
	case opPing:
		c.writeFrame(true, opPong, data)
		c.receiveFrame()
		return
	case opPong:
		c.handler.OnPong(data)
		c.receiveFrame()
		return
	}

	if opcode != opContinuation {
		c.fragOpcode = opcode
		c.fragBuf = append(c.fragBuf[:0], data...)
	} else {
		c.fragBuf = append(c.fragBuf, data...)
	}

	if fin {
		msg := c.fragBuf
		c.fragBuf = nil
		c.handler.OnMessage(msg, c.fragOpcode == opBinary)
	}
	if !c.clientTerminated {
		c.receiveFrame()
	}
}

func (c *serverConn) protocolError(reason string) {
	if c.log != nil {
		c.log.Warn("websocket protocol error: " + reason)
	}
	c.serverTerminated = true
	c.stream.Close()
}

// handleClose implements §4.10's close rule: echo a close frame and
// terminate, matching tinycore's WebSocketProtocol::abort when the
// peer closes first.
func (c *serverConn) handleClose() {
	c.clientTerminated = true
	if c.serverTerminated {
		c.stream.Close()
		return
	}
	c.writeFrame(true, opClose, nil)
	c.stream.Close()
}

// Close implements the Conn interface: send a close frame, start a
// 5-second timer, and hard-close on expiry if the peer never replies.
func (c *serverConn) Close() {
	if c.serverTerminated {
		return
	}
	c.serverTerminated = true
	c.writeFrame(true, opClose, nil)
	r := c.stream.Reactor()
	handle := r.AddTimeoutAfter(closeTimeout, func() {
		c.stream.Close()
	})
	c.stream.SetCloseCallback(func() {
		r.RemoveTimeout(handle)
		c.handler.OnClose()
	})
}

func (c *serverConn) WriteMessage(data []byte, binary bool) {
	op := opText
	if binary {
		op = opBinary
	}
	c.writeFrame(true, op, data)
}

func (c *serverConn) Ping(data []byte) {
	c.writeFrame(true, opPing, data)
}

// writeFrame implements §4.10's "Writing a frame" rule for the server
// side: unmasked payload.
func (c *serverConn) writeFrame(fin bool, opcode byte, data []byte) {
	c.stream.Write(encodeFrame(fin, opcode, data, nil), nil)
}

func encodeFrame(fin bool, opcode byte, data []byte, mask []byte) []byte {
	var head [10]byte
	b0 := opcode
	if fin {
		b0 |= 0x80
	}
	head[0] = b0

	n := len(data)
	var hdrLen int
	switch {
	case n < 126:
		head[1] = byte(n)
		hdrLen = 2
	case n <= 0xFFFF:
		head[1] = 126
		binary.BigEndian.PutUint16(head[2:4], uint16(n))
		hdrLen = 4
	default:
		head[1] = 127
		binary.BigEndian.PutUint64(head[2:10], uint64(n))
		hdrLen = 10
	}
	if mask != nil {
		head[1] |= 0x80
	}

	out := make([]byte, 0, hdrLen+4+n)
	out = append(out, head[:hdrLen]...)
	if mask != nil {
		out = append(out, mask...)
		masked := make([]byte, n)
		copy(masked, data)
		applyMask(mask, masked)
		out = append(out, masked...)
	} else {
		out = append(out, data...)
	}
	return out
}

func applyMask(mask []byte, data []byte) {
	for i := range data {
		data[i] ^= mask[i%4]
	}
}
