package websocket

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"crypto/tls"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/duskline/netasync/hdr"
	"github.com/duskline/netasync/netstream"
	"github.com/duskline/netasync/reactor"
	"github.com/duskline/netasync/url"
)

// DialOptions configures Connect; ValidateCert applies only when the
// URL is wss://, and when false the server certificate is not verified.
type DialOptions struct {
	Origin  string
	Headers *hdr.Store
	ValidateCert bool
}

// Connect implements the client half of tinycore::WebSocketConnect:
// it opens a Stream to urlStr's host, writes an RFC-6455 opening
// handshake with a random Sec-WebSocket-Key, verifies
// Sec-WebSocket-Accept, and on success invokes cb with a Conn whose
// outgoing frames are masked (client-to-server frames are always
// masked per RFC 6455) and whose incoming frames are expected
// unmasked, since a compliant server never masks its frames.
func Connect(r *reactor.Reactor, urlStr string, h Handler, opts DialOptions, cb func(Conn, error)) {
	u, err := url.Parse(urlStr)
	if err != nil {
		cb(nil, err)
		return
	}

	scheme := u.Scheme
	host, port, err := clientHostPort(u, scheme)
	if err != nil {
		cb(nil, err)
		return
	}

	connOpts := netstream.ConnectOptions{}
	if scheme == "wss" {
		connOpts.TLSConfig = &tls.Config{InsecureSkipVerify: !opts.ValidateCert}
	}

	netstream.Connect(r, host, port, connOpts, func(stream *netstream.Stream, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		performClientHandshake(stream, u, h, opts, cb)
	})
}

func clientHostPort(u *url.URL, scheme string) (string, int, error) {
	host := u.Host
	port := 80
	if scheme == "wss" {
		port = 443
	}
	if i := strings.LastIndexByte(host, ':'); i >= 0 {
		p, err := strconv.Atoi(host[i+1:])
		if err != nil {
			return "", 0, fmt.Errorf("websocket: invalid port in %q", host)
		}
		return host[:i], p, nil
	}
	return host, port, nil
}

func performClientHandshake(stream *netstream.Stream, u *url.URL, h Handler, opts DialOptions, cb func(Conn, error)) {
	keyBytes := make([]byte, 16)
	rand.Read(keyBytes)
	key := base64.StdEncoding.EncodeToString(keyBytes)

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}

	var b strings.Builder
	b.WriteString("GET " + path + " HTTP/1.1\r\n")
	b.WriteString("Host: " + u.Host + "\r\n")
	b.WriteString("Upgrade: websocket\r\n")
	b.WriteString("Connection: Upgrade\r\n")
	b.WriteString("Sec-WebSocket-Key: " + key + "\r\n")
	b.WriteString("Sec-WebSocket-Version: 13\r\n")
	if opts.Origin != "" {
		b.WriteString("Origin: " + opts.Origin + "\r\n")
	}
	if opts.Headers != nil {
		opts.Headers.Each(func(name, value string) {
			b.WriteString(name + ": " + value + "\r\n")
		})
	}
	b.WriteString("\r\n")

	stream.Write([]byte(b.String()), func() {
		stream.ReadUntil("\r\n\r\n", func(head []byte) {
			onClientHandshakeResponse(stream, head, key, h, cb)
		})
	})
}

func onClientHandshakeResponse(stream *netstream.Stream, head []byte, key string, h Handler, cb func(Conn, error)) {
	lineEnd := bytes.Index(head, []byte("\r\n"))
	if lineEnd < 0 || !strings.Contains(string(head[:lineEnd]), "101") {
		cb(nil, fmt.Errorf("websocket: handshake rejected: %q", string(head)))
		stream.Close()
		return
	}

	hr := hdr.NewHeaderReader(bufio.NewReader(bytes.NewReader(head[lineEnd+2:])))
	rawHeaders, err := hr.ReadHeader()
	if err != nil {
		cb(nil, fmt.Errorf("websocket: reading handshake headers: %w", err))
		stream.Close()
		return
	}
	headers := hdr.FromHeader(rawHeaders)

	want := computeAcceptValue(key)
	if headers.Get("Sec-WebSocket-Accept") != want {
		cb(nil, fmt.Errorf("websocket: invalid Sec-WebSocket-Accept"))
		stream.Close()
		return
	}

	conn := &clientConn{stream: stream, handler: h}
	stream.SetCloseCallback(func() {
		conn.clientTerminated = true
		h.OnClose()
	})
	h.OnOpen(headers.Get("Sec-WebSocket-Protocol"))
	cb(conn, nil)
	conn.receiveFrame()
}

// clientConn is the client side of the RFC-6455 loop: outgoing frames
// are masked (writeFrame always supplies a fresh random mask),
// incoming frames are read the same way the server reads them, since
// framing is symmetric beyond the masking bit.
type clientConn struct {
	stream  *netstream.Stream
	handler Handler

	clientTerminated bool
	serverTerminated bool

	fragBuf    []byte
	fragOpcode byte
}

func (c *clientConn) receiveFrame() {
	c.stream.ReadBytes(2, c.onFrameStart, nil)
}

func (c *clientConn) onFrameStart(data []byte) {
	fin := data[0]&0x80 != 0
	opcode := data[0] & 0x0F
	len7 := data[1] & 0x7F

	switch {
	case len7 == 126:
		c.stream.ReadBytes(2, func(ext []byte) {
			c.readPayload(fin, opcode, uint64(binary.BigEndian.Uint16(ext)))
		}, nil)
	case len7 == 127:
		c.stream.ReadBytes(8, func(ext []byte) {
			c.readPayload(fin, opcode, binary.BigEndian.Uint64(ext))
		}, nil)
	default:
		c.readPayload(fin, opcode, uint64(len7))
	}
}

func (c *clientConn) readPayload(fin bool, opcode byte, length uint64) {
	if length == 0 {
		c.onPayload(fin, opcode, nil)
		return
	}
	c.stream.ReadBytes(int(length), func(data []byte) {
		c.onPayload(fin, opcode, data)
	}, nil)
}

func (c *clientConn) onPayload(fin bool, opcode byte, data []byte) {
	switch opcode {
	case opClose:
		c.clientTerminated = true
		if !c.serverTerminated {
			c.writeFrame(true, opClose, nil)
		}
		c.stream.Close()
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

func (c *clientConn) WriteMessage(data []byte, binary bool) {
	op := opText
	if binary {
		op = opBinary
	}
	c.writeFrame(true, op, data)
}

func (c *clientConn) Ping(data []byte) {
	c.writeFrame(true, opPing, data)
}

func (c *clientConn) Close() {
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

func (c *clientConn) writeFrame(fin bool, opcode byte, data []byte) {
	var mask [4]byte
	rand.Read(mask[:])
	c.stream.Write(encodeFrame(fin, opcode, data, mask[:]), nil)
}

