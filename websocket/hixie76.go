package websocket

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/duskline/netasync/hdr"
	"github.com/duskline/netasync/netstream"
	"github.com/duskline/netasync/web"
)

// calculatePart implements tinycore::WebSocketRequest::calculatePart:
// the digits of key form N, the spaces form S, part = big-endian
// uint32(N/S).
func calculatePart(key string) ([4]byte, error) {
	var digits strings.Builder
	spaces := 0
	for _, r := range key {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case r == ' ':
			spaces++
		}
	}
	if digits.Len() == 0 || spaces == 0 {
		return [4]byte{}, fmt.Errorf("websocket: invalid hixie-76 key %q", key)
	}
	n, err := strconv.ParseUint(digits.String(), 10, 64)
	if err != nil {
		return [4]byte{}, err
	}
	var out [4]byte
	binary.BigEndian.PutUint32(out[:], uint32(n/uint64(spaces)))
	return out, nil
}

// acceptHixie76 implements §4.10's legacy handshake: validate headers,
// write the 101 envelope naming Sec-WebSocket-Origin/-Location, read
// the 8-byte challenge, and reply with the MD5 digest of part1 ‖
// part2 ‖ challenge.
func acceptHixie76(stream *netstream.Stream, req *web.Request, headers *hdr.Store, h Handler) (Conn, error) {
	origin := headers.Get("Origin")
	key1 := headers.Get("Sec-WebSocket-Key1")
	key2 := headers.Get("Sec-WebSocket-Key2")
	if origin == "" || headers.Get(hdr.Host) == "" || key1 == "" || key2 == "" {
		return nil, fmt.Errorf("websocket: missing hixie-76 headers")
	}

	part1, err := calculatePart(key1)
	if err != nil {
		return nil, err
	}
	part2, err := calculatePart(key2)
	if err != nil {
		return nil, err
	}

	scheme := "ws"
	if req.Scheme == "https" {
		scheme = "wss"
	}

	var b strings.Builder
	b.WriteString("HTTP/1.1 101 Web Socket Protocol Handshake\r\n")
	b.WriteString("Upgrade: WebSocket\r\n")
	b.WriteString("Connection: Upgrade\r\n")
	b.WriteString("Sec-WebSocket-Origin: " + origin + "\r\n")
	b.WriteString("Sec-WebSocket-Location: " + scheme + "://" + headers.Get(hdr.Host) + req.URI + "\r\n")
	b.WriteString("\r\n")

	conn := &legacyConn{stream: stream, handler: h}
	stream.Write([]byte(b.String()), func() {
		stream.ReadBytes(8, func(challenge []byte) {
			sum := md5.New()
			sum.Write(part1[:])
			sum.Write(part2[:])
			sum.Write(challenge)
			digest := sum.Sum(nil)

			stream.Write(digest, func() {
				h.OnOpen("")
				conn.receiveMessage()
			})
			stream.SetCloseCallback(func() {
				conn.clientTerminated = true
				h.OnClose()
			})
		}, nil)
	})
	return conn, nil
}

// legacyConn implements the hixie-76 framing loop: 0x00-prefixed,
// 0xFF-terminated text frames, and a 0xFF/0x00 close frame,
// grounded on tinycore::WebSocketHandler::onFrameType/onEndDelimiter.
type legacyConn struct {
	stream  *netstream.Stream
	handler Handler

	clientTerminated bool
	serverTerminated bool
}

func (c *legacyConn) receiveMessage() {
	c.stream.ReadBytes(1, c.onFrameType, nil)
}

func (c *legacyConn) onFrameType(data []byte) {
	switch data[0] {
	case 0x00:
		c.stream.ReadUntil("\xff", c.onEndDelimiter)
	case 0xff:
		c.stream.ReadBytes(1, c.onLengthIndicator, nil)
	default:
		c.stream.Close()
	}
}

func (c *legacyConn) onEndDelimiter(data []byte) {
	if !c.clientTerminated {
		msg := data
		if len(msg) > 0 {
			msg = msg[:len(msg)-1]
		}
		c.handler.OnMessage(msg, false)
	}
	if !c.clientTerminated {
		c.receiveMessage()
	}
}

func (c *legacyConn) onLengthIndicator(data []byte) {
	if data[0] != 0x00 {
		c.stream.Close()
		return
	}
	c.clientTerminated = true
	c.Close()
}

func (c *legacyConn) WriteMessage(data []byte, binary bool) {
	buf := make([]byte, 0, len(data)+2)
	buf = append(buf, 0x00)
	buf = append(buf, data...)
	buf = append(buf, 0xff)
	c.stream.Write(buf, nil)
}

// Ping has no hixie-76 equivalent; it is a no-op to satisfy Conn.
func (c *legacyConn) Ping([]byte) {}

func (c *legacyConn) Close() {
	if c.clientTerminated {
		c.stream.Close()
		return
	}
	c.serverTerminated = true
	c.stream.Write([]byte{0xff, 0x00}, nil)
	r := c.stream.Reactor()
	handle := r.AddTimeoutAfter(closeTimeout, func() {
		c.stream.Close()
	})
	c.stream.SetCloseCallback(func() {
		r.RemoveTimeout(handle)
		c.handler.OnClose()
	})
}
