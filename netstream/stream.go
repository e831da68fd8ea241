// Package netstream implements the buffered, callback-driven wrapper
// around a TCP or TLS connection that the rest of the module schedules
// reads and writes through. Go's net.Conn is blocking and Go exposes no
// user-space socket-readiness API without cgo, so a Stream runs exactly
// one background goroutine per connection doing blocking reads and
// posting each result back onto the owning Reactor with AddCallback —
// directly modelled on badu-http's connReader.startBackgroundRead /
// backgroundRead pair (conn_reader.go), except the wakeup target is a
// Reactor callback instead of a sync.Cond broadcast. All buffer
// bookkeeping, the read-descriptor state machine, and the write queue
// below only ever run on the Reactor's own goroutine, matching
// tinycore's BaseIOStream (asyncio/iostream.cpp): a new background read
// is armed only while a read operation is actually pending, exactly the
// readFromBuffer/checkClosed/asyncRead gating tinycore's
// readUntil/readBytes/readUntilRegex entry points perform — there is no
// free-running read-ahead loop.
package netstream

import (
	"crypto/tls"
	"errors"
	"net"
	"regexp"

	"github.com/duskline/netasync/applog"
	"github.com/duskline/netasync/reactor"
	"github.com/duskline/netasync/stackctx"
	"github.com/google/uuid"
)

// Default tuning constants, matching tinycore's IOStream defaults
// (64KB chunk reads, 100MB maximum buffered bytes).
const (
	DefaultReadChunkSize = 64 * 1024
	DefaultMaxBufferSize = 100 * 1024 * 1024
)

// ErrMaxBufferSize is the fatal-close reason when accumulated unread
// bytes exceed MaxBufferSize.
var ErrMaxBufferSize = errors.New("netstream: reached maximum read buffer size")

// ErrAlreadyReading is returned (as a panic, matching tinycore's
// ASSERT(!_readCallback, ...)) when a second read is armed while one is
// already pending.
var ErrAlreadyReading = errors.New("netstream: already reading")

type readKind int

const (
	readNone readKind = iota
	readDelimiter
	readRegex
	readBytes
	readUntilClose
)

// Stream is a non-blocking-style buffered wrapper around a net.Conn.
// Every exported method except Write's underlying queuing must only be
// called from the owning Reactor's goroutine.
type Stream struct {
	ID uuid.UUID

	conn   net.Conn
	r      *reactor.Reactor
	stack  *stackctx.Stack
	log    *applog.Logger
	isTLS  bool

	maxBufferSize int
	readChunkSize int

	buf      []byte
	readPos  int
	writePos int

	kind              readKind
	delimiter         string
	regex             *regexp.Regexp
	wantBytes         int
	gotBytes          int
	readCallback      func([]byte)
	streamingCallback func([]byte)

	writeQueue     [][]byte
	writeCallback  func()
	inBackgroundWrite bool

	inBackgroundRead bool
	closed           bool
	closeCallback    func()
}

// New wraps an already-connected net.Conn. TLS connections (already
// handshaked, or wrapped later with StartTLS) work identically; isTLS
// only affects logging and the IsTLS accessor.
func New(r *reactor.Reactor, conn net.Conn) *Stream {
	_, isTLS := conn.(*tls.Conn)
	s := &Stream{
		ID:            uuid.New(),
		conn:          conn,
		r:             r,
		stack:         r.Stack(),
		log:           applog.Default().WithField("component", "stream"),
		isTLS:         isTLS,
		maxBufferSize: DefaultMaxBufferSize,
		readChunkSize: DefaultReadChunkSize,
	}
	return s
}

// IsTLS reports whether the underlying connection is a *tls.Conn.
func (s *Stream) IsTLS() bool { return s.isTLS }

// RemoteAddr returns the underlying connection's remote address string.
func (s *Stream) RemoteAddr() string { return s.conn.RemoteAddr().String() }

// Conn exposes the underlying net.Conn, e.g. for the WebSocket layer to
// hijack framing directly after an HTTP upgrade.
func (s *Stream) Conn() net.Conn { return s.conn }

// Reactor returns the Stream's owning Reactor.
func (s *Stream) Reactor() *reactor.Reactor { return s.r }

// SetMaxBufferSize overrides the default 100MB fatal-close threshold.
func (s *Stream) SetMaxBufferSize(n int) { s.maxBufferSize = n }

// SetCloseCallback installs the callback run exactly once when the
// stream transitions to closed, whether by EOF, error, or explicit
// Close.
func (s *Stream) SetCloseCallback(cb func()) {
	s.closeCallback = stackctx.Wrap(s.stack, cb)
}

// Closed reports whether the stream has already closed.
func (s *Stream) Closed() bool { return s.closed }

func (s *Stream) activeSize() int { return s.writePos - s.readPos }

// ReadUntil arms a read that completes once delimiter appears in the
// buffered bytes, with the delimiter included exactly once in the data
// handed to callback.
func (s *Stream) ReadUntil(delimiter string, callback func([]byte)) {
	s.armRead(readDelimiter, callback, nil)
	s.delimiter = delimiter
	s.tryComplete()
	if s.kind != readNone {
		s.ensureReading()
	}
}

// ReadUntilRegex is ReadUntil matched against a compiled regular
// expression instead of a literal delimiter.
func (s *Stream) ReadUntilRegex(re *regexp.Regexp, callback func([]byte)) {
	s.armRead(readRegex, callback, nil)
	s.regex = re
	s.tryComplete()
	if s.kind != readNone {
		s.ensureReading()
	}
}

// ReadBytes arms a read that completes once exactly numBytes have been
// read. If streaming is non-nil it is invoked with each chunk as it
// arrives and callback ultimately receives an empty slice, matching
// tinycore's streamingCallback contract.
func (s *Stream) ReadBytes(numBytes int, callback func([]byte), streaming func([]byte)) {
	s.armRead(readBytes, callback, streaming)
	s.wantBytes = numBytes
	s.gotBytes = 0
	s.tryComplete()
	if s.kind != readNone {
		s.ensureReading()
	}
}

// ReadUntilClose arms a read that completes when the peer closes the
// connection, delivering everything buffered so far (plus any already
// queued bytes if the stream is already closed).
func (s *Stream) ReadUntilClose(callback func([]byte), streaming func([]byte)) {
	if s.closed {
		data := s.takeAll()
		callback(data)
		return
	}
	s.armRead(readUntilClose, callback, streaming)
	s.ensureReading()
}

func (s *Stream) armRead(kind readKind, callback func([]byte), streaming func([]byte)) {
	if s.kind != readNone {
		panic(ErrAlreadyReading)
	}
	s.kind = kind
	s.readCallback = stackctx.WrapArg(s.stack, callback)
	if streaming != nil {
		s.streamingCallback = stackctx.WrapArg(s.stack, streaming)
	} else {
		s.streamingCallback = nil
	}
}

// Write enqueues data for sending and arms callback to run once the
// entire write queue has drained (matching tinycore's single
// _writeCallback slot, fired only when the queue empties).
func (s *Stream) Write(data []byte, callback func()) {
	if s.closed {
		panic("netstream: write on closed stream")
	}
	if len(data) == 0 {
		return
	}
	wasWriting := len(s.writeQueue) > 0
	cp := make([]byte, len(data))
	copy(cp, data)
	s.writeQueue = append(s.writeQueue, cp)
	if callback != nil {
		s.writeCallback = stackctx.Wrap(s.stack, callback)
	}
	if !wasWriting {
		s.beginBackgroundWrite()
	}
}

// Close closes the underlying connection, delivering any
// readUntilClose data pending and firing the close callback exactly
// once. Idempotent.
func (s *Stream) Close() {
	if s.closed {
		return
	}
	if s.kind == readUntilClose {
		cb := s.readCallback
		data := s.takeAll()
		s.kind = readNone
		s.readCallback = nil
		s.streamingCallback = nil
		if cb != nil {
			cb(data)
		}
	}
	s.closed = true
	s.conn.Close()
	if s.closeCallback != nil {
		cb := s.closeCallback
		s.closeCallback = nil
		cb()
	}
}

func (s *Stream) takeAll() []byte {
	data := make([]byte, s.activeSize())
	copy(data, s.buf[s.readPos:s.writePos])
	s.readPos = s.writePos
	return data
}

// ensureReading arms exactly one background read goroutine if none is
// already outstanding, matching connReader.startBackgroundRead's inRead
// guard.
func (s *Stream) ensureReading() {
	if s.inBackgroundRead || s.closed {
		return
	}
	s.inBackgroundRead = true
	go s.backgroundRead()
}

// backgroundRead performs exactly one blocking Read call and hands the
// result to the Reactor goroutine. It never touches Stream fields
// directly other than the immutable conn and readChunkSize.
func (s *Stream) backgroundRead() {
	chunk := make([]byte, s.readChunkSize)
	n, err := s.conn.Read(chunk)
	data := chunk[:n]
	s.r.AddCallback(func() {
		s.onBackgroundRead(data, err)
	})
}

func (s *Stream) onBackgroundRead(data []byte, err error) {
	s.inBackgroundRead = false
	if len(data) > 0 {
		s.appendToBuffer(data)
	}
	if err != nil {
		s.handleReadError(err)
		return
	}
	if s.closed {
		return
	}
	s.tryComplete()
	if s.kind != readNone && !s.closed {
		s.ensureReading()
	}
}

func (s *Stream) appendToBuffer(data []byte) {
	s.normalize()
	s.buf = append(s.buf, data...)
	s.writePos += len(data)
	if s.activeSize() > s.maxBufferSize {
		s.log.Error(ErrMaxBufferSize.Error())
		s.kind = readNone
		s.readCallback = nil
		s.streamingCallback = nil
		s.Close()
	}
}

// normalize shifts unread bytes to the front of buf once the consumed
// prefix grows large, bounding the slice's growth the way tinycore's
// MessageBuffer compacts its internal storage.
func (s *Stream) normalize() {
	if s.readPos == 0 {
		return
	}
	if s.readPos == s.writePos {
		s.buf = s.buf[:0]
		s.readPos, s.writePos = 0, 0
		return
	}
	if s.readPos < 4096 {
		return
	}
	copy(s.buf, s.buf[s.readPos:s.writePos])
	s.writePos -= s.readPos
	s.buf = s.buf[:s.writePos]
	s.readPos = 0
}

func (s *Stream) handleReadError(err error) {
	if s.kind != readNone && s.kind != readUntilClose {
		s.kind = readNone
		s.readCallback = nil
		s.streamingCallback = nil
	}
	if errors.Is(err, ErrMaxBufferSize) {
		return
	}
	s.Close()
}

// tryComplete attempts to satisfy the currently armed read descriptor
// from already-buffered bytes, delivering it if possible.
func (s *Stream) tryComplete() {
	switch s.kind {
	case readDelimiter:
		s.tryCompleteDelimiter()
	case readRegex:
		s.tryCompleteRegex()
	case readBytes:
		s.tryCompleteBytes()
	case readUntilClose:
		// only ever completes via Close or EOF handling.
	}
}

func (s *Stream) tryCompleteDelimiter() {
	active := s.buf[s.readPos:s.writePos]
	idx := indexOf(active, s.delimiter)
	if idx < 0 {
		return
	}
	end := idx + len(s.delimiter)
	data := make([]byte, end)
	copy(data, active[:end])
	s.readPos += end
	s.deliver(data)
}

func (s *Stream) tryCompleteRegex() {
	active := s.buf[s.readPos:s.writePos]
	loc := s.regex.FindIndex(active)
	if loc == nil {
		return
	}
	end := loc[1]
	data := make([]byte, end)
	copy(data, active[:end])
	s.readPos += end
	s.deliver(data)
}

func (s *Stream) tryCompleteBytes() {
	for s.activeSize() > 0 && s.gotBytes < s.wantBytes {
		if s.streamingCallback == nil {
			break
		}
		active := s.buf[s.readPos:s.writePos]
		take := s.wantBytes - s.gotBytes
		if take > len(active) {
			take = len(active)
		}
		chunk := make([]byte, take)
		copy(chunk, active[:take])
		s.readPos += take
		s.gotBytes += take
		s.streamingCallback(chunk)
	}
	if s.gotBytes >= s.wantBytes {
		s.deliver(nil)
		return
	}
	if s.activeSize() >= s.wantBytes-s.gotBytes {
		active := s.buf[s.readPos:s.writePos]
		take := s.wantBytes - s.gotBytes
		data := make([]byte, take)
		copy(data, active[:take])
		s.readPos += take
		s.gotBytes = s.wantBytes
		s.deliver(data)
	}
}

func (s *Stream) deliver(data []byte) {
	cb := s.readCallback
	s.kind = readNone
	s.readCallback = nil
	s.streamingCallback = nil
	s.wantBytes, s.gotBytes = 0, 0
	s.delimiter = ""
	s.regex = nil
	if cb != nil {
		cb(data)
	}
}

// beginBackgroundWrite arms exactly one outstanding background writer,
// mirroring ensureReading's inBackgroundRead guard: the write queue is
// only ever mutated on the Reactor goroutine, the background goroutine
// only ever touches the one chunk handed to it.
func (s *Stream) beginBackgroundWrite() {
	if s.inBackgroundWrite || len(s.writeQueue) == 0 {
		return
	}
	s.inBackgroundWrite = true
	chunk := s.writeQueue[0]
	go s.backgroundWrite(chunk)
}

// backgroundWrite performs blocking Write calls until chunk is fully
// sent (or an error occurs) and reports the outcome back through the
// Reactor once, matching how tinycore's asyncWrite/onWrite pair fires
// _writeCallback only after the queue empties.
func (s *Stream) backgroundWrite(chunk []byte) {
	var err error
	for len(chunk) > 0 {
		var n int
		n, err = s.conn.Write(chunk)
		if err != nil {
			break
		}
		chunk = chunk[n:]
	}
	s.r.AddCallback(func() {
		s.onBackgroundWrite(err)
	})
}

func (s *Stream) onBackgroundWrite(err error) {
	s.inBackgroundWrite = false
	if err != nil {
		s.writeCallback = nil
		s.Close()
		return
	}
	if len(s.writeQueue) > 0 {
		s.writeQueue = s.writeQueue[1:]
	}
	if len(s.writeQueue) == 0 {
		if s.writeCallback != nil {
			cb := s.writeCallback
			s.writeCallback = nil
			cb()
		}
		return
	}
	s.beginBackgroundWrite()
}

func indexOf(haystack []byte, needle string) int {
	if needle == "" {
		return 0
	}
	n := len(needle)
	for i := 0; i+n <= len(haystack); i++ {
		if string(haystack[i:i+n]) == needle {
			return i
		}
	}
	return -1
}
