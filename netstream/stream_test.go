package netstream_test

import (
	"net"
	"testing"
	"time"

	"github.com/duskline/netasync/netstream"
	"github.com/duskline/netasync/reactor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipePair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })
	return a, b
}

func TestReadUntilDelimiterIncludedExactlyOnce(t *testing.T) {
	server, client := pipePair(t)
	r := reactor.New()
	s := netstream.New(r, server)

	var got []byte
	r.AddCallback(func() {
		s.ReadUntil("\r\n", func(data []byte) {
			got = data
			r.Stop()
		})
	})
	go client.Write([]byte("hello\r\nworld"))
	r.Start()
	require.Equal(t, "hello\r\n", string(got))
}

func TestReadBytesExactCount(t *testing.T) {
	server, client := pipePair(t)
	r := reactor.New()
	s := netstream.New(r, server)

	var got []byte
	done := make(chan struct{})
	r.AddCallback(func() {
		s.ReadBytes(5, func(data []byte) {
			got = data
			close(done)
			r.Stop()
		}, nil)
	})
	go client.Write([]byte("abcdefgh"))
	go r.Start()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("read did not complete")
	}
	assert.Equal(t, "abcde", string(got))
}

func TestReadBytesStreamingCallbackSeesEachChunk(t *testing.T) {
	server, client := pipePair(t)
	r := reactor.New()
	s := netstream.New(r, server)

	var chunks [][]byte
	var final []byte
	done := make(chan struct{})
	r.AddCallback(func() {
		s.ReadBytes(6, func(data []byte) {
			final = data
			close(done)
			r.Stop()
		}, func(chunk []byte) {
			cp := make([]byte, len(chunk))
			copy(cp, chunk)
			chunks = append(chunks, cp)
		})
	})
	go func() {
		client.Write([]byte("abc"))
		time.Sleep(20 * time.Millisecond)
		client.Write([]byte("def"))
	}()
	go r.Start()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("read did not complete")
	}
	assert.Empty(t, final)
	assert.True(t, len(chunks) >= 1)
}

func TestWriteCallbackFiresAfterQueueDrains(t *testing.T) {
	server, client := pipePair(t)
	r := reactor.New()
	s := netstream.New(r, server)

	readDone := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 64)
		n, _ := client.Read(buf)
		readDone <- buf[:n]
	}()

	wrote := false
	r.RunSync(func() {
		s.Write([]byte("ping"), func() {
			wrote = true
			r.Stop()
		})
	})
	assert.True(t, wrote)
	select {
	case data := <-readDone:
		assert.Equal(t, "ping", string(data))
	case <-time.After(time.Second):
		t.Fatal("peer never saw the write")
	}
}

func TestCloseCallbackFiresExactlyOnce(t *testing.T) {
	server, _ := pipePair(t)
	r := reactor.New()
	s := netstream.New(r, server)

	calls := 0
	s.SetCloseCallback(func() { calls++ })
	r.RunSync(func() {
		s.Close()
		s.Close() // idempotent
		r.Stop()
	})
	assert.Equal(t, 1, calls)
	assert.True(t, s.Closed())
}

func TestArmingASecondReadWhileOnePendingPanics(t *testing.T) {
	server, _ := pipePair(t)
	r := reactor.New()
	s := netstream.New(r, server)

	r.RunSync(func() {
		s.ReadUntil("\n", func([]byte) {})
		assert.Panics(t, func() {
			s.ReadUntil("\n", func([]byte) {})
		})
		r.Stop()
	})
}
