package netstream_test

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/duskline/netasync/netstream"
	"github.com/duskline/netasync/reactor"
	"github.com/stretchr/testify/require"
)

func TestConnectDialsAndDeliversStreamOnReactorGoroutine(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	r := reactor.New()
	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	done := make(chan struct{})
	var gotStream *netstream.Stream
	var gotErr error
	r.RunSync(func() {
		netstream.Connect(r, host, port, netstream.ConnectOptions{Timeout: time.Second}, func(s *netstream.Stream, err error) {
			gotStream = s
			gotErr = err
			close(done)
			r.Stop()
		})
	})
	<-done
	require.NoError(t, gotErr)
	require.NotNil(t, gotStream)
}

func TestConnectReportsDialFailure(t *testing.T) {
	r := reactor.New()
	var gotErr error
	r.RunSync(func() {
		netstream.Connect(r, "127.0.0.1", 1, netstream.ConnectOptions{Timeout: 200 * time.Millisecond}, func(s *netstream.Stream, err error) {
			gotErr = err
			r.Stop()
		})
	})
	require.Error(t, gotErr)
}
