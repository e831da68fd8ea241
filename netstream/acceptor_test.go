package netstream_test

import (
	"net"
	"testing"
	"time"

	"github.com/duskline/netasync/netstream"
	"github.com/duskline/netasync/reactor"
	"github.com/stretchr/testify/require"
)

func TestAcceptorHandsAcceptedConnectionsToReactor(t *testing.T) {
	r := reactor.New()
	accepted := make(chan *netstream.Stream, 1)

	a, err := netstream.Listen(r, "127.0.0.1:0", func(s *netstream.Stream) {
		accepted <- s
	})
	require.NoError(t, err)
	a.Start()
	defer a.Stop()

	go r.Start()
	defer r.Stop()

	conn, err := net.DialTimeout("tcp", a.Addr().String(), time.Second)
	require.NoError(t, err)
	defer conn.Close()

	select {
	case s := <-accepted:
		require.NotNil(t, s)
		require.False(t, s.Closed())
	case <-time.After(2 * time.Second):
		t.Fatal("acceptor never delivered the connection")
	}
}
