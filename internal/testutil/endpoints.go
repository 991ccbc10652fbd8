// Package testutil holds helpers shared by socket-level tests.
package testutil

import (
	"net"
	"testing"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/stretchr/testify/require"
)

// FreeEndpoint returns a loopback TCP endpoint that was free a moment ago.
func FreeEndpoint(t testing.TB) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return "tcp://" + addr
}

// RecvTimeout receives one message from sck, giving up after d. ok is false
// on timeout or receive error. After a timeout the receive stays pending and
// will swallow the next message, so only use it for a socket's last read.
func RecvTimeout(sck zmq4.Socket, d time.Duration) (msg zmq4.Msg, ok bool) {
	type result struct {
		msg zmq4.Msg
		err error
	}
	ch := make(chan result, 1)
	go func() {
		m, err := sck.Recv()
		ch <- result{m, err}
	}()

	select {
	case r := <-ch:
		return r.msg, r.err == nil
	case <-time.After(d):
		return zmq4.Msg{}, false
	}
}

// Frames converts strings to message frames.
func Frames(parts ...string) [][]byte {
	out := make([][]byte, len(parts))
	for i, p := range parts {
		out[i] = []byte(p)
	}
	return out
}
