package transport

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

var unixTestCounter uint64

func setupUnixTestServer(t *testing.T, serverLogic func(net.Conn)) (string, func()) {
	t.Helper()

	count := atomic.AddUint64(&unixTestCounter, 1)
	socketPath := filepath.Join(os.TempDir(), fmt.Sprintf("enginestream_%d_%d.sock", os.Getpid(), count))
	os.Remove(socketPath)

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err, "failed to create unix test server")

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		serverLogic(conn)
		conn.Close()
	}()

	cleanup := func() {
		listener.Close()
		<-done
		os.Remove(socketPath)
	}

	return socketPath, cleanup
}

func setupTcpTestServer(t *testing.T, serverLogic func(net.Conn)) (string, func()) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err, "failed to create tcp test server")

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		serverLogic(conn)
		conn.Close()
	}()

	cleanup := func() {
		listener.Close()
		<-done
	}

	return listener.Addr().String(), cleanup
}
