package transport

import (
	"context"
	"net"
	"time"

	httperrors "github.com/nczempin/enginestream/errors"
)

// UnixTransport implements the Transport interface using Unix domain sockets
type UnixTransport struct {
	connTransport
	path    string
	timeout time.Duration
}

// NewUnixTransport creates a new UnixTransport for the socket at path
func NewUnixTransport(path string, dialTimeout time.Duration) *UnixTransport {
	return &UnixTransport{path: path, timeout: dialTimeout}
}

// Connect establishes a Unix domain socket connection
func (t *UnixTransport) Connect(ctx context.Context) error {
	if t.conn != nil {
		return httperrors.NewConnectionError(httperrors.TransportErrorSocketConnectFailure, "already connected", nil)
	}

	ctx, cancel := dialContext(ctx, t.timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", t.path)
	if err != nil {
		return classifyDialError(err, "dial unix "+t.path)
	}

	transportLog.WithField("path", t.path).Debug("connected to unix socket")
	t.conn = conn
	return nil
}
