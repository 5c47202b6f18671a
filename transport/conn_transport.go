package transport

import (
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"syscall"
	"time"

	httperrors "github.com/nczempin/enginestream/errors"
)

// connTransport carries the I/O half shared by every transport built on a
// net.Conn. Implementations embed it and fill conn in Connect.
type connTransport struct {
	conn      net.Conn
	closeOnce sync.Once
}

// Write sends data over the connection
func (t *connTransport) Write(buf []byte) (int, error) {
	if t.conn == nil {
		return 0, httperrors.NewTransportError(httperrors.TransportErrorSocketWriteFailure, "not connected", nil)
	}

	n, err := t.conn.Write(buf)
	if err != nil {
		return n, classifyIOError(err, httperrors.TransportErrorSocketWriteFailure, "write")
	}

	return n, nil
}

// Read receives data from the connection
func (t *connTransport) Read(buf []byte) (int, error) {
	if t.conn == nil {
		return 0, httperrors.NewTransportError(httperrors.TransportErrorSocketReadFailure, "not connected", nil)
	}

	n, err := t.conn.Read(buf)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return n, io.EOF
		}
		return n, classifyIOError(err, httperrors.TransportErrorSocketReadFailure, "read")
	}

	return n, nil
}

func (t *connTransport) SetReadDeadline(d time.Time) error {
	if t.conn == nil {
		return nil
	}
	return t.conn.SetReadDeadline(d)
}

// Close closes the connection. Later calls are no-ops.
func (t *connTransport) Close() error {
	if t.conn == nil {
		return nil
	}

	var err error
	t.closeOnce.Do(func() {
		err = t.conn.Close()
	})
	if err != nil {
		return httperrors.NewTransportError(httperrors.TransportErrorConnectionClosed, "close", err)
	}

	return nil
}

func classifyIOError(err error, fallback httperrors.TransportError, op string) error {
	var netErr net.Error
	switch {
	case errors.Is(err, os.ErrDeadlineExceeded):
		return httperrors.NewTransportError(httperrors.TransportErrorTimeout, op, err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return httperrors.NewTransportError(httperrors.TransportErrorTimeout, op, err)
	case errors.Is(err, syscall.ECONNRESET):
		return httperrors.NewTransportError(httperrors.TransportErrorConnectionReset, op, err)
	case errors.Is(err, syscall.EPIPE), errors.Is(err, net.ErrClosed):
		return httperrors.NewTransportError(httperrors.TransportErrorConnectionClosed, op, err)
	default:
		return httperrors.NewTransportError(fallback, op, err)
	}
}

// classifyDialError maps a failed dial to a connection error.
func classifyDialError(err error, target string) error {
	var dnsErr *net.DNSError
	switch {
	case errors.As(err, &dnsErr):
		return httperrors.NewConnectionError(httperrors.TransportErrorDnsFailure, target, err)
	case errors.Is(err, os.ErrPermission), errors.Is(err, syscall.EACCES):
		return httperrors.NewConnectionError(httperrors.TransportErrorPermissionDenied, target, err)
	case errors.Is(err, os.ErrDeadlineExceeded):
		return httperrors.NewConnectionError(httperrors.TransportErrorTimeout, target, err)
	default:
		return httperrors.NewConnectionError(httperrors.TransportErrorSocketConnectFailure, target, err)
	}
}
