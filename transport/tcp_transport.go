package transport

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	httperrors "github.com/nczempin/enginestream/errors"
)

// TcpTransport implements the Transport interface using TCP sockets
type TcpTransport struct {
	connTransport
	addr    string
	timeout time.Duration
}

// NewTcpTransport creates a new TcpTransport for host:port addr
func NewTcpTransport(addr string, dialTimeout time.Duration) *TcpTransport {
	return &TcpTransport{addr: addr, timeout: dialTimeout}
}

// Connect establishes a TCP connection
func (t *TcpTransport) Connect(ctx context.Context) error {
	if t.conn != nil {
		return httperrors.NewConnectionError(httperrors.TransportErrorSocketConnectFailure, "already connected", nil)
	}

	conn, err := dialTCP(ctx, t.addr, t.timeout)
	if err != nil {
		return err
	}

	transportLog.WithField("addr", t.addr).Debug("connected over tcp")
	t.conn = conn
	return nil
}

// TlsTransport implements the Transport interface using TLS over TCP
type TlsTransport struct {
	connTransport
	addr    string
	config  *tls.Config
	timeout time.Duration
}

// NewTlsTransport creates a transport that performs a TLS handshake with
// cfg after dialing addr. A nil cfg uses the system roots.
func NewTlsTransport(addr string, cfg *tls.Config, dialTimeout time.Duration) *TlsTransport {
	if cfg == nil {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12}
	} else {
		cfg = cfg.Clone()
	}
	return &TlsTransport{addr: addr, config: cfg, timeout: dialTimeout}
}

// Connect dials addr and completes the TLS handshake before returning
func (t *TlsTransport) Connect(ctx context.Context) error {
	if t.conn != nil {
		return httperrors.NewConnectionError(httperrors.TransportErrorSocketConnectFailure, "already connected", nil)
	}

	ctx, cancel := dialContext(ctx, t.timeout)
	defer cancel()

	raw, err := dialTCP(ctx, t.addr, 0)
	if err != nil {
		return err
	}

	cfg := t.config
	if cfg.ServerName == "" {
		cfg = cfg.Clone()
		if host, _, err := net.SplitHostPort(t.addr); err == nil {
			cfg.ServerName = host
		}
	}

	conn := tls.Client(raw, cfg)
	if err := conn.HandshakeContext(ctx); err != nil {
		raw.Close()
		return httperrors.NewConnectionError(httperrors.TransportErrorTlsHandshakeFailure, "handshake with "+t.addr, err)
	}

	transportLog.WithField("addr", t.addr).Debug("connected over tls")
	t.conn = conn
	return nil
}

func dialTCP(ctx context.Context, addr string, timeout time.Duration) (net.Conn, error) {
	ctx, cancel := dialContext(ctx, timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, classifyDialError(err, "dial tcp "+addr)
	}

	// Set TCP_NODELAY to disable Nagle's algorithm for lower latency
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetNoDelay(true); err != nil {
			conn.Close()
			return nil, httperrors.NewConnectionError(httperrors.TransportErrorSocketCreateFailure, "set TCP_NODELAY", err)
		}
	}
	return conn, nil
}
