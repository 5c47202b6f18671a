// Package transport opens byte-stream connections to the engine daemon.
//
// Four kinds are supported: Unix domain sockets, Windows named pipes, plain
// TCP and TLS over TCP. New selects the implementation from a Descriptor so
// callers above this package never branch on the kind.
package transport

import (
	"context"
	"crypto/tls"
	"time"

	httperrors "github.com/nczempin/enginestream/errors"
	"github.com/sirupsen/logrus"
)

var transportLog = logrus.WithField("subsystem", "transport")

// SetLogger sets the logger for the transport package.
func SetLogger(logger *logrus.Entry) {
	fields := transportLog.Data
	transportLog = logger.WithFields(fields)
}

// Transport defines the interface for one duplex connection to the daemon.
// A Transport is used by exactly one call and is not safe for concurrent
// reads, though Write may run alongside Read.
type Transport interface {
	// Connect establishes the connection described at construction.
	Connect(ctx context.Context) error

	// Write sends data to the daemon.
	Write(buf []byte) (int, error)

	// Read receives data from the daemon. It returns io.EOF once the
	// daemon has closed its side in an orderly way.
	Read(buf []byte) (int, error)

	// SetReadDeadline makes a pending and any future Read fail with a
	// Timeout transport error once t has passed. The zero value clears it.
	SetReadDeadline(t time.Time) error

	// Close releases the OS handle. It is idempotent.
	Close() error
}

// Kind names the transport used to reach the daemon.
type Kind int

const (
	KindUnix Kind = iota
	KindNamedPipe
	KindTCP
	KindTLS
)

func (k Kind) String() string {
	switch k {
	case KindUnix:
		return "unix"
	case KindNamedPipe:
		return "npipe"
	case KindTCP:
		return "tcp"
	case KindTLS:
		return "tls"
	default:
		return "unknown"
	}
}

// Descriptor describes how to reach the daemon. It is a value type; the
// connector never mutates it and copies the TLS config before use.
type Descriptor struct {
	Kind Kind
	// Address is a socket or pipe path for Unix and NamedPipe, host:port otherwise.
	Address string
	TLS     *tls.Config
	// DialTimeout bounds Connect. Zero means only the caller's context applies.
	DialTimeout time.Duration
	// RequestTimeout is the ceiling applied to ordinary request/response calls.
	RequestTimeout time.Duration
	// IOURing selects the io_uring socket backend (Linux, Unix and TCP only).
	IOURing bool
}

// WithTLS returns a copy of d that speaks TLS with cfg. Only TCP descriptors
// are upgraded; other kinds are returned unchanged.
func (d Descriptor) WithTLS(cfg *tls.Config) Descriptor {
	if d.Kind == KindTCP || d.Kind == KindTLS {
		d.Kind = KindTLS
		d.TLS = cfg
	}
	return d
}

// HostHeader is the value sent in the HTTP Host header.
func (d Descriptor) HostHeader() string {
	switch d.Kind {
	case KindTCP, KindTLS:
		return d.Address
	default:
		return "docker"
	}
}

func (d Descriptor) String() string {
	return d.Kind.String() + "://" + d.Address
}

// New returns an unconnected Transport for d.
func New(d Descriptor) (Transport, error) {
	if d.Address == "" {
		return nil, httperrors.NewInvalidArgumentError("transport address is empty")
	}

	if d.IOURing {
		if d.Kind != KindUnix && d.Kind != KindTCP {
			return nil, httperrors.NewInvalidArgumentError("io_uring backend supports unix and tcp only")
		}
		return newUringTransport(d)
	}

	switch d.Kind {
	case KindUnix:
		return NewUnixTransport(d.Address, d.DialTimeout), nil
	case KindTCP:
		return NewTcpTransport(d.Address, d.DialTimeout), nil
	case KindTLS:
		return NewTlsTransport(d.Address, d.TLS, d.DialTimeout), nil
	case KindNamedPipe:
		return newNamedPipeTransport(d)
	default:
		return nil, httperrors.NewInvalidArgumentError("unknown transport kind " + d.Kind.String())
	}
}

func dialContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}
