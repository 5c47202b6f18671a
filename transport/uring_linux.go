//go:build linux

package transport

import (
	"context"
	"io"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/iceber/iouring-go"
	httperrors "github.com/nczempin/enginestream/errors"
)

// ringEntries is the submission queue depth of each connection's ring.
const ringEntries = 32

// UringTransport implements Transport on a raw socket whose reads and writes
// are submitted through io_uring. Unix and TCP sockets are supported.
type UringTransport struct {
	kind    Kind
	address string

	iour *iouring.IOURing
	fd   int
	// done is closed by Close so a write in flight from another goroutine
	// stops waiting for its completion.
	done      chan struct{}
	closeOnce sync.Once

	mu              sync.Mutex
	deadline        time.Time
	deadlineChanged chan struct{}
	// abandoned is set when a read gave up on an in-flight request; the
	// request may still consume bytes, so the socket can no longer be read.
	abandoned bool
}

func newUringTransport(d Descriptor) (Transport, error) {
	iour, err := iouring.New(ringEntries)
	if err != nil {
		return nil, httperrors.NewConnectionError(httperrors.TransportErrorIoUringInit, "failed to initialize io_uring", err)
	}

	return &UringTransport{
		kind:            d.Kind,
		address:         d.Address,
		iour:            iour,
		fd:              -1,
		done:            make(chan struct{}),
		deadlineChanged: make(chan struct{}),
	}, nil
}

// Connect creates the socket and connects it. The connect syscall itself is
// blocking; ctx is only consulted before it starts.
func (t *UringTransport) Connect(ctx context.Context) error {
	if t.fd >= 0 {
		return httperrors.NewConnectionError(httperrors.TransportErrorSocketConnectFailure, "already connected", nil)
	}
	if err := ctx.Err(); err != nil {
		return httperrors.NewConnectionError(httperrors.TransportErrorSocketConnectFailure, "dial "+t.address, err)
	}

	family, sa, err := t.sockaddr(ctx)
	if err != nil {
		return err
	}

	fd, err := syscall.Socket(family, syscall.SOCK_STREAM|syscall.SOCK_CLOEXEC, 0)
	if err != nil {
		return httperrors.NewConnectionError(httperrors.TransportErrorSocketCreateFailure, "failed to create socket", err)
	}

	if err := syscall.Connect(fd, sa); err != nil {
		syscall.Close(fd)
		return classifyDialError(err, "connect "+t.address)
	}

	if t.kind == KindTCP {
		if err := syscall.SetsockoptInt(fd, syscall.IPPROTO_TCP, syscall.TCP_NODELAY, 1); err != nil {
			syscall.Close(fd)
			return httperrors.NewConnectionError(httperrors.TransportErrorSocketCreateFailure, "failed to set TCP_NODELAY", err)
		}
	}

	transportLog.WithField("addr", t.address).WithField("kind", t.kind).Debug("connected with io_uring backend")
	t.fd = fd
	return nil
}

func (t *UringTransport) sockaddr(ctx context.Context) (int, syscall.Sockaddr, error) {
	if t.kind == KindUnix {
		return syscall.AF_UNIX, &syscall.SockaddrUnix{Name: t.address}, nil
	}

	host, portStr, err := net.SplitHostPort(t.address)
	if err != nil {
		return 0, nil, httperrors.NewConnectionError(httperrors.TransportErrorDnsFailure, "split "+t.address, err)
	}
	port, err := net.DefaultResolver.LookupPort(ctx, "tcp", portStr)
	if err != nil {
		return 0, nil, httperrors.NewConnectionError(httperrors.TransportErrorDnsFailure, "port "+portStr, err)
	}
	ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil || len(ips) == 0 {
		return 0, nil, httperrors.NewConnectionError(httperrors.TransportErrorDnsFailure, "resolve "+host, err)
	}

	ip := ips[0].IP
	if ip4 := ip.To4(); ip4 != nil {
		sa4 := &syscall.SockaddrInet4{Port: port}
		copy(sa4.Addr[:], ip4)
		return syscall.AF_INET, sa4, nil
	}
	sa6 := &syscall.SockaddrInet6{Port: port}
	copy(sa6.Addr[:], ip.To16())
	return syscall.AF_INET6, sa6, nil
}

// Write sends data over the socket using io_uring
func (t *UringTransport) Write(buf []byte) (int, error) {
	if t.fd < 0 || t.isClosed() {
		return 0, httperrors.NewTransportError(httperrors.TransportErrorConnectionClosed, "not connected", nil)
	}

	totalWritten := 0
	for totalWritten < len(buf) {
		ch := make(chan iouring.Result, 1)
		if _, err := t.iour.SubmitRequest(iouring.Send(t.fd, buf[totalWritten:], 0), ch); err != nil {
			return totalWritten, httperrors.NewTransportError(httperrors.TransportErrorIoUringSubmit, "failed to submit write request", err)
		}

		var result iouring.Result
		select {
		case result = <-ch:
		case <-t.done:
			return totalWritten, httperrors.NewTransportError(httperrors.TransportErrorConnectionClosed, "closed during write", nil)
		}
		n, err := result.ReturnInt()
		if err != nil {
			return totalWritten, classifyIOError(err, httperrors.TransportErrorSocketWriteFailure, "write")
		}
		if n <= 0 {
			return totalWritten, httperrors.NewTransportError(httperrors.TransportErrorConnectionClosed, "connection closed during write", nil)
		}

		totalWritten += n
	}

	return totalWritten, nil
}

// Read receives data using io_uring, giving up when the read deadline passes
func (t *UringTransport) Read(buf []byte) (int, error) {
	if t.fd < 0 || t.isClosed() {
		return 0, httperrors.NewTransportError(httperrors.TransportErrorConnectionClosed, "not connected", nil)
	}
	if t.isAbandoned() {
		return 0, httperrors.NewTransportError(httperrors.TransportErrorConnectionClosed, "socket abandoned after timeout", nil)
	}
	if dl, _ := t.readDeadline(); !dl.IsZero() && !time.Now().Before(dl) {
		return 0, httperrors.NewTransportError(httperrors.TransportErrorTimeout, "read", nil)
	}

	ch := make(chan iouring.Result, 1)
	if _, err := t.iour.SubmitRequest(iouring.Recv(t.fd, buf, 0), ch); err != nil {
		return 0, httperrors.NewTransportError(httperrors.TransportErrorIoUringSubmit, "failed to submit read request", err)
	}

	for {
		dl, changed := t.readDeadline()
		var timer *time.Timer
		var expired <-chan time.Time
		if !dl.IsZero() {
			timer = time.NewTimer(time.Until(dl))
			expired = timer.C
		}

		select {
		case result := <-ch:
			stopTimer(timer)
			n, err := result.ReturnInt()
			if err != nil {
				return 0, classifyIOError(err, httperrors.TransportErrorSocketReadFailure, "read")
			}
			if n == 0 && len(buf) > 0 {
				return 0, io.EOF
			}
			return n, nil
		case <-expired:
			t.mu.Lock()
			t.abandoned = true
			t.mu.Unlock()
			return 0, httperrors.NewTransportError(httperrors.TransportErrorTimeout, "read", nil)
		case <-changed:
			stopTimer(timer)
		}
	}
}

func (t *UringTransport) SetReadDeadline(d time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deadline = d
	close(t.deadlineChanged)
	t.deadlineChanged = make(chan struct{})
	return nil
}

func (t *UringTransport) readDeadline() (time.Time, <-chan struct{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deadline, t.deadlineChanged
}

func (t *UringTransport) isAbandoned() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.abandoned
}

func (t *UringTransport) isClosed() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Close closes the socket and tears down the ring. Later calls are no-ops.
func (t *UringTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		if t.fd >= 0 {
			if cerr := syscall.Close(t.fd); cerr != nil {
				err = httperrors.NewTransportError(httperrors.TransportErrorConnectionClosed, "failed to close socket", cerr)
			}
		}
		t.iour.Close()
	})
	return err
}

func stopTimer(timer *time.Timer) {
	if timer != nil {
		timer.Stop()
	}
}
