//go:build windows

package transport

import (
	"context"
	"time"

	"github.com/Microsoft/go-winio"
	httperrors "github.com/nczempin/enginestream/errors"
)

// NamedPipeTransport implements the Transport interface using a Windows named pipe
type NamedPipeTransport struct {
	connTransport
	path    string
	timeout time.Duration
}

func newNamedPipeTransport(d Descriptor) (Transport, error) {
	return &NamedPipeTransport{path: pipePath(d.Address), timeout: d.DialTimeout}, nil
}

// Connect opens the pipe, waiting for a free instance until ctx is done
func (t *NamedPipeTransport) Connect(ctx context.Context) error {
	if t.conn != nil {
		return httperrors.NewConnectionError(httperrors.TransportErrorSocketConnectFailure, "already connected", nil)
	}

	ctx, cancel := dialContext(ctx, t.timeout)
	defer cancel()

	conn, err := winio.DialPipeContext(ctx, t.path)
	if err != nil {
		return classifyDialError(err, "dial pipe "+t.path)
	}

	transportLog.WithField("pipe", t.path).Debug("connected to named pipe")
	t.conn = conn
	return nil
}
