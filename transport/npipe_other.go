//go:build !windows

package transport

import (
	httperrors "github.com/nczempin/enginestream/errors"
)

func newNamedPipeTransport(d Descriptor) (Transport, error) {
	return nil, httperrors.NewConnectionError(httperrors.TransportErrorUnsupportedTransport, "named pipe "+pipePath(d.Address), nil)
}
