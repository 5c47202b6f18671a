//go:build !linux

package transport

import (
	httperrors "github.com/nczempin/enginestream/errors"
)

func newUringTransport(d Descriptor) (Transport, error) {
	return nil, httperrors.NewConnectionError(httperrors.TransportErrorUnsupportedTransport, "io_uring is only available on linux", nil)
}
