package frame

import (
	"encoding/binary"
	"fmt"

	httperrors "github.com/nczempin/enginestream/errors"
)

type phase int

const (
	awaitingHeader phase = iota
	awaitingPayload
)

// Decoder turns a sequence of body chunks into frames. It never blocks: Feed
// consumes what it is given and keeps any incomplete header or payload for
// the next call. A Decoder belongs to one session and is not safe for
// concurrent use.
type Decoder struct {
	mode  Mode
	phase phase

	// header collects a header that arrived split across chunks.
	header [HeaderSize]byte
	nhdr   int

	origin    Origin
	payload   []byte
	remaining uint32

	err error
}

// NewDecoder creates a decoder for mode. The mode is fixed for its lifetime.
func NewDecoder(mode Mode) *Decoder {
	return &Decoder{mode: mode}
}

// Mode returns the decoder's mode.
func (d *Decoder) Mode() Mode {
	return d.mode
}

// Feed decodes chunk and returns every frame it completes, in wire order.
// Payloads are copied, so chunk may be reused once Feed returns.
//
// On a malformed header Feed returns the frames completed before it together
// with a protocol error. The decoder then stays failed.
func (d *Decoder) Feed(chunk []byte) ([]Frame, error) {
	if d.err != nil {
		return nil, d.err
	}
	if len(chunk) == 0 {
		return nil, nil
	}

	if d.mode == ModeRaw {
		return []Frame{{Origin: Raw, Payload: append([]byte(nil), chunk...)}}, nil
	}

	var frames []Frame
	for len(chunk) > 0 {
		switch d.phase {
		case awaitingHeader:
			n := copy(d.header[d.nhdr:], chunk)
			d.nhdr += n
			chunk = chunk[n:]
			if d.nhdr < HeaderSize {
				continue
			}

			origin := Origin(d.header[0])
			if origin > Stderr {
				d.err = httperrors.NewProtocolError(httperrors.ProtocolErrorInvalidStreamOrigin, fmt.Sprintf("frame header origin byte %d", d.header[0]))
				return frames, d.err
			}

			d.nhdr = 0
			d.origin = origin
			d.remaining = binary.BigEndian.Uint32(d.header[4:])
			if d.remaining == 0 {
				frames = append(frames, Frame{Origin: origin, Payload: []byte{}})
				continue
			}
			d.payload = make([]byte, 0, int(min(d.remaining, maxPrealloc)))
			d.phase = awaitingPayload

		case awaitingPayload:
			n := len(chunk)
			if uint64(n) > uint64(d.remaining) {
				n = int(d.remaining)
			}
			d.payload = append(d.payload, chunk[:n]...)
			d.remaining -= uint32(n)
			chunk = chunk[n:]
			if d.remaining > 0 {
				continue
			}

			frames = append(frames, Frame{Origin: d.origin, Payload: d.payload})
			d.payload = nil
			d.phase = awaitingHeader
		}
	}
	return frames, nil
}

// maxPrealloc caps the buffer reserved up front for a declared payload
// length, which comes straight off the wire.
const maxPrealloc = 64 << 10

// Finish reports whether the stream ended on a frame boundary. It returns a
// TruncatedStreamError when a header or payload is still incomplete.
func (d *Decoder) Finish() error {
	if d.err != nil {
		return d.err
	}
	switch {
	case d.phase == awaitingHeader && d.nhdr > 0:
		d.err = httperrors.NewTruncatedStreamError(fmt.Sprintf("stream ended after %d of %d header bytes", d.nhdr, HeaderSize))
	case d.phase == awaitingPayload:
		d.err = httperrors.NewTruncatedStreamError(fmt.Sprintf("stream ended with %d of %d payload bytes missing", d.remaining, uint64(d.remaining)+uint64(len(d.payload))))
	}
	return d.err
}

// Pending returns the number of buffered bytes that do not yet form a frame.
func (d *Decoder) Pending() int {
	if d.phase == awaitingPayload {
		return HeaderSize + len(d.payload)
	}
	return d.nhdr
}
