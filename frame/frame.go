// Package frame decodes the engine's multiplexed stream format.
//
// In multiplexed mode every frame is an 8 byte header followed by its
// payload:
//
//	[origin, 0, 0, 0, len>>24, len>>16, len>>8, len]
//
// When the exec or container runs with a TTY the engine does not multiplex
// and the body is passed through as Raw frames, one per chunk received.
package frame

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the length of a multiplexed frame header.
const HeaderSize = 8

// Origin identifies which stream a frame belongs to.
type Origin byte

const (
	Stdin  Origin = 0
	Stdout Origin = 1
	Stderr Origin = 2
	// Raw marks bytes from a non-multiplexed (TTY) session. It never
	// appears on the wire.
	Raw Origin = 0xff
)

func (o Origin) String() string {
	switch o {
	case Stdin:
		return "stdin"
	case Stdout:
		return "stdout"
	case Stderr:
		return "stderr"
	case Raw:
		return "raw"
	default:
		return fmt.Sprintf("origin(%d)", byte(o))
	}
}

// Frame is one logical unit of output.
type Frame struct {
	Origin  Origin
	Payload []byte
}

func (f Frame) String() string {
	return fmt.Sprintf("%s[%d]", f.Origin, len(f.Payload))
}

// Mode selects how a body is decoded.
type Mode int

const (
	ModeMultiplexed Mode = iota
	ModeRaw
)

// ModeFor returns the decode mode for a session with or without a TTY.
func ModeFor(tty bool) Mode {
	if tty {
		return ModeRaw
	}
	return ModeMultiplexed
}

func (m Mode) String() string {
	if m == ModeRaw {
		return "raw"
	}
	return "multiplexed"
}

// AppendFrame appends payload to dst framed for origin, with the reserved
// header bytes zeroed.
func AppendFrame(dst []byte, origin Origin, payload []byte) []byte {
	var hdr [HeaderSize]byte
	hdr[0] = byte(origin)
	binary.BigEndian.PutUint32(hdr[4:], uint32(len(payload)))
	dst = append(dst, hdr[:]...)
	return append(dst, payload...)
}
