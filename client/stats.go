package client

import (
	"bytes"
	"encoding/json"

	httperrors "github.com/nczempin/enginestream/errors"
	"github.com/nczempin/enginestream/frame"
	"github.com/nczempin/enginestream/stream"
)

// StatsConsumer splits a raw stats stream into samples and passes each to
// OnStats. A sample that does not decode cancels the session; Err reports it.
type StatsConsumer struct {
	OnStats func(Stats)

	buf    []byte
	cancel stream.CancelFunc
	err    error
}

func (c *StatsConsumer) OnStart(cancel stream.CancelFunc) {
	c.cancel = cancel
}

func (c *StatsConsumer) OnFrame(f frame.Frame) {
	c.buf = append(c.buf, f.Payload...)
	for c.err == nil {
		i := bytes.IndexByte(c.buf, '\n')
		if i < 0 {
			return
		}
		line := c.buf[:i]
		c.buf = c.buf[i+1:]
		c.decode(line)
	}
}

func (c *StatsConsumer) decode(line []byte) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return
	}

	var s Stats
	if err := json.Unmarshal(line, &s); err != nil {
		c.err = httperrors.NewProtocolError(httperrors.ProtocolErrorInvalidBody, "stats sample: "+err.Error())
		if c.cancel != nil {
			c.cancel()
		}
		return
	}
	if c.OnStats != nil {
		c.OnStats(s)
	}
}

// OnComplete decodes a last sample that was not newline terminated.
func (c *StatsConsumer) OnComplete() {
	if c.err == nil {
		c.decode(c.buf)
	}
	c.buf = nil
}

func (c *StatsConsumer) OnError(err error) {
	if c.err == nil {
		c.err = err
	}
}

func (c *StatsConsumer) OnCancelled(stream.Reason) {}

// Err returns the decode or stream error that ended the session, if any.
func (c *StatsConsumer) Err() error {
	return c.err
}
