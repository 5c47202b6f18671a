// Package stream runs the decode and delivery loop of a streaming call.
//
// A Session owns one open response body and its connection. Run pulls body
// chunks, decodes them into frames and hands each frame to the consumer
// before pulling the next chunk, so a slow consumer throttles the network
// read. Cancellation and timeouts are observed by the loop itself, which is
// the only goroutine that closes the connection.
package stream

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	httperrors "github.com/nczempin/enginestream/errors"
	"github.com/nczempin/enginestream/frame"
	"github.com/nczempin/enginestream/metrics"
	"github.com/nczempin/enginestream/protocol"
	"github.com/sirupsen/logrus"
)

var streamLog = logrus.WithField("subsystem", "stream")

// SetLogger sets the logger for the stream package.
func SetLogger(logger *logrus.Entry) {
	fields := streamLog.Data
	streamLog = logger.WithFields(fields)
}

// Conn is the part of the connection a session controls.
type Conn interface {
	SetReadDeadline(t time.Time) error
	Close() error
}

// Option configures a Session.
type Option func(*Session)

// WithTimeout bounds the session's lifetime. Zero means no limit beyond the
// context passed to Run.
func WithTimeout(d time.Duration) Option {
	return func(s *Session) {
		s.timeout = d
	}
}

// WithLogger sets the entry the session logs through.
func WithLogger(logger *logrus.Entry) Option {
	return func(s *Session) {
		s.log = logger
	}
}

// WithMetrics records the session in c.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Session) {
		s.metrics = c
	}
}

// WithID overrides the generated session id.
func WithID(id string) Option {
	return func(s *Session) {
		s.id = id
	}
}

// Session is one streaming exchange. It is single use.
type Session struct {
	id       string
	body     protocol.ChunkSource
	conn     Conn
	decoder  *frame.Decoder
	consumer Consumer

	timeout time.Duration
	log     *logrus.Entry
	metrics *metrics.Collector

	state   atomic.Int32
	started atomic.Bool

	closeOnce sync.Once
	closeErr  error

	frames int
	bytes  int64
}

// NewSession binds body, read from conn, to consumer. mode must match the
// TTY setting the request was made with.
func NewSession(body protocol.ChunkSource, conn Conn, mode frame.Mode, consumer Consumer, opts ...Option) *Session {
	s := &Session{
		id:       uuid.NewString(),
		body:     body,
		conn:     conn,
		decoder:  frame.NewDecoder(mode),
		consumer: consumer,
		log:      streamLog,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithFields(logrus.Fields{
		"session": s.id,
		"mode":    mode.String(),
	})
	return s
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// State returns the current state. It is safe to call from any goroutine.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Run streams until the body ends, the session is cancelled or times out, or
// an error occurs. The connection is closed before the consumer's terminal
// callback runs.
func (s *Session) Run(ctx context.Context) Result {
	if !s.started.CompareAndSwap(false, true) {
		return Result{ID: s.id, State: StateFailed, Err: httperrors.NewInvalidArgumentError("session already ran")}
	}
	defer s.close()

	start := time.Now()
	s.metrics.SessionStarted()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if s.timeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeoutCause(ctx, s.timeout, ErrTimeout)
		defer cancelTimeout()
	}

	// A read blocked in the body is interrupted by a past deadline; the
	// loop below then sees the cancellation and closes the connection.
	stop := context.AfterFunc(ctx, func() {
		if err := s.conn.SetReadDeadline(time.Unix(1, 0)); err != nil {
			s.log.WithError(err).Debug("could not interrupt read")
		}
	})
	defer stop()

	s.log.WithField("timeout", s.timeout).Debug("session starting")
	s.consumer.OnStart(func() { cancel(ErrConsumerCancelled) })
	s.state.Store(int32(StateStreaming))

	res := s.loop(ctx)
	s.metrics.SessionFinished(res.State.String(), time.Since(start))
	return res
}

func (s *Session) loop(ctx context.Context) Result {
	for {
		if ctx.Err() != nil {
			return s.cancelled(ctx)
		}

		chunk, err := s.body.Next()
		if err == io.EOF {
			if err := s.decoder.Finish(); err != nil {
				return s.fail(err)
			}
			return s.complete()
		}
		if err != nil {
			if ctx.Err() != nil {
				return s.cancelled(ctx)
			}
			return s.fail(err)
		}

		frames, decodeErr := s.decoder.Feed(chunk)
		for _, f := range frames {
			if ctx.Err() != nil {
				return s.cancelled(ctx)
			}
			s.consumer.OnFrame(f)
			s.frames++
			s.bytes += int64(len(f.Payload))
			s.metrics.FrameDelivered(f.Origin.String(), len(f.Payload))
		}
		if decodeErr != nil {
			return s.fail(decodeErr)
		}
	}
}

func (s *Session) close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

func (s *Session) result(state State) Result {
	s.state.Store(int32(state))
	return Result{
		ID:     s.id,
		State:  state,
		Frames: s.frames,
		Bytes:  s.bytes,
	}
}

func (s *Session) complete() Result {
	if err := s.close(); err != nil {
		s.log.WithError(err).Warn("close after completion failed")
	}
	res := s.result(StateCompleted)
	s.log.WithFields(logrus.Fields{"frames": res.Frames, "bytes": res.Bytes}).Debug("session completed")
	s.consumer.OnComplete()
	return res
}

func (s *Session) cancelled(ctx context.Context) Result {
	if err := s.close(); err != nil {
		s.log.WithError(err).Debug("close after cancellation failed")
	}

	cause := context.Cause(ctx)
	state, reason := StateCancelled, ReasonCaller
	switch {
	case errors.Is(cause, ErrConsumerCancelled):
		reason = ReasonConsumer
	case errors.Is(cause, ErrTimeout), errors.Is(cause, context.DeadlineExceeded):
		state, reason = StateTimedOut, ReasonTimeout
	}

	res := s.result(state)
	res.Reason = reason
	res.Err = cause
	s.log.WithFields(logrus.Fields{"reason": reason, "frames": res.Frames}).Debug("session " + state.String())
	s.consumer.OnCancelled(reason)
	return res
}

func (s *Session) fail(err error) Result {
	if closeErr := s.close(); closeErr != nil {
		err = multierror.Append(err, closeErr)
	}
	res := s.result(StateFailed)
	res.Err = err
	s.log.WithError(err).WithField("frames", res.Frames).Warn("session failed")
	s.consumer.OnError(err)
	return res
}
