package stream

import (
	"errors"

	"github.com/nczempin/enginestream/frame"
)

// State is the lifecycle position of a Session.
type State int32

const (
	StateStarting State = iota
	StateStreaming
	StateCompleted
	StateCancelled
	StateTimedOut
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateTimedOut:
		return "timed_out"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is a final state.
func (s State) Terminal() bool {
	return s >= StateCompleted
}

// Reason says who stopped a session early.
type Reason int

const (
	// ReasonCaller means the context passed to Run was cancelled.
	ReasonCaller Reason = iota
	// ReasonConsumer means the consumer used its CancelFunc.
	ReasonConsumer
	// ReasonTimeout means the session timeout, or the caller's deadline, elapsed.
	ReasonTimeout
)

func (r Reason) String() string {
	switch r {
	case ReasonConsumer:
		return "consumer"
	case ReasonTimeout:
		return "timeout"
	default:
		return "caller"
	}
}

var (
	// ErrTimeout is the cancellation cause of a session whose timeout elapsed.
	ErrTimeout = errors.New("stream session timed out")
	// ErrConsumerCancelled is the cancellation cause when the consumer stops a session.
	ErrConsumerCancelled = errors.New("stream session cancelled by consumer")
)

// CancelFunc stops a session. It may be called from any goroutine, any
// number of times.
type CancelFunc func()

// Consumer receives the output of one session. All callbacks run on the
// goroutine that called Run. OnFrame applies backpressure: no further data
// is read until it returns. Exactly one of OnComplete, OnError and
// OnCancelled is called, after the connection has been closed.
type Consumer interface {
	OnStart(cancel CancelFunc)
	OnFrame(f frame.Frame)
	OnComplete()
	OnError(err error)
	OnCancelled(reason Reason)
}

// Result summarizes a finished session.
type Result struct {
	ID    string
	State State
	// Reason is set for Cancelled and TimedOut sessions.
	Reason Reason
	// Frames and Bytes count what was delivered to the consumer.
	Frames int
	Bytes  int64
	// Err is the failure of a Failed session, or the cancellation cause of
	// a Cancelled or TimedOut one.
	Err error
}
