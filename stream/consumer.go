package stream

import (
	"io"
	"sync"

	"github.com/nczempin/enginestream/frame"
)

// ConsumerFuncs adapts optional callbacks to a Consumer. Nil fields are
// skipped.
type ConsumerFuncs struct {
	Start     func(cancel CancelFunc)
	Frame     func(f frame.Frame)
	Complete  func()
	Error     func(err error)
	Cancelled func(reason Reason)
}

func (c ConsumerFuncs) OnStart(cancel CancelFunc) {
	if c.Start != nil {
		c.Start(cancel)
	}
}

func (c ConsumerFuncs) OnFrame(f frame.Frame) {
	if c.Frame != nil {
		c.Frame(f)
	}
}

func (c ConsumerFuncs) OnComplete() {
	if c.Complete != nil {
		c.Complete()
	}
}

func (c ConsumerFuncs) OnError(err error) {
	if c.Error != nil {
		c.Error(err)
	}
}

func (c ConsumerFuncs) OnCancelled(reason Reason) {
	if c.Cancelled != nil {
		c.Cancelled(reason)
	}
}

// WriterConsumer copies frames to writers the way the engine CLI does:
// stdout and stdin echo go to Stdout, stderr to Stderr, raw TTY output to
// Stdout. A nil writer discards its stream. The first write error cancels
// the session.
type WriterConsumer struct {
	Stdout io.Writer
	Stderr io.Writer

	mu     sync.Mutex
	cancel CancelFunc
	err    error
}

// NewWriterConsumer creates a WriterConsumer for stdout and stderr.
func NewWriterConsumer(stdout, stderr io.Writer) *WriterConsumer {
	return &WriterConsumer{Stdout: stdout, Stderr: stderr}
}

func (w *WriterConsumer) OnStart(cancel CancelFunc) {
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()
}

func (w *WriterConsumer) OnFrame(f frame.Frame) {
	out := w.Stdout
	if f.Origin == frame.Stderr {
		out = w.Stderr
	}
	if out == nil {
		return
	}

	if _, err := out.Write(f.Payload); err != nil {
		w.mu.Lock()
		if w.err == nil {
			w.err = err
		}
		cancel := w.cancel
		w.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	}
}

func (w *WriterConsumer) OnComplete() {}

func (w *WriterConsumer) OnError(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err == nil {
		w.err = err
	}
}

func (w *WriterConsumer) OnCancelled(Reason) {}

// Err returns the first write or stream error seen.
func (w *WriterConsumer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}
