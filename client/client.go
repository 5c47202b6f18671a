// Package client talks to the engine API over a transport.Transport.
//
// Ordinary calls are classified and decoded in one go. Streaming calls (exec,
// attach, logs, stats) hand the open body to a stream.Session that delivers
// frames to a caller supplied consumer. Every call uses its own connection.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	httperrors "github.com/nczempin/enginestream/errors"
	"github.com/nczempin/enginestream/frame"
	"github.com/nczempin/enginestream/metrics"
	"github.com/nczempin/enginestream/protocol"
	"github.com/nczempin/enginestream/response"
	"github.com/nczempin/enginestream/stream"
	"github.com/nczempin/enginestream/transport"
	"github.com/sirupsen/logrus"
)

const (
	// maxBodySize caps the body of an ordinary call.
	maxBodySize = 32 << 20
	// maxErrorBodySize caps the diagnostic body of a failed streaming call.
	maxErrorBodySize = 64 << 10
)

var clientLog = logrus.WithField("subsystem", "client")

// SetLogger sets the logger for the client package.
func SetLogger(logger *logrus.Entry) {
	fields := clientLog.Data
	clientLog = logger.WithFields(fields)
}

// TransportFactory creates the transport for one call.
type TransportFactory func(d transport.Descriptor) (transport.Transport, error)

// Option configures a Client.
type Option func(*Client)

// WithAPIVersion sets the version versioned paths are prefixed with.
func WithAPIVersion(version string) Option {
	return func(c *Client) {
		c.apiVersion = strings.TrimPrefix(version, "v")
	}
}

// WithLogger sets the entry the client and its sessions log through.
func WithLogger(logger *logrus.Entry) Option {
	return func(c *Client) {
		c.log = logger
	}
}

// WithMetrics records streaming sessions in m.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithTransportFactory replaces transport.New.
func WithTransportFactory(f TransportFactory) Option {
	return func(c *Client) {
		c.newTransport = f
	}
}

// Client is an engine API client. It holds no connection and is safe for
// concurrent use.
type Client struct {
	desc         transport.Descriptor
	apiVersion   string
	log          *logrus.Entry
	metrics      *metrics.Collector
	newTransport TransportFactory
}

// NewClient creates a client for the daemon described by d.
func NewClient(d transport.Descriptor, opts ...Option) (*Client, error) {
	if d.Address == "" {
		return nil, httperrors.NewInvalidArgumentError("daemon address is empty")
	}

	c := &Client{
		desc:         d,
		apiVersion:   "1.41",
		log:          clientLog,
		newTransport: transport.New,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.apiVersion == "" {
		return nil, httperrors.NewInvalidArgumentError("api version is empty")
	}

	c.log = c.log.WithField("daemon", d.String())
	return c, nil
}

// APIVersion returns the version paths are prefixed with.
func (c *Client) APIVersion() string {
	return c.apiVersion
}

// versioned prefixes an API path with the client's version.
func (c *Client) versioned(format string, args ...any) string {
	return "/v" + c.apiVersion + fmt.Sprintf(format, args...)
}

func (c *Client) open(ctx context.Context) (transport.Transport, error) {
	t, err := c.newTransport(c.desc)
	if err != nil {
		return nil, err
	}
	if err := t.Connect(ctx); err != nil {
		t.Close()
		return nil, err
	}
	return t, nil
}

// interruptOn makes reads on t fail once ctx is done, and applies its
// deadline. The returned func detaches the watch.
func interruptOn(ctx context.Context, t transport.Transport) func() bool {
	if deadline, ok := ctx.Deadline(); ok {
		t.SetReadDeadline(deadline)
	}
	return context.AfterFunc(ctx, func() {
		t.SetReadDeadline(time.Unix(1, 0))
	})
}

// contextError prefers the caller's cancellation over the read error it caused.
func contextError(ctx context.Context, err error) error {
	if ctx.Err() == context.Canceled {
		return context.Cause(ctx)
	}
	return err
}

// Do performs an ordinary call. A success body is decoded into out when out
// is not nil; failures come back as typed errors carrying the status code.
func (c *Client) Do(ctx context.Context, req *protocol.HttpRequest, out any) (*response.Envelope, error) {
	if req.BodyStream != nil {
		return nil, httperrors.NewInvalidArgumentError("ordinary calls cannot stream a request body")
	}
	if c.desc.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.desc.RequestTimeout)
		defer cancel()
	}

	t, err := c.open(ctx)
	if err != nil {
		return nil, err
	}
	defer t.Close()
	stop := interruptOn(ctx, t)
	defer stop()

	resp, err := protocol.NewHttp1Protocol(t, c.desc.HostHeader()).RoundTrip(req)
	if err != nil {
		return nil, contextError(ctx, err)
	}

	typ, err := response.Classify(resp.StatusCode)
	if err != nil {
		return nil, err
	}
	if typ == response.Informational || typ == response.Redirection {
		return nil, response.CheckStatus(resp.StatusCode, nil)
	}

	data, err := protocol.ReadAll(resp.Body, maxBodySize)
	if err != nil {
		return nil, contextError(ctx, err)
	}
	if err := response.CheckStatus(resp.StatusCode, data); err != nil {
		c.log.WithFields(logrus.Fields{"path": req.Path, "status": resp.StatusCode}).Debug("call failed")
		return nil, err
	}

	env := &response.Envelope{
		StatusCode: resp.StatusCode,
		Type:       typ,
		Headers:    resp.Headers,
		Data:       data,
	}
	if err := env.Decode(out); err != nil {
		return nil, err
	}
	return env, nil
}

// StreamOptions configures a streaming call.
type StreamOptions struct {
	// TTY selects raw passthrough instead of frame demultiplexing. It must
	// match how the exec or container was created.
	TTY      bool
	Consumer stream.Consumer
	// Timeout bounds the whole call, response head included. Zero means
	// only ctx applies.
	Timeout time.Duration
	// Stdin, when set, is sent as a chunked request body while output
	// streams back.
	Stdin io.Reader
}

// Stream performs a streaming call. Failures before the body starts, such as
// a connection error or a non-success status, are returned as the error and
// the consumer is never started. Once the session runs, its outcome is
// reported through the consumer and the Result.
func (c *Client) Stream(ctx context.Context, req *protocol.HttpRequest, opts StreamOptions) (stream.Result, error) {
	if opts.Consumer == nil {
		return stream.Result{}, httperrors.NewInvalidArgumentError("stream consumer is nil")
	}
	if opts.Timeout < 0 {
		return stream.Result{}, httperrors.NewInvalidArgumentError("stream timeout is negative")
	}
	if opts.Stdin != nil {
		if len(req.Body) > 0 {
			return stream.Result{}, httperrors.NewInvalidArgumentError("stdin cannot be combined with a request body")
		}
		r := *req
		r.BodyStream = opts.Stdin
		req = &r
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, opts.Timeout, stream.ErrTimeout)
		defer cancel()
	}

	t, err := c.open(ctx)
	if err != nil {
		return stream.Result{}, err
	}

	stop := interruptOn(ctx, t)
	resp, err := protocol.NewHttp1Protocol(t, c.desc.HostHeader()).RoundTrip(req)
	stop()
	if err != nil {
		t.Close()
		return stream.Result{}, contextError(ctx, err)
	}

	if err := c.checkStreamStatus(resp); err != nil {
		t.Close()
		return stream.Result{}, err
	}
	if err := t.SetReadDeadline(time.Time{}); err != nil {
		t.Close()
		return stream.Result{}, err
	}

	mode := frame.ModeFor(opts.TTY)
	c.log.WithFields(logrus.Fields{"path": req.Path, "mode": mode}).Debug("streaming response")

	// the call's deadline already covers the session
	session := stream.NewSession(resp.Body, t, mode, opts.Consumer,
		stream.WithLogger(c.log),
		stream.WithMetrics(c.metrics),
	)
	return session.Run(ctx), nil
}

// checkStreamStatus rejects everything but a success before any decoding
// starts. Error bodies are read so the daemon's message can be reported.
func (c *Client) checkStreamStatus(resp *protocol.HttpResponse) error {
	typ, err := response.Classify(resp.StatusCode)
	if err != nil {
		return err
	}

	switch typ {
	case response.Success:
		return nil
	case response.ClientError, response.ServerError:
		data, err := protocol.ReadAll(resp.Body, maxErrorBodySize)
		if err != nil {
			c.log.WithError(err).Debug("could not read error body")
		}
		return response.CheckStatus(resp.StatusCode, data)
	default:
		return response.CheckStatus(resp.StatusCode, nil)
	}
}

func jsonRequest(method protocol.HttpMethod, path string, query url.Values, body any) (*protocol.HttpRequest, error) {
	req := &protocol.HttpRequest{Method: method, Path: path, Query: query}
	if body == nil {
		return req, nil
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, httperrors.NewInvalidArgumentError("encode request body: " + err.Error())
	}
	req.Body = data
	req.Headers = append(req.Headers, protocol.HttpHeader{Key: "Content-Type", Value: "application/json"})
	return req, nil
}
