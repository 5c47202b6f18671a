// Package protocol speaks HTTP/1.1 to the engine over a transport.Transport.
//
// Unlike a general purpose client it never buffers a response body: the head
// is parsed synchronously and the body is handed out as a ChunkSource that
// the caller drains at its own pace.
package protocol

import (
	"bufio"
	stderrors "errors"
	"fmt"
	"io"
	"net/http/httputil"
	"strconv"
	"strings"

	httperrors "github.com/nczempin/enginestream/errors"
	"github.com/nczempin/enginestream/transport"
	"github.com/sirupsen/logrus"
)

const (
	maxHeadBytes  = 1 << 20
	readChunkSize = 32 << 10
	userAgent     = "enginestream/1"
)

var protocolLog = logrus.WithField("subsystem", "protocol")

// SetLogger sets the logger for the protocol package.
func SetLogger(logger *logrus.Entry) {
	fields := protocolLog.Data
	protocolLog = logger.WithFields(fields)
}

// Http1Protocol implements HTTP/1.1 protocol over a transport. One instance
// serves exactly one request.
type Http1Protocol struct {
	transport transport.Transport
	host      string
	reader    *bufio.Reader
	buffer    []byte
}

// NewHttp1Protocol creates a new HTTP/1.1 protocol handler. host is sent in
// the Host header unless the request sets its own.
func NewHttp1Protocol(t transport.Transport, host string) *Http1Protocol {
	return &Http1Protocol{
		transport: t,
		host:      host,
		reader:    bufio.NewReaderSize(t, readChunkSize),
		buffer:    make([]byte, 0, 1024),
	}
}

// RoundTrip writes req and parses the response head. The returned body is
// open; the caller drains it and closes the transport.
func (p *Http1Protocol) RoundTrip(req *HttpRequest) (*HttpResponse, error) {
	if err := p.buildRequest(req); err != nil {
		return nil, err
	}

	if _, err := p.transport.Write(p.buffer); err != nil {
		return nil, err
	}

	if req.BodyStream != nil {
		go p.pumpBody(req.BodyStream)
	}

	return p.readHead(req.Method)
}

// buildRequest formats the request head (and a fixed body) into the internal buffer
func (p *Http1Protocol) buildRequest(req *HttpRequest) error {
	if req.BodyStream != nil && len(req.Body) > 0 {
		return httperrors.NewInvalidArgumentError("request cannot carry both Body and BodyStream")
	}
	if !strings.HasPrefix(req.Path, "/") {
		return httperrors.NewInvalidArgumentError("request path must start with /: " + req.Path)
	}

	p.buffer = p.buffer[:0]

	target := req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}
	p.buffer = fmt.Appendf(p.buffer, "%s %s HTTP/1.1\r\n", req.Method, target)

	if headerValue(req.Headers, "Host") == "" {
		p.buffer = fmt.Appendf(p.buffer, "Host: %s\r\n", p.host)
	}
	if headerValue(req.Headers, "User-Agent") == "" {
		p.buffer = fmt.Appendf(p.buffer, "User-Agent: %s\r\n", userAgent)
	}
	for _, header := range req.Headers {
		if strings.ContainsAny(header.Key, "\r\n:") || strings.ContainsAny(header.Value, "\r\n") {
			return httperrors.NewInvalidArgumentError("invalid header " + strconv.Quote(header.Key))
		}
		p.buffer = fmt.Appendf(p.buffer, "%s: %s\r\n", header.Key, header.Value)
	}

	switch {
	case req.BodyStream != nil:
		p.buffer = append(p.buffer, "Transfer-Encoding: chunked\r\n"...)
	case len(req.Body) > 0 || req.Method == MethodPost || req.Method == MethodPut:
		p.buffer = fmt.Appendf(p.buffer, "Content-Length: %d\r\n", len(req.Body))
	}

	p.buffer = append(p.buffer, "\r\n"...)
	p.buffer = append(p.buffer, req.Body...)
	return nil
}

// pumpBody streams body as chunks until it is exhausted or the connection
// stops accepting writes.
func (p *Http1Protocol) pumpBody(body io.Reader) {
	cw := httputil.NewChunkedWriter(p.transport)
	_, err := io.Copy(cw, body)
	if err == nil {
		err = cw.Close()
	}
	if err == nil {
		_, err = io.WriteString(p.transport, "\r\n")
	}
	if err != nil {
		protocolLog.WithError(err).Debug("request body stream stopped")
	}
}

// readHead parses the status line and headers and sets up body framing
func (p *Http1Protocol) readHead(method HttpMethod) (*HttpResponse, error) {
	read := 0
	statusLine, err := p.readLine(&read)
	if err != nil {
		if err == io.EOF {
			return nil, httperrors.NewTransportError(httperrors.TransportErrorConnectionClosed, "connection closed before response", nil)
		}
		return nil, err
	}

	resp, err := parseStatusLine(statusLine)
	if err != nil {
		return nil, err
	}

	for {
		line, err := p.readLine(&read)
		if err != nil {
			if err == io.EOF {
				return nil, httperrors.NewTransportError(httperrors.TransportErrorConnectionClosed, "connection closed inside response head", nil)
			}
			return nil, err
		}
		if line == "" {
			break
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok || key == "" || strings.ContainsAny(key, " \t") {
			return nil, httperrors.NewProtocolError(httperrors.ProtocolErrorInvalidHeader, strconv.Quote(line))
		}
		resp.Headers = append(resp.Headers, HttpHeader{Key: key, Value: strings.TrimSpace(value)})
	}

	if err := p.frameBody(resp, method); err != nil {
		return nil, err
	}
	return resp, nil
}

// readLine reads one CRLF terminated line, counting it against the head
// limit as it arrives.
func (p *Http1Protocol) readLine(read *int) (string, error) {
	var line []byte
	for {
		frag, err := p.reader.ReadSlice('\n')
		*read += len(frag)
		if *read > maxHeadBytes {
			return "", httperrors.NewProtocolError(httperrors.ProtocolErrorHeaderTooLarge, fmt.Sprintf("more than %d bytes", maxHeadBytes))
		}
		line = append(line, frag...)
		if err == bufio.ErrBufferFull {
			continue
		}
		if err != nil {
			if err == io.EOF && len(line) > 0 {
				return "", httperrors.NewTransportError(httperrors.TransportErrorConnectionClosed, "connection closed inside response head", nil)
			}
			return "", err
		}
		break
	}
	return strings.TrimSuffix(strings.TrimSuffix(string(line), "\n"), "\r"), nil
}

// parseStatusLine parses "HTTP/1.1 200 OK"
func parseStatusLine(line string) (*HttpResponse, error) {
	statusParts := strings.SplitN(line, " ", 3)
	if len(statusParts) < 2 || !strings.HasPrefix(statusParts[0], "HTTP/1.") {
		return nil, httperrors.NewProtocolError(httperrors.ProtocolErrorInvalidStatusLine, strconv.Quote(line))
	}

	code := statusParts[1]
	statusCode, err := strconv.Atoi(code)
	if err != nil || len(code) != 3 {
		return nil, httperrors.NewProtocolError(httperrors.ProtocolErrorInvalidStatusLine, "invalid status code "+strconv.Quote(code))
	}

	resp := &HttpResponse{StatusCode: statusCode, ContentLength: -1}
	if len(statusParts) == 3 {
		resp.StatusMessage = statusParts[2]
	}
	return resp, nil
}

func (p *Http1Protocol) frameBody(resp *HttpResponse, method HttpMethod) error {
	if method == MethodHead || resp.StatusCode/100 == 1 || resp.StatusCode == 204 || resp.StatusCode == 304 {
		resp.ContentLength = 0
		resp.Body = &bodySource{done: true}
		return nil
	}

	if te := resp.Header("Transfer-Encoding"); te != "" {
		if !strings.EqualFold(strings.TrimSpace(te), "chunked") {
			return httperrors.NewProtocolError(httperrors.ProtocolErrorInvalidHeader, "unsupported transfer encoding "+strconv.Quote(te))
		}
		resp.Body = newBodySource(httputil.NewChunkedReader(p.reader), -1, true)
		return nil
	}

	if cl := resp.Header("Content-Length"); cl != "" {
		n, err := strconv.ParseInt(cl, 10, 64)
		if err != nil || n < 0 {
			return httperrors.NewProtocolError(httperrors.ProtocolErrorInvalidHeader, "invalid Content-Length "+strconv.Quote(cl))
		}
		resp.ContentLength = n
		resp.Body = newBodySource(io.LimitReader(p.reader, n), n, false)
		return nil
	}

	resp.Body = newBodySource(p.reader, -1, false)
	return nil
}

// bodySource adapts a framed body reader to ChunkSource and maps its
// failures onto the error taxonomy. Once it returns an error, including
// io.EOF, every later call returns the same error.
type bodySource struct {
	r         io.Reader
	buf       []byte
	remaining int64
	chunked   bool
	pending   error
	done      bool
	err       error
}

func newBodySource(r io.Reader, length int64, chunked bool) *bodySource {
	return &bodySource{
		r:         r,
		buf:       make([]byte, readChunkSize),
		remaining: length,
		chunked:   chunked,
	}
}

func (s *bodySource) Next() ([]byte, error) {
	for {
		if s.err != nil {
			return nil, s.err
		}
		if s.pending != nil {
			s.err = s.mapError(s.pending)
			s.pending = nil
			continue
		}
		if s.done || s.remaining == 0 {
			s.err = io.EOF
			continue
		}

		n, err := s.r.Read(s.buf)
		s.pending = err
		if n > 0 {
			if s.remaining > 0 {
				s.remaining -= int64(n)
			}
			return s.buf[:n], nil
		}
	}
}

func (s *bodySource) mapError(err error) error {
	var he *httperrors.HttpError
	switch {
	case err == io.EOF:
		if s.remaining > 0 {
			return httperrors.NewTruncatedStreamError(fmt.Sprintf("body ended with %d bytes outstanding", s.remaining))
		}
		return io.EOF
	case stderrors.Is(err, io.ErrUnexpectedEOF):
		return httperrors.NewTruncatedStreamError("chunked body ended inside a chunk")
	case stderrors.As(err, &he):
		return err
	case s.chunked:
		return &httperrors.HttpError{
			Type:          httperrors.ErrorProtocol,
			ProtocolErr:   httperrors.ProtocolErrorInvalidChunkedEncoding,
			UnderlyingErr: err,
		}
	default:
		return httperrors.NewTransportError(httperrors.TransportErrorSocketReadFailure, "read body", err)
	}
}

// ReadAll drains body, failing once more than limit bytes arrive.
func ReadAll(body ChunkSource, limit int64) ([]byte, error) {
	var out []byte
	for {
		chunk, err := body.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		if int64(len(out)+len(chunk)) > limit {
			return out, httperrors.NewProtocolError(httperrors.ProtocolErrorBodyTooLarge, fmt.Sprintf("more than %d bytes", limit))
		}
		out = append(out, chunk...)
	}
}
