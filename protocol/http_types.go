package protocol

import (
	"io"
	"net/url"
	"strings"
)

// HttpMethod represents HTTP request methods
type HttpMethod int

const (
	MethodGet HttpMethod = iota
	MethodPost
	MethodPut
	MethodDelete
	MethodHead
)

func (m HttpMethod) String() string {
	switch m {
	case MethodPost:
		return "POST"
	case MethodPut:
		return "PUT"
	case MethodDelete:
		return "DELETE"
	case MethodHead:
		return "HEAD"
	default:
		return "GET"
	}
}

// HttpHeader represents an HTTP header key-value pair
type HttpHeader struct {
	Key   string
	Value string
}

// HttpRequest represents an HTTP request
type HttpRequest struct {
	Method  HttpMethod
	Path    string
	Query   url.Values
	Headers []HttpHeader
	Body    []byte
	// BodyStream is sent with chunked transfer encoding while the response
	// is being read. It is mutually exclusive with Body.
	BodyStream io.Reader
}

// HttpResponse represents the head of a response and its still-open body.
type HttpResponse struct {
	StatusCode    int
	StatusMessage string
	Headers       []HttpHeader
	// ContentLength is -1 when the body is chunked or runs until close.
	ContentLength int64
	Body          ChunkSource
}

// Header returns the first value of the named header, matched case-insensitively.
func (r *HttpResponse) Header(key string) string {
	return headerValue(r.Headers, key)
}

// ChunkSource is a lazy, forward-only sequence of byte chunks. Next returns
// io.EOF once the body ended cleanly. The returned slice is only valid until
// the following call.
type ChunkSource interface {
	Next() ([]byte, error)
}

func headerValue(headers []HttpHeader, key string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Key, key) {
			return h.Value
		}
	}
	return ""
}
