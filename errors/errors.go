package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents the category of error
type ErrorType int

const (
	ErrorNone ErrorType = iota
	ErrorConnection
	ErrorTransport
	ErrorProtocol
	ErrorTruncatedStream
	ErrorUnsupportedResponse
	ErrorClient
	ErrorServer
	ErrorInvalidArgument
)

func (t ErrorType) String() string {
	switch t {
	case ErrorConnection:
		return "Connection error"
	case ErrorTransport:
		return "Transport error"
	case ErrorProtocol:
		return "Protocol error"
	case ErrorTruncatedStream:
		return "Truncated stream"
	case ErrorUnsupportedResponse:
		return "Unsupported response class"
	case ErrorClient:
		return "Client error"
	case ErrorServer:
		return "Server error"
	case ErrorInvalidArgument:
		return "Invalid argument"
	default:
		return "Unknown error"
	}
}

// TransportError represents transport-layer specific errors
type TransportError int

const (
	TransportErrorNone TransportError = iota
	TransportErrorDnsFailure
	TransportErrorSocketCreateFailure
	TransportErrorSocketConnectFailure
	TransportErrorPermissionDenied
	TransportErrorTlsHandshakeFailure
	TransportErrorUnsupportedTransport
	TransportErrorSocketReadFailure
	TransportErrorSocketWriteFailure
	TransportErrorConnectionClosed
	TransportErrorConnectionReset
	TransportErrorTimeout
	TransportErrorIoUringInit
	TransportErrorIoUringSubmit
)

func (e TransportError) String() string {
	switch e {
	case TransportErrorDnsFailure:
		return "DNS lookup failed"
	case TransportErrorSocketCreateFailure:
		return "socket creation failed"
	case TransportErrorSocketConnectFailure:
		return "socket connection failed"
	case TransportErrorPermissionDenied:
		return "permission denied"
	case TransportErrorTlsHandshakeFailure:
		return "TLS handshake failed"
	case TransportErrorUnsupportedTransport:
		return "transport not supported on this platform"
	case TransportErrorSocketReadFailure:
		return "socket read failed"
	case TransportErrorSocketWriteFailure:
		return "socket write failed"
	case TransportErrorConnectionClosed:
		return "connection closed"
	case TransportErrorConnectionReset:
		return "connection reset"
	case TransportErrorTimeout:
		return "i/o timeout"
	case TransportErrorIoUringInit:
		return "io_uring initialization failed"
	case TransportErrorIoUringSubmit:
		return "io_uring submission failed"
	default:
		return fmt.Sprintf("transport error %d", int(e))
	}
}

// ProtocolError represents protocol-layer specific errors
type ProtocolError int

const (
	ProtocolErrorNone ProtocolError = iota
	ProtocolErrorInvalidStatusLine
	ProtocolErrorInvalidHeader
	ProtocolErrorInvalidChunkedEncoding
	ProtocolErrorInvalidStreamOrigin
	ProtocolErrorHeaderTooLarge
	ProtocolErrorBodyTooLarge
	ProtocolErrorInvalidBody
)

func (e ProtocolError) String() string {
	switch e {
	case ProtocolErrorInvalidStatusLine:
		return "invalid status line"
	case ProtocolErrorInvalidHeader:
		return "invalid header"
	case ProtocolErrorInvalidChunkedEncoding:
		return "invalid chunked encoding"
	case ProtocolErrorInvalidStreamOrigin:
		return "invalid stream origin"
	case ProtocolErrorHeaderTooLarge:
		return "response head too large"
	case ProtocolErrorBodyTooLarge:
		return "response body too large"
	case ProtocolErrorInvalidBody:
		return "invalid response body"
	default:
		return fmt.Sprintf("protocol error %d", int(e))
	}
}

// HttpError is the main error type for the engine client
type HttpError struct {
	Type          ErrorType
	TransportErr  TransportError
	ProtocolErr   ProtocolError
	StatusCode    int
	Message       string
	UnderlyingErr error
}

// Error implements the error interface
func (e *HttpError) Error() string {
	if e == nil {
		return "no error"
	}

	typeStr := e.Type.String()
	switch e.Type {
	case ErrorConnection, ErrorTransport:
		if e.TransportErr != TransportErrorNone {
			typeStr = fmt.Sprintf("%s (%s)", typeStr, e.TransportErr)
		}
	case ErrorProtocol:
		if e.ProtocolErr != ProtocolErrorNone {
			typeStr = fmt.Sprintf("%s (%s)", typeStr, e.ProtocolErr)
		}
	case ErrorUnsupportedResponse, ErrorClient, ErrorServer:
		typeStr = fmt.Sprintf("%s: %d", typeStr, e.StatusCode)
	}

	if e.Message != "" {
		typeStr = fmt.Sprintf("%s: %s", typeStr, e.Message)
	}

	if e.UnderlyingErr != nil {
		return fmt.Sprintf("%s (caused by: %v)", typeStr, e.UnderlyingErr)
	}

	return typeStr
}

// Unwrap returns the underlying error for error chain support
func (e *HttpError) Unwrap() error {
	return e.UnderlyingErr
}

// NewConnectionError creates an error for a failed connection attempt
func NewConnectionError(err TransportError, message string, underlying error) *HttpError {
	return &HttpError{
		Type:          ErrorConnection,
		TransportErr:  err,
		Message:       message,
		UnderlyingErr: underlying,
	}
}

// NewTransportError creates an error for an I/O failure on an established connection
func NewTransportError(err TransportError, message string, underlying error) *HttpError {
	return &HttpError{
		Type:          ErrorTransport,
		TransportErr:  err,
		Message:       message,
		UnderlyingErr: underlying,
	}
}

// NewProtocolError creates a new protocol error
func NewProtocolError(err ProtocolError, message string) *HttpError {
	return &HttpError{
		Type:        ErrorProtocol,
		ProtocolErr: err,
		Message:     message,
	}
}

// NewTruncatedStreamError reports a stream that ended inside a frame or body
func NewTruncatedStreamError(message string) *HttpError {
	return &HttpError{
		Type:    ErrorTruncatedStream,
		Message: message,
	}
}

// NewUnsupportedResponseError reports an informational or redirection status
func NewUnsupportedResponseError(status int) *HttpError {
	return &HttpError{
		Type:       ErrorUnsupportedResponse,
		StatusCode: status,
		Message:    "client does not consume this response class",
	}
}

// NewApiError wraps a failed status and the daemon's message. 5xx codes
// produce a server error, everything else a client error.
func NewApiError(status int, message string) *HttpError {
	t := ErrorClient
	if status >= 500 {
		t = ErrorServer
	}
	return &HttpError{
		Type:       t,
		StatusCode: status,
		Message:    message,
	}
}

// NewInvalidArgumentError creates a new invalid argument error
func NewInvalidArgumentError(message string) *HttpError {
	return &HttpError{
		Type:    ErrorInvalidArgument,
		Message: message,
	}
}

// TypeOf returns the ErrorType of the first HttpError in err's chain.
func TypeOf(err error) ErrorType {
	var he *HttpError
	if stderrors.As(err, &he) {
		return he.Type
	}
	return ErrorNone
}

// StatusCode returns the HTTP status attached to err, or 0.
func StatusCode(err error) int {
	var he *HttpError
	if stderrors.As(err, &he) {
		return he.StatusCode
	}
	return 0
}

func IsConnectionError(err error) bool     { return TypeOf(err) == ErrorConnection }
func IsTransportError(err error) bool      { return TypeOf(err) == ErrorTransport }
func IsProtocolError(err error) bool       { return TypeOf(err) == ErrorProtocol }
func IsTruncatedStream(err error) bool     { return TypeOf(err) == ErrorTruncatedStream }
func IsUnsupportedResponse(err error) bool { return TypeOf(err) == ErrorUnsupportedResponse }
func IsClientError(err error) bool         { return TypeOf(err) == ErrorClient }
func IsServerError(err error) bool         { return TypeOf(err) == ErrorServer }

// IsTransportCode reports whether err carries the given transport detail code.
func IsTransportCode(err error, code TransportError) bool {
	var he *HttpError
	return stderrors.As(err, &he) && he.TransportErr == code
}
