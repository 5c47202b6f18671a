// Package response classifies engine responses by status class.
package response

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	httperrors "github.com/nczempin/enginestream/errors"
	"github.com/nczempin/enginestream/protocol"
)

// Type is the class of an HTTP status code.
type Type int

const (
	Informational Type = iota + 1
	Success
	Redirection
	ClientError
	ServerError
)

func (t Type) String() string {
	switch t {
	case Informational:
		return "informational"
	case Success:
		return "success"
	case Redirection:
		return "redirection"
	case ClientError:
		return "client error"
	case ServerError:
		return "server error"
	default:
		return "unknown"
	}
}

// Classify maps status to its class. Codes outside 100-599 are a protocol
// error.
func Classify(status int) (Type, error) {
	switch {
	case status >= 100 && status < 200:
		return Informational, nil
	case status >= 200 && status < 300:
		return Success, nil
	case status >= 300 && status < 400:
		return Redirection, nil
	case status >= 400 && status < 500:
		return ClientError, nil
	case status >= 500 && status < 600:
		return ServerError, nil
	default:
		return 0, httperrors.NewProtocolError(httperrors.ProtocolErrorInvalidStatusLine, fmt.Sprintf("status code %d out of range", status))
	}
}

// CheckStatus returns nil for a success status and the error the caller
// should see otherwise. body is the already drained error body, if any; it
// is not consulted for informational or redirection responses.
func CheckStatus(status int, body []byte) error {
	t, err := Classify(status)
	if err != nil {
		return err
	}

	switch t {
	case Success:
		return nil
	case Informational, Redirection:
		return httperrors.NewUnsupportedResponseError(status)
	case ClientError, ServerError:
		return httperrors.NewApiError(status, errorMessage(status, body))
	default:
		panic(fmt.Sprintf("unhandled response type %d", t))
	}
}

// errorResponse is the body the daemon sends with failed calls. Other
// fields are ignored.
type errorResponse struct {
	Message string `json:"message"`
}

func errorMessage(status int, body []byte) string {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return fmt.Sprintf("request failed with status %d", status)
	}

	var resp errorResponse
	if err := json.Unmarshal(body, &resp); err == nil && resp.Message != "" {
		return strings.TrimSpace(resp.Message)
	}
	return string(body)
}

// Envelope is the classified result of one call. Data holds the JSON body of
// an ordinary call; Stream holds the still-open body of a streaming call.
// Exactly one of them is set for a Success envelope.
type Envelope struct {
	StatusCode int
	Type       Type
	Headers    []protocol.HttpHeader
	Data       json.RawMessage
	Stream     protocol.ChunkSource
}

// Header returns the first value of the named header, matched case-insensitively.
func (e *Envelope) Header(key string) string {
	for _, h := range e.Headers {
		if strings.EqualFold(h.Key, key) {
			return h.Value
		}
	}
	return ""
}

// Decode unmarshals Data into v. Unknown fields are ignored; an empty body
// leaves v untouched.
func (e *Envelope) Decode(v any) error {
	if len(bytes.TrimSpace(e.Data)) == 0 || v == nil {
		return nil
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return httperrors.NewProtocolError(httperrors.ProtocolErrorInvalidBody, err.Error())
	}
	return nil
}
