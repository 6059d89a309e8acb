package client

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"

	"github.com/theapemachine/a2a-sdk/pkg/sse"
)

/*
The client surfaces transport failures as a small typed hierarchy so
callers can branch on what went wrong rather than string-matching:

	HTTPError          non-2xx responses, with the extracted server message
	TimeoutError       deadline or network timeout on a call
	JSONError          a payload that would not decode
	InvalidArgsError   a call that was malformed before it left the client
	InvalidStateError  a protocol-order violation observed by the client

Application-level errors returned inside a JSON-RPC envelope or a gRPC
status keep their *errors.RpcError form, codes intact.
*/

// HTTPError reports a non-2xx HTTP response.
type HTTPError struct {
	Status  int
	Message string
	Body    []byte
	Headers http.Header
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("agent returned HTTP %d: %s", e.Status, e.Message)
}

// TimeoutError reports a call that ran out of time.
type TimeoutError struct {
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request timed out: %v", e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// JSONError reports a response payload that would not decode.
type JSONError struct {
	Err error
}

func (e *JSONError) Error() string {
	return fmt.Sprintf("failed to decode response: %v", e.Err)
}

func (e *JSONError) Unwrap() error { return e.Err }

// InvalidArgsError reports a malformed call rejected client-side.
type InvalidArgsError struct {
	Message string
}

func (e *InvalidArgsError) Error() string { return e.Message }

// InvalidStateError reports a protocol-order violation, such as a message
// event arriving after a task snapshot.
type InvalidStateError struct {
	Message string
}

func (e *InvalidStateError) Error() string { return e.Message }

// newHTTPError builds an HTTPError from a consumed response body, digging
// a readable message out of whatever error shape the server produced.
func newHTTPError(res *http.Response, body []byte) *HTTPError {
	return &HTTPError{
		Status:  res.StatusCode,
		Message: sse.ExtractErrorMessage(body, http.StatusText(res.StatusCode)),
		Body:    body,
		Headers: res.Header,
	}
}

// asCallError normalizes low-level transport failures, folding timeouts
// into TimeoutError and leaving everything else untouched.
func asCallError(err error) error {
	if err == nil {
		return nil
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Err: err}
	}

	var netErr net.Error

	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{Err: err}
	}

	return err
}
