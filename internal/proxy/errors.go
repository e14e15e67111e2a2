package proxy

import (
	"errors"
	"fmt"
)

// ErrResponseTooLarge indicates a downstream body above the configured cap.
var ErrResponseTooLarge = errors.New("response body too large")

// StatusError is a downstream answer whose status counts as a failure.
// The response is still relayed to the client.
type StatusError struct {
	Service  string
	Response *Response
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("service %s: downstream status %d", e.Service, e.Response.Status)
}
