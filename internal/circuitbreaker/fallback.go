package circuitbreaker

import (
	"github.com/vyrodovalexey/edgegw/internal/util"
)

// Unavailable is the degraded result served when a call is rejected or fails
// at the transport level. It is an error so it can travel the normal error
// path, and it always maps to SERVICE_UNAVAILABLE.
type Unavailable struct {
	Service string
	Message string
	Cause   error
}

// Error implements the error interface.
func (u *Unavailable) Error() string {
	return u.Message
}

// Unwrap returns the underlying error.
func (u *Unavailable) Unwrap() error {
	return u.Cause
}

// Is makes Unavailable match util.ErrUnavailable.
func (u *Unavailable) Is(target error) bool {
	return target == util.ErrUnavailable
}

// Code returns the envelope error code.
func (u *Unavailable) Code() util.Code {
	return util.CodeServiceUnavailable
}

// Envelope renders the fallback as a response body.
func (u *Unavailable) Envelope() util.Envelope {
	return util.Failure(util.CodeServiceUnavailable, u.Message)
}
