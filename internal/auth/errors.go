package auth

import (
	"errors"
	"fmt"

	"github.com/vyrodovalexey/edgegw/internal/util"
)

// Sentinel errors for authentication and authorization.
var (
	// ErrMissingCredential indicates that no bearer credential was presented.
	ErrMissingCredential = errors.New("missing credential")

	// ErrTokenExpired indicates that the credential has expired.
	ErrTokenExpired = errors.New("token expired")

	// ErrInvalidToken indicates a malformed, badly signed or otherwise unusable credential.
	ErrInvalidToken = errors.New("invalid token")

	// ErrForbidden indicates that the principal's role is not permitted.
	ErrForbidden = errors.New("forbidden")
)

// Error is an authentication or authorization failure that knows its envelope code.
type Error struct {
	Kind    error
	Message string
	Cause   error
}

// NewError creates an Error of the given kind.
func NewError(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// NewErrorWithCause creates an Error of the given kind wrapping cause.
func NewErrorWithCause(kind error, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%v: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches the error's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

// Code returns the envelope code for the failure.
func (e *Error) Code() util.Code {
	return CodeFor(e.Kind)
}

// CodeFor maps an authentication error to its envelope code.
func CodeFor(err error) util.Code {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTokenExpired):
		return util.CodeTokenExpired
	case errors.Is(err, ErrInvalidToken):
		return util.CodeInvalidToken
	case errors.Is(err, ErrForbidden):
		return util.CodeForbidden
	default:
		return util.CodeUnauthorized
	}
}
