package util

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Code is a machine-readable error code carried in the response envelope.
type Code string

// Error codes returned by the gateway.
const (
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeTokenExpired       Code = "TOKEN_EXPIRED"
	CodeInvalidToken       Code = "INVALID_TOKEN"
	CodeForbidden          Code = "FORBIDDEN"
	CodeTooManyRequests    Code = "TOO_MANY_REQUESTS"
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"
	CodeNotFound           Code = "NOT_FOUND"
	CodeMethodNotAllowed   Code = "METHOD_NOT_ALLOWED"
	CodeBadRequest         Code = "BAD_REQUEST"
	CodeInternal           Code = "INTERNAL_SERVER_ERROR"
)

// codeStatus maps each code to the HTTP status that communicates its outcome class.
var codeStatus = map[Code]int{
	CodeUnauthorized:       http.StatusUnauthorized,
	CodeTokenExpired:       http.StatusUnauthorized,
	CodeInvalidToken:       http.StatusUnauthorized,
	CodeForbidden:          http.StatusForbidden,
	CodeTooManyRequests:    http.StatusTooManyRequests,
	CodeServiceUnavailable: http.StatusServiceUnavailable,
	CodeNotFound:           http.StatusNotFound,
	CodeMethodNotAllowed:   http.StatusMethodNotAllowed,
	CodeBadRequest:         http.StatusBadRequest,
	CodeInternal:           http.StatusInternalServerError,
}

// defaultMessages holds the client-facing message for each code.
var defaultMessages = map[Code]string{
	CodeUnauthorized:       "authentication required",
	CodeTokenExpired:       "token has expired",
	CodeInvalidToken:       "invalid token",
	CodeForbidden:          "insufficient permissions",
	CodeTooManyRequests:    "too many requests, please try again later",
	CodeServiceUnavailable: "service temporarily unavailable",
	CodeNotFound:           "route not found",
	CodeMethodNotAllowed:   "method not allowed",
	CodeBadRequest:         "malformed request",
	CodeInternal:           "internal server error",
}

// Status returns the HTTP status for the code, 500 for unknown codes.
func (c Code) Status() int {
	if s, ok := codeStatus[c]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Message returns the default client-facing message for the code.
func (c Code) Message() string {
	if m, ok := defaultMessages[c]; ok {
		return m
	}
	return defaultMessages[CodeInternal]
}

// ErrorBody is the error member of the envelope.
type ErrorBody struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// Envelope is the response shape shared by the gateway and the downstream services.
type Envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// Success wraps data in a successful envelope.
func Success(data any) Envelope {
	return Envelope{Success: true, Data: data}
}

// Failure builds an error envelope. An empty message falls back to the code default.
func Failure(code Code, message string) Envelope {
	if message == "" {
		message = code.Message()
	}
	return Envelope{Error: &ErrorBody{Code: code, Message: message}}
}

// Abort writes an error envelope with the status derived from code and stops the gin chain.
func Abort(c *gin.Context, code Code, message string) {
	AbortWithStatus(c, code.Status(), code, message)
}

// AbortWithStatus writes an error envelope with an explicit status and stops the gin chain.
func AbortWithStatus(c *gin.Context, status int, code Code, message string) {
	c.AbortWithStatusJSON(status, Failure(code, message))
}

// CodeForStatus picks the envelope code for a downstream HTTP status.
func CodeForStatus(status int) Code {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusConflict:
		return CodeBadRequest
	case http.StatusUnauthorized:
		return CodeUnauthorized
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusMethodNotAllowed:
		return CodeMethodNotAllowed
	case http.StatusTooManyRequests:
		return CodeTooManyRequests
	case http.StatusServiceUnavailable:
		return CodeServiceUnavailable
	default:
		return CodeInternal
	}
}
