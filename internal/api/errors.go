package api

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is the single error shape returned by Client. Message may equal Code.
type Error struct {
	Message string
	Code    ErrorCode
	// Status is the HTTP status, or 0 when no response was received.
	Status int
	Err    error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	switch {
	case e.Status > 0 && e.Err != nil:
		return fmt.Sprintf("%s (status %d): %v", msg, e.Status, e.Err)
	case e.Status > 0:
		return fmt.Sprintf("%s (status %d)", msg, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", msg, e.Err)
	default:
		return msg
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, status int, message string, err error) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// IsCode reports whether err is an *Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// CodeOf returns the code of err, or CodeUnknown.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

// IsAuthError reports whether err was caused by a rejected token.
func IsAuthError(err error) bool {
	if IsCode(err, CodeWebhookAuth) {
		return true
	}
	s := StatusOf(err)
	return s == http.StatusUnauthorized || s == http.StatusForbidden
}

// IsNotFoundError reports whether the server answered 404.
func IsNotFoundError(err error) bool {
	return StatusOf(err) == http.StatusNotFound
}

// IsTimeout reports whether err is a client-side timeout.
func IsTimeout(err error) bool {
	return IsCode(err, CodeRequestTimeout)
}

// statusError maps a non-2xx response to an Error carrying code.
func statusError(code ErrorCode, resp *RawResponse) *Error {
	msg := sanitizeErrorBody(resp.Body)
	if msg == "" {
		msg = string(code)
	}
	return &Error{Code: code, Status: resp.Status, Message: msg}
}
