package domain

import (
	"errors"
	"fmt"
)

var (
	ErrStreamUnavailable = errors.New("stream unavailable")
	ErrDecode            = errors.New("malformed update")
	ErrRequestFailed     = errors.New("request failed")
	ErrValidation        = errors.New("invalid order parameters")
	ErrUserNotFound      = errors.New("user does not exist")
	ErrClientStopped     = errors.New("client stopped")
)

// ErrorKind classifies a client error for presentation.
type ErrorKind string

const (
	KindNone              ErrorKind = ""
	KindStreamUnavailable ErrorKind = "stream_unavailable"
	KindDecode            ErrorKind = "decode_error"
	KindRequestFailed     ErrorKind = "request_failed"
	KindValidation        ErrorKind = "validation_error"
	KindNotFound          ErrorKind = "not_found"
	KindUnknown           ErrorKind = "unknown"
)

// KindOf maps err onto the client error taxonomy.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrUserNotFound):
		return KindNotFound
	case errors.Is(err, ErrDecode):
		return KindDecode
	case errors.Is(err, ErrStreamUnavailable):
		return KindStreamUnavailable
	case errors.Is(err, ErrRequestFailed):
		return KindRequestFailed
	default:
		return KindUnknown
	}
}

// UserMessage returns the message shown to the user for err.
func UserMessage(err error) string {
	switch KindOf(err) {
	case KindNone:
		return ""
	case KindValidation:
		var ve *ValidationError
		if errors.As(err, &ve) {
			return ve.Reason
		}
		return "Invalid order"
	case KindNotFound:
		return "User does not exist"
	case KindDecode:
		return "Malformed update"
	case KindStreamUnavailable:
		return "Stream unavailable"
	default:
		return "Server error"
	}
}

// ValidationError is returned when input is rejected before any network call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// RequestError is returned for a non-2xx response from the venue API.
type RequestError struct {
	Op         string
	StatusCode int
	// Code is the machine-readable error code from the response body, when
	// the server sent one.
	Code string
	Body string
}

func (e *RequestError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s: HTTP %d (%s)", e.Op, ErrRequestFailed, e.StatusCode, e.Code)
	}
	return fmt.Sprintf("%s: %s: HTTP %d", e.Op, ErrRequestFailed, e.StatusCode)
}

// Is matches ErrRequestFailed.
func (e *RequestError) Is(target error) bool {
	return target == ErrRequestFailed
}
