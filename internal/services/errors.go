package services

import (
	"errors"
	"net/http"

	"github.com/relaychat/backend/internal/recordclient"
)

// ErrorKind classifies an auth failure so handlers can map it to a status
// without string matching.
type ErrorKind int

const (
	KindUpstream ErrorKind = iota
	KindConflict
	KindUnauthorized
	KindNotFound
)

// Error is a typed auth failure returned by the service layer.
type Error struct {
	Kind    ErrorKind
	Message string
	// Status is the upstream HTTP status for KindUpstream errors.
	Status int
}

func (e *Error) Error() string {
	return e.Message
}

// HTTPStatus maps the error kind to an HTTP status code.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	default:
		if e.Status != 0 {
			return e.Status
		}
		return http.StatusInternalServerError
	}
}

func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func Upstream(status int, message string) *Error {
	return &Error{Kind: KindUpstream, Message: message, Status: status}
}

// storeError converts a record store failure into a typed Error,
// preserving the upstream message and status where available.
func storeError(err error) *Error {
	var apiErr *recordclient.APIError
	if errors.As(err, &apiErr) {
		switch {
		case errors.Is(err, recordclient.ErrNotFound):
			return NotFound(apiErr.Message)
		case errors.Is(err, recordclient.ErrConflict):
			return Conflict(apiErr.Message)
		default:
			return Upstream(apiErr.Status, apiErr.Message)
		}
	}
	return Upstream(http.StatusInternalServerError, "record store request failed")
}
