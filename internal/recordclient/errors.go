package recordclient

import (
	"errors"
	"net/http"
)

// Sentinels for matching record store failures with errors.Is.
var (
	// ErrNotFound matches any 404 from the record store.
	ErrNotFound = errors.New("record not found")

	// ErrConflict matches any 409 from the record store.
	ErrConflict = errors.New("record conflict")
)

// APIError carries the upstream status code and message from a failed
// record store call.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// Is lets errors.Is match APIError values against the package sentinels
// by status code.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrConflict:
		return e.Status == http.StatusConflict
	}
	return false
}
