// Package apperr is the error taxonomy shared by the booking service layers.
// Kinds are cockroachdb marks, so they survive any amount of wrapping.
package apperr

import (
	"fmt"
	"net/http"

	cr "github.com/cockroachdb/errors"
)

var (
	// ErrConfiguration: business data makes the request unanswerable (bad hours, bad service row).
	ErrConfiguration = cr.New("configuration error")
	ErrNotFound      = cr.New("not found")
	ErrConflict      = cr.New("conflict")
	ErrValidation    = cr.New("validation error")
)

func Configuration(msg string) error {
	return cr.Mark(cr.NewWithDepth(1, msg), ErrConfiguration)
}

func Configurationf(format string, args ...any) error {
	return cr.Mark(cr.NewWithDepth(1, fmt.Sprintf(format, args...)), ErrConfiguration)
}

func NotFound(what, id string) error {
	return cr.Mark(cr.NewWithDepthf(1, "%s %q not found", what, id), ErrNotFound)
}

func Conflict(msg string) error {
	return cr.Mark(cr.NewWithDepth(1, msg), ErrConflict)
}

func Validation(msg string) error {
	return cr.Mark(cr.NewWithDepth(1, msg), ErrValidation)
}

func Validationf(format string, args ...any) error {
	return cr.Mark(cr.NewWithDepth(1, fmt.Sprintf(format, args...)), ErrValidation)
}

// Kind returns the taxonomy sentinel err is marked with, or nil for an
// unclassified (internal) error.
func Kind(err error) error {
	for _, k := range []error{ErrValidation, ErrNotFound, ErrConflict, ErrConfiguration} {
		if cr.Is(err, k) {
			return k
		}
	}
	return nil
}

func HTTPStatus(err error) int {
	switch Kind(err) {
	case ErrValidation:
		return http.StatusBadRequest
	case ErrNotFound:
		return http.StatusNotFound
	case ErrConflict:
		return http.StatusConflict
	case ErrConfiguration:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
