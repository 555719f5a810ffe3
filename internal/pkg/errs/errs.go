/*
Package errs provides typed error values and application-level error code constants.

This file defines the ClientError struct, which implements the standard Go error
interface and carries a classification code plus the HTTP status observed at the
boundary (when the failure crossed it), so presentation code can distinguish
user-correctable failures from credential and transport failures.
*/
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// ClientError is the error type used throughout the client core.
type ClientError struct {
	// Code is the classification code (see constants definition).
	Code int

	// Message is the human-readable description.
	Message string

	// Status is the HTTP status observed at the boundary, 0 when none applies.
	Status int
}

// Error implements the standard Go error interface.
func (e *ClientError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("error %d (HTTP %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("error %d: %s", e.Code, e.Message)
}

// New constructs a *ClientError from a predefined error code. The optional
// details are applied printf-style when the template has placeholders.
// An unknown code falls back to ErrUnknown.
func New(code int, details ...any) *ClientError {
	template, ok := errorMap[code]
	if !ok {
		template = errorMap[ErrUnknown]
	}

	err := template

	if len(details) > 0 && strings.Contains(err.Message, "%") {
		err.Message = fmt.Sprintf(err.Message, details...)
	}

	return &err
}

// FromStatus constructs a ClientError for a non-success HTTP status that has no
// more specific classification, preserving the server's own message verbatim.
func FromStatus(status int, serverMessage string) *ClientError {
	e := New(ErrBackendStatus, serverMessage)
	e.Status = status
	return e
}

// CodeOf returns the classification code of err, or ErrUnknown when err is not
// a ClientError.
func CodeOf(err error) int {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ErrUnknown
}

// HasCode reports whether err is a ClientError carrying the given code.
func HasCode(err error, code int) bool {
	var ce *ClientError
	return errors.As(err, &ce) && ce.Code == code
}
