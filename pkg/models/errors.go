package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies extraction failures
type ErrorKind string

const (
	ErrNotFound             ErrorKind = "not_found"
	ErrRestricted           ErrorKind = "restricted"
	ErrPasswordRequired     ErrorKind = "password_required"
	ErrUnresolvable         ErrorKind = "unresolvable"
	ErrNotLive              ErrorKind = "not_live"
	ErrAuthenticationFailed ErrorKind = "authentication_failed"
	ErrUnsupported          ErrorKind = "unsupported"
	ErrNetwork              ErrorKind = "network"
)

// ExtractorError is returned by extractors for every classified failure.
// Expected errors are user facing and carry a complete message; the rest
// indicate a fault in the platform or in this program.
type ExtractorError struct {
	Kind      ErrorKind
	Extractor string
	Message   string
	Expected  bool
	Cause     error
}

func (e *ExtractorError) Error() string {
	msg := e.Message
	if e.Extractor != "" {
		msg = fmt.Sprintf("%s said: %s", e.Extractor, e.Message)
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *ExtractorError) Unwrap() error {
	return e.Cause
}

// NewExpectedError creates a user facing extractor error
func NewExpectedError(kind ErrorKind, extractor, format string, args ...interface{}) *ExtractorError {
	return &ExtractorError{
		Kind:      kind,
		Extractor: extractor,
		Message:   fmt.Sprintf(format, args...),
		Expected:  true,
	}
}

// ErrorKindOf returns the kind of err, or an empty kind when err is not
// an ExtractorError
func ErrorKindOf(err error) ErrorKind {
	var extErr *ExtractorError
	if errors.As(err, &extErr) {
		return extErr.Kind
	}
	return ""
}

// IsKind reports whether err is an ExtractorError of the given kind
func IsKind(err error, kind ErrorKind) bool {
	return ErrorKindOf(err) == kind
}

// IsExpected reports whether err is a user facing ExtractorError
func IsExpected(err error) bool {
	var extErr *ExtractorError
	return errors.As(err, &extErr) && extErr.Expected
}
