package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes for categorizing errors
const (
	ErrConfig    = "CONFIG"
	ErrSSH       = "SSH"
	ErrAuth      = "AUTH"
	ErrTransient = "TRANSIENT"
	ErrCollect   = "COLLECT"
	ErrInternal  = "INTERNAL"
	ErrNotFound  = "NOT_FOUND"
	ErrConflict  = "CONFLICT"
	ErrExec      = "EXEC"
)

// Error represents a structured error with code, message, suggestion, and optional cause.
// Rendered for terminals as:
//
//	✗ <What failed>
//
//	  <Why it failed - technical details>
//
//	  <How to fix it - actionable steps>
type Error struct {
	Code       string
	Message    string
	Suggestion string
	Cause      error
}

// New creates a new structured error with the given code, message, and suggestion.
func New(code, message, suggestion string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
	}
}

// Newf is New with a formatted message and no suggestion.
func Newf(code, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with a message, defaulting to ErrSSH code.
func Wrap(err error, message string) *Error {
	return &Error{
		Code:    ErrSSH,
		Message: message,
		Cause:   err,
	}
}

// WrapWithCode wraps an existing error with a specific code, message, and suggestion.
func WrapWithCode(err error, code, message, suggestion string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
		Cause:      err,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("✗ %s\n", e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf("\n  %s\n", e.Cause.Error()))
	}

	if e.Suggestion != "" {
		b.WriteString(fmt.Sprintf("\n  %s\n", e.Suggestion))
	}

	return b.String()
}

// Short returns a single-line form: the message followed by the cause, if any.
// Used where the multi-line terminal form does not fit (status strings, JSON).
func (e *Error) Short() string {
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + firstLine(e.Cause)
}

// Unwrap returns the underlying cause for use with errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsCode checks if an error is a structured Error with the given code.
func IsCode(err error, code string) bool {
	return CodeOf(err) == code
}

// CodeOf returns the code of the outermost structured Error in err's chain,
// or "" if there is none.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var fmErr *Error
	if errors.As(err, &fmErr) {
		return fmErr.Code
	}
	return ""
}

// Summary renders any error as one line, using Short for structured errors.
func Summary(err error) string {
	if err == nil {
		return ""
	}
	var fmErr *Error
	if errors.As(err, &fmErr) {
		return fmErr.Short()
	}
	return firstLine(err)
}

func firstLine(err error) string {
	var fmErr *Error
	if errors.As(err, &fmErr) {
		return fmErr.Short()
	}
	msg := strings.TrimSpace(err.Error())
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return msg
}
