// Package apperr provides coded domain errors and the user-facing messages
// shown for them.
package apperr

import "errors"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an error that is not a domain error.
	CodeUnknown Code = "UNKNOWN"

	// CodeConfiguration means no sensor components were selected.
	CodeConfiguration Code = "CONFIGURATION"

	// CodeSerialization means a session buffer could not be encoded.
	CodeSerialization Code = "SERIALIZATION"

	// CodeCorruptData means a stored payload could not be decoded.
	CodeCorruptData Code = "CORRUPT_DATA"

	// CodeStore means a record could not be written.
	CodeStore Code = "STORE"

	// CodeNotFound means no record has the requested id.
	CodeNotFound Code = "NOT_FOUND"

	// CodeExport means CSV files could not be created.
	CodeExport Code = "EXPORT"
)

// Error is the domain error type.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Internal message (for logs)
	Cause   error  // Wrapped underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// GetCode extracts the error code from any error.
// Returns CodeUnknown if the error is not a domain error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsCode checks if the error has the specified code.
func IsCode(err error, code Code) bool {
	return GetCode(err) == code
}

var messages = map[Code]string{
	CodeConfiguration: "No sensor components are selected for recording.",
	CodeSerialization: "There was an error saving data!",
	CodeCorruptData:   "Could not read data for this record.",
	CodeStore:         "There was an error saving data!",
	CodeNotFound:      "Record not found.",
	CodeExport:        "There was an error creating the files!",
}

// UserMessage returns the dialog text for err. Non-domain errors get a
// generic message; the internal message is meant for logs only.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if msg, ok := messages[GetCode(err)]; ok {
		return msg
	}
	return "An unexpected error occurred."
}
