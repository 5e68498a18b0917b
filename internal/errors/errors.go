// Package errors provides coded domain errors for the reconciliation pipeline.
//
// Services return *Error values; handlers translate them with Code.HTTPStatus:
//
//	batch, err := svc.Commit(ctx, sessionID, req)
//	if errors.Is(err, errors.ErrNoSelection) {
//	    // nothing was written, tell the operator to pick rows
//	}
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Re-export standard library functions for convenience.
var (
	Is   = errors.Is
	As   = errors.As
	Join = errors.Join
)

// Code represents a machine-readable error code.
type Code string

const (
	CodeValidation       Code = "VALIDATION"
	CodeNotFound         Code = "NOT_FOUND"
	CodeNoSelection      Code = "NO_SELECTION"
	CodeImportFailed     Code = "IMPORT_FAILED"
	CodeInvalidFile      Code = "INVALID_FILE"
	CodeAlreadyCommitted Code = "ALREADY_COMMITTED"
	CodeKeyConflict      Code = "IDEMPOTENCY_CONFLICT"
	CodeInternal         Code = "INTERNAL"
)

// HTTPStatus returns the HTTP status code for an error code.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeValidation, CodeNoSelection, CodeInvalidFile:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeAlreadyCommitted, CodeKeyConflict:
		return http.StatusConflict
	case CodeImportFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain error with a code, message, and optional details.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches any *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// WithDetails returns a copy of e carrying details.
func (e *Error) WithDetails(details any) *Error {
	return &Error{Code: e.Code, Message: e.Message, Details: details, cause: e.cause}
}

// Sentinels for use with errors.Is.
var (
	ErrValidation       = &Error{Code: CodeValidation, Message: "validation error"}
	ErrNotFound         = &Error{Code: CodeNotFound, Message: "not found"}
	ErrNoSelection      = &Error{Code: CodeNoSelection, Message: "no records selected"}
	ErrImportFailed     = &Error{Code: CodeImportFailed, Message: "import failed"}
	ErrInvalidFile      = &Error{Code: CodeInvalidFile, Message: "invalid statement file"}
	ErrAlreadyCommitted = &Error{Code: CodeAlreadyCommitted, Message: "records already committed"}
	ErrKeyConflict      = &Error{Code: CodeKeyConflict, Message: "idempotency key reused"}
	ErrInternal         = &Error{Code: CodeInternal, Message: "internal error"}
)

// Validationf creates a validation error with a formatted message.
func Validationf(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf creates a not found error with a formatted message.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// NoSelection reports an empty commit selection.
func NoSelection() *Error {
	return &Error{Code: CodeNoSelection, Message: "select at least one record to import"}
}

// AlreadyCommittedf reports records that were folded into an earlier batch.
func AlreadyCommittedf(format string, args ...any) *Error {
	return &Error{Code: CodeAlreadyCommitted, Message: fmt.Sprintf(format, args...)}
}

// KeyConflict reports an idempotency key whose stored batch holds different records.
func KeyConflict(key string) *Error {
	return &Error{Code: CodeKeyConflict, Message: fmt.Sprintf("idempotency key %q was used for a different selection", key)}
}

// InvalidFile wraps a cause that prevents a statement from being parsed at all.
func InvalidFile(err error, msg string) *Error {
	return &Error{Code: CodeInvalidFile, Message: msg, cause: err}
}

// ImportFailed wraps a ledger write failure.
func ImportFailed(err error) *Error {
	return &Error{Code: CodeImportFailed, Message: "ledger rejected the batch", cause: err}
}

// Wrap wraps an error with a code and message.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}
