// Package apperr implements the error taxonomy from spec.md §7: validation,
// auth, ownership, conflict, transient and fatal errors, each tagged with a
// Kind that the control API maps to an HTTP status (internal/api/errors.go).
package apperr

import "errors"

// Kind classifies an error for API-layer status mapping and logging policy.
type Kind int

const (
	// KindValidation is bad caller input; never logged as an error.
	KindValidation Kind = iota
	// KindAuth is a missing/invalid/expired/revoked credential.
	KindAuth
	// KindOwnership is a resource that exists but belongs to someone else.
	KindOwnership
	// KindConflict is a unique-constraint or state-mismatch failure, safe to retry.
	KindConflict
	// KindTransient is a retryable failure of an external collaborator.
	KindTransient
	// KindFatal is an unrecoverable condition; the process should fail-stop.
	KindFatal
)

// Error is a taxonomy-tagged application error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind around an underlying cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Validation constructs a KindValidation error.
func Validation(msg string) *Error { return New(KindValidation, msg) }

// Auth constructs a KindAuth error.
func Auth(msg string) *Error { return New(KindAuth, msg) }

// Ownership constructs a KindOwnership error. Per spec.md §7 this is
// deliberately indistinguishable from "not found" at the HTTP layer.
func Ownership(msg string) *Error { return New(KindOwnership, msg) }

// NotFound is an alias of Ownership: the API layer renders both as 404, so a
// caller cannot tell a missing resource from another user's.
func NotFound(msg string) *Error { return New(KindOwnership, msg) }

// Conflict constructs a KindConflict error.
func Conflict(msg string) *Error { return New(KindConflict, msg) }

// Transient constructs a KindTransient error.
func Transient(msg string, err error) *Error { return Wrap(KindTransient, msg, err) }

// Fatal constructs a KindFatal error.
func Fatal(msg string, err error) *Error { return Wrap(KindFatal, msg, err) }

// As extracts an *Error from err, if any.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// KindOf returns the Kind of err, defaulting to KindFatal for untagged errors
// since an unclassified internal error should never be treated as retryable
// or safe to expose verbatim to a caller.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindFatal
}
