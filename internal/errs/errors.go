// Package errs provides the unified error type used across all of omem.
//
// Every subsystem (database, filestore, registration, broker, …) wraps its
// native errors into *errs.Error before returning them to callers. Callers
// use the Is* predicates to handle errors without importing driver-specific
// packages, and the HTTP boundary turns the Kind into a status code.
//
// Usage:
//
//	// In a driver, wrap native errors:
//	return errs.Wrap(errs.ErrKindConflict, "insert actor", pgErr)
//
//	// In a handler, check the error kind:
//	if errs.IsNotRegistered(err) {
//	    writeError(w, http.StatusBadRequest, err)
//	}
package errs

import (
	"errors"
	"fmt"
)

// ErrKind categorises an error without exposing subsystem-specific codes.
// All backends (Postgres, MySQL, SQLite, MinIO, S3, Redis) map their native
// errors to one of the infrastructure kinds; the domain layer adds the rest.
type ErrKind int

const (
	ErrKindUnknown          ErrKind = iota
	ErrKindNotFound                 // no rows, no object, no bucket
	ErrKindConnectionFailed         // cannot reach the backend
	ErrKindTimeout                  // context deadline / cancellation
	ErrKindQueryFailed              // SQL or storage operation error
	ErrKindInvalidInput             // bad arguments from the caller
	ErrKindPermissionDenied         // backend refused our credentials
	ErrKindConflict                 // unique constraint violation

	ErrKindNotRegistered       // no actor for the correlation key
	ErrKindDuplicateActor      // correlation key already registered
	ErrKindExhaustedRetries    // short id collisions exceeded the attempt budget
	ErrKindUnauthorized        // missing or wrong global / actor key
	ErrKindUnsupportedDataType // tag outside the recognised set
	ErrKindBackingStore        // blob store call failed
	ErrKindMalformedTimestamp  // conditional-read timestamp did not parse
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindNotFound:
		return "not_found"
	case ErrKindConnectionFailed:
		return "connection_failed"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindQueryFailed:
		return "query_failed"
	case ErrKindInvalidInput:
		return "invalid_input"
	case ErrKindPermissionDenied:
		return "permission_denied"
	case ErrKindConflict:
		return "conflict"
	case ErrKindNotRegistered:
		return "not_registered"
	case ErrKindDuplicateActor:
		return "duplicate_actor"
	case ErrKindExhaustedRetries:
		return "exhausted_retries"
	case ErrKindUnauthorized:
		return "unauthorized"
	case ErrKindUnsupportedDataType:
		return "unsupported_data_type"
	case ErrKindBackingStore:
		return "backing_store_error"
	case ErrKindMalformedTimestamp:
		return "malformed_timestamp"
	default:
		return "unknown"
	}
}

// ClientFacing reports whether errors of this kind are caused by the caller
// and may be echoed back verbatim. Everything else is a server fault.
func (k ErrKind) ClientFacing() bool {
	switch k {
	case ErrKindNotFound, ErrKindInvalidInput, ErrKindNotRegistered,
		ErrKindDuplicateActor, ErrKindUnauthorized, ErrKindUnsupportedDataType,
		ErrKindMalformedTimestamp:
		return true
	default:
		return false
	}
}

// Error is the single error type returned by all omem subsystems.
// Drivers produce it; callers inspect it via the Is* predicates below.
type Error struct {
	Kind    ErrKind
	Message string
	Cause   error // original driver-level error, preserved for logging
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf is New with fmt.Sprintf formatting of the message.
func Newf(kind ErrKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// --- Predicates ---

// IsNotFound reports whether err represents a "not found" result
// (no rows, missing object, no catalog entry for a tag, …).
func IsNotFound(err error) bool {
	return KindOf(err) == ErrKindNotFound
}

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool {
	return KindOf(err) == ErrKindTimeout
}

// IsConnectionFailed reports whether err is a connectivity or auth failure.
func IsConnectionFailed(err error) bool {
	return KindOf(err) == ErrKindConnectionFailed
}

// IsQueryFailed reports whether err is a backend operation failure.
func IsQueryFailed(err error) bool {
	return KindOf(err) == ErrKindQueryFailed
}

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool {
	return KindOf(err) == ErrKindInvalidInput
}

// IsPermissionDenied reports whether a backend refused the configured credentials.
func IsPermissionDenied(err error) bool {
	return KindOf(err) == ErrKindPermissionDenied
}

// IsConflict reports whether err is a unique-constraint violation.
func IsConflict(err error) bool {
	return KindOf(err) == ErrKindConflict
}

func IsNotRegistered(err error) bool {
	return KindOf(err) == ErrKindNotRegistered
}

func IsDuplicateActor(err error) bool {
	return KindOf(err) == ErrKindDuplicateActor
}

func IsExhaustedRetries(err error) bool {
	return KindOf(err) == ErrKindExhaustedRetries
}

func IsUnauthorized(err error) bool {
	return KindOf(err) == ErrKindUnauthorized
}

func IsUnsupportedDataType(err error) bool {
	return KindOf(err) == ErrKindUnsupportedDataType
}

func IsBackingStore(err error) bool {
	return KindOf(err) == ErrKindBackingStore
}

func IsMalformedTimestamp(err error) bool {
	return KindOf(err) == ErrKindMalformedTimestamp
}

// KindOf extracts the outermost ErrKind from any error in the chain.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}
