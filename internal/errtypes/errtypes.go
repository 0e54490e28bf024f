// Package errtypes defines the error taxonomy of the ingestion engine
// (spec §7) as typed, wrappable errors, following the pattern of the
// teacher's internal/errors package (IndexingError/FileError/MultiError
// with Unwrap for errors.Is/As).
package errtypes

import (
	"fmt"
	"time"
)

// Kind enumerates the taxonomy from spec §7.
type Kind string

const (
	KindFilesystemMissing   Kind = "filesystem_missing"
	KindPermissionDenied    Kind = "permission_denied"
	KindUnsupportedExt      Kind = "unsupported_extension"
	KindParseFailure        Kind = "parse_failure"
	KindFilterError         Kind = "filter_error"
	KindLockConflict        Kind = "lock_conflict"
	KindForeignLock         Kind = "foreign_lock"
	KindLockCorrupt         Kind = "lock_corrupt"
	KindResourceLimit       Kind = "resource_limit_reached"
	KindVectorStoreDown     Kind = "vector_store_unavailable"
	KindDatabaseDown        Kind = "database_unavailable"
	KindTimeoutExceeded     Kind = "timeout_exceeded"
	KindCancelled           Kind = "cancelled"
	KindUnknown             Kind = "unknown"
)

// nonRetryable is the set of kinds the ErrorController must never retry.
var nonRetryable = map[Kind]bool{
	KindFilesystemMissing: true,
	KindUnsupportedExt:    true,
	KindForeignLock:       true,
	KindCancelled:         true,
}

// Retryable reports whether errors of this kind are eligible for retry.
func (k Kind) Retryable() bool { return !nonRetryable[k] }

// Error is the engine's single error type: a classified, contextual,
// wrappable error carrying the operation and (optional) path it occurred on.
type Error struct {
	Kind       Kind
	Operation  string
	Path       string
	Underlying error
	Timestamp  time.Time
}

// New creates a classified error with the current time stamped.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Operation: op, Underlying: err, Timestamp: time.Now()}
}

// WithPath attaches a file/directory path to the error for logging.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s failed for %s: %v", e.Kind, e.Operation, e.Path, e.Underlying)
	}
	return fmt.Sprintf("%s: %s failed: %v", e.Kind, e.Operation, e.Underlying)
}

// Unwrap supports errors.Is/errors.As against the underlying cause.
func (e *Error) Unwrap() error { return e.Underlying }

// MultiError aggregates independent failures (e.g. per-file batch errors)
// without losing any of them.
type MultiError struct {
	Errors []error
}

// NewMultiError filters nils and wraps the remainder.
func NewMultiError(errs []error) *MultiError {
	filtered := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	return &MultiError{Errors: filtered}
}

func (e *MultiError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "no errors"
	case 1:
		return e.Errors[0].Error()
	default:
		return fmt.Sprintf("%d errors: %v", len(e.Errors), e.Errors)
	}
}

// Unwrap exposes the individual errors for errors.Is/As (multi-unwrap, Go 1.20+).
func (e *MultiError) Unwrap() []error { return e.Errors }

// HasErrors reports whether any error was collected.
func (e *MultiError) HasErrors() bool { return len(e.Errors) > 0 }
