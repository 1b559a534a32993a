package rowguard

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for common failures.
var (
	// ErrAccessDenied is matched (via errors.Is) by every denial this
	// package produces: blocked field access and operations under Deny.
	ErrAccessDenied = errors.New("rowguard: access denied")

	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("rowguard: record not found")

	// ErrNotSingular is returned when a query that expects exactly one
	// result returns multiple results.
	ErrNotSingular = errors.New("rowguard: record not singular")

	// ErrNotInstrumented is returned when badge control operations are
	// invoked on a Proxy before Instrument was called.
	ErrNotInstrumented = errors.New("rowguard: proxy not instrumented")
)

// AccessOp describes the kind of field access that was denied.
type AccessOp string

// Field access operations.
const (
	OpRead  AccessOp = "read"
	OpWrite AccessOp = "write"
)

// AccessError is returned when a field read or write is blocked for the
// badge stamped on the record. It is raised at the point of access and is
// recoverable by the caller.
type AccessError struct {
	Label string   // Record label (table name).
	Field string   // Field that was denied.
	Op    AccessOp // Read or write.
	Badge Badge    // Badge the access was evaluated for.
}

// Error returns the error string.
func (e *AccessError) Error() string {
	return fmt.Sprintf("rowguard: %s of %q blocked for badge %v on %s", e.Op, e.Field, e.Badge, e.Label)
}

// Is reports whether the target matches ErrAccessDenied.
func (e *AccessError) Is(err error) bool {
	return err == ErrAccessDenied
}

// IsAccessError returns true if the error is an AccessError.
func IsAccessError(err error) bool {
	if err == nil {
		return false
	}
	var e *AccessError
	return errors.As(err, &e)
}

// DeniedError is returned when an operation is attempted while the acting
// badge is Deny. It is raised before any contributor is invoked and before
// anything is written.
type DeniedError struct {
	Label string // Record label (table name).
	Op    string // Operation (e.g. "insert", "update", "delete").
}

// Error returns the error string.
func (e *DeniedError) Error() string {
	return fmt.Sprintf("rowguard: %s on %s denied", e.Op, e.Label)
}

// Is reports whether the target matches ErrAccessDenied.
func (e *DeniedError) Is(err error) bool {
	return err == ErrAccessDenied
}

// IsDenied returns true if the error is a DeniedError.
func IsDenied(err error) bool {
	if err == nil {
		return false
	}
	var e *DeniedError
	return errors.As(err, &e)
}

// NotFoundError represents an error when a record is not found.
type NotFoundError struct {
	label string
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("rowguard: %s not found", e.label)
}

// Is reports whether the target matches ErrNotFound.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// Label returns the record label.
func (e *NotFoundError) Label() string {
	return e.label
}

// NewNotFoundError returns a new NotFoundError for the given record type.
func NewNotFoundError(label string) *NotFoundError {
	return &NotFoundError{label: label}
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// NotSingularError represents an error when a query expects a singular
// result but receives more than one.
type NotSingularError struct {
	label string
}

// Error returns the error string.
func (e *NotSingularError) Error() string {
	return fmt.Sprintf("rowguard: %s not singular", e.label)
}

// Is reports whether the target matches ErrNotSingular.
func (e *NotSingularError) Is(err error) bool {
	return err == ErrNotSingular
}

// Label returns the record label.
func (e *NotSingularError) Label() string {
	return e.label
}

// NewNotSingularError returns a new NotSingularError for the given record type.
func NewNotSingularError(label string) *NotSingularError {
	return &NotSingularError{label: label}
}

// IsNotSingular returns true if the error is a NotSingularError.
func IsNotSingular(err error) bool {
	if err == nil {
		return false
	}
	var e *NotSingularError
	return errors.As(err, &e) || errors.Is(err, ErrNotSingular)
}

// UnknownFieldError is returned when a guarded access names a field the
// record does not declare in its descriptor table.
type UnknownFieldError struct {
	Label string
	Field string
}

// Error returns the error string.
func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("rowguard: unknown field %q on %s", e.Field, e.Label)
}

// IsUnknownField returns true if the error is an UnknownFieldError.
func IsUnknownField(err error) bool {
	if err == nil {
		return false
	}
	var e *UnknownFieldError
	return errors.As(err, &e)
}

// QueryError wraps a query execution error with its record context.
type QueryError struct {
	Label string // Record type being queried.
	Op    string // Operation (e.g. "all", "count", "exist").
	Err   error  // Underlying error.
}

// Error returns the error string.
func (e *QueryError) Error() string {
	return fmt.Sprintf("rowguard: querying %s (%s): %v", e.Label, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// IsQueryError returns true if the error is a QueryError.
func IsQueryError(err error) bool {
	if err == nil {
		return false
	}
	var e *QueryError
	return errors.As(err, &e)
}
