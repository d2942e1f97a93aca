// Package apperr defines the closed set of error kinds that cross a tool,
// gateway, or supervisor boundary. Nothing below panics; errors crossing
// those boundaries are of this type, while startup helpers such as
// configuration validation and the database opener return plain wrapped
// errors.
package apperr

import "fmt"

// Kind is one of the error classes from the error handling design.
type Kind string

const (
	KindValidation         Kind = "validation"
	KindNotFound            Kind = "not_found"
	KindConflict            Kind = "conflict"
	KindRateLimited         Kind = "rate_limited"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	KindBudgetExceeded      Kind = "budget_exceeded"
	KindCancelled           Kind = "cancelled"
	KindInternal            Kind = "internal"
)

// Error is the typed error carried across tool/gateway/supervisor boundaries.
type Error struct {
	Kind    Kind
	Message string
	Field   string
	Details map[string]interface{}
	Cause   error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field=%s)", e.Kind, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error of the given kind with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithField attaches the offending field name and returns e for chaining.
func (e *Error) WithField(field string) *Error {
	e.Field = field
	return e
}

// WithDetails attaches structured details and returns e for chaining.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	e.Details = details
	return e
}

// Validation is a convenience constructor for the common validation case.
func Validation(field, message string) *Error {
	return New(KindValidation, message).WithField(field)
}

// NotFound is a convenience constructor for a missing entity.
func NotFound(message string) *Error {
	return New(KindNotFound, message)
}

// Conflict is a convenience constructor for an illegal-state transition.
func Conflict(message string) *Error {
	return New(KindConflict, message)
}

// KindOf extracts the Kind from err, defaulting to KindInternal when err is
// not an *Error.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if ae, ok := err.(*Error); ok {
		return ae.Kind
	}
	return KindInternal
}
