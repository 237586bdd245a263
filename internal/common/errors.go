package common

import (
	"errors"
	"fmt"
)

// Kind classifies pipeline failures. The orchestrator keys retry and
// completion decisions off the kind, and the HTTP layer maps kinds to
// status codes, so every error crossing a component boundary carries one.
type Kind string

const (
	KindUnsupportedFormat     Kind = "UnsupportedFormat"
	KindUnreadableDocument    Kind = "UnreadableDocument"
	KindExtractionUnavailable Kind = "ExtractionServiceUnavailable"
	KindExtractionFailed      Kind = "ExtractionFailed"
	KindRenderFailed          Kind = "RenderFailed"
	KindNotFound              Kind = "NotFound"
)

// Error is an application error with a stable kind and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError builds an Error with the given kind.
func NewError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind from an error chain, or "" if none is present.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// IsKind reports whether any error in the chain carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsRetryable reports whether the failure is transient and worth retrying.
// Only an unavailable extraction service qualifies; malformed model output
// is deterministic and retrying it would just burn the budget.
func IsRetryable(err error) bool {
	return IsKind(err, KindExtractionUnavailable)
}
