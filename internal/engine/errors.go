// Package engine holds the error kinds shared by every engine component.
// The API layer maps these onto HTTP status codes; components wrap them
// with %w so callers can classify with errors.As.
package engine

import "fmt"

// ValidationError reports bad caller input (missing attribute, malformed
// SQL, malformed provider config). Surfaces as HTTP 400.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...interface{}) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a missing entity by kind and id.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s not found: %s", e.Kind, e.ID) }

// NotFound builds a NotFoundError.
func NotFound(kind, id string) error { return &NotFoundError{Kind: kind, ID: id} }

// ConstraintError reports an operation that would break a cross-entity
// invariant (deleting a segment a campaign references). Surfaces as 400.
type ConstraintError struct {
	Msg string
}

func (e *ConstraintError) Error() string { return e.Msg }

// Constraintf builds a ConstraintError from a format string.
func Constraintf(format string, args ...interface{}) error {
	return &ConstraintError{Msg: fmt.Sprintf(format, args...)}
}

// UnsupportedError reports an operation the engine deliberately rejects
// (campaign update, SEND_SMS). Surfaces as 400.
type UnsupportedError struct {
	Msg string
}

func (e *UnsupportedError) Error() string { return e.Msg }

// Unsupported builds an UnsupportedError.
func Unsupported(msg string) error { return &UnsupportedError{Msg: msg} }

// SandboxError carries a failure thrown by user-authored code inside the
// sandbox. Flow steps turn it into a failed execution; transactional email
// dispatch logs and swallows it.
type SandboxError struct {
	Msg string
}

func (e *SandboxError) Error() string { return "sandbox: " + e.Msg }

// TransportError reports a non-2xx (or connection-level) failure from an
// email provider.
type TransportError struct {
	Provider string
	Msg      string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s transport error: %s", e.Provider, e.Msg)
}
