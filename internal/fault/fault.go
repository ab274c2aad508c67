// Package fault defines the normalized error taxonomy shared by the
// invocation and admin-messaging layers. Backend SDK errors, transport
// failures and protocol violations are classified into a small set of
// kinds so that callers and handlers can react without inspecting
// provider-specific error chains.
package fault

import (
	"errors"
	"fmt"
)

// Kind identifies the failure class of a normalized error.
type Kind int

const (
	// KindConfig marks malformed connector configuration or unresolvable
	// credentials. Fatal for the affected connector until reconfigured.
	KindConfig Kind = iota
	// KindSerialization marks an encode/decode failure of an admin
	// message. The message is dropped and logged, never retried.
	KindSerialization
	// KindTransport marks an opaque backend or network failure.
	KindTransport
	// KindTimeout marks an exceeded connection or request timeout.
	KindTimeout
	// KindPayloadTooLarge marks a backend-reported size limit violation.
	KindPayloadTooLarge
	// KindHandler marks a failure inside a message's own handling logic.
	// Always contained, never propagated past the broker.
	KindHandler
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindSerialization:
		return "serialization"
	case KindTransport:
		return "transport"
	case KindTimeout:
		return "timeout"
	case KindPayloadTooLarge:
		return "payload_too_large"
	case KindHandler:
		return "handler"
	default:
		return "unknown"
	}
}

// Error is a classified failure. A nil cause is allowed; a non-nil cause
// stays reachable through errors.Is / errors.As.
type Error struct {
	kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

// Kind returns the failure class of the error.
func (e *Error) Kind() Kind { return e.kind }

func newError(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...), err: cause}
}

// Config reports malformed configuration or unresolvable credentials.
func Config(cause error, format string, args ...any) *Error {
	return newError(KindConfig, cause, format, args...)
}

// Serialization reports a message encode or decode failure.
func Serialization(cause error, format string, args ...any) *Error {
	return newError(KindSerialization, cause, format, args...)
}

// Transport reports an opaque backend or network failure.
func Transport(cause error, format string, args ...any) *Error {
	return newError(KindTransport, cause, format, args...)
}

// Timeout reports an exceeded connection or request timeout.
func Timeout(cause error, format string, args ...any) *Error {
	return newError(KindTimeout, cause, format, args...)
}

// PayloadTooLarge reports a backend-rejected payload size.
func PayloadTooLarge(cause error, format string, args ...any) *Error {
	return newError(KindPayloadTooLarge, cause, format, args...)
}

// Handler reports a contained failure of message handling logic.
func Handler(cause error, format string, args ...any) *Error {
	return newError(KindHandler, cause, format, args...)
}

// KindOf extracts the failure class from an error chain. The second
// return value reports whether any *Error was found in the chain.
func KindOf(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.kind, true
	}
	return 0, false
}

// IsKind reports whether the error chain contains a normalized error of
// the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
