package durable

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a fault for retry and surfacing decisions.
type Kind string

const (
	// KindValidation marks terminal input errors: malformed URL, unsupported
	// host, unknown enum value, empty question. Never retried.
	KindValidation Kind = "validation"

	// KindNotFound marks terminal lookups against missing state: unknown
	// project key, unknown ad id.
	KindNotFound Kind = "not_found"

	// KindAlreadyExists marks a create against a key whose criteria is set.
	KindAlreadyExists Kind = "already_exists"

	// KindTransient marks failures eligible for bounded automatic retry:
	// network errors, rate limits, suspected bot blocking, server errors,
	// timeouts.
	KindTransient Kind = "transient"

	// KindUnavailable is what a transient fault becomes once the retry
	// budget is exhausted. Terminal.
	KindUnavailable Kind = "unavailable"

	// KindInternal marks unexpected failures (storage corruption, marshal
	// errors). Terminal.
	KindInternal Kind = "internal"
)

// Fault is the error type carried across the actor, orchestrator, and
// ingress boundaries.
type Fault struct {
	Kind  Kind
	Msg   string
	Cause error

	// RetryAfter is the wait a rate-limiting provider asked for, zero when
	// none was given. The retry loop honors it over its computed backoff.
	RetryAfter time.Duration
}

func (f *Fault) Error() string {
	if f.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Msg, f.Cause)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Msg)
}

func (f *Fault) Unwrap() error {
	return f.Cause
}

// NewFault creates a fault with a formatted message.
func NewFault(kind Kind, format string, args ...interface{}) *Fault {
	return &Fault{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WrapFault attaches a cause to a fault.
func WrapFault(kind Kind, cause error, format string, args ...interface{}) *Fault {
	return &Fault{Kind: kind, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf returns the fault kind of err, or KindInternal for plain errors.
func KindOf(err error) Kind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given fault kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// RetryAfterOf returns the provider-suggested retry delay carried by err,
// zero when there is none.
func RetryAfterOf(err error) time.Duration {
	var f *Fault
	if errors.As(err, &f) {
		return f.RetryAfter
	}
	return 0
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	return IsKind(err, KindTransient)
}

// IsTerminal reports whether err must be surfaced without retry.
func IsTerminal(err error) bool {
	return err != nil && !IsTransient(err)
}

// Exhausted converts a transient fault into an unavailable one after the
// retry budget has been spent. Terminal faults pass through unchanged.
func Exhausted(err error) error {
	if err == nil || !IsTransient(err) {
		return err
	}
	return WrapFault(KindUnavailable, err, "retry budget exhausted")
}
