// Package boterr classifies the error taxonomy of spec.md §7 so that every
// loop body (Strategy Loop, Reconciliation, Account Supervisor tasks) can
// decide, from a plain error value, whether to retry, drop, warn, or exit.
// Errors are converted to this taxonomy at the gateway edge — the broker and
// remote-store clients never leak raw transport errors past their own
// package boundary.
package boterr

import (
	"errors"
	"fmt"
	"strings"
)

// Class is one of the six error categories of spec.md §7.
type Class string

const (
	// ClassTransient is a connection/timeout to broker or remote store.
	// Logged, retried on the next loop iteration, never fatal.
	ClassTransient Class = "transient"
	// ClassValidation is a remote store schema mismatch on cycle create/update.
	// The write is dropped; the in-memory cycle is unaffected.
	ClassValidation Class = "validation"
	// ClassBrokerRejection is a broker retcode != DONE. No order was created;
	// cycle state is not advanced.
	ClassBrokerRejection Class = "broker_rejection"
	// ClassStoreInconsistency is an order present in one store but not the
	// other, resolved by the reconciliation double-check.
	ClassStoreInconsistency Class = "store_inconsistency"
	// ClassConfiguration is a missing or non-coercible strategy parameter.
	// The documented default is used; a one-line warning is logged.
	ClassConfiguration Class = "configuration"
	// ClassFatal means the process cannot continue (local store unopenable
	// at startup). Nothing else in the taxonomy is fatal.
	ClassFatal Class = "fatal"
)

// Error carries a Class alongside the wrapped cause, so callers can both
// classify (via As) and still unwrap the underlying failure.
type Error struct {
	Class Class
	Op    string
	Err   error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Class, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Class, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with a class and an operation label.
func New(class Class, op string, err error) *Error {
	return &Error{Class: class, Op: op, Err: err}
}

// ClassOf returns the Class of err if it (or something it wraps) is a
// *Error, and ok=false otherwise.
func ClassOf(err error) (Class, bool) {
	var be *Error
	if errors.As(err, &be) {
		return be.Class, true
	}
	return "", false
}

// IsTransient reports whether err is classified transient, either
// explicitly via *Error or by pattern match against its message — the
// fallback path for errors reaching the retry client straight from the
// standard net/http stack rather than already wrapped.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if class, ok := ClassOf(err); ok {
		return class == ClassTransient
	}
	return matchesAny(err, transientPatterns)
}

// IsValidation reports whether err is classified validation.
func IsValidation(err error) bool {
	class, ok := ClassOf(err)
	return ok && class == ClassValidation
}

// IsBrokerRejection reports whether err is classified broker_rejection.
func IsBrokerRejection(err error) bool {
	class, ok := ClassOf(err)
	return ok && class == ClassBrokerRejection
}

// IsStoreInconsistency reports whether err is classified store_inconsistency.
func IsStoreInconsistency(err error) bool {
	class, ok := ClassOf(err)
	return ok && class == ClassStoreInconsistency
}

// IsConfiguration reports whether err is classified configuration.
func IsConfiguration(err error) bool {
	class, ok := ClassOf(err)
	return ok && class == ClassConfiguration
}

// IsFatal reports whether err is classified fatal.
func IsFatal(err error) bool {
	class, ok := ClassOf(err)
	return ok && class == ClassFatal
}

var transientPatterns = []string{
	"timeout",
	"i/o timeout",
	"connection refused",
	"connection reset",
	"temporary failure",
	"temporarily unavailable",
	"server error",
	"rate limit",
	"429",
	"502",
	"503",
	"504",
	"network",
	"dns",
	"tcp",
	"no such host",
	"deadline exceeded",
	"tls handshake",
	"broken pipe",
	"eof",
}

func matchesAny(err error, patterns []string) bool {
	msg := strings.ToLower(err.Error())
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
