// Package apperr implements the closed error taxonomy from §7: every error
// that crosses a component boundary carries one of a fixed set of kinds
// instead of a component-specific type, so handlers and the error service
// can dispatch on it uniformly.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is one of the closed set of error classifications from spec.md §7.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindUnauthorized Kind = "unauthorized"
	KindBusy         Kind = "busy"
	KindTransient    Kind = "transient"
	KindCritical     Kind = "critical"
	KindFatal        Kind = "fatal"
)

// Error is a kind-tagged application error, the generalization of the
// teacher's repository sentinel errors and exchange.ExchangeError into one
// reusable wrapper.
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

// Unwrap supports errors.Is/errors.As against the wrapped cause.
func (e *Error) Unwrap() error { return e.Cause }

// New builds a bare Error of the given kind with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds a bare Error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an existing error.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err (or anything in its chain) is an *Error of kind k.
func Is(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

// KindOf extracts the Kind of err, defaulting to KindFatal for errors that
// never went through this package — an unclassified error is always treated
// as the least-trusted, most severe kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindFatal
}

// Common, reusable sentinels for conditions that recur across packages.
var (
	ErrDealNotFound      = New(KindNotFound, "deal not found")
	ErrDealConflict      = New(KindConflict, "an active deal already exists for this client")
	ErrTriggerNotFound   = New(KindNotFound, "trigger not found")
	ErrTriggerDuplicate  = New(KindConflict, "a trigger with this phrase already exists for the group")
	ErrGroupNotFound     = New(KindNotFound, "group not found")
	ErrRuleNotFound      = New(KindNotFound, "rule not found")
	ErrSystemRuleProtect = New(KindConflict, "system rules cannot be deleted, only disabled")
	ErrUnauthorized      = New(KindUnauthorized, "unauthorized")
	ErrLockTimeout       = New(KindBusy, "could not acquire the per-deal lock within the deadline")
)
