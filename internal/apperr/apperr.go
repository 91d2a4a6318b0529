// Package apperr holds the error taxonomy of the order engine and its
// classification into stable kinds.
package apperr

import (
	"context"
	"errors"
)

// kindError is a sentinel that carries its own classification.
type kindError struct {
	kind string
	msg  string
}

func (e kindError) Error() string { return e.msg }
func (e kindError) Kind() string  { return e.kind }

var (
	// ErrInvalidTransition is returned for an action that is not an edge of
	// the workflow from the order's current status. No remote call is made.
	ErrInvalidTransition = kindError{kind: "invalid_transition", msg: "invalid order status transition"}

	// ErrTransitionInFlight is returned while another transition for the same
	// order has not completed.
	ErrTransitionInFlight = kindError{kind: "transition_in_flight", msg: "order transition already in flight"}

	ErrOrderNotFound = kindError{kind: "order_not_found", msg: "order not found"}
	ErrNotPending    = kindError{kind: "not_pending", msg: "order is not pending"}
	ErrNoBusiness    = kindError{kind: "no_business", msg: "no active business context"}
	ErrClosed        = kindError{kind: "closed", msg: "business context closed"}

	// ErrFetchFailed wraps any failure of the remote snapshot fetch.
	ErrFetchFailed = kindError{kind: "fetch_failed", msg: "fetch orders failed"}

	// ErrRemote is returned when the remote source answers with a non-success status.
	ErrRemote = kindError{kind: "remote_error", msg: "remote order source error"}
)

// kinder is satisfied by errors that classify themselves.
type kinder interface {
	Kind() string
}

// Kind returns the classification of err, walking the wrap chain.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	var k kinder
	if errors.As(err, &k) {
		return k.Kind()
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "internal"
	}
}
