package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy. Only ErrAuthentication (and unrecoverable configuration
// errors at startup) stops the process; everything else is handled at the
// client/loop boundary.
var (
	ErrAuthentication         = errors.New("authentication failed")
	ErrStaleData              = errors.New("reference price is stale")
	ErrRateLimited            = errors.New("rate limited by exchange")
	ErrReconciliationConflict = errors.New("local and exchange order state disagree")
)

// TransientError wraps a network failure or 5xx response that is safe to
// retry for idempotent calls.
type TransientError struct {
	Err error
}

func (transient *TransientError) Error() string {
	return fmt.Sprintf("transient exchange error: %v", transient.Err)
}

func (transient *TransientError) Unwrap() error {
	return transient.Err
}

func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// RejectionError is a terminal 4xx rejection for one order. Never retried.
type RejectionError struct {
	Reason string
}

func (rejection *RejectionError) Error() string {
	return fmt.Sprintf("exchange rejection: %s", rejection.Reason)
}
