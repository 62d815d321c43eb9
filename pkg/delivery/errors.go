package delivery

import (
	"errors"
	"fmt"
	"net"
)

// TransientError marks a failure worth retrying: network trouble, timeouts,
// provider-side overload.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient delivery error: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// PermanentError marks a failure retrying cannot fix: invalid recipient,
// rejected content. Surfaced immediately, never retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent delivery error: %v", e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient.
func NewTransientError(err error) error {
	return &TransientError{Err: err}
}

// NewPermanentError wraps an error as permanent.
func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

// IsTransient reports whether the error is classified transient. Unclassified
// network errors count as transient; everything else does not.
func IsTransient(err error) bool {
	var transient *TransientError
	if errors.As(err, &transient) {
		return true
	}

	var permanent *PermanentError
	if errors.As(err, &permanent) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return false
}

// IsPermanent reports whether the error is classified permanent.
func IsPermanent(err error) bool {
	var permanent *PermanentError

	return errors.As(err, &permanent)
}
