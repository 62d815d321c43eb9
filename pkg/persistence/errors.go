// Package persistence provides standardized error types for storage operations.
package persistence

import (
	"errors"
	"fmt"
)

var (
	// ErrSequenceNotFound indicates no sequence exists for the given identifier.
	ErrSequenceNotFound = errors.New("sequence not found")

	// ErrSequenceAlreadyExists indicates a non-archived sequence already
	// exists for the (recipient_id, campaign_id) pair.
	ErrSequenceAlreadyExists = errors.New("sequence already exists")

	// ErrStepNotFound indicates the sequence has no step with that number.
	ErrStepNotFound = errors.New("step not found")

	// ErrStaleUpdate indicates a conditional write found the step already
	// in a terminal state. The race was lost to a concurrent execution;
	// callers treat this as "already handled" and drop their result.
	ErrStaleUpdate = errors.New("step already in terminal state")
)

// SequenceError wraps sequence-related storage errors with operation context.
type SequenceError struct {
	Op         string
	SequenceID string
	StepNumber int
	Err        error
}

func (e *SequenceError) Error() string {
	if e.StepNumber > 0 {
		return fmt.Sprintf("%s failed for sequence %s step %d: %v", e.Op, e.SequenceID, e.StepNumber, e.Err)
	}

	return fmt.Sprintf("%s failed for sequence %s: %v", e.Op, e.SequenceID, e.Err)
}

func (e *SequenceError) Unwrap() error {
	return e.Err
}

func (e *SequenceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewSequenceError creates a sequence error with context.
func NewSequenceError(op, sequenceID string, err error) *SequenceError {
	return &SequenceError{Op: op, SequenceID: sequenceID, Err: err}
}

// NewStepError creates a step-scoped sequence error.
func NewStepError(op, sequenceID string, stepNumber int, err error) *SequenceError {
	return &SequenceError{Op: op, SequenceID: sequenceID, StepNumber: stepNumber, Err: err}
}

// IsSequenceNotFound checks if an error indicates a missing sequence.
func IsSequenceNotFound(err error) bool {
	return errors.Is(err, ErrSequenceNotFound)
}

// IsStaleUpdate checks if an error indicates a lost conditional write.
func IsStaleUpdate(err error) bool {
	return errors.Is(err, ErrStaleUpdate)
}
