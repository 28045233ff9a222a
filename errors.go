package instruct

import (
	"errors"
	"fmt"
)

var (
	// ErrRecoveryExhausted matches every *RecoveryExhaustedError.
	ErrRecoveryExhausted = errors.New("recovery exhausted")

	// ErrClosed is returned by an execution that was closed before it produced a value.
	ErrClosed = errors.New("execution closed")
)

// RecoveryExhaustedError is the terminal error of an execution whose attempts all failed
// validation. It unwraps to the failure of the last attempt.
type RecoveryExhaustedError struct {
	Attempts int
	Err      error
}

func (e *RecoveryExhaustedError) Error() string {
	return fmt.Sprintf("recovery exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RecoveryExhaustedError) Unwrap() error {
	return e.Err
}

func (e *RecoveryExhaustedError) Is(target error) bool {
	return target == ErrRecoveryExhausted
}

// TransportError wraps a provider failure. Transport errors end the execution without a retry.
type TransportError struct {
	Attempt int
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("provider call failed on attempt %d: %v", e.Attempt, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
