package generation

import (
	"errors"
	"fmt"
)

// TransientError is one failed attempt: transport error, attempt timeout or
// a payload that failed the structural check. It is always retried.
type TransientError struct {
	Attempt int
	Err     error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("generation attempt %d failed: %v", e.Attempt, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient marks err as retryable from an acceptance check.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	var te *TransientError
	if errors.As(err, &te) {
		return err
	}
	return &TransientError{Err: err}
}

// ExhaustedError is returned under the fail policy once every attempt failed.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("generation failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// TimeoutError is returned under the fail policy when the caller's context ends.
type TimeoutError struct {
	Attempts int
	Err      error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("generation aborted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }
