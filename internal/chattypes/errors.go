package chattypes

import "fmt"

// ValidationError reports a malformed or incomplete send request. It is
// raised before any persistence happens and is only ever surfaced to the
// sender that triggered it.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid message: " + e.Reason
}

// NewValidationError builds a ValidationError with a human-readable reason.
func NewValidationError(reason string) error {
	return &ValidationError{Reason: reason}
}

// StoreError reports a persistence or query failure from the message store.
// The core never retries these automatically; the caller decides whether to
// resubmit.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError wraps err with the store operation that failed.
func NewStoreError(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}
