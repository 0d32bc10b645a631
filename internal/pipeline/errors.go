package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyBatch is returned when a batch has no items.
	ErrEmptyBatch = errors.New("no files provided")

	// ErrBatchTooLarge is returned when a batch exceeds the configured size.
	ErrBatchTooLarge = errors.New("batch too large")
)

// BatchError wraps a batch-level failure with the operation and batch that
// produced it.
type BatchError struct {
	Op        string // Operation that failed
	BatchName string // Empty when the batch was rejected before naming
	Limit     int    // Maximum batch size, set for ErrBatchTooLarge
	Err       error  // Underlying error
}

func (e *BatchError) Error() string {
	msg := e.Op
	if e.BatchName != "" {
		msg += fmt.Sprintf(" [%s]", e.BatchName)
	}
	if errors.Is(e.Err, ErrBatchTooLarge) {
		return fmt.Sprintf("%s: %v (max %d)", msg, e.Err, e.Limit)
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// WrapBatchError wraps err unless it already is a BatchError.
func WrapBatchError(op, batchName string, err error) error {
	if err == nil {
		return nil
	}

	var batchErr *BatchError
	if errors.As(err, &batchErr) {
		return err
	}

	return &BatchError{Op: op, BatchName: batchName, Err: err}
}
