package pipeline

import (
	"errors"
	"fmt"
)

// BatchError reports a batch-level failure. Nothing was appended for the
// batch, so the orchestrator retries the same index.
type BatchError struct {
	BatchIndex int
	Offset     int64
	// Op is the failed step: offset, fetch, transform, encode or append.
	Op  string
	Err error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %d (offset %d): %s: %v", e.BatchIndex, e.Offset, e.Op, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// IsBatchError reports whether err is or wraps a *BatchError.
func IsBatchError(err error) bool {
	var be *BatchError
	return errors.As(err, &be)
}
