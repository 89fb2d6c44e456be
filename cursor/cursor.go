// Package cursor maps batch indices to item offsets.
//
// The offset of a batch is derived from its index alone, never from a live
// count of the item set, so any batch can be re-derived after a crash.
package cursor

import (
	"errors"
	"fmt"
)

const (
	// DefaultBatchSize is the number of items per batch when unset.
	DefaultBatchSize = 15
	// MaxBatchSize bounds a single batch.
	MaxBatchSize = 10000
)

// ErrNegativeBatchIndex is returned for batch indices below zero.
var ErrNegativeBatchIndex = errors.New("batch index must be >= 0")

// ErrInvalidBatchSize is returned for batch sizes outside [1, MaxBatchSize].
var ErrInvalidBatchSize = errors.New("invalid batch size")

// Tracker computes batch offsets for a fixed batch size.
// Tracker is immutable and safe for concurrent use.
type Tracker struct {
	batchSize int
}

// New creates a Tracker. Zero selects DefaultBatchSize.
func New(batchSize int) (*Tracker, error) {
	if batchSize == 0 {
		batchSize = DefaultBatchSize
	}
	if batchSize < 1 || batchSize > MaxBatchSize {
		return nil, fmt.Errorf("%w: %d (must be 1..%d)", ErrInvalidBatchSize, batchSize, MaxBatchSize)
	}
	return &Tracker{batchSize: batchSize}, nil
}

// BatchSize returns the fixed batch size.
func (t *Tracker) BatchSize() int {
	return t.batchSize
}

// Offset returns batchIndex*batchSize.
func (t *Tracker) Offset(batchIndex int) (int64, error) {
	if batchIndex < 0 {
		return 0, fmt.Errorf("%w: got %d", ErrNegativeBatchIndex, batchIndex)
	}
	return int64(batchIndex) * int64(t.batchSize), nil
}
