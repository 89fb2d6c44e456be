// Package artifact stages feed output and publishes it atomically.
//
// A staging artifact is created at Start, grows by one append per batch and
// is sealed at End, then swapped in as the canonical artifact in a single
// replace. Consumers only ever see the canonical location.
package artifact

import (
	"context"
	"errors"
)

var (
	// ErrNoStaging is returned when no staging artifact exists.
	ErrNoStaging = errors.New("no staging artifact")
	// ErrNotSealed is returned when publishing a staging artifact that was not sealed.
	ErrNotSealed = errors.New("staging artifact not sealed")
	// ErrSealed is returned when writing to a sealed staging artifact.
	ErrSealed = errors.New("staging artifact already sealed")
	// ErrPublish wraps every publish failure. The canonical artifact is unchanged.
	ErrPublish = errors.New("publish failed")
)

// StagingWriter accumulates the feed in a staging artifact.
//
// Calls for one run may come from different processes with arbitrary delays
// between them; no handle is held across calls.
type StagingWriter interface {
	// Open discards any leftover staging artifact and creates a fresh empty one.
	Open(ctx context.Context) error
	// WriteHeader writes the header chunk.
	WriteHeader(ctx context.Context, header []byte) error
	// Append adds one batch's encoded records. A failed append leaves no
	// partial bytes, so the same batch can be retried.
	Append(ctx context.Context, batchIndex int, payload []byte) error
	// Close seals the staging artifact. Later writes fail with ErrSealed.
	Close(ctx context.Context) error
}

// Publisher swaps a sealed staging artifact in as the canonical artifact.
type Publisher interface {
	// Publish replaces the canonical artifact in one atomic operation.
	// Failures wrap ErrPublish and leave the canonical artifact untouched.
	Publish(ctx context.Context) error
}

// Backend is a storage location that stages and publishes one feed.
type Backend interface {
	StagingWriter
	Publisher
	// Location returns where consumers read the canonical artifact.
	Location() string
}
