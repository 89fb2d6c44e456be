package types

import (
	"errors"
	"fmt"
)

// RunMeta contains run identity and lineage metadata.
type RunMeta struct {
	// RunID is the canonical run identifier. Must be globally unique.
	RunID string
	// Feed is the logical feed name the run exports.
	Feed string
	// ParentRunID links a restarted run to the abandoned run it replaces.
	// Nil for initial runs.
	ParentRunID *string
	// Attempt is the attempt number. Starts at 1 for initial runs.
	Attempt int
}

// Validate validates lineage rules:
//   - run_id and feed are non-empty
//   - attempt >= 1
//   - attempt == 1 => parent_run_id must be nil (initial run)
//   - attempt > 1 => parent_run_id must be present (restarted run)
func (r *RunMeta) Validate() error {
	if r.RunID == "" {
		return errors.New("run_id must be non-empty")
	}

	if r.Feed == "" {
		return errors.New("feed must be non-empty")
	}

	if r.Attempt < 1 {
		return fmt.Errorf("attempt must be >= 1, got %d", r.Attempt)
	}

	if r.Attempt == 1 && r.ParentRunID != nil {
		return errors.New("initial run (attempt=1) must not have parent_run_id")
	}

	if r.Attempt > 1 && r.ParentRunID == nil {
		return fmt.Errorf("restarted run (attempt=%d) must have parent_run_id", r.Attempt)
	}

	return nil
}

// OutcomeStatus represents the final status of a run.
type OutcomeStatus string

const (
	// OutcomeSuccess indicates the feed was published.
	OutcomeSuccess OutcomeStatus = "success"
	// OutcomeInProgress indicates batches remain to be processed.
	OutcomeInProgress OutcomeStatus = "in_progress"
	// OutcomeBatchFailure indicates a batch failed and retries were exhausted.
	OutcomeBatchFailure OutcomeStatus = "batch_failure"
	// OutcomePublishFailure indicates sealing or publishing failed; the canonical feed is unchanged.
	OutcomePublishFailure OutcomeStatus = "publish_failure"
	// OutcomeCanceled indicates the run was interrupted before publishing.
	OutcomeCanceled OutcomeStatus = "canceled"
)

// RunOutcome represents the outcome of a run or run step.
type RunOutcome struct {
	// Status is the outcome classification.
	Status OutcomeStatus
	// Message is a human-readable description.
	Message string
}
