// Package reader provides the read side of the catalogfeed CLI.
//
// Read-only commands go through this package exclusively; it never mutates
// run state or history.
package reader

import (
	"time"

	"github.com/justapithecus/catalogfeed/lode"
	"github.com/justapithecus/catalogfeed/types"
)

// Run phases reported by status.
const (
	PhaseIdle       = "idle"
	PhasePending    = "pending"
	PhaseInProgress = "in_progress"
	PhaseRetrying   = "retrying"
	PhasePublishing = "publishing"
	PhaseCompleted  = "completed"
)

// StatusResponse is the payload of the status command.
type StatusResponse struct {
	Feed    string        `json:"feed" yaml:"feed"`
	Phase   string        `json:"phase" yaml:"phase"`
	Current *CurrentRun   `json:"current" yaml:"current"`
	Latest  *PublishedRun `json:"latest" yaml:"latest"`
}

// CurrentRun is the orchestrator's view of the run in progress.
type CurrentRun struct {
	RunID         string    `json:"run_id" yaml:"run_id"`
	ParentRunID   *string   `json:"parent_run_id" yaml:"parent_run_id"`
	Attempt       int       `json:"attempt" yaml:"attempt"`
	BatchSize     int       `json:"batch_size" yaml:"batch_size"`
	NextBatch     int       `json:"next_batch" yaml:"next_batch"`
	BatchAttempts int       `json:"batch_attempts" yaml:"batch_attempts"`
	LastError     string    `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	Batches       int       `json:"batches" yaml:"batches"`
	Records       int64     `json:"records" yaml:"records"`
	Skipped       int64     `json:"skipped" yaml:"skipped"`
	StartedAt     time.Time `json:"started_at" yaml:"started_at"`
	UpdatedAt     time.Time `json:"updated_at" yaml:"updated_at"`
}

// PublishedRun is the latest run recorded in the history dataset.
type PublishedRun struct {
	RunID       string           `json:"run_id" yaml:"run_id"`
	Attempt     int              `json:"attempt" yaml:"attempt"`
	Location    string           `json:"location" yaml:"location"`
	Batches     int64            `json:"batches" yaml:"batches"`
	Records     int64            `json:"records" yaml:"records"`
	Skipped     int64            `json:"skipped" yaml:"skipped"`
	SkippedBy   map[string]int64 `json:"skipped_by,omitempty" yaml:"skipped_by,omitempty"`
	Bytes       int64            `json:"bytes" yaml:"bytes"`
	StartedAt   time.Time        `json:"started_at" yaml:"started_at"`
	CompletedAt time.Time        `json:"completed_at" yaml:"completed_at"`
	DurationMs  int64            `json:"duration_ms" yaml:"duration_ms"`
}

// Phase classifies saved run state. A nil state is idle.
func Phase(state *types.RunState) string {
	switch {
	case state == nil:
		return PhaseIdle
	case state.Completed:
		return PhaseCompleted
	case state.Draining:
		return PhasePublishing
	case state.BatchAttempts > 0:
		return PhaseRetrying
	case state.Started:
		return PhaseInProgress
	default:
		return PhasePending
	}
}

func currentRun(state *types.RunState) *CurrentRun {
	return &CurrentRun{
		RunID:         state.RunID,
		ParentRunID:   state.ParentRunID,
		Attempt:       state.Attempt,
		BatchSize:     state.BatchSize,
		NextBatch:     state.BatchIndex,
		BatchAttempts: state.BatchAttempts,
		LastError:     state.LastError,
		Batches:       state.Totals.Batches,
		Records:       state.Totals.Records,
		Skipped:       state.Totals.Skipped,
		StartedAt:     state.StartedAt,
		UpdatedAt:     state.UpdatedAt,
	}
}

func publishedRun(s *lode.RunSummary) *PublishedRun {
	return &PublishedRun{
		RunID:       s.RunID,
		Attempt:     s.Attempt,
		Location:    s.Location,
		Batches:     s.Batches,
		Records:     s.Records,
		Skipped:     s.Skipped,
		SkippedBy:   s.SkippedBy,
		Bytes:       s.Bytes,
		StartedAt:   s.StartedAt,
		CompletedAt: s.CompletedAt,
		DurationMs:  s.CompletedAt.Sub(s.StartedAt).Milliseconds(),
	}
}
