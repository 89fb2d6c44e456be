// Package schedule is a reference orchestrator for the export pipeline.
//
// It persists run state between invocations so a run can advance one batch
// per scheduler tick (cron) or run to completion in one process, retrying a
// failing batch at the same index with exponential backoff.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/justapithecus/catalogfeed/adapter"
	"github.com/justapithecus/catalogfeed/cursor"
	"github.com/justapithecus/catalogfeed/log"
	"github.com/justapithecus/catalogfeed/metrics"
	"github.com/justapithecus/catalogfeed/pipeline"
	"github.com/justapithecus/catalogfeed/types"
)

// DefaultMaxBatchAttempts is how often Run tries one batch before giving up.
const DefaultMaxBatchAttempts = 5

// DefaultBackoff is the delay before the first batch retry.
const DefaultBackoff = time.Second

var (
	// ErrBatchSizeChanged is returned when the configured batch size differs
	// from the one the in-progress run started with.
	ErrBatchSizeChanged = errors.New("batch size changed mid-run")
	// ErrFeedMismatch is returned when the saved state belongs to another feed.
	ErrFeedMismatch = errors.New("run state belongs to another feed")
)

// HooksFactory builds the lifecycle hooks for the run described by state.
// It is called on every tick; state carries the run identity and totals.
type HooksFactory func(state *types.RunState) (pipeline.Hooks, error)

// Config configures a Runner.
type Config struct {
	Feed      string
	BatchSize int
	State     StateStore
	Hooks     HooksFactory
	// MaxBatchAttempts bounds retries of one batch in Run (default 5).
	MaxBatchAttempts int
	// Backoff is the base retry delay in Run (default 1s).
	Backoff time.Duration
	// Retryable reports whether a failed step is worth retrying in Run.
	// A false answer fails the run at once. Nil retries every error.
	Retryable func(error) bool
	Collector *metrics.Collector
	Logger    *log.Logger
	// NewRunID generates run ids (default uuid v4).
	NewRunID func() string
	// Now overrides the clock for tests.
	Now func() time.Time
}

// Step names what a tick did.
type Step string

const (
	StepStarted   Step = "started"
	StepBatch     Step = "batch"
	StepPublished Step = "published"
	StepFailed    Step = "failed"
)

// TickResult reports one tick.
type TickResult struct {
	Step    Step
	State   *types.RunState
	Outcome *types.BatchOutcome
}

// RunResult reports a Run.
type RunResult struct {
	State    *types.RunState
	Outcome  types.RunOutcome
	Duration time.Duration
}

// Runner drives pipeline hooks from persisted run state.
type Runner struct {
	config Config
	logger *log.Logger
}

// NewRunner validates config and creates a Runner.
func NewRunner(config Config) (*Runner, error) {
	if config.Feed == "" {
		return nil, errors.New("feed name is required")
	}
	if config.State == nil {
		return nil, errors.New("state store is required")
	}
	if config.Hooks == nil {
		return nil, errors.New("hooks factory is required")
	}
	if config.BatchSize == 0 {
		config.BatchSize = cursor.DefaultBatchSize
	}
	if _, err := cursor.New(config.BatchSize); err != nil {
		return nil, err
	}
	if config.MaxBatchAttempts <= 0 {
		config.MaxBatchAttempts = DefaultMaxBatchAttempts
	}
	if config.Backoff <= 0 {
		config.Backoff = DefaultBackoff
	}
	if config.Retryable == nil {
		config.Retryable = func(error) bool { return true }
	}
	if config.NewRunID == nil {
		config.NewRunID = uuid.NewString
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	logger := config.Logger
	if logger == nil {
		logger = log.Nop()
	}
	return &Runner{config: config, logger: logger}, nil
}

// State returns the saved run state, or ErrNoState.
func (r *Runner) State(ctx context.Context) (*types.RunState, error) {
	return r.config.State.Load(ctx)
}

// Reset abandons the current run. An unfinished run is replaced by a fresh,
// not yet started attempt linked to it; a finished run is simply cleared.
func (r *Runner) Reset(ctx context.Context) (*types.RunState, error) {
	state, err := r.config.State.Load(ctx)
	if errors.Is(err, ErrNoState) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if state.Completed {
		return nil, r.config.State.Clear(ctx)
	}

	parent := state.RunID
	next := r.newState(&parent, state.Attempt+1)
	if err := r.config.State.Save(ctx, next); err != nil {
		return nil, err
	}
	r.logger.Warn("run abandoned", map[string]any{
		"abandoned_run_id": parent,
		"batch_index":      state.BatchIndex,
		"new_run_id":       next.RunID,
	})
	return next, nil
}

func (r *Runner) newState(parent *string, attempt int) *types.RunState {
	now := r.config.Now()
	return &types.RunState{
		RunID:       r.config.NewRunID(),
		Feed:        r.config.Feed,
		ParentRunID: parent,
		Attempt:     attempt,
		BatchSize:   r.config.BatchSize,
		StartedAt:   now,
		UpdatedAt:   now,
	}
}

// loadOrCreate returns the active run state, creating a new run when there
// is none or the previous one completed.
func (r *Runner) loadOrCreate(ctx context.Context) (*types.RunState, error) {
	state, err := r.config.State.Load(ctx)
	switch {
	case errors.Is(err, ErrNoState):
		return r.newState(nil, 1), nil
	case err != nil:
		return nil, err
	case state.Completed:
		return r.newState(nil, 1), nil
	}

	if state.Feed != r.config.Feed {
		return nil, fmt.Errorf("%w: %q, configured %q", ErrFeedMismatch, state.Feed, r.config.Feed)
	}
	if state.Started && state.BatchSize != r.config.BatchSize {
		return nil, fmt.Errorf("%w: run %s uses %d, configured %d (reset the run to change it)",
			ErrBatchSizeChanged, state.RunID, state.BatchSize, r.config.BatchSize)
	}
	// A reset attempt has not started yet and adopts the configured size.
	state.BatchSize = r.config.BatchSize
	return state, nil
}

// Tick performs one orchestrator step: start a run, process the next
// batch, or end the run after the empty batch. The step's error is returned
// after the state has been saved.
func (r *Runner) Tick(ctx context.Context) (*TickResult, error) {
	state, err := r.loadOrCreate(ctx)
	if err != nil {
		return nil, err
	}

	hooks, err := r.config.Hooks(state)
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}

	result := &TickResult{State: state}
	var stepErr error
	switch {
	case !state.Started:
		result.Step, stepErr = StepStarted, r.start(ctx, hooks, state)
	case state.Draining:
		result.Step, stepErr = StepPublished, r.end(ctx, hooks, state)
	default:
		result.Step = StepBatch
		result.Outcome, stepErr = r.process(ctx, hooks, state)
		if stepErr == nil && result.Outcome.Done {
			result.Step, stepErr = StepPublished, r.end(ctx, hooks, state)
		}
	}
	if stepErr != nil {
		result.Step = StepFailed
	}

	state.UpdatedAt = r.config.Now()
	if err := r.config.State.Save(context.WithoutCancel(ctx), state); err != nil {
		return result, errors.Join(stepErr, fmt.Errorf("save run state: %w", err))
	}
	return result, stepErr
}

func (r *Runner) start(ctx context.Context, hooks pipeline.Hooks, state *types.RunState) error {
	if err := hooks.Start(ctx); err != nil {
		state.BatchAttempts++
		state.LastError = err.Error()
		return err
	}
	state.Started = true
	state.BatchIndex = 0
	state.BatchAttempts = 0
	state.LastError = ""
	state.StartedAt = r.config.Now()
	return nil
}

func (r *Runner) process(ctx context.Context, hooks pipeline.Hooks, state *types.RunState) (*types.BatchOutcome, error) {
	outcome, err := hooks.Process(ctx, state.BatchIndex)
	if err != nil {
		state.BatchAttempts++
		state.LastError = err.Error()
		return &outcome, err
	}
	state.BatchAttempts = 0
	state.LastError = ""
	if outcome.Done {
		state.Draining = true
		return &outcome, nil
	}
	state.Totals.Add(outcome)
	state.BatchIndex++
	return &outcome, nil
}

func (r *Runner) end(ctx context.Context, hooks pipeline.Hooks, state *types.RunState) error {
	if err := hooks.End(ctx); err != nil {
		state.LastError = err.Error()
		return &PublishError{RunID: state.RunID, Err: err}
	}
	state.Completed = true
	state.Draining = false
	state.LastError = ""
	state.CompletedAt = r.config.Now()
	return nil
}

// Run ticks until the current run is published or fails terminally.
// Failures are reported in the result; the error is reserved for state
// store and configuration problems.
func (r *Runner) Run(ctx context.Context) (*RunResult, error) {
	started := r.config.Now()

	for {
		tick, err := r.Tick(ctx)
		if tick == nil {
			return nil, err
		}
		state := tick.State
		result := &RunResult{State: state, Duration: r.config.Now().Sub(started)}

		switch {
		case err == nil && state.Completed:
			result.Outcome = types.RunOutcome{Status: types.OutcomeSuccess, Message: "feed published"}
			return result, nil
		case err == nil:
			continue
		case ctx.Err() != nil:
			result.Outcome = types.RunOutcome{Status: types.OutcomeCanceled, Message: err.Error()}
			return result, nil
		case IsPublishError(err):
			result.Outcome = types.RunOutcome{Status: types.OutcomePublishFailure, Message: err.Error()}
			return result, nil
		case tick.Step != StepFailed:
			// Saving state failed after a successful step.
			return result, err
		}

		if !r.config.Retryable(err) {
			r.config.Collector.IncRunFailed()
			r.logger.Error("batch failed permanently", map[string]any{
				"batch": state.BatchIndex,
				"error": err.Error(),
			})
			result.Outcome = types.RunOutcome{
				Status:  types.OutcomeBatchFailure,
				Message: fmt.Sprintf("batch %d failed permanently: %v", state.BatchIndex, err),
			}
			return result, nil
		}
		if state.BatchAttempts >= r.config.MaxBatchAttempts {
			r.config.Collector.IncRunFailed()
			r.logger.Error("batch retries exhausted", map[string]any{
				"batch":    state.BatchIndex,
				"attempts": state.BatchAttempts,
				"error":    err.Error(),
			})
			result.Outcome = types.RunOutcome{
				Status:  types.OutcomeBatchFailure,
				Message: fmt.Sprintf("batch %d failed %d times: %v", state.BatchIndex, state.BatchAttempts, err),
			}
			return result, nil
		}

		delay := adapter.Backoff(r.config.Backoff, state.BatchAttempts)
		r.logger.Warn("retrying batch", map[string]any{
			"batch":   state.BatchIndex,
			"attempt": state.BatchAttempts + 1,
			"delay":   delay.String(),
			"error":   err.Error(),
		})
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			result.Outcome = types.RunOutcome{Status: types.OutcomeCanceled, Message: ctx.Err().Error()}
			return result, nil
		case <-timer.C:
		}
	}
}

// PublishError reports a failed End. The canonical artifact is unchanged and
// the next tick retries sealing and publishing.
type PublishError struct {
	RunID string
	Err   error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("run %s: end: %v", e.RunID, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// IsPublishError reports whether err is or wraps a *PublishError.
func IsPublishError(err error) bool {
	var pe *PublishError
	return errors.As(err, &pe)
}

// ExitCode maps a run outcome to the CLI exit code.
func ExitCode(status types.OutcomeStatus) int {
	switch status {
	case types.OutcomeSuccess:
		return 0
	case types.OutcomePublishFailure:
		return 2
	default:
		return 1
	}
}
