package types

import "time"

// BatchStatus classifies the result of processing one batch.
type BatchStatus string

const (
	// BatchSucceeded means the batch's records were appended to staging.
	BatchSucceeded BatchStatus = "succeeded"
	// BatchFailed means nothing was appended; the same index must be retried.
	BatchFailed BatchStatus = "failed"
	// BatchEmpty means the source had no candidates at the offset: the run is done.
	BatchEmpty BatchStatus = "empty"
)

// BatchOutcome reports what a single process(batch) invocation did.
//
// Candidates and Records are separate signals: a batch may have candidates
// yet produce zero records (all skipped). Only Done marks termination.
type BatchOutcome struct {
	BatchIndex int                `msgpack:"batch_index" json:"batch_index"`
	Offset     int64              `msgpack:"offset" json:"offset"`
	Status     BatchStatus        `msgpack:"status" json:"status"`
	Candidates int                `msgpack:"candidates" json:"candidates"`
	Records    int                `msgpack:"records" json:"records"`
	Skipped    map[SkipReason]int `msgpack:"skipped,omitempty" json:"skipped,omitempty"`
	Bytes      int64              `msgpack:"bytes" json:"bytes"`
	Done       bool               `msgpack:"done" json:"done"`
	Reason     string             `msgpack:"reason,omitempty" json:"reason,omitempty"`
}

// SkippedTotal returns the number of skipped items across all reasons.
func (o BatchOutcome) SkippedTotal() int {
	n := 0
	for _, v := range o.Skipped {
		n += v
	}
	return n
}

// RunTotals accumulates batch outcomes across a run.
type RunTotals struct {
	Batches    int                  `msgpack:"batches" json:"batches"`
	Candidates int64                `msgpack:"candidates" json:"candidates"`
	Records    int64                `msgpack:"records" json:"records"`
	Skipped    int64                `msgpack:"skipped" json:"skipped"`
	SkippedBy  map[SkipReason]int64 `msgpack:"skipped_by,omitempty" json:"skipped_by,omitempty"`
	Bytes      int64                `msgpack:"bytes" json:"bytes"`
}

// Add folds a successful batch outcome into the totals.
func (t *RunTotals) Add(o BatchOutcome) {
	if o.Status != BatchSucceeded {
		return
	}
	t.Batches++
	t.Candidates += int64(o.Candidates)
	t.Records += int64(o.Records)
	t.Bytes += o.Bytes
	for reason, n := range o.Skipped {
		if t.SkippedBy == nil {
			t.SkippedBy = make(map[SkipReason]int64)
		}
		t.SkippedBy[reason] += int64(n)
		t.Skipped += int64(n)
	}
}

// RunState is the orchestrator-owned progress of one export run.
// The pipeline never reads or writes it.
type RunState struct {
	RunID       string  `msgpack:"run_id" json:"run_id"`
	Feed        string  `msgpack:"feed" json:"feed"`
	ParentRunID *string `msgpack:"parent_run_id,omitempty" json:"parent_run_id,omitempty"`
	Attempt     int     `msgpack:"attempt" json:"attempt"`
	// BatchSize is fixed for the whole run; changing it mid-run is rejected.
	BatchSize int `msgpack:"batch_size" json:"batch_size"`
	// BatchIndex is the next batch to process.
	BatchIndex int  `msgpack:"batch_index" json:"batch_index"`
	Started    bool `msgpack:"started" json:"started"`
	// Draining is set once the empty batch was observed and End is pending.
	Draining  bool `msgpack:"draining" json:"draining"`
	Completed bool `msgpack:"completed" json:"completed"`
	// BatchAttempts counts consecutive failures of BatchIndex.
	BatchAttempts int       `msgpack:"batch_attempts" json:"batch_attempts"`
	LastError     string    `msgpack:"last_error,omitempty" json:"last_error,omitempty"`
	Totals        RunTotals `msgpack:"totals" json:"totals"`
	StartedAt     time.Time `msgpack:"started_at" json:"started_at"`
	UpdatedAt     time.Time `msgpack:"updated_at" json:"updated_at"`
	CompletedAt   time.Time `msgpack:"completed_at,omitempty" json:"completed_at,omitempty"`
}

// Meta returns the run identity carried by the state.
func (s *RunState) Meta() *RunMeta {
	return &RunMeta{
		RunID:       s.RunID,
		Feed:        s.Feed,
		ParentRunID: s.ParentRunID,
		Attempt:     s.Attempt,
	}
}
