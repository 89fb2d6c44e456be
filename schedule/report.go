package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/justapithecus/catalogfeed/metrics"
	"github.com/justapithecus/catalogfeed/types"
)

// RunReport is the structured JSON report written by --report.
type RunReport struct {
	RunID       string              `json:"run_id"`
	Feed        string              `json:"feed"`
	ParentRunID string              `json:"parent_run_id,omitempty"`
	Attempt     int                 `json:"attempt"`
	Outcome     types.OutcomeStatus `json:"outcome"`
	Message     string              `json:"message"`
	ExitCode    int                 `json:"exit_code"`
	DurationMs  int64               `json:"duration_ms"`
	Location    string              `json:"location,omitempty"`

	Batches *ReportBatches    `json:"batches"`
	Metrics *metrics.Snapshot `json:"metrics,omitempty"`
}

// ReportBatches holds batch progress and totals in the report.
type ReportBatches struct {
	BatchSize  int              `json:"batch_size"`
	NextIndex  int              `json:"next_index"`
	Processed  int              `json:"processed"`
	Candidates int64            `json:"candidates"`
	Records    int64            `json:"records"`
	Skipped    int64            `json:"skipped"`
	SkippedBy  map[string]int64 `json:"skipped_by,omitempty"`
	Bytes      int64            `json:"bytes"`
	LastError  string           `json:"last_error,omitempty"`
}

// BuildRunReport composes a RunReport from a run result. snap may be nil.
func BuildRunReport(result *RunResult, location string, snap *metrics.Snapshot) *RunReport {
	state := result.State
	report := &RunReport{
		RunID:      state.RunID,
		Feed:       state.Feed,
		Attempt:    state.Attempt,
		Outcome:    result.Outcome.Status,
		Message:    result.Outcome.Message,
		ExitCode:   ExitCode(result.Outcome.Status),
		DurationMs: result.Duration.Milliseconds(),
		Batches: &ReportBatches{
			BatchSize:  state.BatchSize,
			NextIndex:  state.BatchIndex,
			Processed:  state.Totals.Batches,
			Candidates: state.Totals.Candidates,
			Records:    state.Totals.Records,
			Skipped:    state.Totals.Skipped,
			Bytes:      state.Totals.Bytes,
			LastError:  state.LastError,
		},
		Metrics: snap,
	}
	if state.ParentRunID != nil {
		report.ParentRunID = *state.ParentRunID
	}
	if result.Outcome.Status == types.OutcomeSuccess {
		report.Location = location
	}
	if len(state.Totals.SkippedBy) > 0 {
		report.Batches.SkippedBy = make(map[string]int64, len(state.Totals.SkippedBy))
		for reason, n := range state.Totals.SkippedBy {
			report.Batches.SkippedBy[string(reason)] = n
		}
	}
	return report
}

// WriteRunReport writes the report as JSON to path. "-" writes to stderr.
func WriteRunReport(report *RunReport, path string) error {
	if path == "" {
		return errors.New("report path must not be empty")
	}
	if path == "-" {
		if err := writeRunReportTo(report, os.Stderr); err != nil {
			return fmt.Errorf("failed to write report to stderr: %w", err)
		}
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	if err := writeRunReportTo(report, f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return f.Close()
}

func writeRunReportTo(report *RunReport, w io.Writer) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
