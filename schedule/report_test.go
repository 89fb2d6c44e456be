package schedule

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/justapithecus/catalogfeed/metrics"
	"github.com/justapithecus/catalogfeed/types"
)

func TestBuildRunReport(t *testing.T) {
	snap := metrics.NewCollector("products", "fs", "run-001").Snapshot()
	result := &RunResult{
		State:    sampleState(),
		Outcome:  types.RunOutcome{Status: types.OutcomeSuccess, Message: "feed published"},
		Duration: 1500 * time.Millisecond,
	}

	report := BuildRunReport(result, "/srv/feeds/products.csv", &snap)
	if report.RunID != "run-001" || report.ParentRunID != "run-000" || report.Attempt != 2 {
		t.Errorf("identity = %+v", report)
	}
	if report.ExitCode != 0 || report.DurationMs != 1500 || report.Location != "/srv/feeds/products.csv" {
		t.Errorf("report = %+v", report)
	}
	if report.Batches.Processed != 4 || report.Batches.Records != 55 || report.Batches.SkippedBy["ineligible"] != 5 {
		t.Errorf("batches = %+v", report.Batches)
	}

	result.Outcome = types.RunOutcome{Status: types.OutcomePublishFailure}
	failed := BuildRunReport(result, "/srv/feeds/products.csv", nil)
	if failed.ExitCode != 2 || failed.Location != "" || failed.Metrics != nil {
		t.Errorf("failed report = %+v", failed)
	}
}

func TestWriteRunReport(t *testing.T) {
	result := &RunResult{
		State:   sampleState(),
		Outcome: types.RunOutcome{Status: types.OutcomeBatchFailure, Message: "batch 4 failed 5 times"},
	}
	report := BuildRunReport(result, "", nil)

	var buf bytes.Buffer
	if err := writeRunReportTo(report, &buf); err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("report is not JSON: %v", err)
	}
	if decoded["outcome"] != "batch_failure" || decoded["exit_code"] != float64(1) {
		t.Errorf("decoded = %v", decoded)
	}
	if _, ok := decoded["location"]; ok {
		t.Error("location should be omitted for failed runs")
	}

	path := filepath.Join(t.TempDir(), "report.json")
	if err := WriteRunReport(report, path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, buf.Bytes()) {
		t.Error("file report differs from writer report")
	}

	if err := WriteRunReport(report, ""); err == nil {
		t.Error("expected error for empty path")
	}
}
