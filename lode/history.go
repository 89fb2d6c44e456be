package lode

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/justapithecus/lode/lode"
)

// DefaultHistoryDataset is the dataset id of the run history.
const DefaultHistoryDataset = "catalogfeed_runs"

// RecordKindRunSummary discriminates run summary records.
const RecordKindRunSummary = "run_summary"

// ErrNoRunsFound is returned when the history holds no matching run.
var ErrNoRunsFound = errors.New("no run summaries found")

// RunSummary is the history record written after a feed is published.
type RunSummary struct {
	RunID       string
	Feed        string
	Attempt     int
	Outcome     string
	Location    string
	Batches     int64
	Candidates  int64
	Records     int64
	Skipped     int64
	SkippedBy   map[string]int64
	Bytes       int64
	StartedAt   time.Time
	CompletedAt time.Time
}

// DeriveDay computes the partition day from a timestamp.
// Format: YYYY-MM-DD in UTC.
func DeriveDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// NewHistoryDataset creates the run history Dataset.
// Records are partitioned feed/day/run_id and encoded as JSONL.
func NewHistoryDataset(dataset string, factory lode.StoreFactory) (lode.Dataset, error) {
	if dataset == "" {
		dataset = DefaultHistoryDataset
	}
	ds, err := lode.NewDataset(
		lode.DatasetID(dataset),
		factory,
		lode.WithHiveLayout("feed", "day", "run_id"),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
	if err != nil {
		return nil, WrapInitError(err, dataset)
	}
	return ds, nil
}

// WriteRunSummary appends one run summary to the history.
func WriteRunSummary(ctx context.Context, ds lode.Dataset, s RunSummary) error {
	if s.RunID == "" || s.Feed == "" {
		return errors.New("run summary requires run_id and feed")
	}
	if _, err := ds.Write(ctx, []any{toSummaryMap(s)}, lode.Metadata{}); err != nil {
		return WrapWriteError(err, fmt.Sprintf("%s/run_id=%s", ds.ID(), s.RunID))
	}
	return nil
}

// QueryLatestRun returns the most recent run summary, optionally filtered by feed.
// Returns ErrNoRunsFound if none match.
func QueryLatestRun(ctx context.Context, ds lode.Dataset, feed string) (*RunSummary, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, fmt.Sprintf("%s/snapshots", ds.ID()))
	}

	// Snapshots are ordered by creation time; walk latest first.
	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		if !snapshotMatchesFilter(snap, "feed", feed) {
			continue
		}

		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("%s/snapshot/%s", ds.ID(), snap.ID))
		}

		// Manifest paths are a coarse pre-filter; record fields are authoritative.
		for j := len(data) - 1; j >= 0; j-- {
			record, ok := data[j].(map[string]any)
			if !ok || record["record_kind"] != RecordKindRunSummary {
				continue
			}
			if feed != "" && toString(record["feed"]) != feed {
				continue
			}
			summary := fromSummaryMap(record)
			return &summary, nil
		}
	}

	return nil, ErrNoRunsFound
}

func toSummaryMap(s RunSummary) map[string]any {
	skipped := make(map[string]any, len(s.SkippedBy))
	for k, v := range s.SkippedBy {
		skipped[k] = v
	}
	return map[string]any{
		"record_kind":  RecordKindRunSummary,
		"run_id":       s.RunID,
		"feed":         s.Feed,
		"day":          DeriveDay(s.CompletedAt),
		"attempt":      s.Attempt,
		"outcome":      s.Outcome,
		"location":     s.Location,
		"batches":      s.Batches,
		"candidates":   s.Candidates,
		"records":      s.Records,
		"skipped":      s.Skipped,
		"skipped_by":   skipped,
		"bytes":        s.Bytes,
		"started_at":   s.StartedAt.UTC().Format(time.RFC3339Nano),
		"completed_at": s.CompletedAt.UTC().Format(time.RFC3339Nano),
	}
}

func fromSummaryMap(m map[string]any) RunSummary {
	s := RunSummary{
		RunID:      toString(m["run_id"]),
		Feed:       toString(m["feed"]),
		Attempt:    int(toInt64(m["attempt"])),
		Outcome:    toString(m["outcome"]),
		Location:   toString(m["location"]),
		Batches:    toInt64(m["batches"]),
		Candidates: toInt64(m["candidates"]),
		Records:    toInt64(m["records"]),
		Skipped:    toInt64(m["skipped"]),
		Bytes:      toInt64(m["bytes"]),
	}
	if by, ok := m["skipped_by"].(map[string]any); ok {
		s.SkippedBy = make(map[string]int64, len(by))
		for k, v := range by {
			s.SkippedBy[k] = toInt64(v)
		}
	}
	s.StartedAt, _ = time.Parse(time.RFC3339Nano, toString(m["started_at"]))
	s.CompletedAt, _ = time.Parse(time.RFC3339Nano, toString(m["completed_at"]))
	return s
}

// snapshotMatchesFilter checks if a snapshot's file paths match
// the given partition key=value filter.
func snapshotMatchesFilter(snap *lode.DatasetSnapshot, key, value string) bool {
	if value == "" {
		return true
	}
	for _, f := range snap.Manifest.Files {
		if matchesPartitionValue(f.Path, key, value) {
			return true
		}
	}
	return false
}

// matchesPartitionValue checks if a Hive-partitioned path contains an exact
// key=value segment, so feed=shop does not match feed=shop-eu.
func matchesPartitionValue(path, key, value string) bool {
	segment := key + "=" + value
	for _, part := range strings.Split(path, "/") {
		if part == segment {
			return true
		}
	}
	return false
}

// toString converts a value to string, returning empty string for nil/non-string.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// toInt64 converts decoded JSON numbers to int64.
func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
