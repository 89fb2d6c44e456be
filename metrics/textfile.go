package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry builds a Prometheus registry holding the snapshot values.
// Counters carry feed and storage_backend as constant labels.
func Registry(snap Snapshot) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{
		"feed":            snap.Feed,
		"storage_backend": snap.StorageBackend,
	}

	counters := []struct {
		name  string
		help  string
		value int64
	}{
		{"runs_started_total", "Export runs started.", snap.RunsStarted},
		{"runs_completed_total", "Export runs that published the feed.", snap.RunsCompleted},
		{"runs_failed_total", "Export runs that ended without publishing.", snap.RunsFailed},
		{"batches_processed_total", "Batches appended to staging.", snap.BatchesProcessed},
		{"batches_failed_total", "Batch attempts that failed.", snap.BatchesFailed},
		{"items_listed_total", "Candidate items enumerated.", snap.ItemsListed},
		{"records_written_total", "Feed records appended to staging.", snap.RecordsWritten},
		{"staged_bytes_total", "Bytes appended to staging.", snap.BytesStaged},
		{"storage_write_success_total", "Successful storage writes.", snap.StorageWriteSuccess},
		{"storage_write_failure_total", "Failed storage writes.", snap.StorageWriteFailure},
		{"publish_success_total", "Successful feed publishes.", snap.PublishSuccess},
		{"publish_failure_total", "Failed feed publishes.", snap.PublishFailure},
		{"notify_success_total", "Delivered publish notifications.", snap.NotifySuccess},
		{"notify_failure_total", "Undelivered publish notifications.", snap.NotifyFailure},
	}
	for _, c := range counters {
		counter := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "catalogfeed",
			Name:        c.name,
			Help:        c.help,
			ConstLabels: labels,
		})
		counter.Add(float64(c.value))
		if err := reg.Register(counter); err != nil {
			return nil, fmt.Errorf("register %s: %w", c.name, err)
		}
	}

	skipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   "catalogfeed",
		Name:        "items_skipped_total",
		Help:        "Items that produced no record, by reason.",
		ConstLabels: labels,
	}, []string{"reason"})
	for reason, n := range snap.SkippedByReason {
		skipped.WithLabelValues(reason).Add(float64(n))
	}
	if err := reg.Register(skipped); err != nil {
		return nil, fmt.Errorf("register items_skipped_total: %w", err)
	}

	return reg, nil
}

// WriteTextfile writes the snapshot in the node_exporter textfile format.
// The file is replaced atomically.
func WriteTextfile(path string, snap Snapshot) error {
	reg, err := Registry(snap)
	if err != nil {
		return err
	}
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
