// Package metrics provides per-run metrics collection for feed exports.
//
// The Collector accumulates counters during a single run. It is a leaf package
// with no internal dependencies; skip reasons are keyed by plain strings.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all run metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Run lifecycle
	RunsStarted   int64
	RunsCompleted int64
	RunsFailed    int64

	// Batches
	BatchesProcessed int64
	BatchesFailed    int64

	// Items (summed over processed batches)
	ItemsListed     int64
	RecordsWritten  int64
	ItemsSkipped    int64
	SkippedByReason map[string]int64
	BytesStaged     int64

	// Storage
	StorageWriteSuccess int64
	StorageWriteFailure int64

	// Publish and notification
	PublishSuccess int64
	PublishFailure int64
	NotifySuccess  int64
	NotifyFailure  int64

	// Dimensions (informational, set at construction)
	Feed           string
	StorageBackend string
	RunID          string
}

// Collector accumulates metrics during a single run.
// Thread-safe via sync.Mutex. All methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	runsStarted   int64
	runsCompleted int64
	runsFailed    int64

	batchesProcessed int64
	batchesFailed    int64

	itemsListed     int64
	recordsWritten  int64
	itemsSkipped    int64
	skippedByReason map[string]int64
	bytesStaged     int64

	storageWriteSuccess int64
	storageWriteFailure int64

	publishSuccess int64
	publishFailure int64
	notifySuccess  int64
	notifyFailure  int64

	feed           string
	storageBackend string
	runID          string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(feed, storageBackend, runID string) *Collector {
	return &Collector{
		skippedByReason: make(map[string]int64),
		feed:            feed,
		storageBackend:  storageBackend,
		runID:           runID,
	}
}

// SetRunID sets the run_id dimension once the orchestrator knows it.
func (c *Collector) SetRunID(runID string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.runID = runID
	c.mu.Unlock()
}

// inc increments field under the lock. Callers guard the nil receiver
// because taking a field address on nil panics.
func (c *Collector) inc(field *int64) {
	c.mu.Lock()
	*field++
	c.mu.Unlock()
}

// --- Run lifecycle ---

// IncRunStarted records a run start.
func (c *Collector) IncRunStarted() {
	if c == nil {
		return
	}
	c.inc(&c.runsStarted)
}

// IncRunCompleted records a published run.
func (c *Collector) IncRunCompleted() {
	if c == nil {
		return
	}
	c.inc(&c.runsCompleted)
}

// IncRunFailed records a run that ended without publishing.
func (c *Collector) IncRunFailed() {
	if c == nil {
		return
	}
	c.inc(&c.runsFailed)
}

// --- Batches ---

// RecordBatch records a successfully appended batch.
func (c *Collector) RecordBatch(candidates, records int, skipped map[string]int, bytes int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batchesProcessed++
	c.itemsListed += int64(candidates)
	c.recordsWritten += int64(records)
	c.bytesStaged += bytes
	for reason, n := range skipped {
		c.skippedByReason[reason] += int64(n)
		c.itemsSkipped += int64(n)
	}
}

// IncBatchFailed records a batch that failed and will be retried.
func (c *Collector) IncBatchFailed() {
	if c == nil {
		return
	}
	c.inc(&c.batchesFailed)
}

// --- Storage ---
// Storage counters are per-call: one staging append or object Put is one write.

// IncStorageWriteSuccess records a successful storage write.
func (c *Collector) IncStorageWriteSuccess() {
	if c == nil {
		return
	}
	c.inc(&c.storageWriteSuccess)
}

// IncStorageWriteFailure records a failed storage write.
func (c *Collector) IncStorageWriteFailure() {
	if c == nil {
		return
	}
	c.inc(&c.storageWriteFailure)
}

// --- Publish / notify ---

// IncPublishSuccess records a successful publish.
func (c *Collector) IncPublishSuccess() {
	if c == nil {
		return
	}
	c.inc(&c.publishSuccess)
}

// IncPublishFailure records a failed publish.
func (c *Collector) IncPublishFailure() {
	if c == nil {
		return
	}
	c.inc(&c.publishFailure)
}

// IncNotifySuccess records a delivered publish notification.
func (c *Collector) IncNotifySuccess() {
	if c == nil {
		return
	}
	c.inc(&c.notifySuccess)
}

// IncNotifyFailure records an undelivered publish notification.
func (c *Collector) IncNotifyFailure() {
	if c == nil {
		return
	}
	c.inc(&c.notifyFailure)
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	skipped := make(map[string]int64, len(c.skippedByReason))
	for k, v := range c.skippedByReason {
		skipped[k] = v
	}

	return Snapshot{
		RunsStarted:   c.runsStarted,
		RunsCompleted: c.runsCompleted,
		RunsFailed:    c.runsFailed,

		BatchesProcessed: c.batchesProcessed,
		BatchesFailed:    c.batchesFailed,

		ItemsListed:     c.itemsListed,
		RecordsWritten:  c.recordsWritten,
		ItemsSkipped:    c.itemsSkipped,
		SkippedByReason: skipped,
		BytesStaged:     c.bytesStaged,

		StorageWriteSuccess: c.storageWriteSuccess,
		StorageWriteFailure: c.storageWriteFailure,

		PublishSuccess: c.publishSuccess,
		PublishFailure: c.publishFailure,
		NotifySuccess:  c.notifySuccess,
		NotifyFailure:  c.notifyFailure,

		Feed:           c.feed,
		StorageBackend: c.storageBackend,
		RunID:          c.runID,
	}
}
