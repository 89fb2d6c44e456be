// Package pipeline implements the lifecycle hooks of one feed export run.
//
// An orchestrator calls Start once, then Process with batch indexes 0, 1, 2...
// until an outcome reports Done, then End once. Calls may happen in different
// processes; the only state carried between them is the staging artifact.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	lodelibrary "github.com/justapithecus/lode/lode"

	"github.com/justapithecus/catalogfeed/adapter"
	"github.com/justapithecus/catalogfeed/artifact"
	"github.com/justapithecus/catalogfeed/cursor"
	"github.com/justapithecus/catalogfeed/feed"
	"github.com/justapithecus/catalogfeed/lode"
	"github.com/justapithecus/catalogfeed/log"
	"github.com/justapithecus/catalogfeed/metrics"
	"github.com/justapithecus/catalogfeed/types"
)

// DefaultNotifyTimeout bounds the best-effort notification at End.
const DefaultNotifyTimeout = 30 * time.Second

// Hooks is the orchestrator boundary.
type Hooks interface {
	// Start discards leftover staging and opens a fresh staging artifact.
	Start(ctx context.Context) error
	// Process exports one batch. A non-nil error is a batch failure: nothing
	// was appended and the same index must be retried.
	Process(ctx context.Context, batchIndex int) (types.BatchOutcome, error)
	// End seals staging and publishes it. An error means the canonical
	// artifact was left unchanged.
	End(ctx context.Context) error
}

// BatchSource yields ordered candidate ids for an offset.
type BatchSource interface {
	FetchBatch(ctx context.Context, offset int64, limit int) ([]types.ItemID, error)
}

// BatchTransformer turns candidate ids into records and skips.
type BatchTransformer interface {
	TransformBatch(ctx context.Context, ids []types.ItemID) (feed.BatchResult, error)
}

// RecordEncoder serializes the header and batch records.
type RecordEncoder interface {
	Header() ([]byte, error)
	Records(records []types.Record) ([]byte, error)
}

// Config holds the collaborators of one run.
type Config struct {
	// RunMeta is the run identity (required).
	RunMeta *types.RunMeta
	// BatchSize is fixed for the run; 0 selects cursor.DefaultBatchSize.
	BatchSize int
	// Source, Transformer, Encoder and Backend are required.
	Source      BatchSource
	Transformer BatchTransformer
	Encoder     RecordEncoder
	Backend     artifact.Backend
	// Adapter is notified after a successful publish. Optional.
	Adapter adapter.Adapter
	// NotifyTimeout bounds the notification (default 30s).
	NotifyTimeout time.Duration
	// History receives a run summary after a successful publish. Optional.
	History lodelibrary.Dataset
	// Totals returns the run totals recorded by the orchestrator. When nil,
	// totals of the batches processed by this Pipeline value are used.
	Totals func() types.RunTotals
	// StartedAt is when the run began (default: construction time).
	StartedAt time.Time
	// Collector records metrics. Nil-safe.
	Collector *metrics.Collector
	// Logger defaults to a logger carrying RunMeta.
	Logger *log.Logger
}

// Pipeline implements Hooks.
type Pipeline struct {
	config  Config
	tracker *cursor.Tracker
	logger  *log.Logger
	totals  types.RunTotals
	now     func() time.Time
}

// New validates config and creates a Pipeline.
func New(config Config) (*Pipeline, error) {
	if config.RunMeta == nil {
		return nil, errors.New("run metadata is required")
	}
	if err := config.RunMeta.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run metadata: %w", err)
	}
	switch {
	case config.Source == nil:
		return nil, errors.New("item source is required")
	case config.Transformer == nil:
		return nil, errors.New("transformer is required")
	case config.Encoder == nil:
		return nil, errors.New("encoder is required")
	case config.Backend == nil:
		return nil, errors.New("artifact backend is required")
	}

	tracker, err := cursor.New(config.BatchSize)
	if err != nil {
		return nil, err
	}
	if config.NotifyTimeout <= 0 {
		config.NotifyTimeout = DefaultNotifyTimeout
	}
	if config.StartedAt.IsZero() {
		config.StartedAt = time.Now()
	}
	logger := config.Logger
	if logger == nil {
		logger = log.NewLogger(config.RunMeta)
	}

	return &Pipeline{
		config:  config,
		tracker: tracker,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// BatchSize returns the batch size in effect.
func (p *Pipeline) BatchSize() int {
	return p.tracker.BatchSize()
}

// Start implements Hooks.
func (p *Pipeline) Start(ctx context.Context) error {
	p.config.Collector.IncRunStarted()
	p.logger.Info("starting run", map[string]any{
		"batch_size": p.tracker.BatchSize(),
		"location":   p.config.Backend.Location(),
	})

	if err := p.config.Backend.Open(ctx); err != nil {
		p.logger.Error("failed to open staging", map[string]any{"error": err.Error()})
		return fmt.Errorf("open staging: %w", err)
	}

	header, err := p.config.Encoder.Header()
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	if err := p.config.Backend.WriteHeader(ctx, header); err != nil {
		p.logger.Error("failed to write header", map[string]any{"error": err.Error()})
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

// Process implements Hooks.
func (p *Pipeline) Process(ctx context.Context, batchIndex int) (types.BatchOutcome, error) {
	outcome := types.BatchOutcome{BatchIndex: batchIndex}

	offset, err := p.tracker.Offset(batchIndex)
	if err != nil {
		return p.fail(outcome, "offset", err)
	}
	outcome.Offset = offset

	ids, err := p.config.Source.FetchBatch(ctx, offset, p.tracker.BatchSize())
	if err != nil {
		return p.fail(outcome, "fetch", err)
	}
	if len(ids) == 0 {
		outcome.Status = types.BatchEmpty
		outcome.Done = true
		p.logger.Info("empty batch, run complete", map[string]any{
			"batch":  batchIndex,
			"offset": offset,
		})
		return outcome, nil
	}
	outcome.Candidates = len(ids)

	result, err := p.config.Transformer.TransformBatch(ctx, ids)
	if err != nil {
		return p.fail(outcome, "transform", err)
	}

	payload, err := p.config.Encoder.Records(result.Records)
	if err != nil {
		return p.fail(outcome, "encode", err)
	}
	if err := p.config.Backend.Append(ctx, batchIndex, payload); err != nil {
		return p.fail(outcome, "append", err)
	}

	outcome.Status = types.BatchSucceeded
	outcome.Records = len(result.Records)
	outcome.Skipped = result.Skipped
	outcome.Bytes = int64(len(payload))
	p.totals.Add(outcome)

	skipped := make(map[string]int, len(result.Skipped))
	for reason, n := range result.Skipped {
		skipped[string(reason)] = n
	}
	p.config.Collector.RecordBatch(outcome.Candidates, outcome.Records, skipped, outcome.Bytes)

	p.logger.Info("batch appended", map[string]any{
		"batch":      batchIndex,
		"offset":     offset,
		"first_id":   int64(ids[0]),
		"last_id":    int64(ids[len(ids)-1]),
		"candidates": outcome.Candidates,
		"records":    outcome.Records,
		"skipped":    outcome.SkippedTotal(),
		"bytes":      outcome.Bytes,
	})
	return outcome, nil
}

func (p *Pipeline) fail(outcome types.BatchOutcome, op string, err error) (types.BatchOutcome, error) {
	outcome.Status = types.BatchFailed
	outcome.Candidates = 0
	outcome.Records = 0
	outcome.Skipped = nil
	outcome.Reason = fmt.Sprintf("%s: %v", op, err)
	p.config.Collector.IncBatchFailed()
	p.logger.Error("batch failed", map[string]any{
		"batch":  outcome.BatchIndex,
		"offset": outcome.Offset,
		"op":     op,
		"error":  err.Error(),
	})
	return outcome, &BatchError{BatchIndex: outcome.BatchIndex, Offset: outcome.Offset, Op: op, Err: err}
}

// End implements Hooks. Notification and history are best effort.
func (p *Pipeline) End(ctx context.Context) error {
	if err := p.config.Backend.Close(ctx); err != nil {
		p.config.Collector.IncRunFailed()
		p.logger.Error("failed to seal staging", map[string]any{"error": err.Error()})
		return fmt.Errorf("seal staging: %w", err)
	}
	if err := p.config.Backend.Publish(ctx); err != nil {
		p.config.Collector.IncRunFailed()
		p.logger.Error("publish failed, canonical feed unchanged", map[string]any{"error": err.Error()})
		return err
	}

	completedAt := p.now()
	totals := p.runTotals()
	p.config.Collector.IncRunCompleted()
	p.logger.Info("feed published", map[string]any{
		"location": p.config.Backend.Location(),
		"batches":  totals.Batches,
		"records":  totals.Records,
		"skipped":  totals.Skipped,
	})

	p.notify(ctx, totals, completedAt)
	p.recordHistory(ctx, totals, completedAt)
	return nil
}

func (p *Pipeline) runTotals() types.RunTotals {
	if p.config.Totals != nil {
		return p.config.Totals()
	}
	return p.totals
}

func (p *Pipeline) notify(ctx context.Context, totals types.RunTotals, completedAt time.Time) {
	if p.config.Adapter == nil {
		return
	}
	meta := p.config.RunMeta
	event := &adapter.FeedPublishedEvent{
		ContractVersion: types.ContractVersion,
		EventType:       adapter.EventTypeFeedPublished,
		RunID:           meta.RunID,
		Feed:            meta.Feed,
		Location:        p.config.Backend.Location(),
		Timestamp:       completedAt.UTC().Format(time.RFC3339),
		Attempt:         meta.Attempt,
		Batches:         totals.Batches,
		Records:         totals.Records,
		Skipped:         totals.Skipped,
		DurationMs:      completedAt.Sub(p.config.StartedAt).Milliseconds(),
	}

	// The feed is already published; cancellation of the run must not drop the notice.
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.config.NotifyTimeout)
	defer cancel()

	if err := p.config.Adapter.Publish(notifyCtx, event); err != nil {
		p.config.Collector.IncNotifyFailure()
		p.logger.Warn("feed notification failed (best effort)", map[string]any{"error": err.Error()})
		return
	}
	p.config.Collector.IncNotifySuccess()
}

func (p *Pipeline) recordHistory(ctx context.Context, totals types.RunTotals, completedAt time.Time) {
	if p.config.History == nil {
		return
	}
	meta := p.config.RunMeta
	skippedBy := make(map[string]int64, len(totals.SkippedBy))
	for reason, n := range totals.SkippedBy {
		skippedBy[string(reason)] = n
	}
	summary := lode.RunSummary{
		RunID:       meta.RunID,
		Feed:        meta.Feed,
		Attempt:     meta.Attempt,
		Outcome:     string(types.OutcomeSuccess),
		Location:    p.config.Backend.Location(),
		Batches:     int64(totals.Batches),
		Candidates:  totals.Candidates,
		Records:     totals.Records,
		Skipped:     totals.Skipped,
		SkippedBy:   skippedBy,
		Bytes:       totals.Bytes,
		StartedAt:   p.config.StartedAt,
		CompletedAt: completedAt,
	}
	if err := lode.WriteRunSummary(context.WithoutCancel(ctx), p.config.History, summary); err != nil {
		p.logger.Warn("run history write failed (best effort)", map[string]any{"error": err.Error()})
	}
}

var _ Hooks = (*Pipeline)(nil)
