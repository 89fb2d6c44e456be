package feed

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/justapithecus/catalogfeed/catalog"
	"github.com/justapithecus/catalogfeed/log"
	"github.com/justapithecus/catalogfeed/types"
)

// DefaultConcurrency is the number of items transformed in parallel.
const DefaultConcurrency = 4

// Result is the outcome of transforming one item: a record or a skip.
type Result struct {
	ID     types.ItemID
	Record *types.Record
	// Skip is set when Record is nil.
	Skip types.SkipReason
	// Err is the underlying cause of the skip.
	Err error
}

// BatchResult aggregates the results of one batch.
type BatchResult struct {
	// Candidates is the number of ids the batch was given.
	Candidates int
	// Records are in the order of the input ids.
	Records []types.Record
	// Skipped counts skips by reason.
	Skipped map[types.SkipReason]int
}

// SkippedTotal returns the number of skipped items.
func (b BatchResult) SkippedTotal() int {
	n := 0
	for _, v := range b.Skipped {
		n += v
	}
	return n
}

// Transformer loads items and maps them to records.
// A failure on one item never affects the others.
type Transformer struct {
	loader      catalog.Loader
	mapper      Mapper
	concurrency int
	logger      *log.Logger
}

// NewTransformer creates a Transformer. A concurrency below 1 selects
// DefaultConcurrency; a nil logger discards skip logs.
func NewTransformer(loader catalog.Loader, mapper Mapper, concurrency int, logger *log.Logger) *Transformer {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Transformer{
		loader:      loader,
		mapper:      mapper,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Transform loads and maps one item. Every failure becomes a skip.
func (t *Transformer) Transform(ctx context.Context, id types.ItemID) Result {
	item, err := t.loader.Load(ctx, id)
	if err != nil {
		reason := types.SkipLoadFailed
		if errors.Is(err, catalog.ErrNotFound) {
			reason = types.SkipNotFound
		}
		return t.skip(id, reason, err)
	}

	fields, err := t.safeMap(item)
	if err != nil {
		reason := types.SkipTransformFailed
		switch {
		case errors.Is(err, ErrIneligible):
			reason = types.SkipIneligible
		case errors.Is(err, ErrInvalid):
			reason = types.SkipInvalid
		}
		return t.skip(id, reason, err)
	}

	return Result{ID: id, Record: &types.Record{ID: id, Fields: fields}}
}

// TransformBatch transforms ids in parallel and joins before returning.
// Records keep the order of ids. The only error is cancellation of ctx,
// which fails the whole batch.
func (t *Transformer) TransformBatch(ctx context.Context, ids []types.ItemID) (BatchResult, error) {
	results := make([]Result, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = t.Transform(gctx, id)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return BatchResult{}, fmt.Errorf("transform batch: %w", err)
	}

	out := BatchResult{
		Candidates: len(ids),
		Records:    make([]types.Record, 0, len(ids)),
		Skipped:    make(map[types.SkipReason]int),
	}
	for _, r := range results {
		if r.Record != nil {
			out.Records = append(out.Records, *r.Record)
			continue
		}
		out.Skipped[r.Skip]++
	}
	return out, nil
}

// safeMap converts a panicking mapper into an error.
func (t *Transformer) safeMap(item *types.Item) (fields []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("mapper panic: %v", r)
		}
	}()
	fields, err = t.mapper.Map(item)
	if err == nil && len(fields) != len(t.mapper.Columns()) {
		return nil, fmt.Errorf("mapper returned %d fields for %d columns", len(fields), len(t.mapper.Columns()))
	}
	return fields, err
}

func (t *Transformer) skip(id types.ItemID, reason types.SkipReason, err error) Result {
	t.logger.Warn("item skipped", map[string]any{
		"item_id": int64(id),
		"reason":  string(reason),
		"error":   err.Error(),
	})
	return Result{ID: id, Skip: reason, Err: err}
}
