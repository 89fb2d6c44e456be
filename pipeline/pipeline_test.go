package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	lodelibrary "github.com/justapithecus/lode/lode"

	"github.com/justapithecus/catalogfeed/adapter"
	"github.com/justapithecus/catalogfeed/artifact"
	"github.com/justapithecus/catalogfeed/catalog"
	"github.com/justapithecus/catalogfeed/feed"
	"github.com/justapithecus/catalogfeed/lode"
	"github.com/justapithecus/catalogfeed/log"
	"github.com/justapithecus/catalogfeed/metrics"
	"github.com/justapithecus/catalogfeed/types"
)

const header = "id,title,description,availability,condition,price,sale_price,link,image_link,brand,item_group_id\n"

func simple(id types.ItemID) types.Item {
	return types.Item{
		ID:          id,
		Kind:        types.KindSimple,
		Status:      types.StatusPublish,
		Title:       "Item " + id.String(),
		PriceCents:  1000,
		Currency:    "USD",
		StockStatus: types.StockInStock,
		Link:        "https://shop.example/p/" + id.String(),
	}
}

func testMeta() *types.RunMeta {
	return &types.RunMeta{RunID: "run-001", Feed: "products", Attempt: 1}
}

type harness struct {
	store     *catalog.MemoryStore
	backend   *artifact.FS
	collector *metrics.Collector
	logs      *bytes.Buffer
	config    Config
}

func newHarness(t *testing.T, n int) *harness {
	t.Helper()
	store := catalog.NewMemoryStore()
	for i := 1; i <= n; i++ {
		store.Put(simple(types.ItemID(i)))
	}
	backend, err := artifact.NewFS(t.TempDir(), "products.csv")
	if err != nil {
		t.Fatal(err)
	}
	var logs bytes.Buffer
	logger := log.NewLoggerWithWriter(testMeta(), &logs)
	collector := metrics.NewCollector("products", "fs", "run-001")

	return &harness{
		store:     store,
		backend:   backend,
		collector: collector,
		logs:      &logs,
		config: Config{
			RunMeta:     testMeta(),
			BatchSize:   15,
			Source:      catalog.NewSource(store, catalog.DefaultFilter()),
			Transformer: feed.NewTransformer(store, feed.CatalogMapper{}, 4, logger),
			Encoder:     feed.NewEncoder(feed.Columns),
			Backend:     backend,
			Collector:   collector,
			Logger:      logger,
		},
	}
}

func (h *harness) pipeline(t *testing.T) *Pipeline {
	t.Helper()
	p, err := New(h.config)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p
}

// canonicalIDs returns the id column of the published feed.
func canonicalIDs(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read canonical: %v", err)
	}
	if !strings.HasPrefix(string(data), header) {
		t.Fatalf("canonical missing header: %q", data)
	}
	var ids []string
	for _, line := range strings.Split(strings.TrimSuffix(strings.TrimPrefix(string(data), header), "\n"), "\n") {
		if line == "" {
			continue
		}
		ids = append(ids, strings.SplitN(line, ",", 2)[0])
	}
	return ids
}

func TestNew_Validation(t *testing.T) {
	h := newHarness(t, 0)
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing meta", func(c *Config) { c.RunMeta = nil }},
		{"invalid meta", func(c *Config) { c.RunMeta = &types.RunMeta{RunID: "r", Feed: "f"} }},
		{"missing source", func(c *Config) { c.Source = nil }},
		{"missing transformer", func(c *Config) { c.Transformer = nil }},
		{"missing encoder", func(c *Config) { c.Encoder = nil }},
		{"missing backend", func(c *Config) { c.Backend = nil }},
		{"batch size too large", func(c *Config) { c.BatchSize = 1 << 20 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := h.config
			tt.mutate(&cfg)
			if _, err := New(cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	cfg := h.config
	cfg.BatchSize = 0
	p, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if p.BatchSize() != 15 {
		t.Errorf("default batch size = %d, want 15", p.BatchSize())
	}
}

// Deleting an item ahead of the cursor must not shift later items out of
// the run: offsets come from the batch index, not a live count.
func TestPipeline_DeletionAheadOfCursor(t *testing.T) {
	h := newHarness(t, 32)
	p := h.pipeline(t)
	ctx := t.Context()

	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	o0, err := p.Process(ctx, 0)
	if err != nil {
		t.Fatalf("Process(0) error = %v", err)
	}
	if o0.Candidates != 15 || o0.Records != 15 || o0.Done {
		t.Errorf("batch 0 = %+v", o0)
	}

	h.store.Delete(17)

	o1, err := p.Process(ctx, 1)
	if err != nil {
		t.Fatalf("Process(1) error = %v", err)
	}
	if o1.Offset != 15 || o1.Done || o1.Records != o1.Candidates {
		t.Errorf("batch 1 = %+v", o1)
	}

	o2, err := p.Process(ctx, 2)
	if err != nil {
		t.Fatalf("Process(2) error = %v", err)
	}
	if o2.Candidates != 1 || o2.Records != 1 || o2.Done {
		t.Errorf("batch 2 = %+v", o2)
	}

	o3, err := p.Process(ctx, 3)
	if err != nil {
		t.Fatalf("Process(3) error = %v", err)
	}
	if !o3.Done || o3.Status != types.BatchEmpty || o3.Candidates != 0 {
		t.Errorf("batch 3 = %+v, want empty and done", o3)
	}

	if err := p.End(ctx); err != nil {
		t.Fatalf("End() error = %v", err)
	}

	ids := canonicalIDs(t, h.backend.Location())
	if len(ids) != 31 {
		t.Fatalf("published %d records, want 31", len(ids))
	}
	want := 1
	for _, id := range ids {
		if want == 17 {
			want++
		}
		if id != types.ItemID(want).String() {
			t.Fatalf("records out of order or missing: got %s, want %d (%v)", id, want, ids)
		}
		want++
	}

	s := h.collector.Snapshot()
	if s.BatchesProcessed != 3 || s.RecordsWritten != 31 || s.RunsCompleted != 1 {
		t.Errorf("metrics = %+v", s)
	}
}

func TestPipeline_ReprocessedBatchIsNotDuplicated(t *testing.T) {
	h := newHarness(t, 3)
	ctx := t.Context()

	// Each step runs in a fresh pipeline, as separate scheduler ticks would.
	if err := h.pipeline(t).Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	for range 2 {
		if _, err := h.pipeline(t).Process(ctx, 0); err != nil {
			t.Fatalf("Process(0) error = %v", err)
		}
	}
	o1, err := h.pipeline(t).Process(ctx, 1)
	if err != nil || !o1.Done {
		t.Fatalf("Process(1) = %+v, %v; want done", o1, err)
	}
	if err := h.pipeline(t).End(ctx); err != nil {
		t.Fatalf("End() error = %v", err)
	}

	if ids := canonicalIDs(t, h.backend.Location()); strings.Join(ids, " ") != "1 2 3" {
		t.Errorf("published ids = %v, want [1 2 3]", ids)
	}
}

func TestPipeline_StagingInvisibleUntilEnd(t *testing.T) {
	h := newHarness(t, 20)
	if err := os.WriteFile(h.backend.Location(), []byte("previous feed\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	p := h.pipeline(t)
	ctx := t.Context()

	if err := p.Start(ctx); err != nil {
		t.Fatal(err)
	}
	staged, err := os.ReadFile(h.backend.StagingPath())
	if err != nil {
		t.Fatal(err)
	}
	if string(staged) != header {
		t.Errorf("staging after Start = %q, want header only", staged)
	}

	for i := 0; ; i++ {
		o, err := p.Process(ctx, i)
		if err != nil {
			t.Fatal(err)
		}
		got, _ := os.ReadFile(h.backend.Location())
		if string(got) != "previous feed\n" {
			t.Fatalf("canonical changed during batch %d", i)
		}
		if o.Done {
			break
		}
	}

	if err := p.End(ctx); err != nil {
		t.Fatal(err)
	}
	if ids := canonicalIDs(t, h.backend.Location()); len(ids) != 20 {
		t.Errorf("published %d records, want 20", len(ids))
	}
}

func TestPipeline_AllSkippedBatchIsNotTermination(t *testing.T) {
	h := newHarness(t, 0)
	for i := 1; i <= 3; i++ {
		item := simple(types.ItemID(i))
		item.Kind = types.KindVariable
		h.store.Put(item)
	}
	h.store.Put(simple(4))
	h.config.BatchSize = 3
	p := h.pipeline(t)
	ctx := t.Context()

	if err := p.Start(ctx); err != nil {
		t.Fatal(err)
	}
	o, err := p.Process(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if o.Done || o.Candidates != 3 || o.Records != 0 || o.Skipped[types.SkipIneligible] != 3 {
		t.Fatalf("all-skipped batch = %+v, want candidates without records and not done", o)
	}
	if o.Status != types.BatchSucceeded {
		t.Errorf("status = %s, want succeeded", o.Status)
	}

	o, err = p.Process(ctx, 1)
	if err != nil || o.Records != 1 || o.Done {
		t.Fatalf("batch 1 = %+v, %v", o, err)
	}
	o, err = p.Process(ctx, 2)
	if err != nil || !o.Done {
		t.Fatalf("batch 2 = %+v, %v", o, err)
	}
	if err := p.End(ctx); err != nil {
		t.Fatal(err)
	}
	if ids := canonicalIDs(t, h.backend.Location()); len(ids) != 1 || ids[0] != "4" {
		t.Errorf("published ids = %v, want [4]", ids)
	}
}

// flakyLister fails ListIDs while fail is set.
type flakyLister struct {
	catalog.Lister
	fail bool
}

func (l *flakyLister) ListIDs(ctx context.Context, offset, limit int64, filter catalog.TypeFilter) ([]types.ItemID, error) {
	if l.fail {
		return nil, errors.New("connection reset by peer")
	}
	return l.Lister.ListIDs(ctx, offset, limit, filter)
}

func TestPipeline_BatchFailureAppendsNothing(t *testing.T) {
	h := newHarness(t, 5)
	lister := &flakyLister{Lister: h.store}
	h.config.Source = catalog.NewSource(lister, catalog.DefaultFilter())
	h.config.BatchSize = 2
	p := h.pipeline(t)
	ctx := t.Context()

	if err := p.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Process(ctx, 0); err != nil {
		t.Fatal(err)
	}
	before, _ := os.ReadFile(h.backend.StagingPath())

	lister.fail = true
	o, err := p.Process(ctx, 1)
	var batchErr *BatchError
	if !errors.As(err, &batchErr) {
		t.Fatalf("Process() error = %v, want *BatchError", err)
	}
	if batchErr.Op != "fetch" || batchErr.BatchIndex != 1 || batchErr.Offset != 2 {
		t.Errorf("BatchError = %+v", batchErr)
	}
	if o.Status != types.BatchFailed || o.Done || o.Reason == "" {
		t.Errorf("failed outcome = %+v", o)
	}
	after, _ := os.ReadFile(h.backend.StagingPath())
	if !bytes.Equal(before, after) {
		t.Error("failed batch changed staging")
	}
	if !strings.Contains(h.logs.String(), `"batch failed"`) {
		t.Error("batch failure not logged")
	}

	// Retrying the same index succeeds and keeps order.
	lister.fail = false
	for i := 1; ; i++ {
		o, err := p.Process(ctx, i)
		if err != nil {
			t.Fatal(err)
		}
		if o.Done {
			break
		}
	}
	if err := p.End(ctx); err != nil {
		t.Fatal(err)
	}
	if ids := canonicalIDs(t, h.backend.Location()); strings.Join(ids, " ") != "1 2 3 4 5" {
		t.Errorf("published ids = %v", ids)
	}
	if h.collector.Snapshot().BatchesFailed != 1 {
		t.Error("batch failure not counted")
	}
}

func TestPipeline_CanceledBatch(t *testing.T) {
	h := newHarness(t, 5)
	p := h.pipeline(t)
	if err := p.Start(t.Context()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := p.Process(ctx, 0)
	if !IsBatchError(err) || !errors.Is(err, context.Canceled) {
		t.Fatalf("Process() error = %v, want batch error wrapping context.Canceled", err)
	}
}

func TestPipeline_EndWithoutStaging(t *testing.T) {
	h := newHarness(t, 1)
	if err := os.WriteFile(h.backend.Location(), []byte("previous feed\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	p := h.pipeline(t)

	// End without Start: nothing staged.
	err := p.End(t.Context())
	if !errors.Is(err, artifact.ErrNoStaging) {
		t.Fatalf("End() error = %v, want ErrNoStaging", err)
	}
	got, _ := os.ReadFile(h.backend.Location())
	if string(got) != "previous feed\n" {
		t.Errorf("canonical changed to %q", got)
	}
	if h.collector.Snapshot().RunsFailed != 1 {
		t.Error("failed run not counted")
	}
}

type recordingAdapter struct {
	events []*adapter.FeedPublishedEvent
	err    error
}

func (a *recordingAdapter) Publish(_ context.Context, e *adapter.FeedPublishedEvent) error {
	a.events = append(a.events, e)
	return a.err
}

func (a *recordingAdapter) Close() error { return nil }

func runToEnd(t *testing.T, p *Pipeline) {
	t.Helper()
	ctx := t.Context()
	if err := p.Start(ctx); err != nil {
		t.Fatal(err)
	}
	for i := 0; ; i++ {
		o, err := p.Process(ctx, i)
		if err != nil {
			t.Fatal(err)
		}
		if o.Done {
			break
		}
	}
	if err := p.End(ctx); err != nil {
		t.Fatalf("End() error = %v", err)
	}
}

func TestPipeline_EndNotifiesAndRecordsHistory(t *testing.T) {
	h := newHarness(t, 7)
	mem := lodelibrary.NewMemory()
	history, err := lode.NewHistoryDataset("", func() (lodelibrary.Store, error) { return mem, nil })
	if err != nil {
		t.Fatal(err)
	}
	notifier := &recordingAdapter{}
	h.config.Adapter = notifier
	h.config.History = history
	h.config.BatchSize = 3

	runToEnd(t, h.pipeline(t))

	if len(notifier.events) != 1 {
		t.Fatalf("notifications = %d, want 1", len(notifier.events))
	}
	e := notifier.events[0]
	if e.EventType != adapter.EventTypeFeedPublished || e.RunID != "run-001" || e.Feed != "products" {
		t.Errorf("event = %+v", e)
	}
	if e.Batches != 3 || e.Records != 7 || e.Location != h.backend.Location() {
		t.Errorf("event totals = %+v", e)
	}

	summary, err := lode.QueryLatestRun(t.Context(), history, "products")
	if err != nil {
		t.Fatalf("QueryLatestRun() error = %v", err)
	}
	if summary.RunID != "run-001" || summary.Records != 7 || summary.Outcome != string(types.OutcomeSuccess) {
		t.Errorf("summary = %+v", summary)
	}
	if h.collector.Snapshot().NotifySuccess != 1 {
		t.Error("notification success not counted")
	}
}

func TestPipeline_NotificationFailureDoesNotFailEnd(t *testing.T) {
	h := newHarness(t, 2)
	h.config.Adapter = &recordingAdapter{err: errors.New("webhook: failed after 4 attempts")}

	runToEnd(t, h.pipeline(t))

	if ids := canonicalIDs(t, h.backend.Location()); len(ids) != 2 {
		t.Errorf("published ids = %v", ids)
	}
	if !strings.Contains(h.logs.String(), "feed notification failed") {
		t.Error("notification failure not logged")
	}
	if h.collector.Snapshot().NotifyFailure != 1 {
		t.Error("notification failure not counted")
	}
}

func TestPipeline_TotalsFromOrchestrator(t *testing.T) {
	h := newHarness(t, 2)
	notifier := &recordingAdapter{}
	h.config.Adapter = notifier
	h.config.Totals = func() types.RunTotals {
		return types.RunTotals{Batches: 9, Records: 99}
	}

	runToEnd(t, h.pipeline(t))

	if e := notifier.events[0]; e.Batches != 9 || e.Records != 99 {
		t.Errorf("event totals = %d/%d, want orchestrator totals 9/99", e.Batches, e.Records)
	}
}

func TestBatchError(t *testing.T) {
	cause := errors.New("boom")
	err := error(&BatchError{BatchIndex: 2, Offset: 30, Op: "append", Err: cause})
	if !errors.Is(err, cause) {
		t.Error("BatchError does not unwrap")
	}
	if got := err.Error(); got != "batch 2 (offset 30): append: boom" {
		t.Errorf("Error() = %q", got)
	}
	if IsBatchError(cause) {
		t.Error("plain error reported as batch error")
	}
}
