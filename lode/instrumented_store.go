package lode

import (
	"context"
	"io"

	"github.com/justapithecus/lode/lode"

	"github.com/justapithecus/catalogfeed/metrics"
)

// InstrumentedStore wraps a lode.Store and records write metrics.
// Each Put or Replace increments storage_write_success or storage_write_failure.
type InstrumentedStore struct {
	lode.Store
	collector *metrics.Collector
}

// NewInstrumentedStore wraps a store with metrics instrumentation.
func NewInstrumentedStore(inner lode.Store, collector *metrics.Collector) *InstrumentedStore {
	return &InstrumentedStore{Store: inner, collector: collector}
}

// Put delegates to the inner store and records success or failure.
func (s *InstrumentedStore) Put(ctx context.Context, path string, r io.Reader) error {
	err := s.Store.Put(ctx, path, r)
	s.record(err)
	return err
}

// Replace delegates to the inner store's Replacer and records the outcome.
func (s *InstrumentedStore) Replace(ctx context.Context, path string, r io.Reader) error {
	inner, ok := ReplacerOf(s.Store)
	if !ok {
		return ErrReplaceNotSupported
	}
	err := inner.Replace(ctx, path, r)
	s.record(err)
	return err
}

// Unwrap returns the wrapped store.
func (s *InstrumentedStore) Unwrap() lode.Store {
	return s.Store
}

func (s *InstrumentedStore) record(err error) {
	if err != nil {
		s.collector.IncStorageWriteFailure()
	} else {
		s.collector.IncStorageWriteSuccess()
	}
}

// Verify InstrumentedStore implements lode.Store.
var _ lode.Store = (*InstrumentedStore)(nil)
