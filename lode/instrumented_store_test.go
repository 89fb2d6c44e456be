package lode

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/justapithecus/lode/lode"

	"github.com/justapithecus/catalogfeed/metrics"
)

// FailingStore is a lode.Store that returns configurable errors.
type FailingStore struct {
	PutErr    error
	GetErr    error
	ExistsErr error
	ListErr   error
	DeleteErr error

	PutCalls int
	PutPaths []string
}

func (s *FailingStore) Put(_ context.Context, path string, _ io.Reader) error {
	s.PutCalls++
	s.PutPaths = append(s.PutPaths, path)
	return s.PutErr
}

func (s *FailingStore) Get(_ context.Context, _ string) (io.ReadCloser, error) {
	return nil, s.GetErr
}

func (s *FailingStore) Exists(_ context.Context, _ string) (bool, error) {
	return false, s.ExistsErr
}

func (s *FailingStore) List(_ context.Context, _ string) ([]string, error) {
	return nil, s.ListErr
}

func (s *FailingStore) Delete(_ context.Context, _ string) error {
	return s.DeleteErr
}

func (s *FailingStore) ReadRange(_ context.Context, _ string, _, _ int64) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func (s *FailingStore) ReaderAt(_ context.Context, _ string) (io.ReaderAt, error) {
	return nil, errors.New("not implemented")
}

var _ lode.Store = (*FailingStore)(nil)

func TestInstrumentedStore_RecordsSuccess(t *testing.T) {
	collector := metrics.NewCollector("products", "memory", "run-001")
	store := NewInstrumentedStore(lode.NewMemory(), collector)

	for _, p := range []string{"a", "b"} {
		if err := store.Put(t.Context(), p, bytes.NewReader([]byte("x"))); err != nil {
			t.Fatal(err)
		}
	}

	s := collector.Snapshot()
	if s.StorageWriteSuccess != 2 || s.StorageWriteFailure != 0 {
		t.Errorf("success/failure = %d/%d, want 2/0", s.StorageWriteSuccess, s.StorageWriteFailure)
	}

	// Reads pass through to the inner store.
	ok, err := store.Exists(t.Context(), "a")
	if err != nil || !ok {
		t.Errorf("Exists() = %v, %v", ok, err)
	}
}

func TestInstrumentedStore_RecordsFailure(t *testing.T) {
	collector := metrics.NewCollector("products", "s3", "run-001")
	inner := &FailingStore{PutErr: errors.New("SlowDown: reduce request rate")}
	store := NewInstrumentedStore(inner, collector)

	err := store.Put(t.Context(), "staging/products/part-00000000", bytes.NewReader(nil))
	if err == nil {
		t.Fatal("expected error")
	}
	if inner.PutCalls != 1 {
		t.Errorf("PutCalls = %d, want 1", inner.PutCalls)
	}

	s := collector.Snapshot()
	if s.StorageWriteSuccess != 0 || s.StorageWriteFailure != 1 {
		t.Errorf("success/failure = %d/%d, want 0/1", s.StorageWriteSuccess, s.StorageWriteFailure)
	}
}

func TestInstrumentedStore_NilCollector(t *testing.T) {
	store := NewInstrumentedStore(lode.NewMemory(), nil)
	if err := store.Put(t.Context(), "k", bytes.NewReader(nil)); err != nil {
		t.Fatal(err)
	}
}
