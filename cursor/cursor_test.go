package cursor

import (
	"errors"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		batchSize int
		want      int
		wantErr   bool
	}{
		{name: "default", batchSize: 0, want: DefaultBatchSize},
		{name: "one", batchSize: 1, want: 1},
		{name: "max", batchSize: MaxBatchSize, want: MaxBatchSize},
		{name: "negative", batchSize: -1, wantErr: true},
		{name: "too large", batchSize: MaxBatchSize + 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := New(tt.batchSize)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidBatchSize) {
					t.Fatalf("New(%d) error = %v, want ErrInvalidBatchSize", tt.batchSize, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("New(%d) error = %v", tt.batchSize, err)
			}
			if tr.BatchSize() != tt.want {
				t.Errorf("BatchSize() = %d, want %d", tr.BatchSize(), tt.want)
			}
		})
	}
}

func TestTracker_Offset(t *testing.T) {
	tr, err := New(15)
	if err != nil {
		t.Fatal(err)
	}

	for _, tt := range []struct {
		index int
		want  int64
	}{
		{0, 0},
		{1, 15},
		{2, 30},
		{1000, 15000},
	} {
		got, err := tr.Offset(tt.index)
		if err != nil {
			t.Fatalf("Offset(%d) error = %v", tt.index, err)
		}
		if got != tt.want {
			t.Errorf("Offset(%d) = %d, want %d", tt.index, got, tt.want)
		}
	}
}

func TestTracker_OffsetDeterministic(t *testing.T) {
	tr, _ := New(7)
	for i := range 100 {
		a, _ := tr.Offset(i)
		b, _ := tr.Offset(i)
		if a != b || a != int64(i*7) {
			t.Fatalf("Offset(%d) not deterministic: %d vs %d", i, a, b)
		}
	}
}

func TestTracker_OffsetNegativeIndex(t *testing.T) {
	tr, _ := New(15)
	if _, err := tr.Offset(-1); !errors.Is(err, ErrNegativeBatchIndex) {
		t.Errorf("Offset(-1) error = %v, want ErrNegativeBatchIndex", err)
	}
}

func TestTracker_OffsetNoOverflow(t *testing.T) {
	tr, _ := New(MaxBatchSize)
	got, err := tr.Offset(1 << 30)
	if err != nil {
		t.Fatal(err)
	}
	if want := int64(1<<30) * MaxBatchSize; got != want {
		t.Errorf("Offset = %d, want %d", got, want)
	}
}
