package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/justapithecus/catalogfeed/types"
)

// ErrOutOfOrder is returned when a store yields ids that are not strictly
// ascending. Offset-based batching is only stable under a total order.
var ErrOutOfOrder = errors.New("ids not in ascending order")

// Source cuts ordered batches of candidate ids from a Lister.
type Source struct {
	lister Lister
	filter TypeFilter
}

// NewSource creates a Source over lister using filter.
func NewSource(lister Lister, filter TypeFilter) *Source {
	return &Source{lister: lister, filter: filter}
}

// FetchBatch returns up to limit candidate ids starting at offset.
// An empty, error-free result means the item set is exhausted; it is the
// only termination signal.
func (s *Source) FetchBatch(ctx context.Context, offset int64, limit int) ([]types.ItemID, error) {
	if offset < 0 {
		return nil, fmt.Errorf("offset must be >= 0, got %d", offset)
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0, got %d", limit)
	}

	ids, err := s.lister.ListIDs(ctx, offset, int64(limit), s.filter)
	if err != nil {
		return nil, fmt.Errorf("list ids at offset %d: %w", offset, err)
	}
	if len(ids) > limit {
		return nil, fmt.Errorf("store returned %d ids for limit %d", len(ids), limit)
	}
	for i := 1; i < len(ids); i++ {
		if ids[i] <= ids[i-1] {
			return nil, fmt.Errorf("%w: %d after %d", ErrOutOfOrder, ids[i], ids[i-1])
		}
	}
	return ids, nil
}
