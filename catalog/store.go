// Package catalog is the boundary to the item data store.
//
// A Store enumerates candidate item ids in ascending id order and loads
// full items by id. Source wraps a Lister and cuts ordered batches from it.
package catalog

import (
	"context"
	"errors"
	"slices"

	"github.com/justapithecus/catalogfeed/types"
)

// ErrNotFound is returned by Load when the item no longer exists.
// Items deleted between enumeration and load surface as this error.
var ErrNotFound = errors.New("item not found")

// Lister enumerates candidate item ids.
type Lister interface {
	// ListIDs returns at most limit ids matching filter, skipping the first
	// offset matches, ordered ascending by id.
	ListIDs(ctx context.Context, offset, limit int64, filter TypeFilter) ([]types.ItemID, error)
}

// Loader loads full items by id.
type Loader interface {
	// Load returns the item or an error wrapping ErrNotFound.
	Load(ctx context.Context, id types.ItemID) (*types.Item, error)
}

// Store is the complete data store boundary.
type Store interface {
	Lister
	Loader
	Close() error
}

// TypeFilter is the coarse selection filter applied during enumeration.
//
// It is intentionally coarser than the export rules: variable parents are
// selected here and skipped by the transformer, so batch boundaries never
// depend on business rules evaluated after load.
type TypeFilter struct {
	// Kinds are selected when the item itself is published.
	Kinds []types.ItemKind
	// ChildKinds are selected when the item's parent is published.
	ChildKinds []types.ItemKind
}

// DefaultFilter selects published simple and variable products and
// variations whose parent is published.
func DefaultFilter() TypeFilter {
	return TypeFilter{
		Kinds:      []types.ItemKind{types.KindSimple, types.KindVariable},
		ChildKinds: []types.ItemKind{types.KindVariation},
	}
}

// Matches reports whether item is selected by the filter.
// For child kinds the item's ParentStatus is consulted.
func (f TypeFilter) Matches(item *types.Item) bool {
	if slices.Contains(f.ChildKinds, item.Kind) {
		return item.ParentStatus == types.StatusPublish
	}
	if slices.Contains(f.Kinds, item.Kind) {
		return item.Status == types.StatusPublish
	}
	return false
}

// KindStrings returns Kinds as plain strings (for SQL parameters).
func (f TypeFilter) KindStrings() []string {
	return kindStrings(f.Kinds)
}

// ChildKindStrings returns ChildKinds as plain strings (for SQL parameters).
func (f TypeFilter) ChildKindStrings() []string {
	return kindStrings(f.ChildKinds)
}

func kindStrings(kinds []types.ItemKind) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}
