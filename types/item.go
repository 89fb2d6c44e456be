// Package types defines core domain types for the catalog feed exporter.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"strconv"
	"time"
)

// ItemID uniquely identifies one catalog entry.
// IDs are totally ordered and stable for the lifetime of an item;
// batches are always cut in ascending ItemID order.
type ItemID int64

// String returns the decimal form of the id.
func (id ItemID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ItemKind is the catalog type of an item.
type ItemKind string

const (
	// KindSimple is a standalone sellable product.
	KindSimple ItemKind = "simple"
	// KindVariable is a container product whose variations are sold.
	// Variable parents never produce feed rows themselves.
	KindVariable ItemKind = "variable"
	// KindVariation is a sellable child of a variable product.
	KindVariation ItemKind = "variation"
)

// ItemStatus is the publication status of an item.
type ItemStatus string

const (
	// StatusPublish marks an item as publicly visible.
	StatusPublish ItemStatus = "publish"
	// StatusDraft marks an unpublished draft.
	StatusDraft ItemStatus = "draft"
	// StatusPrivate marks an item hidden from the storefront.
	StatusPrivate ItemStatus = "private"
	// StatusTrash marks a soft-deleted item.
	StatusTrash ItemStatus = "trash"
)

// StockStatus is the inventory state of an item.
type StockStatus string

const (
	// StockInStock means the item can be bought now.
	StockInStock StockStatus = "instock"
	// StockOutOfStock means the item cannot be bought.
	StockOutOfStock StockStatus = "outofstock"
	// StockOnBackorder means the item can be ordered but ships later.
	StockOnBackorder StockStatus = "onbackorder"
)

// Item is the fully loaded representation of one catalog entry.
type Item struct {
	ID       ItemID   `yaml:"id" json:"id"`
	ParentID ItemID   `yaml:"parent_id,omitempty" json:"parent_id,omitempty"`
	Kind     ItemKind `yaml:"kind" json:"kind"`
	// Status is the item's own publication status.
	Status ItemStatus `yaml:"status" json:"status"`
	// ParentStatus is the parent's publication status (variations only).
	ParentStatus ItemStatus `yaml:"parent_status,omitempty" json:"parent_status,omitempty"`

	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Brand       string `yaml:"brand,omitempty" json:"brand,omitempty"`
	Condition   string `yaml:"condition,omitempty" json:"condition,omitempty"`

	// PriceCents is the regular price in minor currency units.
	PriceCents int64 `yaml:"price_cents" json:"price_cents"`
	// SalePriceCents is the discounted price; zero means no sale.
	SalePriceCents int64       `yaml:"sale_price_cents,omitempty" json:"sale_price_cents,omitempty"`
	Currency       string      `yaml:"currency" json:"currency"`
	StockStatus    StockStatus `yaml:"stock_status" json:"stock_status"`

	Link      string `yaml:"link" json:"link"`
	ImageLink string `yaml:"image_link,omitempty" json:"image_link,omitempty"`

	UpdatedAt time.Time `yaml:"updated_at,omitempty" json:"updated_at,omitempty"`
}

// IsVariation reports whether the item is a child variation.
func (i *Item) IsVariation() bool {
	return i.Kind == KindVariation
}
