// Package feed turns catalog items into feed records.
//
// A Mapper owns the record schema and the export business rules. The
// Transformer loads items and applies the Mapper with per-item failure
// isolation; the Encoder renders records as CSV.
package feed

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/justapithecus/catalogfeed/types"
)

var (
	// ErrIneligible marks items excluded by business rules.
	ErrIneligible = errors.New("item not eligible for feed")
	// ErrInvalid marks items missing data the feed requires.
	ErrInvalid = errors.New("item invalid for feed")
)

// Mapper maps one loaded item to one feed row.
type Mapper interface {
	// Columns returns the header column names.
	Columns() []string
	// Map returns one value per column, or an error wrapping
	// ErrIneligible or ErrInvalid.
	Map(item *types.Item) ([]string, error)
}

// Columns is the default feed column set.
var Columns = []string{
	"id",
	"title",
	"description",
	"availability",
	"condition",
	"price",
	"sale_price",
	"link",
	"image_link",
	"brand",
	"item_group_id",
}

var availability = map[types.StockStatus]string{
	types.StockInStock:     "in stock",
	types.StockOutOfStock:  "out of stock",
	types.StockOnBackorder: "available for order",
}

// CatalogMapper applies the default catalog export rules.
type CatalogMapper struct {
	// DefaultCurrency is used when an item has no currency. Defaults to USD.
	DefaultCurrency string
	// DefaultCondition is used when an item has no condition. Defaults to "new".
	DefaultCondition string
}

// Columns implements Mapper.
func (m CatalogMapper) Columns() []string {
	return Columns
}

// Map implements Mapper.
func (m CatalogMapper) Map(item *types.Item) ([]string, error) {
	switch item.Kind {
	case types.KindVariable:
		return nil, fmt.Errorf("%w: variable parent %d", ErrIneligible, item.ID)
	case types.KindVariation:
		if item.ParentStatus != types.StatusPublish {
			return nil, fmt.Errorf("%w: parent of %d is %q", ErrIneligible, item.ID, item.ParentStatus)
		}
	case types.KindSimple:
		if item.Status != types.StatusPublish {
			return nil, fmt.Errorf("%w: %d is %q", ErrIneligible, item.ID, item.Status)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported kind %q", ErrIneligible, item.Kind)
	}

	title := collapse(item.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: %d has no title", ErrInvalid, item.ID)
	}
	if item.PriceCents <= 0 {
		return nil, fmt.Errorf("%w: %d has no price", ErrInvalid, item.ID)
	}
	if item.Link == "" {
		return nil, fmt.Errorf("%w: %d has no link", ErrInvalid, item.ID)
	}

	currency := item.Currency
	if currency == "" {
		currency = m.DefaultCurrency
	}
	if currency == "" {
		currency = "USD"
	}

	description := collapse(item.Description)
	if description == "" {
		description = title
	}

	avail, ok := availability[item.StockStatus]
	if !ok {
		avail = availability[types.StockOutOfStock]
	}

	condition := item.Condition
	if condition == "" {
		condition = m.DefaultCondition
	}
	if condition == "" {
		condition = "new"
	}

	salePrice := ""
	if item.SalePriceCents > 0 && item.SalePriceCents < item.PriceCents {
		salePrice = FormatPrice(item.SalePriceCents, currency)
	}

	groupID := ""
	if item.IsVariation() && item.ParentID != 0 {
		groupID = item.ParentID.String()
	}

	return []string{
		item.ID.String(),
		title,
		description,
		avail,
		condition,
		FormatPrice(item.PriceCents, currency),
		salePrice,
		item.Link,
		item.ImageLink,
		collapse(item.Brand),
		groupID,
	}, nil
}

// FormatPrice renders minor units as "12.34 USD".
func FormatPrice(cents int64, currency string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	frac := strconv.FormatInt(cents%100, 10)
	if len(frac) == 1 {
		frac = "0" + frac
	}
	return sign + strconv.FormatInt(cents/100, 10) + "." + frac + " " + currency
}

// collapse trims and folds runs of whitespace (including newlines) to one space.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
