package types

// Record is the export representation of one eligible item.
// Fields are aligned with the feed header columns.
type Record struct {
	// ID is the source item id; records are written in ascending ID order per batch.
	ID ItemID
	// Fields holds one value per header column.
	Fields []string
}

// SkipReason classifies why an item produced no record.
type SkipReason string

const (
	// SkipNotFound means the item was deleted between enumeration and load.
	SkipNotFound SkipReason = "not_found"
	// SkipIneligible means business rules exclude the item (e.g. variable parents).
	SkipIneligible SkipReason = "ineligible"
	// SkipInvalid means the item failed validation (missing title, price).
	SkipInvalid SkipReason = "invalid"
	// SkipLoadFailed means the data store failed to load the item.
	SkipLoadFailed SkipReason = "load_failed"
	// SkipTransformFailed means mapping the item raised an unexpected failure.
	SkipTransformFailed SkipReason = "transform_failed"
)

// SkipReasons lists every skip reason in a stable order.
func SkipReasons() []SkipReason {
	return []SkipReason{
		SkipNotFound,
		SkipIneligible,
		SkipInvalid,
		SkipLoadFailed,
		SkipTransformFailed,
	}
}
