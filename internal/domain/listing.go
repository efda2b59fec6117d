package domain

import "time"

// Listing is a deal instance at a store, identified by the pair
// (StoreID, ExternalID). Prices are stored as integer cents; all price
// comparisons in the pipeline are exact-integer.
type Listing struct {
	StoreID            string // store external id
	ExternalID         string // marketplace listing id
	Name               string
	Description        string
	Category           string
	OriginalPriceCents int64 // 0 when the marketplace did not report one
	PriceCents         int64 // current discounted price
	DiscountPercent    int   // derived, see ComputeDiscountPercent
	QuantityAvailable  int
	ExpiryDate         time.Time // zero when unknown
	ImageURL           string
	FirstSeen          time.Time
	LastSeen           time.Time

	// Vanished marks a listing absent from the latest fetch for its store.
	// Vanished listings keep their history and are re-activated on
	// re-observation; they are never deleted.
	Vanished bool
}

// ListingKey identifies a listing within the marketplace.
type ListingKey struct {
	StoreID    string
	ExternalID string
}

// Key returns the uniqueness key for the listing.
func (l *Listing) Key() ListingKey {
	return ListingKey{StoreID: l.StoreID, ExternalID: l.ExternalID}
}

// ComputeDiscountPercent derives the integer discount percentage from the
// original and current price in cents. Returns 0 when the original price is
// unknown or not positive.
func ComputeDiscountPercent(originalCents, currentCents int64) int {
	if originalCents <= 0 {
		return 0
	}
	return int((originalCents - currentCents) * 100 / originalCents)
}
