package domain

import "time"

// PriceObservation is an immutable price/quantity sample for a listing,
// appended whenever the change detector classifies the listing as new or
// price-changed. Observations are ordered by ObservedAt per listing and are
// never mutated or deleted.
type PriceObservation struct {
	StoreID    string
	ListingID  string // listing external id
	PriceCents int64
	Quantity   int
	ObservedAt time.Time
}
