package domain

// ChangeKind classifies a detected listing change.
type ChangeKind string

const (
	ChangeNew       ChangeKind = "new"
	ChangePriceDrop ChangeKind = "price_drop"
	ChangePriceRise ChangeKind = "price_rise"
)

// NotificationEvent is a transient value produced by the change detector and
// consumed by the notification fan-out. Events live only for the duration of
// one cycle's dispatch and are never persisted.
type NotificationEvent struct {
	Kind      ChangeKind
	Region    string
	StoreName string
	Listing   Listing // snapshot at detection time

	// OldPriceCents is the previously stored price; zero for new listings.
	OldPriceCents int64
	// DeltaCents is the absolute price movement. For price_drop events this
	// is old - new and always positive.
	DeltaCents int64
}
