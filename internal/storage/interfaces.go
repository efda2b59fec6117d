package storage

import (
	"context"

	"github.com/ethan-mcmanus-dev/Flashfood-API-Scraper/internal/domain"
)

// SnapshotStore provides access to persisted stores and their listing
// snapshots. The snapshot for a store is the baseline the change detector
// compares fresh fetches against. All operations are scoped to one store so
// that a failure never corrupts other stores' data.
type SnapshotStore interface {
	// UpsertStore inserts the store or updates its descriptive fields.
	UpsertStore(ctx context.Context, s *domain.Store) error

	// GetStore retrieves a store by external id. Returns ErrNotFound if not exists.
	GetStore(ctx context.Context, storeID string) (*domain.Store, error)

	// LoadSnapshot retrieves all persisted listings for a store, vanished
	// listings included, ordered by external id ASC.
	LoadSnapshot(ctx context.Context, storeID string) ([]*domain.Listing, error)

	// UpsertListing inserts or replaces one listing atomically.
	UpsertListing(ctx context.Context, l *domain.Listing) error
}

// ObservationStore provides access to the append-only price history.
// The price history recorder is the sole writer.
type ObservationStore interface {
	// Append adds one immutable observation.
	Append(ctx context.Context, o *domain.PriceObservation) error

	// GetByListing retrieves all observations for a listing, ordered by
	// observed_at ASC.
	GetByListing(ctx context.Context, storeID, listingID string) ([]*domain.PriceObservation, error)
}

// PreferenceStore provides read access to subscriber preferences.
type PreferenceStore interface {
	// ListSubscribers retrieves all preferences registered for a region.
	ListSubscribers(ctx context.Context, region string) ([]*domain.SubscriberPreference, error)
}
