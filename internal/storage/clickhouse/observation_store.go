package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/ethan-mcmanus-dev/Flashfood-API-Scraper/internal/domain"
	"github.com/ethan-mcmanus-dev/Flashfood-API-Scraper/internal/storage"
)

// ObservationStore implements storage.ObservationStore using ClickHouse.
// Observations are append-only; MergeTree ordering by
// (store_id, listing_id, observed_at) serves the per-listing history reads.
type ObservationStore struct {
	conn *Conn
}

// NewObservationStore creates a new ObservationStore.
func NewObservationStore(conn *Conn) *ObservationStore {
	return &ObservationStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ObservationStore = (*ObservationStore)(nil)

// Append adds one immutable observation.
func (s *ObservationStore) Append(ctx context.Context, o *domain.PriceObservation) error {
	if o == nil || o.StoreID == "" || o.ListingID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO price_observations (
			store_id, listing_id, price_cents, quantity, observed_at
		) VALUES (?, ?, ?, ?, ?)
	`

	err := s.conn.Exec(ctx, query,
		o.StoreID, o.ListingID, o.PriceCents, int32(o.Quantity), o.ObservedAt,
	)
	if err != nil {
		return fmt.Errorf("append observation: %w", err)
	}
	return nil
}

// GetByListing retrieves all observations for a listing, ordered by
// observed_at ASC.
func (s *ObservationStore) GetByListing(ctx context.Context, storeID, listingID string) ([]*domain.PriceObservation, error) {
	query := `
		SELECT store_id, listing_id, price_cents, quantity, observed_at
		FROM price_observations
		WHERE store_id = ? AND listing_id = ?
		ORDER BY observed_at ASC
	`

	rows, err := s.conn.Query(ctx, query, storeID, listingID)
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	return scanObservations(rows)
}

func scanObservations(rows driver.Rows) ([]*domain.PriceObservation, error) {
	var result []*domain.PriceObservation
	for rows.Next() {
		var o domain.PriceObservation
		var quantity int32
		err := rows.Scan(&o.StoreID, &o.ListingID, &o.PriceCents, &quantity, &o.ObservedAt)
		if err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		o.Quantity = int(quantity)
		result = append(result, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate observations: %w", err)
	}
	return result, nil
}
