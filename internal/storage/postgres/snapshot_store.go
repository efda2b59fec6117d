package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ethan-mcmanus-dev/Flashfood-API-Scraper/internal/domain"
	"github.com/ethan-mcmanus-dev/Flashfood-API-Scraper/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore using PostgreSQL.
type SnapshotStore struct {
	pool *Pool
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(pool *Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// UpsertStore inserts the store or updates its descriptive fields.
func (s *SnapshotStore) UpsertStore(ctx context.Context, st *domain.Store) error {
	if st == nil || st.ExternalID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO stores (external_id, name, address, region, latitude, longitude, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		ON CONFLICT (external_id) DO UPDATE SET
			name = EXCLUDED.name,
			address = EXCLUDED.address,
			region = EXCLUDED.region,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			updated_at = now()
	`

	_, err := s.pool.Exec(ctx, query,
		st.ExternalID, st.Name, st.Address, st.Region, st.Latitude, st.Longitude,
	)
	if err != nil {
		return fmt.Errorf("upsert store: %w", err)
	}
	return nil
}

// GetStore retrieves a store by external id. Returns ErrNotFound if not exists.
func (s *SnapshotStore) GetStore(ctx context.Context, storeID string) (*domain.Store, error) {
	query := `
		SELECT external_id, name, address, region, latitude, longitude, created_at, updated_at
		FROM stores
		WHERE external_id = $1
	`

	var st domain.Store
	err := s.pool.QueryRow(ctx, query, storeID).Scan(
		&st.ExternalID, &st.Name, &st.Address, &st.Region,
		&st.Latitude, &st.Longitude, &st.CreatedAt, &st.UpdatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get store: %w", err)
	}
	return &st, nil
}

// LoadSnapshot retrieves all persisted listings for a store, vanished rows
// included, ordered by external id ASC.
func (s *SnapshotStore) LoadSnapshot(ctx context.Context, storeID string) ([]*domain.Listing, error) {
	query := `
		SELECT store_id, external_id, name, description, category,
		       original_price_cents, price_cents, discount_percent,
		       quantity_available, expiry_date, image_url,
		       first_seen, last_seen, vanished
		FROM listings
		WHERE store_id = $1
		ORDER BY external_id ASC
	`

	rows, err := s.pool.Query(ctx, query, storeID)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	defer rows.Close()

	var result []*domain.Listing
	for rows.Next() {
		var l domain.Listing
		var expiry *time.Time
		err := rows.Scan(
			&l.StoreID, &l.ExternalID, &l.Name, &l.Description, &l.Category,
			&l.OriginalPriceCents, &l.PriceCents, &l.DiscountPercent,
			&l.QuantityAvailable, &expiry, &l.ImageURL,
			&l.FirstSeen, &l.LastSeen, &l.Vanished,
		)
		if err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		if expiry != nil {
			l.ExpiryDate = *expiry
		}
		result = append(result, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate listings: %w", err)
	}

	return result, nil
}

// UpsertListing inserts or replaces one listing atomically.
func (s *SnapshotStore) UpsertListing(ctx context.Context, l *domain.Listing) error {
	if l == nil || l.StoreID == "" || l.ExternalID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO listings (
			store_id, external_id, name, description, category,
			original_price_cents, price_cents, discount_percent,
			quantity_available, expiry_date, image_url,
			first_seen, last_seen, vanished
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (store_id, external_id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			category = EXCLUDED.category,
			original_price_cents = EXCLUDED.original_price_cents,
			price_cents = EXCLUDED.price_cents,
			discount_percent = EXCLUDED.discount_percent,
			quantity_available = EXCLUDED.quantity_available,
			expiry_date = EXCLUDED.expiry_date,
			image_url = EXCLUDED.image_url,
			last_seen = EXCLUDED.last_seen,
			vanished = EXCLUDED.vanished
	`

	var expiry *time.Time
	if !l.ExpiryDate.IsZero() {
		expiry = &l.ExpiryDate
	}

	_, err := s.pool.Exec(ctx, query,
		l.StoreID, l.ExternalID, l.Name, l.Description, l.Category,
		l.OriginalPriceCents, l.PriceCents, l.DiscountPercent,
		l.QuantityAvailable, expiry, l.ImageURL,
		l.FirstSeen, l.LastSeen, l.Vanished,
	)
	if err != nil {
		return fmt.Errorf("upsert listing: %w", err)
	}
	return nil
}
