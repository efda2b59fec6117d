package postgres

import (
	"context"
	"fmt"

	"github.com/ethan-mcmanus-dev/Flashfood-API-Scraper/internal/domain"
	"github.com/ethan-mcmanus-dev/Flashfood-API-Scraper/internal/storage"
)

// PreferenceStore implements storage.PreferenceStore using PostgreSQL.
// The pipeline only reads this table; writes belong to the preference
// management component.
type PreferenceStore struct {
	pool *Pool
}

// NewPreferenceStore creates a new PreferenceStore.
func NewPreferenceStore(pool *Pool) *PreferenceStore {
	return &PreferenceStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PreferenceStore = (*PreferenceStore)(nil)

// ListSubscribers retrieves all preferences registered for a region,
// ordered by user id ASC.
func (s *PreferenceStore) ListSubscribers(ctx context.Context, region string) ([]*domain.SubscriberPreference, error) {
	query := `
		SELECT user_id, email, region, min_discount_percent,
		       favorite_categories, selected_store_ids,
		       email_enabled, notify_new_deals, notify_price_drops,
		       window_start_minutes, window_end_minutes
		FROM subscriber_preferences
		WHERE region = $1
		ORDER BY user_id ASC
	`

	rows, err := s.pool.Query(ctx, query, region)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	defer rows.Close()

	var result []*domain.SubscriberPreference
	for rows.Next() {
		var p domain.SubscriberPreference
		var startMin, endMin int
		err := rows.Scan(
			&p.UserID, &p.Email, &p.Region, &p.MinDiscountPercent,
			&p.FavoriteCategories, &p.SelectedStoreIDs,
			&p.EmailEnabled, &p.NotifyNewDeals, &p.NotifyPriceDrops,
			&startMin, &endMin,
		)
		if err != nil {
			return nil, fmt.Errorf("scan preference: %w", err)
		}
		p.Window = domain.TimeWindow{
			Start: domain.TimeOfDay{Hour: startMin / 60, Minute: startMin % 60},
			End:   domain.TimeOfDay{Hour: endMin / 60, Minute: endMin % 60},
		}
		result = append(result, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate preferences: %w", err)
	}

	return result, nil
}

// Insert adds a subscriber preference. Used by integration tests for seeding;
// returns ErrDuplicateKey if user_id exists.
func (s *PreferenceStore) Insert(ctx context.Context, p *domain.SubscriberPreference) error {
	if p == nil || p.UserID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO subscriber_preferences (
			user_id, email, region, min_discount_percent,
			favorite_categories, selected_store_ids,
			email_enabled, notify_new_deals, notify_price_drops,
			window_start_minutes, window_end_minutes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := s.pool.Exec(ctx, query,
		p.UserID, p.Email, p.Region, p.MinDiscountPercent,
		p.FavoriteCategories, p.SelectedStoreIDs,
		p.EmailEnabled, p.NotifyNewDeals, p.NotifyPriceDrops,
		p.Window.Start.Minutes(), p.Window.End.Minutes(),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert preference: %w", err)
	}
	return nil
}
