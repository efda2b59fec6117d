package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ethan-mcmanus-dev/Flashfood-API-Scraper/internal/domain"
	"github.com/ethan-mcmanus-dev/Flashfood-API-Scraper/internal/storage"
)

// ObservationStore is an in-memory implementation of storage.ObservationStore.
type ObservationStore struct {
	mu   sync.RWMutex
	data []*domain.PriceObservation
}

// NewObservationStore creates a new in-memory observation store.
func NewObservationStore() *ObservationStore {
	return &ObservationStore{}
}

// Compile-time interface check.
var _ storage.ObservationStore = (*ObservationStore)(nil)

// Append adds one immutable observation.
func (s *ObservationStore) Append(_ context.Context, o *domain.PriceObservation) error {
	if o == nil || o.StoreID == "" || o.ListingID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	obsCopy := *o
	s.data = append(s.data, &obsCopy)
	return nil
}

// GetByListing retrieves all observations for a listing, ordered by
// observed_at ASC.
func (s *ObservationStore) GetByListing(_ context.Context, storeID, listingID string) ([]*domain.PriceObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PriceObservation
	for _, o := range s.data {
		if o.StoreID == storeID && o.ListingID == listingID {
			obsCopy := *o
			result = append(result, &obsCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ObservedAt.Before(result[j].ObservedAt)
	})

	return result, nil
}

// Len returns the total number of stored observations.
func (s *ObservationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
