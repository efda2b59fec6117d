// Package memory provides in-memory store implementations used by tests and
// --use-memory runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ethan-mcmanus-dev/Flashfood-API-Scraper/internal/domain"
	"github.com/ethan-mcmanus-dev/Flashfood-API-Scraper/internal/storage"
)

// SnapshotStore is an in-memory implementation of storage.SnapshotStore.
type SnapshotStore struct {
	mu       sync.RWMutex
	stores   map[string]*domain.Store                 // keyed by external id
	listings map[domain.ListingKey]*domain.Listing
}

// NewSnapshotStore creates a new in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		stores:   make(map[string]*domain.Store),
		listings: make(map[domain.ListingKey]*domain.Listing),
	}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// UpsertStore inserts the store or updates its descriptive fields.
func (s *SnapshotStore) UpsertStore(_ context.Context, st *domain.Store) error {
	if st == nil || st.ExternalID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	storeCopy := *st
	if existing, ok := s.stores[st.ExternalID]; ok {
		storeCopy.CreatedAt = existing.CreatedAt
	} else if storeCopy.CreatedAt.IsZero() {
		storeCopy.CreatedAt = time.Now().UTC()
	}
	storeCopy.UpdatedAt = time.Now().UTC()
	s.stores[st.ExternalID] = &storeCopy
	return nil
}

// GetStore retrieves a store by external id. Returns ErrNotFound if not exists.
func (s *SnapshotStore) GetStore(_ context.Context, storeID string) (*domain.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.stores[storeID]
	if !ok {
		return nil, storage.ErrNotFound
	}

	storeCopy := *st
	return &storeCopy, nil
}

// LoadSnapshot retrieves all persisted listings for a store, ordered by
// external id ASC.
func (s *SnapshotStore) LoadSnapshot(_ context.Context, storeID string) ([]*domain.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Listing
	for key, l := range s.listings {
		if key.StoreID == storeID {
			listingCopy := *l
			result = append(result, &listingCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ExternalID < result[j].ExternalID
	})

	return result, nil
}

// UpsertListing inserts or replaces one listing.
func (s *SnapshotStore) UpsertListing(_ context.Context, l *domain.Listing) error {
	if l == nil || l.StoreID == "" || l.ExternalID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	listingCopy := *l
	s.listings[l.Key()] = &listingCopy
	return nil
}
