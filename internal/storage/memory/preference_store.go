package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ethan-mcmanus-dev/Flashfood-API-Scraper/internal/domain"
	"github.com/ethan-mcmanus-dev/Flashfood-API-Scraper/internal/storage"
)

// PreferenceStore is an in-memory implementation of storage.PreferenceStore.
type PreferenceStore struct {
	mu   sync.RWMutex
	data map[string]*domain.SubscriberPreference // keyed by user id
}

// NewPreferenceStore creates a new in-memory preference store.
func NewPreferenceStore() *PreferenceStore {
	return &PreferenceStore{
		data: make(map[string]*domain.SubscriberPreference),
	}
}

// Compile-time interface check.
var _ storage.PreferenceStore = (*PreferenceStore)(nil)

// Put inserts or replaces a subscriber preference. Test seeding helper; the
// pipeline itself never writes preferences.
func (s *PreferenceStore) Put(p *domain.SubscriberPreference) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefCopy := *p
	s.data[p.UserID] = &prefCopy
}

// ListSubscribers retrieves all preferences registered for a region,
// ordered by user id ASC.
func (s *PreferenceStore) ListSubscribers(_ context.Context, region string) ([]*domain.SubscriberPreference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SubscriberPreference
	for _, p := range s.data {
		if p.Region == region {
			prefCopy := *p
			result = append(result, &prefCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].UserID < result[j].UserID
	})

	return result, nil
}
