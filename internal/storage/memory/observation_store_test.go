package memory

import (
	"context"
	"testing"
	"time"

	"github.com/ethan-mcmanus-dev/Flashfood-API-Scraper/internal/domain"
	"github.com/ethan-mcmanus-dev/Flashfood-API-Scraper/internal/storage"
)

func TestObservationStore_AppendAndGet(t *testing.T) {
	s := NewObservationStore()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Append out of order; reads must come back timestamp ASC.
	observations := []*domain.PriceObservation{
		{StoreID: "store-1", ListingID: "a", PriceCents: 899, Quantity: 3, ObservedAt: base.Add(time.Hour)},
		{StoreID: "store-1", ListingID: "a", PriceCents: 1099, Quantity: 5, ObservedAt: base},
		{StoreID: "store-1", ListingID: "b", PriceCents: 499, Quantity: 2, ObservedAt: base},
	}
	for _, o := range observations {
		if err := s.Append(ctx, o); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	got, err := s.GetByListing(ctx, "store-1", "a")
	if err != nil {
		t.Fatalf("GetByListing failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 observations, got %d", len(got))
	}
	if got[0].PriceCents != 1099 || got[1].PriceCents != 899 {
		t.Errorf("observations not ordered by observed_at: %d, %d", got[0].PriceCents, got[1].PriceCents)
	}
}

func TestObservationStore_Immutable(t *testing.T) {
	s := NewObservationStore()
	ctx := context.Background()

	o := &domain.PriceObservation{StoreID: "store-1", ListingID: "a", PriceCents: 500, ObservedAt: time.Now()}
	if err := s.Append(ctx, o); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	// Mutating the caller's value must not affect the stored record.
	o.PriceCents = 1

	got, err := s.GetByListing(ctx, "store-1", "a")
	if err != nil {
		t.Fatalf("GetByListing failed: %v", err)
	}
	if got[0].PriceCents != 500 {
		t.Errorf("stored observation mutated: got %d", got[0].PriceCents)
	}
}

func TestObservationStore_InvalidInput(t *testing.T) {
	s := NewObservationStore()

	err := s.Append(context.Background(), &domain.PriceObservation{StoreID: "store-1"})
	if err != storage.ErrInvalidInput {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}
