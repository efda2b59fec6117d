// Package history records immutable price observations. The Recorder is the
// sole writer of the observation store; every other component reads only.
package history

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ethan-mcmanus-dev/Flashfood-API-Scraper/internal/domain"
	"github.com/ethan-mcmanus-dev/Flashfood-API-Scraper/internal/storage"
)

// Options configures a Recorder.
type Options struct {
	Logger *log.Logger
}

// Recorder appends one PriceObservation for every detected new listing or
// price movement. Quantity-only updates and vanishes are never recorded.
type Recorder struct {
	store  storage.ObservationStore
	logger *log.Logger
}

// NewRecorder creates a Recorder writing to store.
func NewRecorder(store storage.ObservationStore, opts Options) *Recorder {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Recorder{store: store, logger: logger}
}

// Record appends the observation behind one detection event. A persistence
// failure is returned to the caller and affects that listing only.
func (r *Recorder) Record(ctx context.Context, ev domain.NotificationEvent, observedAt time.Time) error {
	obs := &domain.PriceObservation{
		StoreID:    ev.Listing.StoreID,
		ListingID:  ev.Listing.ExternalID,
		PriceCents: ev.Listing.PriceCents,
		Quantity:   ev.Listing.QuantityAvailable,
		ObservedAt: observedAt,
	}
	if err := r.store.Append(ctx, obs); err != nil {
		return fmt.Errorf("append observation for listing %s/%s: %w",
			obs.StoreID, obs.ListingID, err)
	}
	return nil
}

// RecordAll appends an observation for every event, continuing past
// per-listing failures. It returns the number recorded and the first error
// encountered.
func (r *Recorder) RecordAll(ctx context.Context, events []domain.NotificationEvent, observedAt time.Time) (int, error) {
	var firstErr error
	recorded := 0
	for _, ev := range events {
		if err := r.Record(ctx, ev, observedAt); err != nil {
			r.logger.Printf("[history] %v", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		recorded++
	}
	return recorded, firstErr
}
