// Package detect compares a store's persisted listing snapshot against a
// fresh marketplace fetch and classifies each change. It is a pure
// computation: no I/O, no clock reads.
package detect

import (
	"time"

	"github.com/ethan-mcmanus-dev/Flashfood-API-Scraper/internal/domain"
)

// Result is the outcome of one detection pass over a single store.
type Result struct {
	// Snapshot is the updated listing set to persist: fetched listings in
	// fetch order, then vanished carryovers in previous-snapshot order.
	Snapshot []*domain.Listing

	// Events are the user-facing changes found in this pass. Quantity-only
	// updates and vanishes produce no event.
	Events []domain.NotificationEvent
}

// Detect classifies the fetched listings of one store against its previous
// snapshot, taken at instant now.
//
// A listing absent from the snapshot is new, with FirstSeen == LastSeen ==
// now. A present listing whose price in cents differs produces a price_drop
// or price_rise event; equal price with differing quantity is a silent
// quantity update; equal everything advances LastSeen only. When price and
// quantity change together the price classification wins. Snapshot listings
// missing from the fetch are marked vanished with quantity zeroed and
// LastSeen untouched; a vanished listing that reappears is compared against
// its stored price like any other, so a price move during the gap still
// emits its event.
//
// All price comparisons are exact integer cents.
func Detect(now time.Time, store *domain.Store, previous []*domain.Listing, fetched []*domain.Listing) Result {
	prior := make(map[domain.ListingKey]*domain.Listing, len(previous))
	for _, l := range previous {
		prior[l.Key()] = l
	}

	res := Result{Snapshot: make([]*domain.Listing, 0, len(previous)+len(fetched))}
	seen := make(map[domain.ListingKey]bool, len(fetched))

	for _, f := range fetched {
		key := f.Key()
		if seen[key] {
			continue // marketplace duplicates in one page, keep the first
		}
		seen[key] = true

		cur := cloneListing(f)
		cur.LastSeen = now
		cur.Vanished = false
		if cur.Category == "" {
			cur.Category = DetectCategory(cur.Name, cur.Description)
		}
		cur.DiscountPercent = domain.ComputeDiscountPercent(cur.OriginalPriceCents, cur.PriceCents)

		old, ok := prior[key]
		if !ok {
			cur.FirstSeen = now
			res.Snapshot = append(res.Snapshot, cur)
			res.Events = append(res.Events, newEvent(domain.ChangeNew, store, cur, 0))
			continue
		}

		cur.FirstSeen = old.FirstSeen
		if cur.Category == CategoryOther && old.Category != "" {
			cur.Category = old.Category
		}
		res.Snapshot = append(res.Snapshot, cur)

		switch {
		case cur.PriceCents < old.PriceCents:
			res.Events = append(res.Events, newEvent(domain.ChangePriceDrop, store, cur, old.PriceCents))
		case cur.PriceCents > old.PriceCents:
			res.Events = append(res.Events, newEvent(domain.ChangePriceRise, store, cur, old.PriceCents))
		}
	}

	for _, old := range previous {
		if seen[old.Key()] {
			continue
		}
		gone := cloneListing(old)
		gone.Vanished = true
		gone.QuantityAvailable = 0
		res.Snapshot = append(res.Snapshot, gone)
	}

	return res
}

func newEvent(kind domain.ChangeKind, store *domain.Store, l *domain.Listing, oldPrice int64) domain.NotificationEvent {
	ev := domain.NotificationEvent{
		Kind:          kind,
		Region:        store.Region,
		StoreName:     store.Name,
		Listing:       *l,
		OldPriceCents: oldPrice,
	}
	if oldPrice != 0 {
		ev.DeltaCents = oldPrice - l.PriceCents
		if ev.DeltaCents < 0 {
			ev.DeltaCents = -ev.DeltaCents
		}
	}
	return ev
}

func cloneListing(l *domain.Listing) *domain.Listing {
	c := *l
	return &c
}
