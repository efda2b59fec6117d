package notify

import (
	"slices"
	"time"

	"github.com/ethan-mcmanus-dev/Flashfood-API-Scraper/internal/domain"
)

// Matches reports whether the event should reach the subscriber's email
// queue at instant now. It is a pure predicate over the preference and the
// event, so filter behavior is testable without a subscriber store.
func Matches(pref *domain.SubscriberPreference, ev domain.NotificationEvent, now time.Time) bool {
	if !pref.EmailEnabled {
		return false
	}
	switch ev.Kind {
	case domain.ChangeNew:
		if !pref.NotifyNewDeals {
			return false
		}
	case domain.ChangePriceDrop:
		if !pref.NotifyPriceDrops {
			return false
		}
	default:
		// Price rises are never emailed.
		return false
	}
	if pref.Region != "" && pref.Region != ev.Region {
		return false
	}
	if len(pref.SelectedStoreIDs) > 0 && !slices.Contains(pref.SelectedStoreIDs, ev.Listing.StoreID) {
		return false
	}
	if ev.Listing.DiscountPercent < pref.MinDiscountPercent {
		return false
	}
	if len(pref.FavoriteCategories) > 0 && !slices.Contains(pref.FavoriteCategories, ev.Listing.Category) {
		return false
	}
	return pref.Window.Contains(now)
}
