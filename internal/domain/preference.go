package domain

import "time"

// TimeOfDay is a wall-clock time in UTC.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// Minutes returns the offset from midnight in minutes.
func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

// TimeWindow is a daily notification window. A window whose end precedes its
// start crosses midnight (e.g. 22:00-07:00).
type TimeWindow struct {
	Start TimeOfDay
	End   TimeOfDay
}

// Contains reports whether the UTC wall-clock time of now falls inside the
// window, inclusive on both ends.
func (w TimeWindow) Contains(now time.Time) bool {
	utc := now.UTC()
	cur := utc.Hour()*60 + utc.Minute()
	start, end := w.Start.Minutes(), w.End.Minutes()
	if start <= end {
		return start <= cur && cur <= end
	}
	// Crosses midnight
	return cur >= start || cur <= end
}

// SubscriberPreference is a per-user notification filter. The pipeline only
// reads preferences; ownership lives with the preference-management component.
type SubscriberPreference struct {
	UserID             string
	Email              string
	Region             string
	MinDiscountPercent int
	FavoriteCategories []string // empty = all categories
	SelectedStoreIDs   []string // empty = all stores
	EmailEnabled       bool
	NotifyNewDeals     bool
	NotifyPriceDrops   bool
	Window             TimeWindow
}
