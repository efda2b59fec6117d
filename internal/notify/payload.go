// Package notify fans detected listing changes out to live websocket viewers
// and to the batched email queue. Both sinks are best-effort: a slow viewer
// is dropped, an undeliverable email batch is retried then abandoned. Nothing
// in this package blocks the polling cycle indefinitely.
package notify

import (
	"fmt"
	"time"

	"github.com/ethan-mcmanus-dev/Flashfood-API-Scraper/internal/domain"
)

// Payload types pushed to live connections.
const (
	PayloadNewDeals  = "new_deals"
	PayloadPriceDrop = "price_drop"
)

// ListingSummary is the wire form of one listing inside a push payload or an
// email batch. Prices stay in integer cents on the wire.
type ListingSummary struct {
	Name               string `json:"name"`
	Category           string `json:"category"`
	StoreName          string `json:"store_name"`
	PriceCents         int64  `json:"price_cents"`
	OriginalPriceCents int64  `json:"original_price_cents,omitempty"`
	OldPriceCents      int64  `json:"old_price_cents,omitempty"`
	DiscountPercent    int    `json:"discount_percent"`
	QuantityAvailable  int    `json:"quantity_available"`
	ExpiresAt          string `json:"expires_at,omitempty"`
}

// Payload is one structured push message broadcast to live connections.
type Payload struct {
	Type      string           `json:"type"`
	Count     int              `json:"count"`
	Message   string           `json:"message"`
	Timestamp string           `json:"timestamp"`
	Data      []ListingSummary `json:"data"`
}

// maxSummaries bounds the listing sample carried in one payload or email.
const maxSummaries = 10

func summarize(ev domain.NotificationEvent) ListingSummary {
	s := ListingSummary{
		Name:               ev.Listing.Name,
		Category:           ev.Listing.Category,
		StoreName:          ev.StoreName,
		PriceCents:         ev.Listing.PriceCents,
		OriginalPriceCents: ev.Listing.OriginalPriceCents,
		OldPriceCents:      ev.OldPriceCents,
		DiscountPercent:    ev.Listing.DiscountPercent,
		QuantityAvailable:  ev.Listing.QuantityAvailable,
	}
	if !ev.Listing.ExpiryDate.IsZero() {
		s.ExpiresAt = ev.Listing.ExpiryDate.UTC().Format(time.RFC3339)
	}
	return s
}

// BuildPayloads groups a cycle's events into at most two push payloads, one
// per payload type. Price rises are history-only and never pushed. The
// listing sample in each payload is capped; Count reflects the full total.
func BuildPayloads(events []domain.NotificationEvent, now time.Time) []Payload {
	var newDeals, drops []domain.NotificationEvent
	for _, ev := range events {
		switch ev.Kind {
		case domain.ChangeNew:
			newDeals = append(newDeals, ev)
		case domain.ChangePriceDrop:
			drops = append(drops, ev)
		}
	}

	ts := now.UTC().Format(time.RFC3339)
	var out []Payload
	if len(newDeals) > 0 {
		out = append(out, buildPayload(PayloadNewDeals,
			fmt.Sprintf("%d new deals available!", len(newDeals)), newDeals, ts))
	}
	if len(drops) > 0 {
		out = append(out, buildPayload(PayloadPriceDrop,
			fmt.Sprintf("%d price drops on tracked deals!", len(drops)), drops, ts))
	}
	return out
}

func buildPayload(typ, message string, events []domain.NotificationEvent, ts string) Payload {
	p := Payload{
		Type:      typ,
		Count:     len(events),
		Message:   message,
		Timestamp: ts,
	}
	for _, ev := range events {
		if len(p.Data) == maxSummaries {
			break
		}
		p.Data = append(p.Data, summarize(ev))
	}
	return p
}
