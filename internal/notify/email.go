package notify

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ethan-mcmanus-dev/Flashfood-API-Scraper/internal/domain"
)

// EmailBatch is one coalesced email for one subscriber covering one cycle.
// Multiple matching events never produce more than one batch per subscriber
// per cycle.
type EmailBatch struct {
	Email     string
	Region    string
	NewDeals  int
	PriceDrop int
	// Sample holds up to maxSummaries listings across both kinds, new deals
	// first.
	Sample []ListingSummary
}

// Total returns the number of events the batch covers.
func (b *EmailBatch) Total() int { return b.NewDeals + b.PriceDrop }

// Subject builds the email subject line.
func (b *EmailBatch) Subject() string {
	switch {
	case b.PriceDrop == 0:
		return fmt.Sprintf("%d new Flashfood deals available!", b.NewDeals)
	case b.NewDeals == 0:
		return fmt.Sprintf("%d Flashfood price drops!", b.PriceDrop)
	default:
		return fmt.Sprintf("%d Flashfood deal updates!", b.Total())
	}
}

// EmailSink accepts one coalesced batch for asynchronous delivery. Enqueue
// may fail transiently; callers retry with backoff.
type EmailSink interface {
	Enqueue(ctx context.Context, userID string, batch *EmailBatch) error
}

// RetryPolicy bounds the enqueue retry loop.
type RetryPolicy struct {
	// MaxAttempts counts the initial try plus retries.
	MaxAttempts int
	// BaseDelay is the first retry delay; each further retry doubles it up
	// to MaxDelay.
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultRetryPolicy returns the retry bounds used by the fan-out.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 4,
		BaseDelay:   250 * time.Millisecond,
		MaxDelay:    5 * time.Second,
	}
}

// buildBatches coalesces the cycle's events per subscriber. Each subscriber
// gets at most one batch holding every event that passed their filter.
func buildBatches(prefs []*domain.SubscriberPreference, events []domain.NotificationEvent, now time.Time) map[string]*EmailBatch {
	batches := make(map[string]*EmailBatch)
	for _, pref := range prefs {
		for _, ev := range events {
			if !Matches(pref, ev, now) {
				continue
			}
			b := batches[pref.UserID]
			if b == nil {
				b = &EmailBatch{Email: pref.Email, Region: ev.Region}
				batches[pref.UserID] = b
			}
			switch ev.Kind {
			case domain.ChangeNew:
				b.NewDeals++
			case domain.ChangePriceDrop:
				b.PriceDrop++
			}
			if len(b.Sample) < maxSummaries {
				b.Sample = append(b.Sample, summarize(ev))
			}
		}
	}
	return batches
}

// enqueueWithRetry pushes one batch into the sink, retrying transient
// failures with exponential backoff. After the attempt ceiling the batch is
// dropped for this subscriber and the failure logged.
func enqueueWithRetry(ctx context.Context, sink EmailSink, userID string, batch *EmailBatch, policy RetryPolicy, logger *log.Logger) error {
	delay := policy.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		lastErr = sink.Enqueue(ctx, userID, batch)
		if lastErr == nil {
			return nil
		}
		if attempt == policy.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}
	logger.Printf("[notify] dropping email batch for user %s after %d attempts: %v",
		userID, policy.MaxAttempts, lastErr)
	return fmt.Errorf("enqueue email for user %s: %w", userID, lastErr)
}

// LogSink is an EmailSink that only logs batches. It stands in when no SMTP
// relay is configured.
type LogSink struct {
	Logger *log.Logger
}

func (s *LogSink) Enqueue(_ context.Context, userID string, batch *EmailBatch) error {
	logger := s.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("[notify] email to %s (%s): %s", userID, batch.Email, batch.Subject())
	return nil
}
