package notify

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ethan-mcmanus-dev/Flashfood-API-Scraper/internal/domain"
	"github.com/ethan-mcmanus-dev/Flashfood-API-Scraper/internal/storage"
)

// FanoutOptions configures a Fanout.
type FanoutOptions struct {
	Retry  RetryPolicy
	Logger *log.Logger

	// Now is swappable for tests. Defaults to time.Now.
	Now func() time.Time

	// OnEmailEnqueued, if set, observes every batch accepted by the sink.
	OnEmailEnqueued func()
	// OnEmailDropped, if set, observes every batch dropped after retries.
	OnEmailDropped func()
}

// Fanout dispatches one cycle's events for one region to the live broadcast
// registry and the email queue. Delivery failures never propagate to the
// polling cycle.
type Fanout struct {
	registry *Registry
	prefs    storage.PreferenceStore
	sink     EmailSink

	retry  RetryPolicy
	logger *log.Logger
	now    func() time.Time
	opts   FanoutOptions
}

// NewFanout creates a Fanout over the given sinks.
func NewFanout(registry *Registry, prefs storage.PreferenceStore, sink EmailSink, opts FanoutOptions) *Fanout {
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Fanout{
		registry: registry,
		prefs:    prefs,
		sink:     sink,
		retry:    opts.Retry,
		logger:   opts.Logger,
		now:      opts.Now,
		opts:     opts,
	}
}

// Dispatch pushes the events to live viewers of the region and enqueues one
// coalesced email per matching subscriber. It returns the number of email
// batches accepted; a subscriber store failure is the only error, since
// without preferences no filtering can happen.
func (f *Fanout) Dispatch(ctx context.Context, region string, events []domain.NotificationEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	now := f.now()
	for _, p := range BuildPayloads(events, now) {
		f.registry.Broadcast(region, p)
	}

	prefs, err := f.prefs.ListSubscribers(ctx, region)
	if err != nil {
		return 0, fmt.Errorf("list subscribers for region %s: %w", region, err)
	}

	enqueued := 0
	for userID, batch := range buildBatches(prefs, events, now) {
		if err := enqueueWithRetry(ctx, f.sink, userID, batch, f.retry, f.logger); err != nil {
			if f.opts.OnEmailDropped != nil {
				f.opts.OnEmailDropped()
			}
			continue
		}
		enqueued++
		if f.opts.OnEmailEnqueued != nil {
			f.opts.OnEmailEnqueued()
		}
	}
	return enqueued, nil
}
