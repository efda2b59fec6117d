// Package driver owns the polling cycle: on every tick it fans out over the
// configured regions, diffs each store's listings against the persisted
// snapshot and hands detected changes to the history recorder and the
// notification fan-out. All cross-cutting state (cache, registry, stores) is
// held explicitly by the Driver; there are no package-level singletons.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/ethan-mcmanus-dev/Flashfood-API-Scraper/internal/cache"
	"github.com/ethan-mcmanus-dev/Flashfood-API-Scraper/internal/detect"
	"github.com/ethan-mcmanus-dev/Flashfood-API-Scraper/internal/domain"
	"github.com/ethan-mcmanus-dev/Flashfood-API-Scraper/internal/flashfood"
	"github.com/ethan-mcmanus-dev/Flashfood-API-Scraper/internal/history"
	"github.com/ethan-mcmanus-dev/Flashfood-API-Scraper/internal/notify"
	"github.com/ethan-mcmanus-dev/Flashfood-API-Scraper/internal/observability"
	"github.com/ethan-mcmanus-dev/Flashfood-API-Scraper/internal/storage"
)

// State is the driver lifecycle state.
type State int32

const (
	// StateIdle means the driver is armed and waiting for the next tick.
	StateIdle State = iota
	// StateRunning means a cycle is in flight.
	StateRunning
	// StateFailed is terminal: the driver could not be scheduled again.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Marketplace is the upstream client surface the driver depends on.
type Marketplace interface {
	ListStores(ctx context.Context, region domain.Region) ([]flashfood.StoreListings, error)
	ListItems(ctx context.Context, storeID string) ([]domain.Listing, error)
}

// Options configures a Driver.
type Options struct {
	// PollInterval is the tick period. Required.
	PollInterval time.Duration
	// CacheTTL bounds how stale a cached upstream response may be.
	CacheTTL time.Duration
	// RegionConcurrency caps simultaneously in-flight region units.
	RegionConcurrency int
	// StoreConcurrency caps simultaneously processed stores per region.
	StoreConcurrency int
	// Regions are the polling targets.
	Regions []domain.Region

	// TransientRetries is the attempt ceiling for retryable upstream
	// failures within one region unit. Defaults to 3.
	TransientRetries int
	// RetryBaseDelay is the first retry delay, doubled per attempt up to
	// RetryMaxDelay. Defaults to 1s / 15s.
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	Logger  *log.Logger
	Metrics *observability.Metrics

	// Now is swappable for tests. Defaults to time.Now.
	Now func() time.Time
}

// Driver runs the periodic poll-detect-notify cycle.
type Driver struct {
	client    Marketplace
	cache     *cache.Cache
	snapshots storage.SnapshotStore
	recorder  *history.Recorder
	fanout    *notify.Fanout

	opts    Options
	logger  *log.Logger
	metrics *observability.Metrics
	now     func() time.Time

	state  atomic.Int32
	active atomic.Bool

	// inflight holds the store IDs currently being processed. Overlapping
	// region radii can surface one store in two region fetches; the snapshot
	// must never be diffed by two workers at once.
	inflight sync.Map
}

// New creates a Driver. The configuration must already be validated; a
// malformed option set here is a programming error and returns an error
// before the first cycle, never after.
func New(client Marketplace, c *cache.Cache, snapshots storage.SnapshotStore, recorder *history.Recorder, fanout *notify.Fanout, opts Options) (*Driver, error) {
	if opts.PollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive")
	}
	if opts.CacheTTL <= 0 {
		return nil, fmt.Errorf("cache ttl must be positive")
	}
	if opts.RegionConcurrency <= 0 || opts.StoreConcurrency <= 0 {
		return nil, fmt.Errorf("concurrency bounds must be positive")
	}
	if len(opts.Regions) == 0 {
		return nil, fmt.Errorf("at least one region is required")
	}
	if opts.TransientRetries <= 0 {
		opts.TransientRetries = 3
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = time.Second
	}
	if opts.RetryMaxDelay <= 0 {
		opts.RetryMaxDelay = 15 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Driver{
		client:    client,
		cache:     c,
		snapshots: snapshots,
		recorder:  recorder,
		fanout:    fanout,
		opts:      opts,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		now:       opts.Now,
	}, nil
}

// State returns the current lifecycle state.
func (d *Driver) State() State {
	return State(d.state.Load())
}

// ErrFailed is returned by Run when the driver cannot be scheduled, which
// puts it in the terminal failed state.
var ErrFailed = errors.New("driver cannot be scheduled")

// Run executes cycles until ctx is cancelled. The first cycle starts
// immediately; later cycles fire on the poll interval. Run returns nil on
// cancellation. Overlapping Run calls are a scheduling fault and move the
// driver to the terminal failed state.
func (d *Driver) Run(ctx context.Context) error {
	if !d.active.CompareAndSwap(false, true) {
		d.state.Store(int32(StateFailed))
		return ErrFailed
	}
	defer d.active.Store(false)
	defer func() {
		if d.State() != StateFailed {
			d.state.Store(int32(StateIdle))
		}
	}()

	ticker := time.NewTicker(d.opts.PollInterval)
	defer ticker.Stop()

	d.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.runCycle(ctx)
		}
	}
}

// runCycle processes every region once. Region failures are contained; the
// cycle itself never fails.
func (d *Driver) runCycle(ctx context.Context) {
	d.state.Store(int32(StateRunning))
	defer d.state.Store(int32(StateIdle))

	start := d.now()
	d.logger.Printf("[driver] cycle start regions=%d", len(d.opts.Regions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.RegionConcurrency)
	for _, region := range d.opts.Regions {
		region := region
		g.Go(func() error {
			if err := d.processRegion(gctx, region); err != nil {
				d.logger.Printf("[driver] region %s skipped: %v", region.Key, err)
				d.regionDone(region, "skipped")
				return nil // region isolation: never cancel siblings
			}
			d.regionDone(region, "ok")
			return nil
		})
	}
	g.Wait()

	elapsed := d.now().Sub(start)
	d.logger.Printf("[driver] cycle complete in %s", elapsed)
	if d.metrics != nil {
		status := "ok"
		if ctx.Err() != nil {
			status = "cancelled"
		} else {
			d.metrics.LastSuccessfulCycle.Set(float64(d.now().Unix()))
		}
		d.metrics.CyclesTotal.WithLabelValues(status).Inc()
		d.metrics.CycleDuration.Observe(elapsed.Seconds())
		d.metrics.CacheEntries.Set(float64(d.cache.Len()))
	}
}

func (d *Driver) regionDone(region domain.Region, status string) {
	if d.metrics != nil {
		d.metrics.RegionsProcessed.WithLabelValues(region.Key, status).Inc()
	}
}

// processRegion fetches the region's stores and processes each one with
// bounded concurrency. The snapshot of a store is owned by exactly one
// worker for the duration of the cycle.
func (d *Driver) processRegion(ctx context.Context, region domain.Region) error {
	var stores []flashfood.StoreListings
	err := d.retryTransient(ctx, func() error {
		key := cache.StoresKey(region.Latitude, region.Longitude, region.RadiusMeters, region.StoreLimit)
		v, err := d.cache.GetOrFetch(ctx, key, d.opts.CacheTTL, func(ctx context.Context) (any, error) {
			return d.client.ListStores(ctx, region)
		})
		if err != nil {
			return err
		}
		stores = v.([]flashfood.StoreListings)
		return nil
	})
	if err != nil {
		return fmt.Errorf("list stores: %w", err)
	}

	sem := semaphore.NewWeighted(int64(d.opts.StoreConcurrency))
	g, gctx := errgroup.WithContext(ctx)
	for _, sl := range stores {
		sl := sl
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			if err := d.processStore(gctx, region, sl); err != nil {
				// Persistence trouble is scoped to this store.
				d.logger.Printf("[driver] region %s store %s: %v", region.Key, sl.Store.ExternalID, err)
			}
			return nil
		})
	}
	g.Wait()
	return ctx.Err()
}

// processStore runs the strictly sequential detect, record, notify steps for
// one store.
func (d *Driver) processStore(ctx context.Context, region domain.Region, sl flashfood.StoreListings) error {
	store := sl.Store
	if _, held := d.inflight.LoadOrStore(store.ExternalID, struct{}{}); held {
		// Another region unit owns this store right now; its result stands.
		return nil
	}
	defer d.inflight.Delete(store.ExternalID)

	store.Region = region.Key
	if err := d.snapshots.UpsertStore(ctx, &store); err != nil {
		return fmt.Errorf("upsert store: %w", err)
	}

	listings, err := d.storeListings(ctx, sl)
	if err != nil {
		return fmt.Errorf("list items: %w", err)
	}

	previous, err := d.snapshots.LoadSnapshot(ctx, store.ExternalID)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	now := d.now().UTC()
	res := detect.Detect(now, &store, previous, toPointers(listings, store.ExternalID))
	if d.metrics != nil {
		d.metrics.StoresProcessed.Inc()
		d.metrics.ListingsSeen.Add(float64(len(listings)))
		for _, ev := range res.Events {
			d.metrics.EventsDetected.WithLabelValues(string(ev.Kind)).Inc()
		}
	}

	eventByListing := make(map[string]domain.NotificationEvent, len(res.Events))
	for _, ev := range res.Events {
		eventByListing[ev.Listing.ExternalID] = ev
	}

	// For a changed listing the observation is appended before its snapshot
	// row is replaced. When the append fails the old row is kept, so the
	// same change is detected and recorded again next cycle instead of
	// silently disappearing from the price history.
	delivered := make([]domain.NotificationEvent, 0, len(res.Events))
	var recErr error
	for _, l := range res.Snapshot {
		if ev, ok := eventByListing[l.ExternalID]; ok {
			if err := d.recorder.Record(ctx, ev, now); err != nil {
				d.logger.Printf("[driver] region %s store %s: %v", region.Key, store.ExternalID, err)
				if recErr == nil {
					recErr = err
				}
				continue
			}
			delivered = append(delivered, ev)
		}
		if err := d.snapshots.UpsertListing(ctx, l); err != nil {
			return fmt.Errorf("upsert listing %s: %w", l.ExternalID, err)
		}
	}
	if d.metrics != nil {
		d.metrics.ObservationsRecorded.Add(float64(len(delivered)))
		if recErr != nil {
			d.metrics.ObservationErrors.Add(float64(len(res.Events) - len(delivered)))
		}
	}

	if len(delivered) == 0 {
		return recErr
	}

	if _, err := d.fanout.Dispatch(ctx, region.Key, delivered); err != nil {
		d.logger.Printf("[driver] region %s store %s dispatch: %v", region.Key, store.ExternalID, err)
	}
	return recErr
}

// storeListings returns the listings for one store, preferring those
// embedded in the region response and falling back to a cached per-store
// fetch.
func (d *Driver) storeListings(ctx context.Context, sl flashfood.StoreListings) ([]domain.Listing, error) {
	if len(sl.Listings) > 0 {
		return sl.Listings, nil
	}

	var listings []domain.Listing
	err := d.retryTransient(ctx, func() error {
		v, err := d.cache.GetOrFetch(ctx, cache.ItemsKey(sl.Store.ExternalID), d.opts.CacheTTL, func(ctx context.Context) (any, error) {
			return d.client.ListItems(ctx, sl.Store.ExternalID)
		})
		if err != nil {
			return err
		}
		listings = v.([]domain.Listing)
		return nil
	})
	return listings, err
}

// retryTransient runs fn, retrying transient upstream failures with
// exponential backoff up to the attempt ceiling. Fatal classifications fail
// immediately.
func (d *Driver) retryTransient(ctx context.Context, fn func() error) error {
	delay := d.opts.RetryBaseDelay
	var lastErr error
	for attempt := 1; attempt <= d.opts.TransientRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !flashfood.IsTransient(lastErr) || attempt == d.opts.TransientRetries {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > d.opts.RetryMaxDelay {
			delay = d.opts.RetryMaxDelay
		}
	}
	return lastErr
}

func toPointers(listings []domain.Listing, storeID string) []*domain.Listing {
	out := make([]*domain.Listing, len(listings))
	for i := range listings {
		l := listings[i]
		if l.StoreID == "" {
			l.StoreID = storeID
		}
		out[i] = &l
	}
	return out
}
