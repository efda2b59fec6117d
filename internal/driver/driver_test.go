package driver

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/ethan-mcmanus-dev/Flashfood-API-Scraper/internal/cache"
	"github.com/ethan-mcmanus-dev/Flashfood-API-Scraper/internal/domain"
	"github.com/ethan-mcmanus-dev/Flashfood-API-Scraper/internal/flashfood"
	"github.com/ethan-mcmanus-dev/Flashfood-API-Scraper/internal/history"
	"github.com/ethan-mcmanus-dev/Flashfood-API-Scraper/internal/notify"
	"github.com/ethan-mcmanus-dev/Flashfood-API-Scraper/internal/storage/memory"
)

var quiet = log.New(io.Discard, "", 0)

func region(key string) domain.Region {
	return domain.Region{Key: key, Name: key, Latitude: 51, Longitude: -114, RadiusMeters: 75000, StoreLimit: 50}
}

// fakeMarketplace serves canned region responses and counts upstream calls.
type fakeMarketplace struct {
	mu         sync.Mutex
	byRegion   map[string][]flashfood.StoreListings
	errs       map[string][]error // errors returned before the canned response
	listCalls  int
	itemsCalls int
}

func newFakeMarketplace() *fakeMarketplace {
	return &fakeMarketplace{
		byRegion: make(map[string][]flashfood.StoreListings),
		errs:     make(map[string][]error),
	}
}

func (f *fakeMarketplace) ListStores(_ context.Context, r domain.Region) ([]flashfood.StoreListings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if pending := f.errs[r.Key]; len(pending) > 0 {
		err := pending[0]
		f.errs[r.Key] = pending[1:]
		return nil, err
	}
	return f.byRegion[r.Key], nil
}

func (f *fakeMarketplace) ListItems(context.Context, string) ([]domain.Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.itemsCalls++
	return nil, nil
}

func (f *fakeMarketplace) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls, f.itemsCalls
}

type collectingSink struct {
	mu      sync.Mutex
	batches []*notify.EmailBatch
}

func (s *collectingSink) Enqueue(_ context.Context, _ string, b *notify.EmailBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, b)
	return nil
}

func (s *collectingSink) all() []*notify.EmailBatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*notify.EmailBatch(nil), s.batches...)
}

func storeWith(storeID string, listings ...domain.Listing) flashfood.StoreListings {
	return flashfood.StoreListings{
		Store:    domain.Store{ExternalID: storeID, Name: "Store " + storeID},
		Listings: listings,
	}
}

func listing(storeID, externalID string, priceCents int64, qty int) domain.Listing {
	return domain.Listing{
		StoreID:            storeID,
		ExternalID:         externalID,
		Name:               "item " + externalID,
		Category:           "Pantry",
		OriginalPriceCents: priceCents * 2,
		PriceCents:         priceCents,
		QuantityAvailable:  qty,
	}
}

type fixture struct {
	driver    *Driver
	client    *fakeMarketplace
	snapshots *memory.SnapshotStore
	obs       *memory.ObservationStore
	prefs     *memory.PreferenceStore
	sink      *collectingSink
	registry  *notify.Registry
}

func newFixture(t *testing.T, regions []domain.Region, mutate func(*Options)) *fixture {
	t.Helper()

	client := newFakeMarketplace()
	snapshots := memory.NewSnapshotStore()
	obs := memory.NewObservationStore()
	prefs := memory.NewPreferenceStore()
	sink := &collectingSink{}
	registry := notify.NewRegistry(notify.RegistryOptions{Logger: quiet})
	t.Cleanup(registry.Close)

	recorder := history.NewRecorder(obs, history.Options{Logger: quiet})
	fanout := notify.NewFanout(registry, prefs, sink, notify.FanoutOptions{Logger: quiet})

	opts := Options{
		PollInterval:      time.Hour,
		CacheTTL:          time.Minute,
		RegionConcurrency: 2,
		StoreConcurrency:  2,
		Regions:           regions,
		TransientRetries:  3,
		RetryBaseDelay:    time.Millisecond,
		RetryMaxDelay:     4 * time.Millisecond,
		Logger:            quiet,
	}
	if mutate != nil {
		mutate(&opts)
	}

	d, err := New(client, cache.New(), snapshots, recorder, fanout, opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return &fixture{
		driver:    d,
		client:    client,
		snapshots: snapshots,
		obs:       obs,
		prefs:     prefs,
		sink:      sink,
		registry:  registry,
	}
}

func TestDriver_CycleDetectsRecordsAndNotifies(t *testing.T) {
	f := newFixture(t, []domain.Region{region("calgary")}, nil)
	ctx := context.Background()

	// Cycle 1 seeds the snapshot: L at 1099.
	f.client.byRegion["calgary"] = []flashfood.StoreListings{
		storeWith("S", listing("S", "L", 1099, 5)),
	}
	f.driver.runCycle(ctx)

	if f.obs.Len() != 1 {
		t.Fatalf("after first cycle got %d observations, want 1", f.obs.Len())
	}

	// Cycle 2: L drops to 899 and M appears.
	f.prefs.Put(&domain.SubscriberPreference{
		UserID: "u1", Email: "u1@example.com", Region: "calgary",
		EmailEnabled: true, NotifyNewDeals: true, NotifyPriceDrops: true,
		Window: domain.TimeWindow{End: domain.TimeOfDay{Hour: 23, Minute: 59}},
	})
	f.client.byRegion["calgary"] = []flashfood.StoreListings{
		storeWith("S", listing("S", "L", 899, 5), listing("S", "M", 499, 10)),
	}
	f.driver.opts.CacheTTL = -time.Nanosecond // force refetch despite cycle 1's cached response
	f.driver.runCycle(ctx)

	// Two more observations, one per event.
	if f.obs.Len() != 3 {
		t.Errorf("got %d observations, want 3", f.obs.Len())
	}
	lObs, err := f.obs.GetByListing(ctx, "S", "L")
	if err != nil || len(lObs) != 2 {
		t.Errorf("L observations = %d (err %v), want 2", len(lObs), err)
	}

	// Snapshot persisted with the new price.
	snap, err := f.snapshots.LoadSnapshot(ctx, "S")
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	if len(snap) != 2 {
		t.Fatalf("snapshot has %d listings, want 2", len(snap))
	}

	// One coalesced email covering both events.
	batches := f.sink.all()
	if len(batches) != 1 {
		t.Fatalf("got %d email batches, want 1", len(batches))
	}
	if batches[0].NewDeals != 1 || batches[0].PriceDrop != 1 {
		t.Errorf("batch = %+v", batches[0])
	}
}

func TestDriver_RegionIsolation(t *testing.T) {
	f := newFixture(t, []domain.Region{region("calgary"), region("vancouver")}, nil)
	ctx := context.Background()

	f.client.byRegion["calgary"] = []flashfood.StoreListings{
		storeWith("S", listing("S", "L", 899, 5)),
	}
	// Vancouver always fails fatally.
	f.client.errs["vancouver"] = []error{
		&flashfood.APIError{Op: "list_stores", StatusCode: 401, Err: errors.New("auth")},
	}

	f.driver.runCycle(ctx)

	// Succeeding region completed its snapshot.
	snap, err := f.snapshots.LoadSnapshot(ctx, "S")
	if err != nil || len(snap) != 1 {
		t.Errorf("calgary snapshot = %d listings (err %v), want 1", len(snap), err)
	}
	if f.driver.State() != StateIdle {
		t.Errorf("driver state = %v, want idle", f.driver.State())
	}
}

func TestDriver_TransientRetrySucceeds(t *testing.T) {
	f := newFixture(t, []domain.Region{region("calgary")}, nil)
	ctx := context.Background()

	transient := &flashfood.APIError{Op: "list_stores", StatusCode: 503, Transient: true, Err: errors.New("unavailable")}
	f.client.errs["calgary"] = []error{transient, transient}
	f.client.byRegion["calgary"] = []flashfood.StoreListings{
		storeWith("S", listing("S", "L", 899, 5)),
	}

	f.driver.runCycle(ctx)

	listCalls, _ := f.client.calls()
	if listCalls != 3 {
		t.Errorf("upstream called %d times, want 3", listCalls)
	}
	snap, err := f.snapshots.LoadSnapshot(ctx, "S")
	if err != nil || len(snap) != 1 {
		t.Errorf("snapshot = %d listings (err %v), want 1", len(snap), err)
	}
}

func TestDriver_TransientRetryExhausts(t *testing.T) {
	f := newFixture(t, []domain.Region{region("calgary")}, nil)
	ctx := context.Background()

	transient := &flashfood.APIError{Op: "list_stores", StatusCode: 429, Transient: true, Err: errors.New("rate limited")}
	f.client.errs["calgary"] = []error{transient, transient, transient, transient}

	f.driver.runCycle(ctx)

	listCalls, _ := f.client.calls()
	if listCalls != 3 {
		t.Errorf("upstream called %d times, want retry ceiling 3", listCalls)
	}
	if f.obs.Len() != 0 {
		t.Errorf("failed region recorded %d observations", f.obs.Len())
	}
}

func TestDriver_CacheBoundsUpstreamCalls(t *testing.T) {
	f := newFixture(t, []domain.Region{region("calgary")}, nil)
	ctx := context.Background()

	f.client.byRegion["calgary"] = []flashfood.StoreListings{
		storeWith("S", listing("S", "L", 899, 5)),
	}

	f.driver.runCycle(ctx)
	f.driver.runCycle(ctx) // within the cache TTL

	listCalls, _ := f.client.calls()
	if listCalls != 1 {
		t.Errorf("upstream called %d times across two cycles, want 1", listCalls)
	}
}

// flakyObservations can be switched into a failing mode mid-test.
type flakyObservations struct {
	*memory.ObservationStore
	mu      sync.Mutex
	failing bool
}

func (s *flakyObservations) setFailing(v bool) {
	s.mu.Lock()
	s.failing = v
	s.mu.Unlock()
}

func (s *flakyObservations) Append(ctx context.Context, o *domain.PriceObservation) error {
	s.mu.Lock()
	failing := s.failing
	s.mu.Unlock()
	if failing {
		return errors.New("observation store unavailable")
	}
	return s.ObservationStore.Append(ctx, o)
}

// slowSnapshots stretches LoadSnapshot so that two region workers contend
// for the same store within one cycle.
type slowSnapshots struct {
	*memory.SnapshotStore
	delay time.Duration
}

func (s *slowSnapshots) LoadSnapshot(ctx context.Context, storeID string) ([]*domain.Listing, error) {
	time.Sleep(s.delay)
	return s.SnapshotStore.LoadSnapshot(ctx, storeID)
}

func TestDriver_ObservationFailureLeavesChangeDetectable(t *testing.T) {
	client := newFakeMarketplace()
	snapshots := memory.NewSnapshotStore()
	obs := &flakyObservations{ObservationStore: memory.NewObservationStore()}
	prefs := memory.NewPreferenceStore()
	sink := &collectingSink{}
	registry := notify.NewRegistry(notify.RegistryOptions{Logger: quiet})
	t.Cleanup(registry.Close)

	recorder := history.NewRecorder(obs, history.Options{Logger: quiet})
	fanout := notify.NewFanout(registry, prefs, sink, notify.FanoutOptions{Logger: quiet})

	d, err := New(client, cache.New(), snapshots, recorder, fanout, Options{
		PollInterval:      time.Hour,
		CacheTTL:          time.Minute,
		RegionConcurrency: 2,
		StoreConcurrency:  2,
		Regions:           []domain.Region{region("calgary")},
		Logger:            quiet,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx := context.Background()

	client.byRegion["calgary"] = []flashfood.StoreListings{
		storeWith("S", listing("S", "L", 1099, 5)),
	}
	d.runCycle(ctx)
	if obs.Len() != 1 {
		t.Fatalf("after seed cycle got %d observations, want 1", obs.Len())
	}

	prefs.Put(&domain.SubscriberPreference{
		UserID: "u1", Email: "u1@example.com", Region: "calgary",
		EmailEnabled: true, NotifyPriceDrops: true,
		Window: domain.TimeWindow{End: domain.TimeOfDay{Hour: 23, Minute: 59}},
	})

	// The observation store goes down while L drops to 899.
	obs.setFailing(true)
	client.byRegion["calgary"] = []flashfood.StoreListings{
		storeWith("S", listing("S", "L", 899, 5)),
	}
	d.opts.CacheTTL = -time.Nanosecond
	d.runCycle(ctx)

	if obs.Len() != 1 {
		t.Fatalf("failed append still grew the history to %d observations", obs.Len())
	}
	snap, err := snapshots.LoadSnapshot(ctx, "S")
	if err != nil || len(snap) != 1 {
		t.Fatalf("snapshot = %d listings (err %v), want 1", len(snap), err)
	}
	if snap[0].PriceCents != 1099 {
		t.Errorf("snapshot advanced to %d with no observation recorded, want 1099", snap[0].PriceCents)
	}
	if got := len(sink.all()); got != 0 {
		t.Errorf("unrecorded change produced %d email batches, want 0", got)
	}

	// Store recovers; the same drop is picked up again next cycle.
	obs.setFailing(false)
	d.runCycle(ctx)

	lObs, err := obs.GetByListing(ctx, "S", "L")
	if err != nil || len(lObs) != 2 {
		t.Fatalf("L observations = %d (err %v), want 2", len(lObs), err)
	}
	if last := lObs[len(lObs)-1]; last.PriceCents != 899 {
		t.Errorf("latest observation price = %d, want 899", last.PriceCents)
	}
	snap, _ = snapshots.LoadSnapshot(ctx, "S")
	if snap[0].PriceCents != 899 {
		t.Errorf("snapshot price after recovery = %d, want 899", snap[0].PriceCents)
	}
	batches := sink.all()
	if len(batches) != 1 || batches[0].PriceDrop != 1 {
		t.Errorf("batches after recovery = %+v, want one with a single drop", batches)
	}
}

func TestDriver_SharedStoreProcessedBySingleWorker(t *testing.T) {
	client := newFakeMarketplace()
	snapshots := &slowSnapshots{SnapshotStore: memory.NewSnapshotStore(), delay: 25 * time.Millisecond}
	obs := memory.NewObservationStore()
	prefs := memory.NewPreferenceStore()
	sink := &collectingSink{}
	registry := notify.NewRegistry(notify.RegistryOptions{Logger: quiet})
	t.Cleanup(registry.Close)

	recorder := history.NewRecorder(obs, history.Options{Logger: quiet})
	fanout := notify.NewFanout(registry, prefs, sink, notify.FanoutOptions{Logger: quiet})

	// Toronto and Waterloo search radii overlap, so one store can show up
	// in both region fetches of the same cycle.
	d, err := New(client, cache.New(), snapshots, recorder, fanout, Options{
		PollInterval:      time.Hour,
		CacheTTL:          time.Minute,
		RegionConcurrency: 2,
		StoreConcurrency:  2,
		Regions:           []domain.Region{region("toronto"), region("waterloo")},
		Logger:            quiet,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx := context.Background()

	shared := []flashfood.StoreListings{storeWith("S", listing("S", "L", 1099, 5))}
	client.byRegion["toronto"] = shared
	client.byRegion["waterloo"] = shared
	d.runCycle(ctx)

	if obs.Len() != 1 {
		t.Fatalf("shared store yielded %d observations in one cycle, want 1", obs.Len())
	}

	prefs.Put(&domain.SubscriberPreference{
		UserID: "u1", Email: "u1@example.com",
		EmailEnabled: true, NotifyPriceDrops: true,
		Window: domain.TimeWindow{End: domain.TimeOfDay{Hour: 23, Minute: 59}},
	})

	shared = []flashfood.StoreListings{storeWith("S", listing("S", "L", 899, 5))}
	client.byRegion["toronto"] = shared
	client.byRegion["waterloo"] = shared
	d.opts.CacheTTL = -time.Nanosecond
	d.runCycle(ctx)

	lObs, err := obs.GetByListing(ctx, "S", "L")
	if err != nil || len(lObs) != 2 {
		t.Fatalf("L observations = %d (err %v), want 2", len(lObs), err)
	}
	batches := sink.all()
	if len(batches) != 1 || batches[0].PriceDrop != 1 {
		t.Errorf("batches = %+v, want exactly one with a single drop", batches)
	}
}

func TestDriver_RunLifecycle(t *testing.T) {
	f := newFixture(t, []domain.Region{region("calgary")}, func(o *Options) {
		o.PollInterval = 10 * time.Millisecond
	})

	if f.driver.State() != StateIdle {
		t.Fatalf("initial state = %v", f.driver.State())
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.driver.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if f.driver.State() != StateIdle {
		t.Errorf("state after Run = %v, want idle", f.driver.State())
	}
}

func TestDriver_OverlappingRunFails(t *testing.T) {
	f := newFixture(t, []domain.Region{region("calgary")}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- f.driver.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)

	if err := f.driver.Run(ctx); !errors.Is(err, ErrFailed) {
		t.Errorf("second Run = %v, want ErrFailed", err)
	}
	if f.driver.State() != StateFailed {
		t.Errorf("state = %v, want failed", f.driver.State())
	}

	cancel()
	<-done
}

func TestNew_RejectsBadOptions(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"zero poll interval", func(o *Options) { o.PollInterval = 0 }},
		{"zero cache ttl", func(o *Options) { o.CacheTTL = 0 }},
		{"zero region concurrency", func(o *Options) { o.RegionConcurrency = 0 }},
		{"zero store concurrency", func(o *Options) { o.StoreConcurrency = 0 }},
		{"no regions", func(o *Options) { o.Regions = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := Options{
				PollInterval:      time.Minute,
				CacheTTL:          time.Minute,
				RegionConcurrency: 1,
				StoreConcurrency:  1,
				Regions:           []domain.Region{region("calgary")},
				Logger:            quiet,
			}
			tt.mutate(&opts)
			if _, err := New(newFakeMarketplace(), cache.New(), memory.NewSnapshotStore(), nil, nil, opts); err == nil {
				t.Error("expected error")
			}
		})
	}
}
