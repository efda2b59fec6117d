// Package main runs the surplus-deal monitor:
// - Driver (periodic): poll marketplace regions, detect listing changes
// - History: append-only price observations in ClickHouse
// - Notify: live websocket broadcasts and batched email alerts
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ethan-mcmanus-dev/Flashfood-API-Scraper/internal/cache"
	"github.com/ethan-mcmanus-dev/Flashfood-API-Scraper/internal/config"
	"github.com/ethan-mcmanus-dev/Flashfood-API-Scraper/internal/driver"
	"github.com/ethan-mcmanus-dev/Flashfood-API-Scraper/internal/flashfood"
	"github.com/ethan-mcmanus-dev/Flashfood-API-Scraper/internal/history"
	"github.com/ethan-mcmanus-dev/Flashfood-API-Scraper/internal/notify"
	"github.com/ethan-mcmanus-dev/Flashfood-API-Scraper/internal/observability"
	"github.com/ethan-mcmanus-dev/Flashfood-API-Scraper/internal/storage"
	chstore "github.com/ethan-mcmanus-dev/Flashfood-API-Scraper/internal/storage/clickhouse"
	"github.com/ethan-mcmanus-dev/Flashfood-API-Scraper/internal/storage/memory"
	"github.com/ethan-mcmanus-dev/Flashfood-API-Scraper/internal/storage/migrations"
	pgstore "github.com/ethan-mcmanus-dev/Flashfood-API-Scraper/internal/storage/postgres"
)

// monitorStores holds the storage implementations behind the pipeline.
type monitorStores struct {
	snapshots    storage.SnapshotStore
	observations storage.ObservationStore
	preferences  storage.PreferenceStore
}

func main() {
	// Load .env file if present; absence is fine.
	_ = godotenv.Load()

	logger := log.New(os.Stdout, "[monitor] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Fatalf("Configuration error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Configuration error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	stores, cleanup, err := createStores(ctx, cfg)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	metrics := observability.NewMetrics("")

	registry := notify.NewRegistry(notify.RegistryOptions{
		Logger: logger,
		OnConnCountChange: func(n int) {
			metrics.LiveConnections.Set(float64(n))
		},
		OnDrop:      func() { metrics.ConnectionsDropped.Inc() },
		OnBroadcast: func() { metrics.BroadcastsSent.Inc() },
	})

	fanout := notify.NewFanout(registry, stores.preferences, createEmailSink(cfg, logger), notify.FanoutOptions{
		Logger:          logger,
		OnEmailEnqueued: func() { metrics.EmailsEnqueued.Inc() },
		OnEmailDropped:  func() { metrics.EmailsDropped.Inc() },
	})

	recorder := history.NewRecorder(stores.observations, history.Options{Logger: logger})
	client := flashfood.NewClient(cfg.APIBaseURL, cfg.APIKey)
	client.OnCall(func(op string, elapsed time.Duration, err error) {
		metrics.UpstreamCallLatency.WithLabelValues(op).Observe(elapsed.Seconds())
		if err != nil {
			class := "fatal"
			if flashfood.IsTransient(err) {
				class = "transient"
			}
			metrics.UpstreamErrors.WithLabelValues(op, class).Inc()
		}
	})

	mon, err := driver.New(client, cache.New(), stores.snapshots, recorder, fanout, driver.Options{
		PollInterval:      cfg.PollInterval,
		CacheTTL:          cfg.CacheTTL,
		RegionConcurrency: cfg.RegionConcurrency,
		StoreConcurrency:  cfg.StoreConcurrency,
		Regions:           cfg.Regions,
		Logger:            logger,
		Metrics:           metrics,
	})
	if err != nil {
		logger.Fatalf("Failed to create driver: %v", err)
	}

	done := make(chan error, 1)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	srv := newHTTPServer(cfg.HTTPAddr, registry, mon, logger)
	go func() {
		logger.Printf("Starting HTTP server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("HTTP server error: %v", err)
		}
	}()

	regionKeys := make([]string, 0, len(cfg.Regions))
	for _, r := range cfg.Regions {
		regionKeys = append(regionKeys, r.Key)
	}
	logger.Printf("Monitoring regions %v every %s", regionKeys, cfg.PollInterval)

	err = mon.Run(ctx)
	done <- err
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("HTTP server shutdown: %v", err)
	}
	shutdownCancel()
	registry.Close()

	if err != nil {
		logger.Fatalf("Driver error: %v", err)
	}
	logger.Println("Shutdown complete")
}

// createStores creates the storage layer declared by the configuration.
func createStores(ctx context.Context, cfg *config.Config) (*monitorStores, func(), error) {
	if cfg.UseMemory {
		stores := &monitorStores{
			snapshots:    memory.NewSnapshotStore(),
			observations: memory.NewObservationStore(),
			preferences:  memory.NewPreferenceStore(),
		}
		return stores, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	chConn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}

	stores := &monitorStores{
		snapshots:    pgstore.NewSnapshotStore(pool),
		preferences:  pgstore.NewPreferenceStore(pool),
		observations: chstore.NewObservationStore(chConn),
	}
	cleanup := func() {
		chConn.Close()
		pool.Close()
	}
	return stores, cleanup, nil
}

// createEmailSink returns the SMTP sink when a relay is configured, or the
// logging sink otherwise.
func createEmailSink(cfg *config.Config, logger *log.Logger) notify.EmailSink {
	if cfg.SMTPAddr == "" {
		logger.Println("SMTP_ADDR not set, email batches will be logged only")
		return &notify.LogSink{Logger: logger}
	}
	return notify.NewSMTPSink(notify.SMTPSinkOptions{
		Addr:     cfg.SMTPAddr,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.EmailFrom,
	})
}

// newHTTPServer serves health, metrics, status and the live websocket feed.
func newHTTPServer(addr string, registry *notify.Registry, mon *driver.Driver, logger *log.Logger) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.Handle("/metrics", observability.Handler())
	mux.Handle("/ws", notify.WSHandler(registry, notify.WSHandlerOptions{Logger: logger}))

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"state":%q,"live_connections":%d}`+"\n", mon.State(), registry.Len())
	})

	return &http.Server{Addr: addr, Handler: mux}
}
