package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/you/go-flight-harvester/internal/cache"
	"github.com/you/go-flight-harvester/internal/config"
	"github.com/you/go-flight-harvester/internal/harvest"
	"github.com/you/go-flight-harvester/internal/providers"
	"github.com/you/go-flight-harvester/internal/publish"
	"github.com/you/go-flight-harvester/internal/routes"
	"github.com/you/go-flight-harvester/internal/service"
	"github.com/you/go-flight-harvester/internal/storage/csvfile"
	"github.com/you/go-flight-harvester/internal/storage/postgres"
	"github.com/you/go-flight-harvester/internal/storage/sqlite"
)

// offerStore is what both storage drivers provide.
type offerStore interface {
	service.Store
	service.PriceHistory
	harvest.Airports
	SetAirport(ctx context.Context, code, name, status string) error
	Close() error
}

type app struct {
	cfg     *config.Config
	store   offerStore
	catalog *config.Catalog
	harvest *service.HarvestService
	history *service.HistoryService
	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn("close failed", "err", err)
		}
	}
}

func openStore(ctx context.Context, sc config.StorageConfig) (offerStore, error) {
	switch sc.Driver {
	case "", "sqlite":
		return sqlite.NewStore(sc.SQLitePath)
	case "postgres":
		if sc.PostgresDSN == "" {
			return nil, fmt.Errorf("storage.postgres_dsn is required for the postgres driver")
		}
		return postgres.Open(ctx, sc.PostgresDSN, 4)
	}
	return nil, fmt.Errorf("unknown storage driver %q", sc.Driver)
}

func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	if _, err := routes.Parse(cfg.Routes); err != nil {
		return nil, fmt.Errorf("routes: %w", err)
	}

	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a := &app{cfg: cfg, store: store, catalog: config.NewCatalog(cfg)}
	a.closers = append(a.closers, store.Close)

	var opts []service.Option
	opts = append(opts, service.WithLogger(log))

	if cfg.Storage.CSVDir != "" {
		w, err := csvfile.New(cfg.Storage.CSVDir)
		if err != nil {
			a.Close()
			return nil, err
		}
		opts = append(opts, service.WithSink("csv", w))
	}

	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := publish.NewSyncProducer(cfg.Kafka.Brokers)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("kafka: %w", err)
		}
		pub := publish.NewKafkaPublisher(producer, cfg.Kafka.Topic, log)
		a.closers = append(a.closers, pub.Close)
		opts = append(opts, service.WithSink("kafka", pub))
	}

	if cfg.Redis.Addr != "" {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		rc, err := cache.NewRedis(pingCtx, &redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, cfg.CacheTTL, log)
		cancel()
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("redis %s: %w", cfg.Redis.Addr, err)
		}
		a.closers = append(a.closers, rc.Close)
		opts = append(opts, service.WithCache(rc))
	} else {
		opts = append(opts, service.WithCache(cache.NewMemory(cfg.CacheTTL)))
	}

	coord := harvest.New(a.catalog, service.AirportChain{store, a.catalog},
		harvest.WithLogger(log),
		harvest.WithTimeout(cfg.HarvestTimeout),
		harvest.WithObserver(func(runID string, s harvest.State) {
			log.Debug("harvest state", "run", runID, "state", s)
		}),
	)
	a.harvest = service.NewHarvestService(coord, store, opts...)
	a.history = service.NewHistoryService(store)
	return a, nil
}

// defaultRequest is the configured route set and search window as of now.
func (a *app) defaultRequest() harvest.Request {
	rs, _ := routes.Parse(a.cfg.Routes)
	return harvest.Request{
		Routes: rs,
		Dates:  service.SearchDates(time.Now(), a.cfg.DaysAhead, a.cfg.Days),
		Pax:    providers.Pax{Adults: a.cfg.Adults},
	}
}
