// Package service ties a harvest run to storage, export sinks, the offer
// cache and live subscribers.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/you/go-flight-harvester/internal/cache"
	"github.com/you/go-flight-harvester/internal/flight"
	"github.com/you/go-flight-harvester/internal/harvest"
	"github.com/you/go-flight-harvester/internal/logger"
	"github.com/you/go-flight-harvester/internal/storage"
)

var ErrRunInProgress = errors.New("a harvest is already running")

// Sink persists or forwards accepted offers.
type Sink interface {
	Upsert(ctx context.Context, offers []flight.Offer) (int, error)
}

// Store is the primary sink, also read back by the HTTP surface.
type Store interface {
	Sink
	ListOffers(ctx context.Context, f storage.OfferFilter) ([]flight.Offer, error)
	RecordRun(ctx context.Context, r storage.RunRecord) error
	LatestRun(ctx context.Context) (storage.RunRecord, error)
}

// Harvester is satisfied by *harvest.Coordinator.
type Harvester interface {
	Run(ctx context.Context, req harvest.Request) (*harvest.Report, error)
}

type namedSink struct {
	name string
	sink Sink
}

type HarvestService struct {
	harvester Harvester
	store     Store
	sinks     []namedSink
	cache     cache.Cache
	log       *slog.Logger
	now       func() time.Time

	running sync.Mutex

	mu   sync.Mutex
	subs map[int]chan storage.RunRecord
	next int
}

type Option func(*HarvestService)

// WithSink adds a secondary sink written after every run.
func WithSink(name string, s Sink) Option {
	return func(h *HarvestService) { h.sinks = append(h.sinks, namedSink{name: name, sink: s}) }
}

func WithCache(c cache.Cache) Option { return func(h *HarvestService) { h.cache = c } }

func WithLogger(l *slog.Logger) Option { return func(h *HarvestService) { h.log = logger.OrDiscard(l) } }

func WithClock(now func() time.Time) Option { return func(h *HarvestService) { h.now = now } }

func NewHarvestService(harvester Harvester, store Store, opts ...Option) *HarvestService {
	h := &HarvestService{
		harvester: harvester,
		store:     store,
		cache:     cache.NewMemory(0),
		log:       logger.Discard(),
		now:       time.Now,
		subs:      make(map[int]chan storage.RunRecord),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Run executes one harvest and stores its offers. Only one run may be in
// flight per service; a second caller gets ErrRunInProgress. The report is
// returned even when writing to a sink failed.
func (s *HarvestService) Run(ctx context.Context, req harvest.Request) (*harvest.Report, error) {
	if !s.running.TryLock() {
		return nil, ErrRunInProgress
	}
	defer s.running.Unlock()

	started := s.now()
	rep, err := s.harvester.Run(ctx, req)
	if err == nil && len(rep.Offers) > 0 {
		if ferr := s.fanout(ctx, rep.Offers); ferr != nil {
			err = ferr
		}
		s.refresh(ctx, rep.Offers)
	}

	rec := storage.NewRunRecord(rep, err, started)
	if rerr := s.store.RecordRun(ctx, rec); rerr != nil {
		s.log.Error("run not recorded", "run", rec.RunID, "err", rerr)
	}
	s.notify(rec)
	return rep, err
}

// fanout writes offers to the store and every sink concurrently. A failing
// sink does not cancel the others; the first error is returned.
func (s *HarvestService) fanout(ctx context.Context, offers []flight.Offer) error {
	all := append([]namedSink{{name: "store", sink: s.store}}, s.sinks...)
	var g errgroup.Group
	for _, ns := range all {
		g.Go(func() error {
			n, err := ns.sink.Upsert(ctx, offers)
			if err != nil {
				s.log.Error("sink failed", "sink", ns.name, "written", n, "err", err)
				return fmt.Errorf("%s: %w", ns.name, err)
			}
			s.log.Info("offers written", "sink", ns.name, "count", n)
			return nil
		})
	}
	return g.Wait()
}

// refresh reloads every (route, date) the run touched from the store so
// the cache reflects offers from earlier runs too.
func (s *HarvestService) refresh(ctx context.Context, offers []flight.Offer) {
	for key, group := range cache.Group(offers) {
		r, _ := flight.ParseRoute(group[0].Route)
		stored, err := s.store.ListOffers(ctx, storage.OfferFilter{Route: r, Date: group[0].DepartureTime})
		if err != nil {
			s.log.Warn("cache refresh failed", "key", key, "err", err)
			continue
		}
		s.cache.Set(ctx, key, stored)
	}
}

// Subscribe returns a channel receiving the record of every finished run.
// Slow subscribers miss records rather than block a run.
func (s *HarvestService) Subscribe() (<-chan storage.RunRecord, func()) {
	ch := make(chan storage.RunRecord, 4)
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

func (s *HarvestService) notify(rec storage.RunRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- rec:
		default:
		}
	}
}

func (s *HarvestService) Latest(ctx context.Context) (storage.RunRecord, error) {
	return s.store.LatestRun(ctx)
}
