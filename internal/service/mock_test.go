package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/you/go-flight-harvester/internal/flight"
	"github.com/you/go-flight-harvester/internal/harvest"
	"github.com/you/go-flight-harvester/internal/storage"
)

type HarvesterMock struct {
	offers          []flight.Offer
	delay           time.Duration
	errorOutMessage *string
	callCount       *int32
}

func (h HarvesterMock) Run(ctx context.Context, req harvest.Request) (*harvest.Report, error) {
	if h.callCount != nil {
		atomic.AddInt32(h.callCount, 1)
	}
	if h.errorOutMessage != nil {
		return nil, errors.New(*h.errorOutMessage)
	}
	if h.delay > 0 {
		select {
		case <-time.After(h.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	now := time.Date(2025, 10, 30, 9, 0, 0, 0, time.UTC)
	return &harvest.Report{
		RunID:      "run-1",
		State:      harvest.StateDone,
		StartedAt:  now,
		FinishedAt: now.Add(2 * time.Second),
		Units:      []harvest.Unit{{Provider: "Agoda", Status: harvest.UnitOK, Offers: len(h.offers)}},
		Offers:     h.offers,
	}, nil
}

func valToPtr[T any](param T) *T {
	return &param
}

// storeMock keeps offers by key, the way the real stores upsert.
type storeMock struct {
	mu        sync.Mutex
	offers    map[flight.Key]flight.Offer
	runs      []storage.RunRecord
	listCalls int
	failWrite error
}

func newStoreMock() *storeMock {
	return &storeMock{offers: map[flight.Key]flight.Offer{}}
}

func (s *storeMock) Upsert(ctx context.Context, offers []flight.Offer) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrite != nil {
		return 0, s.failWrite
	}
	for _, o := range offers {
		s.offers[o.Key()] = o
	}
	return len(offers), nil
}

func (s *storeMock) ListOffers(ctx context.Context, f storage.OfferFilter) ([]flight.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	var out []flight.Offer
	for _, o := range s.offers {
		if o.Route == f.Route.String() && o.DepartureTime.Format("2006-01-02") == f.DateKey() {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *storeMock) RecordRun(ctx context.Context, r storage.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, r)
	return nil
}

func (s *storeMock) LatestRun(ctx context.Context) (storage.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.runs) == 0 {
		return storage.RunRecord{}, storage.ErrNotFound
	}
	return s.runs[len(s.runs)-1], nil
}

type sinkMock struct {
	err   error
	count *int32
}

func (s sinkMock) Upsert(ctx context.Context, offers []flight.Offer) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	atomic.AddInt32(s.count, int32(len(offers)))
	return len(offers), nil
}

type historyMock struct {
	points []storage.MonthPoint
	months int
}

func (h *historyMock) MonthlyAverages(ctx context.Context, route flight.Route, months int, now time.Time) ([]storage.MonthPoint, error) {
	h.months = months
	return h.points, nil
}
