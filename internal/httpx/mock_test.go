package httpx

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/you/go-flight-harvester/internal/flight"
	"github.com/you/go-flight-harvester/internal/harvest"
	"github.com/you/go-flight-harvester/internal/service"
	"github.com/you/go-flight-harvester/internal/storage"
)

type offersMock struct {
	offers []flight.Offer
	err    error
	mu     sync.Mutex
	calls  int
}

func (o *offersMock) Offers(ctx context.Context, route flight.Route, date time.Time) (service.OfferSet, error) {
	o.mu.Lock()
	o.calls++
	o.mu.Unlock()
	if o.err != nil {
		return service.OfferSet{}, o.err
	}
	return service.Summarize(o.offers), nil
}

type historyMock struct{ months int }

func (h *historyMock) MonthlyAverages(ctx context.Context, route flight.Route, months int) ([]storage.MonthPoint, error) {
	h.months = months
	return []storage.MonthPoint{{Month: "2025-11", AvgPrice: 1100000, Currency: "VND", Samples: 3}}, nil
}

type harvesterMock struct {
	got harvest.Request
	rep *harvest.Report
	err error
}

func (h *harvesterMock) Run(ctx context.Context, req harvest.Request) (*harvest.Report, error) {
	h.got = req
	return h.rep, h.err
}

type feedMock struct {
	mu         sync.Mutex
	latest     *storage.RunRecord
	subs       []chan storage.RunRecord
	subscribed chan struct{}
}

func newFeedMock() *feedMock { return &feedMock{subscribed: make(chan struct{}, 8)} }

func (f *feedMock) Latest(ctx context.Context) (storage.RunRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.latest == nil {
		return storage.RunRecord{}, storage.ErrNotFound
	}
	return *f.latest, nil
}

func (f *feedMock) Subscribe() (<-chan storage.RunRecord, func()) {
	ch := make(chan storage.RunRecord, 1)
	f.mu.Lock()
	f.subs = append(f.subs, ch)
	f.mu.Unlock()
	f.subscribed <- struct{}{}
	return ch, func() {}
}

func (f *feedMock) publish(rec storage.RunRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		ch <- rec
	}
}

var errBoom = errors.New("boom")
