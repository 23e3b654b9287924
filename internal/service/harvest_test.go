package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you/go-flight-harvester/internal/flight"
	"github.com/you/go-flight-harvester/internal/harvest"
	"github.com/you/go-flight-harvester/internal/storage"
)

var (
	route = flight.Route{Origin: "SGN", Destination: "HAN"}
	day   = time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)
)

func offer(code string, price float64, minutes int, dep time.Time) flight.Offer {
	return flight.Offer{
		FlightCode:      code,
		Airline:         "Vietnam Airlines",
		Route:           route.String(),
		Source:          "Agoda",
		Price:           price,
		Currency:        "VND",
		DurationMinutes: minutes,
		DepartureTime:   dep,
		ArrivalTime:     dep.Add(time.Duration(minutes) * time.Minute),
	}
}

func sampleOffers() []flight.Offer {
	return []flight.Offer{
		offer("VN203", 1200000, 130, day.Add(9*time.Hour)),
		offer("VJ122", 990000, 125, day.Add(6*time.Hour)),
		offer("QH243", 1050000, 120, day.Add(12*time.Hour)),
	}
}

func TestRunWritesEverySinkAndRecordsRun(t *testing.T) {
	store := newStoreMock()
	var csvCount int32
	svc := NewHarvestService(HarvesterMock{offers: sampleOffers()}, store,
		WithSink("csv", sinkMock{count: &csvCount}))

	rep, err := svc.Run(context.Background(), harvest.Request{})
	require.NoError(t, err)
	assert.Len(t, rep.Offers, 3)
	assert.Len(t, store.offers, 3)
	assert.Equal(t, int32(3), atomic.LoadInt32(&csvCount))

	latest, err := svc.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run-1", latest.RunID)
	assert.Equal(t, 3, latest.Accepted)
	assert.Empty(t, latest.Error)
}

func TestRunSinkFailureKeepsOthers(t *testing.T) {
	store := newStoreMock()
	svc := NewHarvestService(HarvesterMock{offers: sampleOffers()}, store,
		WithSink("kafka", sinkMock{err: errors.New("broker down")}))

	rep, err := svc.Run(context.Background(), harvest.Request{})
	require.Error(t, err)
	require.NotNil(t, rep)
	assert.Contains(t, err.Error(), "kafka: broker down")
	assert.Len(t, store.offers, 3)
	require.Len(t, store.runs, 1)
	assert.Contains(t, store.runs[0].Error, "broker down")
}

func TestRunHarvesterError(t *testing.T) {
	store := newStoreMock()
	svc := NewHarvestService(HarvesterMock{errorOutMessage: valToPtr("harvest: no usable provider")}, store)

	_, err := svc.Run(context.Background(), harvest.Request{})
	require.Error(t, err)
	require.Len(t, store.runs, 1)
	assert.Equal(t, harvest.StatePartialFailure, store.runs[0].State)
	assert.Equal(t, "harvest: no usable provider", store.runs[0].Error)
}

func TestRunRejectsConcurrentRun(t *testing.T) {
	var calls int32
	svc := NewHarvestService(HarvesterMock{delay: 200 * time.Millisecond, callCount: &calls}, newStoreMock())

	done := make(chan error, 1)
	go func() {
		_, err := svc.Run(context.Background(), harvest.Request{})
		done <- err
	}()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, 5*time.Millisecond)

	_, err := svc.Run(context.Background(), harvest.Request{})
	assert.ErrorIs(t, err, ErrRunInProgress)
	require.NoError(t, <-done)
}

func TestSubscribersReceiveRuns(t *testing.T) {
	svc := NewHarvestService(HarvesterMock{offers: sampleOffers()}, newStoreMock())
	ch, cancel := svc.Subscribe()
	defer cancel()

	_, err := svc.Run(context.Background(), harvest.Request{})
	require.NoError(t, err)

	select {
	case rec := <-ch:
		assert.Equal(t, "run-1", rec.RunID)
		assert.Equal(t, harvest.StateDone, rec.State)
	case <-time.After(time.Second):
		t.Fatal("no run record delivered")
	}

	cancel()
	_, ok := <-ch
	assert.False(t, ok)
}

func TestLatestEmpty(t *testing.T) {
	svc := NewHarvestService(HarvesterMock{}, newStoreMock())
	_, err := svc.Latest(context.Background())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestScheduleRunsImmediatelyAndOnTicker(t *testing.T) {
	var calls int32
	svc := NewHarvestService(HarvesterMock{callCount: &calls}, newStoreMock())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go svc.Schedule(ctx, 20*time.Millisecond, func() harvest.Request { return harvest.Request{} })
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 3 }, time.Second, 5*time.Millisecond)
}

func TestSearchDates(t *testing.T) {
	now := time.Date(2025, 10, 30, 23, 10, 0, 0, time.FixedZone("ICT", 7*3600))
	dates := SearchDates(now, 2, 3)
	require.Len(t, dates, 3)
	assert.Equal(t, "2025-11-01", dates[0].Format("2006-01-02"))
	assert.Equal(t, "2025-11-03", dates[2].Format("2006-01-02"))

	assert.Len(t, SearchDates(now, 0, 0), 1)
}
