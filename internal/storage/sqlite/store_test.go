package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you/go-flight-harvester/internal/flight"
	"github.com/you/go-flight-harvester/internal/harvest"
	"github.com/you/go-flight-harvester/internal/storage"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "data", "harvester.db"))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, store.Close()) })
	return store
}

func offer(code string, dep time.Time, price float64, source string) flight.Offer {
	return flight.Offer{
		FlightCode:       code,
		Airline:          "Vietnam Airlines",
		DepartureAirport: "SGN",
		ArrivalAirport:   "HAN",
		DepartureTime:    dep,
		ArrivalTime:      dep.Add(130 * time.Minute),
		DurationMinutes:  130,
		Price:            price,
		Currency:         "VND",
		Source:           source,
		Route:            "SGN-HAN",
		Stops:            flight.IntPtr(0),
		ScrapedAt:        time.Date(2025, 10, 30, 9, 0, 0, 0, time.UTC),
	}
}

func TestUpsertPreservesFirstSeen(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	dep := time.Date(2025, 11, 1, 8, 50, 0, 0, time.UTC)

	n, err := store.Upsert(ctx, []flight.Offer{offer("VN203", dep, 1200000, "Booking.com")})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	later := offer("VN203", dep, 1150000, "Booking.com")
	later.ScrapedAt = time.Date(2025, 10, 31, 9, 0, 0, 0, time.UTC)
	later.SeatClass = "ECONOMY"
	_, err = store.Upsert(ctx, []flight.Offer{later, offer("VN203", dep, 1190000, "Agoda")})
	require.NoError(t, err)

	got, err := store.ListOffers(ctx, storage.OfferFilter{Route: flight.Route{Origin: "SGN", Destination: "HAN"}})
	require.NoError(t, err)
	require.Len(t, got, 2, "source is part of the key")

	b := got[0]
	assert.Equal(t, "Booking.com", b.Source)
	assert.Equal(t, 1150000.0, b.Price)
	assert.Equal(t, "ECONOMY", b.SeatClass)
	assert.Equal(t, "2025-10-31 09:00:00", flight.FormatTime(b.ScrapedAt))
	assert.Equal(t, "2025-10-30 09:00:00", flight.FormatTime(b.FirstSeenAt))
	assert.Equal(t, "2025-11-01 08:50:00", flight.FormatTime(b.DepartureTime))
	require.NotNil(t, b.Stops)
}

func TestListOffersFilters(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	d1 := time.Date(2025, 11, 1, 6, 0, 0, 0, time.UTC)
	d2 := time.Date(2025, 11, 2, 6, 0, 0, 0, time.UTC)
	_, err := store.Upsert(ctx, []flight.Offer{
		offer("VJ122", d1, 990000, "Agoda"),
		offer("VN203", d1, 1200000, "Booking.com"),
		offer("VN203", d2, 1000000, "Booking.com"),
	})
	require.NoError(t, err)

	got, err := store.ListOffers(ctx, storage.OfferFilter{Date: d1})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "VJ122", got[0].FlightCode, "cheapest first")

	got, err = store.ListOffers(ctx, storage.OfferFilter{Source: "Booking.com", Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1000000.0, got[0].Price)
}

func TestMonthlyAverages(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	_, err := store.Upsert(ctx, []flight.Offer{
		offer("VN203", time.Date(2025, 9, 3, 8, 0, 0, 0, time.UTC), 1000000, "A"),
		offer("VN205", time.Date(2025, 9, 4, 8, 0, 0, 0, time.UTC), 1500000, "A"),
		offer("VN207", time.Date(2025, 11, 1, 8, 0, 0, 0, time.UTC), 1200000, "A"),
		offer("VN209", time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC), 9000000, "A"),
	})
	require.NoError(t, err)

	got, err := store.MonthlyAverages(ctx, flight.Route{Origin: "SGN", Destination: "HAN"}, 6, time.Date(2025, 11, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, []storage.MonthPoint{
		{Month: "2025-09", AvgPrice: 1250000, Currency: "VND", Samples: 2},
		{Month: "2025-11", AvgPrice: 1200000, Currency: "VND", Samples: 1},
	}, got)
}

func TestAirports(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	got, err := store.ActiveAirports(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"SGN", "HAN", "DAD"}, got)

	require.NoError(t, store.SetAirport(ctx, "dad", "", "inactive"))
	require.NoError(t, store.SetAirport(ctx, "pqc", "Phu Quoc", "active"))
	got, err = store.ActiveAirports(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"SGN", "HAN", "PQC"}, got)
}

func TestRuns(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.LatestRun(ctx)
	require.ErrorIs(t, err, storage.ErrNotFound)

	first := storage.RunRecord{Summary: harvest.Summary{
		RunID: "r1", State: harvest.StateDone, StartedAt: time.Date(2025, 10, 30, 6, 0, 0, 0, time.UTC), Units: 4, Accepted: 10,
	}}
	second := storage.RunRecord{Summary: harvest.Summary{
		RunID: "r2", State: harvest.StatePartialFailure, StartedAt: time.Date(2025, 10, 30, 12, 0, 0, 0, time.UTC), Units: 4, Failed: 4,
	}, Error: "boom"}
	require.NoError(t, store.RecordRun(ctx, first))
	require.NoError(t, store.RecordRun(ctx, second))

	got, err := store.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, "r2", got.RunID)
	assert.Equal(t, harvest.StatePartialFailure, got.State)
	assert.Equal(t, 4, got.Failed)
	assert.Equal(t, "boom", got.Error)
	assert.True(t, got.StartedAt.Equal(second.StartedAt))
}

func TestReopenSkipsAppliedMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h.db")
	s, err := NewStore(path)
	require.NoError(t, err)
	require.NoError(t, s.SetAirport(context.Background(), "SGN", "", "INACTIVE"))
	require.NoError(t, s.Close())

	s, err = NewStore(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.ActiveAirports(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"HAN", "DAD"}, got)
}
