package dedup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you/go-flight-harvester/internal/flight"
)

var dep = time.Date(2025, 11, 1, 8, 50, 0, 0, time.UTC)

func offer(code, source string, price float64) flight.Offer {
	return flight.Offer{
		FlightCode:       code,
		Airline:          "Vietnam Airlines",
		DepartureAirport: "SGN",
		ArrivalAirport:   "HAN",
		DepartureTime:    dep,
		ArrivalTime:      dep.Add(130 * time.Minute),
		DurationMinutes:  130,
		Price:            price,
		Source:           source,
		Route:            "SGN-HAN",
	}
}

func TestMergeDistinctSourcesSurvive(t *testing.T) {
	got := Merge([]flight.Offer{
		offer("VN203", "X", 1200000),
		offer("VN203", "Y", 1150000),
	})
	require.Len(t, got, 2)
	assert.Equal(t, "X", got[0].Source)
	assert.Equal(t, 1200000.0, got[0].Price)
	assert.Equal(t, "Y", got[1].Source)
	assert.Equal(t, 1150000.0, got[1].Price)
}

func TestMergeSameSourceLaterPriceWins(t *testing.T) {
	first := offer("VN203", "X", 1200000)
	first.AircraftType = "A321"
	later := offer("VN203", "X", 1150000)
	later.MealInfo = "Snack"

	got := Merge([]flight.Offer{first, later})
	require.Len(t, got, 1)
	assert.Equal(t, 1150000.0, got[0].Price)
	assert.Equal(t, "A321", got[0].AircraftType, "earlier field kept when later is empty")
	assert.Equal(t, "Snack", got[0].MealInfo)
}

func TestMergeDefaults(t *testing.T) {
	got := Merge([]flight.Offer{offer("VJ122", "X", 990000)})
	require.Len(t, got, 1)
	assert.Equal(t, "VND", got[0].Currency)
	require.NotNil(t, got[0].Stops)
	assert.Equal(t, 0, *got[0].Stops)
	assert.Equal(t, "", got[0].BaggageInfo)

	withStops := offer("VJ122", "X", 990000)
	withStops.Stops = flight.IntPtr(1)
	withStops.Currency = "USD"
	got = Merge([]flight.Offer{withStops})
	assert.Equal(t, 1, *got[0].Stops)
	assert.Equal(t, "USD", got[0].Currency)
}

func TestMergeIdempotentAndUnique(t *testing.T) {
	in := []flight.Offer{
		offer("VN203", "X", 1200000),
		offer("VJ122", "X", 900000),
		offer("VN203", "X", 1100000),
		offer("VN203", "Y", 1300000),
		offer("VJ122", "X", 0),
	}
	once := Merge(in)
	twice := Merge(once)
	require.Equal(t, once, twice)

	seen := map[flight.Key]bool{}
	for _, o := range once {
		require.False(t, seen[o.Key()], "duplicate key %v", o.Key())
		seen[o.Key()] = true
	}
	require.Len(t, once, 3)
	assert.Equal(t, "VN203", once[0].FlightCode, "first-seen order")
	assert.Equal(t, 1100000.0, once[0].Price)
	assert.Equal(t, 900000.0, once[1].Price, "zero price does not overwrite")
}

func TestLocalIgnoresSourceAndRoute(t *testing.T) {
	best := offer("VN203", "Booking.com", 1200000)
	cheapest := offer("VN203", "Booking.com", 1100000)
	other := offer("VN207", "Booking.com", 1500000)
	got := Local([]flight.Offer{best, other, cheapest})
	require.Len(t, got, 2)
	assert.Equal(t, 1100000.0, got[0].Price)
	assert.Equal(t, "VN207", got[1].FlightCode)
}

func TestMergeKeepsEarliestFirstSeen(t *testing.T) {
	a := offer("VN203", "X", 1)
	a.FirstSeenAt = dep.Add(-48 * time.Hour)
	b := offer("VN203", "X", 2)
	b.FirstSeenAt = dep.Add(-24 * time.Hour)
	got := Merge([]flight.Offer{a, b})
	assert.Equal(t, a.FirstSeenAt, got[0].FirstSeenAt)
}
