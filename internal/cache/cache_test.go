package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you/go-flight-harvester/internal/flight"
)

var (
	route = flight.Route{Origin: "SGN", Destination: "HAN"}
	day   = time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)
)

func TestMemoryExpires(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(30 * time.Second)
	now := day
	m.now = func() time.Time { return now }

	key := Key(route, day)
	assert.Equal(t, "offers:SGN-HAN:2025-11-01", key)
	m.Set(ctx, key, []flight.Offer{{FlightCode: "VN203"}})

	got, ok := m.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, "VN203", got[0].FlightCode)

	now = now.Add(31 * time.Second)
	_, ok = m.Get(ctx, key)
	assert.False(t, ok)
}

func TestMemoryZeroTTLDisables(t *testing.T) {
	m := NewMemory(0)
	m.Set(context.Background(), "k", []flight.Offer{{FlightCode: "VN203"}})
	_, ok := m.Get(context.Background(), "k")
	assert.False(t, ok)
}

func TestGroup(t *testing.T) {
	dep := time.Date(2025, 11, 1, 6, 0, 0, 0, time.UTC)
	groups := Group([]flight.Offer{
		{FlightCode: "VJ122", Route: "SGN-HAN", DepartureTime: dep},
		{FlightCode: "VN203", Route: "SGN-HAN", DepartureTime: dep.Add(3 * time.Hour)},
		{FlightCode: "QH243", Route: "HAN-DAD", DepartureTime: dep},
		{FlightCode: "XX", Route: "garbage"},
	})
	assert.Len(t, groups, 2)
	assert.Len(t, groups["offers:SGN-HAN:2025-11-01"], 2)
	assert.Len(t, groups["offers:HAN-DAD:2025-11-01"], 1)
}

func TestRedisRoundTrip(t *testing.T) {
	addr := os.Getenv("HARVESTER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("HARVESTER_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	r, err := NewRedis(ctx, &redis.Options{Addr: addr}, time.Minute, nil)
	require.NoError(t, err)
	defer r.Close()

	key := Key(route, day) + ":test"
	r.Set(ctx, key, []flight.Offer{{FlightCode: "VN203", Price: 1200000}})
	got, ok := r.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, 1200000.0, got[0].Price)

	_, ok = r.Get(ctx, key+":missing")
	assert.False(t, ok)
}
