package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/you/go-flight-harvester/internal/flight"
	"github.com/you/go-flight-harvester/internal/mapping"
)

const sample = `
airports: [sgn, han, dad]
harvest_timeout: 90s
storage:
  driver: sqlite
  sqlite_path: /tmp/offers.db
kafka:
  brokers: ["localhost:9092"]
providers:
  - name: Booking.com
    kind: booking
    base_url: https://booking-com15.p.rapidapi.com
    api_key: ${TEST_RAPID_KEY}
    active: true
    timezone: Asia/Ho_Chi_Minh
    concurrency: 3
    rate_per_sec: 1.5
    base_delay: 1s
    sort_modes: [BEST, CHEAPEST]
  - name: Traveloka
    kind: traveloka
    active: true
    mapping:
      airline:
        type: text
        required: true
        rules:
          - {kind: css, expr: "div.airline"}
          - {kind: css, expr: "span.carrier"}
  - name: Agoda
    kind: agoda
    active: false
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "harvester.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	t.Setenv("TEST_RAPID_KEY", "secret")
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	require.Equal(t, []string{"SGN", "HAN", "DAD"}, cfg.Airports)
	require.Equal(t, 90*time.Second, cfg.HarvestTimeout)
	require.Equal(t, 30*time.Second, cfg.CacheTTL, "default kept")
	require.Equal(t, 2, cfg.DaysAhead)
	require.Equal(t, "/tmp/offers.db", cfg.Storage.SQLitePath)
	require.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	require.Len(t, cfg.Providers, 3)

	b := cfg.Providers[0]
	require.Equal(t, "secret", b.APIKey)
	require.Equal(t, time.Second, b.BaseDelay)
	require.Equal(t, 3, b.Limit())
	require.Equal(t, []string{"BEST", "CHEAPEST"}, b.SortModes)
	require.NoError(t, b.Validate())
	loc, err := b.Location()
	require.NoError(t, err)
	require.Equal(t, "Asia/Ho_Chi_Minh", loc.String())
	require.Equal(t, time.Second, b.Policy().BaseDelay)
	require.Equal(t, 3, b.Policy().MaxAttempts)

	tv := cfg.Providers[1]
	require.Len(t, tv.Mapping[mapping.FieldAirline].Rules, 2)
	require.Equal(t, mapping.KindCSS, tv.Mapping[mapping.FieldAirline].Rules[1].Kind)
	require.True(t, tv.Mapping[mapping.FieldAirline].Required)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadBadDuration(t *testing.T) {
	_, err := Load(writeConfig(t, "cache_ttl: soon\n"))
	require.Error(t, err)
}

func TestProviderValidate(t *testing.T) {
	cases := map[string]ProviderConfig{
		"no name":    {Kind: "booking"},
		"no kind":    {Name: "x"},
		"bad url":    {Name: "x", Kind: "booking", BaseURL: "::nope"},
		"bad zone":   {Name: "x", Kind: "booking", Timezone: "Mars/Olympus"},
		"negative":   {Name: "x", Kind: "booking", Concurrency: -1},
		"bad rules":  {Name: "x", Kind: "booking", Mapping: mapping.FieldMapping{"price": {}}},
	}
	for name, p := range cases {
		err := p.Validate()
		require.Error(t, err, name)
		require.True(t, errors.Is(err, flight.ErrConfiguration), name)
	}
}

func TestCatalog(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	c := NewCatalog(cfg)
	ctx := context.Background()

	active, err := c.ActiveProviders(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	require.Len(t, c.All(), 3)

	m, err := c.FieldMapping(ctx, "Traveloka")
	require.NoError(t, err)
	require.Contains(t, m, mapping.FieldAirline)

	m, err = c.FieldMapping(ctx, "Booking.com")
	require.NoError(t, err)
	require.Nil(t, m)

	_, err = c.FieldMapping(ctx, "Expedia")
	require.ErrorIs(t, err, flight.ErrConfiguration)

	airports, err := c.ActiveAirports(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"SGN", "HAN", "DAD"}, airports)

	_, err = NewCatalog(&Config{}).ActiveAirports(ctx)
	require.Error(t, err)
}
