// Package cache keeps the latest offers per route and departure date.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/you/go-flight-harvester/internal/flight"
)

// Cache is best-effort: a miss or a backend error both read as a miss.
type Cache interface {
	Get(ctx context.Context, key string) ([]flight.Offer, bool)
	Set(ctx context.Context, key string, offers []flight.Offer)
}

func Key(route flight.Route, date time.Time) string {
	return "offers:" + route.String() + ":" + date.Format("2006-01-02")
}

type entry struct {
	value     []flight.Offer
	expiresAt time.Time
}

// Memory is an in-process TTL cache.
type Memory struct {
	mu    sync.RWMutex
	items map[string]entry
	ttl   time.Duration
	now   func() time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{items: make(map[string]entry), ttl: ttl, now: time.Now}
}

func (m *Memory) Get(_ context.Context, key string) ([]flight.Offer, bool) {
	m.mu.RLock()
	e, ok := m.items[key]
	m.mu.RUnlock()
	if !ok || !m.now().Before(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

func (m *Memory) Set(_ context.Context, key string, offers []flight.Offer) {
	if m.ttl <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for k, e := range m.items {
		if !now.Before(e.expiresAt) {
			delete(m.items, k)
		}
	}
	m.items[key] = entry{value: append([]flight.Offer(nil), offers...), expiresAt: now.Add(m.ttl)}
}

// Group splits offers by Key so a harvest can refresh every touched entry.
func Group(offers []flight.Offer) map[string][]flight.Offer {
	out := make(map[string][]flight.Offer)
	for _, o := range offers {
		r, err := flight.ParseRoute(o.Route)
		if err != nil {
			continue
		}
		k := Key(r, o.DepartureTime)
		out[k] = append(out[k], o)
	}
	return out
}
