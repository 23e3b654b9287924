package harvest

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/you/go-flight-harvester/internal/config"
	"github.com/you/go-flight-harvester/internal/fetch"
	"github.com/you/go-flight-harvester/internal/flight"
	"github.com/you/go-flight-harvester/internal/mapping"
	"github.com/you/go-flight-harvester/internal/providers"
)

// AdapterMock serves canned raw offers keyed by "ORIGIN-DEST" or
// "ORIGIN-DEST/MODE" when modes are set.
type AdapterMock struct {
	name       string
	modes      []string
	offers     map[string][]flight.RawOffer
	parseErrs  map[string][]error
	failRoutes map[string]string
	delay      time.Duration
	callCount  *int32
	inFlight   *int32
	peak       *int32
}

func (a AdapterMock) Name() string { return a.name }

func (a AdapterMock) BuildQuery(route flight.Route, date time.Time, pax providers.Pax) ([]providers.Query, error) {
	modes := a.modes
	if len(modes) == 0 {
		modes = []string{""}
	}
	qs := make([]providers.Query, 0, len(modes))
	for _, mode := range modes {
		key := route.String()
		if mode != "" {
			key += "/" + mode
		}
		qs = append(qs, providers.Query{Mode: mode, Op: a.op(route.String(), key)})
	}
	return qs, nil
}

func (a AdapterMock) op(route, key string) fetch.Operation {
	return func(ctx context.Context) (fetch.Payload, error) {
		if a.callCount != nil {
			atomic.AddInt32(a.callCount, 1)
		}
		if a.inFlight != nil {
			n := atomic.AddInt32(a.inFlight, 1)
			defer atomic.AddInt32(a.inFlight, -1)
			for {
				p := atomic.LoadInt32(a.peak)
				if n <= p || atomic.CompareAndSwapInt32(a.peak, p, n) {
					break
				}
			}
		}
		if msg, ok := a.failRoutes[route]; ok {
			return fetch.Payload{}, &flight.TransportError{Provider: a.name, Status: 503, Err: errors.New(msg)}
		}
		if a.delay > 0 {
			select {
			case <-time.After(a.delay):
			case <-ctx.Done():
				return fetch.Payload{}, ctx.Err()
			}
		}
		return fetch.Payload{Body: []byte(key), Status: 200}, nil
	}
}

func (a AdapterMock) Parse(p fetch.Payload, m mapping.FieldMapping) ([]flight.RawOffer, []error) {
	key := string(p.Body)
	return a.offers[key], a.parseErrs[key]
}

func (a AdapterMock) DefaultMapping() mapping.FieldMapping {
	return mapping.FieldMapping{
		mapping.FieldFlightCode:       {Rules: []mapping.Rule{mapping.Path("code")}},
		mapping.FieldAirline:          {Required: true, Rules: []mapping.Rule{mapping.Path("airline")}},
		mapping.FieldDepartureTime:    {Required: true, Rules: []mapping.Rule{mapping.Path("dep")}},
		mapping.FieldArrivalTime:      {Required: true, Rules: []mapping.Rule{mapping.Path("arr")}},
		mapping.FieldPrice:            {Required: true, Rules: []mapping.Rule{mapping.Path("price")}},
		mapping.FieldDepartureAirport: {Rules: []mapping.Rule{mapping.Context("origin")}},
		mapping.FieldArrivalAirport:   {Rules: []mapping.Rule{mapping.Context("destination")}},
	}.WithDefaults()
}

func raw(code, dep, arr string, price any) flight.RawOffer {
	return flight.RawOffer{
		mapping.Path("code").Key():    code,
		mapping.Path("airline").Key(): "Vietnam Airlines",
		mapping.Path("dep").Key():     dep,
		mapping.Path("arr").Key():     arr,
		mapping.Path("price").Key():   price,
	}
}

type catalogMock struct {
	cfgs      []config.ProviderConfig
	overrides map[string]mapping.FieldMapping
	err       error
}

func (c catalogMock) ActiveProviders(ctx context.Context) ([]config.ProviderConfig, error) {
	return c.cfgs, c.err
}

func (c catalogMock) FieldMapping(ctx context.Context, provider string) (mapping.FieldMapping, error) {
	return c.overrides[provider], nil
}

type airportsMock []string

func (a airportsMock) ActiveAirports(ctx context.Context) ([]string, error) {
	if len(a) == 0 {
		return nil, errors.New("no airports")
	}
	return a, nil
}

// factory returns the mock registered under the provider's name.
func factory(mocks ...AdapterMock) AdapterFactory {
	byName := make(map[string]AdapterMock, len(mocks))
	for _, m := range mocks {
		byName[m.name] = m
	}
	return func(cfg config.ProviderConfig) (providers.Adapter, error) {
		m, ok := byName[cfg.Name]
		if !ok {
			return nil, &flight.ConfigurationError{Provider: cfg.Name, Reason: "unknown kind"}
		}
		return m, nil
	}
}

func fastPolicy(config.ProviderConfig) fetch.Policy {
	return fetch.Policy{
		MaxAttempts: 2,
		BaseDelay:   time.Millisecond,
		Jitter:      func() time.Duration { return 0 },
		Sleep:       fetch.SleepContext,
	}
}
