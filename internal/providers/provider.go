package providers

import (
	"fmt"
	"time"

	"github.com/you/go-flight-harvester/internal/config"
	"github.com/you/go-flight-harvester/internal/fetch"
	"github.com/you/go-flight-harvester/internal/flight"
	"github.com/you/go-flight-harvester/internal/mapping"
)

// Pax is the passenger mix of a search.
type Pax struct {
	Adults   int
	Children int
	Infants  int
}

func (p Pax) adults() int {
	if p.Adults < 1 {
		return 1
	}
	return p.Adults
}

// Query is one retrieval for a (route, date). Mode names the result ordering
// when a provider is searched more than once per route.
type Query struct {
	Mode string
	Op   fetch.Operation
}

// Adapter converts one provider's native responses into raw offers.
type Adapter interface {
	Name() string
	BuildQuery(route flight.Route, date time.Time, pax Pax) ([]Query, error)
	Parse(p fetch.Payload, m mapping.FieldMapping) ([]flight.RawOffer, []error)
	DefaultMapping() mapping.FieldMapping
}

// Kinds lists the adapter variants New understands.
var Kinds = []string{"booking", "amadeus", "duffel", "traveloka", "agoda"}

// New builds the adapter for cfg. Missing credentials or an unknown kind come
// back as a ConfigurationError so the provider is skipped for the run.
func New(cfg config.ProviderConfig) (Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Kind {
	case "booking":
		return NewBooking(cfg)
	case "amadeus":
		return NewAmadeus(cfg)
	case "duffel":
		return NewDuffel(cfg)
	case "traveloka":
		return NewTraveloka(cfg)
	case "agoda":
		return NewAgoda(cfg)
	}
	return nil, &flight.ConfigurationError{Provider: cfg.Name, Reason: fmt.Sprintf("unknown kind %q", cfg.Kind)}
}

func baseURL(cfg config.ProviderConfig, def string) string {
	if cfg.BaseURL != "" {
		return cfg.BaseURL
	}
	return def
}

func currency(cfg config.ProviderConfig, def string) string {
	if cfg.Currency != "" {
		return cfg.Currency
	}
	return def
}

func missing(cfg config.ProviderConfig, what string) error {
	return &flight.ConfigurationError{Provider: cfg.Name, Reason: "missing " + what}
}
