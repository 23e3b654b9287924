package harvest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/you/go-flight-harvester/internal/config"
	"github.com/you/go-flight-harvester/internal/flight"
	"github.com/you/go-flight-harvester/internal/mapping"
	"github.com/you/go-flight-harvester/internal/providers"
	"github.com/you/go-flight-harvester/internal/routes"
)

// ErrNoProviders is returned when every configured provider was skipped.
var ErrNoProviders = errors.New("harvest: no usable provider")

// Catalog is the configuration collaborator.
type Catalog interface {
	ActiveProviders(ctx context.Context) ([]config.ProviderConfig, error)
	FieldMapping(ctx context.Context, provider string) (mapping.FieldMapping, error)
}

// Airports is the route/airport collaborator.
type Airports interface {
	ActiveAirports(ctx context.Context) ([]string, error)
}

type AdapterFactory func(cfg config.ProviderConfig) (providers.Adapter, error)

// Request narrows a run. Zero values mean every active provider, the
// cartesian route set of the active airports, and today.
type Request struct {
	Sources []string
	Routes  []flight.Route
	Dates   []time.Time
	Pax     providers.Pax
}

// Provider is one usable entry of the read-only provider table of a run.
type Provider struct {
	Config   config.ProviderConfig
	Adapter  providers.Adapter
	Mapping  mapping.FieldMapping
	Location *time.Location
}

type Plan struct {
	Providers []Provider
	Routes    []flight.Route
	Dates     []time.Time
	Pax       providers.Pax
	Skipped   []Skip
}

// Units is the number of (provider, route, date) retrievals in the plan.
func (p *Plan) Units() int { return len(p.Providers) * len(p.Routes) * len(p.Dates) }

// Prepare builds the provider table for one run. Providers with broken
// configuration are skipped and listed in Plan.Skipped; only collaborator
// failures are returned as errors.
func (c *Coordinator) Prepare(ctx context.Context, req Request) (*Plan, error) {
	cfgs, err := c.catalog.ActiveProviders(ctx)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}

	plan := &Plan{Pax: req.Pax}
	for _, cfg := range cfgs {
		if !wanted(req.Sources, cfg.Name) {
			continue
		}
		p, err := c.provider(ctx, cfg)
		if err != nil {
			var ce *flight.ConfigurationError
			if !errors.As(err, &ce) {
				return nil, fmt.Errorf("provider %s: %w", cfg.Name, err)
			}
			c.log.Warn("provider skipped", "provider", cfg.Name, "reason", ce.Reason)
			plan.Skipped = append(plan.Skipped, Skip{Provider: cfg.Name, Reason: ce.Reason})
			continue
		}
		plan.Providers = append(plan.Providers, p)
	}
	if len(plan.Providers) == 0 {
		return plan, ErrNoProviders
	}

	plan.Routes = req.Routes
	if len(plan.Routes) == 0 {
		if c.airports == nil {
			return nil, errors.New("no routes and no airport source")
		}
		codes, err := c.airports.ActiveAirports(ctx)
		if err != nil {
			return nil, fmt.Errorf("list airports: %w", err)
		}
		plan.Routes = routes.Cartesian(codes)
	}

	plan.Dates = req.Dates
	if len(plan.Dates) == 0 {
		now := c.now()
		plan.Dates = []time.Time{time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)}
	}
	return plan, nil
}

func (c *Coordinator) provider(ctx context.Context, cfg config.ProviderConfig) (Provider, error) {
	a, err := c.factory(cfg)
	if err != nil {
		return Provider{}, err
	}
	override, err := c.catalog.FieldMapping(ctx, cfg.Name)
	if err != nil {
		return Provider{}, err
	}
	m := a.DefaultMapping().Merge(override).WithDefaults()
	if err := m.Validate(); err != nil {
		return Provider{}, &flight.ConfigurationError{Provider: cfg.Name, Reason: err.Error()}
	}
	loc, err := cfg.Location()
	if err != nil {
		return Provider{}, &flight.ConfigurationError{Provider: cfg.Name, Reason: "bad timezone " + cfg.Timezone}
	}
	return Provider{Config: cfg, Adapter: a, Mapping: m, Location: loc}, nil
}

func wanted(sources []string, name string) bool {
	if len(sources) == 0 {
		return true
	}
	for _, s := range sources {
		if strings.EqualFold(s, name) {
			return true
		}
	}
	return false
}
