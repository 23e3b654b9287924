package config

import (
	"context"
	"fmt"

	"github.com/you/go-flight-harvester/internal/flight"
	"github.com/you/go-flight-harvester/internal/mapping"
)

// Catalog serves provider settings and airports from a loaded Config.
type Catalog struct {
	providers []ProviderConfig
	airports  []string
}

func NewCatalog(cfg *Config) *Catalog {
	ps := make([]ProviderConfig, len(cfg.Providers))
	copy(ps, cfg.Providers)
	return &Catalog{providers: ps, airports: append([]string(nil), cfg.Airports...)}
}

// ActiveProviders returns copies of every active provider, valid or not.
// Callers validate each entry and skip the broken ones.
func (c *Catalog) ActiveProviders(ctx context.Context) ([]ProviderConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []ProviderConfig
	for _, p := range c.providers {
		if p.Active {
			out = append(out, p)
		}
	}
	return out, nil
}

// All returns every configured provider, active or not.
func (c *Catalog) All() []ProviderConfig {
	return append([]ProviderConfig(nil), c.providers...)
}

// FieldMapping returns the provider's mapping override, which may be nil.
func (c *Catalog) FieldMapping(ctx context.Context, provider string) (mapping.FieldMapping, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, p := range c.providers {
		if p.Name == provider {
			return p.Mapping, nil
		}
	}
	return nil, &flight.ConfigurationError{Provider: provider, Reason: "not configured"}
}

func (c *Catalog) ActiveAirports(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(c.airports) == 0 {
		return nil, fmt.Errorf("no airports configured")
	}
	return append([]string(nil), c.airports...), nil
}
