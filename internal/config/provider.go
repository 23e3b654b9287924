package config

import (
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/you/go-flight-harvester/internal/fetch"
	"github.com/you/go-flight-harvester/internal/flight"
	"github.com/you/go-flight-harvester/internal/mapping"
)

// ProviderConfig describes one offer source. It is read once per run and
// never mutated while the run is in flight.
type ProviderConfig struct {
	Name         string               `mapstructure:"name"`
	Kind         string               `mapstructure:"kind"`
	BaseURL      string               `mapstructure:"base_url"`
	RenderURL    string               `mapstructure:"render_url"`
	APIKey       string               `mapstructure:"api_key"`
	ClientID     string               `mapstructure:"client_id"`
	ClientSecret string               `mapstructure:"client_secret"`
	Token        string               `mapstructure:"token"`
	Active       bool                 `mapstructure:"active"`
	Timezone     string               `mapstructure:"timezone"`
	MaxAttempts  int                  `mapstructure:"max_attempts"`
	BaseDelay    time.Duration        `mapstructure:"base_delay"`
	Concurrency  int                  `mapstructure:"concurrency"`
	RatePerSec   float64              `mapstructure:"rate_per_sec"`
	Timeout      time.Duration        `mapstructure:"timeout"`
	SortModes    []string             `mapstructure:"sort_modes"`
	Currency     string               `mapstructure:"currency"`
	Cabin        string               `mapstructure:"cabin"`
	Headers      map[string]string    `mapstructure:"headers"`
	Mapping      mapping.FieldMapping `mapstructure:"mapping"`
}

// Validate reports the first problem as a ConfigurationError for this provider.
func (p ProviderConfig) Validate() error {
	bad := func(reason string) error {
		return &flight.ConfigurationError{Provider: p.Name, Reason: reason}
	}
	if strings.TrimSpace(p.Name) == "" {
		return bad("missing name")
	}
	if p.Kind == "" {
		return bad("missing kind")
	}
	for _, raw := range []string{p.BaseURL, p.RenderURL} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return bad("bad url " + raw)
		}
	}
	if _, err := p.Location(); err != nil {
		return bad("bad timezone " + p.Timezone)
	}
	if p.Concurrency < 0 || p.RatePerSec < 0 || p.MaxAttempts < 0 || p.BaseDelay < 0 {
		return bad("negative limits")
	}
	if p.Mapping != nil {
		if err := p.Mapping.Validate(); err != nil {
			return bad(err.Error())
		}
	}
	return nil
}

// Location is the provider's wall-clock zone; UTC when unset.
func (p ProviderConfig) Location() (*time.Location, error) {
	if p.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(p.Timezone)
}

func (p ProviderConfig) Policy() fetch.Policy {
	pol := fetch.DefaultPolicy()
	if p.MaxAttempts > 0 {
		pol.MaxAttempts = p.MaxAttempts
	}
	if p.BaseDelay > 0 {
		pol.BaseDelay = p.BaseDelay
	}
	return pol
}

// Limit is the number of units of this provider allowed in flight at once.
func (p ProviderConfig) Limit() int {
	if p.Concurrency <= 0 {
		return 2
	}
	return p.Concurrency
}

func (p ProviderConfig) RequestTimeout() time.Duration {
	if p.Timeout <= 0 {
		return 30 * time.Second
	}
	return p.Timeout
}

// expandSecrets resolves ${VAR} references in credential fields.
func (p *ProviderConfig) expandSecrets() {
	p.APIKey = os.ExpandEnv(p.APIKey)
	p.ClientID = os.ExpandEnv(p.ClientID)
	p.ClientSecret = os.ExpandEnv(p.ClientSecret)
	p.Token = os.ExpandEnv(p.Token)
	for k, v := range p.Headers {
		p.Headers[k] = os.ExpandEnv(v)
	}
}
