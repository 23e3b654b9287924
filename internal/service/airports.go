package service

import (
	"context"
	"errors"

	"github.com/you/go-flight-harvester/internal/harvest"
)

// AirportChain asks each source in turn and returns the first non-empty
// airport list. A source error is returned only if no later source answers.
type AirportChain []harvest.Airports

func (c AirportChain) ActiveAirports(ctx context.Context) ([]string, error) {
	var errs []error
	for _, src := range c {
		codes, err := src.ActiveAirports(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if len(codes) > 0 {
			return codes, nil
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return nil, errors.New("no active airports")
}
