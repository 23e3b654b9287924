package service

import (
	"context"
	"sort"
	"time"

	"github.com/you/go-flight-harvester/internal/cache"
	"github.com/you/go-flight-harvester/internal/flight"
	"github.com/you/go-flight-harvester/internal/storage"
)

type OfferSet struct {
	Cheapest *flight.Offer  `json:"cheapest,omitempty"`
	Fastest  *flight.Offer  `json:"fastest,omitempty"`
	All      []flight.Offer `json:"all"`
}

// Offers returns the stored offers for route departing on date, served
// from the cache when it holds a fresh entry.
func (s *HarvestService) Offers(ctx context.Context, route flight.Route, date time.Time) (OfferSet, error) {
	key := cache.Key(route, date)
	if offers, ok := s.cache.Get(ctx, key); ok {
		return Summarize(offers), nil
	}
	offers, err := s.store.ListOffers(ctx, storage.OfferFilter{Route: route, Date: date})
	if err != nil {
		return OfferSet{}, err
	}
	s.cache.Set(ctx, key, offers)
	return Summarize(offers), nil
}

// Summarize orders offers by price, then duration, then departure, and
// picks the cheapest and the fastest.
func Summarize(offers []flight.Offer) OfferSet {
	all := append([]flight.Offer(nil), offers...)
	if len(all) == 0 {
		return OfferSet{All: []flight.Offer{}}
	}

	sortedByDuration := append([]flight.Offer(nil), all...)
	sort.SliceStable(sortedByDuration, func(i, j int) bool {
		return sortedByDuration[i].DurationMinutes < sortedByDuration[j].DurationMinutes
	})
	fastest := sortedByDuration[0]

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Price != all[j].Price {
			return all[i].Price < all[j].Price
		}
		if all[i].DurationMinutes != all[j].DurationMinutes {
			return all[i].DurationMinutes < all[j].DurationMinutes
		}
		return all[i].DepartureTime.Before(all[j].DepartureTime)
	})
	cheapest := all[0]

	return OfferSet{Cheapest: &cheapest, Fastest: &fastest, All: all}
}
