// Package dedup collapses offers sharing an identity key with a per-field
// last-write-wins merge.
package dedup

import (
	"github.com/you/go-flight-harvester/internal/flight"
)

// Merge returns one offer per (flight_code, departure_time, source, route)
// in first-seen order, with defaults applied. Merge(Merge(x)) == Merge(x).
func Merge(offers []flight.Offer) []flight.Offer {
	return collapse(offers, func(o flight.Offer) string { return o.Key().String() })
}

// Local collapses one adapter call's offers on (flight_code, departure_time);
// sort-mode passes of the same search repeat the same legs.
func Local(offers []flight.Offer) []flight.Offer {
	return collapse(offers, func(o flight.Offer) string {
		return o.FlightCode + "|" + flight.FormatTime(o.DepartureTime)
	})
}

func collapse(offers []flight.Offer, key func(flight.Offer) string) []flight.Offer {
	idx := make(map[string]int, len(offers))
	out := make([]flight.Offer, 0, len(offers))
	for _, o := range offers {
		k := key(o)
		if i, ok := idx[k]; ok {
			out[i] = overlay(out[i], o)
			continue
		}
		idx[k] = len(out)
		out = append(out, o)
	}
	for i := range out {
		out[i] = withDefaults(out[i])
	}
	return out
}

// overlay copies every non-empty field of next onto prev.
func overlay(prev, next flight.Offer) flight.Offer {
	str := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	str(&prev.FlightCode, next.FlightCode)
	str(&prev.Airline, next.Airline)
	str(&prev.DepartureAirport, next.DepartureAirport)
	str(&prev.ArrivalAirport, next.ArrivalAirport)
	str(&prev.Currency, next.Currency)
	str(&prev.Source, next.Source)
	str(&prev.Route, next.Route)
	str(&prev.AircraftType, next.AircraftType)
	str(&prev.BaggageInfo, next.BaggageInfo)
	str(&prev.MealInfo, next.MealInfo)
	str(&prev.SeatClass, next.SeatClass)
	str(&prev.BookingURL, next.BookingURL)

	if !next.DepartureTime.IsZero() {
		prev.DepartureTime = next.DepartureTime
	}
	if !next.ArrivalTime.IsZero() {
		prev.ArrivalTime = next.ArrivalTime
	}
	if next.DurationMinutes != 0 {
		prev.DurationMinutes = next.DurationMinutes
	}
	if next.Price != 0 {
		prev.Price = next.Price
	}
	if next.Stops != nil {
		prev.Stops = flight.IntPtr(*next.Stops)
	}
	if !next.ScrapedAt.IsZero() {
		prev.ScrapedAt = next.ScrapedAt
	}
	if prev.FirstSeenAt.IsZero() || (!next.FirstSeenAt.IsZero() && next.FirstSeenAt.Before(prev.FirstSeenAt)) {
		prev.FirstSeenAt = next.FirstSeenAt
	}
	return prev
}

func withDefaults(o flight.Offer) flight.Offer {
	if o.Currency == "" {
		o.Currency = flight.DefaultCurrency
	}
	if o.Stops == nil {
		o.Stops = flight.IntPtr(0)
	}
	return o
}
