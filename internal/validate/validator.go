package validate

import (
	"math"
	"time"

	"github.com/you/go-flight-harvester/internal/flight"
)

// Validate reports the first rule o breaks, or nil.
func Validate(o flight.Offer) error {
	for _, f := range []struct {
		name, value string
	}{
		{"flight_code", o.FlightCode},
		{"airline", o.Airline},
		{"departure_airport", o.DepartureAirport},
		{"arrival_airport", o.ArrivalAirport},
		{"source", o.Source},
	} {
		if f.value == "" {
			return &flight.ValidationError{Reason: flight.ReasonMissingField, Field: f.name}
		}
	}

	if o.Price <= 0 || math.IsNaN(o.Price) || math.IsInf(o.Price, 0) {
		return &flight.ValidationError{Reason: flight.ReasonInvalidPrice, Field: "price"}
	}

	if !canonical(o.DepartureTime) {
		return &flight.ValidationError{Reason: flight.ReasonInvalidTimestamp, Field: "departure_time"}
	}
	if !canonical(o.ArrivalTime) {
		return &flight.ValidationError{Reason: flight.ReasonInvalidTimestamp, Field: "arrival_time"}
	}
	if o.ArrivalTime.Before(o.DepartureTime) {
		return &flight.ValidationError{Reason: flight.ReasonInvalidTimestamp, Field: "arrival_time"}
	}
	if o.DurationMinutes < 0 {
		return &flight.ValidationError{Reason: flight.ReasonInvalidTimestamp, Field: "duration_minutes"}
	}
	return nil
}

// canonical holds when t is set, has second precision and survives a round
// trip through the canonical layout.
func canonical(t time.Time) bool {
	if t.IsZero() || t.Nanosecond() != 0 {
		return false
	}
	s := t.Format(flight.TimeLayout)
	back, err := time.ParseInLocation(flight.TimeLayout, s, t.Location())
	return err == nil && back.Equal(t)
}
