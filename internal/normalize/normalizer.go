package normalize

import (
	"strings"
	"time"

	"github.com/you/go-flight-harvester/internal/flight"
	"github.com/you/go-flight-harvester/internal/mapping"
)

// Context is what the normalizer knows about the search that produced a raw offer.
type Context struct {
	Source     string
	Route      flight.Route
	SearchDate time.Time
	Location   *time.Location
	Now        func() time.Time
}

func (c Context) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// ContextValue implements mapping.Lookup.
func (c Context) ContextValue(name string) string {
	switch name {
	case "origin":
		return c.Route.Origin
	case "destination":
		return c.Route.Destination
	case "date":
		if c.SearchDate.IsZero() {
			return ""
		}
		return c.SearchDate.Format("2006-01-02")
	}
	return ""
}

type Normalizer struct{}

func New() *Normalizer { return &Normalizer{} }

// Normalize resolves every field of m against raw. Unparseable values stay
// empty; the validator decides what that means.
func (n *Normalizer) Normalize(raw flight.RawOffer, m mapping.FieldMapping, c Context) flight.Offer {
	text := func(field string) string {
		v, ok := m.Resolve(field, raw, c)
		if !ok {
			return ""
		}
		s, _ := Text(v)
		return s
	}

	o := flight.Offer{
		Airline:          text(mapping.FieldAirline),
		DepartureAirport: strings.ToUpper(text(mapping.FieldDepartureAirport)),
		ArrivalAirport:   strings.ToUpper(text(mapping.FieldArrivalAirport)),
		Currency:         strings.ToUpper(text(mapping.FieldCurrency)),
		AircraftType:     text(mapping.FieldAircraftType),
		BaggageInfo:      text(mapping.FieldBaggageInfo),
		MealInfo:         text(mapping.FieldMealInfo),
		SeatClass:        text(mapping.FieldSeatClass),
		BookingURL:       text(mapping.FieldBookingURL),
		Source:           c.Source,
		Route:            c.Route.String(),
	}

	if v, ok := m.Resolve(mapping.FieldPrice, raw, c); ok {
		o.Price, _ = Price(v)
	}
	if v, ok := m.Resolve(mapping.FieldDepartureTime, raw, c); ok {
		o.DepartureTime, _ = DateTime(v, c)
	}
	if v, ok := m.Resolve(mapping.FieldArrivalTime, raw, c); ok {
		o.ArrivalTime, _ = DateTime(v, c)
	}
	if !o.DepartureTime.IsZero() && !o.ArrivalTime.IsZero() && o.ArrivalTime.Before(o.DepartureTime) {
		o.ArrivalTime = o.ArrivalTime.AddDate(0, 0, 1)
	}

	dur, ok := 0, false
	if v, found := m.Resolve(mapping.FieldDuration, raw, c); found {
		dur, ok = Duration(v, m[mapping.FieldDuration].Unit)
	}
	if !ok && !o.DepartureTime.IsZero() && !o.ArrivalTime.IsZero() {
		dur = int(o.ArrivalTime.Sub(o.DepartureTime) / time.Minute)
	}
	o.DurationMinutes = dur

	if v, ok := m.Resolve(mapping.FieldStops, raw, c); ok {
		if s, ok := Stops(v); ok {
			o.Stops = flight.IntPtr(s)
		}
	}

	o.FlightCode = flightCode(
		text(mapping.FieldFlightCode),
		text(mapping.FieldAirlineCode),
		text(mapping.FieldFlightNumber),
		o.Airline,
		o.DepartureTime,
	)

	if o.DepartureAirport == "" {
		o.DepartureAirport = c.Route.Origin
	}
	if o.ArrivalAirport == "" {
		o.ArrivalAirport = c.Route.Destination
	}

	if c.Now != nil {
		o.ScrapedAt = c.Now().In(c.location()).Truncate(time.Second)
	} else {
		o.ScrapedAt = time.Now().In(c.location()).Truncate(time.Second)
	}
	return o
}

// Missing lists required fields that are absent or fail to parse.
func (n *Normalizer) Missing(raw flight.RawOffer, m mapping.FieldMapping, c Context) []string {
	var out []string
	for name, spec := range m {
		if !spec.Required {
			continue
		}
		v, ok := m.Resolve(name, raw, c)
		if ok {
			if spec.Type == mapping.Duration {
				_, ok = Duration(v, spec.Unit)
			} else {
				_, ok = Parse(spec.Type, v, c)
			}
		}
		if !ok {
			out = append(out, name)
		}
	}
	return out
}

func flightCode(code, airlineCode, number, airline string, dep time.Time) string {
	if code != "" {
		return strings.ToUpper(strings.ReplaceAll(code, " ", ""))
	}
	if airlineCode != "" && number != "" {
		number = strings.TrimPrefix(strings.ToUpper(number), strings.ToUpper(airlineCode))
		return strings.ToUpper(airlineCode) + strings.TrimSpace(number)
	}
	if airline != "" && !dep.IsZero() {
		first, _, _ := strings.Cut(airline, " ")
		return strings.ToUpper(first) + "-" + dep.Format("1504")
	}
	return ""
}
