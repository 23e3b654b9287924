package flight

import (
	"fmt"
	"strings"
	"time"
)

// TimeLayout is the canonical wall-clock layout of offer timestamps.
const TimeLayout = "2006-01-02 15:04:05"

// DefaultCurrency is applied to offers that carry no currency of their own.
const DefaultCurrency = "VND"

// RawOffer holds provider-native values keyed by the extraction rule that produced them.
type RawOffer map[string]any

// Route is one searched origin/destination pair.
type Route struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
}

func (r Route) String() string {
	return r.Origin + "-" + r.Destination
}

// ParseRoute accepts "SGN-HAN".
func ParseRoute(s string) (Route, error) {
	o, d, ok := strings.Cut(strings.ToUpper(strings.TrimSpace(s)), "-")
	if !ok || o == "" || d == "" {
		return Route{}, fmt.Errorf("bad route %q, want ORIGIN-DEST", s)
	}
	return Route{Origin: o, Destination: d}, nil
}

type Offer struct {
	FlightCode       string    `json:"flight_code"`
	Airline          string    `json:"airline"`
	DepartureAirport string    `json:"departure_airport"`
	ArrivalAirport   string    `json:"arrival_airport"`
	DepartureTime    time.Time `json:"departure_time"`
	ArrivalTime      time.Time `json:"arrival_time"`
	DurationMinutes  int       `json:"duration_minutes"`
	Price            float64   `json:"price"`
	Currency         string    `json:"currency"`
	Source           string    `json:"source"`
	Route            string    `json:"route"`
	Stops            *int      `json:"stops"`
	AircraftType     string    `json:"aircraft_type"`
	BaggageInfo      string    `json:"baggage_info"`
	MealInfo         string    `json:"meal_info"`
	SeatClass        string    `json:"seat_class"`
	BookingURL       string    `json:"booking_url"`
	ScrapedAt        time.Time `json:"scraped_at"`
	FirstSeenAt      time.Time `json:"first_seen_at,omitzero"`
}

// Key identifies one canonical offer for dedup and storage.
type Key struct {
	FlightCode    string
	DepartureTime string
	Source        string
	Route         string
}

func (o Offer) Key() Key {
	return Key{
		FlightCode:    o.FlightCode,
		DepartureTime: FormatTime(o.DepartureTime),
		Source:        o.Source,
		Route:         o.Route,
	}
}

func (k Key) String() string {
	return k.FlightCode + "|" + k.DepartureTime + "|" + k.Source + "|" + k.Route
}

// FormatTime renders t in TimeLayout, or "" for the zero time.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(TimeLayout)
}

// IntPtr is a small helper for the optional Stops field.
func IntPtr(v int) *int { return &v }
