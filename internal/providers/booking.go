package providers

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/you/go-flight-harvester/internal/config"
	"github.com/you/go-flight-harvester/internal/fetch"
	"github.com/you/go-flight-harvester/internal/flight"
	"github.com/you/go-flight-harvester/internal/mapping"
)

// Booking searches Booking.com flights through RapidAPI, once per sort mode.
type Booking struct {
	name        string
	baseURL     string
	path        string
	rapidApiKey string
	sorts       []string
	currency    string
	cabin       string
	http        *fetch.HTTPTransport
}

func NewBooking(cfg config.ProviderConfig) (*Booking, error) {
	if cfg.APIKey == "" {
		return nil, missing(cfg, "api key")
	}
	sorts := cfg.SortModes
	if len(sorts) == 0 {
		sorts = []string{"BEST", "CHEAPEST", "FASTEST"}
	}
	cabin := cfg.Cabin
	if cabin == "" {
		cabin = "ECONOMY"
	}
	return &Booking{
		name:        cfg.Name,
		baseURL:     strings.TrimRight(baseURL(cfg, "https://booking-com15.p.rapidapi.com"), "/"),
		path:        "/api/v1/flights/searchFlights",
		rapidApiKey: cfg.APIKey,
		sorts:       sorts,
		currency:    currency(cfg, flight.DefaultCurrency),
		cabin:       cabin,
		http:        fetch.NewHTTPTransport(cfg.Name, cfg.RequestTimeout()),
	}, nil
}

func (b *Booking) Name() string { return b.name }

func (b *Booking) BuildQuery(route flight.Route, date time.Time, pax Pax) ([]Query, error) {
	host := b.baseURL
	if u, err := url.Parse(b.baseURL); err == nil {
		host = u.Host
	}
	out := make([]Query, 0, len(b.sorts))
	for _, sort := range b.sorts {
		req := fetch.Request{
			URL: b.baseURL + b.path,
			Query: map[string]string{
				// Rapid requires the ".AIRPORT" suffix
				"fromId":        route.Origin + ".AIRPORT",
				"toId":          route.Destination + ".AIRPORT",
				"departDate":    date.Format("2006-01-02"),
				"pageNo":        "1",
				"adults":        strconv.Itoa(pax.adults()),
				"children":      children(pax),
				"sort":          sort,
				"cabinClass":    b.cabin,
				"currency_code": b.currency,
			},
			Header: map[string]string{
				"X-RapidAPI-Key":  b.rapidApiKey,
				"X-RapidAPI-Host": host,
			},
		}
		out = append(out, Query{Mode: sort, Op: b.http.Operation(req)})
	}
	return out, nil
}

// children renders Rapid's comma separated child ages; infants count as 0.
func children(p Pax) string {
	ages := make([]string, 0, p.Children+p.Infants)
	for i := 0; i < p.Children; i++ {
		ages = append(ages, "10")
	}
	for i := 0; i < p.Infants; i++ {
		ages = append(ages, "0")
	}
	return strings.Join(ages, ",")
}

func (b *Booking) Parse(p fetch.Payload, m mapping.FieldMapping) ([]flight.RawOffer, []error) {
	if st := gjson.GetBytes(p.Body, "status"); st.Exists() && !st.Bool() {
		msg := gjson.GetBytes(p.Body, "message").String()
		return nil, []error{&flight.ParseError{Provider: b.name, Entry: PayloadEntry, Err: errors.New("booking: " + msg)}}
	}
	return walkJSON(b.name, p.Body, jsonLayout{
		Entries: []string{"data.flightOffers", "flightOffers"},
		Legs:    "segments.#.legs|@flatten",
	}, m)
}

func (b *Booking) DefaultMapping() mapping.FieldMapping {
	return mapping.FieldMapping{
		mapping.FieldAirlineCode:  {Rules: []mapping.Rule{mapping.Path("flightInfo.carrierInfo.marketingCarrier")}},
		mapping.FieldFlightNumber: {Rules: []mapping.Rule{mapping.Path("flightInfo.flightNumber")}},
		mapping.FieldAirline: {Required: true, Rules: []mapping.Rule{
			mapping.Path("carriersData.0.name"),
			mapping.Path("flightInfo.carrierInfo.marketingCarrier"),
		}},
		mapping.FieldDepartureAirport: {Required: true, Rules: []mapping.Rule{mapping.Path("departureAirport.code"), mapping.Context("origin")}},
		mapping.FieldArrivalAirport:   {Required: true, Rules: []mapping.Rule{mapping.Path("arrivalAirport.code"), mapping.Context("destination")}},
		mapping.FieldDepartureTime:    {Required: true, Rules: []mapping.Rule{mapping.Path("departureTime")}},
		mapping.FieldArrivalTime:      {Required: true, Rules: []mapping.Rule{mapping.Path("arrivalTime")}},
		mapping.FieldDuration:         {Unit: "seconds", Rules: []mapping.Rule{mapping.Path("totalTime")}},
		mapping.FieldPrice: {Required: true, Rules: []mapping.Rule{
			mapping.EntryPath("priceBreakdown.total.units"),
		}},
		mapping.FieldCurrency:     {Rules: []mapping.Rule{mapping.EntryPath("priceBreakdown.total.currencyCode")}},
		mapping.FieldAircraftType: {Rules: []mapping.Rule{mapping.Path("flightInfo.planeType")}},
		mapping.FieldSeatClass:    {Rules: []mapping.Rule{mapping.Path("cabinClass"), mapping.Const("ECONOMY")}},
		mapping.FieldBaggageInfo: {Rules: []mapping.Rule{
			mapping.EntryPath("brandedFareInfo.features.0.label"),
			mapping.EntryPath("includedProducts.segments.0.0.luggageType"),
		}},
	}.WithDefaults()
}
