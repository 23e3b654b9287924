package providers

import (
	"net/http"
	"strings"
	"time"

	"github.com/you/go-flight-harvester/internal/config"
	"github.com/you/go-flight-harvester/internal/fetch"
	"github.com/you/go-flight-harvester/internal/flight"
	"github.com/you/go-flight-harvester/internal/mapping"
)

type Duffel struct {
	name     string
	host     string
	token    string
	cabin    string
	currency string
	http     *fetch.HTTPTransport
}

func NewDuffel(cfg config.ProviderConfig) (*Duffel, error) {
	if cfg.Token == "" {
		return nil, missing(cfg, "duffel token")
	}
	cabin := strings.ToLower(cfg.Cabin)
	if cabin == "" {
		cabin = "economy"
	}
	return &Duffel{
		name:     cfg.Name,
		host:     strings.TrimRight(baseURL(cfg, "https://api.duffel.com"), "/"),
		token:    cfg.Token,
		cabin:    cabin,
		currency: currency(cfg, flight.DefaultCurrency),
		http:     fetch.NewHTTPTransport(cfg.Name, cfg.RequestTimeout()),
	}, nil
}

func (d *Duffel) Name() string { return d.name }

type duffelSlice struct {
	Origin        string `json:"origin"`
	Destination   string `json:"destination"`
	DepartureDate string `json:"departure_date"`
}

type duffelPassenger struct {
	Type string `json:"type"`
}

type duffelOfferRequest struct {
	Slices       []duffelSlice     `json:"slices"`
	Passengers   []duffelPassenger `json:"passengers"`
	CabinClass   string            `json:"cabin_class"`
	CurrencyCode string            `json:"currency"`
	ReturnOffers bool              `json:"return_offers"`
}

type duffelOfferRequestEnvelope struct {
	Data duffelOfferRequest `json:"data"`
}

func (d *Duffel) BuildQuery(route flight.Route, date time.Time, pax Pax) ([]Query, error) {
	var passengers []duffelPassenger
	for i := 0; i < pax.adults(); i++ {
		passengers = append(passengers, duffelPassenger{Type: "adult"})
	}
	for i := 0; i < pax.Children; i++ {
		passengers = append(passengers, duffelPassenger{Type: "child"})
	}
	for i := 0; i < pax.Infants; i++ {
		passengers = append(passengers, duffelPassenger{Type: "infant_without_seat"})
	}

	body := duffelOfferRequestEnvelope{Data: duffelOfferRequest{
		Slices: []duffelSlice{{
			Origin:        route.Origin,
			Destination:   route.Destination,
			DepartureDate: date.Format("2006-01-02"),
		}},
		Passengers:   passengers,
		CabinClass:   d.cabin,
		CurrencyCode: d.currency,
		ReturnOffers: true,
	}}

	op := d.http.Operation(fetch.Request{
		Method: http.MethodPost,
		URL:    d.host + "/air/offer_requests",
		Body:   body,
		Header: map[string]string{
			"Authorization":  "Bearer " + d.token,
			"Duffel-Version": "v2",
		},
	})
	return []Query{{Op: op}}, nil
}

func (d *Duffel) Parse(p fetch.Payload, m mapping.FieldMapping) ([]flight.RawOffer, []error) {
	return walkJSON(d.name, p.Body, jsonLayout{
		Entries: []string{"data.offers"},
		Legs:    "slices.#.segments|@flatten",
	}, m)
}

func (d *Duffel) DefaultMapping() mapping.FieldMapping {
	return mapping.FieldMapping{
		mapping.FieldAirlineCode:  {Rules: []mapping.Rule{mapping.Path("marketing_carrier.iata_code")}},
		mapping.FieldFlightNumber: {Rules: []mapping.Rule{mapping.Path("marketing_carrier_flight_number")}},
		mapping.FieldAirline: {Required: true, Rules: []mapping.Rule{
			mapping.Path("marketing_carrier.name"),
			mapping.Path("operating_carrier.name"),
			mapping.EntryPath("owner.name"),
		}},
		mapping.FieldDepartureAirport: {Required: true, Rules: []mapping.Rule{mapping.Path("origin.iata_code"), mapping.Context("origin")}},
		mapping.FieldArrivalAirport:   {Required: true, Rules: []mapping.Rule{mapping.Path("destination.iata_code"), mapping.Context("destination")}},
		mapping.FieldDepartureTime:    {Required: true, Rules: []mapping.Rule{mapping.Path("departing_at")}},
		mapping.FieldArrivalTime:      {Required: true, Rules: []mapping.Rule{mapping.Path("arriving_at")}},
		mapping.FieldDuration:         {Rules: []mapping.Rule{mapping.Path("duration")}},
		mapping.FieldPrice:            {Required: true, Rules: []mapping.Rule{mapping.EntryPath("total_amount")}},
		mapping.FieldCurrency:         {Rules: []mapping.Rule{mapping.EntryPath("total_currency")}},
		mapping.FieldAircraftType:     {Rules: []mapping.Rule{mapping.Path("aircraft.name")}},
		mapping.FieldSeatClass: {Rules: []mapping.Rule{
			mapping.Path("passengers.0.cabin_class_marketing_name"),
			mapping.Path("passengers.0.cabin_class"),
		}},
		mapping.FieldBaggageInfo: {Rules: []mapping.Rule{mapping.Path("passengers.0.baggages.0.type")}},
	}.WithDefaults()
}
