package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/you/go-flight-harvester/internal/config"
	"github.com/you/go-flight-harvester/internal/fetch"
	"github.com/you/go-flight-harvester/internal/flight"
	"github.com/you/go-flight-harvester/internal/mapping"
)

// Amadeus keeps carrier names in dictionaries.carriers; Parse copies them
// onto each leg under this path.
const amadeusCarrierName = "carrierName"

type Amadeus struct {
	name       string
	host       string
	authPath   string
	searchPath string
	id         string
	secret     string
	currency   string
	http       *fetch.HTTPTransport
	now        func() time.Time

	mu      sync.Mutex
	tok     string
	expires time.Time
}

func NewAmadeus(cfg config.ProviderConfig) (*Amadeus, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, missing(cfg, "amadeus credentials")
	}
	return &Amadeus{
		name:       cfg.Name,
		host:       strings.TrimRight(baseURL(cfg, "https://test.api.amadeus.com"), "/"),
		authPath:   "/v1/security/oauth2/token",
		searchPath: "/v2/shopping/flight-offers",
		id:         cfg.ClientID,
		secret:     cfg.ClientSecret,
		currency:   currency(cfg, flight.DefaultCurrency),
		http:       fetch.NewHTTPTransport(cfg.Name, cfg.RequestTimeout()),
		now:        time.Now,
	}, nil
}

func (a *Amadeus) Name() string { return a.name }

// token returns a cached access token, refreshing it ten seconds before expiry.
func (a *Amadeus) token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.tok != "" && a.now().Before(a.expires.Add(-10*time.Second)) {
		return a.tok, nil
	}

	p, err := a.http.Operation(fetch.Request{
		Method: http.MethodPost,
		URL:    a.host + a.authPath,
		Form: map[string]string{
			"grant_type":    "client_credentials",
			"client_id":     a.id,
			"client_secret": a.secret,
		},
	})(ctx)
	if err != nil {
		var te *flight.TransportError
		if errors.As(err, &te) && (te.Status == http.StatusUnauthorized || te.Status == http.StatusBadRequest) {
			return "", fetch.Permanent(fmt.Errorf("amadeus token: %w", err))
		}
		return "", fmt.Errorf("amadeus token: %w", err)
	}
	tok := gjson.GetBytes(p.Body, "access_token").String()
	if tok == "" {
		return "", fetch.Permanent(errors.New("amadeus token: empty access_token"))
	}
	a.tok = tok
	a.expires = a.now().Add(time.Duration(gjson.GetBytes(p.Body, "expires_in").Int()) * time.Second)
	return a.tok, nil
}

func (a *Amadeus) BuildQuery(route flight.Route, date time.Time, pax Pax) ([]Query, error) {
	query := map[string]string{
		"originLocationCode":      route.Origin,
		"destinationLocationCode": route.Destination,
		"departureDate":           date.Format("2006-01-02"),
		"adults":                  strconv.Itoa(pax.adults()),
		"currencyCode":            a.currency,
		"max":                     "50",
	}
	if pax.Children > 0 {
		query["children"] = strconv.Itoa(pax.Children)
	}
	if pax.Infants > 0 {
		query["infants"] = strconv.Itoa(pax.Infants)
	}

	op := func(ctx context.Context) (fetch.Payload, error) {
		tok, err := a.token(ctx)
		if err != nil {
			return fetch.Payload{}, err
		}
		return a.http.Operation(fetch.Request{
			URL:    a.host + a.searchPath,
			Query:  query,
			Header: map[string]string{"Authorization": "Bearer " + tok},
		})(ctx)
	}
	return []Query{{Op: op}}, nil
}

func (a *Amadeus) Parse(p fetch.Payload, m mapping.FieldMapping) ([]flight.RawOffer, []error) {
	raws, errs := walkJSON(a.name, p.Body, jsonLayout{
		Entries: []string{"data"},
		Legs:    "itineraries.#.segments|@flatten",
	}, m)

	carriers := gjson.GetBytes(p.Body, "dictionaries.carriers")
	codeKey := mapping.Path("carrierCode").Key()
	nameKey := mapping.Path(amadeusCarrierName).Key()
	for _, raw := range raws {
		code, _ := raw[codeKey].(string)
		if code == "" {
			continue
		}
		if name := carriers.Get(code).String(); name != "" {
			raw[nameKey] = name
		}
	}
	return raws, errs
}

func (a *Amadeus) DefaultMapping() mapping.FieldMapping {
	return mapping.FieldMapping{
		mapping.FieldAirlineCode:  {Rules: []mapping.Rule{mapping.Path("carrierCode")}},
		mapping.FieldFlightNumber: {Rules: []mapping.Rule{mapping.Path("number")}},
		mapping.FieldAirline: {Required: true, Rules: []mapping.Rule{
			mapping.Path(amadeusCarrierName),
			mapping.Path("carrierCode"),
		}},
		mapping.FieldDepartureAirport: {Required: true, Rules: []mapping.Rule{mapping.Path("departure.iataCode"), mapping.Context("origin")}},
		mapping.FieldArrivalAirport:   {Required: true, Rules: []mapping.Rule{mapping.Path("arrival.iataCode"), mapping.Context("destination")}},
		mapping.FieldDepartureTime:    {Required: true, Rules: []mapping.Rule{mapping.Path("departure.at")}},
		mapping.FieldArrivalTime:      {Required: true, Rules: []mapping.Rule{mapping.Path("arrival.at")}},
		// ISO8601 e.g. PT2H10M
		mapping.FieldDuration: {Rules: []mapping.Rule{mapping.Path("duration")}},
		mapping.FieldStops:    {Rules: []mapping.Rule{mapping.Path("numberOfStops")}},
		mapping.FieldPrice: {Required: true, Rules: []mapping.Rule{
			mapping.EntryPath("price.grandTotal"),
			mapping.EntryPath("price.total"),
		}},
		mapping.FieldCurrency:     {Rules: []mapping.Rule{mapping.EntryPath("price.currency")}},
		mapping.FieldAircraftType: {Rules: []mapping.Rule{mapping.Path("aircraft.code")}},
		mapping.FieldSeatClass: {Rules: []mapping.Rule{
			mapping.EntryPath("travelerPricings.0.fareDetailsBySegment.0.cabin"),
		}},
		mapping.FieldBaggageInfo: {Rules: []mapping.Rule{
			mapping.EntryPath("travelerPricings.0.fareDetailsBySegment.0.includedCheckedBags.weight"),
		}},
	}.WithDefaults()
}
