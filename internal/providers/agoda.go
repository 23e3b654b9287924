package providers

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/you/go-flight-harvester/internal/config"
	"github.com/you/go-flight-harvester/internal/fetch"
	"github.com/you/go-flight-harvester/internal/flight"
	"github.com/you/go-flight-harvester/internal/mapping"
)

const (
	vietnameseCarriers = `(?i)(Vietnam Airlines|VietJet Air|Vietjet Air|Bamboo Airways|Pacific Airlines|Vietravel Airlines)`
	flightCodePattern  = `\b((?:VN|VJ|QH|BL|VU)\s?\d{2,4})\b`
)

// Agoda has no stable markup, so most of its fields are regex rules over
// the card text.
type Agoda struct {
	name    string
	baseURL string
	cabin   string
	page    *fetch.PageTransport
}

func NewAgoda(cfg config.ProviderConfig) (*Agoda, error) {
	cabin := cfg.Cabin
	if cabin == "" {
		cabin = "Economy"
	}
	return &Agoda{
		name:    cfg.Name,
		baseURL: strings.TrimRight(baseURL(cfg, "https://www.agoda.com"), "/"),
		cabin:   cabin,
		page:    fetch.NewPageTransport(cfg.Name, cfg.RenderURL, cfg.RequestTimeout(), cfg.Headers),
	}, nil
}

func (a *Agoda) Name() string { return a.name }

func (a *Agoda) SearchURL(route flight.Route, date time.Time, pax Pax) string {
	q := url.Values{}
	q.Set("departureFrom", route.Origin)
	q.Set("departureFromType", "1")
	q.Set("arrivalTo", route.Destination)
	q.Set("arrivalToType", "1")
	q.Set("departDate", date.Format("2006-01-02"))
	q.Set("searchType", "1")
	q.Set("cabinType", a.cabin)
	q.Set("adults", strconv.Itoa(pax.adults()))
	if pax.Children > 0 {
		q.Set("children", strconv.Itoa(pax.Children))
	}
	q.Set("sort", "8")
	return a.baseURL + "/flights/results?" + q.Encode()
}

func (a *Agoda) BuildQuery(route flight.Route, date time.Time, pax Pax) ([]Query, error) {
	return []Query{{Op: a.page.Operation(a.SearchURL(route, date, pax))}}, nil
}

func (a *Agoda) Parse(p fetch.Payload, m mapping.FieldMapping) ([]flight.RawOffer, []error) {
	return walkMarkup(a.name, p.Body, []string{
		"[data-testid='web-refresh-flights-card']",
		"[data-component='flight-card']",
		"div[data-element-name='flight-search-result-item']",
	}, m)
}

func (a *Agoda) DefaultMapping() mapping.FieldMapping {
	return mapping.FieldMapping{
		mapping.FieldAirline: {Required: true, Rules: []mapping.Rule{
			mapping.CSS("[data-testid='flightCard-flight-detail'] [data-component='airline-name']"),
			mapping.Regex(vietnameseCarriers),
		}},
		mapping.FieldFlightCode: {Rules: []mapping.Rule{mapping.Regex(flightCodePattern)}},
		mapping.FieldDepartureTime: {Required: true, Rules: []mapping.Rule{
			mapping.CSS("[data-testid='departure-time']"),
			mapping.RegexAt(`(\d{2}:\d{2})`, 0),
		}},
		mapping.FieldArrivalTime: {Required: true, Rules: []mapping.Rule{
			mapping.CSS("[data-testid='arrival-time']"),
			mapping.RegexAt(`(\d{2}:\d{2})`, 1),
		}},
		mapping.FieldDepartureAirport: {Rules: []mapping.Rule{mapping.Context("origin")}},
		mapping.FieldArrivalAirport:   {Rules: []mapping.Rule{mapping.Context("destination")}},
		mapping.FieldPrice: {Required: true, Rules: []mapping.Rule{
			mapping.CSS("[data-testid='flightCard-price'] span"),
			mapping.Regex(`đ\s*([\d.,]+)`),
			mapping.Regex(`([\d.,]+)\s*VND`),
			mapping.Regex(`([\d.,]+)\s*₫`),
		}},
		mapping.FieldDuration: {Rules: []mapping.Rule{mapping.Regex(`(\d+\s*(?:h|g|giờ)\s*\d*\s*(?:m|p|phút)?)`)}},
		mapping.FieldStops: {Rules: []mapping.Rule{
			mapping.Regex(`(?i)(bay thẳng|không dừng|nonstop|direct|\d+\s*(?:stops?|điểm dừng))`),
		}},
		mapping.FieldCurrency:  {Rules: []mapping.Rule{mapping.Const("VND")}},
		mapping.FieldSeatClass: {Rules: []mapping.Rule{mapping.Const(strings.ToUpper(a.cabin))}},
	}.WithDefaults()
}
