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
	travelokaDepartBlock = "div.css-1dbjc4n.r-1habvwh.r-eqz5dr.r-9aw3ui.r-knv0ih > div"
	travelokaArriveBlock = "div.css-1dbjc4n.r-obd0qt.r-eqz5dr.r-9aw3ui.r-knv0ih:not(.r-ggk5by) > div"
	clockPattern         = `(\d{1,2}[:h]\d{2})`
)

// Traveloka reads the rendered full-search page.
type Traveloka struct {
	name    string
	baseURL string
	cabin   string
	page    *fetch.PageTransport
}

func NewTraveloka(cfg config.ProviderConfig) (*Traveloka, error) {
	cabin := strings.ToUpper(cfg.Cabin)
	if cabin == "" {
		cabin = "ECONOMY"
	}
	header := map[string]string{"Accept-Language": "vi-VN,vi;q=0.9"}
	for k, v := range cfg.Headers {
		header[k] = v
	}
	return &Traveloka{
		name:    cfg.Name,
		baseURL: strings.TrimRight(baseURL(cfg, "https://www.traveloka.com"), "/"),
		cabin:   cabin,
		page:    fetch.NewPageTransport(cfg.Name, cfg.RenderURL, cfg.RequestTimeout(), header),
	}, nil
}

func (t *Traveloka) Name() string { return t.name }

func (t *Traveloka) SearchURL(route flight.Route, date time.Time, pax Pax) string {
	q := url.Values{}
	q.Set("ap", route.Origin+"."+route.Destination)
	q.Set("dt", date.Format("02-01-2006")+".NA")
	q.Set("ps", strconv.Itoa(pax.adults())+"."+strconv.Itoa(pax.Children)+"."+strconv.Itoa(pax.Infants))
	q.Set("sc", t.cabin)
	return t.baseURL + "/vi-vn/flight/fullsearch?" + q.Encode()
}

func (t *Traveloka) BuildQuery(route flight.Route, date time.Time, pax Pax) ([]Query, error) {
	return []Query{{Op: t.page.Operation(t.SearchURL(route, date, pax))}}, nil
}

func (t *Traveloka) Parse(p fetch.Payload, m mapping.FieldMapping) ([]flight.RawOffer, []error) {
	return walkMarkup(t.name, p.Body, []string{
		"div[data-testid^='flight-inventory-card-container']",
		"div[data-testid='flight-card']",
	}, m)
}

func (t *Traveloka) DefaultMapping() mapping.FieldMapping {
	return mapping.FieldMapping{
		mapping.FieldAirline: {Required: true, Rules: []mapping.Rule{
			mapping.CSS("div.css-901oao.css-cens5h.r-uh8wd5.r-majxgm.r-fdjqy7"),
			mapping.CSS("[data-testid='label_fl_inventory_airline_name']"),
			mapping.Regex(vietnameseCarriers),
		}},
		mapping.FieldFlightCode: {Rules: []mapping.Rule{mapping.Regex(flightCodePattern)}},
		mapping.FieldDepartureTime: {Required: true, Rules: []mapping.Rule{
			mapping.CSSAt(travelokaDepartBlock, 0),
			mapping.RegexAt(clockPattern, 0),
		}},
		mapping.FieldDepartureAirport: {Rules: []mapping.Rule{
			mapping.CSSAt(travelokaDepartBlock, 1),
			mapping.Context("origin"),
		}},
		mapping.FieldArrivalTime: {Required: true, Rules: []mapping.Rule{
			mapping.CSSAt(travelokaArriveBlock, 0),
			mapping.RegexAt(clockPattern, 1),
		}},
		mapping.FieldArrivalAirport: {Rules: []mapping.Rule{
			mapping.CSSAt(travelokaArriveBlock, 1),
			mapping.Context("destination"),
		}},
		mapping.FieldPrice: {Required: true, Rules: []mapping.Rule{
			mapping.CSS(`[data-testid="label_fl_inventory_price"]`),
			mapping.Regex(`([\d.,]+)\s*(?:VND|₫)`),
		}},
		mapping.FieldDuration: {Rules: []mapping.Rule{
			mapping.CSS("div.css-901oao.r-uh8wd5.r-majxgm.r-1p4rafz.r-fdjqy7"),
			mapping.Regex(`(\d+\s*h\s*\d*\s*m?)`),
		}},
		mapping.FieldStops: {Rules: []mapping.Rule{
			mapping.CSS("[data-testid='label_fl_inventory_transit']"),
			mapping.Regex(`(?i)(bay thẳng|\d+\s*điểm dừng|\d+\s*transit|direct)`),
		}},
		mapping.FieldCurrency:  {Rules: []mapping.Rule{mapping.Const("VND")}},
		mapping.FieldSeatClass: {Rules: []mapping.Rule{mapping.Const(t.cabin)}},
	}.WithDefaults()
}
