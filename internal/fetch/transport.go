package fetch

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gocolly/colly/v2"

	"github.com/you/go-flight-harvester/internal/flight"
)

const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// Request describes one HTTP call. Body is JSON-encoded; Form is sent urlencoded.
type Request struct {
	Method string
	URL    string
	Query  map[string]string
	Header map[string]string
	Body   any
	Form   map[string]string
}

// HTTPTransport serves JSON APIs. Retries belong to the Retrier, so the
// client itself never retries.
type HTTPTransport struct {
	provider string
	client   *resty.Client
}

func NewHTTPTransport(provider string, timeout time.Duration) *HTTPTransport {
	c := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "application/json")
	return &HTTPTransport{provider: provider, client: c}
}

// Operation binds req to a retryable operation.
func (t *HTTPTransport) Operation(req Request) Operation {
	return func(ctx context.Context) (Payload, error) {
		r := t.client.R().SetContext(ctx)
		if len(req.Query) > 0 {
			r.SetQueryParams(req.Query)
		}
		if len(req.Header) > 0 {
			r.SetHeaders(req.Header)
		}
		if req.Body != nil {
			r.SetHeader("Content-Type", "application/json").SetBody(req.Body)
		}
		if len(req.Form) > 0 {
			r.SetFormData(req.Form)
		}
		method := req.Method
		if method == "" {
			method = http.MethodGet
		}

		resp, err := r.Execute(method, req.URL)
		if err != nil {
			return Payload{}, &flight.TransportError{Provider: t.provider, Err: err}
		}
		p := Payload{Body: resp.Body(), Status: resp.StatusCode(), URL: resp.Request.URL}
		if p.Status < 200 || p.Status >= 300 {
			return p, &flight.TransportError{Provider: t.provider, Status: p.Status}
		}
		return p, nil
	}
}

// PageTransport fetches rendered pages. When render is set the target URL is
// passed to that endpoint as ?url= and the endpoint's HTML is returned.
type PageTransport struct {
	provider string
	render   string
	timeout  time.Duration
	header   map[string]string
}

func NewPageTransport(provider, render string, timeout time.Duration, header map[string]string) *PageTransport {
	return &PageTransport{provider: provider, render: render, timeout: timeout, header: header}
}

func (t *PageTransport) target(page string) string {
	if t.render == "" {
		return page
	}
	u, err := url.Parse(t.render)
	if err != nil {
		return page
	}
	q := u.Query()
	q.Set("url", page)
	u.RawQuery = q.Encode()
	return u.String()
}

// Operation visits page with a fresh collector. A cancelled ctx returns at
// once; the abandoned visit ends on its own request timeout.
func (t *PageTransport) Operation(page string) Operation {
	return func(ctx context.Context) (Payload, error) {
		c := colly.NewCollector(colly.AllowURLRevisit(), colly.UserAgent(userAgent))
		if t.timeout > 0 {
			c.SetRequestTimeout(t.timeout)
		}

		var (
			p      Payload
			status int
		)
		c.OnRequest(func(r *colly.Request) {
			if ctx.Err() != nil {
				r.Abort()
				return
			}
			for k, v := range t.header {
				r.Headers.Set(k, v)
			}
		})
		c.OnResponse(func(r *colly.Response) {
			p = Payload{Body: r.Body, Status: r.StatusCode, URL: r.Request.URL.String()}
		})
		c.OnError(func(r *colly.Response, _ error) {
			if r != nil {
				status = r.StatusCode
			}
		})

		done := make(chan error, 1)
		go func() { done <- c.Visit(t.target(page)) }()

		select {
		case <-ctx.Done():
			return Payload{}, &flight.TransportError{Provider: t.provider, Err: ctx.Err()}
		case err := <-done:
			if err != nil {
				if status != 0 {
					return Payload{Status: status}, &flight.TransportError{Provider: t.provider, Status: status}
				}
				return Payload{}, &flight.TransportError{Provider: t.provider, Err: err}
			}
			if p.Status < 200 || p.Status >= 300 {
				return p, &flight.TransportError{Provider: t.provider, Status: p.Status}
			}
			return p, nil
		}
	}
}
