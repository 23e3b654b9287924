package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/you/go-flight-harvester/internal/flight"
)

func TestHTTPTransportGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "SGN.AIRPORT", r.URL.Query().Get("fromId"))
		require.Equal(t, "k", r.Header.Get("X-RapidAPI-Key"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":true}`))
	}))
	defer srv.Close()

	tr := NewHTTPTransport("booking", 2*time.Second)
	p, err := tr.Operation(Request{
		URL:    srv.URL + "/api/v1/flights/searchFlights",
		Query:  map[string]string{"fromId": "SGN.AIRPORT"},
		Header: map[string]string{"X-RapidAPI-Key": "k"},
	})(context.Background())

	require.NoError(t, err)
	require.Equal(t, 200, p.Status)
	require.JSONEq(t, `{"status":true}`, string(p.Body))
}

func TestHTTPTransportPostBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "economy", body["cabin_class"])
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := NewHTTPTransport("duffel", time.Second).Operation(Request{
		Method: http.MethodPost,
		URL:    srv.URL,
		Body:   map[string]any{"cabin_class": "economy"},
	})(context.Background())
	require.NoError(t, err)
}

func TestHTTPTransportStatusIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p, err := NewHTTPTransport("amadeus", time.Second).Operation(Request{URL: srv.URL})(context.Background())

	var te *flight.TransportError
	require.True(t, errors.As(err, &te))
	require.Equal(t, http.StatusTooManyRequests, te.Status)
	require.Equal(t, "amadeus", te.Provider)
	require.Equal(t, http.StatusTooManyRequests, p.Status)
}

func TestHTTPTransportRetriedUntilSuccess(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	r := NewRetrier(Policy{MaxAttempts: 3, Sleep: func(context.Context, time.Duration) error { return nil }}, nil)
	p, err := r.Do(context.Background(), NewHTTPTransport("x", time.Second).Operation(Request{URL: srv.URL}))

	require.NoError(t, err)
	require.Equal(t, 3, hits)
	require.Equal(t, `{"data":[]}`, string(p.Body))
}

func TestPageTransportDirectAndRendered(t *testing.T) {
	page := `<html><body><div class="card">VN203</div></body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		switch r.URL.Path {
		case "/render":
			require.Equal(t, "https://www.traveloka.com/vi-vn/flight/fullsearch?ap=SGN.HAN", r.URL.Query().Get("url"))
			w.Write([]byte(page))
		case "/flights":
			require.Equal(t, "vi-VN", r.Header.Get("Accept-Language"))
			w.Write([]byte(page))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	direct := NewPageTransport("traveloka", "", time.Second, map[string]string{"Accept-Language": "vi-VN"})
	p, err := direct.Operation(srv.URL + "/flights")(context.Background())
	require.NoError(t, err)
	require.Contains(t, string(p.Body), "VN203")

	rendered := NewPageTransport("traveloka", srv.URL+"/render", time.Second, nil)
	p, err = rendered.Operation("https://www.traveloka.com/vi-vn/flight/fullsearch?ap=SGN.HAN")(context.Background())
	require.NoError(t, err)
	require.Equal(t, 200, p.Status)
	require.Contains(t, string(p.Body), "card")

	_, err = direct.Operation(srv.URL + "/missing")(context.Background())
	var te *flight.TransportError
	require.True(t, errors.As(err, &te))
	require.Equal(t, http.StatusNotFound, te.Status)
}

func TestPageTransportAbandonsOnCancel(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewPageTransport("agoda", "", 5*time.Second, nil).Operation(srv.URL)(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 2*time.Second)
}
