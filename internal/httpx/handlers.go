package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/you/go-flight-harvester/internal/flight"
	"github.com/you/go-flight-harvester/internal/harvest"
	"github.com/you/go-flight-harvester/internal/logger"
	"github.com/you/go-flight-harvester/internal/routes"
	"github.com/you/go-flight-harvester/internal/service"
	"github.com/you/go-flight-harvester/internal/storage"
)

const dateLayout = "2006-01-02"

type OfferFinder interface {
	Offers(ctx context.Context, route flight.Route, date time.Time) (service.OfferSet, error)
}

type HistoryFinder interface {
	MonthlyAverages(ctx context.Context, route flight.Route, months int) ([]storage.MonthPoint, error)
}

type Harvester interface {
	Run(ctx context.Context, req harvest.Request) (*harvest.Report, error)
}

type RunFeed interface {
	Latest(ctx context.Context) (storage.RunRecord, error)
	Subscribe() (<-chan storage.RunRecord, func())
}

type offersResponse struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	Date        string `json:"date"`
	service.OfferSet
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func routeFrom(origin, dest string) (flight.Route, error) {
	origin = strings.ToUpper(strings.TrimSpace(origin))
	dest = strings.ToUpper(strings.TrimSpace(dest))
	if origin == "" || dest == "" {
		return flight.Route{}, errors.New("origin and destination are required")
	}
	if origin == dest {
		return flight.Route{}, errors.New("origin and destination must differ")
	}
	return flight.Route{Origin: origin, Destination: dest}, nil
}

func OffersHandler(svc OfferFinder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		q := r.URL.Query()
		route, err := routeFrom(q.Get("origin"), q.Get("destination"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		date, err := time.Parse(dateLayout, q.Get("date"))
		if err != nil {
			http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		set, err := svc.Offers(r.Context(), route, date)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, offersResponse{
			Origin: route.Origin, Destination: route.Destination, Date: date.Format(dateLayout), OfferSet: set,
		})
	}
}

func HistoryHandler(hist HistoryFinder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		route, err := routeFrom(q.Get("origin"), q.Get("destination"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		months := 24
		if m := q.Get("months"); m != "" {
			if months, err = strconv.Atoi(m); err != nil || months < 1 {
				http.Error(w, "months must be a positive integer", http.StatusBadRequest)
				return
			}
		}
		series, err := hist.MonthlyAverages(r.Context(), route, months)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, series)
	}
}

type harvestRequest struct {
	Sources []string `json:"sources"`
	Routes  []string `json:"routes"`
	Dates   []string `json:"dates"`
}

type harvestResponse struct {
	harvest.Summary
	Units            []harvest.Unit `json:"units"`
	SkippedProviders []harvest.Skip `json:"skipped_providers,omitempty"`
	Error            string         `json:"error,omitempty"`
}

// HarvestHandler runs one harvest synchronously. Fields left out of the
// body fall back to defaults().
func HarvestHandler(h Harvester, defaults func() harvest.Request) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var body harvestRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				http.Error(w, "bad json", http.StatusBadRequest)
				return
			}
		}
		req := defaults()
		if len(body.Sources) > 0 {
			req.Sources = body.Sources
		}
		if len(body.Routes) > 0 {
			rs, err := routes.Parse(body.Routes)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			req.Routes = rs
		}
		if len(body.Dates) > 0 {
			req.Dates = nil
			for _, d := range body.Dates {
				t, err := time.Parse(dateLayout, d)
				if err != nil {
					http.Error(w, fmt.Sprintf("bad date %q", d), http.StatusBadRequest)
					return
				}
				req.Dates = append(req.Dates, t)
			}
		}

		rep, err := h.Run(r.Context(), req)
		switch {
		case errors.Is(err, service.ErrRunInProgress):
			http.Error(w, err.Error(), http.StatusConflict)
			return
		case errors.Is(err, harvest.ErrNoProviders):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		case rep == nil:
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		resp := harvestResponse{Summary: rep.Summary(), Units: rep.Units, SkippedProviders: rep.Skipped}
		status := http.StatusOK
		if err != nil {
			resp.Error = err.Error()
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, resp)
	}
}

func LatestRunHandler(feed RunFeed) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := feed.Latest(r.Context())
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "no harvest recorded yet", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

// SubscribeSSEHandler streams the offers of one route and date: a snapshot
// on connect and a fresh one after every finished run.
func SubscribeSSEHandler(svc OfferFinder, feed RunFeed, log *slog.Logger) http.HandlerFunc {
	log = logger.OrDiscard(log)
	return func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/sse/offers/"), "/")
		if len(parts) < 2 {
			http.Error(w, "use /sse/offers/{origin}/{destination}?date=YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		route, err := routeFrom(parts[0], parts[1])
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		date, err := time.Parse(dateLayout, r.URL.Query().Get("date"))
		if err != nil {
			http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		runs, unsubscribe := feed.Subscribe()
		defer unsubscribe()

		ctx := r.Context()
		send := func() bool {
			set, err := svc.Offers(ctx, route, date)
			if err != nil {
				fmt.Fprintf(w, "event: error\ndata: %q\n\n", err.Error())
				flusher.Flush()
				return false
			}
			payload, _ := json.Marshal(set)
			fmt.Fprintf(w, "event: update\ndata: %s\n\n", payload)
			flusher.Flush()
			return true
		}
		if !send() {
			return
		}

		keepAlive := time.NewTicker(30 * time.Second)
		defer keepAlive.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Debug("sse client closed", "route", route.String())
				return
			case <-keepAlive.C:
				fmt.Fprint(w, ": ping\n\n")
				flusher.Flush()
			case _, ok := <-runs:
				if !ok || !send() {
					return
				}
			}
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// RunsWSHandler pushes the latest run on connect, then every finished run.
func RunsWSHandler(feed RunFeed, log *slog.Logger) http.HandlerFunc {
	log = logger.OrDiscard(log)
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("websocket upgrade failed", "err", err)
			return
		}
		defer conn.Close()

		runs, unsubscribe := feed.Subscribe()
		defer unsubscribe()

		if rec, err := feed.Latest(r.Context()); err == nil {
			if err := conn.WriteJSON(rec); err != nil {
				return
			}
		}

		// reads only to notice the peer going away
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.NextReader(); err != nil {
					return
				}
			}
		}()

		ping := time.NewTicker(30 * time.Second)
		defer ping.Stop()
		for {
			select {
			case <-closed:
				return
			case <-r.Context().Done():
				return
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					return
				}
			case rec, ok := <-runs:
				if !ok {
					return
				}
				if err := conn.WriteJSON(rec); err != nil {
					log.Info("websocket write failed", "err", err)
					return
				}
			}
		}
	}
}
