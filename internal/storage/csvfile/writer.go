// Package csvfile appends harvested offers to daily CSV files.
package csvfile

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/you/go-flight-harvester/internal/flight"
)

var columns = []string{
	"flight_code", "airline", "departure_airport", "arrival_airport",
	"departure_time", "arrival_time", "duration_minutes", "price", "currency",
	"source", "route", "stops", "aircraft_type", "baggage_info", "meal_info",
	"seat_class", "booking_url", "scraped_at",
}

// Writer appends to dir/offers-YYYYMMDD.csv, one file per scrape day.
// The file is a log: the same key may appear once per run.
type Writer struct {
	dir string
	now func() time.Time
	mu  sync.Mutex
}

func New(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("csv dir: %w", err)
	}
	return &Writer{dir: dir, now: time.Now}, nil
}

func (w *Writer) Path() string {
	return filepath.Join(w.dir, "offers-"+w.now().Format("20060102")+".csv")
}

func (w *Writer) Upsert(ctx context.Context, offers []flight.Offer) (int, error) {
	if len(offers) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	path := w.Path()
	_, statErr := os.Stat(path)
	fresh := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	bufw := bufio.NewWriter(f)
	cw := csv.NewWriter(bufw)
	if fresh {
		if err := cw.Write(columns); err != nil {
			f.Close()
			return 0, err
		}
	}
	for _, o := range offers {
		if err := cw.Write(record(o)); err != nil {
			f.Close()
			return 0, err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		f.Close()
		return 0, err
	}
	if err := bufw.Flush(); err != nil {
		f.Close()
		return 0, err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return 0, err
	}
	return len(offers), f.Close()
}

func record(o flight.Offer) []string {
	stops := 0
	if o.Stops != nil {
		stops = *o.Stops
	}
	return []string{
		o.FlightCode,
		o.Airline,
		o.DepartureAirport,
		o.ArrivalAirport,
		flight.FormatTime(o.DepartureTime),
		flight.FormatTime(o.ArrivalTime),
		strconv.Itoa(o.DurationMinutes),
		strconv.FormatFloat(o.Price, 'f', -1, 64),
		o.Currency,
		o.Source,
		o.Route,
		strconv.Itoa(stops),
		o.AircraftType,
		o.BaggageInfo,
		o.MealInfo,
		o.SeatClass,
		o.BookingURL,
		flight.FormatTime(o.ScrapedAt),
	}
}
