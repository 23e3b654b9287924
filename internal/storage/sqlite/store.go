// Package sqlite is the default offer store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/you/go-flight-harvester/internal/flight"
	"github.com/you/go-flight-harvester/internal/harvest"
	"github.com/you/go-flight-harvester/internal/storage"
	"github.com/you/go-flight-harvester/internal/storage/sqlite/migrations"
)

// Times are stored as wall-clock text in flight.TimeLayout.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (creating if needed) the database at path and migrates it.
func NewStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Path() string { return s.path }

func (s *Store) migrate(fsys fs.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var ups []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			ups = append(ups, e.Name())
		}
	}
	sort.Strings(ups)

	for _, name := range ups {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= current {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}
	return nil
}

// ==================== Offers ====================

const upsertOffer = `
	INSERT INTO offers (
		flight_code, airline, departure_airport, arrival_airport,
		departure_time, arrival_time, duration_minutes, price, currency,
		source, route, stops, aircraft_type, baggage_info, meal_info,
		seat_class, booking_url, scraped_at, first_seen_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (flight_code, departure_time, source, route) DO UPDATE SET
		airline = excluded.airline,
		departure_airport = excluded.departure_airport,
		arrival_airport = excluded.arrival_airport,
		arrival_time = excluded.arrival_time,
		duration_minutes = excluded.duration_minutes,
		price = excluded.price,
		currency = excluded.currency,
		stops = excluded.stops,
		aircraft_type = excluded.aircraft_type,
		baggage_info = excluded.baggage_info,
		meal_info = excluded.meal_info,
		seat_class = excluded.seat_class,
		booking_url = excluded.booking_url,
		scraped_at = excluded.scraped_at`

// Upsert writes offers keyed on (flight_code, departure_time, source, route).
// Existing rows keep their first_seen_at.
func (s *Store) Upsert(ctx context.Context, offers []flight.Offer) (int, error) {
	if len(offers) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertOffer)
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, o := range offers {
		stops := 0
		if o.Stops != nil {
			stops = *o.Stops
		}
		firstSeen := o.FirstSeenAt
		if firstSeen.IsZero() {
			firstSeen = o.ScrapedAt
		}
		_, err := stmt.ExecContext(ctx,
			o.FlightCode, o.Airline, o.DepartureAirport, o.ArrivalAirport,
			flight.FormatTime(o.DepartureTime), flight.FormatTime(o.ArrivalTime),
			o.DurationMinutes, o.Price, o.Currency,
			o.Source, o.Route, stops, o.AircraftType, o.BaggageInfo, o.MealInfo,
			o.SeatClass, o.BookingURL, flight.FormatTime(o.ScrapedAt), flight.FormatTime(firstSeen),
		)
		if err != nil {
			return 0, fmt.Errorf("upsert %s: %w", o.Key(), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(offers), nil
}

// ListOffers returns offers ordered by price, then duration, then departure.
func (s *Store) ListOffers(ctx context.Context, f storage.OfferFilter) ([]flight.Offer, error) {
	q := `SELECT flight_code, airline, departure_airport, arrival_airport,
			departure_time, arrival_time, duration_minutes, price, currency,
			source, route, stops, aircraft_type, baggage_info, meal_info,
			seat_class, booking_url, scraped_at, first_seen_at
		FROM offers WHERE 1=1`
	var args []any
	if f.Route != (flight.Route{}) {
		q += " AND route = ?"
		args = append(args, f.Route.String())
	}
	if d := f.DateKey(); d != "" {
		q += " AND substr(departure_time, 1, 10) = ?"
		args = append(args, d)
	}
	if f.Source != "" {
		q += " AND source = ?"
		args = append(args, f.Source)
	}
	q += " ORDER BY price, duration_minutes, departure_time"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query offers: %w", err)
	}
	defer rows.Close()

	var out []flight.Offer
	for rows.Next() {
		var (
			o                       flight.Offer
			dep, arr, scraped, seen string
			stops                   int
		)
		err := rows.Scan(&o.FlightCode, &o.Airline, &o.DepartureAirport, &o.ArrivalAirport,
			&dep, &arr, &o.DurationMinutes, &o.Price, &o.Currency,
			&o.Source, &o.Route, &stops, &o.AircraftType, &o.BaggageInfo, &o.MealInfo,
			&o.SeatClass, &o.BookingURL, &scraped, &seen)
		if err != nil {
			return nil, fmt.Errorf("scan offer: %w", err)
		}
		o.Stops = flight.IntPtr(stops)
		o.DepartureTime = parseTime(dep)
		o.ArrivalTime = parseTime(arr)
		o.ScrapedAt = parseTime(scraped)
		o.FirstSeenAt = parseTime(seen)
		out = append(out, o)
	}
	return out, rows.Err()
}

// MonthlyAverages averages stored prices per departure month and currency
// for route, starting months-1 months before the month of now.
func (s *Store) MonthlyAverages(ctx context.Context, route flight.Route, months int, now time.Time) ([]storage.MonthPoint, error) {
	if months <= 0 {
		months = 24
	}
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(months - 1), 0)
	rows, err := s.db.QueryContext(ctx, `
		SELECT substr(departure_time, 1, 7) AS month, AVG(price), currency, COUNT(*)
		FROM offers
		WHERE route = ? AND departure_time >= ?
		GROUP BY month, currency
		ORDER BY month, currency`, route.String(), flight.FormatTime(from))
	if err != nil {
		return nil, fmt.Errorf("query averages: %w", err)
	}
	defer rows.Close()

	var out []storage.MonthPoint
	for rows.Next() {
		var p storage.MonthPoint
		if err := rows.Scan(&p.Month, &p.AvgPrice, &p.Currency, &p.Samples); err != nil {
			return nil, fmt.Errorf("scan average: %w", err)
		}
		p.AvgPrice = storage.Round2(p.AvgPrice)
		out = append(out, p)
	}
	return out, rows.Err()
}

// ==================== Airports ====================

// ActiveAirports lists airports with status ACTIVE in insertion order.
func (s *Store) ActiveAirports(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT code FROM airports WHERE status = 'ACTIVE' ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("query airports: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		out = append(out, code)
	}
	return out, rows.Err()
}

func (s *Store) SetAirport(ctx context.Context, code, name, status string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO airports (code, name, status) VALUES (?, ?, ?)
		ON CONFLICT (code) DO UPDATE SET
			name = CASE WHEN excluded.name = '' THEN airports.name ELSE excluded.name END,
			status = excluded.status`,
		strings.ToUpper(code), name, strings.ToUpper(status))
	if err != nil {
		return fmt.Errorf("set airport %s: %w", code, err)
	}
	return nil
}

// ==================== Runs ====================

func (s *Store) RecordRun(ctx context.Context, r storage.RunRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO harvest_runs
			(id, state, started_at, finished_at, duration, units, failed, abandoned, skipped, rejected, accepted, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, string(r.State), r.StartedAt.UTC().Format(time.RFC3339), r.FinishedAt.UTC().Format(time.RFC3339),
		r.Duration, r.Units, r.Failed, r.Abandoned, r.Skipped, r.Rejected, r.Accepted, r.Error)
	if err != nil {
		return fmt.Errorf("record run %s: %w", r.RunID, err)
	}
	return nil
}

func (s *Store) LatestRun(ctx context.Context) (storage.RunRecord, error) {
	var (
		r                 storage.RunRecord
		state             string
		started, finished string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, state, started_at, finished_at, duration, units, failed, abandoned, skipped, rejected, accepted, error
		FROM harvest_runs ORDER BY started_at DESC LIMIT 1`).
		Scan(&r.RunID, &state, &started, &finished, &r.Duration, &r.Units, &r.Failed, &r.Abandoned,
			&r.Skipped, &r.Rejected, &r.Accepted, &r.Error)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.RunRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.RunRecord{}, fmt.Errorf("latest run: %w", err)
	}
	r.State = harvest.State(state)
	r.StartedAt, _ = time.Parse(time.RFC3339, started)
	r.FinishedAt, _ = time.Parse(time.RFC3339, finished)
	return r, nil
}

func parseTime(s string) time.Time {
	t, err := time.ParseInLocation(flight.TimeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t
}
