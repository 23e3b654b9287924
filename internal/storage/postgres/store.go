// Package postgres is the alternate offer store, selected with
// storage.driver=postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/you/go-flight-harvester/internal/flight"
	"github.com/you/go-flight-harvester/internal/harvest"
	"github.com/you/go-flight-harvester/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS offers (
    id                BIGSERIAL PRIMARY KEY,
    flight_code       TEXT      NOT NULL,
    airline           TEXT      NOT NULL,
    departure_airport TEXT      NOT NULL,
    arrival_airport   TEXT      NOT NULL,
    departure_time    TIMESTAMP NOT NULL,
    arrival_time      TIMESTAMP NOT NULL,
    duration_minutes  INTEGER   NOT NULL DEFAULT 0,
    price             NUMERIC(14, 2) NOT NULL,
    currency          TEXT      NOT NULL DEFAULT 'VND',
    source            TEXT      NOT NULL,
    route             TEXT      NOT NULL,
    stops             INTEGER   NOT NULL DEFAULT 0,
    aircraft_type     TEXT      NOT NULL DEFAULT '',
    baggage_info      TEXT      NOT NULL DEFAULT '',
    meal_info         TEXT      NOT NULL DEFAULT '',
    seat_class        TEXT      NOT NULL DEFAULT '',
    booking_url       TEXT      NOT NULL DEFAULT '',
    scraped_at        TIMESTAMP NOT NULL,
    first_seen_at     TIMESTAMP NOT NULL,
    UNIQUE (flight_code, departure_time, source, route)
);
CREATE INDEX IF NOT EXISTS idx_offers_route_departure ON offers (route, departure_time);

CREATE TABLE IF NOT EXISTS airports (
    code   TEXT PRIMARY KEY,
    name   TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'ACTIVE',
    added  BIGSERIAL
);

CREATE TABLE IF NOT EXISTS harvest_runs (
    id          TEXT PRIMARY KEY,
    state       TEXT        NOT NULL,
    started_at  TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ NOT NULL,
    duration    TEXT        NOT NULL DEFAULT '',
    units       INTEGER     NOT NULL DEFAULT 0,
    failed      INTEGER     NOT NULL DEFAULT 0,
    abandoned   INTEGER     NOT NULL DEFAULT 0,
    skipped     INTEGER     NOT NULL DEFAULT 0,
    rejected    INTEGER     NOT NULL DEFAULT 0,
    accepted    INTEGER     NOT NULL DEFAULT 0,
    error       TEXT        NOT NULL DEFAULT ''
);`

const upsertOffer = `
INSERT INTO offers (
    flight_code, airline, departure_airport, arrival_airport,
    departure_time, arrival_time, duration_minutes, price, currency,
    source, route, stops, aircraft_type, baggage_info, meal_info,
    seat_class, booking_url, scraped_at, first_seen_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
ON CONFLICT (flight_code, departure_time, source, route) DO UPDATE SET
    airline = EXCLUDED.airline,
    departure_airport = EXCLUDED.departure_airport,
    arrival_airport = EXCLUDED.arrival_airport,
    arrival_time = EXCLUDED.arrival_time,
    duration_minutes = EXCLUDED.duration_minutes,
    price = EXCLUDED.price,
    currency = EXCLUDED.currency,
    stops = EXCLUDED.stops,
    aircraft_type = EXCLUDED.aircraft_type,
    baggage_info = EXCLUDED.baggage_info,
    meal_info = EXCLUDED.meal_info,
    seat_class = EXCLUDED.seat_class,
    booking_url = EXCLUDED.booking_url,
    scraped_at = EXCLUDED.scraped_at`

type Store struct {
	pool  *pgxpool.Pool
	batch int
}

// Open connects to dsn and creates the schema if it is missing.
func Open(ctx context.Context, dsn string, maxConns int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 4
	}
	cfg.MaxConns = int32(maxConns)
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{pool: pool, batch: 200}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// wall drops the zone so TIMESTAMP columns keep the provider's wall clock.
func wall(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
}

// Upsert sends offers in batches; an existing row keeps its first_seen_at.
func (s *Store) Upsert(ctx context.Context, offers []flight.Offer) (int, error) {
	total := 0
	for i := 0; i < len(offers); i += s.batch {
		j := min(i+s.batch, len(offers))
		b := &pgx.Batch{}
		for _, o := range offers[i:j] {
			stops := 0
			if o.Stops != nil {
				stops = *o.Stops
			}
			firstSeen := o.FirstSeenAt
			if firstSeen.IsZero() {
				firstSeen = o.ScrapedAt
			}
			b.Queue(upsertOffer,
				o.FlightCode, o.Airline, o.DepartureAirport, o.ArrivalAirport,
				wall(o.DepartureTime), wall(o.ArrivalTime), o.DurationMinutes, o.Price, o.Currency,
				o.Source, o.Route, stops, o.AircraftType, o.BaggageInfo, o.MealInfo,
				o.SeatClass, o.BookingURL, wall(o.ScrapedAt), wall(firstSeen),
			)
		}
		br := s.pool.SendBatch(ctx, b)
		for k := i; k < j; k++ {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return total, fmt.Errorf("upsert %s: %w", offers[k].Key(), err)
			}
			total++
		}
		if err := br.Close(); err != nil {
			return total, err
		}
	}
	return total, nil
}

func (s *Store) ListOffers(ctx context.Context, f storage.OfferFilter) ([]flight.Offer, error) {
	q := `SELECT flight_code, airline, departure_airport, arrival_airport,
	             departure_time, arrival_time, duration_minutes, price::float8, currency,
	             source, route, stops, aircraft_type, baggage_info, meal_info,
	             seat_class, booking_url, scraped_at, first_seen_at
	      FROM offers`
	var (
		where []string
		args  []any
	)
	arg := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Route != (flight.Route{}) {
		arg("route = $%d", f.Route.String())
	}
	if !f.Date.IsZero() {
		arg("departure_time::date = $%d::date", f.DateKey())
	}
	if f.Source != "" {
		arg("source = $%d", f.Source)
	}
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY price, duration_minutes, departure_time"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query offers: %w", err)
	}
	defer rows.Close()

	var out []flight.Offer
	for rows.Next() {
		var (
			o     flight.Offer
			stops int
		)
		err := rows.Scan(&o.FlightCode, &o.Airline, &o.DepartureAirport, &o.ArrivalAirport,
			&o.DepartureTime, &o.ArrivalTime, &o.DurationMinutes, &o.Price, &o.Currency,
			&o.Source, &o.Route, &stops, &o.AircraftType, &o.BaggageInfo, &o.MealInfo,
			&o.SeatClass, &o.BookingURL, &o.ScrapedAt, &o.FirstSeenAt)
		if err != nil {
			return nil, fmt.Errorf("scan offer: %w", err)
		}
		o.Stops = flight.IntPtr(stops)
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) MonthlyAverages(ctx context.Context, route flight.Route, months int, now time.Time) ([]storage.MonthPoint, error) {
	if months <= 0 {
		months = 24
	}
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(months - 1), 0)
	rows, err := s.pool.Query(ctx, `
		SELECT to_char(departure_time, 'YYYY-MM') AS month, AVG(price)::float8, currency, COUNT(*)
		FROM offers
		WHERE route = $1 AND departure_time >= $2
		GROUP BY month, currency
		ORDER BY month, currency`, route.String(), from)
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

func (s *Store) ActiveAirports(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT code FROM airports WHERE status = 'ACTIVE' ORDER BY added`)
	if err != nil {
		return nil, fmt.Errorf("query airports: %w", err)
	}
	codes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan airports: %w", err)
	}
	return codes, nil
}

func (s *Store) SetAirport(ctx context.Context, code, name, status string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO airports (code, name, status) VALUES ($1, $2, $3)
		ON CONFLICT (code) DO UPDATE SET
			name = CASE WHEN EXCLUDED.name = '' THEN airports.name ELSE EXCLUDED.name END,
			status = EXCLUDED.status`,
		strings.ToUpper(code), name, strings.ToUpper(status))
	if err != nil {
		return fmt.Errorf("set airport %s: %w", code, err)
	}
	return nil
}

func (s *Store) RecordRun(ctx context.Context, r storage.RunRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO harvest_runs
			(id, state, started_at, finished_at, duration, units, failed, abandoned, skipped, rejected, accepted, error)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state, finished_at = EXCLUDED.finished_at, duration = EXCLUDED.duration,
			units = EXCLUDED.units, failed = EXCLUDED.failed, abandoned = EXCLUDED.abandoned,
			skipped = EXCLUDED.skipped, rejected = EXCLUDED.rejected, accepted = EXCLUDED.accepted,
			error = EXCLUDED.error`,
		r.RunID, string(r.State), r.StartedAt, r.FinishedAt, r.Duration,
		r.Units, r.Failed, r.Abandoned, r.Skipped, r.Rejected, r.Accepted, r.Error)
	if err != nil {
		return fmt.Errorf("record run %s: %w", r.RunID, err)
	}
	return nil
}

func (s *Store) LatestRun(ctx context.Context) (storage.RunRecord, error) {
	var (
		r     storage.RunRecord
		state string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, state, started_at, finished_at, duration, units, failed, abandoned, skipped, rejected, accepted, error
		FROM harvest_runs ORDER BY started_at DESC LIMIT 1`).
		Scan(&r.RunID, &state, &r.StartedAt, &r.FinishedAt, &r.Duration, &r.Units, &r.Failed,
			&r.Abandoned, &r.Skipped, &r.Rejected, &r.Accepted, &r.Error)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.RunRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.RunRecord{}, fmt.Errorf("latest run: %w", err)
	}
	r.State = harvest.State(state)
	return r, nil
}
