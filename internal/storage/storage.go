// Package storage holds the types shared by the offer stores.
package storage

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/you/go-flight-harvester/internal/flight"
	"github.com/you/go-flight-harvester/internal/harvest"
)

var ErrNotFound = errors.New("not found")

// OfferFilter selects stored offers. Zero fields do not filter.
type OfferFilter struct {
	Route  flight.Route
	Date   time.Time
	Source string
	Limit  int
}

// DateKey is the departure-date prefix the stores match on.
func (f OfferFilter) DateKey() string {
	if f.Date.IsZero() {
		return ""
	}
	return f.Date.Format("2006-01-02")
}

type MonthPoint struct {
	Month    string  `json:"month"` // YYYY-MM
	AvgPrice float64 `json:"avg_price"`
	Currency string  `json:"currency"`
	Samples  int     `json:"samples"`
}

// RunRecord is the persisted summary of one harvest run.
type RunRecord struct {
	harvest.Summary
	FinishedAt time.Time `json:"finished_at"`
	Error      string    `json:"error,omitempty"`
}

// NewRunRecord summarizes rep. A nil report records a run that failed
// before any unit started.
func NewRunRecord(rep *harvest.Report, runErr error, startedAt time.Time) RunRecord {
	var rec RunRecord
	if rep != nil {
		rec.Summary = rep.Summary()
		rec.FinishedAt = rep.FinishedAt
	} else {
		rec.RunID = uuid.NewString()
		rec.StartedAt = startedAt
		rec.FinishedAt = startedAt
		rec.State = harvest.StatePartialFailure
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	return rec
}

// Round2 rounds v to cents.
func Round2(v float64) float64 { return float64(int64(v*100+0.5)) / 100 }
