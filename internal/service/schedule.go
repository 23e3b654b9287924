package service

import (
	"context"
	"errors"
	"time"

	"github.com/you/go-flight-harvester/internal/harvest"
)

// SearchDates returns days consecutive UTC dates starting daysAhead days
// after now.
func SearchDates(now time.Time, daysAhead, days int) []time.Time {
	if days < 1 {
		days = 1
	}
	now = now.UTC()
	first := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, daysAhead)
	out := make([]time.Time, 0, days)
	for i := 0; i < days; i++ {
		out = append(out, first.AddDate(0, 0, i))
	}
	return out
}

// Schedule runs a harvest immediately and then every interval until ctx is
// done. next builds each run's request so dates move with the clock.
func (s *HarvestService) Schedule(ctx context.Context, interval time.Duration, next func() harvest.Request) {
	tick := func() {
		rep, err := s.Run(ctx, next())
		switch {
		case errors.Is(err, ErrRunInProgress):
			s.log.Info("scheduled harvest skipped, previous run still going")
		case err != nil:
			s.log.Error("scheduled harvest failed", "err", err)
		default:
			s.log.Info("scheduled harvest done", "run", rep.RunID, "state", rep.State, "offers", len(rep.Offers))
		}
	}

	tick()
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick()
		}
	}
}
