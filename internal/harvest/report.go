package harvest

import (
	"time"

	"github.com/you/go-flight-harvester/internal/flight"
)

// State is a step of the run state machine.
type State string

const (
	StateInit           State = "init"
	StateFetching       State = "fetching"
	StateNormalizing    State = "normalizing"
	StateValidating     State = "validating"
	StateDeduplicating  State = "deduplicating"
	StateDone           State = "done"
	StatePartialFailure State = "partial_failure"
)

// Terminal reports whether s ends a run.
func (s State) Terminal() bool { return s == StateDone || s == StatePartialFailure }

type UnitStatus string

const (
	UnitOK        UnitStatus = "ok"
	UnitFailed    UnitStatus = "failed"
	UnitAbandoned UnitStatus = "abandoned"
)

// Unit is one (provider, route, date) retrieval.
type Unit struct {
	Provider string       `json:"provider"`
	Route    flight.Route `json:"route"`
	Date     time.Time    `json:"date"`
	Status   UnitStatus   `json:"status"`
	Raw      int          `json:"raw"`
	Offers   int          `json:"offers"`
	Err      error        `json:"-"`
	Error    string       `json:"error,omitempty"`
}

func (u *Unit) fail(status UnitStatus, err error) {
	u.Status = status
	u.Err = err
	if err != nil {
		u.Error = err.Error()
	}
}

// Skip is a provider left out of the run before any fetch.
type Skip struct {
	Provider string `json:"provider"`
	Reason   string `json:"reason"`
}

type Report struct {
	RunID       string         `json:"run_id"`
	State       State          `json:"state"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
	Units       []Unit         `json:"units"`
	Skipped     []Skip         `json:"skipped,omitempty"`
	Rejected    map[string]int `json:"rejected,omitempty"`
	ParseErrors int            `json:"parse_errors"`
	Transitions []State        `json:"transitions"`
	Offers      []flight.Offer `json:"offers,omitempty"`
}

func (r *Report) count(s UnitStatus) int {
	n := 0
	for _, u := range r.Units {
		if u.Status == s {
			n++
		}
	}
	return n
}

func (r *Report) Failed() int    { return r.count(UnitFailed) }
func (r *Report) Abandoned() int { return r.count(UnitAbandoned) }

// Summary drops the offers and unit detail from a report.
type Summary struct {
	RunID     string    `json:"run_id"`
	State     State     `json:"state"`
	StartedAt time.Time `json:"started_at"`
	Duration  string    `json:"duration"`
	Units     int       `json:"units"`
	Failed    int       `json:"failed"`
	Abandoned int       `json:"abandoned"`
	Skipped   int       `json:"skipped"`
	Rejected  int       `json:"rejected"`
	Accepted  int       `json:"accepted"`
}

func (r *Report) Summary() Summary {
	rejected := 0
	for _, n := range r.Rejected {
		rejected += n
	}
	return Summary{
		RunID:     r.RunID,
		State:     r.State,
		StartedAt: r.StartedAt,
		Duration:  r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String(),
		Units:     len(r.Units),
		Failed:    r.Failed(),
		Abandoned: r.Abandoned(),
		Skipped:   len(r.Skipped),
		Rejected:  rejected,
		Accepted:  len(r.Offers),
	}
}
