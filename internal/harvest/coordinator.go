// Package harvest runs one harvest: every (provider, route, date) unit is
// fetched, parsed, normalized, validated and deduplicated, and the outcome
// of each unit is kept in a Report.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/you/go-flight-harvester/internal/config"
	"github.com/you/go-flight-harvester/internal/dedup"
	"github.com/you/go-flight-harvester/internal/fetch"
	"github.com/you/go-flight-harvester/internal/flight"
	"github.com/you/go-flight-harvester/internal/logger"
	"github.com/you/go-flight-harvester/internal/normalize"
	"github.com/you/go-flight-harvester/internal/providers"
	"github.com/you/go-flight-harvester/internal/validate"
)

type Coordinator struct {
	catalog  Catalog
	airports Airports
	factory  AdapterFactory
	policy   func(config.ProviderConfig) fetch.Policy
	norm     *normalize.Normalizer
	log      *slog.Logger
	timeout  time.Duration
	now      func() time.Time
	observer func(runID string, s State)
}

type Option func(*Coordinator)

func WithAdapterFactory(f AdapterFactory) Option { return func(c *Coordinator) { c.factory = f } }

// WithPolicy overrides how a provider's retry policy is derived.
func WithPolicy(f func(config.ProviderConfig) fetch.Policy) Option {
	return func(c *Coordinator) { c.policy = f }
}

func WithLogger(l *slog.Logger) Option { return func(c *Coordinator) { c.log = logger.OrDiscard(l) } }

// WithTimeout sets the per-run deadline. Zero means no deadline.
func WithTimeout(d time.Duration) Option { return func(c *Coordinator) { c.timeout = d } }

func WithClock(now func() time.Time) Option { return func(c *Coordinator) { c.now = now } }

// WithObserver is called on every state transition, from the goroutine
// running the harvest.
func WithObserver(fn func(runID string, s State)) Option {
	return func(c *Coordinator) { c.observer = fn }
}

func New(catalog Catalog, airports Airports, opts ...Option) *Coordinator {
	c := &Coordinator{
		catalog:  catalog,
		airports: airports,
		factory:  providers.New,
		policy:   config.ProviderConfig.Policy,
		norm:     normalize.New(),
		log:      logger.Discard(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Run prepares a plan for req and executes it. The error is non-nil only
// when the configuration or airport collaborator fails or no provider is
// usable; unit failures are reported in the Report.
func (c *Coordinator) Run(ctx context.Context, req Request) (*Report, error) {
	plan, err := c.Prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	return c.Execute(ctx, plan), nil
}

// fetched is what a worker hands back for one unit.
type fetched struct {
	unit      int
	raws      []flight.RawOffer
	parseErrs []error
	queryErrs []error
	err       error
}

type candidate struct {
	offer   flight.Offer
	missing []string
}

// Execute runs every unit of plan. Each run builds its own semaphores,
// limiters and retriers.
func (c *Coordinator) Execute(ctx context.Context, plan *Plan) *Report {
	rep := &Report{
		RunID:     uuid.NewString(),
		StartedAt: c.now(),
		Skipped:   plan.Skipped,
		Rejected:  map[string]int{},
	}
	log := c.log.With("run", rep.RunID)
	c.enter(rep, StateInit)

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if c.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	owner := make([]*Provider, 0, plan.Units())
	for i := range plan.Providers {
		p := &plan.Providers[i]
		for _, r := range plan.Routes {
			for _, d := range plan.Dates {
				rep.Units = append(rep.Units, Unit{Provider: p.Config.Name, Route: r, Date: d})
				owner = append(owner, p)
			}
		}
	}

	c.enter(rep, StateFetching)
	results := make(chan fetched, len(rep.Units))
	workers := make(map[*Provider]*worker, len(plan.Providers))
	for i, u := range rep.Units {
		w, ok := workers[owner[i]]
		if !ok {
			w = c.newWorker(owner[i], plan.Pax, log)
			workers[owner[i]] = w
		}
		go func(i int, route flight.Route, date time.Time) {
			results <- w.run(runCtx, i, route, date)
		}(i, u.Route, u.Date)
	}

	collected := make([]fetched, 0, len(rep.Units))
	done := make([]bool, len(rep.Units))
wait:
	for len(collected) < len(rep.Units) {
		select {
		case r := <-results:
			done[r.unit] = true
			collected = append(collected, r)
		case <-runCtx.Done():
			break wait
		}
	}
	for i := range rep.Units {
		if !done[i] {
			rep.Units[i].fail(UnitAbandoned, runCtx.Err())
			log.Warn("unit abandoned", unitAttrs(rep.Units[i])...)
		}
	}
	sort.Slice(collected, func(i, j int) bool { return collected[i].unit < collected[j].unit })

	c.enter(rep, StateNormalizing)
	candidates := make(map[int][]candidate, len(collected))
	for _, r := range collected {
		u := &rep.Units[r.unit]
		if r.err != nil {
			status := UnitFailed
			if runCtx.Err() != nil && cancelled(r.err) {
				status = UnitAbandoned
			}
			u.fail(status, r.err)
			log.Warn("unit failed", append(unitAttrs(*u), "status", status, "err", r.err)...)
			continue
		}
		u.Status = UnitOK
		u.Raw = len(r.raws)
		for _, err := range r.queryErrs {
			log.Warn("query failed", append(unitAttrs(*u), "err", err)...)
		}
		for _, err := range r.parseErrs {
			rep.ParseErrors++
			log.Warn("entry skipped", append(unitAttrs(*u), "err", err)...)
		}

		p := owner[r.unit]
		nc := normalize.Context{
			Source:     p.Config.Name,
			Route:      u.Route,
			SearchDate: u.Date,
			Location:   p.Location,
			Now:        c.now,
		}
		cs := make([]candidate, 0, len(r.raws))
		for _, raw := range r.raws {
			missing := c.norm.Missing(raw, p.Mapping, nc)
			sort.Strings(missing)
			cs = append(cs, candidate{offer: c.norm.Normalize(raw, p.Mapping, nc), missing: missing})
		}
		candidates[r.unit] = cs
	}

	c.enter(rep, StateValidating)
	accepted := make(map[int][]flight.Offer, len(candidates))
	for _, r := range collected {
		for _, cand := range candidates[r.unit] {
			err := validate.Validate(cand.offer)
			if len(cand.missing) > 0 {
				err = &flight.ValidationError{Reason: flight.ReasonMissingField, Field: cand.missing[0]}
			}
			if err != nil {
				var ve *flight.ValidationError
				reason := "invalid"
				if errors.As(err, &ve) {
					reason = ve.Reason
				}
				rep.Rejected[reason]++
				log.Info("offer rejected",
					"provider", cand.offer.Source,
					"route", cand.offer.Route,
					"flight_code", cand.offer.FlightCode,
					"reason", reason,
					"err", err)
				continue
			}
			accepted[r.unit] = append(accepted[r.unit], cand.offer)
		}
	}

	c.enter(rep, StateDeduplicating)
	var all []flight.Offer
	for _, r := range collected {
		local := dedup.Local(accepted[r.unit])
		rep.Units[r.unit].Offers = len(local)
		all = append(all, local...)
	}
	rep.Offers = dedup.Merge(all)

	final := StateDone
	if len(rep.Offers) == 0 && rep.Failed()+rep.Abandoned() > 0 {
		final = StatePartialFailure
	}
	rep.FinishedAt = c.now()
	c.enter(rep, final)
	log.Info("harvest finished",
		"state", final,
		"units", len(rep.Units),
		"failed", rep.Failed(),
		"abandoned", rep.Abandoned(),
		"offers", len(rep.Offers))
	return rep
}

func (c *Coordinator) enter(rep *Report, s State) {
	rep.State = s
	rep.Transitions = append(rep.Transitions, s)
	if c.observer != nil {
		c.observer(rep.RunID, s)
	}
}

// worker holds the per-provider limits of one run.
type worker struct {
	p       *Provider
	pax     providers.Pax
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	retrier *fetch.Retrier
}

func (c *Coordinator) newWorker(p *Provider, pax providers.Pax, log *slog.Logger) *worker {
	limit := rate.Inf
	if p.Config.RatePerSec > 0 {
		limit = rate.Limit(p.Config.RatePerSec)
	}
	return &worker{
		p:       p,
		pax:     pax,
		sem:     semaphore.NewWeighted(int64(p.Config.Limit())),
		limiter: rate.NewLimiter(limit, 1),
		retrier: fetch.NewRetrier(c.policy(p.Config), log.With("provider", p.Config.Name)),
	}
}

func (w *worker) run(ctx context.Context, unit int, route flight.Route, date time.Time) fetched {
	res := fetched{unit: unit}
	if err := w.sem.Acquire(ctx, 1); err != nil {
		res.err = err
		return res
	}
	defer w.sem.Release(1)

	qs, err := w.p.Adapter.BuildQuery(route, date, w.pax)
	if err != nil {
		res.err = fmt.Errorf("build query: %w", err)
		return res
	}

	ok := 0
	for _, q := range qs {
		op := q.Op
		payload, err := w.retrier.Do(ctx, func(ctx context.Context) (fetch.Payload, error) {
			if err := w.limiter.Wait(ctx); err != nil {
				return fetch.Payload{}, err
			}
			return op(ctx)
		})
		if err != nil {
			res.queryErrs = append(res.queryErrs, modeErr(q.Mode, err))
			continue
		}

		raws, errs := w.p.Adapter.Parse(payload, w.p.Mapping)
		payloadFailed := false
		for _, err := range errs {
			var pe *flight.ParseError
			if errors.As(err, &pe) && pe.Entry == providers.PayloadEntry {
				payloadFailed = true
				res.queryErrs = append(res.queryErrs, modeErr(q.Mode, err))
				continue
			}
			res.parseErrs = append(res.parseErrs, err)
		}
		res.raws = append(res.raws, raws...)
		if !payloadFailed {
			ok++
		}
	}

	if ok == 0 && len(res.queryErrs) > 0 {
		res.err = res.queryErrs[0]
		if len(res.queryErrs) > 1 {
			res.err = errors.Join(res.queryErrs...)
		}
		res.queryErrs = nil
	}
	return res
}

func modeErr(mode string, err error) error {
	if mode == "" {
		return err
	}
	return fmt.Errorf("%s: %w", mode, err)
}

func cancelled(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var fe *fetch.Error
	return errors.As(err, &fe) && fe.Kind == fetch.Cancelled
}

func unitAttrs(u Unit) []any {
	return []any{"provider", u.Provider, "route", u.Route.String(), "date", u.Date.Format("2006-01-02")}
}
