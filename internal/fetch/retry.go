// Package fetch runs remote retrievals with bounded retries and provides the
// HTTP and page transports that produce payloads.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/you/go-flight-harvester/internal/flight"
	"github.com/you/go-flight-harvester/internal/logger"
)

// Payload is what one retrieval returns.
type Payload struct {
	Body   []byte
	Status int
	URL    string
}

// Operation performs one retrieval attempt.
type Operation func(ctx context.Context) (Payload, error)

// Policy is the retry schedule. Retry r (1-based) waits BaseDelay*2^(r-1) + Jitter().
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Jitter      func() time.Duration
	Sleep       func(ctx context.Context, d time.Duration) error
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		Jitter:      UniformJitter(time.Second),
		Sleep:       SleepContext,
	}
}

// UniformJitter draws from [0, max).
func UniformJitter(max time.Duration) func() time.Duration {
	return func() time.Duration {
		if max <= 0 {
			return 0
		}
		return rand.N(max)
	}
}

// SleepContext waits d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Delay is the wait before retry r.
func (p Policy) Delay(r int) time.Duration {
	if r < 1 {
		return 0
	}
	d := p.BaseDelay << (r - 1)
	if p.Jitter != nil {
		d += p.Jitter()
	}
	return d
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.MaxAttempts < 1 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.Sleep == nil {
		p.Sleep = def.Sleep
	}
	return p
}

type Kind int

const (
	Exhausted Kind = iota + 1
	Cancelled
)

func (k Kind) String() string {
	switch k {
	case Exhausted:
		return "exhausted"
	case Cancelled:
		return "cancelled"
	}
	return "unknown"
}

// Error ends a Do call that never succeeded.
type Error struct {
	Kind     Kind
	Attempts int
	Last     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch %s after %d attempt(s): %v", e.Kind, e.Attempts, e.Last)
}

func (e *Error) Unwrap() error { return e.Last }

func (e *Error) Is(target error) bool {
	return e.Kind == Exhausted && target == flight.ErrExhaustedRetries
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retrier is stateless apart from its policy and may be shared.
type Retrier struct {
	policy Policy
	log    *slog.Logger
}

func NewRetrier(p Policy, log *slog.Logger) *Retrier {
	return &Retrier{policy: p.withDefaults(), log: logger.OrDiscard(log)}
}

func (r *Retrier) Policy() Policy { return r.policy }

// Do runs op until it succeeds, fails permanently, ctx ends or attempts run out.
func (r *Retrier) Do(ctx context.Context, op Operation) (Payload, error) {
	var last error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Payload{}, &Error{Kind: Cancelled, Attempts: attempt - 1, Last: err}
		}

		p, err := op(ctx)
		if err == nil {
			return p, nil
		}
		last = err

		var perm *permanentError
		if errors.As(err, &perm) {
			return Payload{}, perm.err
		}
		if ctx.Err() != nil {
			return Payload{}, &Error{Kind: Cancelled, Attempts: attempt, Last: ctx.Err()}
		}
		if attempt == r.policy.MaxAttempts {
			break
		}

		wait := r.policy.Delay(attempt)
		r.log.Debug("fetch retry", "attempt", attempt, "wait", wait, "err", err)
		if err := r.policy.Sleep(ctx, wait); err != nil {
			return Payload{}, &Error{Kind: Cancelled, Attempts: attempt, Last: err}
		}
	}
	return Payload{}, &Error{Kind: Exhausted, Attempts: r.policy.MaxAttempts, Last: last}
}
