package fetch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/you/go-flight-harvester/internal/flight"
)

type recordedSleep struct {
	waits []time.Duration
}

func (r *recordedSleep) sleep(ctx context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return ctx.Err()
}

func testPolicy(rec *recordedSleep) Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		Jitter:      func() time.Duration { return 500 * time.Millisecond },
		Sleep:       rec.sleep,
	}
}

func TestRetrierBackoffSchedule(t *testing.T) {
	rec := &recordedSleep{}
	calls := 0
	op := func(ctx context.Context) (Payload, error) {
		calls++
		return Payload{}, &flight.TransportError{Provider: "p", Status: 503}
	}

	_, err := NewRetrier(testPolicy(rec), nil).Do(context.Background(), op)

	require.Error(t, err)
	require.Equal(t, 3, calls)
	require.Equal(t, []time.Duration{2500 * time.Millisecond, 4500 * time.Millisecond}, rec.waits)

	require.True(t, errors.Is(err, flight.ErrExhaustedRetries))
	require.True(t, errors.Is(err, flight.ErrTransport), "last cause is kept")
	var fe *Error
	require.True(t, errors.As(err, &fe))
	require.Equal(t, Exhausted, fe.Kind)
	require.Equal(t, 3, fe.Attempts)
}

func TestRetrierSucceedsAfterFailure(t *testing.T) {
	rec := &recordedSleep{}
	calls := 0
	op := func(ctx context.Context) (Payload, error) {
		calls++
		if calls == 1 {
			return Payload{}, errors.New("connection reset")
		}
		return Payload{Body: []byte("ok"), Status: 200}, nil
	}

	p, err := NewRetrier(testPolicy(rec), nil).Do(context.Background(), op)

	require.NoError(t, err)
	require.Equal(t, "ok", string(p.Body))
	require.Equal(t, 2, calls)
	require.Len(t, rec.waits, 1)
}

func TestRetrierPermanentStops(t *testing.T) {
	calls := 0
	bad := errors.New("bad credentials")
	op := func(ctx context.Context) (Payload, error) {
		calls++
		return Payload{}, Permanent(bad)
	}

	_, err := NewRetrier(testPolicy(&recordedSleep{}), nil).Do(context.Background(), op)

	require.ErrorIs(t, err, bad)
	require.False(t, errors.Is(err, flight.ErrExhaustedRetries))
	require.Equal(t, 1, calls)
	require.Nil(t, Permanent(nil))
}

func TestRetrierHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	op := func(ctx context.Context) (Payload, error) {
		calls++
		cancel()
		return Payload{}, errors.New("timeout")
	}

	p := testPolicy(&recordedSleep{})
	p.Sleep = SleepContext
	_, err := NewRetrier(p, nil).Do(ctx, op)

	require.ErrorIs(t, err, context.Canceled)
	require.False(t, errors.Is(err, flight.ErrExhaustedRetries))
	require.Equal(t, 1, calls)
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	require.ErrorIs(t, SleepContext(ctx, time.Hour), context.Canceled)
	require.Less(t, time.Since(start), time.Second)
	require.NoError(t, SleepContext(context.Background(), time.Millisecond))
}

func TestPolicyDefaultsAndJitter(t *testing.T) {
	p := DefaultPolicy()
	require.Equal(t, 3, p.MaxAttempts)
	require.Equal(t, 2*time.Second, p.BaseDelay)
	for i := 0; i < 50; i++ {
		j := p.Jitter()
		require.GreaterOrEqual(t, j, time.Duration(0))
		require.Less(t, j, time.Second)
	}

	r := NewRetrier(Policy{}, nil)
	require.Equal(t, 3, r.Policy().MaxAttempts)
	require.Equal(t, 8*time.Second, Policy{BaseDelay: 2 * time.Second}.Delay(3))
}
