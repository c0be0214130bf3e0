package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/errors"
)

var errFlaky = errors.New("flaky")

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts: attempts,
		Backoff:     Backoff{Initial: time.Millisecond, Max: 2 * time.Millisecond},
	}
}

func TestRetry(t *testing.T) {
	tests := []struct {
		name      string
		attempts  int
		results   []error
		wantCalls int
		wantErr   error
	}{
		{"succeeds after failures", 3, []error{errFlaky, errFlaky, nil}, 3, nil},
		{"exhausts attempts", 2, []error{errFlaky, errFlaky}, 2, errFlaky},
		{"permanent stops", 5, []error{Permanent(errFlaky)}, 1, errFlaky},
		{"open circuit stops", 5, []error{ErrCircuitOpen}, 1, ErrCircuitOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Retry(context.Background(), "test", fastRetry(tt.attempts), func() error {
				err := tt.results[calls]
				calls++
				return err
			})
			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.False(t, IsPermanent(err))
		})
	}
	assert.True(t, IsPermanent(Permanent(errFlaky)))
	assert.Nil(t, Permanent(nil))
}

func TestRetryCanceledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxAttempts: 3, Backoff: Backoff{Initial: time.Hour, Max: time.Hour}}
	err := Retry(ctx, "test", cfg, func() error {
		cancel()
		return errFlaky
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Initial: 100 * time.Millisecond, Max: time.Second, Multiplier: 2}
	assert.Equal(t, 100*time.Millisecond, b.Delay(1))
	assert.Equal(t, 400*time.Millisecond, b.Delay(3))
	assert.Equal(t, time.Second, b.Delay(10))

	b.Jitter = 0.5
	for i := 0; i < 100; i++ {
		d := b.Delay(1)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(threshold int, transitions *[]State) (*CircuitBreaker, *clock) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{
		FailureThreshold: threshold,
		ResetTimeout:     time.Minute,
		OnStateChange: func(_ string, to State) {
			if transitions != nil {
				*transitions = append(*transitions, to)
			}
		},
	})
	cb.now = c.now
	return cb, c
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb, c := newTestBreaker(2, nil)
	assert.Equal(t, errFlaky, cb.Execute(func() error { return errFlaky }))
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, errFlaky, cb.Execute(func() error { return errFlaky }))
	assert.Equal(t, StateOpen, cb.GetState())
	assert.Equal(t, time.Minute, cb.RetryAfter())

	c.advance(20 * time.Second)
	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
	assert.Equal(t, 40*time.Second, cb.RetryAfter())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Zero(t, cb.RetryAfter())
	assert.NoError(t, cb.Execute(func() error { return nil }))
}

func TestCircuitBreakerIgnoresPermanentErrors(t *testing.T) {
	cb, _ := newTestBreaker(1, nil)
	notFound := Permanent(apperrors.ErrSourceUnavailable)
	for i := 0; i < 3; i++ {
		assert.Equal(t, notFound, cb.Execute(func() error { return notFound }))
	}
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreakerSuccessResetsCount(t *testing.T) {
	cb, _ := newTestBreaker(2, nil)
	_ = cb.Execute(func() error { return errFlaky })
	_ = cb.Execute(func() error { return nil })
	_ = cb.Execute(func() error { return errFlaky })
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreakerProbe(t *testing.T) {
	var transitions []State
	cb, c := newTestBreaker(1, &transitions)
	_ = cb.Execute(func() error { return errFlaky })
	c.advance(time.Minute)

	// A failed probe reopens for another full timeout.
	_ = cb.Execute(func() error { return errFlaky })
	assert.Equal(t, StateOpen, cb.GetState())
	assert.Equal(t, time.Minute, cb.RetryAfter())

	c.advance(time.Minute)
	err := cb.Execute(func() error {
		// Only one probe at a time.
		assert.ErrorIs(t, cb.Execute(func() error { return nil }), ErrCircuitOpen)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateOpen, StateHalfOpen, StateClosed}, transitions)
}

func TestWithin(t *testing.T) {
	_, err := Within(context.Background(), 5*time.Millisecond, "slow", func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, apperrors.ErrTimeout)

	v, err := Within(context.Background(), time.Second, "fast", func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	v, err = Within(context.Background(), 0, "unbounded", func(context.Context) (int, error) { return 3, errFlaky })
	assert.Equal(t, 3, v)
	assert.ErrorIs(t, err, errFlaky)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Within(ctx, time.Second, "canceled", func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, apperrors.ErrTimeout)
}
