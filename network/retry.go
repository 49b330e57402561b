package network

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sheetbridge/persistence/constants"
)

// RetryPolicy bounds one logical store operation: how many attempts it
// may make and how long each attempt may run.
type RetryPolicy struct {
	MaxAttempts int
	Timeout     time.Duration
}

// Sleeper waits for d or until ctx is done, whichever comes first. It
// returns ctx.Err() if the wait was cut short.
type Sleeper func(ctx context.Context, d time.Duration) error

// BackoffDelay returns the exponential backoff before the retry that
// follows failed attempt number attempt (1-based), without jitter:
// min(1s * 2^(attempt-1), 10s).
func BackoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 16 {
		return constants.BackoffMax
	}
	delay := constants.BackoffBase << uint(attempt-1)
	if delay > constants.BackoffMax {
		delay = constants.BackoffMax
	}
	return delay
}

// CircuitDelay returns the extra delay inserted after consecutive
// failures: min(5s + 2s * consecutiveFailures, 15s) once at least two
// attempts in a row have failed, zero before that.
func CircuitDelay(consecutiveFailures int) time.Duration {
	if consecutiveFailures < constants.CircuitFailureFloor {
		return 0
	}
	delay := constants.CircuitDelayBase + constants.CircuitDelayStep*time.Duration(consecutiveFailures)
	if delay > constants.CircuitDelayMax {
		delay = constants.CircuitDelayMax
	}
	return delay
}

// storeBackOff is the schedule between attempts of one store call. Each
// call to NextBackOff counts one more failed attempt.
type storeBackOff struct {
	failures int
	jitter   func() time.Duration
}

// NewStoreBackOff returns the delay schedule the remote store waits on
// between attempts: BackoffDelay plus jitter, plus CircuitDelay once
// failures pile up. It never stops on its own; bound it with
// backoff.WithMaxRetries. A nil jitter adds nothing.
func NewStoreBackOff(jitter func() time.Duration) backoff.BackOff {
	return &storeBackOff{jitter: jitter}
}

func (b *storeBackOff) NextBackOff() time.Duration {
	b.failures++
	delay := BackoffDelay(b.failures) + CircuitDelay(b.failures)
	if b.jitter != nil {
		delay += b.jitter()
	}
	return delay
}

func (b *storeBackOff) Reset() {
	b.failures = 0
}

// sleeperTimer is a backoff.Timer that waits with a Sleeper, so tests
// can replace real waits. Start blocks for the whole wait. A wait cut
// short is kept in err for the next attempt to see.
type sleeperTimer struct {
	ctx   context.Context
	sleep Sleeper
	c     chan time.Time
	err   error
}

func (t *sleeperTimer) Start(d time.Duration) {
	t.c = make(chan time.Time, 1)
	if err := t.sleep(t.ctx, d); err != nil {
		t.err = err
	}
	t.c <- time.Now()
}

func (t *sleeperTimer) Stop() {}

func (t *sleeperTimer) C() <-chan time.Time {
	return t.c
}

// RandomJitter returns a random delay between 0 and 1000ms inclusive.
func RandomJitter() time.Duration {
	ms := int64(constants.BackoffJitterMax / time.Millisecond)
	return time.Duration(rand.Int63n(ms+1)) * time.Millisecond
}

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// raceAttempt runs fn in its own goroutine and waits for whichever
// comes first: fn's result, the per-attempt timeout, or the caller's
// context. When the timer wins, the attempt's context is cancelled so
// the underlying request can stop, but fn may keep running until the
// transport notices. A zero timeout means no per-attempt limit.
func raceAttempt[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		value, err := fn(attemptCtx)
		done <- outcome{value: value, err: err}
	}()

	var timeoutChan <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutChan = timer.C
	}

	select {
	case out := <-done:
		return out.value, out.err
	case <-timeoutChan:
		return zero, fmt.Errorf("%w after %s", ErrAttemptTimeout, timeout)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
