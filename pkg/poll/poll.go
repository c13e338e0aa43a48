// Package poll waits for asynchronous backend state: an OTP row appearing,
// a bulk upload batch finishing, staging rows being moved.
//
// Conditions are evaluated immediately, then at a fixed interval until they
// report done, return a Stop error, or the timeout elapses.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/devicelab-dev/crm-e2e/pkg/core"
	"github.com/devicelab-dev/crm-e2e/pkg/logger"
)

// Defaults applied to zero Options fields.
const (
	DefaultInterval = 5 * time.Second
	DefaultTimeout  = 2 * time.Minute
)

// Options configures a wait.
type Options struct {
	Interval    time.Duration
	Timeout     time.Duration
	Description string // shows up in logs and the timeout error
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Interval > o.Timeout {
		o.Interval = o.Timeout
	}
	if o.Description == "" {
		o.Description = "condition"
	}
	return o
}

// Condition reports whether the awaited state has been reached.
type Condition func(ctx context.Context) (bool, error)

// Stop marks err as final: polling ends immediately and returns err.
func Stop(err error) error {
	return backoff.Permanent(err)
}

// TimeoutError is returned when the condition was not met in time.
type TimeoutError struct {
	Description string
	Elapsed     time.Duration
	Attempts    int
	Last        error // last error returned by the condition, if any
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("timed out after %s waiting for %s (%d attempts)", e.Elapsed.Round(time.Millisecond), e.Description, e.Attempts)
	if e.Last != nil {
		msg += ": last error: " + e.Last.Error()
	}
	return msg
}

// Unwrap exposes core.ErrWaitTimeout and the last condition error.
func (e *TimeoutError) Unwrap() []error {
	if e.Last != nil {
		return []error{core.ErrWaitTimeout, e.Last}
	}
	return []error{core.ErrWaitTimeout}
}

var errNotYet = errors.New("not yet")

// Until polls cond until it returns true.
func Until(ctx context.Context, opts Options, cond Condition) error {
	_, err := Value(ctx, opts, func(ctx context.Context) (struct{}, bool, error) {
		ok, err := cond(ctx)
		return struct{}{}, ok, err
	})
	return err
}

// Value polls fn until it reports done and returns the value it produced.
func Value[T any](ctx context.Context, opts Options, fn func(ctx context.Context) (T, bool, error)) (T, error) {
	opts = opts.withDefaults()

	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	var (
		result    T
		zero      T
		attempts  int
		last      error
		permanent bool
		start     = time.Now()
	)

	op := func() error {
		attempts++
		v, done, err := fn(ctx)
		if err != nil {
			var perm *backoff.PermanentError
			if errors.As(err, &perm) {
				permanent = true
				return err
			}
			if ctx.Err() == nil || last == nil {
				last = err
			}
			return err
		}
		if !done {
			return errNotYet
		}
		result = v
		return nil
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(opts.Interval), ctx)
	err := backoff.RetryNotify(op, b, func(err error, next time.Duration) {
		logger.Debug("waiting for %s: attempt %d: %v; next in %s", opts.Description, attempts, err, next)
	})
	if err == nil {
		logger.Debug("%s reached after %d attempts (%s)", opts.Description, attempts, time.Since(start).Round(time.Millisecond))
		return result, nil
	}
	if permanent {
		return zero, err
	}
	if perr := parent.Err(); perr != nil {
		return zero, fmt.Errorf("waiting for %s: %w", opts.Description, perr)
	}

	terr := &TimeoutError{
		Description: opts.Description,
		Elapsed:     time.Since(start),
		Attempts:    attempts,
		Last:        last,
	}
	logger.Warn("%v", terr)
	return zero, terr
}
