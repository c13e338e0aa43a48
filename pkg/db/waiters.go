package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/devicelab-dev/crm-e2e/pkg/core"
	"github.com/devicelab-dev/crm-e2e/pkg/poll"
)

// keepWaiting reports whether a lookup error means "not there yet" or a
// dropped connection the pool can recover from.
func keepWaiting(err error) bool {
	return errors.Is(err, core.ErrRecordNotFound) || errors.Is(err, core.ErrDatabaseUnavailable)
}

// lookupOutcome converts a repository error into a poll outcome: missing
// records and connection failures are retried, everything else stops the
// wait.
func lookupOutcome(err error) error {
	if keepWaiting(err) {
		return err
	}
	return poll.Stop(err)
}

// WaitForOTP polls until an OTP issued to username after since shows up
// and returns it.
func WaitForOTP(ctx context.Context, repo *OTPRepository, username string, since time.Time, opts poll.Options) (string, error) {
	if opts.Description == "" {
		opts.Description = "OTP for " + username
	}
	rec, err := poll.Value(ctx, opts, func(ctx context.Context) (*OTPRecord, bool, error) {
		rec, err := repo.LatestSince(ctx, username, since)
		if err != nil {
			return nil, false, lookupOutcome(err)
		}
		return rec, rec.OTP != "", nil
	})
	if err != nil {
		return "", err
	}
	return rec.OTP, nil
}

// WaitForBatchComplete polls until the processor finishes the batch. A
// batch that ends as FAILED stops the wait with ErrConditionNotMet.
func WaitForBatchComplete(ctx context.Context, repo *StagingRepository, batchID string, opts poll.Options) (*Batch, error) {
	if opts.Description == "" {
		opts.Description = "bulk upload batch " + batchID
	}
	return poll.Value(ctx, opts, func(ctx context.Context) (*Batch, bool, error) {
		b, err := repo.BatchStatus(ctx, batchID)
		if err != nil {
			return nil, false, lookupOutcome(err)
		}
		if !b.Done() {
			return nil, false, nil
		}
		if b.Status == BatchFailed {
			return b, false, poll.Stop(core.ErrConditionNotMet.
				WithMessage(fmt.Sprintf("batch %s failed: %d of %d rows rejected", batchID, b.FailedRows, b.TotalRows)).
				WithDetails(map[string]interface{}{"batchId": batchID, "failedRows": b.FailedRows}))
		}
		return b, true, nil
	})
}

// WaitForAllMoved polls until the batch has rows in table and every one of
// them has is_moved = true.
func WaitForAllMoved(ctx context.Context, repo *StagingRepository, table, batchID string, opts poll.Options) (Counts, error) {
	if opts.Description == "" {
		opts.Description = fmt.Sprintf("%s rows of batch %s moved", table, batchID)
	}
	var last Counts
	_, err := poll.Value(ctx, opts, func(ctx context.Context) (Counts, bool, error) {
		c, err := repo.Count(ctx, table, batchID)
		if err != nil {
			return c, false, lookupOutcome(err)
		}
		last = c
		return c, c.Total > 0 && c.Pending == 0, nil
	})
	if err != nil {
		var te *poll.TimeoutError
		if errors.As(err, &te) {
			return last, fmt.Errorf("%d of %d rows still pending: %w", last.Pending, last.Total, err)
		}
		return last, err
	}
	return last, nil
}

// WaitForActivity polls until an activity called name exists.
func WaitForActivity(ctx context.Context, repo *ActivityRepository, name string, opts poll.Options) (*ActivityRecord, error) {
	if opts.Description == "" {
		opts.Description = "activity " + name
	}
	return poll.Value(ctx, opts, func(ctx context.Context) (*ActivityRecord, bool, error) {
		a, err := repo.ByName(ctx, name)
		if err != nil {
			return nil, false, lookupOutcome(err)
		}
		return a, true, nil
	})
}
