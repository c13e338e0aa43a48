package steps

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/devicelab-dev/crm-e2e/pkg/core"
	"github.com/devicelab-dev/crm-e2e/pkg/db"
	"github.com/devicelab-dev/crm-e2e/pkg/logger"
	"github.com/devicelab-dev/crm-e2e/pkg/softassert"
	"github.com/devicelab-dev/crm-e2e/pkg/state"
)

func registerDB(r *Registry) {
	r.Add(GroupDB, `the OTP for "(.*)" should arrive within (\d+) seconds`, otpArrives)
	r.Add(GroupDB, `the company "(.*)" should exist in company master`, companyExists)
	r.Add(GroupDB, `all staging rows for batch "(.*)" in "(.*)" should be moved within (\d+) seconds`, stagingMoved)
	r.Add(GroupDB, `the activity "(.*)" should exist in the database`, activityExists)
	r.Add(GroupDB, `the API activity should match the database record`, apiActivityMatches)
}

func secondsDuration(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func otpArrives(ctx context.Context, username string, seconds int) error {
	w := FromContext(ctx)
	repos, err := w.repos(ctx)
	if err != nil {
		return err
	}
	otp, err := db.WaitForOTP(ctx, repos.OTP, username, w.otpRequestedAt(), w.waitOpts(secondsDuration(seconds)))
	if err != nil {
		return err
	}
	w.State.Set(state.KeyOTP, otp)
	return nil
}

// companyExists accepts a company code or a company name.
func companyExists(ctx context.Context, company string) error {
	w := FromContext(ctx)
	repos, err := w.repos(ctx)
	if err != nil {
		return err
	}
	c, err := repos.Company.ByCode(ctx, company)
	if errors.Is(err, core.ErrRecordNotFound) {
		c, err = repos.Company.ByName(ctx, company)
	}
	if err != nil {
		return err
	}
	if !c.IsActive {
		logger.Warn("[%s] company %s (%d) is inactive", w.ID, c.Code, c.ID)
	}
	w.State.Set(state.KeyCompanyID, c.ID)
	return nil
}

func stagingMoved(ctx context.Context, batchID, table string, seconds int) error {
	w := FromContext(ctx)
	repos, err := w.repos(ctx)
	if err != nil {
		return err
	}
	c, err := db.WaitForAllMoved(ctx, repos.Staging, strings.TrimSpace(table), batchID, w.waitOpts(secondsDuration(seconds)))
	if err != nil {
		return err
	}
	logger.Info("[%s] all %d %s rows of batch %s moved", w.ID, c.Total, table, batchID)
	return nil
}

func activityExists(ctx context.Context, name string) error {
	w := FromContext(ctx)
	repos, err := w.repos(ctx)
	if err != nil {
		return err
	}
	a, err := db.WaitForActivity(ctx, repos.Activity, name, w.waitOpts(0))
	if err != nil {
		return err
	}
	w.State.Set(state.KeyActivityID, a.ID)
	return nil
}

// apiActivityMatches compares the activity created through the API with
// its database row, reporting every differing column at once.
func apiActivityMatches(ctx context.Context) error {
	w := FromContext(ctx)
	w.mu.Lock()
	req := w.apiActivity
	w.mu.Unlock()
	if req == nil {
		return core.ErrMissingRequired.WithMessage("no activity was added via API in this scenario")
	}

	repos, err := w.repos(ctx)
	if err != nil {
		return err
	}
	rec, err := db.WaitForActivity(ctx, repos.Activity, req.ActivityName, w.waitOpts(0))
	if err != nil {
		return err
	}

	soft := softassert.New(fmt.Sprintf("activity %q", req.ActivityName))
	if req.ActivityID != 0 {
		soft.Equal("activity_id", req.ActivityID, rec.ID)
	}
	soft.Equal("activity_type", req.ActivityType, rec.ActivityType)
	if req.Frequency != "" {
		soft.Equal("frequency", req.Frequency, rec.Frequency.String)
	}
	if req.Description != "" {
		soft.Equal("description", req.Description, rec.Description.String)
	}
	if req.Status != "" {
		soft.True("status", strings.EqualFold(req.Status, rec.Status), fmt.Sprintf("expected %q, got %q", req.Status, rec.Status))
	}
	if req.CompanyID != 0 {
		soft.Equal("company_id", req.CompanyID, rec.CompanyID)
	}
	soft.Equal("is_active", req.IsActive, rec.IsActive)
	return soft.Err()
}
