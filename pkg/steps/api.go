package steps

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cucumber/godog"

	"github.com/devicelab-dev/crm-e2e/pkg/api"
	"github.com/devicelab-dev/crm-e2e/pkg/core"
	"github.com/devicelab-dev/crm-e2e/pkg/logger"
	"github.com/devicelab-dev/crm-e2e/pkg/page"
	"github.com/devicelab-dev/crm-e2e/pkg/state"
)

func registerAPI(r *Registry) {
	r.Add(GroupAPI, `I call the login API with username "(.*)" and password "(.*)"`, apiLogin)
	r.Add(GroupAPI, `I call the login API as the default user`, apiLoginDefault)
	r.Add(GroupAPI, `I fetch the activity settings`, apiSettings)
	r.Add(GroupAPI, `I add an activity via API:`, apiAddActivity)
	r.Add(GroupAPI, `the response status should be (\d+)`, responseStatus)
	r.Add(GroupAPI, `the response field "(.*)" should (equal|contain) "(.*)"`, responseField)
	r.Add(GroupAPI, `the response field "(.*)" should softly (equal|contain) "(.*)"`, responseFieldSoft)
	r.Add(GroupAPI, `I save response field "(.*)" as "(.*)"`, saveResponseField)
	r.Add(GroupAPI, `the bulk upload batch "(.*)" status via API should be "(.*)"`, apiBatchStatus)
}

// recorded turns an API outcome into a step outcome. Error statuses are
// kept for the assertion steps that follow; only transport and decoding
// failures fail the step.
func (w *World) recorded(resp *api.Response, err error) error {
	if resp != nil {
		w.State.Set(state.KeyLastStatus, resp.StatusCode)
	}
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		logger.Info("[%s] %v", w.ID, apiErr)
		return nil
	}
	return err
}

func apiLogin(ctx context.Context, username, password string) error {
	w := FromContext(ctx)
	login, resp, err := w.API.Auth.Login(ctx, username, password)
	if err == nil {
		w.State.Set(state.KeyAuthToken, login.Data.Token)
		w.State.Set(state.KeyUserID, login.Data.UserID)
		w.State.Set(state.KeyCompanyID, login.Data.CompanyID)
		w.State.Set(KeyUsername, username)
	}
	return w.recorded(resp, err)
}

func apiLoginDefault(ctx context.Context) error {
	w := FromContext(ctx)
	creds := w.opts.Props.Login
	if creds.Username == "" {
		return core.ErrMissingRequired.WithMessage("login.username is not set in " + w.opts.Props.Dir)
	}
	return apiLogin(ctx, creds.Username, creds.Password)
}

func apiSettings(ctx context.Context) error {
	w := FromContext(ctx)
	settings, resp, err := w.API.Activities.Settings(ctx)
	if err == nil {
		w.mu.Lock()
		w.settings = &settings.Data
		w.mu.Unlock()
	}
	return w.recorded(resp, err)
}

// activityRequest builds the add-activity payload from table fields,
// resolving option names through the fetched settings when available.
func (w *World) activityRequest(fields map[string]string) (*api.AddEditActivityRequest, error) {
	form, err := page.ActivityFormFromFields(fields)
	if err != nil {
		return nil, err
	}
	req := &api.AddEditActivityRequest{
		ActivityName: form.Name,
		ActivityType: form.Type,
		Frequency:    form.Frequency,
		Description:  form.Description,
		StartDate:    form.StartDate,
		EndDate:      form.EndDate,
		Status:       form.Status,
		IsActive:     form.Status == "" || strings.EqualFold(form.Status, "active"),
	}
	if v := w.State.String(state.KeyCompanyID); v != "" {
		req.CompanyID, _ = strconv.ParseInt(v, 10, 64)
	}

	w.mu.Lock()
	settings := w.settings
	w.mu.Unlock()
	if settings != nil {
		req.ActivityTypeID = api.OptionID(settings.ActivityTypes, form.Type)
		if req.CompanyID == 0 {
			req.CompanyID = settings.CompanyID
		}
	}
	return req, nil
}

func apiAddActivity(ctx context.Context, table *godog.Table) error {
	w := FromContext(ctx)
	fields, err := tableFields(table)
	if err != nil {
		return err
	}
	req, err := w.activityRequest(fields)
	if err != nil {
		return err
	}
	if err := w.guardWrite("adding an activity"); err != nil {
		return err
	}

	created, resp, err := w.API.Activities.AddEdit(ctx, req)
	if err == nil {
		req.ActivityID = created.Data.ActivityID
		w.State.Set(state.KeyActivityID, created.Data.ActivityID)
		w.State.Set(state.KeyActivityName, req.ActivityName)
		w.mu.Lock()
		w.apiActivity = req
		w.mu.Unlock()
	}
	return w.recorded(resp, err)
}

func (w *World) lastResponse() (*api.Response, error) {
	resp := w.API.LastResponse()
	if resp == nil {
		return nil, core.ErrMissingRequired.WithMessage("no API call has been made in this scenario")
	}
	return resp, nil
}

func responseStatus(ctx context.Context, want int) error {
	resp, err := FromContext(ctx).lastResponse()
	if err != nil {
		return err
	}
	if resp.StatusCode != want {
		return core.ErrUnexpectedStatus.WithMessage(fmt.Sprintf("%s %s: expected HTTP %d, got %d: %s",
			resp.Method, resp.Endpoint, want, resp.StatusCode, snippet(resp.Body)))
	}
	return nil
}

func responseField(ctx context.Context, path, op, expected string) error {
	resp, err := FromContext(ctx).lastResponse()
	if err != nil {
		return err
	}
	got, err := resp.FieldString(path)
	if err != nil {
		return err
	}
	return compare("response field "+path, got, op, expected)
}

func responseFieldSoft(ctx context.Context, path, op, expected string) error {
	w := FromContext(ctx)
	resp, err := w.lastResponse()
	if err != nil {
		return err
	}
	got, err := resp.FieldString(path)
	if !w.Soft.NoError("response field "+path, err) {
		return nil
	}
	if op == "contain" {
		w.Soft.Contains("response field "+path, got, expected)
	} else {
		w.Soft.Equal("response field "+path, expected, got)
	}
	return nil
}

func saveResponseField(ctx context.Context, path, key string) error {
	w := FromContext(ctx)
	resp, err := w.lastResponse()
	if err != nil {
		return err
	}
	v, err := resp.FieldString(path)
	if err != nil {
		return err
	}
	w.State.Set(key, v)
	return nil
}

func apiBatchStatus(ctx context.Context, batchID, want string) error {
	w := FromContext(ctx)
	status, resp, err := w.API.BulkUpload.Status(ctx, batchID)
	_ = w.recorded(resp, err)
	if err != nil {
		return err
	}
	if !strings.EqualFold(status.Data.Status, want) {
		return core.ErrConditionNotMet.WithMessage(fmt.Sprintf("batch %s: expected status %s, got %s (%d of %d rows failed)",
			batchID, want, status.Data.Status, status.Data.FailedRows, status.Data.TotalRows))
	}
	return nil
}

func snippet(body []byte) string {
	const max = 200
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
