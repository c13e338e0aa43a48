package steps

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cucumber/godog"

	"github.com/devicelab-dev/crm-e2e/pkg/core"
	"github.com/devicelab-dev/crm-e2e/pkg/dataset"
	"github.com/devicelab-dev/crm-e2e/pkg/db"
	"github.com/devicelab-dev/crm-e2e/pkg/logger"
	"github.com/devicelab-dev/crm-e2e/pkg/page"
	"github.com/devicelab-dev/crm-e2e/pkg/state"
)

// State keys written by the UI steps.
const (
	KeyToast        = "toast"
	KeyBulkTemplate = "bulkTemplate"
	KeyBulkRows     = "bulkRows"
	KeyUsername     = "username"
)

func registerUI(r *Registry) {
	r.Add(GroupUILogin, `I open the CRM login page`, openLoginPage)
	r.Add(GroupUILogin, `I login with username "(.*)" and password "(.*)"`, loginWith)
	r.Add(GroupUILogin, `I login as the default user`, loginDefault)
	r.Add(GroupUILogin, `I should see the dashboard`, seeDashboard)
	r.Add(GroupUILogin, `I should see login error "(.*)"`, seeLoginError)
	r.Add(GroupUILogin, `I logout`, logout)

	r.Add(GroupUIOTP, `I request a password reset OTP for "(.*)"`, requestResetOTP)
	r.Add(GroupUIOTP, `I enter the OTP from the database for "(.*)"`, enterResetOTP)
	r.Add(GroupUIOTP, `I set the new password "(.*)"`, setNewPassword)
	r.Add(GroupUIOTP, `I should see the password reset success message`, seeResetSuccess)

	r.Add(GroupUIActivity, `I navigate to "(.*)" menu`, navigateMenu)
	r.Add(GroupUIActivity, `I create an activity:`, createActivity)
	r.Add(GroupUIActivity, `the activity "(.*)" should be listed with status "(.*)"`, activityListed)

	r.Add(GroupUIBulk, `I generate a bulk upload file "(.*)" from sheet "(.*)"`, generateBulkFile)
	r.Add(GroupUIBulk, `I upload the bulk file for template "(.*)"`, uploadBulkFile)
	r.Add(GroupUIBulk, `the bulk upload should complete within (\d+) seconds`, bulkCompletes)
}

func (w *World) loginPage(ctx context.Context) (*page.LoginPage, error) {
	b, err := w.Page(ctx)
	if err != nil {
		return nil, err
	}
	return page.NewLoginPage(b, w.opts.Props.Web.LoginURL()), nil
}

func openLoginPage(ctx context.Context) error {
	p, err := FromContext(ctx).loginPage(ctx)
	if err != nil {
		return err
	}
	return p.Open(ctx)
}

func loginWith(ctx context.Context, username, password string) error {
	w := FromContext(ctx)
	p, err := w.loginPage(ctx)
	if err != nil {
		return err
	}
	w.State.Set(KeyUsername, username)
	return p.Login(ctx, username, password)
}

func loginDefault(ctx context.Context) error {
	w := FromContext(ctx)
	creds := w.opts.Props.Login
	if creds.Username == "" {
		return core.ErrMissingRequired.WithMessage("login.username is not set in " + w.opts.Props.Dir)
	}
	return loginWith(ctx, creds.Username, creds.Password)
}

func seeDashboard(ctx context.Context) error {
	b, err := FromContext(ctx).Page(ctx)
	if err != nil {
		return err
	}
	return page.NewDashboardPage(b).WaitLoaded(ctx)
}

func seeLoginError(ctx context.Context, message string) error {
	b, err := FromContext(ctx).Page(ctx)
	if err != nil {
		return err
	}
	return b.AssertTextContains(ctx, page.LoginError, message)
}

func logout(ctx context.Context) error {
	b, err := FromContext(ctx).Page(ctx)
	if err != nil {
		return err
	}
	return page.NewDashboardPage(b).Logout(ctx)
}

func requestResetOTP(ctx context.Context, username string) error {
	w := FromContext(ctx)
	p, err := w.loginPage(ctx)
	if err != nil {
		return err
	}
	fp, err := p.ForgotPassword(ctx)
	if err != nil {
		return err
	}
	w.markOTPRequested()
	w.State.Set(KeyUsername, username)
	return fp.RequestOTP(ctx, username)
}

// otpFromDB waits for the OTP issued to username since it was requested.
func (w *World) otpFromDB(ctx context.Context, username string) (string, error) {
	repos, err := w.repos(ctx)
	if err != nil {
		return "", err
	}
	otp, err := db.WaitForOTP(ctx, repos.OTP, username, w.otpRequestedAt(), w.waitOpts(0))
	if err != nil {
		return "", err
	}
	w.State.Set(state.KeyOTP, otp)
	return otp, nil
}

func enterResetOTP(ctx context.Context, username string) error {
	w := FromContext(ctx)
	otp, err := w.otpFromDB(ctx, username)
	if err != nil {
		return err
	}
	b, err := w.Page(ctx)
	if err != nil {
		return err
	}
	return page.NewForgotPasswordPage(b).EnterOTP(ctx, otp)
}

func setNewPassword(ctx context.Context, password string) error {
	b, err := FromContext(ctx).Page(ctx)
	if err != nil {
		return err
	}
	return page.NewForgotPasswordPage(b).SetNewPassword(ctx, password)
}

func seeResetSuccess(ctx context.Context) error {
	b, err := FromContext(ctx).Page(ctx)
	if err != nil {
		return err
	}
	_, err = page.NewForgotPasswordPage(b).SuccessMessage(ctx)
	return err
}

func navigateMenu(ctx context.Context, menu string) error {
	b, err := FromContext(ctx).Page(ctx)
	if err != nil {
		return err
	}
	var path []string
	for _, part := range strings.Split(menu, ">") {
		if part = strings.TrimSpace(part); part != "" {
			path = append(path, part)
		}
	}
	return page.NewDashboardPage(b).OpenMenu(ctx, path...)
}

func createActivity(ctx context.Context, table *godog.Table) error {
	w := FromContext(ctx)
	fields, err := tableFields(table)
	if err != nil {
		return err
	}
	form, err := page.ActivityFormFromFields(fields)
	if err != nil {
		return err
	}
	if err := w.guardWrite("creating an activity"); err != nil {
		return err
	}

	b, err := w.Page(ctx)
	if err != nil {
		return err
	}
	toast, err := page.NewActivityPage(b).Create(ctx, form)
	if err != nil {
		return err
	}
	w.State.Set(state.KeyActivityName, form.Name)
	w.State.Set(KeyToast, toast)
	return nil
}

func activityListed(ctx context.Context, name, status string) error {
	b, err := FromContext(ctx).Page(ctx)
	if err != nil {
		return err
	}
	p := page.NewActivityPage(b)
	if err := p.Search(ctx, name); err != nil {
		return err
	}
	got, err := p.StatusOf(ctx, name)
	if err != nil {
		return err
	}
	if !strings.EqualFold(strings.TrimSpace(got), status) {
		return core.ErrTextMismatch.WithMessage(fmt.Sprintf("activity %q: expected status %q, got %q", name, status, got))
	}
	return nil
}

// generateBulkFile writes a bulk upload workbook from a test data sheet
// into the scenario's upload directory.
func generateBulkFile(ctx context.Context, file, sheet string) error {
	w := FromContext(ctx)
	src := w.testDataPath("")
	if src == "" {
		return core.ErrMissingRequired.WithMessage("testData is not configured")
	}
	wb, err := dataset.Open(src)
	if err != nil {
		return err
	}
	defer wb.Close()

	t, err := wb.Table(sheet)
	if err != nil {
		return err
	}
	if len(t.Rows) == 0 {
		return core.ErrMissingRequired.WithMessage(fmt.Sprintf("sheet %q has no data rows", sheet))
	}

	// Browsers resolve file inputs against their own working directory.
	out, err := filepath.Abs(filepath.Join(w.opts.OutputDir, "uploads", w.ID, filepath.Base(file)))
	if err != nil {
		return err
	}
	rows, err := dataset.WriteBulkUpload(out, sheet, t.Headers, t.Rows, w.expandOrKeep)
	if err != nil {
		return err
	}
	logger.Info("[%s] generated %s with %d rows", w.ID, out, len(rows))
	w.State.Set(state.KeyBulkUploadFile, out)
	w.State.Set(KeyBulkRows, len(rows))
	return nil
}

func uploadBulkFile(ctx context.Context, template string) error {
	w := FromContext(ctx)
	path, err := w.State.MustString(state.KeyBulkUploadFile)
	if err != nil {
		return err
	}
	if err := w.guardWrite("bulk upload"); err != nil {
		return err
	}

	b, err := w.Page(ctx)
	if err != nil {
		return err
	}
	p := page.NewBulkUploadPage(b)
	if err := p.SelectTemplate(ctx, template); err != nil {
		return err
	}
	if err := p.Upload(ctx, path); err != nil {
		return err
	}
	if err := p.Submit(ctx); err != nil {
		return err
	}
	id, err := p.BatchID(ctx)
	if err != nil {
		return err
	}
	w.State.Set(state.KeyBatchID, id)
	w.State.Set(KeyBulkTemplate, template)
	return nil
}

func bulkCompletes(ctx context.Context, seconds int) error {
	w := FromContext(ctx)
	id, err := w.State.MustString(state.KeyBatchID)
	if err != nil {
		return err
	}
	repos, err := w.repos(ctx)
	if err != nil {
		return err
	}
	batch, err := db.WaitForBatchComplete(ctx, repos.Staging, id, w.waitOpts(secondsDuration(seconds)))
	if err != nil {
		return err
	}
	logger.Info("[%s] batch %s %s: %d/%d rows", w.ID, id, batch.Status, batch.SuccessRows, batch.TotalRows)
	return nil
}
