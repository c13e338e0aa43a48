package page

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/crm-e2e/pkg/core"
	"github.com/devicelab-dev/crm-e2e/pkg/driver/mock"
	"github.com/devicelab-dev/crm-e2e/pkg/locator"
)

func newBase(platform core.Platform) (*Base, *mock.Driver) {
	d := mock.New(mock.Config{Platform: platform})
	return NewBase(d, 600*time.Millisecond), d
}

func TestLoginPage_Login(t *testing.T) {
	ctx := context.Background()
	b, d := newBase(core.PlatformWeb)
	d.Add(LoginUsername, "")
	d.Add(LoginPassword, "")
	d.Add(LoginSubmit, "Login")
	d.OnClick(LoginSubmit, func(d *mock.Driver) {
		d.Remove(LoginUsername)
		d.Add(DashboardHeader, "Dashboard")
	})

	login := NewLoginPage(b, "https://qa.crm.example.com/login")
	require.NoError(t, login.Open(ctx))
	assert.Equal(t, "https://qa.crm.example.com/login", d.URL())

	require.NoError(t, login.Login(ctx, "qa.admin", "Secret@123"))
	assert.True(t, login.IsLoggedIn(ctx))
	require.NoError(t, NewDashboardPage(b).WaitLoaded(ctx))

	var typed []string
	for _, a := range d.Actions() {
		if a.Kind == "type" {
			typed = append(typed, a.Value)
		}
	}
	assert.Equal(t, []string{"qa.admin", "Secret@123"}, typed)
}

func TestLoginPage_ErrorMessage(t *testing.T) {
	b, d := newBase(core.PlatformWeb)
	d.AppearAfter(LoginError, "Invalid username or password", 1)

	msg, err := NewLoginPage(b, "").ErrorMessage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Invalid username or password", msg)
}

func TestBase_WaitVisibleTimeout(t *testing.T) {
	b, _ := newBase(core.PlatformWeb)
	_, err := b.WaitVisible(context.Background(), locator.ID("never"))

	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrElementNotFound))
	assert.True(t, errors.Is(err, core.ErrWaitTimeout), "wait details kept as cause")
	assert.Contains(t, err.Error(), "not found after")
}

func TestBase_WaitVisibleHidden(t *testing.T) {
	b, d := newBase(core.PlatformWeb)
	el := d.Add(locator.ID("panel"), "Details")
	el.Visible = false

	_, err := b.WaitVisible(context.Background(), locator.ID("panel"))
	assert.True(t, errors.Is(err, core.ErrElementNotVisible), "got %v", err)
}

func TestBase_WaitGone(t *testing.T) {
	b, d := newBase(core.PlatformWeb)
	d.Add(LoadingSpinner, "")
	go func() {
		time.Sleep(250 * time.Millisecond)
		d.Remove(LoadingSpinner)
	}()
	assert.NoError(t, b.WaitGone(context.Background(), LoadingSpinner))
}

func TestBase_AssertText(t *testing.T) {
	ctx := context.Background()
	b, d := newBase(core.PlatformWeb)
	d.Add(locator.ToastMessage(), "  Activity saved successfully ")

	assert.NoError(t, b.AssertText(ctx, locator.ToastMessage(), "Activity saved successfully"))
	assert.NoError(t, b.AssertTextContains(ctx, locator.ToastMessage(), "saved"))

	err := b.AssertText(ctx, locator.ToastMessage(), "Activity deleted")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrTextMismatch), "got %v", err)
	assert.Contains(t, err.Error(), `got "Activity saved successfully"`)

	err = b.AssertText(ctx, locator.ID("absent"), "x")
	assert.True(t, errors.Is(err, core.ErrElementNotFound), "got %v", err)
}

func TestBase_SmartClickUsesFallbackLocator(t *testing.T) {
	b, d := newBase(core.PlatformWeb)
	primary := locator.ButtonByText("Save")
	fallback := locator.FallbackCandidates(primary, locator.PlatformWeb)[0]
	d.Add(fallback, "Save")

	m, err := b.SmartFind(context.Background(), primary)
	require.NoError(t, err)
	assert.True(t, m.Fallback())
	assert.False(t, m.Hierarchy)
	assert.Equal(t, fallback.Value, m.By.Value)

	require.NoError(t, b.SmartClick(context.Background(), primary))
	acts := d.Actions()
	require.Len(t, acts, 1)
	assert.Equal(t, "click", acts[0].Kind)
	assert.Equal(t, fallback.Value, acts[0].Locator)
}

func TestBase_SmartClickTapsHierarchyMatch(t *testing.T) {
	b, d := newBase(core.PlatformAndroid)
	d.Add(locator.AccessibilityID("btn_login"), "Login").Bounds = core.Bounds{X: 40, Y: 800, Width: 400, Height: 100}

	require.NoError(t, b.SmartClick(context.Background(), locator.FlutterButton("Login")))
	acts := d.Actions()
	require.Len(t, acts, 1)
	assert.Equal(t, "tap", acts[0].Kind)
	assert.Equal(t, "240,850", acts[0].Value)
}

func TestBase_SmartClickPrimaryFirst(t *testing.T) {
	b, d := newBase(core.PlatformWeb)
	d.Add(LoginSubmit, "Login")

	m, err := b.SmartFind(context.Background(), LoginSubmit)
	require.NoError(t, err)
	assert.False(t, m.Fallback())
}

func TestBase_InvalidLocatorStopsImmediately(t *testing.T) {
	b := NewBase(invalidDriver{mock.New(mock.Config{})}, 5*time.Second)
	start := time.Now()
	err := b.Click(context.Background(), locator.CSS("#x"))
	assert.True(t, errors.Is(err, core.ErrInvalidConfig), "got %v", err)
	assert.Less(t, time.Since(start), time.Second)
}

// invalidDriver rejects every click as a configuration error.
type invalidDriver struct {
	*mock.Driver
}

func (invalidDriver) Click(ctx context.Context, by locator.By) error {
	return core.ErrInvalidConfig.WithMessage("unsupported locator")
}

func TestForgotPassword_OTPBoxes(t *testing.T) {
	ctx := context.Background()
	b, d := newBase(core.PlatformWeb)
	d.Add(locator.XPath(OTPField.Value+" | "+OTPBoxes.Value), "")
	for i := 1; i <= 4; i++ {
		// FindAll sees the boxes as indexed registrations; typing goes
		// through the positional XPath.
		d.Add(locator.XPath(fmt.Sprintf("%s[%d]", OTPBoxes.Value, i)), "")
		d.Add(locator.XPath(fmt.Sprintf("(%s)[%d]", OTPBoxes.Value, i)), "")
	}
	d.Add(VerifyOTPButton, "Verify OTP")

	require.NoError(t, NewForgotPasswordPage(b).EnterOTP(ctx, "4821"))

	var digits string
	for _, a := range d.Actions() {
		if a.Kind == "type" {
			digits += a.Value
		}
	}
	assert.Equal(t, "4821", digits)
}

func TestForgotPassword_SingleField(t *testing.T) {
	ctx := context.Background()
	b, d := newBase(core.PlatformWeb)
	d.Add(locator.XPath(OTPField.Value+" | "+OTPBoxes.Value), "")
	d.Add(OTPField, "")
	d.Add(VerifyOTPButton, "Verify OTP")

	p := NewForgotPasswordPage(b)
	require.NoError(t, p.EnterOTP(ctx, "482133"))
	v, _ := d.Attribute(ctx, OTPField, "value")
	assert.Equal(t, "482133", v)
}

func TestActivityFormFromFields(t *testing.T) {
	form, err := ActivityFormFromFields(map[string]string{
		"Activity Name": "Store Audit",
		"Type":          "Visit",
		"start date":    "01/11/2026",
		"Status":        "Active",
	})
	require.NoError(t, err)
	assert.Equal(t, ActivityForm{Name: "Store Audit", Type: "Visit", StartDate: "01/11/2026", Status: "Active"}, form)

	_, err = ActivityFormFromFields(map[string]string{"name": "x", "colour": "red"})
	assert.ErrorContains(t, err, "unknown activity field")

	_, err = ActivityFormFromFields(map[string]string{"type": "Visit"})
	assert.ErrorContains(t, err, "name is required")
}

func TestActivityPage_Create(t *testing.T) {
	ctx := context.Background()
	b, d := newBase(core.PlatformWeb)
	d.Add(AddActivityButton, "Add Activity")
	d.Add(ActivityName, "")
	d.Add(ActivityTypeSelect, "")
	d.Add(locator.DropdownOption("Visit"), "Visit")
	d.Add(ActivityDescription, "")
	d.Add(ActivitySave, "Save")
	d.OnClick(ActivitySave, func(d *mock.Driver) {
		d.Add(locator.ToastMessage(), "Activity added successfully")
		d.Add(RowByName("Store Audit"), "Store Audit")
		d.Add(locator.TableCell("Store Audit", 4), "Active")
	})

	p := NewActivityPage(b)
	toast, err := p.Create(ctx, ActivityForm{Name: "Store Audit", Type: "Visit", Description: "Monthly audit"})
	require.NoError(t, err)
	assert.Equal(t, "Activity added successfully", toast)

	status, err := p.StatusOf(ctx, "Store Audit")
	require.NoError(t, err)
	assert.Equal(t, "Active", status)
}

func TestParseBatchID(t *testing.T) {
	cases := map[string]string{
		"File uploaded successfully. Batch ID: 20431": "20431",
		"Batch #77 queued":                            "77",
		"batch no. 9-A in progress":                   "9-A",
	}
	for msg, want := range cases {
		got, err := ParseBatchID(msg)
		require.NoError(t, err, msg)
		assert.Equal(t, want, got)
	}
	_, err := ParseBatchID("Batch upload completed")
	assert.True(t, errors.Is(err, core.ErrConditionNotMet))
}

func TestBulkUploadPage_Flow(t *testing.T) {
	ctx := context.Background()
	b, d := newBase(core.PlatformWeb)
	d.Add(BulkTemplateSelect, "")
	d.Add(locator.DropdownOption("Outlet Master"), "Outlet Master")
	d.Add(BulkFileInput, "")
	d.Add(BulkSubmit, "Upload")
	d.OnClick(BulkSubmit, func(d *mock.Driver) {
		d.Add(BulkStatus, "Uploaded. Batch ID: 5512")
	})

	p := NewBulkUploadPage(b)
	require.NoError(t, p.SelectTemplate(ctx, "Outlet Master"))
	require.NoError(t, p.Upload(ctx, "/tmp/outlets.xlsx"))
	require.NoError(t, p.Submit(ctx))

	id, err := p.BatchID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "5512", id)

	v, _ := d.Attribute(ctx, BulkFileInput, "value")
	assert.Equal(t, "/tmp/outlets.xlsx", v)
}

func TestMobileLoginScreen(t *testing.T) {
	ctx := context.Background()
	b, d := newBase(core.PlatformAndroid)
	d.Add(MobileUsername, "")
	d.Add(MobilePassword, "")
	d.Add(MobileLogin, "Login")
	d.OnClick(MobileLogin, func(d *mock.Driver) {
		d.Add(MobileHome, "Home")
	})

	s := NewMobileLoginScreen(b)
	require.NoError(t, s.Launch(ctx))
	require.NoError(t, s.Login(ctx, "field.user", "pass"))
	require.NoError(t, s.HomeVisible(ctx))
}
