package appium

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/devicelab-dev/crm-e2e/pkg/core"
	"github.com/devicelab-dev/crm-e2e/pkg/locator"
)

func newTestDriver(t *testing.T, platform string, caps map[string]interface{}) (*Driver, *fakeAppium) {
	t.Helper()
	client, fake := connectedClient(t, platform)
	return newDriver(client, caps), fake
}

// withElement routes POST /element to a single element id for any locator.
func withElement(fake *fakeAppium, id string) {
	fake.handle("POST /element", func(w http.ResponseWriter, r *http.Request) {
		writeValue(w, map[string]interface{}{w3cElementKey: id})
	})
}

func withNoElement(fake *fakeAppium) {
	fake.handle("POST /element", func(w http.ResponseWriter, r *http.Request) {
		writeW3CError(w, http.StatusNotFound, "no such element", "not found")
	})
}

func TestDriver_PlatformInfo(t *testing.T) {
	d, _ := newTestDriver(t, "Android", map[string]interface{}{
		"appium:appPackage":      "com.crm.field",
		"appium:deviceName":      "Pixel 7",
		"appium:platformVersion": "14",
	})

	info := d.PlatformInfo()
	if info.Platform != core.PlatformAndroid {
		t.Errorf("Platform = %s", info.Platform)
	}
	if info.AppID != "com.crm.field" || info.DeviceName != "Pixel 7" || info.OSVersion != "14" {
		t.Errorf("info = %+v", info)
	}
	if info.SessionID != "s1" || info.AutomatedBy != "appium" {
		t.Errorf("session/automation = %s/%s", info.SessionID, info.AutomatedBy)
	}
}

func TestDriver_OpenActivatesApp(t *testing.T) {
	d, fake := newTestDriver(t, "iOS", map[string]interface{}{"appium:bundleId": "com.crm.field"})

	if err := d.Open(context.Background(), ""); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	calls := fake.calls("POST /appium/device/activate_app")
	if len(calls) != 1 || calls[0].Body["bundleId"] != "com.crm.field" {
		t.Errorf("activate calls = %+v", calls)
	}

	if err := d.Open(context.Background(), "crmfield://activity/42"); err != nil {
		t.Fatalf("Open deep link failed: %v", err)
	}
	if calls := fake.calls("POST /url"); len(calls) != 1 || calls[0].Body["url"] != "crmfield://activity/42" {
		t.Errorf("url calls = %+v", calls)
	}
}

func TestDriver_ClickTranslatesTextLocator(t *testing.T) {
	d, fake := newTestDriver(t, "Android", nil)
	withElement(fake, "btn")

	if err := d.Click(context.Background(), locator.Text("Sign In")); err != nil {
		t.Fatalf("Click failed: %v", err)
	}
	find := fake.calls("POST /element")[0]
	if find.Body["using"] != "xpath" {
		t.Errorf("text locator should be sent as xpath, got %v", find.Body["using"])
	}
	if len(fake.calls("POST /element/btn/click")) != 1 {
		t.Error("expected click on btn")
	}
}

func TestDriver_CSSUnsupported(t *testing.T) {
	d, _ := newTestDriver(t, "Android", nil)
	err := d.Click(context.Background(), locator.CSS("#login"))
	if !errors.Is(err, core.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestDriver_TypeHidesKeyboard(t *testing.T) {
	d, fake := newTestDriver(t, "Android", nil)
	withElement(fake, "user")

	if err := d.Type(context.Background(), locator.ID("com.crm.field:id/username"), "qa.user"); err != nil {
		t.Fatalf("Type failed: %v", err)
	}
	values := fake.calls("POST /element/user/value")
	if len(values) != 1 || values[0].Body["text"] != "qa.user" {
		t.Errorf("value calls = %+v", values)
	}
	if len(fake.calls("POST /element/user/click")) != 1 {
		t.Error("field should be focused before typing")
	}
	if len(fake.calls("POST /appium/device/hide_keyboard")) != 1 {
		t.Error("keyboard should be hidden after typing")
	}
}

func TestDriver_TextFallsBackToContentDesc(t *testing.T) {
	d, fake := newTestDriver(t, "Android", nil)
	withElement(fake, "lbl")
	fake.handle("GET /element/lbl/text", func(w http.ResponseWriter, r *http.Request) { writeValue(w, "") })
	fake.handle("GET /element/lbl/attribute/content-desc", func(w http.ResponseWriter, r *http.Request) {
		writeValue(w, "Activity saved")
	})

	text, err := d.Text(context.Background(), locator.AccessibilityID("toast"))
	if err != nil {
		t.Fatalf("Text failed: %v", err)
	}
	if text != "Activity saved" {
		t.Errorf("Text = %q", text)
	}
}

func TestDriver_NotFound(t *testing.T) {
	d, fake := newTestDriver(t, "Android", nil)
	withNoElement(fake)

	err := d.Click(context.Background(), locator.ID("missing").Named("save button"))
	if !errors.Is(err, core.ErrElementNotFound) {
		t.Fatalf("expected ErrElementNotFound, got %v", err)
	}
	var execErr *core.ExecutionError
	if !errors.As(err, &execErr) || execErr.Message != "element not found: save button (id=missing)" {
		t.Errorf("unexpected error message: %v", err)
	}

	visible, err := d.IsVisible(context.Background(), locator.ID("missing"))
	if err != nil || visible {
		t.Errorf("IsVisible on missing element = %v, %v", visible, err)
	}
}

func TestDriver_Find(t *testing.T) {
	d, fake := newTestDriver(t, "Android", nil)
	withElement(fake, "row")
	fake.handle("GET /element/row/rect", func(w http.ResponseWriter, r *http.Request) {
		writeValue(w, map[string]interface{}{"x": 0.0, "y": 400.0, "width": 1080.0, "height": 120.0})
	})
	fake.handle("GET /element/row/text", func(w http.ResponseWriter, r *http.Request) { writeValue(w, "Store visit") })
	fake.handle("GET /element/row/displayed", func(w http.ResponseWriter, r *http.Request) { writeValue(w, true) })
	fake.handle("GET /element/row/enabled", func(w http.ResponseWriter, r *http.Request) { writeValue(w, true) })

	info, err := d.Find(context.Background(), locator.XPath("//row"))
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if info.ID != "row" || info.Text != "Store visit" || !info.Visible || !info.Enabled {
		t.Errorf("info = %+v", info)
	}
	if info.Bounds.Height != 120 {
		t.Errorf("bounds = %+v", info.Bounds)
	}
}

func TestDriver_UploadFileUnsupported(t *testing.T) {
	d, _ := newTestDriver(t, "Android", nil)
	if err := d.UploadFile(context.Background(), locator.ID("file"), "/tmp/x.xlsx"); !errors.Is(err, core.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestDriver_FindInHierarchy(t *testing.T) {
	d, fake := newTestDriver(t, "Android", nil)
	fake.source = androidLoginSource

	candidates := []locator.By{
		locator.XPath("//*[@text='Submit']"),
		locator.XPath("//*[@content-desc='Sign In']"),
	}
	info, err := d.FindInHierarchy(context.Background(), candidates)
	if err != nil {
		t.Fatalf("FindInHierarchy failed: %v", err)
	}
	if info.MatchedBy == nil || info.MatchedBy.Value != candidates[1].Value {
		t.Errorf("MatchedBy = %+v", info.MatchedBy)
	}
	if info.Text != "Sign In" {
		t.Errorf("Text = %q", info.Text)
	}
	x, y := info.Bounds.Center()
	if x != 540 || y != 960 {
		t.Errorf("tap point = (%d,%d)", x, y)
	}

	if err := d.TapPoint(context.Background(), x, y); err != nil {
		t.Fatalf("TapPoint failed: %v", err)
	}
	if len(fake.calls("POST /actions")) != 1 {
		t.Error("expected a touch action")
	}
}

func TestDriver_FindInHierarchyNoMatch(t *testing.T) {
	d, fake := newTestDriver(t, "Android", nil)
	fake.source = androidLoginSource

	_, err := d.FindInHierarchy(context.Background(), []locator.By{locator.Text("Logout")})
	if !errors.Is(err, core.ErrElementNotFound) {
		t.Errorf("expected ErrElementNotFound, got %v", err)
	}
}

func TestDriver_Close(t *testing.T) {
	d, fake := newTestDriver(t, "Android", nil)
	if err := d.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if len(fake.calls("DELETE /")) != 1 {
		t.Error("expected session delete")
	}
}
