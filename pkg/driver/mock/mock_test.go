package mock

import (
	"context"
	"errors"
	"testing"

	"github.com/devicelab-dev/crm-e2e/pkg/core"
	"github.com/devicelab-dev/crm-e2e/pkg/locator"
)

func TestDriver_TypeAndRead(t *testing.T) {
	ctx := context.Background()
	d := New(Config{})
	user := locator.ID("username")
	d.Add(user, "")

	if err := d.Type(ctx, user, "qa"); err != nil {
		t.Fatal(err)
	}
	if err := d.Type(ctx, user, ".user"); err != nil {
		t.Fatal(err)
	}
	if v, _ := d.Attribute(ctx, user, "value"); v != "qa.user" {
		t.Errorf("value = %q", v)
	}
	if v, _ := d.Text(ctx, user); v != "qa.user" {
		t.Errorf("text falls back to value, got %q", v)
	}
	_ = d.Clear(ctx, user)
	if v, _ := d.Attribute(ctx, user, "value"); v != "" {
		t.Errorf("value after clear = %q", v)
	}

	acts := d.Actions()
	if len(acts) != 3 || acts[0].Kind != "type" || acts[2].Kind != "clear" {
		t.Errorf("actions = %+v", acts)
	}
}

func TestDriver_AppearAfter(t *testing.T) {
	ctx := context.Background()
	d := New(Config{})
	toast := locator.XPath("//div[@class='toast']")
	d.AppearAfter(toast, "Saved", 2)

	for i := 0; i < 2; i++ {
		if _, err := d.Find(ctx, toast); !errors.Is(err, core.ErrElementNotFound) {
			t.Fatalf("lookup %d: expected not found, got %v", i, err)
		}
	}
	info, err := d.Find(ctx, toast)
	if err != nil || info.Text != "Saved" {
		t.Fatalf("third lookup = %+v, %v", info, err)
	}
}

func TestDriver_ClickHiddenAndHook(t *testing.T) {
	ctx := context.Background()
	d := New(Config{})
	login := locator.ID("login")
	el := d.Add(login, "Login")
	el.Visible = false

	if err := d.Click(ctx, login); !errors.Is(err, core.ErrElementNotVisible) {
		t.Fatalf("expected not visible, got %v", err)
	}

	el.Visible = true
	dashboard := locator.ID("dashboard")
	d.OnClick(login, func(d *Driver) {
		d.Remove(login)
		d.Add(dashboard, "Dashboard")
	})
	if err := d.Click(ctx, login); err != nil {
		t.Fatal(err)
	}
	if ok, _ := d.IsVisible(ctx, dashboard); !ok {
		t.Error("click hook should show the dashboard")
	}
	if ok, _ := d.IsVisible(ctx, login); ok {
		t.Error("login should be gone")
	}
}

func TestDriver_FailOnAction(t *testing.T) {
	ctx := context.Background()
	d := New(Config{FailOnAction: 2})
	btn := locator.ID("save")
	d.Add(btn, "Save")

	if err := d.Click(ctx, btn); err != nil {
		t.Fatalf("first click: %v", err)
	}
	if err := d.Click(ctx, btn); err == nil {
		t.Fatal("second action should fail")
	}
}

func TestDriver_FindAllIndexed(t *testing.T) {
	d := New(Config{})
	rows := locator.XPath("//tr")
	d.Add(locator.XPath(rows.Value+"[1]"), "first")
	d.Add(locator.XPath(rows.Value+"[2]"), "second")

	got, _ := d.FindAll(context.Background(), rows)
	if len(got) != 2 || got[0].Text != "first" || got[1].Text != "second" {
		t.Errorf("FindAll = %+v", got)
	}
}

func TestDriver_FindInHierarchy(t *testing.T) {
	d := New(Config{Platform: core.PlatformAndroid})
	d.Add(locator.AccessibilityID("submit"), "Submit")

	info, err := d.FindInHierarchy(context.Background(), []locator.By{locator.XPath("//*[@text='Submit']")})
	if err != nil {
		t.Fatal(err)
	}
	if info.MatchedBy == nil || info.Text != "Submit" {
		t.Errorf("info = %+v", info)
	}
	if pi := d.PlatformInfo(); pi.DeviceName == "" || pi.Browser != "" {
		t.Errorf("mobile platform info = %+v", pi)
	}
}

func TestDriver_OpenAndClose(t *testing.T) {
	d := New(Config{})
	_ = d.Open(context.Background(), "https://qa.crm.example.com/login")
	if d.URL() != "https://qa.crm.example.com/login" {
		t.Errorf("URL = %q", d.URL())
	}
	png, _ := d.Screenshot(context.Background())
	if len(png) < 8 || png[1] != 'P' {
		t.Error("screenshot should be a PNG")
	}
	_ = d.Close()
	if !d.Closed() {
		t.Error("Closed should be true")
	}
}
