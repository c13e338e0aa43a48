package selenium

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tebeka/selenium"
	"github.com/tebeka/selenium/chrome"
	"github.com/tebeka/selenium/firefox"

	"github.com/devicelab-dev/crm-e2e/pkg/core"
	"github.com/devicelab-dev/crm-e2e/pkg/locator"
)

// fakeWebDriver implements the parts of selenium.WebDriver the driver uses.
// Calling anything else panics on the nil embedded interface.
type fakeWebDriver struct {
	selenium.WebDriver

	elements map[string]*fakeElement // "by|value"
	url      string
	quit     bool
}

func (f *fakeWebDriver) SessionID() string { return "sel-1" }
func (f *fakeWebDriver) Get(url string) error {
	f.url = url
	return nil
}
func (f *fakeWebDriver) Quit() error {
	f.quit = true
	return nil
}
func (f *fakeWebDriver) PageSource() (string, error) { return "<html></html>", nil }

func (f *fakeWebDriver) FindElement(by, value string) (selenium.WebElement, error) {
	if el, ok := f.elements[by+"|"+value]; ok {
		return el, nil
	}
	return nil, &selenium.Error{Err: "no such element", Message: "Unable to locate element"}
}

func (f *fakeWebDriver) FindElements(by, value string) ([]selenium.WebElement, error) {
	if el, ok := f.elements[by+"|"+value]; ok {
		return []selenium.WebElement{el, el}, nil
	}
	return nil, nil
}

type fakeElement struct {
	selenium.WebElement

	text      string
	value     string
	attrs     map[string]string
	displayed bool
	clicks    int
	clickErr  error
}

func (e *fakeElement) Click() error {
	e.clicks++
	return e.clickErr
}
func (e *fakeElement) SendKeys(keys string) error {
	e.value += keys
	return nil
}
func (e *fakeElement) Clear() error {
	e.value = ""
	return nil
}
func (e *fakeElement) Text() (string, error) { return e.text, nil }
func (e *fakeElement) IsDisplayed() (bool, error) { return e.displayed, nil }
func (e *fakeElement) IsEnabled() (bool, error) { return true, nil }
func (e *fakeElement) Location() (*selenium.Point, error) {
	return &selenium.Point{X: 5, Y: 6}, nil
}
func (e *fakeElement) Size() (*selenium.Size, error) {
	return &selenium.Size{Width: 70, Height: 20}, nil
}
func (e *fakeElement) GetAttribute(name string) (string, error) {
	if name == "value" {
		return e.value, nil
	}
	if v, ok := e.attrs[name]; ok {
		return v, nil
	}
	return "", errors.New("nil return value")
}

func newFake() (*Driver, *fakeWebDriver) {
	wd := &fakeWebDriver{elements: map[string]*fakeElement{}}
	return newDriver(wd, "chrome"), wd
}

func TestCapabilities_ChromeHeadless(t *testing.T) {
	caps := Capabilities(Options{Headless: true, WindowWidth: 1440, WindowHeight: 900,
		Capabilities: map[string]interface{}{"acceptInsecureCerts": true}})

	assert.Equal(t, "chrome", caps["browserName"])
	assert.Equal(t, true, caps["acceptInsecureCerts"])

	chromeCaps, ok := caps[chrome.CapabilitiesKey].(chrome.Capabilities)
	require.True(t, ok, "chrome options missing: %v", caps)
	assert.Contains(t, chromeCaps.Args, "--headless=new")
	assert.Contains(t, chromeCaps.Args, "--window-size=1440,900")
}

func TestCapabilities_Firefox(t *testing.T) {
	caps := Capabilities(Options{Browser: "Firefox", Headless: true})
	assert.Equal(t, "firefox", caps["browserName"])

	ffCaps, ok := caps[firefox.CapabilitiesKey].(firefox.Capabilities)
	require.True(t, ok)
	assert.Equal(t, []string{"-headless"}, ffCaps.Args)
}

func TestCapabilities_DownloadDir(t *testing.T) {
	caps := Capabilities(Options{DownloadDir: "/tmp/crm-downloads"})
	chromeCaps, ok := caps[chrome.CapabilitiesKey].(chrome.Capabilities)
	require.True(t, ok)
	assert.Equal(t, "/tmp/crm-downloads", chromeCaps.Prefs["download.default_directory"])

	caps = Capabilities(Options{Browser: "firefox", DownloadDir: "/tmp/crm-downloads"})
	ffCaps, ok := caps[firefox.CapabilitiesKey].(firefox.Capabilities)
	require.True(t, ok)
	assert.Equal(t, "/tmp/crm-downloads", ffCaps.Prefs["browser.download.dir"])
}

func TestBy(t *testing.T) {
	tests := []struct {
		in        locator.By
		wantUsing string
		wantValue string
	}{
		{locator.XPath("//button"), selenium.ByXPATH, "//button"},
		{locator.ID("username"), selenium.ByID, "username"},
		{locator.CSS("#login"), selenium.ByCSSSelector, "#login"},
		{locator.Name("password"), selenium.ByName, "password"},
		{locator.Text("Sign In"), selenium.ByXPATH, "//*[normalize-space(text())='Sign In' or @text='Sign In']"},
	}
	for _, tt := range tests {
		using, value, err := by(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.wantUsing, using, tt.in.Describe())
		assert.Equal(t, tt.wantValue, value, tt.in.Describe())
	}

	_, _, err := by(locator.UIAutomator(`new UiSelector().text("x")`))
	assert.True(t, errors.Is(err, core.ErrInvalidConfig))
}

func TestDriver_ClickAndType(t *testing.T) {
	ctx := context.Background()
	d, wd := newFake()
	user := &fakeElement{displayed: true}
	btn := &fakeElement{displayed: true, text: "Login"}
	wd.elements["id|username"] = user
	wd.elements["xpath|//button"] = btn

	require.NoError(t, d.Open(ctx, "https://qa.crm.example.com/login"))
	assert.Equal(t, "https://qa.crm.example.com/login", wd.url)

	require.NoError(t, d.Type(ctx, locator.ID("username"), "qa.admin"))
	require.NoError(t, d.Click(ctx, locator.XPath("//button")))
	assert.Equal(t, "qa.admin", user.value)
	assert.Equal(t, 1, btn.clicks)

	text, err := d.Text(ctx, locator.ID("username"))
	require.NoError(t, err)
	assert.Equal(t, "qa.admin", text, "inputs report their value")

	require.NoError(t, d.Clear(ctx, locator.ID("username")))
	assert.Empty(t, user.value)
}

func TestDriver_NotFound(t *testing.T) {
	ctx := context.Background()
	d, _ := newFake()

	err := d.Click(ctx, locator.ID("missing"))
	assert.True(t, errors.Is(err, core.ErrElementNotFound), "got %v", err)

	visible, err := d.IsVisible(ctx, locator.ID("missing"))
	require.NoError(t, err)
	assert.False(t, visible)
}

func TestDriver_ClickIntercepted(t *testing.T) {
	d, wd := newFake()
	wd.elements["id|save"] = &fakeElement{clickErr: &selenium.Error{Err: "element click intercepted"}}

	err := d.Click(context.Background(), locator.ID("save"))
	assert.True(t, errors.Is(err, core.ErrElementNotVisible), "got %v", err)
}

func TestDriver_FindAndAttributes(t *testing.T) {
	ctx := context.Background()
	d, wd := newFake()
	wd.elements["css selector|.toast"] = &fakeElement{
		text: "Activity saved", displayed: true,
		attrs: map[string]string{"id": "toast-1", "class": "toast success"},
	}

	info, err := d.Find(ctx, locator.CSS(".toast"))
	require.NoError(t, err)
	assert.Equal(t, "toast-1", info.ID)
	assert.Equal(t, "Activity saved", info.Text)
	assert.Equal(t, core.Bounds{X: 5, Y: 6, Width: 70, Height: 20}, info.Bounds)
	assert.True(t, info.Visible)

	all, err := d.FindAll(ctx, locator.CSS(".toast"))
	require.NoError(t, err)
	assert.Len(t, all, 2)

	none, err := d.FindAll(ctx, locator.CSS(".absent"))
	require.NoError(t, err)
	assert.Empty(t, none)

	v, err := d.Attribute(ctx, locator.CSS(".toast"), "data-missing")
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestDriver_CancelledContext(t *testing.T) {
	d, _ := newFake()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, d.Click(ctx, locator.ID("x")), context.Canceled)
	_, err := d.Screenshot(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDriver_PlatformInfoAndClose(t *testing.T) {
	d, wd := newFake()
	info := d.PlatformInfo()
	assert.Equal(t, core.PlatformWeb, info.Platform)
	assert.Equal(t, "sel-1", info.SessionID)
	assert.Equal(t, "selenium", info.AutomatedBy)

	require.NoError(t, d.Close())
	assert.True(t, wd.quit)
}
