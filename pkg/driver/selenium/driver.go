// Package selenium drives the CRM web application through a Selenium grid or
// a standalone chromedriver/geckodriver using github.com/tebeka/selenium.
package selenium

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tebeka/selenium"
	"github.com/tebeka/selenium/chrome"
	"github.com/tebeka/selenium/firefox"

	"github.com/devicelab-dev/crm-e2e/pkg/core"
	"github.com/devicelab-dev/crm-e2e/pkg/locator"
	"github.com/devicelab-dev/crm-e2e/pkg/logger"
)

// Options configures a browser session.
type Options struct {
	URL          string // remote WebDriver URL, e.g. http://localhost:4444/wd/hub
	Browser      string // chrome (default) or firefox
	Headless     bool
	Capabilities map[string]interface{}
	WindowWidth  int
	WindowHeight int
	PageLoad     time.Duration
	DownloadDir  string // browser download folder, e.g. bulk upload error reports
}

// Driver implements core.Driver over a remote WebDriver session.
type Driver struct {
	wd   selenium.WebDriver
	info core.PlatformInfo
}

var _ core.Driver = (*Driver)(nil)

// NewDriver starts a browser session.
func NewDriver(ctx context.Context, opts Options) (*Driver, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	caps := Capabilities(opts)
	wd, err := selenium.NewRemote(caps, opts.URL)
	if err != nil {
		return nil, core.ErrServerUnreachable.
			WithMessage(fmt.Sprintf("failed to start %s session at %s", browserName(opts), opts.URL)).
			WithCause(err)
	}

	if opts.PageLoad > 0 {
		if err := wd.SetPageLoadTimeout(opts.PageLoad); err != nil {
			logger.Warn("set page load timeout: %v", err)
		}
	}
	if opts.WindowWidth > 0 && opts.WindowHeight > 0 {
		if err := wd.ResizeWindow("", opts.WindowWidth, opts.WindowHeight); err != nil {
			logger.Warn("resize window: %v", err)
		}
	}

	d := newDriver(wd, browserName(opts))
	logger.Info("selenium session %s (%s, headless=%t)", d.info.SessionID, d.info.Browser, opts.Headless)
	return d, nil
}

func newDriver(wd selenium.WebDriver, browser string) *Driver {
	return &Driver{
		wd: wd,
		info: core.PlatformInfo{
			Platform:    core.PlatformWeb,
			Browser:     browser,
			SessionID:   wd.SessionID(),
			AutomatedBy: "selenium",
		},
	}
}

func browserName(opts Options) string {
	if b := strings.ToLower(opts.Browser); b != "" {
		return b
	}
	return "chrome"
}

// Capabilities builds the W3C capabilities for opts. Entries in
// opts.Capabilities override the generated ones.
func Capabilities(opts Options) selenium.Capabilities {
	browser := browserName(opts)
	caps := selenium.Capabilities{"browserName": browser}

	switch browser {
	case "firefox":
		var args []string
		if opts.Headless {
			args = append(args, "-headless")
		}
		ff := firefox.Capabilities{Args: args}
		if opts.DownloadDir != "" {
			ff.Prefs = map[string]interface{}{
				"browser.download.folderList": 2,
				"browser.download.dir":        opts.DownloadDir,
			}
		}
		caps.AddFirefox(ff)
	default:
		args := []string{"--disable-gpu", "--no-sandbox", "--disable-dev-shm-usage"}
		if opts.Headless {
			args = append(args, "--headless=new")
		}
		if opts.WindowWidth > 0 && opts.WindowHeight > 0 {
			args = append(args, fmt.Sprintf("--window-size=%d,%d", opts.WindowWidth, opts.WindowHeight))
		}
		cc := chrome.Capabilities{Args: args, W3C: true}
		if opts.DownloadDir != "" {
			cc.Prefs = map[string]interface{}{
				"download.default_directory":   opts.DownloadDir,
				"download.prompt_for_download": false,
			}
		}
		caps.AddChrome(cc)
	}

	for k, v := range opts.Capabilities {
		caps[k] = v
	}
	return caps
}

// by maps a locator onto a Selenium "by" pair. Text, name and accessibility
// locators are sent as their XPath equivalent.
func by(l locator.By) (string, string, error) {
	switch l.Strategy {
	case locator.StrategyXPath:
		return selenium.ByXPATH, l.Value, nil
	case locator.StrategyID:
		return selenium.ByID, l.Value, nil
	case locator.StrategyCSS:
		return selenium.ByCSSSelector, l.Value, nil
	case locator.StrategyName:
		return selenium.ByName, l.Value, nil
	}
	if xp, ok := l.AsXPath(); ok {
		return selenium.ByXPATH, xp, nil
	}
	return "", "", core.ErrInvalidConfig.WithMessage(fmt.Sprintf("locator strategy %q is not supported in the browser", l.Strategy))
}

// isNoSuchElement reports whether err is the W3C "no such element" error.
func isNoSuchElement(err error) bool {
	var se *selenium.Error
	if errors.As(err, &se) {
		return se.Err == "no such element" || se.Err == "stale element reference"
	}
	return err != nil && strings.Contains(err.Error(), "no such element")
}

// wrap converts WebDriver errors into core errors.
func wrap(err error, l locator.By) error {
	if err == nil {
		return nil
	}
	if isNoSuchElement(err) {
		return core.ErrElementNotFound.WithMessage("element not found: " + l.Describe()).WithCause(err)
	}
	var se *selenium.Error
	if errors.As(err, &se) {
		switch se.Err {
		case "element not interactable", "element click intercepted":
			return core.ErrElementNotVisible.WithMessage(se.Err + ": " + l.Describe()).WithCause(err)
		case "invalid session id":
			return core.ErrSessionLost.WithCause(err)
		}
	}
	return err
}

func (d *Driver) element(ctx context.Context, l locator.By) (selenium.WebElement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	using, value, err := by(l)
	if err != nil {
		return nil, err
	}
	el, err := d.wd.FindElement(using, value)
	if err != nil {
		return nil, wrap(err, l)
	}
	return el, nil
}

// Open implements core.Driver.
func (d *Driver) Open(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logger.Debug("GET %s", url)
	return d.wd.Get(url)
}

// Find implements core.Driver.
func (d *Driver) Find(ctx context.Context, l locator.By) (*core.ElementInfo, error) {
	el, err := d.element(ctx, l)
	if err != nil {
		return nil, err
	}
	return elementInfo(el)
}

// FindAll implements core.Driver.
func (d *Driver) FindAll(ctx context.Context, l locator.By) ([]*core.ElementInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	using, value, err := by(l)
	if err != nil {
		return nil, err
	}
	els, err := d.wd.FindElements(using, value)
	if err != nil {
		if isNoSuchElement(err) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]*core.ElementInfo, 0, len(els))
	for _, el := range els {
		info, err := elementInfo(el)
		if err != nil {
			continue
		}
		out = append(out, info)
	}
	return out, nil
}

func elementInfo(el selenium.WebElement) (*core.ElementInfo, error) {
	text, err := el.Text()
	if err != nil {
		return nil, err
	}
	displayed, _ := el.IsDisplayed()
	enabled, _ := el.IsEnabled()

	info := &core.ElementInfo{
		Text:       text,
		Visible:    displayed,
		Enabled:    enabled,
		Attributes: map[string]string{},
	}
	if id, err := el.GetAttribute("id"); err == nil {
		info.ID = id
	}
	if cls, err := el.GetAttribute("class"); err == nil {
		info.Class = cls
	}
	if label, err := el.GetAttribute("aria-label"); err == nil {
		info.AccessibilityLabel = label
	}
	if pt, err := el.Location(); err == nil && pt != nil {
		info.Bounds.X, info.Bounds.Y = pt.X, pt.Y
	}
	if sz, err := el.Size(); err == nil && sz != nil {
		info.Bounds.Width, info.Bounds.Height = sz.Width, sz.Height
	}
	return info, nil
}

// Click implements core.Driver.
func (d *Driver) Click(ctx context.Context, l locator.By) error {
	el, err := d.element(ctx, l)
	if err != nil {
		return err
	}
	return wrap(el.Click(), l)
}

// Type implements core.Driver. Keys are appended to the current value.
func (d *Driver) Type(ctx context.Context, l locator.By, text string) error {
	el, err := d.element(ctx, l)
	if err != nil {
		return err
	}
	return wrap(el.SendKeys(text), l)
}

// Clear implements core.Driver.
func (d *Driver) Clear(ctx context.Context, l locator.By) error {
	el, err := d.element(ctx, l)
	if err != nil {
		return err
	}
	return wrap(el.Clear(), l)
}

// Text implements core.Driver. Inputs report their value.
func (d *Driver) Text(ctx context.Context, l locator.By) (string, error) {
	el, err := d.element(ctx, l)
	if err != nil {
		return "", err
	}
	text, err := el.Text()
	if err != nil {
		return "", wrap(err, l)
	}
	if text == "" {
		if v, err := el.GetAttribute("value"); err == nil {
			return v, nil
		}
	}
	return text, nil
}

// Attribute implements core.Driver.
func (d *Driver) Attribute(ctx context.Context, l locator.By, name string) (string, error) {
	el, err := d.element(ctx, l)
	if err != nil {
		return "", err
	}
	v, err := el.GetAttribute(name)
	if err != nil && strings.Contains(err.Error(), "nil return value") {
		return "", nil
	}
	return v, wrap(err, l)
}

// IsVisible implements core.Driver. A missing element is not visible.
func (d *Driver) IsVisible(ctx context.Context, l locator.By) (bool, error) {
	el, err := d.element(ctx, l)
	if err != nil {
		if errors.Is(err, core.ErrElementNotFound) {
			return false, nil
		}
		return false, err
	}
	shown, err := el.IsDisplayed()
	if isNoSuchElement(err) {
		return false, nil
	}
	return shown, err
}

// UploadFile implements core.Driver by sending the path to a file input.
func (d *Driver) UploadFile(ctx context.Context, l locator.By, path string) error {
	el, err := d.element(ctx, l)
	if err != nil {
		return err
	}
	return wrap(el.SendKeys(path), l)
}

// Back implements core.Driver.
func (d *Driver) Back(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.wd.Back()
}

// Screenshot implements core.Driver.
func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return d.wd.Screenshot()
}

// Source implements core.Driver.
func (d *Driver) Source(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return d.wd.PageSource()
}

// PlatformInfo implements core.Driver.
func (d *Driver) PlatformInfo() *core.PlatformInfo {
	info := d.info
	return &info
}

// Close ends the browser session.
func (d *Driver) Close() error {
	return d.wd.Quit()
}
