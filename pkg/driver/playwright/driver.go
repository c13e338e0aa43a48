// Package playwright is the alternative browser driver, built on
// playwright-go. It needs no Selenium server: Playwright downloads and
// drives its own browser builds.
package playwright

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/devicelab-dev/crm-e2e/pkg/core"
	"github.com/devicelab-dev/crm-e2e/pkg/locator"
	"github.com/devicelab-dev/crm-e2e/pkg/logger"
)

// Options configures the browser launch.
type Options struct {
	Browser         string // chromium (default), firefox, webkit
	Headless        bool
	DriverDirectory string // where the Playwright driver and browsers live
	ViewportWidth   int
	ViewportHeight  int
	// ActionTimeout bounds a single click/fill once the element exists.
	ActionTimeout time.Duration
}

// Driver implements core.Driver on a Playwright page.
type Driver struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	page    playwright.Page
	timeout float64 // milliseconds
	info    core.PlatformInfo
}

var _ core.Driver = (*Driver)(nil)

// NewDriver starts Playwright, launches the browser and opens a page.
func NewDriver(ctx context.Context, opts Options) (*Driver, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pw, err := playwright.Run(&playwright.RunOptions{DriverDirectory: opts.DriverDirectory})
	if err != nil {
		return nil, fmt.Errorf("could not start playwright: %w", err)
	}

	name := strings.ToLower(opts.Browser)
	var bt playwright.BrowserType
	switch name {
	case "firefox":
		bt = pw.Firefox
	case "webkit":
		bt = pw.WebKit
	default:
		name = "chromium"
		bt = pw.Chromium
	}

	browser, err := bt.Launch(playwright.BrowserTypeLaunchOptions{Headless: playwright.Bool(opts.Headless)})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("could not launch %s: %w", name, err)
	}

	pageOpts := playwright.BrowserNewPageOptions{IgnoreHttpsErrors: playwright.Bool(true)}
	if opts.ViewportWidth > 0 && opts.ViewportHeight > 0 {
		pageOpts.Viewport = &playwright.Size{Width: opts.ViewportWidth, Height: opts.ViewportHeight}
	}
	page, err := browser.NewPage(pageOpts)
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("could not create page: %w", err)
	}

	d := newDriver(page, name, opts.ActionTimeout)
	d.pw = pw
	d.browser = browser
	logger.Info("playwright %s %s (headless=%t)", name, browser.Version(), opts.Headless)
	return d, nil
}

func newDriver(page playwright.Page, browser string, actionTimeout time.Duration) *Driver {
	if actionTimeout <= 0 {
		actionTimeout = 5 * time.Second
	}
	return &Driver{
		page:    page,
		timeout: float64(actionTimeout.Milliseconds()),
		info: core.PlatformInfo{
			Platform:    core.PlatformWeb,
			Browser:     browser,
			AutomatedBy: "playwright",
		},
	}
}

// Selector translates a locator into Playwright selector syntax.
func Selector(l locator.By) (string, error) {
	switch l.Strategy {
	case locator.StrategyXPath:
		return "xpath=" + l.Value, nil
	case locator.StrategyCSS:
		return "css=" + l.Value, nil
	case locator.StrategyID:
		return "id=" + l.Value, nil
	case locator.StrategyName:
		return "css=[name=" + strconv.Quote(l.Value) + "]", nil
	case locator.StrategyText:
		return "text=" + strconv.Quote(l.Value), nil
	}
	if xp, ok := l.AsXPath(); ok {
		return "xpath=" + xp, nil
	}
	return "", core.ErrInvalidConfig.WithMessage(fmt.Sprintf("locator strategy %q is not supported in the browser", l.Strategy))
}

// locate returns the first element matching l, failing immediately when
// nothing matches.
func (d *Driver) locate(ctx context.Context, l locator.By) (playwright.Locator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sel, err := Selector(l)
	if err != nil {
		return nil, err
	}
	loc := d.page.Locator(sel)
	n, err := loc.Count()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, core.ErrElementNotFound.WithMessage("element not found: " + l.Describe())
	}
	return loc.First(), nil
}

func (d *Driver) wrap(err error, l locator.By) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTimeout) {
		return core.ErrElementNotVisible.WithMessage("element not actionable: " + l.Describe()).WithCause(err)
	}
	return err
}

// Open implements core.Driver.
func (d *Driver) Open(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logger.Debug("goto %s", url)
	_, err := d.page.Goto(url, playwright.PageGotoOptions{WaitUntil: playwright.WaitUntilStateDomcontentloaded})
	return err
}

// Find implements core.Driver.
func (d *Driver) Find(ctx context.Context, l locator.By) (*core.ElementInfo, error) {
	loc, err := d.locate(ctx, l)
	if err != nil {
		return nil, err
	}
	return elementInfo(loc)
}

// FindAll implements core.Driver.
func (d *Driver) FindAll(ctx context.Context, l locator.By) ([]*core.ElementInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sel, err := Selector(l)
	if err != nil {
		return nil, err
	}
	loc := d.page.Locator(sel)
	n, err := loc.Count()
	if err != nil {
		return nil, err
	}
	out := make([]*core.ElementInfo, 0, n)
	for i := 0; i < n; i++ {
		info, err := elementInfo(loc.Nth(i))
		if err != nil {
			continue
		}
		out = append(out, info)
	}
	return out, nil
}

func elementInfo(loc playwright.Locator) (*core.ElementInfo, error) {
	text, err := loc.TextContent()
	if err != nil {
		return nil, err
	}
	visible, _ := loc.IsVisible()
	enabled, _ := loc.IsEnabled()

	info := &core.ElementInfo{
		Text:       strings.TrimSpace(text),
		Visible:    visible,
		Enabled:    enabled,
		Attributes: map[string]string{},
	}
	if id, err := loc.GetAttribute("id"); err == nil {
		info.ID = id
	}
	if cls, err := loc.GetAttribute("class"); err == nil {
		info.Class = cls
	}
	if box, err := loc.BoundingBox(); err == nil && box != nil {
		info.Bounds = core.Bounds{X: int(box.X), Y: int(box.Y), Width: int(box.Width), Height: int(box.Height)}
	}
	return info, nil
}

// Click implements core.Driver.
func (d *Driver) Click(ctx context.Context, l locator.By) error {
	loc, err := d.locate(ctx, l)
	if err != nil {
		return err
	}
	return d.wrap(loc.Click(playwright.LocatorClickOptions{Timeout: playwright.Float(d.timeout)}), l)
}

// Type implements core.Driver. Playwright fills replace the current value.
func (d *Driver) Type(ctx context.Context, l locator.By, text string) error {
	loc, err := d.locate(ctx, l)
	if err != nil {
		return err
	}
	return d.wrap(loc.Fill(text, playwright.LocatorFillOptions{Timeout: playwright.Float(d.timeout)}), l)
}

// Clear implements core.Driver.
func (d *Driver) Clear(ctx context.Context, l locator.By) error {
	loc, err := d.locate(ctx, l)
	if err != nil {
		return err
	}
	return d.wrap(loc.Clear(playwright.LocatorClearOptions{Timeout: playwright.Float(d.timeout)}), l)
}

// Text implements core.Driver. Inputs report their value.
func (d *Driver) Text(ctx context.Context, l locator.By) (string, error) {
	loc, err := d.locate(ctx, l)
	if err != nil {
		return "", err
	}
	text, err := loc.TextContent()
	if err != nil {
		return "", d.wrap(err, l)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		if v, err := loc.InputValue(playwright.LocatorInputValueOptions{Timeout: playwright.Float(d.timeout)}); err == nil {
			return v, nil
		}
	}
	return text, nil
}

// Attribute implements core.Driver.
func (d *Driver) Attribute(ctx context.Context, l locator.By, name string) (string, error) {
	loc, err := d.locate(ctx, l)
	if err != nil {
		return "", err
	}
	v, err := loc.GetAttribute(name)
	return v, d.wrap(err, l)
}

// IsVisible implements core.Driver.
func (d *Driver) IsVisible(ctx context.Context, l locator.By) (bool, error) {
	loc, err := d.locate(ctx, l)
	if err != nil {
		if errors.Is(err, core.ErrElementNotFound) {
			return false, nil
		}
		return false, err
	}
	return loc.IsVisible()
}

// UploadFile implements core.Driver.
func (d *Driver) UploadFile(ctx context.Context, l locator.By, path string) error {
	loc, err := d.locate(ctx, l)
	if err != nil {
		return err
	}
	return d.wrap(loc.SetInputFiles(path), l)
}

// Back implements core.Driver.
func (d *Driver) Back(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := d.page.GoBack()
	return err
}

// Screenshot implements core.Driver.
func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return d.page.Screenshot(playwright.PageScreenshotOptions{FullPage: playwright.Bool(true)})
}

// Source implements core.Driver.
func (d *Driver) Source(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return d.page.Content()
}

// PlatformInfo implements core.Driver.
func (d *Driver) PlatformInfo() *core.PlatformInfo {
	info := d.info
	return &info
}

// Close closes the page, the browser and the Playwright driver.
func (d *Driver) Close() error {
	var errs []error
	if d.page != nil {
		if err := d.page.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close page: %w", err))
		}
	}
	if d.browser != nil {
		if err := d.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}
	if d.pw != nil {
		if err := d.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}
	return errors.Join(errs...)
}
