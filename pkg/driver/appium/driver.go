package appium

import (
	"context"
	"fmt"

	"github.com/devicelab-dev/crm-e2e/pkg/core"
	"github.com/devicelab-dev/crm-e2e/pkg/locator"
	"github.com/devicelab-dev/crm-e2e/pkg/logger"
)

// Driver implements core.Driver using Appium server.
type Driver struct {
	client   *Client
	platform core.Platform
	appID    string
	info     core.PlatformInfo
}

var (
	_ core.Driver          = (*Driver)(nil)
	_ core.HierarchyFinder = (*Driver)(nil)
	_ core.PointTapper     = (*Driver)(nil)
)

// NewDriver opens an Appium session.
func NewDriver(ctx context.Context, serverURL string, capabilities map[string]interface{}) (*Driver, error) {
	client := NewClient(serverURL)
	if err := client.Connect(ctx, capabilities); err != nil {
		return nil, err
	}
	return newDriver(client, capabilities), nil
}

func newDriver(client *Client, capabilities map[string]interface{}) *Driver {
	d := &Driver{client: client, platform: core.PlatformAndroid}
	if client.Platform() == "ios" {
		d.platform = core.PlatformIOS
	}

	for _, key := range []string{"appium:appPackage", "appium:bundleId"} {
		if id, ok := capabilities[key].(string); ok && id != "" {
			d.appID = id
			break
		}
	}
	device, _ := capabilities["appium:deviceName"].(string)
	version, _ := capabilities["appium:platformVersion"].(string)

	d.info = core.PlatformInfo{
		Platform:    d.platform,
		DeviceName:  device,
		OSVersion:   version,
		AppID:       d.appID,
		SessionID:   client.SessionID(),
		AutomatedBy: "appium",
	}
	logger.Info("appium session %s (%s, app %s)", client.SessionID(), d.platform, d.appID)
	return d
}

// Close disconnects from Appium server.
func (d *Driver) Close() error {
	return d.client.Disconnect(context.Background())
}

// PlatformInfo implements core.Driver.
func (d *Driver) PlatformInfo() *core.PlatformInfo {
	info := d.info
	return &info
}

// Open activates the app under test, or opens url as a deep link.
func (d *Driver) Open(ctx context.Context, url string) error {
	if url != "" {
		return d.client.OpenURL(ctx, url)
	}
	if d.appID == "" {
		return nil
	}
	return d.client.ActivateApp(ctx, d.appID)
}

// using maps a locator onto an Appium "using"/"value" pair.
func (d *Driver) using(by locator.By) (string, string, error) {
	switch by.Strategy {
	case locator.StrategyXPath, locator.StrategyID, locator.StrategyAccessibility,
		locator.StrategyName, locator.StrategyUIAutomator:
		return string(by.Strategy), by.Value, nil
	case locator.StrategyText:
		xp, _ := by.AsXPath()
		return string(locator.StrategyXPath), xp, nil
	}
	return "", "", core.ErrInvalidConfig.WithMessage(fmt.Sprintf("locator strategy %q is not supported on %s", by.Strategy, d.platform))
}

func (d *Driver) elementID(ctx context.Context, by locator.By) (string, error) {
	strategy, value, err := d.using(by)
	if err != nil {
		return "", err
	}
	id, err := d.client.FindElement(ctx, strategy, value)
	if err != nil {
		if isNotFound(err) {
			return "", core.ErrElementNotFound.WithMessage("element not found: " + by.Describe()).WithCause(err)
		}
		return "", err
	}
	return id, nil
}

// Find implements core.Driver.
func (d *Driver) Find(ctx context.Context, by locator.By) (*core.ElementInfo, error) {
	id, err := d.elementID(ctx, by)
	if err != nil {
		return nil, err
	}
	return d.elementInfo(ctx, id)
}

// FindAll implements core.Driver.
func (d *Driver) FindAll(ctx context.Context, by locator.By) ([]*core.ElementInfo, error) {
	strategy, value, err := d.using(by)
	if err != nil {
		return nil, err
	}
	ids, err := d.client.FindElements(ctx, strategy, value)
	if err != nil {
		return nil, err
	}
	out := make([]*core.ElementInfo, 0, len(ids))
	for _, id := range ids {
		info, err := d.elementInfo(ctx, id)
		if err != nil {
			continue // element went stale between find and read
		}
		out = append(out, info)
	}
	return out, nil
}

func (d *Driver) elementInfo(ctx context.Context, id string) (*core.ElementInfo, error) {
	bounds, err := d.client.GetElementRect(ctx, id)
	if err != nil {
		return nil, err
	}
	text, _ := d.client.GetElementText(ctx, id)
	displayed, _ := d.client.IsElementDisplayed(ctx, id)
	enabled, _ := d.client.IsElementEnabled(ctx, id)

	return &core.ElementInfo{
		ID:      id,
		Text:    text,
		Bounds:  bounds,
		Visible: displayed,
		Enabled: enabled,
	}, nil
}

// Click implements core.Driver.
func (d *Driver) Click(ctx context.Context, by locator.By) error {
	id, err := d.elementID(ctx, by)
	if err != nil {
		return err
	}
	return d.client.ClickElement(ctx, id)
}

// Type implements core.Driver. The keyboard is hidden afterwards so it does
// not cover the next field.
func (d *Driver) Type(ctx context.Context, by locator.By, text string) error {
	id, err := d.elementID(ctx, by)
	if err != nil {
		return err
	}
	if err := d.client.ClickElement(ctx, id); err != nil {
		return err
	}
	if err := d.client.SetElementValue(ctx, id, text); err != nil {
		return err
	}
	if err := d.client.HideKeyboard(ctx); err != nil {
		logger.Debug("hide keyboard: %v", err)
	}
	return nil
}

// Clear implements core.Driver.
func (d *Driver) Clear(ctx context.Context, by locator.By) error {
	id, err := d.elementID(ctx, by)
	if err != nil {
		return err
	}
	return d.client.ClearElement(ctx, id)
}

// Text implements core.Driver.
func (d *Driver) Text(ctx context.Context, by locator.By) (string, error) {
	id, err := d.elementID(ctx, by)
	if err != nil {
		return "", err
	}
	text, err := d.client.GetElementText(ctx, id)
	if err != nil {
		return "", err
	}
	if text == "" {
		// Flutter exposes labels through content-desc / label only.
		attr := "content-desc"
		if d.platform == core.PlatformIOS {
			attr = "label"
		}
		text, _ = d.client.GetElementAttribute(ctx, id, attr)
	}
	return text, nil
}

// Attribute implements core.Driver.
func (d *Driver) Attribute(ctx context.Context, by locator.By, name string) (string, error) {
	id, err := d.elementID(ctx, by)
	if err != nil {
		return "", err
	}
	return d.client.GetElementAttribute(ctx, id, name)
}

// IsVisible implements core.Driver. A missing element is not visible.
func (d *Driver) IsVisible(ctx context.Context, by locator.By) (bool, error) {
	id, err := d.elementID(ctx, by)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return d.client.IsElementDisplayed(ctx, id)
}

// UploadFile is not available on mobile.
func (d *Driver) UploadFile(ctx context.Context, by locator.By, path string) error {
	return core.ErrInvalidConfig.WithMessage("file upload is only supported in browser sessions")
}

// Back implements core.Driver.
func (d *Driver) Back(ctx context.Context) error {
	return d.client.Back(ctx)
}

// Screenshot implements core.Driver.
func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	return d.client.Screenshot(ctx)
}

// Source implements core.Driver.
func (d *Driver) Source(ctx context.Context) (string, error) {
	return d.client.Source(ctx)
}

// HideKeyboard dismisses the soft keyboard.
func (d *Driver) HideKeyboard(ctx context.Context) error {
	return d.client.HideKeyboard(ctx)
}

// TapPoint implements core.PointTapper.
func (d *Driver) TapPoint(ctx context.Context, x, y int) error {
	return d.client.Tap(ctx, x, y)
}

// FindInHierarchy implements core.HierarchyFinder: it reads the page source
// once and returns the first candidate whose text hint matches an element.
func (d *Driver) FindInHierarchy(ctx context.Context, candidates []locator.By) (*core.ElementInfo, error) {
	source, err := d.client.Source(ctx)
	if err != nil {
		return nil, err
	}
	elements, platform, err := ParsePageSource(source)
	if err != nil {
		return nil, err
	}

	for _, c := range candidates {
		matches := MatchHint(elements, locator.Hint(c), platform)
		if best := BestMatch(matches); best != nil {
			info := best.ToElementInfo(platform)
			matched := c
			info.MatchedBy = &matched
			logger.Debug("hierarchy match for %s: %q at %+v", c.Describe(), info.Text, info.Bounds)
			return info, nil
		}
	}
	return nil, core.ErrElementNotFound.WithMessage("no element in page source matches any fallback candidate")
}
