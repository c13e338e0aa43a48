// Package driver selects and starts the UI session (browser or mobile app)
// a scenario runs against.
package driver

import (
	"context"
	"fmt"
	"strings"

	"github.com/devicelab-dev/crm-e2e/pkg/config"
	"github.com/devicelab-dev/crm-e2e/pkg/core"
	"github.com/devicelab-dev/crm-e2e/pkg/driver/appium"
	"github.com/devicelab-dev/crm-e2e/pkg/driver/playwright"
	"github.com/devicelab-dev/crm-e2e/pkg/driver/selenium"
)

// Factory starts a new UI session.
type Factory func(ctx context.Context) (core.Driver, error)

// Engines accepted for browser sessions.
const (
	EngineSelenium   = "selenium"
	EnginePlaywright = "playwright"
)

// NewFactory returns a Factory for the platform and engine in cfg.
func NewFactory(cfg *config.Config, props *config.Properties) (Factory, error) {
	platform, err := core.ParsePlatform(cfg.Platform)
	if err != nil {
		return nil, err
	}

	if platform.IsMobile() {
		caps := MobileCapabilities(platform, cfg.Capabilities, props.Mobile)
		url := cfg.AppiumURL
		return func(ctx context.Context) (core.Driver, error) {
			return appium.NewDriver(ctx, url, caps)
		}, nil
	}

	switch strings.ToLower(cfg.Browser) {
	case EngineSelenium, "":
		opts := selenium.Options{
			URL:          cfg.SeleniumURL,
			Browser:      cfg.BrowserName,
			Headless:     cfg.Headless,
			Capabilities: cfg.Capabilities,
			WindowWidth:  1440,
			WindowHeight: 900,
			DownloadDir:  config.GetDownloadsDir(),
		}
		return func(ctx context.Context) (core.Driver, error) {
			return selenium.NewDriver(ctx, opts)
		}, nil
	case EnginePlaywright:
		opts := playwright.Options{
			Browser:         playwrightBrowser(cfg.BrowserName),
			Headless:        cfg.Headless,
			DriverDirectory: config.GetDriversDir("playwright"),
			ViewportWidth:   1440,
			ViewportHeight:  900,
		}
		return func(ctx context.Context) (core.Driver, error) {
			return playwright.NewDriver(ctx, opts)
		}, nil
	}
	return nil, core.ErrInvalidConfig.WithMessage(fmt.Sprintf("unknown browser engine %q (want selenium or playwright)", cfg.Browser))
}

// playwrightBrowser maps Selenium browser names onto Playwright's.
func playwrightBrowser(name string) string {
	switch strings.ToLower(name) {
	case "firefox":
		return "firefox"
	case "safari", "webkit":
		return "webkit"
	}
	return "chromium"
}

// MobileCapabilities builds Appium capabilities for the CRM app. Values in
// extra win over the generated defaults.
func MobileCapabilities(platform core.Platform, extra map[string]interface{}, app config.MobileProperties) map[string]interface{} {
	caps := map[string]interface{}{
		"appium:newCommandTimeout": 300,
		"appium:noReset":           true,
	}
	if platform == core.PlatformIOS {
		caps["platformName"] = "iOS"
		caps["appium:automationName"] = "XCUITest"
		if app.BundleID != "" {
			caps["appium:bundleId"] = app.BundleID
		}
	} else {
		caps["platformName"] = "Android"
		caps["appium:automationName"] = "UiAutomator2"
		if app.AppPackage != "" {
			caps["appium:appPackage"] = app.AppPackage
		}
		if app.AppActivity != "" {
			caps["appium:appActivity"] = app.AppActivity
		}
	}
	for k, v := range extra {
		caps[k] = v
	}
	return caps
}
