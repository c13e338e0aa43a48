package driver

import (
	"errors"
	"testing"

	"github.com/devicelab-dev/crm-e2e/pkg/config"
	"github.com/devicelab-dev/crm-e2e/pkg/core"
)

func TestMobileCapabilities_Android(t *testing.T) {
	caps := MobileCapabilities(core.PlatformAndroid,
		map[string]interface{}{"appium:deviceName": "Pixel 7", "appium:noReset": false},
		config.MobileProperties{AppPackage: "com.crm.field", AppActivity: ".MainActivity"})

	want := map[string]interface{}{
		"platformName":          "Android",
		"appium:automationName": "UiAutomator2",
		"appium:appPackage":     "com.crm.field",
		"appium:appActivity":    ".MainActivity",
		"appium:deviceName":     "Pixel 7",
		"appium:noReset":        false,
	}
	for k, v := range want {
		if caps[k] != v {
			t.Errorf("caps[%q] = %v, want %v", k, caps[k], v)
		}
	}
}

func TestMobileCapabilities_IOS(t *testing.T) {
	caps := MobileCapabilities(core.PlatformIOS, nil, config.MobileProperties{BundleID: "com.crm.field", AppPackage: "ignored"})
	if caps["platformName"] != "iOS" || caps["appium:automationName"] != "XCUITest" {
		t.Errorf("caps = %v", caps)
	}
	if caps["appium:bundleId"] != "com.crm.field" {
		t.Errorf("bundleId = %v", caps["appium:bundleId"])
	}
	if _, ok := caps["appium:appPackage"]; ok {
		t.Error("iOS caps should not carry appPackage")
	}
}

func TestNewFactory(t *testing.T) {
	props := &config.Properties{}
	for _, cfg := range []*config.Config{
		{Platform: "web", Browser: "selenium"},
		{Platform: "web", Browser: "Playwright"},
		{Platform: "android"},
		{Platform: "ios"},
	} {
		if f, err := NewFactory(cfg, props); err != nil || f == nil {
			t.Errorf("NewFactory(%s/%s) = %v", cfg.Platform, cfg.Browser, err)
		}
	}

	if _, err := NewFactory(&config.Config{Platform: "web", Browser: "cypress"}, props); !errors.Is(err, core.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for unknown engine, got %v", err)
	}
	if _, err := NewFactory(&config.Config{Platform: "windows"}, props); !errors.Is(err, core.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for unknown platform, got %v", err)
	}
}

func TestPlaywrightBrowser(t *testing.T) {
	cases := map[string]string{"chrome": "chromium", "": "chromium", "Firefox": "firefox", "safari": "webkit"}
	for in, want := range cases {
		if got := playwrightBrowser(in); got != want {
			t.Errorf("playwrightBrowser(%q) = %q, want %q", in, got, want)
		}
	}
}
