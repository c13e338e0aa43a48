package core

import (
	"context"
	"strings"

	"github.com/devicelab-dev/crm-e2e/pkg/locator"
)

// Driver is the page-object level view of a UI session. Browser (Selenium,
// Playwright) and mobile (Appium) sessions implement it.
//
// Element operations are single attempts: they fail with ErrElementNotFound
// when nothing matches right now. Waiting is the caller's job (page.Base).
type Driver interface {
	// Open navigates the browser to url, or launches/activates the app when
	// url is empty on mobile.
	Open(ctx context.Context, url string) error

	Find(ctx context.Context, by locator.By) (*ElementInfo, error)
	FindAll(ctx context.Context, by locator.By) ([]*ElementInfo, error)

	Click(ctx context.Context, by locator.By) error
	Type(ctx context.Context, by locator.By, text string) error
	Clear(ctx context.Context, by locator.By) error
	Text(ctx context.Context, by locator.By) (string, error)
	Attribute(ctx context.Context, by locator.By, name string) (string, error)
	IsVisible(ctx context.Context, by locator.By) (bool, error)

	// UploadFile attaches a local file to a file input.
	UploadFile(ctx context.Context, by locator.By, path string) error

	Back(ctx context.Context) error

	// Screenshot captures the current screen as PNG.
	Screenshot(ctx context.Context) ([]byte, error)

	// Source returns the DOM (web) or accessibility hierarchy XML (mobile).
	Source(ctx context.Context) (string, error)

	PlatformInfo() *PlatformInfo
	Close() error
}

// HierarchyFinder is implemented by drivers that can resolve a locator by
// parsing the page source themselves when the server-side lookup fails.
type HierarchyFinder interface {
	FindInHierarchy(ctx context.Context, candidates []locator.By) (*ElementInfo, error)
}

// PointTapper is implemented by drivers that can tap screen coordinates.
type PointTapper interface {
	TapPoint(ctx context.Context, x, y int) error
}

// ElementInfo represents information about a UI element
type ElementInfo struct {
	ID                 string            `json:"id,omitempty"`
	Text               string            `json:"text,omitempty"`
	Bounds             Bounds            `json:"bounds"`
	Visible            bool              `json:"visible"`
	Enabled            bool              `json:"enabled"`
	Class              string            `json:"class,omitempty"`
	AccessibilityLabel string            `json:"accessibilityLabel,omitempty"`
	Attributes         map[string]string `json:"attributes,omitempty"`

	// Locator that resolved the element. Differs from the requested one when
	// a fallback candidate matched.
	MatchedBy *locator.By `json:"matchedBy,omitempty"`
}

// Bounds represents element position and size
type Bounds struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Center returns the center point of the bounds
func (b Bounds) Center() (int, int) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

// Contains checks if a point is within the bounds
func (b Bounds) Contains(x, y int) bool {
	return x >= b.X && x < b.X+b.Width && y >= b.Y && y < b.Y+b.Height
}

// IsEmpty reports whether the element has no area.
func (b Bounds) IsEmpty() bool {
	return b.Width <= 0 || b.Height <= 0
}

// Platform identifies the surface a driver automates.
type Platform string

const (
	PlatformWeb     Platform = "web"
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
)

// Locator returns the matching locator.Platform used for fallback candidates.
func (p Platform) Locator() locator.Platform {
	return locator.Platform(p)
}

// IsMobile reports whether the platform is served by Appium.
func (p Platform) IsMobile() bool {
	return p == PlatformAndroid || p == PlatformIOS
}

// ParsePlatform accepts "web", "android" or "ios" in any case.
func ParsePlatform(s string) (Platform, error) {
	switch Platform(strings.ToLower(strings.TrimSpace(s))) {
	case PlatformWeb, "":
		return PlatformWeb, nil
	case PlatformAndroid:
		return PlatformAndroid, nil
	case PlatformIOS:
		return PlatformIOS, nil
	}
	return "", ErrInvalidConfig.WithMessage("unknown platform " + s)
}

// PlatformInfo describes the automated session.
type PlatformInfo struct {
	Platform    Platform `json:"platform"`
	Browser     string   `json:"browser,omitempty"`     // chrome, chromium, firefox
	DeviceName  string   `json:"deviceName,omitempty"`  // mobile only
	OSVersion   string   `json:"osVersion,omitempty"`   // mobile only
	AppID       string   `json:"appId,omitempty"`       // package / bundle id
	SessionID   string   `json:"sessionId,omitempty"`   // WebDriver session
	AutomatedBy string   `json:"automatedBy,omitempty"` // selenium, playwright, appium, mock
}
