// Package appium drives the CRM mobile app through an Appium server using
// the W3C WebDriver protocol.
package appium

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/devicelab-dev/crm-e2e/pkg/core"
	"github.com/devicelab-dev/crm-e2e/pkg/logger"
)

// W3C WebDriver element identifier key (standard constant)
const w3cElementKey = "element-6066-11e4-a52e-4f735466cecf"

// WebDriverError is an error payload returned by the Appium server.
type WebDriverError struct {
	Status  int
	Code    string // W3C error code, e.g. "no such element"
	Message string
}

func (e *WebDriverError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap maps W3C error codes onto core errors so callers can use errors.Is.
func (e *WebDriverError) Unwrap() error {
	switch e.Code {
	case "no such element", "stale element reference":
		return core.ErrElementNotFound
	case "element not interactable":
		return core.ErrElementNotVisible
	case "invalid session id":
		return core.ErrSessionLost
	case "timeout", "script timeout":
		return core.ErrTimeout
	}
	return nil
}

// Client handles HTTP communication with Appium server.
type Client struct {
	http      *resty.Client
	sessionID string
	platform  string // ios, android
	screenW   int
	screenH   int
}

// NewClient creates a new Appium client.
func NewClient(serverURL string) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(strings.TrimSuffix(serverURL, "/")).
			SetTimeout(5 * time.Minute). // session creation installs the app
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json"),
	}
}

// Connect creates a new session with the given capabilities.
func (c *Client) Connect(ctx context.Context, capabilities map[string]interface{}) error {
	body := map[string]interface{}{
		"capabilities": map[string]interface{}{
			"alwaysMatch": capabilities,
		},
	}

	var session struct {
		SessionID    string                 `json:"sessionId"`
		Capabilities map[string]interface{} `json:"capabilities"`
	}
	if err := c.call(ctx, http.MethodPost, "/session", body, &session); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	if session.SessionID == "" {
		return fmt.Errorf("no session ID in response")
	}
	c.sessionID = session.SessionID

	if p, ok := session.Capabilities["platformName"].(string); ok {
		c.platform = strings.ToLower(p)
	} else if p, ok := capabilities["platformName"].(string); ok {
		c.platform = strings.ToLower(p)
	}

	c.fetchScreenSize(ctx)

	// Flutter screens animate constantly; waiting for idle stalls every lookup.
	settings := map[string]interface{}{"waitForIdleTimeout": 0}
	if c.platform == "ios" {
		settings["animationCoolOffTimeout"] = 0
	} else {
		settings["waitForSelectorTimeout"] = 0
	}
	if err := c.SetSettings(ctx, settings); err != nil {
		logger.Debug("appium settings not applied: %v", err)
	}
	return nil
}

// Disconnect closes the session.
func (c *Client) Disconnect(ctx context.Context) error {
	if c.sessionID == "" {
		return nil
	}
	err := c.call(ctx, http.MethodDelete, c.sessionPath(), nil, nil)
	c.sessionID = ""
	return err
}

// SessionID returns the current session id.
func (c *Client) SessionID() string {
	return c.sessionID
}

// Platform returns the platform (ios/android).
func (c *Client) Platform() string {
	return c.platform
}

// ScreenSize returns the screen dimensions.
func (c *Client) ScreenSize() (int, int) {
	return c.screenW, c.screenH
}

func (c *Client) fetchScreenSize(ctx context.Context) {
	var rect struct {
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
	}
	if err := c.call(ctx, http.MethodGet, c.sessionPath()+"/window/rect", nil, &rect); err != nil {
		return
	}
	c.screenW, c.screenH = int(rect.Width), int(rect.Height)
}

// Element Operations

// FindElement finds a single element.
func (c *Client) FindElement(ctx context.Context, strategy, value string) (string, error) {
	var elem map[string]interface{}
	err := c.call(ctx, http.MethodPost, c.sessionPath()+"/element",
		map[string]interface{}{"using": strategy, "value": value}, &elem)
	if err != nil {
		return "", err
	}
	id := extractElementID(elem)
	if id == "" {
		return "", core.ErrElementNotFound
	}
	return id, nil
}

// FindElements finds multiple elements.
func (c *Client) FindElements(ctx context.Context, strategy, value string) ([]string, error) {
	var elems []map[string]interface{}
	err := c.call(ctx, http.MethodPost, c.sessionPath()+"/elements",
		map[string]interface{}{"using": strategy, "value": value}, &elems)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, e := range elems {
		if id := extractElementID(e); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// ClickElement clicks an element using WebDriver standard endpoint.
func (c *Client) ClickElement(ctx context.Context, elementID string) error {
	return c.call(ctx, http.MethodPost, c.elementPath(elementID)+"/click", nil, nil)
}

// ClearElement clears an element's text.
func (c *Client) ClearElement(ctx context.Context, elementID string) error {
	return c.call(ctx, http.MethodPost, c.elementPath(elementID)+"/clear", nil, nil)
}

// SetElementValue types text into an element.
func (c *Client) SetElementValue(ctx context.Context, elementID, text string) error {
	return c.call(ctx, http.MethodPost, c.elementPath(elementID)+"/value",
		map[string]interface{}{"text": text}, nil)
}

// GetElementText returns an element's text.
func (c *Client) GetElementText(ctx context.Context, elementID string) (string, error) {
	var text string
	err := c.call(ctx, http.MethodGet, c.elementPath(elementID)+"/text", nil, &text)
	return text, err
}

// GetElementAttribute returns an element's attribute value.
func (c *Client) GetElementAttribute(ctx context.Context, elementID, name string) (string, error) {
	var value *string
	if err := c.call(ctx, http.MethodGet, c.elementPath(elementID)+"/attribute/"+name, nil, &value); err != nil {
		return "", err
	}
	if value == nil {
		return "", nil
	}
	return *value, nil
}

// GetElementRect returns an element's position and size.
func (c *Client) GetElementRect(ctx context.Context, elementID string) (core.Bounds, error) {
	var rect struct {
		X, Y, Width, Height float64
	}
	if err := c.call(ctx, http.MethodGet, c.elementPath(elementID)+"/rect", nil, &rect); err != nil {
		return core.Bounds{}, err
	}
	return core.Bounds{X: int(rect.X), Y: int(rect.Y), Width: int(rect.Width), Height: int(rect.Height)}, nil
}

// IsElementDisplayed checks if element is visible.
func (c *Client) IsElementDisplayed(ctx context.Context, elementID string) (bool, error) {
	var displayed bool
	err := c.call(ctx, http.MethodGet, c.elementPath(elementID)+"/displayed", nil, &displayed)
	return displayed, err
}

// IsElementEnabled checks if element is enabled.
func (c *Client) IsElementEnabled(ctx context.Context, elementID string) (bool, error) {
	var enabled bool
	err := c.call(ctx, http.MethodGet, c.elementPath(elementID)+"/enabled", nil, &enabled)
	return enabled, err
}

// Tap performs a tap at coordinates using W3C touch actions.
func (c *Client) Tap(ctx context.Context, x, y int) error {
	actions := []map[string]interface{}{
		{
			"type":       "pointer",
			"id":         "finger1",
			"parameters": map[string]interface{}{"pointerType": "touch"},
			"actions": []map[string]interface{}{
				{"type": "pointerMove", "duration": 0, "x": x, "y": y, "origin": "viewport"},
				{"type": "pointerDown", "button": 0},
				{"type": "pause", "duration": 50},
				{"type": "pointerUp", "button": 0},
			},
		},
	}
	return c.call(ctx, http.MethodPost, c.sessionPath()+"/actions", map[string]interface{}{"actions": actions}, nil)
}

// HideKeyboard hides the on-screen keyboard.
func (c *Client) HideKeyboard(ctx context.Context) error {
	return c.call(ctx, http.MethodPost, c.sessionPath()+"/appium/device/hide_keyboard", nil, nil)
}

// Back navigates back.
func (c *Client) Back(ctx context.Context) error {
	return c.call(ctx, http.MethodPost, c.sessionPath()+"/back", nil, nil)
}

// ActivateApp brings an app to the foreground, launching it if needed.
func (c *Client) ActivateApp(ctx context.Context, appID string) error {
	return c.call(ctx, http.MethodPost, c.sessionPath()+"/appium/device/activate_app", c.appBody(appID), nil)
}

// TerminateApp terminates an app.
func (c *Client) TerminateApp(ctx context.Context, appID string) error {
	return c.call(ctx, http.MethodPost, c.sessionPath()+"/appium/device/terminate_app", c.appBody(appID), nil)
}

func (c *Client) appBody(appID string) map[string]interface{} {
	if c.platform == "ios" {
		return map[string]interface{}{"bundleId": appID}
	}
	return map[string]interface{}{"appId": appID}
}

// OpenURL opens a deep link.
func (c *Client) OpenURL(ctx context.Context, url string) error {
	return c.call(ctx, http.MethodPost, c.sessionPath()+"/url", map[string]interface{}{"url": url}, nil)
}

// Screenshot returns a screenshot as PNG bytes.
func (c *Client) Screenshot(ctx context.Context) ([]byte, error) {
	var encoded string
	if err := c.call(ctx, http.MethodGet, c.sessionPath()+"/screenshot", nil, &encoded); err != nil {
		return nil, err
	}
	return base64.StdEncoding.DecodeString(encoded)
}

// Source returns the page source XML.
func (c *Client) Source(ctx context.Context) (string, error) {
	var source string
	err := c.call(ctx, http.MethodGet, c.sessionPath()+"/source", nil, &source)
	return source, err
}

// SetSettings updates Appium driver settings.
func (c *Client) SetSettings(ctx context.Context, settings map[string]interface{}) error {
	return c.call(ctx, http.MethodPost, c.sessionPath()+"/appium/settings",
		map[string]interface{}{"settings": settings}, nil)
}

// HTTP Helpers

func (c *Client) sessionPath() string {
	return "/session/" + c.sessionID
}

func (c *Client) elementPath(elementID string) string {
	return c.sessionPath() + "/element/" + elementID
}

// call performs a W3C request and decodes the "value" member into out.
func (c *Client) call(ctx context.Context, method, path string, body, out interface{}) error {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	} else if method == http.MethodPost {
		req.SetBody(map[string]interface{}{})
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return core.ErrServerUnreachable.WithCause(err)
	}

	var envelope struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(resp.Body(), &envelope); err != nil {
		return fmt.Errorf("failed to parse response (%d): %w", resp.StatusCode(), err)
	}

	var wdErr struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if len(envelope.Value) > 0 && envelope.Value[0] == '{' {
		if json.Unmarshal(envelope.Value, &wdErr) == nil && wdErr.Error != "" {
			return &WebDriverError{Status: resp.StatusCode(), Code: wdErr.Error, Message: wdErr.Message}
		}
	}
	if resp.IsError() {
		return &WebDriverError{Status: resp.StatusCode(), Code: "unknown error", Message: string(resp.Body())}
	}

	if out == nil || len(envelope.Value) == 0 || string(envelope.Value) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Value, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func extractElementID(value map[string]interface{}) string {
	if id, ok := value[w3cElementKey].(string); ok {
		return id
	}
	// Legacy JSONWP format
	if id, ok := value["ELEMENT"].(string); ok {
		return id
	}
	return ""
}

// isNotFound reports whether err means the element does not exist.
func isNotFound(err error) bool {
	return errors.Is(err, core.ErrElementNotFound)
}
