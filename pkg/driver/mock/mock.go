// Package mock provides an in-memory driver for testing page objects and
// steps without a browser or device.
package mock

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/devicelab-dev/crm-e2e/pkg/core"
	"github.com/devicelab-dev/crm-e2e/pkg/locator"
)

// Driver is a mock implementation of core.Driver. Elements are registered
// by locator; lookups match strategy and value exactly.
type Driver struct {
	// Configuration
	Config Config

	mu       sync.Mutex
	elements map[string]*Element
	onClick  map[string]func(d *Driver)
	actions  []Action
	url      string
	closed   bool
}

// Config configures mock driver behavior.
type Config struct {
	// FailOnAction makes action N fail (1-indexed). 0 = never fail.
	FailOnAction int
	// ActionDelay adds artificial delay per action
	ActionDelay time.Duration
	// Platform info to report
	Platform core.Platform
	Browser  string
}

// Element is a fake element on the current screen.
type Element struct {
	Text       string
	Value      string
	Visible    bool
	Enabled    bool
	Attributes map[string]string
	Bounds     core.Bounds

	// hiddenLookups counts lookups left before the element shows up.
	hiddenLookups int
}

// Action is one recorded driver call.
type Action struct {
	Kind    string // open, click, type, clear, upload, back, tap
	Locator string
	Value   string
}

// New creates a new mock driver.
func New(cfg Config) *Driver {
	if cfg.Platform == "" {
		cfg.Platform = core.PlatformWeb
	}
	if cfg.Browser == "" && cfg.Platform == core.PlatformWeb {
		cfg.Browser = "mock"
	}
	return &Driver{
		Config:   cfg,
		elements: map[string]*Element{},
		onClick:  map[string]func(*Driver){},
	}
}

var (
	_ core.Driver          = (*Driver)(nil)
	_ core.HierarchyFinder = (*Driver)(nil)
	_ core.PointTapper     = (*Driver)(nil)
)

func key(by locator.By) string {
	return string(by.Strategy) + "|" + by.Value
}

// Add places a visible, enabled element on the screen.
func (d *Driver) Add(by locator.By, text string) *Element {
	el := &Element{
		Text:       text,
		Visible:    true,
		Enabled:    true,
		Attributes: map[string]string{},
		Bounds:     core.Bounds{X: 100, Y: 200, Width: 200, Height: 50},
	}
	d.Put(by, el)
	return el
}

// Put registers el under by, replacing any previous element.
func (d *Driver) Put(by locator.By, el *Element) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if el.Attributes == nil {
		el.Attributes = map[string]string{}
	}
	d.elements[key(by)] = el
}

// AppearAfter registers an element that stays missing for the first n
// lookups, simulating a slow page.
func (d *Driver) AppearAfter(by locator.By, text string, n int) *Element {
	el := d.Add(by, text)
	d.mu.Lock()
	el.hiddenLookups = n
	d.mu.Unlock()
	return el
}

// Remove takes an element off the screen.
func (d *Driver) Remove(by locator.By) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.elements, key(by))
}

// OnClick registers fn to run after by is clicked, e.g. to swap screens.
func (d *Driver) OnClick(by locator.By, fn func(d *Driver)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onClick[key(by)] = fn
}

// Actions returns the recorded actions.
func (d *Driver) Actions() []Action {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Action, len(d.actions))
	copy(out, d.actions)
	return out
}

// URL returns the last opened URL.
func (d *Driver) URL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.url
}

// Closed reports whether Close was called.
func (d *Driver) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// record appends an action and applies the configured delay and failure.
// Callers hold d.mu.
func (d *Driver) record(kind string, by locator.By, value string) error {
	d.actions = append(d.actions, Action{Kind: kind, Locator: by.Value, Value: value})
	if d.Config.ActionDelay > 0 {
		time.Sleep(d.Config.ActionDelay)
	}
	if d.Config.FailOnAction > 0 && len(d.actions) == d.Config.FailOnAction {
		return fmt.Errorf("mock failure on action %d (%s)", len(d.actions), kind)
	}
	return nil
}

// lookup returns the element for by. Callers hold d.mu.
func (d *Driver) lookup(by locator.By) (*Element, error) {
	el, ok := d.elements[key(by)]
	if !ok {
		return nil, core.ErrElementNotFound.WithMessage("element not found: " + by.Describe())
	}
	if el.hiddenLookups > 0 {
		el.hiddenLookups--
		return nil, core.ErrElementNotFound.WithMessage("element not found: " + by.Describe())
	}
	return el, nil
}

func (el *Element) info(id string) *core.ElementInfo {
	attrs := make(map[string]string, len(el.Attributes))
	for k, v := range el.Attributes {
		attrs[k] = v
	}
	text := el.Text
	if text == "" {
		text = el.Value
	}
	return &core.ElementInfo{
		ID:         id,
		Text:       text,
		Bounds:     el.Bounds,
		Visible:    el.Visible,
		Enabled:    el.Enabled,
		Attributes: attrs,
	}
}

// Open implements core.Driver.
func (d *Driver) Open(ctx context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.url = url
	return d.record("open", locator.By{}, url)
}

// Find implements core.Driver.
func (d *Driver) Find(ctx context.Context, by locator.By) (*core.ElementInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, err := d.lookup(by)
	if err != nil {
		return nil, err
	}
	return el.info(key(by)), nil
}

// FindAll implements core.Driver. Elements registered under by and under
// by with an "[n]" index suffix are returned in index order.
func (d *Driver) FindAll(ctx context.Context, by locator.By) ([]*core.ElementInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	prefix := key(by)
	var keys []string
	for k := range d.elements {
		if k == prefix || strings.HasPrefix(k, prefix+"[") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := make([]*core.ElementInfo, 0, len(keys))
	for _, k := range keys {
		out = append(out, d.elements[k].info(k))
	}
	return out, nil
}

// Click implements core.Driver.
func (d *Driver) Click(ctx context.Context, by locator.By) error {
	d.mu.Lock()
	el, err := d.lookup(by)
	if err == nil && !el.Visible {
		err = core.ErrElementNotVisible.WithMessage("element not visible: " + by.Describe())
	}
	if err == nil {
		err = d.record("click", by, "")
	}
	fn := d.onClick[key(by)]
	d.mu.Unlock()

	if err != nil {
		return err
	}
	if fn != nil {
		fn(d)
	}
	return nil
}

// Type implements core.Driver.
func (d *Driver) Type(ctx context.Context, by locator.By, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, err := d.lookup(by)
	if err != nil {
		return err
	}
	if err := d.record("type", by, text); err != nil {
		return err
	}
	el.Value += text
	return nil
}

// Clear implements core.Driver.
func (d *Driver) Clear(ctx context.Context, by locator.By) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, err := d.lookup(by)
	if err != nil {
		return err
	}
	if err := d.record("clear", by, ""); err != nil {
		return err
	}
	el.Value = ""
	return nil
}

// Text implements core.Driver.
func (d *Driver) Text(ctx context.Context, by locator.By) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, err := d.lookup(by)
	if err != nil {
		return "", err
	}
	if el.Text == "" {
		return el.Value, nil
	}
	return el.Text, nil
}

// Attribute implements core.Driver. "value" reads the typed value.
func (d *Driver) Attribute(ctx context.Context, by locator.By, name string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, err := d.lookup(by)
	if err != nil {
		return "", err
	}
	if name == "value" {
		return el.Value, nil
	}
	return el.Attributes[name], nil
}

// IsVisible implements core.Driver.
func (d *Driver) IsVisible(ctx context.Context, by locator.By) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, err := d.lookup(by)
	if err != nil {
		return false, nil
	}
	return el.Visible, nil
}

// UploadFile implements core.Driver.
func (d *Driver) UploadFile(ctx context.Context, by locator.By, path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, err := d.lookup(by)
	if err != nil {
		return err
	}
	if err := d.record("upload", by, path); err != nil {
		return err
	}
	el.Value = path
	return nil
}

// Back implements core.Driver.
func (d *Driver) Back(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.record("back", locator.By{}, "")
}

// Screenshot returns a mock PNG image.
func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	// Minimal valid PNG (1x1 transparent pixel)
	return []byte{
		0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, // PNG signature
		0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52, // IHDR chunk
		0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
		0x08, 0x06, 0x00, 0x00, 0x00, 0x1F, 0x15, 0xC4,
		0x89, 0x00, 0x00, 0x00, 0x0A, 0x49, 0x44, 0x41,
		0x54, 0x78, 0x9C, 0x63, 0x00, 0x01, 0x00, 0x00,
		0x05, 0x00, 0x01, 0x0D, 0x0A, 0x2D, 0xB4, 0x00,
		0x00, 0x00, 0x00, 0x49, 0x45, 0x4E, 0x44, 0xAE,
		0x42, 0x60, 0x82,
	}, nil
}

// Source renders the registered elements as a flat HTML document.
func (d *Driver) Source(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	keys := make([]string, 0, len(d.elements))
	for k := range d.elements {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString("<html><body>\n")
	for _, k := range keys {
		el := d.elements[k]
		fmt.Fprintf(&sb, "  <div data-locator=%q data-visible=\"%t\">%s</div>\n", k, el.Visible, el.Text)
	}
	sb.WriteString("</body></html>\n")
	return sb.String(), nil
}

// FindInHierarchy implements core.HierarchyFinder by matching each
// candidate's text hint against element text.
func (d *Driver) FindInHierarchy(ctx context.Context, candidates []locator.By) (*core.ElementInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, c := range candidates {
		hint := locator.Hint(c)
		if hint == "" {
			continue
		}
		for k, el := range d.elements {
			if el.hiddenLookups == 0 && strings.EqualFold(el.Text, hint) {
				info := el.info(k)
				matched := c
				info.MatchedBy = &matched
				return info, nil
			}
		}
	}
	return nil, core.ErrElementNotFound.WithMessage("no element matches any fallback candidate")
}

// TapPoint implements core.PointTapper.
func (d *Driver) TapPoint(ctx context.Context, x, y int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.record("tap", locator.By{}, fmt.Sprintf("%d,%d", x, y))
}

// PlatformInfo implements core.Driver.
func (d *Driver) PlatformInfo() *core.PlatformInfo {
	info := &core.PlatformInfo{
		Platform:    d.Config.Platform,
		Browser:     d.Config.Browser,
		SessionID:   "mock-session",
		AutomatedBy: "mock",
	}
	if d.Config.Platform.IsMobile() {
		info.DeviceName = "Mock Device"
		info.OSVersion = "1.0"
	}
	return info
}

// Close implements core.Driver.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}
