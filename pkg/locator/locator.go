// Package locator describes how page objects address UI elements and builds
// the dynamic XPath expressions used across the CRM screens.
package locator

import (
	"fmt"
	"strings"
)

// Strategy names follow the W3C WebDriver / Appium "using" values.
type Strategy string

const (
	StrategyXPath         Strategy = "xpath"
	StrategyID            Strategy = "id"
	StrategyCSS           Strategy = "css selector"
	StrategyName          Strategy = "name"
	StrategyAccessibility Strategy = "accessibility id"
	StrategyText          Strategy = "text"
	StrategyUIAutomator   Strategy = "-android uiautomator"
)

// By addresses a single element.
type By struct {
	Strategy Strategy `json:"strategy" yaml:"strategy"`
	Value    string   `json:"value" yaml:"value"`
	// Name is an optional label shown in reports, e.g. "login button".
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

func XPath(expr string) By { return By{Strategy: StrategyXPath, Value: expr} }
func ID(id string) By { return By{Strategy: StrategyID, Value: id} }
func CSS(selector string) By { return By{Strategy: StrategyCSS, Value: selector} }
func Name(name string) By { return By{Strategy: StrategyName, Value: name} }
func AccessibilityID(id string) By { return By{Strategy: StrategyAccessibility, Value: id} }
func Text(text string) By { return By{Strategy: StrategyText, Value: text} }
func UIAutomator(selector string) By { return By{Strategy: StrategyUIAutomator, Value: selector} }

// Named returns a copy of the locator carrying a human label.
func (b By) Named(name string) By {
	b.Name = name
	return b
}

// IsZero reports whether the locator is unset.
func (b By) IsZero() bool {
	return b.Value == ""
}

// Describe returns a human description used in logs and reports.
func (b By) Describe() string {
	if b.Name != "" {
		return fmt.Sprintf("%s (%s=%s)", b.Name, b.Strategy, b.Value)
	}
	return fmt.Sprintf("%s=%s", b.Strategy, b.Value)
}

func (b By) String() string {
	return b.Describe()
}

// AsXPath converts text/id/name/accessibility locators to an equivalent XPath.
// CSS and UIAutomator selectors have no XPath form; ok is false for them.
func (b By) AsXPath() (string, bool) {
	switch b.Strategy {
	case StrategyXPath:
		return b.Value, true
	case StrategyID:
		return "//*[@id=" + Quote(b.Value) + " or @resource-id=" + Quote(b.Value) + "]", true
	case StrategyName:
		return "//*[@name=" + Quote(b.Value) + "]", true
	case StrategyAccessibility:
		return "//*[@content-desc=" + Quote(b.Value) + " or @aria-label=" + Quote(b.Value) + " or @name=" + Quote(b.Value) + "]", true
	case StrategyText:
		return "//*[normalize-space(text())=" + Quote(b.Value) + " or @text=" + Quote(b.Value) + "]", true
	}
	return "", false
}

// Quote renders s as an XPath string literal. Strings holding both quote
// characters are expressed with concat().
func Quote(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}

	parts := strings.Split(s, "'")
	var sb strings.Builder
	sb.WriteString("concat(")
	for i, p := range parts {
		if i > 0 {
			sb.WriteString(`, "'", `)
		}
		sb.WriteString("'" + p + "'")
	}
	sb.WriteString(")")
	return sb.String()
}
