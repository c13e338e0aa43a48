package appium

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/devicelab-dev/crm-e2e/pkg/core"
)

// ParsedElement is one node of the Appium page source. Android and iOS
// attributes share the struct; unused ones stay empty.
type ParsedElement struct {
	Bounds    core.Bounds
	Enabled   bool
	Displayed bool
	Clickable bool
	Depth     int
	Children  []*ParsedElement
	Parent    *ParsedElement

	// Android
	Text        string
	ResourceID  string
	ContentDesc string
	HintText    string
	ClassName   string

	// iOS
	Type             string
	Name             string
	Label            string
	Value            string
	PlaceholderValue string
}

// ParsePageSource parses page source XML into a flat, document-ordered
// element list and reports the detected platform.
func ParsePageSource(xmlData string) ([]*ParsedElement, string, error) {
	platform := "android"
	if strings.Contains(xmlData, "XCUIElementType") || strings.Contains(xmlData, "AppiumAUT") {
		platform = "ios"
	}

	roots, err := decodeTree(xmlData, platform)
	if err != nil {
		return nil, platform, err
	}

	var elements []*ParsedElement
	for _, r := range roots {
		elements = append(elements, flattenElement(r, 0)...)
	}
	if len(elements) == 0 {
		return nil, platform, fmt.Errorf("no elements found in page source")
	}
	return elements, platform, nil
}

// decodeTree builds the element tree, skipping the <hierarchy> (Android) and
// <AppiumAUT> (iOS) wrappers.
func decodeTree(xmlData, platform string) ([]*ParsedElement, error) {
	dec := xml.NewDecoder(strings.NewReader(xmlData))

	var (
		roots []*ParsedElement
		stack []*ParsedElement
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if len(roots) > 0 {
				break
			}
			return nil, fmt.Errorf("invalid page source: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "hierarchy" || t.Name.Local == "AppiumAUT" {
				continue
			}
			elem := newElement(t, platform)
			if len(stack) == 0 {
				roots = append(roots, elem)
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, elem)
			}
			stack = append(stack, elem)
		case xml.EndElement:
			if len(stack) > 0 && t.Name.Local != "hierarchy" && t.Name.Local != "AppiumAUT" {
				stack = stack[:len(stack)-1]
			}
		}
	}
	return roots, nil
}

func newElement(t xml.StartElement, platform string) *ParsedElement {
	elem := &ParsedElement{Enabled: true, Displayed: true}
	if platform == "ios" {
		elem.Type = t.Name.Local
	} else {
		elem.ClassName = t.Name.Local
	}

	for _, attr := range t.Attr {
		v := attr.Value
		switch attr.Name.Local {
		// Android
		case "text":
			elem.Text = v
		case "resource-id":
			elem.ResourceID = v
		case "content-desc":
			elem.ContentDesc = v
		case "hint":
			elem.HintText = v
		case "class":
			elem.ClassName = v
		case "bounds":
			elem.Bounds = parseBounds(v)
		case "clickable":
			elem.Clickable = v == "true"
		case "displayed":
			elem.Displayed = v != "false"

		// iOS
		case "type":
			elem.Type = v
		case "name":
			elem.Name = v
		case "label":
			elem.Label = v
		case "value":
			elem.Value = v
		case "placeholderValue":
			elem.PlaceholderValue = v
		case "visible":
			elem.Displayed = v == "true"
		case "x":
			elem.Bounds.X, _ = strconv.Atoi(v)
		case "y":
			elem.Bounds.Y, _ = strconv.Atoi(v)
		case "width":
			elem.Bounds.Width, _ = strconv.Atoi(v)
		case "height":
			elem.Bounds.Height, _ = strconv.Atoi(v)

		case "enabled":
			elem.Enabled = v == "true"
		}
	}

	// XCUITest marks buttons and cells by type rather than a clickable flag.
	if platform == "ios" {
		switch elem.Type {
		case "XCUIElementTypeButton", "XCUIElementTypeCell", "XCUIElementTypeLink":
			elem.Clickable = true
		}
	}
	return elem
}

// flattenElement flattens a tree of elements into a list, setting depth and parent.
func flattenElement(elem *ParsedElement, depth int) []*ParsedElement {
	elem.Depth = depth
	result := []*ParsedElement{elem}
	for _, child := range elem.Children {
		child.Parent = elem
		result = append(result, flattenElement(child, depth+1)...)
	}
	return result
}

// parseBounds parses Android bounds string "[x1,y1][x2,y2]".
func parseBounds(s string) core.Bounds {
	var x1, y1, x2, y2 int
	if _, err := fmt.Sscanf(s, "[%d,%d][%d,%d]", &x1, &y1, &x2, &y2); err != nil {
		return core.Bounds{}
	}
	return core.Bounds{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

// MatchHint returns elements whose visible text, description or id matches
// hint. Exact (case-insensitive) matches are returned when any exist;
// otherwise partial and regex matches.
func MatchHint(elements []*ParsedElement, hint, platform string) []*ParsedElement {
	if hint == "" {
		return nil
	}
	var exact, partial []*ParsedElement
	for _, elem := range elements {
		texts := elem.texts(platform)
		matched := false
		for _, t := range texts {
			if strings.EqualFold(strings.TrimSpace(t), hint) {
				exact = append(exact, elem)
				matched = true
				break
			}
		}
		if matched {
			continue
		}
		if matchesText(hint, texts...) || strings.HasSuffix(elem.ResourceID, "/"+hint) {
			partial = append(partial, elem)
		}
	}
	if len(exact) > 0 {
		return exact
	}
	return partial
}

// texts returns the attributes a user would read the element by.
func (e *ParsedElement) texts(platform string) []string {
	if platform == "ios" {
		return []string{e.Label, e.Name, e.Value, e.PlaceholderValue}
	}
	return []string{e.Text, e.ContentDesc, e.HintText}
}

// ToElementInfo converts a parsed element, tapping through its clickable
// ancestor when the matched node itself is not clickable (Flutter and React
// Native wrap text in tappable containers).
func (e *ParsedElement) ToElementInfo(platform string) *core.ElementInfo {
	target := GetClickableElement(e)
	info := &core.ElementInfo{
		Bounds:     target.Bounds,
		Enabled:    e.Enabled,
		Visible:    e.Displayed && !target.Bounds.IsEmpty(),
		Attributes: map[string]string{},
	}
	if platform == "ios" {
		info.Text = firstNonEmpty(e.Label, e.Name, e.Value)
		info.Class = e.Type
		info.AccessibilityLabel = e.Label
		info.Attributes["name"] = e.Name
	} else {
		info.Text = firstNonEmpty(e.Text, e.ContentDesc)
		info.ID = e.ResourceID
		info.Class = e.ClassName
		info.AccessibilityLabel = e.ContentDesc
		info.Attributes["resource-id"] = e.ResourceID
	}
	return info
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// matchesText reports whether any of texts contains pattern (case-insensitive),
// or matches it as a regular expression when pattern looks like one.
func matchesText(pattern string, texts ...string) bool {
	if looksLikeRegex(pattern) {
		if re, err := regexp.Compile("(?i)" + pattern); err == nil {
			for _, text := range texts {
				if text != "" && (re.MatchString(text) || re.MatchString(strings.ReplaceAll(text, "\n", " "))) {
					return true
				}
			}
			return false
		}
	}

	lp := strings.ToLower(pattern)
	for _, text := range texts {
		if text != "" && strings.Contains(strings.ToLower(text), lp) {
			return true
		}
	}
	return false
}

// looksLikeRegex checks if text contains regex metacharacters. A plain
// period ("acme.com") or a leading "$" (currency) does not count.
func looksLikeRegex(text string) bool {
	for i := 0; i < len(text); i++ {
		if i > 0 && text[i-1] == '\\' {
			continue
		}
		switch text[i] {
		case '.':
			if i+1 < len(text) && strings.ContainsRune("*+?", rune(text[i+1])) {
				return true
			}
		case '*', '+', '?', '[', ']', '{', '}', '|', '(', ')':
			return true
		case '^':
			if i == 0 {
				return true
			}
		case '$':
			if i == len(text)-1 {
				return true
			}
		}
	}
	return false
}

// BestMatch picks the element to act on: clickable candidates first, and
// among those the deepest node.
func BestMatch(elements []*ParsedElement) *ParsedElement {
	var best *ParsedElement
	for _, elem := range elements {
		switch {
		case best == nil:
			best = elem
		case elem.Clickable && !best.Clickable:
			best = elem
		case elem.Clickable == best.Clickable && elem.Depth > best.Depth:
			best = elem
		}
	}
	return best
}

// GetClickableElement returns elem when it is clickable, otherwise its
// nearest clickable ancestor, otherwise elem itself.
func GetClickableElement(elem *ParsedElement) *ParsedElement {
	for p := elem; p != nil; p = p.Parent {
		if p.Clickable {
			return p
		}
	}
	return elem
}
