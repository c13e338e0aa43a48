package locator

import (
	"regexp"
	"strings"
)

// Platform hints which attribute names the fallback candidates should use.
type Platform string

const (
	PlatformWeb     Platform = "web"
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
)

var (
	textEqualsRe = regexp.MustCompile(`(?:normalize-space\((?:\.|text\(\))\)|text\(\)|\.|@text|@content-desc|@label|@name|@value)\s*=\s*(?:'([^']*)'|"([^"]*)")`)
	containsRe   = regexp.MustCompile(`contains\([^,]+,\s*(?:'([^']*)'|"([^"]*)")\)`)
	startsRe     = regexp.MustCompile(`starts-with\([^,]+,\s*(?:'([^']*)'|"([^"]*)")\)`)
	attrIDRe     = regexp.MustCompile(`@(?:id|resource-id)\s*=\s*(?:'([^']*)'|"([^"]*)")`)
)

// Hint extracts the most meaningful text a locator refers to: the literal
// of a text()/label comparison, the argument of contains() or starts-with(),
// or the raw value of a non-XPath locator.
func Hint(b By) string {
	switch b.Strategy {
	case StrategyText, StrategyAccessibility, StrategyName, StrategyID:
		return b.Value
	case StrategyXPath:
		for _, re := range []*regexp.Regexp{textEqualsRe, containsRe, startsRe, attrIDRe} {
			if m := re.FindStringSubmatch(b.Value); m != nil {
				if m[1] != "" {
					return m[1]
				}
				return m[2]
			}
		}
	}
	return ""
}

// FallbackCandidates lists alternative locators to try when the primary one
// cannot be resolved, from most to least specific. The primary locator is
// not included.
func FallbackCandidates(b By, platform Platform) []By {
	hint := strings.TrimSpace(Hint(b))
	if hint == "" {
		return nil
	}
	q := Quote(hint)
	label := b.Name
	if label == "" {
		label = hint
	}

	var out []By
	add := func(expr string) {
		if expr == b.Value {
			return
		}
		for _, c := range out {
			if c.Value == expr {
				return
			}
		}
		out = append(out, XPath(expr).Named(label+" (fallback)"))
	}

	add("//*[normalize-space(text())=" + q + "]")
	add("//*[normalize-space(.)=" + q + " and not(*)]")
	add("//*[contains(normalize-space(.), " + q + ") and not(*)]")

	switch platform {
	case PlatformAndroid:
		add("//*[@content-desc=" + q + "]")
		add("//*[starts-with(@content-desc, " + q + ")]")
		add("//*[@text=" + q + "]")
		add("//*[contains(@resource-id, " + q + ")]")
		add("//*[@hint=" + q + "]")
	case PlatformIOS:
		add("//*[@label=" + q + " or @name=" + q + "]")
		add("//*[starts-with(@label, " + q + ")]")
		add("//*[@value=" + q + "]")
	default:
		add("//*[@aria-label=" + q + " or @title=" + q + "]")
		add("//input[@placeholder=" + q + " or @name=" + q + " or @id=" + q + "]")
		add("//*[@value=" + q + "]")
	}
	return out
}
