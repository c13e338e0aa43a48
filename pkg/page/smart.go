package page

import (
	"context"

	"github.com/devicelab-dev/crm-e2e/pkg/core"
	"github.com/devicelab-dev/crm-e2e/pkg/locator"
	"github.com/devicelab-dev/crm-e2e/pkg/logger"
	"github.com/devicelab-dev/crm-e2e/pkg/poll"
)

// Match is the element a smart lookup resolved.
type Match struct {
	Element *core.ElementInfo
	// By is the locator that matched; equal to the requested one unless a
	// fallback was used.
	By locator.By
	// Hierarchy is set when the element was found by parsing the page
	// source; it can then only be tapped by coordinates.
	Hierarchy bool
}

// Fallback reports whether a fallback candidate matched.
func (m *Match) Fallback() bool {
	return m.Hierarchy || m.Element.MatchedBy != nil
}

// SmartFind resolves by, falling back to alternative locators derived from
// its text when the primary one stops matching (renamed ids, reworded
// attributes). Each polling round tries, in order:
//
//  1. the primary locator
//  2. locator.FallbackCandidates through the driver
//  3. a page-source match, for drivers implementing core.HierarchyFinder
func (b *Base) SmartFind(ctx context.Context, by locator.By) (*Match, error) {
	candidates := locator.FallbackCandidates(by, b.Platform().Locator())
	hf, canParse := b.Driver.(core.HierarchyFinder)

	m, err := poll.Value(ctx, b.opts("smart find", by), func(ctx context.Context) (*Match, bool, error) {
		info, err := b.Driver.Find(ctx, by)
		if err == nil && info.Visible {
			return &Match{Element: info, By: by}, true, nil
		}
		if err != nil && !retryable(err) {
			return nil, false, poll.Stop(err)
		}
		last := err

		for _, c := range candidates {
			info, err := b.Driver.Find(ctx, c)
			if err == nil && info.Visible {
				matched := c
				info.MatchedBy = &matched
				return &Match{Element: info, By: c}, true, nil
			}
		}

		if canParse && len(candidates) > 0 {
			all := append([]locator.By{by}, candidates...)
			info, err := hf.FindInHierarchy(ctx, all)
			if err == nil {
				matched := by
				if info.MatchedBy != nil {
					matched = *info.MatchedBy
				}
				return &Match{Element: info, By: matched, Hierarchy: true}, true, nil
			}
		}

		if last == nil {
			last = core.ErrElementNotVisible.WithMessage(by.Describe() + " is present but hidden")
		}
		return nil, false, last
	})
	if err != nil {
		return nil, elementError(err, by)
	}

	if m.Fallback() {
		logger.Warn("locator %s did not match; used fallback %s", by.Describe(), m.By.Describe())
	}
	return m, nil
}

// SmartClick clicks by, or the element a fallback resolved it to.
func (b *Base) SmartClick(ctx context.Context, by locator.By) error {
	m, err := b.SmartFind(ctx, by)
	if err != nil {
		return err
	}
	if !m.Hierarchy {
		return b.Click(ctx, m.By)
	}

	tapper, ok := b.Driver.(core.PointTapper)
	if !ok {
		return core.ErrElementNotFound.WithMessage(by.Describe() + " only found in page source and the driver cannot tap coordinates")
	}
	x, y := m.Element.Bounds.Center()
	logger.Debug("tap %s at (%d,%d)", m.By.Describe(), x, y)
	return tapper.TapPoint(ctx, x, y)
}

// SmartType types into by, or into the field a fallback resolved it to.
// Page-source matches are retried through their matching locator.
func (b *Base) SmartType(ctx context.Context, by locator.By, text string) error {
	m, err := b.SmartFind(ctx, by)
	if err != nil {
		return err
	}
	return b.Type(ctx, m.By, text)
}

// SmartText reads the text of by, or of the element a fallback resolved it to.
func (b *Base) SmartText(ctx context.Context, by locator.By) (string, error) {
	m, err := b.SmartFind(ctx, by)
	if err != nil {
		return "", err
	}
	if m.Hierarchy {
		return m.Element.Text, nil
	}
	return b.Text(ctx, m.By)
}
