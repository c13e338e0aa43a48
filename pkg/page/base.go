// Package page holds the page objects of the CRM web and mobile apps.
//
// Page objects own the locators of a screen and expose intent-level methods
// (Login, FillActivity, Upload). All waiting happens here: drivers make a
// single attempt per call, Base retries until the element is ready or the
// find timeout elapses.
package page

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/devicelab-dev/crm-e2e/pkg/core"
	"github.com/devicelab-dev/crm-e2e/pkg/locator"
	"github.com/devicelab-dev/crm-e2e/pkg/logger"
	"github.com/devicelab-dev/crm-e2e/pkg/poll"
)

// DefaultFindTimeout is used when Base is created with a zero timeout.
const DefaultFindTimeout = 10 * time.Second

const findInterval = 200 * time.Millisecond

// Base wraps a driver with waits, assertions and the smart locator fallback.
type Base struct {
	Driver      core.Driver
	FindTimeout time.Duration
}

// NewBase creates a Base.
func NewBase(d core.Driver, findTimeout time.Duration) *Base {
	if findTimeout <= 0 {
		findTimeout = DefaultFindTimeout
	}
	return &Base{Driver: d, FindTimeout: findTimeout}
}

// Platform returns the platform of the underlying session.
func (b *Base) Platform() core.Platform {
	if info := b.Driver.PlatformInfo(); info != nil {
		return info.Platform
	}
	return core.PlatformWeb
}

func (b *Base) opts(what string, by locator.By) poll.Options {
	return poll.Options{Interval: findInterval, Timeout: b.FindTimeout, Description: what + " " + by.Describe()}
}

// retryable reports whether err may clear up by waiting.
func retryable(err error) bool {
	return errors.Is(err, core.ErrElementNotFound) || errors.Is(err, core.ErrElementNotVisible)
}

// attempt converts a driver error into a poll outcome.
func attempt(err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	if retryable(err) {
		return false, err
	}
	return false, poll.Stop(err)
}

// elementError turns a find timeout into a not-found/not-visible error that
// keeps the wait details as its cause.
func elementError(err error, by locator.By) error {
	var te *poll.TimeoutError
	if !errors.As(err, &te) {
		return err
	}
	if errors.Is(te.Last, core.ErrElementNotVisible) {
		return core.ErrElementNotVisible.WithMessage(fmt.Sprintf("%s not visible after %s", by.Describe(), te.Elapsed.Round(time.Millisecond))).WithCause(err)
	}
	return core.ErrElementNotFound.WithMessage(fmt.Sprintf("%s not found after %s", by.Describe(), te.Elapsed.Round(time.Millisecond))).WithCause(err)
}

// WaitVisible waits until by is present and displayed.
func (b *Base) WaitVisible(ctx context.Context, by locator.By) (*core.ElementInfo, error) {
	info, err := poll.Value(ctx, b.opts("visible", by), func(ctx context.Context) (*core.ElementInfo, bool, error) {
		info, err := b.Driver.Find(ctx, by)
		if err != nil {
			done, err := attempt(err)
			return nil, done, err
		}
		if !info.Visible {
			return nil, false, core.ErrElementNotVisible.WithMessage(by.Describe() + " is present but hidden")
		}
		return info, true, nil
	})
	if err != nil {
		return nil, elementError(err, by)
	}
	return info, nil
}

// WaitGone waits until by is absent or hidden, e.g. a loading spinner.
func (b *Base) WaitGone(ctx context.Context, by locator.By) error {
	return poll.Until(ctx, b.opts("gone", by), func(ctx context.Context) (bool, error) {
		visible, err := b.Driver.IsVisible(ctx, by)
		if err != nil {
			return attempt(err)
		}
		return !visible, nil
	})
}

// IsVisible checks once, without waiting.
func (b *Base) IsVisible(ctx context.Context, by locator.By) bool {
	visible, err := b.Driver.IsVisible(ctx, by)
	return err == nil && visible
}

// Click waits for by and clicks it.
func (b *Base) Click(ctx context.Context, by locator.By) error {
	logger.Debug("click %s", by.Describe())
	err := poll.Until(ctx, b.opts("click", by), func(ctx context.Context) (bool, error) {
		return attempt(b.Driver.Click(ctx, by))
	})
	return elementError(err, by)
}

// Type waits for by, clears it and types text.
func (b *Base) Type(ctx context.Context, by locator.By, text string) error {
	logger.Debug("type into %s", by.Describe())
	if _, err := b.WaitVisible(ctx, by); err != nil {
		return err
	}
	if err := b.Driver.Clear(ctx, by); err != nil && !retryable(err) {
		logger.Debug("clear %s: %v", by.Describe(), err)
	}
	err := poll.Until(ctx, b.opts("type into", by), func(ctx context.Context) (bool, error) {
		return attempt(b.Driver.Type(ctx, by, text))
	})
	return elementError(err, by)
}

// Text waits for by and returns its trimmed text.
func (b *Base) Text(ctx context.Context, by locator.By) (string, error) {
	if _, err := b.WaitVisible(ctx, by); err != nil {
		return "", err
	}
	text, err := b.Driver.Text(ctx, by)
	return strings.TrimSpace(text), err
}

// AssertText waits until the text of by equals expected (whitespace
// trimmed). On timeout the error reports the last text seen.
func (b *Base) AssertText(ctx context.Context, by locator.By, expected string) error {
	return b.assertText(ctx, by, expected, func(actual string) bool {
		return actual == strings.TrimSpace(expected)
	})
}

// AssertTextContains is AssertText with a substring match.
func (b *Base) AssertTextContains(ctx context.Context, by locator.By, substr string) error {
	return b.assertText(ctx, by, substr, func(actual string) bool {
		return strings.Contains(actual, substr)
	})
}

func (b *Base) assertText(ctx context.Context, by locator.By, expected string, match func(string) bool) error {
	var (
		last    string
		readErr error
	)
	err := poll.Until(ctx, b.opts("text of", by), func(ctx context.Context) (bool, error) {
		text, err := b.Driver.Text(ctx, by)
		readErr = err
		if err != nil {
			return attempt(err)
		}
		last = strings.TrimSpace(text)
		return match(last), nil
	})
	if err == nil {
		return nil
	}
	var te *poll.TimeoutError
	if errors.As(err, &te) && readErr == nil {
		return core.ErrTextMismatch.
			WithMessage(fmt.Sprintf("%s: expected %q, got %q", by.Describe(), expected, last)).
			WithDetails(map[string]interface{}{"expected": expected, "actual": last})
	}
	return elementError(err, by)
}

// Upload attaches a file to the file input by.
func (b *Base) Upload(ctx context.Context, by locator.By, path string) error {
	logger.Debug("upload %s into %s", path, by.Describe())
	err := poll.Until(ctx, b.opts("upload into", by), func(ctx context.Context) (bool, error) {
		return attempt(b.Driver.UploadFile(ctx, by, path))
	})
	return elementError(err, by)
}

// Select opens a dropdown and picks the option with the given caption.
func (b *Base) Select(ctx context.Context, dropdown locator.By, option string) error {
	if err := b.Click(ctx, dropdown); err != nil {
		return err
	}
	return b.SmartClick(ctx, locator.DropdownOption(option))
}

// Pause sleeps for d unless ctx is cancelled first.
func (b *Base) Pause(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
