package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/crm-e2e/pkg/core"
	"github.com/devicelab-dev/crm-e2e/pkg/locator"
	"github.com/devicelab-dev/crm-e2e/pkg/page"
)

var locateCommand = &cli.Command{
	Name:  "locate",
	Usage: "Resolve one locator with the smart fallback and print the element",
	Description: `Open a UI session on the environment's web URL (or the app on mobile),
resolve a locator once and print what matched, including the fallback
candidate when the primary locator no longer works. Use it to debug page
objects after UI changes.

Examples:
  crm-e2e locate --xpath "//button[text()='Login']"
  crm-e2e -p android locate --text "Forgot Password?"
  crm-e2e locate --css "#username" --url https://qa.crm.example.com/login`,
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "xpath", Usage: "XPath expression"},
		&cli.StringFlag{Name: "id", Usage: "Element id / resource-id"},
		&cli.StringFlag{Name: "css", Usage: "CSS selector (web only)"},
		&cli.StringFlag{Name: "text", Usage: "Visible text"},
		&cli.StringFlag{Name: "accessibility-id", Usage: "Accessibility id (mobile)"},
		&cli.StringFlag{Name: "url", Usage: "Page to open first (default: the login page)"},
		&cli.DurationFlag{Name: "timeout", Usage: "How long to wait for the element", Value: 10 * time.Second},
		&cli.BoolFlag{Name: "candidates", Usage: "Only print the fallback candidates, without opening a session"},
	},
	Action: runLocate,
}

// locatorFromFlags returns the single locator given on the command line.
func locatorFromFlags(c *cli.Context) (locator.By, error) {
	var found []locator.By
	for name, build := range map[string]func(string) locator.By{
		"xpath":            locator.XPath,
		"id":               locator.ID,
		"css":              locator.CSS,
		"text":             locator.Text,
		"accessibility-id": locator.AccessibilityID,
	} {
		if v := c.String(name); v != "" {
			found = append(found, build(v))
		}
	}
	if len(found) != 1 {
		return locator.By{}, fmt.Errorf("exactly one of --xpath, --id, --css, --text or --accessibility-id is required")
	}
	return found[0], nil
}

func runLocate(c *cli.Context) error {
	by, err := locatorFromFlags(c)
	if err != nil {
		return err
	}
	ws, err := loadWorkspace(c)
	if err != nil {
		return err
	}
	out := c.App.Writer

	platform, err := core.ParsePlatform(ws.Platform)
	if err != nil {
		if !strings.EqualFold(ws.Platform, platformMock) {
			return err
		}
		platform = core.PlatformWeb
	}
	candidates := locator.FallbackCandidates(by, platform.Locator())
	fmt.Fprintf(out, "  Locator: %s\n", by.Describe())
	for _, cand := range candidates {
		fmt.Fprintf(out, "    %s~%s %s\n", color(colorGray), color(colorReset), cand.Describe())
	}
	if c.Bool("candidates") {
		return nil
	}

	props, err := loadEnvironment(c, ws)
	if err != nil {
		return err
	}
	newDriver, _, err := createDriverFactory(ws, props)
	if err != nil {
		return err
	}

	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}
	d, err := newDriver(ctx)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer d.Close()

	target := c.String("url")
	if target == "" && !platform.IsMobile() {
		target = props.Web.LoginURL()
	}
	if err := d.Open(ctx, target); err != nil {
		return err
	}

	match, err := page.NewBase(d, c.Duration("timeout")).SmartFind(ctx, by)
	if err != nil {
		fmt.Fprintf(out, "  %s✗ not found:%s %v\n", color(colorRed), color(colorReset), err)
		return cli.Exit("", 1)
	}

	el := match.Element
	fmt.Fprintf(out, "  %s✓ found%s via %s\n", color(colorGreen), color(colorReset), match.By.Describe())
	if match.Fallback() {
		fmt.Fprintf(out, "    %sprimary locator failed; update the page object%s\n", color(colorYellow), color(colorReset))
	}
	if match.Hierarchy {
		fmt.Fprintln(out, "    resolved from the page source; taps use coordinates")
	}
	fmt.Fprintf(out, "    text:    %q\n", el.Text)
	if el.Class != "" {
		fmt.Fprintf(out, "    class:   %s\n", el.Class)
	}
	if el.AccessibilityLabel != "" {
		fmt.Fprintf(out, "    label:   %s\n", el.AccessibilityLabel)
	}
	fmt.Fprintf(out, "    bounds:  %d,%d %dx%d\n", el.Bounds.X, el.Bounds.Y, el.Bounds.Width, el.Bounds.Height)
	fmt.Fprintf(out, "    visible: %v, enabled: %v\n", el.Visible, el.Enabled)
	return nil
}
