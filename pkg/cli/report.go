package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/crm-e2e/pkg/report"
)

var reportCommand = &cli.Command{
	Name:      "report",
	Usage:     "Regenerate HTML, Allure and JUnit reports from a report directory",
	ArgsUsage: "<report-dir>",
	Description: `Rebuild report.html (and optionally Allure results and JUnit XML) from the
report.json and scenario files of an earlier run. Runs that were killed are
settled first: scenarios still marked running become failed.

With --watch the command follows a run in progress and regenerates
report.html whenever a scenario changes, until the run ends.

Examples:
  crm-e2e report reports/2026-01-05_10-00-00
  crm-e2e report reports/latest --allure --junit
  crm-e2e report reports/latest --watch`,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "allure",
			Usage: "Also write Allure results",
		},
		&cli.BoolFlag{
			Name:  "junit",
			Usage: "Also write junit.xml",
		},
		&cli.BoolFlag{
			Name:  "embed-assets",
			Usage: "Embed screenshots into report.html",
		},
		&cli.StringFlag{
			Name:  "title",
			Usage: "HTML report title",
		},
		&cli.BoolFlag{
			Name:  "watch",
			Usage: "Follow a running suite and regenerate report.html as it progresses",
		},
		&cli.DurationFlag{
			Name:  "interval",
			Usage: "Polling interval for --watch",
			Value: 2 * time.Second,
		},
	},
	Action: runReport,
}

func runReport(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("exactly one report directory is required")
	}
	dir := c.Args().First()
	if _, err := os.Stat(filepath.Join(dir, "report.json")); err != nil {
		return fmt.Errorf("%s is not a report directory: %w", dir, err)
	}
	out := c.App.Writer

	htmlCfg := report.HTMLConfig{
		Title:       c.String("title"),
		EmbedAssets: c.Bool("embed-assets"),
		ReportDir:   dir,
	}

	if c.Bool("watch") {
		if err := watchReport(c.Context, out, dir, htmlCfg, c.Duration("interval")); err != nil {
			return err
		}
	} else if err := report.Recover(dir); err != nil {
		return fmt.Errorf("recover report: %w", err)
	}

	if err := report.GenerateHTML(dir, htmlCfg); err != nil {
		return err
	}
	fmt.Fprintf(out, "  HTML:   %s\n", filepath.Join(dir, "report.html"))

	if c.Bool("allure") {
		if err := report.GenerateAllure(dir); err != nil {
			return err
		}
		fmt.Fprintf(out, "  Allure: %s\n", filepath.Join(dir, "allure-results"))
	}
	if c.Bool("junit") {
		if err := report.GenerateJUnit(dir); err != nil {
			return err
		}
		fmt.Fprintf(out, "  JUnit:  %s\n", filepath.Join(dir, "junit.xml"))
	}
	return nil
}

// watchReport regenerates report.html whenever the index reports changed
// scenarios. It returns once the run reaches a terminal status.
func watchReport(ctx context.Context, out io.Writer, dir string, cfg report.HTMLConfig, interval time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	consumer := report.NewConsumer(dir)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		changed, index, err := consumer.Poll()
		if err != nil {
			return fmt.Errorf("read report: %w", err)
		}
		if len(changed) > 0 {
			if err := report.GenerateHTML(dir, cfg); err != nil {
				return err
			}
			s := index.Summary
			fmt.Fprintf(out, "  %s %d/%d done (%d passed, %d failed, %d running)\n",
				time.Now().Format("15:04:05"), s.Passed+s.Failed+s.Skipped, s.Total, s.Passed, s.Failed, s.Running)
		}
		if index.Status.IsTerminal() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
