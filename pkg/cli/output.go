package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/devicelab-dev/crm-e2e/pkg/core"
	"github.com/devicelab-dev/crm-e2e/pkg/executor"
	"github.com/devicelab-dev/crm-e2e/pkg/report"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// Slow step threshold in milliseconds (5 seconds)
const slowThresholdMs = 5000

// colorsEnabled determines if ANSI colors should be used
var colorsEnabled = true

func init() {
	// Respect NO_COLOR environment variable
	if os.Getenv("NO_COLOR") != "" {
		colorsEnabled = false
		return
	}
	// Check if stdout is a terminal
	if fileInfo, err := os.Stdout.Stat(); err == nil {
		if (fileInfo.Mode() & os.ModeCharDevice) == 0 {
			colorsEnabled = false
		}
	}
}

// color returns the color code if colors are enabled, empty string otherwise
func color(c string) string {
	if colorsEnabled {
		return c
	}
	return ""
}

// console prints live progress. With concurrent scenarios the steps of a
// scenario are buffered and printed as one block when it ends.
type console struct {
	out   io.Writer
	live  bool
	total int // scenarios expected, 0 when unknown

	mu      sync.Mutex
	pending map[string][]core.StepResult
}

func newConsole(out io.Writer, concurrency, total int) *console {
	return &console{
		out:     out,
		live:    concurrency <= 1,
		total:   total,
		pending: map[string][]core.StepResult{},
	}
}

func (c *console) scenarioStart(n int, name, feature string) {
	if !c.live {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.printHeader(n, name, feature)
}

func (c *console) stepComplete(scenarioID string, step core.StepResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.live {
		c.printStep(step)
		return
	}
	c.pending[scenarioID] = append(c.pending[scenarioID], step)
}

func (c *console) scenarioEnd(result core.ScenarioResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.live {
		c.printHeader(0, result.Name, result.Feature)
		for _, st := range c.pending[result.ID] {
			c.printStep(st)
		}
		delete(c.pending, result.ID)
	}

	dur := formatDuration(result.Duration.Milliseconds())
	switch {
	case result.Status == core.StatusPassed:
		fmt.Fprintf(c.out, "%s✓ %s%s %s%s%s\n",
			color(colorGreen), color(colorReset), result.Name, color(colorGray), dur, color(colorReset))
	case result.Status == core.StatusSkipped:
		fmt.Fprintf(c.out, "%s- %s%s %s%s%s\n",
			color(colorCyan), color(colorReset), result.Name, color(colorGray), "skipped", color(colorReset))
	default:
		fmt.Fprintf(c.out, "%s✗ %s%s %s%s%s\n",
			color(colorRed), color(colorReset), result.Name, color(colorGray), dur, color(colorReset))
		if result.Error != "" && result.FailedSteps == 0 {
			fmt.Fprintf(c.out, "  %s╰─%s %s\n", color(colorGray), color(colorReset), result.Error)
		}
	}
}

func (c *console) printHeader(n int, name, feature string) {
	switch {
	case n > 0 && c.total > 0:
		fmt.Fprintf(c.out, "\n  %s[%d/%d]%s ", color(colorCyan), n, c.total, color(colorReset))
	case n > 0:
		fmt.Fprintf(c.out, "\n  %s[%d]%s ", color(colorCyan), n, color(colorReset))
	default:
		fmt.Fprint(c.out, "\n  ")
	}
	fmt.Fprintf(c.out, "%s%s%s (%s)\n", color(colorBold), name, color(colorReset), feature)
	fmt.Fprintln(c.out, strings.Repeat("─", 60))
}

func (c *console) printStep(step core.StepResult) {
	desc := step.Keyword + " " + step.Text
	durationMs := step.Duration.Milliseconds()
	durStr := formatDuration(durationMs)

	switch {
	case step.Status == core.StatusPassed:
		symbol := "✓"
		symbolColor := color(colorGreen)
		durColor := ""
		if durationMs >= slowThresholdMs {
			durColor = color(colorYellow)
			symbol = "⚠"
			symbolColor = color(colorYellow)
		}
		fmt.Fprintf(c.out, "    %s%s%s %s %s(%s)%s\n",
			symbolColor, symbol, color(colorReset), desc, durColor, durStr, color(colorReset))
	case step.Status == core.StatusSkipped:
		fmt.Fprintf(c.out, "    %s-%s %s%s%s\n", color(colorCyan), color(colorReset), color(colorGray), desc, color(colorReset))
	case step.Status == core.StatusUndefined:
		fmt.Fprintf(c.out, "    %s?%s %s %s(undefined)%s\n", color(colorYellow), color(colorReset), desc, color(colorGray), color(colorReset))
	default:
		fmt.Fprintf(c.out, "    %s✗%s %s (%s)\n", color(colorRed), color(colorReset), desc, durStr)
		if step.Error != "" {
			fmt.Fprintf(c.out, "      %s╰─%s %s\n", color(colorGray), color(colorReset), step.Error)
		}
	}
}

func printBanner(w io.Writer, env, platform string) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %scrm-e2e %s%s  environment %s%s%s, platform %s\n",
		color(colorBold), Version, color(colorReset), color(colorCyan), env, color(colorReset), platform)
	fmt.Fprintln(w)
}

// printSummary prints the step counts and the per-scenario table.
func printSummary(w io.Writer, result *executor.RunResult) {
	totalSteps, passedSteps, failedSteps, skippedSteps := 0, 0, 0, 0
	for _, sr := range result.Suite.Scenarios {
		totalSteps += sr.TotalSteps
		passedSteps += sr.PassedSteps
		failedSteps += sr.FailedSteps
		skippedSteps += sr.SkippedSteps
	}

	fmt.Fprintln(w)
	if passedSteps > 0 {
		fmt.Fprintf(w, "  %s%d steps passing%s (%s)\n", color(colorGreen), passedSteps, color(colorReset), formatDuration(result.Duration))
	}
	if failedSteps > 0 {
		fmt.Fprintf(w, "  %s%d steps failing%s\n", color(colorRed), failedSteps, color(colorReset))
	}
	if skippedSteps > 0 {
		fmt.Fprintf(w, "  %s%d steps skipped%s\n", color(colorCyan), skippedSteps, color(colorReset))
	}
	fmt.Fprintln(w)

	tableWidth := 92
	fmt.Fprintln(w, strings.Repeat("═", tableWidth))
	fmt.Fprintf(w, "  %-42s %6s %7s %6s %6s %6s %10s\n", "Scenario", "Status", "Steps", "Pass", "Fail", "Skip", "Duration")
	fmt.Fprintln(w, strings.Repeat("─", tableWidth))

	for _, sr := range result.Suite.Scenarios {
		var status, statusColor string
		switch {
		case sr.Status.IsFailure():
			status, statusColor = "✗ FAIL", color(colorRed)
		case sr.Status == core.StatusSkipped:
			status, statusColor = "- SKIP", color(colorCyan)
		default:
			status, statusColor = "✓ PASS", color(colorGreen)
		}

		name := sr.Name
		if len(name) > 42 {
			name = name[:39] + "..."
		}
		fmt.Fprintf(w, "  %-42s %s%6s%s %7d %6d %6d %6d %10s\n",
			name, statusColor, status, color(colorReset),
			sr.TotalSteps, sr.PassedSteps, sr.FailedSteps, sr.SkippedSteps,
			formatDuration(sr.Duration.Milliseconds()))
	}

	fmt.Fprintln(w, strings.Repeat("─", tableWidth))
	statusStr := fmt.Sprintf("%d/%d", result.PassedScenarios, result.TotalScenarios)
	statusColor := color(colorGreen)
	if result.FailedScenarios > 0 {
		statusColor = color(colorRed)
	}
	fmt.Fprintf(w, "  %s%-42s%s %s%6s%s %7d %6d %6d %6d %10s\n",
		color(colorBold), "TOTAL", color(colorReset),
		statusColor, statusStr, color(colorReset),
		totalSteps, passedSteps, failedSteps, skippedSteps,
		formatDuration(result.Duration))
	fmt.Fprintln(w, strings.Repeat("═", tableWidth))
}

// printFailures lists every failed scenario from the report with the
// failing step, the suggestion and the captured artifacts.
func printFailures(w io.Writer, reportDir string) error {
	index, scenarios, err := report.ReadReport(reportDir)
	if err != nil {
		return err
	}
	if index.Summary.Failed == 0 {
		return nil
	}

	fmt.Fprintf(w, "\n  %sFailures%s\n", color(colorBold), color(colorReset))
	for _, sc := range scenarios {
		for _, st := range sc.Steps {
			if st.Status != report.StatusFailed && st.Status != report.StatusUndefined {
				continue
			}
			fmt.Fprintf(w, "\n  %s✗%s %s %s(%s)%s\n", color(colorRed), color(colorReset), sc.Name, color(colorGray), sc.SourceFile, color(colorReset))
			fmt.Fprintf(w, "    %s %s\n", st.Keyword, st.Text)
			if st.Error != nil {
				fmt.Fprintf(w, "    %s╰─%s [%s] %s\n", color(colorGray), color(colorReset), st.Error.Type, st.Error.Message)
				if st.Error.Suggestion != "" {
					fmt.Fprintf(w, "       %s%s%s\n", color(colorYellow), st.Error.Suggestion, color(colorReset))
				}
			}
			for _, a := range []string{st.Artifacts.Screenshot, st.Artifacts.PageSource, st.Artifacts.Response} {
				if a != "" {
					fmt.Fprintf(w, "       %s%s%s\n", color(colorGray), filepath.Join(reportDir, a), color(colorReset))
				}
			}
			break
		}
	}
	return nil
}

// formatDuration formats milliseconds to a human-readable string.
// Shows milliseconds for values < 1s, seconds otherwise.
func formatDuration(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	if ms < 60000 {
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	}
	mins := ms / 60000
	secs := (ms % 60000) / 1000
	return fmt.Sprintf("%dm %ds", mins, secs)
}

// runTimestamp names report folders.
func runTimestamp(t time.Time) string {
	return t.Format("2006-01-02_15-04-05")
}
