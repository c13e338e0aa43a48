package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/crm-e2e/pkg/config"
	"github.com/devicelab-dev/crm-e2e/pkg/core"
	"github.com/devicelab-dev/crm-e2e/pkg/db"
	"github.com/devicelab-dev/crm-e2e/pkg/driver"
	"github.com/devicelab-dev/crm-e2e/pkg/driver/mock"
	"github.com/devicelab-dev/crm-e2e/pkg/executor"
	"github.com/devicelab-dev/crm-e2e/pkg/logger"
	"github.com/devicelab-dev/crm-e2e/pkg/report"
	"github.com/devicelab-dev/crm-e2e/pkg/state"
	"github.com/devicelab-dev/crm-e2e/pkg/steps"
	"github.com/devicelab-dev/crm-e2e/pkg/validator"
)

// platformMock runs UI steps against an empty in-memory driver. Useful for
// API and database suites and for smoke-testing the runner itself.
const platformMock = "mock"

var testCommand = &cli.Command{
	Name:      "test",
	Usage:     "Run feature files against a CRM environment",
	ArgsUsage: "<feature-file-or-folder>...",
	Description: `Run one or more Gherkin feature files.

Feature paths default to the "features" list of the workspace config.

Reports are generated in the output directory:
  - Default: ./reports/<timestamp>/
  - With --output: <output>/<timestamp>/
  - With --output and --flatten: <output>/ (no timestamp subfolder)

Examples:
  crm-e2e test features/
  crm-e2e test features/login.feature features/bulk_upload.feature

  # Another environment, only smoke scenarios
  crm-e2e --environment PreProd test features/ --include-tags smoke

  # godog tag expression
  crm-e2e test features/ --tags "@regression && ~@wip"

  # Mobile app through Appium with extra capabilities
  crm-e2e -p android test features/mobile --caps caps.json

  # Custom output directory with Allure results and JUnit XML
  crm-e2e test features/ --output ./my-reports --flatten --allure --junit`,
	Flags: []cli.Flag{
		// Variables
		&cli.StringSliceFlag{
			Name:    "env",
			Aliases: []string{"e"},
			Usage:   "Variables for ${...} expansion (KEY=VALUE)",
		},

		// Tag filtering
		&cli.StringFlag{
			Name:  "tags",
			Usage: `godog tag expression, e.g. "@smoke && ~@wip"`,
		},
		&cli.StringSliceFlag{
			Name:  "include-tags",
			Usage: "Only run scenarios with any of these tags",
		},
		&cli.StringSliceFlag{
			Name:  "exclude-tags",
			Usage: "Skip scenarios with these tags",
		},

		// Output directory
		&cli.StringFlag{
			Name:  "output",
			Usage: "Output directory for reports (default: ./reports)",
		},
		&cli.BoolFlag{
			Name:  "flatten",
			Usage: "Don't create timestamp subfolder (requires --output)",
		},
		&cli.BoolFlag{
			Name:  "allure",
			Usage: "Also write Allure results to <output>/allure-results",
		},
		&cli.BoolFlag{
			Name:  "junit",
			Usage: "Also write <output>/junit.xml",
		},
		&cli.StringFlag{
			Name:  "format",
			Usage: "Print godog's formatter (pretty, progress, ...) instead of the live step list",
		},

		// Execution
		&cli.IntFlag{
			Name:  "concurrency",
			Usage: "Scenarios to run at once",
		},
		&cli.BoolFlag{
			Name:  "strict",
			Usage: "Fail the run on undefined or pending steps",
		},
		&cli.BoolFlag{
			Name:  "stop-on-failure",
			Usage: "Stop after the first failing scenario",
		},
		&cli.StringFlag{
			Name:  "artifacts",
			Usage: "When to capture screenshot, page source and response (on-failure, always, never)",
		},

		// UI session
		&cli.StringFlag{
			Name:  "browser",
			Usage: "Browser engine (selenium, playwright)",
		},
		&cli.StringFlag{
			Name:  "browser-name",
			Usage: "Browser (chrome, firefox, ...)",
		},
		&cli.StringFlag{
			Name:    "selenium-url",
			Usage:   "Selenium server URL",
			EnvVars: []string{"SELENIUM_URL"},
		},
		&cli.StringFlag{
			Name:    "appium-url",
			Usage:   "Appium server URL",
			EnvVars: []string{"APPIUM_URL"},
		},
		&cli.StringFlag{
			Name:  "caps",
			Usage: "Capabilities file (JSON or YAML) merged into the session capabilities",
		},
		&cli.BoolFlag{
			Name:  "headless",
			Usage: "Run the browser headless",
		},
	},
	Action: runTest,
}

// RunConfig holds the resolved settings of one test run.
type RunConfig struct {
	// Paths
	FeaturePaths []string
	ConfigPath   string

	// Target
	Workspace   *config.Config
	Properties  *config.Properties
	Environment config.Environment

	// Filtering
	Tags        string
	IncludeTags []string
	ExcludeTags []string

	// Output
	OutputDir string // Final resolved output directory
	Format    string
	Allure    bool
	JUnit     bool

	// Execution
	Concurrency   int
	Strict        bool
	StopOnFailure bool
	Verbose       bool

	// Console, stdout when nil
	Stdout io.Writer
}

func runTest(c *cli.Context) error {
	ws, err := loadWorkspace(c)
	if err != nil {
		return err
	}

	paths := c.Args().Slice()
	if len(paths) == 0 {
		paths = ws.Features
	}
	if len(paths) == 0 {
		return fmt.Errorf("at least one feature file or folder is required")
	}

	// Flags override the workspace config
	if c.IsSet("browser") {
		ws.Browser = c.String("browser")
	}
	if c.IsSet("browser-name") {
		ws.BrowserName = c.String("browser-name")
	}
	if c.IsSet("selenium-url") {
		ws.SeleniumURL = c.String("selenium-url")
	}
	if c.IsSet("appium-url") {
		ws.AppiumURL = c.String("appium-url")
	}
	if c.IsSet("headless") {
		ws.Headless = c.Bool("headless")
	}
	if c.IsSet("artifacts") {
		ws.Artifacts = c.String("artifacts")
	}
	if c.IsSet("concurrency") {
		ws.Concurrency = c.Int("concurrency")
	}
	if capsFile := c.String("caps"); capsFile != "" {
		caps, err := loadCapabilities(capsFile)
		if err != nil {
			return err
		}
		if ws.Capabilities == nil {
			ws.Capabilities = map[string]interface{}{}
		}
		for k, v := range caps {
			ws.Capabilities[k] = v
		}
	}
	// CLI variables override the workspace config
	for k, v := range parseEnvVars(c.StringSlice("env")) {
		ws.Env[k] = v
	}

	props, err := loadEnvironment(c, ws)
	if err != nil {
		return err
	}

	outputDir, err := resolveOutputDir(c.String("output"), c.Bool("flatten"))
	if err != nil {
		return err
	}

	includeTags := ws.IncludeTags
	if c.IsSet("include-tags") {
		includeTags = c.StringSlice("include-tags")
	}
	excludeTags := ws.ExcludeTags
	if c.IsSet("exclude-tags") {
		excludeTags = c.StringSlice("exclude-tags")
	}
	tags := ws.Tags
	if c.IsSet("tags") {
		tags = c.String("tags")
	}

	cfg := &RunConfig{
		FeaturePaths:  paths,
		ConfigPath:    c.String("config"),
		Workspace:     ws,
		Properties:    props,
		Environment:   props.Environment,
		Tags:          tags,
		IncludeTags:   includeTags,
		ExcludeTags:   excludeTags,
		OutputDir:     outputDir,
		Format:        c.String("format"),
		Allure:        c.Bool("allure"),
		JUnit:         c.Bool("junit"),
		Concurrency:   ws.Concurrency,
		Strict:        c.Bool("strict"),
		StopOnFailure: c.Bool("stop-on-failure"),
		Verbose:       c.Bool("verbose"),
		Stdout:        c.App.Writer,
	}
	return executeTest(c.Context, cfg)
}

// resolveOutputDir determines the output directory based on flags.
// - No --output: ./reports/<timestamp>/
// - --output given: <output>/<timestamp>/
// - --output + --flatten: <output>/ (error if --output not given)
func resolveOutputDir(output string, flatten bool) (string, error) {
	if flatten && output == "" {
		return "", fmt.Errorf("--flatten requires --output to be specified")
	}

	baseDir := output
	if baseDir == "" {
		baseDir = "./reports"
	}

	if flatten {
		return filepath.Clean(baseDir), nil
	}
	return filepath.Join(baseDir, runTimestamp(time.Now())), nil
}

func executeTest(ctx context.Context, cfg *RunConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out := cfg.Stdout
	if out == nil {
		out = os.Stdout
	}
	ws := cfg.Workspace

	// 1. Create output directory
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	// 2. Initialize logging
	logPath := filepath.Join(cfg.OutputDir, "crm-e2e.log")
	if err := logger.Init(logPath); err != nil {
		fmt.Fprintf(out, "Warning: Failed to initialize logger: %v\n", err)
	}
	defer logger.Close()
	level := "info"
	if cfg.Verbose {
		level = "debug"
	}
	if err := logger.SetLevel(level); err != nil {
		return err
	}

	logger.Info("=== Test execution started ===")
	logger.Info("Output directory: %s", cfg.OutputDir)
	logger.Info("Environment: %s (properties from %s)", cfg.Environment, cfg.Properties.Dir)
	logger.Info("Platform: %s, browser: %s", ws.Platform, ws.Browser)

	printBanner(out, cfg.Environment.String(), ws.Platform)

	// 3. Validate features before opening any session
	registry := steps.NewRegistry()
	checked := validator.New(registry, cfg.IncludeTags, cfg.ExcludeTags).Validate(cfg.FeaturePaths...)
	if err := checkFeatures(out, checked); err != nil {
		logger.Error("Feature validation failed: %v", err)
		return err
	}
	logger.Info("Validated %d feature(s), %d scenario(s)", checked.Features, checked.Scenarios)

	// 4. UI session factory and shared database connections
	newDriver, driverName, err := createDriverFactory(ws, cfg.Properties)
	if err != nil {
		return err
	}
	artifactMode, err := core.ParseArtifactMode(ws.Artifacts)
	if err != nil {
		return err
	}
	artifacts := core.DefaultArtifactConfig()
	artifacts.Mode = artifactMode

	globals := make(map[string]interface{}, len(ws.Env))
	for k, v := range ws.Env {
		globals[k] = v
	}

	// Ctrl+C stops new scenarios; running ones finish their current step.
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	total := 0
	if cfg.Tags == "" {
		total = checked.Scenarios
	}
	con := newConsole(out, cfg.Concurrency, total)

	runnerCfg := executor.RunnerConfig{
		Paths:         cfg.FeaturePaths,
		Tags:          validator.TagExpression(cfg.Tags, cfg.IncludeTags, cfg.ExcludeTags),
		Concurrency:   cfg.Concurrency,
		Strict:        cfg.Strict,
		StopOnFailure: cfg.StopOnFailure,
		OutputDir:     cfg.OutputDir,
		Format:        "progress",
		Output:        io.Discard,
		NoColors:      !colorsEnabled,
		Artifacts:     artifacts,
		Registry:      registry,
		Steps: steps.Options{
			Config:    ws,
			Props:     cfg.Properties,
			Global:    state.NewGlobal(globals),
			NewDriver: newDriver,
			DB:        db.NewManager(cfg.Properties.DB),
			OutputDir: cfg.OutputDir,
		},
		Environment: report.Environment{
			Name:     cfg.Environment.String(),
			Platform: ws.Platform,
			Browser:  ws.Browser,
			BaseURL:  cfg.Properties.API.BaseURL,
			WebURL:   cfg.Properties.Web.URL,
			Database: databaseLabel(cfg.Properties.DB),
		},
		CI:            report.DetectCI(),
		RunnerVersion: Version,
		DriverName:    driverName,
	}
	if cfg.Format != "" {
		runnerCfg.Format = cfg.Format
		runnerCfg.Output = out
	} else {
		runnerCfg.OnScenarioStart = con.scenarioStart
		runnerCfg.OnStepComplete = con.stepComplete
		runnerCfg.OnScenarioEnd = con.scenarioEnd
	}

	// 5. Execute scenarios
	result, err := executor.New(runnerCfg).Run(ctx)
	if err != nil {
		logger.Error("Run failed: %v", err)
		return err
	}
	logger.Info("Run completed: %d passed, %d failed, %d skipped",
		result.PassedScenarios, result.FailedScenarios, result.SkippedScenarios)

	// 6. Summary and failure details
	printSummary(out, result)
	if err := printFailures(out, cfg.OutputDir); err != nil {
		logger.Warn("print failures: %v", err)
	}

	// 7. Generate and display reports
	fmt.Fprintln(out)
	fmt.Fprintln(out, "  Reports:")
	for _, line := range generateReports(cfg.OutputDir, cfg.Allure, cfg.JUnit) {
		fmt.Fprintln(out, "    "+line)
	}
	fmt.Fprintln(out)

	if ctx.Err() != nil {
		fmt.Fprintf(out, "  %sRun interrupted%s\n", color(colorYellow), color(colorReset))
	}

	// Exit with code 1 if any scenario failed (summary already printed)
	if result.Status != report.StatusPassed {
		return cli.Exit("", 1)
	}
	return nil
}

// checkFeatures prints the validation outcome. Parse errors abort the run;
// undefined and ambiguous steps are left to the runner, which reports them
// per scenario.
func checkFeatures(out io.Writer, r *validator.Result) error {
	stepErrors := len(r.Undefined) + len(r.Ambiguous)
	if len(r.Errors) > stepErrors {
		for _, err := range r.Errors {
			var ve *validator.ValidationError
			if errors.As(err, &ve) && (strings.HasPrefix(ve.Message, "undefined step") || strings.HasPrefix(ve.Message, "ambiguous step")) {
				continue
			}
			fmt.Fprintf(out, "  %s✗%s %v\n", color(colorRed), color(colorReset), err)
		}
		return fmt.Errorf("%d feature file error(s)", len(r.Errors)-stepErrors)
	}
	if len(r.Files) == 0 {
		return fmt.Errorf("no scenarios match the given paths and tags")
	}
	if stepErrors > 0 {
		fmt.Fprintf(out, "  %s⚠ %d undefined and %d ambiguous step(s); run 'crm-e2e validate' for details%s\n",
			color(colorYellow), len(r.Undefined), len(r.Ambiguous), color(colorReset))
	}
	return nil
}

// createDriverFactory returns the UI session factory and the driver name
// recorded in the report.
func createDriverFactory(ws *config.Config, props *config.Properties) (driver.Factory, string, error) {
	if strings.EqualFold(ws.Platform, platformMock) {
		return func(ctx context.Context) (core.Driver, error) {
			return mock.New(mock.Config{Platform: core.PlatformWeb, Browser: platformMock}), nil
		}, platformMock, nil
	}

	factory, err := driver.NewFactory(ws, props)
	if err != nil {
		return nil, "", err
	}

	name := strings.ToLower(ws.Browser)
	if p, _ := core.ParsePlatform(ws.Platform); p.IsMobile() {
		name = "appium"
	}
	return factory, name, nil
}

// generateReports writes the HTML report and the optional formats. It
// returns one display line per report.
func generateReports(outputDir string, allure, junit bool) []string {
	var lines []string

	htmlPath := filepath.Join(outputDir, "report.html")
	if err := report.GenerateHTML(outputDir, report.HTMLConfig{
		OutputPath: htmlPath,
		ReportDir:  outputDir,
	}); err != nil {
		lines = append(lines, fmt.Sprintf("%s⚠%s failed to generate HTML report: %v", color(colorYellow), color(colorReset), err))
	} else {
		lines = append(lines, "HTML:     "+htmlPath)
	}
	lines = append(lines, "JSON:     "+filepath.Join(outputDir, "report.json"))
	lines = append(lines, "Cucumber: "+filepath.Join(outputDir, "cucumber.json"))

	if allure {
		if err := report.GenerateAllure(outputDir); err != nil {
			lines = append(lines, fmt.Sprintf("%s⚠%s failed to generate Allure results: %v", color(colorYellow), color(colorReset), err))
		} else {
			lines = append(lines, "Allure:   "+filepath.Join(outputDir, "allure-results"))
		}
	}
	if junit {
		if err := report.GenerateJUnit(outputDir); err != nil {
			lines = append(lines, fmt.Sprintf("%s⚠%s failed to generate JUnit XML: %v", color(colorYellow), color(colorReset), err))
		} else {
			lines = append(lines, "JUnit:    "+filepath.Join(outputDir, "junit.xml"))
		}
	}
	return lines
}

// databaseLabel identifies the database in reports without credentials.
func databaseLabel(p config.DatabaseProperties) string {
	if p.Name == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d/%s", p.Host, p.Port, p.Name)
}

func parseEnvVars(envs []string) map[string]string {
	result := make(map[string]string)
	for _, e := range envs {
		parts := strings.SplitN(e, "=", 2)
		if len(parts) == 2 {
			result[parts[0]] = parts[1]
		}
	}
	return result
}

// loadCapabilities loads session capabilities from a JSON or YAML file.
func loadCapabilities(capsFile string) (map[string]interface{}, error) {
	data, err := os.ReadFile(capsFile) //#nosec G304 -- user-provided caps file
	if err != nil {
		return nil, fmt.Errorf("failed to read caps file: %w", err)
	}

	var caps map[string]interface{}
	switch strings.ToLower(filepath.Ext(capsFile)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &caps); err != nil {
			return nil, fmt.Errorf("failed to parse caps YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &caps); err != nil {
			return nil, fmt.Errorf("failed to parse caps JSON: %w", err)
		}
	}
	return caps, nil
}
