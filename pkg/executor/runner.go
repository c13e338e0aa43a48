// Package executor runs Gherkin features through godog, connecting the step
// registry to the live report.
package executor

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/cucumber/godog"
	"github.com/google/uuid"

	"github.com/devicelab-dev/crm-e2e/pkg/core"
	"github.com/devicelab-dev/crm-e2e/pkg/logger"
	"github.com/devicelab-dev/crm-e2e/pkg/report"
	"github.com/devicelab-dev/crm-e2e/pkg/steps"
)

// SuiteName is the godog suite name, also used in cucumber.json.
const SuiteName = "crm-e2e"

// godog exit codes
const (
	exitSuccess     = 0
	exitFailure     = 1
	exitOptionError = 2
)

// RunnerConfig configures the test runner.
type RunnerConfig struct {
	// Scenario selection
	Paths         []string        // Feature files or directories
	Features      []godog.Feature // In-memory features (tests, generated suites)
	Tags          string          // godog tag expression, e.g. "@smoke && ~@wip"
	Concurrency   int             // Scenarios run at once (0 or 1 = sequential)
	Strict        bool            // Undefined and pending steps fail the run
	StopOnFailure bool            // Stop starting scenarios after the first failure

	// Output
	OutputDir string    // Report output directory
	Format    string    // godog console formatter; "progress" when empty
	Output    io.Writer // Console formatter output; discarded when nil
	NoColors  bool
	LiveHTML  bool // Regenerate report.html on every index flush

	Artifacts core.ArtifactConfig // When to capture screenshot, page source and response
	Steps     steps.Options       // Shared by every scenario World
	Registry  *steps.Registry     // Built-in steps when nil

	// Report metadata
	RunID         string
	Environment   report.Environment
	CI            *report.CI
	RunnerVersion string
	DriverName    string

	// Live progress callbacks. They may be called from several goroutines
	// when Concurrency > 1.
	OnScenarioStart func(n int, name, feature string)
	OnStepComplete  func(scenarioID string, step core.StepResult)
	OnScenarioEnd   func(result core.ScenarioResult)
}

// RunResult contains the outcome of a test run.
type RunResult struct {
	Status           report.Status
	RunID            string
	TotalScenarios   int
	PassedScenarios  int
	FailedScenarios  int
	SkippedScenarios int
	Duration         int64 // Total duration in milliseconds
	Suite            core.SuiteResult
}

// Runner orchestrates a suite run.
type Runner struct {
	config RunnerConfig
}

// New creates a new Runner.
func New(cfg RunnerConfig) *Runner {
	if cfg.Registry == nil {
		cfg.Registry = steps.NewRegistry()
	}
	if cfg.Format == "" {
		cfg.Format = "progress"
	}
	if cfg.Output == nil {
		cfg.Output = io.Discard
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	if cfg.Artifacts.Mode == "" {
		cfg.Artifacts = core.DefaultArtifactConfig()
	}
	return &Runner{config: cfg}
}

// suiteRun is the state shared by the scenarios of one Run.
type suiteRun struct {
	cfg     RunnerConfig
	index   *report.IndexWriter
	catalog *featureCatalog

	mu      sync.Mutex
	started int
	results []core.ScenarioResult
}

// Run executes the selected scenarios and writes the report. The returned
// error covers setup problems only; failing scenarios are reported in
// RunResult.
func (r *Runner) Run(ctx context.Context) (*RunResult, error) {
	cfg := r.config

	catalog, err := loadCatalog(cfg.Paths, cfg.Features, cfg.Tags)
	if err != nil {
		return nil, fmt.Errorf("parse features: %w", err)
	}

	// Build report skeleton
	index := report.NewIndex(report.BuilderConfig{
		RunID:         cfg.RunID,
		Environment:   cfg.Environment,
		CI:            cfg.CI,
		RunnerVersion: cfg.RunnerVersion,
		DriverName:    cfg.DriverName,
	})
	if err := report.WriteSkeleton(cfg.OutputDir, index); err != nil {
		return nil, err
	}

	indexWriter := report.NewIndexWriter(cfg.OutputDir, index, cfg.LiveHTML)
	defer indexWriter.Close()

	run := &suiteRun{cfg: cfg, index: indexWriter, catalog: catalog}

	indexWriter.Start()
	start := time.Now()

	suite := godog.TestSuite{
		Name:                 SuiteName,
		TestSuiteInitializer: run.initSuite,
		ScenarioInitializer:  run.initScenario,
		Options: &godog.Options{
			Format:          cfg.Format + ",cucumber:" + filepath.Join(cfg.OutputDir, "cucumber.json"),
			Output:          cfg.Output,
			NoColors:        cfg.NoColors,
			Paths:           cfg.Paths,
			FeatureContents: cfg.Features,
			Tags:            cfg.Tags,
			Concurrency:     cfg.Concurrency,
			Strict:          cfg.Strict,
			StopOnFailure:   cfg.StopOnFailure,
			DefaultContext:  ctx,
		},
	}
	code := suite.Run()

	indexWriter.End()

	if code == exitOptionError {
		return nil, core.ErrInvalidConfig.WithMessage(fmt.Sprintf("godog rejected the suite options (format %q)", cfg.Format))
	}
	return run.buildRunResult(start, code), nil
}

func (s *suiteRun) initSuite(sc *godog.TestSuiteContext) {
	sc.BeforeSuite(func() {
		if g := s.cfg.Steps.Global; g != nil {
			g.Freeze()
		}
		logger.Info("run %s: environment %s, %s", s.cfg.RunID, s.cfg.Environment.Name, s.cfg.Environment.Platform)
	})
	sc.AfterSuite(func() {
		if m := s.cfg.Steps.DB; m != nil {
			if err := m.Close(); err != nil {
				logger.Warn("close database connections: %v", err)
			}
		}
	})
}

// nextScenario returns the 1-based start order of a scenario.
func (s *suiteRun) nextScenario() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started++
	return s.started
}

func (s *suiteRun) addResult(res core.ScenarioResult) {
	s.mu.Lock()
	s.results = append(s.results, res)
	s.mu.Unlock()
}

// buildRunResult aggregates scenario results into a run result.
func (s *suiteRun) buildRunResult(start time.Time, code int) *RunResult {
	s.mu.Lock()
	scenarios := append([]core.ScenarioResult(nil), s.results...)
	s.mu.Unlock()

	// Concurrent scenarios finish in any order; report IDs follow start order.
	sort.Slice(scenarios, func(i, j int) bool { return scenarios[i].ID < scenarios[j].ID })

	suite := core.SuiteResult{
		Name:        SuiteName,
		RunID:       s.cfg.RunID,
		Environment: s.cfg.Environment.Name,
		StartTime:   start,
		Duration:    time.Since(start),
		Scenarios:   scenarios,
	}
	suite.ComputeSummary()

	result := &RunResult{
		Status:           report.StatusPassed,
		RunID:            s.cfg.RunID,
		TotalScenarios:   suite.TotalScenarios,
		PassedScenarios:  suite.PassedScenarios,
		FailedScenarios:  suite.FailedScenarios,
		SkippedScenarios: suite.SkippedScenarios,
		Duration:         suite.Duration.Milliseconds(),
		Suite:            suite,
	}

	// godog also fails strict runs with undefined or pending steps.
	if result.FailedScenarios > 0 || code != exitSuccess {
		result.Status = report.StatusFailed
	}
	return result
}
