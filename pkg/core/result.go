package core

import (
	"time"
)

// StepResult captures the outcome of a single Gherkin step
type StepResult struct {
	// Identity
	Index   int    `json:"index"`   // 0-based position in scenario
	Keyword string `json:"keyword"` // Given, When, Then, And, But
	Text    string `json:"text"`    // Step text after the keyword

	// Status
	Status   StepStatus    `json:"status"`
	Category ErrorCategory `json:"errorCategory,omitempty"`

	// Timing
	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`

	// Output
	Element *ElementInfo `json:"element,omitempty"` // Element interacted with, when known
	Error   string       `json:"error,omitempty"`

	// Debug Artifacts
	Attachments []Attachment `json:"attachments,omitempty"`
}

// ScenarioResult captures the outcome of one scenario (or outline example)
type ScenarioResult struct {
	// Identity
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Feature string   `json:"feature"`
	URI     string   `json:"uri"` // Feature file path
	Tags    []string `json:"tags,omitempty"`

	PlatformInfo *PlatformInfo `json:"platformInfo,omitempty"`

	// Status (aggregated from steps)
	Status StepStatus `json:"status"`

	// Timing
	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`

	Steps []StepResult `json:"steps"`

	// Summary (computed)
	TotalSteps   int `json:"totalSteps"`
	PassedSteps  int `json:"passedSteps"`
	FailedSteps  int `json:"failedSteps"`
	SkippedSteps int `json:"skippedSteps"`

	Error string `json:"error,omitempty"`
}

// ComputeSummary calculates step counts from the Steps slice
func (s *ScenarioResult) ComputeSummary() {
	s.TotalSteps = len(s.Steps)
	s.PassedSteps = 0
	s.FailedSteps = 0
	s.SkippedSteps = 0

	for _, step := range s.Steps {
		switch {
		case step.Status == StatusPassed:
			s.PassedSteps++
		case step.Status.IsFailure():
			s.FailedSteps++
		case step.Status == StatusSkipped:
			s.SkippedSteps++
		}
	}
}

// AggregateStatus determines the scenario status from step results.
// Any failing step fails the scenario; a scenario whose steps were all
// skipped is skipped.
func (s *ScenarioResult) AggregateStatus() StepStatus {
	if len(s.Steps) == 0 {
		return StatusSkipped
	}
	allSkipped := true
	for _, step := range s.Steps {
		if step.Status.IsFailure() {
			return StatusFailed
		}
		if step.Status != StatusSkipped {
			allSkipped = false
		}
	}
	if allSkipped {
		return StatusSkipped
	}
	return StatusPassed
}

// FirstError returns the error text of the first failing step.
func (s *ScenarioResult) FirstError() string {
	for _, step := range s.Steps {
		if step.Status.IsFailure() && step.Error != "" {
			return step.Error
		}
	}
	return ""
}

// SuiteResult captures the outcome of a whole run
type SuiteResult struct {
	Name        string    `json:"name"`
	RunID       string    `json:"runId"`
	Environment string    `json:"environment"`
	StartTime   time.Time `json:"startTime"`

	Duration  time.Duration    `json:"duration"`
	Scenarios []ScenarioResult `json:"scenarios"`

	// Summary
	TotalScenarios   int `json:"totalScenarios"`
	PassedScenarios  int `json:"passedScenarios"`
	FailedScenarios  int `json:"failedScenarios"`
	SkippedScenarios int `json:"skippedScenarios"`
}

// ComputeSummary calculates scenario counts from the Scenarios slice
func (s *SuiteResult) ComputeSummary() {
	s.TotalScenarios = len(s.Scenarios)
	s.PassedScenarios = 0
	s.FailedScenarios = 0
	s.SkippedScenarios = 0

	for _, sc := range s.Scenarios {
		switch {
		case sc.Status == StatusPassed:
			s.PassedScenarios++
		case sc.Status.IsFailure():
			s.FailedScenarios++
		case sc.Status == StatusSkipped:
			s.SkippedScenarios++
		}
	}
}

// Success returns true if at least one scenario ran and none failed
func (s *SuiteResult) Success() bool {
	for _, sc := range s.Scenarios {
		if sc.Status.IsFailure() {
			return false
		}
	}
	return len(s.Scenarios) > 0
}
