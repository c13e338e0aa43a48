// Package report provides JSON-based scenario reporting with live updates.
//
// Layout of a report directory:
//   - report.json: run index (small, frequently updated, mutex-protected)
//   - scenarios/scenario-XXX.json: per-scenario step details (one writer each)
//   - assets/scenario-XXX/: screenshots, page sources and API responses
//
// The index is the single source of truth for status and change tracking.
// Consumers poll report.json and only fetch the scenario files whose
// updateSeq moved.
package report

import "time"

// Version is the report schema version.
const Version = "1.0.0"

// Status represents the execution status of a run, scenario or step.
type Status string

// Status values.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusPassed    Status = "passed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
	StatusUndefined Status = "undefined"
)

// IsTerminal returns true if the status is a final state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusPassed, StatusFailed, StatusSkipped, StatusUndefined:
		return true
	}
	return false
}

// ============================================================================
// INDEX (report.json)
// ============================================================================

// Index is the main report file that binds everything together.
// Scenario entries are appended as scenarios start.
type Index struct {
	Version     string          `json:"version"`
	RunID       string          `json:"runId"`
	UpdateSeq   uint64          `json:"updateSeq"`
	Status      Status          `json:"status"`
	StartTime   time.Time       `json:"startTime"`
	EndTime     *time.Time      `json:"endTime,omitempty"`
	LastUpdated time.Time       `json:"lastUpdated"`
	Environment Environment     `json:"environment"`
	CI          *CI             `json:"ci,omitempty"`
	Runner      RunnerInfo      `json:"runner"`
	Summary     Summary         `json:"summary"`
	Scenarios   []ScenarioEntry `json:"scenarios"`
}

// Environment describes the system under test.
type Environment struct {
	Name     string `json:"name"`               // QA, PreProd, Production
	Platform string `json:"platform"`           // web, android, ios
	Browser  string `json:"browser,omitempty"`  // selenium, playwright
	BaseURL  string `json:"baseUrl,omitempty"`  // REST base URL
	WebURL   string `json:"webUrl,omitempty"`   // CRM web application
	Database string `json:"database,omitempty"` // host/name, never credentials
}

// CI contains CI/CD build information.
type CI struct {
	Provider string `json:"provider,omitempty"`
	BuildID  string `json:"buildId,omitempty"`
	BuildURL string `json:"buildUrl,omitempty"`
	Branch   string `json:"branch,omitempty"`
	Commit   string `json:"commit,omitempty"`
}

// RunnerInfo identifies the runner build and its UI driver.
type RunnerInfo struct {
	Version string `json:"version"`
	Driver  string `json:"driver"` // selenium, playwright, appium, none
}

// Summary contains aggregated scenario counts.
type Summary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Running int `json:"running"`
	Pending int `json:"pending"`
}

// ScenarioEntry is the index entry for a scenario.
type ScenarioEntry struct {
	Index       int         `json:"index"` // order in which the scenario started
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Feature     string      `json:"feature,omitempty"`
	SourceFile  string      `json:"sourceFile"`
	Tags        []string    `json:"tags,omitempty"`
	DataFile    string      `json:"dataFile"`
	AssetsDir   string      `json:"assetsDir"`
	Status      Status      `json:"status"`
	UpdateSeq   uint64      `json:"updateSeq"`
	StartTime   *time.Time  `json:"startTime,omitempty"`
	EndTime     *time.Time  `json:"endTime,omitempty"`
	Duration    *int64      `json:"duration,omitempty"` // milliseconds
	LastUpdated *time.Time  `json:"lastUpdated,omitempty"`
	Steps       StepSummary `json:"steps"`
	Error       *string     `json:"error,omitempty"`
}

// StepSummary contains step counts for a scenario.
type StepSummary struct {
	Total     int  `json:"total"`
	Passed    int  `json:"passed"`
	Failed    int  `json:"failed"`
	Skipped   int  `json:"skipped"`
	Undefined int  `json:"undefined"`
	Running   int  `json:"running"`
	Pending   int  `json:"pending"`
	Current   *int `json:"current,omitempty"` // index of the running step
}

// ============================================================================
// SCENARIO DETAIL (scenarios/scenario-XXX.json)
// ============================================================================

// ScenarioDetail contains the full step-by-step record of a scenario.
type ScenarioDetail struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Feature    string            `json:"feature,omitempty"`
	SourceFile string            `json:"sourceFile"`
	Tags       []string          `json:"tags,omitempty"`
	StartTime  time.Time         `json:"startTime"`
	EndTime    *time.Time        `json:"endTime,omitempty"`
	Duration   *int64            `json:"duration,omitempty"` // milliseconds
	Steps      []Step            `json:"steps"`
	State      map[string]string `json:"state,omitempty"` // scenario state at the end
}

// Step represents a single Gherkin step execution.
type Step struct {
	ID        string        `json:"id"`
	Index     int           `json:"index"`
	Keyword   string        `json:"keyword"`
	Text      string        `json:"text"`
	Table     [][]string    `json:"table,omitempty"`
	DocString string        `json:"docString,omitempty"`
	Status    Status        `json:"status"`
	StartTime *time.Time    `json:"startTime,omitempty"`
	EndTime   *time.Time    `json:"endTime,omitempty"`
	Duration  *int64        `json:"duration,omitempty"` // milliseconds
	Error     *Error        `json:"error,omitempty"`
	Artifacts StepArtifacts `json:"artifacts"`
}

// Error contains error details.
type Error struct {
	Type       string `json:"type"` // assertion, timeout, element_not_found, connection, api, database, config, unknown
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// StepArtifacts contains step-level artifact paths, relative to the report dir.
type StepArtifacts struct {
	Screenshot string `json:"screenshot,omitempty"`
	PageSource string `json:"pageSource,omitempty"`
	Response   string `json:"response,omitempty"`
}

// ============================================================================
// UPDATE TYPES
// ============================================================================

// ScenarioUpdate contains the fields to update in the index for a scenario.
type ScenarioUpdate struct {
	Status    Status
	StartTime *time.Time
	EndTime   *time.Time
	Duration  *int64
	Steps     StepSummary
	Error     *string
}
