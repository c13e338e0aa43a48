package report

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/devicelab-dev/crm-e2e/pkg/logger"
)

// Allure result schema types.

// AllureResult represents a single test result in Allure format.
type AllureResult struct {
	UUID          string              `json:"uuid"`
	HistoryID     string              `json:"historyId"`
	FullName      string              `json:"fullName"`
	Name          string              `json:"name"`
	Status        string              `json:"status"`
	Stage         string              `json:"stage"`
	Start         int64               `json:"start"`
	Stop          int64               `json:"stop"`
	Labels        []AllureLabel       `json:"labels"`
	Parameters    []AllureParameter   `json:"parameters,omitempty"`
	StatusDetails AllureStatusDetails `json:"statusDetails"`
	Steps         []AllureStep        `json:"steps"`
	Attachments   []AllureAttachment  `json:"attachments"`
}

// AllureStep represents a step within a test result.
type AllureStep struct {
	Name          string              `json:"name"`
	Status        string              `json:"status"`
	Stage         string              `json:"stage"`
	Start         int64               `json:"start"`
	Stop          int64               `json:"stop"`
	StatusDetails AllureStatusDetails `json:"statusDetails"`
	Steps         []AllureStep        `json:"steps"`
	Attachments   []AllureAttachment  `json:"attachments"`
}

// AllureAttachment represents a file attachment.
type AllureAttachment struct {
	Name   string `json:"name"`
	Source string `json:"source"`
	Type   string `json:"type"`
}

// AllureLabel represents a label on a test result.
type AllureLabel struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// AllureParameter is a name/value pair shown with a result.
type AllureParameter struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// AllureStatusDetails holds failure message and trace.
type AllureStatusDetails struct {
	Message string `json:"message,omitempty"`
	Trace   string `json:"trace,omitempty"`
}

// AllureCategory defines a failure category with regex matching.
type AllureCategory struct {
	Name            string   `json:"name"`
	MatchedStatuses []string `json:"matchedStatuses"`
	MessageRegex    string   `json:"messageRegex"`
}

// AllureExecutor describes the run that produced the results.
type AllureExecutor struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	BuildName  string `json:"buildName,omitempty"`
	BuildURL   string `json:"buildUrl,omitempty"`
	ReportName string `json:"reportName"`
}

// GenerateAllure generates Allure-compatible files in <reportDir>/allure-results/.
func GenerateAllure(reportDir string) error {
	index, scenarios, err := ReadReport(reportDir)
	if err != nil {
		return fmt.Errorf("read report: %w", err)
	}

	allureDir := filepath.Join(reportDir, "allure-results")
	if err := os.MkdirAll(allureDir, 0o755); err != nil {
		return fmt.Errorf("create allure-results dir: %w", err)
	}

	for i, entry := range index.Scenarios {
		var detail *ScenarioDetail
		if i < len(scenarios) {
			detail = &scenarios[i]
		}

		result := buildAllureResult(&entry, detail, index)

		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal allure result for %s: %w", entry.ID, err)
		}

		resultPath := filepath.Join(allureDir, result.UUID+"-result.json")
		if err := os.WriteFile(resultPath, data, 0o644); err != nil {
			return fmt.Errorf("write allure result %s: %w", entry.ID, err)
		}
	}

	copyAllureAttachments(reportDir, allureDir, scenarios)

	if err := writeAllureCategories(allureDir); err != nil {
		return err
	}
	if err := writeAllureEnvironment(allureDir, index); err != nil {
		return err
	}
	return writeAllureExecutor(allureDir, index)
}

// buildAllureResult builds an AllureResult from a scenario entry and its detail.
// The UUID is derived from run and scenario so regenerating a report
// overwrites its own results instead of duplicating them.
func buildAllureResult(entry *ScenarioEntry, detail *ScenarioDetail, index *Index) AllureResult {
	var startMs, stopMs int64
	if entry.StartTime != nil {
		startMs = entry.StartTime.UnixMilli()
	}
	if entry.EndTime != nil {
		stopMs = entry.EndTime.UnixMilli()
	} else if entry.StartTime != nil && entry.Duration != nil {
		stopMs = startMs + *entry.Duration
	}

	feature := entry.Feature
	if feature == "" {
		feature = strings.TrimSuffix(filepath.Base(entry.SourceFile), filepath.Ext(entry.SourceFile))
	}

	labels := []AllureLabel{
		{Name: "feature", Value: feature},
		{Name: "suite", Value: feature},
		{Name: "parentSuite", Value: index.Environment.Name},
		{Name: "framework", Value: "godog"},
		{Name: "language", Value: "go"},
		{Name: "severity", Value: "normal"},
	}
	for _, tag := range entry.Tags {
		name := strings.TrimPrefix(tag, "@")
		switch {
		case strings.HasPrefix(name, "severity="):
			labels[5].Value = strings.TrimPrefix(name, "severity=")
		case strings.HasPrefix(name, "story="):
			labels = append(labels, AllureLabel{Name: "story", Value: strings.TrimPrefix(name, "story=")})
		default:
			labels = append(labels, AllureLabel{Name: "tag", Value: name})
		}
	}

	var statusDetails AllureStatusDetails
	if entry.Error != nil {
		statusDetails.Message = *entry.Error
	}

	steps := []AllureStep{}
	attachments := []AllureAttachment{}
	if detail != nil {
		steps = buildAllureSteps(detail.Steps)
		attachments = collectAttachments(detail.Steps)
	}

	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(index.RunID+"/"+entry.ID))

	return AllureResult{
		UUID:          id.String(),
		HistoryID:     fnv32aHash(entry.SourceFile + ":" + entry.Name),
		FullName:      feature + ": " + entry.Name,
		Name:          entry.Name,
		Status:        mapAllureStatus(entry.Status),
		Stage:         "finished",
		Start:         startMs,
		Stop:          stopMs,
		Labels:        labels,
		Parameters:    []AllureParameter{{Name: "environment", Value: index.Environment.Name}},
		StatusDetails: statusDetails,
		Steps:         steps,
		Attachments:   attachments,
	}
}

func buildAllureSteps(steps []Step) []AllureStep {
	out := make([]AllureStep, 0, len(steps))
	for _, st := range steps {
		out = append(out, buildAllureStep(st))
	}
	return out
}

func buildAllureStep(st Step) AllureStep {
	name := strings.TrimSpace(st.Keyword + " " + st.Text)

	var startMs, stopMs int64
	if st.StartTime != nil {
		startMs = st.StartTime.UnixMilli()
	}
	if st.EndTime != nil {
		stopMs = st.EndTime.UnixMilli()
	} else if st.StartTime != nil && st.Duration != nil {
		stopMs = startMs + *st.Duration
	}

	var details AllureStatusDetails
	if st.Error != nil {
		details.Message = st.Error.Message
		details.Trace = st.Error.Details
	}

	return AllureStep{
		Name:          name,
		Status:        mapAllureStatus(st.Status),
		Stage:         "finished",
		Start:         startMs,
		Stop:          stopMs,
		StatusDetails: details,
		Steps:         []AllureStep{},
		Attachments:   stepAttachments(st),
	}
}

func stepAttachments(st Step) []AllureAttachment {
	attachments := []AllureAttachment{}
	if st.Artifacts.Screenshot != "" {
		attachments = append(attachments, AllureAttachment{
			Name:   "Screenshot",
			Source: allureSource(st.Artifacts.Screenshot),
			Type:   "image/png",
		})
	}
	if st.Artifacts.PageSource != "" {
		typ := "text/xml"
		if strings.HasSuffix(st.Artifacts.PageSource, ".html") {
			typ = "text/html"
		}
		attachments = append(attachments, AllureAttachment{
			Name:   "Page source",
			Source: allureSource(st.Artifacts.PageSource),
			Type:   typ,
		})
	}
	if st.Artifacts.Response != "" {
		attachments = append(attachments, AllureAttachment{
			Name:   "API response",
			Source: allureSource(st.Artifacts.Response),
			Type:   "application/json",
		})
	}
	return attachments
}

// collectAttachments gathers every screenshot of a scenario for the
// result-level attachment list.
func collectAttachments(steps []Step) []AllureAttachment {
	attachments := []AllureAttachment{}
	for _, st := range steps {
		if st.Artifacts.Screenshot != "" {
			attachments = append(attachments, AllureAttachment{
				Name:   "Screenshot: " + st.Text,
				Source: allureSource(st.Artifacts.Screenshot),
				Type:   "image/png",
			})
		}
	}
	return attachments
}

// allureSource flattens assets/<scenario>/<file> into a unique file name,
// because allure-results is a single flat directory.
func allureSource(path string) string {
	dir := filepath.Base(filepath.Dir(path))
	return dir + "-" + filepath.Base(path)
}

// copyAllureAttachments copies step artifacts into allure-results/.
func copyAllureAttachments(reportDir, allureDir string, scenarios []ScenarioDetail) {
	for _, sc := range scenarios {
		for _, st := range sc.Steps {
			for _, path := range []string{st.Artifacts.Screenshot, st.Artifacts.PageSource, st.Artifacts.Response} {
				if path == "" {
					continue
				}
				copyFile(filepath.Join(reportDir, path), filepath.Join(allureDir, allureSource(path)))
			}
		}
	}
}

// copyFile copies src to dst. A missing source is not an error: artifacts
// of passed steps are usually not captured.
func copyFile(src, dst string) {
	in, err := os.Open(src)
	if err != nil {
		return
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		logger.Warn("create %s: %v", dst, err)
		return
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		logger.Warn("failed to copy %s to %s: %v", src, dst, err)
	}
}

func mapAllureStatus(s Status) string {
	switch s {
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	case StatusUndefined:
		return "broken"
	default:
		return "unknown"
	}
}

// fnv32aHash returns a hex-encoded FNV-32a hash of the input string.
func fnv32aHash(s string) string {
	h := fnv.New32a()
	h.Write([]byte(s))
	return fmt.Sprintf("%08x", h.Sum32())
}

func writeAllureCategories(allureDir string) error {
	categories := []AllureCategory{
		{Name: "Element Not Found", MatchedStatuses: []string{"failed"}, MessageRegex: "(?i).*element not found.*|.*no such element.*"},
		{Name: "Element Not Visible", MatchedStatuses: []string{"failed"}, MessageRegex: "(?i).*not visible.*|.*not displayed.*"},
		{Name: "Timeout", MatchedStatuses: []string{"failed"}, MessageRegex: "(?i).*timeout.*|.*timed out.*"},
		{Name: "Soft Assertions", MatchedStatuses: []string{"failed"}, MessageRegex: "(?i).*soft assertion.*"},
		{Name: "Assertion Failed", MatchedStatuses: []string{"failed"}, MessageRegex: "(?i).*expected.*|.*assert.*|.*mismatch.*"},
		{Name: "Unexpected HTTP Status", MatchedStatuses: []string{"failed"}, MessageRegex: "(?i).*expected http.*|.*status.*"},
		{Name: "Database", MatchedStatuses: []string{"failed", "broken"}, MessageRegex: "(?i).*database.*|.*sql.*|.*pq:.*"},
		{Name: "Write Forbidden", MatchedStatuses: []string{"failed"}, MessageRegex: "(?i).*not allowed on production.*"},
		{Name: "Connection Error", MatchedStatuses: []string{"failed", "broken"}, MessageRegex: "(?i).*connection.*|.*unreachable.*|.*network.*"},
		{Name: "Undefined Steps", MatchedStatuses: []string{"broken"}, MessageRegex: ".*"},
	}

	data, err := json.MarshalIndent(categories, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal categories: %w", err)
	}
	if err := os.WriteFile(filepath.Join(allureDir, "categories.json"), data, 0o644); err != nil {
		return fmt.Errorf("write categories.json: %w", err)
	}
	return nil
}

// writeAllureEnvironment writes environment.properties for the overview widget.
func writeAllureEnvironment(allureDir string, index *Index) error {
	var b strings.Builder
	write := func(key, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%s=%s\n", key, value)
		}
	}
	write("environment", index.Environment.Name)
	write("platform", index.Environment.Platform)
	write("browser", index.Environment.Browser)
	write("baseUrl", index.Environment.BaseURL)
	write("webUrl", index.Environment.WebURL)
	write("database", index.Environment.Database)
	write("runner.version", index.Runner.Version)
	write("runner.driver", index.Runner.Driver)
	write("run.id", index.RunID)

	if err := os.WriteFile(filepath.Join(allureDir, "environment.properties"), []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write environment.properties: %w", err)
	}
	return nil
}

func writeAllureExecutor(allureDir string, index *Index) error {
	executor := AllureExecutor{
		Name:       "crm-e2e",
		Type:       "local",
		ReportName: "CRM E2E " + index.Environment.Name,
	}
	if index.CI != nil {
		executor.Type = index.CI.Provider
		executor.BuildName = index.CI.BuildID
		executor.BuildURL = index.CI.BuildURL
	}

	data, err := json.MarshalIndent(executor, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal executor: %w", err)
	}
	if err := os.WriteFile(filepath.Join(allureDir, "executor.json"), data, 0o644); err != nil {
		return fmt.Errorf("write executor.json: %w", err)
	}
	return nil
}
