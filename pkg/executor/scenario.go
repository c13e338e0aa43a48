package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cucumber/godog"
	messages "github.com/cucumber/messages/go/v21"

	"github.com/devicelab-dev/crm-e2e/pkg/core"
	"github.com/devicelab-dev/crm-e2e/pkg/logger"
	"github.com/devicelab-dev/crm-e2e/pkg/report"
	"github.com/devicelab-dev/crm-e2e/pkg/steps"
)

// captureTimeout bounds artifact capture after a step, which may run on a
// cancelled step context.
const captureTimeout = 15 * time.Second

// scenarioRun holds one scenario's report writer, World and result.
// godog calls the ScenarioInitializer once per scenario and runs its hooks
// on a single goroutine.
type scenarioRun struct {
	suite *suiteRun

	writer  *report.ScenarioWriter
	world   *steps.World
	result  core.ScenarioResult
	stepIdx map[string]int

	cancelled bool
	done      bool // After hook ran; later step hooks only see skipped steps
}

func (s *suiteRun) initScenario(sc *godog.ScenarioContext) {
	s.cfg.Registry.Register(sc)

	sr := &scenarioRun{suite: s}
	sc.Before(sr.before)
	sc.StepContext().Before(sr.beforeStep)
	sc.StepContext().After(sr.afterStep)
	sc.After(sr.after)
}

func (sr *scenarioRun) before(ctx context.Context, pickle *godog.Scenario) (context.Context, error) {
	s := sr.suite
	feature := s.catalog.featureName(pickle.Uri)

	detail := &report.ScenarioDetail{
		Name:       pickle.Name,
		Feature:    feature,
		SourceFile: pickle.Uri,
		Tags:       tagNames(pickle.Tags),
		Steps:      make([]report.Step, len(pickle.Steps)),
	}
	sr.stepIdx = make(map[string]int, len(pickle.Steps))
	for i, st := range pickle.Steps {
		detail.Steps[i] = report.Step{
			ID:        st.Id,
			Index:     i,
			Keyword:   s.catalog.keyword(pickle.Uri, st),
			Text:      st.Text,
			Table:     tableRows(st),
			DocString: docString(st),
		}
		sr.stepIdx[st.Id] = i
	}

	if _, err := s.index.AddScenario(detail); err != nil {
		return ctx, fmt.Errorf("add scenario to report: %w", err)
	}
	sr.writer = report.NewScenarioWriter(detail, s.cfg.OutputDir, s.index)

	sr.result = core.ScenarioResult{
		ID:        detail.ID,
		Name:      pickle.Name,
		Feature:   feature,
		URI:       pickle.Uri,
		Tags:      detail.Tags,
		StartTime: time.Now(),
		Steps:     make([]core.StepResult, len(detail.Steps)),
	}
	for i, st := range detail.Steps {
		sr.result.Steps[i] = core.StepResult{Index: i, Keyword: st.Keyword, Text: st.Text, Status: core.StatusPending}
	}

	n := s.nextScenario()
	logger.Info("[%s] %s: %s", detail.ID, feature, pickle.Name)
	if s.cfg.OnScenarioStart != nil {
		s.cfg.OnScenarioStart(n, pickle.Name, feature)
	}
	sr.writer.Start()

	if ctx.Err() != nil {
		sr.cancelled = true
		return ctx, godog.ErrSkip
	}

	sr.world = steps.NewWorld(detail.ID, pickle.Name, s.cfg.Steps)
	return steps.WithWorld(ctx, sr.world), nil
}

func (sr *scenarioRun) beforeStep(ctx context.Context, st *godog.Step) (context.Context, error) {
	i, ok := sr.stepIdx[st.Id]
	if !ok || sr.writer == nil || sr.done {
		return ctx, nil
	}
	sr.result.Steps[i].Status = core.StatusRunning
	sr.result.Steps[i].StartTime = time.Now()
	sr.writer.StepStart(i)
	return ctx, nil
}

func (sr *scenarioRun) afterStep(ctx context.Context, st *godog.Step, status godog.StepResultStatus, err error) (context.Context, error) {
	i, ok := sr.stepIdx[st.Id]
	if !ok || sr.writer == nil {
		return ctx, nil
	}
	res := &sr.result.Steps[i]

	if sr.done {
		// Steps after a failure are reported once the scenario has ended.
		sr.notifyStep(*res)
		return ctx, nil
	}

	res.Status = stepStatus(status, err)
	if res.StartTime.IsZero() {
		res.StartTime = time.Now()
	}
	res.Duration = time.Since(res.StartTime)

	var stepErr *report.Error
	if err != nil && res.Status.IsFailure() {
		res.Error = err.Error()
		res.Category = core.CategoryOf(err)
		stepErr = reportError(res.Status, err)
		logger.Error("[%s] step %d %s %s: %v", sr.result.ID, i+1, res.Keyword, res.Text, err)
	}

	artifacts := sr.capture(ctx, i, res)
	sr.writer.StepEnd(i, reportStatus(res.Status), stepErr, artifacts)
	sr.notifyStep(*res)
	return ctx, nil
}

func (sr *scenarioRun) after(ctx context.Context, pickle *godog.Scenario, scenarioErr error) (context.Context, error) {
	if sr.writer == nil {
		return ctx, nil
	}
	sr.done = true

	var softErr error
	if w := sr.world; w != nil {
		// Soft failures nobody asserted still fail the scenario.
		softErr = w.Soft.Err()
		sr.writer.SetState(stateForReport(w.State.Snapshot()))
		if d := w.Driver(); d != nil {
			sr.result.PlatformInfo = d.PlatformInfo()
		}
		if err := w.Close(); err != nil {
			logger.Warn("[%s] %v", sr.result.ID, err)
		}
	}

	for i := range sr.result.Steps {
		if st := &sr.result.Steps[i]; !st.Status.IsTerminal() {
			st.Status = core.StatusSkipped
		}
	}
	sr.writer.SkipRemaining(0)

	res := &sr.result
	res.Duration = time.Since(res.StartTime)
	res.ComputeSummary()
	res.Status = res.AggregateStatus()
	res.Error = res.FirstError()

	var hookErr error
	switch {
	case sr.cancelled:
		res.Status = core.StatusSkipped
		res.Error = "run cancelled"
	case res.Status.IsFailure():
		// the first failing step carries the error
	case softErr != nil:
		res.Status = core.StatusFailed
		res.Error = softErr.Error()
		hookErr = softErr
	case scenarioErr != nil && !errors.Is(scenarioErr, godog.ErrSkip) && !errors.Is(scenarioErr, godog.ErrPending):
		// Hook failures surface here without a failed step.
		res.Status = core.StatusFailed
		res.Error = scenarioErr.Error()
	}

	logger.Info("[%s] %s in %s", res.ID, res.Status, res.Duration.Round(time.Millisecond))
	sr.writer.End(reportStatus(res.Status), res.Error)
	sr.suite.addResult(*res)
	if cb := sr.suite.cfg.OnScenarioEnd; cb != nil {
		cb(*res)
	}
	return ctx, hookErr
}

// capture saves the screenshot, page source and last API response of step i
// when the artifact mode asks for them.
func (sr *scenarioRun) capture(ctx context.Context, i int, res *core.StepResult) report.StepArtifacts {
	var a report.StepArtifacts
	cfg := sr.suite.cfg.Artifacts
	if sr.world == nil || !cfg.ShouldCapture(res.Status) {
		return a
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), captureTimeout)
	defer cancel()

	if d := sr.world.Driver(); d != nil {
		if cfg.Screenshot {
			if data, err := d.Screenshot(ctx); err != nil {
				logger.Warn("[%s] screenshot: %v", sr.result.ID, err)
			} else if path, err := sr.writer.SaveScreenshot(i, data); err == nil {
				a.Screenshot = path
				res.Attachments = append(res.Attachments, core.NewScreenshotAttachment(path, nil))
			}
		}
		if cfg.PageSource {
			platform := core.PlatformWeb
			if info := d.PlatformInfo(); info != nil {
				platform = info.Platform
			}
			ext := "html"
			if platform.IsMobile() {
				ext = "xml"
			}
			if src, err := d.Source(ctx); err != nil {
				logger.Warn("[%s] page source: %v", sr.result.ID, err)
			} else if path, err := sr.writer.SavePageSource(i, ext, []byte(src)); err == nil {
				a.PageSource = path
				res.Attachments = append(res.Attachments, core.NewPageSourceAttachment(path, nil, platform))
			}
		}
	}

	if resp := sr.world.API.LastResponse(); resp != nil && len(resp.Body) > 0 {
		if path, err := sr.writer.SaveResponse(i, resp.Body); err == nil {
			a.Response = path
			res.Attachments = append(res.Attachments, core.Attachment{
				Name: core.AttachmentResponse, ContentType: core.ContentTypeJSON, Path: path,
			})
		}
	}
	return a
}

func (sr *scenarioRun) notifyStep(res core.StepResult) {
	if cb := sr.suite.cfg.OnStepComplete; cb != nil {
		cb(sr.result.ID, res)
	}
}

// stepStatus maps a godog step outcome to a core status. Assertion and
// timeout failures are Failed; broken infrastructure is Errored.
func stepStatus(status godog.StepResultStatus, err error) core.StepStatus {
	switch status {
	case godog.StepPassed:
		return core.StatusPassed
	case godog.StepSkipped, godog.StepPending:
		return core.StatusSkipped
	case godog.StepUndefined:
		return core.StatusUndefined
	case godog.StepAmbiguous:
		return core.StatusAmbiguous
	}
	switch core.CategoryOf(err) {
	case core.ErrCategoryConnection, core.ErrCategoryConfig, core.ErrCategoryApp:
		return core.StatusErrored
	}
	return core.StatusFailed
}

func reportStatus(s core.StepStatus) report.Status {
	switch s {
	case core.StatusPassed:
		return report.StatusPassed
	case core.StatusSkipped:
		return report.StatusSkipped
	case core.StatusUndefined:
		return report.StatusUndefined
	case core.StatusPending:
		return report.StatusPending
	case core.StatusRunning:
		return report.StatusRunning
	}
	return report.StatusFailed
}

func reportError(status core.StepStatus, err error) *report.Error {
	e := &report.Error{Type: core.CodeOf(err), Message: err.Error()}
	switch {
	case status == core.StatusUndefined:
		e.Type = "undefined"
		e.Message = "no step definition matches this text"
		e.Suggestion = "run `crm-e2e validate` to list the available steps"
	case status == core.StatusAmbiguous:
		e.Type = "ambiguous"
	case e.Type == "":
		e.Type = core.CategoryOf(err).String()
	}
	switch e.Type {
	case "element_not_found", "element_not_visible":
		e.Suggestion = "check the locator against the saved page source"
	case "database_unavailable":
		e.Suggestion = "check database.properties for the selected environment"
	case "write_forbidden":
		e.Suggestion = "tag the scenario for a non-production environment or set allowWrites"
	}
	return e
}

func tagNames(tags []*messages.PickleTag) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = t.Name
	}
	return out
}

func tableRows(st *godog.Step) [][]string {
	if st.Argument == nil || st.Argument.DataTable == nil {
		return nil
	}
	rows := make([][]string, len(st.Argument.DataTable.Rows))
	for i, r := range st.Argument.DataTable.Rows {
		rows[i] = make([]string, len(r.Cells))
		for j, c := range r.Cells {
			rows[i][j] = c.Value
		}
	}
	return rows
}

func docString(st *godog.Step) string {
	if st.Argument == nil || st.Argument.DocString == nil {
		return ""
	}
	return st.Argument.DocString.Content
}

// secretKeys are state keys whose values never reach the report.
var secretKeys = []string{"token", "password", "secret"}

func stateForReport(values map[string]interface{}) map[string]string {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]string, len(values))
	for k, raw := range values {
		v := fmt.Sprint(raw)
		lower := strings.ToLower(k)
		for _, s := range secretKeys {
			if strings.Contains(lower, s) {
				v = "***"
				break
			}
		}
		out[k] = v
	}
	return out
}
