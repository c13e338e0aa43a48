package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/devicelab-dev/crm-e2e/pkg/logger"
)

// ScenarioWriter writes updates for a single scenario.
// Each scenario goroutine owns its writer, so no locking is needed.
type ScenarioWriter struct {
	scenario  *ScenarioDetail
	path      string
	assetsDir string
	index     *IndexWriter
}

// NewScenarioWriter creates a writer for a scenario already added to index.
func NewScenarioWriter(detail *ScenarioDetail, outputDir string, index *IndexWriter) *ScenarioWriter {
	assetsDir := filepath.Join(outputDir, "assets", detail.ID)
	if err := ensureDir(assetsDir); err != nil {
		logger.Warn("create %s: %v", assetsDir, err)
	}

	return &ScenarioWriter{
		scenario:  detail,
		path:      filepath.Join(outputDir, "scenarios", detail.ID+".json"),
		assetsDir: assetsDir,
		index:     index,
	}
}

// ID returns the scenario ID.
func (w *ScenarioWriter) ID() string {
	return w.scenario.ID
}

// Start marks the scenario as started.
func (w *ScenarioWriter) Start() {
	now := time.Now()
	w.scenario.StartTime = now

	w.flush()
	w.index.UpdateScenario(w.scenario.ID, &ScenarioUpdate{
		Status:    StatusRunning,
		StartTime: &now,
		Steps:     w.stepSummary(),
	})
}

// StepStart marks a step as running.
func (w *ScenarioWriter) StepStart(i int) {
	if i < 0 || i >= len(w.scenario.Steps) {
		return
	}

	now := time.Now()
	st := &w.scenario.Steps[i]
	st.Status = StatusRunning
	st.StartTime = &now

	w.flush()
	w.updateIndexProgress()
}

// StepEnd records the outcome of a step.
func (w *ScenarioWriter) StepEnd(i int, status Status, err *Error, artifacts StepArtifacts) {
	if i < 0 || i >= len(w.scenario.Steps) {
		return
	}

	now := time.Now()
	st := &w.scenario.Steps[i]
	st.Status = status
	st.EndTime = &now
	if st.StartTime != nil {
		d := now.Sub(*st.StartTime).Milliseconds()
		st.Duration = &d
	}
	st.Error = err
	st.Artifacts = artifacts

	w.flush()
	w.updateIndexProgress()
}

// SkipRemaining marks every pending step from index i on as skipped.
func (w *ScenarioWriter) SkipRemaining(i int) {
	if i < 0 {
		i = 0
	}
	for ; i < len(w.scenario.Steps); i++ {
		if w.scenario.Steps[i].Status == StatusPending || w.scenario.Steps[i].Status == StatusRunning {
			w.scenario.Steps[i].Status = StatusSkipped
		}
	}
	w.flush()
}

// SetState stores the scenario's final state for the report.
func (w *ScenarioWriter) SetState(values map[string]string) {
	w.scenario.State = values
}

// End marks the scenario as complete. A failed scenario's index entry
// carries the first step error, or errMsg when no step failed (hook errors,
// soft assertions left unchecked).
func (w *ScenarioWriter) End(status Status, errMsg string) {
	now := time.Now()
	w.scenario.EndTime = &now

	var duration int64
	if !w.scenario.StartTime.IsZero() {
		duration = now.Sub(w.scenario.StartTime).Milliseconds()
		w.scenario.Duration = &duration
	}

	w.flush()

	update := &ScenarioUpdate{
		Status:   status,
		EndTime:  &now,
		Duration: &duration,
		Steps:    w.stepSummary(),
	}
	if status == StatusFailed {
		for _, st := range w.scenario.Steps {
			if st.Error != nil {
				msg := st.Error.Message
				update.Error = &msg
				break
			}
		}
		if update.Error == nil && errMsg != "" {
			update.Error = &errMsg
		}
	}
	w.index.UpdateScenario(w.scenario.ID, update)
}

// SaveScreenshot saves a step screenshot and returns its report-relative path.
func (w *ScenarioWriter) SaveScreenshot(i int, data []byte) (string, error) {
	return w.saveAsset(fmt.Sprintf("step-%03d.png", i), data)
}

// SavePageSource saves the DOM or view hierarchy captured at step i.
// ext is "html" for browsers and "xml" for the mobile app.
func (w *ScenarioWriter) SavePageSource(i int, ext string, data []byte) (string, error) {
	if ext == "" {
		ext = "xml"
	}
	return w.saveAsset(fmt.Sprintf("step-%03d-source.%s", i, ext), data)
}

// SaveResponse saves the last API response body seen by step i.
func (w *ScenarioWriter) SaveResponse(i int, data []byte) (string, error) {
	return w.saveAsset(fmt.Sprintf("step-%03d-response.json", i), data)
}

func (w *ScenarioWriter) saveAsset(name string, data []byte) (string, error) {
	if err := os.WriteFile(filepath.Join(w.assetsDir, name), data, 0o644); err != nil {
		return "", err
	}
	return filepath.Join("assets", w.scenario.ID, name), nil
}

// Detail returns the scenario detail being written.
func (w *ScenarioWriter) Detail() *ScenarioDetail {
	return w.scenario
}

func (w *ScenarioWriter) flush() {
	if err := atomicWriteJSON(w.path, w.scenario); err != nil {
		logger.Warn("write %s: %v", w.path, err)
	}
}

func (w *ScenarioWriter) updateIndexProgress() {
	w.index.UpdateScenario(w.scenario.ID, &ScenarioUpdate{
		Status: StatusRunning,
		Steps:  w.stepSummary(),
	})
}

func (w *ScenarioWriter) stepSummary() StepSummary {
	return summarizeSteps(w.scenario.Steps)
}

func summarizeSteps(steps []Step) StepSummary {
	var s StepSummary
	s.Total = len(steps)
	for i, st := range steps {
		switch st.Status {
		case StatusPassed:
			s.Passed++
		case StatusFailed:
			s.Failed++
		case StatusSkipped:
			s.Skipped++
		case StatusUndefined:
			s.Undefined++
		case StatusRunning:
			s.Running++
			idx := i
			s.Current = &idx
		case StatusPending, "":
			s.Pending++
		}
	}
	return s
}
