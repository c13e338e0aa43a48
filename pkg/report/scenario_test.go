package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestDetail() *ScenarioDetail {
	return &ScenarioDetail{
		Name:       "Login with valid credentials",
		Feature:    "Login",
		SourceFile: "features/login.feature",
		Tags:       []string{"@smoke"},
		Steps: []Step{
			{Index: 0, Keyword: "Given", Text: "I open the CRM login page"},
			{Index: 1, Keyword: "When", Text: "I login as the default user"},
			{Index: 2, Keyword: "Then", Text: "I should see the dashboard"},
		},
	}
}

func createTestScenarioWriter(t *testing.T) (*ScenarioWriter, *IndexWriter, string) {
	t.Helper()
	tmpDir := t.TempDir()

	index := NewIndex(BuilderConfig{RunID: "run-1", Environment: Environment{Name: "QA", Platform: "web"}})
	if err := WriteSkeleton(tmpDir, index); err != nil {
		t.Fatalf("WriteSkeleton: %v", err)
	}
	iw := NewIndexWriter(tmpDir, index, false)

	detail := newTestDetail()
	if _, err := iw.AddScenario(detail); err != nil {
		t.Fatalf("AddScenario: %v", err)
	}
	return NewScenarioWriter(detail, tmpDir, iw), iw, tmpDir
}

func TestAddScenario(t *testing.T) {
	sw, iw, tmpDir := createTestScenarioWriter(t)
	defer iw.Close()

	if sw.ID() != "scenario-000" {
		t.Errorf("ID() = %q, want scenario-000", sw.ID())
	}
	for _, st := range sw.Detail().Steps {
		if st.Status != StatusPending {
			t.Errorf("step %d status = %q, want pending", st.Index, st.Status)
		}
	}

	idx := iw.GetIndex()
	if len(idx.Scenarios) != 1 {
		t.Fatalf("len(Scenarios) = %d, want 1", len(idx.Scenarios))
	}
	entry := idx.Scenarios[0]
	if entry.DataFile != filepath.Join("scenarios", "scenario-000.json") {
		t.Errorf("DataFile = %q", entry.DataFile)
	}
	if entry.Steps.Total != 3 || entry.Steps.Pending != 3 {
		t.Errorf("Steps = %+v, want 3 pending", entry.Steps)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "scenarios", "scenario-000.json")); err != nil {
		t.Errorf("detail file not written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "assets", "scenario-000")); err != nil {
		t.Errorf("assets dir not created: %v", err)
	}

	second := newTestDetail()
	if _, err := iw.AddScenario(second); err != nil {
		t.Fatalf("AddScenario: %v", err)
	}
	if second.ID != "scenario-001" {
		t.Errorf("second ID = %q, want scenario-001", second.ID)
	}
}

func TestScenarioWriter_PassingScenario(t *testing.T) {
	sw, iw, tmpDir := createTestScenarioWriter(t)

	iw.Start()
	sw.Start()
	for i := range sw.Detail().Steps {
		sw.StepStart(i)
		sw.StepEnd(i, StatusPassed, nil, StepArtifacts{})
	}
	sw.End(StatusPassed, "")
	iw.End()
	iw.Close()

	index, err := ReadIndex(filepath.Join(tmpDir, "report.json"))
	if err != nil {
		t.Fatalf("ReadIndex: %v", err)
	}
	if index.Status != StatusPassed {
		t.Errorf("run status = %q, want passed", index.Status)
	}
	if index.Summary.Passed != 1 || index.Summary.Total != 1 {
		t.Errorf("Summary = %+v", index.Summary)
	}
	entry := index.Scenarios[0]
	if entry.Steps.Passed != 3 {
		t.Errorf("Steps.Passed = %d, want 3", entry.Steps.Passed)
	}
	if entry.Duration == nil || entry.EndTime == nil {
		t.Error("duration and end time should be set")
	}

	detail, err := ReadScenario(filepath.Join(tmpDir, entry.DataFile))
	if err != nil {
		t.Fatalf("ReadScenario: %v", err)
	}
	for _, st := range detail.Steps {
		if st.Status != StatusPassed || st.Duration == nil {
			t.Errorf("step %d = %q duration=%v", st.Index, st.Status, st.Duration)
		}
	}
}

func TestScenarioWriter_FailedStepSkipsRest(t *testing.T) {
	sw, iw, tmpDir := createTestScenarioWriter(t)

	iw.Start()
	sw.Start()
	sw.StepStart(0)
	sw.StepEnd(0, StatusPassed, nil, StepArtifacts{})
	sw.StepStart(1)

	shot, err := sw.SaveScreenshot(1, []byte("png"))
	if err != nil {
		t.Fatalf("SaveScreenshot: %v", err)
	}
	src, err := sw.SavePageSource(1, "html", []byte("<html></html>"))
	if err != nil {
		t.Fatalf("SavePageSource: %v", err)
	}
	sw.StepEnd(1, StatusFailed, &Error{Type: "timeout", Message: "element not visible after 10s"}, StepArtifacts{Screenshot: shot, PageSource: src})
	sw.SkipRemaining(2)
	sw.End(StatusFailed, "")
	iw.End()
	iw.Close()

	if shot != filepath.Join("assets", "scenario-000", "step-001.png") {
		t.Errorf("screenshot path = %q", shot)
	}
	if !strings.HasSuffix(src, "step-001-source.html") {
		t.Errorf("page source path = %q", src)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, shot)); err != nil {
		t.Errorf("screenshot not written: %v", err)
	}

	index, _, err := ReadReport(tmpDir)
	if err != nil {
		t.Fatalf("ReadReport: %v", err)
	}
	if index.Status != StatusFailed {
		t.Errorf("run status = %q, want failed", index.Status)
	}
	entry := index.Scenarios[0]
	if entry.Error == nil || *entry.Error != "element not visible after 10s" {
		t.Errorf("Error = %v", entry.Error)
	}
	if entry.Steps.Skipped != 1 || entry.Steps.Failed != 1 {
		t.Errorf("Steps = %+v", entry.Steps)
	}
}

func TestScenarioWriter_EndMessageWithoutStepError(t *testing.T) {
	sw, iw, tmpDir := createTestScenarioWriter(t)

	sw.Start()
	for i := range sw.Detail().Steps {
		sw.StepEnd(i, StatusPassed, nil, StepArtifacts{})
	}
	sw.End(StatusFailed, "2 soft assertion(s) failed")
	iw.End()
	iw.Close()

	index, err := ReadIndex(filepath.Join(tmpDir, "report.json"))
	if err != nil {
		t.Fatalf("ReadIndex: %v", err)
	}
	if e := index.Scenarios[0].Error; e == nil || *e != "2 soft assertion(s) failed" {
		t.Errorf("Error = %v", e)
	}
}

func TestStepIndexOutOfRange(t *testing.T) {
	sw, iw, _ := createTestScenarioWriter(t)
	defer iw.Close()

	sw.StepStart(-1)
	sw.StepStart(10)
	sw.StepEnd(10, StatusPassed, nil, StepArtifacts{})

	for _, st := range sw.Detail().Steps {
		if st.Status != StatusPending {
			t.Errorf("step %d changed to %q", st.Index, st.Status)
		}
	}
}

func TestSummarizeSteps(t *testing.T) {
	s := summarizeSteps([]Step{
		{Status: StatusPassed},
		{Status: StatusRunning},
		{Status: StatusUndefined},
		{Status: StatusPending},
	})
	if s.Total != 4 || s.Passed != 1 || s.Running != 1 || s.Undefined != 1 || s.Pending != 1 {
		t.Errorf("summary = %+v", s)
	}
	if s.Current == nil || *s.Current != 1 {
		t.Errorf("Current = %v, want 1", s.Current)
	}
}

func TestRunStatus(t *testing.T) {
	tests := []struct {
		name    string
		entries []ScenarioEntry
		want    Status
	}{
		{"empty run", nil, StatusPassed},
		{"all passed", []ScenarioEntry{{Status: StatusPassed}, {Status: StatusSkipped}}, StatusPassed},
		{"one failed", []ScenarioEntry{{Status: StatusPassed}, {Status: StatusFailed}}, StatusFailed},
		{"undefined fails", []ScenarioEntry{{Status: StatusUndefined}}, StatusFailed},
		{"still running", []ScenarioEntry{{Status: StatusFailed}, {Status: StatusRunning}}, StatusRunning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := runStatus(tt.entries); got != tt.want {
				t.Errorf("runStatus() = %q, want %q", got, tt.want)
			}
		})
	}
}
