package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Consumer polls a report directory and tells which scenarios changed
// since the previous poll.
type Consumer struct {
	reportDir       string
	lastSeq         uint64
	lastScenarioSeq map[string]uint64
}

// NewConsumer creates a Consumer for reportDir.
func NewConsumer(reportDir string) *Consumer {
	return &Consumer{
		reportDir:       reportDir,
		lastScenarioSeq: make(map[string]uint64),
	}
}

// Poll reads report.json and returns the IDs of scenarios whose updateSeq
// moved (or that are new) since the last call.
func (c *Consumer) Poll() ([]string, *Index, error) {
	index, err := ReadIndex(filepath.Join(c.reportDir, "report.json"))
	if err != nil {
		return nil, nil, err
	}
	if index.UpdateSeq == c.lastSeq && c.lastSeq != 0 {
		return nil, index, nil
	}
	c.lastSeq = index.UpdateSeq

	var changed []string
	for _, s := range index.Scenarios {
		prev, seen := c.lastScenarioSeq[s.ID]
		if !seen || s.UpdateSeq != prev {
			changed = append(changed, s.ID)
			c.lastScenarioSeq[s.ID] = s.UpdateSeq
		}
	}
	return changed, index, nil
}

// ReadScenario reads one scenario detail by ID.
func (c *Consumer) ReadScenario(id string) (*ScenarioDetail, error) {
	return ReadScenario(filepath.Join(c.reportDir, "scenarios", id+".json"))
}

// Reset forgets what was seen so the next Poll reports every scenario.
func (c *Consumer) Reset() {
	c.lastSeq = 0
	c.lastScenarioSeq = make(map[string]uint64)
}

// ReadIndex reads a report.json file.
func ReadIndex(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var index Index
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &index, nil
}

// ReadScenario reads a scenario detail file.
func ReadScenario(path string) (*ScenarioDetail, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var detail ScenarioDetail
	if err := json.Unmarshal(data, &detail); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &detail, nil
}

// ReadReport reads the index and every scenario detail of a report
// directory. Details are returned in index order; a missing detail file
// yields a stub carrying only the entry's identity.
func ReadReport(reportDir string) (*Index, []ScenarioDetail, error) {
	index, err := ReadIndex(filepath.Join(reportDir, "report.json"))
	if err != nil {
		return nil, nil, err
	}

	details := make([]ScenarioDetail, len(index.Scenarios))
	for i, entry := range index.Scenarios {
		d, err := ReadScenario(filepath.Join(reportDir, entry.DataFile))
		if err != nil {
			details[i] = ScenarioDetail{ID: entry.ID, Name: entry.Name, Feature: entry.Feature, SourceFile: entry.SourceFile, Tags: entry.Tags}
			continue
		}
		details[i] = *d
	}
	return index, details, nil
}

// Recover finalizes a report left behind by an interrupted run: scenarios
// still marked running are settled from their step records, and the run
// status and summary are recomputed.
func Recover(reportDir string) error {
	indexPath := filepath.Join(reportDir, "report.json")
	index, err := ReadIndex(indexPath)
	if err != nil {
		return err
	}

	changed := false
	for i := range index.Scenarios {
		entry := &index.Scenarios[i]
		if entry.Status.IsTerminal() {
			continue
		}
		changed = true

		status := StatusFailed
		detail, err := ReadScenario(filepath.Join(reportDir, entry.DataFile))
		if err == nil {
			status = inferStatus(detail.Steps)
			entry.Steps = summarizeSteps(detail.Steps)
		}
		if status == StatusRunning || status == StatusPending {
			status = StatusFailed
			msg := "Scenario interrupted"
			entry.Error = &msg
		}
		entry.Status = status
		entry.UpdateSeq++
	}
	if !changed && index.Status.IsTerminal() {
		return nil
	}

	now := time.Now()
	if index.EndTime == nil {
		index.EndTime = &now
	}
	index.Status = runStatus(index.Scenarios)
	index.Summary = summarizeScenarios(index.Scenarios)
	index.LastUpdated = now
	index.UpdateSeq++
	return atomicWriteJSON(indexPath, index)
}

// inferStatus derives a scenario status from its steps. Anything short of
// every step settled counts as still running.
func inferStatus(steps []Step) Status {
	if len(steps) == 0 {
		return StatusFailed
	}
	passed := 0
	for _, st := range steps {
		switch st.Status {
		case StatusFailed, StatusUndefined:
			return StatusFailed
		case StatusPassed:
			passed++
		case StatusSkipped:
		default:
			return StatusRunning
		}
	}
	if passed == 0 {
		return StatusRunning
	}
	return StatusPassed
}
