package report

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/devicelab-dev/crm-e2e/pkg/logger"
)

// flushDelay debounces progress writes of report.json.
const flushDelay = 100 * time.Millisecond

// IndexWriter provides thread-safe updates to the report index.
// Scenarios running concurrently share one IndexWriter.
type IndexWriter struct {
	mu        sync.Mutex
	outputDir string
	path      string
	index     *Index
	liveHTML  bool

	// Debouncing for progress updates
	pending   map[string]*ScenarioUpdate
	timer     *time.Timer
	immediate chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewIndexWriter creates a new IndexWriter. When liveHTML is set, report.html
// is regenerated on every flush so it can be watched from a browser.
func NewIndexWriter(outputDir string, index *Index, liveHTML bool) *IndexWriter {
	w := &IndexWriter{
		outputDir: outputDir,
		path:      filepath.Join(outputDir, "report.json"),
		index:     index,
		liveHTML:  liveHTML,
		pending:   make(map[string]*ScenarioUpdate),
		immediate: make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	go w.flushLoop()
	return w
}

// Start marks the run as started.
func (w *IndexWriter) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	w.index.Status = StatusRunning
	w.index.StartTime = now
	w.index.LastUpdated = now

	w.flushLocked()
}

// AddScenario registers a scenario that is about to run, assigns its ID
// when empty and writes its pending detail file.
func (w *IndexWriter) AddScenario(detail *ScenarioDetail) (*ScenarioEntry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	pos := len(w.index.Scenarios)
	if detail.ID == "" {
		detail.ID = fmt.Sprintf("scenario-%03d", pos)
	}
	for i := range detail.Steps {
		if detail.Steps[i].Status == "" {
			detail.Steps[i].Status = StatusPending
		}
	}

	if err := ensureDir(filepath.Join(w.outputDir, "assets", detail.ID)); err != nil {
		return nil, fmt.Errorf("create assets dir for %s: %w", detail.ID, err)
	}
	if err := atomicWriteJSON(filepath.Join(w.outputDir, "scenarios", detail.ID+".json"), detail); err != nil {
		return nil, fmt.Errorf("write scenario %s: %w", detail.ID, err)
	}

	w.index.Scenarios = append(w.index.Scenarios, ScenarioEntry{
		Index:      pos,
		ID:         detail.ID,
		Name:       detail.Name,
		Feature:    detail.Feature,
		SourceFile: detail.SourceFile,
		Tags:       detail.Tags,
		DataFile:   filepath.Join("scenarios", detail.ID+".json"),
		AssetsDir:  filepath.Join("assets", detail.ID),
		Status:     StatusPending,
		Steps:      summarizeSteps(detail.Steps),
	})
	w.flushLocked()

	entry := w.index.Scenarios[pos]
	return &entry, nil
}

// UpdateScenario updates a scenario entry in the index.
// Terminal states flush immediately; progress updates are debounced.
func (w *IndexWriter) UpdateScenario(id string, update *ScenarioUpdate) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[id] = update

	if update.Status.IsTerminal() {
		w.flushLocked()
		return
	}

	if w.timer == nil {
		w.timer = time.AfterFunc(flushDelay, func() {
			select {
			case w.immediate <- struct{}{}:
			default:
			}
		})
	}
}

// End marks the run as complete.
func (w *IndexWriter) End() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for id, update := range w.pending {
		w.applyUpdate(id, update)
	}
	w.pending = make(map[string]*ScenarioUpdate)

	now := time.Now()
	w.index.EndTime = &now
	w.index.Status = w.computeRunStatus()

	w.flushLocked()
}

// Close shuts down the IndexWriter and flushes any pending updates.
func (w *IndexWriter) Close() {
	w.closeOnce.Do(func() {
		close(w.done)
		w.flush()
	})
}

// GetIndex returns a copy of the current index.
func (w *IndexWriter) GetIndex() Index {
	w.mu.Lock()
	defer w.mu.Unlock()
	idx := *w.index
	idx.Scenarios = append([]ScenarioEntry(nil), w.index.Scenarios...)
	return idx
}

func (w *IndexWriter) flushLoop() {
	for {
		select {
		case <-w.immediate:
			w.flush()
		case <-w.done:
			return
		}
	}
}

func (w *IndexWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushLocked()
}

// flushLocked applies pending updates and writes report.json. Callers hold mu.
func (w *IndexWriter) flushLocked() {
	for id, update := range w.pending {
		w.applyUpdate(id, update)
	}
	w.pending = make(map[string]*ScenarioUpdate)

	w.index.UpdateSeq++
	w.index.LastUpdated = time.Now()
	w.index.Summary = w.computeSummary()

	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}

	if err := atomicWriteJSON(w.path, w.index); err != nil {
		logger.Warn("write %s: %v", w.path, err)
		return
	}

	if w.liveHTML {
		if err := GenerateHTML(w.outputDir, HTMLConfig{ReportDir: w.outputDir}); err != nil {
			logger.Debug("live html: %v", err)
		}
	}
}

func (w *IndexWriter) applyUpdate(id string, update *ScenarioUpdate) {
	for i := range w.index.Scenarios {
		if w.index.Scenarios[i].ID != id {
			continue
		}
		s := &w.index.Scenarios[i]
		s.Status = update.Status
		if update.StartTime != nil {
			s.StartTime = update.StartTime
		}
		if update.EndTime != nil {
			s.EndTime = update.EndTime
		}
		if update.Duration != nil {
			s.Duration = update.Duration
		}
		s.Steps = update.Steps
		if update.Error != nil {
			s.Error = update.Error
		}
		s.UpdateSeq++
		now := time.Now()
		s.LastUpdated = &now
		return
	}
}

func (w *IndexWriter) computeSummary() Summary {
	return summarizeScenarios(w.index.Scenarios)
}

func summarizeScenarios(entries []ScenarioEntry) Summary {
	var s Summary
	for _, e := range entries {
		s.Total++
		switch e.Status {
		case StatusPassed:
			s.Passed++
		case StatusFailed, StatusUndefined:
			s.Failed++
		case StatusSkipped:
			s.Skipped++
		case StatusRunning:
			s.Running++
		case StatusPending:
			s.Pending++
		}
	}
	return s
}

// computeRunStatus determines the overall run status from the scenarios.
// A run that selected no scenario counts as passed.
func (w *IndexWriter) computeRunStatus() Status {
	return runStatus(w.index.Scenarios)
}

func runStatus(entries []ScenarioEntry) Status {
	hasFailure := false
	for _, e := range entries {
		if !e.Status.IsTerminal() {
			return StatusRunning
		}
		if e.Status == StatusFailed || e.Status == StatusUndefined {
			hasFailure = true
		}
	}
	if hasFailure {
		return StatusFailed
	}
	return StatusPassed
}
