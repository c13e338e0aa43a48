package report

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// HTMLConfig contains configuration for HTML report generation.
type HTMLConfig struct {
	OutputPath  string // Path to write the HTML file
	EmbedAssets bool   // Embed screenshots as base64 (portable, larger file)
	Title       string // Report title (default: "CRM E2E Report")
	ReportDir   string // Directory containing report.json (needed for asset paths)
}

// GenerateHTML generates report.html from the report directory.
func GenerateHTML(reportDir string, cfg HTMLConfig) error {
	index, scenarios, err := ReadReport(reportDir)
	if err != nil {
		return fmt.Errorf("read report: %w", err)
	}

	if cfg.Title == "" {
		cfg.Title = "CRM E2E Report"
	}
	if cfg.ReportDir == "" {
		cfg.ReportDir = reportDir
	}
	if cfg.OutputPath == "" {
		cfg.OutputPath = filepath.Join(reportDir, "report.html")
	}

	data := buildHTMLData(index, scenarios, cfg)

	html, err := renderHTML(data)
	if err != nil {
		return fmt.Errorf("render html: %w", err)
	}

	if err := os.WriteFile(cfg.OutputPath, []byte(html), 0o644); err != nil {
		return fmt.Errorf("write html: %w", err)
	}
	return nil
}

// HTMLData contains all data needed for the HTML template.
type HTMLData struct {
	Title         string
	GeneratedAt   string
	Index         *Index
	Scenarios     []ScenarioHTMLData
	TotalDuration string
	PassRate      float64
	FailRate      float64
	JSONData      template.JS // index and details for the detail pane
}

// ScenarioHTMLData contains scenario data formatted for HTML.
type ScenarioHTMLData struct {
	ScenarioDetail
	StatusClass string
	DurationStr string
	DurationPct float64
	Error       string
	Steps       []StepHTMLData
}

// StepHTMLData contains step data formatted for HTML.
type StepHTMLData struct {
	Step
	StatusClass string
	DurationStr string
	Screenshot  template.URL // base64 data URI or relative path
}

func buildHTMLData(index *Index, scenarios []ScenarioDetail, cfg HTMLConfig) HTMLData {
	var maxDuration int64
	for _, e := range index.Scenarios {
		if e.Duration != nil && *e.Duration > maxDuration {
			maxDuration = *e.Duration
		}
	}

	items := make([]ScenarioHTMLData, len(scenarios))
	for i, sc := range scenarios {
		entry := index.Scenarios[i]

		steps := make([]StepHTMLData, len(sc.Steps))
		for j, st := range sc.Steps {
			sd := StepHTMLData{
				Step:        st,
				StatusClass: string(st.Status),
				DurationStr: formatDuration(st.Duration),
			}
			if st.Artifacts.Screenshot != "" {
				if cfg.EmbedAssets {
					sd.Screenshot = template.URL(loadAsBase64(filepath.Join(cfg.ReportDir, st.Artifacts.Screenshot)))
				} else {
					sd.Screenshot = template.URL(filepath.ToSlash(st.Artifacts.Screenshot))
				}
			}
			steps[j] = sd
		}

		item := ScenarioHTMLData{
			ScenarioDetail: sc,
			StatusClass:    string(entry.Status),
			DurationStr:    formatDuration(entry.Duration),
			Steps:          steps,
		}
		if entry.Duration != nil && maxDuration > 0 {
			item.DurationPct = float64(*entry.Duration) / float64(maxDuration) * 100
		}
		if entry.Error != nil {
			item.Error = *entry.Error
		}
		items[i] = item
	}

	var passRate, failRate float64
	if index.Summary.Total > 0 {
		passRate = float64(index.Summary.Passed) / float64(index.Summary.Total) * 100
		failRate = float64(index.Summary.Failed) / float64(index.Summary.Total) * 100
	}

	var totalMs int64
	if index.EndTime != nil {
		totalMs = index.EndTime.Sub(index.StartTime).Milliseconds()
	}

	jsonBytes, _ := json.Marshal(map[string]interface{}{
		"index":     index,
		"scenarios": scenarios,
	})

	return HTMLData{
		Title:         cfg.Title,
		GeneratedAt:   time.Now().Format("2006-01-02 15:04:05"),
		Index:         index,
		Scenarios:     items,
		TotalDuration: formatDuration(&totalMs),
		PassRate:      passRate,
		FailRate:      failRate,
		JSONData:      template.JS(jsonBytes),
	}
}

func formatDuration(ms *int64) string {
	if ms == nil {
		return "-"
	}
	d := time.Duration(*ms) * time.Millisecond
	if d < time.Second {
		return fmt.Sprintf("%dms", *ms)
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
}

func loadAsBase64(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	mimeType := "image/png"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		mimeType = "image/jpeg"
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
}

func renderHTML(data HTMLData) (string, error) {
	tmpl, err := template.New("report").Parse(htmlTemplate)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <style>
        :root {
            --bg-primary: #ffffff;
            --bg-secondary: #f9fafb;
            --border: #e5e7eb;
            --text-primary: #111827;
            --text-secondary: #6b7280;
            --passed: #16a34a;
            --failed: #dc2626;
            --skipped: #9ca3af;
            --undefined: #d97706;
            --running: #2563eb;
            --pending: #d1d5db;
        }
        * { box-sizing: border-box; }
        body { margin: 0; font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif; font-size: 14px; color: var(--text-primary); background: var(--bg-secondary); }
        header { display: flex; align-items: center; justify-content: space-between; padding: 12px 24px; background: var(--bg-primary); border-bottom: 1px solid var(--border); }
        .header-title-main { font-size: 18px; font-weight: 600; }
        .header-title-sub { margin-left: 12px; color: var(--text-secondary); font-size: 12px; }
        .env-badge { padding: 2px 8px; border-radius: 4px; font-weight: 600; font-size: 12px; background: #eef2ff; color: #3730a3; }
        .env-badge.Production { background: #fef2f2; color: var(--failed); }
        .summary { display: flex; gap: 24px; align-items: center; padding: 16px 24px; background: var(--bg-primary); border-bottom: 1px solid var(--border); }
        .progress { flex: 1; height: 8px; display: flex; border-radius: 4px; overflow: hidden; background: var(--pending); }
        .progress div { height: 100%; }
        .legend-item { display: flex; align-items: center; gap: 6px; }
        .status-dot { width: 10px; height: 10px; border-radius: 50%; display: inline-block; background: var(--pending); flex-shrink: 0; }
        .passed .status-dot, .status-dot.passed { background: var(--passed); }
        .failed .status-dot, .status-dot.failed { background: var(--failed); }
        .skipped .status-dot, .status-dot.skipped { background: var(--skipped); }
        .undefined .status-dot, .status-dot.undefined { background: var(--undefined); }
        .running .status-dot, .status-dot.running { background: var(--running); }
        .env-grid { display: flex; flex-wrap: wrap; gap: 24px; padding: 8px 24px; font-size: 12px; color: var(--text-secondary); }
        .env-value { color: var(--text-primary); margin-left: 4px; }
        main { display: grid; grid-template-columns: 380px 1fr; height: calc(100vh - 150px); }
        .scenario-panel { border-right: 1px solid var(--border); overflow-y: auto; background: var(--bg-primary); }
        .filters { display: flex; gap: 6px; padding: 8px; border-bottom: 1px solid var(--border); }
        .filter-btn { border: 1px solid var(--border); background: var(--bg-primary); border-radius: 4px; padding: 4px 8px; cursor: pointer; font-size: 12px; }
        .filter-btn.active { background: var(--text-primary); color: #fff; }
        .scenario-item { padding: 10px 12px; border-bottom: 1px solid var(--border); cursor: pointer; }
        .scenario-item:hover, .scenario-item.selected { background: var(--bg-secondary); }
        .scenario-head { display: flex; align-items: center; gap: 8px; }
        .scenario-name { font-weight: 500; overflow: hidden; text-overflow: ellipsis; white-space: nowrap; }
        .scenario-meta { display: flex; gap: 8px; align-items: center; margin-top: 4px; color: var(--text-secondary); font-size: 12px; }
        .duration-bar { flex: 1; height: 4px; background: var(--bg-secondary); border-radius: 2px; }
        .duration-fill { height: 100%; background: var(--text-secondary); border-radius: 2px; }
        .tag { font-size: 11px; color: #4338ca; }
        .detail-panel { overflow-y: auto; padding: 16px 24px; }
        .empty { color: var(--text-secondary); padding: 48px; text-align: center; }
        .step-item { display: flex; gap: 8px; padding: 6px 8px; border-radius: 4px; align-items: flex-start; }
        .step-item.failed { background: #fef2f2; }
        .step-keyword { font-weight: 600; min-width: 48px; color: #7c3aed; }
        .step-text { flex: 1; white-space: pre-wrap; }
        .step-duration { color: var(--text-secondary); font-size: 12px; }
        .step-error { margin: 4px 0 8px 56px; padding: 8px; background: #fff; border-left: 3px solid var(--failed); font-family: monospace; font-size: 12px; white-space: pre-wrap; }
        .step-table { margin: 4px 0 8px 56px; border-collapse: collapse; font-size: 12px; }
        .step-table td { border: 1px solid var(--border); padding: 2px 6px; }
        .step-artifacts { margin: 4px 0 8px 56px; }
        .step-artifacts img { max-width: 480px; border: 1px solid var(--border); border-radius: 4px; }
        .step-artifacts a { font-size: 12px; margin-right: 12px; }
    </style>
</head>
<body>
    <header>
        <div>
            <span class="header-title-main">{{.Title}}</span>
            <span class="header-title-sub">{{.GeneratedAt}}</span>
        </div>
        <span class="env-badge {{.Index.Environment.Name}}">{{.Index.Environment.Name}}</span>
    </header>

    <div class="summary">
        <div class="progress">
            <div style="width: {{printf "%.1f" .PassRate}}%; background: var(--passed);"></div>
            <div style="width: {{printf "%.1f" .FailRate}}%; background: var(--failed);"></div>
        </div>
        <div class="legend-item"><span class="status-dot passed"></span><span>{{.Index.Summary.Passed}} passed</span></div>
        <div class="legend-item"><span class="status-dot failed"></span><span>{{.Index.Summary.Failed}} failed</span></div>
        {{if gt .Index.Summary.Skipped 0}}<div class="legend-item"><span class="status-dot skipped"></span><span>{{.Index.Summary.Skipped}} skipped</span></div>{{end}}
        <div class="legend-item"><span>{{.TotalDuration}}</span></div>
    </div>

    <div class="env-grid">
        <div><span>Platform</span><span class="env-value">{{.Index.Environment.Platform}}{{if .Index.Environment.Browser}} ({{.Index.Environment.Browser}}){{end}}</span></div>
        {{if .Index.Environment.WebURL}}<div><span>Web</span><span class="env-value">{{.Index.Environment.WebURL}}</span></div>{{end}}
        {{if .Index.Environment.BaseURL}}<div><span>API</span><span class="env-value">{{.Index.Environment.BaseURL}}</span></div>{{end}}
        {{if .Index.Environment.Database}}<div><span>Database</span><span class="env-value">{{.Index.Environment.Database}}</span></div>{{end}}
        <div><span>Run</span><span class="env-value">{{.Index.RunID}}</span></div>
        {{if .Index.CI}}<div><span>CI</span><span class="env-value">{{.Index.CI.Provider}} {{.Index.CI.BuildID}}</span></div>{{end}}
    </div>

    <main>
        <div class="scenario-panel">
            <div class="filters">
                <button class="filter-btn active" data-filter="all">All ({{.Index.Summary.Total}})</button>
                <button class="filter-btn" data-filter="failed">Failed ({{.Index.Summary.Failed}})</button>
                <button class="filter-btn" data-filter="passed">Passed ({{.Index.Summary.Passed}})</button>
            </div>
            <div id="scenario-list">
                {{range $i, $sc := .Scenarios}}
                <div class="scenario-item {{$sc.StatusClass}}" data-index="{{$i}}" data-status="{{$sc.StatusClass}}">
                    <div class="scenario-head">
                        <span class="status-dot"></span>
                        <span class="scenario-name" title="{{$sc.Feature}}">{{$sc.Name}}</span>
                    </div>
                    <div class="scenario-meta">
                        <span>{{len $sc.Steps}} steps</span>
                        <div class="duration-bar"><div class="duration-fill" style="width: {{printf "%.1f" $sc.DurationPct}}%"></div></div>
                        <span>{{$sc.DurationStr}}</span>
                    </div>
                    {{if $sc.Tags}}<div class="scenario-meta">{{range $sc.Tags}}<span class="tag">{{.}}</span>{{end}}</div>{{end}}
                </div>
                {{end}}
            </div>
        </div>

        <div class="detail-panel" id="detail">
            {{range $i, $sc := .Scenarios}}
            <section class="scenario-detail" id="scenario-{{$i}}" style="display: none;">
                <h2>{{$sc.Name}}</h2>
                <p class="scenario-meta">{{$sc.Feature}} &middot; {{$sc.SourceFile}} &middot; {{$sc.DurationStr}}</p>
                {{if $sc.Error}}<div class="step-error">{{$sc.Error}}</div>{{end}}
                {{range $sc.Steps}}
                <div class="step-item {{.StatusClass}}">
                    <span class="status-dot {{.StatusClass}}"></span>
                    <span class="step-keyword">{{.Keyword}}</span>
                    <span class="step-text">{{.Text}}</span>
                    <span class="step-duration">{{.DurationStr}}</span>
                </div>
                {{if .Table}}<table class="step-table">{{range .Table}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>{{end}}</table>{{end}}
                {{if .Error}}<div class="step-error">{{.Error.Message}}{{if .Error.Details}}
{{.Error.Details}}{{end}}{{if .Error.Suggestion}}
Hint: {{.Error.Suggestion}}{{end}}</div>{{end}}
                {{if or .Screenshot .Artifacts.PageSource .Artifacts.Response}}
                <div class="step-artifacts">
                    {{if .Artifacts.PageSource}}<a href="{{.Artifacts.PageSource}}" target="_blank">page source</a>{{end}}
                    {{if .Artifacts.Response}}<a href="{{.Artifacts.Response}}" target="_blank">API response</a>{{end}}
                    {{if .Screenshot}}<div><img src="{{.Screenshot}}" alt="screenshot" loading="lazy"></div>{{end}}
                </div>
                {{end}}
                {{end}}
            </section>
            {{end}}
            <div class="empty" id="empty">Select a scenario</div>
        </div>
    </main>

    <script>
        const reportData = {{.JSONData}};
        let selected = -1;

        function selectScenario(index) {
            document.querySelectorAll('.scenario-item').forEach(el => el.classList.toggle('selected', parseInt(el.dataset.index) === index));
            document.querySelectorAll('.scenario-detail').forEach(el => el.style.display = 'none');
            const section = document.getElementById('scenario-' + index);
            if (section) {
                section.style.display = 'block';
                document.getElementById('empty').style.display = 'none';
                window.location.hash = 'scenario-' + index;
            }
            selected = index;
        }

        function filterScenarios(filter) {
            document.querySelectorAll('.filter-btn').forEach(b => b.classList.toggle('active', b.dataset.filter === filter));
            document.querySelectorAll('.scenario-item').forEach(el => {
                el.style.display = (filter === 'all' || el.dataset.status === filter) ? '' : 'none';
            });
        }

        document.querySelectorAll('.scenario-item').forEach(el => el.addEventListener('click', () => selectScenario(parseInt(el.dataset.index))));
        document.querySelectorAll('.filter-btn').forEach(b => b.addEventListener('click', () => filterScenarios(b.dataset.filter)));

        document.addEventListener('keydown', e => {
            const visible = Array.from(document.querySelectorAll('.scenario-item')).filter(el => el.style.display !== 'none');
            const pos = visible.findIndex(el => parseInt(el.dataset.index) === selected);
            if (e.key === 'j' || e.key === 'ArrowDown') {
                if (pos < visible.length - 1) selectScenario(parseInt(visible[pos + 1].dataset.index));
            } else if (e.key === 'k' || e.key === 'ArrowUp') {
                if (pos > 0) selectScenario(parseInt(visible[pos - 1].dataset.index));
            } else if (e.key === 'f') {
                const failed = visible.filter(el => el.dataset.status === 'failed');
                if (failed.length > 0) {
                    const cur = failed.findIndex(el => parseInt(el.dataset.index) === selected);
                    selectScenario(parseInt(failed[(cur + 1) % failed.length].dataset.index));
                }
            }
        });

        // Live view: reload while the run is still in progress.
        if (reportData.index.status === 'running' || reportData.index.status === 'pending') {
            setTimeout(() => window.location.reload(), 2000);
        }

        const hash = window.location.hash.match(/^#scenario-(\d+)$/);
        if (hash) {
            selectScenario(parseInt(hash[1]));
        } else if (reportData.scenarios.length > 0) {
            const firstFailed = reportData.index.scenarios.findIndex(s => s.status === 'failed');
            selectScenario(firstFailed >= 0 ? firstFailed : 0);
        }
    </script>
</body>
</html>
`
