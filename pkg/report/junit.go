package report

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// JUnit XML schema as understood by Jenkins, GitLab and most CI dashboards.

type junitSuites struct {
	XMLName  xml.Name     `xml:"testsuites"`
	Name     string       `xml:"name,attr"`
	Tests    int          `xml:"tests,attr"`
	Failures int          `xml:"failures,attr"`
	Skipped  int          `xml:"skipped,attr"`
	Time     string       `xml:"time,attr"`
	Suites   []junitSuite `xml:"testsuite"`
}

type junitSuite struct {
	Name       string          `xml:"name,attr"`
	Tests      int             `xml:"tests,attr"`
	Failures   int             `xml:"failures,attr"`
	Skipped    int             `xml:"skipped,attr"`
	Time       string          `xml:"time,attr"`
	Timestamp  string          `xml:"timestamp,attr,omitempty"`
	Properties []junitProperty `xml:"properties>property,omitempty"`
	Cases      []junitCase     `xml:"testcase"`
}

type junitProperty struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type junitCase struct {
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	Time      string        `xml:"time,attr"`
	Failure   *junitFailure `xml:"failure,omitempty"`
	Skipped   *struct{}     `xml:"skipped,omitempty"`
	SystemOut string        `xml:"system-out,omitempty"`
}

type junitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Body    string `xml:",chardata"`
}

// GenerateJUnit writes <reportDir>/junit.xml with one testsuite per feature.
func GenerateJUnit(reportDir string) error {
	index, scenarios, err := ReadReport(reportDir)
	if err != nil {
		return fmt.Errorf("read report: %w", err)
	}

	doc := buildJUnit(index, scenarios)

	data, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal junit: %w", err)
	}
	out := append([]byte(xml.Header), data...)
	if err := os.WriteFile(filepath.Join(reportDir, "junit.xml"), out, 0o644); err != nil {
		return fmt.Errorf("write junit.xml: %w", err)
	}
	return nil
}

func buildJUnit(index *Index, scenarios []ScenarioDetail) junitSuites {
	byFeature := make(map[string]*junitSuite)
	suiteMs := make(map[string]int64)
	var order []string
	var totalMs int64

	for i, entry := range index.Scenarios {
		feature := entry.Feature
		if feature == "" {
			feature = entry.SourceFile
		}
		suite, ok := byFeature[feature]
		if !ok {
			suite = &junitSuite{
				Name: feature,
				Properties: []junitProperty{
					{Name: "environment", Value: index.Environment.Name},
					{Name: "platform", Value: index.Environment.Platform},
				},
			}
			if entry.StartTime != nil {
				suite.Timestamp = entry.StartTime.UTC().Format("2006-01-02T15:04:05")
			}
			byFeature[feature] = suite
			order = append(order, feature)
		}

		var ms int64
		if entry.Duration != nil {
			ms = *entry.Duration
		}
		totalMs += ms
		suiteMs[feature] += ms

		tc := junitCase{
			Name:      entry.Name,
			Classname: feature,
			Time:      seconds(ms),
		}
		if i < len(scenarios) {
			tc.SystemOut = stepTranscript(scenarios[i].Steps)
		}

		switch entry.Status {
		case StatusFailed, StatusUndefined:
			suite.Failures++
			msg := "scenario failed"
			if entry.Error != nil {
				msg = *entry.Error
			}
			tc.Failure = &junitFailure{Message: firstLine(msg), Type: failureType(scenarios, i), Body: msg}
		case StatusSkipped:
			suite.Skipped++
			tc.Skipped = &struct{}{}
		}

		suite.Tests++
		suite.Cases = append(suite.Cases, tc)
	}

	sort.Strings(order)
	doc := junitSuites{
		Name:     "crm-e2e " + index.Environment.Name,
		Time:     seconds(totalMs),
		Tests:    len(index.Scenarios),
		Failures: index.Summary.Failed,
		Skipped:  index.Summary.Skipped,
	}
	for _, name := range order {
		s := byFeature[name]
		s.Time = seconds(suiteMs[name])
		doc.Suites = append(doc.Suites, *s)
	}
	return doc
}

// stepTranscript renders the steps as Gherkin lines with their outcome.
func stepTranscript(steps []Step) string {
	var b strings.Builder
	for _, st := range steps {
		fmt.Fprintf(&b, "%-9s %s %s\n", "["+string(st.Status)+"]", st.Keyword, st.Text)
	}
	return b.String()
}

func failureType(scenarios []ScenarioDetail, i int) string {
	if i < len(scenarios) {
		for _, st := range scenarios[i].Steps {
			if st.Error != nil && st.Error.Type != "" {
				return st.Error.Type
			}
			if st.Status == StatusUndefined {
				return "undefined"
			}
		}
	}
	return "failure"
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func seconds(ms int64) string {
	return fmt.Sprintf("%.3f", float64(ms)/1000)
}
