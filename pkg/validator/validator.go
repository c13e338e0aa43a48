// Package validator checks feature files before execution.
// It parses every file upfront, applies the tag filters and reports steps
// no definition (or more than one) matches.
package validator

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	gherkin "github.com/cucumber/gherkin/go/v26"
	messages "github.com/cucumber/messages/go/v21"

	"github.com/devicelab-dev/crm-e2e/pkg/steps"
)

// ValidationError represents a validation error with context.
type ValidationError struct {
	File    string
	Line    int
	Message string
}

func (e *ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

// StepRef locates a step in a feature file.
type StepRef struct {
	File     string
	Line     int
	Scenario string
	Keyword  string
	Text     string
	Matches  []string // patterns, for ambiguous steps
}

// Result contains the validation result.
type Result struct {
	// Files is the list of feature files that contributed scenarios.
	Files     []string
	Features  int
	Scenarios int // after tag filtering, outline examples expanded
	Steps     int

	Undefined []StepRef
	Ambiguous []StepRef

	// Errors contains all validation errors found.
	Errors []error
}

// IsValid returns true if there are no validation errors.
func (r *Result) IsValid() bool {
	return len(r.Errors) == 0
}

// Matcher returns the step definitions matching a step text.
type Matcher interface {
	Matching(text string) []steps.Definition
}

// Validator validates feature files.
type Validator struct {
	matcher     Matcher
	includeTags []string
	excludeTags []string
}

// New creates a new Validator. A scenario is kept when it carries any of
// includeTags (or includeTags is empty) and none of excludeTags.
func New(matcher Matcher, includeTags, excludeTags []string) *Validator {
	return &Validator{
		matcher:     matcher,
		includeTags: normalizeTags(includeTags),
		excludeTags: normalizeTags(excludeTags),
	}
}

// Validate validates feature files and directories.
func (v *Validator) Validate(paths ...string) *Result {
	result := &Result{}

	for _, path := range paths {
		files, err := collectFeatureFiles(path)
		if err != nil {
			result.Errors = append(result.Errors, &ValidationError{
				File:    path,
				Message: fmt.Sprintf("cannot access: %v", err),
			})
			continue
		}
		for _, file := range files {
			v.validateFile(file, result)
		}
	}
	return result
}

// collectFeatureFiles returns path itself or the .feature files below it.
func collectFeatureFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(p), ".feature") {
			files = append(files, p)
		}
		return nil
	})
	return files, err
}

func (v *Validator) validateFile(file string, result *Result) {
	data, err := os.ReadFile(file) //#nosec G304 -- user-selected feature file
	if err != nil {
		result.Errors = append(result.Errors, &ValidationError{File: file, Message: err.Error()})
		return
	}

	newID := (&messages.Incrementing{}).NewId
	doc, err := gherkin.ParseGherkinDocument(bytes.NewReader(data), newID)
	if err != nil {
		result.Errors = append(result.Errors, &ValidationError{
			File:    file,
			Message: fmt.Sprintf("parse error: %v", err),
		})
		return
	}
	if doc.Feature == nil {
		return
	}
	astSteps := indexSteps(doc.Feature)

	var kept int
	for _, pickle := range gherkin.Pickles(*doc, file, newID) {
		if !v.include(pickle.Tags) {
			continue
		}
		kept++
		result.Scenarios++

		if len(pickle.Steps) == 0 {
			result.Errors = append(result.Errors, &ValidationError{
				File:    file,
				Message: fmt.Sprintf("scenario %q has no steps", pickle.Name),
			})
			continue
		}
		for _, st := range pickle.Steps {
			result.Steps++
			v.checkStep(file, pickle.Name, st, astSteps, result)
		}
	}

	if kept > 0 {
		result.Features++
		result.Files = append(result.Files, file)
	}
}

func (v *Validator) checkStep(file, scenario string, st *messages.PickleStep, astSteps map[string]*messages.Step, result *Result) {
	if v.matcher == nil {
		return
	}
	ref := StepRef{File: file, Scenario: scenario, Text: st.Text}
	if len(st.AstNodeIds) > 0 {
		if ast := astSteps[st.AstNodeIds[0]]; ast != nil {
			ref.Keyword = strings.TrimSpace(ast.Keyword)
			if ast.Location != nil {
				ref.Line = int(ast.Location.Line)
			}
		}
	}

	matches := v.matcher.Matching(st.Text)
	switch {
	case len(matches) == 0:
		result.Undefined = append(result.Undefined, ref)
		result.Errors = append(result.Errors, &ValidationError{
			File:    file,
			Line:    ref.Line,
			Message: fmt.Sprintf("undefined step: %s %s", ref.Keyword, st.Text),
		})
	case len(matches) > 1:
		for _, m := range matches {
			ref.Matches = append(ref.Matches, m.Pattern)
		}
		result.Ambiguous = append(result.Ambiguous, ref)
		result.Errors = append(result.Errors, &ValidationError{
			File:    file,
			Line:    ref.Line,
			Message: fmt.Sprintf("ambiguous step %q matches %s", st.Text, strings.Join(ref.Matches, " | ")),
		})
	}
}

// include applies the include/exclude tag lists to a scenario's tags.
func (v *Validator) include(tags []*messages.PickleTag) bool {
	has := make(map[string]bool, len(tags))
	for _, t := range tags {
		has[t.Name] = true
	}
	for _, t := range v.excludeTags {
		if has[t] {
			return false
		}
	}
	if len(v.includeTags) == 0 {
		return true
	}
	for _, t := range v.includeTags {
		if has[t] {
			return true
		}
	}
	return false
}

// indexSteps maps AST step ids to their steps.
func indexSteps(feature *messages.Feature) map[string]*messages.Step {
	out := map[string]*messages.Step{}
	add := func(list []*messages.Step) {
		for _, st := range list {
			out[st.Id] = st
		}
	}
	for _, child := range feature.Children {
		if child.Background != nil {
			add(child.Background.Steps)
		}
		if child.Scenario != nil {
			add(child.Scenario.Steps)
		}
		if child.Rule != nil {
			for _, rc := range child.Rule.Children {
				if rc.Background != nil {
					add(rc.Background.Steps)
				}
				if rc.Scenario != nil {
					add(rc.Scenario.Steps)
				}
			}
		}
	}
	return out
}

// normalizeTags trims tags and adds the leading "@". Tags are matched
// case-sensitively, as godog does.
func normalizeTags(tags []string) []string {
	var out []string
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if !strings.HasPrefix(t, "@") {
			t = "@" + t
		}
		out = append(out, t)
	}
	return out
}

// TagExpression combines include/exclude lists with a godog tag filter.
// godog splits on "&&" first and then on ",", so includes are OR-ed with
// commas and every exclude becomes its own "~@tag" term.
//
//	TagExpression("@smoke", []string{"api", "ui"}, []string{"wip"})
//	// "@smoke && @api,@ui && ~@wip"
func TagExpression(expr string, include, exclude []string) string {
	var parts []string
	if expr = strings.TrimSpace(expr); expr != "" {
		parts = append(parts, expr)
	}
	if inc := normalizeTags(include); len(inc) > 0 {
		parts = append(parts, strings.Join(inc, ","))
	}
	for _, t := range normalizeTags(exclude) {
		parts = append(parts, "~"+t)
	}
	return strings.Join(parts, " && ")
}
