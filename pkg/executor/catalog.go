package executor

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/cucumber/godog"
	gherkin "github.com/cucumber/gherkin/go/v26"
	messages "github.com/cucumber/messages/go/v21"
)

// featureCatalog resolves what pickles do not carry: the feature title and
// the keyword (And, But, ...) each step was written with.
type featureCatalog struct {
	names    map[string]string            // uri -> feature name
	keywords map[string]map[string]string // uri -> step AST id -> keyword
}

// loadCatalog parses the features the way godog does. AST ids come from one
// incrementing generator per source kind, so parsing the same inputs in the
// same order yields the ids godog puts into pickle steps.
func loadCatalog(paths []string, contents []godog.Feature, tags string) (*featureCatalog, error) {
	c := &featureCatalog{
		names:    map[string]string{},
		keywords: map[string]map[string]string{},
	}

	if len(contents) > 0 {
		newID := (&messages.Incrementing{}).NewId
		for _, f := range contents {
			doc, err := gherkin.ParseGherkinDocument(bytes.NewReader(f.Contents), newID)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", f.Name, err)
			}
			doc.Uri = f.Name
			// Pickle ids are drawn from the same generator.
			gherkin.Pickles(*doc, f.Name, newID)
			c.add(doc)
		}
	}

	// Without paths godog falls back to ./features only when no contents
	// were given.
	if len(paths) > 0 || len(contents) == 0 {
		suite := godog.TestSuite{Options: &godog.Options{Paths: paths, Tags: tags}}
		features, err := suite.RetrieveFeatures()
		if err != nil {
			return nil, err
		}
		for _, ft := range features {
			c.add(ft.GherkinDocument)
		}
	}
	return c, nil
}

func (c *featureCatalog) add(doc *messages.GherkinDocument) {
	if doc == nil || doc.Feature == nil {
		return
	}
	if _, ok := c.names[doc.Uri]; ok {
		return
	}
	c.names[doc.Uri] = doc.Feature.Name

	kw := map[string]string{}
	addSteps := func(list []*messages.Step) {
		for _, st := range list {
			kw[st.Id] = strings.TrimSpace(st.Keyword)
		}
	}
	for _, child := range doc.Feature.Children {
		switch {
		case child.Background != nil:
			addSteps(child.Background.Steps)
		case child.Scenario != nil:
			addSteps(child.Scenario.Steps)
		case child.Rule != nil:
			for _, rc := range child.Rule.Children {
				if rc.Background != nil {
					addSteps(rc.Background.Steps)
				}
				if rc.Scenario != nil {
					addSteps(rc.Scenario.Steps)
				}
			}
		}
	}
	c.keywords[doc.Uri] = kw
}

// featureName returns the title of the feature at uri, or uri itself.
func (c *featureCatalog) featureName(uri string) string {
	if name := c.names[uri]; name != "" {
		return name
	}
	return uri
}

// keyword returns the keyword step was written with. Unknown steps fall
// back to the keyword implied by the step type.
func (c *featureCatalog) keyword(uri string, step *godog.Step) string {
	if len(step.AstNodeIds) > 0 {
		if kw := c.keywords[uri][step.AstNodeIds[0]]; kw != "" {
			return kw
		}
	}
	switch step.Type {
	case messages.PickleStepType_CONTEXT:
		return "Given"
	case messages.PickleStepType_ACTION:
		return "When"
	case messages.PickleStepType_OUTCOME:
		return "Then"
	}
	return "*"
}
