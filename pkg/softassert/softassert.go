// Package softassert collects several validation failures before reporting
// them together, so one scenario can check every field of a record.
package softassert

import (
	"fmt"
	"strings"
	"sync"

	"github.com/stretchr/testify/assert"

	"github.com/devicelab-dev/crm-e2e/pkg/core"
)

// Asserter records failures without stopping the scenario.
type Asserter struct {
	name     string
	mu       sync.Mutex
	failures []string
}

// New creates an asserter; name prefixes the combined error.
func New(name string) *Asserter {
	return &Asserter{name: name}
}

func (a *Asserter) fail(label, format string, args ...interface{}) bool {
	msg := fmt.Sprintf(format, args...)
	if label != "" {
		msg = label + ": " + msg
	}
	a.mu.Lock()
	a.failures = append(a.failures, msg)
	a.mu.Unlock()
	return false
}

// Equal checks expected == actual. Strings are compared after trimming space;
// other values with testify's ObjectsAreEqual, falling back to their string forms
// when the types differ (42 vs "42").
func (a *Asserter) Equal(label string, expected, actual interface{}) bool {
	if equal(expected, actual) {
		return true
	}
	return a.fail(label, "expected %q, got %q", fmt.Sprint(expected), fmt.Sprint(actual))
}

func equal(expected, actual interface{}) bool {
	es, eok := expected.(string)
	as, aok := actual.(string)
	if eok && aok {
		return strings.TrimSpace(es) == strings.TrimSpace(as)
	}
	if assert.ObjectsAreEqual(expected, actual) {
		return true
	}
	return strings.TrimSpace(fmt.Sprint(expected)) == strings.TrimSpace(fmt.Sprint(actual))
}

// Contains checks that s contains substr.
func (a *Asserter) Contains(label, s, substr string) bool {
	if strings.Contains(s, substr) {
		return true
	}
	return a.fail(label, "%q does not contain %q", s, substr)
}

// True checks cond.
func (a *Asserter) True(label string, cond bool, msg string) bool {
	if cond {
		return true
	}
	return a.fail(label, "%s", msg)
}

// NotEmpty checks that s has non-space content.
func (a *Asserter) NotEmpty(label, s string) bool {
	if strings.TrimSpace(s) != "" {
		return true
	}
	return a.fail(label, "value is empty")
}

// NoError checks err is nil.
func (a *Asserter) NoError(label string, err error) bool {
	if err == nil {
		return true
	}
	return a.fail(label, "%v", err)
}

// Len returns the number of recorded failures.
func (a *Asserter) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.failures)
}

// Failures returns a copy of the recorded messages.
func (a *Asserter) Failures() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.failures...)
}

// Err returns nil when nothing failed, otherwise a single error listing
// every failure. It wraps core.ErrSoftAssertions.
func (a *Asserter) Err() error {
	failures := a.Failures()
	if len(failures) == 0 {
		return nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d soft assertion(s) failed", len(failures))
	if a.name != "" {
		fmt.Fprintf(&sb, " in %s", a.name)
	}
	for i, f := range failures {
		fmt.Fprintf(&sb, "\n  %d. %s", i+1, f)
	}
	return core.ErrSoftAssertions.WithMessage(sb.String())
}

// Reset clears recorded failures.
func (a *Asserter) Reset() {
	a.mu.Lock()
	a.failures = nil
	a.mu.Unlock()
}
