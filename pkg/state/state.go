// Package state carries values between otherwise independent step groups of
// a scenario: a token obtained by an API step, an activity name typed by a
// UI step, a batch id read from the database.
//
// Each scenario gets its own Scenario store through its context, so
// scenarios running in parallel never see each other's values.
package state

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"sync"

	"github.com/devicelab-dev/crm-e2e/pkg/logger"
)

// Well-known keys written by the built-in steps.
const (
	KeyAuthToken      = "authToken"
	KeyUserID         = "userId"
	KeyCompanyID      = "companyId"
	KeyLastStatus     = "lastStatus"
	KeyActivityName   = "activityName"
	KeyActivityID     = "activityId"
	KeyBatchID        = "batchId"
	KeyBulkUploadFile = "bulkUploadFile"
	KeyOTP            = "otp"
)

// Scenario is a concurrency-safe key/value store scoped to one scenario.
type Scenario struct {
	mu     sync.RWMutex
	values map[string]interface{}
	parent *Scenario
	frozen bool
}

// New creates an empty store. parent, when non-nil, is consulted for keys
// the scenario has not set itself and is never written to.
func New(parent *Scenario) *Scenario {
	return &Scenario{values: make(map[string]interface{}), parent: parent}
}

// NewGlobal creates the suite-wide store: it holds values every scenario
// may read (environment, default credentials) and is frozen immediately.
func NewGlobal(values map[string]interface{}) *Scenario {
	g := New(nil)
	for k, v := range values {
		g.values[k] = v
	}
	g.Freeze()
	return g
}

// Freeze makes the store read-only. Later writes are dropped with a warning.
func (s *Scenario) Freeze() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frozen = true
}

// Set stores value under key.
func (s *Scenario) Set(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		logger.Warn("ignoring write of %q to read-only state", key)
		return
	}
	s.values[key] = value
}

// Get returns the value for key.
func (s *Scenario) Get(key string) (interface{}, bool) {
	s.mu.RLock()
	v, ok := s.values[key]
	s.mu.RUnlock()
	if !ok && s.parent != nil {
		return s.parent.Get(key)
	}
	return v, ok
}

// MustGet is Get that fails when key is unset.
func (s *Scenario) MustGet(key string) (interface{}, error) {
	v, ok := s.Get(key)
	if !ok {
		return nil, fmt.Errorf("scenario value %q is not set; an earlier step must save it", key)
	}
	return v, nil
}

// Has reports whether key is set.
func (s *Scenario) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// String returns the value for key formatted as a string, or "" when unset.
func (s *Scenario) String(key string) string {
	v, ok := s.Get(key)
	if !ok || v == nil {
		return ""
	}
	if str, ok := v.(string); ok {
		return str
	}
	return fmt.Sprint(v)
}

// MustString is String that fails when key is unset or empty.
func (s *Scenario) MustString(key string) (string, error) {
	v := s.String(key)
	if v == "" {
		return "", fmt.Errorf("scenario value %q is not set; an earlier step must save it", key)
	}
	return v, nil
}

// Delete removes key from this scenario.
func (s *Scenario) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		return
	}
	delete(s.values, key)
}

// Snapshot returns a copy of all values, parent values included.
func (s *Scenario) Snapshot() map[string]interface{} {
	out := make(map[string]interface{})
	if s.parent != nil {
		for k, v := range s.parent.Snapshot() {
			out[k] = v
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Keys returns the sorted keys of Snapshot.
func (s *Scenario) Keys() []string {
	snap := s.Snapshot()
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var placeholderRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_.]*)\}`)

// Expand replaces ${key} placeholders with stored values. Unknown keys are
// left untouched so a later expansion stage can resolve them.
func (s *Scenario) Expand(text string) string {
	return placeholderRe.ReplaceAllStringFunc(text, func(m string) string {
		key := placeholderRe.FindStringSubmatch(m)[1]
		if v, ok := s.Get(key); ok {
			return fmt.Sprint(v)
		}
		return m
	})
}

type ctxKey struct{}

// NewContext returns ctx carrying s.
func NewContext(ctx context.Context, s *Scenario) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the store carried by ctx, or nil.
func FromContext(ctx context.Context) *Scenario {
	s, _ := ctx.Value(ctxKey{}).(*Scenario)
	return s
}
