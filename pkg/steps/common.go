package steps

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/devicelab-dev/crm-e2e/pkg/core"
	"github.com/devicelab-dev/crm-e2e/pkg/dataset"
	"github.com/devicelab-dev/crm-e2e/pkg/logger"
)

// TestCaseColumn is the key column of test data sheets.
const TestCaseColumn = "Test Case ID"

func registerCommon(r *Registry) {
	r.Add(GroupCommon, `I set "(.*)" to "(.*)"`, setValue)
	r.Add(GroupCommon, `I wait (\d+) seconds?`, waitSeconds)
	r.Add(GroupCommon, `the value "(.*)" should (equal|contain) "(.*)"`, valueShould)
	r.Add(GroupCommon, `I load test data "(.*)" sheet "(.*)" row "(.*)"`, loadTestData)
	r.Add(GroupCommon, `I assert all soft assertions`, assertSoft)
}

func setValue(ctx context.Context, key, value string) error {
	FromContext(ctx).State.Set(key, value)
	return nil
}

func waitSeconds(ctx context.Context, n int) error {
	select {
	case <-time.After(time.Duration(n) * time.Second):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// compare checks actual against expected with op "equal" or "contain".
func compare(what, actual, op, expected string) error {
	ok := actual == expected
	if op == "contain" {
		ok = strings.Contains(actual, expected)
	}
	if ok {
		return nil
	}
	return core.ErrTextMismatch.WithMessage(fmt.Sprintf("%s: expected to %s %q, got %q", what, op, expected, actual))
}

func valueShould(ctx context.Context, actual, op, expected string) error {
	return compare("value", actual, op, expected)
}

var nonIdent = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// dataKey turns a sheet header into a state key: "Test Case ID" -> "TestCaseID".
func dataKey(header string) string {
	return nonIdent.ReplaceAllString(header, "")
}

// loadTestData stores every column of the row whose Test Case ID is id.
// An empty file means the workbook named by testData in the workspace
// config; relative paths are resolved next to it.
func loadTestData(ctx context.Context, file, sheet, id string) error {
	w := FromContext(ctx)
	path := w.testDataPath(file)
	if path == "" {
		return core.ErrMissingRequired.WithMessage("no test data workbook given and testData is not configured")
	}

	wb, err := dataset.Open(path)
	if err != nil {
		return err
	}
	defer wb.Close()

	row, err := wb.Lookup(sheet, TestCaseColumn, id)
	if err != nil {
		return err
	}
	for header, v := range row {
		if k := dataKey(header); k != "" {
			w.State.Set(k, v)
		}
	}
	logger.Debug("[%s] loaded test data %s!%s row %s (%d columns)", w.ID, filepath.Base(path), sheet, id, len(row))
	return nil
}

func (w *World) testDataPath(file string) string {
	configured := w.opts.Config.TestData
	if file == "" {
		return configured
	}
	if filepath.IsAbs(file) || configured == "" {
		return file
	}
	return filepath.Join(filepath.Dir(configured), file)
}

func assertSoft(ctx context.Context) error {
	w := FromContext(ctx)
	err := w.Soft.Err()
	w.Soft.Reset()
	return err
}
