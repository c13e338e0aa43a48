package dataset

import (
	"errors"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// writeTestData creates a workbook shaped like the suite's test data file.
func writeTestData(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "TestData.xlsx")

	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetName("Sheet1", "Login"))
	rows := [][]interface{}{
		{" Test Case ID ", "Username", "Password", "Expected"},
		{"TC_LOGIN_01", "qa.admin", "Secret@123", "Dashboard"},
		{"", "", "", ""},
		{"TC_LOGIN_02", "qa.admin", "wrong", "Invalid username or password"},
		{"TC_LOGIN_03", "locked.user"},
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Login", cell, &r))
	}
	_, err := f.NewSheet("Outlets")
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow("Outlets", "A1", &[]interface{}{"Outlet Code", "Outlet Name", "Created On"}))
	require.NoError(t, f.SetSheetRow("Outlets", "A2", &[]interface{}{"OUT-{{RANDOM:4}}", "${prefix} Store", "{{TODAY}}"}))
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestWorkbook_Sheet(t *testing.T) {
	wb, err := Open(writeTestData(t))
	require.NoError(t, err)
	defer wb.Close()

	assert.Equal(t, []string{"Login", "Outlets"}, wb.Sheets())

	rows, err := wb.Sheet("Login")
	require.NoError(t, err)
	require.Len(t, rows, 3, "blank rows are skipped")
	assert.Equal(t, "TC_LOGIN_01", rows[0]["Test Case ID"], "headers are trimmed")
	assert.Equal(t, "", rows[2]["Password"], "short rows are padded")

	_, err = wb.Sheet("Missing")
	assert.ErrorContains(t, err, `no sheet "Missing"`)
}

func TestWorkbook_Lookup(t *testing.T) {
	wb, err := Open(writeTestData(t))
	require.NoError(t, err)
	defer wb.Close()

	row, err := wb.Lookup("Login", "test case id", "tc_login_02")
	require.NoError(t, err)
	assert.Equal(t, "wrong", row.Get("password"))
	assert.Equal(t, "Invalid username or password", row.Get("Expected"))

	_, err = wb.Lookup("Login", "Test Case ID", "TC_LOGIN_99")
	assert.True(t, errors.Is(err, ErrRowNotFound))
}

func TestExpandTokens(t *testing.T) {
	now := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)

	assert.Equal(t, "19/10/2026", ExpandTokens("{{TODAY}}", now))
	assert.Regexp(t, `^OUT-\d{6}$`, ExpandTokens("OUT-{{RANDOM}}", now))
	assert.Regexp(t, `^\d{3}-\d{3}$`, ExpandTokens("{{RANDOM:3}}-{{RANDOM:3}}", now))
	assert.Equal(t, "{{UNKNOWN}} ${x}", ExpandTokens("{{UNKNOWN}} ${x}", now))
}

func TestWriteBulkUpload(t *testing.T) {
	wb, err := Open(writeTestData(t))
	require.NoError(t, err)
	defer wb.Close()

	tbl, err := wb.Table("Outlets")
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "uploads", "outlets.xlsx")
	expand := func(s string) string { return strings.ReplaceAll(s, "${prefix}", "QA") }
	written, err := WriteBulkUpload(out, "Outlet Master", tbl.Headers, tbl.Rows, expand)
	require.NoError(t, err)
	require.Len(t, written, 1)
	assert.Regexp(t, regexp.MustCompile(`^OUT-\d{4}$`), written[0]["Outlet Code"])
	assert.Equal(t, "QA Store", written[0]["Outlet Name"])

	back, err := Open(out)
	require.NoError(t, err)
	defer back.Close()
	assert.Equal(t, []string{"Outlet Master"}, back.Sheets())

	reread, err := back.Table("Outlet Master")
	require.NoError(t, err)
	assert.Equal(t, tbl.Headers, reread.Headers)
	assert.Equal(t, written, reread.Rows)
}

func TestWriteBulkUpload_NoHeaders(t *testing.T) {
	_, err := WriteBulkUpload(filepath.Join(t.TempDir(), "x.xlsx"), "", nil, nil, nil)
	assert.Error(t, err)
}
