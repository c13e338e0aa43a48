// Package dataset reads Excel test data and writes bulk upload workbooks.
//
// Test data sheets have a header row; each following non-blank row becomes
// a Row keyed by header. Scenarios pick a row by a key column, usually
// "Test Case ID".
package dataset

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrRowNotFound is returned by Lookup when no row matches.
var ErrRowNotFound = errors.New("no matching test data row")

// Row is one data row keyed by trimmed header.
type Row map[string]string

// Get returns the value under header, matching the header case-insensitively.
func (r Row) Get(header string) string {
	if v, ok := r[header]; ok {
		return v
	}
	for k, v := range r {
		if strings.EqualFold(k, strings.TrimSpace(header)) {
			return v
		}
	}
	return ""
}

// Table is a sheet with its header order preserved.
type Table struct {
	Headers []string
	Rows    []Row
}

// Workbook is an open Excel file.
type Workbook struct {
	path string
	f    *excelize.File
}

// Open opens an .xlsx workbook.
func Open(path string) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open test data %s: %w", path, err)
	}
	return &Workbook{path: path, f: f}, nil
}

// Close releases the workbook.
func (w *Workbook) Close() error {
	return w.f.Close()
}

// Sheets lists the sheet names in workbook order.
func (w *Workbook) Sheets() []string {
	return w.f.GetSheetList()
}

// Table reads a whole sheet.
func (w *Workbook) Table(sheet string) (*Table, error) {
	if idx, err := w.f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, fmt.Errorf("%s: no sheet %q (have %s)", w.path, sheet, strings.Join(w.Sheets(), ", "))
	}
	raw, err := w.f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%s: read sheet %q: %w", w.path, sheet, err)
	}
	if len(raw) == 0 {
		return &Table{}, nil
	}

	t := &Table{Headers: make([]string, len(raw[0]))}
	for i, h := range raw[0] {
		t.Headers[i] = strings.TrimSpace(h)
	}
	for _, cells := range raw[1:] {
		row := Row{}
		blank := true
		for i, h := range t.Headers {
			if h == "" {
				continue
			}
			v := ""
			if i < len(cells) {
				v = strings.TrimSpace(cells[i])
			}
			if v != "" {
				blank = false
			}
			row[h] = v
		}
		if !blank {
			t.Rows = append(t.Rows, row)
		}
	}
	return t, nil
}

// Sheet reads the data rows of a sheet.
func (w *Workbook) Sheet(name string) ([]Row, error) {
	t, err := w.Table(name)
	if err != nil {
		return nil, err
	}
	return t.Rows, nil
}

// Lookup returns the first row of sheet whose key column equals value
// (case-insensitive).
func (w *Workbook) Lookup(sheet, key, value string) (Row, error) {
	rows, err := w.Sheet(sheet)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		if strings.EqualFold(r.Get(key), strings.TrimSpace(value)) {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: %s!%s = %q", ErrRowNotFound, sheet, key, value)
}
