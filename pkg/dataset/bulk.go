package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/devicelab-dev/crm-e2e/pkg/jsengine"
)

// Tokens expanded in bulk upload cells:
//
//	{{RANDOM}}    six random digits, different in every cell
//	{{RANDOM:n}}  n random digits
//	{{TODAY}}     today's date as dd/MM/yyyy
//	${NAME}       scenario variable, resolved by the expand function
var tokenRe = regexp.MustCompile(`\{\{(RANDOM(?::(\d+))?|TODAY)\}\}`)

// ExpandTokens replaces the {{...}} tokens in s.
func ExpandTokens(s string, now time.Time) string {
	return tokenRe.ReplaceAllStringFunc(s, func(m string) string {
		sub := tokenRe.FindStringSubmatch(m)
		if sub[1] == "TODAY" {
			return jsengine.FormatDate(now, "dd/MM/yyyy")
		}
		n := 6
		if v, err := strconv.Atoi(sub[2]); err == nil && v > 0 {
			n = v
		}
		return jsengine.RandomDigits(n)
	})
}

// WriteBulkUpload writes a single-sheet workbook in the layout the bulk
// upload screen expects: a bold header row followed by rows in header
// order. Cell values go through ExpandTokens, then expand (when not nil).
// The expanded rows are returned so a scenario can remember what it
// uploaded.
func WriteBulkUpload(path, sheet string, headers []string, rows []Row, expand func(string) string) ([]Row, error) {
	if len(headers) == 0 {
		return nil, fmt.Errorf("bulk upload %s: no headers", path)
	}
	if sheet == "" {
		sheet = "Sheet1"
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("bulk upload %s: %w", path, err)
	}

	header := make([]interface{}, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("bulk upload %s: header: %w", path, err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		_ = f.SetRowStyle(sheet, 1, 1, bold)
	}

	now := time.Now()
	written := make([]Row, 0, len(rows))
	for i, r := range rows {
		out := Row{}
		cells := make([]interface{}, len(headers))
		for j, h := range headers {
			v := ExpandTokens(r.Get(h), now)
			if expand != nil {
				v = expand(v)
			}
			out[h] = v
			cells[j] = v
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
			return nil, fmt.Errorf("bulk upload %s: row %d: %w", path, i+1, err)
		}
		written = append(written, out)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if err := f.SaveAs(path); err != nil {
		return nil, fmt.Errorf("save bulk upload %s: %w", path, err)
	}
	return written, nil
}
