// Package dates reads the loosely formatted dates found in uploaded files.
package dates

import (
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/xuri/excelize/v2"
)

// Layout is the canonical date representation
const Layout = "2006-01-02"

// Parse reads a date written in any common layout. Bare five digit integers
// are read as spreadsheet serial dates.
func Parse(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if len(s) == 5 {
		if serial, err := strconv.Atoi(s); err == nil {
			t, err := excelize.ExcelDateToTime(float64(serial), false)
			return t, err == nil
		}
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Format rewrites s as YYYY-MM-DD, or returns "" when it cannot be read
func Format(s string) string {
	t, ok := Parse(s)
	if !ok {
		return ""
	}
	return t.Format(Layout)
}
