package core

import (
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// Layouts accepted for dates without an explicit zone, tried in order.
var naiveLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"02/01/2006",
	"02/01/2006 15:04",
	"2/1/2006",
}

// Spreadsheet serial numbers outside this range are not treated as dates.
const (
	minSerialDay = 1
	maxSerialDay = 2958465 // 9999-12-31
)

// ParseDate parses the text date formats found in forms, stored records and
// spreadsheets. Values without a zone are interpreted in loc; a nil loc
// means time.Local. Bare numbers are rejected; see ParseCellDate.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrInvalidDate
	}

	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrInvalidDate
}

// ParseCellDate parses the date of a raw spreadsheet cell, which is either
// text accepted by ParseDate or a day serial number.
func ParseCellDate(s string, loc *time.Location) (time.Time, error) {
	if t, err := ParseDate(s, loc); err == nil {
		return t, nil
	}
	if loc == nil {
		loc = time.Local
	}
	serial, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || serial < minSerialDay || serial > maxSerialDay {
		return time.Time{}, ErrInvalidDate
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	// The serial is a wall-clock value; keep the fields and attach loc.
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc), nil
}

// FormatDay renders the calendar day of t in loc as YYYY-MM-DD.
func FormatDay(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(time.DateOnly)
}
