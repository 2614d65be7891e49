package rules

import (
	"strings"
	"time"
)

// dateLayouts are tried in order; the first successful parse wins. Day-first
// forms precede month-first ones, so "03/04/2020" is 3 April.
var dateLayouts = []string{
	time.DateOnly,
	"2/1/2006",
	"2-1-2006",
	"2.1.2006",
	"1/2/2006",
	"2006/01/02",
	"2006.01.02",
	"20060102",
	"2/1/06",
	"2-1-06",
	"2.1.06",
	"2 Jan 2006",
	"2 January 2006",
	"2-Jan-2006",
	"2-Jan-06",
	"Jan 2, 2006",
	"January 2, 2006",
	time.RFC3339,
	time.DateTime,
	"2006-01-02T15:04:05",
}

// Low Unicode shapes that look like dates.
var dateShapes = map[string]bool{
	"9-9-9":           true,
	"9_9_9":           true,
	"9.9.9":           true,
	"9 Aa 9":          true,
	"9-Aa-9":          true,
	"Aa 9, 9":         true,
	"9-9-9A9_9_9":     true,
	"9-9-9A9_9_9A":    true,
	"9-9-9A9_9_9.9A":  true,
	"9-9-9A9_9_9_9_9": true,
	"9-9-9A9_9_9-9_9": true,
	"9-9-9 9_9_9":     true,
}

func dateShape(lu, raw string) bool {
	if lu == "9" {
		return len(strings.TrimSpace(raw)) == 8
	}
	return dateShapes[lu]
}

// ParseDate parses s against the known layouts.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// dobShape matches "99?99?9999" where ? is one of _ - or .
func dobShape(hu string) bool {
	if len(hu) != 10 {
		return false
	}
	for i := 0; i < len(hu); i++ {
		c := hu[i]
		switch i {
		case 2, 5:
			if c != '_' && c != '-' && c != '.' {
				return false
			}
		default:
			if c != '9' {
				return false
			}
		}
	}
	return true
}

// SensibleDOB reports whether d lies between 127 years before now and now,
// both ends inclusive, compared by calendar date.
func SensibleDOB(d, now time.Time) bool {
	day := func(t time.Time) time.Time {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
	d, today := day(d), day(now)
	earliest := today.AddDate(-127, 0, 0)
	return !d.Before(earliest) && !d.After(today)
}
