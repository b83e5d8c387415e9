package remote

import (
	"path"
	"strings"
	"time"
)

// DateStrings formats from, and when rangeToToday is set every following day
// through today, with layout. from is always included, even when it is after
// today.
func DateStrings(from time.Time, layout string, rangeToToday bool, today time.Time) []string {
	day := truncateDay(from)
	last := truncateDay(today)

	dates := []string{day.Format(layout)}
	if !rangeToToday {
		return dates
	}
	for {
		day = day.AddDate(0, 0, 1)
		if day.After(last) {
			return dates
		}
		dates = append(dates, day.Format(layout))
	}
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Select returns, for each date in order, the names that contain the date as
// a substring. A name matching several dates is returned once per date.
func Select(names []string, dates []string) []string {
	selected := []string{}
	for _, date := range dates {
		for _, name := range names {
			if strings.Contains(name, date) {
				selected = append(selected, name)
			}
		}
	}
	return selected
}

// baseNames strips any directory prefix some servers put on listing entries
func baseNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		base := path.Base(name)
		if base == "." || base == "/" || base == ".." {
			continue
		}
		out = append(out, base)
	}
	return out
}
