package timeutil

import "time"

// DefaultTimezone is used when the configured zone cannot be loaded. All
// scheduling arithmetic happens in one business timezone so a pickup date
// never shifts to a neighboring calendar day across the UTC boundary.
const DefaultTimezone = "America/New_York"

// LoadLocation resolves a timezone name, falling back to DefaultTimezone and
// finally to UTC rather than failing startup.
func LoadLocation(name string) *time.Location {
	if name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	if loc, err := time.LoadLocation(DefaultTimezone); err == nil {
		return loc
	}
	return time.UTC
}

// Today truncates now to business-local midnight.
func Today(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// AddDays returns the calendar date n days after date. AddDate is used rather
// than Add so daylight-saving transitions cannot produce a 23h/25h drift.
func AddDays(date time.Time, n int) time.Time {
	return date.AddDate(0, 0, n)
}

// DayOfWeek returns the Sunday-based weekday index (0-6) of date in the
// business timezone.
func DayOfWeek(date time.Time, loc *time.Location) int {
	return int(date.In(loc).Weekday())
}

// At anchors a clock time onto a calendar date in the business timezone,
// producing an absolute instant.
func At(date time.Time, hour, minute int, loc *time.Location) time.Time {
	local := date.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
}

// SameDate reports whether two instants fall on the same business-local
// calendar day.
func SameDate(a, b time.Time, loc *time.Location) bool {
	al, bl := a.In(loc), b.In(loc)
	return al.Year() == bl.Year() && al.YearDay() == bl.YearDay()
}
