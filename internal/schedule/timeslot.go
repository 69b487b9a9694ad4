package schedule

import (
	"fmt"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time within the business timezone.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// DefaultSlotStart is used when a time-slot label is missing or cannot be
// parsed. The rollover job must keep running on bad display strings.
var DefaultSlotStart = TimeOfDay{Hour: 9, Minute: 0}

// String renders the 24-hour "15:04" form stored on subscriptions.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

var slotStartLayouts = []string{"3:04 PM", "3:04PM", "3 PM", "3PM", "15:04"}

// ParseTimeSlotStart extracts the start time from a display label like
// "12:00 PM – 2:00 PM". The second return reports whether the label parsed;
// on failure the default slot start is returned instead of an error.
func ParseTimeSlotStart(label string) (TimeOfDay, bool) {
	start := label
	for _, sep := range []string{"–", "—", " - ", "-"} {
		if idx := strings.Index(start, sep); idx >= 0 {
			start = start[:idx]
			break
		}
	}
	start = strings.TrimSpace(start)
	if start == "" {
		return DefaultSlotStart, false
	}

	for _, layout := range slotStartLayouts {
		if parsed, err := time.Parse(layout, strings.ToUpper(start)); err == nil {
			return TimeOfDay{Hour: parsed.Hour(), Minute: parsed.Minute()}, true
		}
	}
	return DefaultSlotStart, false
}

// ParseClock reads the cached "15:04" form back into a TimeOfDay, falling
// back to the default when the stored value is malformed.
func ParseClock(value string) TimeOfDay {
	parsed, err := time.Parse("15:04", strings.TrimSpace(value))
	if err != nil {
		return DefaultSlotStart
	}
	return TimeOfDay{Hour: parsed.Hour(), Minute: parsed.Minute()}
}
