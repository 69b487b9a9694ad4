package enums

import "fmt"

// Frequency is the cadence class of a recurring pickup.
type Frequency string

const (
	FrequencyWeekly    Frequency = "weekly"
	FrequencyBiweekly  Frequency = "biweekly"
	FrequencyTriweekly Frequency = "triweekly"
)

var validFrequencies = []Frequency{
	FrequencyWeekly,
	FrequencyBiweekly,
	FrequencyTriweekly,
}

// String implements fmt.Stringer.
func (f Frequency) String() string {
	return string(f)
}

// IsValid reports whether the value is known.
func (f Frequency) IsValid() bool {
	for _, candidate := range validFrequencies {
		if candidate == f {
			return true
		}
	}
	return false
}

// CycleDays returns the fixed number of days between consecutive pickups.
func (f Frequency) CycleDays() int {
	switch f {
	case FrequencyBiweekly:
		return 14
	case FrequencyTriweekly:
		return 21
	default:
		return 7
	}
}

// MinLeadDays returns the minimum distance of the first pickup after a
// schedule (re)computation. Weekly may pick the very next occurrence of the
// preferred day; longer cadences must respect their spacing.
func (f Frequency) MinLeadDays() int {
	switch f {
	case FrequencyBiweekly:
		return 7
	case FrequencyTriweekly:
		return 14
	default:
		return 0
	}
}

// ParseFrequency converts raw input into a Frequency.
func ParseFrequency(value string) (Frequency, error) {
	for _, candidate := range validFrequencies {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid frequency %q", value)
}

// FrequencyFromIntervalCount maps the commerce platform's billing interval
// count onto a cadence. Unknown counts report ok=false so the caller can log
// the fallback to weekly.
func FrequencyFromIntervalCount(count int) (Frequency, bool) {
	switch count {
	case 1:
		return FrequencyWeekly, true
	case 2:
		return FrequencyBiweekly, true
	case 3:
		return FrequencyTriweekly, true
	default:
		return FrequencyWeekly, false
	}
}
