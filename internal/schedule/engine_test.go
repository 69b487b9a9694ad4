package schedule

import (
	"math"
	"testing"
	"time"

	"github.com/meadowlane/pickups-backend/pkg/enums"
	"github.com/meadowlane/pickups-backend/pkg/timeutil"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(timeutil.LoadLocation("America/New_York"))
}

// 2026-03-04 is a Wednesday in New York.
func testWednesday(e *Engine) time.Time {
	return time.Date(2026, 3, 4, 10, 0, 0, 0, e.Location())
}

func TestNextPickupFromToday_NeverReturnsToday(t *testing.T) {
	e := testEngine(t)
	now := testWednesday(e)

	// Preferred day is today's weekday: weekly waits a full week.
	got, err := e.NextPickupFromToday(now, 3, enums.FrequencyWeekly)
	if err != nil {
		t.Fatalf("NextPickupFromToday: %v", err)
	}
	if got.Day() != 11 || got.Month() != time.March {
		t.Fatalf("expected 2026-03-11, got %s", got)
	}
}

func TestNextPickupFromToday_PreferredDayBehindInWeek(t *testing.T) {
	e := testEngine(t)
	now := testWednesday(e)

	// Tuesday preference on a Wednesday: next Tuesday, six days out.
	got, err := e.NextPickupFromToday(now, 2, enums.FrequencyWeekly)
	if err != nil {
		t.Fatalf("NextPickupFromToday: %v", err)
	}
	if got.Day() != 10 {
		t.Fatalf("expected 2026-03-10, got %s", got)
	}
	if timeutil.DayOfWeek(got, e.Location()) != 2 {
		t.Fatalf("expected a Tuesday, got %s", got.Weekday())
	}
}

func TestNextPickupFromToday_TriweeklySameDayIsFourteenOut(t *testing.T) {
	e := testEngine(t)
	now := testWednesday(e)

	got, err := e.NextPickupFromToday(now, 3, enums.FrequencyTriweekly)
	if err != nil {
		t.Fatalf("NextPickupFromToday: %v", err)
	}
	if got.Day() != 18 {
		t.Fatalf("expected 2026-03-18 (14 days out), got %s", got)
	}
}

func TestNextPickupFromToday_BiweeklyEnforcesSpacing(t *testing.T) {
	e := testEngine(t)
	now := testWednesday(e)

	// Friday preference two days out gets pushed a week.
	got, err := e.NextPickupFromToday(now, 5, enums.FrequencyBiweekly)
	if err != nil {
		t.Fatalf("NextPickupFromToday: %v", err)
	}
	if got.Day() != 13 {
		t.Fatalf("expected 2026-03-13, got %s", got)
	}
}

func TestNextPickupFromToday_MinimumSpacingHoldsForAllDays(t *testing.T) {
	e := testEngine(t)
	cases := []struct {
		freq enums.Frequency
		min  int
		max  int
	}{
		{enums.FrequencyWeekly, 1, 7},
		{enums.FrequencyBiweekly, 7, 14},
		{enums.FrequencyTriweekly, 14, 21},
	}
	for dayOffset := 0; dayOffset < 7; dayOffset++ {
		now := testWednesday(e).AddDate(0, 0, dayOffset)
		today := e.Today(now)
		for preferred := 0; preferred <= 6; preferred++ {
			for _, tc := range cases {
				got, err := e.NextPickupFromToday(now, preferred, tc.freq)
				if err != nil {
					t.Fatalf("NextPickupFromToday(%s, day=%d): %v", tc.freq, preferred, err)
				}
				// Rounded because a DST transition shortens one day in March.
				days := int(math.Round(got.Sub(today).Hours() / 24))
				if days < tc.min || days > tc.max {
					t.Fatalf("%s day=%d today=%s: %d days out, want %d-%d",
						tc.freq, preferred, today.Weekday(), days, tc.min, tc.max)
				}
				if timeutil.DayOfWeek(got, e.Location()) != preferred {
					t.Fatalf("%s day=%d: landed on %s", tc.freq, preferred, got.Weekday())
				}
			}
		}
	}
}

func TestNextPickupFromToday_RejectsBadDay(t *testing.T) {
	e := testEngine(t)
	if _, err := e.NextPickupFromToday(testWednesday(e), 7, enums.FrequencyWeekly); err == nil {
		t.Fatal("expected error for day 7")
	}
	if _, err := e.NextPickupFromToday(testWednesday(e), -1, enums.FrequencyWeekly); err == nil {
		t.Fatal("expected error for day -1")
	}
}

func TestNextPickupAfter_FixedIncrement(t *testing.T) {
	e := testEngine(t)
	prev := time.Date(2026, 3, 10, 0, 0, 0, 0, e.Location()) // Tuesday

	got := e.NextPickupAfter(prev, 2, enums.FrequencyWeekly)
	if got.Day() != 17 {
		t.Fatalf("expected 2026-03-17, got %s", got)
	}

	got = e.NextPickupAfter(prev, 2, enums.FrequencyTriweekly)
	if got.Day() != 31 {
		t.Fatalf("expected 2026-03-31, got %s", got)
	}
}

func TestNextPickupAfter_SnapsToNewPreferredDay(t *testing.T) {
	e := testEngine(t)
	prev := time.Date(2026, 3, 10, 0, 0, 0, 0, e.Location()) // Tuesday

	// Preference moved to Friday mid-cycle: +7 lands on Tuesday, snap +3.
	got := e.NextPickupAfter(prev, 5, enums.FrequencyWeekly)
	if got.Day() != 20 {
		t.Fatalf("expected 2026-03-20, got %s", got)
	}
	if timeutil.DayOfWeek(got, e.Location()) != 5 {
		t.Fatalf("expected a Friday, got %s", got.Weekday())
	}
}

func TestBillingInstant_PrecedesPickup(t *testing.T) {
	e := testEngine(t)
	pickup := time.Date(2026, 3, 10, 0, 0, 0, 0, e.Location())
	slot := TimeOfDay{Hour: 12, Minute: 0}

	billing := e.BillingInstant(pickup, slot, 24)
	if billing.Day() != 9 || billing.Hour() != 12 {
		t.Fatalf("expected 2026-03-09 12:00, got %s", billing)
	}

	pickupAt := timeutil.At(pickup, slot.Hour, slot.Minute, e.Location())
	for _, lead := range []int{0, 1, 24, 48} {
		b := e.BillingInstant(pickup, slot, lead)
		if b.After(pickupAt) {
			t.Fatalf("lead=%d: billing %s is after pickup %s", lead, b, pickupAt)
		}
	}
}

func TestParseTimeSlotStart(t *testing.T) {
	cases := []struct {
		label string
		want  TimeOfDay
		ok    bool
	}{
		{"12:00 PM – 2:00 PM", TimeOfDay{12, 0}, true},
		{"9:00 AM - 11:00 AM", TimeOfDay{9, 0}, true},
		{"2:30 PM", TimeOfDay{14, 30}, true},
		{"12:00 pm – 2:00 pm", TimeOfDay{12, 0}, true},
		{"", DefaultSlotStart, false},
		{"whenever works", DefaultSlotStart, false},
	}
	for _, tc := range cases {
		got, ok := ParseTimeSlotStart(tc.label)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("ParseTimeSlotStart(%q) = %v,%t want %v,%t", tc.label, got, ok, tc.want, tc.ok)
		}
	}
}

func TestParseClockRoundTrip(t *testing.T) {
	slot, _ := ParseTimeSlotStart("4:15 PM – 6:00 PM")
	if got := ParseClock(slot.String()); got != slot {
		t.Fatalf("round trip changed value: %v -> %v", slot, got)
	}
	if got := ParseClock("not a clock"); got != DefaultSlotStart {
		t.Fatalf("expected default for malformed clock, got %v", got)
	}
}
